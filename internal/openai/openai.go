package openai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	ctxpkg "github.com/stupiduntilnot/llmshell/internal/context"
	"github.com/stupiduntilnot/llmshell/internal/model"
)

// DefaultBaseURL is the API root used when no override is configured.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client is a minimal OpenAI chat completions client.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewClient creates an OpenAI client. baseURL is the API root, e.g.
// https://api.openai.com/v1; an empty value selects the default.
func NewClient(apiKey, baseURL, modelName string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   modelName,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Message represents a chat message on the wire.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *usage `json:"usage"`
}

type usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// ChatCompletion sends a chat completion request and returns a CompletionResponse.
func (c *Client) ChatCompletion(messages []ctxpkg.Message) (model.CompletionResponse, error) {
	wire := make([]Message, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, Message{Role: m.Role, Content: m.Content})
	}
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    wire,
		Temperature: 0.2,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed to marshal openai request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed to create openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.CompletionResponse{}, fmt.Errorf("failed reading openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		truncated := truncate(string(body), 400)
		return model.CompletionResponse{}, fmt.Errorf("openai non-success status=%d body=%s", resp.StatusCode, truncated)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		truncated := truncate(string(body), 400)
		return model.CompletionResponse{}, fmt.Errorf("failed to parse openai response: %s", truncated)
	}

	result := model.CompletionResponse{}

	// Extract token usage.
	if parsed.Usage != nil {
		result.InputTokens = parsed.Usage.PromptTokens
		result.OutputTokens = parsed.Usage.CompletionTokens
	}

	if len(parsed.Choices) == 0 {
		result.Content = "(empty model response)"
		return result, nil
	}
	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if content == "" {
		result.Content = "(empty model response)"
		return result, nil
	}
	result.Content = content
	return result, nil
}

// ListModels fetches the ids of the models the backend serves, sorted.
func (c *Client) ListModels() ([]string, error) {
	req, err := http.NewRequest(http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading openai response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		truncated := truncate(string(body), 400)
		return nil, fmt.Errorf("openai non-success status=%d body=%s", resp.StatusCode, truncated)
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		truncated := truncate(string(body), 400)
		return nil, fmt.Errorf("failed to parse openai response: %s", truncated)
	}

	ids := make([]string, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		if d.ID != "" {
			ids = append(ids, d.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
