package model

import ctxpkg "github.com/stupiduntilnot/llmshell/internal/context"

// CompletionResponse is the common response model for model providers.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// Provider is the model provider abstraction used by the shell. The planner
// and simulator roles are both served through this single method; they
// differ only in the messages they are handed.
type Provider interface {
	ChatCompletion(messages []ctxpkg.Message) (CompletionResponse, error)
}

// Lister is implemented by providers that can enumerate the models their
// backend serves.
type Lister interface {
	ListModels() ([]string, error)
}
