package shell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stupiduntilnot/llmshell/internal/protocol"
)

const plannerSystemPrompt = `You are the planner for llmshell, a shell whose computer is a language model.
When the user asks for something a command can do, respond with exactly one JSON object:
{"cmd": ["binary", "arg1"], "workdir": "/optional/path", "timeout": 30000}
"workdir" and "timeout" (milliseconds) are optional; "command" is accepted as a key in place of "cmd".
No prose around the JSON. When no command fits, answer in plain text instead.`

const simulatorSystemPrompt = `You are the computer behind llmshell. You receive one command invocation and reply with exactly one JSON object describing its execution:
{"output": "...", "metadata": {"exit_code": 0, "duration_seconds": 0.0}}
"output" carries what the command would print, stdout and stderr interleaved.
No prose around the JSON.`

// History entries are bounded so one verbose command cannot crowd every
// later prompt out of the context budget.
const (
	historyMaxLines = 40
	historyMaxBytes = 4000
)

// classifyProviderError buckets a provider failure for breaker accounting
// and the event trail.
func classifyProviderError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "status=429"), strings.Contains(msg, "rate limit"):
		return "rate_limit"
	case strings.Contains(msg, "status=401"), strings.Contains(msg, "status=403"),
		strings.Contains(msg, "api key"), strings.Contains(msg, "unauthorized"):
		return "auth"
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "broken pipe"), strings.Contains(msg, "network"):
		return "network"
	case strings.Contains(msg, "status=5"):
		return "server"
	default:
		return "unknown"
	}
}

// commandLine renders a descriptor the way the user would type it.
func commandLine(desc protocol.CommandDescriptor) string {
	return strings.Join(desc.Cmd, " ")
}

// simulatorRequest renders the invocation the simulator is asked to execute.
func simulatorRequest(desc protocol.CommandDescriptor) string {
	var b strings.Builder
	b.WriteString("Execute: ")
	b.WriteString(strings.Join(desc.Cmd, " "))
	if desc.Workdir != "" {
		b.WriteString("\nworkdir: " + desc.Workdir)
	}
	if desc.Timeout > 0 {
		fmt.Fprintf(&b, "\ntimeout_ms: %d", desc.Timeout.Milliseconds())
	}
	return b.String()
}

func boundForHistory(text string) string {
	out, truncatedLines, truncatedBytes := applyOutputLimits(text, historyMaxLines, historyMaxBytes)
	if truncatedLines || truncatedBytes {
		out += "\n[truncated]"
	}
	return out
}

func applyOutputLimits(text string, maxLines, maxBytes int) (out string, truncatedLines, truncatedBytes bool) {
	if maxLines > 0 {
		lines := strings.Split(text, "\n")
		if len(lines) > maxLines {
			lines = lines[:maxLines]
			text = strings.Join(lines, "\n")
			truncatedLines = true
		}
	}
	if maxBytes > 0 && len(text) > maxBytes {
		text = text[:maxBytes]
		truncatedBytes = true
	}
	return text, truncatedLines, truncatedBytes
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
