package context

import "strings"

// SimpleCompressor keeps only the last MaxMessages messages.
type SimpleCompressor struct {
	MaxMessages int
}

// Compress truncates messages to the most recent MaxMessages entries.
func (c *SimpleCompressor) Compress(messages []Message) []Message {
	if c.MaxMessages <= 0 || len(messages) <= c.MaxMessages {
		return messages
	}
	return messages[len(messages)-c.MaxMessages:]
}

// Summarizer produces a short summary of a transcript chunk. Implemented by
// the caller, typically on top of a model provider.
type Summarizer func(messages []Message) (string, error)

// SummaryCompressor replaces the oldest part of an over-budget transcript
// with a single summary message. When no summary can be produced the old
// messages are dropped instead; the transcript always shrinks.
type SummaryCompressor struct {
	TokenBudget int
	KeepRecent  int
	Summarize   Summarizer
}

func (c *SummaryCompressor) Compress(messages []Message) []Message {
	if c.TokenBudget <= 0 || transcriptTokens(messages) <= c.TokenBudget {
		return messages
	}
	keep := c.KeepRecent
	if keep <= 0 {
		keep = 8
	}
	if keep >= len(messages) {
		return messages
	}

	head := messages[:len(messages)-keep]
	tail := messages[len(messages)-keep:]
	if c.Summarize != nil {
		if summary, err := c.Summarize(head); err == nil && strings.TrimSpace(summary) != "" {
			out := make([]Message, 0, 1+len(tail))
			out = append(out, Message{
				Role:    "system",
				Content: "Summary of earlier conversation: " + strings.TrimSpace(summary),
			})
			out = append(out, tail...)
			return out
		}
	}
	return tail
}

func transcriptTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokens(m.Content)
	}
	return total
}

// estimateTokens approximates tokens as ceil(chars/4).
func estimateTokens(text string) int {
	return (len([]rune(text)) + 3) / 4
}
