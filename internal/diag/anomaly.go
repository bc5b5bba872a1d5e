package diag

import (
	"fmt"
	"strings"
)

// oversizeLimit is the output size above which a reply is flagged as likely
// to run into generation or transport limits.
const oversizeLimit = 100000

type anomalyReport struct {
	ArgsSize     int
	ArgsTokens   int
	OutputSize   int
	OutputTokens int
	OpenBraces   int
	CloseBraces  int
	ControlChars int
	Imbalanced   bool
	Truncated    bool
	Issues       []string
}

// analyzeOutput inspects a raw model reply for signs that it will not decode
// cleanly. It is a pure function of the two texts.
func analyzeOutput(args, output string) anomalyReport {
	rep := anomalyReport{
		ArgsSize:     len(args),
		ArgsTokens:   estimateTokens(args),
		OutputSize:   len(output),
		OutputTokens: estimateTokens(output),
		OpenBraces:   strings.Count(output, "{"),
		CloseBraces:  strings.Count(output, "}"),
		ControlChars: countControlChars(output),
	}
	rep.Imbalanced = rep.OpenBraces != rep.CloseBraces

	// Truncation here is positional: an object opened after the last close.
	lastOpen := strings.LastIndexByte(output, '{')
	lastClose := strings.LastIndexByte(output, '}')
	rep.Truncated = lastOpen >= 0 && lastClose < lastOpen

	if rep.OutputSize > oversizeLimit {
		rep.Issues = append(rep.Issues, fmt.Sprintf("output size %d exceeds %d and may hit size limits", rep.OutputSize, oversizeLimit))
	}
	if rep.Imbalanced {
		rep.Issues = append(rep.Issues, fmt.Sprintf("brace imbalance: %d open vs %d close", rep.OpenBraces, rep.CloseBraces))
	}
	if rep.Truncated {
		rep.Issues = append(rep.Issues, "output looks truncated: unclosed object at end")
	}
	if rep.ControlChars > 0 {
		rep.Issues = append(rep.Issues, fmt.Sprintf("output contains %d control characters", rep.ControlChars))
	}
	return rep
}

func estimateTokens(text string) int {
	chars := len([]rune(text))
	if chars <= 0 {
		return 0
	}
	return (chars + 3) / 4
}

// countControlChars counts bytes in the control ranges, excluding the
// whitespace controls that legitimately appear in command output.
func countControlChars(s string) int {
	count := 0
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if b < 0x20 || b == 0x7f {
			count++
		}
	}
	return count
}
