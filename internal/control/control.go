package control

import "fmt"

// Limits defines per-session budget limits. A zero field means unlimited.
type Limits struct {
	MaxTurns    int
	TokenBudget int64
}

// LimitType identifies which limit is reached.
type LimitType string

const (
	LimitTurns  LimitType = "max_turns"
	LimitTokens LimitType = "token_budget"
)

// LimitError indicates a session limit was reached.
type LimitError struct {
	Type      LimitType
	Value     int64
	Threshold int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("limit reached type=%s value=%d threshold=%d", e.Type, e.Value, e.Threshold)
}

// CheckTurnLimit validates turn usage. usedTurns counts completed turns, so
// the check fails once starting another turn would exceed the limit.
func CheckTurnLimit(l Limits, usedTurns int) error {
	if l.MaxTurns <= 0 {
		return nil
	}
	if usedTurns >= l.MaxTurns {
		return &LimitError{Type: LimitTurns, Value: int64(usedTurns), Threshold: int64(l.MaxTurns)}
	}
	return nil
}

// CheckTokenLimit validates cumulative token usage against the budget. The
// budget may be consumed exactly; only going past it is an error.
func CheckTokenLimit(l Limits, usedTokens int64) error {
	if l.TokenBudget <= 0 {
		return nil
	}
	if usedTokens > l.TokenBudget {
		return &LimitError{Type: LimitTokens, Value: usedTokens, Threshold: l.TokenBudget}
	}
	return nil
}
