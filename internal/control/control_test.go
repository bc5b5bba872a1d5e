package control

import (
	"errors"
	"testing"
)

func TestCheckTurnLimit(t *testing.T) {
	l := Limits{MaxTurns: 2}
	if err := CheckTurnLimit(l, 0); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := CheckTurnLimit(l, 1); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := CheckTurnLimit(l, 2); err == nil {
		t.Fatal("expected limit error")
	}
}

func TestCheckTurnLimit_Unlimited(t *testing.T) {
	l := Limits{}
	if err := CheckTurnLimit(l, 100000); err != nil {
		t.Fatalf("zero limit must mean unlimited, got %v", err)
	}
}

func TestCheckTokenLimit(t *testing.T) {
	l := Limits{TokenBudget: 10}
	if err := CheckTokenLimit(l, 10); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := CheckTokenLimit(l, 11); err == nil {
		t.Fatal("expected token limit error")
	}
}

func TestCheckTokenLimit_Unlimited(t *testing.T) {
	l := Limits{}
	if err := CheckTokenLimit(l, 1<<40); err != nil {
		t.Fatalf("zero budget must mean unlimited, got %v", err)
	}
}

func TestLimitErrorDetail(t *testing.T) {
	err := CheckTokenLimit(Limits{TokenBudget: 5}, 9)
	var le *LimitError
	if !errors.As(err, &le) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if le.Type != LimitTokens {
		t.Errorf("unexpected type: %s", le.Type)
	}
	if le.Value != 9 || le.Threshold != 5 {
		t.Errorf("unexpected detail: value=%d threshold=%d", le.Value, le.Threshold)
	}
}
