package model

import (
	"testing"

	ctxpkg "github.com/stupiduntilnot/llmshell/internal/context"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) ChatCompletion(messages []ctxpkg.Message) (CompletionResponse, error) {
	return CompletionResponse{Content: s.name}, nil
}

func TestRegistry_RegisterAndNew(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("openai", func(modelName string) (Provider, error) {
		return &stubProvider{name: "openai/" + modelName}, nil
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	p, err := r.New("openai", "gpt-5-mini")
	if err != nil {
		t.Fatalf("new failed: %v", err)
	}
	resp, err := p.ChatCompletion(nil)
	if err != nil {
		t.Fatalf("completion failed: %v", err)
	}
	if resp.Content != "openai/gpt-5-mini" {
		t.Fatalf("expected model-bound provider, got %s", resp.Content)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	f := func(string) (Provider, error) { return &stubProvider{}, nil }
	if err := r.Register("openai", f); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if err := r.Register("openai", f); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistry_MustListSorted(t *testing.T) {
	r := NewRegistry()
	f := func(string) (Provider, error) { return &stubProvider{}, nil }
	_ = r.Register("openai", f)
	_ = r.Register("dummy", f)
	_ = r.Register("local", f)

	list := r.MustList()
	if len(list) != 3 {
		t.Fatalf("expected 3 backends, got %d", len(list))
	}
	if list[0].Name != "dummy" || list[1].Name != "local" || list[2].Name != "openai" {
		t.Fatalf("unexpected order: %+v", list)
	}
}

func TestRegistry_RegisterInvalid(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("openai", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	if err := r.Register("   ", func(string) (Provider, error) { return &stubProvider{}, nil }); err == nil {
		t.Fatal("expected empty-name error")
	}
}

func TestRegistry_NewUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.New("missing", "gpt-5-mini"); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
