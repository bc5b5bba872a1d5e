package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/stupiduntilnot/llmshell/internal/config"
	ctxpkg "github.com/stupiduntilnot/llmshell/internal/context"
	"github.com/stupiduntilnot/llmshell/internal/db"
	"github.com/stupiduntilnot/llmshell/internal/dummy"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Provider:               "dummy",
		Model:                  "gpt-5-mini",
		PlannerModel:           "gpt-5-mini",
		DBPath:                 filepath.Join(t.TempDir(), "test.db"),
		HistoryLimit:           10,
		ContextBudget:          1000,
		Compressor:             "simple",
		DummyScript:            "ok",
		RequestTimeoutSeconds:  5,
		BreakerThreshold:       3,
		BreakerCooldownSeconds: 30,
		DiagDir:                filepath.Join(t.TempDir(), "diag"),
	}
}

func TestRunModels(t *testing.T) {
	logger = zap.NewNop()
	cfg = testConfig(t)
	cfg.PlannerModel = "full"

	cmd := &cobra.Command{}
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	if err := runModels(cmd, nil); err != nil {
		t.Fatal(err)
	}

	output := out.String()
	if !strings.Contains(output, "* gpt-5-mini (mini)") {
		t.Errorf("expected simulator marker on gpt-5-mini:\n%s", output)
	}
	if !strings.Contains(output, "+ gpt-5 (full)") {
		t.Errorf("expected planner marker on gpt-5:\n%s", output)
	}
	if !strings.Contains(output, "gpt-4o-mini") {
		t.Errorf("expected builtin entries listed:\n%s", output)
	}
}

func TestRunModelsRefreshNeedsOpenAI(t *testing.T) {
	logger = zap.NewNop()
	cfg = testConfig(t)
	modelsRefresh = true
	defer func() { modelsRefresh = false }()

	if err := runModels(&cobra.Command{}, nil); err == nil {
		t.Fatal("expected error: live refresh has no dummy backend")
	}
}

func TestLoadCatalogBuiltin(t *testing.T) {
	cfg = testConfig(t)
	cfg.CatalogPath = ""

	catalog, err := loadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	if got := catalog.Resolve("mini"); got != "gpt-5-mini" {
		t.Errorf("expected builtin alias to resolve, got %q", got)
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	cfg = testConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "models.yaml")
	yaml := `models:
  - name: house-model
    aliases: [house]
    context_window: 8192
    max_output: 2048
`
	if err := os.WriteFile(cfg.CatalogPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	catalog, err := loadCatalog()
	if err != nil {
		t.Fatal(err)
	}
	if got := catalog.Resolve("house"); got != "house-model" {
		t.Errorf("expected file-backed alias to resolve, got %q", got)
	}
}

func TestNewProviderRegistry(t *testing.T) {
	cfg = testConfig(t)

	registry, err := newProviderRegistry()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := registry.New("dummy", "gpt-5-mini"); err != nil {
		t.Fatalf("dummy backend should build: %v", err)
	}
	if _, err := registry.New("openai", "gpt-5-mini"); err != nil {
		t.Fatalf("openai backend should build: %v", err)
	}
	if _, err := registry.New("carrier-pigeon", "gpt-5-mini"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestNewCompressor(t *testing.T) {
	cfg = testConfig(t)

	if _, ok := newCompressor(nil).(*ctxpkg.SimpleCompressor); !ok {
		t.Errorf("expected SimpleCompressor for %q", cfg.Compressor)
	}

	cfg.Compressor = "summary"
	provider, err := dummy.NewProvider("gpt-5-mini", "ok")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := newCompressor(provider).(*ctxpkg.SummaryCompressor); !ok {
		t.Error("expected SummaryCompressor for summary")
	}
}

func TestNewSummarizer(t *testing.T) {
	provider, err := dummy.NewProvider("gpt-5-mini", "msg:the gist")
	if err != nil {
		t.Fatal(err)
	}

	summary, err := newSummarizer(provider)([]ctxpkg.Message{
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "second"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if summary != "the gist" {
		t.Errorf("expected provider reply as summary, got %q", summary)
	}
}

func TestNewSummarizerPropagatesError(t *testing.T) {
	provider, err := dummy.NewProvider("gpt-5-mini", "err:provider_api")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := newSummarizer(provider)(nil); err == nil {
		t.Fatal("expected provider error to surface")
	}
}

func TestBuildShell(t *testing.T) {
	logger = zap.NewNop()
	cfg = testConfig(t)

	database, err := openDatabase()
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	prompter, err := dummy.NewPrompter("eof")
	if err != nil {
		t.Fatal(err)
	}
	sh, recorder, err := buildShell(database, prompter)
	if err != nil {
		t.Fatal(err)
	}
	if sh == nil || recorder == nil {
		t.Fatal("expected a wired shell and recorder")
	}
	recorder.Flush()
}

func TestOpenDatabaseInitializesSchema(t *testing.T) {
	cfg = testConfig(t)

	database, err := openDatabase()
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	// Schema must be usable right away.
	if _, err := db.CreateSession(database, "probe"); err != nil {
		t.Fatalf("schema not initialized: %v", err)
	}
}
