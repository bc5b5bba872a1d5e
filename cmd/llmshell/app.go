package main

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stupiduntilnot/llmshell/internal/console"
	ctxpkg "github.com/stupiduntilnot/llmshell/internal/context"
	"github.com/stupiduntilnot/llmshell/internal/control"
	"github.com/stupiduntilnot/llmshell/internal/db"
	"github.com/stupiduntilnot/llmshell/internal/diag"
	"github.com/stupiduntilnot/llmshell/internal/dummy"
	"github.com/stupiduntilnot/llmshell/internal/model"
	"github.com/stupiduntilnot/llmshell/internal/openai"
	"github.com/stupiduntilnot/llmshell/internal/shell"
)

// catalogTTL bounds how stale a file-backed model catalog may get before a
// lookup reloads it.
const catalogTTL = time.Hour

const summarySystemPrompt = `Condense this shell session transcript into a short summary. Keep the
commands that were run, their essential output, and any state the user
established. Plain text, no preamble.`

func openDatabase() (*sql.DB, error) {
	database, err := db.OpenDB(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(database); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return database, nil
}

func loadCatalog() (*model.Catalog, error) {
	if cfg.CatalogPath == "" {
		return model.NewCatalog(), nil
	}
	return model.LoadCatalog(cfg.CatalogPath, catalogTTL)
}

func newProviderRegistry() (*model.Registry, error) {
	registry := model.NewRegistry()
	if err := registry.Register("openai", func(modelName string) (model.Provider, error) {
		return openai.NewClient(cfg.APIKey, cfg.BaseURL, modelName, cfg.RequestTimeout()), nil
	}); err != nil {
		return nil, err
	}
	if err := registry.Register("dummy", func(modelName string) (model.Provider, error) {
		return dummy.NewProvider(modelName, cfg.DummyScript)
	}); err != nil {
		return nil, err
	}
	return registry, nil
}

// buildShell assembles the full shell from configuration. The returned
// recorder must be flushed before exit so in-flight diagnostics reach disk.
func buildShell(database *sql.DB, prompter console.Prompter) (*shell.Shell, *diag.FileRecorder, error) {
	catalog, err := loadCatalog()
	if err != nil {
		return nil, nil, err
	}
	registry, err := newProviderRegistry()
	if err != nil {
		return nil, nil, err
	}

	planner, err := registry.New(cfg.Provider, catalog.Resolve(cfg.PlannerModel))
	if err != nil {
		return nil, nil, fmt.Errorf("init planner provider: %w", err)
	}
	simulator, err := registry.New(cfg.Provider, catalog.Resolve(cfg.Model))
	if err != nil {
		return nil, nil, fmt.Errorf("init simulator provider: %w", err)
	}

	recorder := diag.NewFileRecorder(cfg.DiagDir, logger)
	sh, err := shell.New(shell.Options{
		DB:           database,
		Prompter:     prompter,
		Renderer:     console.NewRenderer(os.Stdout),
		Planner:      planner,
		Simulator:    simulator,
		Recorder:     recorder,
		Compressor:   newCompressor(planner),
		Limits:       control.Limits{MaxTurns: cfg.MaxTurns, TokenBudget: cfg.TokenBudget},
		Breaker:      control.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown()),
		HistoryLimit: cfg.HistoryLimit,
		Log:          logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return sh, recorder, nil
}

// newCompressor picks the history compressor. The summary variant reuses
// the planner model to condense overflowing transcripts.
func newCompressor(summarizing model.Provider) ctxpkg.Compressor {
	if cfg.Compressor == "summary" {
		return &ctxpkg.SummaryCompressor{
			TokenBudget: cfg.ContextBudget,
			Summarize:   newSummarizer(summarizing),
		}
	}
	return &ctxpkg.SimpleCompressor{MaxMessages: cfg.HistoryLimit}
}

func newSummarizer(p model.Provider) ctxpkg.Summarizer {
	return func(messages []ctxpkg.Message) (string, error) {
		var b strings.Builder
		for _, m := range messages {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
		resp, err := p.ChatCompletion([]ctxpkg.Message{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: b.String()},
		})
		if err != nil {
			return "", err
		}
		return resp.Content, nil
	}
}
