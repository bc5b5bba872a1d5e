package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds llmshell configuration, resolved from defaults, an optional
// YAML file, and the environment. Environment wins.
type Config struct {
	APIKey   string
	BaseURL  string
	Provider string

	Model        string
	PlannerModel string
	CatalogPath  string

	DBPath        string
	ConfigDir     string
	HistoryLimit  int
	ContextBudget int
	Compressor    string
	DummyScript   string

	RequestTimeoutSeconds  int
	MaxTurns               int
	TokenBudget            int64
	BreakerThreshold       int
	BreakerCooldownSeconds int

	DiagDir string
}

func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

func (c Config) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSeconds) * time.Second
}

func defaults() Config {
	return Config{
		BaseURL:                "https://api.openai.com/v1",
		Provider:               "openai",
		Model:                  "gpt-5-mini",
		DBPath:                 "llmshell.db",
		HistoryLimit:           40,
		ContextBudget:          8000,
		Compressor:             "simple",
		DummyScript:            "ok",
		RequestTimeoutSeconds:  120,
		BreakerThreshold:       3,
		BreakerCooldownSeconds: 30,
		DiagDir:                "diagnostics",
	}
}

// fileConfig mirrors Config in YAML. Pointer fields distinguish "absent"
// from zero values so the file only overrides what it actually sets.
type fileConfig struct {
	APIKey   *string `yaml:"api_key"`
	BaseURL  *string `yaml:"base_url"`
	Provider *string `yaml:"provider"`
	Models   struct {
		Planner   *string `yaml:"planner"`
		Simulator *string `yaml:"simulator"`
		Catalog   *string `yaml:"catalog"`
	} `yaml:"models"`
	DBPath                *string `yaml:"db_path"`
	HistoryLimit          *int    `yaml:"history_limit"`
	ContextBudget         *int    `yaml:"context_budget"`
	Compressor            *string `yaml:"compressor"`
	DummyScript           *string `yaml:"dummy_script"`
	RequestTimeoutSeconds *int    `yaml:"request_timeout_seconds"`
	Limits                struct {
		MaxTurns               *int   `yaml:"max_turns"`
		TokenBudget            *int64 `yaml:"token_budget"`
		BreakerThreshold       *int   `yaml:"breaker_threshold"`
		BreakerCooldownSeconds *int   `yaml:"breaker_cooldown_seconds"`
	} `yaml:"limits"`
	DiagDir *string `yaml:"diag_dir"`
}

// Load resolves configuration. path selects an explicit YAML file; when
// empty, <config-dir>/config.yaml is read if it exists. The diagnostic
// switch itself (LLMSHELL_DIAG) stays environment-only and is read by the
// diagnostics package directly.
func Load(path string) (Config, error) {
	cfg := defaults()

	dir, explicitDir, err := resolveConfigDir()
	if err != nil {
		return Config{}, err
	}
	cfg.ConfigDir = dir
	if explicitDir {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Config{}, fmt.Errorf("failed to create config dir %s: %w", dir, err)
		}
	}

	explicitFile := path != ""
	if path == "" {
		path = filepath.Join(dir, "config.yaml")
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var f fileConfig
		if err := yaml.Unmarshal(data, &f); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		applyFile(&cfg, f)
	case explicitFile || !os.IsNotExist(err):
		return Config{}, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnv(&cfg)

	if cfg.PlannerModel == "" {
		cfg.PlannerModel = cfg.Model
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveConfigDir returns the config directory and whether it was set
// explicitly. Priority: LLMSHELL_CONFIG_DIR, then XDG_CONFIG_HOME, then
// ~/.config/llmshell.
func resolveConfigDir() (string, bool, error) {
	if dir := os.Getenv("LLMSHELL_CONFIG_DIR"); dir != "" {
		return dir, true, nil
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "llmshell"), false, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "llmshell"), false, nil
}

func applyFile(cfg *Config, f fileConfig) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}

	setString(&cfg.APIKey, f.APIKey)
	setString(&cfg.BaseURL, f.BaseURL)
	setString(&cfg.Provider, f.Provider)
	setString(&cfg.PlannerModel, f.Models.Planner)
	setString(&cfg.Model, f.Models.Simulator)
	setString(&cfg.CatalogPath, f.Models.Catalog)
	setString(&cfg.DBPath, f.DBPath)
	setInt(&cfg.HistoryLimit, f.HistoryLimit)
	setInt(&cfg.ContextBudget, f.ContextBudget)
	setString(&cfg.Compressor, f.Compressor)
	setString(&cfg.DummyScript, f.DummyScript)
	setInt(&cfg.RequestTimeoutSeconds, f.RequestTimeoutSeconds)
	setInt(&cfg.MaxTurns, f.Limits.MaxTurns)
	if f.Limits.TokenBudget != nil {
		cfg.TokenBudget = *f.Limits.TokenBudget
	}
	setInt(&cfg.BreakerThreshold, f.Limits.BreakerThreshold)
	setInt(&cfg.BreakerCooldownSeconds, f.Limits.BreakerCooldownSeconds)
	setString(&cfg.DiagDir, f.DiagDir)
}

func applyEnv(cfg *Config) {
	cfg.APIKey = envOrDefault("OPENAI_API_KEY", cfg.APIKey)
	cfg.BaseURL = envOrDefault("OPENAI_BASE_URL", cfg.BaseURL)
	cfg.Provider = envOrDefault("LLMSHELL_PROVIDER", cfg.Provider)
	cfg.Model = envOrDefault("LLMSHELL_MODEL", cfg.Model)
	cfg.PlannerModel = envOrDefault("LLMSHELL_PLANNER_MODEL", cfg.PlannerModel)
	cfg.DBPath = envOrDefault("LLMSHELL_DB", cfg.DBPath)
	cfg.CatalogPath = envOrDefault("LLMSHELL_CATALOG", cfg.CatalogPath)
	cfg.HistoryLimit = envIntOrDefault("LLMSHELL_HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.ContextBudget = envIntOrDefault("LLMSHELL_CONTEXT_BUDGET", cfg.ContextBudget)
	cfg.Compressor = envOrDefault("LLMSHELL_COMPRESSOR", cfg.Compressor)
	cfg.DummyScript = envOrDefault("LLMSHELL_DUMMY_SCRIPT", cfg.DummyScript)
	cfg.RequestTimeoutSeconds = envIntOrDefault("LLMSHELL_REQUEST_TIMEOUT", cfg.RequestTimeoutSeconds)
	cfg.MaxTurns = envIntOrDefault("LLMSHELL_MAX_TURNS", cfg.MaxTurns)
	cfg.TokenBudget = envInt64OrDefault("LLMSHELL_TOKEN_BUDGET", cfg.TokenBudget)
	cfg.BreakerThreshold = envIntOrDefault("LLMSHELL_BREAKER_THRESHOLD", cfg.BreakerThreshold)
	cfg.BreakerCooldownSeconds = envIntOrDefault("LLMSHELL_BREAKER_COOLDOWN", cfg.BreakerCooldownSeconds)
	cfg.DiagDir = envOrDefault("LLMSHELL_DIAG_DIR", cfg.DiagDir)
}

func validate(cfg Config) error {
	if cfg.Provider == "" {
		return fmt.Errorf("LLMSHELL_PROVIDER cannot be empty")
	}
	if cfg.Provider == "openai" && cfg.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required in environment when LLMSHELL_PROVIDER=openai")
	}
	if cfg.Compressor != "simple" && cfg.Compressor != "summary" {
		return fmt.Errorf("LLMSHELL_COMPRESSOR must be 'simple' or 'summary', got %q", cfg.Compressor)
	}
	if cfg.HistoryLimit <= 0 {
		return fmt.Errorf("LLMSHELL_HISTORY_LIMIT must be positive")
	}
	if cfg.ContextBudget <= 0 {
		return fmt.Errorf("LLMSHELL_CONTEXT_BUDGET must be positive")
	}
	if cfg.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("LLMSHELL_REQUEST_TIMEOUT must be positive")
	}
	if cfg.MaxTurns < 0 {
		return fmt.Errorf("LLMSHELL_MAX_TURNS cannot be negative")
	}
	if cfg.TokenBudget < 0 {
		return fmt.Errorf("LLMSHELL_TOKEN_BUDGET cannot be negative")
	}
	if cfg.BreakerThreshold <= 0 {
		return fmt.Errorf("LLMSHELL_BREAKER_THRESHOLD must be positive")
	}
	if cfg.BreakerCooldownSeconds <= 0 {
		return fmt.Errorf("LLMSHELL_BREAKER_COOLDOWN must be positive")
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64OrDefault(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}
