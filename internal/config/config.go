package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/zepposd/docudigitize/internal/autosave"
	"github.com/zepposd/docudigitize/internal/gemini"
	"github.com/zepposd/docudigitize/internal/ingest"
)

// dbFileName is the workspace database inside DataDir.
const dbFileName = "workspace.db"

// Config holds all environment-based configuration for docudigitize.
type Config struct {
	// Directory holding the workspace database. Defaults to
	// ~/.docudigitize.
	DataDir string `env:"DOCUDIGITIZE_DATA_DIR"`

	// Acting user name for headless operations (ingest, inbox).
	User string `env:"DOCUDIGITIZE_USER"`

	// Gemini collaborator. An empty key is allowed; operations that need
	// the collaborator then fail with an auth error.
	GeminiAPIKey      string `env:"GEMINI_API_KEY"`
	GeminiBaseURL     string `env:"GEMINI_BASE_URL" envDefault:"https://generativelanguage.googleapis.com"`
	GeminiModel       string `env:"GEMINI_MODEL" envDefault:"gemini-2.5-flash"`
	GeminiSearchModel string `env:"GEMINI_SEARCH_MODEL" envDefault:"gemini-2.5-pro"`

	// Autosave delays.
	AutosaveQuietInterval time.Duration `env:"AUTOSAVE_QUIET_INTERVAL" envDefault:"1500ms"`
	AutosaveSavingDelay   time.Duration `env:"AUTOSAVE_SAVING_DELAY" envDefault:"500ms"`
	AutosaveSavedDisplay  time.Duration `env:"AUTOSAVE_SAVED_DISPLAY" envDefault:"2s"`

	// Drop folder watched in serve mode. Empty disables the inbox.
	InboxDir         string `env:"INBOX_DIR"`
	InboxOnDuplicate string `env:"INBOX_ON_DUPLICATE" envDefault:"skip"`

	// MCP server settings.
	EnableMCP     bool   `env:"ENABLE_MCP" envDefault:"true"`
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:"127.0.0.1:8091"`
	// MCPAPIKey, when set, must be sent as a Bearer token to /mcp.
	MCPAPIKey string `env:"MCP_API_KEY"`

	// Environment controls log format. LogLevel overrides the
	// environment's default level when set.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the API key to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}

		cfg.DataDir = dir
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	absDir, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir to absolute path: %w", err)
	}

	cfg.DataDir = absDir

	if cfg.InboxDir != "" {
		absInbox, err := filepath.Abs(cfg.InboxDir)
		if err != nil {
			return nil, fmt.Errorf("resolving inbox dir to absolute path: %w", err)
		}

		cfg.InboxDir = absInbox
	}

	return cfg, nil
}

func (c *Config) validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"AUTOSAVE_QUIET_INTERVAL", c.AutosaveQuietInterval},
		{"AUTOSAVE_SAVING_DELAY", c.AutosaveSavingDelay},
		{"AUTOSAVE_SAVED_DISPLAY", c.AutosaveSavedDisplay},
	}

	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}

	if !ingest.DuplicatePolicy(c.InboxOnDuplicate).Valid() {
		return fmt.Errorf("INBOX_ON_DUPLICATE must be %q or %q, got %q",
			ingest.OnDuplicateSkip, ingest.OnDuplicateReplace, c.InboxOnDuplicate)
	}

	return nil
}

// ValidateServe checks the settings the long-running server needs on top
// of validate: at least one of MCP or the inbox, and an acting user for
// inbox uploads.
func (c *Config) ValidateServe() error {
	if !c.EnableMCP && c.InboxDir == "" {
		return errors.New("at least one of ENABLE_MCP or INBOX_DIR must be set")
	}

	if c.InboxDir != "" && c.User == "" {
		return errors.New("DOCUDIGITIZE_USER is required when INBOX_DIR is set")
	}

	return nil
}

// DefaultDataDir returns ~/.docudigitize.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".docudigitize"), nil
}

// DBPath returns the workspace database path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, dbFileName)
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Autosave returns the scheduler delays.
func (c *Config) Autosave() autosave.Config {
	return autosave.Config{
		QuietInterval: c.AutosaveQuietInterval,
		SavingDelay:   c.AutosaveSavingDelay,
		SavedDisplay:  c.AutosaveSavedDisplay,
	}
}

// DuplicatePolicy returns the inbox duplicate policy.
func (c *Config) DuplicatePolicy() ingest.DuplicatePolicy {
	return ingest.DuplicatePolicy(c.InboxOnDuplicate)
}

// GeminiOptions returns the client options for the configured endpoint
// and models.
func (c *Config) GeminiOptions() []gemini.Option {
	return []gemini.Option{
		gemini.WithBaseURL(c.GeminiBaseURL),
		gemini.WithModels(c.GeminiModel, c.GeminiSearchModel),
	}
}
