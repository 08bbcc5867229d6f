package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zepposd/docudigitize/internal/autosave"
	"github.com/zepposd/docudigitize/internal/ingest"
)

// clearConfigEnv unsets all config env vars so tests start clean.
func clearConfigEnv(t *testing.T) {
	t.Helper()

	for _, key := range []string{
		"DOCUDIGITIZE_DATA_DIR",
		"DOCUDIGITIZE_USER",
		"GEMINI_API_KEY",
		"GEMINI_BASE_URL",
		"GEMINI_MODEL",
		"GEMINI_SEARCH_MODEL",
		"AUTOSAVE_QUIET_INTERVAL",
		"AUTOSAVE_SAVING_DELAY",
		"AUTOSAVE_SAVED_DISPLAY",
		"INBOX_DIR",
		"INBOX_ON_DUPLICATE",
		"ENABLE_MCP",
		"MCP_LISTEN_ADDR",
		"MCP_API_KEY",
		"ENVIRONMENT",
		"LOG_LEVEL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("DOCUDIGITIZE_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "workspace.db"), cfg.DBPath())
	assert.Empty(t, cfg.GeminiAPIKey)
	assert.Equal(t, "https://generativelanguage.googleapis.com", cfg.GeminiBaseURL)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, "gemini-2.5-pro", cfg.GeminiSearchModel)
	assert.Equal(t, 1500*time.Millisecond, cfg.AutosaveQuietInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.AutosaveSavingDelay)
	assert.Equal(t, 2*time.Second, cfg.AutosaveSavedDisplay)
	assert.Equal(t, "skip", cfg.InboxOnDuplicate)
	assert.True(t, cfg.EnableMCP)
	assert.Equal(t, "127.0.0.1:8091", cfg.MCPListenAddr)
	assert.Empty(t, cfg.MCPAPIKey)
	assert.Equal(t, "development", cfg.Environment)
	assert.Empty(t, cfg.LogLevel)
}

func TestLoad_DefaultDataDir(t *testing.T) {
	clearConfigEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".docudigitize"), cfg.DataDir)
}

func TestLoad_ResolvesRelativeDirs(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DOCUDIGITIZE_DATA_DIR", "relative/data")
	t.Setenv("INBOX_DIR", "relative/inbox")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(cfg.DataDir), "expected absolute path, got %s", cfg.DataDir)
	assert.True(t, filepath.IsAbs(cfg.InboxDir), "expected absolute path, got %s", cfg.InboxDir)
}

func TestLoad_CustomValues(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DOCUDIGITIZE_DATA_DIR", t.TempDir())
	t.Setenv("DOCUDIGITIZE_USER", "Maria")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("GEMINI_MODEL", "gemini-test")
	t.Setenv("AUTOSAVE_QUIET_INTERVAL", "3s")
	t.Setenv("INBOX_ON_DUPLICATE", "replace")
	t.Setenv("ENABLE_MCP", "false")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Maria", cfg.User)
	assert.Equal(t, "key", cfg.GeminiAPIKey)
	assert.Equal(t, "gemini-test", cfg.GeminiModel)
	assert.Equal(t, 3*time.Second, cfg.AutosaveQuietInterval)
	assert.Equal(t, ingest.OnDuplicateReplace, cfg.DuplicatePolicy())
	assert.False(t, cfg.EnableMCP)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DOCUDIGITIZE_DATA_DIR", t.TempDir())
	t.Setenv("AUTOSAVE_SAVING_DELAY", "soon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_NonPositiveDuration(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DOCUDIGITIZE_DATA_DIR", t.TempDir())
	t.Setenv("AUTOSAVE_SAVED_DISPLAY", "0s")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTOSAVE_SAVED_DISPLAY")
}

func TestLoad_UnknownDuplicatePolicy(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("DOCUDIGITIZE_DATA_DIR", t.TempDir())
	t.Setenv("INBOX_ON_DUPLICATE", "overwrite")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "INBOX_ON_DUPLICATE")
}

// --- validate ---

func validConfig() *Config {
	return &Config{
		DataDir:               "/data",
		AutosaveQuietInterval: time.Second,
		AutosaveSavingDelay:   time.Second,
		AutosaveSavedDisplay:  time.Second,
		InboxOnDuplicate:      "skip",
		EnableMCP:             true,
	}
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validConfig().validate())
}

func TestValidate_NegativeQuietInterval(t *testing.T) {
	cfg := validConfig()
	cfg.AutosaveQuietInterval = -time.Second

	err := cfg.validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTOSAVE_QUIET_INTERVAL")
}

func TestValidate_EmptyDuplicatePolicy(t *testing.T) {
	cfg := validConfig()
	cfg.InboxOnDuplicate = ""

	assert.Error(t, cfg.validate())
}

// --- ValidateServe ---

func TestValidateServe_MCPOnly(t *testing.T) {
	assert.NoError(t, validConfig().ValidateServe())
}

func TestValidateServe_InboxOnly(t *testing.T) {
	cfg := validConfig()
	cfg.EnableMCP = false
	cfg.InboxDir = "/inbox"
	cfg.User = "scanner"

	assert.NoError(t, cfg.ValidateServe())
}

func TestValidateServe_Neither(t *testing.T) {
	cfg := validConfig()
	cfg.EnableMCP = false

	err := cfg.ValidateServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENABLE_MCP")
}

func TestValidateServe_InboxWithoutUser(t *testing.T) {
	cfg := validConfig()
	cfg.InboxDir = "/inbox"

	err := cfg.ValidateServe()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DOCUDIGITIZE_USER")
}

// --- helpers ---

func TestAutosave(t *testing.T) {
	cfg := validConfig()
	cfg.AutosaveQuietInterval = 3 * time.Second

	assert.Equal(t, autosave.Config{
		QuietInterval: 3 * time.Second,
		SavingDelay:   time.Second,
		SavedDisplay:  time.Second,
	}, cfg.Autosave())
}

func TestGeminiOptions(t *testing.T) {
	cfg := validConfig()
	cfg.GeminiBaseURL = "http://localhost:1234"
	cfg.GeminiModel = "m"
	cfg.GeminiSearchModel = "s"

	assert.Len(t, cfg.GeminiOptions(), 2)
}

func TestDefaultDataDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := DefaultDataDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".docudigitize"), dir)
}

func TestIsProduction_False(t *testing.T) {
	cfg := &Config{Environment: "development"}
	assert.False(t, cfg.IsProduction())
}
