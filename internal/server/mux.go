// Package server provides HTTP server construction for docudigitize.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Health is the body of the /healthz endpoint.
type Health struct {
	Status   string `json:"status"`
	Files    int    `json:"files"`
	Autosave string `json:"autosave,omitempty"`
}

// MuxConfig holds dependencies for building the HTTP mux.
type MuxConfig struct {
	MCPHandler http.Handler
	// APIKey, when set, is required as a Bearer token on /mcp.
	APIKey string
	Health func() Health
	Logger *slog.Logger
}

// NewMux builds the HTTP mux with the health and MCP endpoints. The MCP
// endpoint is protected by Bearer token middleware when an API key is
// configured.
func NewMux(cfg MuxConfig) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth(cfg.Health))

	mcp := cfg.MCPHandler
	if cfg.APIKey != "" {
		mcp = Middleware(cfg.APIKey, cfg.Logger)(mcp)
	}

	mux.Handle("/mcp", mcp)

	return mux
}

func handleHealth(fn func() Health) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		h := Health{Status: "ok"}
		if fn != nil {
			h = fn()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h)
	}
}
