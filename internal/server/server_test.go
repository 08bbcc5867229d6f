package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusTeapot)
})

func TestNewMux_HealthDefault(t *testing.T) {
	mux := NewMux(MuxConfig{MCPHandler: okHandler, Logger: testLogger})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var h Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, Health{Status: "ok"}, h)
}

func TestNewMux_HealthFunc(t *testing.T) {
	mux := NewMux(MuxConfig{
		MCPHandler: okHandler,
		Health:     func() Health { return Health{Status: "ok", Files: 3, Autosave: "pending"} },
		Logger:     testLogger,
	})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var h Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, 3, h.Files)
	assert.Equal(t, "pending", h.Autosave)
}

func TestNewMux_HealthRejectsPost(t *testing.T) {
	mux := NewMux(MuxConfig{MCPHandler: okHandler, Logger: testLogger})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestNewMux_MCPOpenWithoutKey(t *testing.T) {
	mux := NewMux(MuxConfig{MCPHandler: okHandler, Logger: testLogger})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestMiddleware(t *testing.T) {
	mux := NewMux(MuxConfig{MCPHandler: okHandler, APIKey: "secret-key", Logger: testLogger})

	tests := []struct {
		name    string
		header  string
		want    int
		wwwAuth string
	}{
		{"no header", "", http.StatusUnauthorized, "Bearer"},
		{"basic auth", "Basic abc", http.StatusUnauthorized, "Bearer"},
		{"wrong key", "Bearer nope", http.StatusUnauthorized, `Bearer error="invalid_token"`},
		{"valid key", "Bearer secret-key", http.StatusTeapot, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, tt.wwwAuth, rec.Header().Get("WWW-Authenticate"))
		})
	}
}

func TestMiddleware_HealthStaysOpen(t *testing.T) {
	mux := NewMux(MuxConfig{MCPHandler: okHandler, APIKey: "secret-key", Logger: testLogger})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListenAndServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- ListenAndServe(ctx, addr, okHandler, testLogger) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusTeapot
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServe_BadAddr(t *testing.T) {
	err := ListenAndServe(context.Background(), "256.0.0.1:bad", okHandler, testLogger)
	assert.Error(t, err)
}
