// Package gemini is the HTTP client for the generative AI collaborator. It
// extracts text and metadata from scans, translates, suggests metadata
// titles, ranks files for a query and re-detects document languages.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
)

const (
	// DefaultBaseURL is the public Generative Language API.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultModel serves extraction, translation, suggestion and
	// language detection.
	DefaultModel = "gemini-2.5-flash"
	// DefaultSearchModel serves smart search.
	DefaultSearchModel = "gemini-2.5-pro"

	maxRedirects = 10

	// httpClientTimeout is generous because multi-page PDFs take a while.
	httpClientTimeout = 3 * time.Minute

	// maxResponseBytes caps response reads. OCR of a dense page is well
	// under this.
	maxResponseBytes = 8 * 1024 * 1024
)

// authMarkers are substrings of error bodies that mean the key was
// rejected even when the status code says otherwise.
var authMarkers = []string{"api key not valid", "permission denied", "api_key_invalid", "permission_denied"}

// Client talks to the generateContent endpoint.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	searchModel string
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithModels overrides the general and search models. Empty values keep
// the defaults.
func WithModels(model, searchModel string) Option {
	return func(c *Client) {
		if model != "" {
			c.model = model
		}

		if searchModel != "" {
			c.searchModel = searchModel
		}
	}
}

// sameHostRedirectPolicy follows redirects only to the original host so
// the API key header never reaches a third party.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 && req.URL.Host != via[0].URL.Host {
		return fmt.Errorf("redirect to different host blocked: %s -> %s", via[0].URL.Host, req.URL.Host)
	}

	return nil
}

// New creates a client authenticated with apiKey. An empty key is
// accepted; every call then fails with ErrAuth without touching the
// network.
func New(apiKey string, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		},
		baseURL:     DefaultBaseURL,
		apiKey:      apiKey,
		model:       DefaultModel,
		searchModel: DefaultSearchModel,
		logger:      logger.With(slog.String("component", "gemini")),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// generate posts req to model and returns the text of the first
// candidate.
func (c *Client) generate(ctx context.Context, model string, req generateRequest) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("no API key configured: %w", apperrors.ErrAuth)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshalling request body: %w", err)
	}

	endpoint := "/v1beta/models/" + url.PathEscape(model) + ":generateContent"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("calling %s: %w", model, ctx.Err())
		}

		return "", fmt.Errorf("calling %s: %w: %w", model, apperrors.ErrService, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading response from %s: %w: %w", model, apperrors.ErrService, err)
	}

	c.logger.Debug("generateContent",
		slog.String("model", model),
		slog.Int("status", resp.StatusCode),
		slog.Int("response_bytes", len(body)),
		slog.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode != http.StatusOK {
		return "", classify(model, resp.StatusCode, body)
	}

	result := gjson.ParseBytes(body)

	if reason := result.Get("promptFeedback.blockReason"); reason.Exists() {
		return "", fmt.Errorf("%s blocked the prompt (%s): %w", model, reason.String(), apperrors.ErrService)
	}

	text := result.Get("candidates.0.content.parts.#.text")
	if !text.Exists() || len(text.Array()) == 0 {
		return "", fmt.Errorf("%s returned no candidate text: %w", model, apperrors.ErrService)
	}

	var sb strings.Builder
	for _, part := range text.Array() {
		sb.WriteString(part.String())
	}

	return sb.String(), nil
}

// classify turns a non-200 response into ErrAuth or ErrService.
func classify(model string, status int, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = sanitizeResponseBody(body)
	}

	sentinel := apperrors.ErrService
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		sentinel = apperrors.ErrAuth
	} else {
		lower := strings.ToLower(string(body))
		for _, m := range authMarkers {
			if strings.Contains(lower, m) {
				sentinel = apperrors.ErrAuth
				break
			}
		}
	}

	return fmt.Errorf("%s (%d): %s: %w", model, status, msg, sentinel)
}

// sanitizeResponseBody truncates a response body for error messages and
// replaces control characters.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// decodeJSON unmarshals a JSON-mode answer. Models sometimes wrap JSON in a
// markdown fence despite the response MIME type.
func decodeJSON(model, text string, v any) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decoding %s answer: %w: %w", model, apperrors.ErrService, err)
	}

	return nil
}
