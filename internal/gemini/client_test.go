package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	apperrors "github.com/zepposd/docudigitize/internal/errors"
	"github.com/zepposd/docudigitize/internal/ingest"
	"github.com/zepposd/docudigitize/internal/models"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// answer wraps text as a generateContent response.
func answer(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}}},
		},
	})
	return string(b)
}

// newTestClient returns a client pointed at a server that records the
// last request body and replies with status and body.
func newTestClient(t *testing.T, status int, body string) (*Client, *[]byte) {
	t.Helper()

	var last []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		last, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return New("test-key", testLogger, WithHTTPClient(srv.Client()), WithBaseURL(srv.URL)), &last
}

// --- generate() internals ---

func TestGenerate_SetsEndpointAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		w.Write([]byte(answer("ok")))
	}))
	defer srv.Close()

	c := New("secret", testLogger, WithHTTPClient(srv.Client()), WithBaseURL(srv.URL+"/"))
	out, err := c.generate(context.Background(), c.model, textRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestGenerate_JoinsParts(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK,
		`{"candidates":[{"content":{"parts":[{"text":"Hello, "},{"text":"world"}]}}]}`)

	out, err := c.generate(context.Background(), c.model, textRequest("hi"))
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", out)
}

func TestGenerate_EmptyKeyIsAuthError(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	c := New("", testLogger, WithHTTPClient(srv.Client()), WithBaseURL(srv.URL))
	_, err := c.generate(context.Background(), c.model, textRequest("hi"))
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
	assert.False(t, called)
}

func TestGenerate_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		auth   bool
	}{
		{"invalid key", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid. Please pass a valid API key.","status":"INVALID_ARGUMENT","details":[{"reason":"API_KEY_INVALID"}]}}`, true},
		{"permission denied", http.StatusForbidden, `{"error":{"code":403,"message":"Permission denied on resource","status":"PERMISSION_DENIED"}}`, true},
		{"unauthorized status", http.StatusUnauthorized, `nope`, true},
		{"overloaded", http.StatusServiceUnavailable, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`, false},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`, false},
		{"plain text 500", http.StatusInternalServerError, "boom\x00", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.status, tt.body)

			_, err := c.generate(context.Background(), c.model, textRequest("hi"))
			require.Error(t, err)
			assert.Equal(t, tt.auth, apperrors.IsAuth(err))
			assert.Equal(t, !tt.auth, strings.Contains(err.Error(), apperrors.ErrService.Error()))
		})
	}
}

func TestGenerate_ErrorMessageFromBody(t *testing.T) {
	c, _ := newTestClient(t, http.StatusServiceUnavailable, `{"error":{"message":"The model is overloaded."}}`)

	_, err := c.generate(context.Background(), c.model, textRequest("hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "The model is overloaded.")
	assert.Contains(t, err.Error(), "503")
}

func TestGenerate_NoCandidates(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"candidates":[]}`)

	_, err := c.generate(context.Background(), c.model, textRequest("hi"))
	assert.ErrorIs(t, err, apperrors.ErrService)
}

func TestGenerate_BlockedPrompt(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`)

	_, err := c.generate(context.Background(), c.model, textRequest("hi"))
	require.ErrorIs(t, err, apperrors.ErrService)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestGenerate_TransportErrorIsService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := New("k", testLogger, WithBaseURL(url))
	_, err := c.generate(context.Background(), c.model, textRequest("hi"))
	assert.ErrorIs(t, err, apperrors.ErrService)
}

func TestGenerate_CancelledContext(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, answer("ok"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.generate(ctx, c.model, textRequest("hi"))
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, apperrors.ErrService)
}

func TestSameHostRedirectPolicy(t *testing.T) {
	orig, _ := http.NewRequest(http.MethodPost, "https://generativelanguage.googleapis.com/a", nil)
	same, _ := http.NewRequest(http.MethodPost, "https://generativelanguage.googleapis.com/b", nil)
	other, _ := http.NewRequest(http.MethodPost, "https://evil.example.com/b", nil)

	assert.NoError(t, sameHostRedirectPolicy(same, []*http.Request{orig}))
	assert.Error(t, sameHostRedirectPolicy(other, []*http.Request{orig}))
}

func TestDecodeJSON_StripsFence(t *testing.T) {
	var out []string
	require.NoError(t, decodeJSON("m", "```json\n[\"a\"]\n```", &out))
	assert.Equal(t, []string{"a"}, out)
}

func TestDecodeJSON_InvalidIsService(t *testing.T) {
	var out []string
	assert.ErrorIs(t, decodeJSON("m", "not json", &out), apperrors.ErrService)
}

// --- Extract ---

func TestExtract_SendsImageAndSchema(t *testing.T) {
	c, last := newTestClient(t, http.StatusOK, answer(`{"ocrText":"Αθήνα 1921","summary":"Επιστολή.","originalLanguage":"Ελληνικά","metadata":{"Place":"Αθήνα","Χρονολογία":"1921"}}`))

	data := []byte("\x89PNG fake")
	ext, err := c.Extract(context.Background(), ingest.ExtractRequest{
		Data:     data,
		MIMEType: "image/png",
		Titles:   []string{"Χρονολογία", "Place", "Author"},
	})
	require.NoError(t, err)

	req := gjson.ParseBytes(*last)
	assert.Equal(t, "image/png", req.Get("contents.0.parts.0.inlineData.mimeType").String())
	assert.Equal(t, base64.StdEncoding.EncodeToString(data), req.Get("contents.0.parts.0.inlineData.data").String())
	assert.Contains(t, req.Get("contents.0.parts.1.text").String(), "Χρονολογία, Place, Author")
	assert.Equal(t, "application/json", req.Get("generationConfig.responseMimeType").String())
	assert.Equal(t, "STRING", req.Get(`generationConfig.responseSchema.properties.metadata.properties.Author.type`).String())

	assert.Equal(t, "Αθήνα 1921", ext.OCRText)
	assert.Equal(t, "Επιστολή.", ext.Summary)
	assert.Equal(t, "Ελληνικά", ext.OriginalLanguage)
	assert.Equal(t, models.Metadata{
		{Name: "Χρονολογία", Value: "1921"},
		{Name: "Place", Value: "Αθήνα"},
		{Name: "Author", Value: ""},
	}, ext.Metadata)
}

func TestExtract_NoTitlesOmitsMetadata(t *testing.T) {
	c, last := newTestClient(t, http.StatusOK, answer(`{"ocrText":"x","summary":"y","metadata":{"stray":"v"}}`))

	ext, err := c.Extract(context.Background(), ingest.ExtractRequest{Data: []byte("x"), MIMEType: "application/pdf"})
	require.NoError(t, err)

	assert.False(t, gjson.GetBytes(*last, "generationConfig.responseSchema.properties.metadata").Exists())
	assert.Equal(t, models.Metadata{}, ext.Metadata)
	assert.Equal(t, models.LanguageUnknown, ext.OriginalLanguage)
}

func TestExtract_AuthError(t *testing.T) {
	c, _ := newTestClient(t, http.StatusBadRequest, `{"error":{"message":"API key not valid."}}`)

	_, err := c.Extract(context.Background(), ingest.ExtractRequest{Data: []byte("x"), MIMEType: "image/png"})
	assert.True(t, apperrors.IsAuth(err))
}

// --- Translate ---

func TestTranslate(t *testing.T) {
	c, last := newTestClient(t, http.StatusOK, answer("Athens, 3 March 1921\n"))

	out, err := c.Translate(context.Background(), "Αθήνα, 3 Μαρτίου 1921", English)
	require.NoError(t, err)
	assert.Equal(t, "Athens, 3 March 1921", out)

	prompt := gjson.GetBytes(*last, "contents.0.parts.0.text").String()
	assert.Contains(t, prompt, "to English")
	assert.Contains(t, prompt, "Αθήνα, 3 Μαρτίου 1921")
	assert.False(t, gjson.GetBytes(*last, "generationConfig").Exists())
}

func TestTranslate_RejectsUnknownTarget(t *testing.T) {
	c, _ := newTestClient(t, http.StatusOK, answer("x"))

	_, err := c.Translate(context.Background(), "x", Language("French"))
	assert.Error(t, err)
}

// --- SuggestTitles ---

func TestSuggestTitles_DropsBlanks(t *testing.T) {
	c, last := newTestClient(t, http.StatusOK, answer(`["Αριθμός Τιμολογίου", " ", " Ημερομηνία "]`))

	titles, err := c.SuggestTitles(context.Background(), "Τιμολόγιο 42")
	require.NoError(t, err)
	assert.Equal(t, []string{"Αριθμός Τιμολογίου", "Ημερομηνία"}, titles)
	assert.Equal(t, "ARRAY", gjson.GetBytes(*last, "generationConfig.responseSchema.type").String())
}

// --- SmartSearch ---

func TestSmartSearch_UsesSearchModelAndTruncates(t *testing.T) {
	var path string
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.Write([]byte(answer(`[{"id":"f1","reason":"Αναφέρει την Αθήνα"}]`)))
	}))
	defer srv.Close()

	c := New("k", testLogger, WithHTTPClient(srv.Client()), WithBaseURL(srv.URL), WithModels("", "search-model"))

	doc := DocumentFor(models.DigitizedFile{ID: "f1", OriginalFilename: "a.png", OCRText: strings.Repeat("α", 1500)})
	assert.Equal(t, 1000, len([]rune(doc.OCRText)))

	matches, err := c.SmartSearch(context.Background(), "Αθήνα", []Document{doc})
	require.NoError(t, err)
	assert.Equal(t, "/v1beta/models/search-model:generateContent", path)
	assert.Equal(t, []Match{{ID: "f1", Reason: "Αναφέρει την Αθήνα"}}, matches)
	assert.Contains(t, gjson.GetBytes(body, "contents.0.parts.0.text").String(), `"filename":"a.png"`)
}

// --- DetectLanguage ---

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"lowercase", `{"language":"γερμανικά"}`, "Γερμανικά"},
		{"uppercase", `{"language":"ΕΛΛΗΝΙΚΆ"}`, "Ελληνικά"},
		{"padded", `{"language":"  αγγλικά "}`, "Αγγλικά"},
		{"missing", `{}`, models.LanguageUnknown},
		{"blank", `{"language":"  "}`, models.LanguageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.StatusOK, answer(tt.answer))

			got, err := c.DetectLanguage(context.Background(), "Guten Tag")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectLanguage_ServiceError(t *testing.T) {
	c, _ := newTestClient(t, http.StatusInternalServerError, `{"error":{"message":"internal"}}`)

	_, err := c.DetectLanguage(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrService)
	assert.False(t, apperrors.IsAuth(err))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "αβ", truncateRunes("αβγ", 2))
	assert.Equal(t, "αβγ", truncateRunes("αβγ", 5))
}
