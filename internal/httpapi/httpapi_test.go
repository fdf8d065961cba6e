package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/chatservice"
	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
	"github.com/mixaill76/cursor-gateway/internal/cursortoken"
	"github.com/mixaill76/cursor-gateway/internal/modelregistry"
	"github.com/mixaill76/cursor-gateway/internal/tokenmanager"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	models, err := modelregistry.New(modelregistry.DefaultModels(), modelregistry.DefaultAliases())
	require.NoError(t, err)
	return New(&chatservice.Service{}, models, discardLogger())
}

func TestServeHTTPUnknownPathIs404(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/not-a-route", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeHTTPListsModels(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "list", body.Object)
	assert.Len(t, body.Data, len(modelregistry.DefaultModels()))
}

func TestHandleModelsCachesPerAuthorizationHeader(t *testing.T) {
	h := newTestHandler(t)

	first := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	first.Header.Set("Authorization", "Bearer a")
	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, first)

	h.Models.Put(modelregistry.ExtModel{ID: "freshly-added"})

	second := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	second.Header.Set("Authorization", "Bearer a")
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, second)

	assert.Equal(t, rec1.Body.String(), rec2.Body.String(), "same auth header should hit the cache")
}

func TestWriteErrorRendersOpenAIEnvelope(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.writeError(rec, chatservice.ProtocolOpenAI, cursorerr.ErrModelNotSupported)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request_error")
}

func TestWriteErrorRendersAnthropicEnvelope(t *testing.T) {
	h := newTestHandler(t)
	rec := httptest.NewRecorder()
	h.writeError(rec, chatservice.ProtocolAnthropic, cursorerr.ErrUnauthorized)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_error")
}

// An empty messages array is rejected before any auth or upstream call is made.
func TestEmptyMessagesReturns400(t *testing.T) {
	h := newTestHandler(t)
	body := bytes.NewBufferString(`{"model":"gpt-4","messages":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "messages must not be empty")
}

// A model the registry does not know is rejected with ModelNotSupported,
// after authenticating against a known caller token.
func TestUnsupportedModelReturns400(t *testing.T) {
	tokens := tokenmanager.New()
	key := cursortoken.NewRandomKey()
	printable := cursortoken.Printable(key, 9999999999, cursortoken.KindWeb, "sig")
	tok := cursortoken.New(key, 9999999999, cursortoken.KindWeb, printable)
	_, err := tokens.Add(&cursortoken.TokenInfo{
		Ext:     cursortoken.ExtToken{Primary: tok},
		Enabled: true,
	}, "")
	require.NoError(t, err)

	models, err := modelregistry.New(modelregistry.DefaultModels(), modelregistry.DefaultAliases())
	require.NoError(t, err)
	h := New(&chatservice.Service{Tokens: tokens, Models: models}, models, discardLogger())

	body := bytes.NewBufferString(`{"model":"fake","messages":[{"role":"user","content":"hi"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", body)
	req.Header.Set("Authorization", "Bearer "+printable)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ModelNotSupported")
}
