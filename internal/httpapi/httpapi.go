// Package httpapi is the inbound HTTP surface: the OpenAI-compatible and
// Anthropic-compatible chat-completions endpoints, the token-count
// endpoint, and the cached models listing. Routing is a plain exact-path
// switch rather than a third-party router.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mixaill76/cursor-gateway/internal/chatservice"
	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
	"github.com/mixaill76/cursor-gateway/internal/modelregistry"
)

// Handler serves the public gateway surface.
type Handler struct {
	Service *chatservice.Service
	Models  *modelregistry.Registry
	Logger  *slog.Logger
}

func New(svc *chatservice.Service, models *modelregistry.Registry, logger *slog.Logger) *Handler {
	return &Handler{Service: svc, Models: models, Logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/chat/completions" && r.Method == http.MethodPost:
		h.handleChatCompletions(w, r)
	case r.URL.Path == "/v1/messages" && r.Method == http.MethodPost:
		h.handleMessages(w, r)
	case r.URL.Path == "/v1/messages/count_tokens" && r.Method == http.MethodPost:
		h.handleAnthropicCountTokens(w, r)
	case r.URL.Path == "/v1/models" && r.Method == http.MethodGet:
		h.handleModels(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	cacheKey := r.Header.Get("Authorization")
	models := h.Models.List(cacheKey)

	type modelEntry struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		OwnedBy string `json:"owned_by"`
	}
	out := struct {
		Object string       `json:"object"`
		Data   []modelEntry `json:"data"`
	}{Object: "list"}
	for _, m := range models {
		out.Data = append(out.Data, modelEntry{ID: m.ID, Object: "model", OwnedBy: "cursor"})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(out)
}

func (h *Handler) writeError(w http.ResponseWriter, protocol chatservice.Protocol, err error) {
	if protocol == chatservice.ProtocolAnthropic {
		status, env := cursorerr.ToAnthropic(err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(env)
		return
	}
	status, env := cursorerr.ToOpenAI(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
