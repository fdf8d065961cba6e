package httpapi

import (
	"net/http"

	"github.com/mixaill76/cursor-gateway/internal/chatservice"
)

// dispatch runs the shared tail of both protocol handlers: set up SSE
// headers when streaming, call into the orchestrator, and translate a
// returned error (or non-stream body) into the caller's wire shape.
func (h *Handler) dispatch(w http.ResponseWriter, r *http.Request, req chatservice.ChatRequest) {
	if req.Stream {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
	}

	result, err := h.Service.Run(r.Context(), r, req, w, http.NewResponseController(w))
	if err != nil {
		h.writeError(w, req.Protocol, err)
		return
	}
	if req.Stream {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Body)
}
