package chatservice

import (
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
	"github.com/mixaill76/cursor-gateway/internal/inbound"
)

// writeSSEErrorChunk emits the OpenAI mid-stream error shape: a regular
// `data:` chunk carrying the error envelope, followed by `[DONE]`
// (spec.md §7).
func writeSSEErrorChunk(w http.ResponseWriter, f inbound.Flusher, env any) error {
	body, err := sonic.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\ndata: [DONE]\n\n")); err != nil {
		return err
	}
	return f.Flush()
}

// writeAnthropicErrorEvent emits the Anthropic `error` SSE event.
func writeAnthropicErrorEvent(w http.ResponseWriter, f inbound.Flusher, env any) error {
	body, err := sonic.Marshal(env)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: error\ndata: ")); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return f.Flush()
}

// WriteHeadError writes a pre-headers error response in the caller's
// protocol, per spec.md §7 ("errors before the HTTP response headers are
// committed are translated into a single JSON error body").
func WriteHeadError(w http.ResponseWriter, protocol Protocol, err error) {
	w.Header().Set("Content-Type", "application/json")
	if protocol == ProtocolAnthropic {
		status, env := cursorerr.ToAnthropic(err)
		w.WriteHeader(status)
		body, _ := sonic.Marshal(env)
		_, _ = w.Write(body)
		return
	}
	status, env := cursorerr.ToOpenAI(err)
	w.WriteHeader(status)
	body, _ := sonic.Marshal(env)
	_, _ = w.Write(body)
}
