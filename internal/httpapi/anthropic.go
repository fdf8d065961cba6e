package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mixaill76/cursor-gateway/internal/chatservice"
	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
	"github.com/mixaill76/cursor-gateway/internal/outbound"
)

type anthropicContentPart struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type anthropicMessagesRequest struct {
	Model     string             `json:"model"`
	System    json.RawMessage    `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Tools     []anthropicTool    `json:"tools,omitempty"`
	Stream    bool               `json:"stream,omitempty"`
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req anthropicMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, chatservice.ProtocolAnthropic, cursorerr.Wrap(cursorerr.ClassBadRequest, http.StatusBadRequest, "InvalidJSON", "invalid JSON body", err))
		return
	}
	r.Body.Close()

	body, err := anthropicToRequest(req)
	if err != nil {
		h.writeError(w, chatservice.ProtocolAnthropic, cursorerr.ErrEmptyMessages)
		return
	}

	chatReq := chatservice.ChatRequest{
		Model:        req.Model,
		Body:         body,
		Protocol:     chatservice.ProtocolAnthropic,
		Stream:       req.Stream,
		IncludeUsage: true,
	}
	h.dispatch(w, r, chatReq)
}

func anthropicToRequest(req anthropicMessagesRequest) (outbound.Request, error) {
	if len(req.Messages) == 0 {
		return outbound.Request{}, outbound.ErrEmptyMessages
	}
	out := outbound.Request{Stream: req.Stream}
	if sysText := anthropicSystemText(req.System); sysText != "" {
		out.Messages = append(out.Messages, outbound.Message{Role: outbound.RoleSystem, Content: sysText})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, anthropicMessageToMessage(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, outbound.ToolDef{
			Name:           t.Name,
			Description:    t.Description,
			ParametersJSON: string(t.InputSchema),
		})
	}
	return out, nil
}

func anthropicSystemText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var parts []anthropicContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return ""
}

func anthropicMessageToMessage(m anthropicMessage) outbound.Message {
	msg := outbound.Message{Role: anthropicRole(m.Role)}

	var asString string
	if err := json.Unmarshal(m.Content, &asString); err == nil {
		msg.Content = asString
		return msg
	}

	var parts []anthropicContentPart
	if err := json.Unmarshal(m.Content, &parts); err != nil {
		return msg
	}
	var text strings.Builder
	for _, p := range parts {
		switch p.Type {
		case "text":
			text.WriteString(p.Text)
		case "image":
			msg.HasImage = true
		case "tool_use":
			msg.ToolCalls = append(msg.ToolCalls, outbound.ToolCallRequest{
				ID: p.ID, Name: p.Name, Args: string(p.Input),
			})
		case "tool_result":
			msg.ToolResults = append(msg.ToolResults, outbound.ToolResult{
				ToolCallID: p.ToolUseID, Content: toolResultText(p.Content),
			})
		}
	}
	msg.Content = text.String()
	return msg
}

func toolResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var parts []anthropicContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var b strings.Builder
		for _, p := range parts {
			if p.Type == "text" {
				b.WriteString(p.Text)
			}
		}
		return b.String()
	}
	return ""
}

func anthropicRole(role string) outbound.Role {
	switch role {
	case "assistant":
		return outbound.RoleAssistant
	default:
		return outbound.RoleUser
	}
}

// handleAnthropicCountTokens estimates a token count for the given message
// set without calling upstream: this gateway has no local tokenizer, so
// the estimate is a coarse whitespace-based word count scaled to the
// rough ratio Cursor's own upstream would report (spec.md §6.1 lists
// count_tokens as advisory only, not billing-accurate).
func (h *Handler) handleAnthropicCountTokens(w http.ResponseWriter, r *http.Request) {
	var req anthropicMessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, chatservice.ProtocolAnthropic, cursorerr.Wrap(cursorerr.ClassBadRequest, http.StatusBadRequest, "InvalidJSON", "invalid JSON body", err))
		return
	}
	r.Body.Close()

	body, err := anthropicToRequest(req)
	if err != nil {
		h.writeError(w, chatservice.ProtocolAnthropic, cursorerr.ErrEmptyMessages)
		return
	}

	count := 0
	for _, m := range body.Messages {
		count += estimateTokens(m.Content)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(struct {
		InputTokens int `json:"input_tokens"`
	}{InputTokens: count})
}

func estimateTokens(text string) int {
	words := strings.Fields(text)
	return len(words) * 4 / 3
}
