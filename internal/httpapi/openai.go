package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/mixaill76/cursor-gateway/internal/chatservice"
	"github.com/mixaill76/cursor-gateway/internal/cursorerr"
	"github.com/mixaill76/cursor-gateway/internal/outbound"
)

// openAIMessage is the subset of the OpenAI chat-completions message shape
// this gateway understands, including tool-call round-trips.
type openAIMessage struct {
	Role       string            `json:"role"`
	Content    json.RawMessage   `json:"content"`
	ToolCalls  []openAIToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Tools    []openAITool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream,omitempty"`
	StreamOptions *struct {
		IncludeUsage bool `json:"include_usage"`
	} `json:"stream_options,omitempty"`
}

func (h *Handler) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req openAIChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, chatservice.ProtocolOpenAI, cursorerr.Wrap(cursorerr.ClassBadRequest, http.StatusBadRequest, "InvalidJSON", "invalid JSON body", err))
		return
	}
	r.Body.Close()

	body, err := openAIToRequest(req)
	if err != nil {
		h.writeError(w, chatservice.ProtocolOpenAI, cursorerr.ErrEmptyMessages)
		return
	}

	includeUsage := req.StreamOptions != nil && req.StreamOptions.IncludeUsage
	chatReq := chatservice.ChatRequest{
		Model:        req.Model,
		Body:         body,
		Protocol:     chatservice.ProtocolOpenAI,
		Stream:       req.Stream,
		IncludeUsage: includeUsage,
	}

	h.dispatch(w, r, chatReq)
}

func openAIToRequest(req openAIChatRequest) (outbound.Request, error) {
	if len(req.Messages) == 0 {
		return outbound.Request{}, outbound.ErrEmptyMessages
	}
	out := outbound.Request{Stream: req.Stream}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openAIMessageToMessage(m))
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, outbound.ToolDef{
			Name:           t.Function.Name,
			Description:    t.Function.Description,
			ParametersJSON: string(t.Function.Parameters),
		})
	}
	return out, nil
}

func openAIMessageToMessage(m openAIMessage) outbound.Message {
	msg := outbound.Message{Role: openAIRole(m.Role), Content: contentToText(m.Content)}
	if m.ToolCallID != "" {
		msg.ToolResults = append(msg.ToolResults, outbound.ToolResult{ToolCallID: m.ToolCallID, Content: msg.Content})
	}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, outbound.ToolCallRequest{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return msg
}

func openAIRole(role string) outbound.Role {
	switch role {
	case "system", "developer":
		return outbound.RoleSystem
	case "assistant":
		return outbound.RoleAssistant
	case "tool":
		return outbound.RoleTool
	default:
		return outbound.RoleUser
	}
}

// contentToText flattens OpenAI's string-or-parts content shape into a
// single text blob; image parts are dropped here and surfaced only via
// Message.HasImage (vision handling is the outbound adapter's concern).
func contentToText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString
	}
	var parts []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil {
		text := ""
		for _, p := range parts {
			if p.Type == "text" {
				text += p.Text
			}
		}
		return text
	}
	return ""
}
