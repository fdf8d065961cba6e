package inbound

import (
	"strings"

	"github.com/bytedance/sonic"

	"github.com/mixaill76/cursor-gateway/internal/streamdecoder"
)

// Accumulator collects a full decoder event sequence into one response
// object for non-streaming requests (spec.md §4.6.3).
type Accumulator struct {
	content     strings.Builder
	thinking    strings.Builder
	toolCalls   []accToolCall
	webRefs     []string
	sawToolCall bool
}

type accToolCall struct {
	id    string
	name  string
	input strings.Builder
}

func NewAccumulator() *Accumulator { return &Accumulator{} }

// Feed absorbs one decoder Message.
func (a *Accumulator) Feed(msg streamdecoder.Message) {
	switch msg.Kind {
	case streamdecoder.MsgContent:
		a.content.WriteString(msg.Text)
	case streamdecoder.MsgThinking:
		if msg.ThinkingKind == streamdecoder.ThinkingTextKind {
			a.thinking.WriteString(msg.Text)
		}
	case streamdecoder.MsgWebReference:
		a.webRefs = append(a.webRefs, msg.WebReferences...)
	case streamdecoder.MsgToolCall:
		a.sawToolCall = true
		var tc *accToolCall
		for i := range a.toolCalls {
			if a.toolCalls[i].id == msg.Tool.ID {
				tc = &a.toolCalls[i]
				break
			}
		}
		if tc == nil {
			a.toolCalls = append(a.toolCalls, accToolCall{id: msg.Tool.ID, name: msg.Tool.Name})
			tc = &a.toolCalls[len(a.toolCalls)-1]
		}
		tc.input.WriteString(msg.Tool.Input)
	}
}

// --- OpenAI non-stream shape ---

type openAIResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Model   string             `json:"model"`
	Choices []openAIFullChoice `json:"choices"`
	Usage   *openAIUsageDTO    `json:"usage,omitempty"`
}

type openAIFullChoice struct {
	Index        int                `json:"index"`
	Message      openAIFullMessage  `json:"message"`
	FinishReason string             `json:"finish_reason"`
}

type openAIFullMessage struct {
	Role      string              `json:"role"`
	Content   string              `json:"content"`
	ToolCalls []openAIFullToolCall `json:"tool_calls,omitempty"`
}

type openAIFullToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function openAIFullFunctionCall `json:"function"`
}

type openAIFullFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// BuildOpenAIResponse renders the accumulated events into the OpenAI
// chat.completion JSON body.
func (a *Accumulator) BuildOpenAIResponse(id, model string, created int64, usage *Usage) ([]byte, error) {
	finish := "stop"
	msg := openAIFullMessage{Role: "assistant", Content: a.content.String()}
	if a.sawToolCall {
		finish = "tool_calls"
		for _, tc := range a.toolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openAIFullToolCall{
				ID:   tc.id,
				Type: "function",
				Function: openAIFullFunctionCall{
					Name:      tc.name,
					Arguments: tc.input.String(),
				},
			})
		}
	}
	resp := openAIResponse{
		ID:      id,
		Object:  "chat.completion",
		Created: created,
		Model:   model,
		Choices: []openAIFullChoice{{Index: 0, Message: msg, FinishReason: finish}},
	}
	if usage != nil {
		resp.Usage = &openAIUsageDTO{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.InputTokens + usage.OutputTokens,
		}
	}
	return sonic.Marshal(resp)
}

// --- Anthropic non-stream shape ---

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsageDTO       `json:"usage"`
}

// BuildAnthropicResponse renders the accumulated events into the
// Anthropic messages JSON body. A tool call whose accumulated JSON fails
// to parse is omitted rather than surfaced malformed (spec.md §4.6.3).
func (a *Accumulator) BuildAnthropicResponse(id, model string, usage *Usage) ([]byte, error) {
	var blocks []anthropicContentBlock
	if a.thinking.Len() > 0 {
		blocks = append(blocks, anthropicContentBlock{Type: "thinking", Text: a.thinking.String()})
	}
	if a.content.Len() > 0 {
		blocks = append(blocks, anthropicContentBlock{Type: "text", Text: a.content.String()})
	}
	stopReason := "end_turn"
	for _, tc := range a.toolCalls {
		raw := tc.input.String()
		if !sonic.Valid([]byte(raw)) {
			continue
		}
		blocks = append(blocks, anthropicContentBlock{
			Type:  "tool_use",
			ID:    tc.id,
			Name:  tc.name,
			Input: []byte(raw),
		})
		stopReason = "tool_use"
	}
	resp := anthropicResponse{
		ID:         id,
		Type:       "message",
		Role:       "assistant",
		Model:      model,
		Content:    blocks,
		StopReason: stopReason,
	}
	if usage != nil {
		resp.Usage = anthropicUsageDTO{InputTokens: usage.InputTokens, OutputTokens: usage.OutputTokens}
	}
	return sonic.Marshal(resp)
}
