package inbound

import (
	"encoding/json"
	"io"

	"github.com/bytedance/sonic"

	"github.com/mixaill76/cursor-gateway/internal/streamdecoder"
)

type anthropicEvent struct {
	Type         string                  `json:"type"`
	Message      *anthropicMessageStub   `json:"message,omitempty"`
	Index        *int                    `json:"index,omitempty"`
	ContentBlock *anthropicContentBlock  `json:"content_block,omitempty"`
	Delta        *anthropicDelta         `json:"delta,omitempty"`
	Usage        *anthropicUsageDTO      `json:"usage,omitempty"`
}

type anthropicMessageStub struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	Role         string                 `json:"role"`
	Model        string                 `json:"model"`
	Content      []anthropicContentBlock `json:"content"`
	StopReason   *string                `json:"stop_reason"`
	Usage        anthropicUsageDTO      `json:"usage"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type anthropicDelta struct {
	Type        string  `json:"type,omitempty"`
	Text        string  `json:"text,omitempty"`
	PartialJSON string  `json:"partial_json,omitempty"`
	StopReason  *string `json:"stop_reason,omitempty"`
}

type anthropicUsageDTO struct {
	InputTokens  uint32 `json:"input_tokens"`
	OutputTokens uint32 `json:"output_tokens"`
}

// AnthropicStream drives the message_start/.../message_stop event sequence
// of spec.md §4.6.2 / Testable Property 9.
type AnthropicStream struct {
	ID    string
	Model string

	index           int
	blockOpen       bool
	lastContentType LastContentType
	sawToolCall     bool
	state           StreamState
	pingSent        bool

	currentToolInput []byte // accumulates partial_json for the active tool block
}

func NewAnthropicStream(id, model string) *AnthropicStream {
	return &AnthropicStream{ID: id, Model: model}
}

func (s *AnthropicStream) writeEvent(w io.Writer, f Flusher, ev anthropicEvent) error {
	b, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + ev.Type + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return err
	}
	return f.Flush()
}

// Start emits the message_start event. Per spec.md Testable Property 9,
// "ping" is emitted after the first content_block_start, not immediately
// after message_start.
func (s *AnthropicStream) Start(w io.Writer, f Flusher) error {
	return s.writeEvent(w, f, anthropicEvent{
		Type: "message_start",
		Message: &anthropicMessageStub{
			ID:      s.ID,
			Type:    "message",
			Role:    "assistant",
			Model:   s.Model,
			Content: []anthropicContentBlock{},
		},
	})
}

func (s *AnthropicStream) closeBlock(w io.Writer, f Flusher) error {
	if !s.blockOpen {
		return nil
	}
	idx := s.index
	s.blockOpen = false
	return s.writeEvent(w, f, anthropicEvent{Type: "content_block_stop", Index: &idx})
}

func (s *AnthropicStream) openBlock(w io.Writer, f Flusher, block anthropicContentBlock) error {
	if s.lastContentType != LastContentNone {
		s.index++
	}
	idx := s.index
	s.blockOpen = true
	if err := s.writeEvent(w, f, anthropicEvent{Type: "content_block_start", Index: &idx, ContentBlock: &block}); err != nil {
		return err
	}
	if !s.pingSent {
		s.pingSent = true
		return s.writeEvent(w, f, anthropicEvent{Type: "ping"})
	}
	return nil
}

// HandleEvent translates one decoder Message into the Anthropic event
// sequence, closing/opening blocks on a content-kind switch.
func (s *AnthropicStream) HandleEvent(w io.Writer, f Flusher, msg streamdecoder.Message) error {
	switch msg.Kind {
	case streamdecoder.MsgThinking:
		if s.lastContentType != LastContentThinking {
			if err := s.closeBlock(w, f); err != nil {
				return err
			}
			if err := s.openBlock(w, f, anthropicContentBlock{Type: "thinking"}); err != nil {
				return err
			}
			s.lastContentType = LastContentThinking
		}
		idx := s.index
		return s.writeEvent(w, f, anthropicEvent{
			Type:  "content_block_delta",
			Index: &idx,
			Delta: &anthropicDelta{Type: "thinking_delta", Text: msg.Text},
		})

	case streamdecoder.MsgContent:
		if s.lastContentType != LastContentText {
			if err := s.closeBlock(w, f); err != nil {
				return err
			}
			if err := s.openBlock(w, f, anthropicContentBlock{Type: "text"}); err != nil {
				return err
			}
			s.lastContentType = LastContentText
		}
		idx := s.index
		return s.writeEvent(w, f, anthropicEvent{
			Type:  "content_block_delta",
			Index: &idx,
			Delta: &anthropicDelta{Type: "text_delta", Text: msg.Text},
		})

	case streamdecoder.MsgToolCall:
		s.sawToolCall = true
		if s.lastContentType != LastContentInputJSON {
			if err := s.closeBlock(w, f); err != nil {
				return err
			}
			if err := s.openBlock(w, f, anthropicContentBlock{Type: "tool_use", ID: msg.Tool.ID, Name: msg.Tool.Name}); err != nil {
				return err
			}
			s.lastContentType = LastContentInputJSON
			s.currentToolInput = s.currentToolInput[:0]
		}
		s.currentToolInput = append(s.currentToolInput, msg.Tool.Input...)
		idx := s.index
		return s.writeEvent(w, f, anthropicEvent{
			Type:  "content_block_delta",
			Index: &idx,
			Delta: &anthropicDelta{Type: "input_json_delta", PartialJSON: msg.Tool.Input},
		})

	case streamdecoder.MsgWebReference:
		return nil

	case streamdecoder.MsgStreamEnd:
		return s.Finish(w, f, nil)
	}
	return nil
}

// Finish closes any open block and emits message_delta + message_stop.
func (s *AnthropicStream) Finish(w io.Writer, f Flusher, usage *Usage) error {
	if s.state == StreamCompleted {
		return nil
	}
	s.state = StreamCompleted
	if err := s.closeBlock(w, f); err != nil {
		return err
	}
	reason := "end_turn"
	if s.sawToolCall {
		reason = "tool_use"
	}
	u := anthropicUsageDTO{}
	if usage != nil {
		u.InputTokens = usage.InputTokens
		u.OutputTokens = usage.OutputTokens
	}
	if err := s.writeEvent(w, f, anthropicEvent{
		Type:  "message_delta",
		Delta: &anthropicDelta{StopReason: &reason},
		Usage: &u,
	}); err != nil {
		return err
	}
	return s.writeEvent(w, f, anthropicEvent{Type: "message_stop"})
}
