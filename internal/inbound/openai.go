package inbound

import (
	"io"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/mixaill76/cursor-gateway/internal/streamdecoder"
)

type openAIChunk struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Model   string          `json:"model"`
	Choices []openAIChoice  `json:"choices"`
	Usage   *openAIUsageDTO `json:"usage,omitempty"`
}

type openAIChoice struct {
	Index        int          `json:"index"`
	Delta        openAIDelta  `json:"delta"`
	FinishReason *string      `json:"finish_reason"`
}

type openAIDelta struct {
	Role      string                 `json:"role,omitempty"`
	Content   *string                `json:"content,omitempty"`
	ToolCalls []openAIToolCallDelta  `json:"tool_calls,omitempty"`
}

type openAIToolCallDelta struct {
	Index    int                  `json:"index"`
	ID       string               `json:"id,omitempty"`
	Type     string               `json:"type,omitempty"`
	Function openAIFunctionDelta  `json:"function"`
}

type openAIFunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type openAIUsageDTO struct {
	PromptTokens     uint32 `json:"prompt_tokens"`
	CompletionTokens uint32 `json:"completion_tokens"`
	TotalTokens      uint32 `json:"total_tokens"`
}

// OpenAIStream drives the chat.completion.chunk SSE sequence of spec.md
// §4.6.1 / Testable Property 8.
type OpenAIStream struct {
	ID      string
	Model   string
	Created int64

	IncludeUsage bool

	state           StreamState
	lastContentType LastContentType
	toolIndex       int
	sawToolCall     bool
	sawRole         bool
}

// NewOpenAIStream constructs a writer for one request's response.
func NewOpenAIStream(id, model string, created int64, includeUsage bool) *OpenAIStream {
	return &OpenAIStream{ID: id, Model: model, Created: created, IncludeUsage: includeUsage}
}

func (s *OpenAIStream) writeChunk(w io.Writer, f Flusher, c openAIChunk) error {
	c.ID = s.ID
	c.Object = "chat.completion.chunk"
	c.Created = s.Created
	c.Model = s.Model
	b, err := sonic.Marshal(c)
	if err != nil {
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

// HandleEvent translates one decoder Message into zero or more SSE lines.
func (s *OpenAIStream) HandleEvent(w io.Writer, f Flusher, msg streamdecoder.Message) error {
	switch msg.Kind {
	case streamdecoder.MsgContent:
		text := msg.Text
		delta := openAIDelta{Content: &text}
		if !s.sawRole {
			delta.Role = "assistant"
			s.sawRole = true
			text = strings.TrimLeft(text, "\n")
			delta.Content = &text
		}
		s.state = StreamContentBlockActive
		s.lastContentType = LastContentText
		return s.writeChunk(w, f, openAIChunk{Choices: []openAIChoice{{Delta: delta}}})

	case streamdecoder.MsgToolCall:
		s.sawToolCall = true
		var errs []error
		if s.lastContentType != LastContentInputJSON {
			s.toolIndex++
			start := openAIChunk{Choices: []openAIChoice{{Delta: openAIDelta{
				ToolCalls: []openAIToolCallDelta{{
					Index: s.toolIndex - 1,
					ID:    msg.Tool.ID,
					Type:  "function",
					Function: openAIFunctionDelta{
						Name:      msg.Tool.Name,
						Arguments: "",
					},
				}},
			}}}}
			if err := s.writeChunk(w, f, start); err != nil {
				errs = append(errs, err)
			}
			s.lastContentType = LastContentInputJSON
		}
		args := openAIChunk{Choices: []openAIChoice{{Delta: openAIDelta{
			ToolCalls: []openAIToolCallDelta{{
				Index:    s.toolIndex - 1,
				Function: openAIFunctionDelta{Arguments: msg.Tool.Input},
			}},
		}}}}
		if err := s.writeChunk(w, f, args); err != nil {
			errs = append(errs, err)
		}
		if len(errs) > 0 {
			return errs[0]
		}
		return nil

	case streamdecoder.MsgThinking, streamdecoder.MsgWebReference:
		// OpenAI's chat.completion.chunk schema has no room for these;
		// they are surfaced only on the Anthropic and non-stream paths.
		return nil

	case streamdecoder.MsgStreamEnd:
		return s.finish(w, f, nil)
	}
	return nil
}

func (s *OpenAIStream) finish(w io.Writer, f Flusher, usage *Usage) error {
	s.state = StreamCompleted
	reason := "stop"
	if s.sawToolCall {
		reason = "tool_calls"
	}
	final := openAIChunk{Choices: []openAIChoice{{Delta: openAIDelta{}, FinishReason: &reason}}}
	if err := s.writeChunk(w, f, final); err != nil {
		return err
	}
	if s.IncludeUsage && usage != nil {
		u := openAIChunk{Choices: []openAIChoice{}, Usage: &openAIUsageDTO{
			PromptTokens:     usage.InputTokens,
			CompletionTokens: usage.OutputTokens,
			TotalTokens:      usage.InputTokens + usage.OutputTokens,
		}}
		if err := s.writeChunk(w, f, u); err != nil {
			return err
		}
	}
	if _, err := w.Write([]byte("data: [DONE]\n\n")); err != nil {
		return err
	}
	return f.Flush()
}

// Finish allows the orchestrator to supply usage once known (spec.md §4.6
// "optionally flush a usage chunk"), then terminate the stream. Safe to
// call instead of relying on a MsgStreamEnd event carrying usage.
func (s *OpenAIStream) Finish(w io.Writer, f Flusher, usage *Usage) error {
	if s.state == StreamCompleted {
		return nil
	}
	return s.finish(w, f, usage)
}
