package inbound

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixaill76/cursor-gateway/internal/streamdecoder"
)

func sampleEvents() []streamdecoder.Message {
	return []streamdecoder.Message{
		{Kind: streamdecoder.MsgContent, Text: "hi"},
		{Kind: streamdecoder.MsgContent, Text: " there"},
		{Kind: streamdecoder.MsgToolCall, Tool: streamdecoder.ToolCall{ID: "t1", Name: "f", Input: `{"a":`}},
		{Kind: streamdecoder.MsgToolCall, Tool: streamdecoder.ToolCall{ID: "t1", Name: "f", Input: "1}", IsLast: true}},
		{Kind: streamdecoder.MsgStreamEnd},
	}
}

func dataLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "data: ") {
			out = append(out, line)
		}
	}
	return out
}

func TestOpenAIStreamSequence(t *testing.T) {
	var buf bytes.Buffer
	s := NewOpenAIStream("chatcmpl-test", "gpt-4", 0, false)
	for _, ev := range sampleEvents() {
		require.NoError(t, s.HandleEvent(&buf, NoopFlusher, ev))
	}
	lines := dataLines(buf.String())
	// hi+role, " there", tool-start, args "{"a":", args "1}", finish, [DONE]
	require.Len(t, lines, 7)
	assert.Contains(t, lines[0], `"role":"assistant"`)
	assert.Contains(t, lines[0], `"hi"`)
	assert.Contains(t, lines[2], `"function"`)
	assert.Contains(t, lines[5], `"finish_reason":"tool_calls"`)
	assert.Equal(t, "data: [DONE]", lines[6])
}

func eventTypes(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(line, "event: ") {
			out = append(out, strings.TrimPrefix(line, "event: "))
		}
	}
	return out
}

func TestAnthropicStreamSequence(t *testing.T) {
	var buf bytes.Buffer
	s := NewAnthropicStream("msg_01test", "claude-x")
	require.NoError(t, s.Start(&buf, NoopFlusher))
	for _, ev := range sampleEvents() {
		require.NoError(t, s.HandleEvent(&buf, NoopFlusher, ev))
	}
	types := eventTypes(buf.String())
	want := []string{
		"message_start",
		"content_block_start", "ping",
		"content_block_delta", "content_block_delta",
		"content_block_stop",
		"content_block_start",
		"content_block_delta", "content_block_delta",
		"content_block_stop",
		"message_delta", "message_stop",
	}
	assert.Equal(t, want, types)
}
