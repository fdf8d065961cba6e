// Package streamdecoder drives the frame codec and classifies upstream
// protobuf/JSON payloads into the unified StreamMessage alphabet
// (spec.md §4.4).
package streamdecoder

import (
	"strings"
	"time"

	"github.com/mixaill76/cursor-gateway/internal/frame"
)

// ContentDelay records one Content emission's size and the time elapsed
// since the previous Content emission, per spec.md §4.4.
type ContentDelay struct {
	CharCount uint32
	Seconds   float32
}

type toolCallState struct {
	rawArgsLen int
	processed  int
}

// Decoder is the per-request stream decoder. It is not safe for concurrent
// use; each in-flight request owns exactly one.
type Decoder struct {
	buf []byte

	state            State
	emptyStreamCount int

	toolCalls map[string]*toolCallState

	ContentDelays    []ContentDelay
	ThinkingText     strings.Builder
	hasSeenContent   bool
	lastContentAt    time.Time
	haveLastContent  bool

	firstResult      []Message
	firstResultReady bool
	firstResultTaken bool

	// Now is the monotonic clock consulted for inter-chunk timing. Tests
	// inject a deterministic clock; production wires cursorclock.AdjustedNow.
	Now func() time.Time

	// ConvertWebReferenceToContent, when set, folds WebReference messages
	// into a synthetic Content message instead of emitting them verbatim
	// (spec.md §4.4 "optional convert_web_ref_to_content() post-processing").
	ConvertWebReferenceToContent bool
}

// New constructs a fresh decoder. now defaults to time.Now if nil.
func New(now func() time.Time) *Decoder {
	if now == nil {
		now = time.Now
	}
	return &Decoder{
		toolCalls: make(map[string]*toolCallState),
		Now:       now,
		state:     StateFresh,
	}
}

// State returns the decoder's current progression.
func (d *Decoder) State() State { return d.state }

// EmptyStreamCount returns the number of consecutive decode() calls that
// produced nothing because the buffer was still under 5 bytes.
func (d *Decoder) EmptyStreamCount() int { return d.emptyStreamCount }

// TakeFirstResult returns the cached first non-empty batch exactly once;
// subsequent calls return (nil, false). This lets the orchestrator commit
// HTTP response headers, then flush the earliest events atomically.
func (d *Decoder) TakeFirstResult() ([]Message, bool) {
	if d.firstResultTaken || !d.firstResultReady {
		return nil, false
	}
	d.firstResultTaken = true
	return d.firstResult, true
}

// Decode appends data to the internal buffer, extracts as many complete
// frames as are available, and returns the unified events they produced.
// It never fails on a malformed individual frame in a way that aborts the
// whole stream except for a genuine upstream error envelope, which is
// returned as err (UserAbortedRequest is rewritten to StreamEnd instead).
func (d *Decoder) Decode(data []byte) ([]Message, error) {
	if d.state == StateCompleted {
		return nil, nil
	}
	d.buf = append(d.buf, data...)

	frames, consumed, err := frame.Decode(d.buf)
	d.buf = d.buf[consumed:]
	if err == frame.ErrEmptyStream {
		d.emptyStreamCount++
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.emptyStreamCount = 0

	var out []Message
	for _, f := range frames {
		msgs, err := d.processFrame(f)
		if err != nil {
			return out, err
		}
		out = append(out, msgs...)
	}

	if len(out) > 0 {
		d.recordFirstResult(out)
	}
	for _, m := range out {
		if m.Kind == MsgStreamEnd {
			d.state = StateCompleted
		}
	}
	return out, nil
}

func (d *Decoder) recordFirstResult(batch []Message) {
	if d.firstResultTaken || d.firstResultReady {
		return
	}
	d.firstResult = append([]Message(nil), batch...)
	d.firstResultReady = true
}

func (d *Decoder) processFrame(f frame.Frame) ([]Message, error) {
	switch f.Kind {
	case 0: // protobuf
		return d.handleProtobufMessage(f.Payload)
	case 1: // JSON
		return d.handleJSONMessage(f.Payload)
	default:
		// Unknown kind: silently dropped, not a stream failure.
		return nil, nil
	}
}

func (d *Decoder) handleJSONMessage(payload []byte) ([]Message, error) {
	if len(payload) == 2 {
		return []Message{{Kind: MsgStreamEnd}}, nil
	}
	upErr, err := decodeUpstreamError(payload)
	if err != nil {
		// Malformed envelope: drop, do not fail the stream.
		return nil, nil
	}
	if upErr.IsUserAborted() {
		return []Message{{Kind: MsgStreamEnd}}, nil
	}
	return nil, upErr
}

func (d *Decoder) handleProtobufMessage(payload []byte) ([]Message, error) {
	top, err := decodeTopLevel(payload)
	if err != nil {
		// A single corrupt message is dropped rather than failing the
		// whole stream, matching the upstream's tolerance for unknown
		// frame shapes (spec.md §4.3/§4.4 "unknown type" handling).
		return nil, nil
	}

	var out []Message
	if top.ToolCall != nil {
		if m, ok := d.handleToolCall(top.ToolCall); ok {
			out = append(out, m)
		}
	}
	if top.Response != nil {
		out = append(out, d.handleResponse(top.Response)...)
	}
	return out, nil
}

func (d *Decoder) handleResponse(r *unifiedResponse) []Message {
	var out []Message
	switch {
	case r.Text != "":
		out = append(out, d.emitContent(r.Text))
	case r.Thinking != nil:
		m := Message{Kind: MsgThinking}
		switch r.Thinking.Kind {
		case thinkingText:
			m.ThinkingKind = ThinkingTextKind
			m.Text = r.Thinking.Text
			d.ThinkingText.WriteString(r.Thinking.Text)
		case thinkingSignature:
			m.ThinkingKind = ThinkingSignatureKind
			m.Text = r.Thinking.Text
		case thinkingRedacted:
			m.ThinkingKind = ThinkingRedactedKind
		}
		out = append(out, m)
	case len(r.WebCitation) > 0:
		if d.ConvertWebReferenceToContent {
			out = append(out, d.emitContent(strings.Join(r.WebCitation, "\n")))
		} else {
			out = append(out, Message{Kind: MsgWebReference, WebReferences: r.WebCitation})
		}
	}
	return out
}

func (d *Decoder) emitContent(text string) Message {
	now := d.Now()
	var seconds float32
	if d.haveLastContent {
		seconds = float32(now.Sub(d.lastContentAt).Seconds())
	}
	d.lastContentAt = now
	d.haveLastContent = true
	d.hasSeenContent = true
	if d.state == StateFresh {
		d.state = StateHasSeenContent
	}
	d.ContentDelays = append(d.ContentDelays, ContentDelay{
		CharCount: uint32(len([]rune(text))),
		Seconds:   seconds,
	})
	return Message{Kind: MsgContent, Text: text}
}

// HasSeenContent reports whether any Content message has been emitted.
func (d *Decoder) HasSeenContent() bool { return d.hasSeenContent }

func toolID(toolCallID, modelCallID string, hasModelCall bool) string {
	if hasModelCall && modelCallID != "" {
		return toolCallID + ":" + modelCallID
	}
	return toolCallID
}

func toolName(tools []mcpTool) string {
	if len(tools) == 0 {
		return ""
	}
	t := tools[0]
	if t.ServerName == "custom" {
		return t.Name
	}
	return "mcp__" + t.ServerName + "__" + t.Name
}

// hasDeltaBoundary is a conservative heuristic gate against emitting an
// unbalanced JSON prefix mid-token: it requires the still-unemitted tail to
// contain at least one character that can only appear once a key/value
// pair has been fully written (a separating space, newline, or closing
// brace/bracket).
func hasDeltaBoundary(delta string) bool {
	return strings.ContainsAny(delta, " \n\t}]")
}

func (d *Decoder) handleToolCall(tc *clientSideToolV2Call) (Message, bool) {
	st, ok := d.toolCalls[tc.ToolCallID]
	if !ok {
		st = &toolCallState{}
		d.toolCalls[tc.ToolCallID] = st
	}

	var delta string
	var emit bool

	if !tc.IsStreaming {
		delta = tc.RawArgs
		emit = true
	} else {
		switch {
		case len(tc.RawArgs) > st.rawArgsLen:
			candidate := tc.RawArgs[st.rawArgsLen:]
			if tc.IsLastMessage || hasDeltaBoundary(candidate) {
				delta = candidate
				st.rawArgsLen = len(tc.RawArgs)
				emit = true
			}
		case len(tc.RawArgs) == st.rawArgsLen:
			// No growth: nothing to emit this round.
		default:
			// raw_args shrank: log-worthy, but never regress the cursor.
		}
	}

	isLast := tc.IsLastMessage

	if !emit && !isLast {
		return Message{}, false
	}
	if !emit && isLast {
		// Nothing new to send, but the caller still needs the terminal
		// marker; emit an empty-input final chunk.
		delta = ""
	}

	if isLast {
		st.processed++
		st.rawArgsLen = 0
		delete(d.toolCalls, tc.ToolCallID)
	}

	return Message{
		Kind: MsgToolCall,
		Tool: ToolCall{
			ID:     toolID(tc.ToolCallID, tc.ModelCallID, tc.HasModelCall),
			Name:   toolName(tc.Tools),
			Input:  delta,
			IsLast: isLast,
		},
	}, true
}
