// Package inbound implements the response adapter of spec.md §4.6:
// translating the stream decoder's unified events into OpenAI SSE,
// Anthropic SSE, or a single non-stream JSON body, without buffering more
// than one pending block's worth of state.
package inbound

// StreamState tracks whether any content block has been opened yet.
type StreamState uint8

const (
	StreamNotStarted StreamState = iota
	StreamContentBlockActive
	StreamCompleted
)

// LastContentType tracks which kind of content the most recent emission
// belonged to, so a protocol switch (e.g. text → tool call) can close the
// previous block and open a new one.
type LastContentType uint8

const (
	LastContentNone LastContentType = iota
	LastContentThinking
	LastContentText
	LastContentInputJSON
)

// Usage is the accounting summary attached to a stream's terminal event,
// carried in OpenAI's usage chunk and Anthropic's message_delta.usage.
type Usage struct {
	InputTokens  uint32
	OutputTokens uint32
}

// Flusher is implemented by response writers that support incremental
// flush-per-chunk delivery; httpapi wires the real *http.ResponseController,
// tests can pass a no-op.
type Flusher interface {
	Flush() error
}

type noopFlusher struct{}

func (noopFlusher) Flush() error { return nil }

// NoopFlusher is a Flusher that does nothing, for tests and non-stream paths.
var NoopFlusher Flusher = noopFlusher{}
