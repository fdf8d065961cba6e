package streamdecoder

// ThinkingKind distinguishes the three forms a Thinking stream message can
// take (spec.md §3 StreamMessage alphabet).
type ThinkingKind uint8

const (
	ThinkingTextKind ThinkingKind = iota
	ThinkingSignatureKind
	ThinkingRedactedKind
)

// MessageKind tags which variant of StreamMessage a given value holds.
type MessageKind uint8

const (
	MsgWebReference MessageKind = iota
	MsgThinking
	MsgContent
	MsgToolCall
	MsgStreamEnd
)

// ToolCall is one emission of a streaming or non-streaming tool-call
// delta, per the reassembly algorithm in spec.md §4.4.
type ToolCall struct {
	ID     string
	Name   string
	Input  string // the delta chunk for this emission (never the cumulative total)
	IsLast bool
}

// Message is one element of the decoder's output alphabet.
type Message struct {
	Kind MessageKind

	WebReferences []string     // MsgWebReference
	ThinkingKind  ThinkingKind // MsgThinking
	Text          string       // MsgThinking (Text/Signature payload) or MsgContent
	Tool          ToolCall     // MsgToolCall
}

// State is the decoder's per-stream progression. Transitions are forward
// only; Completed is terminal.
type State uint8

const (
	StateFresh State = iota
	StateHasSeenContent
	StateCompleted
)
