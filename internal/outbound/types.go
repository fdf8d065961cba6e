// Package outbound implements the request adapter of spec.md §4.5:
// translating OpenAI/Anthropic request DTOs into the upstream protobuf
// request payload.
package outbound

import "errors"

// ErrEmptyMessages is returned when the caller's message list is empty
// (spec.md §4.5/§7 BadRequest taxonomy).
var ErrEmptyMessages = errors.New("outbound: empty messages")

// Role is the adapter's canonical conversation-turn role, mapped from
// either client protocol's role vocabulary.
type Role uint8

const (
	RoleSystem Role = iota
	RoleUser
	RoleAssistant
	RoleTool
)

// ToolCallRequest is a tool call an assistant turn previously emitted and
// that must be preserved verbatim in the outbound history.
type ToolCallRequest struct {
	ID   string
	Name string
	Args string // JSON-encoded arguments
}

// ToolResult attaches a tool's result to the assistant turn that invoked
// it, preserving ordering per spec.md §4.5.
type ToolResult struct {
	ToolCallID string
	Content    string
}

// Message is one inbound conversation turn in the adapter's canonical
// shape, before translation to the upstream wire format.
type Message struct {
	Role        Role
	Content     string
	HasImage    bool
	ToolCalls   []ToolCallRequest
	ToolResults []ToolResult
}

// ToolDef is one tool definition offered to the model.
type ToolDef struct {
	Name           string
	Description    string
	ParametersJSON string
}

// EnvironmentInfo carries the caller-supplied OS/shell/workspace context.
// Encode writes it into its own request field whenever it is set,
// regardless of the selected model; it is not turned into a system turn.
type EnvironmentInfo struct {
	OS        string
	Shell     string
	Workspace string
}

// Request is the canonical intermediate representation both the OpenAI
// and Anthropic HTTP handlers build before calling Encode.
type Request struct {
	Messages    []Message
	Tools       []ToolDef
	Environment *EnvironmentInfo
	Stream      bool
}
