package outbound

import "google.golang.org/protobuf/encoding/protowire"

// Mirrors the request-side field numbers of the upstream's private
// StreamUnifiedChatRequestWithTools protobuf message (see
// internal/streamdecoder/wire.go for the equivalent note on the response
// side — these are hand-maintained, not generated).
const (
	reqFieldMessages    = 1
	reqFieldModelID     = 2
	reqFieldMaxTokens   = 3
	reqFieldVisionOff   = 4
	reqFieldSlowPool    = 5
	reqFieldToolsOn     = 6
	reqFieldMessageID   = 7
	reqFieldTools       = 8
	reqFieldEnvironment = 9

	msgFieldRole        = 1
	msgFieldContent     = 2
	msgFieldToolCalls   = 3
	msgFieldToolResults = 4

	toolCallFieldID   = 1
	toolCallFieldName = 2
	toolCallFieldArgs = 3

	toolResultFieldCallID  = 1
	toolResultFieldContent = 2

	toolDefFieldName       = 1
	toolDefFieldDesc       = 2
	toolDefFieldParamsJSON = 3

	envFieldOS        = 1
	envFieldShell     = 2
	envFieldWorkspace = 3
)

func appendMessage(b []byte, m Message) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, msgFieldRole, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(m.Role))
	if m.Content != "" {
		inner = protowire.AppendTag(inner, msgFieldContent, protowire.BytesType)
		inner = protowire.AppendString(inner, m.Content)
	}
	for _, tc := range m.ToolCalls {
		var tcb []byte
		tcb = protowire.AppendTag(tcb, toolCallFieldID, protowire.BytesType)
		tcb = protowire.AppendString(tcb, tc.ID)
		tcb = protowire.AppendTag(tcb, toolCallFieldName, protowire.BytesType)
		tcb = protowire.AppendString(tcb, tc.Name)
		tcb = protowire.AppendTag(tcb, toolCallFieldArgs, protowire.BytesType)
		tcb = protowire.AppendString(tcb, tc.Args)
		inner = protowire.AppendTag(inner, msgFieldToolCalls, protowire.BytesType)
		inner = protowire.AppendBytes(inner, tcb)
	}
	for _, tr := range m.ToolResults {
		var trb []byte
		trb = protowire.AppendTag(trb, toolResultFieldCallID, protowire.BytesType)
		trb = protowire.AppendString(trb, tr.ToolCallID)
		trb = protowire.AppendTag(trb, toolResultFieldContent, protowire.BytesType)
		trb = protowire.AppendString(trb, tr.Content)
		inner = protowire.AppendTag(inner, msgFieldToolResults, protowire.BytesType)
		inner = protowire.AppendBytes(inner, trb)
	}

	b = protowire.AppendTag(b, reqFieldMessages, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendToolDef(b []byte, t ToolDef) []byte {
	var inner []byte
	inner = protowire.AppendTag(inner, toolDefFieldName, protowire.BytesType)
	inner = protowire.AppendString(inner, t.Name)
	if t.Description != "" {
		inner = protowire.AppendTag(inner, toolDefFieldDesc, protowire.BytesType)
		inner = protowire.AppendString(inner, t.Description)
	}
	if t.ParametersJSON != "" {
		inner = protowire.AppendTag(inner, toolDefFieldParamsJSON, protowire.BytesType)
		inner = protowire.AppendString(inner, t.ParametersJSON)
	}
	b = protowire.AppendTag(b, reqFieldTools, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}

func appendEnvironment(b []byte, e *EnvironmentInfo) []byte {
	if e == nil {
		return b
	}
	var inner []byte
	if e.OS != "" {
		inner = protowire.AppendTag(inner, envFieldOS, protowire.BytesType)
		inner = protowire.AppendString(inner, e.OS)
	}
	if e.Shell != "" {
		inner = protowire.AppendTag(inner, envFieldShell, protowire.BytesType)
		inner = protowire.AppendString(inner, e.Shell)
	}
	if e.Workspace != "" {
		inner = protowire.AppendTag(inner, envFieldWorkspace, protowire.BytesType)
		inner = protowire.AppendString(inner, e.Workspace)
	}
	b = protowire.AppendTag(b, reqFieldEnvironment, protowire.BytesType)
	return protowire.AppendBytes(b, inner)
}
