package streamdecoder

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// The upstream's StreamUnifiedChatResponseWithTools protobuf message is
// private and undocumented; there is no .proto to generate stubs from (and
// this module never invokes protoc). These field numbers were recovered by
// inspecting the wire bytes of a live stream and are hand-decoded with
// protowire rather than codegen — the same approach any client of an
// undocumented private wire protocol has to take.
const (
	fieldResponseText        = 1 // StreamUnifiedChatResponseWithTools.response
	fieldResponseToolCall    = 2 // StreamUnifiedChatResponseWithTools.tool_call

	fieldRespText            = 1 // StreamUnifiedChatResponse.text
	fieldRespThinking        = 2 // StreamUnifiedChatResponse.thinking
	fieldRespWebCitation     = 3 // StreamUnifiedChatResponse.web_citation

	fieldThinkingText        = 1
	fieldThinkingSignature   = 2
	fieldThinkingRedacted    = 3

	fieldWebCitationRefs     = 1

	fieldToolCallID          = 1
	fieldToolModelCallID     = 2
	fieldToolRawArgs         = 3
	fieldToolIsStreaming     = 4
	fieldToolIsLastMessage   = 5
	fieldToolParams          = 6

	fieldMcpParamsTools      = 1
	fieldMcpToolServerName   = 1
	fieldMcpToolName         = 2
)

// topLevel is the decoded shape of StreamUnifiedChatResponseWithTools: at
// most one of Response/ToolCall is populated per message, mirroring the
// upstream's oneof-by-convention framing.
type topLevel struct {
	Response *unifiedResponse
	ToolCall *clientSideToolV2Call
}

type unifiedResponse struct {
	Text        string
	Thinking    *thinking
	WebCitation []string
}

type thinkingKind uint8

const (
	thinkingText thinkingKind = iota
	thinkingSignature
	thinkingRedacted
)

type thinking struct {
	Kind thinkingKind
	Text string // carries the Text or Signature payload; empty for Redacted
}

type mcpTool struct {
	ServerName string
	Name       string
}

type clientSideToolV2Call struct {
	ToolCallID    string
	ModelCallID   string
	HasModelCall  bool
	RawArgs       string
	IsStreaming   bool
	IsLastMessage bool
	Tools         []mcpTool
}

func decodeTopLevel(b []byte) (*topLevel, error) {
	out := &topLevel{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("streamdecoder: bad tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldResponseText:
			msg, adv, err := consumeEmbedded(b, typ)
			if err != nil {
				return nil, err
			}
			resp, err := decodeUnifiedResponse(msg)
			if err != nil {
				return nil, err
			}
			out.Response = resp
			b = b[adv:]
		case fieldResponseToolCall:
			msg, adv, err := consumeEmbedded(b, typ)
			if err != nil {
				return nil, err
			}
			tc, err := decodeToolCall(msg)
			if err != nil {
				return nil, err
			}
			out.ToolCall = tc
			b = b[adv:]
		default:
			adv, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[adv:]
		}
	}
	return out, nil
}

func decodeUnifiedResponse(b []byte) (*unifiedResponse, error) {
	out := &unifiedResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("streamdecoder: bad tag in response: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldRespText:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			out.Text = s
			b = b[adv:]
		case fieldRespThinking:
			msg, adv, err := consumeEmbedded(b, typ)
			if err != nil {
				return nil, err
			}
			th, err := decodeThinking(msg)
			if err != nil {
				return nil, err
			}
			out.Thinking = th
			b = b[adv:]
		case fieldRespWebCitation:
			msg, adv, err := consumeEmbedded(b, typ)
			if err != nil {
				return nil, err
			}
			refs, err := decodeWebCitation(msg)
			if err != nil {
				return nil, err
			}
			out.WebCitation = refs
			b = b[adv:]
		default:
			adv, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[adv:]
		}
	}
	return out, nil
}

func decodeThinking(b []byte) (*thinking, error) {
	out := &thinking{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("streamdecoder: bad tag in thinking: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldThinkingText:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			out.Kind = thinkingText
			out.Text = s
			b = b[adv:]
		case fieldThinkingSignature:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			out.Kind = thinkingSignature
			out.Text = s
			b = b[adv:]
		case fieldThinkingRedacted:
			_, adv, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			out.Kind = thinkingRedacted
			b = b[adv:]
		default:
			adv, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[adv:]
		}
	}
	return out, nil
}

func decodeWebCitation(b []byte) ([]string, error) {
	var refs []string
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("streamdecoder: bad tag in web_citation: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldWebCitationRefs:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			refs = append(refs, s)
			b = b[adv:]
		default:
			adv, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[adv:]
		}
	}
	return refs, nil
}

func decodeToolCall(b []byte) (*clientSideToolV2Call, error) {
	out := &clientSideToolV2Call{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("streamdecoder: bad tag in tool_call: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldToolCallID:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			out.ToolCallID = s
			b = b[adv:]
		case fieldToolModelCallID:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			out.ModelCallID = s
			out.HasModelCall = true
			b = b[adv:]
		case fieldToolRawArgs:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return nil, err
			}
			out.RawArgs = s
			b = b[adv:]
		case fieldToolIsStreaming:
			v, adv, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			out.IsStreaming = v != 0
			b = b[adv:]
		case fieldToolIsLastMessage:
			v, adv, err := consumeVarint(b, typ)
			if err != nil {
				return nil, err
			}
			out.IsLastMessage = v != 0
			b = b[adv:]
		case fieldToolParams:
			msg, adv, err := consumeEmbedded(b, typ)
			if err != nil {
				return nil, err
			}
			tools, err := decodeMcpParams(msg)
			if err != nil {
				return nil, err
			}
			out.Tools = tools
			b = b[adv:]
		default:
			adv, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[adv:]
		}
	}
	return out, nil
}

func decodeMcpParams(b []byte) ([]mcpTool, error) {
	var tools []mcpTool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("streamdecoder: bad tag in mcp params: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldMcpParamsTools:
			msg, adv, err := consumeEmbedded(b, typ)
			if err != nil {
				return nil, err
			}
			tool, err := decodeMcpTool(msg)
			if err != nil {
				return nil, err
			}
			tools = append(tools, tool)
			b = b[adv:]
		default:
			adv, err := skipField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[adv:]
		}
	}
	return tools, nil
}

func decodeMcpTool(b []byte) (mcpTool, error) {
	var out mcpTool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return out, fmt.Errorf("streamdecoder: bad tag in mcp tool: %w", protowire.ParseError(n))
		}
		b = b[n:]
		switch num {
		case fieldMcpToolServerName:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return out, err
			}
			out.ServerName = s
			b = b[adv:]
		case fieldMcpToolName:
			s, adv, err := consumeString(b, typ)
			if err != nil {
				return out, err
			}
			out.Name = s
			b = b[adv:]
		default:
			adv, err := skipField(b, typ)
			if err != nil {
				return out, err
			}
			b = b[adv:]
		}
	}
	return out, nil
}

func consumeEmbedded(b []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("streamdecoder: expected embedded message, got wire type %d", typ)
	}
	msg, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, fmt.Errorf("streamdecoder: %w", protowire.ParseError(n))
	}
	return msg, n, nil
}

func consumeString(b []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("streamdecoder: expected string, got wire type %d", typ)
	}
	s, n := protowire.ConsumeString(b)
	if n < 0 {
		return "", 0, fmt.Errorf("streamdecoder: %w", protowire.ParseError(n))
	}
	return s, n, nil
}

func consumeVarint(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("streamdecoder: expected varint, got wire type %d", typ)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, fmt.Errorf("streamdecoder: %w", protowire.ParseError(n))
	}
	return v, n, nil
}

func skipField(b []byte, typ protowire.Type) (int, error) {
	n := protowire.ConsumeFieldValue(0, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("streamdecoder: %w", protowire.ParseError(n))
	}
	return n, nil
}
