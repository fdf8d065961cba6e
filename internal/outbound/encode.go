package outbound

import (
	"bytes"
	"compress/gzip"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/mixaill76/cursor-gateway/internal/modelregistry"
)

func gzipBytes(in []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(in); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// gzipBeneficialThreshold is the payload size above which compressing the
// outbound body is worth the CPU cost; small requests are sent plain.
const gzipBeneficialThreshold = 512

// Encoded is the result of building an upstream request body: the bytes
// to send, whether they are gzip-compressed (so the HTTP layer can set
// Content-Encoding), and the generated message id.
type Encoded struct {
	Body      []byte
	Gzipped   bool
	MessageID uuid.UUID
}

// Encode builds the upstream protobuf request payload from a canonical
// Request and the resolved ExtModel, applying the model's vision/tooling/
// pool constraints (spec.md §4.5). It is the single encoding path for
// both client protocols: they converge on the same canonical Request
// before this point (see internal/httpapi's request parsers).
func Encode(req Request, model modelregistry.ExtModel) (Encoded, error) {
	if len(req.Messages) == 0 {
		return Encoded{}, ErrEmptyMessages
	}

	messages := req.Messages
	if model.VisionDisabled {
		messages = stripImages(messages)
	}

	var body []byte
	if req.Environment != nil {
		body = appendEnvironment(body, req.Environment)
	}
	for _, m := range messages {
		body = appendMessage(body, m)
	}

	body = protowire.AppendTag(body, reqFieldModelID, protowire.BytesType)
	body = protowire.AppendString(body, model.ID)
	body = protowire.AppendTag(body, reqFieldMaxTokens, protowire.VarintType)
	body = protowire.AppendVarint(body, uint64(model.MaxTokens))
	body = protowire.AppendTag(body, reqFieldVisionOff, protowire.VarintType)
	body = protowire.AppendVarint(body, boolVarint(model.VisionDisabled))
	body = protowire.AppendTag(body, reqFieldSlowPool, protowire.VarintType)
	body = protowire.AppendVarint(body, boolVarint(model.SlowPool))
	body = protowire.AppendTag(body, reqFieldToolsOn, protowire.VarintType)
	body = protowire.AppendVarint(body, boolVarint(model.ToolsAllowed))

	msgID := uuid.New()
	body = protowire.AppendTag(body, reqFieldMessageID, protowire.BytesType)
	body = protowire.AppendBytes(body, msgID[:])

	if model.ToolsAllowed {
		for _, t := range req.Tools {
			body = appendToolDef(body, t)
		}
	}

	gzipIt := len(body) > gzipBeneficialThreshold
	wire := body
	if gzipIt {
		compressed, err := gzipBytes(body)
		if err != nil {
			return Encoded{}, err
		}
		wire = compressed
	}
	return Encoded{Body: wire, Gzipped: gzipIt, MessageID: msgID}, nil
}

func boolVarint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func stripImages(in []Message) []Message {
	out := make([]Message, 0, len(in))
	for _, m := range in {
		m.HasImage = false
		out = append(out, m)
	}
	return out
}
