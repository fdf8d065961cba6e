package streamdecoder

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// DetailUserAborted is the one error-detail enum value the decoder itself
// special-cases: it is rewritten into a synthetic StreamEnd rather than
// surfaced as an error (spec.md §4.4/§7).
const DetailUserAborted = "UserAbortedRequest"

// UpstreamError is the decoded shape of a kind-1 (JSON) error frame whose
// payload is not the 2-byte stream-end marker.
type UpstreamError struct {
	Detail    string `json:"detail"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("streamdecoder: upstream error %s: %s", e.Detail, e.Message)
}

// IsUserAborted reports whether this envelope is the graceful-abort case.
func (e *UpstreamError) IsUserAborted() bool {
	return e != nil && e.Detail == DetailUserAborted
}

func decodeUpstreamError(payload []byte) (*UpstreamError, error) {
	var e UpstreamError
	if err := sonic.Unmarshal(payload, &e); err != nil {
		return nil, fmt.Errorf("streamdecoder: decode error envelope: %w", err)
	}
	return &e, nil
}
