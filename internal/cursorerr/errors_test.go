package cursorerr

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mixaill76/cursor-gateway/internal/streamdecoder"
)

func TestStatusAndClassOfKnownErrors(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Status(ErrEmptyMessages))
	assert.Equal(t, ClassBadRequest, ClassOf(ErrEmptyMessages))

	assert.Equal(t, http.StatusUnauthorized, Status(ErrUnauthorized))
	assert.Equal(t, ClassUnauthorized, ClassOf(ErrUnauthorized))
}

func TestStatusAndClassOfUnknownError(t *testing.T) {
	plain := assert.AnError
	assert.Equal(t, http.StatusInternalServerError, Status(plain))
	assert.Equal(t, ClassInternal, ClassOf(plain))
}

func TestWrapPreservesCauseButHidesItFromMessage(t *testing.T) {
	cause := assert.AnError
	err := Wrap(ClassInternal, http.StatusInternalServerError, "Internal", "internal server error", cause)

	_, body := ToOpenAI(err)
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.NotContains(t, body.Error.Message, cause.Error())
}

func TestToOpenAIRendersCodeAndType(t *testing.T) {
	status, body := ToOpenAI(ErrModelNotSupported)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "ModelNotSupported", body.Error.Code)
	assert.Equal(t, "invalid_request_error", body.Error.Type)
}

func TestToOpenAIGatewayTimeoutIsTimeoutError(t *testing.T) {
	err := GatewayTimeout(assert.AnError)
	status, body := ToOpenAI(err)
	assert.Equal(t, http.StatusGatewayTimeout, status)
	assert.Equal(t, "timeout_error", body.Error.Type)
}

func TestToAnthropicRendersType(t *testing.T) {
	status, body := ToAnthropic(ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "authentication_error", body.Error.Type)
}

func TestToAnthropicUnknownError(t *testing.T) {
	status, body := ToAnthropic(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "api_error", body.Error.Type)
}

func TestFromUpstreamMapsDetailToStatus(t *testing.T) {
	cases := []struct {
		detail string
		status int
	}{
		{"rate_limited", http.StatusTooManyRequests},
		{"auth_failed", http.StatusUnauthorized},
		{"quota_exceeded", http.StatusPaymentRequired},
		{"something_else", http.StatusBadGateway},
	}
	for _, c := range cases {
		ue := &streamdecoder.UpstreamError{Detail: c.detail, Message: "boom"}
		err := FromUpstream(ue)
		assert.Equal(t, c.status, Status(err), c.detail)
		assert.Equal(t, ClassUpstreamFailure, ClassOf(err), c.detail)
	}
}
