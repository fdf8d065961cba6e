// Package cursorerr defines the caller-visible error taxonomy (spec.md §7)
// and the canonical renderers that translate it into the OpenAI and
// Anthropic error envelope shapes.
package cursorerr

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mixaill76/cursor-gateway/internal/streamdecoder"
)

// Class is the caller-visible error category.
type Class int

const (
	ClassBadRequest Class = iota
	ClassUnauthorized
	ClassUpstreamFailure
	ClassInternal
)

type gatewayError struct {
	class   Class
	status  int
	code    string
	message string
	cause   error
}

func (e *gatewayError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *gatewayError) Unwrap() error { return e.cause }

// New builds a gateway error of the given class carrying a caller-facing
// message and a stable code string (e.g. "EmptyMessages", "ModelNotSupported").
func New(class Class, status int, code, message string) error {
	return errors.WithStack(&gatewayError{class: class, status: status, code: code, message: message})
}

// Wrap attaches an internal cause to a gateway error without leaking its
// text to the caller; the cause is preserved for logging via errors.Cause.
func Wrap(class Class, status int, code, message string, cause error) error {
	return errors.WithStack(&gatewayError{class: class, status: status, code: code, message: message, cause: cause})
}

var (
	ErrEmptyMessages     = New(ClassBadRequest, http.StatusBadRequest, "EmptyMessages", "messages must not be empty")
	ErrModelNotSupported = New(ClassBadRequest, http.StatusBadRequest, "ModelNotSupported", "requested model is not supported")
	ErrUnauthorized      = New(ClassUnauthorized, http.StatusUnauthorized, "Unauthorized", "missing or invalid credentials")
	ErrNoAvailableTokens = New(ClassUnauthorized, http.StatusUnauthorized, "NoAvailableTokens", "no healthy token available")
	ErrAliasNotFound     = New(ClassUnauthorized, http.StatusUnauthorized, "AliasNotFound", "token alias not found")
	ErrInternal          = New(ClassInternal, http.StatusInternalServerError, "Internal", "internal server error")
)

// GatewayTimeout wraps a transport-level timeout as an UpstreamFailure.
func GatewayTimeout(cause error) error {
	return Wrap(ClassUpstreamFailure, http.StatusGatewayTimeout, "GatewayTimeout", "upstream request timed out", cause)
}

// UpstreamTransport wraps a non-timeout transport error as an UpstreamFailure.
func UpstreamTransport(cause error) error {
	return Wrap(ClassUpstreamFailure, http.StatusInternalServerError, "UpstreamTransport", "upstream transport error", cause)
}

// FromUpstream renders a decoded kind-1 error envelope into the taxonomy,
// choosing a status via the envelope's detail string; anything unrecognized
// falls back to 502 (spec.md §7: "status code taken from the envelope's
// canonical mapping, else 502").
func FromUpstream(ue *streamdecoder.UpstreamError) error {
	status := http.StatusBadGateway
	switch {
	case strings.Contains(strings.ToLower(ue.Detail), "rate"):
		status = http.StatusTooManyRequests
	case strings.Contains(strings.ToLower(ue.Detail), "auth"):
		status = http.StatusUnauthorized
	case strings.Contains(strings.ToLower(ue.Detail), "quota"):
		status = http.StatusPaymentRequired
	}
	return Wrap(ClassUpstreamFailure, status, ue.Detail, ue.Message, ue)
}

// as extracts the *gatewayError from err, if any, by walking Unwrap.
func as(err error) (*gatewayError, bool) {
	var ge *gatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Status returns the HTTP status code a caller should see for err.
func Status(err error) int {
	if ge, ok := as(err); ok {
		return ge.status
	}
	return http.StatusInternalServerError
}

// ClassOf returns the taxonomy class for err, defaulting to Internal.
func ClassOf(err error) Class {
	if ge, ok := as(err); ok {
		return ge.class
	}
	return ClassInternal
}

// openAIEnvelope is the `{error: {message, type, code}}` shape.
type openAIEnvelope struct {
	Error openAIError `json:"error"`
}

type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// ToOpenAI renders err into the OpenAI-compatible error body and the
// status code the caller should see.
func ToOpenAI(err error) (int, openAIEnvelope) {
	ge, ok := as(err)
	if !ok {
		return http.StatusInternalServerError, openAIEnvelope{Error: openAIError{
			Message: "internal server error", Type: "server_error", Code: "Internal",
		}}
	}
	return ge.status, openAIEnvelope{Error: openAIError{
		Message: ge.message,
		Type:    openAITypeFor(ge.class, ge.status),
		Code:    ge.code,
	}}
}

func openAITypeFor(class Class, status int) string {
	switch class {
	case ClassBadRequest:
		return "invalid_request_error"
	case ClassUnauthorized:
		return "authentication_error"
	case ClassUpstreamFailure:
		if status == http.StatusGatewayTimeout {
			return "timeout_error"
		}
		return "api_error"
	default:
		return "server_error"
	}
}

// anthropicEnvelope is the `{error: {type, message}}` shape.
type anthropicEnvelope struct {
	Error anthropicError `json:"error"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ToAnthropic renders err into the Anthropic-compatible error body and
// the status code the caller should see.
func ToAnthropic(err error) (int, anthropicEnvelope) {
	ge, ok := as(err)
	if !ok {
		return http.StatusInternalServerError, anthropicEnvelope{Error: anthropicError{
			Type: "api_error", Message: "internal server error",
		}}
	}
	return ge.status, anthropicEnvelope{Error: anthropicError{
		Type:    anthropicTypeFor(ge.class),
		Message: ge.message,
	}}
}

func anthropicTypeFor(class Class) string {
	switch class {
	case ClassBadRequest:
		return "invalid_request_error"
	case ClassUnauthorized:
		return "authentication_error"
	case ClassUpstreamFailure:
		return "api_error"
	default:
		return "api_error"
	}
}
