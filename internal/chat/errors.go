package chat

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRateLimited     = errors.New("chat: rate limited")
	ErrPaymentRequired = errors.New("chat: payment required")
	ErrUpstream        = errors.New("chat: upstream failure")
	ErrEmptyCompletion = errors.New("chat: empty completion")
	ErrInvalidRequest  = errors.New("chat: invalid request")
)

// UpstreamError classifies a language model gateway failure. Kind is one of the sentinel errors above.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Message    string
	Cause      error
}

func (upstreamError *UpstreamError) Error() string {
	parts := []string{upstreamError.Kind.Error()}
	if upstreamError.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", upstreamError.StatusCode))
	}
	if upstreamError.Message != "" {
		parts = append(parts, upstreamError.Message)
	}
	return strings.Join(parts, " ")
}

// Unwrap exposes both the classification and the transport cause to errors.Is and errors.As.
func (upstreamError *UpstreamError) Unwrap() []error {
	if upstreamError.Cause == nil {
		return []error{upstreamError.Kind}
	}
	return []error{upstreamError.Kind, upstreamError.Cause}
}

func newUpstreamError(statusCode int, message string, cause error) *UpstreamError {
	kind := ErrUpstream
	switch statusCode {
	case 429:
		kind = ErrRateLimited
	case 402:
		kind = ErrPaymentRequired
	}
	return &UpstreamError{Kind: kind, StatusCode: statusCode, Message: strings.TrimSpace(message), Cause: cause}
}
