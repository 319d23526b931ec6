package app

import (
	"errors"
	"fmt"
)

var (
	// ErrServiceUnavailable means no generator is configured.
	ErrServiceUnavailable = errors.New("AI service unavailable")
	// ErrUpstream wraps generator failures.
	ErrUpstream = errors.New("AI connection failed")
	// ErrMalformedModelOutput means structured model output did not parse.
	ErrMalformedModelOutput = errors.New("malformed model output")
	ErrInvalidMode          = errors.New("invalid mode")
	ErrInvalidInput         = errors.New("invalid input")
	ErrForbidden            = errors.New("forbidden")
	// ErrAIDisabled means the card owner has not enabled the requested AI feature.
	ErrAIDisabled = errors.New("AI feature disabled for this card")
	// ErrUploadsUnavailable means no object store is configured.
	ErrUploadsUnavailable = errors.New("uploads unavailable")
)

// LimitReachedMessage is shown to visitors instead of the card balance.
const LimitReachedMessage = "AI service is temporarily limited. (Limit Reached)"

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
