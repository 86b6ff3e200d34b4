// Package apperr defines the error kinds surfaced to users.
package apperr

import "errors"

type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation covers bad local input. It never reaches the network.
	KindValidation
	// KindAuth covers invalid credentials and duplicate signups.
	KindAuth
	// KindNetwork covers any failure of the Answer Service call.
	KindNetwork
	// KindQuota is returned when the anonymous demo quota is used up.
	KindQuota
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNetwork:
		return "network"
	case KindQuota:
		return "quota"
	default:
		return "unknown"
	}
}

// Error is a user-facing error. Message is safe to show to the user; Err holds
// the underlying cause for logs.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// UserMessage returns the text to show for err, or fallback when err carries
// no user-facing message.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
