// FILE: logship/src/internal/auth/errors.go
package auth

import "fmt"

// ErrorKind classifies token acquisition failures.
type ErrorKind int

const (
	// KindSignature means the assertion could not be signed. The key is
	// corrupt or unsupported and retrying cannot help.
	KindSignature ErrorKind = iota + 1
	// KindExchange covers network failures and non-2xx token endpoint replies.
	KindExchange
	// KindResponse means the token endpoint replied 2xx with an unusable body.
	KindResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindSignature:
		return "signature"
	case KindExchange:
		return "exchange"
	case KindResponse:
		return "response"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Error is returned by Signer for any token failure.
type Error struct {
	Kind ErrorKind
	// HTTP status of the token endpoint, 0 when no response was received
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("auth %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("auth %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later attempt may succeed.
func (e *Error) Retryable() bool {
	return e.Kind != KindSignature
}
