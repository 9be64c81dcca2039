// FILE: logship/src/internal/dispatch/errors.go
package dispatch

import (
	"fmt"
	"net/http"

	"github.com/valyala/fastjson"
)

// DeliveryError describes why a write attempt failed.
type DeliveryError struct {
	// HTTP status, 0 when no response was received
	StatusCode int
	// Canonical status from the error body, e.g. "INVALID_ARGUMENT"
	Status  string
	Message string
	// Permanent errors are never retried
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s delivery failure (status %d %s): %s", kind, e.StatusCode, e.Status, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s delivery failure (status %d)", kind, e.StatusCode)
	default:
		return fmt.Sprintf("%s delivery failure: %v", kind, e.Err)
	}
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// statusError builds the error for a non-2xx reply, reading the
// {"error":{"code","message","status"}} body when present.
func statusError(status int, body []byte) *DeliveryError {
	e := &DeliveryError{
		StatusCode: status,
		Status:     http.StatusText(status),
		Permanent:  !retryableStatus(status),
	}

	var p fastjson.Parser
	if v, err := p.ParseBytes(body); err == nil {
		if apiErr := v.Get("error"); apiErr != nil {
			if s := apiErr.GetStringBytes("status"); len(s) > 0 {
				e.Status = string(s)
			}
			e.Message = string(apiErr.GetStringBytes("message"))
		}
	}
	if e.Message == "" && len(body) > 0 {
		if len(body) > 256 {
			body = body[:256]
		}
		e.Message = string(body)
	}
	return e
}

// retryableStatus reports whether a reply status is worth another attempt.
// 401 and 403 are handled separately by the token refresh path.
func retryableStatus(status int) bool {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return true
	case status >= 500:
		return true
	default:
		return false
	}
}

func authRejected(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}
