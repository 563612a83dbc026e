package credential

import (
	"fmt"
	"strings"
)

// AuthenticationError reports a failed credential exchange.
// Use errors.As to detect it; Unwrap exposes the transport, status or
// decoding failure underneath.
type AuthenticationError struct {
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("qwen authentication failed: %v", e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// StatusError is returned (wrapped) when the token endpoint answers with a
// non-success HTTP status.
type StatusError struct {
	StatusCode int
	Body       string
}

// maxErrorBody caps how much of a response body is echoed in error strings.
const maxErrorBody = 512

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	if body == "" {
		return fmt.Sprintf("token endpoint returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("token endpoint returned status %d: %s", e.StatusCode, body)
}
