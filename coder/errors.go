package coder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// AnalysisError reports a failed AnalyzeCode call.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("code analysis failed: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// GenerationError reports a failed GenerateCode call.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("code generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// RefactorError reports a failed RefactorCode call.
type RefactorError struct {
	Err error
}

func (e *RefactorError) Error() string {
	return fmt.Sprintf("code refactoring failed: %v", e.Err)
}

func (e *RefactorError) Unwrap() error { return e.Err }

// APIError is a non-success HTTP response from an operation endpoint.
type APIError struct {
	StatusCode int
	Body       string
}

const maxErrorBody = 512

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	if body == "" {
		return fmt.Sprintf("API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, body)
}

// IsTimeout reports whether err was caused by the request timeout or a
// context deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
