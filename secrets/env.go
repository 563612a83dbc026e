package secrets

import (
	"context"
	"os"
	"strings"
)

// EnvResolver reads secrets from environment variables.
type EnvResolver struct{}

// Scheme returns "env".
func (r *EnvResolver) Scheme() string {
	return "env"
}

// Resolve returns the value of the variable named after "env://".
// An unset or empty variable is reported as not found.
func (r *EnvResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := strings.TrimPrefix(reference, "env://")
	if name == "" || strings.ContainsAny(name, "/=") {
		return "", &InvalidReferenceError{Reference: reference, Reason: "expected env://VARIABLE_NAME"}
	}

	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return "", &NotFoundError{Reference: reference, Backend: "environment"}
	}
	return val, nil
}
