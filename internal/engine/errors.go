package engine

import "fmt"

// ValidationError reports a missing or malformed caller-supplied field.
// Caller error, not retryable.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// AuthError reports a bad or missing signature, or a rejected admin
// credential.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return e.Reason }

// ConfigError reports a required host-side secret or token that is not
// configured. Operator error, distinct from AuthError.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return e.Reason }

// NotFoundError reports a status lookup for a client that never pinged.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("no record for client %q", e.ID) }
