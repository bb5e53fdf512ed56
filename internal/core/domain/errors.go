package domain

import (
	"errors"
	"fmt"
)

// ConfigError means a required credential or config field is missing.
// Terminal until the configuration is corrected; never retried.
type ConfigError struct {
	Module string
	Field  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing required config field %q", e.Module, e.Field)
}

// AuthError means token acquisition failed: bad credentials, or the token
// endpoint was unreachable or returned a non-success status. The two causes
// are indistinguishable to callers and reported identically.
type AuthError struct {
	Module string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Module, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// VendorAPIError means the vendor answered a domain operation with a
// non-success HTTP status. StatusCode lets callers tell rate limiting (429),
// permission (403), not-found (404) and server errors (5xx) apart. No backoff
// or retry happens at this layer.
type VendorAPIError struct {
	Module     string
	StatusCode int
	Message    string
}

func (e *VendorAPIError) Error() string {
	return fmt.Sprintf("%s: vendor returned status %d: %s", e.Module, e.StatusCode, e.Message)
}

// TimeoutError means the outbound call exceeded its bound before any HTTP
// status was received. Distinct from VendorAPIError.
type TimeoutError struct {
	Module string
	Err    error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: vendor call timed out: %v", e.Module, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ValidationError means the inbound request body or parameters were malformed
// before any vendor call was attempted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsNotFound reports whether err is a vendor 404 for a single-record read.
func IsNotFound(err error) bool {
	var apiErr *VendorAPIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
