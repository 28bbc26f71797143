// Package apierr defines the error taxonomy shared by the rebuild control
// plane: validation, not-found, conflict, provider, and infrastructure
// errors. Handlers map these to HTTP status codes; the seed runner uses the
// provider/infrastructure split to decide whether a failure stays contained
// to one unit or aborts the whole operation.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports bad caller input (blank or duplicate name,
// out-of-range numeric field, malformed payload).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError with fmt-style formatting.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports an unknown resource id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError for the given resource and id.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConflictError reports an operation that is illegal in the current state,
// e.g. deleting the active config or seeding a cohort that is already
// in flight.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflict builds a ConflictError with fmt-style formatting.
func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// ProviderError reports a failure of the external football data provider:
// timeout, non-2xx response, malformed payload, or rate-limit exhaustion.
// Provider errors are recorded on the affected cohort and never abort a
// batch past the unit boundary.
type ProviderError struct {
	Msg         string
	RateLimited bool
	Timeout     bool
}

func (e *ProviderError) Error() string { return e.Msg }

// Provider builds a ProviderError with fmt-style formatting.
func Provider(format string, args ...any) error {
	return &ProviderError{Msg: fmt.Sprintf(format, args...)}
}

// RateLimited builds a ProviderError flagged as rate-limit exhaustion.
func RateLimited(format string, args ...any) error {
	return &ProviderError{Msg: fmt.Sprintf(format, args...), RateLimited: true}
}

// InfrastructureError reports that the datastore or another internal
// dependency is unavailable. It aborts the enclosing operation since no
// higher-level catch is safe to proceed past it.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

// Infrastructure wraps err as an InfrastructureError for the given operation.
func Infrastructure(op string, err error) error {
	return &InfrastructureError{Op: op, Err: err}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsProvider reports whether err is a ProviderError.
func IsProvider(err error) bool {
	var p *ProviderError
	return errors.As(err, &p)
}

// StatusCode maps an error to the HTTP status handlers should return.
// Provider errors surface as 502 on the rare endpoints that propagate them.
func StatusCode(err error) int {
	var (
		v  *ValidationError
		nf *NotFoundError
		c  *ConflictError
		p  *ProviderError
	)
	switch {
	case errors.As(err, &v):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	case errors.As(err, &c):
		return http.StatusConflict
	case errors.As(err, &p):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
