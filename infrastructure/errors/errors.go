// Package errors provides unified error handling for the warehouse core.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into one of the warehouse core's discriminated
// error categories. Callers that need to branch on failure type should
// type-assert via errors.As into *CoreError and switch on Kind, never parse
// Message.
type Kind string

const (
	KindNotFound             Kind = "not_found"
	KindAlreadyExists        Kind = "already_exists"
	KindInvalidArgument      Kind = "invalid_argument"
	KindInvalidConfiguration Kind = "invalid_configuration"
	KindDenied               Kind = "denied"
	KindUnauthenticated      Kind = "unauthenticated"
	KindConflict             Kind = "conflict"
	KindDeviceUnavailable    Kind = "device_unavailable"
	KindUnrecoverableRead    Kind = "unrecoverable_read"
	KindCorruption           Kind = "corruption"
	KindIntegrityFailure     Kind = "integrity_failure"
	KindWriteFailed          Kind = "write_failed"
	KindCancelled            Kind = "cancelled"
	KindThrottled            Kind = "throttled"
	KindInternal             Kind = "internal"
)

// CoreError is the structured error type returned by every public operation
// in this module. HTTPStatus is carried for the benefit of protocol
// adapters built on top of this core; the core itself never serves HTTP.
type CoreError struct {
	Kind       Kind                   `json:"kind"`
	Message    string                 `json:"message"`
	ResourceID string                 `json:"resource_id,omitempty"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface.
func (e *CoreError) Error() string {
	prefix := fmt.Sprintf("[%s]", e.Kind)
	if e.ResourceID != "" {
		prefix = fmt.Sprintf("%s %s", prefix, e.ResourceID)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s", prefix, e.Message)
}

// Unwrap returns the underlying error.
func (e *CoreError) Unwrap() error {
	return e.Err
}

// WithDetails adds additional structured details to the error.
func (e *CoreError) WithDetails(key string, value interface{}) *CoreError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithResourceID sets the resource this error concerns (manifest ID, device
// ID, session ID, ...).
func (e *CoreError) WithResourceID(id string) *CoreError {
	e.ResourceID = id
	return e
}

// New creates a CoreError of the given kind.
func New(kind Kind, message string, httpStatus int) *CoreError {
	return &CoreError{Kind: kind, Message: message, HTTPStatus: httpStatus}
}

// Wrap wraps an existing error in a CoreError of the given kind.
func Wrap(kind Kind, message string, httpStatus int, err error) *CoreError {
	return &CoreError{Kind: kind, Message: message, HTTPStatus: httpStatus, Err: err}
}

// NotFound reports that a resource (manifest, device, session, snapshot, ...)
// does not exist.
func NotFound(resource, id string) *CoreError {
	return New(KindNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithDetails("resource", resource).
		WithResourceID(id)
}

// AlreadyExists reports a duplicate create (content hash collision with
// differing content, session already bound, device already registered).
func AlreadyExists(resource, id string) *CoreError {
	return New(KindAlreadyExists, fmt.Sprintf("%s already exists", resource), http.StatusConflict).
		WithDetails("resource", resource).
		WithResourceID(id)
}

// InvalidArgument reports a caller-supplied value that fails validation
// (unknown RAID level, malformed path, zero-length chunk size).
func InvalidArgument(field, reason string) *CoreError {
	return New(KindInvalidArgument, "invalid argument", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// InvalidConfiguration reports a structurally invalid component
// configuration discovered at construction time, not call time (too few
// devices for the selected RAID level, a retention policy with zero copies).
func InvalidConfiguration(field, reason string) *CoreError {
	return New(KindInvalidConfiguration, "invalid configuration", http.StatusBadRequest).
		WithDetails("field", field).
		WithDetails("reason", reason)
}

// Denied reports that an authenticated principal's ACL evaluation did not
// grant the permission required for the operation.
func Denied(message string) *CoreError {
	return New(KindDenied, message, http.StatusForbidden)
}

// Unauthenticated reports a missing, expired, or revoked session/API key.
func Unauthenticated(message string) *CoreError {
	return New(KindUnauthenticated, message, http.StatusUnauthorized)
}

// Conflict reports a state conflict that is not a duplicate-create (restore
// path collision without a resolution strategy, concurrent rebuild already
// running on the target device).
func Conflict(message string) *CoreError {
	return New(KindConflict, message, http.StatusConflict)
}

// DeviceUnavailable reports that a storage device is Degraded/Failed and
// cannot service the requested operation without redundancy fallback.
func DeviceUnavailable(deviceID string, err error) *CoreError {
	return Wrap(KindDeviceUnavailable, "storage device unavailable", http.StatusServiceUnavailable, err).
		WithResourceID(deviceID)
}

// UnrecoverableRead reports that a chunk could not be read even after
// redundancy-driven reconstruction was attempted.
func UnrecoverableRead(resource string, err error) *CoreError {
	return Wrap(KindUnrecoverableRead, "unrecoverable read", http.StatusInternalServerError, err).
		WithResourceID(resource)
}

// Corruption reports that stored data failed a structural check (manifest
// deserialization failure, truncated chunk) independent of hash verification.
func Corruption(resource string, err error) *CoreError {
	return Wrap(KindCorruption, "data corruption detected", http.StatusInternalServerError, err).
		WithResourceID(resource)
}

// IntegrityFailure reports that a computed content hash did not match the
// expected hash (manifest hash, snapshot integrity hash).
func IntegrityFailure(resource string, err error) *CoreError {
	return Wrap(KindIntegrityFailure, "integrity verification failed", http.StatusInternalServerError, err).
		WithResourceID(resource)
}

// WriteFailed reports that a write could not be committed to enough devices
// to satisfy the redundancy level's durability guarantee.
func WriteFailed(resource string, err error) *CoreError {
	return Wrap(KindWriteFailed, "write failed", http.StatusInternalServerError, err).
		WithResourceID(resource)
}

// Cancelled reports that the operation's context was cancelled or its
// deadline exceeded before completion.
func Cancelled(operation string) *CoreError {
	return New(KindCancelled, "operation cancelled", 499).
		WithDetails("operation", operation)
}

// Throttled reports that a rate limiter or backpressure admission gate
// rejected the request (auth attempt rate, rebuild queue admission).
func Throttled(operation string) *CoreError {
	return New(KindThrottled, "throttled", http.StatusTooManyRequests).
		WithDetails("operation", operation)
}

// Internal reports an unexpected internal failure with no more specific
// kind. Callers should treat this as a bug report, not an expected outcome.
func Internal(message string, err error) *CoreError {
	return Wrap(KindInternal, message, http.StatusInternalServerError, err)
}

// IsCoreError checks if an error is a CoreError.
func IsCoreError(err error) bool {
	var coreErr *CoreError
	return errors.As(err, &coreErr)
}

// GetCoreError extracts a CoreError from an error chain.
func GetCoreError(err error) *CoreError {
	var coreErr *CoreError
	if errors.As(err, &coreErr) {
		return coreErr
	}
	return nil
}

// Is reports whether err is a CoreError of the given kind. Intended for use
// with errors.Is-style call sites: errors.Is(err, errors.KindNotFound) does
// not work since Kind is not an error; use Is(err, errors.KindNotFound)
// instead.
func Is(err error, kind Kind) bool {
	if ce := GetCoreError(err); ce != nil {
		return ce.Kind == kind
	}
	return false
}

// GetHTTPStatus returns the HTTP status code associated with an error, for
// protocol adapters built on top of this core.
func GetHTTPStatus(err error) int {
	if coreErr := GetCoreError(err); coreErr != nil {
		return coreErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
