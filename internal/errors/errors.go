// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// StorageKind tells whether a storage failure is store-wide or record-scoped.
type StorageKind string

const (
	StorageUnavailable StorageKind = "unavailable"
	StorageConstraint  StorageKind = "constraint"
)

// StorageError is returned by the credential and customer stores.
type StorageError struct {
	Op   string
	Kind StorageKind
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func NewStorageError(op string, kind StorageKind, err error) error {
	return &StorageError{Op: op, Kind: kind, Err: err}
}

// IsConstraint reports whether err is a record-scoped constraint violation.
func IsConstraint(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == StorageConstraint
}

// AuthError means the identity provider rejected credentials or a refresh token.
type AuthError struct {
	Status int
	Body   string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("identity provider rejected request: status %d: %s", e.Status, e.Body)
}

func NewAuthError(status int, body string) error {
	return &AuthError{Status: status, Body: body}
}

// RemoteSyncError means the customer API rejected one record.
type RemoteSyncError struct {
	Phone  string
	Status int
	Body   string
}

func (e *RemoteSyncError) Error() string {
	return fmt.Sprintf("customer %s rejected: status %d: %s", e.Phone, e.Status, e.Body)
}

func NewRemoteSyncError(phone string, status int, body string) error {
	return &RemoteSyncError{Phone: phone, Status: status, Body: body}
}

// TimeoutError is returned when an outbound call exceeds its bound.
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

func NewTimeoutError(op string, err error) error {
	return &TimeoutError{Op: op, Err: err}
}

// UpstreamError is a non-2xx answer from the identity provider or the customer API.
type UpstreamError struct {
	Op     string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.Status, e.Body)
}

func NewUpstreamError(op string, status int, body string) error {
	return &UpstreamError{Op: op, Status: status, Body: body}
}

// ErrCardholderNotFound is returned by lookups that matched nothing.
type ErrCardholderNotFound struct {
	Key   string
	Value string
}

func (e *ErrCardholderNotFound) Error() string {
	return fmt.Sprintf("cardholder with %s %s not found", e.Key, e.Value)
}

func NewCardholderNotFound(key, value string) error {
	return &ErrCardholderNotFound{Key: key, Value: value}
}

var (
	ErrSyncInProgress   = errors.New("sync already in progress")
	ErrLookupDisabled   = errors.New("core banking database not configured")
	ErrNoStoredToken    = errors.New("no stored token")
	ErrInvalidCandidate = errors.New("invalid candidate")
)

// HTTPStatus maps an internal error to the status the gateway answers with.
// Upstream failures keep the upstream status, everything else is a 500.
func HTTPStatus(err error) int {
	var (
		upstream *UpstreamError
		auth     *AuthError
		remote   *RemoteSyncError
		timeout  *TimeoutError
		notFound *ErrCardholderNotFound
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &auth):
		return upstreamStatus(auth.Status)
	case errors.As(err, &remote):
		return upstreamStatus(remote.Status)
	case errors.As(err, &upstream):
		return upstreamStatus(upstream.Status)
	case errors.As(err, &timeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrLookupDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrInvalidCandidate):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func upstreamStatus(status int) int {
	if status < 400 || status > 599 {
		return http.StatusBadGateway
	}
	return status
}
