// Package apierr defines the error taxonomy shared by the repository, the
// REST server and the REST client, and its mapping to HTTP status codes.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Reason is a stable, transport-independent failure cause
type Reason string

const (
	ReasonUnknown       Reason = ""
	ReasonNotFound      Reason = "NotFound"
	ReasonConflict      Reason = "Conflict"
	ReasonAlreadyExists Reason = "AlreadyExists"
	ReasonReadOnly      Reason = "ReadOnly"
	ReasonInvalid       Reason = "Invalid"
	ReasonInternal      Reason = "InternalError"
)

var (
	// ErrNotFound means a test, run or property does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict means the supplied version is stale
	ErrConflict = errors.New("version conflict: the data was changed by someone else, please reload and retry")
	// ErrAlreadyExists means a test or run with that name exists
	ErrAlreadyExists = errors.New("already exists")
	// ErrReadOnly means the run has been scheduled or started and can no longer be edited
	ErrReadOnly = errors.New("read only")
	// ErrInvalid means the request carried an illegal name or value
	ErrInvalid = errors.New("invalid")
)

// ReasonOf classifies err
func ReasonOf(err error) Reason {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Reason
	}
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrConflict):
		return ReasonConflict
	case errors.Is(err, ErrAlreadyExists):
		return ReasonAlreadyExists
	case errors.Is(err, ErrReadOnly):
		return ReasonReadOnly
	case errors.Is(err, ErrInvalid):
		return ReasonInvalid
	}
	return ReasonInternal
}

// StatusCode returns the HTTP status the server answers err with
func StatusCode(err error) int {
	switch ReasonOf(err) {
	case ReasonUnknown:
		return http.StatusOK
	case ReasonNotFound:
		return http.StatusNotFound
	case ReasonConflict, ReasonAlreadyExists, ReasonReadOnly:
		return http.StatusConflict
	case ReasonInvalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// StatusError is an error decoded from an HTTP response
type StatusError struct {
	Code   int
	Reason Reason
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("[%d %s]", e.Code, e.Reason)
	}
	return fmt.Sprintf("[%d %s] %s", e.Code, e.Reason, e.Detail)
}

// Unwrap lets errors.Is match the sentinel for the reason
func (e *StatusError) Unwrap() error {
	switch e.Reason {
	case ReasonNotFound:
		return ErrNotFound
	case ReasonConflict:
		return ErrConflict
	case ReasonAlreadyExists:
		return ErrAlreadyExists
	case ReasonReadOnly:
		return ErrReadOnly
	case ReasonInvalid:
		return ErrInvalid
	}
	return nil
}

// FromStatus rebuilds an error from a response. The server may send its own
// reason; otherwise it is inferred from the code. A 409 answering a POST
// means the resource already exists.
func FromStatus(code int, method string, reason Reason, detail string) *StatusError {
	if reason == ReasonUnknown {
		switch code {
		case http.StatusNotFound:
			reason = ReasonNotFound
		case http.StatusConflict:
			if method == http.MethodPost {
				reason = ReasonAlreadyExists
			} else {
				reason = ReasonConflict
			}
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			reason = ReasonInvalid
		default:
			if code >= 500 {
				reason = ReasonInternal
			}
		}
	}
	return &StatusError{Code: code, Reason: reason, Detail: detail}
}
