package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the request-rejection taxonomy. Messages that reach the
// operator verbatim keep the upstream wording so existing frontends keep
// working.
var (
	// ErrInvalidInput covers malformed or missing request fields. It never
	// touches storage.
	ErrInvalidInput = errors.New("invalid input")
	// ErrReadOnly rejects any mutating operation while the service is in
	// read-only mode. Checked before any storage access.
	ErrReadOnly = errors.New("checkplotserver is in readonly mode. no updates allowed.")
	// ErrUnknownIdentifier marks an identifier that was never registered in
	// the manifest. The manifest is the authority, not the directory listing.
	ErrUnknownIdentifier = errors.New("This checkplot doesn't exist.")
	// ErrMalformedBundle rejects a periodogram bundle before it can merge.
	ErrMalformedBundle = errors.New("malformed periodogram bundle")
	// ErrInsufficientPeaks signals a period search that cannot produce the
	// required three ranked folds.
	ErrInsufficientPeaks = errors.New("insufficient periodogram peaks")
	// ErrTimeout resolves a worker future whose task exceeded its bound.
	ErrTimeout = errors.New("worker task timed out")
	// ErrBackendFailure wraps codec, renderer, and unexpected worker errors.
	ErrBackendFailure = errors.New("backend failure")
)

// WithMessage returns an error whose text is exactly msg while keeping cause
// in the unwrap chain for status mapping. Used where the frontend matches on
// a verbatim wire message that the sentinel's own text does not carry.
func WithMessage(cause error, msg string) error {
	return wireError{msg: msg, cause: cause}
}

type wireError struct {
	msg   string
	cause error
}

func (e wireError) Error() string { return e.msg }
func (e wireError) Unwrap() error { return e.cause }

// NotFoundError reports a manifest member whose record file is absent on
// storage, distinct from ErrUnknownIdentifier so callers can react
// differently.
type NotFoundError struct {
	Path string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("couldn't find checkplot %s", e.Path)
}

// InvalidParameterError reports a tool parameter outside its method-declared
// domain. Raised before worker dispatch so bad requests never consume a pool
// slot.
type InvalidParameterError struct {
	Name   string
	Reason string
}

func (e InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Name, e.Reason)
}

// StatusCode maps an error from the taxonomy to its HTTP-analogue numeric
// status. Unknown errors are treated as backend failures.
func StatusCode(err error) int {
	var notFound NotFoundError
	var invalidParam InvalidParameterError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrReadOnly):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownIdentifier):
		return http.StatusNotFound
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrMalformedBundle),
		errors.Is(err, ErrInsufficientPeaks),
		errors.As(err, &invalidParam):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
