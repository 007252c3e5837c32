//go:build windows
// +build windows

package cloudfiles

import "errors"

// Sentinel errors surfaced by the placeholder engine, dispatcher, and fetch
// pipeline. Callers classify with errors.Is; wrapped HRESULT errors carry the
// underlying decodeHRESULT() string for logging.
var (
	ErrNotACloudFile      = errors.New("path is not a cloud placeholder")
	ErrNotInSync          = errors.New("placeholder is not in the in-sync state")
	ErrInUse              = errors.New("path is in use by another process")
	ErrAccessDenied       = errors.New("access denied by the filesystem")
	ErrNetworkUnavailable = errors.New("remote object store unavailable")
	ErrCancelled          = errors.New("operation cancelled")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrUnsuccessful       = errors.New("operation did not complete successfully")
)

// ErrorCategory classifies a cloudfiles error for retry/backoff decisions.
type ErrorCategory string

const (
	ErrorCategoryTransient ErrorCategory = "transient"
	ErrorCategoryPermanent ErrorCategory = "permanent"
	ErrorCategoryCancelled ErrorCategory = "cancelled"
	ErrorCategoryUnknown   ErrorCategory = "unknown"
)

// ClassifyError categorizes a cloudfiles error and reports whether retrying
// the operation that produced it is worthwhile.
func ClassifyError(err error) (ErrorCategory, bool) {
	if err == nil {
		return ErrorCategoryUnknown, false
	}

	switch {
	case errors.Is(err, ErrCancelled):
		return ErrorCategoryCancelled, false
	case errors.Is(err, ErrAccessDenied), errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotACloudFile):
		return ErrorCategoryPermanent, false
	case errors.Is(err, ErrInUse), errors.Is(err, ErrNetworkUnavailable), errors.Is(err, ErrUnsuccessful), errors.Is(err, ErrNotInSync):
		return ErrorCategoryTransient, true
	}

	var hErr *HRESULTError
	if errors.As(err, &hErr) {
		return classifyHRESULT(hErr.Code)
	}

	return ErrorCategoryUnknown, false
}

// classifyHRESULT maps the HRESULT taxonomy onto the sentinel categories.
// ERROR_ALREADY_EXISTS is permanent; the sharing-violation, E_PENDING and
// in-use codes below are transient; every other code is reported as unknown
// and not retryable.
func classifyHRESULT(code uint32) (ErrorCategory, bool) {
	switch code {
	case uint32(HRESULT_FROM_WIN32_ERROR_ALREADY_EXISTS):
		return ErrorCategoryPermanent, false
	case 0x80070020, // ERROR_SHARING_VIOLATION
		0x8000000A, // E_PENDING
		0x800704C8: // ERROR_CLOUD_FILE_IN_USE (cfapi-specific)
		return ErrorCategoryTransient, true
	default:
		return ErrorCategoryUnknown, false
	}
}
