package shared

import (
	"github.com/samber/oops"
)

// Domain error codes
const (
	ErrCodeInvalidArgument    = 1001
	ErrCodeStoreDisposed      = 1002
	ErrCodeConcurrencyFailure = 1003
	ErrCodeDuplicateKey       = 1004
	ErrCodeNotFound           = 1005

	// Account service errors (2000-2999)
	ErrCodeInvalidCredentials = 2001
	ErrCodeLockedOut          = 2002
	ErrCodePasswordPolicy     = 2003
	ErrCodeInvalidUserName    = 2004
)

// codeToString converts int error code to string
func codeToString(code int) string {
	switch code {
	case ErrCodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case ErrCodeStoreDisposed:
		return "STORE_DISPOSED"
	case ErrCodeConcurrencyFailure:
		return "CONCURRENCY_FAILURE"
	case ErrCodeDuplicateKey:
		return "DUPLICATE_KEY"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case ErrCodeLockedOut:
		return "LOCKED_OUT"
	case ErrCodePasswordPolicy:
		return "PASSWORD_POLICY"
	case ErrCodeInvalidUserName:
		return "INVALID_USERNAME"
	default:
		return "UNKNOWN_ERROR"
	}
}

// NewDomainError creates a new domain error using oops
func NewDomainError(code int, message string) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Errorf(message)
}

// NewDomainErrorf creates a new domain error with formatted message
func NewDomainErrorf(code int, format string, args ...interface{}) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Errorf(format, args...)
}

// WrapDomainError wraps an existing error with domain context
func WrapDomainError(err error, code int, message string) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Wrapf(err, message)
}

// Common domain error builders

// ErrInvalidArgument reports a nil or missing required input, naming the
// offending parameter.
func ErrInvalidArgument(param string) error {
	return oops.
		Code(codeToString(ErrCodeInvalidArgument)).
		In("domain").
		With("error_code", ErrCodeInvalidArgument).
		With("parameter", param).
		Errorf("required argument %q is nil or missing", param)
}

// ErrStoreDisposed reports an operation attempted after Dispose
func ErrStoreDisposed(store string) error {
	return NewDomainErrorf(ErrCodeStoreDisposed, "%s has been disposed", store)
}

// ErrConcurrencyFailure reports a version mismatch on update or delete.
// The caller's in-memory copy is stale and must be re-fetched.
func ErrConcurrencyFailure(id string) error {
	return NewDomainErrorf(ErrCodeConcurrencyFailure, "document %q was modified or deleted by another caller", id)
}

// ErrDuplicateKey reports an insert collision
func ErrDuplicateKey(detail string) error {
	return NewDomainErrorf(ErrCodeDuplicateKey, "duplicate key: %s", detail)
}

// ErrNotFound reports a missing resource at the service layer.
// Store finders do not use this; they return a nil document instead.
func ErrNotFound(resource string) error {
	return NewDomainErrorf(ErrCodeNotFound, "%s not found", resource)
}

// ErrInvalidCredentials reports a failed credential check
func ErrInvalidCredentials() error {
	return NewDomainError(ErrCodeInvalidCredentials, "invalid username or password")
}

// ErrLockedOut reports an authentication attempt against a locked account
func ErrLockedOut() error {
	return NewDomainError(ErrCodeLockedOut, "account is locked out")
}

// hasCode reports whether err carries the given domain error code
func hasCode(err error, code int) bool {
	if err == nil {
		return false
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return oopsErr.Code() == codeToString(code)
}

// IsInvalidArgument reports whether err is an invalid-argument error
func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrCodeInvalidArgument)
}

// IsStoreDisposed reports whether err is a store-disposed error
func IsStoreDisposed(err error) bool {
	return hasCode(err, ErrCodeStoreDisposed)
}

// IsConcurrencyFailure reports whether err is a concurrency failure
func IsConcurrencyFailure(err error) bool {
	return hasCode(err, ErrCodeConcurrencyFailure)
}

// IsDuplicateKey reports whether err is a duplicate-key error
func IsDuplicateKey(err error) bool {
	return hasCode(err, ErrCodeDuplicateKey)
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsInvalidCredentials reports whether err is an invalid-credentials error
func IsInvalidCredentials(err error) bool {
	return hasCode(err, ErrCodeInvalidCredentials)
}

// IsLockedOut reports whether err is a locked-out error
func IsLockedOut(err error) bool {
	return hasCode(err, ErrCodeLockedOut)
}

// IsPasswordPolicy reports whether err is a password-policy violation
func IsPasswordPolicy(err error) bool {
	return hasCode(err, ErrCodePasswordPolicy)
}

// IsInvalidUserName reports whether err is a username-policy violation
func IsInvalidUserName(err error) bool {
	return hasCode(err, ErrCodeInvalidUserName)
}
