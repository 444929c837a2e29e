package core

import (
	"errors"
	"fmt"
)

// ErrorKind separates errors by how a caller is expected to react to them
type ErrorKind int

const (
	// KindRuntime errors are expected to happen and may be retried by the caller
	KindRuntime ErrorKind = iota
	// KindInvalidInput errors require the caller to change what it asks for
	KindInvalidInput
	// KindPermanentFailure errors signal a contract violation between client and backend
	KindPermanentFailure
)

func (k ErrorKind) String() string {
	switch k {
	case KindRuntime:
		return "RuntimeError"
	case KindInvalidInput:
		return "InvalidInput"
	case KindPermanentFailure:
		return "PermanentFailure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// ErrorCode classifies runtime errors
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeAuthServiceError
	CodeAccessExpired
	CodeNetworkError
	CodeRemoteServiceUnavailable
	CodeGenericError
	CodeCorruptData
	CodeObjectNotFound
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "None"
	case CodeAuthServiceError:
		return "AuthServiceError"
	case CodeAccessExpired:
		return "AccessExpired"
	case CodeNetworkError:
		return "NetworkError"
	case CodeRemoteServiceUnavailable:
		return "RemoteServiceUnavailable"
	case CodeGenericError:
		return "GenericError"
	case CodeCorruptData:
		return "CorruptData"
	case CodeObjectNotFound:
		return "ObjectNotFound"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Error is the classified error returned by every walletauth operation
type Error struct {
	Kind ErrorKind
	Code ErrorCode // Only set for KindRuntime
	Msg  string
	Err  error // Optional cause
}

func (e *Error) Error() string {
	var head string
	if e.Kind == KindRuntime {
		head = fmt.Sprintf("%s(%s)", e.Kind, e.Code)
	} else {
		head = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", head, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", head, e.Msg)
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on kind and code so the sentinels below work with errors.Is
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

var (
	// ErrAuthService matches runtime AuthServiceError errors
	ErrAuthService = &Error{Kind: KindRuntime, Code: CodeAuthServiceError}

	// ErrAccessExpired matches runtime AccessExpired errors
	ErrAccessExpired = &Error{Kind: KindRuntime, Code: CodeAccessExpired}

	// ErrNetwork matches runtime NetworkError errors
	ErrNetwork = &Error{Kind: KindRuntime, Code: CodeNetworkError}

	// ErrRemoteServiceUnavailable matches runtime RemoteServiceUnavailable errors
	ErrRemoteServiceUnavailable = &Error{Kind: KindRuntime, Code: CodeRemoteServiceUnavailable}

	// ErrGeneric matches runtime GenericError errors
	ErrGeneric = &Error{Kind: KindRuntime, Code: CodeGenericError}

	// ErrCorruptData matches runtime CorruptData errors
	ErrCorruptData = &Error{Kind: KindRuntime, Code: CodeCorruptData}

	// ErrObjectNotFound matches runtime ObjectNotFound errors
	ErrObjectNotFound = &Error{Kind: KindRuntime, Code: CodeObjectNotFound}

	// ErrInvalidInput matches every InvalidInput error
	ErrInvalidInput = &Error{Kind: KindInvalidInput}

	// ErrPermanentFailure matches every PermanentFailure error
	ErrPermanentFailure = &Error{Kind: KindPermanentFailure}
)

// RuntimeError creates a runtime error with the given code
func RuntimeError(code ErrorCode, msg string) *Error {
	return &Error{Kind: KindRuntime, Code: code, Msg: msg}
}

// WrapRuntimeError creates a runtime error with the given code and cause
func WrapRuntimeError(err error, code ErrorCode, msg string) *Error {
	return &Error{Kind: KindRuntime, Code: code, Msg: msg, Err: err}
}

// InvalidInput creates an invalid input error
func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

// WrapInvalidInput creates an invalid input error with a cause
func WrapInvalidInput(err error, msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg, Err: err}
}

// PermanentFailure creates a permanent failure
func PermanentFailure(msg string) *Error {
	return &Error{Kind: KindPermanentFailure, Msg: msg}
}

// WrapPermanentFailure creates a permanent failure with a cause
func WrapPermanentFailure(err error, msg string) *Error {
	return &Error{Kind: KindPermanentFailure, Msg: msg, Err: err}
}

// CodeOf returns the runtime code carried by err, or CodeNone
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindRuntime {
		return e.Code
	}
	return CodeNone
}

// KindOf returns the kind of err. Errors not created by this package count as runtime errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindRuntime
}

// Label returns a short low-cardinality name for err, used for logs and metrics
func Label(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "unclassified"
	}
	if e.Kind == KindRuntime {
		return e.Code.String()
	}
	return e.Kind.String()
}
