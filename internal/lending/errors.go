package lending

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a lending failure. Transport layers map kinds to status codes.
type Kind int

const (
	KindStorage Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindTimeout
	KindPartialFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTimeout:
		return "timeout"
	case KindPartialFailure:
		return "partial_failure"
	default:
		return "storage"
	}
}

// Messages returned to callers for common rejections.
const (
	MsgActiveBorrow      = "active borrow exists"
	MsgAssetUnavailable  = "asset unavailable"
	MsgRequestProcessed  = "request not found or already processed"
	MsgAssetNotFound     = "asset not found"
	MsgRequesterNotFound = "requester not found"
)

// ErrRecordNotFound is returned by Store implementations when a row does not exist.
var ErrRecordNotFound = errors.New("record not found")

// Error is a classified lending failure. Message is safe to show to clients;
// Err carries the internal cause and is never exposed.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, and the same message when the target sets one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// ValidationError reports malformed input
func ValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing record
func NotFoundError(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

// ConflictError reports a request that is incompatible with current state
func ConflictError(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// StorageError wraps an unexpected persistence failure
func StorageError(err error) *Error {
	return &Error{Kind: KindStorage, Message: "storage error", Err: err}
}

// TimeoutError wraps a deadline hit while talking to storage
func TimeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Message: "storage timed out", Err: err}
}

// PartialFailureError reports a multi-step operation whose rollback also failed
func PartialFailureError(err error) *Error {
	return &Error{Kind: KindPartialFailure, Message: "operation partially applied and flagged for reconciliation", Err: err}
}

// RollbackError is returned by Store.WithinTx when the unit of work failed
// and undoing it failed too. Committed state may be inconsistent.
type RollbackError struct {
	Err         error
	RollbackErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback failed: %v)", e.Err, e.RollbackErr)
}

func (e *RollbackError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Unclassified errors are storage errors.
func KindOf(err error) Kind {
	var rb *RollbackError
	if errors.As(err, &rb) {
		return KindPartialFailure
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindStorage
}

// PublicMessage returns the client-safe message for err
func PublicMessage(err error) string {
	var rb *RollbackError
	if errors.As(err, &rb) {
		return PartialFailureError(nil).Message
	}
	var le *Error
	if errors.As(err, &le) {
		return le.Message
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError(nil).Message
	}
	return StorageError(nil).Message
}

// classify turns any error from a unit of work into an *Error
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rb *RollbackError
	if errors.As(err, &rb) {
		return PartialFailureError(err)
	}
	var le *Error
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TimeoutError(err)
	}
	return StorageError(err)
}
