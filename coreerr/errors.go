// Package coreerr defines the typed error kinds surfaced by the core, per
// spec.md §7. Each error carries a Kind for errors.As dispatch, a human
// message, and an optional wrapped cause.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

const (
	// KindTimeout marks a Progress deadline exceeded.
	KindTimeout Kind = "timeout"
	// KindAborted marks a Progress aborted by its owner or by timeout.
	KindAborted Kind = "aborted"
	// KindNavigationAborted marks an aborted navigation reported by the runtime adapter.
	KindNavigationAborted Kind = "navigation_aborted"
	// KindParentMissing marks frameAttached for a child whose parent is unknown.
	KindParentMissing Kind = "parent_missing"
	// KindDuplicateFrameID marks frameAttached for an already-known child frame id.
	KindDuplicateFrameID Kind = "duplicate_frame_id"
	// KindNonRetriableEvaluation marks a JS evaluation error that must not be retried.
	KindNonRetriableEvaluation Kind = "non_retriable_evaluation"
	// KindAdapterFailure wraps an opaque runtime-adapter error.
	KindAdapterFailure Kind = "adapter_failure"
)

// Error is the core's uniform externally-surfaced error shape.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Abort marks an error as having originated from Progress cancellation,
	// so callers can distinguish it from a business-logic failure even
	// after it has been wrapped.
	Abort bool

	// DocumentID is set for KindNavigationAborted.
	DocumentID string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsAbort reports whether err (or any error it wraps) was stamped as an
// abort error by a Progress.
func IsAbort(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Abort
	}
	return false
}

// Timeout builds a KindTimeout error.
func Timeout(msg string) *Error {
	return &Error{Kind: KindTimeout, Message: msg, Abort: true}
}

// Aborted builds a KindAborted error wrapping cause.
func Aborted(msg string, cause error) *Error {
	return &Error{Kind: KindAborted, Message: msg, Cause: cause, Abort: true}
}

// NavigationAborted builds a KindNavigationAborted error.
func NavigationAborted(documentID, msg string) *Error {
	return &Error{Kind: KindNavigationAborted, Message: msg, DocumentID: documentID}
}

// ParentMissing builds a KindParentMissing error.
func ParentMissing(parentID, childID int64) *Error {
	return &Error{
		Kind:    KindParentMissing,
		Message: fmt.Sprintf("parent frame %d missing for child %d", parentID, childID),
	}
}

// DuplicateFrameID builds a KindDuplicateFrameID error.
func DuplicateFrameID(frameID int64) *Error {
	return &Error{
		Kind:    KindDuplicateFrameID,
		Message: fmt.Sprintf("frame %d already attached", frameID),
	}
}

// NonRetriableEvaluation builds a KindNonRetriableEvaluation error wrapping cause.
func NonRetriableEvaluation(cause error) *Error {
	return &Error{Kind: KindNonRetriableEvaluation, Message: "non-retriable evaluation error", Cause: cause}
}

// AdapterFailure builds a KindAdapterFailure error wrapping cause.
func AdapterFailure(detail string, cause error) *Error {
	return &Error{Kind: KindAdapterFailure, Message: detail, Cause: cause}
}
