// Package fault defines the tagged error type shared by the preprocessing
// pipeline. Callers classify failures with errors.As instead of matching on
// error strings: validation problems are client faults and never retried,
// infrastructure problems are server faults the queue redelivers.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of a pipeline error.
type Kind string

const (
	KindValidation   Kind = "ValidationError"
	KindStorage      Kind = "StorageError"
	KindSegmentation Kind = "SegmentationError"
	KindDispatch     Kind = "DispatchError"
	KindDuplicate    Kind = "DuplicateError"
	KindInternal     Kind = "InternalError"
)

// Error carries a stable kind, a retryability flag, and which side is at
// fault. Client faults must never be redelivered by the queue.
type Error struct {
	Kind        Kind
	Message     string
	Retryable   bool
	ClientFault bool
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports a client fault that must not be retried.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message, ClientFault: true}
}

// Storage reports a retryable durable-storage failure.
func Storage(message string, err error) *Error {
	return &Error{Kind: KindStorage, Message: message, Retryable: true, Err: err}
}

// Segmentation reports a retryable transcode-tool failure.
func Segmentation(message string, err error) *Error {
	return &Error{Kind: KindSegmentation, Message: message, Retryable: true, Err: err}
}

// Dispatch reports a retryable downstream-queue failure.
func Dispatch(message string, err error) *Error {
	return &Error{Kind: KindDispatch, Message: message, Retryable: true, Err: err}
}

// Duplicate reports a conditional-create rejection. It is informational:
// the asset was already handled, so it is neither a failure nor retryable.
func Duplicate(userID, assetID string) *Error {
	return &Error{
		Kind:    KindDuplicate,
		Message: fmt.Sprintf("record already initialized for %s/%s", userID, assetID),
	}
}

// Internal reports a retryable failure with no more specific kind.
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Retryable: true, Err: err}
}

// KindOf extracts the failure kind, defaulting to KindInternal for
// untagged errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindInternal
}

// Retryable reports whether the queue should redeliver after this error.
// Untagged errors are treated as transient server faults.
func Retryable(err error) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Retryable
	}
	return true
}

// IsDuplicate reports whether the error is a conditional-create rejection.
func IsDuplicate(err error) bool {
	return KindOf(err) == KindDuplicate
}
