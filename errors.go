// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"errors"
	"fmt"
)

// ErrConfigurationNotYetAvailable is returned by reads under the cache
// offline policy before the first configuration fetch has succeeded.
var ErrConfigurationNotYetAvailable = errors.New("flagkit: configuration not yet available")

// Operator engine failure causes. They are wrapped in a
// CheckOperatorError and matched with errors.Is.
var (
	// ErrStringExpected reports a string predicate applied to a
	// non-string attribute.
	ErrStringExpected = errors.New("string attribute expected")
	// ErrAttributeNotANumber reports an ordering predicate applied to a
	// non-numeric attribute.
	ErrAttributeNotANumber = errors.New("entity attribute is not a number")
	// ErrOperatorNotImplemented reports an operator name the engine
	// does not know.
	ErrOperatorNotImplemented = errors.New("operator not implemented")
)

// ErrPushChannelClosed reports that the push channel was closed by the
// server with a close frame, as opposed to failing with a read error.
var ErrPushChannelClosed = errors.New("flagkit: push channel closed")

// NotFoundError reports a lookup miss for a feature, property,
// environment or segment id.
type NotFoundError struct {
	// Kind is one of "feature", "property", "environment", "segment".
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("flagkit: %s %q not found", e.Kind, e.ID)
}

// MissingSegmentsError reports a snapshot-construction integrity
// violation: a feature or property references a segment id that is not
// present in the document's segment list.
type MissingSegmentsError struct {
	// ResourceID is the feature or property whose rules reference the
	// missing segment.
	ResourceID string
}

func (e *MissingSegmentsError) Error() string {
	return fmt.Sprintf("flagkit: %q references segments missing from the configuration", e.ResourceID)
}

// ProtocolError reports an unexpected field shape or value received
// from the server.
type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string { return "flagkit: protocol error: " + e.Msg }

func newProtocolError(format string, a ...interface{}) error {
	return &ProtocolError{Msg: fmt.Sprintf(format, a...)}
}

// MismatchTypeError reports an evaluation requested into a type that is
// incompatible with the feature or property's declared kind.
type MismatchTypeError struct {
	Expected string
	Actual   string
}

func (e *MismatchTypeError) Error() string {
	return fmt.Sprintf("flagkit: type mismatch: expected %s, got %q", e.Expected, e.Actual)
}

// CheckOperatorError reports a failure of a single operator check,
// independent of segment context.
type CheckOperatorError struct {
	Operator string
	Err      error
}

func (e *CheckOperatorError) Error() string {
	return fmt.Sprintf("flagkit: operator %q: %v", e.Operator, e.Err)
}

func (e *CheckOperatorError) Unwrap() error { return e.Err }

// EntityEvaluationError wraps an operator failure with the segment,
// attribute and literal being checked when it occurred. It aborts the
// current evaluation but never the background worker.
type EntityEvaluationError struct {
	SegmentID string
	Attribute string
	Literal   string
	Err       error
}

func (e *EntityEvaluationError) Error() string {
	return fmt.Sprintf("flagkit: evaluating segment %q, attribute %q against %q: %v",
		e.SegmentID, e.Attribute, e.Literal, e.Err)
}

func (e *EntityEvaluationError) Unwrap() error { return e.Err }

// OfflineError is returned by reads performed while the background
// worker is offline and the client was configured with OfflineFail.
type OfflineError struct {
	Reason OfflineReason
}

func (e *OfflineError) Error() string {
	return fmt.Sprintf("flagkit: client is offline: %s", e.Reason)
}

// DefunctError is returned by reads after the background worker
// terminated. Err is nil when the worker was shut down cleanly.
type DefunctError struct {
	Err error
}

func (e *DefunctError) Error() string {
	if e.Err == nil {
		return "flagkit: client is closed"
	}
	return fmt.Sprintf("flagkit: client is defunct: %v", e.Err)
}

func (e *DefunctError) Unwrap() error { return e.Err }

// UnrecoverableError marks a ServerClient failure that depends only on
// static configuration and cannot self-heal, such as a malformed URL.
// The live-configuration worker terminates when it observes one;
// anything else is treated as recoverable.
type UnrecoverableError struct {
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("flagkit: unrecoverable: %v", e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

func isRecoverable(err error) bool {
	var u *UnrecoverableError
	return !errors.As(err, &u)
}
