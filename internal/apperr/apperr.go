// Package apperr defines the error kinds surfaced by the orchestrator.
//
// Every remote or subprocess failure is converted into one of these kinds at
// its boundary. Callers classify with errors.As / errors.Is; the underlying
// cause is always reachable through Unwrap.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned by remote platform calls rejected for
	// authentication reasons. It triggers the single refresh-and-retry.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when a session or credential does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLocked signals a concurrent mutation is already in flight for an ID.
	ErrLocked = errors.New("locked")
)

// ValidationError rejects a request before any side-effect happens
// (missing video or ingest key, malformed schedule, illegal transition).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return "validation: " + e.Field + ": " + e.Reason
}

// Validation is a shorthand constructor.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// CredentialError covers OAuth exchange/refresh failures, a missing refresh
// token, and a second authentication failure after a refresh.
type CredentialError struct {
	ChannelID string
	Op        string // "exchange", "refresh", "use", "lookup"
	Err       error
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential %s (channel %q): %v", e.Op, e.ChannelID, e.Err)
}

func (e *CredentialError) Unwrap() error { return e.Err }

// ProvisioningError reports a failed remote create/bind step. When Partial is
// set, an ingest resource was created before the failure and its identifiers
// are carried so the caller can resume instead of recreating everything.
type ProvisioningError struct {
	Step    string // "stream", "broadcast", "bind"
	Partial bool

	StreamID    string
	IngestKey   string
	IngestURL   string
	BroadcastID string

	Err error
}

func (e *ProvisioningError) Error() string {
	if e.Partial {
		return fmt.Sprintf("provisioning %s (partial: stream=%q broadcast=%q): %v", e.Step, e.StreamID, e.BroadcastID, e.Err)
	}
	return fmt.Sprintf("provisioning %s: %v", e.Step, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// LaunchReason enumerates why an encoder could not be launched.
type LaunchReason string

const (
	BinaryMissing  LaunchReason = "binaryMissing"
	AlreadyRunning LaunchReason = "alreadyRunning"
	SpawnFailed    LaunchReason = "spawnFailed"
)

// EncoderLaunchError means no encoder process was started.
type EncoderLaunchError struct {
	Reason LaunchReason
	Err    error
}

func (e *EncoderLaunchError) Error() string {
	if e.Err == nil {
		return "encoder launch: " + string(e.Reason)
	}
	return fmt.Sprintf("encoder launch: %s: %v", e.Reason, e.Err)
}

func (e *EncoderLaunchError) Unwrap() error { return e.Err }

// EncoderRuntimeError describes a non-zero exit or unexpected termination.
// It is recorded, never propagated to a caller: the session still completes.
type EncoderRuntimeError struct {
	SessionID string
	ExitCode  int
	Signal    string // empty unless killed by a signal
	Err       error
}

func (e *EncoderRuntimeError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("encoder for session %q terminated by signal %s", e.SessionID, e.Signal)
	}
	return fmt.Sprintf("encoder for session %q exited with code %d", e.SessionID, e.ExitCode)
}

func (e *EncoderRuntimeError) Unwrap() error { return e.Err }

// PersistenceError wraps a durable store failure. It degrades durability but
// never blocks session control.
type PersistenceError struct {
	Collection string // "credentials", "sessions", "logs"
	Op         string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s %s: %v", e.Collection, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence is a shorthand constructor; it returns nil for a nil err.
func Persistence(collection, op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Collection: collection, Op: op, Err: err}
}
