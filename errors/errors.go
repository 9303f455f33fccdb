package errors

import (
	stderrors "errors"
	"fmt"
)

// Relay taxonomy. Every failure surfaced to a connection wraps one of these.
var (
	ErrAuth        = fmt.Errorf("authentication failed")
	ErrMembership  = fmt.Errorf("user is not a participant of the room")
	ErrNotJoined   = fmt.Errorf("room has not been joined by this session")
	ErrPersistence = fmt.Errorf("message could not be persisted")
	ErrProtocol    = fmt.Errorf("malformed event payload")
)

var (
	ErrSessionClosed    = fmt.Errorf("session is closed")
	ErrSlowConsumer     = fmt.Errorf("session outbox is full")
	ErrRateLimited      = fmt.Errorf("too many frames")
	ErrRoomNotFound     = fmt.Errorf("room not found")
	ErrInvalidRoom      = fmt.Errorf("invalid room")
	ErrSequenceConflict = fmt.Errorf("sequence does not follow the last persisted one")
	ErrUnavailable      = fmt.Errorf("collaborator unavailable")
)

var (
	ErrInvalidPassword    = fmt.Errorf("password does not meet complexity rules")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
)

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrEmptyWords     = fmt.Errorf("no words have been found")
	ErrInvalidPayload = fmt.Errorf("invalid telemetry payload")
)

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool { return stderrors.As(err, target) }

// Join returns an error that wraps the given errors.
func Join(errs ...error) error { return stderrors.Join(errs...) }
