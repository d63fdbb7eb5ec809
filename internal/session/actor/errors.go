package actor

import "fmt"

var (
	// ErrSessionNotFound is returned when an operation references a session
	// that was never started.
	ErrSessionNotFound = fmt.Errorf("session not found")
	// ErrInvalidSessionID is returned when a session id cannot name a
	// session database file.
	ErrInvalidSessionID = fmt.Errorf("invalid session id")
	// ErrRunnerTokenMismatch is returned when a runner upgrade presents the
	// wrong token.
	ErrRunnerTokenMismatch = fmt.Errorf("runner token mismatch")
	// ErrQueueFull is returned when a prompt submission would exceed the
	// queue depth bound.
	ErrQueueFull = fmt.Errorf("prompt queue full")
	// ErrActorClosed is returned when a handler races an eviction or wipe.
	// Callers retry by re-acquiring the actor.
	ErrActorClosed = fmt.Errorf("session actor closed")
)
