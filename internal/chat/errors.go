// Package chat implements the conversation-state and cost-accounting core.
// This file centralizes the error values returned by the room store and the
// session controller so callers can translate them consistently; mapping to
// HTTP status codes happens at the handler layer.
package chat

import "errors"

var (
	// ErrNoSession indicates that no in-memory session exists for the user;
	// the caller must log in first.
	ErrNoSession = errors.New("no active session")

	// ErrEmptyMessage is returned when a submit carries an empty or
	// whitespace-only prompt.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrMessageTooLong is returned when a prompt exceeds the configured
	// maximum rune count.
	ErrMessageTooLong = errors.New("message too long")

	// ErrInvalidRoomName is returned when a room is created with an empty or
	// whitespace-only name.
	ErrInvalidRoomName = errors.New("invalid room name")

	// ErrDuplicateRoom is returned when the owner already has a room with
	// the requested name.
	ErrDuplicateRoom = errors.New("room already exists")

	// ErrRoomNotFound indicates that the requested room does not exist for
	// the current owner. A retried delete also sees this; callers treat it
	// as already satisfied.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRequestInFlight is returned when a submit arrives for a room whose
	// previous completion request has not finished yet.
	ErrRequestInFlight = errors.New("request already in flight")

	// ErrInvalidTemperature is returned when temperature is outside [0, 2].
	ErrInvalidTemperature = errors.New("temperature must be in [0, 2]")

	// ErrInvalidMaxTokens is returned when max_tokens is not positive.
	ErrInvalidMaxTokens = errors.New("max_tokens must be > 0")

	// ErrCompletionFailed wraps backend errors and timeouts from the
	// completion client. The transcript is rolled back to its pre-submit
	// state before this is returned.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrPersistenceFailed wraps durable-write failures during exchange
	// recording. The in-memory room state is left exactly as before the
	// submit; the operation can be retried.
	ErrPersistenceFailed = errors.New("persistence failed")
)
