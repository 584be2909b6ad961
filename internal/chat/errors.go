package chat

import "errors"

// Sentinel errors reported back to the originating connection through its
// acknowledgment. All of them are recoverable by the caller; none terminate
// the process or affect other sessions.
var (
	// ErrInvalidInput indicates a missing or empty required field.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUsernameTaken indicates the username is already held by an active
	// member of the target room.
	ErrUsernameTaken = errors.New("username already taken in this room")

	// ErrNotAuthenticated indicates an action before a successful join or
	// after disconnect.
	ErrNotAuthenticated = errors.New("connection is not authenticated")

	// ErrDuplicate indicates the message identifier was already accepted
	// within the dedup window.
	ErrDuplicate = errors.New("duplicate message")

	// ErrInternal indicates an unexpected failure that left chat state
	// unchanged. Nothing in the in-memory engine returns it today; it is
	// reserved for fallible backends such as a persistent history store.
	ErrInternal = errors.New("internal error")
)
