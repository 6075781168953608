package core

import (
	"errors"
	"fmt"

	"github.com/vovakirdan/pairchat/internal/proto"
)

// Session error kinds.
var (
	// ErrUnauthenticated closes the connection without a frame.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrMalformedRequest reports missing or invalid request fields.
	ErrMalformedRequest = errors.New("malformed request")
	// ErrUnknownParticipant reports a path handle with no user behind it.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrUnexpected covers every other failure.
	ErrUnexpected = errors.New("unexpected error")
)

// User-visible error details.
const (
	DetailMissingSlugs   = "Missing or empty slug parameters"
	DetailUnknownUser    = "One of the slug user does not exist"
	DetailNotParticipant = "User is not a participant of this conversation"
	DetailEmptyMessage   = "Message must not be empty"
	DetailMessageTooLong = "Message exceeds 512 characters"
	DetailMissingTyping  = "Missing typing field"
	DetailMalformedFrame = "Malformed frame"
	DetailUnexpected     = "An error occurred."
)

// SessionError terminates a session. Kind is one of the sentinel errors
// above and Detail is what the peer sees.
type SessionError struct {
	Kind   error
	Detail string
	Err    error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Is matches the error kind.
func (e *SessionError) Is(target error) bool {
	return e.Kind == target
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// Frame returns the error frame for the peer, or nil when the connection
// must be closed silently.
func (e *SessionError) Frame() *proto.Error {
	if e.Kind == ErrUnauthenticated {
		return nil
	}
	return &proto.Error{Error: proto.ErrorInvalidRequest, Detail: e.Detail}
}

func malformed(detail string) *SessionError {
	return &SessionError{Kind: ErrMalformedRequest, Detail: detail}
}

func unexpected(err error) *SessionError {
	return &SessionError{Kind: ErrUnexpected, Detail: DetailUnexpected, Err: err}
}

// AsSessionError converts any error into a SessionError, treating unknown
// errors as unexpected.
func AsSessionError(err error) *SessionError {
	var se *SessionError
	if errors.As(err, &se) {
		return se
	}
	return unexpected(err)
}
