// Package apperr defines the error kinds surfaced to HTTP clients and
// their status-code mapping (spec §7). The rule engine and engagement
// engine never construct these — only the room coordinator and the
// HTTP layer do.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	Unauthorized Kind = "UNAUTHORIZED"
	Validation   Kind = "VALIDATION"
	NotFound     Kind = "NOT_FOUND"
	Forbidden    Kind = "FORBIDDEN"
	Conflict     Kind = "CONFLICT"
	Internal     Kind = "INTERNAL"
)

// Error is a typed application error with a stable, user-visible
// message. Internal stack traces are never attached or returned.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// StatusFor maps an error kind to the HTTP status spec §7 assigns it.
func StatusFor(kind Kind) int {
	switch kind {
	case Unauthorized:
		return http.StatusUnauthorized
	case Validation, Conflict:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Forbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// As extracts an *Error from any error, falling back to INTERNAL for
// errors this package did not originate.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Kind: Internal, Message: "internal error", cause: err}
}

var (
	ErrAlreadyRolled       = New(Conflict, "a dice value is already outstanding")
	ErrWinnerCannotRoll    = New(Forbidden, "a finished player cannot roll")
	ErrWinnerCannotMove    = New(Forbidden, "a finished player cannot move")
	ErrNotYourTurn         = New(Forbidden, "it is not your turn")
	ErrInvalidMove         = New(Conflict, "move does not match an offered valid move")
	ErrGameCompleted       = New(Conflict, "the game has already completed")
	ErrMoveTimeNotExpired  = New(Conflict, "the move grace period has not elapsed")
	ErrRoomFull            = New(Conflict, "room is full")
	ErrRoomNotJoinable     = New(Conflict, "room is not joinable")
	ErrNotHost             = New(Forbidden, "only the host may perform this action")
	ErrInvalidTeamColor    = New(Forbidden, "color is not controllable by this seat")
)
