package domain

import (
	"errors"
	"fmt"
)

// Authentication failures. All three are reported identically on the wire.
var (
	ErrAuthMissing    = errors.New("authorization credential missing")
	ErrAuthInvalid    = errors.New("authorization credential invalid")
	ErrUnknownSubject = errors.New("subject has no local account")
)

// Authorization failures.
var (
	ErrInsufficientRole = errors.New("insufficient role")
	ErrProtectedTarget  = errors.New("target user is protected")
)

var (
	ErrUserNotFound                = errors.New("user not found")
	ErrUserExists                  = errors.New("user already exists")
	ErrInvalidRole                 = errors.New("invalid role")
	ErrInvalidUserID               = errors.New("invalid user id")
	ErrIdentityProviderUnavailable = errors.New("identity provider unavailable")
)

// IsAuthFailure reports whether err is any of the authentication failures.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrAuthMissing) ||
		errors.Is(err, ErrAuthInvalid) ||
		errors.Is(err, ErrUnknownSubject)
}

// UserNotFoundError identifies the id that could not be resolved. It matches
// ErrUserNotFound with errors.Is.
type UserNotFoundError struct {
	ID int64
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("User not found with id: %d", e.ID)
}

func (e *UserNotFoundError) Is(target error) bool {
	return target == ErrUserNotFound
}
