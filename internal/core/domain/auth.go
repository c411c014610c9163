package domain

import (
	"errors"
	"fmt"
)

// Stage is a step of the request pipeline. A request advances through the
// stages in declaration order or terminates at one of them.
type Stage string

const (
	StageReceived        Stage = "RECEIVED"
	StageAuthenticating  Stage = "AUTHENTICATING"
	StageAuthenticated   Stage = "AUTHENTICATED"
	StageAuthorizing     Stage = "AUTHORIZING"
	StageRoleAuthorized  Stage = "ROLE_AUTHORIZED"
	StageResolvingTarget Stage = "RESOLVING_TARGET"
	StageTargetFound     Stage = "TARGET_FOUND"
	StageBusinessRule    Stage = "BUSINESS_RULE_CHECK"
	StageExecuting       Stage = "EXECUTING"
	StageResponded       Stage = "RESPONDED"
)

// StageError records the stage at which a request terminated.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedAt wraps err with the stage it terminated at. A nil err stays nil and
// an error already carrying a stage keeps the original one.
func FailedAt(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Stage: stage, Err: err}
}

// StageOf returns the stage recorded on err, or StageReceived if none.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return StageReceived
}

// AuthContext is the per-request authentication state. It is never shared
// across requests.
type AuthContext struct {
	Credential string
	SubjectID  string
	Actor      *User
	Failures   []error
}

// Fail records a failure reason and returns it.
func (a *AuthContext) Fail(err error) error {
	a.Failures = append(a.Failures, err)
	return err
}

// Authenticated reports whether an actor was resolved without failures.
func (a *AuthContext) Authenticated() bool {
	return a != nil && a.Actor != nil && len(a.Failures) == 0
}
