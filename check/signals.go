package check

import (
	"errors"
	"fmt"
)

// Control signals a check returns instead of (or wrapped around) a plain
// error. The scheduler boundary translates them into outcomes; they never
// propagate further.

// ErrIgnoreResult drops the current iteration. The check stays scheduled.
var ErrIgnoreResult = errors.New("ignore result")

// ErrIgnoreCheck disables the pair until a restart or config change.
var ErrIgnoreCheck = errors.New("ignore check")

// CheckError is an explicit check failure with a severity.
type CheckError struct {
	Message  string
	Severity Severity
}

func (e *CheckError) Error() string { return e.Message }

// Fail returns a Medium-severity check error.
func Fail(msg string) *CheckError {
	return &CheckError{Message: msg, Severity: Medium}
}

func Failf(format string, args ...any) *CheckError {
	return Fail(fmt.Sprintf(format, args...))
}

func FailSev(sev Severity, msg string) *CheckError {
	return &CheckError{Message: msg, Severity: sev}
}

// IncompleteError reports a partial result: what could be collected plus the
// reason the rest could not.
type IncompleteError struct {
	Message  string
	Severity Severity
	Partial  Result
}

func (e *IncompleteError) Error() string { return e.Message }

// Incomplete returns a Low-severity partial result.
func Incomplete(partial Result, reason string) *IncompleteError {
	return &IncompleteError{Message: reason, Severity: Low, Partial: partial}
}

func IncompleteSev(sev Severity, partial Result, reason string) *IncompleteError {
	return &IncompleteError{Message: reason, Severity: sev, Partial: partial}
}
