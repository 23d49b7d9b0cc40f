// Package xerr classifies errors along the taxonomy of spec.md §7:
// Transient, DegradedLocal, DegradedUpstream, Fatal, External. Every
// component below cmd/repmgrd returns a plain error; only this package's
// typed wrappers carry enough information for the daemon's top level to
// decide whether to retry, degrade, or exit with a specific code.
package xerr

import (
	"errors"
	"fmt"

	"github.com/dd0wney/repliguard/pkg/exitcode"
)

// Class is the taxonomy bucket an error belongs to.
type Class int

const (
	ClassTransient Class = iota
	ClassDegradedLocal
	ClassDegradedUpstream
	ClassFatal
	ClassExternal
)

func (c Class) String() string {
	switch c {
	case ClassDegradedLocal:
		return "degraded_local"
	case ClassDegradedUpstream:
		return "degraded_upstream"
	case ClassFatal:
		return "fatal"
	case ClassExternal:
		return "external"
	default:
		return "transient"
	}
}

// Error wraps an underlying error with a taxonomy class and, for Fatal
// errors, the exit code the process must terminate with.
type Error struct {
	Class   Class
	Code    exitcode.Code
	Err     error
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient marks err as a single-probe failure that the caller should retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: ClassTransient, Err: err}
}

// DegradedLocal marks err as having pushed the local node past its
// reconnect-attempt budget; the caller should enter MSDegraded.
func DegradedLocal(err error, detail string) error {
	return &Error{Class: ClassDegradedLocal, Err: err, Detail: detail}
}

// DegradedUpstream marks err as sustained upstream loss that should trigger
// the election/failover path.
func DegradedUpstream(err error, detail string) error {
	return &Error{Class: ClassDegradedUpstream, Err: err, Detail: detail}
}

// Fatal marks err as requiring process termination with the given exit code.
func Fatal(err error, code exitcode.Code) error {
	return &Error{Class: ClassFatal, Err: err, Code: code}
}

// External marks err as a non-zero shell command result; it is recorded as
// an event and drives a FailoverState transition, never returned raw.
func External(err error, detail string) error {
	return &Error{Class: ClassExternal, Err: err, Detail: detail}
}

// ClassOf extracts the taxonomy class of err, defaulting to Transient for
// plain errors that were never classified.
func ClassOf(err error) Class {
	var xe *Error
	if errors.As(err, &xe) {
		return xe.Class
	}
	return ClassTransient
}

// ExitCodeOf extracts the exit code carried by a Fatal error, or
// exitcode.ErrInternal if err is not a classified Fatal error.
func ExitCodeOf(err error) exitcode.Code {
	var xe *Error
	if errors.As(err, &xe) && xe.Class == ClassFatal {
		return xe.Code
	}
	return exitcode.ErrInternal
}
