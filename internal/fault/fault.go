// Package fault defines the failure taxonomy shared by the provisioning
// and supervision packages.
//
// Every error surfaced to the host is a *Error carrying one of the Kind
// sentinels below, so callers can branch with errors.Is without parsing
// messages:
//
//	if errors.Is(err, fault.ErrRuntimeMissing) {
//	    // direct the user to runtime setup
//	}
package fault

import (
	"errors"
	"fmt"
)

// Kind sentinels. Each *Error matches exactly one of them.
var (
	ErrNetwork      = errors.New("network error")
	ErrIntegrity    = errors.New("integrity error")
	ErrFormat       = errors.New("format error")
	ErrFilesystem   = errors.New("filesystem error")
	ErrPrecondition = errors.New("precondition error")
	ErrSpawn        = errors.New("spawn error")
)

// Precondition sentinels. They also match ErrPrecondition.
var (
	ErrRuntimeMissing     = &Error{Kind: ErrPrecondition, Code: CodeRuntimeMissing, Op: "runtime setup has not been run"}
	ErrApplicationMissing = &Error{Kind: ErrPrecondition, Code: CodeApplicationMissing, Op: "application setup has not been run"}
)

// Stable codes for precondition failures. The host UI keys remedial
// actions off these.
const (
	CodeRuntimeMissing     = "NODE_NOT_FOUND"
	CodeApplicationMissing = "N8N_CORE_NOT_FOUND"
)

// Error is a classified failure.
type Error struct {
	Kind error  // one of the Err* kind sentinels
	Op   string // human-readable description of what failed
	Code string // optional stable code
	Err  error  // underlying cause, may be nil
}

// Error returns the message shown to the user.
func (e *Error) Error() string {
	msg := e.Op
	if e.Code != "" {
		msg = e.Code + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind, or a coded error with
// the same code.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	var coded *Error
	if errors.As(target, &coded) && coded.Code != "" {
		return coded.Code == e.Code
	}
	return false
}

// Network wraps err as a network failure.
func Network(op string, err error) error {
	return &Error{Kind: ErrNetwork, Op: op, Err: err}
}

// Integrity wraps err as a digest or signature failure.
func Integrity(op string, err error) error {
	return &Error{Kind: ErrIntegrity, Op: op, Err: err}
}

// Format wraps err as an archive or document parse failure.
func Format(op string, err error) error {
	return &Error{Kind: ErrFormat, Op: op, Err: err}
}

// Filesystem wraps err as a create/write/permission failure.
func Filesystem(op string, err error) error {
	return &Error{Kind: ErrFilesystem, Op: op, Err: err}
}

// Spawn wraps err as a child process creation failure.
func Spawn(op string, err error) error {
	return &Error{Kind: ErrSpawn, Op: op, Err: err}
}

// Precondition returns a coded precondition failure naming the missing path.
func Precondition(base *Error, path string) error {
	return &Error{Kind: ErrPrecondition, Code: base.Code, Op: base.Op, Err: fmt.Errorf("%s does not exist", path)}
}

// KindOf returns the kind sentinel of err, or nil when err is unclassified.
func KindOf(err error) error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return nil
}

// CodeOf returns the stable code attached to err, if any.
func CodeOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
