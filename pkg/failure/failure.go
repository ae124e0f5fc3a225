package failure

import (
	"errors"
	"fmt"
)

// Kinds of pipeline failure. Every stage error unwraps to exactly one of these.
var (
	ErrUsage       = errors.New("usage error")
	ErrBuild       = errors.New("build error")
	ErrCopy        = errors.New("copy error")
	ErrCleanup     = errors.New("cleanup error")
	ErrExecution   = errors.New("execution error")
	ErrDeterminism = errors.New("determinism violation")
)

// Error attaches a failure kind and the stage it happened in to a cause
type Error struct {
	Kind  error
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Stage != "" {
		msg = fmt.Sprintf("%s in %s", msg, e.Stage)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap lets errors.Is match both the kind and the cause
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func wrap(kind error, stage string, err error) error {
	var existing *Error
	if errors.As(err, &existing) && errors.Is(existing.Kind, kind) {
		return err
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

func Usage(format string, args ...any) error {
	return &Error{Kind: ErrUsage, Err: fmt.Errorf(format, args...)}
}

func Build(stage string, err error) error     { return wrap(ErrBuild, stage, err) }
func Copy(stage string, err error) error      { return wrap(ErrCopy, stage, err) }
func Cleanup(stage string, err error) error   { return wrap(ErrCleanup, stage, err) }
func Execution(stage string, err error) error { return wrap(ErrExecution, stage, err) }

// KindOf returns the failure kind of err, or nil if err carries none
func KindOf(err error) error {
	for _, k := range []error{ErrUsage, ErrBuild, ErrCopy, ErrCleanup, ErrExecution, ErrDeterminism} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
