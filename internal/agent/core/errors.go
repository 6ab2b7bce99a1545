package core

import (
	"errors"
	"fmt"
)

// NodeError is a typed failure raised by an agent. Fatal errors abort the
// workflow; recoverable ones are expected to be absorbed by the caller with a
// degraded default.
type NodeError struct {
	Agent string
	Fatal bool
	Err   error
}

func (e *NodeError) Error() string {
	kind := "recoverable"
	if e.Fatal {
		kind = "fatal"
	}
	return fmt.Sprintf("agent %s: %s: %v", e.Agent, kind, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// Fatalf builds a fatal NodeError.
func Fatalf(agent, format string, args ...interface{}) *NodeError {
	return &NodeError{Agent: agent, Fatal: true, Err: fmt.Errorf(format, args...)}
}

// Recoverablef builds a recoverable NodeError.
func Recoverablef(agent, format string, args ...interface{}) *NodeError {
	return &NodeError{Agent: agent, Fatal: false, Err: fmt.Errorf(format, args...)}
}

// WrapFatal wraps an underlying error as fatal for the named agent.
func WrapFatal(agent string, err error) *NodeError {
	return &NodeError{Agent: agent, Fatal: true, Err: err}
}

// IsFatal reports whether err should abort the workflow. Errors that are not
// NodeError at all are structural and therefore fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var ne *NodeError
	if errors.As(err, &ne) {
		return ne.Fatal
	}
	return true
}
