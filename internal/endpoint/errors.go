package endpoint

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrorKind classifies a failed execution.
type ErrorKind int

const (
	// Timeout means the execution deadline passed before a result arrived.
	Timeout ErrorKind = iota + 1
	// IOFailure covers transport errors and non-success responses.
	IOFailure
)

func (k ErrorKind) String() string {
	switch k {
	case Timeout:
		return "timeout"
	case IOFailure:
		return "io failure"
	default:
		return "unknown"
	}
}

// ExecutionError is returned for every failed execution. The connection it
// happened on must be considered broken.
type ExecutionError struct {
	Kind     ErrorKind
	Template string
	Err      error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("executing %s: %s: %v", e.Template, e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is an execution timeout.
func IsTimeout(err error) bool {
	var execErr *ExecutionError
	return errors.As(err, &execErr) && execErr.Kind == Timeout
}

func classify(template string, err error) *ExecutionError {
	kind := IOFailure
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = Timeout
	}
	return &ExecutionError{Kind: kind, Template: template, Err: err}
}
