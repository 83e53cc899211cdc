package cli

import (
	"errors"
	"fmt"

	"github.com/rpattn/datastash/internal/config"
	"github.com/rpattn/datastash/internal/domain"
)

const (
	ExitSuccess           = 0
	ExitItemFailures      = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
)

// ExitError carries the process exit code for a command failure.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func invalidInvocation(err error) error {
	return &ExitError{Code: ExitInvalidInvocation, Err: err}
}

func invalidInvocationf(format string, args ...any) error {
	return invalidInvocation(fmt.Errorf(format, args...))
}

func itemFailures(failed, total int, noun string) error {
	return &ExitError{Code: ExitItemFailures, Err: fmt.Errorf("%d of %d %s failed", failed, total, noun)}
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		return exitErr.Code
	case errors.Is(err, config.ErrInvalidConfig):
		return ExitConfigError
	case domain.IsRequestInvalid(err), errors.Is(err, domain.ErrEmptyPath):
		return ExitInvalidInvocation
	default:
		return ExitItemFailures
	}
}
