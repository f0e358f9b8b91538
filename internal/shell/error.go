package shell

import (
	"errors"
	"strconv"
)

// ExitError carries the exit code the process should terminate with.
// A shell run always ends in one, including a clean shutdown with 0.
type ExitError struct {
	Code int
}

func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// ExitCode maps err to a process exit code: 0 for nil, the code of an
// *ExitError, and 1 for any other error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	if exitErr, ok := asExitError(err); ok {
		return exitErr.Code
	}

	return 1
}

func IsExitError(err error) bool {
	_, ok := asExitError(err)
	return ok
}

func asExitError(err error) (*ExitError, bool) {
	var exitErr *ExitError
	ok := errors.As(err, &exitErr)
	return exitErr, ok
}
