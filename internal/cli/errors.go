package cli

import "fmt"

// Exit codes returned by the chatsync binary.
const (
	ExitCodeFailure = 1
	ExitCodeConfig  = 2
	ExitCodeTimeout = 3
)

// ExitError carries a process exit code. Printed is set when the command
// already reported the failure to the user.
type ExitError struct {
	Code    int
	Err     error
	Printed bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Exitf formats an error that exits with code.
func Exitf(code int, format string, args ...any) error {
	return &ExitError{Code: code, Err: fmt.Errorf(format, args...)}
}
