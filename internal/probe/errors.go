package probe

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var ErrPermissionDenied = errors.New("permission denied")

type TimeoutError struct {
	Pinning string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("probe %s timed out after %s", e.Pinning, e.Timeout)
}

type FailureError struct {
	Pinning  string
	ExitCode int
	Stderr   string
}

func (e *FailureError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("probe %s exited with code %d", e.Pinning, e.ExitCode)
	}
	return fmt.Sprintf("probe %s exited with code %d: %s", e.Pinning, e.ExitCode, e.Stderr)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

func IsFailure(err error) bool {
	var fe *FailureError
	return errors.As(err, &fe)
}

func wrapStartError(pinning string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return &FailureError{Pinning: pinning, ExitCode: -1, Stderr: strings.TrimSpace(err.Error())}
}
