package process

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

var (
	ErrEarlyExit = errors.New("process exited before becoming ready")
	ErrTimeout   = errors.New("process did not become ready in time")
)

// EarlyExitError is returned when the process exits before its readiness
// marker appears.
type EarlyExitError struct {
	Argv     []string
	ExitCode int
	LogPath  string
	Tail     string
}

func (e *EarlyExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d before becoming ready (log %s):\n%s",
		strings.Join(e.Argv, " "), e.ExitCode, e.LogPath, e.Tail)
}

func (e *EarlyExitError) Is(target error) bool {
	return target == ErrEarlyExit || target == outcome.ErrReadiness
}

// TimeoutError is returned when the readiness marker does not appear within
// the configured budget.
type TimeoutError struct {
	Argv    []string
	Timeout time.Duration
	Pattern string
	LogPath string
	Tail    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no %q in log after %s (log %s):\n%s",
		strings.Join(e.Argv, " "), e.Pattern, e.Timeout, e.LogPath, e.Tail)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout || target == outcome.ErrReadiness
}
