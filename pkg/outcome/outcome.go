// Package outcome classifies how a debug test ended.
package outcome

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
)

// Kind is the closed set of error categories a test can end with.
type Kind int

const (
	// KindHarness is anything not otherwise classified: a bug in the test or
	// the harness, or an unexpected I/O failure.
	KindHarness Kind = iota
	// KindProtocol is an error gdb reported about the target.
	KindProtocol
	// KindReadiness is a backend that exited early or never became ready.
	KindReadiness
	// KindAssertion is an expected/actual mismatch in a test body.
	KindAssertion
	// KindNotApplicable is a test opting out on this target.
	KindNotApplicable
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindReadiness:
		return "readiness"
	case KindAssertion:
		return "assertion"
	case KindNotApplicable:
		return "not_applicable"
	default:
		return "harness"
	}
}

// ErrReadiness is matched by every backend start-up failure.
var ErrReadiness = errors.New("backend not ready")

// Failed is an assertion failure.
type Failed struct {
	Message string
}

func (e *Failed) Error() string { return e.Message }

// Failf returns a *Failed with a formatted message.
func Failf(format string, args ...any) *Failed {
	return &Failed{Message: fmt.Sprintf(format, args...)}
}

// NotApplicable is returned by a test that cannot run on this target.
type NotApplicable struct {
	Message string
}

func (e *NotApplicable) Error() string {
	if e.Message == "" {
		return "not applicable"
	}
	return "not applicable: " + e.Message
}

// Skip returns a *NotApplicable with a formatted message.
func Skip(format string, args ...any) *NotApplicable {
	return &NotApplicable{Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Not-applicable and assertion failures win over
// protocol and readiness errors they may wrap.
func KindOf(err error) Kind {
	var na *NotApplicable
	var failed *Failed
	switch {
	case errors.As(err, &na):
		return KindNotApplicable
	case errors.As(err, &failed):
		return KindAssertion
	case errors.Is(err, gdbvalue.ErrProtocol):
		return KindProtocol
	case errors.Is(err, ErrReadiness):
		return KindReadiness
	}
	return KindHarness
}

// Result is the one-word verdict printed per test.
type Result string

const (
	ResultPass          Result = "pass"
	ResultFail          Result = "fail"
	ResultException     Result = "exception"
	ResultNotApplicable Result = "not_applicable"
)

// Good reports whether r counts as success for the run's exit status.
func (r Result) Good() bool {
	return r == ResultPass || r == ResultNotApplicable
}

// Classify maps a test's returned error to its verdict.
func Classify(err error) Result {
	if err == nil {
		return ResultPass
	}
	switch KindOf(err) {
	case KindNotApplicable:
		return ResultNotApplicable
	case KindAssertion:
		return ResultFail
	}
	return ResultException
}
