package harness

import "github.com/OpenTraceLab/OpenTraceDebug/pkg/target"

// Definition is one debug test. Run returns nil on success, an
// *outcome.NotApplicable to opt out, and any other error to fail.
type Definition interface {
	Name() string
	Run(t *T) error
}

// The optional interfaces below let a Definition adjust how its test is set
// up.

// EarlyChecker decides applicability before anything is started.
type EarlyChecker interface {
	EarlyApplicable(tgt *target.Target) bool
}

// Compiled tests get a program built for every hart; the binaries are given
// to gdb as symbol files.
type Compiled interface {
	CompileArgs() []string
}

// Preparer runs after gdb is attached and before Run.
type Preparer interface {
	Setup(t *T) error
}

// RTOSAware tests run a FreeRTOS program whose threads the server should
// expose.
type RTOSAware interface {
	FreeRTOS() bool
}

// SingleHarted tests park every hart but their own in loop_forever first.
type SingleHarted interface {
	SingleHart() bool
}

// ConsoleUser tests talk to the server's command console instead of gdb.
type ConsoleUser interface {
	UsesConsole() bool
}

func wants[I any](d Definition, get func(I) bool) bool {
	i, ok := d.(I)
	return ok && get(i)
}
