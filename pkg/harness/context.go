// Package harness runs debug tests against a target. Each test gets its own
// backend, debug server and gdb session, a log file, and a one-word result.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"math/rand/v2"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/target"
)

const compileCacheSize = 256

// Context is the configuration shared by every test of a run. It is built
// once by NewContext and only read afterwards.
type Context struct {
	Target   *target.Target
	Strategy target.Strategy
	Compiler *target.Compiler

	// GDBCommand replaces gdb.DefaultCommand.
	GDBCommand string
	// GDBEnv is the complete environment for gdb; nil inherits ours.
	GDBEnv []string
	// GDBPipes runs gdb on pipes instead of a pseudo-terminal.
	GDBPipes bool
	// NoResetDelays is for servers without "monitor riscv reset_delays".
	NoResetDelays bool

	LogDir string
	// Misa, when set, is assumed for every hart and ExamineTarget is not
	// run.
	Misa *big.Int

	FailFast      bool
	PrintFailures bool
	PrintLogNames bool
	ListTests     bool
	// Reproduce is the command line that reruns a test once its name is
	// appended.
	Reproduce string

	// Out receives the run's progress and summary. Defaults to stdout.
	Out io.Writer
	// Rand picks the hart for tests not bound to one.
	Rand *rand.Rand

	compiled *lru.Cache[string, string]
}

// NewContext validates c and returns a copy ready for a run.
func NewContext(c Context) (*Context, error) {
	if c.Target == nil {
		return nil, errors.New("harness: no target")
	}
	if len(c.Target.Harts) == 0 {
		return nil, fmt.Errorf("harness: target %s has no harts", c.Target.Name)
	}
	if c.Strategy == nil {
		return nil, errors.New("harness: no strategy")
	}
	if c.Compiler == nil {
		c.Compiler = &target.Compiler{}
	}
	if c.LogDir == "" {
		c.LogDir = "logs"
	}
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Misa != nil {
		c.Misa = new(big.Int).Set(c.Misa)
	}
	cache, err := lru.New[string, string](compileCacheSize)
	if err != nil {
		return nil, fmt.Errorf("harness: compile cache: %w", err)
	}
	c.compiled = cache
	return &c, nil
}

// compileKey identifies a build. Harts reporting the same misa share
// binaries.
func compileKey(args []string, h *target.Hart) string {
	misa := "-"
	if m := h.Misa(); m != nil {
		misa = m.Text(16)
	}
	return strings.Join(args, "\x00") + "\x00" + misa
}

// compile builds args for h unless an identical build already exists.
func (c *Context) compile(ctx context.Context, h *target.Hart, args []string) (string, error) {
	key := compileKey(args, h)
	if bin, ok := c.compiled.Get(key); ok {
		return bin, nil
	}
	bin, err := c.Compiler.Compile(ctx, c.Target, h, args...)
	if err != nil {
		return "", err
	}
	c.compiled.Add(key, bin)
	return bin, nil
}

func (c *Context) pickHart() *target.Hart {
	harts := c.Target.Harts
	if c.Rand != nil {
		return harts[c.Rand.IntN(len(harts))]
	}
	return harts[rand.IntN(len(harts))]
}
