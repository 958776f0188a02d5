package suite

import (
	"time"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdb"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/harness"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

// UserInterrupt checks that ^C halts a running program where it is.
type UserInterrupt struct{ debugTest }

func (UserInterrupt) Name() string { return "UserInterrupt" }

func (u UserInterrupt) Run(t *harness.T) error {
	s := t.GDB()
	if _, err := s.B("main:start"); err != nil {
		return err
	}
	if _, err := s.C(); err != nil {
		return err
	}
	if _, err := s.P("i=123"); err != nil {
		return err
	}
	if _, err := s.CWith(gdb.ContinueOpts{NoWait: true}); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	out, err := s.Interrupt(1)
	if err != nil {
		return err
	}
	if err := outcome.In("main", out); err != nil {
		return err
	}
	j, err := s.PUint("j")
	if err != nil {
		return err
	}
	if err := outcome.Greater(j, 10, "j"); err != nil {
		return err
	}
	if _, err := s.P("i=0"); err != nil {
		return err
	}
	return u.exit(s, debugExitStatus)
}

// ThreadsListed checks that every hart of the target shows up as a gdb
// thread.
type ThreadsListed struct{}

func (ThreadsListed) Name() string { return "ThreadsListed" }

func (ThreadsListed) Run(t *harness.T) error {
	s := t.GDB()
	connected := make(map[int]bool)
	for _, id := range s.Harts() {
		connected[id] = true
	}
	for _, h := range t.Target().Harts {
		if !connected[h.ID] {
			return outcome.Failf("hart %d (%s) has no gdb thread; connected: %v", h.ID, h.Name, s.Harts())
		}
	}
	threads, err := s.Threads()
	if err != nil {
		return err
	}
	t.Logf("%d threads on the active gdb", len(threads))
	return nil
}
