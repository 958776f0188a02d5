package gdb

import (
	"fmt"
	"regexp"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

var stopReportRe = regexp.MustCompile(`Program received signal|Thread \S+ received signal|SIGINT|Program stopped`)

// ContinueOpts tune C.
type ContinueOpts struct {
	// NoWait returns once gdb says "Continuing" instead of waiting for the
	// target to stop.
	NoWait bool
	// Async sends "c&" so gdb keeps accepting commands while running.
	Async bool
	// NoCheck skips the output checks of a waited continue.
	NoCheck bool
	// Ops defaults to 20.
	Ops float64
}

// C resumes the active gdb and waits for the target to stop. In RTOS mode
// this resumes every hart the gdb exposes; with one gdb per hart it only
// resumes the active one.
func (s *Session) C() (string, error) {
	return s.CWith(ContinueOpts{})
}

// CWith resumes the active gdb.
func (s *Session) CWith(o ContinueOpts) (string, error) {
	if o.Ops == 0 {
		o.Ops = 20
	}
	cmd := "c"
	if o.Async {
		cmd = "c&"
	}
	c := s.active
	if o.NoWait {
		if err := c.SendLine(cmd); err != nil {
			return "", fmt.Errorf("%s: %w", c, err)
		}
		m, err := c.ExpectString("Continuing", s.timeout(o.Ops))
		if err != nil {
			return "", fmt.Errorf("%s: %s: %w", c, cmd, err)
		}
		c.state = StateRunning
		return "", outcome.NotIn("Could not insert hardware", m.Before, c.String())
	}

	c.state = StateRunning
	out, err := s.CommandOpts(cmd, Opts{Ops: o.Ops})
	if err != nil {
		return "", err
	}
	if !o.Async {
		c.state = StateHalted
	}
	if o.NoCheck {
		return out, nil
	}
	return out, outcome.First(
		outcome.In("Continuing", out),
		outcome.NotIn("Could not insert hardware", out),
	)
}

// CAll resumes every gdb. The resume is sent to all of them before waiting
// on any, since a lock-stepped simulator only advances once every hart is
// running.
func (s *Session) CAll(wait bool) error {
	timeout := s.timeout(1)
	var checks []error
	for _, c := range s.children {
		if err := c.SendLine("c"); err != nil {
			return fmt.Errorf("%s: %w", c, err)
		}
		m, err := c.ExpectString("Continuing", timeout)
		if err != nil {
			return fmt.Errorf("%s: c: %w", c, err)
		}
		c.state = StateRunning
		checks = append(checks, outcome.NotIn("Could not insert hardware", m.Before, c.String()))
	}
	if !wait {
		return outcome.First(checks...)
	}
	for _, c := range s.children {
		m, err := c.Expect(promptRe, s.timeout(20))
		if err != nil {
			return fmt.Errorf("%s: waiting for halt: %w", c, err)
		}
		c.state = StateHalted
		checks = append(checks, outcome.NotIn("Could not insert hardware", m.Before, c.String()))
	}
	return outcome.First(checks...)
}

// Interrupt halts the active gdb's target and waits for the prompt, which
// gdb only prints once the target has stopped.
func (s *Session) Interrupt(ops float64) (string, error) {
	c := s.active
	if err := c.Interrupt(); err != nil {
		return "", fmt.Errorf("%s: interrupt: %w", c, err)
	}
	m, err := c.Expect(promptRe, s.timeout(ops))
	if err != nil {
		return "", fmt.Errorf("%s: waiting for halt after interrupt: %w", c, err)
	}
	c.state = StateHalted
	out := clean(m.Before)
	if !stopReported(out) {
		glog.Warningf("gdb: %s: no stop report after interrupt: %q", c, out)
	}
	return out, nil
}

// stopReported reports whether out contains gdb's notice that the target
// stopped on a signal.
func stopReported(out string) bool {
	return stopReportRe.MatchString(out)
}

// InterruptAll interrupts every gdb, leaving the last one active.
func (s *Session) InterruptAll() error {
	for _, c := range s.children {
		s.active = c
		if _, err := s.Interrupt(1); err != nil {
			return err
		}
	}
	return nil
}
