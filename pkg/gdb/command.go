package gdb

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang/glog"
)

// NoResetDelay and RotateResetDelay are special Opts.ResetDelay values.
const (
	NoResetDelay     = -1
	RotateResetDelay = 0
)

// Opts tune a single command.
type Opts struct {
	// Ops estimates how much work the command is; the timeout is
	// max(1, Ops) times the session timeout.
	Ops float64
	// ResetDelay is sent as "monitor riscv reset_delays N" before the
	// command. RotateResetDelay picks the next value from a fixed table and
	// NoResetDelay sends nothing.
	ResetDelay int
}

func (s *Session) timeout(ops float64) time.Duration {
	if ops < 1 {
		ops = 1
	}
	return time.Duration(ops * float64(s.cfg.Timeout))
}

// Command runs text on the active gdb with a rotating reset delay and
// returns its output without the prompt.
func (s *Session) Command(text string) (string, error) {
	return s.CommandOpts(text, Opts{Ops: 1})
}

// CommandOpts runs text on the active gdb.
func (s *Session) CommandOpts(text string, o Opts) (string, error) {
	if o.ResetDelay != NoResetDelay && !s.cfg.NoResetDelays {
		delay := o.ResetDelay
		if delay == RotateResetDelay {
			delay = resetDelays[s.delayIndex]
			s.delayIndex = (s.delayIndex + 1) % len(resetDelays)
		}
		if _, err := s.CommandOpts(fmt.Sprintf("monitor riscv reset_delays %d", delay),
			Opts{ResetDelay: NoResetDelay}); err != nil {
			return "", err
		}
	}

	c := s.active
	timeout := s.timeout(o.Ops)
	glog.V(1).Infof("%s: %s", c, text)
	if err := c.SendLine(text); err != nil {
		return "", fmt.Errorf("%s: %w", c, err)
	}
	if c.Echo() {
		if _, err := c.Expect(newlineRe, timeout); err != nil {
			return "", fmt.Errorf("%s: %q: %w", c, text, err)
		}
	}
	m, err := c.Expect(promptRe, timeout)
	if err != nil {
		return "", fmt.Errorf("%s: %q: %w", c, text, err)
	}
	out := clean(m.Before)
	glog.V(2).Infof("%s: -> %q", c, out)
	return out, nil
}

func clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

// GlobalCommand runs text on every gdb.
func (s *Session) GlobalCommand(text string) error {
	return s.withEachChild(func(*child) error {
		_, err := s.Command(text)
		return err
	})
}

// SystemCommand runs text once per memory system. Other gdbs sharing an
// already handled system only reset their pc to _start.
func (s *Session) SystemCommand(text string, ops float64) (string, error) {
	done := make(map[string]bool)
	var out strings.Builder
	err := s.withEachChild(func(c *child) error {
		if done[c.system] {
			_, err := s.Command("set $pc=_start")
			return err
		}
		o, err := s.CommandOpts(text, Opts{Ops: ops})
		out.WriteString(o)
		done[c.system] = true
		return err
	})
	return out.String(), err
}
