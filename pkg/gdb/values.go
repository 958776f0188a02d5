package gdb

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

// P prints expr in hex and parses the result.
func (s *Session) P(expr string) (gdbvalue.Value, error) {
	return s.PFormat(expr, "/x", 1)
}

// PFormat prints expr with the given format suffix ("/x", "/d", or "" for
// gdb's natural format) and parses the last line of the result.
func (s *Session) PFormat(expr, format string, ops float64) (gdbvalue.Value, error) {
	out, err := s.CommandOpts(fmt.Sprintf("p%s %s", format, expr), Opts{Ops: ops})
	if err != nil {
		return gdbvalue.Value{}, err
	}
	return gdbvalue.ParseRHS(lastLine(out))
}

// PUint prints expr and returns it as an unsigned integer.
func (s *Session) PUint(expr string) (uint64, error) {
	v, err := s.P(expr)
	if err != nil {
		return 0, err
	}
	n, ok := v.Uint64()
	if !ok {
		return 0, fmt.Errorf("gdb: %s is %s, not an integer", expr, v)
	}
	return n, nil
}

func lastLine(out string) string {
	if i := strings.LastIndexByte(out, '\n'); i >= 0 {
		return out[i+1:]
	}
	return out
}

// PRaw prints expr and returns the text right of '=' unparsed. Errors gdb
// reports instead of a value come back as the matching gdbvalue error.
func (s *Session) PRaw(expr string) (string, error) {
	out, err := s.Command("p " + expr)
	if err != nil {
		return "", err
	}
	if perr := gdbvalue.FindProtocolError(out); perr != nil {
		return "", perr
	}
	if i := strings.IndexByte(out, '='); i >= 0 {
		out = out[i+1:]
	}
	return strings.TrimSpace(out), nil
}

// PFPR prints a floating point register. Registers shown as a union yield
// their "double" member.
func (s *Session) PFPR(expr string) (gdbvalue.Value, error) {
	v, err := s.PFormat(expr, "", 1)
	if err != nil {
		return v, err
	}
	if v.Kind == gdbvalue.KindDict {
		d, ok := v.Field("double")
		if !ok {
			return v, fmt.Errorf("gdb: %s has no double member: %s", expr, v)
		}
		return d, nil
	}
	return v, nil
}

// PString prints a char pointer and returns the string it points to.
func (s *Session) PString(expr string) (string, error) {
	out, err := s.Command("p " + expr)
	if err != nil {
		return "", err
	}
	return gdbvalue.ParseQuotedString(out)
}

// X examines count units of the given size ('b', 'h', 'w', 'g') at
// address.
func (s *Session) X(address string, size byte, count int) ([]uint64, error) {
	out, err := s.CommandOpts(fmt.Sprintf("x/%d%c %s", count, size, address),
		Opts{Ops: float64(count) / 16})
	if err != nil {
		return nil, err
	}
	if perr := gdbvalue.FindProtocolError(out); perr != nil {
		return nil, perr
	}
	return gdbvalue.ParseExamine(out)
}

// InfoRegisters lists a register group ("" for the general registers).
func (s *Session) InfoRegisters(group string, ops float64) (map[string]gdbvalue.Value, error) {
	if ops == 0 {
		ops = 5
	}
	out, err := s.CommandOpts(strings.TrimSpace("info registers "+group), Opts{Ops: ops})
	if err != nil {
		return nil, err
	}
	return gdbvalue.ParseRegisters(out)
}

// Stepi executes one instruction.
func (s *Session) Stepi() (string, error) {
	return s.CommandOpts("stepi", Opts{Ops: 10})
}

// Load downloads the program into every memory system and verifies it.
func (s *Session) Load() error {
	out, err := s.SystemCommand("load", 1000)
	if err != nil {
		return err
	}
	if err := outcome.First(
		outcome.NotIn("failed", out),
		outcome.In("Transfer rate", out),
	); err != nil {
		return err
	}
	out, err = s.SystemCommand("compare-sections", 1000)
	if err != nil {
		return err
	}
	return outcome.First(
		outcome.In("matched", out),
		outcome.NotIn("MIS", out),
	)
}

// B sets a breakpoint and returns its number.
func (s *Session) B(location string) (int, error) {
	out, err := s.CommandOpts("b "+location, Opts{Ops: 5})
	if err != nil {
		return 0, err
	}
	if err := outcome.First(
		outcome.NotIn("not defined", out),
		outcome.In("Breakpoint", out),
	); err != nil {
		return 0, err
	}
	n, ok := gdbvalue.ParseBreakpointNumber(out)
	if !ok {
		return 0, outcome.Failf("no breakpoint number in %q", out)
	}
	return n, nil
}

// Hbreak sets a hardware breakpoint.
func (s *Session) Hbreak(location string) (string, error) {
	out, err := s.CommandOpts("hbreak "+location, Opts{Ops: 5})
	if err != nil {
		return "", err
	}
	return out, outcome.First(
		outcome.NotIn("not defined", out),
		outcome.In("Hardware assisted breakpoint", out),
	)
}

// Watch sets a watchpoint, hardware if gdb can.
func (s *Session) Watch(expr string) (string, error) {
	out, err := s.CommandOpts("watch "+expr, Opts{Ops: 5})
	if err != nil {
		return "", err
	}
	return out, outcome.First(
		outcome.NotIn("not defined", out),
		outcome.In("atchpoint", out),
	)
}

// Swatch sets a software watchpoint.
func (s *Session) Swatch(expr string) (string, error) {
	if _, err := s.Command("show can-use-hw-watchpoints"); err != nil {
		return "", err
	}
	if _, err := s.Command("set can-use-hw-watchpoints 0"); err != nil {
		return "", err
	}
	out, err := s.Watch(expr)
	if err != nil {
		return out, err
	}
	_, err = s.Command("set can-use-hw-watchpoints 1")
	return out, err
}

// Threads lists the active gdb's threads. A live target always has one.
func (s *Session) Threads() ([]gdbvalue.Thread, error) {
	out, err := s.CommandOpts("info threads", Opts{Ops: 100})
	if err != nil {
		return nil, err
	}
	threads := gdbvalue.ParseThreads(out)
	if len(threads) == 0 {
		return nil, outcome.Failf("%s: no threads in %q", s.active, out)
	}
	return threads, nil
}

// Thread switches the active gdb to t.
func (s *Session) Thread(t gdbvalue.Thread) (string, error) {
	return s.Command("thread " + t.ID)
}

// Where returns the innermost frame.
func (s *Session) Where() (string, error) {
	return s.Command("where 1")
}
