package gdbvalue

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrProtocol matches every error gdb reported about the target, as opposed
// to text this package failed to understand (*ParseError).
var ErrProtocol = errors.New("gdb protocol error")

// CannotAccessError is gdb's "Cannot access memory at address 0x...".
type CannotAccessError struct {
	Address uint64
}

func (e *CannotAccessError) Error() string {
	return fmt.Sprintf("cannot access memory at address 0x%x", e.Address)
}

func (e *CannotAccessError) Is(target error) bool { return target == ErrProtocol }

// CouldNotFetchError is gdb's `Could not fetch register "X"; explanation`.
type CouldNotFetchError struct {
	Register    string
	Explanation string
}

func (e *CouldNotFetchError) Error() string {
	return fmt.Sprintf("could not fetch register %q: %s", e.Register, e.Explanation)
}

func (e *CouldNotFetchError) Is(target error) bool { return target == ErrProtocol }

// NoSymbolError is gdb's `No symbol "X" in current context.`.
type NoSymbolError struct {
	Symbol string
}

func (e *NoSymbolError) Error() string {
	return fmt.Sprintf("no symbol %q in current context", e.Symbol)
}

func (e *NoSymbolError) Is(target error) bool { return target == ErrProtocol }

// CannotInsertBreakpointError is reported when the target ran out of
// hardware triggers.
type CannotInsertBreakpointError struct {
	Number int
}

func (e *CannotInsertBreakpointError) Error() string {
	return fmt.Sprintf("cannot insert breakpoint %d", e.Number)
}

func (e *CannotInsertBreakpointError) Is(target error) bool { return target == ErrProtocol }

// ParseError reports text that does not follow gdb's value grammar.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	rest := e.Input
	if e.Offset >= 0 && e.Offset <= len(rest) {
		rest = rest[e.Offset:]
	}
	return fmt.Sprintf("gdbvalue: %s at offset %d: %q", e.Msg, e.Offset, rest)
}

var (
	couldNotFetchRe = regexp.MustCompile(`Could not fetch register "(\w+)"; ([^\n]*)`)
	cannotAccessRe  = regexp.MustCompile(`Cannot access memory at address (0x[0-9a-f]+)`)
	cannotInsertRe  = regexp.MustCompile(`Cannot insert breakpoint (\d+)\.`)
	noSymbolRe      = regexp.MustCompile(`No symbol "(\w+)" in current context\.`)
)

// FindProtocolError scans free-form command output for the errors gdb
// reports about the target and returns the first kind found, or nil.
func FindProtocolError(output string) error {
	if m := couldNotFetchRe.FindStringSubmatch(output); m != nil {
		return &CouldNotFetchError{Register: m[1], Explanation: m[2]}
	}
	if m := cannotAccessRe.FindStringSubmatch(output); m != nil {
		return cannotAccess(m[1])
	}
	if m := cannotInsertRe.FindStringSubmatch(output); m != nil {
		n, _ := strconv.Atoi(m[1])
		return &CannotInsertBreakpointError{Number: n}
	}
	if m := noSymbolRe.FindStringSubmatch(output); m != nil {
		return &NoSymbolError{Symbol: m[1]}
	}
	return nil
}

func cannotAccess(hex string) error {
	addr, _ := strconv.ParseUint(hex, 0, 64)
	return &CannotAccessError{Address: addr}
}
