package gdbvalue

import (
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

// Thread is one row of "info threads".
type Thread struct {
	ID          string
	Description string
	TargetID    string
	Name        string
	Frame       string
}

var threadRe = regexp.MustCompile(
	`^[\s*]*(\d+)\s*` +
		`(Remote target|Thread (\d+)\s*(?:".*?")?\s*\(Name: ([^)]+))` +
		`\s*(.*)`)

// ParseThreads extracts the thread table from "info threads" output. Lines
// that are not thread rows are skipped.
func ParseThreads(output string) []Thread {
	var threads []Thread
	for _, line := range strings.Split(output, "\n") {
		m := threadRe.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		threads = append(threads, Thread{
			ID:          m[1],
			Description: m[2],
			TargetID:    m[3],
			Name:        m[4],
			Frame:       m[5],
		})
	}
	return threads
}

var hartNameRe = regexp.MustCompile(`Hart (\d+)`)

// MatchHartName returns N when a thread name contains "Hart N".
func MatchHartName(name string) (int, bool) {
	m := hartNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

var registerGroupRe = regexp.MustCompile(`^(\w+)\s+(\{.*\})(?:\s+(\(.*\)))?`)

// ParseRegisters parses "info registers" output into name -> value. A
// register gdb could not fetch maps to a string holding the message.
func ParseRegisters(output string) (map[string]Value, error) {
	result := make(map[string]Value)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var parts []string
		if m := registerGroupRe.FindStringSubmatch(line); m != nil {
			parts = m[1:3]
		} else {
			parts = strings.Fields(line)
		}
		if len(parts) < 2 {
			continue
		}
		name := parts[0]
		if strings.Contains(line, "Could not fetch") {
			result[name] = StringValue(strings.Join(parts[1:], " "))
			continue
		}
		v, err := Parse(parts[1])
		if err != nil {
			return result, fmt.Errorf("register %s: %w", name, err)
		}
		result[name] = v
	}
	return result, nil
}

// ParseExamine collects the words printed by an "x/N" command, e.g.
// "0x80000000 <data>:\t0x00000001\t0x00000002".
func ParseExamine(output string) ([]uint64, error) {
	var values []uint64
	for _, line := range strings.Split(output, "\n") {
		_, rest, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		for _, field := range strings.Fields(rest) {
			v, err := strconv.ParseUint(field, 0, 64)
			if err != nil {
				return values, fmt.Errorf("examine %q: %w", field, err)
			}
			values = append(values, v)
		}
	}
	return values, nil
}

var breakpointRe = regexp.MustCompile(`Breakpoint (\d+),? `)

// ParseBreakpointNumber returns the number from "Breakpoint N at ...".
func ParseBreakpointNumber(output string) (int, bool) {
	m := breakpointRe.FindStringSubmatch(output)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	return n, err == nil
}

var openocdRegRe = regexp.MustCompile(`(\w+) \(/\d+\): (0x[0-9A-Fa-f]+)`)

// ParseOpenOCDRegisters parses the adapter console's "reg" listing, e.g.
// "pc (/64): 0x0000000080000004".
func ParseOpenOCDRegisters(output string) map[string]*big.Int {
	values := make(map[string]*big.Int)
	for _, m := range openocdRegRe.FindAllStringSubmatch(output, -1) {
		if n, ok := new(big.Int).SetString(m[2][2:], 16); ok {
			values[m[1]] = n
		}
	}
	return values
}

var quotedRe = regexp.MustCompile(`"(?:[^"\\]|\\.)*"`)

// ParseQuotedString returns the C string gdb prints after a char pointer,
// e.g. `$2 = 0x80001230 <msg> "hello\n"` yields "hello\n" unescaped.
func ParseQuotedString(output string) (string, error) {
	rhs := output
	if i := strings.IndexByte(output, '='); i >= 0 {
		rhs = output[i+1:]
	}
	q := quotedRe.FindString(rhs)
	if q == "" {
		return "", &ParseError{Input: output, Offset: len(output) - len(rhs), Msg: "no quoted string"}
	}
	s, err := strconv.Unquote(q)
	if err != nil {
		return q[1 : len(q)-1], nil
	}
	return s, nil
}
