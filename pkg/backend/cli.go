package backend

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/expect"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

var cliPrompt = regexp.MustCompile(`> `)

// CLI is OpenOCD's interactive telnet console.
type CLI struct {
	con     *expect.Console
	Timeout time.Duration
}

// DialCLI connects to the console at addr and waits for its prompt.
func DialCLI(ctx context.Context, addr string, log io.Writer) (*CLI, error) {
	con, err := expect.Dial(ctx, addr, log, func(r io.Reader) io.Reader { return NewTelnetReader(r) })
	if err != nil {
		return nil, err
	}
	c := &CLI{con: con, Timeout: 10 * time.Second}
	if _, err := con.Expect(cliPrompt, c.Timeout); err != nil {
		con.Close()
		return nil, fmt.Errorf("openocd cli: %w", err)
	}
	return c, nil
}

// Command runs cmd and returns its output without the echo and prompt.
func (c *CLI) Command(cmd string) (string, error) {
	if err := c.con.SendLine(cmd); err != nil {
		return "", err
	}
	if _, err := c.con.ExpectString(cmd, c.Timeout); err != nil {
		return "", fmt.Errorf("openocd cli: %q echo: %w", cmd, err)
	}
	if _, err := c.con.ExpectString("\n", c.Timeout); err != nil {
		return "", fmt.Errorf("openocd cli: %q: %w", cmd, err)
	}
	m, err := c.con.Expect(cliPrompt, c.Timeout)
	if err != nil {
		return "", fmt.Errorf("openocd cli: %q: %w", cmd, err)
	}
	return strings.Trim(m.Before, "\t\r\n \x00"), nil
}

// Regs reads every register.
func (c *CLI) Regs() (map[string]*big.Int, error) {
	out, err := c.Command("reg")
	if err != nil {
		return nil, err
	}
	return gdbvalue.ParseOpenOCDRegisters(out), nil
}

// Reg reads one register.
func (c *CLI) Reg(name string) (*big.Int, error) {
	out, err := c.Command("reg " + name)
	if err != nil {
		return nil, err
	}
	v, ok := gdbvalue.ParseOpenOCDRegisters(out)[name]
	if !ok {
		return nil, outcome.Failf("no value for %s in %q", name, out)
	}
	return v, nil
}

// LoadImage downloads an ELF file. OpenOCD builds that only read 32-bit
// ELF make the test not applicable.
func (c *CLI) LoadImage(path string) (string, error) {
	out, err := c.Command("load_image " + path)
	if err != nil {
		return "", err
	}
	if strings.Contains(out, "invalid ELF file, only 32bits files are supported") {
		return out, &outcome.NotApplicable{Message: out}
	}
	return out, nil
}

func (c *CLI) Close() error { return c.con.Close() }

// Telnet protocol bytes.
const (
	telnetIAC  = 255
	telnetDONT = 254
	telnetDO   = 253
	telnetWONT = 252
	telnetWILL = 251
	telnetSB   = 250
	telnetSE   = 240
)

// TelnetReader strips telnet option negotiation from a stream.
type TelnetReader struct {
	r     io.Reader
	state int
	buf   []byte
}

const (
	tnData = iota
	tnIAC
	tnOption
	tnSub
	tnSubIAC
)

func NewTelnetReader(r io.Reader) *TelnetReader {
	return &TelnetReader{r: r}
}

func (t *TelnetReader) Read(p []byte) (int, error) {
	for {
		if cap(t.buf) < len(p) {
			t.buf = make([]byte, len(p))
		}
		n, err := t.r.Read(t.buf[:len(p)])
		out := 0
		for _, b := range t.buf[:n] {
			switch t.state {
			case tnData:
				if b == telnetIAC {
					t.state = tnIAC
				} else {
					p[out] = b
					out++
				}
			case tnIAC:
				switch b {
				case telnetIAC:
					p[out] = b
					out++
					t.state = tnData
				case telnetDO, telnetDONT, telnetWILL, telnetWONT:
					t.state = tnOption
				case telnetSB:
					t.state = tnSub
				default:
					t.state = tnData
				}
			case tnOption:
				t.state = tnData
			case tnSub:
				if b == telnetIAC {
					t.state = tnSubIAC
				}
			case tnSubIAC:
				if b == telnetSE {
					t.state = tnData
				} else {
					t.state = tnSub
				}
			}
		}
		if out > 0 || err != nil {
			return out, err
		}
	}
}
