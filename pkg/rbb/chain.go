package rbb

import (
	"fmt"
	"io"
	"math/big"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/tap"
)

// Endpoint is one TAP reachable over the bit-bang protocol. *Client is the
// network implementation.
type Endpoint interface {
	Write(tck, tms, tdi, read bool) (bool, error)
	ReadTDO() (bool, error)
	Reset(code byte) error
}

// Chain joins several endpoints into one scan chain. TAP 0 sees the chain's
// TDI; TAP i>0 is driven by the TDO TAP i-1 returned for the same write, and
// the last TAP's TDO is the chain's TDO.
//
// The chain tracks the TAP controller state itself so it can decode shifts for
// tracing. All TAPs share TCK and TMS, so they move through the same states.
type Chain struct {
	taps  []Endpoint
	state tap.State
	tck   bool

	// Trace, when set, receives a line per write and the DR/IR contents on
	// every update. Tracing also reads back the last TAP on each write.
	Trace io.Writer

	dr shiftLog
	ir shiftLog
}

type shiftLog struct {
	in  []bool
	out []bool
}

func (l *shiftLog) push(in, out bool) {
	l.in = append(l.in, in)
	l.out = append(l.out, out)
}

func (l *shiftLog) reset() {
	l.in = l.in[:0]
	l.out = l.out[:0]
}

// NewChain returns an empty chain in Test-Logic-Reset.
func NewChain() *Chain {
	return &Chain{state: tap.StateTestLogicReset}
}

// AddTap appends an endpoint to the TDO end of the chain and parks its pins
// low.
func (c *Chain) AddTap(ep Endpoint) error {
	if _, err := ep.Write(false, false, false, false); err != nil {
		return fmt.Errorf("rbb: prime tap %d: %w", len(c.taps), err)
	}
	c.taps = append(c.taps, ep)
	return nil
}

// Len returns the number of TAPs in the chain.
func (c *Chain) Len() int {
	return len(c.taps)
}

// State reports the controller state decoded from the clock edges seen so far.
func (c *Chain) State() tap.State {
	return c.state
}

// Write forwards one pin update through every TAP.
func (c *Chain) Write(tck, tms, tdi bool) error {
	if len(c.taps) == 0 {
		return ErrEmptyChain
	}
	tracing := c.Trace != nil

	var value bool
	var values []bool
	for i, ep := range c.taps {
		read := tracing || i < len(c.taps)-1
		in := tdi
		if i > 0 {
			in = value
		}
		out, err := ep.Write(tck, tms, in, read)
		if err != nil {
			return fmt.Errorf("rbb: tap %d: %w", i, err)
		}
		value = out
		if tracing {
			values = append(values, out)
		}
	}

	if !c.tck && tck {
		c.clock(tms, tdi, value)
	}
	if tracing {
		fmt.Fprintf(c.Trace, "%20s write tck=%d tms=%d tdi=%d %s\n",
			c.state, b2i(tck), b2i(tms), b2i(tdi), joinBits(values))
	}
	c.tck = tck
	return nil
}

// clock handles a rising TCK edge.
func (c *Chain) clock(tms, tdi, tdo bool) {
	tracing := c.Trace != nil
	if tracing && c.state.IsShift() {
		c.record(c.state).push(tdi, tdo)
	}

	next := tap.NextState(c.state, tms)
	if glog.V(3) {
		glog.Infof("rbb: %s -> %s", c.state, next)
	}
	switch {
	case next == tap.StateCaptureDR || next == tap.StateCaptureIR:
		c.record(next).reset()
	case next.IsUpdate():
		l := c.record(next)
		if tracing {
			fmt.Fprintf(c.Trace, "%cR %db 0x%s -> 0x%s\n", next.Register(), len(l.in), bitsHex(l.in), bitsHex(l.out))
		}
		l.reset()
	}
	c.state = next
}

// record is the shift log of the register s belongs to.
func (c *Chain) record(s tap.State) *shiftLog {
	if s.Register() == 'I' {
		return &c.ir
	}
	return &c.dr
}

// ReadTDO returns the last TAP's current output.
func (c *Chain) ReadTDO() (bool, error) {
	if len(c.taps) == 0 {
		return false, ErrEmptyChain
	}
	v, err := c.taps[len(c.taps)-1].ReadTDO()
	if err != nil {
		return false, err
	}
	if c.Trace != nil {
		fmt.Fprintf(c.Trace, "read -> %d\n", b2i(v))
	}
	return v, nil
}

// Reset forwards a reset variant to every TAP.
func (c *Chain) Reset(code byte) error {
	for i, ep := range c.taps {
		if err := ep.Reset(code); err != nil {
			return fmt.Errorf("rbb: reset tap %d: %w", i, err)
		}
	}
	return nil
}

// Close closes every endpoint that can be closed and reports the first error.
func (c *Chain) Close() error {
	var first error
	for _, ep := range c.taps {
		if cl, ok := ep.(io.Closer); ok {
			if err := cl.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func b2i(v bool) int {
	if v {
		return 1
	}
	return 0
}

func joinBits(values []bool) string {
	out := make([]byte, 0, len(values)*5)
	for i, v := range values {
		if i > 0 {
			out = append(out, " -> "...)
		}
		out = append(out, bitByte(v))
	}
	return string(out)
}

// bitsHex renders an LSB-first bit slice as a hex number.
func bitsHex(bits []bool) string {
	n := new(big.Int)
	for i, b := range bits {
		if b {
			n.SetBit(n, i, 1)
		}
	}
	return n.Text(16)
}
