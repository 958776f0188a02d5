package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/rbb"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/tap"
)

// InstrIDCODE selects the IDCODE register. Every other value selects BYPASS.
const InstrIDCODE uint64 = 0x01

// DefaultIRLength matches the RISC-V debug transport module.
const DefaultIRLength = 5

// TAPModel is a minimal TAP with IDCODE and BYPASS data registers, shaped like
// a simulator's debug transport module. It serves as an rbb.Handler so it can
// stand in for a simulator behind a bit-bang listener.
//
// Capture and Shift act on the rising TCK edge, Update and TDO changes on the
// falling edge.
type TAPModel struct {
	mu sync.Mutex

	idcode   uint32
	irLength int

	state tap.State
	tck   bool
	tdo   bool

	ir      uint64
	irShift uint64
	dr      uint64
	drLen   int

	lastDR uint64
	resets int
}

// NewTAPModel returns a model in Test-Logic-Reset with IDCODE selected.
func NewTAPModel(idcode uint32, irLength int) *TAPModel {
	if irLength <= 0 {
		irLength = DefaultIRLength
	}
	return &TAPModel{
		idcode:   idcode,
		irLength: irLength,
		state:    tap.StateTestLogicReset,
		ir:       InstrIDCODE,
	}
}

// Bypass returns the all-ones BYPASS instruction for this IR width.
func (m *TAPModel) Bypass() uint64 {
	return 1<<uint(m.irLength) - 1
}

func (m *TAPModel) Write(tck, tms, tdi bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case !m.tck && tck:
		m.rising(tms, tdi)
	case m.tck && !tck:
		m.falling()
	}
	m.tck = tck
	return nil
}

func (m *TAPModel) rising(tms, tdi bool) {
	switch m.state {
	case tap.StateCaptureDR:
		if m.ir == InstrIDCODE {
			m.dr, m.drLen = uint64(m.idcode), 32
		} else {
			m.dr, m.drLen = 0, 1
		}
	case tap.StateShiftDR:
		m.dr >>= 1
		if tdi {
			m.dr |= 1 << uint(m.drLen-1)
		}
	case tap.StateCaptureIR:
		m.irShift = 0x01
	case tap.StateShiftIR:
		m.irShift >>= 1
		if tdi {
			m.irShift |= 1 << uint(m.irLength-1)
		}
	}
	m.state = tap.NextState(m.state, tms)
}

func (m *TAPModel) falling() {
	switch m.state {
	case tap.StateTestLogicReset:
		m.ir = InstrIDCODE
	case tap.StateShiftDR:
		m.tdo = m.dr&1 != 0
	case tap.StateShiftIR:
		m.tdo = m.irShift&1 != 0
	case tap.StateUpdateDR:
		m.lastDR = m.dr
	case tap.StateUpdateIR:
		m.ir = m.irShift
	}
}

func (m *TAPModel) ReadTDO() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tdo, nil
}

// Reset handles the bit-bang reset codes. TRST returns the TAP to
// Test-Logic-Reset; system reset has nothing to act on.
func (m *TAPModel) Reset(code byte) error {
	if !rbb.IsReset(code) {
		return fmt.Errorf("jtag: %q is not a reset command", code)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if code == rbb.ResetTAP || code == rbb.ResetBoth {
		m.state = tap.StateTestLogicReset
		m.ir = InstrIDCODE
		m.resets++
	}
	return nil
}

// State returns the controller state.
func (m *TAPModel) State() tap.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Instruction returns the active instruction.
func (m *TAPModel) Instruction() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ir
}

// LastUpdate returns the data register contents at the most recent Update-DR.
func (m *TAPModel) LastUpdate() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastDR
}

// TRSTCount reports how many TAP resets were requested.
func (m *TAPModel) TRSTCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resets
}

// Endpoint exposes the model as an rbb.Endpoint so it can join an rbb.Chain
// without a socket in between.
func (m *TAPModel) Endpoint() rbb.Endpoint {
	return modelEndpoint{m}
}

type modelEndpoint struct {
	*TAPModel
}

func (e modelEndpoint) Write(tck, tms, tdi, read bool) (bool, error) {
	if err := e.TAPModel.Write(tck, tms, tdi); err != nil {
		return false, err
	}
	if !read {
		return false, nil
	}
	return e.TAPModel.ReadTDO()
}
