package jtag

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/rbb"
)

// BitbangAdapter clocks shifts one bit at a time through a remote bit-bang
// handler: a network client, a relay chain, or a TAP model.
type BitbangAdapter struct {
	pins    rbb.Handler
	name    string
	speedHz int
}

// NewBitbangAdapter wraps pins. Use rbb.AsHandler to drive a *rbb.Client.
func NewBitbangAdapter(pins rbb.Handler, name string) *BitbangAdapter {
	if name == "" {
		name = "remote-bitbang"
	}
	return &BitbangAdapter{pins: pins, name: name}
}

func (b *BitbangAdapter) Info() (AdapterInfo, error) {
	return AdapterInfo{
		Name:         b.name,
		Vendor:       "remote_bitbang",
		SupportsSRST: true,
		SupportsTRST: true,
		Notes:        "TCK is paced by the host; SetSpeed is advisory",
	}, nil
}

func (b *BitbangAdapter) ShiftIR(tms, tdi []byte, bits int) ([]byte, error) {
	return b.shift(tms, tdi, bits)
}

func (b *BitbangAdapter) ShiftDR(tms, tdi []byte, bits int) ([]byte, error) {
	return b.shift(tms, tdi, bits)
}

// shift samples TDO with TCK low, then raises TCK. The final falling edge
// leaves TCK low so the next shift starts from the same phase.
func (b *BitbangAdapter) shift(tms, tdi []byte, bits int) ([]byte, error) {
	required, err := ValidateShiftBuffers(tms, tdi, bits)
	if err != nil {
		return nil, err
	}
	tdo := make([]byte, required)
	var tmsBit, tdiBit bool
	for i := 0; i < bits; i++ {
		tmsBit, tdiBit = bitAt(tms, i), bitAt(tdi, i)
		if err := b.pins.Write(false, tmsBit, tdiBit); err != nil {
			return nil, fmt.Errorf("jtag: bit %d: %w", i, err)
		}
		out, err := b.pins.ReadTDO()
		if err != nil {
			return nil, fmt.Errorf("jtag: bit %d: %w", i, err)
		}
		if out {
			tdo[i/8] |= 1 << (uint(i) % 8)
		}
		if err := b.pins.Write(true, tmsBit, tdiBit); err != nil {
			return nil, fmt.Errorf("jtag: bit %d: %w", i, err)
		}
	}
	if err := b.pins.Write(false, tmsBit, tdiBit); err != nil {
		return nil, fmt.Errorf("jtag: park tck: %w", err)
	}
	return tdo, nil
}

// ResetTAP pulses TRST when hard is set, otherwise clocks five TMS=1 bits.
func (b *BitbangAdapter) ResetTAP(hard bool) error {
	if hard {
		if err := b.pins.Reset(rbb.ResetTAP); err != nil {
			return err
		}
		return b.pins.Reset(rbb.ResetNone)
	}
	_, err := b.shift([]byte{0x1F}, nil, 5)
	return err
}

func (b *BitbangAdapter) SetSpeed(hz int) error {
	if hz <= 0 {
		return fmt.Errorf("jtag: invalid speed %dHz", hz)
	}
	b.speedHz = hz
	return nil
}
