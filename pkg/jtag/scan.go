package jtag

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/tap"
)

// ErrNoDevices is returned when the chain shifts back only ones.
var ErrNoDevices = errors.New("jtag: no devices on chain")

// ScanIDCodes resets the chain, which selects IDCODE (or BYPASS) in every TAP,
// and shifts the data registers out. Codes are returned nearest-TDO first. A
// TAP without IDCODE contributes a single 0 bit and is reported as 0.
//
// maxDevices bounds the shift length.
func ScanIDCodes(a Adapter, maxDevices int) ([]uint32, error) {
	if maxDevices <= 0 {
		return nil, fmt.Errorf("jtag: maxDevices must be positive, got %d", maxDevices)
	}

	sm := tap.NewStateMachine()
	nav := sm.Reset()
	toShift, err := sm.GoTo(tap.StateShiftDR)
	if err != nil {
		return nil, err
	}
	nav.TMS = append(nav.TMS, toShift.TMS...)
	if err := clockTMS(a, nav.TMS); err != nil {
		return nil, fmt.Errorf("jtag: move to Shift-DR: %w", err)
	}

	// One spare word of ones marks the end of the chain.
	bits := 32 * (maxDevices + 1)
	tms := make([]bool, bits)
	tms[bits-1] = true
	tdi := make([]byte, (bits+7)/8)
	for i := range tdi {
		tdi[i] = 0xFF
	}
	tdo, err := a.ShiftDR(PackBits(tms), tdi, bits)
	if err != nil {
		return nil, fmt.Errorf("jtag: shift idcodes: %w", err)
	}
	sm.Clock(true)

	toIdle, err := sm.GoTo(tap.StateRunTestIdle)
	if err != nil {
		return nil, err
	}
	if err := clockTMS(a, toIdle.TMS); err != nil {
		return nil, fmt.Errorf("jtag: return to Run-Test/Idle: %w", err)
	}

	out := UnpackBits(tdo, bits)
	var codes []uint32
	for pos := 0; pos < bits; {
		if !out[pos] {
			codes = append(codes, 0)
			pos++
			continue
		}
		if pos+32 > bits {
			return codes, fmt.Errorf("jtag: chain longer than %d devices", maxDevices)
		}
		var code uint32
		for i := 0; i < 32; i++ {
			if out[pos+i] {
				code |= 1 << uint(i)
			}
		}
		if code == 0xFFFFFFFF {
			break
		}
		glog.V(1).Infof("jtag: device %d idcode 0x%08x", len(codes), code)
		codes = append(codes, code)
		pos += 32
	}
	if len(codes) == 0 {
		return nil, ErrNoDevices
	}
	return codes, nil
}

func clockTMS(a Adapter, tms []bool) error {
	if len(tms) == 0 {
		return nil
	}
	_, err := a.ShiftDR(PackBits(tms), nil, len(tms))
	return err
}
