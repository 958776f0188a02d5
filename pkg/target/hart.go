// Package target describes the systems under test: their harts, how to
// start them and how to build programs for them.
package target

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// ErrMisaSet is returned when a hart's misa is written a second time.
var ErrMisaSet = errors.New("misa already set")

// Hart is one hardware thread of a target.
type Hart struct {
	ID    int
	Name  string
	Index int
	// XLEN may be 0 until forced from the command line.
	XLEN    int
	RAM     uint64
	RAMSize uint64
	// InstructionHWBreakpoints is the number of instruction triggers.
	InstructionHWBreakpoints int
	// ResetVectors lists every pc the hart may come out of reset at.
	ResetVectors []uint64
	// LinkScript is the linker script used for programs on this hart.
	LinkScript string
	// System names the memory the hart shares with other harts. Harts with
	// the same System only need a program loaded once.
	System string
	// HonorsTdata1Hmode is false on harts whose triggers ignore dmode.
	HonorsTdata1Hmode bool
	// Capabilities lists out-of-band features such as "custom-debug-regs".
	Capabilities []string

	mu   sync.Mutex
	misa *big.Int
}

// Misa returns the extension register, or nil before it has been read.
func (h *Hart) Misa() *big.Int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.misa == nil {
		return nil
	}
	return new(big.Int).Set(h.misa)
}

// SetMisa records misa. It can only be done once per hart.
func (h *Hart) SetMisa(v *big.Int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.misa != nil {
		return fmt.Errorf("hart %s: %w (0x%x)", h.Name, ErrMisaSet, h.misa)
	}
	h.misa = new(big.Int).Set(v)
	return nil
}

// ExtensionSupported reports whether misa has the bit for letter set. It is
// false while misa is unknown.
func (h *Hart) ExtensionSupported(letter byte) bool {
	misa := h.Misa()
	if misa == nil {
		return false
	}
	l := letter
	if l >= 'a' && l <= 'z' {
		l -= 'a' - 'A'
	}
	if l < 'A' || l > 'Z' {
		return false
	}
	return misa.Bit(int(l-'A')) == 1
}

// HasCapability reports whether name is in Capabilities.
func (h *Hart) HasCapability(name string) bool {
	for _, c := range h.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// MisaXLEN decodes XLEN from the MXL field, which sits in the top two bits
// of the register at whichever width is being tried. It returns 0 when no
// width matches.
func MisaXLEN(misa *big.Int) int {
	for i, xlen := range []int{32, 64, 128} {
		mask := new(big.Int).Lsh(big.NewInt(1), uint(xlen))
		mask.Sub(mask, big.NewInt(1))
		mxl := new(big.Int).And(misa, mask)
		mxl.Rsh(mxl, uint(xlen-2))
		if mxl.Int64() == int64(i+1) {
			return xlen
		}
	}
	return 0
}

// MisaString renders misa as "RV64IMAFDC".
func MisaString(misa *big.Int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "RV%d", MisaXLEN(misa))
	for i := 0; i < 26; i++ {
		if misa.Bit(i) == 1 {
			b.WriteByte(byte('A' + i))
		}
	}
	return b.String()
}
