package suite

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/harness"
)

// SimpleRegister writes random values to a GPR across single steps over
// nops and reads them back.
type SimpleRegister struct {
	Reg string
}

func (r SimpleRegister) Name() string           { return fmt.Sprintf("Simple%sTest", strings.ToUpper(r.Reg)) }
func (SimpleRegister) SingleHart() bool         { return true }
func (SimpleRegister) Setup(t *harness.T) error { return t.WriteNopProgram(3) }

func (r SimpleRegister) Run(t *harness.T) error {
	s := t.GDB()
	mask := ^uint64(0)
	if xlen := t.Hart().XLEN; xlen < 64 {
		mask = 1<<uint(xlen) - 1
	}
	for _, v := range []uint64{rand.Uint64() & mask, rand.Uint64() & mask} {
		if _, err := s.P(fmt.Sprintf("$%s=0x%x", r.Reg, v)); err != nil {
			return err
		}
		if _, err := s.Stepi(); err != nil {
			return err
		}
		if err := expectUint(s, "$"+r.Reg, v); err != nil {
			return err
		}
	}
	return nil
}

// InstantChangePc moves pc right after reset and steps through nops.
type InstantChangePc struct{}

func (InstantChangePc) Name() string { return "InstantChangePc" }

func (InstantChangePc) Run(t *harness.T) error {
	if err := t.WriteNopProgram(3); err != nil {
		return err
	}
	s := t.GDB()
	ram := t.Hart().RAM
	for _, want := range []uint64{ram + 4, ram + 8} {
		if _, err := s.Stepi(); err != nil {
			return err
		}
		if err := expectUint(s, "$pc", want); err != nil {
			return err
		}
	}
	return nil
}
