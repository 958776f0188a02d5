// Package suite holds the debug tests rvdebug runs against a target.
package suite

import (
	"math/big"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdb"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/harness"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

// All returns every test in a stable order. ExamineTarget is not included;
// the runner adds it when needed.
func All() []harness.Definition {
	return []harness.Definition{
		SimpleRegister{Reg: "s0"},
		SimpleRegister{Reg: "s1"},
		SimpleRegister{Reg: "t0"},
		SimpleRegister{Reg: "t1"},
		MemTest{Size: 1, Type: "char"},
		MemTest{Size: 2, Type: "short"},
		MemTest{Size: 4, Type: "int"},
		MemTest{Size: 8, Type: "long long"},
		MemTestBlock{},
		InstantChangePc{},
		ThreadsListed{},
		UserInterrupt{},
		OpenOCDReg{},
	}
}

// expectUint prints expr and compares it with want.
func expectUint(s *gdb.Session, expr string, want uint64) error {
	v, err := s.P(expr)
	if err != nil {
		return err
	}
	if v.Int == nil {
		return outcome.Failf("%s is %s, not an integer", expr, v)
	}
	if v.Int.Cmp(new(big.Int).SetUint64(want)) != 0 {
		return outcome.Failf("%s: 0x%x != 0x%x", expr, v.Int, want)
	}
	return nil
}

// debugProgram is the C program most execution tests load. malloc is
// linked in so gdb can call functions.
var debugProgram = []string{
	"programs/debug.c", "programs/checksum.c", "programs/tiny-malloc.c",
	"-DDEFINE_MALLOC", "-DDEFINE_FREE",
}

// debugExitStatus is the checksum debug.c exits with when left alone.
const debugExitStatus = 0xc86455d4

// debugTest loads debugProgram and stops at _exit.
type debugTest struct{}

func (debugTest) CompileArgs() []string { return debugProgram }

func (debugTest) Setup(t *harness.T) error {
	s := t.GDB()
	if err := s.Load(); err != nil {
		return err
	}
	_, err := s.B("_exit")
	return err
}

// exit runs to the _exit breakpoint and checks the exit status.
func (debugTest) exit(s *gdb.Session, status uint64) error {
	out, err := s.C()
	if err != nil {
		return err
	}
	if err := outcome.First(
		outcome.In("Breakpoint", out),
		outcome.In("_exit", out),
	); err != nil {
		return err
	}
	return expectUint(s, "status", status)
}
