package suite

import (
	"strings"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/harness"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/target"
)

// ExamineTarget reads misa from every hart, checks it against the
// configured XLEN and records it for later tests.
type ExamineTarget struct{}

func (ExamineTarget) Name() string { return "ExamineTarget" }

func (ExamineTarget) Run(t *harness.T) error {
	s := t.GDB()
	var summary []string
	for _, h := range t.Target().Harts {
		if err := s.SelectHart(h.ID); err != nil {
			return err
		}
		v, err := s.P("$misa")
		if err != nil {
			return err
		}
		if v.Int == nil {
			return outcome.Failf("$misa is %s", v)
		}
		misa := v.Int
		xlen := target.MisaXLEN(misa)
		if xlen == 0 {
			return outcome.Failf("Couldn't determine XLEN from $misa (0x%x)", misa)
		}
		if xlen != h.XLEN {
			return outcome.Failf("MISA reported XLEN of %d but we were expecting XLEN of %d", xlen, h.XLEN)
		}
		if h.Misa() == nil {
			if err := h.SetMisa(misa); err != nil {
				return err
			}
		}
		summary = append(summary, target.MisaString(misa))
	}
	t.Logf("%s", strings.Join(summary, " "))
	return nil
}
