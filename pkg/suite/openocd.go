package suite

import (
	"fmt"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/harness"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/target"
)

// OpenOCDReg halts the target from the server console and reads the
// register file there.
type OpenOCDReg struct{}

func (OpenOCDReg) Name() string      { return "OpenOCDReg" }
func (OpenOCDReg) UsesConsole() bool { return true }

func (OpenOCDReg) EarlyApplicable(tgt *target.Target) bool {
	return tgt.OpenOCDConfig != ""
}

func (OpenOCDReg) Run(t *harness.T) error {
	cli := t.CLI()
	if _, err := cli.Command("halt"); err != nil {
		return err
	}
	out, err := cli.Command("reg")
	if err != nil {
		return err
	}
	return outcome.Regex(out, fmt.Sprintf(`x18 \(/%d\): 0x[0-9A-Fa-f]+`, t.Hart().XLEN))
}
