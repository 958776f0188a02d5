package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/process"
)

// VCS is an HDL simulation exposing JTAG through jtag_vpi.
type VCS struct {
	proc *process.Process
	Port int
}

// VCSArgs builds the simulator command line.
func VCSArgs(simCmd string, debug bool) []string {
	argv := commandOr(simCmd, "simv")
	argv = append(argv, "+jtag_vpi_enable")
	if debug {
		argv[0] += "-debug"
		argv = append(argv, "+vcdplusfile=output/gdbserver.vpd")
	}
	return argv
}

// StartVCS starts the simulation and waits for its jtag_vpi port.
func StartVCS(ctx context.Context, opts Options, timeout time.Duration) (*VCS, error) {
	p, err := startLogged(ctx, "VCS", opts, process.Spec{
		Argv:         VCSArgs(opts.SimCmd, opts.Debug),
		LogPrefix:    "simv",
		Ready:        VCSReady,
		Timeout:      timeout,
		PollInterval: time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &VCS{proc: p, Port: p.Port()}, nil
}

// Env points the server at the simulation.
func (v *VCS) Env() []string {
	return []string{fmt.Sprintf("JTAG_VPI_PORT=%d", v.Port)}
}

func (v *VCS) LogNames() []string { return []string{v.proc.LogPath} }

func (v *VCS) Close() error { return v.proc.Close() }
