package backend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/process"
)

// OpenOCDConfig describes one OpenOCD start.
type OpenOCDConfig struct {
	Command string
	// Config is the -f file.
	Config   string
	Env      []string
	FreeRTOS bool
	// CLI enables the telnet console on a port OpenOCD picks.
	CLI      bool
	Debug    bool
	Timeout  time.Duration
	LogDir   string
	LogNames io.Writer
}

// OpenOCD is a running debug server.
type OpenOCD struct {
	proc    *process.Process
	config  string
	ports   []int
	cliPort int
}

// OpenOCDArgs builds OpenOCD's command line. The gdb port is chosen by
// OpenOCD and read back from its log; the other servers are off.
func OpenOCDArgs(cfg OpenOCDConfig) []string {
	argv := commandOr(cfg.Command, "openocd")
	if cfg.Command == "" && cfg.Debug {
		argv = append(argv, "-d")
	}
	telnet := "telnet_port disabled"
	if cfg.CLI {
		telnet = "telnet_port 0"
	}
	argv = append(argv,
		"--command", "gdb_port 0",
		"--command", "tcl_port disabled",
		"--command", telnet,
	)
	if cfg.Config != "" {
		argv = append(argv, "-f", cfg.Config)
	}
	if cfg.Debug {
		argv = append(argv, "-d")
	}
	return argv
}

// StartOpenOCD starts OpenOCD and waits until it has examined the target,
// which it signals by reporting the disabled telnet server. With CLI set it
// waits for the console's port instead; commands sent there are answered once
// initialization finishes.
func StartOpenOCD(ctx context.Context, cfg OpenOCDConfig) (*OpenOCD, error) {
	if cfg.Config != "" {
		if _, err := os.Stat(cfg.Config); err != nil {
			return nil, fmt.Errorf("openocd: config: %w", err)
		}
	}
	freertos := "USE_FREERTOS=0"
	if cfg.FreeRTOS {
		freertos = "USE_FREERTOS=1"
	}
	env := append(append([]string(nil), cfg.Env...), freertos)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	spec := process.Spec{
		Argv:        OpenOCDArgs(cfg),
		Env:         env,
		LogPrefix:   "openocd",
		Ready:       OpenOCDReady,
		PortPattern: OpenOCDGDBPort,
		Timeout:     timeout,
		Grace:       10 * time.Second,
	}
	if cfg.CLI {
		spec.Ready, spec.PortPattern = OpenOCDTelnetPort, nil
	}
	p, err := startLogged(ctx, "OpenOCD", Options{LogDir: cfg.LogDir, LogNames: cfg.LogNames}, spec)
	if err != nil {
		return nil, err
	}
	o := &OpenOCD{proc: p, config: cfg.Config}
	if cfg.CLI {
		o.cliPort = p.Port()
	} else {
		o.ports = p.Ports()
	}
	return o, nil
}

// CLIAddr is the console address, or "" when the console is disabled.
func (o *OpenOCD) CLIAddr() string {
	if o.cliPort == 0 {
		return ""
	}
	return fmt.Sprintf("localhost:%d", o.cliPort)
}

// GDBPorts lists one port per gdb target OpenOCD serves.
func (o *OpenOCD) GDBPorts() []int { return append([]int(nil), o.ports...) }

// SMP reports whether the config groups the harts with "target smp".
func (o *OpenOCD) SMP() bool {
	return ConfigIsSMP(o.config)
}

// ConfigIsSMP scans an OpenOCD config for "target smp".
func ConfigIsSMP(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if openocdSMPRegex.MatchString(sc.Text()) {
			return true
		}
	}
	return false
}

func (o *OpenOCD) LogNames() []string { return []string{o.proc.LogPath} }

func (o *OpenOCD) Close() error { return o.proc.Close() }
