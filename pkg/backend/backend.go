// Package backend starts the processes a debug test talks to: instruction
// set simulators, HDL simulators, the remote bit-bang relay and OpenOCD.
package backend

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/process"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/target"
)

// Readiness markers scraped from backend logs.
var (
	SpikeReady        = regexp.MustCompile(`Listening for remote bitbang connection on port (\d+)`)
	RelayReady        = regexp.MustCompile(`Listening on port (\d+)`)
	VCSReady          = regexp.MustCompile(`(?m)^Listening on port (\d+)\r?$`)
	OpenOCDGDBPort    = regexp.MustCompile(`Listening on port (\d+) for gdb connections`)
	OpenOCDReady      = regexp.MustCompile(`telnet server disabled`)
	OpenOCDTelnetPort = regexp.MustCompile(`Listening on port (\d+) for telnet connections`)
	openocdSMPRegex   = regexp.MustCompile(`target smp`)
)

// Options are shared by every backend a run starts.
type Options struct {
	// SimCmd replaces the simulator executable (spike or simv).
	SimCmd string
	// ServerCmd replaces "openocd".
	ServerCmd string
	// RelayCmd starts the bit-bang relay. Defaults to this executable's
	// daisychain command.
	RelayCmd string
	LogDir   string
	// LogNames, when set, receives each log path as it is created.
	LogNames io.Writer
	Compiler *target.Compiler
	// Debug enables the backends' own verbose output.
	Debug bool
}

func (o Options) announce(kind, path string) {
	if o.LogNames != nil {
		fmt.Fprintf(o.LogNames, "Temporary %s log: %s\n", kind, path)
	}
}

func commandOr(cmd string, def ...string) []string {
	if f := strings.Fields(cmd); len(f) > 0 {
		return f
	}
	return def
}

func relayCommand(cmd string) []string {
	if f := strings.Fields(cmd); len(f) > 0 {
		return f
	}
	self, err := os.Executable()
	if err != nil {
		self = "rvdebug"
	}
	return []string{self, "daisychain"}
}

// Strategy brings up a target according to its backend section. The
// simulator's connection details are handed to the server through the
// environment, as OpenOCD configs expect.
type Strategy struct {
	t    *target.Target
	opts Options
	env  []string
}

var _ target.Strategy = (*Strategy)(nil)

// ForTarget returns the strategy for t.
func ForTarget(t *target.Target, opts Options) *Strategy {
	return &Strategy{t: t, opts: opts}
}

// Env returns the variables the last Create exported for the server.
func (s *Strategy) Env() []string { return append([]string(nil), s.env...) }

// Create starts the simulator, if the target has one.
func (s *Strategy) Create(ctx context.Context) (target.Instance, error) {
	b := s.t.Backend
	switch b.Kind {
	case "":
		return nil, nil
	case "spike":
		harts, err := s.t.HartsByIndex(b.Harts)
		if err != nil {
			return nil, err
		}
		sp, err := StartSpike(ctx, s.t, harts, b, s.opts)
		if err != nil {
			return nil, err
		}
		s.env = sp.Env()
		return sp, nil
	case "multispike":
		ms, err := StartMultiSpike(ctx, s.t, s.opts)
		if err != nil {
			return nil, err
		}
		s.env = ms.Env()
		return ms, nil
	case "vcs":
		v, err := StartVCS(ctx, s.opts, 300*time.Second)
		if err != nil {
			return nil, err
		}
		s.env = v.Env()
		return v, nil
	}
	return nil, fmt.Errorf("target %s: unknown backend %q", s.t.Name, b.Kind)
}

// Server starts OpenOCD with the target's config.
func (s *Strategy) Server(ctx context.Context, so target.ServerOptions) (target.Server, error) {
	return StartOpenOCD(ctx, OpenOCDConfig{
		Command:  s.opts.ServerCmd,
		Config:   s.t.OpenOCDConfig,
		Env:      s.env,
		FreeRTOS: so.FreeRTOS,
		CLI:      so.CLI,
		Debug:    s.opts.Debug,
		Timeout:  time.Duration(s.t.ServerTimeoutSec) * time.Second,
		LogDir:   s.opts.LogDir,
		LogNames: s.opts.LogNames,
	})
}

func startLogged(ctx context.Context, kind string, opts Options, spec process.Spec) (*process.Process, error) {
	spec.LogDir = opts.LogDir
	spec.OnLog = func(path string) { opts.announce(kind, path) }
	return process.Spawn(ctx, spec)
}
