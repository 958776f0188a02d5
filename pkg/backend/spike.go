package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/process"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/target"
)

// Spike is a running spike exposing a remote bit-bang port.
type Spike struct {
	proc *process.Process
	// Port is spike's remote bit-bang port.
	Port int
	// Binary is the idle program spike was started with.
	Binary   string
	workArea uint64
}

// SpikeArgs builds spike's command line for harts, without the program.
func SpikeArgs(simCmd string, harts []*target.Hart, b target.Backend) ([]string, error) {
	if len(harts) == 0 {
		return nil, fmt.Errorf("spike: no harts")
	}
	h0 := harts[0]
	for _, h := range harts[1:] {
		if h.XLEN != h0.XLEN {
			return nil, fmt.Errorf("spike: all harts must have the same XLEN")
		}
		if h.RAM != h0.RAM || h.RAMSize != h0.RAMSize {
			return nil, fmt.Errorf("spike: all harts must have the same RAM layout")
		}
	}

	argv := commandOr(simCmd, "spike")
	argv = append(argv, fmt.Sprintf("-p%d", len(harts)))
	isa := b.ISA
	if isa == "" {
		isa = fmt.Sprintf("RV%dG", h0.XLEN)
	}
	argv = append(argv, "--isa", isa, "--dm-auth")
	if b.ProgBufSize != nil {
		argv = append(argv, "--dm-progsize", strconv.Itoa(*b.ProgBufSize), "--dm-sba", "64")
	}
	if b.DMIRTI != nil {
		argv = append(argv, "--dmi-rti", strconv.Itoa(*b.DMIRTI))
	}
	if b.AbstractRTI != nil {
		argv = append(argv, "--dm-abstract-rti", strconv.Itoa(*b.AbstractRTI))
	}
	if b.NoAbstractCSR {
		argv = append(argv, "--dm-no-abstract-csr")
	}
	if b.NoHasel {
		argv = append(argv, "--dm-no-hasel")
	}
	if b.NoHaltGroups {
		argv = append(argv, "--dm-no-halt-groups")
	}
	if len(isa) > 2 && strings.Contains(isa[2:], "V") {
		vlen, elen := b.VLEN, b.ELEN
		if vlen == 0 {
			vlen = 128
		}
		if elen == 0 {
			elen = 64
		}
		argv = append(argv, fmt.Sprintf("--varch=vlen:%d,elen:%d", vlen, elen))
	}
	argv = append(argv, fmt.Sprintf("-m0x%x:0x%x", h0.RAM, h0.RAMSize))
	if b.Halted {
		argv = append(argv, "-H")
	}
	return append(argv, "--rbb-port", "0"), nil
}

// StartSpike builds the idle program and starts spike for harts.
func StartSpike(ctx context.Context, t *target.Target, harts []*target.Hart, b target.Backend, opts Options) (*Spike, error) {
	argv, err := SpikeArgs(opts.SimCmd, harts, b)
	if err != nil {
		return nil, err
	}
	if opts.Compiler == nil {
		return nil, fmt.Errorf("spike: no compiler configured")
	}
	bin, err := opts.Compiler.Compile(ctx, t, harts[0],
		"programs/checksum.c", "programs/tiny-malloc.c", "programs/infinite_loop.S",
		"-DDEFINE_MALLOC", "-DDEFINE_FREE")
	if err != nil {
		return nil, err
	}
	argv = append(argv, bin)

	p, err := startLogged(ctx, "spike", opts, process.Spec{
		Argv:      argv,
		LogPrefix: "spike",
		Ready:     SpikeReady,
		Timeout:   time.Duration(t.ServerTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &Spike{proc: p, Port: p.Port(), Binary: bin, workArea: harts[0].RAM}, nil
}

// Env is what a server config needs to reach this spike.
func (s *Spike) Env() []string {
	return []string{
		"REMOTE_BITBANG_HOST=localhost",
		fmt.Sprintf("REMOTE_BITBANG_PORT=%d", s.Port),
		fmt.Sprintf("WORK_AREA=0x%x", s.workArea),
	}
}

func (s *Spike) LogNames() []string { return []string{s.proc.LogPath} }

func (s *Spike) Close() error { return s.proc.Close() }

// MultiSpike chains several spikes behind one bit-bang relay so a single
// server sees them as one scan chain.
type MultiSpike struct {
	Spikes []*Spike
	relay  *process.Process
	// Port is the relay's listening port.
	Port int
}

// StartMultiSpike starts one spike per entry of the target's backend
// spikes, then the relay joining them.
func StartMultiSpike(ctx context.Context, t *target.Target, opts Options) (*MultiSpike, error) {
	ms := &MultiSpike{}
	for i, b := range t.Backend.Spikes {
		harts, err := t.HartsByIndex(b.Harts)
		if err != nil {
			ms.Close()
			return nil, err
		}
		sp, err := StartSpike(ctx, t, harts, b, opts)
		if err != nil {
			ms.Close()
			return nil, fmt.Errorf("multispike: spike %d: %w", i, err)
		}
		ms.Spikes = append(ms.Spikes, sp)
	}
	if len(ms.Spikes) == 0 {
		return nil, fmt.Errorf("multispike: target %s lists no spikes", t.Name)
	}

	argv := append(relayCommand(opts.RelayCmd), "0")
	for _, sp := range ms.Spikes {
		argv = append(argv, strconv.Itoa(sp.Port))
	}
	relay, err := startLogged(ctx, "daisychain", opts, process.Spec{
		Argv:      argv,
		LogPrefix: "daisychain",
		Ready:     RelayReady,
		Timeout:   10 * time.Second,
	})
	if err != nil {
		ms.Close()
		return nil, err
	}
	ms.relay = relay
	ms.Port = relay.Port()
	return ms, nil
}

// Env points the server at the relay.
func (ms *MultiSpike) Env() []string {
	env := []string{
		"REMOTE_BITBANG_HOST=localhost",
		fmt.Sprintf("REMOTE_BITBANG_PORT=%d", ms.Port),
	}
	if len(ms.Spikes) > 0 {
		env = append(env, fmt.Sprintf("WORK_AREA=0x%x", ms.Spikes[len(ms.Spikes)-1].workArea))
	}
	return env
}

func (ms *MultiSpike) LogNames() []string {
	var names []string
	for _, sp := range ms.Spikes {
		names = append(names, sp.LogNames()...)
	}
	if ms.relay != nil {
		names = append(names, ms.relay.LogPath)
	}
	return names
}

// Close stops the relay before the spikes behind it.
func (ms *MultiSpike) Close() error {
	if ms.relay != nil {
		ms.relay.Close()
	}
	for _, sp := range ms.Spikes {
		sp.Close()
	}
	return nil
}
