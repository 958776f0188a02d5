package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/backend"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdb"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/target"
)

// T is the state of one running test. Everything it starts is stopped when
// the test ends, whatever the outcome.
type T struct {
	ctx  context.Context
	c    *Context
	def  Definition
	hart *target.Hart
	log  io.Writer

	binaries []string
	instance target.Instance
	server   target.Server
	gdb      *gdb.Session
	cli      *backend.CLI
	cliLog   *os.File
	logs     []string
}

func newT(ctx context.Context, c *Context, def Definition, hart *target.Hart, log io.Writer) *T {
	if hart == nil {
		hart = c.pickHart()
	}
	return &T{ctx: ctx, c: c, def: def, hart: hart, log: log}
}

func (t *T) Context() context.Context { return t.ctx }
func (t *T) Name() string             { return t.def.Name() }
func (t *T) Target() *target.Target   { return t.c.Target }

// Hart is the hart the test is about.
func (t *T) Hart() *target.Hart { return t.hart }

// Binaries holds the compiled program per hart, if the test compiles one.
func (t *T) Binaries() []string { return t.binaries }

// GDB is the attached session; nil for console tests.
func (t *T) GDB() *gdb.Session { return t.gdb }

// CLI is the server console of a ConsoleUser test.
func (t *T) CLI() *backend.CLI { return t.cli }

// Log is the test's log file.
func (t *T) Log() io.Writer { return t.log }

// Logf writes a line to the test's log.
func (t *T) Logf(format string, args ...any) {
	fmt.Fprintf(t.log, format+"\n", args...)
}

// run sets the test up, runs it and tears it down.
func (t *T) run() outcome.Result {
	name := t.def.Name()
	if t.c.Target.Skipped(name) || !earlyApplicable(t.def, t.c.Target) {
		return outcome.ResultNotApplicable
	}
	defer t.teardown()

	err := t.setup()
	if p, ok := t.def.(Preparer); ok && err == nil {
		err = p.Setup(t)
	}
	if err == nil {
		err = t.def.Run(t)
	}
	result := outcome.Classify(err)
	if result.Good() {
		return result
	}

	var failed *outcome.Failed
	if errors.As(err, &failed) {
		Header(t.log, "Message", '-')
		fmt.Fprintln(t.log, failed.Message)
	}
	Header(t.log, "Error", '-')
	fmt.Fprintf(t.log, "%s: %v\n", outcome.KindOf(err), err)
	if perr := t.postMortem(); perr != nil {
		Header(t.log, "postMortem Exception", '-')
		fmt.Fprintln(t.log, perr)
	}
	return result
}

func earlyApplicable(d Definition, tgt *target.Target) bool {
	if ec, ok := d.(EarlyChecker); ok {
		return ec.EarlyApplicable(tgt)
	}
	return true
}

func (t *T) compile() error {
	c, ok := t.def.(Compiled)
	if !ok {
		return nil
	}
	args := c.CompileArgs()
	if len(args) == 0 {
		return nil
	}
	t.binaries = nil
	for _, h := range t.c.Target.Harts {
		bin, err := t.c.compile(t.ctx, h, args)
		if err != nil {
			return err
		}
		t.binaries = append(t.binaries, bin)
	}
	return nil
}

func (t *T) logNames() io.Writer {
	if t.c.PrintLogNames {
		return t.c.Out
	}
	return nil
}

func (t *T) setup() error {
	if err := t.compile(); err != nil {
		return err
	}
	inst, err := t.c.Strategy.Create(t.ctx)
	if err != nil {
		return err
	}
	if inst != nil {
		t.instance = inst
		t.logs = append(t.logs, inst.LogNames()...)
	}

	console := wants(t.def, ConsoleUser.UsesConsole)
	srv, err := t.c.Strategy.Server(t.ctx, target.ServerOptions{
		FreeRTOS: wants(t.def, RTOSAware.FreeRTOS),
		CLI:      console,
	})
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	t.server = srv
	t.logs = append(t.logs, srv.LogNames()...)
	if console {
		return t.attachConsole()
	}
	return t.attachGDB()
}

func (t *T) attachConsole() error {
	cs, ok := t.server.(interface{ CLIAddr() string })
	if !ok || cs.CLIAddr() == "" {
		return errors.New("server has no command console")
	}
	f, err := os.CreateTemp(t.c.LogDir, "openocd-cli-*.log")
	if err != nil {
		return err
	}
	t.cliLog = f
	t.logs = append(t.logs, f.Name())
	cli, err := backend.DialCLI(t.ctx, cs.CLIAddr(), f)
	if err != nil {
		return err
	}
	t.cli = cli
	return nil
}

func (t *T) attachGDB() error {
	tgt := t.c.Target
	ports := t.server.GDBPorts()
	systems := make([]string, len(ports))
	for i := range systems {
		if i < len(tgt.Harts) {
			systems[i] = tgt.Harts[i].System
		}
	}
	timeout := time.Duration(tgt.TimeoutSec) * time.Second
	s, err := gdb.New(t.ctx, gdb.Config{
		Command:       t.c.GDBCommand,
		Env:           t.c.GDBEnv,
		Ports:         ports,
		Binaries:      t.binaries,
		Systems:       systems,
		Timeout:       timeout,
		RemoteTimeout: tgt.TimeoutSec,
		NoResetDelays: t.c.NoResetDelays,
		LogDir:        t.c.LogDir,
		LogNames:      t.logNames(),
		Pipes:         t.c.GDBPipes,
	})
	if err != nil {
		return err
	}
	t.gdb = s
	t.logs = append(t.logs, s.LogNames()...)
	if err := s.Connect(); err != nil {
		return err
	}
	for _, cmd := range tgt.GDBSetup {
		if _, err := s.Command(cmd); err != nil {
			return err
		}
	}
	if err := s.SelectHart(t.hart.ID); err != nil {
		return err
	}
	if wants(t.def, SingleHarted.SingleHart) {
		return t.ParkOtherHarts()
	}
	return nil
}

// postMortem records the target's state after a failure.
func (t *T) postMortem() error {
	if t.gdb == nil {
		return nil
	}
	if _, err := t.gdb.Interrupt(1); err != nil {
		return err
	}
	for _, c := range []struct {
		cmd string
		ops float64
	}{
		{"info breakpoints", 1},
		{"disassemble", 20},
		{"info registers all", 20},
		{"flush regs", 1},
		{"info threads", 20},
	} {
		if _, err := t.gdb.CommandOpts(c.cmd, gdb.Opts{Ops: c.ops, ResetDelay: gdb.NoResetDelay}); err != nil {
			return err
		}
	}
	return nil
}

// teardown stops everything in reverse order of starting and then appends
// every log collected along the way.
func (t *T) teardown() {
	if t.cli != nil {
		t.cli.Close()
	}
	if t.cliLog != nil {
		t.cliLog.Close()
	}
	if t.gdb != nil {
		t.gdb.Close()
	}
	if t.server != nil {
		t.server.Close()
	}
	if t.instance != nil {
		t.instance.Close()
	}
	glog.V(1).Infof("harness: %s torn down", t.def.Name())
	for _, name := range t.logs {
		printLog(t.log, name)
	}
	Header(t.log, "End of logs", '-')
}

// ParkOtherHarts points every other hart at loop_forever and reselects the
// test's hart.
func (t *T) ParkOtherHarts() error {
	for _, h := range t.c.Target.Harts {
		if h == t.hart {
			continue
		}
		if err := t.gdb.SelectHart(h.ID); err != nil {
			return err
		}
		if _, err := t.gdb.P("$pc=loop_forever"); err != nil {
			return err
		}
	}
	return t.gdb.SelectHart(t.hart.ID)
}

// WriteNopProgram fills the start of RAM with count nops and points pc at
// it.
func (t *T) WriteNopProgram(count int) error {
	for i := 0; i < count; i++ {
		if _, err := t.gdb.Command(fmt.Sprintf("p *((int*) 0x%x)=0x13", t.hart.RAM+uint64(i*4))); err != nil {
			return err
		}
	}
	_, err := t.gdb.P(fmt.Sprintf("$pc=0x%x", t.hart.RAM))
	return err
}

// DisablePMP gives U mode access to all of RAM. Harts without PMP
// registers are left alone.
func (t *T) DisablePMP() error {
	_, err := t.gdb.P("$pmpcfg0=0xf")
	if err == nil {
		_, err = t.gdb.P(fmt.Sprintf("$pmpaddr0=0x%x", (t.hart.RAM+t.hart.RAMSize)>>2))
	}
	var cf *gdbvalue.CouldNotFetchError
	if errors.As(err, &cf) {
		return nil
	}
	return err
}
