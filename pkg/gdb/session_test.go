package gdb

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/expect"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

func TestMain(m *testing.M) {
	if os.Getenv("RVDEBUG_FAKE_GDB") != "" {
		os.Exit(fakeGDB(os.Stdin, os.Stdout))
	}
	os.Exit(m.Run())
}

type fixture struct {
	s      *Session
	record string
}

// commands returns every line the fake gdbs received so far.
func (f *fixture) commands(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(f.record)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func (f *fixture) since(t *testing.T, n int) []string {
	return f.commands(t)[n:]
}

func newFixture(t *testing.T, ports []int, env map[string]string, tweak func(*Config)) *fixture {
	t.Helper()
	dir := t.TempDir()
	record := filepath.Join(dir, "commands")
	environ := append(os.Environ(), "RVDEBUG_FAKE_GDB=1", "FAKE_GDB_RECORD="+record)
	for k, v := range env {
		environ = append(environ, k+"="+v)
	}
	cfg := Config{
		Command:       os.Args[0],
		Env:           environ,
		Ports:         ports,
		Timeout:       5 * time.Second,
		RemoteTimeout: 2,
		LogDir:        dir,
		Pipes:         true,
	}
	if tweak != nil {
		tweak(&cfg)
	}
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &fixture{s: s, record: record}
}

func TestNewIssuesSetupCommands(t *testing.T) {
	var names bytes.Buffer
	f := newFixture(t, []int{3333}, nil, func(c *Config) { c.LogNames = &names })

	assert.Equal(t, []string{
		"set style enabled off",
		"set confirm off",
		"set width 0",
		"set height 0",
		"set print entry-values no",
		"set remotetimeout 5",
		"set remotetimeout 2",
	}, f.commands(t))

	logs := f.s.LogNames()
	require.Len(t, logs, 1)
	assert.Contains(t, filepath.Base(logs[0]), "gdb@3333-")
	assert.Equal(t, "Temporary gdb log: "+logs[0]+"\n", names.String())
}

func TestConnectSoloHartSkipsThreadSwitch(t *testing.T) {
	f := newFixture(t, []int{3333}, nil, nil)
	n := len(f.commands(t))

	require.NoError(t, f.s.Connect())
	assert.Equal(t, []string{
		"target extended-remote localhost:3333",
		"monitor riscv reset_delays 127",
		"info threads",
	}, f.since(t, n))
	assert.Equal(t, []int{0}, f.s.Harts())
	assert.True(t, f.s.OneHartPerGDB())
	assert.Equal(t, StateHalted, f.s.State())

	n = len(f.commands(t))
	require.NoError(t, f.s.SelectHart(0))
	assert.Empty(t, f.since(t, n), "solo hart must not switch threads")
}

const twoHarts = "* 1    Thread 1 (Name: Hart 0, RTOS: hwthread) main () at main.c:5\n" +
	"  2    Thread 2 (Name: Hart 1, RTOS: hwthread) main () at main.c:5"

func TestSelectHartSwitchesThread(t *testing.T) {
	f := newFixture(t, []int{3333}, map[string]string{"FAKE_GDB_THREADS": twoHarts},
		func(c *Config) { c.NoResetDelays = true })
	require.NoError(t, f.s.Connect())
	assert.Equal(t, []int{0, 1}, f.s.Harts())
	assert.False(t, f.s.OneHartPerGDB())

	n := len(f.commands(t))
	require.NoError(t, f.s.SelectHart(1))
	require.NoError(t, f.s.SelectHart(0))
	assert.Equal(t, []string{"thread 2", "thread 1"}, f.since(t, n))

	assert.Error(t, f.s.SelectHart(7))
}

func TestSelectHartUnknownThreadFails(t *testing.T) {
	f := newFixture(t, []int{3333}, map[string]string{
		"FAKE_GDB_THREADS":        twoHarts,
		"FAKE_GDB_UNKNOWN_THREAD": "2",
	}, nil)
	require.NoError(t, f.s.Connect())

	err := f.s.SelectHart(1)
	var failed *outcome.Failed
	require.True(t, errors.As(err, &failed), "got %v", err)
	assert.Equal(t, outcome.ResultFail, outcome.Classify(err))
}

func TestConnectInfersHartIDs(t *testing.T) {
	threads := "* 1    Thread 1 (Name: cpu) main () at main.c:5\n" +
		"  2    Thread 2 (Name: Hart 5) main () at main.c:5\n" +
		"  3    Thread 3 (Name: other) main () at main.c:5"
	f := newFixture(t, []int{3333}, map[string]string{"FAKE_GDB_THREADS": threads}, nil)
	require.NoError(t, f.s.Connect())
	assert.Equal(t, []int{0, 5, 6}, f.s.Harts())
}

func TestConnectLoadsSymbols(t *testing.T) {
	f := newFixture(t, []int{3333}, nil, func(c *Config) {
		c.Binaries = []string{"/tmp/prog"}
		c.NoResetDelays = true
	})
	require.NoError(t, f.s.Connect())
	assert.Contains(t, f.commands(t), "file /tmp/prog")
}

func TestResetDelaysRotate(t *testing.T) {
	f := newFixture(t, []int{3333}, nil, nil)
	n := len(f.commands(t))
	_, err := f.s.Command("where 1")
	require.NoError(t, err)
	_, err = f.s.Command("where 1")
	require.NoError(t, err)
	_, err = f.s.CommandOpts("where 1", Opts{ResetDelay: 9})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"monitor riscv reset_delays 127", "where 1",
		"monitor riscv reset_delays 181", "where 1",
		"monitor riscv reset_delays 9", "where 1",
	}, f.since(t, n))
}

func TestPrintHelpers(t *testing.T) {
	f := newFixture(t, []int{3333}, nil, func(c *Config) { c.NoResetDelays = true })
	require.NoError(t, f.s.Connect())
	s := f.s

	pc, err := s.PUint("$pc")
	require.NoError(t, err)
	assert.Equal(t, uint64(0x80000010), pc)

	buf, err := s.P("buf")
	require.NoError(t, err)
	assert.True(t, buf.Equal(gdbvalue.ListValue(
		gdbvalue.IntValue(1), gdbvalue.IntValue(2), gdbvalue.IntValue(2), gdbvalue.IntValue(2))), "got %s", buf)

	_, err = s.PRaw("*(int*)0")
	var ca *gdbvalue.CannotAccessError
	require.True(t, errors.As(err, &ca), "got %v", err)
	assert.Equal(t, uint64(0), ca.Address)

	_, err = s.P("nosuch")
	var ns *gdbvalue.NoSymbolError
	require.True(t, errors.As(err, &ns), "got %v", err)
	assert.Equal(t, "nosuch", ns.Symbol)
	assert.Equal(t, outcome.KindProtocol, outcome.KindOf(err))

	_, err = s.PRaw("nosuch")
	require.True(t, errors.As(err, &ns), "got %v", err)
	assert.Equal(t, "nosuch", ns.Symbol)

	_, err = s.PRaw("$badreg")
	var cf *gdbvalue.CouldNotFetchError
	require.True(t, errors.As(err, &cf), "got %v", err)
	assert.Equal(t, "badreg", cf.Register)
	assert.Equal(t, outcome.KindProtocol, outcome.KindOf(err))

	ft0, err := s.PFPR("$ft0")
	require.NoError(t, err)
	assert.Equal(t, 2.5, ft0.Float)

	msg, err := s.PString("msg")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", msg)

	words, err := s.X("0x80000000", 'w', 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, words)

	n, err := s.B("main")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.B("nowhere")
	assert.Equal(t, outcome.KindAssertion, outcome.KindOf(err))
}

func TestContinueAndInterrupt(t *testing.T) {
	f := newFixture(t, []int{3333}, map[string]string{"FAKE_GDB_RUN_FOREVER": "1"},
		func(c *Config) { c.NoResetDelays = true })
	require.NoError(t, f.s.Connect())

	_, err := f.s.CWith(ContinueOpts{NoWait: true})
	require.NoError(t, err)
	assert.Equal(t, StateRunning, f.s.State())

	out, err := f.s.Interrupt(1)
	require.NoError(t, err)
	assert.Contains(t, out, "SIGINT")
	assert.True(t, stopReported(out))
	assert.Equal(t, StateHalted, f.s.State())
}

func TestStopReported(t *testing.T) {
	tests := []struct {
		out  string
		want bool
	}{
		{"Program received signal SIGINT, Interrupt.\n0x80000010 in main ()", true},
		{"Thread 2 received signal SIGINT, Interrupt.", true},
		{"Program stopped.", true},
		{"Quit", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stopReported(tt.out), "%q", tt.out)
	}
}

func TestContinueChecksOutput(t *testing.T) {
	f := newFixture(t, []int{3333}, nil, func(c *Config) { c.NoResetDelays = true })
	require.NoError(t, f.s.Connect())
	out, err := f.s.C()
	require.NoError(t, err)
	assert.Contains(t, out, "Breakpoint 1")
}

func TestCAllSendsBeforeWaiting(t *testing.T) {
	f := newFixture(t, []int{3333, 3334}, nil, func(c *Config) {
		c.NoResetDelays = true
		c.Systems = []string{"soc", "soc"}
	})
	require.NoError(t, f.s.Connect())
	assert.Equal(t, []int{0, 1}, f.s.Harts())
	assert.True(t, f.s.OneHartPerGDB())

	n := len(f.commands(t))
	require.NoError(t, f.s.CAll(true))
	assert.Equal(t, []string{"c", "c"}, f.since(t, n))

	n = len(f.commands(t))
	require.NoError(t, f.s.Load())
	assert.ElementsMatch(t, []string{
		"load", "set $pc=_start", "compare-sections", "set $pc=_start",
	}, f.since(t, n))
}

func TestContinueHardwareBreakpointFailure(t *testing.T) {
	f := newFixture(t, []int{3333, 3334}, map[string]string{"FAKE_GDB_HW_FAIL": "1"}, func(c *Config) {
		c.NoResetDelays = true
		c.Systems = []string{"soc", "soc"}
	})
	require.NoError(t, f.s.Connect())

	_, err := f.s.C()
	require.Error(t, err)
	assert.Equal(t, outcome.KindAssertion, outcome.KindOf(err))

	err = f.s.CAll(true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not insert hardware")
	assert.Equal(t, outcome.KindAssertion, outcome.KindOf(err))
	assert.Equal(t, StateHalted, f.s.State())
}

func TestCommandTimeout(t *testing.T) {
	f := newFixture(t, []int{3333}, nil, func(c *Config) { c.NoResetDelays = true })
	f.s.cfg.Timeout = 200 * time.Millisecond
	_, err := f.s.Command("hang")
	assert.ErrorIs(t, err, expect.ErrTimeout)
}
