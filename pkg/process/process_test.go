package process

import (
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

var spikeReady = regexp.MustCompile(`Listening for remote bitbang connection on port (\d+)`)

func shSpec(t *testing.T, script string) Spec {
	return Spec{
		Argv:         []string{"sh", "-c", script},
		LogDir:       t.TempDir(),
		LogPrefix:    "sim",
		Ready:        spikeReady,
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		Grace:        200 * time.Millisecond,
	}
}

func TestSpawnReadyAfterNoise(t *testing.T) {
	spec := shSpec(t, `echo booting; echo "warning: something"; sleep 0.2; echo "Listening for remote bitbang connection on port 40123."; exec sleep 30`)
	p, err := Spawn(context.Background(), spec)
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, 40123, p.Port())
	assert.Equal(t, []int{40123}, p.Ports())

	data, err := os.ReadFile(p.LogPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "+ sh -c "), "log header missing: %q", data)
	assert.Contains(t, p.LogPath, "sim-")
}

func TestSpawnCollectsAllPorts(t *testing.T) {
	spec := shSpec(t, `echo "Listening on port 3333 for gdb connections"; echo "Listening on port 3334 for gdb connections"; echo "telnet server disabled"; exec sleep 30`)
	spec.Ready = regexp.MustCompile(`telnet server disabled`)
	spec.PortPattern = regexp.MustCompile(`Listening on port (\d+) for gdb connections`)
	p, err := Spawn(context.Background(), spec)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, []int{3333, 3334}, p.Ports())
}

func TestSpawnEarlyExit(t *testing.T) {
	spec := shSpec(t, `echo "error: no such isa"; exit 3`)
	start := time.Now()
	_, err := Spawn(context.Background(), spec)
	require.Error(t, err)
	assert.Less(t, time.Since(start), spec.Timeout)

	var ee *EarlyExitError
	require.True(t, errors.As(err, &ee), "got %T: %v", err, err)
	assert.Equal(t, 3, ee.ExitCode)
	assert.Contains(t, ee.Tail, "error: no such isa")
	assert.ErrorIs(t, err, ErrEarlyExit)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, outcome.ErrReadiness)
	assert.Equal(t, outcome.KindReadiness, outcome.KindOf(err))
}

func TestSpawnAnnouncesLogOnEarlyExit(t *testing.T) {
	spec := shSpec(t, `echo "error: no such isa" >&2; exit 3`)
	var announced string
	spec.OnLog = func(path string) {
		announced = path
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
		require.NoError(t, err)
		f.WriteString("announced\n")
		f.Close()
	}
	_, err := Spawn(context.Background(), spec)
	require.ErrorIs(t, err, ErrEarlyExit)
	require.NotEmpty(t, announced)

	data, err := os.ReadFile(announced)
	require.NoError(t, err)
	log := string(data)
	assert.True(t, strings.HasPrefix(log, "announced\n+ sh -c "), "log was overwritten: %q", log)
	assert.Contains(t, log, "error: no such isa")
}

func TestSpawnTimeout(t *testing.T) {
	spec := shSpec(t, `echo "still booting"; exec sleep 30`)
	spec.Timeout = 300 * time.Millisecond
	_, err := Spawn(context.Background(), spec)
	require.Error(t, err)

	var te *TimeoutError
	require.True(t, errors.As(err, &te), "got %T: %v", err, err)
	assert.Contains(t, te.Tail, "still booting")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrEarlyExit)
	assert.ErrorIs(t, err, outcome.ErrReadiness)
}

func TestSpawnContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Spawn(ctx, shSpec(t, `exec sleep 30`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseEscalatesToKill(t *testing.T) {
	spec := shSpec(t, `trap '' TERM; echo "Listening for remote bitbang connection on port 1"; while :; do sleep 0.05; done`)
	p, err := Spawn(context.Background(), spec)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	select {
	case <-p.Exited():
	default:
		t.Fatal("process survived Close")
	}
	assert.Equal(t, StateStopped, p.State())
	assert.NoError(t, p.Close())
}

func TestNoReadyPatternIsImmediatelyReady(t *testing.T) {
	spec := shSpec(t, `exec sleep 30`)
	spec.Ready = nil
	p, err := Spawn(context.Background(), spec)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, StateReady, p.State())
	assert.Equal(t, 0, p.Port())
}

func TestRun(t *testing.T) {
	out, err := Run(context.Background(), []string{"sh", "-c", "echo hi"}, "")
	require.NoError(t, err)
	assert.Equal(t, "hi\n", out)

	out, err = Run(context.Background(), []string{"sh", "-c", "echo bad >&2; exit 1"}, "")
	require.Error(t, err)
	assert.Equal(t, "bad\n", out)
	assert.Contains(t, err.Error(), "bad")
}

func TestTail(t *testing.T) {
	path := t.TempDir() + "/x.log"
	require.NoError(t, os.WriteFile(path, []byte("a\nb\nc\nd\n"), 0o644))
	assert.Equal(t, "c\nd", Tail(path, 2))
	assert.Equal(t, "a\nb\nc\nd", Tail(path, 10))
	assert.Equal(t, "", Tail(path+".missing", 3))
}
