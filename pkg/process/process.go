// Package process starts backend processes (simulators, debug adapters,
// relays) and waits for them to report that they are ready.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"
)

const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultGrace        = 2 * time.Second
	tailLines           = 20
)

// State is where a process is in its start-up.
type State int

const (
	StateStarting State = iota
	StateReady
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Spec describes a process to start.
type Spec struct {
	Argv []string
	// Env is appended to the current environment.
	Env []string
	Dir string

	// LogDir and LogPrefix place the log file; it is named
	// <LogPrefix>-<random>.log. An empty LogDir uses the temp directory.
	LogDir    string
	LogPrefix string

	// Ready must match the log before the process counts as started. If it
	// has a capture group, the first group is recorded as a port.
	Ready *regexp.Regexp
	// PortPattern, if set, collects every port it matches (first group).
	PortPattern *regexp.Regexp

	Timeout      time.Duration
	PollInterval time.Duration
	Grace        time.Duration

	// OnLog is called with the log path as soon as the file exists, before
	// waiting for readiness.
	OnLog func(path string)
}

// Process is a started child. All its output goes to LogPath.
type Process struct {
	Argv    []string
	LogPath string

	cmd   *exec.Cmd
	log   *os.File
	stdin io.WriteCloser
	grace time.Duration

	mu    sync.Mutex
	state State
	ports []int

	exited  chan struct{}
	exitErr error

	closeOnce sync.Once
}

// Spawn starts spec.Argv and blocks until spec.Ready shows up in its log.
// When it does not, the process is torn down and the error is an
// *EarlyExitError or a *TimeoutError.
func Spawn(ctx context.Context, spec Spec) (*Process, error) {
	if len(spec.Argv) == 0 {
		return nil, errors.New("process: empty command")
	}
	prefix := spec.LogPrefix
	if prefix == "" {
		prefix = baseName(spec.Argv[0])
	}
	logFile, err := openLog(spec.LogDir, prefix)
	if err != nil {
		return nil, err
	}
	if spec.OnLog != nil {
		spec.OnLog(logFile.Name())
	}
	fmt.Fprintf(logFile, "+ %s\n", strings.Join(spec.Argv, " "))

	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("process: stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("process: start %s: %w", spec.Argv[0], err)
	}
	glog.Infof("process: started %s as pid %d, log %s", spec.Argv[0], cmd.Process.Pid, logFile.Name())

	p := &Process{
		Argv:    spec.Argv,
		LogPath: logFile.Name(),
		cmd:     cmd,
		log:     logFile,
		stdin:   stdin,
		grace:   spec.Grace,
		state:   StateStarting,
		exited:  make(chan struct{}),
	}
	if p.grace <= 0 {
		p.grace = DefaultGrace
	}
	go p.wait()

	if err := p.waitReady(ctx, spec); err != nil {
		p.setState(StateFailed)
		p.Close()
		return nil, err
	}
	return p, nil
}

// openLog creates a uniquely named log and reopens it append-only, so the
// header, the child and anyone else writing to it never overwrite each other.
func openLog(dir, prefix string) (*os.File, error) {
	f, err := os.CreateTemp(dir, prefix+"-*.log")
	if err != nil {
		return nil, fmt.Errorf("process: create log: %w", err)
	}
	name := f.Name()
	f.Close()
	f, err = os.OpenFile(name, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("process: open log: %w", err)
	}
	return f, nil
}

func baseName(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func (p *Process) wait() {
	p.exitErr = p.cmd.Wait()
	close(p.exited)
}

func (p *Process) waitReady(ctx context.Context, spec Spec) error {
	if spec.Ready == nil {
		p.setState(StateReady)
		return nil
	}
	interval := spec.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var deadline <-chan time.Time
	if spec.Timeout > 0 {
		t := time.NewTimer(spec.Timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		// Sample exit before reading so a marker written just before
		// exiting still counts.
		exited := p.hasExited()
		data, err := os.ReadFile(p.LogPath)
		if err != nil {
			return fmt.Errorf("process: read log: %w", err)
		}
		text := string(data)
		if m := spec.Ready.FindStringSubmatch(text); m != nil {
			p.recordPorts(text, spec.PortPattern, m)
			p.setState(StateReady)
			glog.Infof("process: %s ready, ports %v", spec.Argv[0], p.Ports())
			return nil
		}
		if exited {
			return &EarlyExitError{
				Argv:     spec.Argv,
				ExitCode: exitCode(p.exitErr),
				LogPath:  p.LogPath,
				Tail:     lastLines(text, tailLines),
			}
		}

		select {
		case <-ticker.C:
		case <-p.exited:
		case <-deadline:
			data, _ := os.ReadFile(p.LogPath)
			return &TimeoutError{
				Argv:    spec.Argv,
				Timeout: spec.Timeout,
				Pattern: spec.Ready.String(),
				LogPath: p.LogPath,
				Tail:    lastLines(string(data), tailLines),
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

func (p *Process) recordPorts(text string, pattern *regexp.Regexp, ready []string) {
	var ports []int
	if pattern != nil {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			if len(m) > 1 {
				if n, err := strconv.Atoi(m[1]); err == nil {
					ports = append(ports, n)
				}
			}
		}
	}
	if len(ports) == 0 && len(ready) > 1 {
		if n, err := strconv.Atoi(ready[1]); err == nil {
			ports = append(ports, n)
		}
	}
	p.mu.Lock()
	p.ports = ports
	p.mu.Unlock()
}

func exitCode(err error) int {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

func (p *Process) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// State reports the current start-up state.
func (p *Process) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Ports returns the ports scraped from the log, in order of appearance.
func (p *Process) Ports() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.ports...)
}

// Port returns the first scraped port, or 0.
func (p *Process) Port() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ports) == 0 {
		return 0
	}
	return p.ports[0]
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.cmd.Process.Pid }

// Exited is closed once the process has been reaped.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Close stops the process: SIGTERM to its process group, then SIGKILL if it
// is still around after the grace period. It is idempotent and never fails.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.stdin.Close()
		if !p.hasExited() {
			p.signal(unix.SIGTERM)
			select {
			case <-p.exited:
			case <-time.After(p.grace):
				glog.Warningf("process: %s ignored SIGTERM for %s, killing", p.Argv[0], p.grace)
				p.signal(unix.SIGKILL)
				select {
				case <-p.exited:
				case <-time.After(p.grace):
					glog.Errorf("process: pid %d did not exit after SIGKILL", p.Pid())
				}
			}
		}
		p.log.Close()
		p.mu.Lock()
		if p.state == StateReady {
			p.state = StateStopped
		}
		p.mu.Unlock()
	})
	return nil
}

func (p *Process) signal(sig unix.Signal) {
	pid := p.cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		glog.Warningf("process: signal %v to group %d: %v", sig, pid, err)
	}
}
