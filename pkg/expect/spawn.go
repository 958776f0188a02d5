package expect

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/term/termios"
	"golang.org/x/sys/unix"
)

// SpawnOptions configure a child process console.
type SpawnOptions struct {
	// PTY runs the child on a pseudo-terminal so it behaves as it would
	// interactively. Otherwise stdin and stdout/stderr are pipes.
	PTY bool
	Env []string
	Dir string
	// Log receives a "+ argv" header and all traffic.
	Log io.Writer
	// Grace is how long Close waits for the child after closing its input
	// before signalling it. Defaults to one second.
	Grace time.Duration
}

// Child is a console attached to a spawned process.
type Child struct {
	*Console
	cmd   *exec.Cmd
	grace time.Duration

	waited  chan struct{}
	waitErr error

	closeOnce sync.Once
	files     []io.Closer
}

// Spawn starts argv and attaches a console to it.
func Spawn(argv []string, opts SpawnOptions) (*Child, error) {
	if len(argv) == 0 {
		return nil, errors.New("expect: empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = opts.Env
	cmd.Dir = opts.Dir
	if opts.Log != nil {
		fmt.Fprintf(opts.Log, "+ %s\n", strings.Join(argv, " "))
	}

	ch := &Child{cmd: cmd, grace: opts.Grace, waited: make(chan struct{})}
	if ch.grace <= 0 {
		ch.grace = time.Second
	}

	var r io.Reader
	var w io.Writer
	copts := Options{Log: opts.Log}
	if opts.PTY {
		ptm, pts, err := termios.Pty()
		if err != nil {
			return nil, fmt.Errorf("expect: open pty: %w", err)
		}
		cmd.Stdin, cmd.Stdout, cmd.Stderr = pts, pts, pts
		cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true, Setctty: true, Ctty: 0}
		if err := cmd.Start(); err != nil {
			ptm.Close()
			pts.Close()
			return nil, fmt.Errorf("expect: start %s: %w", argv[0], err)
		}
		pts.Close()
		r, w = ptm, ptm
		ch.files = []io.Closer{ptm}
		copts.Echo = true
	} else {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return nil, err
		}
		pr, pw, err := os.Pipe()
		if err != nil {
			return nil, err
		}
		cmd.Stdout, cmd.Stderr = pw, pw
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			pr.Close()
			pw.Close()
			return nil, fmt.Errorf("expect: start %s: %w", argv[0], err)
		}
		pw.Close()
		r, w = pr, stdin
		ch.files = []io.Closer{stdin, pr}
		copts.Interrupt = func() error {
			return unix.Kill(cmd.Process.Pid, unix.SIGINT)
		}
	}
	glog.V(1).Infof("expect: started %v as pid %d", argv, cmd.Process.Pid)

	ch.Console = New(r, w, copts)
	go ch.wait()
	return ch, nil
}

func (c *Child) wait() {
	c.waitErr = c.cmd.Wait()
	close(c.waited)
}

// Pid returns the child's process id.
func (c *Child) Pid() int { return c.cmd.Process.Pid }

// Exited is closed once the child has been reaped.
func (c *Child) Exited() <-chan struct{} { return c.waited }

// ExitErr returns the child's exit status once Exited is closed.
func (c *Child) ExitErr() error {
	<-c.waited
	return c.waitErr
}

// Close ends the child: its input is closed, then after the grace period the
// process group gets SIGTERM and finally SIGKILL. Errors are logged, not
// returned, so teardown always completes.
func (c *Child) Close() error {
	c.closeOnce.Do(func() {
		c.Console.Close()
		c.files[0].Close()
		if !c.waitFor(c.grace) {
			c.signal(unix.SIGTERM)
			if !c.waitFor(c.grace) {
				c.signal(unix.SIGKILL)
				c.waitFor(c.grace)
			}
		}
		for _, f := range c.files[1:] {
			f.Close()
		}
	})
	return nil
}

func (c *Child) waitFor(d time.Duration) bool {
	select {
	case <-c.waited:
		return true
	case <-time.After(d):
		return false
	}
}

func (c *Child) signal(sig unix.Signal) {
	pid := c.cmd.Process.Pid
	if err := unix.Kill(-pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		glog.Warningf("expect: signal %v to process group %d: %v", sig, pid, err)
	}
}

// Dial opens a console over TCP, e.g. a debug adapter's command console.
// wrap, when non-nil, filters the inbound stream.
func Dial(ctx context.Context, addr string, log io.Writer, wrap func(io.Reader) io.Reader) (*Console, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("expect: dial %s: %w", addr, err)
	}
	var r io.Reader = conn
	if wrap != nil {
		r = wrap(conn)
	}
	return New(r, conn, Options{Log: log, Closer: conn}), nil
}
