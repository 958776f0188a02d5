// Package gdb drives one or more gdb processes connected to the harts of a
// target. Every command waits for the "(gdb)" prompt with a timeout scaled
// by the caller's estimate of how much work gdb has to do.
package gdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/expect"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

const DefaultCommand = "riscv64-unknown-elf-gdb"

var (
	promptRe  = regexp.MustCompile(`\(gdb\)`)
	newlineRe = regexp.MustCompile(`\n`)
)

// resetDelays perturbs the adapter's reset timing between commands. The
// values are pairwise coprime so consecutive runs do not line up.
var resetDelays = [...]int{
	127, 181, 17, 13, 83, 151, 31, 67, 131, 167, 23, 41, 61,
	11, 149, 107, 163, 73, 47, 43, 173, 7, 109, 101, 103, 191, 2, 139,
	97, 193, 157, 3, 29, 79, 113, 5, 89, 19, 37, 71, 179, 59, 137, 53,
}

// Config describes the gdb processes of a session. Ports, Binaries and
// Systems are indexed by child.
type Config struct {
	// Command is split on whitespace. Defaults to DefaultCommand.
	Command string
	Env     []string
	Ports   []int
	// Binaries holds the symbol file per child; empty entries load none.
	Binaries []string
	// Systems names the memory system each child's harts share, so
	// SystemCommand runs once per system.
	Systems []string

	// Timeout is the budget of a command with ops=1.
	Timeout time.Duration
	// RemoteTimeout is passed to "set remotetimeout", in seconds.
	RemoteTimeout int
	// NoResetDelays suppresses the "monitor riscv reset_delays" directive
	// for servers that do not understand it.
	NoResetDelays bool

	LogDir string
	// LogNames, when set, receives the path of every gdb log as it is
	// created.
	LogNames io.Writer
	// Pipes runs gdb on pipes instead of a pseudo-terminal.
	Pipes bool
}

// ChildState is what a gdb process is doing, as far as the session knows.
type ChildState int

const (
	StateAttached ChildState = iota
	StateHalted
	StateRunning
)

func (s ChildState) String() string {
	switch s {
	case StateAttached:
		return "attached"
	case StateHalted:
		return "halted"
	case StateRunning:
		return "running"
	}
	return fmt.Sprintf("ChildState(%d)", int(s))
}

type child struct {
	*expect.Child
	index   int
	port    int
	binary  string
	system  string
	logPath string
	log     *os.File
	state   ChildState
}

func (c *child) String() string { return fmt.Sprintf("gdb@%d", c.port) }

type hartEntry struct {
	child  *child
	thread gdbvalue.Thread
	solo   bool
}

// Session is a set of gdb children and the harts they expose. It is driven
// by a single goroutine.
type Session struct {
	cfg      Config
	children []*child
	active   *child
	harts    map[int]hartEntry

	delayIndex int
}

// New starts one gdb per port and configures it. No target is attached
// until Connect.
func New(ctx context.Context, cfg Config) (*Session, error) {
	if len(cfg.Ports) == 0 {
		return nil, errors.New("gdb: no ports")
	}
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	argv := strings.Fields(cfg.Command)

	s := &Session{cfg: cfg, harts: make(map[int]hartEntry)}
	for i, port := range cfg.Ports {
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, err
		}
		c, err := s.spawn(i, port, argv)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.children = append(s.children, c)
		s.active = c
		if err := s.setup(); err != nil {
			s.Close()
			return nil, fmt.Errorf("%s: %w", c, err)
		}
	}
	s.active = s.children[0]
	return s, nil
}

func (s *Session) spawn(i, port int, argv []string) (*child, error) {
	log, err := os.CreateTemp(s.cfg.LogDir, fmt.Sprintf("gdb@%d-*.log", port))
	if err != nil {
		return nil, fmt.Errorf("gdb: create log: %w", err)
	}
	if s.cfg.LogNames != nil {
		fmt.Fprintf(s.cfg.LogNames, "Temporary gdb log: %s\n", log.Name())
	}
	proc, err := expect.Spawn(argv, expect.SpawnOptions{
		PTY: !s.cfg.Pipes,
		Env: s.cfg.Env,
		Log: log,
	})
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("gdb: %w", err)
	}
	c := &child{Child: proc, index: i, port: port, logPath: log.Name(), log: log}
	if i < len(s.cfg.Binaries) {
		c.binary = s.cfg.Binaries[i]
	}
	if i < len(s.cfg.Systems) {
		c.system = s.cfg.Systems[i]
	}
	glog.Infof("gdb: started %s, log %s", c, c.logPath)
	return c, nil
}

func (s *Session) setup() error {
	if _, err := s.active.Expect(promptRe, s.cfg.Timeout); err != nil {
		return fmt.Errorf("waiting for first prompt: %w", err)
	}
	cmds := []string{
		"set style enabled off",
		"set confirm off",
		"set width 0",
		"set height 0",
		"set print entry-values no",
		fmt.Sprintf("set remotetimeout %d", int(s.cfg.Timeout/time.Second)),
	}
	if s.cfg.RemoteTimeout > 0 {
		cmds = append(cmds, fmt.Sprintf("set remotetimeout %d", s.cfg.RemoteTimeout))
	}
	for _, cmd := range cmds {
		if _, err := s.CommandOpts(cmd, Opts{ResetDelay: NoResetDelay}); err != nil {
			return err
		}
	}
	return nil
}

// Connect attaches every child to its port, loads symbols and maps each
// reported thread to a hart id. A thread named "Hart N" is hart N; any
// other thread gets one more than the largest id seen so far.
func (s *Session) Connect() error {
	return s.withEachChild(func(c *child) error {
		if _, err := s.CommandOpts(fmt.Sprintf("target extended-remote localhost:%d", c.port),
			Opts{Ops: 10, ResetDelay: NoResetDelay}); err != nil {
			return err
		}
		c.state = StateHalted
		if c.binary != "" {
			out, err := s.Command("file " + c.binary)
			if err != nil {
				return err
			}
			if err := outcome.In("Reading symbols", out); err != nil {
				return err
			}
		}
		threads, err := s.Threads()
		if err != nil {
			return err
		}
		for _, t := range threads {
			id, ok := -1, false
			if t.Name != "" {
				id, ok = gdbvalue.MatchHartName(t.Name)
			}
			if !ok {
				id = s.nextHartID()
			}
			if prev, dup := s.harts[id]; dup {
				glog.Warningf("gdb: hart %d reported by %s thread %s and %s thread %s",
					id, prev.child, prev.thread.ID, c, t.ID)
			}
			s.harts[id] = hartEntry{child: c, thread: t, solo: len(threads) == 1}
		}
		return nil
	})
}

func (s *Session) nextHartID() int {
	next := 0
	for id := range s.harts {
		if id >= next {
			next = id + 1
		}
	}
	return next
}

// Harts returns the connected hart ids in ascending order.
func (s *Session) Harts() []int {
	ids := make([]int, 0, len(s.harts))
	for id := range s.harts {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SelectHart makes the gdb owning hart the active one. When that gdb
// exposes more than one thread it also switches thread.
func (s *Session) SelectHart(hart int) error {
	h, ok := s.harts[hart]
	if !ok {
		return fmt.Errorf("gdb: hart %d is not connected", hart)
	}
	s.active = h.child
	if h.solo {
		return nil
	}
	out, err := s.CommandOpts("thread "+h.thread.ID, Opts{Ops: 5})
	if err != nil {
		return err
	}
	return outcome.NotIn("Unknown", out, fmt.Sprintf("selecting hart %d", hart))
}

// OneHartPerGDB reports whether every gdb exposes exactly one hart.
func (s *Session) OneHartPerGDB() bool {
	for _, h := range s.harts {
		if !h.solo {
			return false
		}
	}
	return true
}

// LogNames returns the log path of every child.
func (s *Session) LogNames() []string {
	names := make([]string, len(s.children))
	for i, c := range s.children {
		names[i] = c.logPath
	}
	return names
}

// State reports the active child's state.
func (s *Session) State() ChildState { return s.active.state }

// withChild runs fn with c active and restores the previous active child.
func (s *Session) withChild(c *child, fn func() error) error {
	saved := s.active
	s.active = c
	defer func() { s.active = saved }()
	return fn()
}

func (s *Session) withEachChild(fn func(c *child) error) error {
	for _, c := range s.children {
		if err := s.withChild(c, func() error { return fn(c) }); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect detaches every child from its target.
func (s *Session) Disconnect() error {
	return s.withEachChild(func(c *child) error {
		_, err := s.Command("disconnect")
		c.state = StateAttached
		return err
	})
}

// Close terminates every child. It is safe to call more than once.
func (s *Session) Close() error {
	for _, c := range s.children {
		c.Child.Close()
		c.log.Close()
	}
	return nil
}
