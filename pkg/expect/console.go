// Package expect drives line-oriented consoles: read until a pattern shows
// up, with every wait bounded by an explicit timeout.
package expect

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sync"
	"time"

	"github.com/golang/glog"
)

var (
	// ErrTimeout is matched by *TimeoutError.
	ErrTimeout = errors.New("expect: timeout")
	// ErrClosed is returned once the stream has ended and the buffer holds no
	// match.
	ErrClosed = errors.New("expect: stream closed")
)

// TimeoutError carries the output that arrived without matching.
type TimeoutError struct {
	Pattern string
	Timeout time.Duration
	Buffer  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("expect: timed out after %s waiting for %q; got %q", e.Timeout, e.Pattern, tail(e.Buffer, 512))
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// Match is the result of a successful Expect.
type Match struct {
	// Before is the output preceding the match.
	Before string
	// Text is the matched text; Groups holds submatches, Groups[0] == Text.
	Text   string
	Groups []string
}

// Options configure a Console.
type Options struct {
	// Log receives everything read and written.
	Log io.Writer
	// Interrupt overrides the default interrupt, which writes 0x03.
	Interrupt func() error
	// Closer is closed by Close after the reader stops being useful.
	Closer io.Closer
	// Echo records that the peer echoes input back, as a terminal does.
	Echo bool
}

// Console is a read-until-marker wrapper around a byte stream. It is meant
// for a single controlling goroutine.
type Console struct {
	w    io.Writer
	log  *lockedWriter
	opts Options

	data chan []byte
	done chan struct{}
	buf  []byte
	eof  bool

	closeOnce sync.Once
	closeErr  error
}

// New starts reading r in the background. Writes go to w.
func New(r io.Reader, w io.Writer, opts Options) *Console {
	c := &Console{
		w:    w,
		log:  &lockedWriter{w: opts.Log},
		opts: opts,
		data: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	go c.read(r)
	return c
}

func (c *Console) read(r io.Reader) {
	defer close(c.data)
	for {
		p := make([]byte, 4096)
		n, err := r.Read(p)
		if n > 0 {
			c.log.Write(p[:n])
			select {
			case c.data <- p[:n]:
			case <-c.done:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				glog.V(2).Infof("expect: read ended: %v", err)
			}
			return
		}
	}
}

// Echo reports whether the peer echoes input.
func (c *Console) Echo() bool { return c.opts.Echo }

// Expect waits until re matches the unread output, consuming output through
// the end of the match. A non-positive timeout only checks what has already
// arrived.
func (c *Console) Expect(re *regexp.Regexp, timeout time.Duration) (Match, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}
	for {
		if m, ok := c.match(re); ok {
			return m, nil
		}
		if c.eof {
			return Match{Before: c.take(len(c.buf))}, ErrClosed
		}
		if timer == nil {
			if !c.drain() && !c.eof {
				return Match{}, &TimeoutError{Pattern: re.String(), Buffer: string(c.buf)}
			}
			continue
		}
		select {
		case p, ok := <-c.data:
			if !ok {
				c.eof = true
				continue
			}
			c.buf = append(c.buf, p...)
		case <-timer:
			return Match{}, &TimeoutError{Pattern: re.String(), Timeout: timeout, Buffer: string(c.buf)}
		}
	}
}

// drain moves whatever is queued into the buffer without blocking.
func (c *Console) drain() bool {
	got := false
	for {
		select {
		case p, ok := <-c.data:
			if !ok {
				c.eof = true
				return got
			}
			c.buf = append(c.buf, p...)
			got = true
		default:
			return got
		}
	}
}

func (c *Console) match(re *regexp.Regexp) (Match, bool) {
	loc := re.FindSubmatchIndex(c.buf)
	if loc == nil {
		return Match{}, false
	}
	groups := make([]string, len(loc)/2)
	for i := range groups {
		if loc[2*i] >= 0 {
			groups[i] = string(c.buf[loc[2*i]:loc[2*i+1]])
		}
	}
	m := Match{Before: string(c.buf[:loc[0]]), Text: groups[0], Groups: groups}
	c.take(loc[1])
	return m, true
}

func (c *Console) take(n int) string {
	s := string(c.buf[:n])
	c.buf = append(c.buf[:0], c.buf[n:]...)
	return s
}

// ExpectString waits for a literal string.
func (c *Console) ExpectString(s string, timeout time.Duration) (Match, error) {
	return c.Expect(regexp.MustCompile(regexp.QuoteMeta(s)), timeout)
}

// Pending returns output received but not yet consumed.
func (c *Console) Pending() string {
	c.drain()
	return string(c.buf)
}

// Send writes s verbatim.
func (c *Console) Send(s string) error {
	c.log.Write([]byte(s))
	if _, err := io.WriteString(c.w, s); err != nil {
		return fmt.Errorf("expect: send: %w", err)
	}
	return nil
}

// SendLine writes s followed by a newline.
func (c *Console) SendLine(s string) error {
	return c.Send(s + "\n")
}

// Interrupt delivers an out-of-band interrupt.
func (c *Console) Interrupt() error {
	if c.opts.Interrupt != nil {
		return c.opts.Interrupt()
	}
	return c.Send("\x03")
}

// Log writes a note into the console's log only.
func (c *Console) Log(format string, args ...any) {
	fmt.Fprintf(c.log, format, args...)
}

// Close closes the underlying stream. It is safe to call more than once.
func (c *Console) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.opts.Closer != nil {
			c.closeErr = c.opts.Closer.Close()
		}
	})
	return c.closeErr
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	if l.w == nil {
		return len(p), nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
