package rbb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"
)

// Client talks to a single remote bit-bang TAP endpoint, e.g. a simulator's
// --rbb-port listener.
type Client struct {
	conn io.ReadWriter
	// Timeout bounds every socket round trip. Zero disables deadlines.
	Timeout time.Duration

	buf [2]byte
}

// Dial connects to a remote bit-bang endpoint.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rbb: dial %s: %w", addr, err)
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection.
func NewClient(conn io.ReadWriter) *Client {
	return &Client{conn: conn, Timeout: 10 * time.Second}
}

// arm sets the deadline for the next round trip. Connections that cannot
// take deadlines run without one.
func (c *Client) arm() error {
	if c.Timeout <= 0 {
		return nil
	}
	dl, ok := c.conn.(interface{ SetDeadline(time.Time) error })
	if !ok {
		return nil
	}
	if err := dl.SetDeadline(time.Now().Add(c.Timeout)); err != nil && !errors.Is(err, os.ErrNoDeadline) {
		return fmt.Errorf("rbb: set deadline: %w", err)
	}
	return nil
}

// Write drives tck/tms/tdi. When read is set the TDO sample is requested in
// the same packet and returned.
func (c *Client) Write(tck, tms, tdi, read bool) (bool, error) {
	if err := c.arm(); err != nil {
		return false, err
	}
	c.buf[0] = EncodeWrite(tck, tms, tdi)
	n := 1
	if read {
		c.buf[1] = CmdRead
		n = 2
	}
	if _, err := c.conn.Write(c.buf[:n]); err != nil {
		return false, fmt.Errorf("rbb: write: %w", err)
	}
	if !read {
		return false, nil
	}
	return c.readBit()
}

// ReadTDO samples the endpoint's TDO.
func (c *Client) ReadTDO() (bool, error) {
	if err := c.arm(); err != nil {
		return false, err
	}
	c.buf[0] = CmdRead
	if _, err := c.conn.Write(c.buf[:1]); err != nil {
		return false, fmt.Errorf("rbb: write: %w", err)
	}
	return c.readBit()
}

func (c *Client) readBit() (bool, error) {
	if _, err := io.ReadFull(c.conn, c.buf[:1]); err != nil {
		return false, fmt.Errorf("rbb: read tdo: %w", err)
	}
	return parseBit(c.buf[0])
}

// Reset forwards one of the reset variants verbatim.
func (c *Client) Reset(code byte) error {
	if !IsReset(code) {
		return fmt.Errorf("rbb: %q is not a reset command", code)
	}
	return c.send(code)
}

// Blink toggles the endpoint's activity indicator.
func (c *Client) Blink(on bool) error {
	if on {
		return c.send(CmdBlinkOn)
	}
	return c.send(CmdBlinkOff)
}

func (c *Client) send(b byte) error {
	if err := c.arm(); err != nil {
		return err
	}
	c.buf[0] = b
	if _, err := c.conn.Write(c.buf[:1]); err != nil {
		return fmt.Errorf("rbb: write: %w", err)
	}
	return nil
}

// Close closes the underlying connection when it supports closing.
func (c *Client) Close() error {
	if cl, ok := c.conn.(io.Closer); ok {
		return cl.Close()
	}
	return nil
}

// AsHandler adapts an endpoint to Handler so it can sit behind a Server or be
// driven by code written against Handler. TDO is only fetched by ReadTDO.
func AsHandler(ep Endpoint) Handler {
	return endpointHandler{ep}
}

type endpointHandler struct {
	Endpoint
}

func (h endpointHandler) Write(tck, tms, tdi bool) error {
	_, err := h.Endpoint.Write(tck, tms, tdi, false)
	return err
}
