package rbb

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/golang/glog"
)

// Handler is whatever sits behind a bit-bang listener: a Chain relaying to
// other endpoints, or an in-process TAP model.
type Handler interface {
	Write(tck, tms, tdi bool) error
	ReadTDO() (bool, error)
	Reset(code byte) error
}

// Server accepts one client at a time and feeds its byte stream to Handler.
type Server struct {
	Handler Handler
	// Quiet suppresses blink messages.
	Quiet bool
	// Out receives blink and disconnect messages. Nil discards them.
	Out io.Writer
}

// Serve accepts connections until ln is closed. Clients are served strictly
// sequentially. A handler failure ends Serve since the endpoints behind it are
// no longer usable.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("rbb: accept: %w", err)
		}
		glog.V(1).Infof("rbb: client connected from %s", conn.RemoteAddr())
		err = s.ServeConn(conn)
		conn.Close()
		s.printf("Client disconnected.\n")
		if err != nil {
			return err
		}
	}
}

// ServeConn processes requests from one client until it disconnects or sends
// a byte outside the protocol. Only handler and reply-write failures are
// returned.
func (s *Server) ServeConn(conn io.ReadWriter) error {
	r := bufio.NewReader(conn)
	reply := make([]byte, 1)
	for {
		b, err := r.ReadByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				glog.V(1).Infof("rbb: client read: %v", err)
			}
			return nil
		}

		if tck, tms, tdi, ok := DecodeWrite(b); ok {
			if err := s.Handler.Write(tck, tms, tdi); err != nil {
				return err
			}
			continue
		}

		switch {
		case b == CmdRead:
			v, err := s.Handler.ReadTDO()
			if err != nil {
				return err
			}
			reply[0] = bitByte(v)
			if _, err := conn.Write(reply); err != nil {
				glog.V(1).Infof("rbb: client write: %v", err)
				return nil
			}
		case b == CmdBlinkOn:
			if !s.Quiet {
				s.printf("blink on\n")
			}
		case b == CmdBlinkOff:
			if !s.Quiet {
				s.printf("blink off\n")
			}
		case IsReset(b):
			if err := s.Handler.Reset(b); err != nil {
				return err
			}
		case b == '\r' || b == '\n':
		default:
			glog.V(1).Infof("rbb: closing client on byte %q", b)
			return nil
		}
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.Out != nil {
		fmt.Fprintf(s.Out, format, args...)
	}
}
