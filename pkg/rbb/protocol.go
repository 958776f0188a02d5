// Package rbb implements the remote bit-bang JTAG wire protocol: a client for
// a single TAP endpoint, a daisy chain that multiplexes several endpoints into
// one logical scan chain, and a server that exposes a chain (or any other
// Handler) on a TCP listener.
//
// The protocol is a line-free byte stream. Each request byte is one of:
//
//	'0'..'7'  drive tck/tms/tdi, value = '0' + 4*tck + 2*tms + tdi
//	'R'       sample TDO, answered with a single '0' or '1'
//	'B' 'b'   blink indicator on/off (advisory)
//	'r'..'u'  reset variants (trst/srst combinations)
//	'\r' '\n' ignored
package rbb

import "errors"

// Request bytes other than the pin writes.
const (
	CmdRead     byte = 'R'
	CmdBlinkOn  byte = 'B'
	CmdBlinkOff byte = 'b'
)

// Reset variants. The letter encodes the trst/srst pair driven by the client.
const (
	ResetNone   byte = 'r' // trst=0 srst=0
	ResetSystem byte = 's' // trst=0 srst=1
	ResetTAP    byte = 't' // trst=1 srst=0
	ResetBoth   byte = 'u' // trst=1 srst=1
)

// ErrEmptyChain is returned by chain operations that need at least one TAP.
var ErrEmptyChain = errors.New("rbb: scan chain has no taps")

// ErrBadReply is returned when an endpoint answers a read with something other
// than '0' or '1'.
var ErrBadReply = errors.New("rbb: malformed tdo reply")

// EncodeWrite returns the request byte that drives the three JTAG inputs.
func EncodeWrite(tck, tms, tdi bool) byte {
	b := byte('0')
	if tck {
		b += 4
	}
	if tms {
		b += 2
	}
	if tdi {
		b++
	}
	return b
}

// DecodeWrite is the inverse of EncodeWrite. ok is false for bytes outside
// '0'..'7'.
func DecodeWrite(b byte) (tck, tms, tdi, ok bool) {
	if b < '0' || b > '7' {
		return false, false, false, false
	}
	v := b - '0'
	return v&4 != 0, v&2 != 0, v&1 != 0, true
}

// IsReset reports whether b is one of the reset variants.
func IsReset(b byte) bool {
	return b >= ResetNone && b <= ResetBoth
}

func bitByte(v bool) byte {
	if v {
		return '1'
	}
	return '0'
}

func parseBit(b byte) (bool, error) {
	switch b {
	case '0':
		return false, nil
	case '1':
		return true, nil
	}
	return false, ErrBadReply
}
