package memimage

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// Intel HEX record types.
const (
	IHexData            = 0x00
	IHexEOF             = 0x01
	IHexExtendedSegment = 0x02
	IHexExtendedLinear  = 0x04
	IHexStartLinear     = 0x05
)

// Record is one decoded Intel HEX line.
type Record struct {
	Type    byte
	Address uint16
	Data    []byte
}

// IntelHexLine formats one record as ":LLAAAATT<data>CC". The checksum is the
// two's complement of the low byte of the sum of every preceding byte.
func IntelHexLine(address uint16, recordType byte, data []byte) (string, error) {
	if len(data) > 255 {
		return "", fmt.Errorf("memimage: record of %d bytes exceeds 255", len(data))
	}
	sum := byte(len(data)) + byte(address>>8) + byte(address) + recordType
	var b strings.Builder
	fmt.Fprintf(&b, ":%02X%04X%02X", len(data), address, recordType)
	for _, d := range data {
		sum += d
		fmt.Fprintf(&b, "%02X", d)
	}
	fmt.Fprintf(&b, "%02X", byte(-sum))
	return b.String(), nil
}

// ParseIntelHexLine decodes and checksums one record.
func ParseIntelHexLine(line string) (Record, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, ":") {
		return Record{}, fmt.Errorf("memimage: ihex line %q does not start with ':'", line)
	}
	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return Record{}, fmt.Errorf("memimage: ihex line %q: %w", line, err)
	}
	if len(raw) < 5 || len(raw) != int(raw[0])+5 {
		return Record{}, fmt.Errorf("memimage: ihex line %q has wrong length", line)
	}
	var sum byte
	for _, v := range raw {
		sum += v
	}
	if sum != 0 {
		return Record{}, fmt.Errorf("%w in %q", ErrChecksum, line)
	}
	return Record{
		Type:    raw[3],
		Address: uint16(raw[1])<<8 | uint16(raw[2]),
		Data:    raw[4 : len(raw)-1],
	}, nil
}

// WriteIntelHex writes data as records of lineLen bytes (16 when lineLen is
// not positive) starting at base, emitting extended linear address records
// whenever the upper 16 address bits change, then an EOF record.
func WriteIntelHex(w io.Writer, base uint32, data []byte, lineLen int) error {
	if lineLen <= 0 {
		lineLen = 16
	}
	if lineLen > 255 {
		return fmt.Errorf("memimage: line length %d exceeds 255", lineLen)
	}
	bw := bufio.NewWriter(w)
	upper := uint32(0)
	emit := func(addr uint16, typ byte, payload []byte) error {
		line, err := IntelHexLine(addr, typ, payload)
		if err != nil {
			return err
		}
		_, err = bw.WriteString(line + "\n")
		return err
	}
	for off := 0; off < len(data); {
		addr := base + uint32(off)
		if addr>>16 != upper {
			upper = addr >> 16
			if err := emit(0, IHexExtendedLinear, []byte{byte(upper >> 8), byte(upper)}); err != nil {
				return err
			}
		}
		n := lineLen
		if n > len(data)-off {
			n = len(data) - off
		}
		// Records never straddle a 64 KiB boundary.
		if room := 0x10000 - int(addr&0xFFFF); n > room {
			n = room
		}
		if err := emit(uint16(addr), IHexData, data[off:off+n]); err != nil {
			return err
		}
		off += n
	}
	if err := emit(0, IHexEOF, nil); err != nil {
		return err
	}
	return bw.Flush()
}

// ReadIntelHex reads records until EOF or an EOF record.
func ReadIntelHex(r io.Reader) (*Image, error) {
	img := &Image{}
	var upper uint32
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		rec, err := ParseIntelHexLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		switch rec.Type {
		case IHexData:
			img.add(upper+uint32(rec.Address), rec.Data)
		case IHexEOF:
			img.normalize()
			return img, nil
		case IHexExtendedSegment:
			if len(rec.Data) != 2 {
				return nil, fmt.Errorf("line %d: bad extended segment record", lineNo)
			}
			upper = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 4
		case IHexExtendedLinear:
			if len(rec.Data) != 2 {
				return nil, fmt.Errorf("line %d: bad extended linear record", lineNo)
			}
			upper = (uint32(rec.Data[0])<<8 | uint32(rec.Data[1])) << 16
		case IHexStartLinear:
			if len(rec.Data) != 4 {
				return nil, fmt.Errorf("line %d: bad start address record", lineNo)
			}
			img.Entry = uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16 | uint32(rec.Data[2])<<8 | uint32(rec.Data[3])
			img.HasEntry = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	img.normalize()
	return img, nil
}
