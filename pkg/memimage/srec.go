package memimage

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// srecLine formats one S-record. The count covers address, data and
// checksum; the checksum is the ones' complement of the low byte of the sum
// of count, address and data.
func srecLine(typ byte, addr uint32, addrLen int, data []byte) string {
	count := byte(addrLen + len(data) + 1)
	sum := count
	var b strings.Builder
	fmt.Fprintf(&b, "S%c%02X", typ, count)
	for i := addrLen - 1; i >= 0; i-- {
		v := byte(addr >> (8 * uint(i)))
		sum += v
		fmt.Fprintf(&b, "%02X", v)
	}
	for _, d := range data {
		sum += d
		fmt.Fprintf(&b, "%02X", d)
	}
	fmt.Fprintf(&b, "%02X", ^sum)
	return b.String()
}

// WriteSRecord writes an S0 header, S3 data records of lineLen bytes (16 when
// lineLen is not positive) and an S7 record carrying entry.
func WriteSRecord(w io.Writer, base uint32, data []byte, lineLen int, entry uint32) error {
	if lineLen <= 0 {
		lineLen = 16
	}
	if lineLen > 250 {
		return fmt.Errorf("memimage: line length %d exceeds 250", lineLen)
	}
	bw := bufio.NewWriter(w)
	bw.WriteString(srecLine('0', 0, 2, []byte("rvdebug")) + "\n")
	for off := 0; off < len(data); off += lineLen {
		end := off + lineLen
		if end > len(data) {
			end = len(data)
		}
		bw.WriteString(srecLine('3', base+uint32(off), 4, data[off:end]) + "\n")
	}
	bw.WriteString(srecLine('7', entry, 4, nil) + "\n")
	return bw.Flush()
}

// srecAddrLen maps record types to address widths.
var srecAddrLen = map[byte]int{
	'0': 2, '1': 2, '2': 3, '3': 4,
	'5': 2, '6': 3,
	'7': 4, '8': 3, '9': 2,
}

// ReadSRecord reads S1/S2/S3 data and S7/S8/S9 entry records. Header and
// count records are checksummed and otherwise ignored.
func ReadSRecord(r io.Reader) (*Image, error) {
	img := &Image{}
	sc := bufio.NewScanner(r)
	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if len(line) < 4 || line[0] != 'S' {
			return nil, fmt.Errorf("line %d: %q is not an S-record", lineNo, line)
		}
		typ := line[1]
		addrLen, ok := srecAddrLen[typ]
		if !ok {
			return nil, fmt.Errorf("line %d: unknown record type S%c", lineNo, typ)
		}
		raw, err := hex.DecodeString(line[2:])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if len(raw) < 1+addrLen+1 || int(raw[0]) != len(raw)-1 {
			return nil, fmt.Errorf("line %d: wrong record length", lineNo)
		}
		var sum byte
		for _, v := range raw[:len(raw)-1] {
			sum += v
		}
		if ^sum != raw[len(raw)-1] {
			return nil, fmt.Errorf("line %d: %w", lineNo, ErrChecksum)
		}
		var addr uint32
		for _, v := range raw[1 : 1+addrLen] {
			addr = addr<<8 | uint32(v)
		}
		data := raw[1+addrLen : len(raw)-1]
		switch typ {
		case '1', '2', '3':
			img.add(addr, data)
		case '7', '8', '9':
			img.Entry, img.HasEntry = addr, true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	img.normalize()
	return img, nil
}
