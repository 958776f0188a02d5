// Package memimage reads and writes the memory image formats gdb uses for
// "restore" and "dump": Intel HEX and Motorola S-records.
package memimage

import (
	"errors"
	"fmt"
	"sort"
)

// ErrChecksum is returned for a record whose checksum does not match.
var ErrChecksum = errors.New("memimage: bad checksum")

// Segment is a contiguous run of bytes.
type Segment struct {
	Address uint32
	Data    []byte
}

// Image is a sparse memory image.
type Image struct {
	Segments []Segment
	// Entry is the start address from an S7 or Intel HEX type 05 record.
	Entry    uint32
	HasEntry bool
}

// add appends data, merging with the previous segment when contiguous.
func (img *Image) add(addr uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	if n := len(img.Segments); n > 0 {
		last := &img.Segments[n-1]
		if last.Address+uint32(len(last.Data)) == addr {
			last.Data = append(last.Data, data...)
			return
		}
	}
	img.Segments = append(img.Segments, Segment{Address: addr, Data: append([]byte(nil), data...)})
}

// normalize sorts segments and merges the ones that touch.
func (img *Image) normalize() {
	sort.SliceStable(img.Segments, func(i, j int) bool {
		return img.Segments[i].Address < img.Segments[j].Address
	})
	merged := img.Segments[:0]
	for _, s := range img.Segments {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.Address+uint32(len(last.Data)) == s.Address {
				last.Data = append(last.Data, s.Data...)
				continue
			}
		}
		merged = append(merged, s)
	}
	img.Segments = merged
}

// Size returns the number of bytes held.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// Read returns n bytes starting at addr. The range must lie in one segment.
func (img *Image) Read(addr uint32, n int) ([]byte, error) {
	for _, s := range img.Segments {
		if addr >= s.Address && uint64(addr)+uint64(n) <= uint64(s.Address)+uint64(len(s.Data)) {
			off := addr - s.Address
			return s.Data[off : off+uint32(n)], nil
		}
	}
	return nil, fmt.Errorf("memimage: 0x%x+%d not covered by image", addr, n)
}
