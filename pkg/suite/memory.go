package suite

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/harness"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/memimage"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/outcome"
)

// MemTest writes two adjacent values of one C type to RAM and reads them
// back.
type MemTest struct {
	Size int
	Type string
}

func (m MemTest) Name() string { return fmt.Sprintf("MemTest%d", m.Size*8) }

func (m MemTest) Run(t *harness.T) error {
	s := t.GDB()
	if err := expectUint(s, fmt.Sprintf("sizeof(%s)", m.Type), uint64(m.Size)); err != nil {
		return err
	}
	mask := ^uint64(0)
	if m.Size < 8 {
		mask = 1<<uint(m.Size*8) - 1
	}
	ram := t.Hart().RAM
	writes := []struct {
		addr, value uint64
	}{
		{ram, 0x86753095555aaaa & mask},
		{ram + uint64(m.Size), 0xdeadbeef12345678 & mask},
	}
	for _, w := range writes {
		if _, err := s.P(fmt.Sprintf("*((%s*)0x%x) = 0x%x", m.Type, w.addr, w.value)); err != nil {
			return err
		}
	}
	for _, w := range writes {
		if err := expectUint(s, fmt.Sprintf("*((%s*)0x%x)", m.Type, w.addr), w.value); err != nil {
			return err
		}
	}
	return nil
}

const (
	blockLength     = 1024
	blockLineLength = 16
)

// MemTestBlock restores a random Intel HEX image into RAM, spot checks it
// word by word, then dumps the range back to Intel HEX and compares.
type MemTestBlock struct{}

func (MemTestBlock) Name() string { return "MemTestBlock" }

func (MemTestBlock) Run(t *harness.T) error {
	s := t.GDB()
	ram := t.Hart().RAM
	data := make([]byte, blockLength)
	for i := range data {
		data[i] = byte(rand.IntN(256))
	}

	in, err := os.CreateTemp("", "rvdebug-*.ihex")
	if err != nil {
		return err
	}
	defer os.Remove(in.Name())
	err = memimage.WriteIntelHex(in, 0, data, blockLineLength)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if _, err := s.Command(fmt.Sprintf("restore %s 0x%x", in.Name(), ram)); err != nil {
		return err
	}
	offsets := []int{}
	for off := 0; off < blockLength; off += 19 * 4 {
		offsets = append(offsets, off)
	}
	offsets = append(offsets, blockLength-4)
	for _, off := range offsets {
		want := binary.LittleEndian.Uint32(data[off:])
		if err := expectUint(s, fmt.Sprintf("*((int*)0x%x)", ram+uint64(off)), uint64(want)); err != nil {
			return err
		}
	}

	out, err := os.CreateTemp("", "rvdebug-*.ihex")
	if err != nil {
		return err
	}
	out.Close()
	defer os.Remove(out.Name())
	if _, err := s.Command(fmt.Sprintf("dump ihex memory %s 0x%x 0x%x", out.Name(), ram, ram+blockLength)); err != nil {
		return err
	}
	f, err := os.Open(out.Name())
	if err != nil {
		return err
	}
	defer f.Close()
	img, err := memimage.ReadIntelHex(f)
	if err != nil {
		return err
	}
	for _, seg := range img.Segments {
		start := uint64(seg.Address) - ram
		if uint64(seg.Address) < ram || start+uint64(len(seg.Data)) > blockLength {
			return outcome.Failf("dump has data at 0x%x outside the restored block", seg.Address)
		}
		if !bytes.Equal(seg.Data, data[start:start+uint64(len(seg.Data))]) {
			return outcome.Failf("dump at 0x%x: %x != %x", seg.Address, seg.Data, data[start:start+uint64(len(seg.Data))])
		}
	}
	if img.Size() != blockLength {
		return outcome.Failf("dump holds %d bytes, wrote %d", img.Size(), blockLength)
	}
	return nil
}
