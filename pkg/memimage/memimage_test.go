package memimage

import (
	"bytes"
	"errors"
	"math/rand"
	"strings"
	"testing"
)

func TestIntelHexLine(t *testing.T) {
	// Example from the Intel HEX specification.
	data := []byte{0x21, 0x46, 0x01, 0x36, 0x01, 0x21, 0x47, 0x01, 0x36, 0x00, 0x7E, 0xFE, 0x09, 0xD2, 0x19, 0x01}
	line, err := IntelHexLine(0x0100, IHexData, data)
	if err != nil {
		t.Fatal(err)
	}
	if want := ":10010000214601360121470136007EFE09D2190140"; line != want {
		t.Fatalf("IntelHexLine = %s, want %s", line, want)
	}

	rec, err := ParseIntelHexLine(line + "\r\n")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Type != IHexData || rec.Address != 0x0100 || !bytes.Equal(rec.Data, data) {
		t.Fatalf("ParseIntelHexLine = %+v", rec)
	}

	if _, err := ParseIntelHexLine(":10010000214601360121470136007EFE09D2190141"); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected checksum error, got %v", err)
	}
	if _, err := ParseIntelHexLine("10010000"); err == nil {
		t.Fatalf("expected error for missing colon")
	}
	if _, err := IntelHexLine(0, IHexData, make([]byte, 256)); err == nil {
		t.Fatalf("expected error for oversized record")
	}
}

func randomBytes(n int) []byte {
	r := rand.New(rand.NewSource(int64(n)))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestIntelHexRoundTripPartialRecord(t *testing.T) {
	for _, n := range []int{1, 15, 17, 1000, 1023} {
		data := randomBytes(n)
		var buf bytes.Buffer
		if err := WriteIntelHex(&buf, 0, data, 16); err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(buf.String(), ":00000001FF\n") {
			t.Fatalf("n=%d: missing EOF record", n)
		}
		img, err := ReadIntelHex(&buf)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(img.Segments) != 1 || img.Segments[0].Address != 0 || !bytes.Equal(img.Segments[0].Data, data) {
			t.Fatalf("n=%d: round trip mismatch", n)
		}
	}
}

func TestIntelHexExtendedAddress(t *testing.T) {
	data := randomBytes(40)
	base := uint32(0x8000FFF0)
	var buf bytes.Buffer
	if err := WriteIntelHex(&buf, base, data, 32); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != ":0200000480007A" {
		t.Fatalf("first record = %s", lines[0])
	}
	if !strings.HasPrefix(lines[2], ":02000004800179") {
		t.Fatalf("expected upper-address switch, got %s", lines[2])
	}

	img, err := ReadIntelHex(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatal(err)
	}
	got, err := img.Read(base, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("data mismatch across 64K boundary")
	}
	if _, err := img.Read(base+40, 1); err == nil {
		t.Fatalf("expected error reading past the image")
	}
}

func TestSRecordRoundTrip(t *testing.T) {
	data := randomBytes(37)
	var buf bytes.Buffer
	if err := WriteSRecord(&buf, 0x80000000, data, 16, 0x80000000); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if !strings.HasPrefix(lines[0], "S0") || !strings.HasPrefix(lines[1], "S3") || !strings.HasPrefix(lines[len(lines)-1], "S7") {
		t.Fatalf("unexpected record layout: %v", lines)
	}
	if lines[len(lines)-1] != "S705800000007A" {
		t.Fatalf("S7 record = %s", lines[len(lines)-1])
	}

	img, err := ReadSRecord(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if !img.HasEntry || img.Entry != 0x80000000 || img.Size() != len(data) {
		t.Fatalf("image = entry %x size %d", img.Entry, img.Size())
	}
	got, _ := img.Read(0x80000000, len(data))
	if !bytes.Equal(got, data) {
		t.Fatalf("S-record round trip mismatch")
	}

	if _, err := ReadSRecord(strings.NewReader("S70580000000FB\n")); !errors.Is(err, ErrChecksum) {
		t.Fatalf("expected checksum error, got %v", err)
	}
}
