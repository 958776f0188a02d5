package suite

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/memimage"
)

// With RVDEBUG_FAKE_GDB set the test binary acts as gdb attached to a
// pretend hart: registers, byte addressed RAM, and a program that spins
// while i == 123.
type fakeHart struct {
	out    io.Writer
	regs   map[string]uint64
	vars   map[string]uint64
	mem    map[uint64]byte
	sigs   chan os.Signal
	bps    []string
	atMain bool
	n      int
}

var (
	derefRe  = regexp.MustCompile(`^\*\(\((char|short|int|long long)\*\)\s*(0x[0-9a-f]+)\)\s*(?:=\s*(0x[0-9a-f]+))?$`)
	assignRe = regexp.MustCompile(`^(\$?\w+)\s*=\s*(\w+)$`)
	sizes    = map[string]int{"char": 1, "short": 2, "int": 4, "long long": 8}
)

func fakeGDB(in io.Reader, out io.Writer) int {
	misa, _ := strconv.ParseUint(strings.TrimPrefix(os.Getenv("FAKE_GDB_MISA"), "0x"), 16, 64)
	h := &fakeHart{
		out:  out,
		regs: map[string]uint64{"pc": 0x80000000, "misa": misa},
		vars: map[string]uint64{"j": 0x40, "status": 0xc86455d4, "loop_forever": 0x80000100},
		mem:  make(map[uint64]byte),
		sigs: make(chan os.Signal, 1),
	}
	signal.Notify(h.sigs, os.Interrupt)

	fmt.Fprint(out, "GNU gdb (fake)\n(gdb) ")
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		h.command(sc.Text())
		fmt.Fprint(out, "(gdb) ")
	}
	return 0
}

func (h *fakeHart) print(v uint64) {
	h.n++
	fmt.Fprintf(h.out, "$%d = 0x%x\n", h.n, v)
}

func (h *fakeHart) load(addr uint64, size int) uint64 {
	buf := make([]byte, 8)
	for i := 0; i < size; i++ {
		buf[i] = h.mem[addr+uint64(i)]
	}
	return binary.LittleEndian.Uint64(buf)
}

func (h *fakeHart) store(addr uint64, size int, v uint64) {
	for i := 0; i < size; i++ {
		h.mem[addr+uint64(i)] = byte(v >> (8 * i))
	}
}

func (h *fakeHart) value(name string) (uint64, bool) {
	if strings.HasPrefix(name, "$") {
		v, ok := h.regs[name[1:]]
		return v, ok
	}
	if v, err := strconv.ParseUint(name, 0, 64); err == nil {
		return v, true
	}
	v, ok := h.vars[name]
	return v, ok
}

func (h *fakeHart) eval(expr string) {
	if strings.HasPrefix(expr, "sizeof(") {
		h.print(uint64(sizes[strings.TrimSuffix(strings.TrimPrefix(expr, "sizeof("), ")")]))
		return
	}
	if m := derefRe.FindStringSubmatch(expr); m != nil {
		size := sizes[m[1]]
		addr, _ := strconv.ParseUint(m[2], 0, 64)
		if m[3] != "" {
			v, _ := strconv.ParseUint(m[3], 0, 64)
			h.store(addr, size, v)
		}
		h.print(h.load(addr, size))
		return
	}
	if m := assignRe.FindStringSubmatch(expr); m != nil {
		v, ok := h.value(m[2])
		if !ok {
			fmt.Fprintf(h.out, "No symbol %q in current context.\n", m[2])
			return
		}
		if strings.HasPrefix(m[1], "$") {
			h.regs[m[1][1:]] = v
		} else {
			h.vars[m[1]] = v
		}
		h.print(v)
		return
	}
	if v, ok := h.value(expr); ok {
		h.print(v)
		return
	}
	fmt.Fprintf(h.out, "No symbol %q in current context.\n", expr)
}

func (h *fakeHart) command(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	switch {
	case line == "info threads":
		fmt.Fprint(h.out, "  Id   Target Id         Frame \n* 1    Remote target main () at debug.c:20\n")
	case strings.HasPrefix(line, "file "):
		fmt.Fprintf(h.out, "Reading symbols from %s...\n", fields[1])
	case strings.HasPrefix(line, "p/x "):
		h.eval(strings.TrimPrefix(line, "p/x "))
	case strings.HasPrefix(line, "p "):
		h.eval(strings.TrimPrefix(line, "p "))
	case line == "stepi":
		h.regs["pc"] += 4
		fmt.Fprintf(h.out, "0x%08x in ?? ()\n", h.regs["pc"])
	case line == "load":
		fmt.Fprint(h.out, "Loading section .text, size 0x100 lma 0x80000000\nTransfer rate: 2 KB/sec, 256 bytes/write.\n")
	case line == "compare-sections":
		fmt.Fprint(h.out, "Section .text, range 0x80000000 -- 0x80000100: matched.\n")
	case fields[0] == "b":
		h.bps = append(h.bps, fields[1])
		fmt.Fprintf(h.out, "Breakpoint %d at 0x80000010: file debug.c, line 5.\n", len(h.bps))
	case line == "c":
		h.resume()
	case fields[0] == "restore":
		h.restore(fields[1], fields[2])
	case strings.HasPrefix(line, "dump ihex memory "):
		h.dump(fields[3], fields[4], fields[5])
	}
}

func (h *fakeHart) resume() {
	fmt.Fprint(h.out, "Continuing.\n")
	switch {
	case h.vars["i"] == 123:
		<-h.sigs
		fmt.Fprint(h.out, "\nProgram received signal SIGINT, Interrupt.\nmain () at debug.c:27\n27\t\tj++;\n")
	case !h.atMain && len(h.bps) > 1:
		h.atMain = true
		fmt.Fprint(h.out, "\nBreakpoint 2, main () at debug.c:20\n")
	default:
		fmt.Fprint(h.out, "\nBreakpoint 1, _exit (status=-932948524) at init.c:10\n")
	}
}

func (h *fakeHart) restore(path, biasText string) {
	bias, _ := strconv.ParseUint(biasText, 0, 64)
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintln(h.out, err)
		return
	}
	defer f.Close()
	img, err := memimage.ReadIntelHex(f)
	if err != nil {
		fmt.Fprintln(h.out, err)
		return
	}
	for _, seg := range img.Segments {
		for i, b := range seg.Data {
			h.mem[bias+uint64(seg.Address)+uint64(i)] = b
		}
	}
	fmt.Fprintf(h.out, "Restoring section .sec1 (0x%x to 0x%x)\n", bias, bias+uint64(img.Size()))
}

func (h *fakeHart) dump(path, startText, endText string) {
	start, _ := strconv.ParseUint(startText, 0, 64)
	end, _ := strconv.ParseUint(endText, 0, 64)
	data := make([]byte, end-start)
	for i := range data {
		data[i] = h.mem[start+uint64(i)]
	}
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintln(h.out, err)
		return
	}
	defer f.Close()
	if err := memimage.WriteIntelHex(f, uint32(start), data, 16); err != nil {
		fmt.Fprintln(h.out, err)
	}
}
