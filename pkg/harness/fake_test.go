package harness

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
)

// With RVDEBUG_FAKE_GDB set the test binary acts as a minimal gdb: every
// command is recorded to FAKE_GDB_RECORD and ^C returns to the prompt.
func fakeGDB(in io.Reader, out io.Writer) int {
	var mu sync.Mutex
	write := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		io.WriteString(out, s)
	}
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	go func() {
		for range sigs {
			write("Quit\n(gdb) ")
		}
	}()

	record := io.Discard
	if path := os.Getenv("FAKE_GDB_RECORD"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return 2
		}
		defer f.Close()
		record = f
	}
	misa := os.Getenv("FAKE_GDB_MISA")

	write("GNU gdb (fake)\n(gdb) ")
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		fmt.Fprintln(record, line)
		switch {
		case line == "info threads":
			write("  Id   Target Id         Frame \n* 1    Remote target main () at main.c:5\n")
		case strings.HasPrefix(line, "file "):
			write("Reading symbols from " + strings.TrimPrefix(line, "file ") + "...\n")
		case line == "p/x $misa":
			write("$1 = " + misa + "\n")
		case strings.HasPrefix(line, "p/x "):
			write("$2 = 0x0\n")
		}
		write("(gdb) ")
	}
	return 0
}
