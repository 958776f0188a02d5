package gdb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"
)

// The test binary doubles as a scripted gdb when RVDEBUG_FAKE_GDB is set.
// Every command line is appended to FAKE_GDB_RECORD.

func fakeGDB(in io.Reader, out io.Writer) int {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	var record io.Writer = io.Discard
	if path := os.Getenv("FAKE_GDB_RECORD"); path != "" {
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 2
		}
		defer f.Close()
		record = f
	}
	threads := os.Getenv("FAKE_GDB_THREADS")
	if threads == "" {
		threads = "* 1    Remote target main () at main.c:5"
	}
	unknown := os.Getenv("FAKE_GDB_UNKNOWN_THREAD")
	runForever := os.Getenv("FAKE_GDB_RUN_FOREVER") != ""
	hwFail := os.Getenv("FAKE_GDB_HW_FAIL") != ""

	fmt.Fprint(out, "GNU gdb (fake) 12.1\n(gdb) ")
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := sc.Text()
		fmt.Fprintln(record, line)
		switch {
		case line == "info threads":
			fmt.Fprintf(out, "  Id   Target Id         Frame \n%s\n", threads)
		case strings.HasPrefix(line, "thread "):
			id := strings.TrimPrefix(line, "thread ")
			if id == unknown {
				fmt.Fprintf(out, "Unknown thread %s.\n", id)
			} else {
				fmt.Fprintf(out, "[Switching to thread %s]\n#0  main () at main.c:5\n", id)
			}
		case strings.HasPrefix(line, "target extended-remote "):
			fmt.Fprintf(out, "Remote debugging using %s\n0x80000000 in _start ()\n",
				strings.TrimPrefix(line, "target extended-remote "))
		case strings.HasPrefix(line, "file "):
			fmt.Fprintf(out, "Reading symbols from %s...\n", strings.TrimPrefix(line, "file "))
		case line == "p/x $pc":
			fmt.Fprint(out, "$1 = 0x80000010\n")
		case line == "p/x buf":
			fmt.Fprint(out, "$2 = {0x1, 0x2 <repeats 3 times>}\n")
		case line == "p *(int*)0":
			fmt.Fprint(out, "Cannot access memory at address 0x0\n")
		case line == "p nosuch":
			fmt.Fprint(out, "No symbol \"nosuch\" in current context.\n")
		case line == "p $badreg":
			fmt.Fprint(out, "Could not fetch register \"badreg\"; remote failure reply 'E14'\n")
		case line == "p/x nosuch":
			fmt.Fprint(out, "No symbol \"nosuch\" in current context.\n")
		case line == "p $ft0":
			fmt.Fprint(out, "$3 = {float = 1.5, double = 2.5}\n")
		case line == "p msg":
			fmt.Fprint(out, "$4 = 0x80001230 <msg> \"hello\\n\"\n")
		case line == "x/3w 0x80000000":
			fmt.Fprint(out, "0x80000000:\t0x00000001\t0x00000002\n0x80000008:\t0x00000003\n")
		case line == "b main":
			fmt.Fprint(out, "Breakpoint 1 at 0x80000010: file main.c, line 5.\n")
		case line == "b nowhere":
			fmt.Fprint(out, "Function \"nowhere\" not defined.\n")
		case line == "load":
			fmt.Fprint(out, "Loading section .text, size 0x100 lma 0x80000000\nTransfer rate: 2 KB/sec, 256 bytes/write.\n")
		case line == "compare-sections":
			fmt.Fprint(out, "Section .text, range 0x80000000 -- 0x80000100: matched.\n")
		case line == "c" || line == "c&":
			fmt.Fprint(out, "Continuing.\n")
			if line == "c&" {
				break
			}
			if hwFail {
				fmt.Fprint(out, "Warning:\nCould not insert hardware breakpoint 1.\nCould not insert hardware breakpoints:\nYou may have requested too many hardware breakpoints/watchpoints.\n\nCommand aborted.\n")
				break
			}
			if runForever {
				<-sigs
				fmt.Fprint(out, "\nProgram received signal SIGINT, Interrupt.\n")
			} else {
				select {
				case <-sigs:
					fmt.Fprint(out, "\nProgram received signal SIGINT, Interrupt.\n")
				case <-time.After(50 * time.Millisecond):
					fmt.Fprint(out, "\nBreakpoint 1, main () at main.c:5\n")
				}
			}
		case line == "hang":
			time.Sleep(time.Hour)
		}
		fmt.Fprint(out, "(gdb) ")
	}
	return 0
}
