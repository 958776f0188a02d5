package harness

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const headerWidth = 78

// Header writes a separator line with title centred in brackets, or a plain
// rule when title is empty.
func Header(w io.Writer, title string, dash byte) {
	if title == "" {
		fmt.Fprintln(w, strings.Repeat(string(dash), headerWidth))
		return
	}
	n := headerWidth - 4 - len(title)
	if n < 0 {
		n = 0
	}
	dashes := strings.Repeat(string(dash), n)
	fmt.Fprintf(w, "%s[ %s ]%s\n", dashes[:n/2], title, dashes[n/2:])
}

// printLog copies a log file under a header named after it.
func printLog(w io.Writer, path string) {
	Header(w, path, '-')
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "(%v)\n", err)
	}
	w.Write(data)
	fmt.Fprintln(w)
}
