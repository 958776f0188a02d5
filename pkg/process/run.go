package process

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/golang/glog"
)

// Run executes argv to completion in dir and returns its combined output. A
// non-zero exit is an error carrying the output.
func Run(ctx context.Context, argv []string, dir string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("process: empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	glog.V(1).Infof("process: run %s", strings.Join(argv, " "))
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("process: %s: %w\n%s", strings.Join(argv, " "), err, out)
	}
	return string(out), nil
}

// Tail returns the last n lines of the file at path. Unreadable files yield
// an empty string.
func Tail(path string, n int) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return lastLines(string(data), n)
}

func lastLines(text string, n int) string {
	text = strings.TrimRight(text, "\n")
	if text == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(text, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
