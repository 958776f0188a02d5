package target

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/process"
)

const DefaultGCC = "riscv64-unknown-elf-gcc"

// Compiler builds test programs for a hart.
type Compiler struct {
	// GCC is split on whitespace. Defaults to DefaultGCC.
	GCC string
	// SourceDir is where relative source paths are looked up, after the
	// working directory.
	SourceDir string
	// OutDir receives the binaries. Defaults to the working directory.
	OutDir string
	// Isolate gives every binary a unique temporary name so several runs
	// can share OutDir.
	Isolate bool
	// Log, when set, receives the compile command line.
	Log func(format string, args ...any)
}

// March returns the -march value for h: rv<XLEN>ima plus whichever of f, d
// and c misa reports.
func March(h *Hart) string {
	march := fmt.Sprintf("rv%dima", h.XLEN)
	for _, l := range []byte("fdc") {
		if h.ExtensionSupported(l) {
			march += string(l)
		}
	}
	return march
}

// BinaryName is the output name for a program whose first source is src.
func BinaryName(t *Target, h *Hart, src string) string {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return fmt.Sprintf("%s_%s-%d", t.Name, base, h.XLEN)
}

// Compile builds sources plus the common start-up code for h and returns
// the path of the binary.
func (c *Compiler) Compile(ctx context.Context, t *Target, h *Hart, sources ...string) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("compile: no sources")
	}
	name := BinaryName(t, h, sources[0])
	if c.OutDir != "" {
		name = filepath.Join(c.OutDir, name)
	}
	if c.Isolate {
		f, err := os.CreateTemp(c.OutDir, filepath.Base(name)+"_")
		if err != nil {
			return "", fmt.Errorf("compile: %w", err)
		}
		name = f.Name()
		f.Close()
	}

	gcc := c.GCC
	if gcc == "" {
		gcc = DefaultGCC
	}
	argv := append(strings.Fields(gcc), "-g")
	args := append(append([]string{}, sources...),
		"programs/entry.S", "programs/init.c",
		fmt.Sprintf("-DNHARTS=%d", len(t.Harts)),
		"-I", "../env",
		"-march="+March(h),
		"-T", h.LinkScript,
		"-nostartfiles",
		"-mcmodel=medany",
		fmt.Sprintf("-DXLEN=%d", h.XLEN),
		"-o", name,
	)
	for _, a := range args {
		argv = append(argv, c.find(a))
	}
	if c.Log != nil {
		c.Log("+ %s\n", strings.Join(argv, " "))
	}
	glog.V(1).Infof("compile: %s", strings.Join(argv, " "))
	if _, err := process.Run(ctx, argv, ""); err != nil {
		return "", fmt.Errorf("compile %s: %w", sources[0], err)
	}
	return name, nil
}

// find resolves a relative path that exists under the working directory or
// SourceDir. Other arguments are returned unchanged.
func (c *Compiler) find(arg string) string {
	if strings.HasPrefix(arg, "-") || filepath.IsAbs(arg) {
		return arg
	}
	for _, dir := range []string{"", c.SourceDir} {
		p := arg
		if dir != "" {
			p = filepath.Join(dir, arg)
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return arg
}
