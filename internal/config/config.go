// Package config gathers the settings of a test run from the command line,
// the environment and an optional dotenv file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// EnvPrefix starts every environment variable the tool reads.
const EnvPrefix = "RVDEBUG_"

// Config is filled once at start-up and only read afterwards.
type Config struct {
	// EnvFile is read for RVDEBUG_* settings. A missing default file is
	// not an error.
	EnvFile string

	SimCmd    string
	ServerCmd string
	RelayCmd  string
	GDB       string
	GCC       string
	SourceDir string
	LogDir    string
	Misa      string

	Force32 bool
	Force64 bool
	Isolate bool

	FailFast      bool
	PrintFailures bool
	PrintLogNames bool
	ListTests     bool
	GDBPipes      bool
	NoResetDelays bool
	ServerDebug   bool
}

// DefaultEnvFile is the dotenv file looked for in the working directory.
const DefaultEnvFile = ".env"

// envFlags are the flags that may also be given as RVDEBUG_<NAME>.
var envFlags = []string{
	"sim-cmd", "server-cmd", "relay-cmd", "gdb", "gcc", "source-dir",
	"logs", "misaval", "isolate", "fail-fast", "print-failures",
	"print-log-names", "gdb-pipes", "no-reset-delays", "server-debug",
}

// EnvName returns the variable that backs flag.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// RegisterFlags adds the run flags to fs. Underscores in flag names are
// accepted as dashes, so --sim_cmd works too.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&c.EnvFile, "env-file", DefaultEnvFile, "dotenv file with RVDEBUG_* settings")
	fs.StringVar(&c.SimCmd, "sim-cmd", "", "simulator command (default spike or simv)")
	fs.StringVar(&c.ServerCmd, "server-cmd", "", "debug server command (default openocd)")
	fs.StringVar(&c.RelayCmd, "relay-cmd", "", "bit-bang relay command (default this binary's daisychain)")
	fs.StringVar(&c.GDB, "gdb", "", "gdb command (default riscv64-unknown-elf-gdb)")
	fs.StringVar(&c.GCC, "gcc", "", "compiler command (default riscv64-unknown-elf-gcc)")
	fs.StringVar(&c.SourceDir, "source-dir", "", "directory holding the test programs")
	fs.StringVar(&c.LogDir, "logs", "logs", "directory for per-test logs")
	fs.StringVar(&c.Misa, "misaval", "", "use this misa (hex) instead of reading it from the target")
	fs.BoolVar(&c.Force32, "32", false, "force the target to XLEN 32")
	fs.BoolVar(&c.Force64, "64", false, "force the target to XLEN 64")
	fs.BoolVar(&c.Isolate, "isolate", false, "give every compiled binary a unique temporary name")
	fs.BoolVarP(&c.FailFast, "fail-fast", "f", false, "stop after the first test that does not pass")
	fs.BoolVar(&c.PrintFailures, "print-failures", false, "print the log of every test that does not pass")
	fs.BoolVar(&c.PrintLogNames, "print-log-names", false, "print temporary log names as they are created")
	fs.BoolVar(&c.ListTests, "list-tests", false, "list the tests and exit")
	fs.BoolVar(&c.GDBPipes, "gdb-pipes", false, "talk to gdb over pipes instead of a pty")
	fs.BoolVar(&c.NoResetDelays, "no-reset-delays", false, "do not rotate OpenOCD reset delays")
	fs.BoolVar(&c.ServerDebug, "server-debug", false, "run the simulator and debug server with debug output")
}

// Load fills every flag that was not given on the command line from the
// environment, then from the dotenv file. The process environment is not
// modified.
func (c *Config) Load(fs *pflag.FlagSet) error {
	file, err := readEnvFile(c.EnvFile, !fs.Changed("env-file"))
	if err != nil {
		return err
	}
	for _, name := range envFlags {
		if fs.Changed(name) {
			continue
		}
		key := EnvName(name)
		v, ok := os.LookupEnv(key)
		if !ok {
			v, ok = file[key]
		}
		if !ok {
			continue
		}
		if err := fs.Set(name, v); err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
	}
	return c.Validate()
}

func readEnvFile(path string, optional bool) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	m, err := godotenv.Read(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return m, nil
}

// Validate checks settings that flags alone cannot.
func (c *Config) Validate() error {
	if c.Force32 && c.Force64 {
		return errors.New("config: --32 and --64 are mutually exclusive")
	}
	if _, err := c.MisaValue(); err != nil {
		return err
	}
	return nil
}

// XLEN is the forced register width, or 0.
func (c *Config) XLEN() int {
	switch {
	case c.Force32:
		return 32
	case c.Force64:
		return 64
	}
	return 0
}

// MisaValue parses Misa. It is nil when unset.
func (c *Config) MisaValue() (*big.Int, error) {
	s := strings.TrimSpace(c.Misa)
	if s == "" {
		return nil, nil
	}
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, ok := new(big.Int).SetString(s, 16)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("config: --misaval %q is not a hex number", c.Misa)
	}
	return v, nil
}
