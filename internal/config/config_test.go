package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) (*Config, *pflag.FlagSet) {
	t.Helper()
	var c Config
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	c.RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return &c, fs
}

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "RVDEBUG_SIM_CMD", EnvName("sim-cmd"))
	assert.Equal(t, "RVDEBUG_GDB", EnvName("gdb"))
}

func TestPrecedence(t *testing.T) {
	env := writeEnv(t, "RVDEBUG_GCC=file-gcc\nRVDEBUG_GDB=file-gdb\nRVDEBUG_LOGS=file-logs\nRVDEBUG_FAIL_FAST=true\n")
	t.Setenv("RVDEBUG_GCC", "env-gcc")
	t.Setenv("RVDEBUG_LOGS", "env-logs")

	c, fs := parse(t, "--env-file", env, "--logs", "flag-logs")
	require.NoError(t, c.Load(fs))

	assert.Equal(t, "env-gcc", c.GCC, "environment beats the dotenv file")
	assert.Equal(t, "file-gdb", c.GDB)
	assert.Equal(t, "flag-logs", c.LogDir, "flags beat everything")
	assert.True(t, c.FailFast)
	_, set := os.LookupEnv("RVDEBUG_GDB")
	assert.False(t, set, "the process environment is left alone")
}

func TestUnderscoreFlags(t *testing.T) {
	c, fs := parse(t, "--env-file", "", "--sim_cmd", "spike -l", "--server_cmd=openocd -d", "-f")
	require.NoError(t, c.Load(fs))
	assert.Equal(t, "spike -l", c.SimCmd)
	assert.Equal(t, "openocd -d", c.ServerCmd)
	assert.True(t, c.FailFast)
}

func TestEnvFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	c, fs := parse(t)
	require.NoError(t, c.Load(fs), "a missing default file is fine")
	assert.Equal(t, "logs", c.LogDir)

	c, fs = parse(t, "--env-file", filepath.Join(dir, "missing.env"))
	assert.Error(t, c.Load(fs), "a missing named file is not")

	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultEnvFile), []byte("RVDEBUG_MISAVAL=0x40101105\n"), 0o644))
	c, fs = parse(t)
	require.NoError(t, c.Load(fs))
	misa, err := c.MisaValue()
	require.NoError(t, err)
	assert.Equal(t, 0, misa.Cmp(big.NewInt(0x40101105)))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		xlen    int
		wantErr bool
	}{
		{name: "default", xlen: 0},
		{name: "32", args: []string{"--32"}, xlen: 32},
		{name: "64", args: []string{"--64"}, xlen: 64},
		{name: "both", args: []string{"--32", "--64"}, wantErr: true},
		{name: "bad misa", args: []string{"--misaval", "zz"}, wantErr: true},
		{name: "misa without prefix", args: []string{"--misaval", "8000000000141105"}, xlen: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fs := parse(t, append([]string{"--env-file", ""}, tt.args...)...)
			err := c.Load(fs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.xlen, c.XLEN())
		})
	}
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("RVDEBUG_ISOLATE", "maybe")
	c, fs := parse(t, "--env-file", "")
	err := c.Load(fs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RVDEBUG_ISOLATE")
}
