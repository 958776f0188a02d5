package target

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const multispikeYAML = `
timeout_sec: 20
openocd_config: multispike.cfg
implements_custom_test: true
support_hasel: false
skip_tests: [MemTestBlock]
harts:
  - xlen: 32
    misa: 0x4034112d
    ram: 0x10000000
    ram_size: 0x10000000
    instruction_hardware_breakpoint_count: 4
    reset_vectors: [0x1000]
    link_script: spike32.lds
    system: rv32
    count: 2
  - xlen: 64
    misa: 0x8000000000341129
    ram: 0x1212340000
    ram_size: 0x10000000
    link_script: spike64.lds
    system: rv64
    count: 2
backend:
  kind: multispike
  spikes:
    - isa: RV32IMAFDCV
      dmi_rti: 4
      harts: [0, 1]
    - isa: RV64IMAFDV
      abstract_rti: 30
      no_hasel: true
      harts: [2, 3]
`

func writeTarget(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMultispike(t *testing.T) {
	path := writeTarget(t, "multispike.yaml", multispikeYAML)
	tgt, err := Load(path, 0)
	require.NoError(t, err)

	assert.Equal(t, "multispike", tgt.Name)
	assert.Equal(t, 20, tgt.TimeoutSec)
	assert.Equal(t, DefaultServerTimeoutSec, tgt.ServerTimeoutSec)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "multispike.cfg"), tgt.OpenOCDConfig)
	assert.False(t, tgt.SupportHasel)
	assert.True(t, tgt.SupportsClintMtime)
	assert.True(t, tgt.Skipped("MemTestBlock"))

	require.Len(t, tgt.Harts, 4)
	h := tgt.Harts[1]
	assert.Equal(t, 1, h.ID)
	assert.Equal(t, 1, h.Index)
	assert.Equal(t, "multispike-1", h.Name)
	assert.Equal(t, uint64(0x10000000), h.RAM)
	assert.Equal(t, []uint64{0x1000}, h.ResetVectors)
	assert.Equal(t, "rv32", h.System)
	assert.True(t, h.HonorsTdata1Hmode)
	assert.Equal(t, 0, big.NewInt(0x4034112d).Cmp(h.Misa()))

	h64 := tgt.Harts[3]
	want, _ := new(big.Int).SetString("8000000000341129", 16)
	assert.Equal(t, 0, want.Cmp(h64.Misa()))
	assert.Equal(t, 64, MisaXLEN(h64.Misa()))

	require.Len(t, tgt.Backend.Spikes, 2)
	assert.Equal(t, 4, *tgt.Backend.Spikes[0].DMIRTI)
	assert.True(t, tgt.Backend.Spikes[1].NoHasel)
	spikeHarts, err := tgt.HartsByIndex(tgt.Backend.Spikes[1].Harts)
	require.NoError(t, err)
	assert.Equal(t, []*Hart{tgt.Harts[2], tgt.Harts[3]}, spikeHarts)
}

func TestLoadDefaults(t *testing.T) {
	path := writeTarget(t, "board.yaml", "harts:\n  - id: 7\n")
	tgt, err := Load(path, 64)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeoutSec, tgt.TimeoutSec)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "board.cfg"), tgt.OpenOCDConfig)
	h := tgt.Harts[0]
	assert.Equal(t, 7, h.ID)
	assert.Equal(t, 64, h.XLEN)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "board.lds"), h.LinkScript)
	assert.Nil(t, h.Misa())

	_, ok := tgt.Hart(7)
	assert.True(t, ok)
}

func TestLoadRejectsConflictingXLEN(t *testing.T) {
	path := writeTarget(t, "spike32.yaml", "harts:\n  - xlen: 32\n")
	_, err := Load(path, 64)
	assert.True(t, errors.Is(err, ErrXLENMismatch), "got %v", err)

	_, err = Load(writeTarget(t, "empty.yaml", "name: empty\n"), 0)
	assert.Error(t, err)
}

func TestMisaSetOnce(t *testing.T) {
	h := &Hart{Name: "h"}
	assert.False(t, h.ExtensionSupported('c'))
	require.NoError(t, h.SetMisa(big.NewInt(0x4034112d)))
	assert.ErrorIs(t, h.SetMisa(big.NewInt(1)), ErrMisaSet)

	assert.True(t, h.ExtensionSupported('c'))
	assert.True(t, h.ExtensionSupported('D'))
	assert.False(t, h.ExtensionSupported('h'))
	assert.False(t, h.ExtensionSupported('?'))
}

func TestMisaXLEN(t *testing.T) {
	rv128, _ := new(big.Int).SetString("c0000000000000000000000000001105", 16)
	cases := []struct {
		misa *big.Int
		xlen int
	}{
		{big.NewInt(0x40101105), 32},
		{new(big.Int).SetUint64(0x8000000000101105), 64},
		{rv128, 128},
		{big.NewInt(0x1105), 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.xlen, MisaXLEN(tc.misa), "misa 0x%x", tc.misa)
	}
	assert.Equal(t, "RV32ACDFIMSUV", MisaString(big.NewInt(0x4034112d)))
}

func TestMarchAndBinaryName(t *testing.T) {
	tgt := &Target{Name: "spike64"}
	h := &Hart{XLEN: 64}
	assert.Equal(t, "rv64ima", March(h))
	require.NoError(t, h.SetMisa(new(big.Int).SetUint64(0x800000000014112d)))
	assert.Equal(t, "rv64imafdc", March(h))
	assert.Equal(t, "spike64_debug-64", BinaryName(tgt, h, "programs/debug.c"))
}

func TestCompileRunsGCC(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-gcc")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\necho \"$@\" > \"$(dirname \"$0\")/args\"\n"), 0o755))

	tgt := &Target{Name: "spike32", Harts: []*Hart{{XLEN: 32, LinkScript: "spike32.lds"}}}
	var logged string
	c := &Compiler{GCC: script, OutDir: dir, Log: func(format string, args ...any) { logged = format }}
	bin, err := c.Compile(context.Background(), tgt, tgt.Harts[0], "programs/regs.S")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "spike32_regs-32"), bin)
	assert.NotEmpty(t, logged)

	args, err := os.ReadFile(filepath.Join(dir, "args"))
	require.NoError(t, err)
	assert.Contains(t, string(args), "-march=rv32ima")
	assert.Contains(t, string(args), "-DNHARTS=1")
	assert.Contains(t, string(args), "-T spike32.lds")
	assert.Contains(t, string(args), "-o "+bin)

	c.GCC = "false"
	_, err = c.Compile(context.Background(), tgt, tgt.Harts[0], "programs/regs.S")
	assert.Error(t, err)
}

func TestShippedTargets(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "targets", "RISC-V", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	for _, path := range paths {
		tgt, err := Load(path, 0)
		require.NoError(t, err, path)
		for _, h := range tgt.Harts {
			assert.Contains(t, []int{32, 64}, h.XLEN, "%s: %s", path, h.Name)
			assert.NotZero(t, h.RAMSize, "%s: %s", path, h.Name)
		}
	}

	ms, err := Load(filepath.Join("..", "..", "targets", "RISC-V", "multispike.yaml"), 0)
	require.NoError(t, err)
	require.Len(t, ms.Harts, 4)
	assert.Equal(t, "spike32", ms.Harts[1].System)
	assert.Equal(t, "spike64", ms.Harts[2].System)
	assert.Equal(t, []int{2, 3}, ms.Backend.Spikes[1].Harts)
}
