package target

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeoutSec       = 2
	DefaultServerTimeoutSec = 60
)

// Target is a system under test.
type Target struct {
	Name  string
	Harts []*Hart
	// Dir is the directory the definition was loaded from; relative paths
	// in the definition are resolved against it.
	Dir string

	// TimeoutSec is gdb's remotetimeout and the per-command budget.
	TimeoutSec int
	// ServerTimeoutSec bounds how long the debug server may take to start.
	ServerTimeoutSec int
	OpenOCDConfig    string
	// GDBSetup runs in gdb after connecting, before each test.
	GDBSetup  []string
	SkipTests []string

	SupportsClintMtime       bool
	ImplementsCustomTest     bool
	InvalidMemoryReturnsZero bool
	SupportHasel             bool
	// FreeRTOS marks targets whose server can expose FreeRTOS threads.
	FreeRTOS bool

	Backend Backend
}

// Backend selects and parameterizes how the target is brought up.
type Backend struct {
	// Kind is "spike", "multispike", "vcs" or "" for hardware reached only
	// through the debug server.
	Kind string `yaml:"kind"`

	ISA           string `yaml:"isa"`
	ProgBufSize   *int   `yaml:"progbufsize"`
	DMIRTI        *int   `yaml:"dmi_rti"`
	AbstractRTI   *int   `yaml:"abstract_rti"`
	NoAbstractCSR bool   `yaml:"no_abstract_csr"`
	NoHasel       bool   `yaml:"no_hasel"`
	NoHaltGroups  bool   `yaml:"no_halt_groups"`
	VLEN          int    `yaml:"vlen"`
	ELEN          int    `yaml:"elen"`
	Halted        bool   `yaml:"halted"`
	// Harts restricts a simulator to these hart indices; empty means all.
	Harts []int `yaml:"harts"`
	// Spikes are the simulators a multispike backend chains together.
	Spikes []Backend `yaml:"spikes"`
}

// Skipped reports whether test is listed in SkipTests.
func (t *Target) Skipped(test string) bool {
	for _, s := range t.SkipTests {
		if s == test {
			return true
		}
	}
	return false
}

// HartsByIndex returns the harts at the given indices, or every hart when
// indices is empty.
func (t *Target) HartsByIndex(indices []int) ([]*Hart, error) {
	if len(indices) == 0 {
		return t.Harts, nil
	}
	harts := make([]*Hart, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(t.Harts) {
			return nil, fmt.Errorf("target %s: no hart %d", t.Name, i)
		}
		harts = append(harts, t.Harts[i])
	}
	return harts, nil
}

// Hart returns the hart with the given id.
func (t *Target) Hart(id int) (*Hart, bool) {
	for _, h := range t.Harts {
		if h.ID == id {
			return h, true
		}
	}
	return nil, false
}

type fileTarget struct {
	Name                     string     `yaml:"name"`
	Harts                    []fileHart `yaml:"harts"`
	TimeoutSec               int        `yaml:"timeout_sec"`
	ServerTimeoutSec         int        `yaml:"server_timeout_sec"`
	OpenOCDConfig            string     `yaml:"openocd_config"`
	GDBSetup                 []string   `yaml:"gdb_setup"`
	SkipTests                []string   `yaml:"skip_tests"`
	SupportsClintMtime       *bool      `yaml:"supports_clint_mtime"`
	ImplementsCustomTest     bool       `yaml:"implements_custom_test"`
	InvalidMemoryReturnsZero bool       `yaml:"invalid_memory_returns_zero"`
	SupportHasel             *bool      `yaml:"support_hasel"`
	FreeRTOS                 bool       `yaml:"freertos"`
	Backend                  Backend    `yaml:"backend"`
}

type fileHart struct {
	ID                       *int     `yaml:"id"`
	Name                     string   `yaml:"name"`
	XLEN                     int      `yaml:"xlen"`
	Misa                     string   `yaml:"misa"`
	RAM                      uint64   `yaml:"ram"`
	RAMSize                  uint64   `yaml:"ram_size"`
	InstructionHWBreakpoints int      `yaml:"instruction_hardware_breakpoint_count"`
	ResetVectors             []uint64 `yaml:"reset_vectors"`
	LinkScript               string   `yaml:"link_script"`
	System                   string   `yaml:"system"`
	HonorsTdata1Hmode        *bool    `yaml:"honors_tdata1_hmode"`
	Capabilities             []string `yaml:"capabilities"`
	// Count repeats this entry, for targets with many identical harts.
	Count int `yaml:"count"`
}

// Load reads a target definition. xlen, when non-zero, fills in harts that
// leave XLEN unset and must agree with those that set it.
func Load(path string, xlen int) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	var ft fileTarget
	if err := yaml.Unmarshal(data, &ft); err != nil {
		return nil, fmt.Errorf("target %s: %w", path, err)
	}
	name := ft.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return build(name, filepath.Dir(path), ft, xlen)
}

func build(name, dir string, ft fileTarget, xlen int) (*Target, error) {
	t := &Target{
		Name:                     name,
		Dir:                      dir,
		TimeoutSec:               ft.TimeoutSec,
		ServerTimeoutSec:         ft.ServerTimeoutSec,
		OpenOCDConfig:            ft.OpenOCDConfig,
		GDBSetup:                 ft.GDBSetup,
		SkipTests:                ft.SkipTests,
		SupportsClintMtime:       ft.SupportsClintMtime == nil || *ft.SupportsClintMtime,
		ImplementsCustomTest:     ft.ImplementsCustomTest,
		InvalidMemoryReturnsZero: ft.InvalidMemoryReturnsZero,
		SupportHasel:             ft.SupportHasel == nil || *ft.SupportHasel,
		FreeRTOS:                 ft.FreeRTOS,
		Backend:                  ft.Backend,
	}
	if t.TimeoutSec == 0 {
		t.TimeoutSec = DefaultTimeoutSec
	}
	if t.ServerTimeoutSec == 0 {
		t.ServerTimeoutSec = DefaultServerTimeoutSec
	}
	if t.OpenOCDConfig == "" {
		t.OpenOCDConfig = name + ".cfg"
	}
	t.OpenOCDConfig = resolve(dir, t.OpenOCDConfig)

	for _, fh := range ft.Harts {
		count := fh.Count
		if count <= 0 {
			count = 1
		}
		for j := 0; j < count; j++ {
			h, err := buildHart(t, len(t.Harts), fh)
			if err != nil {
				return nil, err
			}
			t.Harts = append(t.Harts, h)
		}
	}
	if len(t.Harts) == 0 {
		return nil, fmt.Errorf("target %s has no harts", name)
	}
	if err := ForceXLEN(t, xlen); err != nil {
		return nil, err
	}
	return t, nil
}

func buildHart(t *Target, index int, fh fileHart) (*Hart, error) {
	h := &Hart{
		ID:                       index,
		Name:                     fh.Name,
		Index:                    index,
		XLEN:                     fh.XLEN,
		RAM:                      fh.RAM,
		RAMSize:                  fh.RAMSize,
		InstructionHWBreakpoints: fh.InstructionHWBreakpoints,
		ResetVectors:             fh.ResetVectors,
		LinkScript:               fh.LinkScript,
		System:                   fh.System,
		HonorsTdata1Hmode:        fh.HonorsTdata1Hmode == nil || *fh.HonorsTdata1Hmode,
		Capabilities:             fh.Capabilities,
	}
	if fh.ID != nil {
		h.ID = *fh.ID
	}
	if h.Name == "" {
		h.Name = fmt.Sprintf("%s-%d", t.Name, index)
	}
	if h.LinkScript == "" {
		h.LinkScript = t.Name + ".lds"
	}
	h.LinkScript = resolve(t.Dir, h.LinkScript)
	if h.System == "" {
		h.System = t.Name
	}
	if fh.Misa != "" {
		misa, ok := new(big.Int).SetString(fh.Misa, 0)
		if !ok {
			return nil, fmt.Errorf("target %s: hart %s: bad misa %q", t.Name, h.Name, fh.Misa)
		}
		h.misa = misa
	}
	return h, nil
}

func resolve(dir, path string) string {
	if filepath.IsAbs(path) || dir == "" {
		return path
	}
	return filepath.Join(dir, path)
}

// ErrXLENMismatch is returned when a forced XLEN disagrees with a hart's.
var ErrXLENMismatch = errors.New("xlen mismatch")

// ForceXLEN applies a command-line XLEN. Zero leaves the target alone.
func ForceXLEN(t *Target, xlen int) error {
	if xlen <= 0 {
		return nil
	}
	for _, h := range t.Harts {
		switch {
		case h.XLEN == 0:
			h.XLEN = xlen
		case h.XLEN != xlen:
			return fmt.Errorf("target %s: hart %s specifies XLEN %d but %d was requested: %w",
				t.Name, h.Name, h.XLEN, xlen, ErrXLENMismatch)
		}
	}
	return nil
}
