package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDebug/internal/config"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/backend"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/harness"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/suite"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/target"
)

var runCfg config.Config

var runCmd = &cobra.Command{
	Use:   "run <target.yaml> [test...]",
	Short: "Run debug tests against a target",
	Long: `Bring up the target described by a YAML definition, then run each selected
test with a fresh simulator, debug server and gdb. Tests are selected by
substring; with no names every test runs.

Every flag may also come from an RVDEBUG_<FLAG> environment variable or a
dotenv file, e.g. RVDEBUG_GDB=riscv32-unknown-elf-gdb.

Exit status is 0 when every test passed or did not apply, 1 otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCfg.RegisterFlags(runCmd.Flags())
	runCmd.MarkFlagsMutuallyExclusive("32", "64")
}

func runRun(cmd *cobra.Command, args []string) error {
	if err := runCfg.Load(cmd.Flags()); err != nil {
		return err
	}
	misa, err := runCfg.MisaValue()
	if err != nil {
		return err
	}
	t, err := target.Load(args[0], runCfg.XLEN())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	compiler := &target.Compiler{
		GCC:       runCfg.GCC,
		SourceDir: runCfg.SourceDir,
		Isolate:   runCfg.Isolate,
	}
	opts := backend.Options{
		SimCmd:    runCfg.SimCmd,
		ServerCmd: runCfg.ServerCmd,
		RelayCmd:  runCfg.RelayCmd,
		LogDir:    runCfg.LogDir,
		Compiler:  compiler,
		Debug:     runCfg.ServerDebug,
	}
	if runCfg.PrintLogNames {
		opts.LogNames = out
	}

	hc, err := harness.NewContext(harness.Context{
		Target:        t,
		Strategy:      backend.ForTarget(t, opts),
		Compiler:      compiler,
		GDBCommand:    runCfg.GDB,
		GDBPipes:      runCfg.GDBPipes,
		NoResetDelays: runCfg.NoResetDelays,
		LogDir:        runCfg.LogDir,
		Misa:          misa,
		FailFast:      runCfg.FailFast,
		PrintFailures: runCfg.PrintFailures,
		PrintLogNames: runCfg.PrintLogNames,
		ListTests:     runCfg.ListTests,
		Reproduce:     fmt.Sprintf("%s run %s", filepath.Base(os.Args[0]), args[0]),
		Out:           out,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, err := harness.NewRunner(hc, suite.ExamineTarget{}).Run(ctx, suite.All(), args[1:])
	if err != nil {
		return err
	}
	if status != 0 {
		return exitStatus(status)
	}
	return nil
}
