package cmd

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "rvdebug",
	Short: "RISC-V external debug test harness",
	Long: `Run gdb-driven debug tests against RISC-V targets and manage the remote
bit-bang plumbing between simulators and the debug server.

Examples:
  rvdebug run targets/spike32.yaml                  # Run every test on spike
  rvdebug run --fail-fast targets/spike64.yaml Mem  # Run the memory tests
  rvdebug daisychain 0 5001 5002                    # Chain two simulator TAPs
  rvdebug scan localhost:5001                       # Read IDCODEs over bit-bang`,
	Version:       "0.1.0",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// exitStatus ends the process with a status and no message.
type exitStatus int

func (e exitStatus) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// Execute runs the root command
func Execute() {
	err := rootCmd.Execute()
	glog.Flush()
	if err == nil {
		return
	}
	var status exitStatus
	if errors.As(err, &status) {
		os.Exit(int(status))
	}
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func init() {
	// glog registers -v, -logtostderr and friends on the Go flag set.
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)
}
