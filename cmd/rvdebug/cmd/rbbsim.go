package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/rbb"
)

var (
	simPort     int
	simIDCode   string
	simIRLength int
)

var rbbSimCmd = &cobra.Command{
	Use:   "rbb-sim",
	Short: "Serve a model TAP over remote bit-bang",
	Long: `Serve a single IEEE 1149.1 TAP with IDCODE and BYPASS on a remote bit-bang
port. It announces itself the way spike does, so it can stand in for a
simulator when checking the relay or scan tooling.

Examples:
  rvdebug rbb-sim --port 5001
  rvdebug rbb-sim --idcode 0x10e31913 --ir-length 5`,
	Args: cobra.NoArgs,
	RunE: runRBBSim,
}

func init() {
	rootCmd.AddCommand(rbbSimCmd)

	rbbSimCmd.Flags().IntVarP(&simPort, "port", "p", 0, "port to listen on (0 picks one)")
	rbbSimCmd.Flags().StringVar(&simIDCode, "idcode", "0xdeadbeef", "IDCODE the TAP reports")
	rbbSimCmd.Flags().IntVar(&simIRLength, "ir-length", 5, "instruction register width")
}

func runRBBSim(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseUint(simIDCode, 0, 32)
	if err != nil {
		return fmt.Errorf("bad --idcode %q: %w", simIDCode, err)
	}
	if simIRLength < 2 {
		return fmt.Errorf("--ir-length must be at least 2, got %d", simIRLength)
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", simPort))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Listening for remote bitbang connection on port %d.\n", ln.Addr().(*net.TCPAddr).Port)
	model := jtag.NewTAPModel(uint32(id), simIRLength)
	return serveUntilDone(ctx, ln, &rbb.Server{Handler: model, Quiet: true, Out: out})
}
