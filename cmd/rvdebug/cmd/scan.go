package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/idcode/deviceinfo"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceDebug/pkg/rbb"
)

var scanMaxDevices int

var scanCmd = &cobra.Command{
	Use:   "scan <host:port>",
	Short: "Read the IDCODEs of a remote bit-bang scan chain",
	Long: `Connect to a remote bit-bang endpoint (a simulator, rbb-sim or daisychain),
reset the chain and shift out every TAP's IDCODE.

Examples:
  rvdebug scan localhost:5001
  rvdebug scan --max-devices 4 localhost:5555`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().IntVar(&scanMaxDevices, "max-devices", 8, "longest chain to look for")
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	client, err := rbb.Dial(ctx, args[0])
	if err != nil {
		return err
	}
	defer client.Close()

	adapter := jtag.NewBitbangAdapter(rbb.AsHandler(client), args[0])
	codes, err := jtag.ScanIDCodes(adapter, scanMaxDevices)
	out := cmd.OutOrStdout()
	if errors.Is(err, jtag.ErrNoDevices) {
		fmt.Fprintln(out, "No devices found.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("scan %s: %w", args[0], err)
	}

	fmt.Fprintf(out, "Found %d device(s) at %s:\n", len(codes), args[0])
	for i, code := range codes {
		info, _ := deviceinfo.Lookup(code)
		if !info.IDCode.Valid() {
			fmt.Fprintf(out, "  TAP %d: no IDCODE (BYPASS)\n", i)
			continue
		}
		fmt.Fprintf(out, "  TAP %d: %s\n", i, info.IDCode)
		fmt.Fprintf(out, "         %s", info.Name)
		if info.IRLength > 0 {
			fmt.Fprintf(out, ", IR length %d", info.IRLength)
		}
		fmt.Fprintln(out)
	}
	return nil
}
