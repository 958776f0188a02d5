package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/jtag"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List debug probes OpenOCD could drive",
	Long: `Scan the host for USB debug probes (FTDI, CMSIS-DAP, J-Link) and print each
with the OpenOCD interface config to source for a hardware target. The remote
bit-bang transport used by simulators is always listed.`,
	Args: cobra.NoArgs,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := jtag.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Detected debug interfaces:")
	for _, iface := range infos {
		if iface.VendorID == 0 && iface.ProductID == 0 {
			fmt.Fprintf(out, "  - %s [%s] -f %s\n", iface.Label(), iface.Kind, iface.OpenOCD)
			continue
		}
		fmt.Fprintf(out, "  - %s [%s] (VID:PID %04X:%04X) -f %s\n",
			iface.Label(), iface.Kind, iface.VendorID, iface.ProductID, iface.OpenOCD)
	}
	return nil
}
