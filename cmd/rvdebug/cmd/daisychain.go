package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/rbb"
)

var (
	chainQuiet bool
	chainDebug bool
)

var daisychainCmd = &cobra.Command{
	Use:   "daisychain <listen-port> <tap-port>...",
	Short: "Combine remote bit-bang TAPs into one scan chain",
	Long: `Connect to several remote bit-bang endpoints (one per simulator) and expose
them as a single chain on listen-port. The first TAP sees the client's TDI and
the last TAP drives its TDO. A listen-port of 0 picks a free port; the chosen
port is printed as "Listening on port N."`,
	Args: cobra.MinimumNArgs(2),
	RunE: runDaisychain,
}

func init() {
	rootCmd.AddCommand(daisychainCmd)

	daisychainCmd.Flags().BoolVar(&chainQuiet, "quiet", false, "don't print blink messages")
	daisychainCmd.Flags().BoolVar(&chainDebug, "debug", false, "trace every write and shift")
}

func parsePorts(args []string) ([]int, error) {
	ports := make([]int, len(args))
	for i, a := range args {
		p, err := strconv.Atoi(a)
		if err != nil || p < 0 || p > 65535 {
			return nil, fmt.Errorf("bad port %q", a)
		}
		ports[i] = p
	}
	return ports, nil
}

func runDaisychain(cmd *cobra.Command, args []string) error {
	ports, err := parsePorts(args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", ports[0]))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	defer ln.Close()

	out := cmd.OutOrStdout()
	chain := rbb.NewChain()
	defer chain.Close()
	if chainDebug {
		chain.Trace = out
	}
	for _, p := range ports[1:] {
		c, err := rbb.Dial(ctx, fmt.Sprintf("localhost:%d", p))
		if err != nil {
			return err
		}
		if err := chain.AddTap(c); err != nil {
			c.Close()
			return err
		}
	}

	fmt.Fprintf(out, "Listening on port %d.\n", ln.Addr().(*net.TCPAddr).Port)
	return serveUntilDone(ctx, ln, &rbb.Server{Handler: chain, Quiet: chainQuiet, Out: out})
}

// serveUntilDone runs srv on ln until ctx ends.
func serveUntilDone(ctx context.Context, ln net.Listener, srv *rbb.Server) error {
	go func() {
		<-ctx.Done()
		glog.Infof("rbb: shutting down listener on %s", ln.Addr())
		ln.Close()
	}()
	return srv.Serve(ln)
}
