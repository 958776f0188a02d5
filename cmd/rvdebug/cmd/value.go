package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/gdbvalue"
)

var valueCmd = &cobra.Command{
	Use:   "value [gdb output...]",
	Short: "Parse gdb print output and show it as YAML",
	Long: `Parse the right-hand side of gdb print output the way the tests do and print
the resulting value as YAML. With no arguments each line of stdin is parsed
as its own document.

Examples:
  rvdebug value '$1 = {0x1, 0x2 <repeats 3 times>}'
  echo '$2 = {float = 1.5, double = 2.5}' | rvdebug value`,
	RunE: runValue,
}

func init() {
	rootCmd.AddCommand(valueCmd)
}

func runValue(cmd *cobra.Command, args []string) error {
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()

	if len(args) > 0 {
		return encodeValue(enc, strings.Join(args, " "))
	}
	sc := bufio.NewScanner(cmd.InOrStdin())
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if err := encodeValue(enc, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

func encodeValue(enc *yaml.Encoder, line string) error {
	v, err := gdbvalue.ParseRHS(line)
	if err != nil {
		return fmt.Errorf("parse %q: %w", line, err)
	}
	return enc.Encode(v)
}
