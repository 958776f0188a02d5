// Command rvdebug runs RISC-V external debug tests against simulators and
// hardware, and hosts the remote bit-bang tools those tests rely on.
package main

import "github.com/OpenTraceLab/OpenTraceDebug/cmd/rvdebug/cmd"

func main() {
	cmd.Execute()
}
