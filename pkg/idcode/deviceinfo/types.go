// Package deviceinfo names the devices an IDCODE scan can find.
package deviceinfo

import "github.com/OpenTraceLab/OpenTraceDebug/pkg/idcode"

// DeviceInfo describes a debug target reachable on a scan chain.
type DeviceInfo struct {
	IDCode       idcode.IDCode
	Manufacturer idcode.Manufacturer

	Name        string
	Family      string
	Description string

	// IRLength is the instruction register width in bits.
	IRLength int
	// Harts is the number of harts behind the debug module, 0 if unknown.
	Harts       int
	IsSimulator bool
}
