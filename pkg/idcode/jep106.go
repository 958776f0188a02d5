package idcode

import "fmt"

// manufacturers maps the 11-bit IDCODE manufacturer field (continuation count
// in [10:7], JEP106 id in [6:0]) to vendors commonly found on RISC-V debug
// chains.
var manufacturers = map[uint16]Manufacturer{
	0x009: {Code: 0x009, Name: "Intel", Abbreviation: "Intel"},
	0x020: {Code: 0x020, Name: "STMicroelectronics", Abbreviation: "STM"},
	0x021: {Code: 0x021, Name: "Lattice", Abbreviation: "Lattice"},
	0x049: {Code: 0x049, Name: "Xilinx", Abbreviation: "Xilinx"},
	0x06E: {Code: 0x06E, Name: "Altera", Abbreviation: "Altera"},
	0x23B: {Code: 0x23B, Name: "ARM", Abbreviation: "ARM"},
	0x272: {Code: 0x272, Name: "Espressif", Abbreviation: "Espressif"},
	0x31E: {Code: 0x31E, Name: "GigaDevice", Abbreviation: "GD"},
	0x489: {Code: 0x489, Name: "SiFive", Abbreviation: "SiFive"},
}

// LookupManufacturer returns manufacturer info for a JEP106 code
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	m, ok := manufacturers[code]
	if !ok {
		return Manufacturer{
			Code:         code,
			Name:         fmt.Sprintf("Unknown (0x%03X)", code),
			Abbreviation: "Unknown",
		}, false
	}
	return m, true
}
