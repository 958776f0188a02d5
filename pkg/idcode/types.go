// Package idcode decodes IEEE 1149.1 IDCODE registers read off a scan chain.
package idcode

import "fmt"

// IDCode represents a parsed IEEE 1149.1 JTAG IDCODE
type IDCode struct {
	Raw              uint32 // full IDCODE
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106 bank and id
	HasIDCode        bool   // bit 0 == 1
}

// reservedManufacturer is the all-ones bank 0 id, which no vendor is assigned.
const reservedManufacturer = 0x7F

// Decode splits raw into its fields.
func Decode(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8(raw >> 28),
		PartNumber:       uint16(raw >> 12),
		ManufacturerCode: uint16(raw>>1) & 0x7FF,
		HasIDCode:        raw&1 == 1,
	}
}

// Make assembles an IDCODE from its fields. Bit 0 is always set.
func Make(version uint8, part uint16, manufacturer uint16) uint32 {
	return uint32(version&0xF)<<28 | uint32(part)<<12 | uint32(manufacturer&0x7FF)<<1 | 1
}

// Valid reports whether the code could come from a real TAP's IDCODE
// register rather than from BYPASS or a floating TDO.
func (id IDCode) Valid() bool {
	return id.HasIDCode && id.Raw != 0xFFFFFFFF && id.ManufacturerCode != reservedManufacturer
}

// Bank returns the JEP106 bank (continuation count + 1).
func (id IDCode) Bank() int {
	return int(id.ManufacturerCode>>7) + 1
}

func (id IDCode) String() string {
	m, _ := LookupManufacturer(id.ManufacturerCode)
	return fmt.Sprintf("0x%08x (%s, part 0x%04x, version %d)", id.Raw, m.Name, id.PartNumber, id.Version)
}

// Manufacturer represents a JEP106 manufacturer entry
type Manufacturer struct {
	Code         uint16 // bank and id as they appear in an IDCODE
	Name         string // "SiFive"
	Abbreviation string
}
