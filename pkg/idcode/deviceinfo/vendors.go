package deviceinfo

func init() {
	const (
		sifive     = 0x489
		gigadevice = 0x31E
		// spike's DTM reports 0xdeadbeef, which does not decode to a real
		// JEP106 entry.
		spike = 0x777
	)

	Register(spike, 0xeadb, DeviceInfo{
		Name:        "Spike DTM",
		Family:      "spike",
		Description: "RISC-V ISA simulator debug transport module",
		IRLength:    5,
		IsSimulator: true,
	})

	Register(sifive, 0x0000, DeviceInfo{
		Name:        "FE310",
		Family:      "Freedom E300",
		Description: "SiFive E31 RV32IMAC MCU",
		IRLength:    5,
		Harts:       1,
	})

	Register(gigadevice, 0x0005, DeviceInfo{
		Name:        "GD32VF103",
		Family:      "GD32VF",
		Description: "Bumblebee RV32IMAC MCU",
		IRLength:    5,
		Harts:       1,
	})
}
