package jtag

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes adapter families.
type InterfaceKind string

const (
	InterfaceKindFTDI     InterfaceKind = "ftdi"
	InterfaceKindCMSISDAP InterfaceKind = "cmsis-dap"
	InterfaceKindJLink    InterfaceKind = "jlink"
	InterfaceKindBitbang  InterfaceKind = "remote-bitbang"
)

// InterfaceInfo describes a detected adapter interface/transport.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	// OpenOCD names the interface config to source for this probe.
	OpenOCD string
}

// Label returns a user-friendly description for the interface.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	if i.Kind != "" {
		return fmt.Sprintf("%s (%04X:%04X)", string(i.Kind), i.VendorID, i.ProductID)
	}
	return fmt.Sprintf("Interface %04X:%04X", i.VendorID, i.ProductID)
}

// DiscoverInterfaces enumerates USB debug probes OpenOCD can drive for a
// hardware target. The remote-bitbang entry used by simulators is always
// present.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	var results []InterfaceInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if info, ok := ClassifyUSB(uint16(desc.Vendor), uint16(desc.Product)); ok {
			results = append(results, info)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, err
	}

	results = append(results, InterfaceInfo{
		Kind:        InterfaceKindBitbang,
		Description: "Remote bit-bang (simulator)",
		OpenOCD:     "interface/remote_bitbang.cfg",
	})
	return results, nil
}

// ClassifyUSB matches a VID/PID pair against known probes.
func ClassifyUSB(vendor, product uint16) (InterfaceInfo, bool) {
	for _, known := range knownProbes {
		if vendor == known.VendorID && product == known.ProductID {
			return known, true
		}
	}
	return InterfaceInfo{}, false
}

var knownProbes = []InterfaceInfo{
	{Kind: InterfaceKindFTDI, VendorID: 0x0403, ProductID: 0x6010, Description: "FTDI FT2232", OpenOCD: "interface/ftdi/minimodule.cfg"},
	{Kind: InterfaceKindFTDI, VendorID: 0x0403, ProductID: 0x6014, Description: "FTDI FT232H", OpenOCD: "interface/ftdi/um232h.cfg"},
	{Kind: InterfaceKindFTDI, VendorID: 0x15ba, ProductID: 0x002a, Description: "Olimex ARM-USB-TINY-H", OpenOCD: "interface/ftdi/olimex-arm-usb-tiny-h.cfg"},
	{Kind: InterfaceKindCMSISDAP, VendorID: 0x2e8a, ProductID: 0x000c, Description: "Raspberry Pi Debug Probe", OpenOCD: "interface/cmsis-dap.cfg"},
	{Kind: InterfaceKindCMSISDAP, VendorID: 0x0d28, ProductID: 0x0204, Description: "DAPLink CMSIS-DAP", OpenOCD: "interface/cmsis-dap.cfg"},
	{Kind: InterfaceKindJLink, VendorID: 0x1366, ProductID: 0x0101, Description: "SEGGER J-Link", OpenOCD: "interface/jlink.cfg"},
}
