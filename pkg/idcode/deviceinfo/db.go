package deviceinfo

import (
	"sync"

	"github.com/OpenTraceLab/OpenTraceDebug/pkg/idcode"
)

// part names a device independently of its silicon revision.
type part struct {
	manufacturer uint16
	number       uint16
}

var (
	mu    sync.RWMutex
	parts = make(map[part]DeviceInfo)
)

// Register adds or replaces the entry for a manufacturer code and part
// number.
func Register(manufacturer, number uint16, info DeviceInfo) {
	mu.Lock()
	defer mu.Unlock()
	parts[part{manufacturer, number}] = info
}

// Lookup describes the device behind raw, ignoring the version field. For
// parts that are not registered ok is false and the result is named
// "Unknown device", still carrying the decoded IDCODE and manufacturer.
func Lookup(raw uint32) (info DeviceInfo, ok bool) {
	id := idcode.Decode(raw)
	m, _ := idcode.LookupManufacturer(id.ManufacturerCode)

	mu.RLock()
	info, ok = parts[part{id.ManufacturerCode, id.PartNumber}]
	mu.RUnlock()
	if !ok {
		info = DeviceInfo{
			Name:        "Unknown device",
			Description: "No entry in device database",
		}
	}
	info.IDCode = id
	info.Manufacturer = m
	return info, ok
}
