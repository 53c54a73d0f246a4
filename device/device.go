// Package device hands out device numbers for filesystem backends and inode
// numbers within them.
package device

import (
	"sync"
	"sync/atomic"
)

// UnnamedMajor is the major number shared by all anonymous devices.
const UnnamedMajor = 0

type Device struct {
	Major uint16
	Minor uint32

	nextIno uint64
}

var (
	anonMu        sync.Mutex
	nextAnonMinor uint32 = 1
)

// NewAnonDevice returns a device with a fresh minor number under
// UnnamedMajor.
func NewAnonDevice() *Device {
	anonMu.Lock()
	defer anonMu.Unlock()

	d := &Device{
		Major: UnnamedMajor,
		Minor: nextAnonMinor,
	}

	nextAnonMinor++

	return d
}

// DeviceID encodes major and minor the way Linux's new_encode_dev does.
func (d *Device) DeviceID() uint64 {
	return MakeDeviceID(d.Major, d.Minor)
}

// NextIno returns the next unused inode number on this device, starting
// at 1.
func (d *Device) NextIno() uint64 {
	return atomic.AddUint64(&d.nextIno, 1)
}

func MakeDeviceID(major uint16, minor uint32) uint64 {
	return uint64((minor & 0xff) | ((uint32(major) & 0xfff) << 8) | ((minor >> 8) << 20))
}

func DecodeDeviceID(rdev uint64) (uint16, uint32) {
	major := uint16((rdev >> 8) & 0xfff)
	minor := uint32((rdev & 0xff) | ((rdev >> 20) << 8))
	return major, minor
}
