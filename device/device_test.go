package device

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vektra/neko"
)

func TestDevice(t *testing.T) {
	n := neko.Modern(t)

	n.It("assigns distinct anonymous devices", func(t *testing.T) {
		a := NewAnonDevice()
		b := NewAnonDevice()

		require.NotEqual(t, a.DeviceID(), b.DeviceID())
	})

	n.It("hands out increasing inode numbers", func(t *testing.T) {
		d := NewAnonDevice()

		require.Equal(t, uint64(1), d.NextIno())
		require.Equal(t, uint64(2), d.NextIno())
	})

	n.It("round trips device ids", func(t *testing.T) {
		major, minor := DecodeDeviceID(MakeDeviceID(5, 1))
		require.Equal(t, uint16(5), major)
		require.Equal(t, uint32(1), minor)

		major, minor = DecodeDeviceID(MakeDeviceID(4, 300))
		require.Equal(t, uint16(4), major)
		require.Equal(t, uint32(300), minor)
	})

	n.Meow()
}
