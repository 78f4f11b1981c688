package device_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatx/device"
)

func TestWriteAtThenReadAt(t *testing.T) {
	backing := make([]byte, 4096)
	dev := device.New(bytesextra.NewReadWriteSeeker(backing))

	payload := []byte("hello, fatx")
	require.NoError(t, dev.WriteAt(128, payload))

	read, err := dev.ReadAt(128, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, read)
}

func TestReadAtPastEndFails(t *testing.T) {
	backing := make([]byte, 16)
	dev := device.New(bytesextra.NewReadWriteSeeker(backing))

	_, err := dev.ReadAt(8, 32)
	require.Error(t, err)
}

func TestSizeReportsBackingLength(t *testing.T) {
	backing := make([]byte, 4096)
	dev := device.New(bytesextra.NewReadWriteSeeker(backing))

	size, err := dev.Size()
	require.NoError(t, err)
	require.EqualValues(t, 4096, size)
}

func TestCloseIsNoOpWithoutCloser(t *testing.T) {
	backing := make([]byte, 16)
	dev := device.New(bytesextra.NewReadWriteSeeker(backing))
	require.NoError(t, dev.Close())
}
