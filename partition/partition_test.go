package partition_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/fatx/device"
	"github.com/dargueta/fatx/partition"
)

func buildHeader(magic string, volumeID, sectorsPerCluster, rootCluster uint32) []byte {
	header := make([]byte, partition.HeaderSize)
	copy(header[0:4], magic)
	binary.LittleEndian.PutUint32(header[4:8], volumeID)
	binary.LittleEndian.PutUint32(header[8:12], sectorsPerCluster)
	binary.LittleEndian.PutUint32(header[12:16], rootCluster)
	return header
}

func TestReadGeometryRejectsBadMagic(t *testing.T) {
	backing := make([]byte, 4096)
	copy(backing, buildHeader("XXXX", 1, 1, 1))
	dev := device.New(bytesextra.NewReadWriteSeeker(backing))

	_, err := partition.ReadGeometry(dev, 0, int64(len(backing)))
	require.Error(t, err)
}

func TestReadGeometryDerivesFAT16(t *testing.T) {
	const totalSize = 64 * 1024 // small enough to stay well under the FAT32 threshold
	backing := make([]byte, totalSize)
	copy(backing, buildHeader("FATX", 0xABCD, 1, 1))
	dev := device.New(bytesextra.NewReadWriteSeeker(backing))

	geom, err := partition.ReadGeometry(dev, 0, totalSize)
	require.NoError(t, err)
	require.Equal(t, 16, geom.FATWidth)
	require.EqualValues(t, 512, geom.ClusterSize)
	require.EqualValues(t, totalSize/512, geom.TotalClusters)
	require.EqualValues(t, 1, geom.RootCluster)
}

func TestReadGeometryRejectsUndersizedPartition(t *testing.T) {
	backing := make([]byte, 4096)
	copy(backing, buildHeader("FATX", 1, 200, 1)) // cluster size 200*512, bigger than the partition
	dev := device.New(bytesextra.NewReadWriteSeeker(backing))

	_, err := partition.ReadGeometry(dev, 0, int64(len(backing)))
	require.Error(t, err)
}

func TestFixedTableLookup(t *testing.T) {
	require.Greater(t, partition.TableSize(), 0)

	entry, err := partition.LookupIndex(0)
	require.NoError(t, err)
	require.Equal(t, "system", entry.Label)

	_, err = partition.LookupIndex(9999)
	require.Error(t, err)
}
