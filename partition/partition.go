// Package partition locates a FATX partition on a device, validates its
// header, and derives the geometry (cluster size, FAT width, data region
// start) that every other layer of the driver needs.
package partition

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatx/device"
	"github.com/dargueta/fatx/errors"
)

// HeaderSize is the size, in bytes, of the FATX partition header.
const HeaderSize = 16

// Magic is the four-byte signature every FATX partition begins with.
const Magic = "FATX"

// FATOffset is the partition-relative byte offset of the FAT region. It is
// fixed by the format, not derived from geometry.
const FATOffset = 0x1000

// maxReservedFAT16 is the lowest FAT16 value that terminates a chain.
const maxReservedFAT16 = 0xFFF0

// maxReservedFAT32 is the lowest FAT32 value that terminates a chain.
const maxReservedFAT32 = 0xFFFFFFF0

// EndOfChain16 is the end-of-chain sentinel written by allocation on a
// FATX16 volume.
const EndOfChain16 = 0xFFFF

// EndOfChain32 is the end-of-chain sentinel written by allocation on a
// FATX32 volume.
const EndOfChain32 = 0xFFFFFFFF

// fat16ClusterCeiling is the largest cluster count that still uses 16-bit FAT
// entries; above it the volume is FATX32.
const fat16ClusterCeiling = 65525

// Geometry describes a mounted FATX partition. Every field is derived once
// at mount time and is immutable thereafter.
type Geometry struct {
	// PartitionOffset is the absolute byte offset of the FATX header on the
	// device.
	PartitionOffset int64
	// PartitionSize is the size of the partition, in bytes.
	PartitionSize int64
	// VolumeID is the opaque volume identifier from the header.
	VolumeID uint32
	// SectorsPerCluster is read directly from the header.
	SectorsPerCluster uint32
	// ClusterSize is SectorsPerCluster * 512.
	ClusterSize int64
	// TotalClusters is PartitionSize / ClusterSize.
	TotalClusters uint32
	// FATWidth is 16 or 32, selected by TotalClusters.
	FATWidth int
	// FATOffset is the partition-relative byte offset of the FAT.
	FATOffset int64
	// DataOffset is the partition-relative byte offset of cluster 1.
	DataOffset int64
	// RootCluster is the first cluster of the root directory, read from the
	// header. By convention this is always 1.
	RootCluster uint32
}

// IsEndOfChain reports whether value terminates a cluster chain for this
// geometry's FAT width.
func (g Geometry) IsEndOfChain(value uint32) bool {
	if g.FATWidth == 16 {
		return value >= maxReservedFAT16
	}
	return value >= maxReservedFAT32
}

// EndOfChainSentinel is the value Allocate writes to mark the last cluster
// of a freshly allocated chain.
func (g Geometry) EndOfChainSentinel() uint32 {
	if g.FATWidth == 16 {
		return EndOfChain16
	}
	return EndOfChain32
}

// ClusterOffset returns the partition-relative byte offset of cluster n.
// Cluster numbering starts at 1; cluster 0 is not a data cluster.
func (g Geometry) ClusterOffset(n uint32) int64 {
	return g.DataOffset + int64(n-1)*g.ClusterSize
}

// rawHeader is the on-disk layout of the 16-byte FATX header.
type rawHeader struct {
	Magic             [4]byte
	VolumeID          uint32
	SectorsPerCluster uint32
	RootCluster       uint32
}

// ReadGeometry reads and validates the FATX header at partitionOffset on dev
// and derives the full geometry for a partition of partitionSize bytes.
func ReadGeometry(dev *device.Device, partitionOffset, partitionSize int64) (Geometry, error) {
	raw, err := dev.ReadAt(partitionOffset, HeaderSize)
	if err != nil {
		return Geometry{}, err
	}

	var header rawHeader
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &header); err != nil {
		return Geometry{}, errors.ErrDeviceIO.WrapError(err)
	}

	if string(header.Magic[:]) != Magic {
		return Geometry{}, errors.ErrInvalidSignature.WithMessage(
			fmt.Sprintf("got %q", header.Magic[:]))
	}

	var validation *multierror.Error

	clusterSize := int64(header.SectorsPerCluster) * 512
	if clusterSize <= 0 {
		validation = multierror.Append(validation, fmt.Errorf(
			"sectors_per_cluster %d yields a non-positive cluster size",
			header.SectorsPerCluster))
	}
	if partitionSize < clusterSize {
		validation = multierror.Append(validation, fmt.Errorf(
			"partition size %d is smaller than a single cluster (%d bytes)",
			partitionSize, clusterSize))
	}
	if err := validation.ErrorOrNil(); err != nil {
		return Geometry{}, errors.ErrInvalidSignature.WrapError(err)
	}

	totalClusters := uint32(partitionSize / clusterSize)

	fatWidth := 16
	if totalClusters > fat16ClusterCeiling {
		fatWidth = 32
	}

	fatEntryBytes := int64(2)
	if fatWidth == 32 {
		fatEntryBytes = 4
	}

	dataOffset := roundUpTo4K(FATOffset + int64(totalClusters)*fatEntryBytes)

	return Geometry{
		PartitionOffset:   partitionOffset,
		PartitionSize:     partitionSize,
		VolumeID:          header.VolumeID,
		SectorsPerCluster: header.SectorsPerCluster,
		ClusterSize:       clusterSize,
		TotalClusters:     totalClusters,
		FATWidth:          fatWidth,
		FATOffset:         FATOffset,
		DataOffset:        dataOffset,
		RootCluster:       header.RootCluster,
	}, nil
}

func roundUpTo4K(value int64) int64 {
	const alignment = 0x1000
	if value%alignment == 0 {
		return value
	}
	return ((value / alignment) + 1) * alignment
}

// -----------------------------------------------------------------------------
// Fixed Xbox partition table

// Entry describes one of the five fixed partitions in the Xbox HDD layout.
type Entry struct {
	Index  int    `csv:"index"`
	Offset int64  `csv:"offset"`
	Size   int64  `csv:"size"`
	Label  string `csv:"label"`
}

//go:embed partitions.csv
var fixedTableCSV string

var fixedTable map[int]Entry

func init() {
	fixedTable = make(map[int]Entry)
	reader := strings.NewReader(fixedTableCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Entry) error {
		if _, exists := fixedTable[row.Index]; exists {
			return fmt.Errorf("duplicate partition table entry for index %d", row.Index)
		}
		fixedTable[row.Index] = row
		return nil
	})
	if err != nil && err != io.EOF {
		panic(err)
	}
}

// LookupIndex returns the (offset, size) pair for the i'th partition in the
// fixed Xbox HDD layout.
func LookupIndex(i int) (Entry, error) {
	entry, ok := fixedTable[i]
	if !ok {
		return Entry{}, errors.ErrInvalidPartitionIndex.WithMessage(
			fmt.Sprintf("index %d", i))
	}
	return entry, nil
}

// TableSize returns the number of entries in the fixed partition table.
func TableSize() int {
	return len(fixedTable)
}
