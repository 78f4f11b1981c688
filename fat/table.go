// Package fat implements the in-memory File Allocation Table: chain
// traversal, first-fit contiguous allocation, chain freeing, and
// write-back. It knows about cluster numbers and FAT link values but
// nothing about what's stored in the clusters themselves.
package fat

import (
	"encoding/binary"

	"github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"

	"github.com/dargueta/fatx/device"
	"github.com/dargueta/fatx/errors"
	"github.com/dargueta/fatx/partition"
)

// minValidCluster is the lowest cluster number that can ever be traversed
// or referenced by a FAT link. Cluster 0 is reserved by the format; cluster
// 1 is not reserved for traversal purposes -- by convention it holds the
// root directory (spec's data model), so Next/Chain/FreeChain/SetNext must
// accept it even though Allocate will never hand it out.
const minValidCluster = 1

// firstAllocatableCluster is the lowest cluster number Allocate's search
// will ever hand out. It's one past minValidCluster because cluster 1 is
// reserved by convention for the root directory, which is never freed or
// reallocated by this driver.
const firstAllocatableCluster = 2

// Table is the in-memory representation of a FATX allocation table.
//
// The on-disk link array (entries) is the source of truth for chain
// structure. The bitmap is a derived index kept in lockstep with it solely
// to make the first-fit contiguous search in Allocate fast; it is never
// written to disk.
type Table struct {
	geom    partition.Geometry
	entries []uint32
	free    bitmap.Bitmap
}

// Load reads the whole FAT for geom off dev into memory.
func Load(dev *device.Device, geom partition.Geometry) (*Table, error) {
	entryBytes := 2
	if geom.FATWidth == 32 {
		entryBytes = 4
	}

	raw, err := dev.ReadAt(geom.PartitionOffset+geom.FATOffset, int(geom.TotalClusters)*entryBytes)
	if err != nil {
		return nil, err
	}

	entries := make([]uint32, geom.TotalClusters)
	for i := range entries {
		if geom.FATWidth == 16 {
			entries[i] = uint32(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		} else {
			entries[i] = binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		}
	}

	free := bitmap.New(int(geom.TotalClusters))
	for c := 0; c < int(geom.TotalClusters); c++ {
		allocated := c < firstAllocatableCluster || entries[c] != 0
		free.Set(c, allocated)
	}

	return &Table{geom: geom, entries: entries, free: free}, nil
}

func (t *Table) checkBounds(cluster uint32) error {
	if cluster < minValidCluster || cluster >= t.geom.TotalClusters {
		return errors.ErrCorruptChain.WithMessage(
			"cluster number out of range")
	}
	return nil
}

// Next returns the raw FAT link value stored at cluster. The caller must
// check IsEnd on the result before treating it as another cluster number.
func (t *Table) Next(cluster uint32) (uint32, error) {
	if err := t.checkBounds(cluster); err != nil {
		return 0, err
	}
	return t.entries[cluster], nil
}

// IsEnd reports whether value terminates a cluster chain.
func (t *Table) IsEnd(value uint32) bool {
	return t.geom.IsEndOfChain(value)
}

// Chain walks the cluster chain starting at start and returns every cluster
// number visited, in order. It fails with ErrCorruptChain if the chain
// cycles back on itself or steps to a cluster number outside the volume.
func (t *Table) Chain(start uint32) ([]uint32, error) {
	visited := make(map[uint32]bool)
	chain := []uint32{}

	current := start
	for !t.IsEnd(current) {
		if visited[current] {
			return nil, errors.ErrCorruptChain.WithMessage("cycle detected")
		}
		if err := t.checkBounds(current); err != nil {
			return nil, err
		}
		visited[current] = true
		chain = append(chain, current)

		next, err := t.Next(current)
		if err != nil {
			return nil, err
		}
		current = next
	}

	return chain, nil
}

// findFreeRun performs a first-fit search of the free bitmap for a run of n
// consecutive free clusters, starting from cluster 2 -- cluster 1 is never
// considered, since it's reserved by convention for the root directory.
func (t *Table) findFreeRun(n uint) (uint32, error) {
	runStart := uint32(0)
	runLength := uint(0)

	for c := firstAllocatableCluster; c < int(t.geom.TotalClusters); c++ {
		if t.free.Get(c) {
			runLength = 0
			continue
		}

		if runLength == 0 {
			runStart = uint32(c)
		}
		runLength++
		if runLength == n {
			return runStart, nil
		}
	}

	return 0, errors.ErrOutOfSpace.WithMessage("no contiguous run large enough")
}

// Allocate finds a contiguous run of n free clusters, links them into a
// chain terminated by the end-of-chain sentinel, marks them used in the
// bitmap, and returns the first cluster of the new chain. It makes no
// on-disk changes by itself -- Flush does that.
func (t *Table) Allocate(n uint) (uint32, error) {
	if n == 0 {
		return 0, errors.ErrInvalidArgument.WithMessage("allocate requires n >= 1")
	}

	first, err := t.findFreeRun(n)
	if err != nil {
		return 0, err
	}

	for i := uint(0); i < n-1; i++ {
		cluster := first + uint32(i)
		t.entries[cluster] = cluster + 1
		t.free.Set(int(cluster), true)
	}
	last := first + uint32(n) - 1
	t.entries[last] = t.geom.EndOfChainSentinel()
	t.free.Set(int(last), true)

	return first, nil
}

// FreeChain walks the chain starting at start and sets every visited
// cluster's FAT entry back to 0 (free). It is a no-op if start is already an
// end-of-chain marker, and is bounded by the total cluster count so a cycle
// can't hang the driver.
func (t *Table) FreeChain(start uint32) error {
	current := start
	for i := uint32(0); i < t.geom.TotalClusters && !t.IsEnd(current); i++ {
		if err := t.checkBounds(current); err != nil {
			return err
		}
		next := t.entries[current]
		t.entries[current] = 0
		t.free.Set(int(current), false)
		current = next
	}
	return nil
}

// SetNext overwrites the raw FAT link value stored at cluster. It exists
// for the directory engine's chain-growth path, which needs to re-point the
// last cluster of an existing chain at a newly allocated run instead of
// leaving it at the end-of-chain sentinel Allocate wrote there.
func (t *Table) SetNext(cluster, value uint32) error {
	if err := t.checkBounds(cluster); err != nil {
		return err
	}
	t.entries[cluster] = value
	t.free.Set(int(cluster), cluster < firstAllocatableCluster || value != 0)
	return nil
}

// Flush writes the entire FAT back to its fixed location on dev, using
// FATWidth-sized entries. For FAT16 volumes only the low 16 bits of each
// entry are written.
func (t *Table) Flush(dev *device.Device) error {
	entryBytes := 2
	if t.geom.FATWidth == 32 {
		entryBytes = 4
	}

	buffer := make([]byte, len(t.entries)*entryBytes)
	writer := bytewriter.New(buffer)

	for _, value := range t.entries {
		if t.geom.FATWidth == 16 {
			if err := binary.Write(writer, binary.LittleEndian, uint16(value)); err != nil {
				return errors.ErrDeviceIO.WrapError(err)
			}
		} else {
			if err := binary.Write(writer, binary.LittleEndian, value); err != nil {
				return errors.ErrDeviceIO.WrapError(err)
			}
		}
	}

	return dev.WriteAt(t.geom.PartitionOffset+t.geom.FATOffset, buffer)
}
