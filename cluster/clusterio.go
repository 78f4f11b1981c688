// Package cluster translates cluster numbers to device offsets and performs
// single-cluster and whole-chain reads and writes.
package cluster

import (
	"github.com/dargueta/fatx/device"
	"github.com/dargueta/fatx/errors"
	"github.com/dargueta/fatx/fat"
	"github.com/dargueta/fatx/partition"
)

// IO reads and writes clusters on a mounted FATX partition.
type IO struct {
	dev  *device.Device
	geom partition.Geometry
}

// New returns a cluster IO layer for geom, reading and writing through dev.
func New(dev *device.Device, geom partition.Geometry) *IO {
	return &IO{dev: dev, geom: geom}
}

// ReadCluster returns the raw bytes of cluster c.
func (io *IO) ReadCluster(c uint32) ([]byte, error) {
	offset := io.geom.PartitionOffset + io.geom.ClusterOffset(c)
	return io.dev.ReadAt(offset, int(io.geom.ClusterSize))
}

// WriteCluster writes min(len(data), ClusterSize) bytes to cluster c.
func (io *IO) WriteCluster(c uint32, data []byte) error {
	offset := io.geom.PartitionOffset + io.geom.ClusterOffset(c)
	if int64(len(data)) > io.geom.ClusterSize {
		data = data[:io.geom.ClusterSize]
	}
	return io.dev.WriteAt(offset, data)
}

// ReadChain walks table starting at start and returns the concatenated bytes
// of every cluster in the chain. The result is always an exact multiple of
// the cluster size; callers that want file contents must truncate to the
// directory entry's file size themselves.
func (io *IO) ReadChain(table *fat.Table, start uint32) ([]byte, error) {
	chain, err := table.Chain(start)
	if err != nil {
		return nil, err
	}

	data := make([]byte, 0, int64(len(chain))*io.geom.ClusterSize)
	for _, c := range chain {
		clusterData, err := io.ReadCluster(c)
		if err != nil {
			return nil, err
		}
		data = append(data, clusterData...)
	}
	return data, nil
}

// WriteChain walks the existing chain starting at start and writes
// successive cluster-sized slices of data into each cluster. The chain must
// already be at least ceil(len(data)/ClusterSize) clusters long --
// WriteChain does not allocate. If the chain runs out before data is
// exhausted, it fails with ErrShortChain.
func (io *IO) WriteChain(table *fat.Table, start uint32, data []byte) error {
	chain, err := table.Chain(start)
	if err != nil {
		return err
	}

	needed := (int64(len(data)) + io.geom.ClusterSize - 1) / io.geom.ClusterSize
	if needed == 0 {
		needed = 1
	}
	if int64(len(chain)) < needed {
		return errors.ErrShortChain.WithMessage(
			"chain too short to hold data being written")
	}

	offset := 0
	for _, c := range chain {
		if offset >= len(data) {
			break
		}
		end := offset + int(io.geom.ClusterSize)
		if end > len(data) {
			end = len(data)
		}
		if err := io.WriteCluster(c, data[offset:end]); err != nil {
			return err
		}
		offset = end
	}
	return nil
}
