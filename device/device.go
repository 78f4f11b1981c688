// Package device implements the seekable, byte-addressed backing store that
// every other layer of the FATX driver reads and writes through. It knows
// nothing about partitions, clusters, or directories -- just bytes at
// offsets.
package device

import (
	"io"
	"os"

	"github.com/dargueta/fatx/errors"
)

// Backing is the minimal capability a disk image or block device must offer.
// *os.File satisfies this directly; so does an in-memory buffer such as
// github.com/xaionaro-go/bytesextra's ReadWriteSeeker, which is what the test
// suites in this module use in place of a real disk image. Device seeks
// before every read and write rather than requiring io.ReaderAt/io.WriterAt,
// which bytesextra's buffer does not implement; this is safe because the
// driver built on top of Device is documented as single-threaded.
type Backing interface {
	io.Reader
	io.Writer
	io.Seeker
}

// Device wraps a Backing store and provides absolute-offset reads and
// writes. Partition-relative addressing is layered on top by the partition
// package; Device itself always addresses byte 0 of the underlying store.
type Device struct {
	backing Backing
	closer  io.Closer
}

// Open opens the file at path for reading and writing and returns a Device
// backed by it. The caller is responsible for calling Close.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, errors.ErrDeviceIO.WrapError(err)
	}
	return &Device{backing: f, closer: f}, nil
}

// New wraps an already-open Backing store. If it also implements io.Closer,
// Close will close it; otherwise Close is a no-op.
func New(backing Backing) *Device {
	closer, _ := backing.(io.Closer)
	return &Device{backing: backing, closer: closer}
}

// Size returns the total length of the backing store, in bytes.
func (d *Device) Size() (int64, error) {
	size, err := d.backing.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.ErrDeviceIO.WrapError(err)
	}
	return size, nil
}

// ReadAt reads exactly length bytes starting at offset.
func (d *Device) ReadAt(offset int64, length int) ([]byte, error) {
	if _, err := d.backing.Seek(offset, io.SeekStart); err != nil {
		return nil, errors.ErrDeviceIO.WrapError(err)
	}

	buffer := make([]byte, length)
	n, err := io.ReadFull(d.backing, buffer)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, errors.ErrDeviceIO.WrapError(err)
	}
	if n < length {
		return nil, errors.ErrDeviceIO.WithMessage("short read")
	}
	return buffer, nil
}

// WriteAt writes data starting at offset.
func (d *Device) WriteAt(offset int64, data []byte) error {
	if _, err := d.backing.Seek(offset, io.SeekStart); err != nil {
		return errors.ErrDeviceIO.WrapError(err)
	}

	n, err := d.backing.Write(data)
	if err != nil {
		return errors.ErrDeviceIO.WrapError(err)
	}
	if n < len(data) {
		return errors.ErrDeviceIO.WithMessage("short write")
	}
	return nil
}

// Close releases the underlying backing store, if it supports it.
func (d *Device) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}
