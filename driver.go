// Package fatx is the root driver package: it ties together the device,
// FAT, cluster I/O, and directory engine into the file-level operations a
// caller actually wants (read, write, list, remove, make directory).
package fatx

import (
	stderrors "errors"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/fatx/cluster"
	"github.com/dargueta/fatx/device"
	"github.com/dargueta/fatx/dirent"
	"github.com/dargueta/fatx/directory"
	"github.com/dargueta/fatx/errors"
	"github.com/dargueta/fatx/fat"
	"github.com/dargueta/fatx/partition"
)

// Driver is a mounted FATX partition plus the directory the caller is
// currently positioned in. It is not safe for concurrent use -- same as the
// basis it's grounded on, it assumes one goroutine drives it at a time.
type Driver struct {
	dev     *device.Device
	geom    partition.Geometry
	table   *fat.Table
	io      *cluster.IO
	mounted bool

	// dirStack holds every directory currently loaded along the path from
	// the root to the current directory. Index 0 is always the root;
	// the last element is the current directory. ChangeDirectory pushes
	// and pops this stack; it never shrinks below one entry.
	dirStack []*directory.Directory
}

// Open opens the image file at path for reading and writing. No partition
// is mounted yet -- call one of the MountX methods before anything else.
func Open(path string) (*Driver, error) {
	dev, err := device.Open(path)
	if err != nil {
		return nil, err
	}
	return &Driver{dev: dev}, nil
}

func (d *Driver) mount(offset, size int64) error {
	geom, err := partition.ReadGeometry(d.dev, offset, size)
	if err != nil {
		return err
	}

	table, err := fat.Load(d.dev, geom)
	if err != nil {
		return err
	}

	io := cluster.New(d.dev, geom)

	root, err := directory.Load(io, table, geom, geom.RootCluster)
	if err != nil {
		return err
	}

	d.geom = geom
	d.table = table
	d.io = io
	d.dirStack = []*directory.Directory{root}
	d.mounted = true
	return nil
}

// MountDefault mounts the first partition of the fixed Xbox HDD layout
// (the system partition, index 0).
func (d *Driver) MountDefault() error {
	return d.MountIndex(0)
}

// MountIndex mounts the i'th partition of the fixed Xbox HDD layout.
func (d *Driver) MountIndex(i int) error {
	entry, err := partition.LookupIndex(i)
	if err != nil {
		return err
	}
	return d.mount(entry.Offset, entry.Size)
}

// MountRange mounts a partition occupying an arbitrary byte range of the
// device, bypassing the fixed Xbox table entirely.
func (d *Driver) MountRange(offset, size int64) error {
	return d.mount(offset, size)
}

func (d *Driver) checkMounted() error {
	if !d.mounted {
		return errors.ErrNotMounted
	}
	return nil
}

func (d *Driver) cwd() *directory.Directory {
	return d.dirStack[len(d.dirStack)-1]
}

// ChangeDirectory moves the current directory along path, which is
// interpreted component by component, separated by "/". A leading "/"
// resets to the root first; "." is a no-op component; ".." pops back
// towards the root (and is a no-op at the root itself).
func (d *Driver) ChangeDirectory(path string) error {
	if err := d.checkMounted(); err != nil {
		return err
	}

	stack := d.dirStack
	if strings.HasPrefix(path, "/") {
		stack = stack[:1]
	}

	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		default:
			entry, _, err := stack[len(stack)-1].Lookup(part)
			if err != nil {
				return err
			}
			if !entry.IsDirectory() {
				return errors.ErrNotADirectory.WithMessage(part)
			}
			sub, err := directory.Load(d.io, d.table, d.geom, entry.FirstCluster)
			if err != nil {
				return err
			}
			stack = append(stack, sub)
		}
	}

	d.dirStack = stack
	return nil
}

// FileExists reports whether name is a live entry (file or directory) in
// the current directory. It returns true only when the lookup finds exactly
// one live match. Every lookup failure, including ErrAmbiguous and
// ErrNotMounted, yields false; no error is returned to the caller.
func (d *Driver) FileExists(name string) bool {
	if d.checkMounted() != nil {
		return false
	}
	_, _, err := d.cwd().Lookup(name)
	return err == nil
}

// Stat returns the directory entry for name in the current directory.
func (d *Driver) Stat(name string) (dirent.Entry, error) {
	if err := d.checkMounted(); err != nil {
		return dirent.Entry{}, err
	}
	entry, _, err := d.cwd().Lookup(name)
	return entry, err
}

// ReadFile returns the full contents of the file named name in the current
// directory, truncated to its recorded file size.
func (d *Driver) ReadFile(name string) ([]byte, error) {
	if err := d.checkMounted(); err != nil {
		return nil, err
	}

	entry, _, err := d.cwd().Lookup(name)
	if err != nil {
		return nil, err
	}
	if entry.IsDirectory() {
		return nil, errors.ErrInvalidArgument.WithMessage(name + " is a directory")
	}

	if entry.FileSize == 0 {
		return []byte{}, nil
	}

	data, err := d.io.ReadChain(d.table, entry.FirstCluster)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > int64(entry.FileSize) {
		data = data[:entry.FileSize]
	}
	return data, nil
}

// neededClusterCount returns how many clusters are needed to hold
// byteLength bytes, with a floor of one cluster (even for zero-length
// data, matching the source's behavior).
func (d *Driver) neededClusterCount(byteLength int) int64 {
	if byteLength == 0 {
		return 1
	}
	return (int64(byteLength) + d.geom.ClusterSize - 1) / d.geom.ClusterSize
}

// WriteFile creates a new file named name in the current directory holding
// data. It fails with ErrAlreadyExists if a live entry with that name
// already exists, whether a file or a directory -- this is new-file-only,
// not an overwrite. Writing zero-length data still allocates one cluster,
// matching the source format's behavior.
func (d *Driver) WriteFile(name string, data []byte) error {
	if err := d.checkMounted(); err != nil {
		return err
	}

	needed := d.neededClusterCount(len(data))
	cwd := d.cwd()

	if _, _, err := cwd.Lookup(name); err == nil {
		return errors.ErrAlreadyExists.WithMessage(name)
	} else if !stderrors.Is(err, errors.ErrNotFound) {
		return err
	}

	first, err := d.table.Allocate(uint(needed))
	if err != nil {
		return err
	}
	if err := d.io.WriteChain(d.table, first, data); err != nil {
		return err
	}

	entry, err := dirent.NewLiveEntry(name, 0, first, uint32(len(data)))
	if err != nil {
		return err
	}
	cwd.Insert(entry)
	return d.flushCurrent()
}

// Remove deletes the file or empty directory named name from the current
// directory. Removing a non-empty directory fails without touching
// anything.
func (d *Driver) Remove(name string) error {
	if err := d.checkMounted(); err != nil {
		return err
	}

	cwd := d.cwd()
	entry, _, err := cwd.Lookup(name)
	if err != nil {
		return err
	}

	if entry.IsDirectory() {
		sub, err := directory.Load(d.io, d.table, d.geom, entry.FirstCluster)
		if err != nil {
			return err
		}
		if len(sub.List()) > 0 {
			return errors.ErrInvalidArgument.WithMessage(name + " is not empty")
		}
	}

	if err := d.table.FreeChain(entry.FirstCluster); err != nil {
		return err
	}
	if err := cwd.Tombstone(name); err != nil {
		return err
	}
	return d.flushCurrent()
}

// MakeDirectory creates a new, empty subdirectory named name in the
// current directory. If a live entry with that name already exists, it
// succeeds without making any changes when the entry is itself a
// directory (idempotent), and fails with ErrAlreadyExists when it's a
// file.
func (d *Driver) MakeDirectory(name string) error {
	if err := d.checkMounted(); err != nil {
		return err
	}

	cwd := d.cwd()
	if existing, _, err := cwd.Lookup(name); err == nil {
		if existing.IsDirectory() {
			return nil
		}
		return errors.ErrAlreadyExists.WithMessage(name)
	} else if !stderrors.Is(err, errors.ErrNotFound) {
		return err
	}

	first, err := d.table.Allocate(1)
	if err != nil {
		return err
	}

	empty := dirent.EncodeDirectory(nil)
	if err := d.io.WriteChain(d.table, first, empty); err != nil {
		return err
	}

	entry, err := dirent.NewLiveEntry(name, dirent.AttrDirectory, first, 0)
	if err != nil {
		return err
	}
	cwd.Insert(entry)
	return d.flushCurrent()
}

// List returns the live entries of the current directory.
func (d *Driver) List() []dirent.Entry {
	if d.checkMounted() != nil {
		return nil
	}
	return d.cwd().List()
}

// flushCurrent saves the current directory and writes the FAT back to
// disk, in that order, after a mutating operation has already updated the
// in-memory FAT and written cluster data.
func (d *Driver) flushCurrent() error {
	if err := d.cwd().Save(); err != nil {
		return err
	}
	return d.table.Flush(d.dev)
}

// Flush saves every directory along the current path and writes the FAT
// back to disk. Mutating operations already call this after themselves;
// Flush exists for callers that want an explicit durability point, and
// aggregates every error it encounters instead of stopping at the first.
func (d *Driver) Flush() error {
	if err := d.checkMounted(); err != nil {
		return err
	}

	var aggregate *multierror.Error
	for _, dir := range d.dirStack {
		if err := dir.Save(); err != nil {
			aggregate = multierror.Append(aggregate, err)
		}
	}
	if err := d.table.Flush(d.dev); err != nil {
		aggregate = multierror.Append(aggregate, err)
	}
	return aggregate.ErrorOrNil()
}

// Close flushes pending state and releases the underlying device.
func (d *Driver) Close() error {
	var aggregate *multierror.Error
	if d.mounted {
		if err := d.Flush(); err != nil {
			aggregate = multierror.Append(aggregate, err)
		}
	}
	if err := d.dev.Close(); err != nil {
		aggregate = multierror.Append(aggregate, err)
	}
	return aggregate.ErrorOrNil()
}
