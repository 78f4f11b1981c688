// Package directory implements the FATX directory engine: decoding a
// cluster chain into an ordered entry list, looking entries up by name,
// inserting and tombstoning them, and writing the list back out.
package directory

import (
	"bytes"

	"github.com/dargueta/fatx/cluster"
	"github.com/dargueta/fatx/dirent"
	"github.com/dargueta/fatx/errors"
	"github.com/dargueta/fatx/fat"
	"github.com/dargueta/fatx/partition"
)

// Directory is one directory's worth of decoded entries, tied to the
// cluster chain it lives in.
type Directory struct {
	io           *cluster.IO
	table        *fat.Table
	geom         partition.Geometry
	firstCluster uint32
	entries      []dirent.Entry
}

// Load reads and decodes the directory whose data begins at firstCluster.
// It always reads the full cluster chain, never just the first cluster --
// including for the root directory (see spec's note on this being an
// explicit bug fix relative to the original implementation).
func Load(io *cluster.IO, table *fat.Table, geom partition.Geometry, firstCluster uint32) (*Directory, error) {
	data, err := io.ReadChain(table, firstCluster)
	if err != nil {
		return nil, err
	}

	entries, err := dirent.DecodeDirectory(data)
	if err != nil {
		return nil, err
	}

	return &Directory{
		io:           io,
		table:        table,
		geom:         geom,
		firstCluster: firstCluster,
		entries:      entries,
	}, nil
}

// FirstCluster returns the first cluster of this directory's chain.
func (d *Directory) FirstCluster() uint32 {
	return d.firstCluster
}

// Entries returns every decoded record, including tombstones and entries
// with an unrecognized name_length. Order matches on-disk order.
func (d *Directory) Entries() []dirent.Entry {
	return d.entries
}

// List returns only the live, valid entries -- what a directory listing
// should show.
func (d *Directory) List() []dirent.Entry {
	live := make([]dirent.Entry, 0, len(d.entries))
	for _, e := range d.entries {
		if e.IsLive() {
			live = append(live, e)
		}
	}
	return live
}

// Lookup does a case-insensitive search for name among the live entries. It
// fails with ErrNotFound if there's no match, or ErrAmbiguous if there's
// more than one -- which only happens on a corrupted or hand-edited
// directory.
func (d *Directory) Lookup(name string) (dirent.Entry, int, error) {
	foundIndex := -1
	for i, e := range d.entries {
		if !e.IsLive() || !dirent.EqualFold(e.Name(), name) {
			continue
		}
		if foundIndex != -1 {
			return dirent.Entry{}, -1, errors.ErrAmbiguous.WithMessage(name)
		}
		foundIndex = i
	}

	if foundIndex == -1 {
		return dirent.Entry{}, -1, errors.ErrNotFound.WithMessage(name)
	}
	return d.entries[foundIndex], foundIndex, nil
}

// Insert appends entry to the in-memory entry list. It does not write
// anything to disk -- call Save for that.
func (d *Directory) Insert(entry dirent.Entry) {
	d.entries = append(d.entries, entry)
}

// Tombstone marks the single live entry named name as deleted, in place, so
// the directory's on-disk layout doesn't shift. It does not free the
// entry's cluster chain or write anything to disk; callers are responsible
// for both.
func (d *Directory) Tombstone(name string) error {
	_, index, err := d.Lookup(name)
	if err != nil {
		return err
	}
	d.entries[index] = d.entries[index].Tombstoned()
	return nil
}

// Prune drops every entry that isn't a live, valid one. This is used only
// when exporting or mirroring a directory to another file system, which has
// no use for tombstones or unknown records; normal file operations never
// call it, since doing so would shift the on-disk position of every entry
// after the first dropped one.
func (d *Directory) Prune() {
	live := d.entries[:0]
	for _, e := range d.entries {
		if e.IsLive() {
			live = append(live, e)
		}
	}
	d.entries = live
}

// Save writes the directory's current entry list back to its cluster
// chain. Because a shortened entry list must not leave stale bytes after
// the new terminator, Save first overwrites the full current chain extent
// with 0xFF, then writes the freshly encoded entries (plus a terminator)
// starting at the first cluster. If the encoded entries no longer fit in
// the existing chain, the chain is grown by allocating and linking
// additional clusters; if that allocation itself fails, Save fails with
// ErrDirectoryFull.
func (d *Directory) Save() error {
	chain, err := d.table.Chain(d.firstCluster)
	if err != nil {
		return err
	}

	encoded := dirent.EncodeDirectory(d.entries)
	currentExtent := int64(len(chain)) * d.geom.ClusterSize

	if int64(len(encoded)) > currentExtent {
		neededClusters := (int64(len(encoded)) - currentExtent + d.geom.ClusterSize - 1) / d.geom.ClusterSize

		newFirst, allocErr := d.table.Allocate(uint(neededClusters))
		if allocErr != nil {
			return errors.ErrDirectoryFull.WrapError(allocErr)
		}

		lastExisting := chain[len(chain)-1]
		if err := d.table.SetNext(lastExisting, newFirst); err != nil {
			return err
		}

		chain, err = d.table.Chain(d.firstCluster)
		if err != nil {
			return err
		}
		currentExtent = int64(len(chain)) * d.geom.ClusterSize
	}

	blank := bytes.Repeat([]byte{0xFF}, int(currentExtent))
	if err := d.io.WriteChain(d.table, d.firstCluster, blank); err != nil {
		return err
	}
	return d.io.WriteChain(d.table, d.firstCluster, encoded)
}
