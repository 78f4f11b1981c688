// Package dirent implements the 64-byte FATX directory entry codec: the
// byte-exact layout described by the format, decoupled from any particular
// language's struct packing rules (the source format has none -- see
// EncodeEntry/DecodeEntry).
package dirent

import (
	"bytes"
	"encoding/binary"
	"strings"
	"time"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/fatx/errors"
)

// Size is the length, in bytes, of a single directory entry record.
const Size = 64

// rawNameSize is the length of the fixed name field within a record.
const rawNameSize = 42

// Attribute flags (offset 1 of the record).
const (
	AttrReadOnly  = 1 << 0
	AttrHidden    = 1 << 1
	AttrSystem    = 1 << 2
	AttrVolume    = 1 << 3
	AttrDirectory = 1 << 4
	AttrArchive   = 1 << 5
)

// Special values of the name_length field (offset 0 of the record).
const (
	// Tombstone marks a deleted entry. It stays in the directory, in place,
	// until the directory is pruned.
	Tombstone = 0xE5
	// Terminator marks the end of a directory's live entries. A scan of the
	// directory stops at the first entry bearing this value.
	Terminator = 0xFF
	// MaxNameLength is the longest name a single entry can hold.
	MaxNameLength = rawNameSize
)

// Entry is a decoded 64-byte FATX directory entry.
type Entry struct {
	NameLength   uint8
	Attribute    uint8
	RawName      [rawNameSize]byte
	FirstCluster uint32
	FileSize     uint32
	ModTime      uint16
	ModDate      uint16
	CreateTime   uint16
	CreateDate   uint16
	AccessTime   uint16
	AccessDate   uint16
}

// Name returns the entry's name. It's only meaningful when IsLive is true.
func (e Entry) Name() string {
	n := int(e.NameLength)
	if n > rawNameSize {
		n = rawNameSize
	}
	return string(e.RawName[:n])
}

// IsLive reports whether this is a normal, non-deleted entry with a usable
// name (name_length in 1..42).
func (e Entry) IsLive() bool {
	return e.NameLength >= 1 && e.NameLength <= MaxNameLength
}

// IsTombstone reports whether this entry has been deleted but not yet
// pruned from the directory.
func (e Entry) IsTombstone() bool {
	return e.NameLength == Tombstone
}

// IsTerminator reports whether this entry marks the end of the directory.
func (e Entry) IsTerminator() bool {
	return e.NameLength == Terminator
}

// IsDirectory reports whether the directory attribute bit is set.
func (e Entry) IsDirectory() bool {
	return e.Attribute&AttrDirectory != 0
}

// NewLiveEntry builds a fresh live entry with the given name, attribute, and
// geometry-derived fields. It does not set any of the timestamp fields; the
// FATX format does not require them and they aren't load-bearing for any
// operation this driver implements.
func NewLiveEntry(name string, attribute uint8, firstCluster, fileSize uint32) (Entry, error) {
	if len(name) == 0 || len(name) > MaxNameLength {
		return Entry{}, errors.ErrInvalidArgument.WithMessage(
			"name must be 1-42 bytes")
	}

	e := Entry{
		NameLength:   uint8(len(name)),
		Attribute:    attribute,
		FirstCluster: firstCluster,
		FileSize:     fileSize,
	}
	copy(e.RawName[:], name)
	for i := len(name); i < rawNameSize; i++ {
		e.RawName[i] = 0xFF
	}
	return e, nil
}

// Tombstoned returns a copy of e with its name_length set to Tombstone. The
// rest of the record, including the name bytes, is left untouched so the
// directory's on-disk layout doesn't shift.
func (e Entry) Tombstoned() Entry {
	e.NameLength = Tombstone
	return e
}

// DecodeEntry parses a single 64-byte record.
func DecodeEntry(data []byte) (Entry, error) {
	if len(data) != Size {
		return Entry{}, errors.ErrDeviceIO.WithMessage("directory entry must be exactly 64 bytes")
	}

	var e Entry
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &e); err != nil {
		return Entry{}, errors.ErrDeviceIO.WrapError(err)
	}
	return e, nil
}

// EncodeEntry serializes a single entry into a 64-byte record.
func EncodeEntry(e Entry) []byte {
	buffer := make([]byte, Size)
	writer := bytewriter.New(buffer)
	binary.Write(writer, binary.LittleEndian, e)
	return buffer
}

// terminatorEntry is the fresh 64-byte terminator record appended after the
// live entries whenever a directory is serialized.
func terminatorEntry() Entry {
	e := Entry{NameLength: Terminator}
	for i := range e.RawName {
		e.RawName[i] = 0xFF
	}
	return e
}

// DecodeDirectory consumes data 64 bytes at a time and returns every entry
// before the first terminator; the terminator itself is not included.
// Tombstones and entries with an unrecognized name_length are preserved in
// the returned slice so that re-encoding keeps the directory's on-disk
// ordering stable.
func DecodeDirectory(data []byte) ([]Entry, error) {
	entries := []Entry{}
	for offset := 0; offset+Size <= len(data); offset += Size {
		entry, err := DecodeEntry(data[offset : offset+Size])
		if err != nil {
			return nil, err
		}
		if entry.IsTerminator() {
			break
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// EncodeDirectory serializes entries followed by one fresh terminator
// record, per spec: the byte immediately following the last encoded entry
// must have name_length == 0xFF.
func EncodeDirectory(entries []Entry) []byte {
	buffer := make([]byte, 0, Size*(len(entries)+1))
	for _, e := range entries {
		buffer = append(buffer, EncodeEntry(e)...)
	}
	buffer = append(buffer, EncodeEntry(terminatorEntry())...)
	return buffer
}

// FATTimestamp converts a FAT-style (date, time) pair into a time.Time. It's
// provided for callers that want to display an entry's timestamps; the
// driver itself neither reads nor writes these fields.
func FATTimestamp(date, clock uint16) time.Time {
	day := int(date & 0x1f)
	month := time.Month((date >> 5) & 0xf)
	year := 1980 + int(date>>9)

	second := int(clock&0x1f) * 2
	minute := int((clock >> 5) & 0x3f)
	hour := int(clock >> 11)

	return time.Date(year, month, day, hour, minute, second, 0, time.UTC)
}

// EqualFold reports whether two names are equal under ASCII case-folding,
// the comparison FATX directory lookups use.
func EqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}
