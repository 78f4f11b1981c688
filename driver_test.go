package fatx_test

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/fatx"
	"github.com/dargueta/fatx/dirent"
)

const (
	fixtureClusterSize   = 512
	fixtureTotalClusters = 32
	fixtureFATOffset     = 0x1000
	fixtureDataOffset    = 0x2000
	fixtureRootCluster   = 2
	fixturePartitionSize = fixtureTotalClusters * fixtureClusterSize
)

// buildFixtureImage returns the bytes of a minimal, valid FATX partition: a
// 16-byte header, a FAT16 table with only the root directory's single
// cluster allocated and terminated, and an empty root directory, with the
// root directory at rootCluster.
func buildFixtureImage(t *testing.T, rootCluster uint32) []byte {
	t.Helper()

	image := make([]byte, fixtureDataOffset+fixtureTotalClusters*fixtureClusterSize)

	copy(image[0:4], "FATX")
	binary.LittleEndian.PutUint32(image[4:8], 0xCAFEF00D)
	binary.LittleEndian.PutUint32(image[8:12], 1) // sectors per cluster
	binary.LittleEndian.PutUint32(image[12:16], rootCluster)

	// FAT16: two bytes per entry. The root is a one-cluster chain, so it's
	// its own end-of-chain marker.
	eocOffset := fixtureFATOffset + rootCluster*2
	binary.LittleEndian.PutUint16(image[eocOffset:eocOffset+2], 0xFFFF)

	rootDir := dirent.EncodeDirectory(nil)
	rootClusterOffset := fixtureDataOffset + int64(rootCluster-1)*fixtureClusterSize
	copy(image[rootClusterOffset:], rootDir)

	return image
}

// mountFixtureWithRoot writes a fresh fixture image with its root directory
// at rootCluster to a temp file, opens it with the driver, and mounts the
// whole thing as one partition.
func mountFixtureWithRoot(t *testing.T, rootCluster uint32) *fatx.Driver {
	t.Helper()

	f, err := os.CreateTemp(t.TempDir(), "fatx-fixture-*.img")
	require.NoError(t, err)
	_, err = f.Write(buildFixtureImage(t, rootCluster))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	driver, err := fatx.Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	require.NoError(t, driver.MountRange(0, fixturePartitionSize))
	return driver
}

// mountFixture mounts the standard fixture image, with its root directory
// at cluster 2.
func mountFixture(t *testing.T) *fatx.Driver {
	t.Helper()
	return mountFixtureWithRoot(t, fixtureRootCluster)
}

// TestMountWithRootClusterOne confirms a standard Xbox image, whose root
// directory conventionally lives at cluster 1, mounts and is usable --
// cluster 1 is reserved for the root by convention, not excluded from
// traversal.
func TestMountWithRootClusterOne(t *testing.T) {
	driver := mountFixtureWithRoot(t, 1)

	require.NoError(t, driver.WriteFile("HELLO.TXT", []byte("hi")))
	read, err := driver.ReadFile("HELLO.TXT")
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), read)
}

func TestWriteThenReadFileRoundTrip(t *testing.T) {
	driver := mountFixture(t)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, driver.WriteFile("FOX.TXT", payload))

	require.True(t, driver.FileExists("FOX.TXT"))

	read, err := driver.ReadFile("FOX.TXT")
	require.NoError(t, err)
	require.Equal(t, payload, read)
}

func TestWriteFileRejectsExistingName(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.WriteFile("BIG.BIN", []byte("first")))

	err := driver.WriteFile("BIG.BIN", []byte("second"))
	require.Error(t, err)

	// The original contents must be untouched.
	read, err := driver.ReadFile("BIG.BIN")
	require.NoError(t, err)
	require.Equal(t, []byte("first"), read)
}

func TestWriteZeroLengthFileStillAllocatesCluster(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.WriteFile("EMPTY.TXT", []byte{}))

	entry, err := driver.Stat("EMPTY.TXT")
	require.NoError(t, err)
	require.NotZero(t, entry.FirstCluster)
	require.EqualValues(t, 0, entry.FileSize)
}

func TestMakeDirectoryAndChangeDirectory(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.MakeDirectory("SUBDIR"))
	require.NoError(t, driver.ChangeDirectory("SUBDIR"))

	require.NoError(t, driver.WriteFile("NESTED.TXT", []byte("hello")))
	require.NoError(t, driver.ChangeDirectory(".."))

	entries := driver.List()
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	require.Contains(t, names, "SUBDIR")
}

func TestMakeDirectoryTwiceIsIdempotent(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.MakeDirectory("SUBDIR"))
	require.NoError(t, driver.MakeDirectory("SUBDIR"))

	entries := driver.List()
	count := 0
	for _, e := range entries {
		if e.Name() == "SUBDIR" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestMakeDirectoryOnExistingFileFails(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.WriteFile("AFILE", []byte("data")))
	err := driver.MakeDirectory("AFILE")
	require.Error(t, err)
}

func TestRemoveNonEmptyDirectoryFails(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.MakeDirectory("SUBDIR"))
	require.NoError(t, driver.ChangeDirectory("SUBDIR"))
	require.NoError(t, driver.WriteFile("NESTED.TXT", []byte("hello")))
	require.NoError(t, driver.ChangeDirectory(".."))

	err := driver.Remove("SUBDIR")
	require.Error(t, err)
}

func TestRemoveFile(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.WriteFile("GONE.TXT", []byte("bye")))
	require.NoError(t, driver.Remove("GONE.TXT"))
	require.False(t, driver.FileExists("GONE.TXT"))

	_, err := driver.ReadFile("GONE.TXT")
	require.Error(t, err)
}

func TestWriteFileOnExistingDirectoryFails(t *testing.T) {
	driver := mountFixture(t)

	require.NoError(t, driver.MakeDirectory("ADIR"))
	err := driver.WriteFile("ADIR", []byte("oops"))
	require.Error(t, err)
}
