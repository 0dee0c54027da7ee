package testing

import (
	"io"
	"testing"

	"github.com/dargueta/bs2fat/disks"
	"github.com/dargueta/bs2fat/file_systems/common/blockcache"
	"github.com/dargueta/bs2fat/file_systems/fat"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// NewMemoryImage returns a zeroed in-memory image and a block cache over it.
//
//   - The stream can be written to, but its size is fixed to
//     `bytesPerBlock * totalBlocks`.
//   - Changes made through the cache only show up in the stream after the
//     cache is flushed.
func NewMemoryImage(
	t *testing.T, bytesPerBlock, totalBlocks uint,
) (io.ReadWriteSeeker, *blockcache.BlockCache) {
	imageBytes := make([]byte, bytesPerBlock*totalBlocks)
	stream := bytesextra.NewReadWriteSeeker(imageBytes)
	cache := blockcache.WrapStream(stream, bytesPerBlock, totalBlocks, false)

	require.EqualValues(t, int64(len(imageBytes)), cache.Size(), "cache is wrong size")
	return stream, cache
}

// FormatImage creates an in-memory image of the predefined geometry `slug`,
// formats it, and returns a block cache over it. The cache's block size is 512
// bytes no matter what sector size the geometry uses.
func FormatImage(
	t *testing.T, slug string, label string,
) (io.ReadWriteSeeker, *blockcache.BlockCache) {
	geometry, err := disks.GetPredefinedDiskGeometry(slug)
	require.NoError(t, err)

	options := fat.NewFormatOptions(geometry)
	options.Label = label
	options.VolumeID = 0x1234ABCD
	return FormatImageWithOptions(t, options)
}

// FormatImageWithOptions is the same as [FormatImage] but takes arbitrary
// format options.
func FormatImageWithOptions(
	t *testing.T, options fat.FormatOptions,
) (io.ReadWriteSeeker, *blockcache.BlockCache) {
	totalBytes := uint(options.TotalSectors) * uint(options.SectorSize)
	stream, cache := NewMemoryImage(t, 512, totalBytes/512)

	err := fat.Format(cache, options)
	require.NoError(t, err, "failed to format image")

	err = cache.SetBytesPerBlock(512)
	require.NoError(t, err)
	return stream, cache
}

// ReadImage returns the entire contents of a stream, leaving the stream
// pointer at the end.
func ReadImage(t *testing.T, stream io.ReadSeeker) []byte {
	_, err := stream.Seek(0, io.SeekStart)
	require.NoError(t, err)

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	return data
}
