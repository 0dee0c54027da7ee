package blockcache_test

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
	"github.com/dargueta/bs2fat/file_systems/common/blockcache"
	diskotest "github.com/dargueta/bs2fat/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// Test block fetch functionality with no trickery such as reading past the end
// of the image.
func TestBlockCache__Fetch__Basic(t *testing.T) {
	rawBlocks := diskotest.CreateRandomImage(128, 64, t)
	cache := diskotest.CreateDefaultCache(128, 64, false, rawBlocks, t)

	currentBlock := make([]byte, 128)
	for i := c.LogicalBlock(0); i < 64; i++ {
		_, err := cache.ReadAt(currentBlock, i)
		if err != nil {
			t.Errorf("failed to read block %d of [0, 64): %s", i, err.Error())
			continue
		}

		start := i * 128
		if !bytes.Equal(currentBlock, rawBlocks[start:start+128]) {
			t.Errorf("block %d read from the cache doesn't match", i)
		}
	}
}

// Trying to read past the end of an image must fail.
func TestBlockCache__Fetch__ReadPastEnd(t *testing.T) {
	cache := diskotest.CreateDefaultCache(512, 16, false, nil, t)
	buffer := make([]byte, 512)

	nRead, err := cache.ReadAt(buffer, 0)
	assert.NoError(t, err, "failed to read first block")
	assert.Equal(t, len(buffer), nRead)

	nRead, err = cache.ReadAt(buffer, 15)
	assert.NoError(t, err, "failed to read last block")
	assert.Equal(t, len(buffer), nRead)

	// Block 16 is one past the last valid block.
	nRead, err = cache.ReadAt(buffer, 16)
	assert.Error(t, err, "tried reading block 16 of [0, 16) but it didn't fail")
	assert.Equal(t, 0, nRead)

	nRead, err = cache.ReadAt([]byte{}, 16)
	assert.Error(t, err, "tried reading 0 bytes of block 16 of [0, 16) but it didn't fail")
	assert.Equal(t, 0, nRead)

	nRead, err = cache.ReadAt(make([]byte, 8192), 0)
	assert.NoError(t, err, "failed reading entire image into buffer")
	assert.EqualValues(t, cache.Size(), nRead)

	nRead, err = cache.ReadAt(make([]byte, 8193), 0)
	assert.Error(t, err, "should've failed to read entire image + 1 byte into buffer")
	assert.Equal(t, 0, nRead)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

// Write to a block and then read back that same block. You should always get
// back what you wrote.
func TestBlockCache__Write__Basic(t *testing.T) {
	cache := diskotest.CreateDefaultCache(512, 16, true, nil, t)
	writeBuffer := make([]byte, cache.BytesPerBlock())
	readBuffer := make([]byte, cache.BytesPerBlock())

	for i := 0; i < int(cache.TotalBlocks()); i++ {
		rand.Read(writeBuffer)
		_, err := cache.WriteAt(writeBuffer, c.LogicalBlock(i))
		require.NoError(t, err)
		_, err = cache.ReadAt(readBuffer, c.LogicalBlock(i))
		require.NoError(t, err)

		assert.Equalf(
			t, writeBuffer, readBuffer, "wrote to block %d but read back different data", i)
	}
}

// Writing less than a full block must preserve the rest of that block.
func TestBlockCache__Write__PartialBlockKeepsTail(t *testing.T) {
	rawBlocks := diskotest.CreateRandomImage(512, 4, t)
	original := make([]byte, len(rawBlocks))
	copy(original, rawBlocks)

	cache := diskotest.CreateDefaultCache(512, 4, true, rawBlocks, t)
	n, err := cache.WriteAt([]byte{1, 2, 3}, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, cache.Flush())

	assert.Equal(t, []byte{1, 2, 3}, rawBlocks[1024:1027])
	assert.Equal(t, original[1027:1536], rawBlocks[1027:1536], "tail of block 2 was clobbered")
	assert.Equal(t, original[:1024], rawBlocks[:1024], "blocks before 2 were modified")
}

// Attempting to write starting past the end of the cache fails.
func TestBlockCache__Write__WriteStartingPastEndFails(t *testing.T) {
	cache := diskotest.CreateDefaultCache(512, 16, true, nil, t)
	writeBuffer := make([]byte, cache.BytesPerBlock())

	n, err := cache.WriteAt(writeBuffer, c.LogicalBlock(16))
	assert.Error(t, err, "writing past the end of the buffer should've failed but it didn't")
	assert.Equal(t, 0, n)
}

// If we write to a block inside the cache but the buffer extends past the end
// of the cache, it fails immediately and no data is modified.
func TestBlockCache__Write__WriteOverlappingPastEndFails(t *testing.T) {
	cache := diskotest.CreateDefaultCache(512, 16, true, nil, t)
	cacheData, err := cache.Data()
	require.NoError(t, err)
	copyOfOriginalData := make([]byte, len(cacheData))
	copy(copyOfOriginalData, cacheData)

	writeBuffer := make([]byte, cache.BytesPerBlock()*5)
	rand.Read(writeBuffer)

	n, err := cache.WriteAt(writeBuffer, c.LogicalBlock(12))
	assert.Error(t, err, "writing past the end of the buffer should've failed but it didn't")
	assert.Equal(t, 0, n)
	assert.Equal(t, copyOfOriginalData, cacheData, "cache data was modified but shouldn't've been")
}

// Only dirty blocks get written back on flush.
func TestBlockCache__Flush__OnlyDirtyBlocks(t *testing.T) {
	flushed := []c.LogicalBlock{}
	backing := make([]byte, 8*512)

	cache := blockcache.New(
		512,
		8,
		func(blockIndex c.LogicalBlock, buffer []byte) error {
			copy(buffer, backing[int(blockIndex)*len(buffer):])
			return nil
		},
		func(blockIndex c.LogicalBlock, buffer []byte) error {
			flushed = append(flushed, blockIndex)
			return nil
		},
		nil,
	)

	_, err := cache.WriteAt(make([]byte, 512), 3)
	require.NoError(t, err)
	_, err = cache.WriteAt(make([]byte, 1024), 5)
	require.NoError(t, err)
	_, err = cache.ReadAt(make([]byte, 512), 0)
	require.NoError(t, err)

	require.NoError(t, cache.Flush())
	assert.Equal(t, []c.LogicalBlock{3, 5, 6}, flushed)

	// Everything is clean now.
	flushed = flushed[:0]
	require.NoError(t, cache.Flush())
	assert.Empty(t, flushed)
}

func TestBlockCache__SetBytesPerBlock(t *testing.T) {
	rawBlocks := diskotest.CreateRandomImage(512, 16, t)
	original := make([]byte, len(rawBlocks))
	copy(original, rawBlocks)
	stream := bytesextra.NewReadWriteSeeker(rawBlocks)
	cache := blockcache.WrapStream(stream, 512, 16, false)

	_, err := cache.WriteAt([]byte{0xAA}, 3)
	require.NoError(t, err)

	require.NoError(t, cache.SetBytesPerBlock(2048))
	assert.EqualValues(t, 2048, cache.BytesPerBlock())
	assert.EqualValues(t, 4, cache.TotalBlocks())
	assert.EqualValues(t, 8192, cache.Size())

	// The pending write was flushed before the block size changed.
	_, err = stream.Seek(1536, io.SeekStart)
	require.NoError(t, err)
	flushed := make([]byte, 1)
	_, err = io.ReadFull(stream, flushed)
	require.NoError(t, err)
	assert.EqualValues(t, 0xAA, flushed[0])

	buffer := make([]byte, 2048)
	_, err = cache.ReadAt(buffer, 1)
	require.NoError(t, err)
	assert.Equal(t, original[2048:4096], buffer)

	_, err = cache.ReadAt(buffer, 4)
	assert.Error(t, err, "block 4 is past the end at 2048 bytes per block")
}

func TestBlockCache__SetBytesPerBlock__Invalid(t *testing.T) {
	cache := diskotest.CreateDefaultCache(512, 6, false, nil, t)

	err := cache.SetBytesPerBlock(768)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "768 isn't a power of 2")

	err = cache.SetBytesPerBlock(4096)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "4096 doesn't divide 3072")

	assert.EqualValues(t, 512, cache.BytesPerBlock(), "failed change modified the cache")
	assert.NoError(t, cache.SetBytesPerBlock(512), "setting the same size should be a no-op")
}

func TestBlockCache__Resize__NotSupportedByDefault(t *testing.T) {
	cache := diskotest.CreateDefaultCache(512, 4, true, nil, t)
	err := cache.Resize(8)
	assert.ErrorIs(t, err, errors.ErrNotSupported)
	assert.EqualValues(t, 4, cache.TotalBlocks())
}

func TestBlockCache__Resize__Grow(t *testing.T) {
	var resizedTo c.LogicalBlock
	cache := blockcache.New(
		512,
		2,
		func(c.LogicalBlock, []byte) error { return nil },
		func(c.LogicalBlock, []byte) error { return nil },
		func(newTotalBlocks c.LogicalBlock, bytesPerBlock uint) error {
			assert.EqualValues(t, 512, bytesPerBlock)
			resizedTo = newTotalBlocks
			return nil
		},
	)

	require.NoError(t, cache.Resize(5))
	assert.EqualValues(t, 5, resizedTo)
	assert.EqualValues(t, 5, cache.TotalBlocks())

	data, err := cache.Data()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 5*512), data)
}
