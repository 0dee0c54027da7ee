// Package blockcache provides a block-oriented cache that gives file system
// drivers a [common.BlockDevice] over any backing storage.
//
// All block indices begin at 0.
package blockcache

import (
	"fmt"
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
)

// FetchBlockCallback is a pointer to a function that writes the contents of a
// single block from the backing storage into `buffer`. The following guarantees
// apply:
//
//   - `blockIndex` is in the range [0, TotalBlocks).
//   - `buffer` is always BytesPerBlock bytes. Since the block size can change
//     over the lifetime of the cache, callbacks must use len(buffer) instead of
//     remembering the size the cache was created with.
type FetchBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

// FlushBlockCallback is a pointer to a function that writes the contents of the
// given buffer to a block in the backing storage. All restrictions and
// guarantees in [FetchBlockCallback] apply here too.
type FlushBlockCallback func(blockIndex c.LogicalBlock, buffer []byte) error

// ResizeCallback is a pointer to a function that is called to allocate or free
// blocks in the backing storage. It takes the new total number of blocks to
// occupy, and the size of those blocks.
//
// The implementation of the callback can do anything so long as 1) it doesn't
// modify the data in the blocks; 2) at least the requested number of blocks are
// available once the function returns.
//
// Standard conditions for error codes:
//
//   - [errors.EFBIG]: Can't increase the size of the object because it would
//     exceed some technical limit.
//   - [errors.ENOSPC]: Can't increase the size of the object because there's no
//     space left on the volume.
//   - [errors.ENOTSUP]: The object can't be resized as a general rule. This is
//     mostly only seen in systems with fixed-size directories, like FAT12/16.
type ResizeCallback func(newTotalBlocks c.LogicalBlock, bytesPerBlock uint) error

type BlockCache struct {
	loadedBlocks  bitmap.Bitmap
	dirtyBlocks   bitmap.Bitmap
	fetch         FetchBlockCallback
	flush         FlushBlockCallback
	resize        ResizeCallback
	bytesPerBlock uint
	totalBlocks   uint
	data          []byte
}

// New creates a new BlockCache.
//
// There are three callback functions:
//
//   - `fetchCb` reads a single block from the backing storage.
//   - `flushCb` writes a single block to the backing storage.
//   - `resizeCb` resizes the backing storage to a given number of blocks. If
//     nil is passed for this argument, a stub function is provided that always
//     returns an error with code [errors.ENOTSUP].
func New(
	bytesPerBlock uint,
	totalBlocks uint,
	fetchCb FetchBlockCallback,
	flushCb FlushBlockCallback,
	resizeCb ResizeCallback,
) *BlockCache {
	if resizeCb == nil {
		resizeCb = func(newTotalBlocks c.LogicalBlock, _ uint) error {
			return errors.NewWithMessage(
				errors.ENOTSUP,
				fmt.Sprintf(
					"resizing is not supported; size fixed at %d bytes",
					bytesPerBlock*totalBlocks,
				),
			)
		}
	}

	return &BlockCache{
		loadedBlocks:  bitmap.New(int(totalBlocks)),
		dirtyBlocks:   bitmap.New(int(totalBlocks)),
		data:          make([]byte, int(bytesPerBlock*totalBlocks)),
		fetch:         fetchCb,
		flush:         flushCb,
		resize:        resizeCb,
		bytesPerBlock: bytesPerBlock,
		totalBlocks:   totalBlocks,
	}
}

// WrapStream creates a [BlockCache] that wraps any [io.ReadWriteSeeker],
// optionally forbidding resizing the stream. To support resizing, `stream` must
// implement [common.Truncator], equivalent to [os.File.Truncate].
func WrapStream(
	stream io.ReadWriteSeeker,
	bytesPerBlock uint,
	totalBlocks uint,
	allowResize bool,
) *BlockCache {
	streamSize := int64(bytesPerBlock) * int64(totalBlocks)

	// Reading and writing differ only by a single method call on the stream.
	runCb := func(block c.LogicalBlock, buffer []byte, read bool) error {
		err := seekToBlock(stream, block, int64(len(buffer)), streamSize)
		if err != nil {
			return err
		}

		if read {
			_, err = io.ReadFull(stream, buffer)
		} else {
			_, err = stream.Write(buffer)
		}

		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return err
		}
		return nil
	}

	fetchCb := func(block c.LogicalBlock, buffer []byte) error {
		return runCb(block, buffer, true)
	}

	flushCb := func(block c.LogicalBlock, buffer []byte) error {
		return runCb(block, buffer, false)
	}

	var resizeCb ResizeCallback
	truncator, streamHasTruncate := stream.(c.Truncator)

	if allowResize && streamHasTruncate {
		resizeCb = func(newTotalBlocks c.LogicalBlock, blockSize uint) error {
			newSize := int64(newTotalBlocks) * int64(blockSize)
			err := truncator.Truncate(newSize)
			if err == nil {
				streamSize = newSize
			}
			return err
		}
	} else {
		// Note we don't return ENOSYS here because resizing *is* supported in
		// general, just not by this specific stream.
		resizeCb = func(c.LogicalBlock, uint) error {
			return errors.New(errors.ENOTSUP)
		}
	}

	return New(bytesPerBlock, totalBlocks, fetchCb, flushCb, resizeCb)
}

// seekToBlock sets the stream pointer for a stream to the offset of a block.
func seekToBlock(stream io.Seeker, block c.LogicalBlock, bytesPerBlock, streamSize int64) error {
	blockOffset := int64(block) * bytesPerBlock
	if blockOffset+bytesPerBlock > streamSize {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				block,
				streamSize/bytesPerBlock,
			),
		)
	}

	_, err := stream.Seek(blockOffset, io.SeekStart)
	return err
}

// BytesPerBlock returns the size of a single block, in bytes.
func (cache *BlockCache) BytesPerBlock() uint {
	return cache.bytesPerBlock
}

// TotalBlocks returns the size of the cache, in blocks. To change the size of
// the cache, use the Resize() function.
func (cache *BlockCache) TotalBlocks() uint {
	return cache.totalBlocks
}

// Size gives the size of the cache, in bytes (not blocks!).
func (cache *BlockCache) Size() int64 {
	return int64(cache.bytesPerBlock) * int64(cache.totalBlocks)
}

// LengthToNumBlocks gives the minimum number of blocks required to hold the
// given number of bytes.
func (cache *BlockCache) LengthToNumBlocks(size uint) uint {
	return (size + cache.bytesPerBlock - 1) / cache.bytesPerBlock
}

// checkBounds verifies that `bufferSize` bytes can be accessed in the cache
// starting from block `start`. If not, it returns an error describing the exact
// conditions. If no error would occur, this returns nil.
//
// `start` must always be a valid block, even if `bufferSize` is 0.
func (cache *BlockCache) checkBounds(start c.LogicalBlock, bufferSize uint) error {
	numBlocks := cache.LengthToNumBlocks(bufferSize)

	if uint(start) >= cache.totalBlocks || uint(start)+numBlocks > cache.totalBlocks {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"can't access %d bytes (%d blocks) from block %d; range not in [0, %d)",
				bufferSize,
				numBlocks,
				start,
				cache.totalBlocks,
			),
		)
	}
	return nil
}

// slice returns the part of the cache's storage covering `count` blocks from
// `start`, without loading anything.
func (cache *BlockCache) slice(start c.LogicalBlock, count uint) []byte {
	startOffset := uint(start) * cache.bytesPerBlock
	endOffset := startOffset + (count * cache.bytesPerBlock)
	return cache.data[startOffset:endOffset]
}

// GetSlice returns a slice pointing to the cache's storage, beginning at block
// `start` and continuing for `count` blocks.
//
// If the returned slice is modified, the modified blocks MUST be marked as
// dirty.
func (cache *BlockCache) GetSlice(start c.LogicalBlock, count uint) ([]byte, error) {
	err := cache.loadBlockRange(start, count)
	if err != nil {
		return nil, err
	}
	return cache.slice(start, count), nil
}

// Data returns a slice of the entire cache's data. This requires loading all
// blocks not yet in the cache, so it may incur a one-time performance penalty
// for large files or with inefficient driver implementations.
//
// If the returned slice is modified, the modified blocks MUST be marked as
// dirty.
func (cache *BlockCache) Data() ([]byte, error) {
	err := cache.LoadAll()
	if err != nil {
		return nil, err
	}
	return cache.data, nil
}

// loadBlockRange ensures that all blocks in the range [start, start + count) are
// present in the cache, and loads any missing ones from storage.
func (cache *BlockCache) loadBlockRange(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count*cache.bytesPerBlock)
	if err != nil {
		return err
	}

	for blockIndex := int(start); uint(blockIndex) < uint(start)+count; blockIndex++ {
		// Dirty blocks are present by definition, so we don't need to check
		// `dirtyBlocks`.
		if cache.loadedBlocks.Get(blockIndex) {
			continue
		}

		err = cache.fetch(c.LogicalBlock(blockIndex), cache.slice(c.LogicalBlock(blockIndex), 1))
		if err != nil {
			return errors.NewWithMessage(
				errors.EIO,
				fmt.Sprintf("failed to load block %d from source", blockIndex),
			).Wrap(err)
		}

		cache.loadedBlocks.Set(blockIndex, true)
		cache.dirtyBlocks.Set(blockIndex, false)
	}

	return nil
}

// flushBlockRange writes out all dirty blocks (and only dirty blocks) to the
// underlying storage and marks them as clean.
func (cache *BlockCache) flushBlockRange(start c.LogicalBlock, count uint) error {
	if count == 0 {
		return nil
	}

	err := cache.checkBounds(start, count*cache.bytesPerBlock)
	if err != nil {
		return err
	}

	for blockIndex := int(start); uint(blockIndex) < uint(start)+count; blockIndex++ {
		// Missing blocks are considered clean, so this skips those too.
		if !cache.dirtyBlocks.Get(blockIndex) {
			continue
		}

		err = cache.flush(c.LogicalBlock(blockIndex), cache.slice(c.LogicalBlock(blockIndex), 1))
		if err != nil {
			return errors.NewWithMessage(
				errors.EIO,
				fmt.Sprintf("failed to flush block %d to storage", blockIndex),
			).Wrap(err)
		}

		cache.dirtyBlocks.Set(blockIndex, false)
	}

	return nil
}

// LoadAll ensures all missing blocks are loaded from storage into the cache.
func (cache *BlockCache) LoadAll() error {
	if cache.totalBlocks == 0 {
		return nil
	}
	return cache.loadBlockRange(0, cache.totalBlocks)
}

// Flush flushes all dirty blocks from the cache into storage, and marks them
// as clean.
func (cache *BlockCache) Flush() error {
	return cache.flushBlockRange(0, cache.totalBlocks)
}

// ReadAt fills `buffer` with data beginning at block `start`, loading any
// missing blocks first. `buffer` does not need to be an exact multiple of the
// size of one block.
//
// Attempting to read past the end of the cache will result in an error, and
// `buffer` will be left unmodified.
func (cache *BlockCache) ReadAt(buffer []byte, start c.LogicalBlock) (int, error) {
	bufLen := uint(len(buffer))
	err := cache.checkBounds(start, bufLen)
	if err != nil {
		return 0, err
	}

	numBlocks := cache.LengthToNumBlocks(bufLen)
	if numBlocks == 0 {
		return 0, nil
	}

	sourceData, err := cache.GetSlice(start, numBlocks)
	if err != nil {
		return 0, err
	}

	return copy(buffer, sourceData), nil
}

// WriteAt copies data into the cache from `buffer`, beginning at block `start`.
// All modified blocks are marked as dirty. `buffer` does not need to be an
// exact multiple of the size of one block.
//
// Attempting to write past the end of the cache will result in an error, and
// the cache will be left unmodified.
func (cache *BlockCache) WriteAt(buffer []byte, start c.LogicalBlock) (int, error) {
	bufLen := uint(len(buffer))

	err := cache.checkBounds(start, bufLen)
	if err != nil {
		return 0, err
	}

	totalBlocks := cache.LengthToNumBlocks(bufLen)
	if totalBlocks == 0 {
		return 0, nil
	}

	// A partial write to the last block must not clobber the rest of it with
	// whatever happens to be in the cache.
	if bufLen%cache.bytesPerBlock != 0 {
		err = cache.loadBlockRange(start+c.LogicalBlock(totalBlocks-1), 1)
		if err != nil {
			return 0, err
		}
	}

	n := copy(cache.slice(start, totalBlocks), buffer)

	for i := uint(0); i < totalBlocks; i++ {
		currentBlockIndex := int(c.LogicalBlock(i) + start)
		cache.loadedBlocks.Set(currentBlockIndex, true)
		cache.dirtyBlocks.Set(currentBlockIndex, true)
	}
	return n, nil
}

// SetBytesPerBlock changes the size of the cache's blocks without changing the
// total size of the cache. Dirty blocks are flushed first and every block is
// reloaded on the next access.
//
// The new size must be a power of two that evenly divides the cache's size.
func (cache *BlockCache) SetBytesPerBlock(bytesPerBlock uint) error {
	if bytesPerBlock == cache.bytesPerBlock {
		return nil
	}

	if bytesPerBlock == 0 || bytesPerBlock&(bytesPerBlock-1) != 0 {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("block size must be a power of 2, got %d", bytesPerBlock),
		)
	}
	if uint64(cache.Size())%uint64(bytesPerBlock) != 0 {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"block size %d doesn't evenly divide cache size %d",
				bytesPerBlock,
				cache.Size(),
			),
		)
	}

	err := cache.Flush()
	if err != nil {
		return err
	}

	newTotalBlocks := uint(cache.Size() / int64(bytesPerBlock))
	cache.bytesPerBlock = bytesPerBlock
	cache.totalBlocks = newTotalBlocks
	cache.loadedBlocks = bitmap.New(int(newTotalBlocks))
	cache.dirtyBlocks = bitmap.New(int(newTotalBlocks))
	return nil
}

// Resize changes the number of blocks in the cache. Blocks are added to and
// removed from the end.
//
// If the cache size is increased, zeroed-out blocks are appended to the end of
// the slice. These new blocks are treated as dirty, so flushing the cache will
// write them out.
func (cache *BlockCache) Resize(newTotalBlocks uint) error {
	err := cache.resize(c.LogicalBlock(newTotalBlocks), cache.bytesPerBlock)
	if err != nil {
		return err
	}

	newCacheData := make([]byte, newTotalBlocks*cache.bytesPerBlock)
	copy(newCacheData, cache.data)

	newDirtyBlocks := bitmap.New(int(newTotalBlocks))
	newLoadedBlocks := bitmap.New(int(newTotalBlocks))
	copy(newDirtyBlocks, cache.dirtyBlocks)
	copy(newLoadedBlocks, cache.loadedBlocks)

	// When shrinking, the last byte of the bitmaps can carry bits for blocks
	// that no longer exist.
	for i := newTotalBlocks; i < uint(len(newDirtyBlocks))*8; i++ {
		newDirtyBlocks.Set(int(i), false)
		newLoadedBlocks.Set(int(i), false)
	}

	// New blocks are zeroed out in memory. If we didn't mark them dirty they
	// wouldn't get written, and we could end up with trailing blocks filled
	// with uninitialized data.
	for i := cache.totalBlocks; i < newTotalBlocks; i++ {
		newDirtyBlocks.Set(int(i), true)
		newLoadedBlocks.Set(int(i), true)
	}

	cache.data = newCacheData
	cache.dirtyBlocks = newDirtyBlocks
	cache.loadedBlocks = newLoadedBlocks
	cache.totalBlocks = newTotalBlocks
	return nil
}

// MarkBlockRangeDirty marks a range of blocks as modified. They will be written
// out to the backing storage on the next call to [BlockCache.Flush].
func (cache *BlockCache) MarkBlockRangeDirty(start c.LogicalBlock, count uint) error {
	err := cache.checkBounds(start, count*cache.bytesPerBlock)
	if err != nil {
		return err
	}

	for i := uint(0); i < count; i++ {
		bitIndex := int(start) + int(i)
		cache.dirtyBlocks.Set(bitIndex, true)
		cache.loadedBlocks.Set(bitIndex, true)
	}
	return nil
}

var _ c.BlockDevice = (*BlockCache)(nil)
