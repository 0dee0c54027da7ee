// Package common contains definitions of fundamental types and functions used
// across multiple file system implementations.
package common

import "math"

//go:generate mockgen -package mocks -destination mocks/blockdevice_mock.go github.com/dargueta/bs2fat/file_systems/common BlockDevice

type LogicalBlock uint
type PhysicalBlock uint

// ClusterID is the number of a cluster on the volume. Numbering of data
// clusters begins at 2 on FAT volumes.
type ClusterID uint32

const InvalidLogicalBlock = LogicalBlock(math.MaxUint)
const InvalidPhysicalBlock = PhysicalBlock(math.MaxUint)

// Truncator is an interface for objects that support a Truncate() method. This
// method must behave just like [os.File.Truncate].
type Truncator interface {
	Truncate(size int64) error
}

// BlockDevice is the host's block storage layer as seen by a file system
// driver. All offsets are in blocks of BytesPerBlock() bytes.
type BlockDevice interface {
	// BytesPerBlock returns the current size of a single block, in bytes.
	BytesPerBlock() uint

	// TotalBlocks returns the size of the device in blocks of the current size.
	TotalBlocks() uint

	// SetBytesPerBlock changes the block size of the device. Pending writes are
	// flushed first. The device's size in bytes doesn't change.
	SetBytesPerBlock(bytesPerBlock uint) error

	// ReadAt fills `buffer` with data beginning at block `start`. The length of
	// `buffer` need not be a multiple of the block size.
	ReadAt(buffer []byte, start LogicalBlock) (int, error)

	// WriteAt copies `buffer` to the device beginning at block `start`. The
	// length of `buffer` need not be a multiple of the block size.
	WriteAt(buffer []byte, start LogicalBlock) (int, error)

	// Flush writes all pending changes to the backing storage.
	Flush() error
}
