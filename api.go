// Package bs2fat defines the capability interfaces shared by the FAT12/16 file
// system core and whatever host layer mounts it.
package bs2fat

// FSStat is a file system's summary statistics, similar to the statfs structure
// on POSIX systems. Drivers that can't determine a value cheaply should leave it
// at 0 and set the matching "known" flag to false.
type FSStat struct {
	// BlockSize is the size of a single allocation unit (a cluster on FAT), in
	// bytes.
	BlockSize uint64
	// TotalBlocks is the number of usable allocation units on the volume.
	TotalBlocks uint64
	// BlocksFree is the number of allocation units not in use. It's only
	// meaningful if BlocksFreeKnown is true.
	BlocksFree      uint64
	BlocksFreeKnown bool
	// MaxNameLength is the longest a single path component can be, in bytes.
	MaxNameLength int64
	// Dirty is true if the volume was not cleanly unmounted before this mount.
	Dirty bool
}

// SuperOperations is the interface every mounted volume exposes to the host.
// It replaces the per-file-system operation tables a kernel would use.
type SuperOperations interface {
	// FSStat returns summary statistics for the volume.
	FSStat() (FSStat, error)

	// Flush writes all pending metadata changes to the backing device. Volumes
	// mounted read-only must ignore this and should not return an error.
	Flush() error

	// Unmount flushes all changes and releases every resource acquired during
	// the mount. The volume must not be used after this returns, even if it
	// returns an error.
	Unmount() error
}
