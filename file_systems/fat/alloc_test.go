package fat_test

import (
	"bytes"
	"math"
	"testing"

	"github.com/dargueta/bs2fat"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
	"github.com/dargueta/bs2fat/file_systems/common/blockcache"
	"github.com/dargueta/bs2fat/file_systems/fat"
	diskotest "github.com/dargueta/bs2fat/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smallVolumeOptions describes a 32 KiB volume with 60 one-sector clusters.
func smallVolumeOptions() fat.FormatOptions {
	return fat.FormatOptions{
		TotalSectors:      64,
		SectorSize:        512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		FATs:              2,
		RootEntries:       16,
		Media:             0xF8,
	}
}

func mountSmallVolume(t *testing.T) (*fat.Volume, *blockcache.BlockCache) {
	_, cache := diskotest.FormatImageWithOptions(t, smallVolumeOptions())
	logger, _ := newTestLogger()
	vol, err := fat.Mount(cache, testMountOptions(logger), false)
	require.NoError(t, err)
	require.EqualValues(t, 60, vol.Geometry().TotalClusters())
	return vol, cache
}

func TestGeometry__MethodsOnReturnedCopy(t *testing.T) {
	vol, _ := mountSmallVolume(t)

	assert.False(t, vol.Geometry().IsFAT16())
	assert.True(t, vol.Geometry().IsValidCluster(fat.FirstDataCluster))
	assert.False(t, vol.Geometry().IsValidCluster(fat.FirstDataCluster+60))
	assert.EqualValues(t, 2, vol.Geometry().ClustersForBytes(513))
	assert.Equal(
		t,
		c.LogicalBlock(vol.Geometry().DataStart),
		vol.Geometry().ClusterToSector(fat.FirstDataCluster),
	)
}

func TestAllocClusters__Basic(t *testing.T) {
	stream, cache := diskotest.FormatImage(t, "fd1440", "")
	logger, _ := newTestLogger()
	vol, err := fat.Mount(cache, testMountOptions(logger), false)
	require.NoError(t, err)

	chain, err := vol.AllocClusters(3)
	require.NoError(t, err)
	assert.Equal(t, []c.ClusterID{3, 4, 5}, chain)
	assert.EqualValues(t, 5, vol.Geometry().PreviousFree)

	readBack, err := vol.ClusterChain(3)
	require.NoError(t, err)
	assert.Equal(t, chain, readBack)

	free, err := vol.CountFreeClusters()
	require.NoError(t, err)
	assert.EqualValues(t, 2844, free)

	// The next allocation picks up where the last one left off.
	chain, err = vol.AllocClusters(1)
	require.NoError(t, err)
	assert.Equal(t, []c.ClusterID{6}, chain)
	assert.Equal(t, fat.KnownFreeCount(2843), vol.Geometry().FreeClusters)

	require.NoError(t, vol.Unmount())

	// Both copies of the table must be identical on disk.
	image := diskotest.ReadImage(t, stream)
	firstCopy := image[1*512 : 10*512]
	secondCopy := image[10*512 : 19*512]
	assert.True(t, bytes.Equal(firstCopy, secondCopy), "FAT copies differ")
	assert.Equal(t, []byte{0xF0, 0xFF, 0xFF, 0x00, 0x40, 0x00, 0x05, 0xF0, 0xFF, 0xFF}, firstCopy[:10])

	// And the chain survives a remount.
	vol, err = fat.Mount(cache, testMountOptions(logger), false)
	require.NoError(t, err)
	readBack, err = vol.ClusterChain(3)
	require.NoError(t, err)
	assert.Equal(t, []c.ClusterID{3, 4, 5}, readBack)
	require.NoError(t, vol.Unmount())
}

func TestAllocClusters__Zero(t *testing.T) {
	vol, _ := mountSmallVolume(t)
	_, err := vol.AllocClusters(0)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestAllocClusters__NoSpaceLeavesTableUntouched(t *testing.T) {
	vol, _ := mountSmallVolume(t)

	_, err := vol.AllocClusters(61)
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
	assert.Equal(t, fat.KnownFreeCount(60), vol.Geometry().FreeClusters)

	free, err := vol.CountFreeClusters()
	require.NoError(t, err)
	assert.EqualValues(t, 60, free)

	chain, err := vol.AllocClusters(60)
	require.NoError(t, err)
	require.Len(t, chain, 60)
	assert.EqualValues(t, 3, chain[0])
	assert.EqualValues(t, 61, chain[58])
	assert.EqualValues(t, 2, chain[59], "allocation didn't wrap around")

	_, err = vol.AllocClusters(1)
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)

	stat, err := vol.FSStat()
	require.NoError(t, err)
	assert.EqualValues(t, 0, stat.BlocksFree)
}

func TestFreeClusters__WrapsAround(t *testing.T) {
	vol, _ := mountSmallVolume(t)

	chain, err := vol.AllocClusters(59)
	require.NoError(t, err)
	assert.EqualValues(t, 61, chain[len(chain)-1])

	require.NoError(t, vol.FreeClusters(chain[0]))
	free, err := vol.CountFreeClusters()
	require.NoError(t, err)
	assert.EqualValues(t, 60, free)

	chain, err = vol.AllocClusters(2)
	require.NoError(t, err)
	assert.Equal(t, []c.ClusterID{2, 3}, chain)
	assert.Equal(t, fat.KnownFreeCount(58), vol.Geometry().FreeClusters)

	require.NoError(t, vol.FreeClusters(2))
	assert.Equal(t, fat.KnownFreeCount(60), vol.Geometry().FreeClusters)
}

func TestFreeClusters__InvalidStart(t *testing.T) {
	vol, _ := mountSmallVolume(t)

	for _, start := range []uint32{0, 1, 62, 0xFFF} {
		err := vol.FreeClusters(c.ClusterID(start))
		assert.ErrorIs(t, err, errors.ErrInvalidArgument, "cluster %d", start)
	}
}

func TestClusterChain__FreeEntryInChain(t *testing.T) {
	vol, _ := mountSmallVolume(t)

	// Cluster 10 was never allocated, so its entry is free.
	_, err := vol.ClusterChain(10)
	assert.ErrorIs(t, err, errors.ErrFileSystemCorrupted)
}

func TestClusterChain__LoopDetected(t *testing.T) {
	vol, cache := mountSmallVolume(t)
	_, err := vol.AllocClusters(3)
	require.NoError(t, err)
	require.NoError(t, vol.Flush())

	// Point cluster 5 back at cluster 3. Entry 5 is the high 12 bits of the
	// word at byte 7.
	sector := make([]byte, 512)
	_, err = cache.ReadAt(sector, 1)
	require.NoError(t, err)
	sector[7] = (sector[7] & 0x0F) | 0x30
	sector[8] = 0x00
	_, err = cache.WriteAt(sector, 1)
	require.NoError(t, err)

	logger, _ := newTestLogger()
	corrupted, err := fat.Mount(cache, testMountOptions(logger), false)
	require.NoError(t, err)

	_, err = corrupted.ClusterChain(3)
	assert.ErrorIs(t, err, errors.ErrFileSystemCorrupted)

	err = corrupted.FreeClusters(4)
	assert.ErrorIs(t, err, errors.ErrFileSystemCorrupted)

	// Nothing may be freed from a chain that failed validation.
	free, err := corrupted.CountFreeClusters()
	require.NoError(t, err)
	assert.EqualValues(t, 57, free)
}

func TestClustersForBytes(t *testing.T) {
	geo := fat.SuperblockGeometry{ClusterSize: 2048, ClusterBits: 11}

	assert.EqualValues(t, 0, geo.ClustersForBytes(0))
	assert.EqualValues(t, 1, geo.ClustersForBytes(1))
	assert.EqualValues(t, 1, geo.ClustersForBytes(2048))
	assert.EqualValues(t, 2, geo.ClustersForBytes(2049))
	assert.EqualValues(t, 512, geo.ClustersForBytes(1<<20))
}

func TestFallocate(t *testing.T) {
	_, cache := diskotest.FormatImage(t, "fd1440", "")
	logger, _ := newTestLogger()
	vol, err := fat.Mount(cache, testMountOptions(logger), false)
	require.NoError(t, err)
	defer vol.Unmount()

	inode := &fat.Inode{Ino: 100, Mode: bs2fat.S_IFREG | 0o644}
	now := fat.Timespec{Sec: 1_600_000_001}

	require.NoError(t, vol.Fallocate(inode, 0, 5000, false, now))
	assert.EqualValues(t, 5000, inode.Size)
	assert.EqualValues(t, 10, inode.Blocks)
	assert.EqualValues(t, 3, inode.FirstCluster)
	assert.Equal(t, fat.Timespec{Sec: 1_600_000_000}, inode.Mtime)
	assert.Equal(t, inode.Mtime, inode.Ctime)

	// Preallocating past the end doesn't change the size.
	require.NoError(t, vol.Fallocate(inode, 4000, 4000, true, fat.Timespec{Sec: 1_700_000_000}))
	assert.EqualValues(t, 5000, inode.Size)
	assert.EqualValues(t, 16, inode.Blocks)
	assert.Equal(t, fat.Timespec{Sec: 1_600_000_000}, inode.Mtime, "keepSize touched mtime")

	chain, err := vol.ClusterChain(inode.FirstCluster)
	require.NoError(t, err)
	assert.Len(t, chain, 16)

	// Extending within the allocated clusters only changes the size.
	require.NoError(t, vol.Fallocate(inode, 0, 8192, false, now))
	assert.EqualValues(t, 8192, inode.Size)
	assert.EqualValues(t, 16, inode.Blocks)

	// A range that's already covered is a no-op.
	require.NoError(t, vol.Fallocate(inode, 0, 100, false, fat.Timespec{Sec: 5}))
	assert.EqualValues(t, 8192, inode.Size)
}

func TestFallocate__Errors(t *testing.T) {
	vol, _ := mountSmallVolume(t)
	inode := &fat.Inode{Ino: 100, Mode: bs2fat.S_IFREG}

	err := vol.Fallocate(vol.RootInode(), 0, 100, false, fat.Timespec{})
	assert.ErrorIs(t, err, errors.ErrNotSupported)

	err = vol.Fallocate(inode, -1, 100, false, fat.Timespec{})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	err = vol.Fallocate(inode, 0, 0, false, fat.Timespec{})
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	err = vol.Fallocate(inode, math.MaxInt64-10, 100, false, fat.Timespec{})
	assert.ErrorIs(t, err, errors.ErrFileTooLarge)

	err = vol.Fallocate(inode, 0, 61*512, false, fat.Timespec{})
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
	assert.EqualValues(t, 0, inode.Size)
	assert.EqualValues(t, 0, inode.Blocks)
}
