package fat

import (
	"fmt"
	"math/bits"

	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
	log "github.com/sirupsen/logrus"
)

const (
	// FAT12MaxClusters is the most clusters a FAT12 volume can have.
	FAT12MaxClusters = 0xFF4
	// FAT16MaxClusters is the most clusters a FAT16 volume can have.
	FAT16MaxClusters = 0xFFF4
)

// FirstDataCluster is the number of the first cluster in the data region.
// Entries 0 and 1 of the FAT are reserved.
const FirstDataCluster = 2

// minBlockSize is the smallest block size the driver will read the boot sector
// with.
const minBlockSize = 512

// FreeCount is a free cluster count that may not be known yet.
type FreeCount struct {
	count uint32
	known bool
}

// UnknownFreeCount returns a FreeCount with no value.
func UnknownFreeCount() FreeCount {
	return FreeCount{}
}

// KnownFreeCount returns a FreeCount of exactly `count` clusters.
func KnownFreeCount(count uint32) FreeCount {
	return FreeCount{count: count, known: true}
}

// Get returns the count and true, or 0 and false if the count isn't known.
func (f FreeCount) Get() (uint32, bool) {
	return f.count, f.known
}

func (f FreeCount) IsKnown() bool {
	return f.known
}

func (f FreeCount) String() string {
	if !f.known {
		return "unknown"
	}
	return fmt.Sprintf("%d", f.count)
}

// AllocationHints carries allocation state remembered from an earlier mount.
// The zero value means nothing is known.
type AllocationHints struct {
	FreeClusters FreeCount
	PreviousFree uint32
}

// SuperblockGeometry is the geometry of a mounted volume, derived from its boot
// sector. All sector numbers are relative to the start of the volume.
type SuperblockGeometry struct {
	BlockSize         uint
	SectorsPerCluster uint16
	ClusterBits       uint16
	ClusterSize       uint32

	// FATs is the number of copies of the allocation table.
	FATs uint8
	// FATBits is the width of a table entry, either 12 or 16.
	FATBits   uint8
	FATStart  uint16
	FATLength uint16

	DirStart        uint
	DirEntries      uint16
	DirPerBlock     uint
	DirPerBlockBits uint

	DataStart    uint
	TotalSectors uint32
	// MaxCluster is one past the number of the last valid cluster.
	MaxCluster uint32

	// FreeClusters and PreviousFree change after mount. They're protected by
	// the volume's FAT lock, not the superblock lock.
	FreeClusters FreeCount
	PreviousFree uint32

	VolumeID uint32
	// Dirty is true if the volume wasn't cleanly unmounted.
	Dirty bool
}

// TotalClusters returns the number of clusters in the data region.
func (geo SuperblockGeometry) TotalClusters() uint32 {
	return geo.MaxCluster - FirstDataCluster
}

// MaxClustersForFATBits returns the format-specific ceiling on the cluster
// count.
func MaxClustersForFATBits(fatBits uint8) uint32 {
	if fatBits == 16 {
		return FAT16MaxClusters
	}
	return FAT12MaxClusters
}

// IsFAT16 returns true if table entries are 16 bits wide.
func (geo SuperblockGeometry) IsFAT16() bool {
	return geo.FATBits == 16
}

// ClusterToSector returns the first sector of a data cluster.
func (geo SuperblockGeometry) ClusterToSector(cluster c.ClusterID) c.LogicalBlock {
	return c.LogicalBlock(
		geo.DataStart + uint(cluster-FirstDataCluster)*uint(geo.SectorsPerCluster))
}

// IsValidCluster returns true if `cluster` is a cluster in the data region.
func (geo SuperblockGeometry) IsValidCluster(cluster c.ClusterID) bool {
	return cluster >= FirstDataCluster && uint32(cluster) < geo.MaxCluster
}

// ioFailure wraps an operational error. Unlike format errors these are always
// logged.
func ioFailure(logger log.FieldLogger, message string, err error) error {
	logger.WithError(err).Error(message)
	return errors.NewWithMessage(errors.EIO, message).Wrap(err)
}

// ComputeGeometry derives the volume's geometry from a validated parameter
// block.
//
// If the logical sector size is larger than the device's block size, the
// device's block size is raised to match and block 0 is read again. A logical
// sector smaller than the device's block size isn't supported.
//
// Malformed geometry gives an [errors.EINVAL] error that's logged only when
// `silent` is false. Device failures give an [errors.EIO] error and are always
// logged.
func ComputeGeometry(
	device c.BlockDevice,
	bpb BiosParamBlock,
	hints AllocationHints,
	silent bool,
	logger log.FieldLogger,
) (*SuperblockGeometry, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	deviceBlockSize := device.BytesPerBlock()
	sectorSize := uint(bpb.SectorSize)

	if sectorSize < deviceBlockSize {
		message := fmt.Sprintf(
			"logical sector size %d is smaller than the device block size %d",
			sectorSize,
			deviceBlockSize,
		)
		logger.Error(message)
		return nil, errors.NewWithMessage(errors.EIO, message)
	}

	if sectorSize > deviceBlockSize {
		err := device.SetBytesPerBlock(sectorSize)
		if err != nil {
			return nil, ioFailure(
				logger, fmt.Sprintf("unable to set blocksize %d", sectorSize), err)
		}

		buffer := make([]byte, sectorSize)
		_, err = device.ReadAt(buffer, 0)
		if err != nil {
			return nil, ioFailure(
				logger,
				fmt.Sprintf("unable to read boot sector (logical sector size = %d)", sectorSize),
				err,
			)
		}
	}

	geo := &SuperblockGeometry{
		BlockSize:         sectorSize,
		SectorsPerCluster: uint16(bpb.SectorsPerCluster),
		FATs:              bpb.FATs,
		FATStart:          bpb.ReservedSectors,
		FATLength:         bpb.FATLength,
		DirEntries:        bpb.DirEntries,
		VolumeID:          bpb.VolumeID,
		Dirty:             bpb.State&1 != 0,
	}

	geo.ClusterSize = uint32(sectorSize) * uint32(bpb.SectorsPerCluster)
	geo.ClusterBits = uint16(bits.TrailingZeros32(geo.ClusterSize))
	geo.DirPerBlock = sectorSize / DirentSize
	geo.DirPerBlockBits = uint(bits.TrailingZeros(geo.DirPerBlock))

	geo.DirStart = uint(geo.FATStart) + uint(geo.FATs)*uint(geo.FATLength)
	if uint(geo.DirEntries)&(geo.DirPerBlock-1) != 0 {
		return nil, invalidFormat(
			logger,
			silent,
			fmt.Sprintf("bogus number of directory entries (%d)", geo.DirEntries),
		)
	}

	rootDirBytes := uint(geo.DirEntries) * DirentSize
	if rootDirBytes%sectorSize != 0 {
		return nil, invalidFormat(
			logger,
			silent,
			fmt.Sprintf(
				"root directory size %d isn't a multiple of the sector size %d",
				rootDirBytes,
				sectorSize,
			),
		)
	}
	geo.DataStart = geo.DirStart + rootDirBytes/sectorSize

	geo.TotalSectors = bpb.TotalSectorCount()
	if uint(geo.TotalSectors) < geo.DataStart {
		return nil, invalidFormat(
			logger,
			silent,
			fmt.Sprintf(
				"data region starts at sector %d, past the end of the volume (%d sectors)",
				geo.DataStart,
				geo.TotalSectors,
			),
		)
	}

	totalClusters := (uint32(geo.TotalSectors) - uint32(geo.DataStart)) / uint32(bpb.SectorsPerCluster)
	if totalClusters <= FAT12MaxClusters {
		geo.FATBits = 12
	} else {
		geo.FATBits = 16
	}

	// The table itself may not be big enough to address every cluster.
	fatCapacity := uint32(geo.FATLength) * uint32(sectorSize) * 8 / uint32(geo.FATBits)
	if fatCapacity-FirstDataCluster < totalClusters {
		totalClusters = fatCapacity - FirstDataCluster
	}

	if totalClusters > MaxClustersForFATBits(geo.FATBits) {
		return nil, invalidFormat(
			logger,
			silent,
			fmt.Sprintf("count of clusters too big (%d)", totalClusters),
		)
	}

	geo.MaxCluster = totalClusters + FirstDataCluster

	geo.FreeClusters = hints.FreeClusters
	if free, known := hints.FreeClusters.Get(); known && free > totalClusters {
		geo.FreeClusters = UnknownFreeCount()
	}

	geo.PreviousFree = hints.PreviousFree % geo.MaxCluster
	if geo.PreviousFree < FirstDataCluster {
		geo.PreviousFree = FirstDataCluster
	}

	if geo.Dirty {
		logger.Warn(
			"Volume was not properly unmounted. Some data may be corrupt." +
				" Please run fsck.")
	}

	return geo, nil
}
