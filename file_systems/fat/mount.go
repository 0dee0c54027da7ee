package fat

import (
	"sync"
	"time"

	"github.com/dargueta/bs2fat"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
	"github.com/hashicorp/go-multierror"
	log "github.com/sirupsen/logrus"
)

// Volume is a mounted FAT12/16 file system.
type Volume struct {
	device  c.BlockDevice
	options MountOptions
	logger  log.FieldLogger
	inodes  InodeAllocator

	// sLock protects the geometry and options, except for the free-cluster
	// fields of the geometry.
	sLock    sync.RWMutex
	geometry SuperblockGeometry
	timeMin  Timespec
	timeMax  Timespec

	// fatLock protects the allocation table as well as geometry.FreeClusters
	// and geometry.PreviousFree.
	fatLock sync.Mutex
	table   *fatTable

	fatInode    *Inode
	fsinfoInode *Inode
	rootInode   *Inode
}

// Mount mounts the volume on `device` with a fresh [InodeTable].
func Mount(device c.BlockDevice, options MountOptions, silent bool) (*Volume, error) {
	return MountWithInodes(device, options, silent, NewInodeTable())
}

// MountWithInodes mounts the volume on `device`, getting inodes from `inodes`.
//
// If the device doesn't hold a FAT12/16 file system the error satisfies
// [errors.IsFormatInvalid], and is only logged if `silent` is false. I/O and
// allocation failures are always logged. Nothing acquired during a failed
// mount is left allocated.
func MountWithInodes(
	device c.BlockDevice, options MountOptions, silent bool, inodes InodeAllocator,
) (*Volume, error) {
	options.resolveHostTimezone(time.Now())
	logger := options.logger()

	if device.BytesPerBlock() < minBlockSize {
		err := device.SetBytesPerBlock(minBlockSize)
		if err != nil {
			return nil, ioFailure(logger, "unable to set blocksize", err)
		}
	}

	buffer := make([]byte, device.BytesPerBlock())
	_, err := device.ReadAt(buffer, 0)
	if err != nil {
		return nil, ioFailure(logger, "unable to read boot sector", err)
	}

	raw, err := NewRawBootSector(buffer)
	if err != nil {
		return nil, err
	}

	bpb, err := DecodeAndValidate(raw, silent, logger)
	if err != nil {
		return nil, err
	}

	geometry, err := ComputeGeometry(device, bpb, AllocationHints{}, silent, logger)
	if err != nil {
		return nil, err
	}

	vol := &Volume{
		device:   device,
		options:  options,
		logger:   logger,
		inodes:   inodes,
		geometry: *geometry,
	}
	vol.timeMin, vol.timeMax = TimeRange(options.TimezoneOffset())

	vol.table, err = loadFATTable(device, geometry)
	if err != nil {
		logger.WithError(err).Error("unable to read the allocation table")
		return nil, err
	}

	err = vol.allocateMetadataInodes()
	if err != nil {
		return nil, err
	}

	logger.WithFields(log.Fields{
		"fat_bits":     geometry.FATBits,
		"clusters":     geometry.TotalClusters(),
		"cluster_size": geometry.ClusterSize,
		"volume_id":    geometry.VolumeID,
	}).Debug("mounted FAT volume")
	return vol, nil
}

// allocateMetadataInodes creates the FAT, FSINFO and root directory inodes. If
// any of them fails, the ones already created are released in reverse order.
func (vol *Volume) allocateMetadataInodes() error {
	acquired := make([]*Inode, 0, 3)

	unwind := func(cause error) error {
		var result *multierror.Error
		for i := len(acquired) - 1; i >= 0; i-- {
			if err := vol.inodes.ReleaseInode(acquired[i]); err != nil {
				result = multierror.Append(result, err)
			}
		}
		if result != nil {
			vol.logger.WithError(result).Error("failed to release inodes after a failed mount")
		}

		vol.logger.WithError(cause).Error("unable to allocate metadata inodes")
		return errors.NewFromError(errors.ErrnoOf(cause), cause)
	}

	fatInode, err := vol.inodes.NewInode(0, bs2fat.S_IFREG)
	if err != nil {
		return unwind(err)
	}
	acquired = append(acquired, fatInode)

	fsinfoInode, err := vol.inodes.NewInode(FSInfoIno, bs2fat.S_IFREG)
	if err != nil {
		return unwind(err)
	}
	acquired = append(acquired, fsinfoInode)

	rootInode, err := vol.inodes.NewInode(
		RootIno, bs2fat.S_IFDIR|bs2fat.S_IRWXU|bs2fat.S_IRGRP|bs2fat.S_IXGRP|bs2fat.S_IROTH|bs2fat.S_IXOTH)
	if err != nil {
		return unwind(err)
	}

	fatInode.Size = int64(vol.geometry.FATLength) * int64(vol.geometry.BlockSize)
	rootInode.Size = int64(vol.geometry.DirEntries) * DirentSize
	rootInode.Blocks = uint64(rootInode.Size) >> 9

	vol.fatInode = fatInode
	vol.fsinfoInode = fsinfoInode
	vol.rootInode = rootInode
	return nil
}

// Geometry returns a copy of the volume's geometry.
func (vol *Volume) Geometry() SuperblockGeometry {
	// Lock order is always sLock, then fatLock.
	vol.sLock.RLock()
	defer vol.sLock.RUnlock()
	vol.fatLock.Lock()
	defer vol.fatLock.Unlock()
	return vol.geometry
}

// Options returns the options the volume was mounted with.
func (vol *Volume) Options() MountOptions {
	vol.sLock.RLock()
	defer vol.sLock.RUnlock()
	return vol.options
}

// TimezoneOffset returns the number of seconds to add to the volume's local
// timestamps to get UTC.
func (vol *Volume) TimezoneOffset() int64 {
	vol.sLock.RLock()
	defer vol.sLock.RUnlock()
	return vol.options.TimezoneOffset()
}

// TimeRange returns the earliest and latest timestamps the volume can store.
func (vol *Volume) TimeRange() (Timespec, Timespec) {
	vol.sLock.RLock()
	defer vol.sLock.RUnlock()
	return vol.timeMin, vol.timeMax
}

// RootInode returns the inode of the root directory.
func (vol *Volume) RootInode() *Inode {
	return vol.rootInode
}

// TruncateTime sets the timestamps selected by `flags` on `inode` to `now`,
// truncated to what the volume can store.
func (vol *Volume) TruncateTime(inode *Inode, now Timespec, flags bs2fat.FileTimeFlags) {
	updates := TruncateTimes(inode.Ino == RootIno, now, flags, vol.TimezoneOffset())

	inode.lock.Lock()
	inode.ApplyTimes(updates)
	inode.lock.Unlock()
}

// FSStat implements [bs2fat.SuperOperations]. If the free cluster count isn't
// known yet, the table is scanned.
func (vol *Volume) FSStat() (bs2fat.FSStat, error) {
	geometry := vol.Geometry()

	free, known := geometry.FreeClusters.Get()
	if !known {
		var err error
		free, err = vol.CountFreeClusters()
		if err != nil {
			return bs2fat.FSStat{}, err
		}
	}

	return bs2fat.FSStat{
		BlockSize:       uint64(geometry.ClusterSize),
		TotalBlocks:     uint64(geometry.TotalClusters()),
		BlocksFree:      uint64(free),
		BlocksFreeKnown: true,
		MaxNameLength:   MSDOSNameLength + 1,
		Dirty:           geometry.Dirty,
	}, nil
}

// Flush implements [bs2fat.SuperOperations]. It writes all modified sectors of
// the allocation table to every copy, then flushes the device.
func (vol *Volume) Flush() error {
	vol.fatLock.Lock()
	err := vol.table.flush(vol.device, &vol.geometry)
	vol.fatLock.Unlock()

	if err != nil {
		vol.logger.WithError(err).Error("failed to write back the allocation table")
		return err
	}

	err = vol.device.Flush()
	if err != nil {
		vol.logger.WithError(err).Error("failed to flush the device")
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

// ReleaseFile is called when a file is closed. If the volume was mounted with
// the flush option and the file was open for writing, metadata is written back
// immediately.
func (vol *Volume) ReleaseFile(inode *Inode, wasWritable bool) error {
	if !wasWritable || !vol.Options().Flush {
		return nil
	}
	return vol.Flush()
}

// Unmount implements [bs2fat.SuperOperations]. The metadata inodes are released
// even if the flush fails; every error encountered is returned.
func (vol *Volume) Unmount() error {
	var result *multierror.Error

	if err := vol.Flush(); err != nil {
		result = multierror.Append(result, err)
	}

	for _, inode := range []*Inode{vol.rootInode, vol.fsinfoInode, vol.fatInode} {
		if inode == nil {
			continue
		}
		if err := vol.inodes.ReleaseInode(inode); err != nil {
			result = multierror.Append(result, err)
		}
	}
	vol.rootInode = nil
	vol.fsinfoInode = nil
	vol.fatInode = nil

	return result.ErrorOrNil()
}

var _ bs2fat.SuperOperations = (*Volume)(nil)
