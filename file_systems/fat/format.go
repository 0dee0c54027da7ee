package fat

import (
	"fmt"

	"github.com/dargueta/bs2fat/disks"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
)

// FormatOptions describes the FAT12/16 volume [Format] creates.
type FormatOptions struct {
	TotalSectors      uint32
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATs              uint8
	RootEntries       uint16
	Media             uint8
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	DriveNumber       uint8
	VolumeID          uint32
	// Label is the volume label. If it's not empty, it's also written as the
	// first entry of the root directory.
	Label string
	// Now is the creation time given to the volume label entry.
	Now Timespec
	// TimezoneOffset has the same meaning as in [FATToUnix].
	TimezoneOffset int64
}

// NewFormatOptions returns the options DOS uses to format a disk with the given
// geometry.
func NewFormatOptions(geometry disks.DiskGeometry) FormatOptions {
	driveNumber := uint8(0x80)
	if geometry.IsRemovable != 0 {
		driveNumber = 0
	}

	return FormatOptions{
		TotalSectors:      uint32(geometry.TotalSectors()),
		SectorSize:        uint16(geometry.AddressUnitsPerSector),
		SectorsPerCluster: uint8(geometry.SectorsPerCluster),
		ReservedSectors:   uint16(geometry.ReservedSectors),
		FATs:              uint8(geometry.FATs),
		RootEntries:       uint16(geometry.RootEntries),
		Media:             uint8(geometry.Media),
		SectorsPerTrack:   uint16(geometry.SectorsPerTrack),
		Heads:             uint16(geometry.Heads),
		HiddenSectors:     uint32(geometry.HiddenTracks * geometry.SectorsPerTrack),
		DriveNumber:       driveNumber,
	}
}

func (options *FormatOptions) validate() error {
	if !isPowerOfTwo(uint(options.SectorSize)) || options.SectorSize < 512 || options.SectorSize > 4096 {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("bogus logical sector size %d", options.SectorSize))
	}
	if !isPowerOfTwo(uint(options.SectorsPerCluster)) {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("bogus sectors per cluster %d", options.SectorsPerCluster),
		)
	}
	if options.ReservedSectors == 0 {
		return errors.NewWithMessage(errors.EINVAL, "bogus number of reserved sectors")
	}
	if options.FATs == 0 {
		return errors.NewWithMessage(errors.EINVAL, "bogus number of FAT structure")
	}
	if !IsValidMedia(options.Media) {
		return errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("invalid media value (%#x)", options.Media))
	}

	direntsPerSector := uint(options.SectorSize) / DirentSize
	if options.RootEntries == 0 || uint(options.RootEntries)%direntsPerSector != 0 {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf(
				"root entries (%d) must be a nonzero multiple of %d",
				options.RootEntries,
				direntsPerSector,
			),
		)
	}
	return nil
}

// computeFATLength finds the smallest FAT that can address every cluster of the
// data region that's left over once the table copies are laid out. It returns
// the length in sectors and the entry width.
func computeFATLength(options *FormatOptions) (uint16, uint8, error) {
	sectorSize := uint32(options.SectorSize)
	rootSectors := uint32(options.RootEntries) * DirentSize / sectorSize

	for fatLength := uint32(1); fatLength <= 0xFFFF; fatLength++ {
		dataStart := uint32(options.ReservedSectors) + uint32(options.FATs)*fatLength + rootSectors
		if dataStart >= options.TotalSectors {
			return 0, 0, errors.NewWithMessage(
				errors.ENOSPC,
				fmt.Sprintf("%d sectors is too small for a FAT volume", options.TotalSectors),
			)
		}

		clusters := (options.TotalSectors - dataStart) / uint32(options.SectorsPerCluster)
		fatBits := uint8(16)
		if clusters <= FAT12MaxClusters {
			fatBits = 12
		} else if clusters > FAT16MaxClusters {
			return 0, 0, errors.NewWithMessage(
				errors.ENOTSUP,
				fmt.Sprintf(
					"%d clusters needs FAT32, which isn't supported; use bigger clusters",
					clusters,
				),
			)
		}

		tableBytes := ((clusters+FirstDataCluster)*uint32(fatBits) + 7) / 8
		needed := (tableBytes + sectorSize - 1) / sectorSize
		if needed <= fatLength {
			return uint16(fatLength), fatBits, nil
		}
	}

	return 0, 0, errors.NewWithMessage(errors.ENOTSUP, "FAT would be too large")
}

// Format creates an empty FAT12/16 file system on `device`. The device's block
// size is changed to the sector size of the new volume.
func Format(device c.BlockDevice, options FormatOptions) error {
	err := options.validate()
	if err != nil {
		return err
	}

	deviceBytes := uint64(device.BytesPerBlock()) * uint64(device.TotalBlocks())
	volumeBytes := uint64(options.TotalSectors) * uint64(options.SectorSize)
	if deviceBytes < volumeBytes {
		return errors.NewWithMessage(
			errors.ENOSPC,
			fmt.Sprintf("volume needs %d bytes but device only has %d", volumeBytes, deviceBytes),
		)
	}

	err = device.SetBytesPerBlock(uint(options.SectorSize))
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}

	fatLength, fatBits, err := computeFATLength(&options)
	if err != nil {
		return err
	}

	bpb := BiosParamBlock{
		SectorSize:        options.SectorSize,
		SectorsPerCluster: options.SectorsPerCluster,
		ReservedSectors:   options.ReservedSectors,
		FATs:              options.FATs,
		DirEntries:        options.RootEntries,
		Media:             options.Media,
		FATLength:         fatLength,
		SectorsPerTrack:   options.SectorsPerTrack,
		Heads:             options.Heads,
		HiddenSectors:     options.HiddenSectors,
		DriveNumber:       options.DriveNumber,
		VolumeID:          options.VolumeID,
	}
	if options.TotalSectors <= 0xFFFF {
		bpb.Sectors = uint16(options.TotalSectors)
	} else {
		bpb.TotalSectors = options.TotalSectors
	}
	copy(bpb.FSType[:], fmt.Sprintf("FAT%-5d", fatBits))

	label := options.Label
	if label == "" {
		label = "NO NAME"
	}
	bpb.VolumeLabel, err = EncodeName(label, true)
	if err != nil {
		return err
	}

	rawBootSector, err := bpb.Encode()
	if err != nil {
		return err
	}

	// Everything up to the data region gets overwritten, starting with the
	// boot sector and any other reserved sectors.
	sectorSize := uint(options.SectorSize)
	reserved := make([]byte, uint(options.ReservedSectors)*sectorSize)
	copy(reserved, rawBootSector[:])
	if err = writeBlocks(device, 0, reserved); err != nil {
		return err
	}

	tableData := make([]byte, uint(fatLength)*sectorSize)
	table := newFATTable(tableData, fatBits, sectorSize, FirstDataCluster)
	if err = table.setReserved(options.Media); err != nil {
		return err
	}

	for i := uint(0); i < uint(options.FATs); i++ {
		start := uint(options.ReservedSectors) + i*uint(fatLength)
		if err = writeBlocks(device, c.LogicalBlock(start), tableData); err != nil {
			return err
		}
	}

	rootDir := make([]byte, uint(options.RootEntries)*DirentSize)
	if options.Label != "" {
		labelEntry := NewRawDirent(
			bpb.VolumeLabel, AttrVolumeLabel, options.Now, options.TimezoneOffset)
		copy(rootDir, labelEntry.Bytes())
	}

	rootStart := uint(options.ReservedSectors) + uint(options.FATs)*uint(fatLength)
	if err = writeBlocks(device, c.LogicalBlock(rootStart), rootDir); err != nil {
		return err
	}

	err = device.Flush()
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

func writeBlocks(device c.BlockDevice, start c.LogicalBlock, data []byte) error {
	_, err := device.WriteAt(data, start)
	if err != nil {
		return errors.NewWithMessage(
			errors.EIO, fmt.Sprintf("failed to write %d bytes at block %d", len(data), start),
		).Wrap(err)
	}
	return nil
}
