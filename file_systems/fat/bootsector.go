// Package fat implements the on-disk core of a FAT12/16 file system: boot
// sector decoding, volume geometry, timestamps, the allocation table and the
// root directory.
package fat

import (
	"encoding/binary"
	"fmt"

	"github.com/dargueta/bs2fat/errors"
	"github.com/noxer/bytewriter"
	log "github.com/sirupsen/logrus"
)

// BootSectorSize is the size of the boot sector in bytes, regardless of the
// logical sector size of the volume.
const BootSectorSize = 512

// MSDOSNameLength is the length of a space-padded 8.3 name without the dot.
const MSDOSNameLength = 11

// Offsets of the fields in the boot sector. None of the multi-byte fields are
// guaranteed to be naturally aligned.
const (
	offsetJmpBoot           = 0
	offsetOEMName           = 3
	offsetSectorSize        = 11
	offsetSectorsPerCluster = 13
	offsetReservedSectors   = 14
	offsetFATs              = 16
	offsetDirEntries        = 17
	offsetSectors           = 19
	offsetMedia             = 21
	offsetFATLength         = 22
	offsetSectorsPerTrack   = 24
	offsetHeads             = 26
	offsetHiddenSectors     = 28
	offsetTotalSectors      = 32
	offsetDriveNumber       = 36
	offsetState             = 37
	offsetSignature         = 38
	offsetVolumeID          = 39
	offsetVolumeLabel       = 43
	offsetFSType            = 54
	offsetBootSignature     = 510
)

// extendedBootSignature marks the presence of the volume ID, label, and file
// system type fields.
const extendedBootSignature = 0x29

// RawBootSector is the exact on-disk representation of the boot sector.
type RawBootSector [BootSectorSize]byte

// NewRawBootSector copies the first [BootSectorSize] bytes of `data` into a new
// boot sector.
func NewRawBootSector(data []byte) (*RawBootSector, error) {
	if len(data) < BootSectorSize {
		return nil, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("boot sector must be %d bytes, got %d", BootSectorSize, len(data)),
		)
	}

	raw := RawBootSector{}
	copy(raw[:], data)
	return &raw, nil
}

// BiosParamBlock is the decoded form of the fields of the boot sector that
// describe the volume's geometry.
type BiosParamBlock struct {
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATs              uint8
	DirEntries        uint16
	// Sectors is the 16-bit sector count. If it's 0, the volume is too large
	// for it and TotalSectors holds the real value.
	Sectors         uint16
	Media           uint8
	FATLength       uint16
	SectorsPerTrack uint16
	Heads           uint16
	HiddenSectors   uint32
	TotalSectors    uint32
	DriveNumber     uint8
	State           uint8
	VolumeID        uint32
	VolumeLabel     [MSDOSNameLength]byte
	FSType          [8]byte
}

// TotalSectorCount returns the number of sectors on the volume, taking the
// 32-bit field only if the 16-bit one is 0.
func (bpb *BiosParamBlock) TotalSectorCount() uint32 {
	if bpb.Sectors != 0 {
		return uint32(bpb.Sectors)
	}
	return bpb.TotalSectors
}

// IsValidMedia returns true if `media` is a legal media descriptor byte.
func IsValidMedia(media uint8) bool {
	return media == 0xF0 || media >= 0xF8
}

// invalidFormat creates the error returned for every malformed boot sector or
// geometry, logging `message` unless `silent` is set.
func invalidFormat(logger log.FieldLogger, silent bool, message string) error {
	if !silent {
		logger.Error(message)
	}
	return errors.NewWithMessage(errors.EINVAL, message)
}

// DecodeAndValidate decodes the boot sector and checks that the result describes
// a volume this driver can mount. Every failure is an [errors.EINVAL] error;
// diagnostics go to `logger` unless `silent` is set. A nil logger uses the
// logrus standard logger.
func DecodeAndValidate(
	raw *RawBootSector, silent bool, logger log.FieldLogger,
) (BiosParamBlock, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	bpb := BiosParamBlock{
		SectorSize:        readU16LE(raw[:], offsetSectorSize),
		SectorsPerCluster: raw[offsetSectorsPerCluster],
		ReservedSectors:   readU16LE(raw[:], offsetReservedSectors),
		FATs:              raw[offsetFATs],
		DirEntries:        readU16LE(raw[:], offsetDirEntries),
		Sectors:           readU16LE(raw[:], offsetSectors),
		Media:             raw[offsetMedia],
		FATLength:         readU16LE(raw[:], offsetFATLength),
		SectorsPerTrack:   readU16LE(raw[:], offsetSectorsPerTrack),
		Heads:             readU16LE(raw[:], offsetHeads),
		HiddenSectors:     readU32LE(raw[:], offsetHiddenSectors),
		TotalSectors:      readU32LE(raw[:], offsetTotalSectors),
		DriveNumber:       raw[offsetDriveNumber],
		State:             raw[offsetState],
		VolumeID:          readU32LE(raw[:], offsetVolumeID),
	}
	copy(bpb.VolumeLabel[:], raw[offsetVolumeLabel:offsetVolumeLabel+MSDOSNameLength])
	copy(bpb.FSType[:], raw[offsetFSType:offsetFSType+8])

	if bpb.ReservedSectors == 0 {
		return BiosParamBlock{}, invalidFormat(logger, silent, "bogus number of reserved sectors")
	}

	if bpb.FATs == 0 {
		return BiosParamBlock{}, invalidFormat(logger, silent, "bogus number of FAT structure")
	}

	if !IsValidMedia(bpb.Media) {
		return BiosParamBlock{}, invalidFormat(
			logger, silent, fmt.Sprintf("invalid media value (%#x)", bpb.Media))
	}

	if !isPowerOfTwo(uint(bpb.SectorSize)) || bpb.SectorSize < 512 || bpb.SectorSize > 4096 {
		return BiosParamBlock{}, invalidFormat(
			logger, silent, fmt.Sprintf("bogus logical sector size %d", bpb.SectorSize))
	}

	if !isPowerOfTwo(uint(bpb.SectorsPerCluster)) {
		return BiosParamBlock{}, invalidFormat(
			logger,
			silent,
			fmt.Sprintf("bogus sectors per cluster %d", bpb.SectorsPerCluster),
		)
	}

	if bpb.FATLength == 0 {
		return BiosParamBlock{}, invalidFormat(logger, silent, "bogus number of FAT sectors")
	}

	return bpb, nil
}

// rawBootSectorHeader is the layout of the first 62 bytes of the boot sector.
// binary.Write doesn't pad, so the field offsets match the constants above.
type rawBootSectorHeader struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	SectorSize        uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	FATs              uint8
	DirEntries        uint16
	Sectors           uint16
	Media             uint8
	FATLength         uint16
	SectorsPerTrack   uint16
	Heads             uint16
	HiddenSectors     uint32
	TotalSectors      uint32
	DriveNumber       uint8
	State             uint8
	Signature         uint8
	VolumeID          uint32
	VolumeLabel       [MSDOSNameLength]byte
	FSType            [8]byte
}

// Encode serializes the parameter block into a boot sector. The result always
// has the extended boot signature and the 0x55AA trailer, and decodes back to
// the same parameter block.
func (bpb *BiosParamBlock) Encode() (*RawBootSector, error) {
	header := rawBootSectorHeader{
		JmpBoot:           [3]byte{0xEB, 0x3C, 0x90},
		SectorSize:        bpb.SectorSize,
		SectorsPerCluster: bpb.SectorsPerCluster,
		ReservedSectors:   bpb.ReservedSectors,
		FATs:              bpb.FATs,
		DirEntries:        bpb.DirEntries,
		Sectors:           bpb.Sectors,
		Media:             bpb.Media,
		FATLength:         bpb.FATLength,
		SectorsPerTrack:   bpb.SectorsPerTrack,
		Heads:             bpb.Heads,
		HiddenSectors:     bpb.HiddenSectors,
		TotalSectors:      bpb.TotalSectors,
		DriveNumber:       bpb.DriveNumber,
		State:             bpb.State,
		Signature:         extendedBootSignature,
		VolumeID:          bpb.VolumeID,
		VolumeLabel:       bpb.VolumeLabel,
		FSType:            bpb.FSType,
	}
	copy(header.OEMName[:], "BS2FAT  ")

	raw := RawBootSector{}
	writer := bytewriter.New(raw[:])
	err := binary.Write(writer, binary.LittleEndian, &header)
	if err != nil {
		return nil, errors.ErrIOFailed.Wrap(err)
	}

	raw[offsetBootSignature] = 0x55
	raw[offsetBootSignature+1] = 0xAA
	return &raw, nil
}

// HasBootSignature returns true if the sector ends with the 0x55AA trailer.
// Many old DOS disks don't have one, so its absence isn't an error.
func (raw *RawBootSector) HasBootSignature() bool {
	return raw[offsetBootSignature] == 0x55 && raw[offsetBootSignature+1] == 0xAA
}

// OEMName returns the name of the system that formatted the volume.
func (raw *RawBootSector) OEMName() string {
	return string(raw[offsetOEMName : offsetOEMName+8])
}
