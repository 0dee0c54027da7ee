package fat

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/dargueta/bs2fat"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
	"github.com/hashicorp/go-multierror"
	"github.com/noxer/bytewriter"
)

const (
	// AttrReadOnly is an attribute flag marking a directory entry as read-only.
	AttrReadOnly = 1

	// AttrHidden is an attribute flag marking a directory entry as "hidden", meaning it
	// wouldn't show up in normal directory listings.
	AttrHidden = 2

	// AttrSystem is an attribute flag marking a directory entry as essential to the
	// operating system and must not be moved (e.g. during defragmentation) because the
	// OS may have hard-coded pointers to the file.
	AttrSystem = 4

	// AttrVolumeLabel is an attribute flag that marks a file as containing the true
	// volume label of the file system. It must reside in the root directory, and there
	// must be only one.
	AttrVolumeLabel = 8

	// AttrDirectory is an attribute flag marking a directory entry as being a directory.
	AttrDirectory = 16

	// AttrArchived is set whenever the directory entry is created or modified.
	// Archiving tools use this flag to determine whether the file needs to be
	// backed up or not.
	AttrArchived = 32
)

// DirentSize is the size of a single raw directory entry, in bytes.
const DirentSize = 32

// Markers found in the first byte of a directory entry's name.
const (
	direntEndOfDirectory = 0x00
	direntDeleted        = 0xE5
	// direntEscapedE5 stands for a real 0xE5 as the first character of a name,
	// since that value is taken by the deleted marker.
	direntEscapedE5 = 0x05
)

// RawDirent is the on-disk representation of a directory entry, broken down into its
// constituent fields.
type RawDirent struct {
	Name                [MSDOSNameLength]byte
	AttributeFlags      uint8
	NTReserved          uint8
	CreatedTimeCentisec uint8
	CreatedTime         uint16
	CreatedDate         uint16
	LastAccessedDate    uint16
	FirstClusterHigh    uint16
	LastModifiedTime    uint16
	LastModifiedDate    uint16
	FirstClusterLow     uint16
	FileSize            uint32
}

// NewRawDirentFromBytes deserializes 32 bytes into a RawDirent struct for further
// processing.
func NewRawDirentFromBytes(data []byte) (RawDirent, error) {
	if len(data) < DirentSize {
		return RawDirent{}, errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("directory entry must be %d bytes, got %d", DirentSize, len(data)),
		)
	}

	dirent := RawDirent{
		AttributeFlags:      data[11],
		NTReserved:          data[12],
		CreatedTimeCentisec: data[13],
		CreatedTime:         readU16LE(data, 14),
		CreatedDate:         readU16LE(data, 16),
		LastAccessedDate:    readU16LE(data, 18),
		FirstClusterHigh:    readU16LE(data, 20),
		LastModifiedTime:    readU16LE(data, 22),
		LastModifiedDate:    readU16LE(data, 24),
		FirstClusterLow:     readU16LE(data, 26),
		FileSize:            readU32LE(data, 28),
	}
	copy(dirent.Name[:], data[:MSDOSNameLength])
	return dirent, nil
}

// Bytes serializes the directory entry into its 32-byte on-disk form.
func (raw *RawDirent) Bytes() []byte {
	buffer := make([]byte, DirentSize)
	writer := bytewriter.New(buffer)

	// This can't fail, the struct is exactly as big as the buffer.
	_ = binary.Write(writer, binary.LittleEndian, raw)
	return buffer
}

// Dirent is a directory entry in a form easier to work with. Timestamps are in
// UTC.
type Dirent struct {
	Name           string
	AttributeFlags uint8
	FirstCluster   c.ClusterID
	Size           uint32
	CreatedAt      Timespec
	LastModified   Timespec
	LastAccessed   Timespec
}

// IsDir returns true if the entry is a subdirectory.
func (d *Dirent) IsDir() bool {
	return d.AttributeFlags&AttrDirectory != 0
}

// IsVolumeLabel returns true if the entry holds the volume's label instead of
// a file.
func (d *Dirent) IsVolumeLabel() bool {
	return d.AttributeFlags&AttrVolumeLabel != 0
}

// Mode returns the inode mode flags for the entry.
func (d *Dirent) Mode() uint32 {
	return AttrFlagsToFileMode(d.AttributeFlags)
}

// AttrFlagsToFileMode converts FAT attribute flags into inode mode flags.
func AttrFlagsToFileMode(flags uint8) uint32 {
	var mode uint32

	// FAT has no way to mark files as executable or not, so the executable bit is always set.
	if (flags & AttrReadOnly) != 0 {
		mode = 0o555
	} else {
		mode = 0o777
	}

	if (flags & AttrDirectory) != 0 {
		mode |= bs2fat.S_IFDIR
	} else {
		mode |= bs2fat.S_IFREG
	}
	return mode
}

// decodeName converts a space-padded 8.3 name into "NAME.EXT" form.
func decodeName(rawName [MSDOSNameLength]byte, isVolumeLabel bool) string {
	name := rawName
	if name[0] == direntEscapedE5 {
		name[0] = direntDeleted
	}

	if isVolumeLabel {
		return strings.TrimRight(string(name[:]), " ")
	}

	base := strings.TrimRight(string(name[:8]), " ")
	ext := strings.TrimRight(string(name[8:]), " ")
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// EncodeName converts a name into the space-padded, upper-case 8.3 form. Names
// that don't fit in 8.3 give [errors.EINVAL].
func EncodeName(name string, isVolumeLabel bool) ([MSDOSNameLength]byte, error) {
	result := [MSDOSNameLength]byte{}
	copy(result[:], strings.Repeat(" ", MSDOSNameLength))

	name = upperASCII(name)
	if isVolumeLabel {
		if len(name) > MSDOSNameLength {
			return result, errors.NewWithMessage(
				errors.EINVAL, fmt.Sprintf("volume label %q is too long", name))
		}
		copy(result[:], name)
		return result, nil
	}

	base, ext, _ := strings.Cut(name, ".")
	if base == "" || len(base) > 8 || len(ext) > 3 || strings.Contains(ext, ".") {
		return result, errors.NewWithMessage(
			errors.EINVAL, fmt.Sprintf("%q isn't a valid 8.3 name", name))
	}
	copy(result[:8], base)
	copy(result[8:], ext)

	if result[0] == direntDeleted {
		result[0] = direntEscapedE5
	}
	return result, nil
}

// upperASCII upper-cases ASCII letters. Bytes from the OEM code page are left
// as they are.
func upperASCII(name string) string {
	result := []byte(name)
	for i, char := range result {
		if char >= 'a' && char <= 'z' {
			result[i] = char - 'a' + 'A'
		}
	}
	return string(result)
}

// NewDirentFromRaw converts a raw directory entry. `tzOffset` has the same
// meaning as in [FATToUnix].
func NewDirentFromRaw(raw *RawDirent, tzOffset int64) Dirent {
	return Dirent{
		Name:           decodeName(raw.Name, raw.AttributeFlags&AttrVolumeLabel != 0),
		AttributeFlags: raw.AttributeFlags,
		// The high word is only meaningful on FAT32.
		FirstCluster: c.ClusterID(raw.FirstClusterLow),
		Size:         raw.FileSize,
		CreatedAt: FATToUnix(
			raw.CreatedTime, raw.CreatedDate, raw.CreatedTimeCentisec, tzOffset),
		LastModified: FATToUnix(raw.LastModifiedTime, raw.LastModifiedDate, 0, tzOffset),
		LastAccessed: FATToUnix(0, raw.LastAccessedDate, 0, tzOffset),
	}
}

// NewRawDirent builds a raw directory entry with every timestamp set to `now`.
func NewRawDirent(
	name [MSDOSNameLength]byte, attributes uint8, now Timespec, tzOffset int64,
) RawDirent {
	packedTime, packedDate, centiseconds := UnixToFAT(now, tzOffset)
	return RawDirent{
		Name:                name,
		AttributeFlags:      attributes,
		CreatedTimeCentisec: centiseconds,
		CreatedTime:         packedTime,
		CreatedDate:         packedDate,
		LastAccessedDate:    packedDate,
		LastModifiedTime:    packedTime,
		LastModifiedDate:    packedDate,
	}
}

// ReadRootDirectory lists the entries in the fixed-size root directory. It
// stops at the first never-used entry and skips deleted ones.
func (vol *Volume) ReadRootDirectory() ([]Dirent, error) {
	geometry := vol.Geometry()
	tzOffset := vol.TimezoneOffset()

	data := make([]byte, uint(geometry.DirEntries)*DirentSize)
	if len(data) == 0 {
		return []Dirent{}, nil
	}

	_, err := vol.device.ReadAt(data, c.LogicalBlock(geometry.DirStart))
	if err != nil {
		return nil, errors.NewWithMessage(errors.EIO, "failed to read the root directory").Wrap(err)
	}

	dirents := []Dirent{}
	for offset := 0; offset < len(data); offset += DirentSize {
		entry := data[offset : offset+DirentSize]
		if entry[0] == direntEndOfDirectory {
			break
		}
		if entry[0] == direntDeleted {
			continue
		}

		raw, err := NewRawDirentFromBytes(entry)
		if err != nil {
			return nil, err
		}
		dirents = append(dirents, NewDirentFromRaw(&raw, tzOffset))
	}
	return dirents, nil
}

// WriteRootDirent writes a raw entry into slot `index` of the root directory.
func (vol *Volume) WriteRootDirent(index uint, raw *RawDirent) error {
	geometry := vol.Geometry()
	if index >= uint(geometry.DirEntries) {
		return errors.NewWithMessage(
			errors.ENOSPC,
			fmt.Sprintf("root directory slot %d not in [0, %d)", index, geometry.DirEntries),
		)
	}

	block := geometry.DirStart + index/geometry.DirPerBlock
	offset := (index % geometry.DirPerBlock) * DirentSize

	sector := make([]byte, geometry.BlockSize)
	_, err := vol.device.ReadAt(sector, c.LogicalBlock(block))
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}
	copy(sector[offset:], raw.Bytes())

	_, err = vol.device.WriteAt(sector, c.LogicalBlock(block))
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

// Label returns the volume label stored in the root directory, or "" if there
// isn't one.
func (vol *Volume) Label() (string, error) {
	dirents, err := vol.ReadRootDirectory()
	if err != nil {
		return "", err
	}

	for _, dirent := range dirents {
		if dirent.IsVolumeLabel() {
			return dirent.Name, nil
		}
	}
	return "", nil
}

// NewInodeForDirent creates an inode for a directory entry in the root
// directory. The caller releases it with [Volume.ReleaseInode].
func (vol *Volume) NewInodeForDirent(dirent *Dirent) (*Inode, error) {
	inode, err := vol.inodes.NewInode(0, dirent.Mode())
	if err != nil {
		return nil, err
	}

	geometry := vol.Geometry()
	inode.Size = int64(dirent.Size)
	inode.FirstCluster = dirent.FirstCluster
	inode.Atime = dirent.LastAccessed
	inode.Mtime = dirent.LastModified
	inode.Ctime = dirent.LastModified

	if dirent.FirstCluster != ClusterFree {
		chain, err := vol.ClusterChain(dirent.FirstCluster)
		if err != nil {
			if releaseErr := vol.inodes.ReleaseInode(inode); releaseErr != nil {
				err = errors.NewFromError(errors.ErrnoOf(err), multierror.Append(err, releaseErr))
			}
			return nil, err
		}
		inode.Blocks = uint64(len(chain)) * uint64(geometry.ClusterSize) >> 9
	}
	return inode, nil
}

// ReleaseInode gives back an inode created by [Volume.NewInodeForDirent].
func (vol *Volume) ReleaseInode(inode *Inode) error {
	return vol.inodes.ReleaseInode(inode)
}
