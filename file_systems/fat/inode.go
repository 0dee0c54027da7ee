package fat

import (
	"fmt"
	"sync"

	"github.com/dargueta/bs2fat"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
)

const (
	// RootIno is the inode number of the root directory.
	RootIno uint64 = 1
	// FSInfoIno is the inode number reserved for the FSINFO sector.
	FSInfoIno uint64 = 2
	// firstDynamicIno is the first inode number handed out automatically.
	firstDynamicIno uint64 = 3
)

// Inode is the in-memory state of a file, directory, or metadata object on a
// mounted volume.
type Inode struct {
	Ino  uint64
	Mode uint32
	// Size is the size of the file's contents, in bytes.
	Size int64
	// Blocks is the amount of space allocated to the inode, in 512-byte units.
	Blocks       uint64
	FirstCluster c.ClusterID
	Atime        Timespec
	Ctime        Timespec
	Mtime        Timespec

	lock sync.Mutex
}

// IsRegular returns true if the inode is a regular file.
func (inode *Inode) IsRegular() bool {
	return inode.Mode&bs2fat.S_IFMT == bs2fat.S_IFREG
}

// IsDir returns true if the inode is a directory.
func (inode *Inode) IsDir() bool {
	return inode.Mode&bs2fat.S_IFMT == bs2fat.S_IFDIR
}

// ApplyTimes sets every timestamp present in `updates`.
func (inode *Inode) ApplyTimes(updates TimestampUpdates) {
	if updates.Atime != nil {
		inode.Atime = *updates.Atime
	}
	if updates.Ctime != nil {
		inode.Ctime = *updates.Ctime
	}
	if updates.Mtime != nil {
		inode.Mtime = *updates.Mtime
	}
}

// InodeAllocator hands out inodes for a mounted volume and takes them back.
type InodeAllocator interface {
	// NewInode creates an inode with the given number and mode. If `ino` is 0,
	// the allocator picks an unused number.
	NewInode(ino uint64, mode uint32) (*Inode, error)
	// ReleaseInode returns an inode created by NewInode.
	ReleaseInode(inode *Inode) error
}

// InodeTable is the default in-memory [InodeAllocator].
type InodeTable struct {
	lock    sync.Mutex
	inodes  map[uint64]*Inode
	nextIno uint64
}

func NewInodeTable() *InodeTable {
	return &InodeTable{
		inodes:  make(map[uint64]*Inode),
		nextIno: firstDynamicIno,
	}
}

func (table *InodeTable) NewInode(ino uint64, mode uint32) (*Inode, error) {
	table.lock.Lock()
	defer table.lock.Unlock()

	if ino == 0 {
		for {
			ino = table.nextIno
			table.nextIno++
			if _, exists := table.inodes[ino]; !exists {
				break
			}
		}
	} else if _, exists := table.inodes[ino]; exists {
		return nil, errors.NewWithMessage(
			errors.EEXIST, fmt.Sprintf("inode %d is already in use", ino))
	}

	inode := &Inode{Ino: ino, Mode: mode}
	table.inodes[ino] = inode
	return inode, nil
}

func (table *InodeTable) ReleaseInode(inode *Inode) error {
	table.lock.Lock()
	defer table.lock.Unlock()

	current, exists := table.inodes[inode.Ino]
	if !exists || current != inode {
		return errors.NewWithMessage(
			errors.ENOENT, fmt.Sprintf("inode %d isn't allocated", inode.Ino))
	}
	delete(table.inodes, inode.Ino)
	return nil
}

// Len returns the number of inodes currently allocated.
func (table *InodeTable) Len() int {
	table.lock.Lock()
	defer table.lock.Unlock()
	return len(table.inodes)
}

// Lookup returns the allocated inode with number `ino`, if any.
func (table *InodeTable) Lookup(ino uint64) (*Inode, bool) {
	table.lock.Lock()
	defer table.lock.Unlock()
	inode, ok := table.inodes[ino]
	return inode, ok
}
