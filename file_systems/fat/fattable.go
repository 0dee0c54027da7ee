package fat

import (
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/bs2fat/errors"
	c "github.com/dargueta/bs2fat/file_systems/common"
)

// Special values of FAT entries.
const (
	ClusterFree  c.ClusterID = 0
	fat12Bad     c.ClusterID = 0xFF7
	fat12EOF     c.ClusterID = 0xFFF
	fat12MinEOF  c.ClusterID = 0xFF8
	fat16Bad     c.ClusterID = 0xFFF7
	fat16EOF     c.ClusterID = 0xFFFF
	fat16MinEOF  c.ClusterID = 0xFFF8
	fat12Mask    c.ClusterID = 0xFFF
	fat16Mask    c.ClusterID = 0xFFFF
	fat12Reserve c.ClusterID = 0xF00
	fat16Reserve c.ClusterID = 0xFF00
)

// fatTable is an in-memory copy of the first allocation table. Changes are
// written back to every copy on flush.
type fatTable struct {
	bits       uint8
	sectorSize uint
	// entries is the number of entries the table holds, reserved ones included.
	entries      uint32
	data         []byte
	dirtySectors bitmap.Bitmap
}

// newFATTable wraps `data`, the raw contents of one table copy.
func newFATTable(data []byte, fatBits uint8, sectorSize uint, entries uint32) *fatTable {
	return &fatTable{
		bits:         fatBits,
		sectorSize:   sectorSize,
		entries:      entries,
		data:         data,
		dirtySectors: bitmap.New(len(data)/int(sectorSize) + 1),
	}
}

// loadFATTable reads the first table copy from the device.
func loadFATTable(device c.BlockDevice, geo *SuperblockGeometry) (*fatTable, error) {
	data := make([]byte, uint(geo.FATLength)*geo.BlockSize)
	_, err := device.ReadAt(data, c.LogicalBlock(geo.FATStart))
	if err != nil {
		return nil, errors.NewWithMessage(errors.EIO, "failed to read the FAT").Wrap(err)
	}
	return newFATTable(data, geo.FATBits, geo.BlockSize, geo.MaxCluster), nil
}

// entryOffset returns the byte offset of the 16-bit word holding `cluster`'s
// entry.
func (table *fatTable) entryOffset(cluster c.ClusterID) int {
	if table.bits == 12 {
		return int(cluster) + int(cluster)/2
	}
	return int(cluster) * 2
}

func (table *fatTable) checkCluster(cluster c.ClusterID) error {
	if uint32(cluster) >= table.entries {
		return errors.NewWithMessage(
			errors.EINVAL,
			fmt.Sprintf("cluster %d not in range [0, %d)", cluster, table.entries),
		)
	}
	return nil
}

// Get returns the value of `cluster`'s entry.
func (table *fatTable) Get(cluster c.ClusterID) (c.ClusterID, error) {
	err := table.checkCluster(cluster)
	if err != nil {
		return 0, err
	}

	word := c.ClusterID(readU16LE(table.data, table.entryOffset(cluster)))
	if table.bits == 16 {
		return word, nil
	}
	if cluster&1 != 0 {
		return word >> 4, nil
	}
	return word & fat12Mask, nil
}

// Set changes the value of `cluster`'s entry.
func (table *fatTable) Set(cluster, value c.ClusterID) error {
	err := table.checkCluster(cluster)
	if err != nil {
		return err
	}

	offset := table.entryOffset(cluster)
	word := readU16LE(table.data, offset)

	if table.bits == 16 {
		word = uint16(value & fat16Mask)
	} else if cluster&1 != 0 {
		word = (word & 0x000F) | uint16((value&fat12Mask)<<4)
	} else {
		word = (word & 0xF000) | uint16(value&fat12Mask)
	}

	writeU16LE(table.data, offset, word)

	// A FAT12 entry can straddle two sectors.
	table.dirtySectors.Set(offset/int(table.sectorSize), true)
	table.dirtySectors.Set((offset+1)/int(table.sectorSize), true)
	return nil
}

// EndOfChain returns the value written to mark the last cluster of a chain.
func (table *fatTable) EndOfChain() c.ClusterID {
	if table.bits == 16 {
		return fat16EOF
	}
	return fat12EOF
}

func (table *fatTable) IsEndOfChain(value c.ClusterID) bool {
	if table.bits == 16 {
		return value >= fat16MinEOF
	}
	return value >= fat12MinEOF
}

func (table *fatTable) IsBad(value c.ClusterID) bool {
	if table.bits == 16 {
		return value == fat16Bad
	}
	return value == fat12Bad
}

// setReserved fills in entries 0 and 1 the way formatters do.
func (table *fatTable) setReserved(media uint8) error {
	var first c.ClusterID
	if table.bits == 16 {
		first = fat16Reserve | c.ClusterID(media)
	} else {
		first = fat12Reserve | c.ClusterID(media)
	}

	err := table.Set(0, first)
	if err != nil {
		return err
	}
	return table.Set(1, table.EndOfChain())
}

// flush writes every modified sector of the table to each copy on the device.
func (table *fatTable) flush(device c.BlockDevice, geo *SuperblockGeometry) error {
	totalSectors := len(table.data) / int(table.sectorSize)

	for sector := 0; sector < totalSectors; sector++ {
		if !table.dirtySectors.Get(sector) {
			continue
		}

		start := sector * int(table.sectorSize)
		sectorData := table.data[start : start+int(table.sectorSize)]

		for copyIndex := uint(0); copyIndex < uint(geo.FATs); copyIndex++ {
			block := uint(geo.FATStart) + copyIndex*uint(geo.FATLength) + uint(sector)
			_, err := device.WriteAt(sectorData, c.LogicalBlock(block))
			if err != nil {
				return errors.NewWithMessage(
					errors.EIO,
					fmt.Sprintf("failed to write sector %d of FAT copy %d", sector, copyIndex),
				).Wrap(err)
			}
		}
		table.dirtySectors.Set(sector, false)
	}
	return nil
}
