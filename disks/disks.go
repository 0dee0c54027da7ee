// Package disks contains the geometries of standard floppy disks, along with
// the FAT parameters DOS formats them with.
package disks

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dargueta/bs2fat/errors"
	"github.com/gocarina/gocsv"
)

// MediaByte is a FAT media descriptor. It's written in hex in the CSV.
type MediaByte uint8

// UnmarshalCSV implements [gocsv.TypeUnmarshaller].
func (m *MediaByte) UnmarshalCSV(value string) error {
	parsed, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		return fmt.Errorf("invalid media byte %q: %w", value, err)
	}
	*m = MediaByte(parsed)
	return nil
}

// MarshalCSV implements [gocsv.TypeMarshaller].
func (m MediaByte) MarshalCSV() (string, error) {
	return fmt.Sprintf("%#02x", uint8(m)), nil
}

type DiskGeometry struct {
	Slug               string `csv:"slug"`
	Name               string `csv:"name"`
	FirstYearAvailable uint   `csv:"first_year_available"`
	FormFactor         string `csv:"form_factor"`
	IsRemovable        uint   `csv:"is_removable"`

	// BitsPerAddressUnit gives the number of bits in the device's smallest
	// addressible unit of memory. For every PC floppy it's a byte (8).
	BitsPerAddressUnit uint `csv:"bits_per_address_unit"`

	// AddressUnitsPerSector gives the number of address units in a sector, or
	// "record".
	AddressUnitsPerSector uint `csv:"address_units_per_sector"`
	SectorsPerTrack       uint `csv:"sectors_per_track"`

	// TotalDataTracks gives the number of data tracks per head.
	TotalDataTracks uint `csv:"total_data_tracks"`
	HiddenTracks    uint `csv:"hidden_tracks"`
	// Heads gives the number of heads in the device.
	Heads uint `csv:"heads"`

	// The remaining fields are the parameters DOS uses when formatting a FAT
	// file system on the disk.
	SectorsPerCluster uint      `csv:"sectors_per_cluster"`
	ReservedSectors   uint      `csv:"reserved_sectors"`
	FATs              uint      `csv:"fats"`
	RootEntries       uint      `csv:"root_entries"`
	Media             MediaByte `csv:"media"`
	Notes             string    `csv:"notes"`
}

// TotalSectors gives the number of data sectors on the disk.
func (g *DiskGeometry) TotalSectors() uint {
	return g.SectorsPerTrack * g.TotalDataTracks * g.Heads
}

// TotalSizeBytes gives the size of the storage device, rounded up to the nearest
// byte. This gives the minimum size of the image file.
func (g *DiskGeometry) TotalSizeBytes() int64 {
	bits := int64(g.BitsPerAddressUnit*g.AddressUnitsPerSector) * int64(g.TotalSectors())
	if bits%8 == 0 {
		return bits / 8
	}
	return (bits / 8) + 1
}

// https://en.wikipedia.org/wiki/List_of_floppy_disk_formats
//
//go:embed disk-geometries.csv
var diskGeometriesRawCSV string
var diskGeometries map[string]DiskGeometry

// GetPredefinedDiskGeometry returns the geometry with the given slug, such as
// "fd1440".
func GetPredefinedDiskGeometry(slug string) (DiskGeometry, error) {
	geometry, ok := diskGeometries[slug]
	if ok {
		return geometry, nil
	}

	return DiskGeometry{}, errors.NewWithMessage(
		errors.ENOENT,
		fmt.Sprintf("no predefined disk geometry exists with slug %q", slug),
	)
}

// ListPredefinedDiskGeometries returns every predefined geometry, sorted by
// size and then by slug.
func ListPredefinedDiskGeometries() []DiskGeometry {
	result := make([]DiskGeometry, 0, len(diskGeometries))
	for _, geometry := range diskGeometries {
		result = append(result, geometry)
	}

	sort.Slice(result, func(i, j int) bool {
		left, right := result[i].TotalSizeBytes(), result[j].TotalSizeBytes()
		if left != right {
			return left < right
		}
		return result[i].Slug < result[j].Slug
	})
	return result
}

func loadGeometries(rawCSV string) (map[string]DiskGeometry, error) {
	csvReader := csv.NewReader(strings.NewReader(rawCSV))
	csvReader.Comma = '|'

	rows := []DiskGeometry{}
	err := gocsv.UnmarshalCSV(csvReader, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to decode disk geometries: %w", err)
	}

	geometries := make(map[string]DiskGeometry, len(rows))
	for i, row := range rows {
		_, exists := geometries[row.Slug]
		if exists {
			return nil, fmt.Errorf(
				"duplicate definition for disk %q found on row %d", row.Slug, i+1)
		}
		geometries[row.Slug] = row
	}
	return geometries, nil
}

func init() {
	var err error
	diskGeometries, err = loadGeometries(diskGeometriesRawCSV)
	if err != nil {
		panic(err)
	}
}
