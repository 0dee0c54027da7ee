package disks_test

import (
	"testing"

	"github.com/dargueta/bs2fat/disks"
	"github.com/dargueta/bs2fat/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPredefinedDiskGeometry__HighDensity(t *testing.T) {
	geometry, err := disks.GetPredefinedDiskGeometry("fd1440")
	require.NoError(t, err)

	assert.EqualValues(t, 2880, geometry.TotalSectors())
	assert.EqualValues(t, 1474560, geometry.TotalSizeBytes())
	assert.EqualValues(t, 512, geometry.AddressUnitsPerSector)
	assert.EqualValues(t, 1, geometry.SectorsPerCluster)
	assert.EqualValues(t, 224, geometry.RootEntries)
	assert.EqualValues(t, 0xF0, geometry.Media)
}

func TestGetPredefinedDiskGeometry__Missing(t *testing.T) {
	_, err := disks.GetPredefinedDiskGeometry("fd9999")
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestListPredefinedDiskGeometries__Sorted(t *testing.T) {
	geometries := disks.ListPredefinedDiskGeometries()
	require.Len(t, geometries, 8)

	assert.Equal(t, "fd160", geometries[0].Slug)
	assert.Equal(t, "fd2880", geometries[len(geometries)-1].Slug)
	for i := 1; i < len(geometries); i++ {
		assert.LessOrEqual(t, geometries[i-1].TotalSizeBytes(), geometries[i].TotalSizeBytes())
	}
}

// Every predefined geometry needs a root directory that fills whole sectors.
func TestPredefinedDiskGeometries__RootDirectoryFillsSectors(t *testing.T) {
	for _, geometry := range disks.ListPredefinedDiskGeometries() {
		direntsPerSector := geometry.AddressUnitsPerSector / 32
		assert.Zerof(
			t,
			geometry.RootEntries%direntsPerSector,
			"%s: %d root entries isn't a multiple of %d",
			geometry.Slug,
			geometry.RootEntries,
			direntsPerSector,
		)
	}
}
