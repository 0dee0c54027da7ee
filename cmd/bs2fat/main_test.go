package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dargueta/bs2fat/errors"
	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

type testEnvironment struct {
	*environment
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newTestEnvironment() *testEnvironment {
	return &testEnvironment{
		environment: &environment{
			fs:     afero.NewMemMapFs(),
			logger: log.New(),
			locatePartition: func(string, int) (partitionRange, error) {
				return partitionRange{}, errors.ErrNotSupported
			},
		},
	}
}

func (env *testEnvironment) run(t *testing.T, args ...string) error {
	env.stdout.Reset()
	env.stderr.Reset()

	app := newApp(env.environment, &env.stdout, &env.stderr)
	// Keep exit-coded errors from terminating the test binary.
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app.Run(append([]string{"bs2fat"}, args...))
}

func TestFormatThenInfo(t *testing.T) {
	env := newTestEnvironment()

	err := env.run(t, "format", "--geometry", "fd1440", "--label", "test", "--volume-id", "0x1234ABCD", "disk.img")
	require.NoError(t, err)

	info, err := env.fs.Stat("disk.img")
	require.NoError(t, err)
	assert.EqualValues(t, 1474560, info.Size())

	require.NoError(t, env.run(t, "info", "disk.img"))
	output := env.stdout.String()
	assert.Contains(t, output, "Label:               TEST\n")
	assert.Contains(t, output, "Volume ID:           1234-ABCD\n")
	assert.Contains(t, output, "Type:                FAT12\n")
	assert.Contains(t, output, "FATs:                2 x 9 sectors at sector 1\n")
	assert.Contains(t, output, "Root directory:      224 entries at sector 19\n")
	assert.Contains(t, output, "Data region:         sector 33\n")
	assert.Contains(t, output, "Clusters:            2847 (2847 free)\n")
	assert.NotContains(t, output, "dirty")
}

func TestInfo__CSV(t *testing.T) {
	env := newTestEnvironment()
	require.NoError(t, env.run(t, "format", "-g", "fd720", "disk.img"))
	require.NoError(t, env.run(t, "info", "--csv", "--tz-offset", "0", "disk.img"))

	rows := []*volumeInfo{}
	require.NoError(t, gocsv.UnmarshalString(env.stdout.String(), &rows))
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "", row.Label)
	assert.EqualValues(t, 12, row.FATBits)
	assert.EqualValues(t, 512, row.SectorSize)
	assert.EqualValues(t, 2, row.SectorsPerCluster)
	assert.EqualValues(t, 1440, row.TotalSectors)
	assert.Equal(t, row.Clusters, uint32(row.FreeClusters))
	assert.Equal(t, "1980-01-01T00:00:00Z", row.Earliest)
	assert.Equal(t, "2107-12-31T23:59:59Z", row.Latest)
}

func TestInfo__Partition(t *testing.T) {
	env := newTestEnvironment()
	require.NoError(t, env.run(t, "format", "-g", "fd360", "--label", "inner", "floppy.img"))

	volume, err := afero.ReadFile(env.fs, "floppy.img")
	require.NoError(t, err)

	const partitionStart = 1 << 20
	disk := append(make([]byte, partitionStart), volume...)
	require.NoError(t, afero.WriteFile(env.fs, "disk.img", disk, 0o644))

	env.locatePartition = func(path string, index int) (partitionRange, error) {
		assert.Equal(t, "disk.img", path)
		assert.Equal(t, 1, index)
		return partitionRange{Start: partitionStart, Size: int64(len(volume))}, nil
	}

	require.NoError(t, env.run(t, "info", "--partition", "1", "disk.img"))
	assert.Contains(t, env.stdout.String(), "Label:               INNER\n")
	assert.Contains(t, env.stdout.String(), "Total sectors:       720\n")
}

func TestInfo__NotFAT(t *testing.T) {
	env := newTestEnvironment()
	require.NoError(t, afero.WriteFile(env.fs, "zeros.img", make([]byte, 64*512), 0o644))

	err := env.run(t, "info", "zeros.img")
	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, err.Error(), "doesn't contain a FAT12/16 volume")
}

func TestInfo__MissingFile(t *testing.T) {
	env := newTestEnvironment()
	assert.Error(t, env.run(t, "info", "nope.img"))
}

func TestFormat__UnknownGeometry(t *testing.T) {
	env := newTestEnvironment()

	err := env.run(t, "format", "--geometry", "fd9999", "disk.img")
	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())

	exists, err := afero.Exists(env.fs, "disk.img")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFormat__LabelTooLong(t *testing.T) {
	env := newTestEnvironment()
	err := env.run(t, "format", "-g", "fd1440", "--label", "much too long", "disk.img")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestGeometries(t *testing.T) {
	env := newTestEnvironment()
	require.NoError(t, env.run(t, "geometries"))

	lines := strings.Split(strings.TrimSpace(env.stdout.String()), "\n")
	require.Len(t, lines, 8)
	assert.True(t, strings.HasPrefix(lines[0], "fd160 "), lines[0])
	assert.True(t, strings.HasPrefix(lines[7], "fd2880 "), lines[7])

	require.NoError(t, env.run(t, "geometries", "--csv"))
	assert.True(t, strings.HasPrefix(env.stdout.String(), "slug,name,"))
	assert.Contains(t, env.stdout.String(), "0xf0")
}

func TestVolumeIDFromTime(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 30, 15, 250_000_000, time.UTC)
	// (14:30 + 2024) and (03/09 + 15.25 seconds)
	expected := uint32((0x0E1E+2024)&0xFFFF)<<16 | (0x0309+0x0F19)&0xFFFF
	assert.Equal(t, expected, volumeIDFromTime(now))
}

func TestSectionStream(t *testing.T) {
	fs := afero.NewMemMapFs()
	file, err := fs.Create("data")
	require.NoError(t, err)
	_, err = file.Write([]byte("0123456789abcdef"))
	require.NoError(t, err)

	stream := newSectionStream(file, 4, 8)

	buffer := make([]byte, 5)
	n, err := stream.Read(buffer)
	require.NoError(t, err)
	assert.Equal(t, "45678", string(buffer[:n]))

	n, err = stream.Read(buffer)
	require.NoError(t, err)
	assert.Equal(t, "9ab", string(buffer[:n]))

	_, err = stream.Read(buffer)
	assert.Equal(t, io.EOF, err)

	offset, err := stream.Seek(-2, io.SeekEnd)
	require.NoError(t, err)
	assert.EqualValues(t, 6, offset)

	_, err = stream.Write([]byte("XY"))
	require.NoError(t, err)
	_, err = stream.Write([]byte("Z"))
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)

	_, err = stream.Seek(-1, io.SeekStart)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)

	contents, err := afero.ReadFile(fs, "data")
	require.NoError(t, err)
	assert.Equal(t, "0123456789XYcdef", string(contents))
}

type stubVolume struct {
	unmountErr error
	unmounted  bool
}

func (v *stubVolume) Unmount() error {
	v.unmounted = true
	return v.unmountErr
}

func TestUnmountAfterFailure(t *testing.T) {
	cause := errors.ErrFileSystemCorrupted.WithMessage("bad root directory")

	vol := &stubVolume{}
	err := unmountAfterFailure(vol, cause)
	assert.True(t, vol.unmounted)
	assert.Equal(t, cause, err)

	vol = &stubVolume{unmountErr: errors.ErrIOFailed.WithMessage("flush failed")}
	err = unmountAfterFailure(vol, cause)
	assert.True(t, vol.unmounted)
	assert.ErrorIs(t, err, errors.ErrFileSystemCorrupted)
	assert.ErrorIs(t, err, errors.ErrIOFailed)
}
