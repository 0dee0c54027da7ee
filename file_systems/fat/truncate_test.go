package fat_test

import (
	"testing"
	"time"

	"github.com/dargueta/bs2fat"
	"github.com/dargueta/bs2fat/file_systems/fat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateTimes__RootNeverChanges(t *testing.T) {
	now := fat.Timespec{Sec: 1_600_000_000, Nsec: 123}
	updates := fat.TruncateTimes(true, now, bs2fat.TimeAll, 0)
	assert.True(t, updates.IsEmpty())
}

func TestTruncateTimes__NoFlags(t *testing.T) {
	updates := fat.TruncateTimes(false, fat.Timespec{Sec: 99}, 0, 0)
	assert.True(t, updates.IsEmpty())
}

func TestTruncateTimes__ModifyOnly(t *testing.T) {
	now := fat.Timespec{Sec: 12345, Nsec: 999_999_999}
	updates := fat.TruncateTimes(false, now, bs2fat.TimeModify, 0)

	assert.Nil(t, updates.Atime)
	assert.Nil(t, updates.Ctime)
	require.NotNil(t, updates.Mtime)
	assert.Equal(t, fat.Timespec{Sec: 12344}, *updates.Mtime)
}

func TestTruncateTimes__EvenSecondsUnchanged(t *testing.T) {
	now := fat.Timespec{Sec: 1_000_000, Nsec: 5}
	updates := fat.TruncateTimes(false, now, bs2fat.TimeChange, 0)

	require.NotNil(t, updates.Ctime)
	assert.Equal(t, fat.Timespec{Sec: 1_000_000}, *updates.Ctime)
}

func TestTruncateTimes__AccessTimeIsLocalMidnight(t *testing.T) {
	now := fat.TimespecFromTime(time.Date(2021, 6, 15, 3, 0, 0, 0, time.UTC))

	// Two hours east of UTC, so it's already 05:00 on the 15th locally.
	updates := fat.TruncateTimes(false, now, bs2fat.TimeAccess, -7200)
	require.NotNil(t, updates.Atime)
	assert.Equal(
		t,
		time.Date(2021, 6, 14, 22, 0, 0, 0, time.UTC),
		updates.Atime.Time(),
	)

	// Five hours west, so it's still the 14th locally.
	updates = fat.TruncateTimes(false, now, bs2fat.TimeAccess, 5*3600)
	require.NotNil(t, updates.Atime)
	assert.Equal(
		t,
		time.Date(2021, 6, 14, 5, 0, 0, 0, time.UTC),
		updates.Atime.Time(),
	)
}

func TestTruncateTimes__AccessTimeBeforeEpoch(t *testing.T) {
	now := fat.TimespecFromTime(time.Date(1969, 12, 31, 18, 30, 0, 0, time.UTC))
	updates := fat.TruncateTimes(false, now, bs2fat.TimeAccess, 0)

	require.NotNil(t, updates.Atime)
	assert.EqualValues(t, -fat.SecondsPerDay, updates.Atime.Sec)
}

func TestTruncateTimes__All(t *testing.T) {
	now := fat.TimespecFromTime(time.Date(2001, 9, 9, 1, 46, 41, 500, time.UTC))
	updates := fat.TruncateTimes(false, now, bs2fat.TimeAll, 0)

	require.NotNil(t, updates.Atime)
	require.NotNil(t, updates.Ctime)
	require.NotNil(t, updates.Mtime)
	assert.Equal(t, time.Date(2001, 9, 9, 0, 0, 0, 0, time.UTC), updates.Atime.Time())
	assert.Equal(t, time.Date(2001, 9, 9, 1, 46, 40, 0, time.UTC), updates.Ctime.Time())
	assert.Equal(t, *updates.Ctime, *updates.Mtime)
}
