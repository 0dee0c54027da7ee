package fat

import "github.com/dargueta/bs2fat"

// TimestampUpdates holds the new values of an inode's timestamps. A nil field
// means the timestamp is left unchanged.
type TimestampUpdates struct {
	Atime *Timespec
	Ctime *Timespec
	Mtime *Timespec
}

// IsEmpty returns true if no timestamp is changed.
func (updates TimestampUpdates) IsEmpty() bool {
	return updates.Atime == nil && updates.Ctime == nil && updates.Mtime == nil
}

func truncateToTwoSeconds(ts Timespec) Timespec {
	return Timespec{Sec: ts.Sec &^ 1}
}

// truncateToLocalDay returns midnight of the local day `ts` falls on, in UTC.
func truncateToLocalDay(ts Timespec, tzOffset int64) Timespec {
	local := ts.Sec - tzOffset
	remainder := local % SecondsPerDay
	if remainder < 0 {
		remainder += SecondsPerDay
	}
	return Timespec{Sec: local - remainder + tzOffset}
}

// TruncateTimes computes the timestamps an inode gets when it's touched at
// `now`, at the granularity the volume can store:
//
//   - Access time is a date only, so it's truncated to midnight local time.
//   - Change and modification times are truncated to 2 seconds.
//
// The root directory has no directory entry to keep timestamps in, so it never
// changes.
func TruncateTimes(
	isRoot bool, now Timespec, flags bs2fat.FileTimeFlags, tzOffset int64,
) TimestampUpdates {
	updates := TimestampUpdates{}
	if isRoot {
		return updates
	}

	if flags.Has(bs2fat.TimeAccess) {
		atime := truncateToLocalDay(now, tzOffset)
		updates.Atime = &atime
	}
	if flags.Has(bs2fat.TimeChange) {
		ctime := truncateToTwoSeconds(now)
		updates.Ctime = &ctime
	}
	if flags.Has(bs2fat.TimeModify) {
		mtime := truncateToTwoSeconds(now)
		updates.Mtime = &mtime
	}
	return updates
}
