package fat

import "time"

// DOS dates from 1980-01-01 through 2107-12-31.
const (
	DateMin uint16 = 0<<9 | 1<<5 | 1
	DateMax uint16 = 127<<9 | 12<<5 | 31
	TimeMax uint16 = 23<<11 | 59<<5 | 29
)

const (
	SecondsPerMinute = 60
	SecondsPerHour   = 60 * SecondsPerMinute
	SecondsPerDay    = 24 * SecondsPerHour
)

// daysDelta is the number of days between 1970-01-01 and 1980-01-01, two of
// which are leap days.
const daysDelta = 365*10 + 2

// year2100 is 2100 relative to the FAT epoch. It's divisible by 4 but isn't a
// leap year.
const year2100 = 120

// daysBeforeMonth is indexed by the 1-based month number. The unused trailing
// entries let a corrupt 4-bit month field index it safely.
var daysBeforeMonth = [16]int64{
	// Jan Feb Mar Apr May  Jun  Jul  Aug  Sep  Oct  Nov  Dec
	0, 0, 31, 59, 90, 120, 151, 181, 212, 243, 273, 304, 334, 0, 0, 0,
}

// Timespec is a point in time as seconds and nanoseconds since the Unix epoch,
// in UTC.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// TimespecFromTime converts a [time.Time] into a Timespec.
func TimespecFromTime(t time.Time) Timespec {
	return Timespec{Sec: t.Unix(), Nsec: int64(t.Nanosecond())}
}

// Time converts the timestamp into a [time.Time] in UTC.
func (ts Timespec) Time() time.Time {
	return time.Unix(ts.Sec, ts.Nsec).UTC()
}

// Before returns true if `ts` is strictly earlier than `other`.
func (ts Timespec) Before(other Timespec) bool {
	if ts.Sec != other.Sec {
		return ts.Sec < other.Sec
	}
	return ts.Nsec < other.Nsec
}

func isFATLeapYear(year int64) bool {
	return year&3 == 0 && year != year2100
}

// FATToUnix converts a DOS date and time in local time to a UTC timestamp.
//
// `tzOffset` is the number of seconds to add to local time to get UTC, i.e.
// minutes west of UTC times 60. `centiseconds` is the creation-time field
// found only in some directory entries; pass 0 if there isn't one.
//
// Out-of-range day and month values are clamped instead of rejected, as DOS
// does.
func FATToUnix(packedTime, packedDate uint16, centiseconds uint8, tzOffset int64) Timespec {
	year := int64(packedDate >> 9)
	month := (packedDate >> 5) & 0xf
	if month < 1 {
		month = 1
	}
	day := int64(packedDate & 0x1f)
	if day < 1 {
		day = 1
	}
	day--

	leapDays := (year + 3) / 4
	if year > year2100 {
		leapDays--
	}
	if isFATLeapYear(year) && month > 2 {
		leapDays++
	}

	tm := int64(packedTime)
	second := (tm & 0x1f) << 1
	second += ((tm >> 5) & 0x3f) * SecondsPerMinute
	second += (tm >> 11) * SecondsPerHour
	second += (year*365 + leapDays + daysBeforeMonth[month] + day + daysDelta) * SecondsPerDay
	second += tzOffset

	if centiseconds == 0 {
		return Timespec{Sec: second}
	}

	cs := int64(centiseconds)
	return Timespec{
		Sec:  second + cs/100,
		Nsec: (cs % 100) * 10_000_000,
	}
}

// UnixToFAT converts a UTC timestamp into a DOS date and time in local time.
// `tzOffset` has the same meaning as in [FATToUnix].
//
// Timestamps before 1980 are clamped to 1980-01-01 00:00:00, and timestamps
// after 2107 are clamped to the last representable instant.
func UnixToFAT(ts Timespec, tzOffset int64) (packedTime, packedDate uint16, centiseconds uint8) {
	local := time.Unix(ts.Sec-tzOffset, ts.Nsec).UTC()

	year := local.Year()
	if year < 1980 {
		return 0, DateMin, 0
	}
	if year > 2107 {
		return TimeMax, DateMax, 199
	}

	packedTime = uint16(local.Hour()<<11 | local.Minute()<<5 | local.Second()>>1)
	packedDate = uint16((year-1980)<<9 | int(local.Month())<<5 | local.Day())
	centiseconds = uint8((local.Second()&1)*100 + local.Nanosecond()/10_000_000)
	return packedTime, packedDate, centiseconds
}

// TimeRange returns the earliest and latest timestamps a volume with the given
// timezone offset can store.
func TimeRange(tzOffset int64) (Timespec, Timespec) {
	return FATToUnix(0, DateMin, 0, tzOffset), FATToUnix(TimeMax, DateMax, 199, tzOffset)
}
