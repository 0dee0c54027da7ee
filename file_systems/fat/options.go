package fat

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dargueta/bs2fat/errors"
	log "github.com/sirupsen/logrus"
)

// maxTimeOffset is the largest allowed magnitude of the time_offset option, in
// minutes.
const maxTimeOffset = 24 * 60

// MountOptions controls how a volume is mounted.
type MountOptions struct {
	// TimezoneSet overrides the host's timezone with TimeOffset.
	TimezoneSet bool
	// TimeOffset is the volume's local time in minutes east of UTC. It's only
	// used if TimezoneSet is true.
	TimeOffset int64
	// Flush writes metadata back to the device every time a file opened for
	// writing is released.
	Flush bool
	// SystemMinutesWest is the host's timezone, used when TimezoneSet is false.
	// If it's zero, mounting fills it in from [time.Local], so a zero
	// MountOptions follows the host's timezone.
	SystemMinutesWest int64
	// Logger receives all diagnostics. If nil, the logrus standard logger is
	// used.
	Logger log.FieldLogger
}

// DefaultMountOptions returns the options used when none are given. The host
// timezone is taken from [time.Local].
func DefaultMountOptions() MountOptions {
	return MountOptions{SystemMinutesWest: LocalMinutesWest(time.Now())}
}

// LocalMinutesWest returns the offset of the local timezone at `now`, in
// minutes west of UTC.
func LocalMinutesWest(now time.Time) int64 {
	_, offsetEast := now.In(time.Local).Zone()
	return -int64(offsetEast) / SecondsPerMinute
}

// ParseMountOptions parses a comma-separated option string, such as
// "tz=UTC,time_offset=-120,flush", on top of [DefaultMountOptions].
//
// Recognized options:
//
//   - tz=UTC: Store timestamps in UTC regardless of the host's timezone.
//   - time_offset=N: The volume's local time is N minutes east of UTC.
//   - flush: Write metadata back as soon as a file is released.
func ParseMountOptions(optionString string) (MountOptions, error) {
	options := DefaultMountOptions()

	for _, option := range strings.Split(optionString, ",") {
		option = strings.TrimSpace(option)
		if option == "" {
			continue
		}

		key, value, hasValue := strings.Cut(option, "=")
		switch key {
		case "flush":
			if hasValue {
				return MountOptions{}, errors.NewWithMessage(
					errors.EINVAL, "option `flush` doesn't take a value")
			}
			options.Flush = true
		case "tz":
			if value != "UTC" {
				return MountOptions{}, errors.NewWithMessage(
					errors.EINVAL,
					fmt.Sprintf("unsupported timezone %q, only UTC is accepted", value),
				)
			}
			options.TimezoneSet = true
			options.TimeOffset = 0
		case "time_offset":
			offset, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return MountOptions{}, errors.NewWithMessage(
					errors.EINVAL,
					fmt.Sprintf("invalid time_offset %q", value),
				).Wrap(err)
			}
			if offset < -maxTimeOffset || offset > maxTimeOffset {
				return MountOptions{}, errors.NewWithMessage(
					errors.EINVAL,
					fmt.Sprintf(
						"time_offset %d not in range [%d, %d]",
						offset,
						-maxTimeOffset,
						maxTimeOffset,
					),
				)
			}
			options.TimezoneSet = true
			options.TimeOffset = offset
		default:
			return MountOptions{}, errors.NewWithMessage(
				errors.EINVAL, fmt.Sprintf("unrecognized mount option %q", key))
		}
	}

	return options, nil
}

// TimezoneOffset returns the number of seconds to add to a volume's local time
// to get UTC.
func (options *MountOptions) TimezoneOffset() int64 {
	var minutes int64
	if options.TimezoneSet {
		minutes = -options.TimeOffset
	} else {
		minutes = options.SystemMinutesWest
	}
	return minutes * SecondsPerMinute
}

// resolveHostTimezone fills in SystemMinutesWest from [time.Local] if neither
// timezone field was set.
func (options *MountOptions) resolveHostTimezone(now time.Time) {
	if !options.TimezoneSet && options.SystemMinutesWest == 0 {
		options.SystemMinutesWest = LocalMinutesWest(now)
	}
}

func (options *MountOptions) logger() log.FieldLogger {
	if options.Logger == nil {
		return log.StandardLogger()
	}
	return options.Logger
}
