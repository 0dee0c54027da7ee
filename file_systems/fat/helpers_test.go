package fat_test

import (
	"testing"

	"github.com/dargueta/bs2fat/file_systems/fat"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

// referenceBPB returns the parameters of a 10 MiB FAT16 volume.
func referenceBPB() fat.BiosParamBlock {
	return fat.BiosParamBlock{
		SectorSize:        512,
		SectorsPerCluster: 4,
		ReservedSectors:   1,
		FATs:              2,
		DirEntries:        512,
		Sectors:           20480,
		Media:             0xF8,
		FATLength:         32,
		SectorsPerTrack:   32,
		Heads:             4,
		DriveNumber:       0x80,
		VolumeID:          0xDEADBEEF,
	}
}

func encodeBPB(t *testing.T, bpb fat.BiosParamBlock) *fat.RawBootSector {
	raw, err := bpb.Encode()
	require.NoError(t, err, "failed to encode boot sector")
	return raw
}

// newTestLogger returns a logger that records every entry at debug level or
// above.
func newTestLogger() (*logrus.Logger, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return logger, hook
}

func entriesAtLevel(hook *test.Hook, level logrus.Level) []logrus.Entry {
	result := []logrus.Entry{}
	for _, entry := range hook.AllEntries() {
		if entry.Level == level {
			result = append(result, *entry)
		}
	}
	return result
}
