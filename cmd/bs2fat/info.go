package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dargueta/bs2fat/errors"
	"github.com/dargueta/bs2fat/file_systems/common/blockcache"
	"github.com/dargueta/bs2fat/file_systems/fat"
	"github.com/gocarina/gocsv"
	"github.com/hashicorp/go-multierror"
	"github.com/urfave/cli/v2"
)

// volumeInfo is what the info command prints about a volume.
type volumeInfo struct {
	Label             string `csv:"label"`
	VolumeID          string `csv:"volume_id"`
	FATBits           uint8  `csv:"fat_bits"`
	SectorSize        uint   `csv:"sector_size"`
	SectorsPerCluster uint16 `csv:"sectors_per_cluster"`
	FATs              uint8  `csv:"fats"`
	FATStart          uint16 `csv:"fat_start"`
	FATLength         uint16 `csv:"fat_length"`
	DirStart          uint   `csv:"dir_start"`
	DirEntries        uint16 `csv:"dir_entries"`
	DataStart         uint   `csv:"data_start"`
	TotalSectors      uint32 `csv:"total_sectors"`
	Clusters          uint32 `csv:"clusters"`
	FreeClusters      uint64 `csv:"free_clusters"`
	Dirty             bool   `csv:"dirty"`
	Earliest          string `csv:"earliest_timestamp"`
	Latest            string `csv:"latest_timestamp"`
}

func infoCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Print the geometry of a FAT volume",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "tz-offset",
				Usage: "local time of the volume in minutes east of UTC (default: host timezone)",
			},
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "print the geometry as CSV",
			},
			&cli.IntFlag{
				Name:  "partition",
				Usage: "read the volume from partition `N` of a partitioned image, counting from 1",
			},
		},
		Action: func(ctx *cli.Context) error {
			return showInfo(ctx, env)
		},
	}
}

func showInfo(ctx *cli.Context, env *environment) error {
	if ctx.NArg() != 1 {
		return cli.Exit("expected exactly one image file", 2)
	}
	path := ctx.Args().First()

	file, stream, size, err := openImage(env, path, ctx.Int("partition"), os.O_RDONLY)
	if err != nil {
		return err
	}
	defer file.Close()

	options := fat.DefaultMountOptions()
	options.Logger = env.logger
	if ctx.IsSet("tz-offset") {
		options.TimezoneSet = true
		options.TimeOffset = int64(ctx.Int("tz-offset"))
	}

	cache := blockcache.WrapStream(stream, 512, uint(size/512), false)
	vol, err := fat.Mount(cache, options, false)
	if err != nil {
		if errors.IsFormatInvalid(err) {
			return cli.Exit(fmt.Sprintf("%s doesn't contain a FAT12/16 volume: %s", path, err), 1)
		}
		return err
	}

	info, err := describeVolume(vol)
	if err != nil {
		return unmountAfterFailure(vol, err)
	}

	err = vol.Unmount()
	if err != nil {
		return err
	}

	if ctx.Bool("csv") {
		return gocsv.Marshal([]*volumeInfo{&info}, ctx.App.Writer)
	}
	return printVolumeInfo(ctx.App.Writer, &info)
}

type unmounter interface {
	Unmount() error
}

// unmountAfterFailure unmounts `vol` after `cause` stopped a command early. An
// unmount failure is returned along with `cause`.
func unmountAfterFailure(vol unmounter, cause error) error {
	if err := vol.Unmount(); err != nil {
		return multierror.Append(cause, err)
	}
	return cause
}

func describeVolume(vol *fat.Volume) (volumeInfo, error) {
	label, err := vol.Label()
	if err != nil {
		return volumeInfo{}, err
	}

	stat, err := vol.FSStat()
	if err != nil {
		return volumeInfo{}, err
	}

	geo := vol.Geometry()
	earliest, latest := vol.TimeRange()
	return volumeInfo{
		Label:             label,
		VolumeID:          fmt.Sprintf("%04X-%04X", geo.VolumeID>>16, geo.VolumeID&0xFFFF),
		FATBits:           geo.FATBits,
		SectorSize:        geo.BlockSize,
		SectorsPerCluster: geo.SectorsPerCluster,
		FATs:              geo.FATs,
		FATStart:          geo.FATStart,
		FATLength:         geo.FATLength,
		DirStart:          geo.DirStart,
		DirEntries:        geo.DirEntries,
		DataStart:         geo.DataStart,
		TotalSectors:      geo.TotalSectors,
		Clusters:          geo.TotalClusters(),
		FreeClusters:      stat.BlocksFree,
		Dirty:             geo.Dirty,
		Earliest:          earliest.Time().Format("2006-01-02T15:04:05Z"),
		Latest:            latest.Time().Format("2006-01-02T15:04:05Z"),
	}, nil
}

func printVolumeInfo(out io.Writer, info *volumeInfo) error {
	label := info.Label
	if label == "" {
		label = "(none)"
	}

	_, err := fmt.Fprintf(
		out,
		"Label:               %s\n"+
			"Volume ID:           %s\n"+
			"Type:                FAT%d\n"+
			"Sector size:         %d\n"+
			"Sectors per cluster: %d\n"+
			"FATs:                %d x %d sectors at sector %d\n"+
			"Root directory:      %d entries at sector %d\n"+
			"Data region:         sector %d\n"+
			"Total sectors:       %d\n"+
			"Clusters:            %d (%d free)\n"+
			"Timestamps:          %s to %s\n",
		label,
		info.VolumeID,
		info.FATBits,
		info.SectorSize,
		info.SectorsPerCluster,
		info.FATs,
		info.FATLength,
		info.FATStart,
		info.DirEntries,
		info.DirStart,
		info.DataStart,
		info.TotalSectors,
		info.Clusters,
		info.FreeClusters,
		info.Earliest,
		info.Latest,
	)
	if err != nil {
		return err
	}

	if info.Dirty {
		_, err = fmt.Fprintln(out, "Volume is dirty; run fsck.")
	}
	return err
}
