package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dargueta/bs2fat/disks"
	"github.com/dargueta/bs2fat/file_systems/common/blockcache"
	"github.com/dargueta/bs2fat/file_systems/fat"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func formatCommand(env *environment) *cli.Command {
	return &cli.Command{
		Name:      "format",
		Usage:     "Create a new image with an empty FAT volume",
		ArgsUsage: "IMAGE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "geometry",
				Aliases:  []string{"g"},
				Usage:    "predefined disk geometry to use (see the geometries command)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "label",
				Usage: "volume label, up to 11 characters",
			},
			&cli.Uint64Flag{
				Name:  "volume-id",
				Usage: "volume serial number (default: derived from the current time)",
			},
		},
		Action: func(ctx *cli.Context) error {
			return formatImage(ctx, env, time.Now())
		},
	}
}

// volumeIDFromTime derives a serial number from the date and time the way DOS
// does.
func volumeIDFromTime(now time.Time) uint32 {
	high := uint32(now.Hour())<<8 | uint32(now.Minute())
	high += uint32(now.Year())
	low := uint32(now.Month())<<8 | uint32(now.Day())
	low += uint32(now.Second())<<8 | uint32(now.Nanosecond()/10_000_000)
	return (high&0xFFFF)<<16 | low&0xFFFF
}

func formatImage(ctx *cli.Context, env *environment, now time.Time) error {
	if ctx.NArg() != 1 {
		return cli.Exit("expected exactly one image file", 2)
	}
	path := ctx.Args().First()

	geometry, err := disks.GetPredefinedDiskGeometry(ctx.String("geometry"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("unknown geometry %q", ctx.String("geometry")), 2)
	}

	options := fat.NewFormatOptions(geometry)
	options.Label = ctx.String("label")
	options.Now = fat.TimespecFromTime(now)
	options.TimezoneOffset = fat.LocalMinutesWest(now) * fat.SecondsPerMinute
	if ctx.IsSet("volume-id") {
		options.VolumeID = uint32(ctx.Uint64("volume-id"))
	} else {
		options.VolumeID = volumeIDFromTime(now)
	}

	file, err := env.fs.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	size := geometry.TotalSizeBytes()
	err = file.Truncate(size)
	if err != nil {
		return err
	}

	cache := blockcache.WrapStream(file, 512, uint(size/512), false)
	err = fat.Format(cache, options)
	if err != nil {
		return err
	}

	env.logger.WithFields(log.Fields{
		"geometry":  geometry.Slug,
		"size":      size,
		"volume_id": fmt.Sprintf("%08X", options.VolumeID),
	}).Info("formatted image")
	return nil
}
