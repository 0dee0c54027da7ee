package main

import (
	"fmt"

	"github.com/dargueta/bs2fat/disks"
	"github.com/gocarina/gocsv"
	"github.com/urfave/cli/v2"
)

func geometriesCommand() *cli.Command {
	return &cli.Command{
		Name:  "geometries",
		Usage: "List the predefined disk geometries",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "csv",
				Usage: "print every field as CSV",
			},
		},
		Action: func(ctx *cli.Context) error {
			geometries := disks.ListPredefinedDiskGeometries()
			if ctx.Bool("csv") {
				return gocsv.Marshal(&geometries, ctx.App.Writer)
			}

			for _, geometry := range geometries {
				_, err := fmt.Fprintf(
					ctx.App.Writer,
					"%-8s %8d bytes  %s\n",
					geometry.Slug,
					geometry.TotalSizeBytes(),
					geometry.Name,
				)
				if err != nil {
					return err
				}
			}
			return nil
		},
	}
}
