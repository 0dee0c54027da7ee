// Command bs2fat inspects and creates FAT12/16 disk images.
package main

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
)

// environment is everything the commands touch outside the process.
type environment struct {
	fs     afero.Fs
	logger *log.Logger
	// locatePartition finds the byte range of a partition in an image. It's
	// only used when the --partition flag is given.
	locatePartition func(path string, index int) (partitionRange, error)
}

func newApp(env *environment, stdout, stderr io.Writer) *cli.App {
	env.logger.SetOutput(stderr)

	return &cli.App{
		Name:      "bs2fat",
		Usage:     "Inspect and create FAT12/16 disk images",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log debugging information",
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("verbose") {
				env.logger.SetLevel(log.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			infoCommand(env),
			formatCommand(env),
			geometriesCommand(),
		},
	}
}

func main() {
	env := &environment{
		fs:              afero.NewOsFs(),
		logger:          log.New(),
		locatePartition: locateDiskfsPartition,
	}

	err := newApp(env, os.Stdout, os.Stderr).Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}
