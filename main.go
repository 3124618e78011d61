package main

import (
	"os"
	"time"

	"github.com/achilleasa/lightmass/cmd"
	"github.com/achilleasa/lightmass/log"
	"github.com/urfave/cli"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "lightmass"
	app.Usage = "build static lighting for scenes using a swarm of lighting workers"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
		cli.StringFlag{
			Name:  "config, c",
			Usage: "load settings from a TOML configuration file",
		},
		cli.StringFlag{
			Name:  "cache-dir",
			Usage: "channel cache directory shared with the lighting workers",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "build",
			Usage: "build static lighting for a scene",
			Description: `
Export the scene into the channel cache, dispatch lighting tasks to the swarm
and import the results. Build statistics and any messages reported by the
workers are displayed once the build completes.`,
			ArgsUsage: "scene.yaml",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "poll-interval",
					Value: 50 * time.Millisecond,
					Usage: "interval between checks for completed tasks",
				},
				cli.BoolFlag{
					Name:  "sparse-samples",
					Usage: "compute volume lighting using sparse samples instead of a volumetric lightmap",
				},
			},
			Action: cmd.BuildLighting,
		},
		{
			Name:  "export",
			Usage: "export a scene into the channel cache",
			Description: `
Write the scene, mesh and material channels for a scene without dispatching
any lighting tasks. Use --archive to pack the exported channels into a zip
file which can be preloaded by a swarm agent.`,
			ArgsUsage: "scene.yaml",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "archive, a",
					Usage: `write exported channels to this zip file; "auto" derives the name from the scene file`,
				},
			},
			Action: cmd.ExportScene,
		},
		{
			Name:      "inspect",
			Usage:     "list the contents of a channel cache or archive",
			ArgsUsage: "cache_dir|archive.zip",
			Action:    cmd.Inspect,
		},
		{
			Name:  "agent",
			Usage: "serve lighting jobs to remote build hosts",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "listen, l",
					Usage: "listen address; defaults to the configured swarm address",
				},
				cli.StringFlag{
					Name:  "archive, a",
					Usage: "preload channels from a zip archive",
				},
			},
			Action: cmd.RunAgent,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.New("lightmass").Critical(err)
		os.Exit(1)
	}
}
