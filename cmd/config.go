package cmd

import (
	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/config"
	"github.com/urfave/cli"
)

// Load the configuration named by the --config flag or fall back to the
// defaults. A --cache-dir flag overrides the configured cache directory.
func loadConfig(ctx *cli.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)

	if path := ctx.GlobalString("config"); path != "" {
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	if dir := ctx.GlobalString("cache-dir"); dir != "" {
		cfg.Swarm.CacheDir = dir
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStore(cfg *config.Config) (*channel.DirStore, error) {
	return channel.NewDirStore(cfg.Swarm.CacheDir)
}
