package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/achilleasa/lightmass/build"
	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/scene/reader"
	"github.com/achilleasa/lightmass/session"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/swarm/local"
	"github.com/achilleasa/lightmass/swarm/remote"
	"github.com/achilleasa/lightmass/worker/preview"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Build static lighting for a scene.
func BuildLighting(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.Bool("sparse-samples") {
		cfg.Volume.Method = config.SparseSamples
	}

	sc, err := reader.ReadScene(ctx.Args().First())
	if err != nil {
		return err
	}
	logger.Noticef("scene information:\n%s", sc.Stats())

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	var service swarm.Service
	switch cfg.Swarm.Mode {
	case config.SwarmRemote:
		logger.Noticef("dispatching tasks to swarm agent at %s", cfg.Swarm.Address)
		service = remote.New(cfg.Swarm.Address, cfg.Swarm.ConnectTimeout())
	default:
		pool := local.New(preview.New(store), cfg.Swarm.Workers)
		logger.Noticef("dispatching tasks to %d local workers", pool.NumWorkers())
		defer displayWorkerStats(pool)
		service = pool
	}
	defer service.Close()

	sess := session.New(cfg)
	sess.OnProgress(func(phase string, done float32) {
		logger.Infof("%s: %3.0f%%", phase, done*100)
	})

	buildCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	proc := build.New(sess, sc, store, service)
	succeeded, err := proc.Build(buildCtx, ctx.Duration("poll-interval"))

	logger.Noticef("build statistics:\n%s", sess.Stats.Table())
	if len(sess.Messages.Messages()) != 0 {
		logger.Noticef("build messages:\n%s", sess.Messages.Table())
	}

	if err != nil {
		return err
	}
	if !succeeded {
		return cli.NewExitError(fmt.Sprintf("lighting build %s", proc.State()), 1)
	}

	logger.Noticef("lighting build succeeded (%d tasks)", proc.NumCompletedTasks())
	return nil
}

func displayWorkerStats(pool *local.Service) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"Worker", "Task cost", "Time"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	var totalCost int64
	for idx, st := range pool.Stats() {
		totalCost += st.Cost
		table.Append([]string{
			fmt.Sprintf("%d", idx),
			fmt.Sprintf("%d", st.Cost),
			fmt.Sprintf("%d ms", st.Time.Nanoseconds()/1e6),
		})
	}
	table.SetFooter([]string{"", fmt.Sprintf("%d", totalCost), ""})
	table.Render()
	logger.Noticef("worker statistics:\n%s", buf.String())
}
