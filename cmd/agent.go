package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/swarm/local"
	"github.com/achilleasa/lightmass/swarm/remote"
	"github.com/achilleasa/lightmass/worker/preview"
	"github.com/urfave/cli"
)

// Serve lighting jobs to remote build hosts. Tasks run on a local worker
// pool that reads and writes channels in the configured cache directory.
func RunAgent(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	if archive := ctx.String("archive"); archive != "" {
		names, err := channel.ReadArchive(archive, store)
		if err != nil {
			return err
		}
		logger.Noticef("preloaded %d channels from %s", len(names), archive)
	}

	pool := local.New(preview.New(store), cfg.Swarm.Workers)
	defer pool.Close()

	addr := ctx.String("listen")
	if addr == "" {
		addr = cfg.Swarm.Address
	}
	mux := http.NewServeMux()
	mux.Handle(remote.JobPath, remote.NewAgent(pool))
	srv := &http.Server{Addr: addr, Handler: mux}

	sigCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Noticef("swarm agent listening on %s with %d workers", addr, pool.NumWorkers())
	if err = srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Notice("swarm agent stopped")
	return nil
}
