package cmd

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/exporter"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/scene/reader"
	"github.com/achilleasa/lightmass/session"
	"github.com/urfave/cli"
)

// Export a scene into the channel cache without dispatching any tasks. The
// exported channels can optionally be packed into a zip archive for workers
// that do not share the cache directory.
func ExportScene(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}
	sceneFile := ctx.Args().First()

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	sc, err := reader.ReadScene(sceneFile)
	if err != nil {
		return err
	}
	logger.Noticef("scene information:\n%s", sc.Stats())

	store, err := openStore(cfg)
	if err != nil {
		return err
	}

	sess := session.New(cfg)
	exp := exporter.New(sess, store)
	if err = exp.AddScene(sc); err != nil {
		return err
	}

	exportStats, _, err := exp.WriteToChannel()
	if err != nil {
		return err
	}
	for {
		done, err := exp.WriteToMaterialChannel()
		if err != nil {
			return err
		}
		if done {
			break
		}
	}
	logger.Noticef(
		"exported scene %s: %d channels written, %d reused",
		sc.Guid, exportStats.NumWrittenChannels, exportStats.NumReusedChannels,
	)

	archive := ctx.String("archive")
	if archive == "" {
		return nil
	}
	if archive == "auto" {
		archive = strings.TrimSuffix(sceneFile, filepath.Ext(sceneFile)) + ".zip"
	}

	names, err := store.Names()
	if err != nil {
		return err
	}
	return channel.WriteArchive(store, inputChannels(names), archive)
}

// Filter out result channels left over from previous builds.
func inputChannels(names []string) []string {
	out := names[:0]
	for _, name := range names {
		switch filepath.Ext(name) {
		case protocol.SceneExtension, protocol.MaterialExtension,
			protocol.StaticMeshExtension, protocol.LandscapeExtension:
			out = append(out, name)
		}
	}
	return out
}
