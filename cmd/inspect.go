package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// List the contents of a channel cache directory or a channel archive and
// display the headers of any scene channels it contains.
func Inspect(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing channel directory or archive argument")
	}

	var store channel.Store
	src := ctx.Args().First()
	if strings.HasSuffix(src, ".zip") {
		mem := channel.NewMemStore()
		if _, err := channel.ReadArchive(src, mem); err != nil {
			return err
		}
		store = mem
	} else {
		dir, err := channel.NewDirStore(src)
		if err != nil {
			return err
		}
		store = dir
	}

	names, err := store.Names()
	if err != nil {
		return err
	}
	sort.Strings(names)

	counts := make(map[string]int)
	for _, name := range names {
		counts[filepath.Ext(name)]++
	}
	exts := make([]string, 0, len(counts))
	for ext := range counts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Extension", "Channels"})
	for _, ext := range exts {
		table.Append([]string{ext, fmt.Sprint(counts[ext])})
	}
	table.SetFooter([]string{"Total", fmt.Sprint(len(names))})
	table.Render()
	logger.Noticef("channels in %s:\n%s", src, buf.String())

	for _, name := range names {
		if filepath.Ext(name) != protocol.SceneExtension {
			continue
		}
		f, err := readSceneChannel(store, name)
		if err != nil {
			logger.Warningf("could not decode %s: %v", name, err)
			continue
		}
		logger.Noticef("scene %s:\n%s", f.Header.Guid, sceneHeaderTable(&f.Header))
	}
	return nil
}

func readSceneChannel(store channel.Store, name string) (*protocol.SceneFile, error) {
	ch, err := store.Open(name, channel.Read)
	if err != nil {
		return nil, err
	}
	defer ch.Close()
	return protocol.ReadScene(ch)
}

func sceneHeaderTable(h *protocol.SceneFileHeader) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Records", "Count"})
	for _, row := range []struct {
		name  string
		count int32
	}{
		{"Levels", h.NumLevels},
		{"Importance volumes", h.NumImportanceVolumes},
		{"Visibility buckets", h.NumVisibilityBuckets},
		{"Volumetric lightmap tasks", h.NumVolumetricLightmapTasks},
		{"Directional lights", h.NumDirectionalLights},
		{"Point lights", h.NumPointLights},
		{"Spot lights", h.NumSpotLights},
		{"Sky lights", h.NumSkyLights},
		{"BSP meshes", h.NumBSPMeshes},
		{"Static mesh instances", h.NumStaticMeshInstances},
		{"Landscape instances", h.NumLandscapeInstances},
		{"BSP mappings", h.NumBSPMappings},
		{"Static mesh mappings", h.NumStaticMeshTextureMappings},
		{"Landscape mappings", h.NumLandscapeTextureMappings},
		{"Materials", h.NumMaterials},
	} {
		table.Append([]string{row.name, fmt.Sprint(row.count)})
	}
	table.Render()
	return buf.String()
}
