package build

import (
	"errors"
	"fmt"
	"io"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/lightmap"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/types"
	"github.com/achilleasa/lightmass/visibility"
	"github.com/x448/float16"
)

// Open a result channel and decode it with readFn. Failures are logged and
// flip the build failure flag.
func (p *Processor) readResult(name string, readFn func(io.Reader) error) bool {
	ch, err := p.store.Open(name, channel.Read)
	if err != nil {
		p.importFailed("could not open result channel %s: %v", name, err)
		return false
	}
	defer ch.Close()

	if err = readFn(ch); err != nil {
		p.importFailed("could not import %s: %v", name, err)
		return false
	}
	return true
}

func (p *Processor) importFailed(format string, v ...interface{}) {
	p.failed.Store(true)
	p.sess.Messages.Addf(stats.Error, format, v...)
}

func (p *Processor) persistentBuildData() *scene.BuildData {
	level, err := p.scene.PersistentLevel()
	if err != nil {
		p.importFailed("could not store build data: %v", err)
		return nil
	}
	if level.BuildData == nil {
		level.BuildData = scene.NewBuildData()
	}
	return level.BuildData
}

// Import the sparse volume lighting samples into each visible level.
func (p *Processor) ImportVolumeSamples() bool {
	var numSamples int
	ok := p.readResult(protocol.VolumeSamplesChannel(), func(r io.Reader) error {
		f, err := protocol.ReadVolumeSamples(r)
		if err != nil {
			return err
		}
		// The volume header is not used.
		for _, entry := range f.Levels {
			level := p.scene.Level(entry.LevelGuid)
			if level == nil || !level.Visible {
				continue
			}
			if level.BuildData == nil {
				level.BuildData = scene.NewBuildData()
			}
			set := &level.BuildData.VolumeSamples
			for i := range entry.Samples {
				set.Add(lightmap.ConvertVolumeSample(&entry.Samples[i]))
			}
			set.Finalize()
			numSamples += len(entry.Samples)
		}
		return nil
	})
	p.logger.Infof("imported %d volume lighting samples", numSamples)
	return ok
}

// Import the bricks of every completed volumetric lightmap task.
func (p *Processor) ImportVolumetricLightmap() bool {
	guids := p.completedVolumetricLightmap.ExtractAll()
	if len(guids) == 0 {
		return true
	}
	buildData := p.persistentBuildData()
	if buildData == nil {
		return false
	}

	brickSize := p.sess.Config.Volume.BrickSize
	if buildData.VolumetricLightmap == nil || buildData.VolumetricLightmap.BrickSize != brickSize {
		buildData.VolumetricLightmap = &lightmap.VolumetricLightmap{BrickSize: brickSize}
	}

	ok := true
	for _, guid := range guids {
		name := protocol.VolumetricLightmapChannel(guid)
		if !p.store.Exists(name) {
			// Failed tasks publish nothing; the failure is already recorded.
			continue
		}
		ok = p.readResult(name, func(r io.Reader) error {
			bricks, err := protocol.ReadVolumetricLightmapBricks(r, brickSize)
			if err != nil {
				return err
			}
			buildData.VolumetricLightmap.AddBricks(bricks)
			return nil
		}) && ok
	}
	buildData.VolumetricLightmap.Finalize()
	p.logger.Infof("imported %d volumetric lightmap bricks", len(buildData.VolumetricLightmap.Bricks))
	return ok
}

// Read the cells of every completed visibility bucket. Cells are kept in
// bucket order for the spreading pass.
func (p *Processor) ImportPrecomputedVisibility() bool {
	ok := true
	for _, guid := range p.completedVisibility.ExtractAll() {
		index, exists := p.bucketIndex[guid]
		if !exists {
			continue
		}
		name := protocol.VisibilityChannel(guid)
		if !p.store.Exists(name) {
			continue
		}
		ok = p.readResult(name, func(r io.Reader) error {
			cells, err := visibility.ReadBucket(r)
			if err != nil {
				return err
			}
			p.visibilityBuckets[index] = append(p.visibilityBuckets[index], cells...)
			return nil
		}) && ok
	}
	return ok
}

// Spread and compress the imported visibility cells into the persistent
// level. Previous visibility data is invalidated when no cells were imported.
func (p *Processor) ApplyPrecomputedVisibility() bool {
	buildData := p.persistentBuildData()
	if buildData == nil {
		return false
	}

	handler, err := visibility.Process(p.visibilityBuckets, visibility.OptionsFromConfig(p.sess.Config.Visibility))
	if err != nil {
		p.importFailed("could not process precomputed visibility: %v", err)
		return false
	}
	if handler == nil {
		buildData.Visibility.Invalidate()
		return true
	}
	buildData.Visibility.Update(handler)
	p.logger.Infof("stored %d visibility cells in %d chunks", handler.NumCells(), handler.NumChunks())
	return true
}

// Spawn an area light for each imported record in the level it came from.
func (p *Processor) ImportMeshAreaLightData() bool {
	return p.readResult(protocol.MeshAreaLightChannel(), func(r io.Reader) error {
		records, err := protocol.ReadMeshAreaLights(r)
		if err != nil {
			return err
		}
		for _, rec := range records {
			level := p.scene.Level(rec.LevelGuid)
			if level == nil {
				p.sess.Messages.Addf(stats.Warning, "mesh area light references unknown level %s", rec.LevelGuid)
				continue
			}
			if level.BuildData == nil {
				level.BuildData = scene.NewBuildData()
			}
			level.BuildData.MeshAreaLights = append(level.BuildData.MeshAreaLights, &scene.MeshAreaLight{
				Position:        rec.Position,
				Direction:       rec.Direction,
				Radius:          rec.Radius,
				ConeAngle:       rec.ConeAngle,
				Color:           rec.Color,
				Brightness:      rec.Brightness,
				FalloffExponent: rec.FalloffExponent,
			})
		}
		p.logger.Infof("imported %d mesh area lights", len(records))
		return nil
	})
}

func (p *Processor) ImportVolumeDistanceFieldData() bool {
	buildData := p.persistentBuildData()
	if buildData == nil {
		return false
	}
	return p.readResult(protocol.VolumeDistanceFieldChannel(), func(r io.Reader) error {
		f, err := protocol.ReadVolumeDistanceField(r)
		if err != nil {
			return err
		}
		buildData.DistanceField = &scene.VolumeDistanceField{
			SizeX:       int(f.Header.SizeX),
			SizeY:       int(f.Header.SizeY),
			SizeZ:       int(f.Header.SizeZ),
			Bounds:      f.Header.Bounds,
			MaxDistance: f.Header.MaxDistance,
			Distances:   f.Distances,
		}
		return nil
	})
}

func (p *Processor) ImportStaticShadowDepthMap(light scene.Light) bool {
	base := light.Base()
	name := protocol.StaticShadowDepthMapChannel(base.Guid)
	if !p.store.Exists(name) {
		return true
	}
	return p.readResult(name, func(r io.Reader) error {
		f, err := protocol.ReadShadowDepthMap(r)
		if err != nil {
			return err
		}
		depths := make([]float32, len(f.Depths))
		for i, d := range f.Depths {
			depths[i] = float16.Frombits(d).Float32()
		}
		base.ShadowDepthMap = &scene.ShadowDepthMap{
			WorldToLight: f.Header.WorldToLight,
			SizeX:        int(f.Header.SizeX),
			SizeY:        int(f.Header.SizeY),
			Depths:       depths,
		}
		return nil
	})
}

// Imported results for a mapping that have not necessarily been applied.
type importedMapping struct {
	result    *lightmap.MappingResult
	processed bool
}

// Decode a single mapping result and validate it against the scene.
func (p *Processor) ImportTextureMapping(dec *channel.Decoder) (*lightmap.MappingResult, error) {
	res, err := lightmap.ReadMappingResult(dec)
	if err != nil {
		return nil, err
	}
	mapping := p.scene.Mapping(res.Guid)
	if mapping == nil {
		return res, fmt.Errorf("%w: %s", ErrUnknownMapping, res.Guid)
	}
	if lm := res.LightMap; lm != nil {
		if lm.SizeX != mapping.SizeX || lm.SizeY != mapping.SizeY {
			return nil, fmt.Errorf(
				"%w: mapping %s is %dx%d; lightmap is %dx%d",
				ErrMappingSizeMismatch, res.Guid, mapping.SizeX, mapping.SizeY, lm.SizeX, lm.SizeY,
			)
		}
	}
	return res, nil
}

// Import the results channel of a completed mapping. Workers may merge the
// results of several mappings into one channel, so a missing channel means
// its contents were already imported and every mapping found in a channel is
// imported at most once.
func (p *Processor) ImportMapping(guid types.GUID, processImmediately bool) bool {
	ch, err := p.store.Open(protocol.TextureMappingChannel(guid), channel.Read)
	if errors.Is(err, channel.ErrChannelNotFound) {
		p.logger.Debugf("no result channel for mapping %s; assuming it was merged", guid)
		return true
	}
	if err != nil {
		p.importFailed("could not open results for mapping %s: %v", guid, err)
		return false
	}
	defer ch.Close()

	dec := channel.NewDecoder(ch)
	count := lightmap.ReadMappingCount(dec)
	for i := 0; i < count; i++ {
		res, err := p.ImportTextureMapping(dec)
		if errors.Is(err, ErrUnknownMapping) {
			p.sess.Messages.Addf(stats.Warning, "ignoring %v", err)
			continue
		}
		if err != nil {
			p.importFailed("could not import results for mapping %s: %v", guid, err)
			return false
		}
		if _, exists := p.importedMappings[res.Guid]; exists {
			continue
		}
		p.importedMappings[res.Guid] = &importedMapping{result: res}
		if lm := res.LightMap; lm != nil {
			p.sess.Stats.AddMappingTexels(len(lm.Texels), lm.UnmappedTexels())
		}
		p.sess.Stats.WorkerExecutionTime += res.ExecutionTime
		if res.Guid == p.debugMappingGuid {
			p.logger.Noticef("imported debug mapping %s", res.Guid)
		}
		p.importOrder = append(p.importOrder, res.Guid)
		if processImmediately {
			p.ProcessMapping(res.Guid)
		}
	}
	if err := dec.Err(); err != nil {
		p.importFailed("could not read results for mapping %s: %v", guid, err)
		return false
	}
	return true
}

// Apply imported results to a mapping. Results are applied at most once;
// later calls return false.
func (p *Processor) ProcessMapping(guid types.GUID) bool {
	im := p.importedMappings[guid]
	if im == nil || im.processed {
		return false
	}
	im.processed = true

	mapping := p.scene.Mapping(guid)
	if mapping == nil || !mapping.IsValid() {
		p.logger.Debugf("discarding results for invalid mapping %s", guid)
		return false
	}
	mapping.Apply(im.result.LightMap, im.result.ShadowMaps)
	p.sess.Stats.NumAppliedMappings++
	return true
}

// Apply every imported but unprocessed mapping. Render resources are flushed
// and detached while the mappings change.
func (p *Processor) ProcessAvailableMappings() int {
	var pending []types.GUID
	for _, guid := range p.importOrder {
		if !p.importedMappings[guid].processed {
			pending = append(pending, guid)
		}
	}
	if len(pending) == 0 {
		return 0
	}

	if rs := p.scene.RenderState; rs != nil {
		rs.Flush()
		defer rs.Detach()()
	}

	var applied int
	for _, guid := range pending {
		if p.ProcessMapping(guid) {
			applied++
		}
	}
	p.logger.Infof("applied results to %d mappings", applied)
	return applied
}
