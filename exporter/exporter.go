// Package exporter serializes a scene into the channels consumed by the
// lighting workers: one scene channel plus a channel per unique static mesh,
// landscape and material.
package exporter

import (
	"errors"
	"fmt"
	"time"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/session"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/types"
)

var (
	ErrMaterialConflict = errors.New("exporter: material added twice with different export settings")
	ErrCanceled         = errors.New("exporter: export canceled")
	ErrNoScene          = errors.New("exporter: no scene added")
)

// Counters reported after writing the scene channel.
type ExportStats struct {
	NumLevels    int
	NumLights    int
	NumMeshes    int
	NumMappings  int
	NumMaterials int

	// Auxiliary channels written and reused from earlier exports.
	NumWrittenChannels int
	NumReusedChannels  int

	Duration time.Duration
}

type Exporter struct {
	logger log.Logger
	sess   *session.Session
	store  channel.Store
	scene  *scene.Scene

	directionalLights []*scene.DirectionalLight
	pointLights       []*scene.PointLight
	spotLights        []*scene.SpotLight
	skyLights         []*scene.SkyLight

	bspMeshes          []*scene.Mesh
	staticMeshes       []*scene.Mesh
	landscapes         []*scene.Mesh
	bspMappings        []*scene.Mapping
	staticMeshMappings []*scene.Mapping
	landscapeMappings  []*scene.Mapping
	meshes             map[types.GUID]bool
	mappings           map[types.GUID]bool

	materials        []*materialEntry
	materialsByHash  map[types.SHAHash]*materialEntry
	materialsByOwner map[*material.Material]types.SHAHash

	volumetricLightmapTasks []protocol.VolumetricLightmapTaskRecord

	materialExport materialExport
}

// Create a new exporter that writes to the given store.
func New(sess *session.Session, store channel.Store) *Exporter {
	return &Exporter{
		logger:           log.New("exporter"),
		sess:             sess,
		store:            store,
		meshes:           make(map[types.GUID]bool),
		mappings:         make(map[types.GUID]bool),
		materialsByHash:  make(map[types.SHAHash]*materialEntry),
		materialsByOwner: make(map[*material.Material]types.SHAHash),
	}
}

// Get the flags used for the exported input channels.
func InputChannelFlags(cfg *config.Config) channel.Flags {
	if cfg.Export.CompressChannels {
		return channel.Compressed
	}
	return 0
}

// Register a light. Lights of unknown kinds are ignored.
func (e *Exporter) AddLight(light scene.Light) {
	switch l := light.(type) {
	case *scene.DirectionalLight:
		e.directionalLights = append(e.directionalLights, l)
	case *scene.PointLight:
		e.pointLights = append(e.pointLights, l)
	case *scene.SpotLight:
		e.spotLights = append(e.spotLights, l)
	case *scene.SkyLight:
		e.skyLights = append(e.skyLights, l)
	default:
		e.logger.Debugf("ignoring light of unsupported type %T", light)
	}
}

// Register a mesh and the materials of its elements. Landscape meshes with a
// hole mask use the mesh as the material unwrap context.
func (e *Exporter) AddMesh(mesh *scene.Mesh) error {
	if e.meshes[mesh.Guid] {
		return nil
	}
	if err := mesh.Validate(); err != nil {
		return err
	}

	for i := range mesh.Elements {
		mat := mesh.Elements[i].Material
		if mat == nil {
			return fmt.Errorf("exporter: mesh %s element %d has no material", mesh.Guid, i)
		}
		if err := e.AddMaterial(mat, unwrapMesh(mesh)); err != nil {
			return err
		}
	}

	switch mesh.Kind {
	case scene.BSPKind:
		e.bspMeshes = append(e.bspMeshes, mesh)
	case scene.StaticMeshKind:
		e.staticMeshes = append(e.staticMeshes, mesh)
	case scene.LandscapeKind:
		e.landscapes = append(e.landscapes, mesh)
	}
	e.meshes[mesh.Guid] = true
	return nil
}

// Register a mapping. Its mesh is registered too.
func (e *Exporter) AddMapping(mapping *scene.Mapping) error {
	if e.mappings[mapping.Guid] {
		return nil
	}
	if err := e.AddMesh(mapping.Mesh); err != nil {
		return err
	}

	switch mapping.Kind() {
	case scene.BSPKind:
		e.bspMappings = append(e.bspMappings, mapping)
	case scene.StaticMeshKind:
		e.staticMeshMappings = append(e.staticMeshMappings, mapping)
	case scene.LandscapeKind:
		e.landscapeMappings = append(e.landscapeMappings, mapping)
	}
	e.mappings[mapping.Guid] = true
	return nil
}

// Register every entity of a scene. The scene also supplies the global
// settings and volumes written to the scene channel. Visibility buckets are
// allocated when precomputed visibility is enabled.
func (e *Exporter) AddScene(sc *scene.Scene) error {
	e.scene = sc
	cfg := e.sess.Config

	if cfg.Visibility.Enabled && len(sc.VisibilityBucketGuids) == 0 {
		sc.AllocateVisibilityBuckets(cfg.Visibility.NumBuckets)
	}
	e.volumetricLightmapTasks = VolumetricLightmapTasks(sc, cfg.Volume)

	for _, l := range sc.Lights {
		e.AddLight(l)
	}
	for _, m := range sc.Meshes {
		if err := e.AddMesh(m); err != nil {
			return err
		}
	}
	for _, mp := range sc.Mappings {
		if err := e.AddMapping(mp); err != nil {
			return err
		}
	}
	return nil
}

// Get the scene registered with AddScene.
func (e *Exporter) Scene() *scene.Scene {
	return e.scene
}

// Get the volumetric lightmap task descriptors written to the scene channel.
func (e *Exporter) VolumetricLightmapTasks() []protocol.VolumetricLightmapTaskRecord {
	return e.volumetricLightmapTasks
}

// Get the registered mappings grouped by kind.
func (e *Exporter) Mappings() (bsp, staticMesh, landscape []*scene.Mapping) {
	return e.bspMappings, e.staticMeshMappings, e.landscapeMappings
}

// Get all registered lights.
func (e *Exporter) Lights() []scene.Light {
	out := make([]scene.Light, 0, len(e.directionalLights)+len(e.pointLights)+len(e.spotLights)+len(e.skyLights))
	for _, l := range e.directionalLights {
		out = append(out, l)
	}
	for _, l := range e.pointLights {
		out = append(out, l)
	}
	for _, l := range e.spotLights {
		out = append(out, l)
	}
	for _, l := range e.skyLights {
		out = append(out, l)
	}
	return out
}

func (e *Exporter) sceneSettings() protocol.SceneSettings {
	cfg := e.sess.Config
	s := e.scene.Settings
	out := protocol.SceneSettings{
		NumIndirectBounces:          int32(s.NumIndirectBounces),
		IndirectLightingQuality:     s.IndirectLightingQuality,
		IndirectLightingSmoothness:  s.IndirectLightingSmoothness,
		EnvironmentColor:            s.EnvironmentColor,
		EnvironmentIntensity:        s.EnvironmentIntensity,
		VolumeLightingMethod:        protocol.VolumeLightingSparseSamples,
		UseAmbientOcclusion:         s.UseAmbientOcclusion,
		PrecomputedVisibility:       cfg.Visibility.Enabled,
		VisibilityCellSize:          cfg.Visibility.CellSize,
		PlayAreaHeight:              cfg.Visibility.PlayAreaHeight,
		VolumetricLightmapBrickSize: int32(cfg.Volume.BrickSize),
		VolumeDistanceField:         cfg.Volume.DistanceField,
	}
	if cfg.Volume.Method == config.VolumetricLightmap {
		out.VolumeLightingMethod = protocol.VolumeLightingVolumetricLightmap
	}
	if e.sess.Debug != nil {
		out.PadMappings = e.sess.Debug.PadMappings
		out.UseErrorColoring = e.sess.Debug.ErrorColors
	}
	return out
}

// Write the scene channel and the per static mesh and landscape channels.
// Returns the export counters and the GUID of the debug mapping if it is part
// of the export.
func (e *Exporter) WriteToChannel() (ExportStats, types.GUID, error) {
	var exportStats ExportStats
	if e.scene == nil {
		return exportStats, types.GUID{}, ErrNoScene
	}

	start := time.Now()
	e.logger.Noticef("exporting scene %s", e.scene.Guid)

	sc := e.scene
	f := &protocol.SceneFile{
		Header: protocol.SceneFileHeader{
			Guid:     sc.Guid,
			Settings: e.sceneSettings(),
		},
		ImportanceVolumes:              sc.ImportanceVolumes,
		CharacterIndirectDetailVolumes: sc.CharacterIndirectDetailVolumes,
		Portals:                        sc.Portals,
		VisibilityBucketGuids:          sc.VisibilityBucketGuids,
		VisibilityVolumes:              sc.VisibilityVolumes,
		VolumetricLightmapTasks:        e.volumetricLightmapTasks,
	}

	progress := newProgressTracker(e.sess, "export scene", e.numExportedEntities(), e.sess.Config.Export.ProgressUpdates)

	for _, l := range sc.Levels {
		var flags uint32
		if l.Visible {
			flags |= protocol.LevelVisible
		}
		if l.Persistent {
			flags |= protocol.LevelPersistent
		}
		f.Levels = append(f.Levels, protocol.LevelRecord{Guid: l.Guid, Flags: flags})
		progress.Step()
	}

	for _, l := range e.directionalLights {
		f.DirectionalLights = append(f.DirectionalLights, directionalLight(l))
		progress.Step()
	}
	for _, l := range e.pointLights {
		f.PointLights = append(f.PointLights, pointLight(l))
		progress.Step()
	}
	for _, l := range e.spotLights {
		f.SpotLights = append(f.SpotLights, spotLight(l))
		progress.Step()
	}
	for _, l := range e.skyLights {
		f.SkyLights = append(f.SkyLights, skyLight(l))
		progress.Step()
	}

	for _, m := range e.bspMeshes {
		f.BSPMeshes = append(f.BSPMeshes, protocol.BSPMesh{
			Mesh:     meshData(m, e.materialHash),
			BSP:      protocol.BSPRecord{LocalToWorld: m.LocalToWorld, ModelGuid: m.BSP.ModelGuid},
			Vertices: vertexRecords(m.BSP.Vertices),
			Indices:  m.BSP.Indices,
		})
		progress.Step()
	}

	for _, m := range e.staticMeshes {
		written, err := e.writeStaticMesh(m.StaticMesh)
		if err != nil {
			return exportStats, types.GUID{}, err
		}
		exportStats.countChannel(written)
		f.StaticMeshInstances = append(f.StaticMeshInstances, protocol.StaticMeshInstance{
			Mesh: meshData(m, e.materialHash),
			Instance: protocol.StaticMeshInstanceRecord{
				StaticMeshGuid: m.StaticMesh.Guid,
				LocalToWorld:   m.LocalToWorld,
				LODIndex:       int32(m.LODIndex),
			},
		})
		progress.Step()
	}

	for _, m := range e.landscapes {
		written, err := e.writeLandscape(m.Landscape)
		if err != nil {
			return exportStats, types.GUID{}, err
		}
		exportStats.countChannel(written)
		f.LandscapeInstances = append(f.LandscapeInstances, protocol.LandscapeInstance{
			Mesh: meshData(m, e.materialHash),
			Landscape: protocol.LandscapeRecord{
				LandscapeGuid:       m.Landscape.Guid,
				LocalToWorld:        m.LocalToWorld,
				ComponentSizeQuads:  int32(m.Landscape.ComponentSizeQuads),
				SubsectionSizeQuads: int32(m.Landscape.SubsectionSizeQuads),
				NumSubsections:      int32(m.Landscape.NumSubsections),
				ExpandQuads:         int32(m.Landscape.ExpandQuads),
			},
		})
		progress.Step()
	}

	debugGuid := e.sess.DebugMappingGuid()
	debugFound := false
	mappingGroups := []struct {
		mappings []*scene.Mapping
		out      *[]protocol.TextureMappingRecord
	}{
		{e.bspMappings, &f.BSPMappings},
		{e.staticMeshMappings, &f.StaticMeshTextureMappings},
		{e.landscapeMappings, &f.LandscapeTextureMappings},
	}
	for _, group := range mappingGroups {
		for _, m := range group.mappings {
			if e.sess.Canceled() {
				e.logger.Warning("scene export canceled")
				return exportStats, types.GUID{}, ErrCanceled
			}
			*group.out = append(*group.out, textureMappingRecord(m))
			debugFound = debugFound || (debugGuid.IsValid() && m.Guid == debugGuid)
			progress.Step()
		}
	}

	for _, entry := range e.materials {
		f.MaterialHashes = append(f.MaterialHashes, entry.hash)
	}

	if err := e.writeChannel(protocol.SceneChannel(sc.Guid), func(ch *channel.Channel) error {
		return protocol.WriteScene(ch, f)
	}); err != nil {
		return exportStats, types.GUID{}, err
	}
	progress.Done()

	if debugGuid.IsValid() && !debugFound {
		e.sess.Messages.Addf(stats.Warning, "debug mapping %s is not part of the export", debugGuid)
		debugGuid = types.GUID{}
	}

	exportStats.NumLevels = len(f.Levels)
	exportStats.NumLights = len(f.DirectionalLights) + len(f.PointLights) + len(f.SpotLights) + len(f.SkyLights)
	exportStats.NumMeshes = len(e.bspMeshes) + len(e.staticMeshes) + len(e.landscapes)
	exportStats.NumMappings = f.NumMappings()
	exportStats.NumMaterials = len(e.materials)
	exportStats.Duration = time.Since(start)

	st := &e.sess.Stats
	st.SceneExportTime = exportStats.Duration
	st.NumLights = exportStats.NumLights
	st.NumMeshes = exportStats.NumMeshes
	st.NumMappings = exportStats.NumMappings
	st.NumMaterials = exportStats.NumMaterials

	e.logger.Noticef("exported scene in %d ms", exportStats.Duration.Nanoseconds()/1e6)
	return exportStats, debugGuid, nil
}

func (s *ExportStats) countChannel(written bool) {
	if written {
		s.NumWrittenChannels++
	} else {
		s.NumReusedChannels++
	}
}

func (e *Exporter) numExportedEntities() int {
	return len(e.scene.Levels) +
		len(e.directionalLights) + len(e.pointLights) + len(e.spotLights) + len(e.skyLights) +
		len(e.bspMeshes) + len(e.staticMeshes) + len(e.landscapes) +
		len(e.bspMappings) + len(e.staticMeshMappings) + len(e.landscapeMappings)
}

// Write the static mesh channel unless an identical one already exists.
func (e *Exporter) writeStaticMesh(geom *scene.StaticMeshGeometry) (bool, error) {
	name := protocol.StaticMeshChannel(geom.Guid)
	if e.store.Exists(name) {
		return false, nil
	}
	return true, e.writeChannel(name, func(ch *channel.Channel) error {
		return protocol.WriteStaticMesh(ch, staticMeshFile(geom))
	})
}

// Write the landscape channel unless an identical one already exists.
func (e *Exporter) writeLandscape(geom *scene.LandscapeGeometry) (bool, error) {
	name := protocol.LandscapeChannel(geom.Guid)
	if e.store.Exists(name) {
		return false, nil
	}
	return true, e.writeChannel(name, func(ch *channel.Channel) error {
		return protocol.WriteLandscape(ch, landscapeFile(geom))
	})
}

func (e *Exporter) writeChannel(name string, writeFn func(*channel.Channel) error) error {
	ch, err := e.store.Open(name, channel.Write|InputChannelFlags(e.sess.Config))
	if err != nil {
		return fmt.Errorf("exporter: could not open channel %s: %w", name, err)
	}
	if err = writeFn(ch); err != nil {
		ch.Abort()
		return fmt.Errorf("exporter: could not write channel %s: %w", name, err)
	}
	return ch.Close()
}

// Throttles progress reports to a fixed number of updates regardless of the
// amount of work.
type progressTracker struct {
	sess  *session.Session
	phase string
	total int
	every int
	done  int
}

func newProgressTracker(sess *session.Session, phase string, total, updates int) *progressTracker {
	every := 1
	if updates > 0 && total > updates {
		every = total / updates
	}
	return &progressTracker{sess: sess, phase: phase, total: total, every: every}
}

func (p *progressTracker) Step() {
	p.done++
	if p.done%p.every == 0 && p.done < p.total {
		p.sess.ReportProgress(p.phase, float32(p.done)/float32(p.total))
	}
}

func (p *progressTracker) Done() {
	p.sess.ReportProgress(p.phase, 1)
}
