// Package preview implements a lighting worker that produces flat,
// unshadowed results for every task kind. It performs no ray tracing; it
// exists so the build pipeline can run end to end without the real lighting
// workers.
package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
)

var ErrUnknownTask = errors.New("preview: task does not match any scene entity")

type taskKind uint8

const (
	mappingTask taskKind = iota
	visibilityTask
	volumetricLightmapTask
	volumeSamplesTask
	meshAreaLightTask
	distanceFieldTask
	shadowDepthMapTask
)

// The decoded scene channel plus lookup tables for resolving task GUIDs.
type sceneData struct {
	file *protocol.SceneFile

	meshes   map[types.GUID]*protocol.MeshData
	lights   map[types.GUID]*protocol.LightRecord
	radii    map[types.GUID]float32
	mappings map[types.GUID]protocol.TextureMappingRecord

	bucketIndex map[types.GUID]int
	vlmTasks    map[types.GUID]protocol.VolumetricLightmapTaskRecord
}

func newSceneData(f *protocol.SceneFile) *sceneData {
	sd := &sceneData{
		file:        f,
		meshes:      make(map[types.GUID]*protocol.MeshData),
		lights:      make(map[types.GUID]*protocol.LightRecord),
		radii:       make(map[types.GUID]float32),
		mappings:    make(map[types.GUID]protocol.TextureMappingRecord),
		bucketIndex: make(map[types.GUID]int),
		vlmTasks:    make(map[types.GUID]protocol.VolumetricLightmapTaskRecord),
	}
	for i := range f.BSPMeshes {
		sd.meshes[f.BSPMeshes[i].Mesh.Record.Guid] = &f.BSPMeshes[i].Mesh
	}
	for i := range f.StaticMeshInstances {
		sd.meshes[f.StaticMeshInstances[i].Mesh.Record.Guid] = &f.StaticMeshInstances[i].Mesh
	}
	for i := range f.LandscapeInstances {
		sd.meshes[f.LandscapeInstances[i].Mesh.Record.Guid] = &f.LandscapeInstances[i].Mesh
	}
	for i := range f.DirectionalLights {
		sd.lights[f.DirectionalLights[i].Light.Guid] = &f.DirectionalLights[i].Light
	}
	for i := range f.PointLights {
		sd.lights[f.PointLights[i].Light.Guid] = &f.PointLights[i].Light
		sd.radii[f.PointLights[i].Light.Guid] = f.PointLights[i].Point.Radius
	}
	for i := range f.SpotLights {
		sd.lights[f.SpotLights[i].Light.Guid] = &f.SpotLights[i].Light
		sd.radii[f.SpotLights[i].Light.Guid] = f.SpotLights[i].Spot.Radius
	}
	for i := range f.SkyLights {
		sd.lights[f.SkyLights[i].Light.Guid] = &f.SkyLights[i].Light
	}
	for _, group := range [][]protocol.TextureMappingRecord{f.BSPMappings, f.StaticMeshTextureMappings, f.LandscapeTextureMappings} {
		for _, m := range group {
			sd.mappings[m.Guid] = m
		}
	}
	for i, guid := range f.VisibilityBucketGuids {
		sd.bucketIndex[guid] = i
	}
	for _, t := range f.VolumetricLightmapTasks {
		sd.vlmTasks[t.Guid] = t
	}
	return sd
}

// Meshes in scene file order.
func (sd *sceneData) sortedMeshes() []*protocol.MeshData {
	out := make([]*protocol.MeshData, 0, len(sd.meshes))
	f := sd.file
	for i := range f.BSPMeshes {
		out = append(out, &f.BSPMeshes[i].Mesh)
	}
	for i := range f.StaticMeshInstances {
		out = append(out, &f.StaticMeshInstances[i].Mesh)
	}
	for i := range f.LandscapeInstances {
		out = append(out, &f.LandscapeInstances[i].Mesh)
	}
	return out
}

// Classify a task by looking its GUID up in the scene.
func (sd *sceneData) taskKind(guid types.GUID) (taskKind, error) {
	switch guid {
	case protocol.VolumeSamplesTaskGuid:
		return volumeSamplesTask, nil
	case protocol.MeshAreaLightTaskGuid:
		return meshAreaLightTask, nil
	case protocol.VolumeDistanceFieldTaskGuid:
		return distanceFieldTask, nil
	}
	if _, exists := sd.mappings[guid]; exists {
		return mappingTask, nil
	}
	if _, exists := sd.bucketIndex[guid]; exists {
		return visibilityTask, nil
	}
	if _, exists := sd.vlmTasks[guid]; exists {
		return volumetricLightmapTask, nil
	}
	if _, exists := sd.lights[guid]; exists {
		return shadowDepthMapTask, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownTask, guid)
}

// Executor runs preview lighting tasks against a channel store shared with
// the build.
type Executor struct {
	logger log.Logger
	store  channel.Store

	mu     sync.Mutex
	scenes map[types.GUID]*sceneData
}

// Create a new preview executor.
func New(store channel.Store) *Executor {
	return &Executor{
		logger: log.New("preview worker"),
		store:  store,
		scenes: make(map[types.GUID]*sceneData),
	}
}

func (e *Executor) Execute(ctx context.Context, spec swarm.JobSpec, task swarm.Task) error {
	sd, err := e.loadScene(spec)
	if err != nil {
		return err
	}
	if err = ctx.Err(); err != nil {
		return err
	}

	kind, err := sd.taskKind(task.Guid)
	if err != nil {
		return err
	}

	r := &resultWriter{store: e.store, scene: sd}
	switch kind {
	case mappingTask:
		err = r.writeMapping(sd.mappings[task.Guid])
	case visibilityTask:
		err = r.writeVisibilityBucket(task.Guid)
	case volumetricLightmapTask:
		err = r.writeVolumetricLightmap(sd.vlmTasks[task.Guid])
	case volumeSamplesTask:
		err = r.writeVolumeSamples()
	case meshAreaLightTask:
		err = r.writeMeshAreaLights()
	case distanceFieldTask:
		err = r.writeDistanceField()
	case shadowDepthMapTask:
		err = r.writeShadowDepthMap(sd.lights[task.Guid])
	}
	if err != nil {
		return fmt.Errorf("preview: task %s: %w", task.Guid, err)
	}
	return nil
}

// Decode the scene channel for a job once and share it between tasks.
func (e *Executor) loadScene(spec swarm.JobSpec) (*sceneData, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sd, exists := e.scenes[spec.SceneGuid]; exists {
		return sd, nil
	}

	ch, err := e.store.Open(protocol.SceneChannel(spec.SceneGuid), channel.Read)
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	f, err := protocol.ReadScene(ch)
	if err != nil {
		return nil, fmt.Errorf("preview: could not decode scene %s: %w", spec.SceneGuid, err)
	}
	sd := newSceneData(f)
	e.scenes[spec.SceneGuid] = sd
	e.logger.Infof("loaded scene %s with %d mappings", spec.SceneGuid, f.NumMappings())
	return sd, nil
}
