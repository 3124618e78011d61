package preview

import (
	"context"
	"errors"
	"testing"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/lightmap"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
	"github.com/achilleasa/lightmass/visibility"
	"github.com/x448/float16"
)

var (
	sceneGuid   = types.GUID{A: 1}
	levelGuid   = types.GUID{A: 2}
	sunGuid     = types.GUID{A: 3}
	lampGuid    = types.GUID{A: 4}
	meshGuid    = types.GUID{A: 5}
	mappingGuid = types.GUID{A: 6}
	bucketGuids = []types.GUID{{A: 7}, {A: 8}}
	vlmGuids    = []types.GUID{{A: 9}, {A: 10}}
	glowHash    = types.SHAHash{1, 2, 3}
)

const brickSize = 4

func writeTestScene(t *testing.T, store channel.Store) {
	volume := types.BBox{Min: types.XYZ(0, 0, 0), Max: types.XYZ(400, 400, 200)}
	f := &protocol.SceneFile{
		Header: protocol.SceneFileHeader{
			Guid: sceneGuid,
			Settings: protocol.SceneSettings{
				EnvironmentColor:            types.XYZ(0.1, 0.1, 0.1),
				EnvironmentIntensity:        1,
				PrecomputedVisibility:       true,
				VisibilityCellSize:          100,
				PlayAreaHeight:              200,
				VolumetricLightmapBrickSize: brickSize,
				VolumeDistanceField:         true,
			},
		},
		Levels:                []protocol.LevelRecord{{Guid: levelGuid, Flags: protocol.LevelVisible | protocol.LevelPersistent}},
		ImportanceVolumes:     []types.BBox{volume},
		VisibilityBucketGuids: bucketGuids,
		VolumetricLightmapTasks: []protocol.VolumetricLightmapTaskRecord{
			{Guid: vlmGuids[0], Bounds: volume, SubTaskIndex: 0, NumSubTasks: 2},
			{Guid: vlmGuids[1], Bounds: volume, SubTaskIndex: 1, NumSubTasks: 2},
		},
		DirectionalLights: []protocol.DirectionalLight{{
			Light: protocol.LightRecord{
				Guid:       sunGuid,
				LevelGuid:  levelGuid,
				Flags:      protocol.LightHasStaticLighting,
				Color:      types.XYZ(1, 1, 1),
				Brightness: 2,
				Direction:  types.XYZ(0, 0, -1).Vec4(0),
			},
		}},
		PointLights: []protocol.PointLight{{
			Light: protocol.LightRecord{
				Guid:       lampGuid,
				LevelGuid:  levelGuid,
				Flags:      protocol.LightHasStaticShadowing,
				Color:      types.XYZ(1, 0.5, 0),
				Brightness: 1,
				Position:   types.XYZ(50, 50, 50).Vec4(1),
			},
			Point: protocol.PointLightRecord{Radius: 500},
		}},
		StaticMeshInstances: []protocol.StaticMeshInstance{{
			Mesh: protocol.MeshData{
				Record: protocol.MeshRecord{
					Guid:         meshGuid,
					LevelGuid:    levelGuid,
					VisibilityId: 3,
					Bounds:       types.BBox{Min: types.XYZ(100, 100, 0), Max: types.XYZ(200, 200, 100)},
				},
				RelevantLights: []types.GUID{sunGuid, lampGuid},
				Elements: []protocol.MaterialElementRecord{{
					MaterialHash:                 glowHash,
					UseEmissiveForStaticLighting: true,
					EmissiveBoost:                2,
					EmissiveLightFalloffExponent: 1,
				}},
			},
		}},
		StaticMeshTextureMappings: []protocol.TextureMappingRecord{{Guid: mappingGuid, MeshGuid: meshGuid, SizeX: 4, SizeY: 2}},
		MaterialHashes:            []types.SHAHash{glowHash},
	}
	ch, err := store.Open(protocol.SceneChannel(sceneGuid), channel.Write)
	if err != nil {
		t.Fatal(err)
	}
	if err = protocol.WriteScene(ch, f); err != nil {
		t.Fatal(err)
	}
	ch.Close()

	red := float16.Fromfloat32(1).Bits()
	mat := &protocol.MaterialFile{Header: protocol.MaterialFileHeader{Hash: glowHash}}
	mat.Data.SampleSizes[protocol.SampleEmissive] = 1
	mat.Samples[protocol.SampleEmissive] = []protocol.HalfRGBA{{red, 0, 0, red}}
	if ch, err = store.Open(protocol.MaterialChannel(glowHash), channel.Write); err != nil {
		t.Fatal(err)
	}
	if err = protocol.WriteMaterial(ch, mat); err != nil {
		t.Fatal(err)
	}
	ch.Close()
}

func execute(t *testing.T, store channel.Store, taskGuid types.GUID) {
	e := New(store)
	if err := e.Execute(context.Background(), swarm.JobSpec{SceneGuid: sceneGuid}, swarm.Task{Guid: taskGuid}); err != nil {
		t.Fatalf("task %s: %v", taskGuid, err)
	}
}

func open(t *testing.T, store channel.Store, name string) *channel.Channel {
	ch, err := store.Open(name, channel.Read)
	if err != nil {
		t.Fatalf("expected channel %s to be published; got %v", name, err)
	}
	return ch
}

func TestMappingTask(t *testing.T) {
	store := channel.NewMemStore()
	writeTestScene(t, store)
	execute(t, store, mappingGuid)

	ch := open(t, store, protocol.TextureMappingChannel(mappingGuid))
	defer ch.Close()
	dec := channel.NewDecoder(ch)
	if n := lightmap.ReadMappingCount(dec); n != 1 {
		t.Fatalf("expected 1 mapping; got %d", n)
	}
	res, err := lightmap.ReadMappingResult(dec)
	if err != nil {
		t.Fatal(err)
	}
	if res.Guid != mappingGuid {
		t.Fatalf("expected mapping %s; got %s", mappingGuid, res.Guid)
	}
	if res.LightMap == nil || len(res.LightMap.Texels) != 8 {
		t.Fatalf("expected a 4x2 lightmap")
	}
	if got := res.LightMap.UnmappedTexels(); got != 0 {
		t.Fatalf("expected every texel to be mapped; got %d unmapped", got)
	}
	// ambient 0.1 + sun 2
	if got := res.LightMap.Add[0][0]; got < 2.09 || got > 2.11 {
		t.Fatalf("expected the first coefficient to be 2.1; got %f", got)
	}

	// Only the stationary lamp produces a shadow map.
	if len(res.ShadowMaps) != 1 || res.ShadowMaps[0].LightGuid != lampGuid {
		t.Fatalf("expected a single shadow map for the lamp; got %d", len(res.ShadowMaps))
	}
	if got := res.ShadowMaps[0].Texels[0].Coverage; got != 255 {
		t.Fatalf("expected full shadow coverage; got %d", got)
	}
}

func TestVisibilityTasks(t *testing.T) {
	store := channel.NewMemStore()
	writeTestScene(t, store)

	var total int
	for _, guid := range bucketGuids {
		execute(t, store, guid)
		ch := open(t, store, protocol.VisibilityChannel(guid))
		cells, err := visibility.ReadBucket(ch)
		ch.Close()
		if err != nil {
			t.Fatal(err)
		}
		for _, c := range cells {
			if !c.IsVisible(3) {
				t.Fatalf("expected mesh 3 to be visible from every cell")
			}
		}
		total += len(cells)
	}

	// 400x400 volume with 100 unit cells
	if total != 16 {
		t.Fatalf("expected 16 cells across both buckets; got %d", total)
	}
}

func TestVolumetricLightmapTasks(t *testing.T) {
	store := channel.NewMemStore()
	writeTestScene(t, store)

	type spec struct {
		guid      types.GUID
		expBricks int
	}
	specs := []spec{
		{vlmGuids[0], 1},
		{vlmGuids[1], 0},
	}

	for specIndex, s := range specs {
		execute(t, store, s.guid)
		ch := open(t, store, protocol.VolumetricLightmapChannel(s.guid))
		bricks, err := protocol.ReadVolumetricLightmapBricks(ch, brickSize)
		ch.Close()
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if len(bricks) != s.expBricks {
			t.Fatalf("[spec %d] expected %d bricks; got %d", specIndex, s.expBricks, len(bricks))
		}
	}
}

func TestSingletonTasks(t *testing.T) {
	store := channel.NewMemStore()
	writeTestScene(t, store)

	execute(t, store, protocol.VolumeSamplesTaskGuid)
	ch := open(t, store, protocol.VolumeSamplesChannel())
	samples, err := protocol.ReadVolumeSamples(ch)
	ch.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(samples.Levels) != 1 || len(samples.Levels[0].Samples) != volumeSampleGrid*volumeSampleGrid*volumeSampleGrid {
		t.Fatalf("expected a full sample grid for the persistent level")
	}

	execute(t, store, protocol.MeshAreaLightTaskGuid)
	ch = open(t, store, protocol.MeshAreaLightChannel())
	lights, err := protocol.ReadMeshAreaLights(ch)
	ch.Close()
	if err != nil {
		t.Fatal(err)
	}
	if len(lights) != 1 {
		t.Fatalf("expected 1 mesh area light; got %d", len(lights))
	}
	if lights[0].Color[0] != 1 || lights[0].Brightness != 2 {
		t.Fatalf("expected a red area light with the emissive boost as brightness; got %v / %f", lights[0].Color, lights[0].Brightness)
	}

	execute(t, store, protocol.VolumeDistanceFieldTaskGuid)
	ch = open(t, store, protocol.VolumeDistanceFieldChannel())
	field, err := protocol.ReadVolumeDistanceField(ch)
	ch.Close()
	if err != nil {
		t.Fatal(err)
	}
	if got := len(field.Distances); got != distanceFieldSize*distanceFieldSize*distanceFieldSize {
		t.Fatalf("expected %d distances; got %d", distanceFieldSize*distanceFieldSize*distanceFieldSize, got)
	}

	execute(t, store, lampGuid)
	ch = open(t, store, protocol.StaticShadowDepthMapChannel(lampGuid))
	depthMap, err := protocol.ReadShadowDepthMap(ch)
	ch.Close()
	if err != nil {
		t.Fatal(err)
	}
	if got := float16.Frombits(depthMap.Depths[0]).Float32(); got != 1 {
		t.Fatalf("expected an unoccluded depth of 1; got %f", got)
	}
	if got := depthMap.Header.WorldToLight.TransformPoint(types.XYZ(50, 50, 50)); got.Len() != 0 {
		t.Fatalf("expected the light position to map to the origin; got %v", got)
	}
}

func TestUnknownTask(t *testing.T) {
	store := channel.NewMemStore()
	writeTestScene(t, store)

	e := New(store)
	err := e.Execute(context.Background(), swarm.JobSpec{SceneGuid: sceneGuid}, swarm.Task{Guid: types.GUID{A: 999}})
	if !errors.Is(err, ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask; got %v", err)
	}
}

func TestMissingScene(t *testing.T) {
	e := New(channel.NewMemStore())
	err := e.Execute(context.Background(), swarm.JobSpec{SceneGuid: sceneGuid}, swarm.Task{Guid: mappingGuid})
	if !errors.Is(err, channel.ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound; got %v", err)
	}
}
