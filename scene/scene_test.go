package scene

import (
	"errors"
	"strings"
	"testing"

	"github.com/achilleasa/lightmass/lightmap"
	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/types"
)

func testQuad() *BSPSurface {
	return &BSPSurface{
		ModelGuid: types.GUID{A: 1},
		Vertices: []Vertex{
			{Position: types.XYZ(0, 0, 0)},
			{Position: types.XYZ(1, 0, 0)},
			{Position: types.XYZ(1, 1, 0)},
			{Position: types.XYZ(0, 1, 0)},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func TestAddEntities(t *testing.T) {
	sc := New("test")
	level := NewLevel(types.GUID{A: 100}, "persistent", true)
	if err := sc.AddLevel(level); err != nil {
		t.Fatal(err)
	}
	if err := sc.AddLevel(level); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate; got %v", err)
	}

	mesh := NewBSPMesh(types.GUID{A: 1}, testQuad())
	mesh.LevelGuid = level.Guid
	if err := sc.AddMesh(mesh); err != nil {
		t.Fatal(err)
	}
	if mesh.NumTriangles != 2 || mesh.NumVertices != 4 || mesh.VisibilityId != 0 {
		t.Fatalf("unexpected mesh %+v", mesh)
	}

	orphan := NewBSPMesh(types.GUID{A: 2}, testQuad())
	orphan.LevelGuid = types.GUID{A: 999}
	if err := sc.AddMesh(orphan); !errors.Is(err, ErrUnknownLevel) {
		t.Fatalf("expected ErrUnknownLevel; got %v", err)
	}

	bad := NewBSPMesh(types.GUID{A: 3}, testQuad())
	bad.Landscape = &LandscapeGeometry{}
	if err := sc.AddMesh(bad); !errors.Is(err, ErrMeshPayload) {
		t.Fatalf("expected ErrMeshPayload; got %v", err)
	}

	mapping := NewMapping(mesh, 16, 16)
	if mapping.Guid == mesh.Guid || mapping.Guid != NewMapping(mesh, 1, 1).Guid {
		t.Fatal("expected mapping guid to be derived deterministically from the mesh guid")
	}
	if err := sc.AddMapping(mapping); err != nil {
		t.Fatal(err)
	}
	if err := sc.AddMapping(NewMapping(NewBSPMesh(types.GUID{A: 4}, testQuad()), 4, 4)); !errors.Is(err, ErrUnknownMesh) {
		t.Fatalf("expected ErrUnknownMesh; got %v", err)
	}
	if sc.Mapping(mapping.Guid) != mapping || sc.Mesh(mesh.Guid) != mesh {
		t.Fatal("lookup by guid failed")
	}

	light := NewPointLight(types.GUID{A: 50}, types.XYZ(0, 0, 10), 100)
	if err := sc.AddLight(light); err != nil {
		t.Fatal(err)
	}
	if sc.Light(light.Guid).Kind() != PointLightKind {
		t.Fatal("expected point light lookup")
	}

	mat := material.New("m", types.GUID{A: 7})
	if err := sc.AddMaterial(mat); err != nil {
		t.Fatal(err)
	}
	if err := sc.AddMaterial(mat); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate; got %v", err)
	}

	if pl, err := sc.PersistentLevel(); err != nil || pl != level {
		t.Fatalf("expected persistent level; got %v, %v", pl, err)
	}

	stats := sc.Stats()
	for _, exp := range []string{"Mappings", "bsp", "256 texels", "point"} {
		if !strings.Contains(stats, exp) {
			t.Fatalf("expected stats to contain %q:\n%s", exp, stats)
		}
	}
}

func TestMappingApply(t *testing.T) {
	mapping := NewMapping(NewBSPMesh(types.GUID{A: 1}, testQuad()), 2, 2)
	var notified int
	mapping.OnApply = func(*Mapping) { notified++ }

	lm := &lightmap.LightMap{SizeX: 2, SizeY: 2, Texels: make([]lightmap.Texel, 4)}
	mapping.Apply(lm, []*lightmap.ShadowMap{{LightGuid: types.GUID{A: 9}}})

	if mapping.NeedsProcessing || mapping.ApplyCount() != 1 || notified != 1 {
		t.Fatalf("unexpected mapping state after apply: needsProcessing=%t applyCount=%d notified=%d", mapping.NeedsProcessing, mapping.ApplyCount(), notified)
	}
	if mapping.LightMap != lm || mapping.ShadowMaps[types.GUID{A: 9}] == nil {
		t.Fatal("expected results to be stored on the mapping")
	}

	if !mapping.IsValid() {
		t.Fatal("expected mapping to be valid")
	}
	mapping.Invalidate()
	if mapping.IsValid() {
		t.Fatal("expected mapping to be invalid")
	}
}

func TestLightKinds(t *testing.T) {
	type spec struct {
		light     Light
		exp       LightKind
		expShadow bool
	}

	stationary := NewSpotLight(types.GUID{A: 3}, types.XYZ(0, 0, 0), types.XYZ(0, 0, -1), 10)
	stationary.HasStaticLighting = false

	specs := []spec{
		{NewDirectionalLight(types.GUID{A: 1}, types.XYZ(0, 0, -2)), DirectionalLightKind, false},
		{NewPointLight(types.GUID{A: 2}, types.XYZ(0, 0, 0), 10), PointLightKind, false},
		{stationary, SpotLightKind, true},
		{NewSkyLight(types.GUID{A: 4}, types.XYZ(1, 1, 1)), SkyLightKind, false},
	}
	for index, s := range specs {
		if s.light.Kind() != s.exp {
			t.Fatalf("[spec %d] expected kind %s; got %s", index, s.exp, s.light.Kind())
		}
		if got := s.light.Base().NeedsStaticShadowDepthMap(); got != s.expShadow {
			t.Fatalf("[spec %d] expected shadow depth map requirement %t; got %t", index, s.expShadow, got)
		}
	}
}

func TestVolumetricLightmapBricks(t *testing.T) {
	sc := New("vlm")
	if n := sc.NumVolumetricLightmapBricks(4); n != 0 {
		t.Fatalf("expected no bricks without importance volumes; got %d", n)
	}

	sc.ImportanceVolumes = []types.BBox{
		{Min: types.XYZ(0, 0, 0), Max: types.XYZ(1000, 800, 100)},
		{Min: types.XYZ(-600, 0, 0), Max: types.XYZ(0, 10, 10)},
	}
	// 1600x800x100 world units with 800 unit bricks
	if dims := sc.VolumetricLightmapBricks(4); dims != [3]int{2, 1, 1} {
		t.Fatalf("unexpected brick dims %v", dims)
	}
}

func TestVolumeDistanceFieldSample(t *testing.T) {
	f := &VolumeDistanceField{
		SizeX: 2, SizeY: 1, SizeZ: 1,
		Bounds:      types.BBox{Min: types.XYZ(0, 0, 0), Max: types.XYZ(2, 1, 1)},
		MaxDistance: 10,
		Distances:   []uint8{0, 255},
	}
	if got := f.Sample(types.XYZ(1.5, 0.5, 0.5)); got != 10 {
		t.Fatalf("expected 10; got %f", got)
	}
	if got := f.Sample(types.XYZ(0.5, 0.5, 0.5)); got != 0 {
		t.Fatalf("expected 0; got %f", got)
	}
	if got := f.Sample(types.XYZ(-5, 0, 0)); got != 10 {
		t.Fatalf("expected max distance outside the volume; got %f", got)
	}
}
