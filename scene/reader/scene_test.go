package reader

import (
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/types"
)

const testObj = `
mtllib room.mtl
o floor
v -10 -10 0
v 10 -10 0
v 10 10 0
v -10 10 0
vt 0 0
vt 1 0
vt 1 1
vt 0 1
usemtl stone
f 1/1 2/2 3/3
f 1/1 3/3 4/4
o crate
v 0 0 0
v 1 0 0
v 1 1 0
usemtl lamp
f 5 6 7
`

const testMtl = `
newmtl lamp
Kd 0.2 0.2 0.2
Ke 4 4 3
`

const testScene = `
name: test-scene
settings:
  indirect_bounces: 2
  volumetric_lightmap_cell_size: 100
levels:
  - name: main
    persistent: true
  - name: streaming
materials:
  - name: base
    diffuse: [0.5, 0.5, 0.5]
  - name: stone
    parent: base
    diffuse: [0.4, 0.4, 0.35]
models:
  - name: room
    file: room.obj
lights:
  - type: directional
    name: sun
    direction: [0, 0, -1]
    static_lighting: false
  - type: point
    name: bulb
    position: [0, 0, 2]
    radius: 5
  - type: point
    name: far
    position: [1000, 1000, 1000]
    radius: 5
static_meshes:
  - name: crate-1
    model: room.crate
    level: streaming
    translate: [0, 0, 1]
    lightmap: [32, 32]
  - name: crate-2
    model: room.crate
    translate: [2, 0, 1]
bsp:
  - name: floor
    model: room.floor
    lightmap: [128, 64]
landscapes:
  - name: hills
    heightmap: hills.png
    material: stone
    scale: [100, 100, 10]
    lightmap: [64, 64]
importance_volumes:
  - min: [-10, -10, -10]
    max: [10, 10, 10]
portals:
  - translate: [0, 0, 1]
`

func writeTestScene(t *testing.T, sceneYaml string) string {
	dir := t.TempDir()
	files := map[string]string{
		"scene.yaml": sceneYaml,
		"room.obj":   testObj,
		"room.mtl":   testMtl,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0644); err != nil {
			t.Fatal(err)
		}
	}

	heightmap := image.NewGray16(image.Rect(0, 0, 3, 3))
	heightmap.SetGray16(1, 1, color.Gray16{Y: 65535})
	f, err := os.Create(filepath.Join(dir, "hills.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err = png.Encode(f, heightmap); err != nil {
		t.Fatal(err)
	}

	return filepath.Join(dir, "scene.yaml")
}

func TestReadScene(t *testing.T) {
	sc, err := ReadScene(writeTestScene(t, testScene))
	if err != nil {
		t.Fatal(err)
	}

	if sc.Settings.NumIndirectBounces != 2 || sc.VolumetricLightmap.DetailCellSize != 100 {
		t.Fatalf("unexpected settings %+v / %+v", sc.Settings, sc.VolumetricLightmap)
	}
	if len(sc.Levels) != 2 || len(sc.Lights) != 3 || len(sc.Meshes) != 4 || len(sc.Mappings) != 3 {
		t.Fatalf("unexpected entity counts: %d levels, %d lights, %d meshes, %d mappings", len(sc.Levels), len(sc.Lights), len(sc.Meshes), len(sc.Mappings))
	}
	if len(sc.ImportanceVolumes) != 1 || len(sc.Portals) != 1 {
		t.Fatalf("expected 1 importance volume and 1 portal")
	}

	persistent, err := sc.PersistentLevel()
	if err != nil || persistent.Name != "main" {
		t.Fatalf("expected 'main' to be the persistent level; got %v, %v", persistent, err)
	}

	type spec struct {
		name      string
		kind      scene.MeshKind
		level     string
		material  string
		numLights int
	}
	specs := []spec{
		{"crate-1", scene.StaticMeshKind, "streaming", "lamp", 2},
		{"crate-2", scene.StaticMeshKind, "main", "lamp", 2},
		{"floor", scene.BSPKind, "main", "stone", 2},
		{"hills", scene.LandscapeKind, "main", "stone", 2},
	}
	for index, s := range specs {
		mesh := sc.Meshes[index]
		if mesh.Name != s.name || mesh.Kind != s.kind {
			t.Fatalf("[spec %d] expected %s mesh %q; got %s mesh %q", index, s.kind, s.name, mesh.Kind, mesh.Name)
		}
		if sc.Level(mesh.LevelGuid).Name != s.level {
			t.Fatalf("[spec %d] expected mesh to belong to level %q", index, s.level)
		}
		if len(mesh.Elements) == 0 || mesh.Elements[0].Material.Name != s.material {
			t.Fatalf("[spec %d] expected material %q; got %+v", index, s.material, mesh.Elements)
		}
		if len(mesh.RelevantLights) != s.numLights {
			t.Fatalf("[spec %d] expected %d relevant lights; got %d", index, s.numLights, len(mesh.RelevantLights))
		}
	}

	// Instances of the same model share geometry
	if sc.Meshes[0].StaticMesh != sc.Meshes[1].StaticMesh {
		t.Fatal("expected static mesh instances to share their geometry")
	}
	if !sc.Meshes[0].Elements[0].UseEmissiveForStaticLighting {
		t.Fatal("expected emissive material element to contribute to static lighting")
	}

	// BSP geometry is stored in world space
	floor := sc.Meshes[2]
	if floor.NumTriangles != 2 || floor.Bounds.Min != (types.Vec3{-10, -10, 0}) {
		t.Fatalf("unexpected floor geometry: %d triangles, bounds %v", floor.NumTriangles, floor.Bounds)
	}

	hills := sc.Meshes[3].Landscape
	if hills.SizeX != 3 || hills.SizeY != 3 || hills.Heights[4] != 65535 || hills.ComponentSizeQuads != 2 {
		t.Fatalf("unexpected landscape geometry %+v", hills)
	}

	stone := sc.Meshes[2].Elements[0].Material
	if stone.Parent == nil || stone.Parent.Name != "base" {
		t.Fatal("expected stone to inherit from base")
	}
	if stone.Inputs[material.Diffuse].Constant != (types.Vec4{0.4, 0.4, 0.35, 1}) {
		t.Fatalf("unexpected stone diffuse %v", stone.Inputs[material.Diffuse].Constant)
	}
	// lamp, stone and its parent
	if len(sc.Materials) != 3 {
		t.Fatalf("expected 3 referenced materials to be registered; got %d", len(sc.Materials))
	}

	sun := sc.Lights[0].Base()
	if !sun.NeedsStaticShadowDepthMap() {
		t.Fatal("expected stationary sun to need a static shadow depth map")
	}
}

func TestReadSceneGuidsAreStable(t *testing.T) {
	path := writeTestScene(t, testScene)
	sc1, err := ReadScene(path)
	if err != nil {
		t.Fatal(err)
	}
	sc2, err := ReadScene(path)
	if err != nil {
		t.Fatal(err)
	}

	if sc1.Guid != sc2.Guid {
		t.Fatal("expected scene guid to be stable")
	}
	for index := range sc1.Meshes {
		if sc1.Meshes[index].Guid != sc2.Meshes[index].Guid {
			t.Fatalf("expected mesh %d guid to be stable", index)
		}
	}
	for index := range sc1.Mappings {
		if sc1.Mappings[index].Guid != sc2.Mappings[index].Guid {
			t.Fatalf("expected mapping %d guid to be stable", index)
		}
	}
	for index := range sc1.Materials {
		if material.Hash(sc1.Materials[index], types.GUID{}) != material.Hash(sc2.Materials[index], types.GUID{}) {
			t.Fatalf("expected material %d hash to be stable", index)
		}
	}

	// Editing a material changes its lighting guid
	edited := strings.Replace(testScene, "diffuse: [0.4, 0.4, 0.35]", "diffuse: [0.9, 0.4, 0.35]", 1)
	sc3, err := ReadScene(writeTestScene(t, edited))
	if err != nil {
		t.Fatal(err)
	}
	stone1, stone3 := sc1.Meshes[2].Elements[0].Material, sc3.Meshes[2].Elements[0].Material
	if stone1.Guid != stone3.Guid || stone1.LightingGuid == stone3.LightingGuid {
		t.Fatal("expected edited material to keep its guid and get a new lighting guid")
	}
}

func TestReadSceneErrors(t *testing.T) {
	type spec struct {
		yaml   string
		expErr error
		expMsg string
	}
	specs := []spec{
		{"static_meshes:\n  - model: missing\n", ErrUnknownReference, "model 'missing'"},
		{"materials:\n  - name: stone\nmodels:\n  - file: room.obj\nbsp:\n  - model: floor\n    level: nowhere\n", ErrUnknownReference, "level 'nowhere'"},
		{"materials:\n  - name: a\n    parent: b\n", ErrUnknownReference, "parent 'b'"},
		{"materials:\n  - name: a\n    blend_mode: glossy\n", material.ErrUnknownBlendMode, "glossy"},
		{"lights:\n  - type: area\n", ErrInvalidEntity, "unknown type 'area'"},
		{"landscapes:\n  - size: [1, 1]\n", ErrInvalidEntity, "2x2"},
		{"unknown_key: 1\n", nil, "field unknown_key not found"},
	}

	for index, s := range specs {
		_, err := ReadScene(writeTestScene(t, s.yaml))
		if err == nil {
			t.Fatalf("[spec %d] expected an error", index)
		}
		if s.expErr != nil && !errors.Is(err, s.expErr) {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.expErr, err)
		}
		if !strings.Contains(err.Error(), s.expMsg) {
			t.Fatalf("[spec %d] expected error to contain %q; got %v", index, s.expMsg, err)
		}
	}
}
