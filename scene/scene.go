// Package scene contains the entities that take part in a static lighting
// build: levels, lights, meshes, their lightmap mappings and the imported
// lighting data.
package scene

import (
	"errors"
	"fmt"

	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/types"
	"github.com/chewxy/math32"
)

var (
	ErrDuplicate      = errors.New("scene: entity already added")
	ErrUnknownLevel   = errors.New("scene: unknown level")
	ErrUnknownMesh    = errors.New("scene: mapping references unknown mesh")
	ErrNoPersistent   = errors.New("scene: no persistent level")
	ErrInvalidMapping = errors.New("scene: invalid mapping")
)

// Global lighting settings.
type Settings struct {
	NumIndirectBounces         int
	IndirectLightingQuality    float32
	IndirectLightingSmoothness float32
	EnvironmentColor           types.Vec3
	EnvironmentIntensity       float32
	UseAmbientOcclusion        bool
}

func DefaultSettings() Settings {
	return Settings{
		NumIndirectBounces:         3,
		IndirectLightingQuality:    1,
		IndirectLightingSmoothness: 1,
		EnvironmentIntensity:       1,
	}
}

type VolumetricLightmapSettings struct {
	// World size of a volumetric lightmap detail cell.
	DetailCellSize float32

	// Bounds override; the union of the importance volumes is used when
	// empty.
	Bounds types.BBox
}

// RenderState lets the host flush pending rendering work and detach render
// resources while lighting results are applied.
type RenderState interface {
	// Wait for queued rendering commands to complete.
	Flush()

	// Detach render resources. The returned function reattaches them.
	Detach() func()
}

type nopRenderState struct{}

func (nopRenderState) Flush()         {}
func (nopRenderState) Detach() func() { return func() {} }

type Scene struct {
	Guid     types.GUID
	Name     string
	Settings Settings

	Levels    []*Level
	Lights    []Light
	Meshes    []*Mesh
	Mappings  []*Mapping
	Materials []*material.Material

	ImportanceVolumes              []types.BBox
	CharacterIndirectDetailVolumes []types.BBox
	Portals                        []types.Mat4
	VisibilityVolumes              []types.BBox

	// One GUID per precomputed visibility task.
	VisibilityBucketGuids []types.GUID

	VolumetricLightmap VolumetricLightmapSettings

	RenderState RenderState

	levels   map[types.GUID]*Level
	lights   map[types.GUID]Light
	meshes   map[types.GUID]*Mesh
	mappings map[types.GUID]*Mapping
}

// Create a new empty scene.
func New(name string) *Scene {
	return &Scene{
		Guid:        types.NewGUID(),
		Name:        name,
		Settings:    DefaultSettings(),
		RenderState: nopRenderState{},
		VolumetricLightmap: VolumetricLightmapSettings{
			DetailCellSize: 200,
			Bounds:         types.EmptyBBox(),
		},
		levels:   make(map[types.GUID]*Level),
		lights:   make(map[types.GUID]Light),
		meshes:   make(map[types.GUID]*Mesh),
		mappings: make(map[types.GUID]*Mapping),
	}
}

func (s *Scene) AddLevel(level *Level) error {
	if _, exists := s.levels[level.Guid]; exists {
		return fmt.Errorf("%w: level %s", ErrDuplicate, level.Guid)
	}
	s.levels[level.Guid] = level
	s.Levels = append(s.Levels, level)
	return nil
}

func (s *Scene) AddLight(light Light) error {
	base := light.Base()
	if _, exists := s.lights[base.Guid]; exists {
		return fmt.Errorf("%w: light %s", ErrDuplicate, base.Guid)
	}
	if err := s.checkLevel(base.LevelGuid); err != nil {
		return err
	}
	s.lights[base.Guid] = light
	s.Lights = append(s.Lights, light)
	return nil
}

// Add a mesh. The mesh is assigned the next free visibility id unless it
// already has one.
func (s *Scene) AddMesh(mesh *Mesh) error {
	if err := mesh.Validate(); err != nil {
		return err
	}
	if _, exists := s.meshes[mesh.Guid]; exists {
		return fmt.Errorf("%w: mesh %s", ErrDuplicate, mesh.Guid)
	}
	if err := s.checkLevel(mesh.LevelGuid); err != nil {
		return err
	}
	if mesh.VisibilityId < 0 {
		mesh.VisibilityId = len(s.Meshes)
	}
	s.meshes[mesh.Guid] = mesh
	s.Meshes = append(s.Meshes, mesh)
	return nil
}

// Add a mapping. Its mesh must have been added first.
func (s *Scene) AddMapping(mapping *Mapping) error {
	if mapping.Mesh == nil || s.meshes[mapping.Mesh.Guid] != mapping.Mesh {
		return ErrUnknownMesh
	}
	if mapping.SizeX <= 0 || mapping.SizeY <= 0 {
		return fmt.Errorf("%w: %s has size %dx%d", ErrInvalidMapping, mapping.Guid, mapping.SizeX, mapping.SizeY)
	}
	if _, exists := s.mappings[mapping.Guid]; exists {
		return fmt.Errorf("%w: mapping %s", ErrDuplicate, mapping.Guid)
	}
	s.mappings[mapping.Guid] = mapping
	s.Mappings = append(s.Mappings, mapping)
	return nil
}

func (s *Scene) AddMaterial(mat *material.Material) error {
	for _, m := range s.Materials {
		if m == mat {
			return fmt.Errorf("%w: material %s", ErrDuplicate, mat.Name)
		}
	}
	s.Materials = append(s.Materials, mat)
	return nil
}

func (s *Scene) checkLevel(guid types.GUID) error {
	if !guid.IsValid() {
		return nil
	}
	if _, exists := s.levels[guid]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownLevel, guid)
	}
	return nil
}

func (s *Scene) Level(guid types.GUID) *Level {
	return s.levels[guid]
}

func (s *Scene) Light(guid types.GUID) Light {
	return s.lights[guid]
}

func (s *Scene) Mesh(guid types.GUID) *Mesh {
	return s.meshes[guid]
}

func (s *Scene) Mapping(guid types.GUID) *Mapping {
	return s.mappings[guid]
}

// Get the persistent level.
func (s *Scene) PersistentLevel() (*Level, error) {
	for _, l := range s.Levels {
		if l.Persistent {
			return l, nil
		}
	}
	return nil, ErrNoPersistent
}

// Allocate the GUIDs for n precomputed visibility tasks.
func (s *Scene) AllocateVisibilityBuckets(n int) {
	s.VisibilityBucketGuids = make([]types.GUID, n)
	for i := range s.VisibilityBucketGuids {
		s.VisibilityBucketGuids[i] = types.DeriveGUID(s.Guid, fmt.Sprintf("visibility-%d", i))
	}
}

// Get the bounds covered by the volumetric lightmap.
func (s *Scene) VolumetricLightmapBounds() types.BBox {
	if !s.VolumetricLightmap.Bounds.IsEmpty() {
		return s.VolumetricLightmap.Bounds
	}
	b := types.EmptyBBox()
	for _, v := range s.ImportanceVolumes {
		b = b.Union(v)
	}
	return b
}

// Get the number of top level volumetric lightmap bricks along each axis.
func (s *Scene) VolumetricLightmapBricks(brickSize int) [3]int {
	bounds := s.VolumetricLightmapBounds()
	if bounds.IsEmpty() || brickSize <= 0 || s.VolumetricLightmap.DetailCellSize <= 0 {
		return [3]int{}
	}
	brickWorldSize := s.VolumetricLightmap.DetailCellSize * float32(brickSize)
	ext := bounds.Max.Sub(bounds.Min)
	var out [3]int
	for i := range out {
		out[i] = int(math32.Max(1, math32.Ceil(ext[i]/brickWorldSize)))
	}
	return out
}

// Get the total number of top level volumetric lightmap bricks.
func (s *Scene) NumVolumetricLightmapBricks(brickSize int) int {
	dims := s.VolumetricLightmapBricks(brickSize)
	return dims[0] * dims[1] * dims[2]
}
