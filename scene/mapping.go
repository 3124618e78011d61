package scene

import (
	"github.com/achilleasa/lightmass/lightmap"
	"github.com/achilleasa/lightmass/types"
)

// Mapping associates a mesh with the lightmap texture that receives its
// computed lighting.
type Mapping struct {
	Guid types.GUID
	Mesh *Mesh

	SizeX, SizeY    int
	LightmapUVIndex int
	BilinearFilter  bool

	// Cleared once lighting results have been applied.
	NeedsProcessing bool

	// Invoked after results are applied.
	OnApply func(*Mapping)

	LightMap   *lightmap.LightMap
	ShadowMaps map[types.GUID]*lightmap.ShadowMap

	invalid    bool
	applyCount int
}

// Create a mapping for a mesh. The mapping GUID is derived from the mesh
// GUID.
func NewMapping(mesh *Mesh, sizeX, sizeY int) *Mapping {
	return &Mapping{
		Guid:            types.DeriveGUID(mesh.Guid, "texture-mapping"),
		Mesh:            mesh,
		SizeX:           sizeX,
		SizeY:           sizeY,
		LightmapUVIndex: 1,
		BilinearFilter:  true,
		NeedsProcessing: true,
	}
}

func (m *Mapping) Kind() MeshKind {
	return m.Mesh.Kind
}

func (m *Mapping) NumTexels() int {
	return m.SizeX * m.SizeY
}

// Mark the mapping as invalid, e.g. after its source geometry was rebuilt
// during the lighting build. Results for invalid mappings are discarded.
func (m *Mapping) Invalidate() {
	m.invalid = true
}

func (m *Mapping) IsValid() bool {
	return !m.invalid && m.Mesh != nil
}

// Store computed lighting on the mapping.
func (m *Mapping) Apply(lm *lightmap.LightMap, shadowMaps []*lightmap.ShadowMap) {
	m.LightMap = lm
	m.ShadowMaps = make(map[types.GUID]*lightmap.ShadowMap, len(shadowMaps))
	for _, sm := range shadowMaps {
		m.ShadowMaps[sm.LightGuid] = sm
	}
	m.NeedsProcessing = false
	m.applyCount++
	if m.OnApply != nil {
		m.OnApply(m)
	}
}

// Number of times Apply was invoked.
func (m *Mapping) ApplyCount() int {
	return m.applyCount
}
