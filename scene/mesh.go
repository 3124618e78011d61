package scene

import (
	"errors"
	"fmt"
	"image"

	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/types"
)

var ErrMeshPayload = errors.New("scene: mesh payload does not match its kind")

type MeshKind uint8

const (
	StaticMeshKind MeshKind = iota
	BSPKind
	LandscapeKind
)

func (k MeshKind) String() string {
	switch k {
	case StaticMeshKind:
		return "static mesh"
	case BSPKind:
		return "bsp"
	case LandscapeKind:
		return "landscape"
	}
	return fmt.Sprintf("MeshKind(%d)", uint8(k))
}

type Vertex struct {
	Position  types.Vec3
	Normal    types.Vec3
	TexCoords [2]types.Vec2
}

// A material applied to a contiguous range of mesh triangles.
type MaterialElement struct {
	Material *material.Material

	FirstTriangle int
	NumTriangles  int

	UseTwoSidedLighting          bool
	ShadowIndirectOnly           bool
	UseEmissiveForStaticLighting bool
	EmissiveLightFalloffExponent float32
	EmissiveBoost                float32
	DiffuseBoost                 float32
}

type StaticMeshLOD struct {
	Vertices []Vertex
	Indices  []uint32
}

// Static mesh geometry shared by all instances of the mesh. It is exported
// once per GUID.
type StaticMeshGeometry struct {
	Guid types.GUID
	Name string
	LODs []StaticMeshLOD
}

// A group of BSP surfaces lit as one mesh. The geometry is in world space.
type BSPSurface struct {
	ModelGuid types.GUID
	Vertices  []Vertex
	Indices   []uint32
}

// Landscape heightmap data shared by the components of a landscape.
type LandscapeGeometry struct {
	Guid                types.GUID
	SizeX, SizeY        int
	Heights             []uint16
	ComponentSizeQuads  int
	SubsectionSizeQuads int
	NumSubsections      int
	ExpandQuads         int

	// Optional mask used when rasterizing materials against the landscape.
	HoleMask image.Image
}

// Mesh is a surface taking part in the static lighting build. Exactly one of
// the kind specific payloads is set.
type Mesh struct {
	Kind      MeshKind
	Guid      types.GUID
	LevelGuid types.GUID
	Name      string

	// Index of this mesh's bit in precomputed visibility cells.
	VisibilityId int

	NumTriangles int
	NumVertices  int
	Bounds       types.BBox
	LocalToWorld types.Mat4

	TwoSided   bool
	CastShadow bool

	RelevantLights []Light
	Elements       []MaterialElement

	LODIndex   int
	StaticMesh *StaticMeshGeometry
	BSP        *BSPSurface
	Landscape  *LandscapeGeometry
}

func newMesh(kind MeshKind, guid types.GUID, localToWorld types.Mat4) *Mesh {
	return &Mesh{
		Kind:         kind,
		Guid:         guid,
		LocalToWorld: localToWorld,
		CastShadow:   true,
		VisibilityId: -1,
	}
}

// Create an instance of a static mesh.
func NewStaticMeshInstance(guid types.GUID, geom *StaticMeshGeometry, localToWorld types.Mat4) *Mesh {
	m := newMesh(StaticMeshKind, guid, localToWorld)
	m.StaticMesh = geom
	m.Name = geom.Name
	if len(geom.LODs) > 0 {
		lod := geom.LODs[0]
		m.NumVertices = len(lod.Vertices)
		m.NumTriangles = len(lod.Indices) / 3
		m.Bounds = transformBounds(vertexBounds(lod.Vertices), localToWorld)
	}
	return m
}

// Create a mesh for a group of BSP surfaces.
func NewBSPMesh(guid types.GUID, surface *BSPSurface) *Mesh {
	m := newMesh(BSPKind, guid, types.Ident4())
	m.BSP = surface
	m.NumVertices = len(surface.Vertices)
	m.NumTriangles = len(surface.Indices) / 3
	m.Bounds = vertexBounds(surface.Vertices)
	return m
}

// Create a mesh for a landscape component.
func NewLandscapeMesh(guid types.GUID, geom *LandscapeGeometry, localToWorld types.Mat4) *Mesh {
	m := newMesh(LandscapeKind, guid, localToWorld)
	m.Landscape = geom
	quads := geom.ComponentSizeQuads + 2*geom.ExpandQuads
	m.NumVertices = (quads + 1) * (quads + 1)
	m.NumTriangles = quads * quads * 2

	bounds := types.EmptyBBox()
	for y := 0; y < geom.SizeY; y++ {
		for x := 0; x < geom.SizeX; x++ {
			h := float32(geom.Heights[y*geom.SizeX+x]) / 65535
			bounds = bounds.Expand(types.XYZ(float32(x), float32(y), h))
		}
	}
	m.Bounds = transformBounds(bounds, localToWorld)
	return m
}

// Check that the mesh payload matches its kind.
func (m *Mesh) Validate() error {
	var ok bool
	switch m.Kind {
	case StaticMeshKind:
		ok = m.StaticMesh != nil && m.BSP == nil && m.Landscape == nil
	case BSPKind:
		ok = m.BSP != nil && m.StaticMesh == nil && m.Landscape == nil
	case LandscapeKind:
		ok = m.Landscape != nil && m.StaticMesh == nil && m.BSP == nil
	}
	if !ok {
		return fmt.Errorf("%w: %s mesh %s", ErrMeshPayload, m.Kind, m.Guid)
	}
	return nil
}

// Assign a single material to all triangles of the mesh.
func (m *Mesh) SetMaterial(mat *material.Material) {
	m.Elements = []MaterialElement{{
		Material:      mat,
		NumTriangles:  m.NumTriangles,
		EmissiveBoost: 1,
		DiffuseBoost:  1,
	}}
}

func vertexBounds(vertices []Vertex) types.BBox {
	b := types.EmptyBBox()
	for _, v := range vertices {
		b = b.Expand(v.Position)
	}
	return b
}

func transformBounds(b types.BBox, m types.Mat4) types.BBox {
	if b.IsEmpty() {
		return b
	}
	return b.Transform(m)
}
