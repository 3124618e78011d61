package protocol

import (
	"github.com/achilleasa/lightmass/types"
)

// Volume lighting methods.
const (
	VolumeLightingSparseSamples uint32 = iota
	VolumeLightingVolumetricLightmap
)

// Global build settings stored in the scene header.
type SceneSettings struct {
	NumIndirectBounces          int32
	IndirectLightingQuality     float32
	IndirectLightingSmoothness  float32
	EnvironmentColor            types.Vec3
	EnvironmentIntensity        float32
	VolumeLightingMethod        uint32
	UseAmbientOcclusion         bool
	UseErrorColoring            bool
	PadMappings                 bool
	PrecomputedVisibility       bool
	VisibilityCellSize          float32
	PlayAreaHeight              float32
	VolumetricLightmapBrickSize int32
	VolumeDistanceField         bool
}

// The scene channel header. The counts gate how many records of each kind
// follow the header.
type SceneFileHeader struct {
	Cookie        uint32
	FormatVersion types.GUID
	Guid          types.GUID
	Settings      SceneSettings

	NumLevels                         int32
	NumImportanceVolumes              int32
	NumCharacterIndirectDetailVolumes int32
	NumPortals                        int32
	NumVisibilityBuckets              int32
	NumVisibilityVolumes              int32
	NumVolumetricLightmapTasks        int32
	NumDirectionalLights              int32
	NumPointLights                    int32
	NumSpotLights                     int32
	NumSkyLights                      int32
	NumBSPMeshes                      int32
	NumStaticMeshInstances            int32
	NumLandscapeInstances             int32
	NumBSPMappings                    int32
	NumStaticMeshTextureMappings      int32
	NumLandscapeTextureMappings       int32
	NumMaterials                      int32
}

// Level flags.
const (
	LevelVisible uint32 = 1 << iota
	LevelPersistent
)

type LevelRecord struct {
	Guid  types.GUID
	Flags uint32
}

type VolumetricLightmapTaskRecord struct {
	Guid         types.GUID
	Bounds       types.BBox
	BrickIndex   int32
	SubTaskIndex int32
	NumSubTasks  int32
}

// Light flags.
const (
	LightCastShadows uint32 = 1 << iota
	LightHasStaticLighting
	LightHasStaticShadowing
	LightCastStaticShadows
	LightUseInverseSquaredFalloff
)

// Shared header written before every light payload.
type LightRecord struct {
	Guid                       types.GUID
	LevelGuid                  types.GUID
	Flags                      uint32
	Color                      types.Vec3
	Brightness                 float32
	IndirectLightingScale      float32
	IndirectLightingSaturation float32
	ShadowExponent             float32
	LightSourceRadius          float32
	LightSourceLength          float32
	Position                   types.Vec4
	Direction                  types.Vec4
}

type DirectionalLightRecord struct {
	LightSourceAngle float32
}

type PointLightRecord struct {
	Radius          float32
	FalloffExponent float32
	LightTangent    types.Vec3
}

type SpotLightRecord struct {
	PointLightRecord
	InnerConeAngle float32
	OuterConeAngle float32
}

type SkyLightRecord struct {
	LowerHemisphereIsBlack bool
	LowerHemisphereColor   types.Vec3
	// Order 2 irradiance SH coefficients per color channel.
	IrradianceEnvironmentMap [3]types.Vec4
	RadianceMapSize          int32
}

// Mesh flags.
const (
	MeshTwoSided uint32 = 1 << iota
	MeshCastShadow
	MeshCastDynamicShadow
)

// Shared header for every mesh instance. The relevant light GUIDs and the
// material element table follow as length-prefixed arrays.
type MeshRecord struct {
	Guid         types.GUID
	LevelGuid    types.GUID
	VisibilityId int32
	NumTriangles int32
	NumVertices  int32
	Flags        uint32
	Bounds       types.BBox
}

type MaterialElementRecord struct {
	MaterialHash                 types.SHAHash
	FirstTriangle                int32
	NumTriangles                 int32
	UseTwoSidedLighting          bool
	ShadowIndirectOnly           bool
	UseEmissiveForStaticLighting bool
	EmissiveLightFalloffExponent float32
	EmissiveBoost                float32
	DiffuseBoost                 float32
}

type VertexRecord struct {
	Position  types.Vec3
	Normal    types.Vec3
	TexCoords [2]types.Vec2
}

// BSP surfaces carry their geometry inline; vertices and indices follow as
// length-prefixed arrays.
type BSPRecord struct {
	LocalToWorld types.Mat4
	ModelGuid    types.GUID
}

type StaticMeshInstanceRecord struct {
	StaticMeshGuid types.GUID
	LocalToWorld   types.Mat4
	LODIndex       int32
}

type LandscapeRecord struct {
	LandscapeGuid       types.GUID
	LocalToWorld        types.Mat4
	ComponentSizeQuads  int32
	SubsectionSizeQuads int32
	NumSubsections      int32
	ExpandQuads         int32
}

type TextureMappingRecord struct {
	Guid                           types.GUID
	MeshGuid                       types.GUID
	SizeX                          int32
	SizeY                          int32
	LightmapTextureCoordinateIndex int32
	BilinearFilter                 bool
}

// Header of a per-static-mesh channel. Each LOD record is followed by its
// vertex and index arrays.
type StaticMeshFileHeader struct {
	Cookie        uint32
	FormatVersion types.GUID
	Guid          types.GUID
	NumLODs       int32
}

type StaticMeshLODRecord struct {
	NumTriangles int32
	NumVertices  int32
}

// Header of a per-landscape channel. The heightmap follows as a
// length-prefixed array of SizeX*SizeY samples.
type LandscapeFileHeader struct {
	Cookie        uint32
	FormatVersion types.GUID
	Guid          types.GUID
	SizeX         int32
	SizeY         int32
}
