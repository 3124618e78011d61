package protocol

import (
	"github.com/achilleasa/lightmass/types"
)

// Records written by lighting workers into result channels.

// Texture mapping result channels start with a uint32 mapping count. Each
// mapping is a MappingResultHeader followed by a LightMapDataHeader, the
// lightmap payload, a uint32 shadow map count and, per shadow map, a
// ShadowMapDataHeader and its payload.
type MappingResultHeader struct {
	Guid          types.GUID
	ExecutionTime float64
}

// Number of stored lightmap coefficient sets per texel.
const NumStoredLightmapCoefficients = 4

type LightMapDataHeader struct {
	SizeX           int32
	SizeY           int32
	Scale           [NumStoredLightmapCoefficients]types.Vec4
	Add             [NumStoredLightmapCoefficients]types.Vec4
	HasSkyShadowing bool
	// Zero when the payload is stored uncompressed.
	CompressedSize   uint32
	UncompressedSize uint32
}

type ShadowMapDataHeader struct {
	LightGuid        types.GUID
	SizeX            int32
	SizeY            int32
	CompressedSize   uint32
	UncompressedSize uint32
}

// Visibility bucket channels hold a uint32 cell count followed by, per cell,
// the cell bounds and a length-prefixed visibility bitset.

// Volume sample channels hold a VolumeSamplesHeader, a uint32 level count and,
// per level, the level GUID followed by a length-prefixed VolumeSampleRecord
// array.
type VolumeSamplesHeader struct {
	VolumeCenter types.Vec4
	VolumeExtent types.Vec4
}

// Number of spherical harmonic coefficients per color channel.
const NumSHCoefficients = 4

type VolumeSampleRecord struct {
	PositionAndRadius         types.Vec4
	HighQualityCoefficients   [NumSHCoefficients]types.Vec3
	LowQualityCoefficients    [NumSHCoefficients]types.Vec3
	SkyBentNormal             types.Vec3
	DirectionalLightShadowing float32
}

// Volumetric lightmap task channels hold a uint32 brick count and, per
// brick, a VolumetricLightmapBrickRecord followed by a length-prefixed voxel
// array of BrickSize^3 elements.
type VolumetricLightmapBrickRecord struct {
	IndirectionTexturePosition     [3]int32
	TreeDepth                      int32
	AverageClosestGeometryDistance float32
}

type VolumetricLightmapVoxelRecord struct {
	AmbientVector             types.Vec3
	SHCoefficients            [6]types.Vec4
	SkyBentNormal             types.Vec3
	DirectionalLightShadowing uint8
}

// Mesh area light channels hold a length-prefixed MeshAreaLightRecord array.
type MeshAreaLightRecord struct {
	LevelGuid       types.GUID
	Position        types.Vec3
	Direction       types.Vec3
	Radius          float32
	ConeAngle       float32
	Color           types.Vec3
	Brightness      float32
	FalloffExponent float32
}

// The volume distance field channel holds this header followed by a
// length-prefixed array of quantized distances.
type VolumeDistanceFieldHeader struct {
	SizeX       int32
	SizeY       int32
	SizeZ       int32
	Bounds      types.BBox
	MaxDistance float32
}

// Static shadow depth map channels hold this header followed by a
// length-prefixed array of half-float depth samples.
type ShadowDepthMapHeader struct {
	WorldToLight types.Mat4
	SizeX        int32
	SizeY        int32
}
