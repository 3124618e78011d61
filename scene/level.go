package scene

import (
	"github.com/achilleasa/lightmass/lightmap"
	"github.com/achilleasa/lightmass/types"
	"github.com/achilleasa/lightmass/visibility"
	"github.com/chewxy/math32"
)

type Level struct {
	Guid       types.GUID
	Name       string
	Visible    bool
	Persistent bool

	BuildData *BuildData
}

func NewLevel(guid types.GUID, name string, persistent bool) *Level {
	return &Level{
		Guid:       guid,
		Name:       name,
		Visible:    true,
		Persistent: persistent,
		BuildData:  NewBuildData(),
	}
}

// Lighting data imported for a level.
type BuildData struct {
	VolumeSamples      lightmap.VolumeSampleSet
	VolumetricLightmap *lightmap.VolumetricLightmap
	MeshAreaLights     []*MeshAreaLight
	Visibility         *visibility.Handler
	DistanceField      *VolumeDistanceField
}

func NewBuildData() *BuildData {
	return &BuildData{Visibility: &visibility.Handler{}}
}

// A light spawned for an emissive mesh area.
type MeshAreaLight struct {
	Position        types.Vec3
	Direction       types.Vec3
	Radius          float32
	ConeAngle       float32
	Color           types.Vec3
	Brightness      float32
	FalloffExponent float32
}

// A volume of distances to the nearest shadow casting surface.
type VolumeDistanceField struct {
	SizeX, SizeY, SizeZ int
	Bounds              types.BBox
	MaxDistance         float32
	Distances           []uint8
}

// Sample the distance field at a world position. Positions outside the
// volume report MaxDistance.
func (f *VolumeDistanceField) Sample(pos types.Vec3) float32 {
	if !f.Bounds.Contains(pos) || len(f.Distances) == 0 {
		return f.MaxDistance
	}
	ext := f.Bounds.Max.Sub(f.Bounds.Min)
	rel := pos.Sub(f.Bounds.Min)
	x := clampIndex(rel[0]/ext[0]*float32(f.SizeX), f.SizeX)
	y := clampIndex(rel[1]/ext[1]*float32(f.SizeY), f.SizeY)
	z := clampIndex(rel[2]/ext[2]*float32(f.SizeZ), f.SizeZ)
	q := f.Distances[(z*f.SizeY+y)*f.SizeX+x]
	return float32(q) / 255 * f.MaxDistance
}

func clampIndex(v float32, size int) int {
	i := int(math32.Floor(v))
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}
