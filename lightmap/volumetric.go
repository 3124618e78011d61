package lightmap

import (
	"sort"

	"github.com/achilleasa/lightmass/protocol"
)

type Brick struct {
	IndirectionTexturePosition     [3]int32
	TreeDepth                      int32
	AverageClosestGeometryDistance float32
	Voxels                         []protocol.VolumetricLightmapVoxelRecord
}

// Volumetric lightmap bricks collected from all volumetric lightmap tasks.
type VolumetricLightmap struct {
	BrickSize int
	Bricks    []Brick
}

func (v *VolumetricLightmap) AddBricks(bricks []protocol.VolumetricLightmapBrick) {
	for _, b := range bricks {
		v.Bricks = append(v.Bricks, Brick{
			IndirectionTexturePosition:     b.Record.IndirectionTexturePosition,
			TreeDepth:                      b.Record.TreeDepth,
			AverageClosestGeometryDistance: b.Record.AverageClosestGeometryDistance,
			Voxels:                         b.Voxels,
		})
	}
}

// Order bricks by tree depth and then by indirection texture position so the
// layout does not depend on task completion order.
func (v *VolumetricLightmap) Finalize() {
	sort.Slice(v.Bricks, func(i, j int) bool {
		a, b := &v.Bricks[i], &v.Bricks[j]
		if a.TreeDepth != b.TreeDepth {
			return a.TreeDepth < b.TreeDepth
		}
		for k := 2; k >= 0; k-- {
			if a.IndirectionTexturePosition[k] != b.IndirectionTexturePosition[k] {
				return a.IndirectionTexturePosition[k] < b.IndirectionTexturePosition[k]
			}
		}
		return false
	})
}

func (v *VolumetricLightmap) NumVoxels() int {
	var n int
	for i := range v.Bricks {
		n += len(v.Bricks[i].Voxels)
	}
	return n
}
