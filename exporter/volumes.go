package exporter

import (
	"fmt"

	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/types"
)

// Enumerate the volumetric lightmap tasks for a scene. Each top level brick
// is split into SubtasksPerBrick tasks. No tasks are generated unless the
// volumetric lightmap method is selected.
func VolumetricLightmapTasks(sc *scene.Scene, cfg config.Volume) []protocol.VolumetricLightmapTaskRecord {
	if cfg.Method != config.VolumetricLightmap {
		return nil
	}
	dims := sc.VolumetricLightmapBricks(cfg.BrickSize)
	numBricks := dims[0] * dims[1] * dims[2]
	if numBricks == 0 {
		return nil
	}

	origin := sc.VolumetricLightmapBounds().Min
	brickWorldSize := sc.VolumetricLightmap.DetailCellSize * float32(cfg.BrickSize)
	tasks := make([]protocol.VolumetricLightmapTaskRecord, 0, numBricks*cfg.SubtasksPerBrick)
	for brick := 0; brick < numBricks; brick++ {
		x := brick % dims[0]
		y := (brick / dims[0]) % dims[1]
		z := brick / (dims[0] * dims[1])
		min := origin.Add(types.XYZ(float32(x), float32(y), float32(z)).Mul(brickWorldSize))
		bounds := types.BBox{Min: min, Max: min.Add(types.XYZ(brickWorldSize, brickWorldSize, brickWorldSize))}

		for sub := 0; sub < cfg.SubtasksPerBrick; sub++ {
			tasks = append(tasks, protocol.VolumetricLightmapTaskRecord{
				Guid:         types.DeriveGUID(sc.Guid, fmt.Sprintf("volumetric-lightmap-%d-%d", brick, sub)),
				Bounds:       bounds,
				BrickIndex:   int32(brick),
				SubTaskIndex: int32(sub),
				NumSubTasks:  int32(cfg.SubtasksPerBrick),
			})
		}
	}
	return tasks
}
