package preview

import (
	"fmt"
	"io"
	"time"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/lightmap"
	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/types"
	"github.com/achilleasa/lightmass/visibility"
	"github.com/chewxy/math32"
	"github.com/x448/float16"
)

const (
	// Upper bound for the number of visibility cells generated for a scene.
	maxVisibilityCells = 1 << 16

	distanceFieldSize  = 8
	shadowDepthMapSize = 16
	volumeSampleGrid   = 4
)

type resultWriter struct {
	store channel.Store
	scene *sceneData
}

// Result channels are never compressed.
func (r *resultWriter) writeChannel(name string, writeFn func(io.Writer) error) error {
	ch, err := r.store.Open(name, channel.Write)
	if err != nil {
		return err
	}
	if err = writeFn(ch); err != nil {
		ch.Abort()
		return err
	}
	return ch.Close()
}

func (r *resultWriter) ambient() types.Vec3 {
	s := r.scene.file.Header.Settings
	return s.EnvironmentColor.Mul(s.EnvironmentIntensity)
}

// The union of the importance volumes.
func (r *resultWriter) importanceBounds() types.BBox {
	b := types.EmptyBBox()
	for _, v := range r.scene.file.ImportanceVolumes {
		b = b.Union(v)
	}
	return b
}

// Unshadowed light reaching a point from a statically lit light.
func (r *resultWriter) incidentLight(l *protocol.LightRecord, p types.Vec3) types.Vec3 {
	radiance := l.Color.Mul(l.Brightness)
	if l.Position[3] == 0 {
		return radiance
	}
	radius := r.scene.radii[l.Guid]
	if radius <= 0 {
		return types.Vec3{}
	}
	falloff := math32.Max(0, 1-l.Position.Vec3().Sub(p).Len()/radius)
	return radiance.Mul(falloff * falloff)
}

func (r *resultWriter) writeMapping(mapping protocol.TextureMappingRecord) error {
	start := time.Now()
	mesh := r.scene.meshes[mapping.MeshGuid]
	if mesh == nil {
		return fmt.Errorf("%w: mesh %s", ErrUnknownTask, mapping.MeshGuid)
	}

	center := mesh.Record.Bounds.Center()
	var direct types.Vec3
	var shadowMaps []*lightmap.ShadowMap
	numTexels := int(mapping.SizeX * mapping.SizeY)
	for _, guid := range mesh.RelevantLights {
		l := r.scene.lights[guid]
		if l == nil {
			continue
		}
		switch {
		case l.Flags&protocol.LightHasStaticLighting != 0:
			direct = direct.Add(r.incidentLight(l, center))
		case l.Flags&protocol.LightHasStaticShadowing != 0:
			sm := &lightmap.ShadowMap{
				LightGuid: guid,
				SizeX:     int(mapping.SizeX),
				SizeY:     int(mapping.SizeY),
				Texels:    make([]lightmap.ShadowTexel, numTexels),
			}
			for i := range sm.Texels {
				sm.Texels[i] = lightmap.ShadowTexel{Distance: 255, PenumbraSize: 255, Coverage: 255}
			}
			shadowMaps = append(shadowMaps, sm)
		}
	}

	total := direct.Add(r.ambient())
	samples := make([]lightmap.Sample, numTexels)
	for i := range samples {
		samples[i].Coverage = 1
		samples[i].Coefficients[0] = total.Vec4(1)
		samples[i].Coefficients[1] = direct.Vec4(0)
		samples[i].SkyOcclusion = types.XYZ(1, 1, 1)
	}
	lm, err := lightmap.Quantize(int(mapping.SizeX), int(mapping.SizeY), samples)
	if err != nil {
		return err
	}

	result := &lightmap.MappingResult{
		Guid:          mapping.Guid,
		ExecutionTime: time.Since(start),
		LightMap:      lm,
		ShadowMaps:    shadowMaps,
	}
	return r.writeChannel(protocol.TextureMappingChannel(mapping.Guid), func(w io.Writer) error {
		enc := channel.NewEncoder(w)
		lightmap.WriteMappingResults(enc, []*lightmap.MappingResult{result}, lightmap.DefaultCompressionThreshold)
		return enc.Err()
	})
}

// Cover the visibility volumes with a single layer of cells and mark every
// mesh visible from every cell. Cells are distributed round robin across the
// visibility buckets.
func (r *resultWriter) writeVisibilityBucket(bucketGuid types.GUID) error {
	f := r.scene.file
	bucket := r.scene.bucketIndex[bucketGuid]
	numBuckets := len(f.VisibilityBucketGuids)

	bounds := types.EmptyBBox()
	for _, v := range f.VisibilityVolumes {
		bounds = bounds.Union(v)
	}
	if bounds.IsEmpty() {
		bounds = r.importanceBounds()
	}

	var cells []visibility.Cell
	if !bounds.IsEmpty() {
		cellSize := f.Header.Settings.VisibilityCellSize
		if cellSize <= 0 {
			return fmt.Errorf("invalid visibility cell size %f", cellSize)
		}
		size := bounds.Max.Sub(bounds.Min)
		nx := int(math32.Max(1, math32.Ceil(size[0]/cellSize)))
		ny := int(math32.Max(1, math32.Ceil(size[1]/cellSize)))
		if nx*ny > maxVisibilityCells {
			return fmt.Errorf("visibility volume needs %d cells; at most %d are supported", nx*ny, maxVisibilityCells)
		}

		bits := r.allVisibleBits()
		height := f.Header.Settings.PlayAreaHeight
		for index := bucket; index < nx*ny; index += numBuckets {
			x, y := index%nx, index/nx
			min := types.XYZ(bounds.Min[0]+float32(x)*cellSize, bounds.Min[1]+float32(y)*cellSize, bounds.Min[2])
			cells = append(cells, visibility.Cell{
				Bounds: types.BBox{Min: min, Max: min.Add(types.XYZ(cellSize, cellSize, height))},
				Bits:   append([]byte(nil), bits...),
			})
		}
	}

	return r.writeChannel(protocol.VisibilityChannel(bucketGuid), func(w io.Writer) error {
		return visibility.WriteBucket(w, cells)
	})
}

func (r *resultWriter) allVisibleBits() []byte {
	maxId := -1
	for _, m := range r.scene.meshes {
		if id := int(m.Record.VisibilityId); id > maxId {
			maxId = id
		}
	}
	bits := make([]byte, visibility.BitsetLen(maxId+1))
	for _, m := range r.scene.meshes {
		if m.Record.VisibilityId >= 0 {
			visibility.SetBit(bits, int(m.Record.VisibilityId))
		}
	}
	return bits
}

// Light reaching every point of the scene regardless of position.
func (r *resultWriter) globalLight() types.Vec3 {
	total := r.ambient()
	f := r.scene.file
	for i := range f.DirectionalLights {
		if l := &f.DirectionalLights[i].Light; l.Flags&protocol.LightHasStaticLighting != 0 {
			total = total.Add(l.Color.Mul(l.Brightness))
		}
	}
	for i := range f.SkyLights {
		if l := &f.SkyLights[i].Light; l.Flags&protocol.LightHasStaticLighting != 0 {
			total = total.Add(l.Color.Mul(l.Brightness))
		}
	}
	return total
}

// Only the first sub task of a brick emits the brick; the remaining sub
// tasks publish empty channels.
func (r *resultWriter) writeVolumetricLightmap(task protocol.VolumetricLightmapTaskRecord) error {
	var bricks []protocol.VolumetricLightmapBrick
	brickSize := int(r.scene.file.Header.Settings.VolumetricLightmapBrickSize)
	if task.SubTaskIndex == 0 && brickSize > 0 {
		origin := task.Bounds.Min
		for _, t := range r.scene.vlmTasks {
			origin = types.MinVec3(origin, t.Bounds.Min)
		}
		brickExtent := task.Bounds.Max.Sub(task.Bounds.Min)

		var pos [3]int32
		for i := range pos {
			if brickExtent[i] > 0 {
				pos[i] = int32(math32.Round((task.Bounds.Min[i]-origin[i])/brickExtent[i])) * int32(brickSize)
			}
		}

		light := r.globalLight()
		voxel := protocol.VolumetricLightmapVoxelRecord{
			AmbientVector:             light,
			SkyBentNormal:             types.XYZ(0, 0, 1),
			DirectionalLightShadowing: 255,
		}
		voxel.SHCoefficients[0] = light.Vec4(0)
		voxels := make([]protocol.VolumetricLightmapVoxelRecord, brickSize*brickSize*brickSize)
		for i := range voxels {
			voxels[i] = voxel
		}
		bricks = append(bricks, protocol.VolumetricLightmapBrick{
			Record: protocol.VolumetricLightmapBrickRecord{
				IndirectionTexturePosition:     pos,
				AverageClosestGeometryDistance: brickExtent.Len(),
			},
			Voxels: voxels,
		})
	}

	return r.writeChannel(protocol.VolumetricLightmapChannel(task.Guid), func(w io.Writer) error {
		return protocol.WriteVolumetricLightmapBricks(w, bricks)
	})
}

// Place a regular grid of samples inside the importance volumes. Samples are
// stored in the persistent level.
func (r *resultWriter) writeVolumeSamples() error {
	f := r.scene.file
	bounds := r.importanceBounds()
	out := &protocol.VolumeSamplesFile{}
	if !bounds.IsEmpty() {
		out.Header.VolumeCenter = bounds.Center().Vec4(0)
		out.Header.VolumeExtent = bounds.Extent().Vec4(0)
	}

	light := r.globalLight()
	for _, level := range f.Levels {
		entry := protocol.LevelVolumeSamples{LevelGuid: level.Guid}
		if level.Flags&protocol.LevelPersistent != 0 && !bounds.IsEmpty() {
			step := bounds.Max.Sub(bounds.Min).Mul(1.0 / volumeSampleGrid)
			radius := step.Len() / 2
			for z := 0; z < volumeSampleGrid; z++ {
				for y := 0; y < volumeSampleGrid; y++ {
					for x := 0; x < volumeSampleGrid; x++ {
						cell := types.XYZ(float32(x)+0.5, float32(y)+0.5, float32(z)+0.5)
						pos := bounds.Min.Add(types.XYZ(cell[0]*step[0], cell[1]*step[1], cell[2]*step[2]))
						sample := protocol.VolumeSampleRecord{
							PositionAndRadius:         pos.Vec4(radius),
							SkyBentNormal:             types.XYZ(0, 0, 1),
							DirectionalLightShadowing: 1,
						}
						sample.HighQualityCoefficients[0] = light
						sample.LowQualityCoefficients[0] = light
						entry.Samples = append(entry.Samples, sample)
					}
				}
			}
		}
		out.Levels = append(out.Levels, entry)
	}

	return r.writeChannel(protocol.VolumeSamplesChannel(), func(w io.Writer) error {
		return protocol.WriteVolumeSamples(w, out)
	})
}

// Spawn an area light for every emissive material element that contributes
// to static lighting.
func (r *resultWriter) writeMeshAreaLights() error {
	var lights []protocol.MeshAreaLightRecord
	emissive := make(map[types.SHAHash]types.Vec3)
	for _, mesh := range r.scene.sortedMeshes() {
		for _, el := range mesh.Elements {
			if !el.UseEmissiveForStaticLighting {
				continue
			}
			color, exists := emissive[el.MaterialHash]
			if !exists {
				var err error
				if color, err = r.averageEmissive(el.MaterialHash); err != nil {
					return err
				}
				emissive[el.MaterialHash] = color
			}
			if color.MaxComponent() <= 0 {
				continue
			}
			bounds := mesh.Record.Bounds
			lights = append(lights, protocol.MeshAreaLightRecord{
				LevelGuid:       mesh.Record.LevelGuid,
				Position:        bounds.Center(),
				Direction:       types.XYZ(0, 0, -1),
				Radius:          bounds.Extent().Len(),
				ConeAngle:       math32.Pi,
				Color:           color,
				Brightness:      el.EmissiveBoost,
				FalloffExponent: el.EmissiveLightFalloffExponent,
			})
		}
	}

	return r.writeChannel(protocol.MeshAreaLightChannel(), func(w io.Writer) error {
		return protocol.WriteMeshAreaLights(w, lights)
	})
}

func (r *resultWriter) averageEmissive(hash types.SHAHash) (types.Vec3, error) {
	ch, err := r.store.Open(protocol.MaterialChannel(hash), channel.Read)
	if err != nil {
		return types.Vec3{}, err
	}
	defer ch.Close()

	f, err := protocol.ReadMaterial(ch)
	if err != nil {
		return types.Vec3{}, err
	}
	samples := f.Samples[protocol.SampleEmissive]
	if len(samples) == 0 {
		return types.Vec3{}, nil
	}
	var sum types.Vec3
	for _, s := range samples {
		sum = sum.Add(material.FromHalf(s).Vec3())
	}
	return sum.Mul(1 / float32(len(samples))), nil
}

// Store the distance from each voxel to the closest mesh bounds.
func (r *resultWriter) writeDistanceField() error {
	out := &protocol.VolumeDistanceFieldFile{}
	bounds := r.importanceBounds()
	if !bounds.IsEmpty() {
		size := bounds.Max.Sub(bounds.Min)
		maxDistance := size.Len()
		out.Header = protocol.VolumeDistanceFieldHeader{
			SizeX:       distanceFieldSize,
			SizeY:       distanceFieldSize,
			SizeZ:       distanceFieldSize,
			Bounds:      bounds,
			MaxDistance: maxDistance,
		}
		out.Distances = make([]uint8, distanceFieldSize*distanceFieldSize*distanceFieldSize)
		step := size.Mul(1.0 / distanceFieldSize)
		meshes := r.scene.sortedMeshes()
		for z := 0; z < distanceFieldSize; z++ {
			for y := 0; y < distanceFieldSize; y++ {
				for x := 0; x < distanceFieldSize; x++ {
					p := bounds.Min.Add(types.XYZ((float32(x)+0.5)*step[0], (float32(y)+0.5)*step[1], (float32(z)+0.5)*step[2]))
					d := maxDistance
					for _, m := range meshes {
						d = math32.Min(d, boxDistance(m.Record.Bounds, p))
					}
					out.Distances[(z*distanceFieldSize+y)*distanceFieldSize+x] = uint8(math32.Round(d / maxDistance * 255))
				}
			}
		}
	}

	return r.writeChannel(protocol.VolumeDistanceFieldChannel(), func(w io.Writer) error {
		return protocol.WriteVolumeDistanceField(w, out)
	})
}

func boxDistance(b types.BBox, p types.Vec3) float32 {
	var d types.Vec3
	for i := 0; i < 3; i++ {
		d[i] = math32.Max(0, math32.Max(b.Min[i]-p[i], p[i]-b.Max[i]))
	}
	return d.Len()
}

// Emit an unoccluded depth map for a stationary light.
func (r *resultWriter) writeShadowDepthMap(l *protocol.LightRecord) error {
	worldToLight := types.Ident4()
	if l.Position[3] != 0 {
		worldToLight = types.Translate4(l.Position.Vec3().Mul(-1))
	}
	depths := make([]uint16, shadowDepthMapSize*shadowDepthMapSize)
	far := float16.Fromfloat32(1).Bits()
	for i := range depths {
		depths[i] = far
	}
	out := &protocol.ShadowDepthMapFile{
		Header: protocol.ShadowDepthMapHeader{
			WorldToLight: worldToLight,
			SizeX:        shadowDepthMapSize,
			SizeY:        shadowDepthMapSize,
		},
		Depths: depths,
	}
	return r.writeChannel(protocol.StaticShadowDepthMapChannel(l.Guid), func(w io.Writer) error {
		return protocol.WriteShadowDepthMap(w, out)
	})
}
