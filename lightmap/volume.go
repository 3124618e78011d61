package lightmap

import (
	"sort"

	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/types"
	"github.com/chewxy/math32"
)

// Order 2 spherical harmonic coefficients for one color channel.
type SHVector [protocol.NumSHCoefficients]float32

type SHVectorRGB struct {
	R, G, B SHVector
}

// SH basis constants for bands 0 and 1.
const (
	shBand0 = 0.282095
	shBand1 = 0.488603
)

func shBasis(dir types.Vec3) SHVector {
	return SHVector{shBand0, shBand1 * dir[1], shBand1 * dir[2], shBand1 * dir[0]}
}

func (v SHVector) Dot(o SHVector) float32 {
	var sum float32
	for i := range v {
		sum += v[i] * o[i]
	}
	return sum
}

// Evaluate the radiance arriving from dir.
func (sh SHVectorRGB) Evaluate(dir types.Vec3) types.Vec3 {
	basis := shBasis(dir.Normalize())
	return types.Vec3{
		math32.Max(0, sh.R.Dot(basis)),
		math32.Max(0, sh.G.Dot(basis)),
		math32.Max(0, sh.B.Dot(basis)),
	}
}

// Get the average (band 0) intensity of each channel.
func (sh SHVectorRGB) Ambient() types.Vec3 {
	return types.Vec3{sh.R[0] * shBand0, sh.G[0] * shBand0, sh.B[0] * shBand0}
}

func (sh SHVectorRGB) add(o SHVectorRGB, w float32) SHVectorRGB {
	for i := range sh.R {
		sh.R[i] += o.R[i] * w
		sh.G[i] += o.G[i] * w
		sh.B[i] += o.B[i] * w
	}
	return sh
}

func (sh SHVectorRGB) scale(s float32) SHVectorRGB {
	return SHVectorRGB{}.add(sh, s)
}

// A volume lighting sample used to light dynamic objects.
type VolumeLightingSample struct {
	Position                  types.Vec3
	Radius                    float32
	HighQuality               SHVectorRGB
	LowQuality                SHVectorRGB
	SkyBentNormal             types.Vec3
	DirectionalLightShadowing uint8
}

// Convert a raw sample produced by a worker.
func ConvertVolumeSample(rec *protocol.VolumeSampleRecord) VolumeLightingSample {
	s := VolumeLightingSample{
		Position:                  rec.PositionAndRadius.Vec3(),
		Radius:                    rec.PositionAndRadius[3],
		SkyBentNormal:             rec.SkyBentNormal,
		DirectionalLightShadowing: quantizeUnit(rec.DirectionalLightShadowing),
	}
	for i := 0; i < protocol.NumSHCoefficients; i++ {
		hq := rec.HighQualityCoefficients[i]
		lq := rec.LowQualityCoefficients[i]
		s.HighQuality.R[i], s.HighQuality.G[i], s.HighQuality.B[i] = hq[0], hq[1], hq[2]
		s.LowQuality.R[i], s.LowQuality.G[i], s.LowQuality.B[i] = lq[0], lq[1], lq[2]
	}
	return s
}

// VolumeSampleSet accumulates the volume samples of a level. Samples may be
// added in any order; Finalize sorts them and computes their bounds.
type VolumeSampleSet struct {
	samples   []VolumeLightingSample
	bounds    types.BBox
	finalized bool
}

func (s *VolumeSampleSet) Add(sample VolumeLightingSample) {
	s.samples = append(s.samples, sample)
	s.finalized = false
}

func (s *VolumeSampleSet) Len() int {
	return len(s.samples)
}

func (s *VolumeSampleSet) Samples() []VolumeLightingSample {
	return s.samples
}

func (s *VolumeSampleSet) Bounds() types.BBox {
	return s.bounds
}

func (s *VolumeSampleSet) IsFinalized() bool {
	return s.finalized
}

// Sort samples by position and compute the set bounds.
func (s *VolumeSampleSet) Finalize() {
	sort.Slice(s.samples, func(i, j int) bool {
		a, b := s.samples[i].Position, s.samples[j].Position
		if a[2] != b[2] {
			return a[2] < b[2]
		}
		if a[1] != b[1] {
			return a[1] < b[1]
		}
		return a[0] < b[0]
	})

	s.bounds = types.EmptyBBox()
	for i := range s.samples {
		r := s.samples[i].Radius
		ext := types.Vec3{r, r, r}
		s.bounds = s.bounds.Expand(s.samples[i].Position.Sub(ext))
		s.bounds = s.bounds.Expand(s.samples[i].Position.Add(ext))
	}
	s.finalized = true
}

// Interpolate the high quality lighting at a position by weighting every
// sample whose radius covers it by inverse distance. If no sample covers the
// position, the nearest sample is used.
func (s *VolumeSampleSet) Interpolate(pos types.Vec3) (SHVectorRGB, bool) {
	var (
		out         SHVectorRGB
		totalWeight float32
		nearest     = -1
		nearestDist = float32(math32.MaxFloat32)
	)
	for i := range s.samples {
		d := s.samples[i].Position.Sub(pos).Len()
		if d < 1e-3 {
			return s.samples[i].HighQuality, true
		}
		if d < nearestDist {
			nearest, nearestDist = i, d
		}
		if d > s.samples[i].Radius {
			continue
		}
		w := 1 / d
		out = out.add(s.samples[i].HighQuality, w)
		totalWeight += w
	}

	if totalWeight > 0 {
		return out.scale(1 / totalWeight), true
	}
	if nearest < 0 {
		return SHVectorRGB{}, false
	}
	return s.samples[nearest].HighQuality, true
}
