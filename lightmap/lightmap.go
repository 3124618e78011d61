// Package lightmap implements the quantized lightmap and shadow map payloads
// produced by lighting workers, along with the volume lighting sample data
// imported per level.
package lightmap

import (
	"errors"
	"unsafe"

	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/types"
	"github.com/chewxy/math32"
)

var ErrSizeMismatch = errors.New("lightmap: payload size does not match dimensions")

const NumCoefficients = protocol.NumStoredLightmapCoefficients

// A quantized lightmap texel.
type Texel struct {
	Coverage       uint8
	Coefficients   [NumCoefficients][4]uint8
	SkyOcclusion   [4]uint8
	AOMaterialMask uint8
}

// TexelSize is the encoded size of a Texel in bytes.
const TexelSize = int(unsafe.Sizeof(Texel{}))

// Quantized lightmap data for a single mapping.
type LightMap struct {
	SizeX, SizeY    int
	Scale           [NumCoefficients]types.Vec4
	Add             [NumCoefficients]types.Vec4
	HasSkyShadowing bool
	Texels          []Texel
}

// Count texels not covered by any geometry.
func (lm *LightMap) UnmappedTexels() int {
	var n int
	for i := range lm.Texels {
		if lm.Texels[i].Coverage == 0 {
			n++
		}
	}
	return n
}

// A quantized signed distance field shadow texel.
type ShadowTexel struct {
	Distance     uint8
	PenumbraSize uint8
	Coverage     uint8
}

const ShadowTexelSize = int(unsafe.Sizeof(ShadowTexel{}))

// Distance field shadow map for one light affecting a mapping.
type ShadowMap struct {
	LightGuid    types.GUID
	SizeX, SizeY int
	Texels       []ShadowTexel
}

// Unquantized lighting for a single texel.
type Sample struct {
	// Coverage in [0, 1]. Zero marks texels not covered by any geometry.
	Coverage       float32
	Coefficients   [NumCoefficients]types.Vec4
	SkyOcclusion   types.Vec3
	AOMaterialMask float32
}

// Quantize lighting samples into a lightmap. Each coefficient channel is
// mapped onto [0, 255] using a per channel scale and offset derived from the
// covered samples.
func Quantize(sizeX, sizeY int, samples []Sample) (*LightMap, error) {
	if len(samples) != sizeX*sizeY {
		return nil, ErrSizeMismatch
	}

	lm := &LightMap{SizeX: sizeX, SizeY: sizeY, Texels: make([]Texel, len(samples))}
	for c := 0; c < NumCoefficients; c++ {
		for ch := 0; ch < 4; ch++ {
			min, max := float32(math32.MaxFloat32), float32(-math32.MaxFloat32)
			for i := range samples {
				if samples[i].Coverage <= 0 {
					continue
				}
				v := samples[i].Coefficients[c][ch]
				min = math32.Min(min, v)
				max = math32.Max(max, v)
			}
			if min > max {
				min, max = 0, 0
			}
			scale := max - min
			lm.Add[c][ch] = min
			lm.Scale[c][ch] = scale
			for i := range samples {
				if samples[i].Coverage <= 0 || scale == 0 {
					continue
				}
				lm.Texels[i].Coefficients[c][ch] = quantizeUnit((samples[i].Coefficients[c][ch] - min) / scale)
			}
		}
	}

	for i := range samples {
		s := &samples[i]
		t := &lm.Texels[i]
		t.Coverage = quantizeUnit(s.Coverage)
		if s.Coverage <= 0 {
			continue
		}
		for ch := 0; ch < 3; ch++ {
			t.SkyOcclusion[ch] = quantizeUnit(s.SkyOcclusion[ch])
		}
		t.AOMaterialMask = quantizeUnit(s.AOMaterialMask)
	}
	return lm, nil
}

// Reconstruct the lighting coefficients for a texel.
func (lm *LightMap) Dequantize(x, y int) [NumCoefficients]types.Vec4 {
	var out [NumCoefficients]types.Vec4
	t := &lm.Texels[y*lm.SizeX+x]
	for c := 0; c < NumCoefficients; c++ {
		for ch := 0; ch < 4; ch++ {
			out[c][ch] = float32(t.Coefficients[c][ch])/255*lm.Scale[c][ch] + lm.Add[c][ch]
		}
	}
	return out
}

func quantizeUnit(v float32) uint8 {
	v = math32.Max(0, math32.Min(1, v))
	return uint8(math32.Round(v * 255))
}
