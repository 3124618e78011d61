package material

import (
	"image"
	"image/color"

	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/types"
	"github.com/x448/float16"
	"golang.org/x/image/draw"
)

// Sample buffers generated for one material.
type Samples struct {
	// Edge length per property; zero for properties that are not exported.
	Sizes [NumProperties]int
	Data  [NumProperties][]protocol.HalfRGBA
}

// Generate the sample buffers for a material. Properties are rendered at the
// requested sizes unless their input is uniform, in which case a single
// sample is emitted. The optional unwrap mask scales the transmission
// samples.
func GenerateSamples(m *Material, sizes [NumProperties]int, unwrapMask image.Image) *Samples {
	out := &Samples{}
	exported := ExportedProperties(m.BlendMode)
	for prop := Property(0); prop < NumProperties; prop++ {
		if !exported[prop] || sizes[prop] <= 0 {
			continue
		}

		in := m.Inputs[prop]
		if prop == Transmission && m.BlendMode == Modulate {
			in = combinedTransmission(m)
		}

		var mask image.Image
		if prop == Transmission {
			mask = unwrapMask
		}

		if in.IsUniform() && mask == nil {
			out.Sizes[prop] = 1
			out.Data[prop] = []protocol.HalfRGBA{toHalf(in.Constant)}
			continue
		}

		out.Sizes[prop] = sizes[prop]
		out.Data[prop] = render(in, mask, sizes[prop])
	}
	return out
}

// Modulated surfaces transmit the light filtered by their diffuse color.
func combinedTransmission(m *Material) Input {
	diffuse := m.Inputs[Diffuse]
	trans := m.Inputs[Transmission]
	in := Input{
		Constant: types.Vec4{
			diffuse.Constant[0] * trans.Constant[0],
			diffuse.Constant[1] * trans.Constant[1],
			diffuse.Constant[2] * trans.Constant[2],
			diffuse.Constant[3] * trans.Constant[3],
		},
		Texture: diffuse.Texture,
	}
	if in.Texture == nil {
		in.Texture = trans.Texture
	}
	return in
}

func render(in Input, mask image.Image, size int) []protocol.HalfRGBA {
	bounds := image.Rect(0, 0, size, size)
	var tex, maskTex *image.NRGBA64
	if in.Texture != nil {
		tex = resample(in.Texture, bounds)
	}
	if mask != nil {
		maskTex = resample(mask, bounds)
	}

	out := make([]protocol.HalfRGBA, size*size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			v := in.Constant
			if tex != nil {
				v = mulColor(v, tex.NRGBA64At(x, y))
			}
			if maskTex != nil {
				m := float32(maskTex.NRGBA64At(x, y).R) / 0xffff
				v = v.Mul(m)
			}
			out[y*size+x] = toHalf(v)
		}
	}
	return out
}

func resample(src image.Image, bounds image.Rectangle) *image.NRGBA64 {
	dst := image.NewNRGBA64(bounds)
	draw.BiLinear.Scale(dst, bounds, src, src.Bounds(), draw.Src, nil)
	return dst
}

func mulColor(v types.Vec4, c color.NRGBA64) types.Vec4 {
	return types.Vec4{
		v[0] * float32(c.R) / 0xffff,
		v[1] * float32(c.G) / 0xffff,
		v[2] * float32(c.B) / 0xffff,
		v[3] * float32(c.A) / 0xffff,
	}
}

func toHalf(v types.Vec4) protocol.HalfRGBA {
	return protocol.HalfRGBA{
		float16.Fromfloat32(v[0]).Bits(),
		float16.Fromfloat32(v[1]).Bits(),
		float16.Fromfloat32(v[2]).Bits(),
		float16.Fromfloat32(v[3]).Bits(),
	}
}

// Decode a half-float sample.
func FromHalf(h protocol.HalfRGBA) types.Vec4 {
	return types.Vec4{
		float16.Frombits(h[0]).Float32(),
		float16.Frombits(h[1]).Float32(),
		float16.Frombits(h[2]).Float32(),
		float16.Frombits(h[3]).Float32(),
	}
}

// Build the channel payload for a material and its generated samples.
func ToFile(m *Material, hash types.SHAHash, samples *Samples) *protocol.MaterialFile {
	f := &protocol.MaterialFile{
		Header: protocol.MaterialFileHeader{Hash: hash},
		Data: protocol.MaterialData{
			BlendMode:            uint32(m.BlendMode),
			TwoSided:             m.TwoSided,
			CastShadowAsMasked:   m.CastShadowAsMasked,
			EmissiveBoost:        m.EmissiveBoost,
			DiffuseBoost:         m.DiffuseBoost,
			OpacityMaskClipValue: m.OpacityMaskClipValue,
		},
	}
	for prop := range samples.Sizes {
		f.Data.SampleSizes[prop] = int32(samples.Sizes[prop])
		f.Samples[prop] = samples.Data[prop]
	}
	return f
}
