package material

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/achilleasa/lightmass/types"
)

func TestHashUsesLightingChain(t *testing.T) {
	base := New("base", types.GUID{A: 1})
	instA := New("instA", types.GUID{A: 2})
	instA.LightingGuid = types.GUID{}
	instA.Parent = base
	instB := New("instB", types.GUID{A: 3})
	instB.LightingGuid = instA.Guid
	instB.Parent = base

	if Hash(instA, types.GUID{}) != Hash(instB, types.GUID{}) {
		t.Fatal("expected materials with the same lighting chain to share a hash")
	}
	if Hash(instA, types.GUID{}) == Hash(base, types.GUID{}) {
		t.Fatal("expected a different chain to produce a different hash")
	}
	if Hash(instA, types.GUID{}) == Hash(instA, types.GUID{A: 99}) {
		t.Fatal("expected the unwrap mesh to change the hash")
	}
}

func TestLightingGuidChainCycle(t *testing.T) {
	a := New("a", types.GUID{A: 1})
	b := New("b", types.GUID{A: 2})
	a.Parent = b
	b.Parent = a

	if got := len(a.LightingGuidChain()); got != maxChainDepth+1 {
		t.Fatalf("expected chain walk to stop at depth %d; got %d", maxChainDepth+1, got)
	}
}

func TestParseBlendMode(t *testing.T) {
	type spec struct {
		in     string
		exp    BlendMode
		expErr error
	}
	specs := []spec{
		{"", Opaque, nil},
		{"Masked", Masked, nil},
		{"modulate", Modulate, nil},
		{"glow", Opaque, ErrUnknownBlendMode},
	}
	for index, s := range specs {
		got, err := ParseBlendMode(s.in)
		if !errors.Is(err, s.expErr) {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.expErr, err)
		}
		if got != s.exp {
			t.Fatalf("[spec %d] expected %s; got %s", index, s.exp, got)
		}
	}
}

func TestGenerateSamplesBlendModes(t *testing.T) {
	sizes := [NumProperties]int{8, 8, 8, 8}

	type spec struct {
		mode BlendMode
		exp  [NumProperties]int
	}
	specs := []spec{
		{Opaque, [NumProperties]int{1, 1, 0, 1}},
		{Masked, [NumProperties]int{1, 1, 1, 1}},
		{Translucent, [NumProperties]int{0, 1, 1, 0}},
		{Additive, [NumProperties]int{0, 1, 1, 0}},
		{Modulate, [NumProperties]int{0, 1, 1, 0}},
	}

	for index, s := range specs {
		m := New("m", types.GUID{A: 1})
		m.BlendMode = s.mode
		samples := GenerateSamples(m, sizes, nil)
		if samples.Sizes != s.exp {
			t.Fatalf("[spec %d] expected sample sizes %v; got %v", index, s.exp, samples.Sizes)
		}
		for prop, size := range samples.Sizes {
			if len(samples.Data[prop]) != size*size {
				t.Fatalf("[spec %d] property %d: expected %d samples; got %d", index, prop, size*size, len(samples.Data[prop]))
			}
		}
	}
}

func TestGenerateSamplesTextured(t *testing.T) {
	tex := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			tex.SetNRGBA(x, y, color.NRGBA{255, 255, 255, 255})
		}
	}

	m := New("textured", types.GUID{A: 1})
	m.Inputs[Diffuse] = Input{Constant: types.Vec4{0.5, 0.25, 1, 1}, Texture: tex}

	samples := GenerateSamples(m, [NumProperties]int{16, 16, 16, 16}, nil)
	if samples.Sizes[Diffuse] != 16 {
		t.Fatalf("expected textured diffuse to be rendered at 16x16; got %d", samples.Sizes[Diffuse])
	}
	if samples.Sizes[Emissive] != 1 {
		t.Fatalf("expected uniform emissive to collapse to 1x1; got %d", samples.Sizes[Emissive])
	}

	got := FromHalf(samples.Data[Diffuse][5*16+5])
	exp := types.Vec4{0.5, 0.25, 1, 1}
	for i := range exp {
		if d := got[i] - exp[i]; d < -1e-3 || d > 1e-3 {
			t.Fatalf("expected tint times white texel %v; got %v", exp, got)
		}
	}
}

func TestGenerateSamplesUnwrapMask(t *testing.T) {
	mask := image.NewGray(image.Rect(0, 0, 2, 2))
	m := New("landscape", types.GUID{A: 1})
	m.BlendMode = Masked

	samples := GenerateSamples(m, [NumProperties]int{4, 4, 4, 4}, mask)
	if samples.Sizes[Transmission] != 4 {
		t.Fatalf("expected masked transmission to be rendered; got size %d", samples.Sizes[Transmission])
	}
	if got := FromHalf(samples.Data[Transmission][0]); got != (types.Vec4{}) {
		t.Fatalf("expected black mask to zero transmission; got %v", got)
	}
}

func TestCompiler(t *testing.T) {
	c := NewCompiler(context.Background(), 2)
	var hashes []types.SHAHash
	for i := uint32(0); i < 10; i++ {
		m := New("m", types.GUID{A: i + 1})
		hash := Hash(m, types.GUID{})
		hashes = append(hashes, hash)
		c.Submit(hash, m, [NumProperties]int{4, 4, 4, 4}, nil)
	}
	if err := c.Wait(); err != nil {
		t.Fatal(err)
	}

	for index, hash := range hashes {
		if c.Samples(hash) == nil {
			t.Fatalf("[material %d] expected samples to be generated", index)
		}
	}
	c.Release(hashes[0])
	if c.Samples(hashes[0]) != nil {
		t.Fatal("expected released samples to be dropped")
	}
}
