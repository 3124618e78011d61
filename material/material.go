// Package material describes the material state that feeds the static
// lighting build and generates the sample buffers exported for each material.
package material

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/types"
)

var ErrUnknownBlendMode = errors.New("material: unknown blend mode")

type BlendMode uint32

const (
	Opaque BlendMode = iota
	Masked
	Translucent
	Additive
	Modulate
)

var blendModeNames = []string{"opaque", "masked", "translucent", "additive", "modulate"}

func (b BlendMode) String() string {
	if int(b) < len(blendModeNames) {
		return blendModeNames[b]
	}
	return fmt.Sprintf("BlendMode(%d)", uint32(b))
}

// Parse a blend mode name. An empty name selects Opaque.
func ParseBlendMode(name string) (BlendMode, error) {
	if name == "" {
		return Opaque, nil
	}
	for index, n := range blendModeNames {
		if strings.EqualFold(n, name) {
			return BlendMode(index), nil
		}
	}
	return Opaque, fmt.Errorf("%w: %q", ErrUnknownBlendMode, name)
}

// Lighting relevant material properties.
type Property int

const (
	Diffuse       Property = protocol.SampleDiffuse
	Emissive      Property = protocol.SampleEmissive
	Transmission  Property = protocol.SampleTransmission
	Normal        Property = protocol.SampleNormal
	NumProperties          = protocol.NumSampleProperties
)

var propertyNames = [NumProperties]string{"diffuse", "emissive", "transmission", "normal"}

func (p Property) String() string {
	return propertyNames[p]
}

// An Input is a constant value optionally modulated by a texture. Inputs
// without a texture evaluate to the same value everywhere.
type Input struct {
	Constant types.Vec4
	Texture  image.Image
}

func (in Input) IsUniform() bool {
	return in.Texture == nil
}

type Material struct {
	Name string
	Guid types.GUID

	// Identifies the lighting relevant state of this material. Materials
	// whose chains share the same lighting GUIDs export the same payload.
	LightingGuid types.GUID

	// Optional parent this material inherits from.
	Parent *Material

	BlendMode            BlendMode
	TwoSided             bool
	CastShadowAsMasked   bool
	OpacityMaskClipValue float32
	EmissiveBoost        float32
	DiffuseBoost         float32

	Inputs [NumProperties]Input
}

// Create a material with default inputs.
func New(name string, guid types.GUID) *Material {
	m := &Material{
		Name:                 name,
		Guid:                 guid,
		LightingGuid:         guid,
		OpacityMaskClipValue: 0.3333,
		EmissiveBoost:        1,
		DiffuseBoost:         1,
	}
	m.Inputs[Diffuse].Constant = types.Vec4{0.5, 0.5, 0.5, 1}
	m.Inputs[Emissive].Constant = types.Vec4{0, 0, 0, 1}
	m.Inputs[Transmission].Constant = types.Vec4{1, 1, 1, 1}
	m.Inputs[Normal].Constant = types.Vec4{0, 0, 1, 1}
	return m
}

// Collect the lighting GUIDs of this material and all of its parents.
func (m *Material) LightingGuidChain() []types.GUID {
	var chain []types.GUID
	for cur, depth := m, 0; cur != nil; cur, depth = cur.Parent, depth+1 {
		if depth > maxChainDepth {
			break
		}
		guid := cur.LightingGuid
		if !guid.IsValid() {
			guid = cur.Guid
		}
		chain = append(chain, guid)
	}
	return chain
}

const maxChainDepth = 64

// Compute the content hash used to deduplicate exported materials. The unwrap
// mesh GUID is folded in when the material is rasterized against a specific
// mesh.
func Hash(m *Material, unwrapMesh types.GUID) types.SHAHash {
	chain := m.LightingGuidChain()
	if unwrapMesh.IsValid() {
		chain = append(chain, unwrapMesh)
	}
	return types.HashGUIDs(chain)
}

var exportedProperties = map[BlendMode][NumProperties]bool{
	Opaque:      {Diffuse: true, Emissive: true, Normal: true},
	Masked:      {Diffuse: true, Emissive: true, Transmission: true, Normal: true},
	Translucent: {Emissive: true, Transmission: true},
	Additive:    {Emissive: true, Transmission: true},
	Modulate:    {Emissive: true, Transmission: true},
}

// Get the properties that carry meaningful data for a blend mode.
func ExportedProperties(b BlendMode) [NumProperties]bool {
	return exportedProperties[b]
}
