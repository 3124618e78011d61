package scene

import (
	"fmt"

	"github.com/achilleasa/lightmass/types"
	"github.com/chewxy/math32"
)

type LightKind uint8

const (
	DirectionalLightKind LightKind = iota
	PointLightKind
	SpotLightKind
	SkyLightKind
)

func (k LightKind) String() string {
	switch k {
	case DirectionalLightKind:
		return "directional"
	case PointLightKind:
		return "point"
	case SpotLightKind:
		return "spot"
	case SkyLightKind:
		return "sky"
	}
	return fmt.Sprintf("LightKind(%d)", uint8(k))
}

// Light is implemented by all light kinds.
type Light interface {
	Base() *LightBase
	Kind() LightKind
}

// Properties shared by all lights.
type LightBase struct {
	Guid      types.GUID
	LevelGuid types.GUID
	Name      string

	Color                      types.Vec3
	Brightness                 float32
	IndirectLightingScale      float32
	IndirectLightingSaturation float32
	ShadowExponent             float32
	LightSourceRadius          float32
	LightSourceLength          float32

	CastShadows        bool
	CastStaticShadows  bool
	HasStaticLighting  bool
	HasStaticShadowing bool

	// Imported static shadow depth map.
	ShadowDepthMap *ShadowDepthMap
}

func (l *LightBase) Base() *LightBase {
	return l
}

// Stationary lights (static shadowing without static lighting) need a baked
// shadow depth map for dynamic objects.
func (l *LightBase) NeedsStaticShadowDepthMap() bool {
	return l.HasStaticShadowing && !l.HasStaticLighting
}

func newLightBase(guid types.GUID) LightBase {
	return LightBase{
		Guid:                       guid,
		Color:                      types.Vec3{1, 1, 1},
		Brightness:                 1,
		IndirectLightingScale:      1,
		IndirectLightingSaturation: 1,
		ShadowExponent:             2,
		CastShadows:                true,
		CastStaticShadows:          true,
		HasStaticLighting:          true,
		HasStaticShadowing:         true,
	}
}

type DirectionalLight struct {
	LightBase
	Direction        types.Vec3
	LightSourceAngle float32
}

func NewDirectionalLight(guid types.GUID, direction types.Vec3) *DirectionalLight {
	return &DirectionalLight{
		LightBase:        newLightBase(guid),
		Direction:        direction.Normalize(),
		LightSourceAngle: 1,
	}
}

func (l *DirectionalLight) Kind() LightKind {
	return DirectionalLightKind
}

type PointLight struct {
	LightBase
	Position                 types.Vec3
	Radius                   float32
	FalloffExponent          float32
	UseInverseSquaredFalloff bool
}

func NewPointLight(guid types.GUID, position types.Vec3, radius float32) *PointLight {
	return &PointLight{
		LightBase:                newLightBase(guid),
		Position:                 position,
		Radius:                   radius,
		FalloffExponent:          8,
		UseInverseSquaredFalloff: true,
	}
}

func (l *PointLight) Kind() LightKind {
	return PointLightKind
}

type SpotLight struct {
	PointLight
	Direction types.Vec3

	// Cone angles in degrees.
	InnerConeAngle float32
	OuterConeAngle float32
}

func NewSpotLight(guid types.GUID, position, direction types.Vec3, radius float32) *SpotLight {
	return &SpotLight{
		PointLight:     *NewPointLight(guid, position, radius),
		Direction:      direction.Normalize(),
		InnerConeAngle: 0,
		OuterConeAngle: 44,
	}
}

func (l *SpotLight) Kind() LightKind {
	return SpotLightKind
}

// Get the cosine of the outer cone half angle.
func (l *SpotLight) CosOuterCone() float32 {
	return math32.Cos(l.OuterConeAngle * math32.Pi / 180)
}

type SkyLight struct {
	LightBase
	LowerHemisphereIsBlack bool
	LowerHemisphereColor   types.Vec3

	// Order 2 irradiance SH coefficients per color channel.
	IrradianceSH [3]types.Vec4

	// Cube map radiance; RadianceMapSize^2 texels per face.
	RadianceMapSize int
	RadianceMap     []types.Vec4
}

func NewSkyLight(guid types.GUID, color types.Vec3) *SkyLight {
	l := &SkyLight{
		LightBase:              newLightBase(guid),
		LowerHemisphereIsBlack: true,
	}
	l.Color = color
	// Constant radiance only populates band 0.
	for ch := 0; ch < 3; ch++ {
		l.IrradianceSH[ch][0] = color[ch] * 3.544908
	}
	return l
}

func (l *SkyLight) Kind() LightKind {
	return SkyLightKind
}

// A static shadow depth map generated for a stationary light.
type ShadowDepthMap struct {
	WorldToLight types.Mat4
	SizeX, SizeY int
	Depths       []float32
}

// Get the depth sample at a texel.
func (m *ShadowDepthMap) Depth(x, y int) float32 {
	return m.Depths[y*m.SizeX+x]
}
