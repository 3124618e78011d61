package reader

import "github.com/achilleasa/lightmass/types"

// The yaml scene description. Entities reference each other by name; GUIDs
// are derived from the scene GUID and entity names so that re-reading an
// unchanged description yields the same GUIDs.
type sceneDescription struct {
	Guid     string              `yaml:"guid"`
	Name     string              `yaml:"name"`
	Settings settingsDescription `yaml:"settings"`

	Levels       []levelDescription     `yaml:"levels"`
	Materials    []materialDescription  `yaml:"materials"`
	Models       []modelDescription     `yaml:"models"`
	StaticMeshes []meshDescription      `yaml:"static_meshes"`
	BSP          []meshDescription      `yaml:"bsp"`
	Landscapes   []landscapeDescription `yaml:"landscapes"`
	Lights       []lightDescription     `yaml:"lights"`

	ImportanceVolumes              []boxDescription       `yaml:"importance_volumes"`
	CharacterIndirectDetailVolumes []boxDescription       `yaml:"character_indirect_detail_volumes"`
	VisibilityVolumes              []boxDescription       `yaml:"visibility_volumes"`
	Portals                        []transformDescription `yaml:"portals"`
}

type settingsDescription struct {
	IndirectBounces      *int        `yaml:"indirect_bounces"`
	IndirectQuality      *float32    `yaml:"indirect_quality"`
	IndirectSmoothness   *float32    `yaml:"indirect_smoothness"`
	EnvironmentColor     *types.Vec3 `yaml:"environment_color"`
	EnvironmentIntensity *float32    `yaml:"environment_intensity"`
	AmbientOcclusion     bool        `yaml:"ambient_occlusion"`

	VolumetricLightmapCellSize *float32        `yaml:"volumetric_lightmap_cell_size"`
	VolumetricLightmapBounds   *boxDescription `yaml:"volumetric_lightmap_bounds"`
}

type levelDescription struct {
	Name       string `yaml:"name"`
	Persistent bool   `yaml:"persistent"`
	Hidden     bool   `yaml:"hidden"`
}

type materialDescription struct {
	Name               string `yaml:"name"`
	Parent             string `yaml:"parent"`
	BlendMode          string `yaml:"blend_mode"`
	TwoSided           bool   `yaml:"two_sided"`
	CastShadowAsMasked bool   `yaml:"cast_shadow_as_masked"`

	OpacityMaskClipValue *float32 `yaml:"opacity_mask_clip_value"`
	EmissiveBoost        *float32 `yaml:"emissive_boost"`
	DiffuseBoost         *float32 `yaml:"diffuse_boost"`

	Diffuse             *types.Vec3 `yaml:"diffuse"`
	DiffuseTexture      string      `yaml:"diffuse_texture"`
	Emissive            *types.Vec3 `yaml:"emissive"`
	EmissiveTexture     string      `yaml:"emissive_texture"`
	Transmission        *types.Vec3 `yaml:"transmission"`
	TransmissionTexture string      `yaml:"transmission_texture"`
	NormalTexture       string      `yaml:"normal_texture"`
}

// A wavefront object file. Each object in the file becomes a model named
// after the object. When the file contains a single object and the entry
// has a name, the model takes the entry name instead.
type modelDescription struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
}

type transformDescription struct {
	Translate *types.Vec3 `yaml:"translate"`
	Rotate    *types.Vec3 `yaml:"rotate"`
	Scale     *types.Vec3 `yaml:"scale"`
}

// Build the M = T * R * S matrix. Rotation angles are in degrees.
func (t transformDescription) Mat4() types.Mat4 {
	translation, rotation, scale := types.Vec3{}, types.Vec3{}, types.Vec3{1, 1, 1}
	if t.Translate != nil {
		translation = *t.Translate
	}
	if t.Rotate != nil {
		rotation = *t.Rotate
	}
	if t.Scale != nil {
		scale = *t.Scale
	}
	return types.TRS(translation, rotation, scale)
}

type meshDescription struct {
	Transform transformDescription `yaml:",inline"`

	Name     string `yaml:"name"`
	Model    string `yaml:"model"`
	Level    string `yaml:"level"`
	Material string `yaml:"material"`
	TwoSided bool   `yaml:"two_sided"`
	NoShadow bool   `yaml:"no_shadow"`

	// Lightmap resolution; meshes without one get no mapping.
	Lightmap [2]int `yaml:"lightmap"`
}

type landscapeDescription struct {
	Transform transformDescription `yaml:",inline"`

	Name     string `yaml:"name"`
	Level    string `yaml:"level"`
	Material string `yaml:"material"`

	// Grayscale heightmap image. Flat landscapes specify a size and a
	// normalized height instead.
	Heightmap string  `yaml:"heightmap"`
	Size      [2]int  `yaml:"size"`
	Height    float32 `yaml:"height"`

	ComponentSizeQuads  int `yaml:"component_size_quads"`
	SubsectionSizeQuads int `yaml:"subsection_size_quads"`
	NumSubsections      int `yaml:"num_subsections"`
	ExpandQuads         int `yaml:"expand_quads"`

	Lightmap [2]int `yaml:"lightmap"`
}

type lightDescription struct {
	Type  string `yaml:"type"`
	Name  string `yaml:"name"`
	Level string `yaml:"level"`

	Color         *types.Vec3 `yaml:"color"`
	Brightness    *float32    `yaml:"brightness"`
	IndirectScale *float32    `yaml:"indirect_scale"`

	Position        types.Vec3 `yaml:"position"`
	Direction       types.Vec3 `yaml:"direction"`
	Radius          float32    `yaml:"radius"`
	FalloffExponent *float32   `yaml:"falloff_exponent"`
	SourceAngle     *float32   `yaml:"source_angle"`
	InnerConeAngle  *float32   `yaml:"inner_cone_angle"`
	OuterConeAngle  *float32   `yaml:"outer_cone_angle"`

	CastShadows          *bool `yaml:"cast_shadows"`
	StaticLighting       *bool `yaml:"static_lighting"`
	StaticShadowing      *bool `yaml:"static_shadowing"`
	LowerHemisphereBlack *bool `yaml:"lower_hemisphere_black"`
}

type boxDescription struct {
	Min types.Vec3 `yaml:"min"`
	Max types.Vec3 `yaml:"max"`
}

func (b boxDescription) BBox() types.BBox {
	return types.BBox{Min: types.MinVec3(b.Min, b.Max), Max: types.MaxVec3(b.Min, b.Max)}
}
