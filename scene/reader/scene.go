// Package reader loads lighting build scenes from a yaml scene description
// that references wavefront object geometry, material libraries and
// texture images.
package reader

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/types"
)

var (
	ErrUnknownReference = errors.New("reader: unknown reference")
	ErrInvalidEntity    = errors.New("reader: invalid entity")
)

// The registry of named materials shared by the scene description and the
// material libraries referenced by object files.
type materialLibrary struct {
	base   types.GUID
	byName map[string]*material.Material
	list   []*material.Material
}

func newMaterialLibrary(base types.GUID) *materialLibrary {
	return &materialLibrary{
		base:   base,
		byName: make(map[string]*material.Material),
	}
}

// Define a new material. Defining the same name twice is an error.
func (l *materialLibrary) Define(name string) (*material.Material, error) {
	if _, exists := l.byName[name]; exists {
		return nil, fmt.Errorf("material '%s' already defined", name)
	}
	m := material.New(name, types.DeriveGUID(l.base, "material:"+name))
	l.byName[name] = m
	l.list = append(l.list, m)
	return m, nil
}

func (l *materialLibrary) Lookup(name string) *material.Material {
	return l.byName[name]
}

// Get the material used by surfaces that do not select one.
func (l *materialLibrary) Default() *material.Material {
	if m := l.byName[""]; m != nil {
		return m
	}
	m, _ := l.Define("")
	m.Name = "default"
	return m
}

type sceneReader struct {
	logger log.Logger

	desc *sceneDescription
	res  *resource
	sc   *scene.Scene

	materials *materialLibrary
	levels    map[string]*scene.Level
	models    map[string]*model

	// Static mesh geometry shared between instances of the same model.
	geometry map[string]*scene.StaticMeshGeometry
}

// Read a scene description from a local file or an http(s) URL.
func ReadScene(pathToScene string) (*scene.Scene, error) {
	res, err := newResource(pathToScene, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return newSceneReader().Read(res)
}

func newSceneReader() *sceneReader {
	return &sceneReader{
		logger:   log.New("scene reader"),
		levels:   make(map[string]*scene.Level),
		models:   make(map[string]*model),
		geometry: make(map[string]*scene.StaticMeshGeometry),
	}
}

// Read and assemble the scene.
func (r *sceneReader) Read(res *resource) (*scene.Scene, error) {
	r.logger.Noticef("parsing scene from %s", res.Path())
	start := time.Now()

	r.res = res
	r.desc = &sceneDescription{}
	dec := yaml.NewDecoder(res)
	dec.KnownFields(true)
	if err := dec.Decode(r.desc); err != nil {
		return nil, fmt.Errorf("reader: could not parse %s: %w", res.Path(), err)
	}

	steps := []func() error{
		r.setupScene,
		r.readLevels,
		r.readMaterials,
		r.readModels,
		r.readLights,
		r.readStaticMeshes,
		r.readBSP,
		r.readLandscapes,
		r.registerMaterials,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	r.logger.Noticef("parsed scene in %d ms", time.Since(start).Nanoseconds()/1000000)
	return r.sc, nil
}

func (r *sceneReader) guidFor(kind, name string) types.GUID {
	return types.DeriveGUID(r.sc.Guid, kind+":"+name)
}

func (r *sceneReader) setupScene() error {
	d := r.desc
	r.sc = scene.New(d.Name)
	if d.Guid != "" {
		guid, err := types.ParseGUID(d.Guid)
		if err != nil {
			return fmt.Errorf("reader: scene guid: %w", err)
		}
		r.sc.Guid = guid
	} else {
		r.sc.Guid = types.DeriveGUID(types.GUID{}, "scene:"+d.Name)
	}
	r.materials = newMaterialLibrary(r.sc.Guid)

	s := &r.sc.Settings
	if d.Settings.IndirectBounces != nil {
		s.NumIndirectBounces = *d.Settings.IndirectBounces
	}
	if d.Settings.IndirectQuality != nil {
		s.IndirectLightingQuality = *d.Settings.IndirectQuality
	}
	if d.Settings.IndirectSmoothness != nil {
		s.IndirectLightingSmoothness = *d.Settings.IndirectSmoothness
	}
	if d.Settings.EnvironmentColor != nil {
		s.EnvironmentColor = *d.Settings.EnvironmentColor
	}
	if d.Settings.EnvironmentIntensity != nil {
		s.EnvironmentIntensity = *d.Settings.EnvironmentIntensity
	}
	s.UseAmbientOcclusion = d.Settings.AmbientOcclusion

	if d.Settings.VolumetricLightmapCellSize != nil {
		r.sc.VolumetricLightmap.DetailCellSize = *d.Settings.VolumetricLightmapCellSize
	}
	if d.Settings.VolumetricLightmapBounds != nil {
		r.sc.VolumetricLightmap.Bounds = d.Settings.VolumetricLightmapBounds.BBox()
	}

	for _, v := range d.ImportanceVolumes {
		r.sc.ImportanceVolumes = append(r.sc.ImportanceVolumes, v.BBox())
	}
	for _, v := range d.CharacterIndirectDetailVolumes {
		r.sc.CharacterIndirectDetailVolumes = append(r.sc.CharacterIndirectDetailVolumes, v.BBox())
	}
	for _, v := range d.VisibilityVolumes {
		r.sc.VisibilityVolumes = append(r.sc.VisibilityVolumes, v.BBox())
	}
	for _, p := range d.Portals {
		r.sc.Portals = append(r.sc.Portals, p.Mat4())
	}
	return nil
}

// Create the described levels. A persistent level is created when the
// description defines none.
func (r *sceneReader) readLevels() error {
	levels := r.desc.Levels
	hasPersistent := false
	for _, l := range levels {
		hasPersistent = hasPersistent || l.Persistent
	}
	if !hasPersistent {
		levels = append([]levelDescription{{Name: "persistent", Persistent: true}}, levels...)
	}

	for _, l := range levels {
		level := scene.NewLevel(r.guidFor("level", l.Name), l.Name, l.Persistent)
		level.Visible = !l.Hidden
		if err := r.sc.AddLevel(level); err != nil {
			return fmt.Errorf("reader: level '%s': %w", l.Name, err)
		}
		r.levels[l.Name] = level
		if l.Persistent {
			r.levels[""] = level
		}
	}
	return nil
}

func (r *sceneReader) levelGuid(name string) (types.GUID, error) {
	level, exists := r.levels[name]
	if !exists {
		return types.GUID{}, fmt.Errorf("%w: level '%s'", ErrUnknownReference, name)
	}
	return level.Guid, nil
}

func (r *sceneReader) readMaterials() error {
	for _, d := range r.desc.Materials {
		m, err := r.materials.Define(d.Name)
		if err != nil {
			return fmt.Errorf("reader: %w", err)
		}

		if m.BlendMode, err = material.ParseBlendMode(d.BlendMode); err != nil {
			return fmt.Errorf("reader: material '%s': %w", d.Name, err)
		}
		m.TwoSided = d.TwoSided
		m.CastShadowAsMasked = d.CastShadowAsMasked
		if d.OpacityMaskClipValue != nil {
			m.OpacityMaskClipValue = *d.OpacityMaskClipValue
		}
		if d.EmissiveBoost != nil {
			m.EmissiveBoost = *d.EmissiveBoost
		}
		if d.DiffuseBoost != nil {
			m.DiffuseBoost = *d.DiffuseBoost
		}

		inputs := []struct {
			prop     material.Property
			constant *types.Vec3
			texture  string
		}{
			{material.Diffuse, d.Diffuse, d.DiffuseTexture},
			{material.Emissive, d.Emissive, d.EmissiveTexture},
			{material.Transmission, d.Transmission, d.TransmissionTexture},
			{material.Normal, nil, d.NormalTexture},
		}
		for _, in := range inputs {
			if in.constant != nil {
				m.Inputs[in.prop].Constant = in.constant.Vec4(1)
			}
			if in.texture == "" {
				continue
			}
			if m.Inputs[in.prop].Texture, err = r.loadTexture(in.texture); err != nil {
				return fmt.Errorf("reader: material '%s': %w", d.Name, err)
			}
		}

		// Any change to the lighting relevant state yields a new lighting
		// GUID and therefore a new material channel.
		state, err := yaml.Marshal(d)
		if err != nil {
			return fmt.Errorf("reader: material '%s': %w", d.Name, err)
		}
		m.LightingGuid = types.DeriveGUID(m.Guid, string(state))
	}

	// Resolve parents once all materials are known
	for _, d := range r.desc.Materials {
		if d.Parent == "" {
			continue
		}
		parent := r.materials.Lookup(d.Parent)
		if parent == nil {
			return fmt.Errorf("%w: material '%s' parent '%s'", ErrUnknownReference, d.Name, d.Parent)
		}
		r.materials.Lookup(d.Name).Parent = parent
	}
	return nil
}

func (r *sceneReader) loadTexture(path string) (image.Image, error) {
	res, err := newResource(path, r.res)
	if err != nil {
		return nil, err
	}
	defer res.Close()
	return newTexture(res)
}

func (r *sceneReader) readModels() error {
	for _, d := range r.desc.Models {
		res, err := newResource(d.File, r.res)
		if err != nil {
			return fmt.Errorf("reader: model '%s': %w", d.File, err)
		}
		models, err := newWavefrontReader(r.materials).Read(res)
		res.Close()
		if err != nil {
			return err
		}

		for _, m := range models {
			name := m.name
			if d.Name != "" {
				if len(models) == 1 {
					name = d.Name
				} else {
					name = d.Name + "." + m.name
				}
			}
			if _, exists := r.models[name]; exists {
				return fmt.Errorf("reader: model '%s' already defined", name)
			}
			m.name = name
			r.models[name] = m
		}
	}
	return nil
}

func (r *sceneReader) model(name string) (*model, error) {
	m, exists := r.models[name]
	if !exists {
		return nil, fmt.Errorf("%w: model '%s'", ErrUnknownReference, name)
	}
	return m, nil
}

func (r *sceneReader) readLights() error {
	for index, d := range r.desc.Lights {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", d.Type, index)
		}
		guid := r.guidFor("light", name)

		var light scene.Light
		switch d.Type {
		case "directional":
			l := scene.NewDirectionalLight(guid, d.Direction)
			if d.SourceAngle != nil {
				l.LightSourceAngle = *d.SourceAngle
			}
			light = l
		case "point":
			l := scene.NewPointLight(guid, d.Position, d.Radius)
			if d.FalloffExponent != nil {
				l.FalloffExponent = *d.FalloffExponent
				l.UseInverseSquaredFalloff = false
			}
			light = l
		case "spot":
			l := scene.NewSpotLight(guid, d.Position, d.Direction, d.Radius)
			if d.FalloffExponent != nil {
				l.FalloffExponent = *d.FalloffExponent
				l.UseInverseSquaredFalloff = false
			}
			if d.InnerConeAngle != nil {
				l.InnerConeAngle = *d.InnerConeAngle
			}
			if d.OuterConeAngle != nil {
				l.OuterConeAngle = *d.OuterConeAngle
			}
			light = l
		case "sky":
			c := types.Vec3{1, 1, 1}
			if d.Color != nil {
				c = *d.Color
			}
			l := scene.NewSkyLight(guid, c)
			if d.LowerHemisphereBlack != nil {
				l.LowerHemisphereIsBlack = *d.LowerHemisphereBlack
			}
			light = l
		default:
			return fmt.Errorf("%w: light '%s' has unknown type '%s'", ErrInvalidEntity, name, d.Type)
		}

		base := light.Base()
		base.Name = name
		if d.Color != nil {
			base.Color = *d.Color
		}
		if d.Brightness != nil {
			base.Brightness = *d.Brightness
		}
		if d.IndirectScale != nil {
			base.IndirectLightingScale = *d.IndirectScale
		}
		if d.CastShadows != nil {
			base.CastShadows = *d.CastShadows
			base.CastStaticShadows = *d.CastShadows
		}
		if d.StaticLighting != nil {
			base.HasStaticLighting = *d.StaticLighting
		}
		if d.StaticShadowing != nil {
			base.HasStaticShadowing = *d.StaticShadowing
		}

		var err error
		if d.Level != "" {
			if base.LevelGuid, err = r.levelGuid(d.Level); err != nil {
				return err
			}
		}
		if err = r.sc.AddLight(light); err != nil {
			return fmt.Errorf("reader: light '%s': %w", name, err)
		}
	}
	return nil
}

func (r *sceneReader) readStaticMeshes() error {
	for index, d := range r.desc.StaticMeshes {
		m, err := r.model(d.Model)
		if err != nil {
			return err
		}

		geom := r.geometry[m.name]
		if geom == nil {
			geom = &scene.StaticMeshGeometry{
				Guid: types.DeriveGUID(r.sc.Guid, "static-mesh:"+m.name+":"+geometryHash(m.vertices, m.indices)),
				Name: m.name,
				LODs: []scene.StaticMeshLOD{{Vertices: m.vertices, Indices: m.indices}},
			}
			r.geometry[m.name] = geom
		}

		name := d.Name
		if name == "" {
			name = fmt.Sprintf("%s-%d", m.name, index)
		}
		mesh := scene.NewStaticMeshInstance(r.guidFor("static-mesh-instance", name), geom, d.Transform.Mat4())
		mesh.Name = name
		if err = r.addMesh(mesh, d, m); err != nil {
			return err
		}
	}
	return nil
}

func (r *sceneReader) readBSP() error {
	for index, d := range r.desc.BSP {
		m, err := r.model(d.Model)
		if err != nil {
			return err
		}

		// BSP geometry is stored in world space
		xform := d.Transform.Mat4()
		surface := &scene.BSPSurface{
			ModelGuid: r.guidFor("bsp-model", m.name),
			Vertices:  make([]scene.Vertex, len(m.vertices)),
			Indices:   m.indices,
		}
		for i, v := range m.vertices {
			v.Position = xform.TransformPoint(v.Position)
			v.Normal = xform.TransformVector(v.Normal).Normalize()
			surface.Vertices[i] = v
		}

		name := d.Name
		if name == "" {
			name = fmt.Sprintf("bsp-%d", index)
		}
		mesh := scene.NewBSPMesh(r.guidFor("bsp", name+":"+geometryHash(surface.Vertices, surface.Indices)), surface)
		mesh.Name = name
		if err = r.addMesh(mesh, d, m); err != nil {
			return err
		}
	}
	return nil
}

// Assign level, materials and lights to a mesh and add it to the scene
// together with its mapping.
func (r *sceneReader) addMesh(mesh *scene.Mesh, d meshDescription, m *model) error {
	var err error
	if mesh.LevelGuid, err = r.levelGuid(d.Level); err != nil {
		return err
	}
	mesh.TwoSided = d.TwoSided
	mesh.CastShadow = !d.NoShadow

	if d.Material != "" {
		mat := r.materials.Lookup(d.Material)
		if mat == nil {
			return fmt.Errorf("%w: mesh '%s' material '%s'", ErrUnknownReference, mesh.Name, d.Material)
		}
		mesh.SetMaterial(mat)
	} else {
		for _, el := range m.elements {
			mat := r.materials.Lookup(el.material)
			if mat == nil {
				mat = r.materials.Default()
			}
			mesh.Elements = append(mesh.Elements, scene.MaterialElement{
				Material:                     mat,
				FirstTriangle:                el.firstTriangle,
				NumTriangles:                 el.numTriangles,
				UseEmissiveForStaticLighting: isEmissive(mat),
				EmissiveLightFalloffExponent: 8,
				EmissiveBoost:                1,
				DiffuseBoost:                 1,
			})
		}
	}

	return r.addMeshAndMapping(mesh, d.Lightmap)
}

func (r *sceneReader) addMeshAndMapping(mesh *scene.Mesh, lightmapSize [2]int) error {
	mesh.RelevantLights = relevantLights(r.sc.Lights, mesh.Bounds)
	if err := r.sc.AddMesh(mesh); err != nil {
		return fmt.Errorf("reader: mesh '%s': %w", mesh.Name, err)
	}

	if lightmapSize[0] == 0 && lightmapSize[1] == 0 {
		return nil
	}
	if err := r.sc.AddMapping(scene.NewMapping(mesh, lightmapSize[0], lightmapSize[1])); err != nil {
		return fmt.Errorf("reader: mesh '%s': %w", mesh.Name, err)
	}
	return nil
}

func (r *sceneReader) readLandscapes() error {
	for index, d := range r.desc.Landscapes {
		name := d.Name
		if name == "" {
			name = fmt.Sprintf("landscape-%d", index)
		}

		geom := &scene.LandscapeGeometry{
			ComponentSizeQuads:  d.ComponentSizeQuads,
			SubsectionSizeQuads: d.SubsectionSizeQuads,
			NumSubsections:      d.NumSubsections,
			ExpandQuads:         d.ExpandQuads,
		}
		if d.Heightmap != "" {
			img, err := r.loadTexture(d.Heightmap)
			if err != nil {
				return fmt.Errorf("reader: landscape '%s': %w", name, err)
			}
			geom.SizeX, geom.SizeY, geom.Heights = heightsFromImage(img)
		} else {
			geom.SizeX, geom.SizeY = d.Size[0], d.Size[1]
			geom.Heights = make([]uint16, geom.SizeX*geom.SizeY)
			h := uint16(clamp01(d.Height) * 65535)
			for i := range geom.Heights {
				geom.Heights[i] = h
			}
		}
		if geom.SizeX < 2 || geom.SizeY < 2 {
			return fmt.Errorf("%w: landscape '%s' needs at least 2x2 height samples", ErrInvalidEntity, name)
		}
		if geom.ComponentSizeQuads == 0 {
			geom.ComponentSizeQuads = geom.SizeX - 1
		}
		if geom.SubsectionSizeQuads == 0 {
			geom.SubsectionSizeQuads = geom.ComponentSizeQuads
		}
		if geom.NumSubsections == 0 {
			geom.NumSubsections = 1
		}
		geom.Guid = r.guidFor("landscape", name+":"+heightsHash(geom.Heights))

		mesh := scene.NewLandscapeMesh(r.guidFor("landscape-component", name), geom, d.Transform.Mat4())
		mesh.Name = name
		mesh.CastShadow = true

		var err error
		if mesh.LevelGuid, err = r.levelGuid(d.Level); err != nil {
			return err
		}
		mat := r.materials.Default()
		if d.Material != "" {
			if mat = r.materials.Lookup(d.Material); mat == nil {
				return fmt.Errorf("%w: landscape '%s' material '%s'", ErrUnknownReference, name, d.Material)
			}
		}
		mesh.SetMaterial(mat)

		if err = r.addMeshAndMapping(mesh, d.Lightmap); err != nil {
			return err
		}
	}
	return nil
}

// Register every defined material that is referenced by a mesh.
func (r *sceneReader) registerMaterials() error {
	used := make(map[*material.Material]bool)
	for _, mesh := range r.sc.Meshes {
		for _, el := range mesh.Elements {
			for m := el.Material; m != nil; m = m.Parent {
				used[m] = true
			}
		}
	}
	for _, m := range r.materials.list {
		if !used[m] {
			continue
		}
		if err := r.sc.AddMaterial(m); err != nil {
			return err
		}
	}
	return nil
}

// Select the lights that can affect a mesh with the given bounds.
// Directional and sky lights affect everything; local lights only affect
// meshes within their radius.
func relevantLights(lights []scene.Light, bounds types.BBox) []scene.Light {
	var out []scene.Light
	for _, l := range lights {
		var pos types.Vec3
		var radius float32
		switch t := l.(type) {
		case *scene.PointLight:
			pos, radius = t.Position, t.Radius
		case *scene.SpotLight:
			pos, radius = t.Position, t.Radius
		default:
			out = append(out, l)
			continue
		}

		closest := types.MaxVec3(bounds.Min, types.MinVec3(bounds.Max, pos))
		if closest.Sub(pos).Len() <= radius {
			out = append(out, l)
		}
	}
	return out
}

func isEmissive(m *material.Material) bool {
	in := m.Inputs[material.Emissive]
	return in.Texture != nil || in.Constant.Vec3().MaxComponent() > 0
}

func heightsFromImage(img image.Image) (int, int, []uint16) {
	bounds := img.Bounds()
	sizeX, sizeY := bounds.Dx(), bounds.Dy()
	heights := make([]uint16, 0, sizeX*sizeY)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			heights = append(heights, color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
		}
	}
	return sizeX, sizeY, heights
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}

// Hash geometry so that edits to an object file produce a new geometry GUID.
func geometryHash(vertices []scene.Vertex, indices []uint32) string {
	h := sha1.New()
	binary.Write(h, binary.LittleEndian, vertices)
	binary.Write(h, binary.LittleEndian, indices)
	return hex.EncodeToString(h.Sum(nil))
}

func heightsHash(heights []uint16) string {
	h := sha1.New()
	binary.Write(h, binary.LittleEndian, heights)
	return hex.EncodeToString(h.Sum(nil))
}
