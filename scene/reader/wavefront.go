package reader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/types"
)

// A range of model triangles sharing a material.
type element struct {
	material      string
	firstTriangle int
	numTriangles  int
}

// A model groups the triangles that follow an "o" or "g" statement.
type model struct {
	name     string
	vertices []scene.Vertex
	indices  []uint32
	elements []element
	bounds   types.BBox

	// Maps v/vt/vn index triplets to emitted vertices.
	vertexIndex map[[3]int]uint32
}

func newModel(name string) *model {
	return &model{
		name:        name,
		bounds:      types.EmptyBBox(),
		vertexIndex: make(map[[3]int]uint32),
	}
}

func (m *model) numTriangles() int {
	return len(m.indices) / 3
}

// Append a triangle, extending the current material element or starting a
// new one when the material changes.
func (m *model) addTriangle(matName string, corners [3]faceCorner) {
	for _, c := range corners {
		index, exists := m.vertexIndex[c.key]
		if !exists {
			index = uint32(len(m.vertices))
			m.vertices = append(m.vertices, c.vertex)
			m.vertexIndex[c.key] = index
			m.bounds = m.bounds.Expand(c.vertex.Position)
		}
		m.indices = append(m.indices, index)
	}

	last := len(m.elements) - 1
	if last >= 0 && m.elements[last].material == matName {
		m.elements[last].numTriangles++
		return
	}
	m.elements = append(m.elements, element{
		material:      matName,
		firstTriangle: m.numTriangles() - 1,
		numTriangles:  1,
	})
}

type faceCorner struct {
	key    [3]int
	vertex scene.Vertex
}

type wavefrontReader struct {
	logger log.Logger

	// Materials defined by mtllib statements are registered here.
	materials *materialLibrary

	models []*model

	// Currently selected material name.
	curMaterial string

	// List of vertices, normals and uv coords.
	vertexList []types.Vec3
	normalList []types.Vec3
	uvList     []types.Vec2

	// An error stack that provides additional error information when
	// files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new wavefront object reader.
func newWavefrontReader(materials *materialLibrary) *wavefrontReader {
	return &wavefrontReader{
		logger:    log.New("wavefront reader"),
		materials: materials,
	}
}

// Read the models defined by a wavefront object file.
func (r *wavefrontReader) Read(res *resource) ([]*model, error) {
	r.logger.Infof("parsing geometry from %s", res.Path())

	err := r.parse(res)
	if err != nil {
		return nil, err
	}

	// Drop objects without faces
	models := r.models[:0]
	for _, m := range r.models {
		if m.numTriangles() > 0 {
			models = append(models, m)
		}
	}
	r.models = models

	return r.models, nil
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = strings.Trim(
			fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	} else {
		errMsg = strings.Trim(
			fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n")),
			"\n",
		)
	}

	return fmt.Errorf("%s", errMsg)
}

// Push a frame to the error stack.
func (r *wavefrontReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Get the model receiving faces, creating a default one if needed.
func (r *wavefrontReader) currentModel() *model {
	if len(r.models) == 0 {
		r.models = append(r.models, newModel("default"))
	}
	return r.models[len(r.models)-1]
}

// Parse wavefront object format.
func (r *wavefrontReader) parse(res *resource) error {
	var lineNum int = 0

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 {
			continue
		}

		switch lineTokens[0] {
		case "#":
			continue
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for '%s'; expected 1 argument; got %d", lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := newResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for 'usemtl'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			matName := lineTokens[1]
			if r.materials.Lookup(matName) == nil {
				return r.emitError(res.Path(), lineNum, "undefined material with name '%s'", matName)
			}
			r.curMaterial = matName
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalList = append(r.normalList, v)
		case "vt":
			v, err := parseVec2(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.uvList = append(r.uvList, v)
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for '%s'; expected 1 argument for object name; got %d", lineTokens[0], len(lineTokens)-1)
			}

			r.models = append(r.models, newModel(lineTokens[1]))
		case "f":
			corners, err := r.parseFace(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			r.currentModel().addTriangle(r.curMaterial, corners)
		}
	}

	return scanner.Err()
}

// Parse face definition. Each face definitions consists of 3 arguments,
// one for each vertex. Each one of the vertex arguments is comprised of
// 1, 2 or 3 args separated by a slash character. The following formats are
// supported:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate
// an offset off the end of the vertex/uv list.
//
// This method only works with triangular faces and will return an error if a
// face with more than 3 vertices is encountered. Faces without normals get
// the geometric face normal.
func (r *wavefrontReader) parseFace(lineTokens []string) ([3]faceCorner, error) {
	var corners [3]faceCorner
	if len(lineTokens) != 4 {
		return corners, fmt.Errorf("unsupported syntax for 'f'; expected 3 arguments for triangular face; got %d. Select the triangulation option in your exporter.", len(lineTokens)-1)
	}

	var vOffset int
	var err error
	var hasNormals bool
	expIndices := 0
	for arg := 0; arg < 3; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return corners, fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return corners, fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		corner := &corners[arg]
		corner.key = [3]int{-1, -1, -1}

		vOffset, err = selectFaceCoordIndex(vTokens[0], len(r.vertexList))
		if err != nil {
			return corners, fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		corner.key[0] = vOffset
		corner.vertex.Position = r.vertexList[vOffset]

		// Parse UV coords if specified. The same coordinates feed the
		// material and the lightmap UV channels.
		if len(vTokens) > 1 && vTokens[1] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[1], len(r.uvList))
			if err != nil {
				return corners, fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
			corner.key[1] = vOffset
			corner.vertex.TexCoords[0] = r.uvList[vOffset]
			corner.vertex.TexCoords[1] = r.uvList[vOffset]
		}

		// Parse normal coords if specified
		if len(vTokens) > 2 && vTokens[2] != "" {
			vOffset, err = selectFaceCoordIndex(vTokens[2], len(r.normalList))
			if err != nil {
				return corners, fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
			corner.key[2] = vOffset
			corner.vertex.Normal = r.normalList[vOffset]
			hasNormals = true
		}
	}

	if !hasNormals {
		p0, p1, p2 := corners[0].vertex.Position, corners[1].vertex.Position, corners[2].vertex.Position
		n := p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
		for i := range corners {
			corners[i].vertex.Normal = n
		}
	}

	return corners, nil
}

// Parse a wavefront material library.
func (r *wavefrontReader) parseMaterials(res *resource) error {
	var lineNum int = 0
	var err error

	scanner := bufio.NewScanner(res)

	var curMaterial *material.Material = nil

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 {
			continue
		}

		switch lineTokens[0] {
		case "#":
			continue
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, "unsupported syntax for 'newmtl'; expected 1 argument; got %d", len(lineTokens)-1)
			}

			curMaterial, err = r.materials.Define(lineTokens[1])
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		default:
			if curMaterial == nil {
				return r.emitError(res.Path(), lineNum, "got '%s' without a 'newmtl'", lineTokens[0])
			}

			switch lineTokens[0] {
			case "Kd", "Ke":
				var v types.Vec3
				v, err = parseVec3(lineTokens)
				if err != nil {
					break
				}

				switch lineTokens[0] {
				case "Kd":
					curMaterial.Inputs[material.Diffuse].Constant = v.Vec4(1)
				case "Ke":
					curMaterial.Inputs[material.Emissive].Constant = v.Vec4(1)
				}
			case "d", "Tr":
				var opacity float32
				opacity, err = parseFloat32(lineTokens)
				if err != nil {
					break
				}
				if lineTokens[0] == "Tr" {
					opacity = 1 - opacity
				}
				if opacity < 1 {
					curMaterial.BlendMode = material.Translucent
					t := 1 - opacity
					curMaterial.Inputs[material.Transmission].Constant = types.Vec4{t, t, t, 1}
				}
			case "map_Kd", "map_Ke", "map_bump", "bump", "map_d":
				var target *material.Input
				switch lineTokens[0] {
				case "map_Kd":
					target = &curMaterial.Inputs[material.Diffuse]
				case "map_Ke":
					target = &curMaterial.Inputs[material.Emissive]
				case "map_bump", "bump":
					target = &curMaterial.Inputs[material.Normal]
				case "map_d":
					target = &curMaterial.Inputs[material.Transmission]
					curMaterial.BlendMode = material.Masked
				}

				if len(lineTokens) < 2 {
					err = fmt.Errorf("unsupported syntax for '%s'; expected 1 argument; got 0", lineTokens[0])
					break
				}

				// The texture path is the last argument; options may precede it
				imgRes, resErr := newResource(lineTokens[len(lineTokens)-1], res)
				if resErr != nil {
					// Ignore missing textures
					if os.IsNotExist(resErr) {
						r.logger.Warningf("ignoring missing texture %s", lineTokens[len(lineTokens)-1])
						continue
					}

					return r.emitError(res.Path(), lineNum, "%s", resErr.Error())
				}

				target.Texture, err = newTexture(imgRes)
				imgRes.Close()
			}

			// Report any errors
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		}
	}

	return scanner.Err()
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int = 0
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = int(index - 1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf("unsupported syntax for '%s'; expected 1 argument; got %d", lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf("unsupported syntax for '%s'; expected 3 arguments; got %d", lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf("unsupported syntax for '%s'; expected 2 arguments; got %d", lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
