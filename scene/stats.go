package scene

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Build a tabular representation of the scene contents.
func (s *Scene) Stats() string {
	var (
		lightCounts   = make(map[LightKind]int)
		meshCounts    = make(map[MeshKind]int)
		mappingCounts = make(map[MeshKind]int)
		texels        = make(map[MeshKind]int)
		vertexData    []interface{}
	)
	for _, l := range s.Lights {
		lightCounts[l.Kind()]++
	}
	for _, m := range s.Meshes {
		meshCounts[m.Kind]++
		switch {
		case m.BSP != nil:
			vertexData = append(vertexData, m.BSP.Vertices, m.BSP.Indices)
		case m.Landscape != nil:
			vertexData = append(vertexData, m.Landscape.Heights)
		}
	}
	seen := make(map[*StaticMeshGeometry]bool)
	for _, m := range s.Meshes {
		if m.StaticMesh == nil || seen[m.StaticMesh] {
			continue
		}
		seen[m.StaticMesh] = true
		for _, lod := range m.StaticMesh.LODs {
			vertexData = append(vertexData, lod.Vertices, lod.Indices)
		}
	}
	for _, m := range s.Mappings {
		mappingCounts[m.Kind()]++
		texels[m.Kind()] += m.NumTexels()
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeader([]string{"Entity Type", "Entity", "Count"})
	table.Append([]string{"Levels", "---", fmt.Sprint(len(s.Levels))})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Lights", "---", fmt.Sprint(len(s.Lights))})
	for k := DirectionalLightKind; k <= SkyLightKind; k++ {
		table.Append([]string{"", k.String(), fmt.Sprint(lightCounts[k])})
	}
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Meshes", "---", fmt.Sprint(len(s.Meshes))})
	for k := StaticMeshKind; k <= LandscapeKind; k++ {
		table.Append([]string{"", k.String(), fmt.Sprint(meshCounts[k])})
	}
	table.Append([]string{"", "geometry", strings.TrimLeft(fmtSize(vertexData...), " ")})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Mappings", "---", fmt.Sprint(len(s.Mappings))})
	for k := StaticMeshKind; k <= LandscapeKind; k++ {
		table.Append([]string{"", k.String(), fmt.Sprintf("%d (%d texels)", mappingCounts[k], texels[k])})
	}
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"Materials", "---", fmt.Sprint(len(s.Materials))})
	table.Append([]string{"Visibility buckets", "---", fmt.Sprint(len(s.VisibilityBucketGuids))})
	table.Append([]string{"Importance volumes", "---", fmt.Sprint(len(s.ImportanceVolumes))})

	table.Render()
	return buf.String()
}

// Sum the total space used by a set of slices and return back a formatted
// value with the appropriate byte/kb/mb unit.
func fmtSize(items ...interface{}) string {
	var totalBytes float32 = 0.0
	for _, item := range items {
		t := reflect.TypeOf(item)
		v := reflect.ValueOf(item)
		if v.Len() == 0 {
			continue
		}

		totalBytes += float32(int(t.Elem().Size()) * v.Len())
	}

	if totalBytes < 1e3 {
		return fmt.Sprintf("%3d bytes", int(totalBytes))
	} else if totalBytes < 1e6 {
		return fmt.Sprintf("%3.1f kb", totalBytes/1e3)
	}
	return fmt.Sprintf("%5.1f mb", totalBytes/1e6)
}
