package exporter

import (
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/types"
)

func lightRecord(l *scene.LightBase) protocol.LightRecord {
	var flags uint32
	if l.CastShadows {
		flags |= protocol.LightCastShadows
	}
	if l.HasStaticLighting {
		flags |= protocol.LightHasStaticLighting
	}
	if l.HasStaticShadowing {
		flags |= protocol.LightHasStaticShadowing
	}
	if l.CastStaticShadows {
		flags |= protocol.LightCastStaticShadows
	}
	return protocol.LightRecord{
		Guid:                       l.Guid,
		LevelGuid:                  l.LevelGuid,
		Flags:                      flags,
		Color:                      l.Color,
		Brightness:                 l.Brightness,
		IndirectLightingScale:      l.IndirectLightingScale,
		IndirectLightingSaturation: l.IndirectLightingSaturation,
		ShadowExponent:             l.ShadowExponent,
		LightSourceRadius:          l.LightSourceRadius,
		LightSourceLength:          l.LightSourceLength,
	}
}

func directionalLight(l *scene.DirectionalLight) protocol.DirectionalLight {
	rec := lightRecord(&l.LightBase)
	rec.Direction = l.Direction.Vec4(0)
	return protocol.DirectionalLight{
		Light:       rec,
		Directional: protocol.DirectionalLightRecord{LightSourceAngle: l.LightSourceAngle},
	}
}

func pointLightRecords(l *scene.PointLight) (protocol.LightRecord, protocol.PointLightRecord) {
	rec := lightRecord(&l.LightBase)
	rec.Position = l.Position.Vec4(1)
	if l.UseInverseSquaredFalloff {
		rec.Flags |= protocol.LightUseInverseSquaredFalloff
	}
	return rec, protocol.PointLightRecord{
		Radius:          l.Radius,
		FalloffExponent: l.FalloffExponent,
	}
}

func pointLight(l *scene.PointLight) protocol.PointLight {
	rec, point := pointLightRecords(l)
	return protocol.PointLight{Light: rec, Point: point}
}

func spotLight(l *scene.SpotLight) protocol.SpotLight {
	rec, point := pointLightRecords(&l.PointLight)
	rec.Direction = l.Direction.Vec4(0)
	return protocol.SpotLight{
		Light: rec,
		Spot: protocol.SpotLightRecord{
			PointLightRecord: point,
			InnerConeAngle:   l.InnerConeAngle,
			OuterConeAngle:   l.OuterConeAngle,
		},
	}
}

func skyLight(l *scene.SkyLight) protocol.SkyLight {
	return protocol.SkyLight{
		Light: lightRecord(&l.LightBase),
		Sky: protocol.SkyLightRecord{
			LowerHemisphereIsBlack:   l.LowerHemisphereIsBlack,
			LowerHemisphereColor:     l.LowerHemisphereColor,
			IrradianceEnvironmentMap: l.IrradianceSH,
			RadianceMapSize:          int32(l.RadianceMapSize),
		},
		RadianceMap: l.RadianceMap,
	}
}

func vertexRecords(vertices []scene.Vertex) []protocol.VertexRecord {
	out := make([]protocol.VertexRecord, len(vertices))
	for i, v := range vertices {
		out[i] = protocol.VertexRecord{Position: v.Position, Normal: v.Normal, TexCoords: v.TexCoords}
	}
	return out
}

func textureMappingRecord(m *scene.Mapping) protocol.TextureMappingRecord {
	return protocol.TextureMappingRecord{
		Guid:                           m.Guid,
		MeshGuid:                       m.Mesh.Guid,
		SizeX:                          int32(m.SizeX),
		SizeY:                          int32(m.SizeY),
		LightmapTextureCoordinateIndex: int32(m.LightmapUVIndex),
		BilinearFilter:                 m.BilinearFilter,
	}
}

// Build the shared mesh header and tables. The material hash of each element
// is resolved through hashFor.
func meshData(m *scene.Mesh, hashFor func(*scene.Mesh, *scene.MaterialElement) types.SHAHash) protocol.MeshData {
	var flags uint32
	if m.TwoSided {
		flags |= protocol.MeshTwoSided
	}
	if m.CastShadow {
		flags |= protocol.MeshCastShadow | protocol.MeshCastDynamicShadow
	}

	data := protocol.MeshData{
		Record: protocol.MeshRecord{
			Guid:         m.Guid,
			LevelGuid:    m.LevelGuid,
			VisibilityId: int32(m.VisibilityId),
			NumTriangles: int32(m.NumTriangles),
			NumVertices:  int32(m.NumVertices),
			Flags:        flags,
			Bounds:       m.Bounds,
		},
		RelevantLights: make([]types.GUID, len(m.RelevantLights)),
		Elements:       make([]protocol.MaterialElementRecord, len(m.Elements)),
	}
	for i, l := range m.RelevantLights {
		data.RelevantLights[i] = l.Base().Guid
	}
	for i := range m.Elements {
		el := &m.Elements[i]
		data.Elements[i] = protocol.MaterialElementRecord{
			MaterialHash:                 hashFor(m, el),
			FirstTriangle:                int32(el.FirstTriangle),
			NumTriangles:                 int32(el.NumTriangles),
			UseTwoSidedLighting:          el.UseTwoSidedLighting,
			ShadowIndirectOnly:           el.ShadowIndirectOnly,
			UseEmissiveForStaticLighting: el.UseEmissiveForStaticLighting,
			EmissiveLightFalloffExponent: el.EmissiveLightFalloffExponent,
			EmissiveBoost:                el.EmissiveBoost,
			DiffuseBoost:                 el.DiffuseBoost,
		}
	}
	return data
}

func staticMeshFile(geom *scene.StaticMeshGeometry) *protocol.StaticMeshFile {
	f := &protocol.StaticMeshFile{
		Header: protocol.StaticMeshFileHeader{Guid: geom.Guid},
		LODs:   make([]protocol.StaticMeshLOD, len(geom.LODs)),
	}
	for i, lod := range geom.LODs {
		f.LODs[i] = protocol.StaticMeshLOD{
			Record: protocol.StaticMeshLODRecord{
				NumTriangles: int32(len(lod.Indices) / 3),
				NumVertices:  int32(len(lod.Vertices)),
			},
			Vertices: vertexRecords(lod.Vertices),
			Indices:  lod.Indices,
		}
	}
	return f
}

func landscapeFile(geom *scene.LandscapeGeometry) *protocol.LandscapeFile {
	return &protocol.LandscapeFile{
		Header: protocol.LandscapeFileHeader{
			Guid:  geom.Guid,
			SizeX: int32(geom.SizeX),
			SizeY: int32(geom.SizeY),
		},
		Heights: geom.Heights,
	}
}
