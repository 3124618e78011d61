package protocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/types"
)

func testSceneFile() *SceneFile {
	meshGuid := types.GUID{A: 1}
	return &SceneFile{
		Header: SceneFileHeader{
			Guid: types.GUID{A: 0xFEED},
			Settings: SceneSettings{
				NumIndirectBounces: 3,
				VisibilityCellSize: 200,
			},
		},
		Levels:                []LevelRecord{{Guid: types.GUID{A: 7}, Flags: LevelVisible | LevelPersistent}},
		ImportanceVolumes:     []types.BBox{{Min: types.XYZ(-1, -1, -1), Max: types.XYZ(1, 1, 1)}},
		VisibilityBucketGuids: []types.GUID{{A: 10}, {A: 11}},
		PointLights: []PointLight{
			{Light: LightRecord{Guid: types.GUID{A: 20}, Flags: LightHasStaticShadowing}, Point: PointLightRecord{Radius: 512}},
		},
		SkyLights: []SkyLight{
			{Light: LightRecord{Guid: types.GUID{A: 21}}, Sky: SkyLightRecord{RadianceMapSize: 1}, RadianceMap: make([]types.Vec4, 6)},
		},
		BSPMeshes: []BSPMesh{
			{
				Mesh: MeshData{
					Record:         MeshRecord{Guid: meshGuid, NumTriangles: 1, NumVertices: 3},
					RelevantLights: []types.GUID{{A: 20}},
					Elements:       []MaterialElementRecord{{NumTriangles: 1, DiffuseBoost: 1}},
				},
				Vertices: make([]VertexRecord, 3),
				Indices:  []uint32{0, 1, 2},
			},
		},
		BSPMappings: []TextureMappingRecord{{Guid: types.GUID{A: 2}, MeshGuid: meshGuid, SizeX: 16, SizeY: 8}},
		StaticMeshTextureMappings: []TextureMappingRecord{
			{Guid: types.GUID{A: 3}, SizeX: 32, SizeY: 32},
		},
		MaterialHashes: []types.SHAHash{types.HashGUIDs([]types.GUID{{A: 99}})},
	}
}

func TestSceneRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	src := testSceneFile()
	if err := WriteScene(&buf, src); err != nil {
		t.Fatal(err)
	}

	got, err := ReadScene(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected reader to consume the whole stream; %d bytes left", buf.Len())
	}

	if got.Header != src.Header {
		t.Fatalf("header mismatch:\n%+v\n%+v", got.Header, src.Header)
	}
	if got.Header.NumBSPMappings != 1 || got.Header.NumStaticMeshTextureMappings != 1 || got.NumMappings() != 2 {
		t.Fatalf("unexpected mapping counts in header %+v", got.Header)
	}
	if len(got.BSPMeshes) != 1 || len(got.BSPMeshes[0].Indices) != 3 || got.BSPMeshes[0].Mesh.RelevantLights[0] != (types.GUID{A: 20}) {
		t.Fatalf("unexpected bsp meshes %+v", got.BSPMeshes)
	}
	if len(got.SkyLights) != 1 || len(got.SkyLights[0].RadianceMap) != 6 {
		t.Fatalf("unexpected sky lights %+v", got.SkyLights)
	}
	if got.PointLights[0].Point.Radius != 512 {
		t.Fatalf("expected point light radius 512; got %f", got.PointLights[0].Point.Radius)
	}
	if got.MaterialHashes[0] != src.MaterialHashes[0] {
		t.Fatal("material hash mismatch")
	}
}

func TestReadSceneRejectsBadHeaders(t *testing.T) {
	type spec struct {
		mutate func(h *SceneFileHeader)
		exp    error
	}
	specs := []spec{
		{func(h *SceneFileHeader) { h.Cookie = MaterialCookie }, ErrBadCookie},
		{func(h *SceneFileHeader) { h.FormatVersion = MaterialVersion }, ErrBadVersion},
	}

	for index, s := range specs {
		f := testSceneFile()
		f.UpdateCounts()
		s.mutate(&f.Header)

		var buf bytes.Buffer
		enc := channel.NewEncoder(&buf)
		WriteSceneHeader(enc, &f.Header)
		if enc.Err() != nil {
			t.Fatal(enc.Err())
		}

		if _, err := ReadScene(&buf); !errors.Is(err, s.exp) {
			t.Fatalf("[spec %d] expected error %v; got %v", index, s.exp, err)
		}
	}
}

func TestReadSceneTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteScene(&buf, testSceneFile()); err != nil {
		t.Fatal(err)
	}
	truncated := bytes.NewReader(buf.Bytes()[:buf.Len()-8])
	if _, err := ReadScene(truncated); err == nil {
		t.Fatal("expected an error reading a truncated scene")
	}
}

func TestMaterialRoundTrip(t *testing.T) {
	src := &MaterialFile{
		Header: MaterialFileHeader{Hash: types.HashGUIDs([]types.GUID{{A: 1}})},
		Data: MaterialData{
			BlendMode:   2,
			SampleSizes: [NumSampleProperties]int32{SampleEmissive: 1, SampleTransmission: 2},
		},
	}
	src.Samples[SampleEmissive] = []HalfRGBA{{1, 2, 3, 4}}
	src.Samples[SampleTransmission] = []HalfRGBA{{1}, {2}, {3}, {4}}

	var buf bytes.Buffer
	if err := WriteMaterial(&buf, src); err != nil {
		t.Fatal(err)
	}
	got, err := ReadMaterial(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Data != src.Data || got.Header != src.Header {
		t.Fatalf("material mismatch: %+v", got)
	}
	if got.Samples[SampleDiffuse] != nil || len(got.Samples[SampleTransmission]) != 4 || got.Samples[SampleTransmission][3][0] != 4 {
		t.Fatalf("unexpected samples %+v", got.Samples)
	}

	src.Data.SampleSizes[SampleDiffuse] = 4
	if err = WriteMaterial(&buf, src); !errors.Is(err, ErrBadCount) {
		t.Fatalf("expected ErrBadCount for missing diffuse samples; got %v", err)
	}
}

func TestChannelNamesDifferPerKind(t *testing.T) {
	guid := types.GUID{A: 1, B: 2, C: 3, D: 4}
	names := map[string]bool{
		SceneChannel(guid):                true,
		StaticMeshChannel(guid):           true,
		LandscapeChannel(guid):            true,
		TextureMappingChannel(guid):       true,
		VisibilityChannel(guid):           true,
		VolumetricLightmapChannel(guid):   true,
		StaticShadowDepthMapChannel(guid): true,
	}
	if len(names) != 7 {
		t.Fatalf("expected 7 distinct channel names; got %d", len(names))
	}
}
