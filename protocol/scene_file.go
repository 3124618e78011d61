package protocol

import (
	"fmt"
	"io"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/types"
)

type DirectionalLight struct {
	Light       LightRecord
	Directional DirectionalLightRecord
}

type PointLight struct {
	Light LightRecord
	Point PointLightRecord
}

type SpotLight struct {
	Light LightRecord
	Spot  SpotLightRecord
}

type SkyLight struct {
	Light LightRecord
	Sky   SkyLightRecord
	// RadianceMapSize^2 * 6 cube face texels.
	RadianceMap []types.Vec4
}

// Mesh header plus its variable sized tables.
type MeshData struct {
	Record         MeshRecord
	RelevantLights []types.GUID
	Elements       []MaterialElementRecord
}

type BSPMesh struct {
	Mesh     MeshData
	BSP      BSPRecord
	Vertices []VertexRecord
	Indices  []uint32
}

type StaticMeshInstance struct {
	Mesh     MeshData
	Instance StaticMeshInstanceRecord
}

type LandscapeInstance struct {
	Mesh      MeshData
	Landscape LandscapeRecord
}

// The decoded contents of a scene channel.
type SceneFile struct {
	Header SceneFileHeader

	Levels                         []LevelRecord
	ImportanceVolumes              []types.BBox
	CharacterIndirectDetailVolumes []types.BBox
	Portals                        []types.Mat4
	VisibilityBucketGuids          []types.GUID
	VisibilityVolumes              []types.BBox
	VolumetricLightmapTasks        []VolumetricLightmapTaskRecord

	DirectionalLights []DirectionalLight
	PointLights       []PointLight
	SpotLights        []SpotLight
	SkyLights         []SkyLight

	BSPMeshes           []BSPMesh
	StaticMeshInstances []StaticMeshInstance
	LandscapeInstances  []LandscapeInstance

	BSPMappings               []TextureMappingRecord
	StaticMeshTextureMappings []TextureMappingRecord
	LandscapeTextureMappings  []TextureMappingRecord

	MaterialHashes []types.SHAHash
}

// Fill in the header counts from the record slices.
func (f *SceneFile) UpdateCounts() {
	h := &f.Header
	h.Cookie = SceneCookie
	h.FormatVersion = SceneVersion
	h.NumLevels = int32(len(f.Levels))
	h.NumImportanceVolumes = int32(len(f.ImportanceVolumes))
	h.NumCharacterIndirectDetailVolumes = int32(len(f.CharacterIndirectDetailVolumes))
	h.NumPortals = int32(len(f.Portals))
	h.NumVisibilityBuckets = int32(len(f.VisibilityBucketGuids))
	h.NumVisibilityVolumes = int32(len(f.VisibilityVolumes))
	h.NumVolumetricLightmapTasks = int32(len(f.VolumetricLightmapTasks))
	h.NumDirectionalLights = int32(len(f.DirectionalLights))
	h.NumPointLights = int32(len(f.PointLights))
	h.NumSpotLights = int32(len(f.SpotLights))
	h.NumSkyLights = int32(len(f.SkyLights))
	h.NumBSPMeshes = int32(len(f.BSPMeshes))
	h.NumStaticMeshInstances = int32(len(f.StaticMeshInstances))
	h.NumLandscapeInstances = int32(len(f.LandscapeInstances))
	h.NumBSPMappings = int32(len(f.BSPMappings))
	h.NumStaticMeshTextureMappings = int32(len(f.StaticMeshTextureMappings))
	h.NumLandscapeTextureMappings = int32(len(f.LandscapeTextureMappings))
	h.NumMaterials = int32(len(f.MaterialHashes))
}

// Total number of texture mappings of all kinds.
func (f *SceneFile) NumMappings() int {
	return len(f.BSPMappings) + len(f.StaticMeshTextureMappings) + len(f.LandscapeTextureMappings)
}

// Record writers. Each writer emits exactly the bytes ReadScene consumes for
// the matching record.

func WriteSceneHeader(enc *channel.Encoder, h *SceneFileHeader) {
	enc.Write(h)
}

func WriteLevel(enc *channel.Encoder, l LevelRecord) {
	enc.Write(&l)
}

func WriteDirectionalLight(enc *channel.Encoder, l *DirectionalLight) {
	enc.Write(&l.Light)
	enc.Write(&l.Directional)
}

func WritePointLight(enc *channel.Encoder, l *PointLight) {
	enc.Write(&l.Light)
	enc.Write(&l.Point)
}

func WriteSpotLight(enc *channel.Encoder, l *SpotLight) {
	enc.Write(&l.Light)
	enc.Write(&l.Spot)
}

func WriteSkyLight(enc *channel.Encoder, l *SkyLight) {
	enc.Write(&l.Light)
	enc.Write(&l.Sky)
	channel.WriteArray(enc, l.RadianceMap)
}

func WriteMeshData(enc *channel.Encoder, m *MeshData) {
	enc.Write(&m.Record)
	channel.WriteArray(enc, m.RelevantLights)
	channel.WriteArray(enc, m.Elements)
}

func WriteBSPMesh(enc *channel.Encoder, m *BSPMesh) {
	WriteMeshData(enc, &m.Mesh)
	enc.Write(&m.BSP)
	channel.WriteArray(enc, m.Vertices)
	channel.WriteArray(enc, m.Indices)
}

func WriteStaticMeshInstance(enc *channel.Encoder, m *StaticMeshInstance) {
	WriteMeshData(enc, &m.Mesh)
	enc.Write(&m.Instance)
}

func WriteLandscapeInstance(enc *channel.Encoder, m *LandscapeInstance) {
	WriteMeshData(enc, &m.Mesh)
	enc.Write(&m.Landscape)
}

func WriteTextureMapping(enc *channel.Encoder, m TextureMappingRecord) {
	enc.Write(&m)
}

// Write a complete scene file. The header counts are refreshed from the
// record slices before writing.
func WriteScene(w io.Writer, f *SceneFile) error {
	f.UpdateCounts()
	enc := channel.NewEncoder(w)
	WriteSceneHeader(enc, &f.Header)
	for _, l := range f.Levels {
		WriteLevel(enc, l)
	}
	writeSlice(enc, f.ImportanceVolumes)
	writeSlice(enc, f.CharacterIndirectDetailVolumes)
	writeSlice(enc, f.Portals)
	writeSlice(enc, f.VisibilityBucketGuids)
	writeSlice(enc, f.VisibilityVolumes)
	writeSlice(enc, f.VolumetricLightmapTasks)
	for i := range f.DirectionalLights {
		WriteDirectionalLight(enc, &f.DirectionalLights[i])
	}
	for i := range f.PointLights {
		WritePointLight(enc, &f.PointLights[i])
	}
	for i := range f.SpotLights {
		WriteSpotLight(enc, &f.SpotLights[i])
	}
	for i := range f.SkyLights {
		WriteSkyLight(enc, &f.SkyLights[i])
	}
	for i := range f.BSPMeshes {
		WriteBSPMesh(enc, &f.BSPMeshes[i])
	}
	for i := range f.StaticMeshInstances {
		WriteStaticMeshInstance(enc, &f.StaticMeshInstances[i])
	}
	for i := range f.LandscapeInstances {
		WriteLandscapeInstance(enc, &f.LandscapeInstances[i])
	}
	writeSlice(enc, f.BSPMappings)
	writeSlice(enc, f.StaticMeshTextureMappings)
	writeSlice(enc, f.LandscapeTextureMappings)
	writeSlice(enc, f.MaterialHashes)
	return enc.Err()
}

// Write a run of fixed-size records whose count is stored in the header.
func writeSlice[T any](enc *channel.Encoder, items []T) {
	if len(items) > 0 {
		enc.Write(items)
	}
}

func readSlice[T any](dec *channel.Decoder, count int32) []T {
	if count < 0 || count > channel.MaxArrayLen {
		dec.Fail(fmt.Errorf("%w: %d", ErrBadCount, count))
		return nil
	}
	if count == 0 || dec.Err() != nil {
		return nil
	}
	out := make([]T, count)
	dec.Read(out)
	return out
}

func readMeshData(dec *channel.Decoder) MeshData {
	var m MeshData
	dec.Read(&m.Record)
	m.RelevantLights = channel.ReadArray[types.GUID](dec)
	m.Elements = channel.ReadArray[MaterialElementRecord](dec)
	return m
}

// Decode a scene channel.
func ReadScene(r io.Reader) (*SceneFile, error) {
	dec := channel.NewDecoder(r)
	f := &SceneFile{}
	h := &f.Header
	dec.Read(h)
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if h.Cookie != SceneCookie {
		return nil, fmt.Errorf("%w: %08x", ErrBadCookie, h.Cookie)
	}
	if h.FormatVersion != SceneVersion {
		return nil, fmt.Errorf("%w: %s", ErrBadVersion, h.FormatVersion)
	}

	f.Levels = readSlice[LevelRecord](dec, h.NumLevels)
	f.ImportanceVolumes = readSlice[types.BBox](dec, h.NumImportanceVolumes)
	f.CharacterIndirectDetailVolumes = readSlice[types.BBox](dec, h.NumCharacterIndirectDetailVolumes)
	f.Portals = readSlice[types.Mat4](dec, h.NumPortals)
	f.VisibilityBucketGuids = readSlice[types.GUID](dec, h.NumVisibilityBuckets)
	f.VisibilityVolumes = readSlice[types.BBox](dec, h.NumVisibilityVolumes)
	f.VolumetricLightmapTasks = readSlice[VolumetricLightmapTaskRecord](dec, h.NumVolumetricLightmapTasks)

	for i := int32(0); i < h.NumDirectionalLights && dec.Err() == nil; i++ {
		var l DirectionalLight
		dec.Read(&l.Light)
		dec.Read(&l.Directional)
		f.DirectionalLights = append(f.DirectionalLights, l)
	}
	for i := int32(0); i < h.NumPointLights && dec.Err() == nil; i++ {
		var l PointLight
		dec.Read(&l.Light)
		dec.Read(&l.Point)
		f.PointLights = append(f.PointLights, l)
	}
	for i := int32(0); i < h.NumSpotLights && dec.Err() == nil; i++ {
		var l SpotLight
		dec.Read(&l.Light)
		dec.Read(&l.Spot)
		f.SpotLights = append(f.SpotLights, l)
	}
	for i := int32(0); i < h.NumSkyLights && dec.Err() == nil; i++ {
		var l SkyLight
		dec.Read(&l.Light)
		dec.Read(&l.Sky)
		l.RadianceMap = channel.ReadArray[types.Vec4](dec)
		f.SkyLights = append(f.SkyLights, l)
	}

	for i := int32(0); i < h.NumBSPMeshes && dec.Err() == nil; i++ {
		m := BSPMesh{Mesh: readMeshData(dec)}
		dec.Read(&m.BSP)
		m.Vertices = channel.ReadArray[VertexRecord](dec)
		m.Indices = channel.ReadArray[uint32](dec)
		f.BSPMeshes = append(f.BSPMeshes, m)
	}
	for i := int32(0); i < h.NumStaticMeshInstances && dec.Err() == nil; i++ {
		m := StaticMeshInstance{Mesh: readMeshData(dec)}
		dec.Read(&m.Instance)
		f.StaticMeshInstances = append(f.StaticMeshInstances, m)
	}
	for i := int32(0); i < h.NumLandscapeInstances && dec.Err() == nil; i++ {
		m := LandscapeInstance{Mesh: readMeshData(dec)}
		dec.Read(&m.Landscape)
		f.LandscapeInstances = append(f.LandscapeInstances, m)
	}

	f.BSPMappings = readSlice[TextureMappingRecord](dec, h.NumBSPMappings)
	f.StaticMeshTextureMappings = readSlice[TextureMappingRecord](dec, h.NumStaticMeshTextureMappings)
	f.LandscapeTextureMappings = readSlice[TextureMappingRecord](dec, h.NumLandscapeTextureMappings)
	f.MaterialHashes = readSlice[types.SHAHash](dec, h.NumMaterials)

	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("protocol: reading scene %s: %w", h.Guid, err)
	}
	return f, nil
}

// Per-static-mesh channel contents.
type StaticMeshFile struct {
	Header StaticMeshFileHeader
	LODs   []StaticMeshLOD
}

type StaticMeshLOD struct {
	Record   StaticMeshLODRecord
	Vertices []VertexRecord
	Indices  []uint32
}

func WriteStaticMesh(w io.Writer, f *StaticMeshFile) error {
	f.Header.Cookie = StaticMeshCookie
	f.Header.FormatVersion = StaticMeshVersion
	f.Header.NumLODs = int32(len(f.LODs))
	enc := channel.NewEncoder(w)
	enc.Write(&f.Header)
	for i := range f.LODs {
		lod := &f.LODs[i]
		enc.Write(&lod.Record)
		channel.WriteArray(enc, lod.Vertices)
		channel.WriteArray(enc, lod.Indices)
	}
	return enc.Err()
}

func ReadStaticMesh(r io.Reader) (*StaticMeshFile, error) {
	dec := channel.NewDecoder(r)
	f := &StaticMeshFile{}
	dec.Read(&f.Header)
	if err := checkHeader(dec, f.Header.Cookie, StaticMeshCookie, f.Header.FormatVersion, StaticMeshVersion); err != nil {
		return nil, err
	}
	for i := int32(0); i < f.Header.NumLODs && dec.Err() == nil; i++ {
		var lod StaticMeshLOD
		dec.Read(&lod.Record)
		lod.Vertices = channel.ReadArray[VertexRecord](dec)
		lod.Indices = channel.ReadArray[uint32](dec)
		f.LODs = append(f.LODs, lod)
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

// Per-landscape channel contents.
type LandscapeFile struct {
	Header  LandscapeFileHeader
	Heights []uint16
}

func WriteLandscape(w io.Writer, f *LandscapeFile) error {
	f.Header.Cookie = LandscapeCookie
	f.Header.FormatVersion = LandscapeVersion
	enc := channel.NewEncoder(w)
	enc.Write(&f.Header)
	channel.WriteArray(enc, f.Heights)
	return enc.Err()
}

func ReadLandscape(r io.Reader) (*LandscapeFile, error) {
	dec := channel.NewDecoder(r)
	f := &LandscapeFile{}
	dec.Read(&f.Header)
	if err := checkHeader(dec, f.Header.Cookie, LandscapeCookie, f.Header.FormatVersion, LandscapeVersion); err != nil {
		return nil, err
	}
	f.Heights = channel.ReadArray[uint16](dec)
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if len(f.Heights) != int(f.Header.SizeX*f.Header.SizeY) {
		return nil, fmt.Errorf("%w: %d heights for %dx%d landscape", ErrBadCount, len(f.Heights), f.Header.SizeX, f.Header.SizeY)
	}
	return f, nil
}

func checkHeader(dec *channel.Decoder, cookie, expCookie uint32, version, expVersion types.GUID) error {
	if err := dec.Err(); err != nil {
		return err
	}
	if cookie != expCookie {
		return fmt.Errorf("%w: %08x", ErrBadCookie, cookie)
	}
	if version != expVersion {
		return fmt.Errorf("%w: %s", ErrBadVersion, version)
	}
	return nil
}
