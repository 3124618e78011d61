package protocol

import (
	"fmt"
	"io"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/types"
)

type LevelVolumeSamples struct {
	LevelGuid types.GUID
	Samples   []VolumeSampleRecord
}

type VolumeSamplesFile struct {
	Header VolumeSamplesHeader
	Levels []LevelVolumeSamples
}

func WriteVolumeSamples(w io.Writer, f *VolumeSamplesFile) error {
	enc := channel.NewEncoder(w)
	enc.Write(&f.Header)
	enc.WriteCount(len(f.Levels))
	for i := range f.Levels {
		enc.Write(&f.Levels[i].LevelGuid)
		channel.WriteArray(enc, f.Levels[i].Samples)
	}
	return enc.Err()
}

func ReadVolumeSamples(r io.Reader) (*VolumeSamplesFile, error) {
	dec := channel.NewDecoder(r)
	f := &VolumeSamplesFile{}
	dec.Read(&f.Header)
	numLevels := dec.ReadCount()
	for i := 0; i < numLevels && dec.Err() == nil; i++ {
		var level LevelVolumeSamples
		dec.Read(&level.LevelGuid)
		level.Samples = channel.ReadArray[VolumeSampleRecord](dec)
		f.Levels = append(f.Levels, level)
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

type VolumetricLightmapBrick struct {
	Record VolumetricLightmapBrickRecord
	Voxels []VolumetricLightmapVoxelRecord
}

func WriteVolumetricLightmapBricks(w io.Writer, bricks []VolumetricLightmapBrick) error {
	enc := channel.NewEncoder(w)
	enc.WriteCount(len(bricks))
	for i := range bricks {
		enc.Write(&bricks[i].Record)
		channel.WriteArray(enc, bricks[i].Voxels)
	}
	return enc.Err()
}

// Read the bricks of a volumetric lightmap task. Every brick must contain
// exactly brickSize^3 voxels.
func ReadVolumetricLightmapBricks(r io.Reader, brickSize int) ([]VolumetricLightmapBrick, error) {
	dec := channel.NewDecoder(r)
	numBricks := dec.ReadCount()
	bricks := make([]VolumetricLightmapBrick, 0, numBricks)
	expVoxels := brickSize * brickSize * brickSize
	for i := 0; i < numBricks && dec.Err() == nil; i++ {
		var brick VolumetricLightmapBrick
		dec.Read(&brick.Record)
		brick.Voxels = channel.ReadArray[VolumetricLightmapVoxelRecord](dec)
		if dec.Err() == nil && len(brick.Voxels) != expVoxels {
			dec.Fail(fmt.Errorf("%w: brick %d has %d voxels, expected %d", ErrBadCount, i, len(brick.Voxels), expVoxels))
		}
		bricks = append(bricks, brick)
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return bricks, nil
}

func WriteMeshAreaLights(w io.Writer, lights []MeshAreaLightRecord) error {
	enc := channel.NewEncoder(w)
	channel.WriteArray(enc, lights)
	return enc.Err()
}

func ReadMeshAreaLights(r io.Reader) ([]MeshAreaLightRecord, error) {
	dec := channel.NewDecoder(r)
	lights := channel.ReadArray[MeshAreaLightRecord](dec)
	return lights, dec.Err()
}

type VolumeDistanceFieldFile struct {
	Header    VolumeDistanceFieldHeader
	Distances []uint8
}

func WriteVolumeDistanceField(w io.Writer, f *VolumeDistanceFieldFile) error {
	enc := channel.NewEncoder(w)
	enc.Write(&f.Header)
	channel.WriteArray(enc, f.Distances)
	return enc.Err()
}

func ReadVolumeDistanceField(r io.Reader) (*VolumeDistanceFieldFile, error) {
	dec := channel.NewDecoder(r)
	f := &VolumeDistanceFieldFile{}
	dec.Read(&f.Header)
	f.Distances = channel.ReadArray[uint8](dec)
	if err := dec.Err(); err != nil {
		return nil, err
	}
	h := f.Header
	if len(f.Distances) != int(h.SizeX*h.SizeY*h.SizeZ) {
		return nil, fmt.Errorf("%w: %d distance samples for %dx%dx%d volume", ErrBadCount, len(f.Distances), h.SizeX, h.SizeY, h.SizeZ)
	}
	return f, nil
}

type ShadowDepthMapFile struct {
	Header ShadowDepthMapHeader
	// Half-float depth samples.
	Depths []uint16
}

func WriteShadowDepthMap(w io.Writer, f *ShadowDepthMapFile) error {
	enc := channel.NewEncoder(w)
	enc.Write(&f.Header)
	channel.WriteArray(enc, f.Depths)
	return enc.Err()
}

func ReadShadowDepthMap(r io.Reader) (*ShadowDepthMapFile, error) {
	dec := channel.NewDecoder(r)
	f := &ShadowDepthMapFile{}
	dec.Read(&f.Header)
	f.Depths = channel.ReadArray[uint16](dec)
	if err := dec.Err(); err != nil {
		return nil, err
	}
	if len(f.Depths) != int(f.Header.SizeX*f.Header.SizeY) {
		return nil, fmt.Errorf("%w: %d depth samples for %dx%d shadow map", ErrBadCount, len(f.Depths), f.Header.SizeX, f.Header.SizeY)
	}
	return f, nil
}
