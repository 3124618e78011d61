// Package protocol defines the binary records exchanged with lighting workers
// over channels: record layouts, format versions, channel extensions and
// header cookies.
//
// All records are fixed size and encoded in host byte order without padding.
// Variable sized collections follow the record that owns them as
// length-prefixed arrays.
package protocol

import (
	"errors"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/types"
)

var (
	ErrBadCookie  = errors.New("protocol: unexpected header cookie")
	ErrBadVersion = errors.New("protocol: unsupported format version")
	ErrBadCount   = errors.New("protocol: record count does not match header")
)

// Header cookies.
const (
	SceneCookie      uint32 = 'S'<<24 | 'C'<<16 | 'E'<<8 | 'N'
	MaterialCookie   uint32 = 'M'<<24 | 'T'<<16 | 'R'<<8 | 'L'
	StaticMeshCookie uint32 = 'S'<<24 | 'M'<<16 | 'S'<<8 | 'H'
	LandscapeCookie  uint32 = 'L'<<24 | 'S'<<16 | 'C'<<8 | 'P'
)

// Format versions. Changing a record layout requires a new version so that
// channels written in the old format are never opened by the new reader.
var (
	SceneVersion                = types.GUID{A: 0x2D7A9C11, B: 0x4E6B5F30, C: 0xA1C84D07, D: 0x9B3E1F52}
	MaterialVersion             = types.GUID{A: 0x6C1E04B8, B: 0x19F44A7D, C: 0x8D2B63C5, D: 0x07AF9E14}
	StaticMeshVersion           = types.GUID{A: 0xC0E51A9F, B: 0x3B8D4E62, C: 0x9F71D2A8, D: 0x55C3B610}
	LandscapeVersion            = types.GUID{A: 0x83A4F2D6, B: 0x0C5E4B91, C: 0xB46A1F7E, D: 0xE2D9035C}
	TextureMappingVersion       = types.GUID{A: 0x1F8B6E23, B: 0xD74A4C05, C: 0x88E1B3F9, D: 0x6A0C52D7}
	VisibilityVersion           = types.GUID{A: 0x4B0D7A85, B: 0xE6394F1C, C: 0xA5F82D60, D: 0x3C71E9B4}
	VolumeSamplesVersion        = types.GUID{A: 0x97E2C04A, B: 0x58B14D3E, C: 0x8C6FA715, D: 0xD0493B28}
	VolumetricLightmapVersion   = types.GUID{A: 0x2E6F91C7, B: 0xA0D54B83, C: 0x9E3C7F41, D: 0x1B8264AD}
	MeshAreaLightVersion        = types.GUID{A: 0xF5A3D81E, B: 0x6B2C4097, C: 0xB1E7C35A, D: 0x48D9062F}
	VolumeDistanceFieldVersion  = types.GUID{A: 0x3D9C6B02, B: 0x71E84FA5, C: 0x8B4D20E6, D: 0xC7F1A953}
	StaticShadowDepthMapVersion = types.GUID{A: 0xA8174E5C, B: 0x2F9B4D60, C: 0x93C5E0B7, D: 0x6E02D8F1}
)

// Channel extensions.
const (
	SceneExtension                = ".scene"
	MaterialExtension             = ".mtrl"
	StaticMeshExtension           = ".mesh"
	LandscapeExtension            = ".lscp"
	TextureMappingExtension       = ".tmap"
	VisibilityExtension           = ".vis"
	VolumeSamplesExtension        = ".vols"
	VolumetricLightmapExtension   = ".vlm"
	MeshAreaLightExtension        = ".mal"
	VolumeDistanceFieldExtension  = ".dfv"
	StaticShadowDepthMapExtension = ".sdm"
)

// Well known task GUIDs for the tasks that exist at most once per build.
var (
	VolumeSamplesTaskGuid       = types.GUID{A: 0xCE97C5C3, B: 0xAB614FD3, C: 0xB2DA55C0, D: 0xE6C33FB4}
	MeshAreaLightTaskGuid       = types.GUID{A: 0xE11A0C80, B: 0xA35A4EB8, C: 0x95CBA5B0, D: 0xC9E3A1F1}
	VolumeDistanceFieldTaskGuid = types.GUID{A: 0x4ABF306E, B: 0x4F1B4E9F, C: 0x94C7E1A6, D: 0x7B5D0D28}
)

// Channel name helpers for every channel kind.

func SceneChannel(sceneGuid types.GUID) string {
	return channel.NameForGUID(sceneGuid, SceneVersion, SceneExtension)
}

func MaterialChannel(hash types.SHAHash) string {
	return channel.NameForHash(hash, MaterialVersion, MaterialExtension)
}

func StaticMeshChannel(meshGuid types.GUID) string {
	return channel.NameForGUID(meshGuid, StaticMeshVersion, StaticMeshExtension)
}

func LandscapeChannel(landscapeGuid types.GUID) string {
	return channel.NameForGUID(landscapeGuid, LandscapeVersion, LandscapeExtension)
}

func TextureMappingChannel(mappingGuid types.GUID) string {
	return channel.NameForGUID(mappingGuid, TextureMappingVersion, TextureMappingExtension)
}

func VisibilityChannel(bucketGuid types.GUID) string {
	return channel.NameForGUID(bucketGuid, VisibilityVersion, VisibilityExtension)
}

func VolumeSamplesChannel() string {
	return channel.NameForGUID(VolumeSamplesTaskGuid, VolumeSamplesVersion, VolumeSamplesExtension)
}

func VolumetricLightmapChannel(taskGuid types.GUID) string {
	return channel.NameForGUID(taskGuid, VolumetricLightmapVersion, VolumetricLightmapExtension)
}

func MeshAreaLightChannel() string {
	return channel.NameForGUID(MeshAreaLightTaskGuid, MeshAreaLightVersion, MeshAreaLightExtension)
}

func VolumeDistanceFieldChannel() string {
	return channel.NameForGUID(VolumeDistanceFieldTaskGuid, VolumeDistanceFieldVersion, VolumeDistanceFieldExtension)
}

func StaticShadowDepthMapChannel(lightGuid types.GUID) string {
	return channel.NameForGUID(lightGuid, StaticShadowDepthMapVersion, StaticShadowDepthMapExtension)
}
