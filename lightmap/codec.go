package lightmap

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/types"
)

// Payloads up to this size are stored raw since compressing them would not
// save any space.
const DefaultCompressionThreshold = 32

// The lighting results for a single mapping.
type MappingResult struct {
	Guid          types.GUID
	ExecutionTime time.Duration
	LightMap      *LightMap
	ShadowMaps    []*ShadowMap
}

// Write the results for a set of mappings as a single texture mapping
// channel. Payloads larger than compressionThreshold bytes are zlib
// compressed.
func WriteMappingResults(enc *channel.Encoder, results []*MappingResult, compressionThreshold int) {
	enc.WriteCount(len(results))
	for _, res := range results {
		enc.Write(&protocol.MappingResultHeader{
			Guid:          res.Guid,
			ExecutionTime: res.ExecutionTime.Seconds(),
		})

		// Mappings with shadow maps only get a zero sized light map header.
		if lm := res.LightMap; lm != nil {
			payload, compressedSize, err := encodePayload(texelBytes(lm.Texels), compressionThreshold)
			if err != nil {
				enc.Fail(err)
				return
			}
			enc.Write(&protocol.LightMapDataHeader{
				SizeX:            int32(lm.SizeX),
				SizeY:            int32(lm.SizeY),
				Scale:            lm.Scale,
				Add:              lm.Add,
				HasSkyShadowing:  lm.HasSkyShadowing,
				CompressedSize:   compressedSize,
				UncompressedSize: uint32(len(lm.Texels) * TexelSize),
			})
			enc.WriteBytes(payload)
		} else {
			enc.Write(&protocol.LightMapDataHeader{})
		}

		enc.WriteCount(len(res.ShadowMaps))
		for _, sm := range res.ShadowMaps {
			payload, compressedSize, err := encodePayload(shadowTexelBytes(sm.Texels), compressionThreshold)
			if err != nil {
				enc.Fail(err)
				return
			}
			enc.Write(&protocol.ShadowMapDataHeader{
				LightGuid:        sm.LightGuid,
				SizeX:            int32(sm.SizeX),
				SizeY:            int32(sm.SizeY),
				CompressedSize:   compressedSize,
				UncompressedSize: uint32(len(sm.Texels) * ShadowTexelSize),
			})
			enc.WriteBytes(payload)
		}
	}
}

// Read the number of mappings stored in a texture mapping channel.
func ReadMappingCount(dec *channel.Decoder) int {
	return dec.ReadCount()
}

// Read the next mapping from a texture mapping channel.
func ReadMappingResult(dec *channel.Decoder) (*MappingResult, error) {
	var hdr protocol.MappingResultHeader
	dec.Read(&hdr)

	var lmHdr protocol.LightMapDataHeader
	dec.Read(&lmHdr)
	if err := dec.Err(); err != nil {
		return nil, err
	}

	res := &MappingResult{
		Guid:          hdr.Guid,
		ExecutionTime: time.Duration(hdr.ExecutionTime * float64(time.Second)),
	}

	numTexels := int(lmHdr.SizeX) * int(lmHdr.SizeY)
	if lmHdr.SizeX < 0 || lmHdr.SizeY < 0 || int(lmHdr.UncompressedSize) != numTexels*TexelSize {
		return nil, fmt.Errorf("%w: mapping %s: %d bytes for %dx%d texels", ErrSizeMismatch, hdr.Guid, lmHdr.UncompressedSize, lmHdr.SizeX, lmHdr.SizeY)
	}
	raw, err := decodePayload(dec, lmHdr.CompressedSize, lmHdr.UncompressedSize)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", hdr.Guid, err)
	}
	if numTexels != 0 {
		res.LightMap = &LightMap{
			SizeX:           int(lmHdr.SizeX),
			SizeY:           int(lmHdr.SizeY),
			Scale:           lmHdr.Scale,
			Add:             lmHdr.Add,
			HasSkyShadowing: lmHdr.HasSkyShadowing,
			Texels:          bytesToTexels(raw, numTexels),
		}
	}

	numShadowMaps := dec.ReadCount()
	for i := 0; i < numShadowMaps && dec.Err() == nil; i++ {
		var smHdr protocol.ShadowMapDataHeader
		dec.Read(&smHdr)
		if err = dec.Err(); err != nil {
			return nil, err
		}
		n := int(smHdr.SizeX) * int(smHdr.SizeY)
		if smHdr.SizeX < 0 || smHdr.SizeY < 0 || int(smHdr.UncompressedSize) != n*ShadowTexelSize {
			return nil, fmt.Errorf("%w: shadow map for light %s: %d bytes for %dx%d texels", ErrSizeMismatch, smHdr.LightGuid, smHdr.UncompressedSize, smHdr.SizeX, smHdr.SizeY)
		}
		raw, err = decodePayload(dec, smHdr.CompressedSize, smHdr.UncompressedSize)
		if err != nil {
			return nil, fmt.Errorf("shadow map for light %s: %w", smHdr.LightGuid, err)
		}
		res.ShadowMaps = append(res.ShadowMaps, &ShadowMap{
			LightGuid: smHdr.LightGuid,
			SizeX:     int(smHdr.SizeX),
			SizeY:     int(smHdr.SizeY),
			Texels:    bytesToShadowTexels(raw, n),
		})
	}
	if err = dec.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func encodePayload(raw []byte, compressionThreshold int) (payload []byte, compressedSize uint32, err error) {
	if len(raw) <= compressionThreshold {
		return raw, 0, nil
	}
	payload, err = channel.Compress(raw)
	if err != nil {
		return nil, 0, err
	}
	return payload, uint32(len(payload)), nil
}

func decodePayload(dec *channel.Decoder, compressedSize, uncompressedSize uint32) ([]byte, error) {
	if compressedSize == 0 {
		raw := dec.ReadBytes(int(uncompressedSize))
		return raw, dec.Err()
	}
	payload := dec.ReadBytes(int(compressedSize))
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return channel.Decompress(payload, int(uncompressedSize))
}

// Texels only contain byte fields so their in-memory layout matches the
// encoded layout.

func texelBytes(texels []Texel) []byte {
	if len(texels) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&texels[0])), len(texels)*TexelSize)
}

func shadowTexelBytes(texels []ShadowTexel) []byte {
	if len(texels) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&texels[0])), len(texels)*ShadowTexelSize)
}

func bytesToTexels(raw []byte, n int) []Texel {
	out := make([]Texel, n)
	copy(texelBytes(out), raw)
	return out
}

func bytesToShadowTexels(raw []byte, n int) []ShadowTexel {
	out := make([]ShadowTexel, n)
	copy(shadowTexelBytes(out), raw)
	return out
}
