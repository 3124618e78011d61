package protocol

import (
	"fmt"
	"io"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/types"
)

// Material sample properties in the order their buffers are stored.
const (
	SampleDiffuse = iota
	SampleEmissive
	SampleTransmission
	SampleNormal
	NumSampleProperties
)

type MaterialFileHeader struct {
	Cookie        uint32
	FormatVersion types.GUID
	Hash          types.SHAHash
}

type MaterialData struct {
	BlendMode            uint32
	TwoSided             bool
	CastShadowAsMasked   bool
	EmissiveBoost        float32
	DiffuseBoost         float32
	OpacityMaskClipValue float32
	// Edge length of each sample buffer; zero when the property is not
	// exported for this material.
	SampleSizes [NumSampleProperties]int32
}

// A half-float RGBA texel.
type HalfRGBA [4]uint16

// The decoded contents of a material channel.
type MaterialFile struct {
	Header  MaterialFileHeader
	Data    MaterialData
	Samples [NumSampleProperties][]HalfRGBA
}

func WriteMaterial(w io.Writer, f *MaterialFile) error {
	f.Header.Cookie = MaterialCookie
	f.Header.FormatVersion = MaterialVersion
	for prop := range f.Samples {
		size := int(f.Data.SampleSizes[prop])
		if len(f.Samples[prop]) != size*size {
			return fmt.Errorf("%w: property %d has %d samples, expected %d", ErrBadCount, prop, len(f.Samples[prop]), size*size)
		}
	}

	enc := channel.NewEncoder(w)
	enc.Write(&f.Header)
	enc.Write(&f.Data)
	for prop := range f.Samples {
		if f.Data.SampleSizes[prop] > 0 {
			enc.Write(f.Samples[prop])
		}
	}
	return enc.Err()
}

func ReadMaterial(r io.Reader) (*MaterialFile, error) {
	dec := channel.NewDecoder(r)
	f := &MaterialFile{}
	dec.Read(&f.Header)
	if err := checkHeader(dec, f.Header.Cookie, MaterialCookie, f.Header.FormatVersion, MaterialVersion); err != nil {
		return nil, err
	}
	dec.Read(&f.Data)
	for prop, size := range f.Data.SampleSizes {
		if size > 0 {
			f.Samples[prop] = readSlice[HalfRGBA](dec, size*size)
		}
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return f, nil
}
