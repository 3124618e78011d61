package channel

import (
	"compress/zlib"
	"fmt"
	"io"
)

// Encoding tags stored in the first byte of every channel.
const (
	encodingPlain byte = 0
	encodingZlib  byte = 1
)

// Write the encoding tag selected by flags and wrap w so that the channel
// contents are encoded accordingly. The returned finish function flushes the
// encoder and may be nil.
func encodeWriter(w io.Writer, flags Flags) (io.Writer, func() error, error) {
	if flags&Raw != 0 {
		return w, nil, nil
	}

	tag := encodingPlain
	if flags&Compressed != 0 {
		tag = encodingZlib
	}
	if _, err := w.Write([]byte{tag}); err != nil {
		return nil, nil, err
	}
	if tag == encodingZlib {
		zw := zlib.NewWriter(w)
		return zw, zw.Close, nil
	}
	return w, nil, nil
}

// Read the encoding tag from r and wrap r with the matching decoder. The
// returned release function may be nil.
func decodeReader(name string, r io.Reader, flags Flags) (io.Reader, func() error, error) {
	if flags&Raw != 0 {
		return r, nil, nil
	}

	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, nil, fmt.Errorf("channel: %s: missing encoding tag: %w", name, err)
	}
	switch tag[0] {
	case encodingPlain:
		return r, nil, nil
	case encodingZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("channel: %s: %w", name, err)
		}
		return zr, zr.Close, nil
	}
	return nil, nil, fmt.Errorf("%w: %s: %d", ErrUnknownEncoding, name, tag[0])
}
