package channel

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
)

var ErrSizeMismatch = errors.New("channel: decompressed size mismatch")

// Compress a payload using zlib.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress a zlib payload whose uncompressed size is known up front. The
// output is allocated once and the stream must inflate to exactly that size.
func Decompress(data []byte, uncompressedSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	out := make([]byte, uncompressedSize)
	if _, err = io.ReadFull(zr, out); err != nil {
		return nil, fmt.Errorf("%w: expected %d bytes: %v", ErrSizeMismatch, uncompressedSize, err)
	}

	var extra [1]byte
	if n, _ := zr.Read(extra[:]); n != 0 {
		return nil, fmt.Errorf("%w: stream longer than %d bytes", ErrSizeMismatch, uncompressedSize)
	}
	return out, nil
}
