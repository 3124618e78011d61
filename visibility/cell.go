// Package visibility post-processes the precomputed visibility cells
// produced by lighting workers and builds the runtime lookup structure.
package visibility

import (
	"errors"
	"fmt"
	"io"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/types"
)

var (
	ErrBitWidthMismatch = errors.New("visibility: cells have different visibility bit widths")
	ErrInvalidOptions   = errors.New("visibility: invalid options")
)

// A Cell records which primitives are visible from anywhere inside its
// bounds. Bit i of Bits is set when the primitive with visibility id i is
// visible.
type Cell struct {
	Bounds types.BBox
	Bits   []byte
}

// Returns true if the primitive with the given visibility id is visible from
// the cell.
func (c *Cell) IsVisible(visibilityId int) bool {
	return TestBit(c.Bits, visibilityId)
}

func TestBit(bits []byte, id int) bool {
	if id < 0 || id/8 >= len(bits) {
		return false
	}
	return bits[id/8]&(1<<(uint(id)%8)) != 0
}

func SetBit(bits []byte, id int) {
	bits[id/8] |= 1 << (uint(id) % 8)
}

// Number of bytes needed to store one bit per visibility id.
func BitsetLen(numVisibilityIds int) int {
	return (numVisibilityIds + 7) / 8
}

type Options struct {
	CellSize             float32
	PlayAreaHeight       float32
	SpreadingIterations  int
	SpatialHashThreshold int
	CellBucketSize       int
	NumCellBuckets       int
	ChunkSize            int
	CompressionThreshold int
}

func OptionsFromConfig(cfg config.Visibility) Options {
	return Options{
		CellSize:             cfg.CellSize,
		PlayAreaHeight:       cfg.PlayAreaHeight,
		SpreadingIterations:  cfg.SpreadingIterations,
		SpatialHashThreshold: cfg.SpatialHashThreshold,
		CellBucketSize:       cfg.CellBucketSize,
		NumCellBuckets:       cfg.NumCellBuckets,
		ChunkSize:            cfg.ChunkSize,
		CompressionThreshold: cfg.CompressionThreshold,
	}
}

func (o Options) validate() error {
	if o.CellSize <= 0 || o.CellBucketSize <= 0 || o.NumCellBuckets <= 0 || o.ChunkSize <= 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidOptions, o)
	}
	return nil
}

// Write the cells of a visibility bucket.
func WriteBucket(w io.Writer, cells []Cell) error {
	enc := channel.NewEncoder(w)
	enc.WriteCount(len(cells))
	for i := range cells {
		enc.Write(&cells[i].Bounds)
		channel.WriteArray(enc, cells[i].Bits)
	}
	return enc.Err()
}

// Read the cells of a visibility bucket.
func ReadBucket(r io.Reader) ([]Cell, error) {
	dec := channel.NewDecoder(r)
	numCells := dec.ReadCount()
	cells := make([]Cell, 0, numCells)
	for i := 0; i < numCells && dec.Err() == nil; i++ {
		var c Cell
		dec.Read(&c.Bounds)
		c.Bits = channel.ReadArray[byte](dec)
		cells = append(cells, c)
	}
	if err := dec.Err(); err != nil {
		return nil, err
	}
	return cells, nil
}

// Concatenate per bucket cell lists in bucket order.
func Merge(buckets [][]Cell) []Cell {
	var n int
	for _, b := range buckets {
		n += len(b)
	}
	out := make([]Cell, 0, n)
	for _, b := range buckets {
		out = append(out, b...)
	}
	return out
}
