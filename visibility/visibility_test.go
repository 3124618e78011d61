package visibility

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/achilleasa/lightmass/types"
)

const (
	testCellSize       = 100
	testPlayAreaHeight = 200
	testPrimitive      = 3
)

func testOptions() Options {
	return Options{
		CellSize:             testCellSize,
		PlayAreaHeight:       testPlayAreaHeight,
		SpreadingIterations:  1,
		SpatialHashThreshold: 1000,
		CellBucketSize:       2,
		NumCellBuckets:       4,
		ChunkSize:            32 * 1024,
		CompressionThreshold: 32,
	}
}

func testCell(x, y int, z float32) Cell {
	min := types.Vec3{float32(x * testCellSize), float32(y * testCellSize), z}
	return Cell{
		Bounds: types.BBox{Min: min, Max: min.Add(types.Vec3{testCellSize, testCellSize, testPlayAreaHeight})},
		Bits:   make([]byte, 1),
	}
}

// Build a 5x5 grid centered on (0,0) where only the center cell sees the
// test primitive.
func testGrid() (cells []Cell, center int) {
	for y := -2; y <= 2; y++ {
		for x := -2; x <= 2; x++ {
			c := testCell(x, y, 0)
			if x == 0 && y == 0 {
				SetBit(c.Bits, testPrimitive)
				center = len(cells)
			}
			cells = append(cells, c)
		}
	}
	return cells, center
}

func TestSpreadingReachesOnlyImmediateNeighbors(t *testing.T) {
	for _, threshold := range []int{1000, 0} {
		opts := testOptions()
		opts.SpatialHashThreshold = threshold

		cells, _ := testGrid()
		if err := Spread(cells, opts); err != nil {
			t.Fatal(err)
		}

		for i, c := range cells {
			x := i%5 - 2
			y := i/5 - 2
			exp := x >= -1 && x <= 1 && y >= -1 && y <= 1
			if got := c.IsVisible(testPrimitive); got != exp {
				t.Fatalf("[threshold %d] cell (%d, %d): expected visibility %t; got %t", threshold, x, y, exp, got)
			}
		}
	}
}

func TestSpreadingIterationsUseSnapshot(t *testing.T) {
	opts := testOptions()
	opts.SpreadingIterations = 2

	cells, _ := testGrid()
	if err := Spread(cells, opts); err != nil {
		t.Fatal(err)
	}
	for i, c := range cells {
		if !c.IsVisible(testPrimitive) {
			t.Fatalf("expected cell %d to be reached after two iterations", i)
		}
	}
}

func TestSpreadingVerticalBoundary(t *testing.T) {
	type spec struct {
		dz  float32
		exp bool
	}
	specs := []spec{
		{-testPlayAreaHeight/2 - 10, false},
		{-testPlayAreaHeight/2 + 10, true},
		{-testPlayAreaHeight * 2, false},
		{0, true},
	}

	for index, s := range specs {
		for _, threshold := range []int{1000, 0} {
			opts := testOptions()
			opts.SpatialHashThreshold = threshold

			above := testCell(0, 0, 0)
			SetBit(above.Bits, testPrimitive)
			// A cell diagonally below the visible one.
			below := testCell(1, 1, s.dz)
			cells := []Cell{above, below}

			if err := Spread(cells, opts); err != nil {
				t.Fatal(err)
			}
			if got := cells[1].IsVisible(testPrimitive); got != s.exp {
				t.Fatalf("[spec %d, threshold %d] expected visibility %t; got %t", index, threshold, s.exp, got)
			}
		}
	}
}

func TestSpreadingRejectsMixedWidths(t *testing.T) {
	cells := []Cell{testCell(0, 0, 0), testCell(1, 0, 0)}
	cells[1].Bits = make([]byte, 2)
	if err := Spread(cells, testOptions()); !errors.Is(err, ErrBitWidthMismatch) {
		t.Fatalf("expected ErrBitWidthMismatch; got %v", err)
	}
}

func TestBuildAndLookup(t *testing.T) {
	type spec struct {
		chunkSize     int
		expCompressed bool
	}
	specs := []spec{
		// Everything fits in a single chunk per bucket and gets compressed
		{32 * 1024, true},
		// One cell per chunk; chunks are too small to compress
		{1, false},
	}

	for index, s := range specs {
		opts := testOptions()
		opts.ChunkSize = s.chunkSize

		var cells []Cell
		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				c := testCell(x, y, 0)
				c.Bits = make([]byte, 16)
				SetBit(c.Bits, y*8+x)
				cells = append(cells, c)
			}
		}

		h, err := Build(cells, opts)
		if err != nil {
			t.Fatal(err)
		}
		if !h.IsValid() || h.NumCells() != len(cells) {
			t.Fatalf("[spec %d] expected %d cells; got %d", index, len(cells), h.NumCells())
		}

		var sawCompressed bool
		for _, b := range h.Buckets {
			for _, c := range b.Chunks {
				sawCompressed = sawCompressed || c.Compressed
			}
		}
		if sawCompressed != s.expCompressed {
			t.Fatalf("[spec %d] expected compressed chunks: %t", index, s.expCompressed)
		}

		for y := 0; y < 8; y++ {
			for x := 0; x < 8; x++ {
				pos := types.Vec3{float32(x*testCellSize) + 10, float32(y*testCellSize) + 10, 5}
				bits, ok := h.CellData(pos)
				if !ok {
					t.Fatalf("[spec %d] no cell data at %v", index, pos)
				}
				for id := 0; id < 128; id++ {
					if TestBit(bits, id) != (id == y*8+x) {
						t.Fatalf("[spec %d] cell (%d, %d): unexpected bit %d", index, x, y, id)
					}
				}
			}
		}

		if !h.IsVisible(types.Vec3{-1000, -1000, 0}, 0) {
			t.Fatalf("[spec %d] expected points outside all cells to see everything", index)
		}
	}
}

func TestProcessEmpty(t *testing.T) {
	h, err := Process([][]Cell{nil, {}}, testOptions())
	if err != nil || h != nil {
		t.Fatalf("expected nil handler for empty input; got %v, %v", h, err)
	}

	var existing Handler
	built, _ := Build([]Cell{testCell(0, 0, 0)}, testOptions())
	existing.Update(built)
	if !existing.IsValid() {
		t.Fatal("expected handler to be valid after update")
	}
	existing.Invalidate()
	if existing.IsValid() || existing.NumCells() != 0 {
		t.Fatal("expected invalidated handler to drop its data")
	}
}

func TestBucketRoundTrip(t *testing.T) {
	cells, _ := testGrid()
	var buf bytes.Buffer
	if err := WriteBucket(&buf, cells); err != nil {
		t.Fatal(err)
	}
	got, err := ReadBucket(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(cells) {
		t.Fatalf("expected %d cells; got %d", len(cells), len(got))
	}
	for i := range got {
		if got[i].Bounds != cells[i].Bounds || !bytes.Equal(got[i].Bits, cells[i].Bits) {
			t.Fatalf("cell %d mismatch", i)
		}
	}
}

func TestMergePreservesBucketOrder(t *testing.T) {
	var buckets [][]Cell
	for b := 0; b < 3; b++ {
		var bucket []Cell
		for i := 0; i < 2; i++ {
			bucket = append(bucket, testCell(b, i, 0))
		}
		buckets = append(buckets, bucket)
	}

	merged := Merge(buckets)
	for i, c := range merged {
		exp := fmt.Sprintf("%d,%d", i/2, i%2)
		got := fmt.Sprintf("%d,%d", int(c.Bounds.Min[0])/testCellSize, int(c.Bounds.Min[1])/testCellSize)
		if got != exp {
			t.Fatalf("expected cell %d to be %s; got %s", i, exp, got)
		}
	}
}

func TestSpreadingUnalignedCells(t *testing.T) {
	type spec struct {
		offset types.Vec3
	}
	specs := []spec{
		{types.Vec3{0, 0, 0}},
		{types.Vec3{49.7, -50.2, 0}},
		{types.Vec3{99.5, 0.5, 0}},
		{types.Vec3{-0.4, 50, 0}},
	}

	// Cells placed half a cell off the grid with slight drift so that
	// neighbors straddle hash key boundaries.
	build := func(offset types.Vec3) []Cell {
		var cells []Cell
		for y := -2; y <= 2; y++ {
			for x := -2; x <= 2; x++ {
				c := testCell(x, y, 0)
				drift := types.Vec3{float32(x) * 0.2, float32(y) * -0.2, 0}
				c.Bounds.Min = c.Bounds.Min.Add(offset).Add(drift)
				c.Bounds.Max = c.Bounds.Max.Add(offset).Add(drift)
				SetBit(c.Bits, (x+2)%8)
				cells = append(cells, c)
			}
		}
		return cells
	}

	for index, s := range specs {
		hashed := build(s.offset)
		opts := testOptions()
		if err := Spread(hashed, opts); err != nil {
			t.Fatal(err)
		}

		brute := build(s.offset)
		opts.SpatialHashThreshold = 0
		if err := Spread(brute, opts); err != nil {
			t.Fatal(err)
		}

		for i := range hashed {
			if !bytes.Equal(hashed[i].Bits, brute[i].Bits) {
				t.Fatalf("[spec %d] cell %d: spatial hash result %08b differs from brute force %08b", index, i, hashed[i].Bits, brute[i].Bits)
			}
		}
	}
}
