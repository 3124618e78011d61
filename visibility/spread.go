package visibility

import (
	"github.com/achilleasa/lightmass/types"
	"github.com/chewxy/math32"
)

type cellKey struct {
	x, y int32
}

// Spread visibility between spatially adjacent cells. Each iteration ORs the
// visibility bits of every cell in the 3x3 XY neighborhood of a cell into it.
// Neighbors are read from a snapshot taken at the start of the iteration so
// the result does not depend on cell order. Cells never gain visibility from
// neighbors whose vertical distance exceeds half the play area height.
func Spread(cells []Cell, opts Options) error {
	if len(cells) == 0 || opts.SpreadingIterations <= 0 {
		return nil
	}
	if err := opts.validate(); err != nil {
		return err
	}
	width := len(cells[0].Bits)
	for i := range cells {
		if len(cells[i].Bits) != width {
			return ErrBitWidthMismatch
		}
	}

	useHash := len(cells) < opts.SpatialHashThreshold
	var grid map[cellKey][]int
	if useHash {
		grid = make(map[cellKey][]int, len(cells))
		for i := range cells {
			k := keyFor(cells[i].Bounds.Min, opts.CellSize)
			grid[k] = append(grid[k], i)
		}
	}

	snapshot := make([][]byte, len(cells))
	for i := range snapshot {
		snapshot[i] = make([]byte, width)
	}

	for iter := 0; iter < opts.SpreadingIterations; iter++ {
		for i := range cells {
			copy(snapshot[i], cells[i].Bits)
		}

		for i := range cells {
			cur := &cells[i]
			if useHash {
				k := keyFor(cur.Bounds.Min, opts.CellSize)
				for dy := -keyReach; dy <= keyReach; dy++ {
					for dx := -keyReach; dx <= keyReach; dx++ {
						for _, j := range grid[cellKey{k.x + dx, k.y + dy}] {
							if isNeighbor(cur, &cells[j], opts) {
								orBits(cur.Bits, snapshot[j])
							}
						}
					}
				}
				continue
			}

			for j := range cells {
				if isNeighbor(cur, &cells[j], opts) {
					orBits(cur.Bits, snapshot[j])
				}
			}
		}
	}
	return nil
}

// Neighbors may be up to neighborReach cell sizes apart, so their hash keys
// differ by at most keyReach along each axis.
const (
	neighborReach float32 = 1.01
	keyReach      int32   = 2
)

func keyFor(p types.Vec3, cellSize float32) cellKey {
	return cellKey{
		x: int32(math32.Floor(p[0] / cellSize)),
		y: int32(math32.Floor(p[1] / cellSize)),
	}
}

func isNeighbor(cur, other *Cell, opts Options) bool {
	if cur.Bounds == other.Bounds {
		return false
	}
	// Allow for float drift in cell placement.
	reach := opts.CellSize * neighborReach
	if math32.Abs(other.Bounds.Min[0]-cur.Bounds.Min[0]) > reach ||
		math32.Abs(other.Bounds.Min[1]-cur.Bounds.Min[1]) > reach {
		return false
	}
	return math32.Abs(other.Bounds.Min[2]-cur.Bounds.Min[2]) <= opts.PlayAreaHeight*0.5
}

func orBits(dst, src []byte) {
	for i := range dst {
		dst[i] |= src[i]
	}
}
