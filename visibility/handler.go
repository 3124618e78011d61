package visibility

import (
	"sync"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/types"
	"github.com/chewxy/math32"
)

// A chunk of concatenated cell bitsets, optionally zlib compressed.
type Chunk struct {
	Compressed       bool
	UncompressedSize int
	Data             []byte
}

// Location of a cell's bitset inside its bucket chunks.
type CellInfo struct {
	Min        types.Vec3
	ChunkIndex int
	DataOffset int
}

type Bucket struct {
	Cells  []CellInfo
	Chunks []Chunk
}

// Handler is the runtime visibility lookup structure stored on the
// persistent level.
type Handler struct {
	CellSize           float32
	PlayAreaHeight     float32
	CellBucketOriginXY types.Vec2
	CellBucketSize     int
	NumCellBuckets     int
	BytesPerCell       int
	Buckets            []Bucket

	valid bool

	// Decompressed chunk cache used by CellData.
	mu    sync.Mutex
	cache map[[2]int][]byte
}

// Returns true if the handler holds visibility data.
func (h *Handler) IsValid() bool {
	return h != nil && h.valid
}

// Drop all stored visibility data.
func (h *Handler) Invalidate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.valid = false
	h.Buckets = nil
	h.cache = nil
}

// Replace the handler contents with the contents of another handler.
func (h *Handler) Update(src *Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CellSize = src.CellSize
	h.PlayAreaHeight = src.PlayAreaHeight
	h.CellBucketOriginXY = src.CellBucketOriginXY
	h.CellBucketSize = src.CellBucketSize
	h.NumCellBuckets = src.NumCellBuckets
	h.BytesPerCell = src.BytesPerCell
	h.Buckets = src.Buckets
	h.valid = src.valid
	h.cache = nil
}

// Number of cells stored in the handler.
func (h *Handler) NumCells() int {
	var n int
	for i := range h.Buckets {
		n += len(h.Buckets[i].Cells)
	}
	return n
}

// Number of chunks stored in the handler.
func (h *Handler) NumChunks() int {
	var n int
	for i := range h.Buckets {
		n += len(h.Buckets[i].Chunks)
	}
	return n
}

func (h *Handler) bucketIndex(p types.Vec3) int {
	bucketWorldSize := h.CellSize * float32(h.CellBucketSize)
	bx := int(math32.Floor((p[0]-h.CellBucketOriginXY[0])/bucketWorldSize)) % h.NumCellBuckets
	by := int(math32.Floor((p[1]-h.CellBucketOriginXY[1])/bucketWorldSize)) % h.NumCellBuckets
	if bx < 0 {
		bx += h.NumCellBuckets
	}
	if by < 0 {
		by += h.NumCellBuckets
	}
	return by*h.NumCellBuckets + bx
}

// Look up the visibility bitset of the cell containing pos.
func (h *Handler) CellData(pos types.Vec3) ([]byte, bool) {
	if !h.IsValid() {
		return nil, false
	}
	bucketIndex := h.bucketIndex(pos)
	bucket := &h.Buckets[bucketIndex]
	for _, cell := range bucket.Cells {
		if pos[0] < cell.Min[0] || pos[0] >= cell.Min[0]+h.CellSize ||
			pos[1] < cell.Min[1] || pos[1] >= cell.Min[1]+h.CellSize ||
			pos[2] < cell.Min[2] || pos[2] >= cell.Min[2]+h.PlayAreaHeight {
			continue
		}

		data, err := h.chunkData(bucketIndex, cell.ChunkIndex)
		if err != nil {
			return nil, false
		}
		return data[cell.DataOffset : cell.DataOffset+h.BytesPerCell], true
	}
	return nil, false
}

// Returns true if a primitive is visible from the cell containing pos. Points
// outside all cells report everything as visible.
func (h *Handler) IsVisible(pos types.Vec3, visibilityId int) bool {
	bits, ok := h.CellData(pos)
	if !ok {
		return true
	}
	return TestBit(bits, visibilityId)
}

func (h *Handler) chunkData(bucketIndex, chunkIndex int) ([]byte, error) {
	chunk := &h.Buckets[bucketIndex].Chunks[chunkIndex]
	if !chunk.Compressed {
		return chunk.Data, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := [2]int{bucketIndex, chunkIndex}
	if data, ok := h.cache[key]; ok {
		return data, nil
	}
	data, err := channel.Decompress(chunk.Data, chunk.UncompressedSize)
	if err != nil {
		return nil, err
	}
	if h.cache == nil {
		h.cache = make(map[[2]int][]byte)
	}
	h.cache[key] = data
	return data, nil
}

// Build the runtime structure from a flat list of cells. Cells are
// distributed to a fixed grid of rendering buckets by world position and each
// bucket's bitsets are packed into chunks of roughly opts.ChunkSize bytes.
func Build(cells []Cell, opts Options) (*Handler, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return &Handler{}, nil
	}

	h := &Handler{
		CellSize:       opts.CellSize,
		PlayAreaHeight: opts.PlayAreaHeight,
		CellBucketSize: opts.CellBucketSize,
		NumCellBuckets: opts.NumCellBuckets,
		BytesPerCell:   len(cells[0].Bits),
		Buckets:        make([]Bucket, opts.NumCellBuckets*opts.NumCellBuckets),
		valid:          true,
	}
	h.CellBucketOriginXY = types.Vec2{cells[0].Bounds.Min[0], cells[0].Bounds.Min[1]}
	for i := range cells {
		if len(cells[i].Bits) != h.BytesPerCell {
			return nil, ErrBitWidthMismatch
		}
		h.CellBucketOriginXY[0] = math32.Min(h.CellBucketOriginXY[0], cells[i].Bounds.Min[0])
		h.CellBucketOriginXY[1] = math32.Min(h.CellBucketOriginXY[1], cells[i].Bounds.Min[1])
	}

	bucketCells := make([][]int, len(h.Buckets))
	for i := range cells {
		// Use the cell center to avoid boundary ambiguity.
		b := h.bucketIndex(cells[i].Bounds.Min.Add(types.Vec3{h.CellSize * 0.5, h.CellSize * 0.5, 0}))
		bucketCells[b] = append(bucketCells[b], i)
	}

	cellsPerChunk := opts.ChunkSize / max(h.BytesPerCell, 1)
	if cellsPerChunk < 1 {
		cellsPerChunk = 1
	}

	for b, indices := range bucketCells {
		bucket := &h.Buckets[b]
		for start := 0; start < len(indices); start += cellsPerChunk {
			end := min(start+cellsPerChunk, len(indices))
			raw := make([]byte, 0, (end-start)*h.BytesPerCell)
			for _, ci := range indices[start:end] {
				bucket.Cells = append(bucket.Cells, CellInfo{
					Min:        cells[ci].Bounds.Min,
					ChunkIndex: len(bucket.Chunks),
					DataOffset: len(raw),
				})
				raw = append(raw, cells[ci].Bits...)
			}

			chunk := Chunk{UncompressedSize: len(raw), Data: raw}
			if len(raw) > opts.CompressionThreshold {
				compressed, err := channel.Compress(raw)
				if err != nil {
					return nil, err
				}
				chunk.Compressed = true
				chunk.Data = compressed
			}
			bucket.Chunks = append(bucket.Chunks, chunk)
		}
	}
	return h, nil
}

// Merge bucket cell lists, spread visibility and build the runtime
// structure. It returns nil when there are no cells.
func Process(buckets [][]Cell, opts Options) (*Handler, error) {
	cells := Merge(buckets)
	if len(cells) == 0 {
		return nil, nil
	}
	if err := Spread(cells, opts); err != nil {
		return nil, err
	}
	return Build(cells, opts)
}
