package material

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/achilleasa/lightmass/types"
	"golang.org/x/sync/errgroup"
)

// Compiler generates material samples asynchronously. Submit schedules work
// and Wait blocks until every submitted material has been processed.
type Compiler struct {
	group *errgroup.Group
	ctx   context.Context

	mu      sync.Mutex
	results map[types.SHAHash]*Samples
}

// Create a compiler that runs at most limit generators concurrently. A limit
// <= 0 uses one generator per CPU.
func NewCompiler(ctx context.Context, limit int) *Compiler {
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)
	return &Compiler{
		group:   group,
		ctx:     ctx,
		results: make(map[types.SHAHash]*Samples),
	}
}

// Schedule sample generation for a material. Submit blocks while the
// concurrency limit is reached.
func (c *Compiler) Submit(hash types.SHAHash, m *Material, sizes [NumProperties]int, unwrapMask image.Image) {
	c.group.Go(func() error {
		if err := c.ctx.Err(); err != nil {
			return err
		}
		samples := GenerateSamples(m, sizes, unwrapMask)
		c.mu.Lock()
		c.results[hash] = samples
		c.mu.Unlock()
		return nil
	})
}

// Wait for all submitted work to complete.
func (c *Compiler) Wait() error {
	return c.group.Wait()
}

// Get the samples generated for a material hash.
func (c *Compiler) Samples(hash types.SHAHash) *Samples {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[hash]
}

// Drop the samples for a material hash.
func (c *Compiler) Release(hash types.SHAHash) {
	c.mu.Lock()
	delete(c.results, hash)
	c.mu.Unlock()
}
