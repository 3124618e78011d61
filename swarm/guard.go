package swarm

import (
	"fmt"
	"sync"

	"github.com/achilleasa/lightmass/types"
)

// SpecGuard enforces the order of job specification calls:
// BeginSpec, any number of AddTask calls and EndSpec.
type SpecGuard struct {
	mu     sync.Mutex
	begun  bool
	ended  bool
	closed bool
	tasks  map[types.GUID]struct{}
}

func (g *SpecGuard) Begin() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return ErrJobClosed
	case g.ended:
		return ErrSpecEnded
	}
	g.begun = true
	if g.tasks == nil {
		g.tasks = make(map[types.GUID]struct{})
	}
	return nil
}

func (g *SpecGuard) AddTask(task Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return ErrJobClosed
	case !g.begun:
		return ErrSpecNotBegun
	case g.ended:
		return ErrSpecEnded
	case task.Cost <= 0:
		return fmt.Errorf("%w: task %s has cost %d", ErrInvalidCost, task.Guid, task.Cost)
	}
	if _, exists := g.tasks[task.Guid]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, task.Guid)
	}
	g.tasks[task.Guid] = struct{}{}
	return nil
}

func (g *SpecGuard) End() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.closed:
		return ErrJobClosed
	case !g.begun:
		return ErrSpecNotBegun
	case g.ended:
		return ErrSpecEnded
	}
	g.ended = true
	return nil
}

// Close marks the job as closed. It returns false if the job was already
// closed.
func (g *SpecGuard) Close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.closed = true
	return true
}

// Get the number of accepted tasks.
func (g *SpecGuard) NumTasks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}
