package local

import (
	"testing"
	"time"

	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
)

func makeTasks(costs ...int64) []swarm.Task {
	tasks := make([]swarm.Task, len(costs))
	for i, cost := range costs {
		tasks[i] = swarm.Task{Guid: types.GUID{A: uint32(i + 1)}, Cost: cost}
	}
	return tasks
}

func queueCosts(queue []swarm.Task) []int64 {
	out := make([]int64, len(queue))
	for i, task := range queue {
		out[i] = task.Cost
	}
	return out
}

func TestCostScheduler(t *testing.T) {
	type spec struct {
		stats     []Stats
		costs     []int64
		expQueues [][]int64
	}
	specs := []spec{
		// Without feedback workers are assumed to be equally fast
		{
			[]Stats{{}, {}},
			[]int64{4, 10, 2, 8, 5, 3},
			[][]int64{{10, 4, 2}, {8, 5, 3}},
		},
		// Worker 0 processed twice as much cost per unit of time
		{
			[]Stats{{Cost: 10, Time: 5}, {Cost: 10, Time: 10}},
			[]int64{6, 6, 6},
			[][]int64{{6, 6}, {6}},
		},
		// Idle workers get the mean speed of the measured ones
		{
			[]Stats{{Cost: 10, Time: 10}, {}},
			[]int64{1, 1},
			[][]int64{{1}, {1}},
		},
		// More workers than tasks
		{
			[]Stats{{}, {}, {}},
			[]int64{7},
			[][]int64{{7}, {}, {}},
		},
	}

	sch := NewCostScheduler()
	for index, s := range specs {
		queues := sch.Schedule(s.stats, makeTasks(s.costs...))
		if len(queues) != len(s.expQueues) {
			t.Fatalf("[spec %d] expected %d queues; got %d", index, len(s.expQueues), len(queues))
		}
		for w, expCosts := range s.expQueues {
			got := queueCosts(queues[w])
			if len(got) != len(expCosts) {
				t.Fatalf("[spec %d] expected worker %d to be assigned %v; got %v", index, w, expCosts, got)
			}
			for i := range got {
				if got[i] != expCosts[i] {
					t.Fatalf("[spec %d] expected worker %d to be assigned %v; got %v", index, w, expCosts, got)
				}
			}
		}
	}
}

func TestSpeedEstimates(t *testing.T) {
	speeds := speedEstimates([]Stats{
		{Cost: 100, Time: 10 * time.Nanosecond},
		{Cost: 100, Time: 50 * time.Nanosecond},
		{},
	})
	expSpeeds := []float64{10, 2, 6}
	for i, exp := range expSpeeds {
		if speeds[i] != exp {
			t.Fatalf("expected speed of worker %d to be %f; got %f", i, exp, speeds[i])
		}
	}
}
