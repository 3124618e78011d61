package local

import (
	"sort"
	"time"

	"github.com/achilleasa/lightmass/swarm"
)

// Worker statistics collected while executing the last job.
type Stats struct {
	// The total cost of the tasks executed by the worker.
	Cost int64

	// The time spent executing them.
	Time time.Duration
}

// The Scheduler interface is implemented by all task scheduling algorithms.
type Scheduler interface {
	// Split the tasks of a job into one ordered queue per worker using
	// feedback collected from previous jobs.
	//
	// The stats slice has one entry per worker; its length defines the
	// number of returned queues.
	Schedule(stats []Stats, tasks []swarm.Task) [][]swarm.Task
}

// The cost scheduler assigns tasks in decreasing cost order to the worker
// that would finish them first (longest processing time first). Worker speeds
// are estimated from the cost throughput of the previous job; without
// feedback all workers are assumed to be equally fast.
type costScheduler struct{}

// Create a new cost based scheduler.
func NewCostScheduler() Scheduler {
	return costScheduler{}
}

func (costScheduler) Schedule(stats []Stats, tasks []swarm.Task) [][]swarm.Task {
	queues := make([][]swarm.Task, len(stats))
	if len(stats) == 0 {
		return queues
	}

	sorted := append([]swarm.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Cost > sorted[j].Cost
	})

	speeds := speedEstimates(stats)
	load := make([]float64, len(stats))
	for _, task := range sorted {
		best := 0
		bestFinish := (load[0] + float64(task.Cost)) / speeds[0]
		for w := 1; w < len(stats); w++ {
			if finish := (load[w] + float64(task.Cost)) / speeds[w]; finish < bestFinish {
				best, bestFinish = w, finish
			}
		}
		load[best] += float64(task.Cost)
		queues[best] = append(queues[best], task)
	}
	return queues
}

// Get the relative speed of each worker. Workers without feedback are
// assigned the mean speed of the rest; if no worker has feedback all speeds
// are equal.
func speedEstimates(stats []Stats) []float64 {
	speeds := make([]float64, len(stats))
	var total float64
	var measured int
	for i, s := range stats {
		if s.Time > 0 && s.Cost > 0 {
			speeds[i] = float64(s.Cost) / float64(s.Time)
			total += speeds[i]
			measured++
		}
	}

	fallback := 1.0
	if measured > 0 {
		fallback = total / float64(measured)
	}
	for i := range speeds {
		if speeds[i] == 0 {
			speeds[i] = fallback
		}
	}
	return speeds
}
