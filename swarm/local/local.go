// Package local implements an in-process swarm that runs tasks on a pool of
// goroutines.
package local

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
	"golang.org/x/sync/errgroup"
)

var ErrServiceClosed = errors.New("local swarm: service is closed")

// Service runs the tasks of its jobs on a fixed number of workers.
type Service struct {
	logger    log.Logger
	executor  swarm.Executor
	scheduler Scheduler

	mu     sync.Mutex
	stats  []Stats
	closed bool
}

// Create a new local swarm with the given number of workers. If numWorkers
// is <= 0 one worker per CPU is used.
func New(executor swarm.Executor, numWorkers int) *Service {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	return &Service{
		logger:    log.New("local swarm"),
		executor:  executor,
		scheduler: NewCostScheduler(),
		stats:     make([]Stats, numWorkers),
	}
}

// Get the number of workers.
func (s *Service) NumWorkers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stats)
}

// Get the worker statistics collected during the last completed job.
func (s *Service) Stats() []Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Stats(nil), s.stats...)
}

func (s *Service) OpenJob(ctx context.Context, cb swarm.Callback) (swarm.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrServiceClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	j := &job{
		guid:   types.NewGUID(),
		svc:    s,
		cb:     cb,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.logger.Debugf("opened job %s", j.guid)
	return j, nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

type job struct {
	guid  types.GUID
	svc   *Service
	cb    swarm.Callback
	guard swarm.SpecGuard

	spec  swarm.JobSpec
	tasks []swarm.Task

	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	done    chan struct{}
}

func (j *job) Guid() types.GUID {
	return j.guid
}

func (j *job) BeginSpec(spec swarm.JobSpec) error {
	if err := j.guard.Begin(); err != nil {
		return err
	}
	j.spec = spec
	j.svc.logger.Infof("job %s: %s %s", j.guid, spec.Executable, spec.CommandLine)
	return nil
}

func (j *job) AddTask(task swarm.Task) error {
	if err := j.guard.AddTask(task); err != nil {
		return err
	}
	j.tasks = append(j.tasks, task)
	return nil
}

// Schedule the collected tasks and start the workers.
func (j *job) EndSpec() error {
	if err := j.guard.End(); err != nil {
		return err
	}

	workerStats := j.svc.Stats()
	queues := j.svc.scheduler.Schedule(workerStats, j.tasks)
	j.svc.logger.Noticef("job %s: scheduled %d tasks on %d workers", j.guid, len(j.tasks), len(queues))

	group, ctx := errgroup.WithContext(j.ctx)
	collected := make([]Stats, len(queues))
	for index := range queues {
		index := index
		group.Go(func() error {
			collected[index] = j.runWorker(ctx, queues[index])
			return nil
		})
	}

	j.started = true
	go func() {
		defer close(j.done)
		group.Wait()
		if j.ctx.Err() != nil {
			return
		}
		j.svc.mu.Lock()
		if len(j.svc.stats) == len(collected) {
			copy(j.svc.stats, collected)
		}
		j.svc.mu.Unlock()
		j.cb(swarm.Message{Kind: swarm.JobStateMessage, JobState: swarm.JobSucceeded})
	}()
	return nil
}

// Execute a worker queue in order. Executor failures mark the task as
// failed without stopping the worker.
func (j *job) runWorker(ctx context.Context, queue []swarm.Task) Stats {
	var workerStats Stats
	for _, task := range queue {
		if ctx.Err() != nil {
			break
		}
		j.cb(swarm.Message{Kind: swarm.TaskStateMessage, TaskGuid: task.Guid, TaskState: swarm.TaskRunning})

		start := time.Now()
		err := j.svc.executor.Execute(ctx, j.spec, task)
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				break
			}
			j.cb(swarm.Message{
				Kind:       swarm.AlertMessage,
				Severity:   stats.Error,
				Text:       err.Error(),
				ObjectGuid: task.Guid,
			})
			j.cb(swarm.Message{Kind: swarm.TaskStateMessage, TaskGuid: task.Guid, TaskState: swarm.TaskFailed, ExecutionTime: elapsed.Nanoseconds()})
			continue
		}

		workerStats.Cost += task.Cost
		workerStats.Time += elapsed
		j.cb(swarm.Message{Kind: swarm.TaskStateMessage, TaskGuid: task.Guid, TaskState: swarm.TaskSucceeded, ExecutionTime: elapsed.Nanoseconds()})
	}
	return workerStats
}

// Cancel any pending work and wait for the workers to exit.
func (j *job) Close() error {
	if !j.guard.Close() {
		return nil
	}
	j.cancel()
	if j.started {
		<-j.done
	}
	j.svc.logger.Debugf("closed job %s", j.guid)
	return nil
}
