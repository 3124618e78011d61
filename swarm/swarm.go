// Package swarm defines the job and task service that distributes lighting
// work to a pool of workers. Workers exchange data with the build through
// channels; the service only moves task identities, states and messages.
package swarm

import (
	"context"
	"errors"
	"fmt"

	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/types"
)

var (
	ErrJobClosed     = errors.New("swarm: job is closed")
	ErrSpecNotBegun  = errors.New("swarm: job specification has not begun")
	ErrSpecEnded     = errors.New("swarm: job specification already ended")
	ErrDuplicateTask = errors.New("swarm: duplicate task")
	ErrInvalidCost   = errors.New("swarm: task cost must be positive")
)

type JobState uint8

const (
	JobRunning JobState = iota
	JobSucceeded
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobRunning:
		return "running"
	case JobSucceeded:
		return "succeeded"
	}
	return "failed"
}

type TaskState uint8

const (
	TaskAccepted TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskAccepted:
		return "accepted"
	case TaskRunning:
		return "running"
	case TaskSucceeded:
		return "succeeded"
	}
	return "failed"
}

// Finished returns true for terminal task states.
func (s TaskState) Finished() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// A unit of work. The GUID doubles as the root of the result channel name.
type Task struct {
	Guid types.GUID `json:"guid"`
	Cost int64      `json:"cost"`
}

// Describes the worker process that executes the tasks of a job.
type JobSpec struct {
	Executable  string     `json:"executable"`
	CommandLine string     `json:"command_line"`
	SceneGuid   types.GUID `json:"scene_guid"`

	// Files the worker needs. Missing optional files are ignored.
	RequiredDependencies []string `json:"required_dependencies"`
	OptionalDependencies []string `json:"optional_dependencies"`

	// Input channels were exported compressed. Readers detect the encoding of
	// each channel on their own.
	CompressedChannels bool `json:"compressed_channels"`
}

type MessageKind uint8

const (
	JobStateMessage MessageKind = iota
	TaskStateMessage
	InfoMessage
	AlertMessage

	// The worker side shut down; no further messages follow.
	QuitMessage
)

func (k MessageKind) String() string {
	switch k {
	case JobStateMessage:
		return "job state"
	case TaskStateMessage:
		return "task state"
	case InfoMessage:
		return "info"
	case AlertMessage:
		return "alert"
	case QuitMessage:
		return "quit"
	}
	return fmt.Sprintf("MessageKind(%d)", uint8(k))
}

// A notification delivered to the job callback.
type Message struct {
	Kind MessageKind `json:"kind"`

	JobState JobState `json:"job_state,omitempty"`

	TaskGuid  types.GUID `json:"task_guid,omitempty"`
	TaskState TaskState  `json:"task_state,omitempty"`

	// Wall clock time spent by the worker on the task, in nanoseconds.
	ExecutionTime int64 `json:"execution_time,omitempty"`

	Severity stats.Severity `json:"severity,omitempty"`
	Text     string         `json:"text,omitempty"`

	// The object an alert refers to, if any.
	ObjectGuid types.GUID `json:"object_guid,omitempty"`
}

// Callback receives job notifications. It may be invoked concurrently from
// any goroutine and must not block.
type Callback func(Message)

// Service opens jobs on a worker pool.
type Service interface {
	// Open a job. Notifications for the job are delivered to cb.
	OpenJob(ctx context.Context, cb Callback) (Job, error)

	// Release the service.
	Close() error
}

// Job collects a job specification and its tasks. Tasks may be scheduled as
// soon as they are added; EndSpec signals that no more tasks follow.
type Job interface {
	Guid() types.GUID
	BeginSpec(spec JobSpec) error
	AddTask(task Task) error
	EndSpec() error

	// Stop the job and release its resources. Safe to call more than once.
	Close() error
}

// Executor runs a single task on behalf of a worker.
type Executor interface {
	Execute(ctx context.Context, spec JobSpec, task Task) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, spec JobSpec, task Task) error

func (f ExecutorFunc) Execute(ctx context.Context, spec JobSpec, task Task) error {
	return f(ctx, spec, task)
}
