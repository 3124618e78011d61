// Package remote exposes a swarm over websockets. An Agent serves jobs from a
// worker pool and a Service connects to an agent; each job uses its own
// connection.
package remote

import (
	"errors"
	"fmt"
	"strings"

	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
)

// The path agents serve jobs on.
const JobPath = "/job"

var (
	ErrConnectionLost = errors.New("remote swarm: connection to agent lost")
	ErrHandshake      = errors.New("remote swarm: invalid agent handshake")
)

type requestType string

const (
	beginSpecRequest requestType = "begin"
	addTaskRequest   requestType = "task"
	endSpecRequest   requestType = "end"
	closeRequest     requestType = "close"
)

// Sent by the client.
type request struct {
	Id   uint64         `json:"id"`
	Type requestType    `json:"type"`
	Spec *swarm.JobSpec `json:"spec,omitempty"`
	Task *swarm.Task    `json:"task,omitempty"`
}

// Sent by the agent. The first response of a connection carries the job
// GUID; the rest either reply to a request or carry a job notification.
type response struct {
	Job     *types.GUID    `json:"job,omitempty"`
	ReplyTo uint64         `json:"reply_to,omitempty"`
	Error   string         `json:"error,omitempty"`
	Message *swarm.Message `json:"message,omitempty"`
}

var remoteErrors = []error{
	swarm.ErrJobClosed,
	swarm.ErrSpecNotBegun,
	swarm.ErrSpecEnded,
	swarm.ErrDuplicateTask,
	swarm.ErrInvalidCost,
}

// Map an error reported by the agent back to the matching sentinel error.
func decodeError(text string) error {
	if text == "" {
		return nil
	}
	for _, err := range remoteErrors {
		if prefix := err.Error(); strings.HasPrefix(text, prefix) {
			return fmt.Errorf("%w%s", err, text[len(prefix):])
		}
	}
	return errors.New(text)
}

func encodeError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
