package remote

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
	"github.com/gorilla/websocket"
)

// Service opens jobs on a remote agent.
type Service struct {
	logger log.Logger
	url    string
	dialer websocket.Dialer
}

// Create a new service for the agent listening at address (host:port or a
// ws:// URL). The timeout limits the websocket handshake.
func New(address string, timeout time.Duration) *Service {
	return &Service{
		logger: log.New("remote swarm"),
		url:    jobURL(address),
		dialer: websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: timeout,
		},
	}
}

func jobURL(address string) string {
	u, err := url.Parse(address)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return "ws://" + address + JobPath
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = JobPath
	}
	return u.String()
}

func (s *Service) OpenJob(ctx context.Context, cb swarm.Callback) (swarm.Job, error) {
	conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote swarm: could not connect to %s: %w", s.url, err)
	}

	var hello response
	if err = conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	if hello.Job == nil {
		conn.Close()
		if hello.Error != "" {
			return nil, fmt.Errorf("remote swarm: agent refused job: %s", hello.Error)
		}
		return nil, ErrHandshake
	}

	j := &job{
		logger:  s.logger,
		guid:    *hello.Job,
		conn:    conn,
		cb:      cb,
		pending: make(map[uint64]chan error),
		done:    make(chan struct{}),
	}
	go j.readLoop()
	s.logger.Noticef("opened job %s on %s", j.guid, s.url)
	return j, nil
}

func (s *Service) Close() error {
	return nil
}

type job struct {
	logger log.Logger
	guid   types.GUID
	conn   *websocket.Conn
	cb     swarm.Callback
	guard  swarm.SpecGuard

	writeMu sync.Mutex

	mu      sync.Mutex
	nextId  uint64
	pending map[uint64]chan error

	closing atomic.Bool
	done    chan struct{}
}

func (j *job) Guid() types.GUID {
	return j.guid
}

func (j *job) BeginSpec(spec swarm.JobSpec) error {
	if err := j.guard.Begin(); err != nil {
		return err
	}
	return j.call(request{Type: beginSpecRequest, Spec: &spec})
}

func (j *job) AddTask(task swarm.Task) error {
	if err := j.guard.AddTask(task); err != nil {
		return err
	}
	return j.call(request{Type: addTaskRequest, Task: &task})
}

func (j *job) EndSpec() error {
	if err := j.guard.End(); err != nil {
		return err
	}
	return j.call(request{Type: endSpecRequest})
}

// Ask the agent to close the job and drop the connection.
func (j *job) Close() error {
	if !j.guard.Close() {
		return nil
	}
	j.closing.Store(true)
	err := j.call(request{Type: closeRequest})
	j.conn.Close()
	<-j.done
	if errors.Is(err, ErrConnectionLost) {
		err = nil
	}
	return err
}

// Send a request and wait for the agent's reply.
func (j *job) call(req request) error {
	reply := make(chan error, 1)
	j.mu.Lock()
	j.nextId++
	req.Id = j.nextId
	j.pending[req.Id] = reply
	j.mu.Unlock()

	j.writeMu.Lock()
	err := j.conn.WriteJSON(req)
	j.writeMu.Unlock()
	if err != nil {
		j.mu.Lock()
		delete(j.pending, req.Id)
		j.mu.Unlock()
		return ErrConnectionLost
	}

	select {
	case err = <-reply:
		return err
	case <-j.done:
		return ErrConnectionLost
	}
}

// Dispatch agent responses until the connection is closed. Losing the
// connection while the job is still open is reported as a quit message.
func (j *job) readLoop() {
	defer close(j.done)
	for {
		var res response
		if err := j.conn.ReadJSON(&res); err != nil {
			if !j.closing.Load() {
				j.logger.Warningf("job %s: lost connection to agent: %v", j.guid, err)
				j.cb(swarm.Message{Kind: swarm.QuitMessage, Text: err.Error()})
			}
			return
		}

		if res.Message != nil {
			j.cb(*res.Message)
			continue
		}

		j.mu.Lock()
		reply, exists := j.pending[res.ReplyTo]
		delete(j.pending, res.ReplyTo)
		j.mu.Unlock()
		if exists {
			reply <- decodeError(res.Error)
		}
	}
}
