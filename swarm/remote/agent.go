package remote

import (
	"net/http"
	"sync"

	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/gorilla/websocket"
)

// Agent serves swarm jobs over websocket connections. Every connection opens
// a job on the wrapped service; the job is closed when the connection ends.
type Agent struct {
	logger   log.Logger
	service  swarm.Service
	upgrader websocket.Upgrader
}

// Create a new agent that runs jobs on the given service.
func NewAgent(service swarm.Service) *Agent {
	return &Agent{
		logger:  log.New("swarm agent"),
		service: service,
	}
}

// A websocket connection that allows concurrent writers.
type agentConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (c *agentConn) send(res response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteJSON(res)
}

func (a *Agent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warningf("websocket upgrade failed: %v", err)
		return
	}
	conn := &agentConn{Conn: ws}
	defer conn.Close()

	job, err := a.service.OpenJob(r.Context(), func(msg swarm.Message) {
		if err := conn.send(response{Message: &msg}); err != nil {
			a.logger.Debugf("could not forward %s message: %v", msg.Kind, err)
		}
	})
	if err != nil {
		a.logger.Errorf("could not open job for %s: %v", r.RemoteAddr, err)
		conn.send(response{Error: err.Error()})
		return
	}
	defer job.Close()

	guid := job.Guid()
	if err = conn.send(response{Job: &guid}); err != nil {
		return
	}
	a.logger.Noticef("serving job %s for %s", guid, r.RemoteAddr)

	for {
		var req request
		if err = conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Warningf("job %s: connection error: %v", guid, err)
			}
			return
		}

		switch req.Type {
		case beginSpecRequest:
			if req.Spec == nil {
				err = ErrHandshake
				break
			}
			err = job.BeginSpec(*req.Spec)
		case addTaskRequest:
			if req.Task == nil {
				err = ErrHandshake
				break
			}
			err = job.AddTask(*req.Task)
		case endSpecRequest:
			err = job.EndSpec()
		case closeRequest:
			err = job.Close()
			conn.send(response{ReplyTo: req.Id, Error: encodeError(err)})
			a.logger.Noticef("job %s closed by client", guid)
			return
		default:
			a.logger.Warningf("job %s: ignoring unknown request %q", guid, req.Type)
			continue
		}

		if err = conn.send(response{ReplyTo: req.Id, Error: encodeError(err)}); err != nil {
			return
		}
	}
}
