package build

import (
	"time"

	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
)

// Handle a swarm notification. Invoked concurrently from worker goroutines;
// it only touches atomics, the completion lists and the alert queue.
func (p *Processor) onMessage(msg swarm.Message) {
	switch msg.Kind {
	case swarm.JobStateMessage:
		if msg.JobState == swarm.JobFailed {
			p.failed.Store(true)
			p.quit.Store(true)
		}
	case swarm.TaskStateMessage:
		switch msg.TaskState {
		case swarm.TaskAccepted, swarm.TaskRunning:
			p.firstTaskStart.CompareAndSwap(0, time.Now().UnixNano())
		case swarm.TaskSucceeded:
			p.completeTask(msg.TaskGuid, false)
		case swarm.TaskFailed:
			p.completeTask(msg.TaskGuid, true)
		}
	case swarm.InfoMessage:
		p.alerts.Push(stats.Message{Severity: stats.Info, Text: msg.Text})
	case swarm.AlertMessage:
		text := msg.Text
		if msg.ObjectGuid.IsValid() {
			text = msg.ObjectGuid.String() + ": " + text
		}
		p.alerts.Push(stats.Message{Severity: msg.Severity, Text: text})
	case swarm.QuitMessage:
		p.quit.Store(true)
	}
}

// Record a finished task exactly once. Failed tasks still count as completed
// so that progress does not stall.
func (p *Processor) completeTask(guid types.GUID, failed bool) {
	kind, known := p.taskKinds[guid]
	if !known {
		p.alerts.Push(stats.Message{Severity: stats.Warning, Text: "completion reported for unknown task " + guid.String()})
		return
	}
	if _, seen := p.finishedTasks.LoadOrStore(guid, struct{}{}); seen {
		return
	}

	if failed {
		p.failed.Store(true)
		p.numFailedTasks.Add(1)
	}

	switch kind {
	case volumeSamplesTask:
		p.volumeSamplesDone.Store(!failed)
	case meshAreaLightTask:
		p.meshAreaLightsDone.Store(!failed)
	case distanceFieldTask:
		p.distanceFieldDone.Store(!failed)
	case visibilityTask:
		p.completedVisibility.Push(guid)
	case volumetricLightmapTask:
		p.completedVolumetricLightmap.Push(guid)
	case shadowDepthMapTask:
		p.completedShadowDepthMaps.Push(guid)
	default:
		p.completedMappings.Push(guid)
	}
	p.numCompletedTasks.Add(1)
}
