// Package build drives a static lighting build: it exports the scene, submits
// one swarm task per unit of work, tracks completions reported by the workers
// and imports the results back into the scene.
package build

import (
	"context"
	"fmt"
	"math/bits"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/exporter"
	"github.com/achilleasa/lightmass/log"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/queue"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/session"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/types"
	"github.com/achilleasa/lightmass/visibility"
)

type State uint8

const (
	NotStarted State = iota
	JobOpen
	TasksSubmitted
	Running
	Succeeded
	Failed
	Canceled
	Closed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case JobOpen:
		return "job open"
	case TasksSubmitted:
		return "tasks submitted"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Canceled:
		return "canceled"
	}
	return "closed"
}

// Returns true if the build has stopped running.
func (s State) IsTerminal() bool {
	return s >= Succeeded
}

type taskKind uint8

const (
	mappingTask taskKind = iota
	visibilityTask
	volumetricLightmapTask
	volumeSamplesTask
	meshAreaLightTask
	distanceFieldTask
	shadowDepthMapTask
)

// Processor runs a single lighting build. Apart from the completion callback
// all methods must be called from the same goroutine.
type Processor struct {
	logger  log.Logger
	sess    *session.Session
	scene   *scene.Scene
	store   channel.Store
	service swarm.Service

	// Import completed mappings while polling instead of waiting for
	// CompleteRun.
	ImportImmediately bool

	state            State
	job              swarm.Job
	exported         bool
	debugMappingGuid types.GUID
	runStart         time.Time

	// Populated by BeginRun before the first task is submitted and only read
	// afterwards.
	taskKinds     map[types.GUID]taskKind
	numTotalTasks int

	// Mutated by the completion callback.
	numCompletedTasks  atomic.Int64
	numFailedTasks     atomic.Int64
	failed             atomic.Bool
	quit               atomic.Bool
	firstTaskStart     atomic.Int64
	finishedTasks      sync.Map
	volumeSamplesDone  atomic.Bool
	meshAreaLightsDone atomic.Bool
	distanceFieldDone  atomic.Bool

	completedVisibility         queue.List[types.GUID]
	completedVolumetricLightmap queue.List[types.GUID]
	completedShadowDepthMaps    queue.List[types.GUID]
	completedMappings           queue.List[types.GUID]
	alerts                      stats.AlertQueue

	// Import state.
	bucketIndex       map[types.GUID]int
	visibilityBuckets [][]visibility.Cell
	importedMappings  map[types.GUID]*importedMapping
	importOrder       []types.GUID
}

// Create a processor for a scene. Channels are exchanged with the workers
// through store.
func New(sess *session.Session, sc *scene.Scene, store channel.Store, service swarm.Service) *Processor {
	return &Processor{
		logger:           log.New("lightmass processor"),
		sess:             sess,
		scene:            sc,
		store:            store,
		service:          service,
		taskKinds:        make(map[types.GUID]taskKind),
		bucketIndex:      make(map[types.GUID]int),
		importedMappings: make(map[types.GUID]*importedMapping),
	}
}

func (p *Processor) State() State {
	return p.state
}

// Returns true if the build completed and all results were imported.
func (p *Processor) Succeeded() bool {
	return p.state == Succeeded
}

// Returns false once any task or import has failed.
func (p *Processor) ProcessingSucceeded() bool {
	return !p.failed.Load()
}

func (p *Processor) NumTotalTasks() int {
	return p.numTotalTasks
}

func (p *Processor) NumCompletedTasks() int {
	return int(p.numCompletedTasks.Load())
}

func (p *Processor) invalidTransition(op string) error {
	return fmt.Errorf("%w: %s while %s", ErrInvalidState, op, p.state)
}

// Open the swarm job. Failing to reach the swarm aborts the build.
func (p *Processor) OpenJob(ctx context.Context) error {
	if p.state != NotStarted {
		return p.invalidTransition("open job")
	}

	start := time.Now()
	job, err := p.service.OpenJob(ctx, p.onMessage)
	if err != nil {
		p.sess.Messages.Addf(stats.CriticalError, "could not open swarm job: %v", err)
		return fmt.Errorf("%w: %v", ErrOpenJob, err)
	}
	p.job = job
	p.state = JobOpen
	p.logger.Infof("opened job %s in %d ms", job.Guid(), time.Since(start).Nanoseconds()/1e6)
	return nil
}

// Export the scene and material channels. The material export is amortized
// in time slices; cancellation is checked between slices.
func (p *Processor) Export() error {
	if p.state != JobOpen || p.exported {
		return p.invalidTransition("export")
	}

	exp := exporter.New(p.sess, p.store)
	if err := exp.AddScene(p.scene); err != nil {
		p.state = Failed
		return err
	}

	exportStats, debugGuid, err := exp.WriteToChannel()
	if err != nil {
		if p.sess.Canceled() {
			p.state = Canceled
		} else {
			p.state = Failed
		}
		return err
	}
	p.debugMappingGuid = debugGuid

	for {
		if p.sess.Canceled() {
			p.state = Canceled
			return exporter.ErrCanceled
		}
		done, err := exp.WriteToMaterialChannel()
		if err != nil {
			p.state = Failed
			return err
		}
		if done {
			break
		}
	}

	p.logger.Infof(
		"exported %d meshes, %d mappings, %d materials (%d channels written, %d reused)",
		exportStats.NumMeshes, exportStats.NumMappings, exportStats.NumMaterials,
		exportStats.NumWrittenChannels, exportStats.NumReusedChannels,
	)
	p.exported = true
	return nil
}

// Pick the worker executable for the host.
func (p *Processor) executable() string {
	cfg := p.sess.Config.Swarm
	if cfg.Force32Bit || bits.UintSize == 32 {
		return cfg.Executable32
	}
	return cfg.Executable64
}

// Required dependencies are always shipped; optional ones only when present.
func (p *Processor) dependencies() (required, optional []string) {
	cfg := p.sess.Config.Swarm
	required = append(required, cfg.RequiredDependencies...)
	for _, dep := range cfg.OptionalDependencies {
		if _, err := os.Stat(dep); err != nil {
			p.logger.Debugf("skipping missing optional dependency %q", dep)
			continue
		}
		optional = append(optional, dep)
	}
	return required, optional
}

func (p *Processor) commandLine() string {
	cmd := p.scene.Guid.String()
	if p.debugMappingGuid.IsValid() {
		cmd += " -debugmapping " + p.debugMappingGuid.String()
	}
	if p.sess.Debug != nil && p.sess.Debug.PadMappings {
		cmd += " -padmappings"
	}
	return cmd
}

// Enumerate the tasks for the exported scene in submission order.
func (p *Processor) enumerateTasks() []swarm.Task {
	cfg := p.sess.Config
	costs := cfg.Costs
	var tasks []swarm.Task
	add := func(guid types.GUID, cost int64, kind taskKind) {
		tasks = append(tasks, swarm.Task{Guid: guid, Cost: cost})
		p.taskKinds[guid] = kind
	}

	for i, guid := range p.scene.VisibilityBucketGuids {
		p.bucketIndex[guid] = i
		add(guid, costs.Visibility, visibilityTask)
	}
	p.visibilityBuckets = make([][]visibility.Cell, len(p.scene.VisibilityBucketGuids))

	if cfg.Volume.Method == config.VolumetricLightmap {
		vlmTasks := exporter.VolumetricLightmapTasks(p.scene, cfg.Volume)
		if len(vlmTasks) == 0 {
			p.sess.Messages.Addf(stats.Warning, "volumetric lightmap selected but the scene has no volumetric lightmap bricks; no volume lighting will be built")
		}
		for _, t := range vlmTasks {
			add(t.Guid, costs.VolumetricLightmap, volumetricLightmapTask)
		}
	} else {
		add(protocol.VolumeSamplesTaskGuid, costs.VolumeSamples, volumeSamplesTask)
	}

	add(protocol.MeshAreaLightTaskGuid, costs.MeshAreaLights, meshAreaLightTask)

	if cfg.Volume.DistanceField {
		add(protocol.VolumeDistanceFieldTaskGuid, costs.DistanceField, distanceFieldTask)
	}

	for _, l := range p.scene.Lights {
		base := l.Base()
		if !base.NeedsStaticShadowDepthMap() {
			continue
		}
		switch l.Kind() {
		case scene.DirectionalLightKind:
			add(base.Guid, costs.DirectionalShadow, shadowDepthMapTask)
		case scene.PointLightKind, scene.SpotLightKind:
			add(base.Guid, costs.PointShadow, shadowDepthMapTask)
		}
	}

	for _, kind := range []scene.MeshKind{scene.BSPKind, scene.StaticMeshKind, scene.LandscapeKind} {
		for _, m := range p.scene.Mappings {
			if m.Kind() == kind && m.NeedsProcessing && m.IsValid() {
				add(m.Guid, int64(m.NumTexels()), mappingTask)
			}
		}
	}
	return tasks
}

// Describe the job and submit every task. Submission failures mark the build
// as failed but do not stop the remaining submissions.
func (p *Processor) BeginRun() error {
	if p.state != JobOpen {
		return p.invalidTransition("begin run")
	}
	if !p.exported {
		return ErrNotExported
	}

	required, optional := p.dependencies()
	spec := swarm.JobSpec{
		Executable:           p.executable(),
		CommandLine:          p.commandLine(),
		SceneGuid:            p.scene.Guid,
		RequiredDependencies: required,
		OptionalDependencies: optional,
		CompressedChannels:   p.sess.Config.Export.CompressChannels,
	}
	if err := p.job.BeginSpec(spec); err != nil {
		p.failed.Store(true)
		p.sess.Messages.Addf(stats.Error, "could not begin job specification: %v", err)
	}

	for _, task := range p.enumerateTasks() {
		if err := p.job.AddTask(task); err != nil {
			p.failed.Store(true)
			p.sess.Messages.Addf(stats.Error, "could not submit task %s: %v", task.Guid, err)
			continue
		}
		p.numTotalTasks++
	}
	p.sess.Stats.NumTasks = p.numTotalTasks
	p.state = TasksSubmitted

	p.runStart = time.Now()
	if err := p.job.EndSpec(); err != nil {
		p.failed.Store(true)
		p.sess.Messages.Addf(stats.Error, "could not start job: %v", err)
	}
	p.state = Running
	p.logger.Noticef("submitted %d tasks using %s", p.numTotalTasks, spec.Executable)
	return nil
}

// Poll the build. Returns true once all tasks completed or the build was
// aborted by a failure, a quit notification or cancellation.
func (p *Processor) Update() bool {
	p.alerts.DrainTo(p.sess.Messages)
	if p.state != Running {
		return p.state.IsTerminal()
	}

	switch {
	case p.sess.Canceled():
		p.state = Canceled
		p.logger.Warning("lighting build canceled")
		return true
	case p.quit.Load():
		p.state = Failed
		p.sess.Messages.Addf(stats.Error, "swarm quit before the build completed")
		return true
	case p.failed.Load():
		p.state = Failed
		return true
	}

	if p.ImportImmediately {
		for _, guid := range p.completedMappings.ExtractAll() {
			p.ImportMapping(guid, true)
		}
	}

	completed := p.NumCompletedTasks()
	if p.numTotalTasks > 0 {
		p.sess.ReportProgress("lighting", float32(completed)/float32(p.numTotalTasks))
	}
	return completed == p.numTotalTasks && !p.failed.Load()
}

// Import and apply the results of a finished run.
func (p *Processor) CompleteRun() (bool, error) {
	if p.state != Running {
		return false, p.invalidTransition("complete run")
	}

	st := &p.sess.Stats
	start := time.Now()
	st.ProcessingTime = start.Sub(p.runStart)
	if first := p.firstTaskStart.Load(); first != 0 {
		st.SwarmStartupTime = time.Unix(0, first).Sub(p.runStart)
	}
	st.NumFailedTasks = int(p.numFailedTasks.Load())

	ok := true
	if p.volumeSamplesDone.Load() {
		ok = p.ImportVolumeSamples() && ok
	}
	ok = p.ImportVolumetricLightmap() && ok
	ok = p.ImportPrecomputedVisibility() && ok
	if p.meshAreaLightsDone.Load() {
		ok = p.ImportMeshAreaLightData() && ok
	}
	if p.distanceFieldDone.Load() {
		ok = p.ImportVolumeDistanceFieldData() && ok
	}
	for _, guid := range p.completedShadowDepthMaps.ExtractAll() {
		if l := p.scene.Light(guid); l != nil {
			ok = p.ImportStaticShadowDepthMap(l) && ok
		}
	}
	for _, guid := range p.completedMappings.ExtractAll() {
		ok = p.ImportMapping(guid, false) && ok
	}
	st.ImportTime = time.Since(start)

	applyStart := time.Now()
	p.ProcessAvailableMappings()
	ok = p.ApplyPrecomputedVisibility() && ok
	st.ApplyTime = time.Since(applyStart)

	p.completedVisibility.ExtractAll()
	p.completedVolumetricLightmap.ExtractAll()
	p.completedShadowDepthMaps.ExtractAll()
	p.completedMappings.ExtractAll()
	p.alerts.DrainTo(p.sess.Messages)

	if ok && !p.failed.Load() {
		p.state = Succeeded
	} else {
		p.failed.Store(true)
		p.state = Failed
	}
	p.logger.Noticef("imported results in %d ms", time.Since(start).Nanoseconds()/1e6)
	return p.state == Succeeded, nil
}

// Release the swarm job. Must be called exactly once per processor.
func (p *Processor) CloseJob() error {
	if p.state == Closed {
		return p.invalidTransition("close job")
	}
	var err error
	if p.job != nil {
		err = p.job.Close()
		p.job = nil
	}
	p.alerts.DrainTo(p.sess.Messages)
	p.state = Closed
	return err
}

// Run the whole build, polling for completions every pollInterval. The job
// is always closed before returning. Canceling ctx cancels the build.
func (p *Processor) Build(ctx context.Context, pollInterval time.Duration) (succeeded bool, err error) {
	start := time.Now()
	defer func() {
		if closeErr := p.CloseJob(); closeErr != nil {
			p.logger.Warningf("error closing job: %v", closeErr)
		}
		p.sess.Stats.TotalTime = time.Since(start)
	}()

	if err = p.OpenJob(ctx); err != nil {
		return false, err
	}
	if err = p.Export(); err != nil {
		return false, err
	}
	if err = p.BeginRun(); err != nil {
		return false, err
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for !p.Update() {
		select {
		case <-ctx.Done():
			p.sess.Cancel()
		case <-ticker.C:
		}
	}

	if p.state != Running {
		return false, nil
	}
	return p.CompleteRun()
}
