package build

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/achilleasa/lightmass/channel"
	"github.com/achilleasa/lightmass/config"
	"github.com/achilleasa/lightmass/lightmap"
	"github.com/achilleasa/lightmass/material"
	"github.com/achilleasa/lightmass/protocol"
	"github.com/achilleasa/lightmass/scene"
	"github.com/achilleasa/lightmass/session"
	"github.com/achilleasa/lightmass/stats"
	"github.com/achilleasa/lightmass/swarm"
	"github.com/achilleasa/lightmass/swarm/local"
	"github.com/achilleasa/lightmass/types"
	"github.com/achilleasa/lightmass/worker/preview"
)

type fakeJob struct {
	sync.Mutex
	cb       swarm.Callback
	spec     swarm.JobSpec
	tasks    []swarm.Task
	rejected map[types.GUID]bool
	ended    bool
	closed   int
}

func (j *fakeJob) Guid() types.GUID { return types.GUID{A: 0xf00} }

func (j *fakeJob) BeginSpec(spec swarm.JobSpec) error {
	j.spec = spec
	return nil
}

func (j *fakeJob) AddTask(task swarm.Task) error {
	if j.rejected[task.Guid] {
		return errors.New("rejected")
	}
	j.tasks = append(j.tasks, task)
	return nil
}

func (j *fakeJob) EndSpec() error {
	j.ended = true
	return nil
}

func (j *fakeJob) Close() error {
	j.Lock()
	j.closed++
	j.Unlock()
	return nil
}

// Report a task state change from another goroutine.
func (j *fakeJob) finish(guid types.GUID, state swarm.TaskState) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		j.cb(swarm.Message{Kind: swarm.TaskStateMessage, TaskGuid: guid, TaskState: state})
	}()
	wg.Wait()
}

type fakeService struct {
	job *fakeJob
	err error
}

func (s *fakeService) OpenJob(_ context.Context, cb swarm.Callback) (swarm.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.job.cb = cb
	return s.job, nil
}

func (s *fakeService) Close() error { return nil }

type countingRenderState struct {
	flushes, detaches, reattaches int
}

func (rs *countingRenderState) Flush() { rs.flushes++ }

func (rs *countingRenderState) Detach() func() {
	rs.detaches++
	return func() { rs.reattaches++ }
}

func testSession() *session.Session {
	cfg := config.Default()
	cfg.Swarm.CacheDir = "unused"
	cfg.Export.MaterialBudgetMs = 0
	cfg.Export.DiffuseSampleSize = 4
	cfg.Export.EmissiveSampleSize = 4
	cfg.Export.TransmissionSampleSize = 4
	cfg.Export.NormalSampleSize = 4
	return session.New(cfg)
}

func quad(offset float32) ([]scene.Vertex, []uint32) {
	return []scene.Vertex{
		{Position: types.XYZ(offset, 0, 0)},
		{Position: types.XYZ(offset+100, 0, 0)},
		{Position: types.XYZ(offset+100, 100, 0)},
		{Position: types.XYZ(offset, 100, 0)},
	}, []uint32{0, 1, 2, 0, 2, 3}
}

type testScene struct {
	scene *scene.Scene
	level *scene.Level
	bsp   []*scene.Mapping
	props []*scene.Mapping
}

// Build a scene with one BSP mapping per bspSizes entry and one static mesh
// mapping per propSizes entry.
func newTestScene(t *testing.T, bspSizes, propSizes [][2]int) *testScene {
	ts := &testScene{scene: scene.New("test")}
	sc := ts.scene
	ts.level = scene.NewLevel(types.GUID{A: 1}, "persistent", true)
	if err := sc.AddLevel(ts.level); err != nil {
		t.Fatal(err)
	}

	stone := material.New("stone", types.GUID{A: 2})
	var visId int
	addMesh := func(m *scene.Mesh, size [2]int) *scene.Mapping {
		m.LevelGuid = ts.level.Guid
		m.VisibilityId = visId
		visId++
		m.SetMaterial(stone)
		if err := sc.AddMesh(m); err != nil {
			t.Fatal(err)
		}
		mapping := scene.NewMapping(m, size[0], size[1])
		if err := sc.AddMapping(mapping); err != nil {
			t.Fatal(err)
		}
		return mapping
	}

	for i, size := range bspSizes {
		vertices, indices := quad(float32(i) * 200)
		surface := &scene.BSPSurface{ModelGuid: types.GUID{A: 100, B: uint32(i)}, Vertices: vertices, Indices: indices}
		ts.bsp = append(ts.bsp, addMesh(scene.NewBSPMesh(types.GUID{A: 101, B: uint32(i)}, surface), size))
	}

	vertices, indices := quad(0)
	crate := &scene.StaticMeshGeometry{
		Guid: types.GUID{A: 200},
		Name: "crate",
		LODs: []scene.StaticMeshLOD{{Vertices: vertices, Indices: indices}},
	}
	for i, size := range propSizes {
		instance := scene.NewStaticMeshInstance(types.GUID{A: 201, B: uint32(i)}, crate, types.Translate4(types.XYZ(float32(i)*150, 300, 0)))
		ts.props = append(ts.props, addMesh(instance, size))
	}
	return ts
}

func (ts *testScene) mappings() []*scene.Mapping {
	return append(append([]*scene.Mapping(nil), ts.bsp...), ts.props...)
}

func startRun(t *testing.T, p *Processor) {
	if err := p.OpenJob(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.Export(); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginRun(); err != nil {
		t.Fatal(err)
	}
}

func TestTaskAccounting(t *testing.T) {
	ts := newTestScene(t, [][2]int{{25, 20}}, [][2]int{{10, 10}, {20, 10}, {5, 10}})
	sess := testSession()
	job := &fakeJob{}
	p := New(sess, ts.scene, channel.NewMemStore(), &fakeService{job: job})
	startRun(t, p)

	if p.NumTotalTasks() != 5 || len(job.tasks) != 5 {
		t.Fatalf("expected 5 tasks; got %d (%d submitted)", p.NumTotalTasks(), len(job.tasks))
	}
	if !job.ended {
		t.Fatal("expected the job specification to be ended")
	}
	if sess.Messages.Count(stats.Warning) == 0 {
		t.Fatal("expected a warning about the missing volumetric lightmap bricks")
	}

	expCosts := map[types.GUID]int64{
		protocol.MeshAreaLightTaskGuid: sess.Config.Costs.MeshAreaLights,
		ts.bsp[0].Guid:                 500,
		ts.props[0].Guid:               100,
		ts.props[1].Guid:               200,
		ts.props[2].Guid:               50,
	}
	for _, task := range job.tasks {
		if exp, ok := expCosts[task.Guid]; !ok || exp != task.Cost {
			t.Fatalf("unexpected task %s with cost %d", task.Guid, task.Cost)
		}
	}
	// BSP mappings are submitted before static mesh mappings.
	if job.tasks[1].Guid != ts.bsp[0].Guid {
		t.Fatalf("expected the BSP mapping to follow the mesh area light task")
	}
	if job.spec.SceneGuid != ts.scene.Guid {
		t.Fatalf("expected job spec for scene %s; got %s", ts.scene.Guid, job.spec.SceneGuid)
	}

	for i, task := range job.tasks {
		if p.Update() {
			t.Fatalf("expected Update to report an unfinished build after %d completions", i)
		}
		job.finish(task.Guid, swarm.TaskSucceeded)
	}

	if !p.Update() {
		t.Fatal("expected Update to report a finished build")
	}
	if !p.ProcessingSucceeded() {
		t.Fatal("expected processing to succeed")
	}
	if p.NumCompletedTasks() != 5 {
		t.Fatalf("expected 5 completed tasks; got %d", p.NumCompletedTasks())
	}
	if p.State() != Running {
		t.Fatalf("expected state %s; got %s", Running, p.State())
	}
}

func TestTaskFailure(t *testing.T) {
	ts := newTestScene(t, nil, [][2]int{{4, 4}, {4, 4}})
	job := &fakeJob{}
	p := New(testSession(), ts.scene, channel.NewMemStore(), &fakeService{job: job})
	startRun(t, p)

	job.finish(ts.props[0].Guid, swarm.TaskFailed)
	// Duplicate notifications are ignored.
	job.finish(ts.props[0].Guid, swarm.TaskFailed)

	if p.NumCompletedTasks() != 1 {
		t.Fatalf("expected the failed task to count as completed once; got %d", p.NumCompletedTasks())
	}
	if !p.Update() {
		t.Fatal("expected Update to report a finished build after a task failure")
	}
	if p.State() != Failed {
		t.Fatalf("expected state %s; got %s", Failed, p.State())
	}
	if _, err := p.CompleteRun(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState; got %v", err)
	}
	if err := p.CloseJob(); err != nil {
		t.Fatal(err)
	}
	if job.closed != 1 {
		t.Fatalf("expected job to be closed once; got %d", job.closed)
	}
}

func TestAbortConditions(t *testing.T) {
	type spec struct {
		abort    func(p *Processor, job *fakeJob)
		expState State
	}
	specs := []spec{
		{
			func(p *Processor, job *fakeJob) { job.cb(swarm.Message{Kind: swarm.QuitMessage}) },
			Failed,
		},
		{
			func(p *Processor, job *fakeJob) {
				job.cb(swarm.Message{Kind: swarm.JobStateMessage, JobState: swarm.JobFailed})
			},
			Failed,
		},
		{
			func(p *Processor, job *fakeJob) { p.sess.Cancel() },
			Canceled,
		},
	}

	for specIndex, s := range specs {
		ts := newTestScene(t, nil, [][2]int{{4, 4}})
		job := &fakeJob{}
		p := New(testSession(), ts.scene, channel.NewMemStore(), &fakeService{job: job})
		startRun(t, p)

		s.abort(p, job)
		if !p.Update() {
			t.Fatalf("[spec %d] expected Update to report a finished build", specIndex)
		}
		if p.State() != s.expState {
			t.Fatalf("[spec %d] expected state %s; got %s", specIndex, s.expState, p.State())
		}
	}
}

func TestSubmissionFailure(t *testing.T) {
	ts := newTestScene(t, nil, [][2]int{{4, 4}, {4, 4}})
	job := &fakeJob{rejected: map[types.GUID]bool{ts.props[0].Guid: true}}
	p := New(testSession(), ts.scene, channel.NewMemStore(), &fakeService{job: job})
	startRun(t, p)

	// The remaining tasks are still submitted.
	if p.NumTotalTasks() != 2 {
		t.Fatalf("expected 2 submitted tasks; got %d", p.NumTotalTasks())
	}
	if p.ProcessingSucceeded() {
		t.Fatal("expected the submission failure to fail the build")
	}
}

func TestStateTransitions(t *testing.T) {
	ts := newTestScene(t, nil, [][2]int{{4, 4}})

	p := New(testSession(), ts.scene, channel.NewMemStore(), &fakeService{job: &fakeJob{}})
	if err := p.BeginRun(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState when beginning a run without a job; got %v", err)
	}
	if err := p.Export(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState when exporting without a job; got %v", err)
	}
	if err := p.OpenJob(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := p.BeginRun(); !errors.Is(err, ErrNotExported) {
		t.Fatalf("expected ErrNotExported; got %v", err)
	}
	if err := p.CloseJob(); err != nil {
		t.Fatal(err)
	}
	if err := p.CloseJob(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState when closing twice; got %v", err)
	}

	p = New(testSession(), ts.scene, channel.NewMemStore(), &fakeService{err: errors.New("unreachable")})
	if err := p.OpenJob(context.Background()); !errors.Is(err, ErrOpenJob) {
		t.Fatalf("expected ErrOpenJob; got %v", err)
	}
}

func uniformResult(m *scene.Mapping, value float32) *lightmap.MappingResult {
	samples := make([]lightmap.Sample, m.NumTexels())
	for i := range samples {
		samples[i].Coverage = 1
		samples[i].Coefficients[0] = types.Vec4{value, value, value, 1}
	}
	lm, _ := lightmap.Quantize(m.SizeX, m.SizeY, samples)
	return &lightmap.MappingResult{Guid: m.Guid, ExecutionTime: time.Millisecond, LightMap: lm}
}

// Write the results for several mappings into the channel of the first one.
func writeResults(t *testing.T, store channel.Store, results ...*lightmap.MappingResult) {
	ch, err := store.Open(protocol.TextureMappingChannel(results[0].Guid), channel.Write)
	if err != nil {
		t.Fatal(err)
	}
	enc := channel.NewEncoder(ch)
	lightmap.WriteMappingResults(enc, results, lightmap.DefaultCompressionThreshold)
	if err = enc.Err(); err != nil {
		t.Fatal(err)
	}
	if err = ch.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProcessMappingAppliesOnce(t *testing.T) {
	ts := newTestScene(t, nil, [][2]int{{4, 4}})
	store := channel.NewMemStore()
	p := New(testSession(), ts.scene, store, &fakeService{job: &fakeJob{}})

	mapping := ts.props[0]
	var applied int
	mapping.OnApply = func(*scene.Mapping) { applied++ }
	writeResults(t, store, uniformResult(mapping, 0.5))

	if !p.ImportMapping(mapping.Guid, false) {
		t.Fatal("expected import to succeed")
	}
	if applied != 0 || !mapping.NeedsProcessing {
		t.Fatal("expected import to defer applying the results")
	}
	if !p.ProcessMapping(mapping.Guid) {
		t.Fatal("expected first ProcessMapping call to apply the results")
	}
	if p.ProcessMapping(mapping.Guid) {
		t.Fatal("expected second ProcessMapping call to be a no-op")
	}
	if applied != 1 || mapping.ApplyCount() != 1 {
		t.Fatalf("expected the mapping to be applied once; got %d", mapping.ApplyCount())
	}
	if mapping.NeedsProcessing {
		t.Fatal("expected NeedsProcessing to be cleared")
	}
}

func TestMergedChannelImport(t *testing.T) {
	ts := newTestScene(t, [][2]int{{8, 8}}, [][2]int{{4, 4}, {2, 2}})
	ts.scene.RenderState = &countingRenderState{}
	store := channel.NewMemStore()
	sess := testSession()
	p := New(sess, ts.scene, store, &fakeService{job: &fakeJob{}})

	all := ts.mappings()
	writeResults(t, store, uniformResult(all[0], 1), uniformResult(all[1], 2), uniformResult(all[2], 3))

	// Completions may be reported for every mapping of the merged channel,
	// including the first one more than once.
	for _, guid := range []types.GUID{all[0].Guid, all[1].Guid, all[2].Guid, all[0].Guid} {
		if !p.ImportMapping(guid, false) {
			t.Fatalf("expected import of %s to succeed", guid)
		}
	}
	// The first channel is decoded twice but each mapping is imported once.
	if got := sess.Stats.NumImportedMappings; got != 3 {
		t.Fatalf("expected 3 imported mappings; got %d", got)
	}

	if applied := p.ProcessAvailableMappings(); applied != 3 {
		t.Fatalf("expected 3 applied mappings; got %d", applied)
	}
	for i, m := range all {
		if m.ApplyCount() != 1 {
			t.Fatalf("[mapping %d] expected a single apply; got %d", i, m.ApplyCount())
		}
	}
	if got := p.ProcessAvailableMappings(); got != 0 {
		t.Fatalf("expected nothing left to apply; got %d", got)
	}

	rs := ts.scene.RenderState.(*countingRenderState)
	if rs.flushes != 1 || rs.detaches != 1 || rs.reattaches != 1 {
		t.Fatalf("expected a single flush/detach/reattach cycle; got %+v", rs)
	}
}

func TestMappingSizeMismatch(t *testing.T) {
	ts := newTestScene(t, nil, [][2]int{{4, 4}})
	store := channel.NewMemStore()
	p := New(testSession(), ts.scene, store, &fakeService{job: &fakeJob{}})

	mapping := ts.props[0]
	res := uniformResult(mapping, 1)
	mapping.SizeX = 8
	writeResults(t, store, res)

	if p.ImportMapping(mapping.Guid, true) {
		t.Fatal("expected import to fail")
	}
	if p.ProcessingSucceeded() {
		t.Fatal("expected the size mismatch to fail the build")
	}
	if mapping.ApplyCount() != 0 {
		t.Fatal("expected the mismatched results to be discarded")
	}
}

func TestInvalidatedMapping(t *testing.T) {
	ts := newTestScene(t, nil, [][2]int{{4, 4}})
	store := channel.NewMemStore()
	p := New(testSession(), ts.scene, store, &fakeService{job: &fakeJob{}})

	mapping := ts.props[0]
	writeResults(t, store, uniformResult(mapping, 1))
	mapping.Invalidate()

	p.ImportMapping(mapping.Guid, true)
	if mapping.ApplyCount() != 0 {
		t.Fatal("expected results for an invalidated mapping to be discarded")
	}
}

func TestBuild(t *testing.T) {
	type spec struct {
		method     string
		visibility bool
	}
	specs := []spec{
		{config.VolumetricLightmap, true},
		{config.SparseSamples, false},
	}

	for specIndex, s := range specs {
		ts := newTestScene(t, [][2]int{{8, 8}}, [][2]int{{4, 4}, {4, 2}})
		sc := ts.scene
		sc.ImportanceVolumes = []types.BBox{{Min: types.XYZ(0, 0, 0), Max: types.XYZ(800, 800, 400)}}

		sun := scene.NewDirectionalLight(types.GUID{A: 50}, types.XYZ(0, 0, -1))
		sun.LevelGuid = ts.level.Guid
		sun.HasStaticLighting = false
		if err := sc.AddLight(sun); err != nil {
			t.Fatal(err)
		}
		for _, m := range sc.Meshes {
			m.RelevantLights = []scene.Light{sun}
		}

		sess := testSession()
		sess.Config.Volume.Method = s.method
		sess.Config.Volume.DistanceField = true
		sess.Config.Visibility.Enabled = s.visibility

		store := channel.NewMemStore()
		svc := local.New(preview.New(store), 2)
		p := New(sess, sc, store, svc)

		ok, err := p.Build(context.Background(), time.Millisecond)
		svc.Close()
		if err != nil {
			t.Fatalf("[spec %d] %v", specIndex, err)
		}
		if !ok {
			t.Fatalf("[spec %d] expected build to succeed; messages:\n%s", specIndex, sess.Messages.Table())
		}
		if p.State() != Closed {
			t.Fatalf("[spec %d] expected the job to be closed; state is %s", specIndex, p.State())
		}

		for i, m := range ts.mappings() {
			if m.ApplyCount() != 1 {
				t.Fatalf("[spec %d] expected mapping %d to be applied once; got %d", specIndex, i, m.ApplyCount())
			}
			if m.ShadowMaps[sun.Guid] == nil {
				t.Fatalf("[spec %d] expected mapping %d to have a shadow map for the sun", specIndex, i)
			}
		}

		buildData := ts.level.BuildData
		switch s.method {
		case config.VolumetricLightmap:
			if buildData.VolumetricLightmap == nil || len(buildData.VolumetricLightmap.Bricks) != 1 {
				t.Fatalf("[spec %d] expected a single volumetric lightmap brick", specIndex)
			}
		case config.SparseSamples:
			if buildData.VolumeSamples.Len() == 0 {
				t.Fatalf("[spec %d] expected volume lighting samples", specIndex)
			}
		}
		if buildData.Visibility.IsValid() != s.visibility {
			t.Fatalf("[spec %d] expected visibility valid=%t", specIndex, s.visibility)
		}
		if buildData.DistanceField == nil {
			t.Fatalf("[spec %d] expected a volume distance field", specIndex)
		}
		if sun.ShadowDepthMap == nil {
			t.Fatalf("[spec %d] expected a static shadow depth map for the sun", specIndex)
		}
		if sess.Stats.NumAppliedMappings != 3 {
			t.Fatalf("[spec %d] expected 3 applied mappings; got %d", specIndex, sess.Stats.NumAppliedMappings)
		}
	}
}

func TestBuildSharedCacheAcrossCompressionSettings(t *testing.T) {
	store := channel.NewMemStore()

	for index, compress := range []bool{false, true, false} {
		ts := newTestScene(t, [][2]int{{4, 4}}, [][2]int{{4, 4}})
		for _, m := range ts.scene.Meshes {
			m.Elements[0].UseEmissiveForStaticLighting = true
			m.Elements[0].Material.Inputs[material.Emissive].Constant = types.Vec4{1, 0.5, 0, 1}
		}

		sess := testSession()
		sess.Config.Export.CompressChannels = compress

		svc := local.New(preview.New(store), 2)
		p := New(sess, ts.scene, store, svc)
		ok, err := p.Build(context.Background(), time.Millisecond)
		svc.Close()
		if err != nil {
			t.Fatalf("[spec %d] %v", index, err)
		}
		if !ok {
			t.Fatalf("[spec %d] expected build with compress=%t to succeed; messages:\n%s", index, compress, sess.Messages.Table())
		}
		if len(ts.level.BuildData.MeshAreaLights) == 0 {
			t.Fatalf("[spec %d] expected mesh area lights from the emissive elements", index)
		}
	}
}
