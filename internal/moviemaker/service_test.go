package moviemaker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"moviemaker/internal/adapter/memstore"
	"moviemaker/internal/domain"
	"moviemaker/internal/domain/jsoncfg"
	"moviemaker/internal/infra"
	"moviemaker/internal/planner"
	"moviemaker/internal/providers/video"
	"moviemaker/internal/storage"
)

type fakeVideo struct {
	mu       sync.Mutex
	requests []video.Request
	fail     map[int]error
	block    bool
	started  chan int
}

func (f *fakeVideo) Name() string { return "fake" }

func (f *fakeVideo) Generate(ctx context.Context, req video.Request) (*video.Asset, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	err := f.fail[req.SceneID]
	block := f.block
	started := f.started
	f.mu.Unlock()

	if started != nil {
		select {
		case started <- req.SceneID:
		default:
		}
	}
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return &video.Asset{Data: []byte(fmt.Sprintf("clip-%d", req.SceneID)), Format: "video/mp4"}, nil
}

func (f *fakeVideo) snapshot() []video.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]video.Request(nil), f.requests...)
}

type fakeMedia struct {
	mu           sync.Mutex
	concatenated []string
	concatErr    error
	extractErr   error
	filters      []string
}

func (f *fakeMedia) ExtractFinalFrame(ctx context.Context, clip, out string) error {
	if f.extractErr != nil {
		return f.extractErr
	}
	data, err := os.ReadFile(clip)
	if err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte("frame-of-"), data...), 0o644)
}

func (f *fakeMedia) ApplyStyle(ctx context.Context, frame, filter, out string) (bool, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	data, err := os.ReadFile(frame)
	if err != nil {
		return false, err
	}
	return filter != "", os.WriteFile(out, data, 0o644)
}

func (f *fakeMedia) Concatenate(ctx context.Context, clips []string, out string, withTransitions bool) error {
	f.mu.Lock()
	f.concatenated = append([]string(nil), clips...)
	f.mu.Unlock()
	if f.concatErr != nil {
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		return f.concatErr
	}
	var sb strings.Builder
	for _, c := range clips {
		data, err := os.ReadFile(c)
		if err != nil {
			return err
		}
		sb.Write(data)
	}
	return os.WriteFile(out, []byte(sb.String()), 0o644)
}

func (f *fakeMedia) CreateThumbnail(ctx context.Context, src, out string) error {
	return os.WriteFile(out, []byte("thumb"), 0o644)
}

type harness struct {
	svc     *Service
	store   *memstore.Store
	video   *fakeVideo
	media   *fakeMedia
	scratch *storage.FileStore
	outputs *storage.FileStore
}

func newHarness(t *testing.T, configure ...func(*Options)) *harness {
	t.Helper()
	scratch, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	outputs, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		store:   memstore.New(),
		video:   &fakeVideo{fail: map[int]error{}},
		media:   &fakeMedia{},
		scratch: scratch,
		outputs: outputs,
	}
	opts := Options{
		Store:        h.store,
		Planner:      planner.New(planner.Options{}),
		Video:        h.video,
		Media:        h.media,
		Scratch:      scratch,
		Outputs:      outputs,
		CostPerScene: 0.25,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	h.svc, err = New(opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.svc.Shutdown(ctx)
	})
	return h
}

func manual() *bool {
	v := false
	return &v
}

func (h *harness) create(t *testing.T, maxClips int) *domain.Project {
	t.Helper()
	p, err := h.svc.Create(context.Background(), jsoncfg.MovieRequest{
		Title:              "T",
		Concept:            "a walk in a forest",
		Style:              "cinematic",
		Preset:             "short-film",
		MaxClips:           maxClips,
		Budget:             5.0,
		AutoGenerateScript: manual(),
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return p
}

func (h *harness) scripted(t *testing.T, maxClips int) *domain.Project {
	t.Helper()
	p := h.create(t, maxClips)
	p, err := h.svc.GenerateScript(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("GenerateScript returned error: %v", err)
	}
	return p
}

func waitFor(t *testing.T, h *harness, id string, cond func(*domain.Project) bool) *domain.Project {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		p, err := h.svc.Get(context.Background(), id)
		if err == nil && cond(p) {
			return p
		}
		time.Sleep(5 * time.Millisecond)
	}
	p, _ := h.svc.Get(context.Background(), id)
	t.Fatalf("condition not met; last snapshot: %+v", p)
	return nil
}

func terminal(p *domain.Project) bool { return p.IsTerminal() }

func TestEndToEndProduction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := h.scripted(t, 5)
	if p.Status != domain.StatusScriptReady || len(p.Scenes) == 0 {
		t.Fatalf("after script: status=%s scenes=%d", p.Status, len(p.Scenes))
	}
	if p.Progress != domain.ProgressScriptReady {
		t.Fatalf("progress = %d, want %d", p.Progress, domain.ProgressScriptReady)
	}

	started, err := h.svc.StartProduction(ctx, p.ID)
	if err != nil {
		t.Fatalf("StartProduction returned error: %v", err)
	}
	if started.Status != domain.StatusProduction || started.Progress != domain.ProgressProductionStart {
		t.Fatalf("started = %s/%d", started.Status, started.Progress)
	}

	done := waitFor(t, h, p.ID, terminal)
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s error = %q", done.Status, done.Error)
	}
	if done.Progress != domain.ProgressDone {
		t.Fatalf("progress = %d", done.Progress)
	}
	data, err := os.ReadFile(done.FinalMoviePath)
	if err != nil {
		t.Fatalf("final movie unreadable: %v", err)
	}
	if !strings.HasPrefix(string(data), "clip-1clip-2") {
		t.Fatalf("final movie content = %q", data)
	}
	if !strings.HasSuffix(done.FinalMoviePath, "T_"+p.ID+".mp4") {
		t.Fatalf("final movie path = %s", done.FinalMoviePath)
	}
	if _, err := os.Stat(done.ThumbnailPath); err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}

	if len(done.GeneratedClips) != len(done.Scenes) {
		t.Fatalf("clips = %d, scenes = %d", len(done.GeneratedClips), len(done.Scenes))
	}
	last := len(done.GeneratedClips) - 1
	for i, c := range done.GeneratedClips {
		if !c.OK() || c.SceneID != i+1 {
			t.Fatalf("clip %d = %+v", i, c)
		}
		if i == last && c.ContinuityFrame != nil {
			t.Fatalf("last clip has continuity frame %q", *c.ContinuityFrame)
		}
		if i < last && c.ContinuityFrame == nil {
			t.Fatalf("clip %d missing continuity frame", i)
		}
	}
	for _, s := range done.Scenes {
		if s.Status != domain.SceneCompleted {
			t.Fatalf("scene %d status = %s", s.ID, s.Status)
		}
	}

	reqs := h.video.snapshot()
	if len(reqs) != len(done.Scenes) {
		t.Fatalf("video requests = %d", len(reqs))
	}
	if reqs[0].ReferenceImage != nil {
		t.Fatalf("first scene must not carry a reference image")
	}
	if string(reqs[1].ReferenceImage) != "frame-of-clip-1" {
		t.Fatalf("scene 2 reference = %q", reqs[1].ReferenceImage)
	}
	if !strings.HasPrefix(reqs[0].Prompt, "cinematic style: ") || reqs[0].DurationSeconds != domain.SceneDuration {
		t.Fatalf("request = %+v", reqs[0])
	}
}

func TestStartProductionWithoutScenesDoesNotMutate(t *testing.T) {
	h := newHarness(t)
	p := h.create(t, 3)

	_, err := h.svc.StartProduction(context.Background(), p.ID)
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("error = %v, want ErrInvalidState", err)
	}
	got, _ := h.svc.Get(context.Background(), p.ID)
	if got.Status != domain.StatusCreated || got.Progress != 0 {
		t.Fatalf("project mutated: %s/%d", got.Status, got.Progress)
	}
}

func TestSkipPolicyRecordsFailedScene(t *testing.T) {
	h := newHarness(t)
	h.video.fail[2] = fmt.Errorf("%w: quota", domain.ErrProviderFailure)
	p := h.scripted(t, 4)

	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	done := waitFor(t, h, p.ID, terminal)
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s (%s)", done.Status, done.Error)
	}
	if len(done.GeneratedClips) != 4 {
		t.Fatalf("clips = %d", len(done.GeneratedClips))
	}
	failed := done.GeneratedClips[1]
	if failed.OK() || !strings.Contains(failed.Error, "quota") || failed.ClipPath != "" {
		t.Fatalf("failed clip = %+v", failed)
	}
	if done.Scenes[1].Status != domain.SceneFailed || done.ScenesFailed() != 1 {
		t.Fatalf("scene 2 status = %s", done.Scenes[1].Status)
	}
	if len(h.media.concatenated) != 3 {
		t.Fatalf("concatenated %d clips, want 3", len(h.media.concatenated))
	}

	// Scene 3 falls back to the frame of scene 1, the latest successful clip.
	reqs := h.video.snapshot()
	if string(reqs[2].ReferenceImage) != "frame-of-clip-1" {
		t.Fatalf("scene 3 reference = %q", reqs[2].ReferenceImage)
	}
}

func TestAbortPolicyFailsProject(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.FailurePolicy = infra.FailurePolicyAbort })
	h.video.fail[2] = errors.New("boom")
	p := h.scripted(t, 4)

	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	done := waitFor(t, h, p.ID, terminal)
	if done.Status != domain.StatusFailed {
		t.Fatalf("status = %s", done.Status)
	}
	if !strings.Contains(done.Error, "scene 2") || done.FinalMoviePath != "" {
		t.Fatalf("project = %+v", done)
	}
	if got := len(h.video.snapshot()); got != 2 {
		t.Fatalf("video calls = %d, want 2", got)
	}
}

func TestAssemblyFailureLeavesNoArtifacts(t *testing.T) {
	h := newHarness(t)
	h.media.concatErr = errors.New("xfade: invalid offset")
	p := h.scripted(t, 2)

	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	done := waitFor(t, h, p.ID, terminal)
	if done.Status != domain.StatusFailed || !strings.Contains(done.Error, "xfade") {
		t.Fatalf("project = %s / %q", done.Status, done.Error)
	}
	if done.FinalMoviePath != "" || done.ThumbnailPath != "" {
		t.Fatalf("final paths should be cleared: %+v", done)
	}
	entries, _ := os.ReadDir(h.outputs.BasePath())
	if len(entries) != 0 {
		t.Fatalf("output dir not empty: %d entries", len(entries))
	}
}

func TestFrameExtractionFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.media.extractErr = errors.New("no duration")
	p := h.scripted(t, 3)

	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	done := waitFor(t, h, p.ID, terminal)
	if done.Status != domain.StatusCompleted {
		t.Fatalf("status = %s (%s)", done.Status, done.Error)
	}
	for _, c := range done.GeneratedClips {
		if c.ContinuityFrame != nil {
			t.Fatalf("clip %d has a frame despite extraction failure", c.SceneID)
		}
	}
	for _, r := range h.video.snapshot() {
		if r.ReferenceImage != nil {
			t.Fatalf("scene %d received a reference", r.SceneID)
		}
	}
}

func TestGenerationTimeoutIsRecordedPerScene(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.GenerationTimeout = 20 * time.Millisecond })
	h.video.block = true
	p := h.scripted(t, 2)

	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	done := waitFor(t, h, p.ID, terminal)
	if done.Status != domain.StatusFailed {
		t.Fatalf("status = %s", done.Status)
	}
	for _, c := range done.GeneratedClips {
		if c.OK() || !strings.Contains(c.Error, domain.ErrTimeout.Error()) {
			t.Fatalf("clip = %+v", c)
		}
	}
	if !strings.Contains(done.Error, "no scenes were rendered") {
		t.Fatalf("error = %q", done.Error)
	}
}

func TestDeleteDuringProduction(t *testing.T) {
	h := newHarness(t)
	h.video.block = true
	h.video.started = make(chan int, 1)
	p := h.scripted(t, 3)

	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	select {
	case <-h.video.started:
	case <-time.After(5 * time.Second):
		t.Fatal("production never reached the generator")
	}

	deleted, err := h.svc.Delete(context.Background(), p.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	list, _ := h.svc.List(context.Background())
	for _, item := range list {
		if item.ID == p.ID {
			t.Fatalf("deleted project still listed")
		}
	}
	if _, err := h.svc.Get(context.Background(), p.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get error = %v", err)
	}
	launcher := h.svc.launcher.(*LocalLauncher)
	if launcher.Running(p.ID) {
		t.Fatalf("production job still running after delete")
	}
	if _, err := os.Stat(h.scratch.BasePath() + "/" + p.ID); !os.IsNotExist(err) {
		t.Fatalf("scratch dir still present: %v", err)
	}
	if deleted, _ := h.svc.Delete(context.Background(), p.ID); deleted {
		t.Fatalf("second delete reported true")
	}
}

func TestShutdownFailsProductionStillWaiting(t *testing.T) {
	h := newHarness(t)
	p := h.scripted(t, 2)
	if _, err := h.store.Update(context.Background(), p.ID, func(p *domain.Project) error {
		p.Status = domain.StatusProduction
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	// An earlier job for the project that never finishes unwinding.
	launcher := h.svc.launcher.(*LocalLauncher)
	launcher.mu.Lock()
	launcher.tasks[p.ID] = &localTask{cancel: func() {}, done: make(chan struct{})}
	launcher.mu.Unlock()

	if err := launcher.Launch(context.Background(), Job{Kind: JobProduction, ProjectID: p.ID}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.svc.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}

	got, err := h.svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusFailed || !strings.Contains(got.Error, "interrupted") {
		t.Fatalf("status = %s error = %q", got.Status, got.Error)
	}
	if len(h.video.snapshot()) != 0 {
		t.Fatalf("abandoned job reached the generator")
	}
}

func TestRecoverInterruptedFailsBusyProjects(t *testing.T) {
	h := newHarness(t)
	statuses := map[string]domain.Status{
		"rendering": domain.StatusProduction,
		"planning":  domain.StatusScriptGeneration,
		"idle":      domain.StatusScriptReady,
		"done":      domain.StatusCompleted,
	}
	for id, status := range statuses {
		if err := h.store.Put(context.Background(), &domain.Project{ID: id, Title: id, Status: status}); err != nil {
			t.Fatal(err)
		}
	}

	n, err := h.svc.RecoverInterrupted(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("recovered %d projects, want 2", n)
	}
	want := map[string]domain.Status{
		"rendering": domain.StatusFailed,
		"planning":  domain.StatusScriptFailed,
		"idle":      domain.StatusScriptReady,
		"done":      domain.StatusCompleted,
	}
	for id, status := range want {
		got, err := h.svc.Get(context.Background(), id)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != status {
			t.Fatalf("%s: status = %s, want %s", id, got.Status, status)
		}
		if got.IsBusy() {
			t.Fatalf("%s still busy", id)
		}
		if status != statuses[id] && !strings.Contains(got.Error, "interrupted") {
			t.Fatalf("%s: error = %q", id, got.Error)
		}
	}

	// A second pass finds nothing left to recover.
	if n, err := h.svc.RecoverInterrupted(context.Background()); err != nil || n != 0 {
		t.Fatalf("second pass = %d, %v", n, err)
	}
}

func TestInterruptLeavesOtherStatesAlone(t *testing.T) {
	h := newHarness(t)
	p := h.scripted(t, 2)

	if err := h.svc.Interrupt(context.Background(), Job{Kind: JobProduction, ProjectID: p.ID}); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.Interrupt(context.Background(), Job{Kind: JobScript, ProjectID: p.ID}); err != nil {
		t.Fatal(err)
	}
	got, err := h.svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.StatusScriptReady || got.Error != "" {
		t.Fatalf("status = %s error = %q", got.Status, got.Error)
	}
	if err := h.svc.Interrupt(context.Background(), Job{Kind: "render", ProjectID: p.ID}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("unknown kind error = %v", err)
	}
}

func TestGenerateScriptIsIdempotent(t *testing.T) {
	h := newHarness(t)
	p := h.scripted(t, 4)
	first := len(p.Scenes)

	again, err := h.svc.GenerateScript(context.Background(), p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Scenes) != first {
		t.Fatalf("scenes = %d, want %d", len(again.Scenes), first)
	}
	for i, s := range again.Scenes {
		if s.ID != i+1 {
			t.Fatalf("scene ids not contiguous: %+v", again.Scenes)
		}
	}
	if again.ScriptSource != planner.SourceFallback {
		t.Fatalf("script source = %s", again.ScriptSource)
	}
}

func TestCreateWithAutoScript(t *testing.T) {
	h := newHarness(t)
	p, err := h.svc.Create(context.Background(), jsoncfg.MovieRequest{
		Title:   "Auto",
		Concept: "robots learning to paint",
		Style:   "Anime",
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if p.Status != domain.StatusScriptGeneration || p.Progress != domain.ProgressScriptStarted {
		t.Fatalf("created = %s/%d", p.Status, p.Progress)
	}
	if p.Style != "anime" || p.Preset != jsoncfg.DefaultPreset || p.MaxClips != jsoncfg.DefaultMaxClips {
		t.Fatalf("defaults not applied: %+v", p)
	}
	ready := waitFor(t, h, p.ID, func(p *domain.Project) bool { return p.Status == domain.StatusScriptReady })
	if len(ready.Scenes) == 0 || ready.Script == nil {
		t.Fatalf("script missing: %+v", ready)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	cases := []jsoncfg.MovieRequest{
		{Title: "", Concept: "c"},
		{Title: "t", Concept: ""},
		{Title: "t", Concept: "c", Style: "vaporwave"},
		{Title: "t", Concept: "c", Preset: "trailer"},
		{Title: "t", Concept: "c", MaxClips: 51},
		{Title: "t", Concept: "c", Budget: -1},
	}
	for _, req := range cases {
		req.AutoGenerateScript = manual()
		if _, err := h.svc.Create(context.Background(), req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Create(%+v) error = %v, want ErrInvalidInput", req, err)
		}
	}
	if list, _ := h.svc.List(context.Background()); len(list) != 0 {
		t.Fatalf("invalid requests created %d projects", len(list))
	}
}

func TestUpdateScript(t *testing.T) {
	h := newHarness(t)
	p := h.create(t, 2)

	text := "Scene 1: Dawn\nDescription: Sun rises over the trees.\nVisual Prompt: sunrise through pines\nContinuity: opening\n\n" +
		"Scene 2: Path\nDescription: A trail appears.\nVisual Prompt: dirt trail into fog\nContinuity: follows the light\n\n" +
		"Scene 3: Extra\nDescription: dropped\nVisual Prompt: dropped\n"
	updated, err := h.svc.UpdateScript(context.Background(), p.ID, jsoncfg.ScriptUpdate{ScriptContent: text})
	if err != nil {
		t.Fatalf("UpdateScript returned error: %v", err)
	}
	if updated.Status != domain.StatusScriptReady || updated.ScriptSource != planner.SourceManual {
		t.Fatalf("updated = %s/%s", updated.Status, updated.ScriptSource)
	}
	if len(updated.Scenes) != 2 || updated.Scenes[1].VisualPrompt != "dirt trail into fog" {
		t.Fatalf("scenes = %+v", updated.Scenes)
	}

	if _, err := h.svc.UpdateScript(context.Background(), p.ID, jsoncfg.ScriptUpdate{ScriptContent: "too short"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("short script error = %v", err)
	}
	if _, err := h.svc.UpdateScript(context.Background(), "missing", jsoncfg.ScriptUpdate{ScriptContent: text}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing project error = %v", err)
	}
}

func TestBusyProjectRejectsLifecycleCalls(t *testing.T) {
	h := newHarness(t)
	h.video.block = true
	h.video.started = make(chan int, 1)
	p := h.scripted(t, 2)
	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	<-h.video.started

	if _, err := h.svc.GenerateScript(context.Background(), p.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("GenerateScript error = %v", err)
	}
	if _, err := h.svc.StartProduction(context.Background(), p.ID); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("StartProduction error = %v", err)
	}
	longScript := strings.Repeat("Scene 1: x\nVisual Prompt: y\n", 5)
	if _, err := h.svc.UpdateScript(context.Background(), p.ID, jsoncfg.ScriptUpdate{ScriptContent: longScript}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("UpdateScript error = %v", err)
	}
}

func TestEstimatedCost(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name   string
		scenes int
		max    int
		budget float64
		want   float64
	}{
		{name: "scenes under budget", scenes: 4, max: 10, budget: 5, want: 1.0},
		{name: "capped by budget", scenes: 10, max: 10, budget: 2, want: 2},
		{name: "no scenes uses max_clips", scenes: 0, max: 6, budget: 5, want: 1.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &domain.Project{MaxClips: tc.max, Budget: tc.budget, Scenes: make([]domain.Scene, tc.scenes)}
			if got := h.svc.EstimatedCost(p); got != tc.want {
				t.Fatalf("EstimatedCost = %v, want %v", got, tc.want)
			}
		})
	}

	b := h.svc.CostBreakdown(&domain.Project{ID: "x", MaxClips: 4, Budget: 1})
	if b.Scenes != 4 || b.VideoGenerationCost != 1 || b.ScriptGenerationCost != scriptGenerationCost || b.WithinBudget {
		t.Fatalf("breakdown = %+v", b)
	}
}

func TestRerunProductionResetsState(t *testing.T) {
	h := newHarness(t)
	h.video.fail[1] = errors.New("flaky")
	p := h.scripted(t, 2)

	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	first := waitFor(t, h, p.ID, terminal)
	if first.ScenesFailed() != 1 {
		t.Fatalf("first run failed scenes = %d", first.ScenesFailed())
	}

	h.video.mu.Lock()
	delete(h.video.fail, 1)
	h.video.mu.Unlock()
	if _, err := h.svc.StartProduction(context.Background(), p.ID); err != nil {
		t.Fatalf("second StartProduction returned error: %v", err)
	}
	second := waitFor(t, h, p.ID, func(p *domain.Project) bool {
		return p.IsTerminal() && len(p.GeneratedClips) == 2 && p.ScenesFailed() == 0
	})
	if second.Status != domain.StatusCompleted || second.Error != "" {
		t.Fatalf("second run = %s (%s)", second.Status, second.Error)
	}
}

func TestNewRejectsUnknownPolicy(t *testing.T) {
	_, err := New(Options{
		Store:         memstore.New(),
		Planner:       planner.New(planner.Options{}),
		Scratch:       &storage.FileStore{},
		Outputs:       &storage.FileStore{},
		FailurePolicy: "retry",
	})
	if err == nil {
		t.Fatalf("expected error for unknown policy")
	}
}

func TestOutputBaseName(t *testing.T) {
	cases := map[string]string{
		"T":                   "T_id",
		"The Magic Forest!":   "The_Magic_Forest_id",
		"  ../../etc/passwd ": "etc_passwd_id",
		"???":                 "movie_id",
	}
	for title, want := range cases {
		if got := outputBaseName(title, "id"); got != want {
			t.Fatalf("outputBaseName(%q) = %q, want %q", title, got, want)
		}
	}
}
