package download

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downlink/internal/apperrors"
	"downlink/internal/event"
	"downlink/internal/media"
	"downlink/internal/runner"
	"downlink/internal/store"
)

// fakeStore is an in-memory Store for scheduler tests.
type fakeStore struct {
	mu        sync.Mutex
	downloads map[uuid.UUID]*store.Download
	logs      map[uuid.UUID][]string
	order     []uuid.UUID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		downloads: make(map[uuid.UUID]*store.Download),
		logs:      make(map[uuid.UUID][]string),
	}
}

func (f *fakeStore) add(status store.Status) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.downloads[id] = &store.Download{
		ID: id, SourceURL: "https://example.com/v", SourceKind: store.KindSingle,
		Status: status, PresetID: "recommended_best", OutputDir: "/downloads",
	}
	f.order = append(f.order, id)
	return id
}

func (f *fakeStore) get(id uuid.UUID) store.Download {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.downloads[id]
}

func (f *fakeStore) InsertDownload(d *store.Download) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.downloads[d.ID] = &cp
	f.order = append(f.order, d.ID)
	return nil
}

func (f *fakeStore) GetDownload(id uuid.UUID) (*store.Download, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.downloads[id]
	if !ok {
		return nil, apperrors.NotFound("download", id.String())
	}
	cp := *d
	return &cp, nil
}

func (f *fakeStore) SetStatus(id uuid.UUID, status store.Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.downloads[id]
	if !ok {
		return apperrors.NotFound("download", id.String())
	}
	d.Status = status
	return nil
}

func (f *fakeStore) SetSourceKind(id uuid.UUID, kind store.SourceKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[id].SourceKind = kind
	return nil
}

func (f *fakeStore) SetPhase(id uuid.UUID, phase string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if phase == "" {
		f.downloads[id].Phase = nil
	} else {
		f.downloads[id].Phase = &phase
	}
	return nil
}

func (f *fakeStore) UpdateMetadata(id uuid.UUID, info event.MediaInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[id].Title = info.Title
	return nil
}

func (f *fakeStore) UpdateProgress(id uuid.UUID, p event.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.downloads[id]
	if p.Percent != nil {
		d.ProgressPercent = p.Percent
	}
	if p.BytesTotal != nil {
		d.BytesTotal = p.BytesTotal
	}
	return nil
}

func (f *fakeStore) SetFinalPath(id uuid.UUID, finalPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads[id].FinalPath = &finalPath
	return nil
}

func (f *fakeStore) SetError(id uuid.UUID, code event.ErrorCode, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.downloads[id]
	c, m := string(code), message
	d.ErrorCode = &c
	d.ErrorMessage = &m
	return nil
}

func (f *fakeStore) ClearError(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := f.downloads[id]
	d.ErrorCode = nil
	d.ErrorMessage = nil
	return nil
}

func (f *fakeStore) QueuedIDs() ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, id := range f.order {
		if d, ok := f.downloads[id]; ok && d.Status.Startable() && d.SourceKind != store.KindPlaylistParent {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeStore) AddLog(id uuid.UUID, stream, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[id] = append(f.logs[id], stream+": "+line)
	return nil
}

func (f *fakeStore) TrimLogs(id uuid.UUID, keep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lines := f.logs[id]; len(lines) > keep {
		f.logs[id] = lines[len(lines)-keep:]
	}
	return nil
}

func (f *fakeStore) DeleteDownload(id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.downloads, id)
	return nil
}

// scriptProc is a channel-driven Proc the test controls.
type scriptProc struct {
	stdout chan string
	stderr chan string
	done   chan struct{}
	code   int
	once   sync.Once
}

func newScriptProc() *scriptProc {
	return &scriptProc{
		stdout: make(chan string, 64),
		stderr: make(chan string, 64),
		done:   make(chan struct{}),
	}
}

func (p *scriptProc) Stdout() <-chan string { return p.stdout }
func (p *scriptProc) Stderr() <-chan string { return p.stderr }
func (p *scriptProc) PID() int              { return 42 }

func (p *scriptProc) Wait() (int, error) {
	<-p.done
	return p.code, nil
}

func (p *scriptProc) Kill() error {
	p.finish(-1)
	return nil
}

func (p *scriptProc) finish(code int) {
	p.once.Do(func() {
		p.code = code
		close(p.stdout)
		close(p.stderr)
		close(p.done)
	})
}

// scriptRunner hands out scripted procs in order and kills them on ctx
// cancellation like the real runner.
type scriptRunner struct {
	mu      sync.Mutex
	procs   []*scriptProc
	started chan *scriptProc
	err     error
}

func newScriptRunner() *scriptRunner {
	return &scriptRunner{started: make(chan *scriptProc, 16)}
}

func (r *scriptRunner) Start(ctx context.Context, bin string, args []string) (runner.Proc, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	p := newScriptProc()
	r.procs = append(r.procs, p)
	go func() {
		select {
		case <-ctx.Done():
			p.finish(-1)
		case <-p.done:
		}
	}()
	r.started <- p
	return p, nil
}

type fakeProber struct {
	info    *event.MediaInfo
	entries []media.PlaylistEntry
	err     error
	fetches atomic.Int32
}

func (f *fakeProber) FetchMetadata(context.Context, string) (*event.MediaInfo, error) {
	f.fetches.Add(1)
	return f.info, f.err
}

func (f *fakeProber) EnumeratePlaylist(context.Context, string) ([]media.PlaylistEntry, error) {
	return f.entries, f.err
}

type captureBus struct {
	mu     sync.Mutex
	events []event.Event
}

func (b *captureBus) Publish(ev event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *captureBus) byType(t event.Type) []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []event.Event
	for _, ev := range b.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func newTestManager(fs *fakeStore, fr *scriptRunner, fp *fakeProber, bus *captureBus, maxConcurrent int) *Manager {
	return NewManager(Options{
		MaxConcurrent: maxConcurrent,
		OutputDir:     "/downloads",
		YtDlpPath:     "yt-dlp",
	}, fs, fr, fp, bus, nil)
}

func startedProc(t *testing.T, fr *scriptRunner) *scriptProc {
	t.Helper()
	select {
	case p := <-fr.started:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("process was not started")
		return nil
	}
}

func TestStartHappyPath(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	title := "A Clip"
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{info: &event.MediaInfo{Title: &title}}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))

	p := startedProc(t, fr)
	p.stdout <- "[download] Destination: /downloads/A Clip [x1].mp4"
	p.stdout <- "[downlink] 50.5% 1.5MiB/s 00:30 100MiB"
	p.stdout <- "[downlink] 100.0% 2.0MiB/s 00:00 100MiB"
	p.stdout <- `[Merger] Merging formats into "/downloads/A Clip [x1].mp4"`
	p.finish(0)

	waitFor(t, func() bool { return !m.IsActive(id) })

	d := fs.get(id)
	assert.Equal(t, store.StatusDone, d.Status)
	require.NotNil(t, d.FinalPath)
	assert.Equal(t, "/downloads/A Clip [x1].mp4", *d.FinalPath)
	require.NotNil(t, d.Title)
	assert.Equal(t, "A Clip", *d.Title)
	require.NotNil(t, d.ProgressPercent)
	assert.Equal(t, 100.0, *d.ProgressPercent)

	assert.NotEmpty(t, bus.byType(event.TypeStarted))
	assert.NotEmpty(t, bus.byType(event.TypeMetadataReady))
	assert.NotEmpty(t, bus.byType(event.TypeProgress))
	assert.NotEmpty(t, bus.byType(event.TypePostProcessing))
	require.Len(t, bus.byType(event.TypeCompleted), 1)
	assert.Equal(t, "/downloads/A Clip [x1].mp4", bus.byType(event.TypeCompleted)[0].FinalPath)
}

func TestMetadataProbeSkippedWhenTitleCached(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	fp := &fakeProber{}
	bus := &captureBus{}
	m := newTestManager(fs, fr, fp, bus, 2)

	id := fs.add(store.StatusStopped)
	title := "Cached Clip"
	fs.mu.Lock()
	fs.downloads[id].Title = &title
	fs.mu.Unlock()

	require.NoError(t, m.Start(context.Background(), id))
	p := startedProc(t, fr)

	// A resumed download already has its metadata; no second probe, and the
	// run enters downloading directly.
	assert.Equal(t, int32(0), fp.fetches.Load())
	started := bus.byType(event.TypeStarted)
	require.Len(t, started, 1)
	assert.Equal(t, string(store.StatusDownloading), started[0].Status)

	p.finish(0)
	waitFor(t, func() bool { return !m.IsActive(id) })
	assert.Equal(t, store.StatusDone, fs.get(id).Status)
}

func TestProgressEventsCarryStatusAndPhase(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	p := startedProc(t, fr)

	p.stdout <- "[downlink] 42.0% 1.5MiB/s 00:30 100MiB"
	p.stdout <- `[Merger] Merging formats into "/downloads/v.mp4"`
	p.stdout <- `[ffmpeg] Fixing container of "/downloads/v.mp4"`
	p.stdout <- "[downlink] 99.0% 1.0MiB/s 00:01 100MiB"
	p.stdout <- "[download] 100% of 100MiB in 00:40"
	p.finish(0)
	waitFor(t, func() bool { return !m.IsActive(id) })

	progress := bus.byType(event.TypeProgress)
	require.Len(t, progress, 4)

	first := progress[0]
	assert.Equal(t, string(store.StatusDownloading), first.Status)
	require.NotNil(t, first.Progress.Phase)
	assert.Equal(t, "Downloading", first.Progress.Phase.Name)

	merged := progress[1]
	assert.Equal(t, string(store.StatusPostProcessing), merged.Status)
	require.NotNil(t, merged.Progress.Phase)
	assert.Equal(t, "Merging streams", merged.Progress.Phase.Name)

	// The 100% marker carries its own event past the throttle.
	final := progress[3]
	require.NotNil(t, final.Progress.Percent)
	assert.Equal(t, 100.0, *final.Progress.Percent)
	require.NotNil(t, final.Progress.Phase)
	assert.Equal(t, "Finishing", final.Progress.Phase.Name)

	// Every marker line re-announces the phase.
	assert.Len(t, bus.byType(event.TypePostProcessing), 2)
}

func TestCompletionForcesFullPercent(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	m := newTestManager(fs, fr, &fakeProber{}, &captureBus{}, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	p := startedProc(t, fr)

	// The file was already on disk, so the tool prints no progress at all.
	p.stdout <- "[download] /downloads/v.mp4 has already been downloaded"
	p.finish(0)
	waitFor(t, func() bool { return !m.IsActive(id) })

	d := fs.get(id)
	assert.Equal(t, store.StatusDone, d.Status)
	require.NotNil(t, d.ProgressPercent)
	assert.Equal(t, 100.0, *d.ProgressPercent)
	require.NotNil(t, d.FinalPath)
	assert.Equal(t, "/downloads/v.mp4", *d.FinalPath)
}

func TestConcurrencyLimitAndKickNext(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 1)

	first := fs.add(store.StatusQueued)
	second := fs.add(store.StatusQueued)

	require.NoError(t, m.Start(context.Background(), first))
	p1 := startedProc(t, fr)

	// With the only slot taken, Start is a no-op and the download stays queued.
	require.NoError(t, m.Start(context.Background(), second))
	assert.Equal(t, 1, m.ActiveCount())
	assert.False(t, m.IsActive(second))

	// Finishing the first slot admits the queued download automatically.
	p1.finish(0)
	p2 := startedProc(t, fr)
	waitFor(t, func() bool { return m.IsActive(second) })

	p2.finish(0)
	waitFor(t, func() bool { return m.ActiveCount() == 0 })
	assert.Equal(t, store.StatusDone, fs.get(second).Status)
}

func TestSetMaxConcurrentTakesEffectImmediately(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	m := newTestManager(fs, fr, &fakeProber{}, &captureBus{}, 1)

	first := fs.add(store.StatusQueued)
	second := fs.add(store.StatusQueued)

	require.NoError(t, m.Start(context.Background(), first))
	p1 := startedProc(t, fr)

	require.NoError(t, m.Start(context.Background(), second))
	assert.Equal(t, 1, m.ActiveCount())

	m.SetMaxConcurrent(2)
	assert.Equal(t, 2, m.MaxConcurrent())
	require.NoError(t, m.Start(context.Background(), second))
	p2 := startedProc(t, fr)

	p1.finish(0)
	p2.finish(0)
	waitFor(t, func() bool { return m.ActiveCount() == 0 })
}

func TestResumeQueuedFillsSlots(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	m := newTestManager(fs, fr, &fakeProber{}, &captureBus{}, 2)

	first := fs.add(store.StatusStopped)
	second := fs.add(store.StatusQueued)
	fs.add(store.StatusQueued)

	started := m.ResumeQueued(context.Background())
	assert.Equal(t, 2, started)
	waitFor(t, func() bool { return m.IsActive(first) && m.IsActive(second) })

	p1 := startedProc(t, fr)
	p2 := startedProc(t, fr)

	// Finishing a resumed download admits the third from the backlog.
	p1.finish(0)
	p3 := startedProc(t, fr)
	p2.finish(0)
	p3.finish(0)
	waitFor(t, func() bool { return m.ActiveCount() == 0 })
}

func TestStartNotStartable(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	m := newTestManager(fs, newScriptRunner(), &fakeProber{}, &captureBus{}, 2)

	id := fs.add(store.StatusDownloading)
	err := m.Start(context.Background(), id)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	id = fs.add(store.StatusDone)
	err = m.Start(context.Background(), id)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestStartAlreadyActive(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	m := newTestManager(fs, fr, &fakeProber{}, &captureBus{}, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	p := startedProc(t, fr)

	// A second Start on an active download is a no-op.
	waitFor(t, func() bool { return fs.get(id).Status == store.StatusDownloading })
	require.NoError(t, m.Start(context.Background(), id))
	assert.Equal(t, 1, m.ActiveCount())

	p.finish(0)
	waitFor(t, func() bool { return !m.IsActive(id) })
}

func TestStopMarksStopped(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	startedProc(t, fr)

	require.NoError(t, m.Stop(id))
	waitFor(t, func() bool { return !m.IsActive(id) })

	assert.Equal(t, store.StatusStopped, fs.get(id).Status)
	assert.Len(t, bus.byType(event.TypeStopped), 1)
	assert.Empty(t, bus.byType(event.TypeCanceled))
}

func TestStopInactiveIsNoop(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	bus := &captureBus{}
	m := newTestManager(fs, newScriptRunner(), &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Stop(id))
	assert.Equal(t, store.StatusQueued, fs.get(id).Status)
	assert.Empty(t, bus.byType(event.TypeStopped))

	require.NoError(t, m.Stop(uuid.New()))
}

func TestCancelIsAuthoritative(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	startedProc(t, fr)

	require.NoError(t, m.Cancel(id))
	waitFor(t, func() bool { return !m.IsActive(id) })

	assert.Equal(t, store.StatusCanceled, fs.get(id).Status)
	assert.Len(t, bus.byType(event.TypeCanceled), 1)
	assert.Empty(t, bus.byType(event.TypeStopped))
}

func TestCancelInactiveStillMarks(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	bus := &captureBus{}
	m := newTestManager(fs, newScriptRunner(), &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Cancel(id))
	assert.Equal(t, store.StatusCanceled, fs.get(id).Status)
}

func TestFailureClassified(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	p := startedProc(t, fr)

	p.stderr <- "ERROR: Sign in to confirm your age"
	p.finish(1)
	waitFor(t, func() bool { return !m.IsActive(id) })

	d := fs.get(id)
	assert.Equal(t, store.StatusFailed, d.Status)
	require.NotNil(t, d.ErrorCode)
	assert.Equal(t, "LOGIN_REQUIRED", *d.ErrorCode)

	failed := bus.byType(event.TypeFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, event.CodeLoginRequired, failed[0].ErrorCode)

	var kinds []event.ActionKind
	for _, a := range failed[0].Actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, event.ActionImportCookies)
}

func TestSpawnFailureToolMissing(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	fr.err = runner.ErrToolMissing
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	waitFor(t, func() bool { return !m.IsActive(id) })

	d := fs.get(id)
	assert.Equal(t, store.StatusFailed, d.Status)
	require.NotNil(t, d.ErrorCode)
	assert.Equal(t, "TOOL_MISSING", *d.ErrorCode)
}

func TestRetryClearsErrorAndRequeues(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 2)

	id := fs.add(store.StatusFailed)
	code, msg := "NETWORK", "connection reset"
	fs.mu.Lock()
	fs.downloads[id].ErrorCode = &code
	fs.downloads[id].ErrorMessage = &msg
	fs.mu.Unlock()

	require.NoError(t, m.Retry(context.Background(), id))
	p := startedProc(t, fr)

	d := fs.get(id)
	assert.Nil(t, d.ErrorCode)

	p.finish(0)
	waitFor(t, func() bool { return !m.IsActive(id) })
	assert.Equal(t, store.StatusDone, fs.get(id).Status)
}

func TestAddExtractsAndStarts(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 1)

	downloads, err := m.Add(context.Background(),
		"https://example.com/a and https://example.com/b", "", "")
	require.NoError(t, err)
	require.Len(t, downloads, 2)
	assert.Equal(t, "recommended_best", downloads[0].PresetID)
	assert.Equal(t, "/downloads", downloads[0].OutputDir)
	assert.Len(t, bus.byType(event.TypeQueued), 2)

	// Only one slot, so exactly one starts; the other stays queued.
	p := startedProc(t, fr)
	assert.Equal(t, 1, m.ActiveCount())

	p.finish(0)
	p2 := startedProc(t, fr)
	p2.finish(0)
	waitFor(t, func() bool { return m.ActiveCount() == 0 })
}

func TestAddRejectsGarbage(t *testing.T) {
	t.Parallel()

	m := newTestManager(newFakeStore(), newScriptRunner(), &fakeProber{}, &captureBus{}, 2)
	_, err := m.Add(context.Background(), "no links here", "", "")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestExpandPlaylist(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	title := "Item One"
	fp := &fakeProber{entries: []media.PlaylistEntry{
		{URL: "https://example.com/watch?v=1", Title: &title},
		{URL: "https://example.com/watch?v=2"},
	}}
	m := newTestManager(fs, fr, fp, bus, 1)

	parent := fs.add(store.StatusQueued)
	itemIDs, err := m.ExpandPlaylist(context.Background(), parent)
	require.NoError(t, err)
	require.Len(t, itemIDs, 2)

	assert.Equal(t, store.KindPlaylistParent, fs.get(parent).SourceKind)
	for _, id := range itemIDs {
		d := fs.get(id)
		assert.Equal(t, store.KindPlaylistItem, d.SourceKind)
		require.NotNil(t, d.ParentID)
		assert.Equal(t, parent, *d.ParentID)
	}

	expanded := bus.byType(event.TypePlaylistExpand)
	require.Len(t, expanded, 1)
	assert.Equal(t, 2, expanded[0].Count)
	assert.Equal(t, parent, expanded[0].ParentID)

	// One slot: first item runs, the second starts after it finishes.
	p1 := startedProc(t, fr)
	p1.finish(0)
	p2 := startedProc(t, fr)
	p2.finish(0)
	waitFor(t, func() bool { return m.ActiveCount() == 0 })
}

func TestShutdownStopsActiveDownloads(t *testing.T) {
	t.Parallel()

	fs := newFakeStore()
	fr := newScriptRunner()
	bus := &captureBus{}
	m := newTestManager(fs, fr, &fakeProber{}, bus, 2)

	id := fs.add(store.StatusQueued)
	require.NoError(t, m.Start(context.Background(), id))
	startedProc(t, fr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	// Interrupted run parks as stopped so the next launch can resume it.
	assert.Equal(t, store.StatusStopped, fs.get(id).Status)

	err := m.Start(context.Background(), fs.add(store.StatusQueued))
	assert.True(t, errors.Is(err, apperrors.ErrUnavailable))
}
