// Package download contains the scheduler and supervisor for yt-dlp jobs:
// admission against the concurrency limit, per-job cancellation, output
// parsing and terminal state handling.
package download

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"downlink/internal/apperrors"
	"downlink/internal/event"
	"downlink/internal/media"
	"downlink/internal/preset"
	"downlink/internal/runner"
	"downlink/internal/store"
	"downlink/internal/urltext"
)

// Store is the persistence surface the manager needs.
type Store interface {
	InsertDownload(d *store.Download) error
	GetDownload(id uuid.UUID) (*store.Download, error)
	SetStatus(id uuid.UUID, status store.Status) error
	SetSourceKind(id uuid.UUID, kind store.SourceKind) error
	SetPhase(id uuid.UUID, phase string) error
	UpdateMetadata(id uuid.UUID, info event.MediaInfo) error
	UpdateProgress(id uuid.UUID, p event.Progress) error
	SetFinalPath(id uuid.UUID, finalPath string) error
	SetError(id uuid.UUID, code event.ErrorCode, message string) error
	ClearError(id uuid.UUID) error
	QueuedIDs() ([]uuid.UUID, error)
	AddLog(downloadID uuid.UUID, stream, line string) error
	TrimLogs(downloadID uuid.UUID, keep int) error
	DeleteDownload(id uuid.UUID) error
}

// MetadataFetcher probes a URL without downloading.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, mediaURL string) (*event.MediaInfo, error)
	EnumeratePlaylist(ctx context.Context, playlistURL string) ([]media.PlaylistEntry, error)
}

// Publisher delivers lifecycle events to the subscriber.
type Publisher interface {
	Publish(ev event.Event)
}

// MetricsRecorder records download lifecycle metrics.
type MetricsRecorder interface {
	RecordDownloadStarted(ctx context.Context)
	RecordDownloadFinished(ctx context.Context, status string, duration time.Duration)
}

// Options configures a Manager.
type Options struct {
	MaxConcurrent  int
	OutputDir      string
	OutputTemplate string
	DefaultPreset  string
	YtDlpPath      string
	FfmpegPath     string
}

// Manager owns the active-download set and the executor goroutines.
type Manager struct {
	opts    Options
	store   Store
	runner  runner.Runner
	prober  MetadataFetcher
	bus     Publisher
	metrics MetricsRecorder
	logger  *slog.Logger

	registry *registry
	wg       sync.WaitGroup

	mu            sync.Mutex
	shutdown      bool
	maxConcurrent int
}

// NewManager wires the download scheduler.
func NewManager(opts Options, st Store, r runner.Runner, prober MetadataFetcher, bus Publisher, metrics MetricsRecorder) *Manager {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 2
	}
	if opts.OutputTemplate == "" {
		opts.OutputTemplate = "%(title)s [%(id)s].%(ext)s"
	}
	if opts.DefaultPreset == "" {
		opts.DefaultPreset = "recommended_best"
	}
	return &Manager{
		opts:          opts,
		store:         st,
		runner:        r,
		prober:        prober,
		bus:           bus,
		metrics:       metrics,
		logger:        slog.With("component", "download-manager"),
		registry:      newRegistry(),
		maxConcurrent: opts.MaxConcurrent,
	}
}

// MaxConcurrent returns the current admission limit.
func (m *Manager) MaxConcurrent() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxConcurrent
}

// SetMaxConcurrent adjusts the admission limit. Lowering it does not stop
// running downloads; it only gates new admissions.
func (m *Manager) SetMaxConcurrent(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.maxConcurrent = n
	m.mu.Unlock()
}

// Add extracts URLs from text, persists one queued download per URL and
// tries to start each. Playlist detection happens later, at probe time.
func (m *Manager) Add(ctx context.Context, text, presetID, outputDir string) ([]*store.Download, error) {
	urls := urltext.ExtractURLs(text)
	if len(urls) == 0 {
		return nil, apperrors.Validation("url", "no valid http(s) URLs found in input")
	}
	if presetID == "" {
		presetID = m.opts.DefaultPreset
	}
	if outputDir == "" {
		outputDir = m.opts.OutputDir
	}

	downloads := make([]*store.Download, 0, len(urls))
	for _, u := range urls {
		d := &store.Download{
			ID:         uuid.New(),
			SourceURL:  u,
			SourceKind: store.KindSingle,
			Status:     store.StatusQueued,
			PresetID:   preset.ByID(presetID).ID,
			OutputDir:  outputDir,
		}
		if err := m.store.InsertDownload(d); err != nil {
			return nil, err
		}
		downloads = append(downloads, d)
		m.bus.Publish(event.Event{Type: event.TypeQueued, ID: d.ID, Status: string(store.StatusQueued)})
	}

	for _, d := range downloads {
		// Queue-full is normal when pasting many URLs; the record stays
		// queued and starts when a slot frees up.
		err := m.admit(ctx, d.ID)
		if err != nil && !errors.Is(err, errLimitReached) && !errors.Is(err, errAlreadyActive) {
			m.logger.Warn("Auto-start failed", "id", d.ID, "error", err)
		}
	}
	return downloads, nil
}

// Start admits a download into the active set and launches its executor.
// Starting an already-active download, or starting when the concurrency
// limit is reached, is a harmless no-op; in the latter case the record
// stays queued and is admitted when a slot frees up.
func (m *Manager) Start(ctx context.Context, id uuid.UUID) error {
	err := m.admit(ctx, id)
	if errors.Is(err, errAlreadyActive) || errors.Is(err, errLimitReached) {
		return nil
	}
	return err
}

// admit performs the actual admission. Internal callers schedule around the
// raw errAlreadyActive/errLimitReached conditions that Start hides.
func (m *Manager) admit(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return apperrors.Unavailable("download.start", errors.New("daemon is shutting down"))
	}
	m.mu.Unlock()

	d, err := m.store.GetDownload(id)
	if err != nil {
		return err
	}
	if !d.Status.Startable() {
		return apperrors.Conflict("download", id.String(),
			fmt.Sprintf("download is %s, not startable", d.Status))
	}
	if d.SourceKind == store.KindPlaylistParent {
		return apperrors.Conflict("download", id.String(),
			"playlist parents do not download; start their items")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if err := m.registry.tryAdd(id, cancel, m.MaxConcurrent()); err != nil {
		cancel()
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(runCtx, d)
		m.registry.remove(id)
		m.startNextQueued(ctx)
	}()
	return nil
}

// Stop pauses an active download. The partial file stays on disk and the
// record becomes stopped, so Start can resume it later. Stopping a download
// that is not active is a harmless no-op.
func (m *Manager) Stop(id uuid.UUID) error {
	if e, ok := m.registry.get(id); ok {
		e.cancel()
	}
	return nil
}

// Cancel aborts a download for good. Unlike Stop it marks the record
// canceled even if the process has already exited, making cancel
// authoritative over a concurrent natural completion.
func (m *Manager) Cancel(id uuid.UUID) error {
	if e, ok := m.registry.get(id); ok {
		e.canceled.Store(true)
		e.cancel()
	}

	if err := m.store.SetStatus(id, store.StatusCanceled); err != nil {
		return err
	}
	m.bus.Publish(event.Event{Type: event.TypeCanceled, ID: id, Status: string(store.StatusCanceled)})
	return nil
}

// Retry clears a failure and re-queues the download.
func (m *Manager) Retry(ctx context.Context, id uuid.UUID) error {
	if m.registry.contains(id) {
		return apperrors.Conflict("download", id.String(), "download is active")
	}
	if err := m.store.ClearError(id); err != nil {
		return err
	}
	if err := m.store.SetStatus(id, store.StatusQueued); err != nil {
		return err
	}
	m.bus.Publish(event.Event{Type: event.TypeQueued, ID: id, Status: string(store.StatusQueued)})

	return m.Start(ctx, id)
}

// Remove cancels the download if active and deletes its record.
func (m *Manager) Remove(id uuid.UUID) error {
	if e, ok := m.registry.get(id); ok {
		e.canceled.Store(true)
		e.cancel()
	}
	return m.store.DeleteDownload(id)
}

// ExpandPlaylist enumerates a playlist URL and inserts one queued item per
// entry under the parent record.
func (m *Manager) ExpandPlaylist(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error) {
	parent, err := m.store.GetDownload(parentID)
	if err != nil {
		return nil, err
	}

	entries, err := m.prober.EnumeratePlaylist(ctx, parent.SourceURL)
	if err != nil {
		return nil, apperrors.Internal("download.expandPlaylist", err)
	}
	if len(entries) == 0 {
		return nil, apperrors.Validation("url", "playlist has no entries")
	}

	if parent.SourceKind != store.KindPlaylistParent {
		if err := m.markPlaylistParent(parentID); err != nil {
			return nil, err
		}
	}

	itemIDs := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		item := &store.Download{
			ID:         uuid.New(),
			SourceURL:  e.URL,
			SourceKind: store.KindPlaylistItem,
			ParentID:   &parentID,
			Status:     store.StatusQueued,
			PresetID:   parent.PresetID,
			OutputDir:  parent.OutputDir,
		}
		if err := m.store.InsertDownload(item); err != nil {
			return nil, err
		}
		if e.Title != nil || e.Uploader != nil || e.DurationSeconds != nil || e.ThumbnailURL != nil {
			_ = m.store.UpdateMetadata(item.ID, event.MediaInfo{
				Title:           e.Title,
				Uploader:        e.Uploader,
				DurationSeconds: e.DurationSeconds,
				ThumbnailURL:    e.ThumbnailURL,
			})
		}
		itemIDs = append(itemIDs, item.ID)
	}

	m.bus.Publish(event.Event{
		Type:     event.TypePlaylistExpand,
		ParentID: parentID,
		ItemIDs:  itemIDs,
		Count:    len(itemIDs),
	})

	for _, id := range itemIDs {
		err := m.admit(ctx, id)
		if err != nil && !errors.Is(err, errLimitReached) && !errors.Is(err, errAlreadyActive) {
			m.logger.Warn("Playlist item auto-start failed", "id", id, "error", err)
		}
	}
	return itemIDs, nil
}

// IsActive reports whether the download currently has an executor.
func (m *Manager) IsActive(id uuid.UUID) bool {
	return m.registry.contains(id)
}

// ActiveCount returns the size of the active set.
func (m *Manager) ActiveCount() int {
	return m.registry.count()
}

// Shutdown stops accepting starts, cancels all active downloads as stopped
// (so they resume on next launch) and waits for executors, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	m.mu.Unlock()

	for _, id := range m.registry.ids() {
		if e, ok := m.registry.get(id); ok {
			e.cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResumeQueued fills the active set from the persisted queue, oldest first.
// Called at startup so downloads interrupted by a previous shutdown pick up
// where they left off.
func (m *Manager) ResumeQueued(ctx context.Context) int {
	ids, err := m.store.QueuedIDs()
	if err != nil {
		m.logger.Warn("Queue scan failed", "error", err)
		return 0
	}

	started := 0
	for _, id := range ids {
		err := m.admit(ctx, id)
		switch {
		case err == nil:
			started++
		case errors.Is(err, errLimitReached):
			return started
		case errors.Is(err, errAlreadyActive), errors.Is(err, apperrors.ErrConflict):
		default:
			m.logger.Warn("Queued download start failed", "id", id, "error", err)
		}
	}
	return started
}

// markPlaylistParent rewrites the record once enumeration confirms the URL
// is a playlist. The parent itself never downloads; its items do.
func (m *Manager) markPlaylistParent(id uuid.UUID) error {
	if err := m.store.SetSourceKind(id, store.KindPlaylistParent); err != nil {
		return err
	}
	return m.store.SetStatus(id, store.StatusReady)
}

// startNextQueued admits the oldest startable download when a slot frees
// up. Races with explicit Start calls are fine; admission is atomic.
func (m *Manager) startNextQueued(ctx context.Context) {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	ids, err := m.store.QueuedIDs()
	if err != nil {
		m.logger.Warn("Queue scan failed", "error", err)
		return
	}
	for _, id := range ids {
		err := m.admit(ctx, id)
		switch {
		case err == nil, errors.Is(err, errLimitReached):
			return
		case errors.Is(err, errAlreadyActive), errors.Is(err, apperrors.ErrConflict):
			continue
		default:
			m.logger.Warn("Queued download start failed", "id", id, "error", err)
		}
	}
}
