package download

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"downlink/internal/classify"
	"downlink/internal/event"
	"downlink/internal/parse"
	"downlink/internal/preset"
	"downlink/internal/runner"
	"downlink/internal/store"
)

// progressTemplate makes yt-dlp emit one unambiguous machine-parseable line
// per progress tick.
const progressTemplate = "download:[downlink] %(progress._percent_str)s %(progress._speed_str)s %(progress._eta_str)s %(progress._total_bytes_str)s"

// stderrTailLimit bounds how much stderr is kept for classification.
const stderrTailLimit = 16 * 1024

// logKeepLines is how many captured output lines survive per download after
// a run ends.
const logKeepLines = 1000

// Phase labels attached to progress rows and events.
const (
	phaseDownloading = "Downloading"
	phaseMerging     = "Merging streams"
	phaseFinishing   = "Finishing"
)

// execute drives one download from admission to its terminal state. It is
// the only writer of terminal statuses for this run, except Cancel which is
// authoritative and may overwrite.
func (m *Manager) execute(ctx context.Context, d *store.Download) {
	logger := m.logger.With("id", d.ID)
	started := time.Now()
	if m.metrics != nil {
		m.metrics.RecordDownloadStarted(ctx)
	}

	finish := func(status store.Status) {
		if m.metrics != nil {
			m.metrics.RecordDownloadFinished(context.Background(), string(status), time.Since(started))
		}
	}

	// A cached title means a retry or resume; the metadata phase already ran
	// once, so the run goes straight to downloading.
	startStatus := store.StatusDownloading
	if d.Title == nil {
		startStatus = store.StatusFetching
	}
	m.setStatus(d.ID, startStatus)
	m.bus.Publish(event.Event{Type: event.TypeStarted, ID: d.ID, Status: string(startStatus)})

	if d.Title == nil {
		// Metadata is best-effort; a probe failure must not kill the download.
		if info, err := m.prober.FetchMetadata(ctx, d.SourceURL); err != nil {
			logger.Warn("Metadata fetch failed, continuing without it", "error", err)
		} else if info != nil {
			if err := m.store.UpdateMetadata(d.ID, *info); err != nil {
				logger.Warn("Metadata persist failed", "error", err)
			}
			m.bus.Publish(event.Event{Type: event.TypeMetadataReady, ID: d.ID, Info: info})
		}

		if ctx.Err() != nil {
			status := m.interruptStatus(d.ID)
			finish(status)
			return
		}

		m.setStatus(d.ID, store.StatusDownloading)
	}

	proc, err := m.runner.Start(ctx, m.opts.YtDlpPath, m.buildArgs(d))
	if err != nil {
		code := event.CodeUnknown
		if errors.Is(err, runner.ErrToolMissing) || errors.Is(err, runner.ErrPermissionDenied) {
			code = event.CodeToolMissing
		}
		m.fail(d.ID, code, "failed to start yt-dlp: "+err.Error())
		finish(store.StatusFailed)
		return
	}

	run := m.superviseOutput(d, proc)
	exitCode, waitErr := proc.Wait()

	defer func() {
		if err := m.store.TrimLogs(d.ID, logKeepLines); err != nil {
			logger.Debug("Log trim failed", "error", err)
		}
	}()

	switch {
	case ctx.Err() != nil:
		status := m.interruptStatus(d.ID)
		finish(status)

	case waitErr != nil:
		m.fail(d.ID, event.CodeUnknown, "yt-dlp supervision failed: "+waitErr.Error())
		finish(store.StatusFailed)

	case exitCode == 0:
		m.complete(d.ID, run.finalPath)
		finish(store.StatusDone)

	default:
		result := classify.Error(run.stderrTail())
		m.fail(d.ID, result.Code, result.Message)
		finish(store.StatusFailed)
	}
}

// runState accumulates what the output streams revealed during one run.
type runState struct {
	finalPath string
	stderr    strings.Builder
	throttle  parse.Throttle
	merging   bool
}

func (r *runState) stderrTail() string {
	return r.stderr.String()
}

// phase is the label attached to progress samples at this point of the run.
func (r *runState) phase() *event.Phase {
	if r.merging {
		return &event.Phase{Name: phaseMerging}
	}
	return &event.Phase{Name: phaseDownloading}
}

func (r *runState) status() store.Status {
	if r.merging {
		return store.StatusPostProcessing
	}
	return store.StatusDownloading
}

// superviseOutput pumps both streams until they close, translating lines
// into log rows, progress samples and phase transitions.
func (m *Manager) superviseOutput(d *store.Download, proc runner.Proc) *runState {
	run := &runState{}
	stdout, stderr := proc.Stdout(), proc.Stderr()
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			m.handleStdoutLine(d, run, line)
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			m.handleStderrLine(d, run, line)
		}
	}
	return run
}

func (m *Manager) handleStdoutLine(d *store.Download, run *runState, line string) {
	if err := m.store.AddLog(d.ID, "stdout", line); err != nil {
		m.logger.Debug("Log persist failed", "id", d.ID, "error", err)
	}

	if path, ok := parse.DestinationPath(line); ok {
		run.finalPath = path
	}
	if path, ok := parse.AlreadyDownloadedPath(line); ok {
		run.finalPath = path
	}

	// Phase markers re-announce on every matching line; the row write
	// happens on the first one only.
	if parse.IsMergeLine(line) {
		if !run.merging {
			run.merging = true
			m.setStatus(d.ID, store.StatusPostProcessing)
			m.setPhase(d.ID, phaseMerging)
		}
		m.bus.Publish(event.Event{
			Type: event.TypePostProcessing, ID: d.ID,
			Status: string(store.StatusPostProcessing), Step: phaseMerging,
		})
	}

	if p, ok := parse.ProgressLine(line); ok {
		progress := event.Progress{
			Percent:         p.Percent,
			BytesDownloaded: p.BytesDownloaded,
			BytesTotal:      p.BytesTotal,
			SpeedBPS:        p.SpeedBPS,
			ETASeconds:      p.ETASeconds,
			Phase:           run.phase(),
		}
		if p.Percent == nil || run.throttle.ShouldEmit(*p.Percent) {
			m.emitProgress(d.ID, progress, run.status())
		}
	}

	// The completion marker bypasses the throttle so subscribers always see
	// the download reach 100%.
	if parse.IsCompleteLine(line) {
		full := 100.0
		m.emitProgress(d.ID, event.Progress{
			Percent: &full,
			Phase:   &event.Phase{Name: phaseFinishing},
		}, run.status())
	}
}

// emitProgress persists one progress sample and publishes it.
func (m *Manager) emitProgress(id uuid.UUID, progress event.Progress, status store.Status) {
	if err := m.store.UpdateProgress(id, progress); err != nil {
		m.logger.Debug("Progress persist failed", "id", id, "error", err)
	}
	m.bus.Publish(event.Event{
		Type: event.TypeProgress, ID: id,
		Status:   string(status),
		Progress: &progress,
	})
}

func (m *Manager) handleStderrLine(d *store.Download, run *runState, line string) {
	if err := m.store.AddLog(d.ID, "stderr", line); err != nil {
		m.logger.Debug("Log persist failed", "id", d.ID, "error", err)
	}
	if run.stderr.Len() < stderrTailLimit {
		run.stderr.WriteString(line)
		run.stderr.WriteByte('\n')
	}
}

// buildArgs assembles the yt-dlp invocation: supervision flags, output
// template, preset format selection, ffmpeg override, URL last.
func (m *Manager) buildArgs(d *store.Download) []string {
	args := []string{
		"--newline",
		"--no-warnings",
		"--no-call-home",
		"--progress",
		"--progress-template", progressTemplate,
		"-o", filepath.Join(d.OutputDir, m.opts.OutputTemplate),
	}
	args = append(args, preset.ByID(d.PresetID).Args...)
	if m.opts.FfmpegPath != "" {
		args = append(args, "--ffmpeg-location", m.opts.FfmpegPath)
	}
	return append(args, d.SourceURL)
}

// interruptStatus resolves a context-cancelled run: a cancel flag means the
// user discarded the download (Cancel already wrote the status), otherwise
// it was a pause.
func (m *Manager) interruptStatus(id uuid.UUID) store.Status {
	if e, ok := m.registry.get(id); ok && e.canceled.Load() {
		return store.StatusCanceled
	}
	m.setStatus(id, store.StatusStopped)
	m.bus.Publish(event.Event{Type: event.TypeStopped, ID: id, Status: string(store.StatusStopped)})
	return store.StatusStopped
}

func (m *Manager) complete(id uuid.UUID, finalPath string) {
	if finalPath != "" {
		if err := m.store.SetFinalPath(id, finalPath); err != nil {
			m.logger.Warn("Final path persist failed", "id", id, "error", err)
		}
	}
	// A done row always reads 100%, even when the tool never printed a
	// progress line (already-downloaded files, for instance).
	full := 100.0
	if err := m.store.UpdateProgress(id, event.Progress{Percent: &full}); err != nil {
		m.logger.Debug("Progress persist failed", "id", id, "error", err)
	}
	m.setPhase(id, "")
	m.setStatus(id, store.StatusDone)
	m.bus.Publish(event.Event{
		Type: event.TypeCompleted, ID: id,
		Status: string(store.StatusDone), FinalPath: finalPath,
	})
}

func (m *Manager) fail(id uuid.UUID, code event.ErrorCode, message string) {
	if err := m.store.SetError(id, code, message); err != nil {
		m.logger.Warn("Error persist failed", "id", id, "error", err)
	}
	m.setStatus(id, store.StatusFailed)
	m.bus.Publish(event.Event{
		Type: event.TypeFailed, ID: id,
		Status:    string(store.StatusFailed),
		ErrorCode: code,
		Message:   message,
		Actions:   classify.ActionsFor(code),
	})
}

func (m *Manager) setStatus(id uuid.UUID, status store.Status) {
	if err := m.store.SetStatus(id, status); err != nil {
		m.logger.Warn("Status persist failed", "id", id, "status", status, "error", err)
	}
}

func (m *Manager) setPhase(id uuid.UUID, phase string) {
	if err := m.store.SetPhase(id, phase); err != nil {
		m.logger.Debug("Phase persist failed", "id", id, "error", err)
	}
}

