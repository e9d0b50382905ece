package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"downlink/internal/apperrors"
	"downlink/internal/event"
)

const downloadColumns = `
	id, created_at, updated_at,
	source_url, source_kind, parent_id,
	title, uploader, duration_seconds, thumbnail_url,
	status, phase,
	preset_id, output_dir,
	final_path,
	progress_percent, bytes_downloaded, bytes_total, speed_bps, eta_seconds,
	error_code, error_message`

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// InsertDownload persists a new download record.
func (s *Store) InsertDownload(d *Download) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := now()
	var parent any
	if d.ParentID != nil {
		parent = d.ParentID.String()
	}
	_, err := s.db.Exec(`
		INSERT INTO downloads (
			id, created_at, updated_at,
			source_url, source_kind, parent_id,
			status, preset_id, output_dir
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID.String(), ts, ts,
		d.SourceURL, string(d.SourceKind), parent,
		string(d.Status), d.PresetID, d.OutputDir)
	if err != nil {
		return apperrors.Internal("store.insertDownload", err)
	}
	return nil
}

// GetDownload fetches one download by id.
func (s *Store) GetDownload(id uuid.UUID) (*Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+downloadColumns+` FROM downloads WHERE id = ?`, id.String())
	d, err := scanDownload(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("download", id.String())
	}
	if err != nil {
		return nil, apperrors.Internal("store.getDownload", err)
	}
	return d, nil
}

// SetStatus updates the status (and clears the phase when entering a
// terminal state).
func (s *Store) SetStatus(id uuid.UUID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE downloads SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now(), id.String())
	if err != nil {
		return apperrors.Internal("store.setStatus", err)
	}
	return requireRow(res, id)
}

// SetPhase records the human-readable execution step.
func (s *Store) SetPhase(id uuid.UUID, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v any
	if phase != "" {
		v = phase
	}
	res, err := s.db.Exec(
		`UPDATE downloads SET phase = ?, updated_at = ? WHERE id = ?`,
		v, now(), id.String())
	if err != nil {
		return apperrors.Internal("store.setPhase", err)
	}
	return requireRow(res, id)
}

// SetSourceKind rewrites the source kind, used when a probed URL turns out
// to be a playlist.
func (s *Store) SetSourceKind(id uuid.UUID, kind SourceKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE downloads SET source_kind = ?, updated_at = ? WHERE id = ?`,
		string(kind), now(), id.String())
	if err != nil {
		return apperrors.Internal("store.setSourceKind", err)
	}
	return requireRow(res, id)
}

// UpdateMetadata stores fetched media metadata.
func (s *Store) UpdateMetadata(id uuid.UUID, info event.MediaInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE downloads SET
			title = ?, uploader = ?, duration_seconds = ?, thumbnail_url = ?,
			updated_at = ?
		WHERE id = ?`,
		ptrArg(info.Title), ptrArg(info.Uploader), ptrArg(info.DurationSeconds), ptrArg(info.ThumbnailURL),
		now(), id.String())
	if err != nil {
		return apperrors.Internal("store.updateMetadata", err)
	}
	return requireRow(res, id)
}

// UpdateProgress persists one progress sample. Nil fields leave the stored
// value untouched so sparse samples do not erase earlier data.
func (s *Store) UpdateProgress(id uuid.UUID, p event.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE downloads SET
			progress_percent = COALESCE(?, progress_percent),
			bytes_downloaded = COALESCE(?, bytes_downloaded),
			bytes_total = COALESCE(?, bytes_total),
			speed_bps = COALESCE(?, speed_bps),
			eta_seconds = COALESCE(?, eta_seconds),
			updated_at = ?
		WHERE id = ?`,
		ptrArg(p.Percent), ptrArg(p.BytesDownloaded), ptrArg(p.BytesTotal),
		ptrArg(p.SpeedBPS), ptrArg(p.ETASeconds),
		now(), id.String())
	if err != nil {
		return apperrors.Internal("store.updateProgress", err)
	}
	return requireRow(res, id)
}

// SetFinalPath records where the finished file landed.
func (s *Store) SetFinalPath(id uuid.UUID, finalPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE downloads SET final_path = ?, updated_at = ? WHERE id = ?`,
		finalPath, now(), id.String())
	if err != nil {
		return apperrors.Internal("store.setFinalPath", err)
	}
	return requireRow(res, id)
}

// SetError records a classified failure.
func (s *Store) SetError(id uuid.UUID, code event.ErrorCode, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE downloads SET error_code = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(code), message, now(), id.String())
	if err != nil {
		return apperrors.Internal("store.setError", err)
	}
	return requireRow(res, id)
}

// ClearError wipes a previous failure, for retries.
func (s *Store) ClearError(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE downloads SET error_code = NULL, error_message = NULL, updated_at = ? WHERE id = ?`,
		now(), id.String())
	if err != nil {
		return apperrors.Internal("store.clearError", err)
	}
	return requireRow(res, id)
}

// DeleteDownload removes a download; playlist items cascade via the parent
// foreign key.
func (s *Store) DeleteDownload(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM downloads WHERE id = ?`, id.String())
	if err != nil {
		return apperrors.Internal("store.deleteDownload", err)
	}
	return requireRow(res, id)
}

// ListActive returns downloads that are not done or canceled, newest first.
func (s *Store) ListActive() ([]*Download, error) {
	return s.list(`SELECT `+downloadColumns+` FROM downloads
		WHERE status NOT IN ('done', 'canceled')
		ORDER BY created_at DESC`)
}

// ListCompleted returns up to limit finished downloads, most recent first.
func (s *Store) ListCompleted(limit int) ([]*Download, error) {
	return s.list(`SELECT `+downloadColumns+` FROM downloads
		WHERE status = 'done'
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
}

// QueuedIDs returns startable download ids, oldest first.
func (s *Store) QueuedIDs() ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id FROM downloads
		 WHERE status IN ('queued', 'ready', 'stopped')
		   AND source_kind != 'playlist_parent'
		 ORDER BY created_at ASC`)
	if err != nil {
		return nil, apperrors.Internal("store.queuedIDs", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, apperrors.Internal("store.queuedIDs", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, apperrors.Internal("store.queuedIDs", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ClearQueued removes all not-yet-started downloads.
func (s *Store) ClearQueued() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM downloads WHERE status = 'queued'`); err != nil {
		return apperrors.Internal("store.clearQueued", err)
	}
	return nil
}

// ResetInterrupted marks downloads a previous process left mid-flight as
// stopped so they can resume. Called once at startup.
func (s *Store) ResetInterrupted() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE downloads SET status = 'stopped', updated_at = ?
		 WHERE status IN ('fetching', 'downloading', 'postprocessing')`, now())
	if err != nil {
		return 0, apperrors.Internal("store.resetInterrupted", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClearCompleted removes finished history entries.
func (s *Store) ClearCompleted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		`DELETE FROM downloads WHERE status IN ('done', 'canceled', 'failed')`); err != nil {
		return apperrors.Internal("store.clearCompleted", err)
	}
	return nil
}

// PlaylistItems returns the expanded items of a playlist parent in creation
// order.
func (s *Store) PlaylistItems(parentID uuid.UUID) ([]*Download, error) {
	return s.list(`SELECT `+downloadColumns+` FROM downloads
		WHERE parent_id = ?
		ORDER BY created_at ASC`, parentID.String())
}

// CountByStatus counts downloads in one status.
func (s *Store) CountByStatus(status Status) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM downloads WHERE status = ?`, string(status)).Scan(&n)
	if err != nil {
		return 0, apperrors.Internal("store.countByStatus", err)
	}
	return n, nil
}

func (s *Store) list(query string, args ...any) ([]*Download, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Internal("store.list", err)
	}
	defer rows.Close()

	var out []*Download
	for rows.Next() {
		d, err := scanDownload(rows)
		if err != nil {
			return nil, apperrors.Internal("store.list", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDownload(row scanner) (*Download, error) {
	var (
		d                    Download
		idRaw                string
		createdRaw, updRaw   string
		kindRaw, statusRaw   string
		parentRaw            sql.NullString
		title, uploader      sql.NullString
		duration             sql.NullInt64
		thumb, phase         sql.NullString
		finalPath            sql.NullString
		percent              sql.NullFloat64
		bytesDown, bytesTot  sql.NullInt64
		speed, eta           sql.NullInt64
		errCode, errMsg      sql.NullString
	)
	err := row.Scan(
		&idRaw, &createdRaw, &updRaw,
		&d.SourceURL, &kindRaw, &parentRaw,
		&title, &uploader, &duration, &thumb,
		&statusRaw, &phase,
		&d.PresetID, &d.OutputDir,
		&finalPath,
		&percent, &bytesDown, &bytesTot, &speed, &eta,
		&errCode, &errMsg)
	if err != nil {
		return nil, err
	}

	if d.ID, err = uuid.Parse(idRaw); err != nil {
		return nil, err
	}
	if d.CreatedAt, err = time.Parse(time.RFC3339Nano, createdRaw); err != nil {
		return nil, err
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updRaw); err != nil {
		return nil, err
	}
	d.SourceKind = SourceKind(kindRaw)
	d.Status = Status(statusRaw)

	if parentRaw.Valid {
		pid, err := uuid.Parse(parentRaw.String)
		if err != nil {
			return nil, err
		}
		d.ParentID = &pid
	}
	d.Title = nullStr(title)
	d.Uploader = nullStr(uploader)
	d.DurationSeconds = nullInt(duration)
	d.ThumbnailURL = nullStr(thumb)
	d.Phase = nullStr(phase)
	d.FinalPath = nullStr(finalPath)
	d.ProgressPercent = nullFloat(percent)
	d.BytesDownloaded = nullInt(bytesDown)
	d.BytesTotal = nullInt(bytesTot)
	d.SpeedBPS = nullInt(speed)
	d.ETASeconds = nullInt(eta)
	d.ErrorCode = nullStr(errCode)
	d.ErrorMessage = nullStr(errMsg)
	return &d, nil
}

func requireRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.Internal("store.rowsAffected", err)
	}
	if n == 0 {
		return apperrors.NotFound("download", id.String())
	}
	return nil
}

func ptrArg[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
