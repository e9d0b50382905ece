package store

import (
	"time"

	"github.com/google/uuid"

	"downlink/internal/apperrors"
)

// AddLog appends one captured output line for a download.
func (s *Store) AddLog(downloadID uuid.UUID, stream, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO download_logs (download_id, ts, stream, line) VALUES (?, ?, ?, ?)`,
		downloadID.String(), now(), stream, line)
	if err != nil {
		return apperrors.Internal("store.addLog", err)
	}
	return nil
}

// Logs returns up to limit most recent log lines for a download, oldest
// first within the returned window.
func (s *Store) Logs(downloadID uuid.UUID, limit int) ([]LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, download_id, ts, stream, line FROM (
			SELECT id, download_id, ts, stream, line
			FROM download_logs
			WHERE download_id = ?
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC`,
		downloadID.String(), limit)
	if err != nil {
		return nil, apperrors.Internal("store.logs", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e     LogEntry
			idRaw string
			tsRaw string
		)
		if err := rows.Scan(&e.ID, &idRaw, &tsRaw, &e.Stream, &e.Line); err != nil {
			return nil, apperrors.Internal("store.logs", err)
		}
		if e.DownloadID, err = uuid.Parse(idRaw); err != nil {
			return nil, apperrors.Internal("store.logs", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, tsRaw); err != nil {
			return nil, apperrors.Internal("store.logs", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// TrimLogs keeps only the most recent keep lines for a download.
func (s *Store) TrimLogs(downloadID uuid.UUID, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		DELETE FROM download_logs
		WHERE download_id = ?1
		AND id NOT IN (
			SELECT id FROM download_logs
			WHERE download_id = ?1
			ORDER BY id DESC
			LIMIT ?2
		)`,
		downloadID.String(), keep)
	if err != nil {
		return apperrors.Internal("store.trimLogs", err)
	}
	return nil
}
