package store

import (
	"database/sql"
	"encoding/json"

	"downlink/internal/apperrors"
)

// Setting keys shared between daemon and clients.
const (
	SettingLastPreset    = "last_preset"
	SettingOutputDir     = "output_dir"
	SettingMaxConcurrent = "max_concurrent"
)

// GetSetting unmarshals the stored JSON value for key into out. It returns
// false when the key is absent.
func (s *Store) GetSetting(key string, out any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value_json FROM settings WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperrors.Internal("store.getSetting", err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, apperrors.Internal("store.getSetting", err)
	}
	return true, nil
}

// SetSetting stores value as JSON under key, replacing any previous value.
func (s *Store) SetSetting(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(value)
	if err != nil {
		return apperrors.Internal("store.setSetting", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO settings (key, value_json) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value_json = excluded.value_json`,
		key, string(raw))
	if err != nil {
		return apperrors.Internal("store.setSetting", err)
	}
	return nil
}

// DeleteSetting removes a stored setting. Missing keys are not an error.
func (s *Store) DeleteSetting(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return apperrors.Internal("store.deleteSetting", err)
	}
	return nil
}
