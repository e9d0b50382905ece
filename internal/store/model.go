package store

import (
	"time"

	"github.com/google/uuid"
)

// Status is the persisted lifecycle state of a download.
type Status string

const (
	StatusQueued         Status = "queued"
	StatusFetching       Status = "fetching"
	StatusReady          Status = "ready"
	StatusDownloading    Status = "downloading"
	StatusPostProcessing Status = "postprocessing"
	StatusStopped        Status = "stopped"
	StatusDone           Status = "done"
	StatusFailed         Status = "failed"
	StatusCanceled       Status = "canceled"
)

// Startable reports whether a download in this status may be (re)started.
func (s Status) Startable() bool {
	switch s {
	case StatusQueued, StatusReady, StatusStopped:
		return true
	}
	return false
}

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusFailed, StatusCanceled:
		return true
	}
	return false
}

// AllStatuses lists every valid status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusQueued, StatusFetching, StatusReady, StatusDownloading,
		StatusPostProcessing, StatusStopped, StatusDone, StatusFailed, StatusCanceled,
	}
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, bool) {
	for _, known := range AllStatuses() {
		if Status(s) == known {
			return known, true
		}
	}
	return "", false
}

// SourceKind distinguishes plain downloads from playlist containers and
// their expanded items.
type SourceKind string

const (
	KindSingle         SourceKind = "single"
	KindPlaylistParent SourceKind = "playlist_parent"
	KindPlaylistItem   SourceKind = "playlist_item"
)

// Download is one persisted download record. Optional columns are pointers;
// nil means the value is not known yet.
type Download struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	SourceURL  string     `json:"sourceUrl"`
	SourceKind SourceKind `json:"sourceKind"`
	ParentID   *uuid.UUID `json:"parentId,omitempty"`

	Title           *string `json:"title,omitempty"`
	Uploader        *string `json:"uploader,omitempty"`
	DurationSeconds *int64  `json:"durationSeconds,omitempty"`
	ThumbnailURL    *string `json:"thumbnailUrl,omitempty"`

	Status Status  `json:"status"`
	Phase  *string `json:"phase,omitempty"`

	PresetID  string `json:"presetId"`
	OutputDir string `json:"outputDir"`

	FinalPath *string `json:"finalPath,omitempty"`

	ProgressPercent *float64 `json:"progressPercent,omitempty"`
	BytesDownloaded *int64   `json:"bytesDownloaded,omitempty"`
	BytesTotal      *int64   `json:"bytesTotal,omitempty"`
	SpeedBPS        *int64   `json:"speedBps,omitempty"`
	ETASeconds      *int64   `json:"etaSeconds,omitempty"`

	ErrorCode    *string `json:"errorCode,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`
}

// LogEntry is one captured output line of a download run.
type LogEntry struct {
	ID         int64     `json:"id"`
	DownloadID uuid.UUID `json:"downloadId"`
	Timestamp  time.Time `json:"ts"`
	Stream     string    `json:"stream"`
	Line       string    `json:"line"`
}
