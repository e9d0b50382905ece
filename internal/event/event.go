// Package event defines the typed lifecycle events the daemon emits to its
// single logical subscriber (GUI or CLI), plus the async bus delivering them.
package event

import (
	"github.com/google/uuid"
)

// Type identifies a lifecycle event.
type Type string

const (
	TypeQueued         Type = "download_queued"
	TypeStarted        Type = "download_started"
	TypeMetadataReady  Type = "metadata_ready"
	TypePlaylistExpand Type = "playlist_expanded"
	TypeProgress       Type = "download_progress"
	TypePostProcessing Type = "download_postprocessing"
	TypeStopped        Type = "download_stopped"
	TypeCanceled       Type = "download_canceled"
	TypeCompleted      Type = "download_completed"
	TypeFailed         Type = "download_failed"
)

// ActionKind is a stable identifier the UI maps to behavior.
type ActionKind string

const (
	ActionImportCookies     ActionKind = "IMPORT_COOKIES"
	ActionUpdateYtDlp       ActionKind = "UPDATE_YTDLP"
	ActionOpenSettingsProxy ActionKind = "OPEN_SETTINGS_PROXY"
	ActionRetryRecommended  ActionKind = "RETRY_RECOMMENDED"
	ActionRetry             ActionKind = "RETRY"
	ActionOpenLogs          ActionKind = "OPEN_LOGS"
)

// Action is a remediation the frontend can render as a button.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label"`
}

// ErrorCode is a stable failure category for UX mapping.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeInvalidURL        ErrorCode = "INVALID_URL"
	CodeNetwork           ErrorCode = "NETWORK"
	CodeGeoRestricted     ErrorCode = "GEO_RESTRICTED"
	CodeLoginRequired     ErrorCode = "LOGIN_REQUIRED"
	CodeBotCheck          ErrorCode = "BOT_CHECK"
	CodeExtractorOutdated ErrorCode = "EXTRACTOR_OUTDATED"
	CodeFormatUnavailable ErrorCode = "FORMAT_UNAVAILABLE"
	CodeToolMissing       ErrorCode = "TOOL_MISSING"
)

// Phase is a short human-readable label for the current execution step.
type Phase struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// Progress values are best-effort; any field may be nil depending on what
// the external tool reported on the matched line. Each sample is a complete
// snapshot, not a delta.
type Progress struct {
	Percent         *float64 `json:"percent,omitempty"`
	BytesDownloaded *int64   `json:"bytesDownloaded,omitempty"`
	BytesTotal      *int64   `json:"bytesTotal,omitempty"`
	SpeedBPS        *int64   `json:"speedBps,omitempty"`
	ETASeconds      *int64   `json:"etaSeconds,omitempty"`
	Phase           *Phase   `json:"phase,omitempty"`
}

// MediaInfo is minimal metadata for preview and queue display.
type MediaInfo struct {
	Title           *string `json:"title,omitempty"`
	Uploader        *string `json:"uploader,omitempty"`
	DurationSeconds *int64  `json:"durationSeconds,omitempty"`
	ThumbnailURL    *string `json:"thumbnailUrl,omitempty"`
	WebpageURL      string  `json:"webpageUrl,omitempty"`
}

// Event is one backend -> subscriber notification. Type determines which
// payload fields are populated.
type Event struct {
	Type   Type      `json:"event"`
	ID     uuid.UUID `json:"id,omitzero"`
	Status string    `json:"status,omitempty"`

	Progress *Progress  `json:"progress,omitempty"`
	Info     *MediaInfo `json:"info,omitempty"`

	// Post-processing step, e.g. "Merging streams".
	Step   string `json:"step,omitempty"`
	Detail string `json:"detail,omitempty"`

	// Completion.
	FinalPath string `json:"finalPath,omitempty"`

	// Failure with remediation actions.
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
	Message   string    `json:"message,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`

	// Playlist expansion.
	ParentID uuid.UUID   `json:"parentId,omitzero"`
	ItemIDs  []uuid.UUID `json:"itemIds,omitempty"`
	Count    int         `json:"count,omitempty"`
}
