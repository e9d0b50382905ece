// Package api provides the HTTP API handlers and routing for the download daemon.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"downlink/internal/apperrors"
	"downlink/internal/event"
	"downlink/internal/health"
	"downlink/internal/preset"
	"downlink/internal/store"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// defaultCompletedLimit bounds the history listing.
const defaultCompletedLimit = 100

// Queries is the read-side persistence surface the handlers need.
type Queries interface {
	GetDownload(id uuid.UUID) (*store.Download, error)
	ListActive() ([]*store.Download, error)
	ListCompleted(limit int) ([]*store.Download, error)
	PlaylistItems(parentID uuid.UUID) ([]*store.Download, error)
	Logs(downloadID uuid.UUID, limit int) ([]store.LogEntry, error)
	CountByStatus(status store.Status) (int, error)
	ClearQueued() error
	ClearCompleted() error
}

// Downloads is the scheduler surface the handlers drive.
type Downloads interface {
	Add(ctx context.Context, text, presetID, outputDir string) ([]*store.Download, error)
	Start(ctx context.Context, id uuid.UUID) error
	Stop(id uuid.UUID) error
	Cancel(id uuid.UUID) error
	Retry(ctx context.Context, id uuid.UUID) error
	Remove(id uuid.UUID) error
	ExpandPlaylist(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error)
}

// EventSource exposes the bus channel for the SSE stream.
type EventSource interface {
	Events() <-chan event.Event
}

// Settings is the user-preference surface backed by the store.
type Settings interface {
	GetSetting(key string, out any) (bool, error)
	SetSetting(key string, value any) error
}

// Limiter adjusts the scheduler's admission limit at runtime.
type Limiter interface {
	SetMaxConcurrent(n int)
	MaxConcurrent() int
}

// Handler contains HTTP handlers for the download API
type Handler struct {
	downloads Downloads
	queries   Queries
	events    EventSource
	settings  Settings
	limiter   Limiter
	health    *health.Checker
}

// NewHandler creates a new API handler
func NewHandler(downloads Downloads, queries Queries, events EventSource, settings Settings, limiter Limiter, healthChecker *health.Checker) *Handler {
	return &Handler{
		downloads: downloads,
		queries:   queries,
		events:    events,
		settings:  settings,
		limiter:   limiter,
		health:    healthChecker,
	}
}

// AddRequest is the body of POST /v1/downloads. Text may hold several URLs
// pasted together; each becomes its own download.
type AddRequest struct {
	Text      string `json:"text"`
	PresetID  string `json:"presetId,omitempty"`
	OutputDir string `json:"outputDir,omitempty"`
}

// AddDownloads handles POST /v1/downloads
func (h *Handler) AddDownloads(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	downloads, err := h.downloads.Add(r.Context(), req.Text, req.PresetID, req.OutputDir)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	// Remember the preset so the next session defaults to it.
	if req.PresetID != "" && preset.Valid(req.PresetID) {
		if err := h.settings.SetSetting(store.SettingLastPreset, req.PresetID); err != nil {
			slog.Warn("Last-preset persist failed", "error", err)
		}
	}

	h.writeJSON(w, http.StatusAccepted, map[string]any{"downloads": downloads})
}

// ListDownloads handles GET /v1/downloads - the active queue.
func (h *Handler) ListDownloads(w http.ResponseWriter, r *http.Request) {
	downloads, err := h.queries.ListActive()
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"downloads": downloads})
}

// ListCompleted handles GET /v1/downloads/completed - finished history.
func (h *Handler) ListCompleted(w http.ResponseWriter, r *http.Request) {
	limit := defaultCompletedLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	downloads, err := h.queries.ListCompleted(limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"downloads": downloads})
}

// GetDownload handles GET /v1/downloads/{id}
func (h *Handler) GetDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	d, err := h.queries.GetDownload(id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

// DeleteDownload handles DELETE /v1/downloads/{id} - cancel if active, then
// remove the record.
func (h *Handler) DeleteDownload(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	if err := h.downloads.Remove(id); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartDownload handles POST /v1/downloads/{id}/start
func (h *Handler) StartDownload(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(id uuid.UUID) error {
		return h.downloads.Start(r.Context(), id)
	})
}

// StopDownload handles POST /v1/downloads/{id}/stop
func (h *Handler) StopDownload(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.downloads.Stop)
}

// CancelDownload handles POST /v1/downloads/{id}/cancel
func (h *Handler) CancelDownload(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.downloads.Cancel)
}

// RetryDownload handles POST /v1/downloads/{id}/retry
func (h *Handler) RetryDownload(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, func(id uuid.UUID) error {
		return h.downloads.Retry(r.Context(), id)
	})
}

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request, op func(uuid.UUID) error) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := op(id); err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{"id": id.String()})
}

// ExpandPlaylist handles POST /v1/downloads/{id}/expand
func (h *Handler) ExpandPlaylist(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	itemIDs, err := h.downloads.ExpandPlaylist(r.Context(), id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{
		"parentId": id,
		"itemIds":  itemIDs,
		"count":    len(itemIDs),
	})
}

// PlaylistItems handles GET /v1/downloads/{id}/items
func (h *Handler) PlaylistItems(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	items, err := h.queries.PlaylistItems(id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"downloads": items})
}

// DownloadLogs handles GET /v1/downloads/{id}/logs
func (h *Handler) DownloadLogs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	limit := 500
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	logs, err := h.queries.Logs(id, limit)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// ClearQueued handles POST /v1/downloads/clear-queued
func (h *Handler) ClearQueued(w http.ResponseWriter, r *http.Request) {
	if err := h.queries.ClearQueued(); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearCompleted handles POST /v1/downloads/clear-completed
func (h *Handler) ClearCompleted(w http.ResponseWriter, r *http.Request) {
	if err := h.queries.ClearCompleted(); err != nil {
		h.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// QueueStats handles GET /v1/stats - per-status download counts plus the
// live active-slot usage.
func (h *Handler) QueueStats(w http.ResponseWriter, r *http.Request) {
	counts := make(map[string]int, len(store.AllStatuses()))
	for _, status := range store.AllStatuses() {
		n, err := h.queries.CountByStatus(status)
		if err != nil {
			h.handleError(w, r, err)
			return
		}
		counts[string(status)] = n
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"counts":        counts,
		"maxConcurrent": h.limiter.MaxConcurrent(),
	})
}

// ListPresets handles GET /v1/presets
func (h *Handler) ListPresets(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"presets": preset.Builtin()})
}

// SettingsPayload is both the GET response and the PUT request body for
// /v1/settings. In a PUT, absent fields are left unchanged.
type SettingsPayload struct {
	LastPreset    *string `json:"lastPreset,omitempty"`
	OutputDir     *string `json:"outputDir,omitempty"`
	MaxConcurrent *int    `json:"maxConcurrent,omitempty"`
}

// GetSettings handles GET /v1/settings
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	var payload SettingsPayload
	reads := []struct {
		key string
		out any
	}{
		{store.SettingLastPreset, &payload.LastPreset},
		{store.SettingOutputDir, &payload.OutputDir},
		{store.SettingMaxConcurrent, &payload.MaxConcurrent},
	}
	for _, rd := range reads {
		if _, err := h.settings.GetSetting(rd.key, rd.out); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if payload.MaxConcurrent == nil {
		n := h.limiter.MaxConcurrent()
		payload.MaxConcurrent = &n
	}
	h.writeJSON(w, http.StatusOK, payload)
}

// UpdateSettings handles PUT /v1/settings. Provided fields are persisted;
// a new maxConcurrent also takes effect immediately.
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req SettingsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.LastPreset != nil {
		if !preset.Valid(*req.LastPreset) {
			h.writeError(w, http.StatusBadRequest, "unknown preset: "+*req.LastPreset)
			return
		}
		if err := h.settings.SetSetting(store.SettingLastPreset, *req.LastPreset); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if req.OutputDir != nil {
		if err := h.settings.SetSetting(store.SettingOutputDir, *req.OutputDir); err != nil {
			h.handleError(w, r, err)
			return
		}
	}
	if req.MaxConcurrent != nil {
		if *req.MaxConcurrent <= 0 {
			h.writeError(w, http.StatusBadRequest, "maxConcurrent must be positive")
			return
		}
		if err := h.settings.SetSetting(store.SettingMaxConcurrent, *req.MaxConcurrent); err != nil {
			h.handleError(w, r, err)
			return
		}
		h.limiter.SetMaxConcurrent(*req.MaxConcurrent)
	}

	h.GetSettings(w, r)
}

// StreamEvents handles GET /v1/events - a server-sent-events stream of
// lifecycle events. The bus has a single logical consumer; this endpoint is
// it.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-h.events.Events():
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				slog.Error("Failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()
		}
	}
}

// Livez handles GET /livez - liveness probe.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 503 when the store is unreachable or the daemon is shutting down.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.PathValue("id")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "Download ID is required")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid download ID: "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the scheduler and store with appropriate
// HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
