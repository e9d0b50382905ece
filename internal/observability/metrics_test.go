package observability

import (
	"context"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/downloads", 202, 0.050)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/downloads/abc123", 200, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/v1/downloads/xyz789", 404, 0.005)
	metrics.RecordHTTPRequest(ctx, "DELETE", "/v1/downloads/abc123", 204, 0.100)
	metrics.RecordHTTPRequest(ctx, "POST", "/v1/downloads", 500, 0.001)
}

func TestRecordDownloadMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordDownloadStarted(ctx)
	metrics.RecordDownloadStarted(ctx)
	metrics.RecordDownloadFinished(ctx, "done", 5500*time.Millisecond)
	metrics.RecordDownloadFinished(ctx, "failed", 2*time.Minute)
	metrics.RecordEventPublished(ctx, "download_progress")
	metrics.RecordEventDropped(ctx, "download_progress")
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/v1/downloads", "/v1/downloads"},
		{"/v1/downloads/abc123", "/v1/downloads/{id}"},
		{"/v1/downloads/abc123/logs", "/v1/downloads/{id}/logs"},
		{"/v1/downloads/abc123/start", "/v1/downloads/{id}/start"},
		{"/v1/downloads/completed", "/v1/downloads/completed"},
		{"/v1/downloads/clear-queued", "/v1/downloads/clear-queued"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
