// Package media probes URLs with yt-dlp for metadata and playlist
// enumeration, without downloading anything.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"downlink/internal/event"
	"downlink/internal/runner"
)

// PlaylistEntry is one enumerated playlist item.
type PlaylistEntry struct {
	URL             string
	Title           *string
	Uploader        *string
	DurationSeconds *int64
	ThumbnailURL    *string
}

// Prober runs metadata-only yt-dlp invocations.
type Prober struct {
	Runner    runner.Runner
	YtDlpPath string
	Timeout   time.Duration

	logger *slog.Logger
}

// NewProber builds a prober sharing the daemon's process runner.
func NewProber(r runner.Runner, ytDlpPath string, timeout time.Duration) *Prober {
	return &Prober{
		Runner:    r,
		YtDlpPath: ytDlpPath,
		Timeout:   timeout,
		logger:    slog.With("component", "prober"),
	}
}

// FetchMetadata asks yt-dlp for single-item metadata. Failures here are
// advisory; the download proceeds without a title.
func (p *Prober) FetchMetadata(ctx context.Context, mediaURL string) (*event.MediaInfo, error) {
	lines, err := p.jsonLines(ctx, []string{
		"--dump-json", "--no-warnings", "--no-call-home", "--no-playlist", mediaURL,
	})
	if err != nil {
		return nil, err
	}
	for _, line := range lines {
		var raw rawEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		info := &event.MediaInfo{
			Title:           raw.Title,
			Uploader:        raw.Uploader,
			DurationSeconds: raw.duration(),
			ThumbnailURL:    raw.Thumbnail,
			WebpageURL:      mediaURL,
		}
		if raw.WebpageURL != nil {
			info.WebpageURL = *raw.WebpageURL
		}
		return info, nil
	}
	return nil, nil
}

// EnumeratePlaylist lists the entries of a playlist URL via flat-playlist
// mode. A malformed entry is skipped rather than failing the whole
// enumeration.
func (p *Prober) EnumeratePlaylist(ctx context.Context, playlistURL string) ([]PlaylistEntry, error) {
	lines, err := p.jsonLines(ctx, []string{
		"--flat-playlist", "--dump-json", "--no-warnings", "--no-call-home", "--newline", playlistURL,
	})
	if err != nil {
		return nil, err
	}

	var entries []PlaylistEntry
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var raw rawEntry
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			p.logger.Debug("Skipping unparseable playlist entry", "error", err)
			continue
		}
		entries = append(entries, PlaylistEntry{
			URL:             entryURL(raw, playlistURL),
			Title:           raw.Title,
			Uploader:        raw.Uploader,
			DurationSeconds: raw.duration(),
			ThumbnailURL:    raw.Thumbnail,
		})
	}
	return entries, nil
}

func (p *Prober) jsonLines(ctx context.Context, args []string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	proc, err := p.Runner.Start(ctx, p.YtDlpPath, args)
	if err != nil {
		return nil, err
	}

	var lines []string
	stdout, stderr := proc.Stdout(), proc.Stderr()
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			lines = append(lines, line)
		case _, ok := <-stderr:
			if !ok {
				stderr = nil
			}
		}
	}

	if code, err := proc.Wait(); err != nil {
		return nil, err
	} else if code != 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, &ExitError{Code: code}
	}
	return lines, nil
}

// ExitError reports a non-zero yt-dlp exit during probing.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("yt-dlp probe exited with code %d", e.Code)
}

type rawEntry struct {
	Title      *string  `json:"title"`
	Uploader   *string  `json:"uploader"`
	Duration   *float64 `json:"duration"`
	Thumbnail  *string  `json:"thumbnail"`
	WebpageURL *string  `json:"webpage_url"`
	URL        *string  `json:"url"`
	ID         *string  `json:"id"`
}

func (r rawEntry) duration() *int64 {
	if r.Duration == nil {
		return nil
	}
	d := int64(*r.Duration)
	return &d
}

// entryURL resolves the per-item URL: webpage_url when present, then an
// absolute url field, then a relative url joined against the playlist's
// origin, then the raw value.
func entryURL(raw rawEntry, playlistURL string) string {
	if raw.WebpageURL != nil && *raw.WebpageURL != "" {
		return *raw.WebpageURL
	}
	if raw.URL == nil || *raw.URL == "" {
		return playlistURL
	}
	u := *raw.URL
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
		return u
	}
	if base, err := url.Parse(playlistURL); err == nil {
		if joined, err := base.Parse(u); err == nil {
			return joined.String()
		}
	}
	return u
}
