// Package tool locates and health-checks the external binaries the daemon
// drives (yt-dlp and ffmpeg).
package tool

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// common install locations probed before falling back to PATH lookup.
// $HOME is expanded at probe time.
var ytDlpPaths = []string{
	"/opt/homebrew/bin/yt-dlp",
	"/usr/local/bin/yt-dlp",
	"$HOME/.local/bin/yt-dlp",
	"/usr/bin/yt-dlp",
	"$HOME/.local/pipx/venvs/yt-dlp/bin/yt-dlp",
	"/opt/local/bin/yt-dlp",
}

var ffmpegPaths = []string{
	"/opt/homebrew/bin/ffmpeg",
	"/usr/local/bin/ffmpeg",
	"/usr/bin/ffmpeg",
	"/opt/local/bin/ffmpeg",
}

// FindYtDlp resolves the yt-dlp binary: an explicit override wins, then a
// bundled copy next to the executable, then common install locations, then
// PATH, then the bare name as a last resort.
func FindYtDlp(override string) string {
	return find("yt-dlp", override, ytDlpPaths)
}

// FindFfmpeg resolves the ffmpeg binary with the same precedence as FindYtDlp.
func FindFfmpeg(override string) string {
	return find("ffmpeg", override, ffmpegPaths)
}

func find(name, override string, candidates []string) string {
	if override != "" {
		return override
	}

	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), exeName(name))
		if _, err := os.Stat(bundled); err == nil {
			slog.Info("Found bundled binary", "tool", name, "path", bundled)
			return bundled
		}
	}

	for _, c := range candidates {
		path := c
		if strings.HasPrefix(c, "$HOME") {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			path = home + strings.TrimPrefix(c, "$HOME")
		}
		if _, err := os.Stat(path); err == nil {
			slog.Info("Found binary", "tool", name, "path", path)
			return path
		}
	}

	if path, err := exec.LookPath(exeName(name)); err == nil {
		return path
	}

	slog.Warn("Binary not found in common paths, deferring to PATH at spawn time", "tool", name)
	return exeName(name)
}

func exeName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}

// Version probes a binary's version string. yt-dlp answers --version with a
// single line; ffmpeg answers -version with a banner whose first line starts
// with "ffmpeg version X".
func Version(ctx context.Context, path string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	arg := "--version"
	if strings.Contains(filepath.Base(path), "ffmpeg") {
		arg = "-version"
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, path, arg)
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", err
	}

	line, _, _ := strings.Cut(out.String(), "\n")
	line = strings.TrimSpace(line)
	if rest, ok := strings.CutPrefix(line, "ffmpeg version "); ok {
		if v, _, found := strings.Cut(rest, " "); found {
			return v, nil
		}
		return rest, nil
	}
	return line, nil
}
