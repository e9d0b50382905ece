// Package preset holds the built-in download quality presets and the
// yt-dlp arguments they translate to.
package preset

// Preset is a named bundle of yt-dlp format arguments.
type Preset struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Args        []string `json:"args"`
}

// Builtin returns the preset catalog in display order. The first entry is
// the fallback when a stored preset id is no longer recognized.
func Builtin() []Preset {
	return []Preset{
		{
			ID:          "recommended_best",
			Name:        "Recommended (Best)",
			Description: "Best available video and audio, merged into MP4.",
			Args:        []string{"-f", "bv*+ba/b", "--merge-output-format", "mp4"},
		},
		{
			ID:          "mp4_1080p",
			Name:        "1080p MP4",
			Description: "Up to 1080p video with audio, merged into MP4.",
			Args:        []string{"-f", "bv*[height<=1080]+ba/b[height<=1080]", "--merge-output-format", "mp4"},
		},
		{
			ID:          "mp4_best",
			Name:        "Best MP4",
			Description: "Best native MP4 video with M4A audio.",
			Args:        []string{"-f", "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]", "--merge-output-format", "mp4"},
		},
		{
			ID:          "audio_m4a",
			Name:        "Audio M4A",
			Description: "Audio only, extracted to M4A.",
			Args:        []string{"-f", "ba[ext=m4a]/ba", "-x", "--audio-format", "m4a"},
		},
		{
			ID:          "audio_mp3_320",
			Name:        "Audio MP3 320",
			Description: "Audio only, converted to 320 kbps MP3.",
			Args:        []string{"-f", "ba", "-x", "--audio-format", "mp3", "--audio-quality", "320K"},
		},
	}
}

// Valid reports whether id names a builtin preset.
func Valid(id string) bool {
	for _, p := range Builtin() {
		if p.ID == id {
			return true
		}
	}
	return false
}

// ByID looks up a preset by id, falling back to the first builtin so a stale
// stored id still produces a usable download.
func ByID(id string) Preset {
	presets := Builtin()
	for _, p := range presets {
		if p.ID == id {
			return p
		}
	}
	return presets[0]
}
