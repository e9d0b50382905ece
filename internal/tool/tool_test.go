package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindYtDlpOverrideWins(t *testing.T) {
	assert.Equal(t, "/custom/yt-dlp", FindYtDlp("/custom/yt-dlp"))
	assert.Equal(t, "/custom/ffmpeg", FindFfmpeg("/custom/ffmpeg"))
}

func TestFindYtDlpAlwaysReturnsSomething(t *testing.T) {
	// Resolution never fails outright; worst case is the bare name, letting
	// spawn-time PATH lookup produce the real missing-tool error.
	assert.NotEmpty(t, FindYtDlp(""))
	assert.NotEmpty(t, FindFfmpeg(""))
}
