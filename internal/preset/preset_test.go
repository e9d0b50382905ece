package preset

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestByID(t *testing.T) {
	t.Parallel()

	p := ByID("audio_m4a")
	assert.Equal(t, "audio_m4a", p.ID)
	assert.Contains(t, p.Args, "-x")

	p = ByID("mp4_1080p")
	assert.Equal(t, []string{"-f", "bv*[height<=1080]+ba/b[height<=1080]", "--merge-output-format", "mp4"}, p.Args)
}

func TestByIDUnknownFallsBack(t *testing.T) {
	t.Parallel()

	p := ByID("no_such_preset")
	assert.Equal(t, "recommended_best", p.ID)
}

func TestValid(t *testing.T) {
	t.Parallel()

	assert.True(t, Valid("recommended_best"))
	assert.True(t, Valid("audio_mp3_320"))
	assert.False(t, Valid("no_such_preset"))
	assert.False(t, Valid(""))
}

func TestBuiltinIDsUnique(t *testing.T) {
	t.Parallel()

	seen := map[string]bool{}
	for _, p := range Builtin() {
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Args)
	}
}
