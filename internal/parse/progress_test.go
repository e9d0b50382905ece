package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressLineTemplate(t *testing.T) {
	t.Parallel()

	p, ok := ProgressLine("[downlink] 50.5% 1.5MiB/s 00:30 100MiB")
	require.True(t, ok)

	require.NotNil(t, p.Percent)
	assert.Equal(t, 50.5, *p.Percent)
	require.NotNil(t, p.SpeedBPS)
	assert.Equal(t, int64(1572864), *p.SpeedBPS)
	require.NotNil(t, p.ETASeconds)
	assert.Equal(t, int64(30), *p.ETASeconds)
	require.NotNil(t, p.BytesTotal)
	assert.Equal(t, int64(104857600), *p.BytesTotal)
}

func TestProgressLineTemplateUnknownFields(t *testing.T) {
	t.Parallel()

	// Individual unknown fields stay nil without failing the others.
	p, ok := ProgressLine("[downlink] 12.0% N/A N/A N/A")
	require.True(t, ok)

	require.NotNil(t, p.Percent)
	assert.Equal(t, 12.0, *p.Percent)
	assert.Nil(t, p.SpeedBPS)
	assert.Nil(t, p.ETASeconds)
	assert.Nil(t, p.BytesTotal)
}

func TestProgressLineNative(t *testing.T) {
	t.Parallel()

	p, ok := ProgressLine("[download]  42.3% of 250.00MiB at 2.00MiB/s ETA 01:14")
	require.True(t, ok)

	require.NotNil(t, p.Percent)
	assert.Equal(t, 42.3, *p.Percent)
	require.NotNil(t, p.BytesTotal)
	assert.Equal(t, int64(262144000), *p.BytesTotal)
	require.NotNil(t, p.SpeedBPS)
	assert.Equal(t, int64(2097152), *p.SpeedBPS)
	require.NotNil(t, p.ETASeconds)
	assert.Equal(t, int64(74), *p.ETASeconds)
}

func TestProgressLinePercentFallback(t *testing.T) {
	t.Parallel()

	p, ok := ProgressLine("[download]   7.1% of some unparsable tail")
	require.True(t, ok)
	require.NotNil(t, p.Percent)
	assert.Equal(t, 7.1, *p.Percent)
	assert.Nil(t, p.SpeedBPS)
}

func TestProgressLineNoMatch(t *testing.T) {
	t.Parallel()

	for _, line := range []string{
		"",
		"[info] Downloading video",
		"[download] Destination: /tmp/a.mp4",
		"random stderr noise",
	} {
		_, ok := ProgressLine(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestThrottle(t *testing.T) {
	t.Parallel()

	var th Throttle
	assert.True(t, th.ShouldEmit(0.5))
	assert.False(t, th.ShouldEmit(0.7))
	assert.False(t, th.ShouldEmit(0.99))
	assert.True(t, th.ShouldEmit(1.0))
	assert.True(t, th.ShouldEmit(0.4))

	// Near-complete samples always pass, even with tiny deltas.
	assert.True(t, th.ShouldEmit(99.91))
	assert.True(t, th.ShouldEmit(99.92))
	assert.True(t, th.ShouldEmit(100))
}

func TestMarkers(t *testing.T) {
	t.Parallel()

	path, ok := DestinationPath("[download] Destination: /downloads/clip [abc].mp4")
	require.True(t, ok)
	assert.Equal(t, "/downloads/clip [abc].mp4", path)

	_, ok = DestinationPath("[download] 50% of 10MiB")
	assert.False(t, ok)

	path, ok = AlreadyDownloadedPath("[download] /downloads/clip.mp4 has already been downloaded")
	require.True(t, ok)
	assert.Equal(t, "/downloads/clip.mp4", path)

	assert.True(t, IsMergeLine(`[Merger] Merging formats into "out.mp4"`))
	assert.True(t, IsMergeLine("[ffmpeg] Fixing MPEG-TS in MP4 container"))
	assert.False(t, IsMergeLine("[download] 50%"))

	assert.True(t, IsCompleteLine("[download] 100% of 10.00MiB in 00:05"))
	assert.False(t, IsCompleteLine("[download] 99.9% of 10.00MiB"))
}
