package parse

import "regexp"

// Progress is one best-effort sample parsed from a single output line.
// Fields are independently optional.
type Progress struct {
	Percent         *float64
	BytesDownloaded *int64
	BytesTotal      *int64
	SpeedBPS        *int64
	ETASeconds      *int64
}

// progressMatcher extracts a Progress sample from one line. Matchers are
// tried in priority order; the first match wins.
type progressMatcher interface {
	match(line string) (Progress, bool)
}

var progressMatchers = []progressMatcher{
	templateMatcher{},
	nativeMatcher{},
	percentMatcher{},
}

// ProgressLine runs the ordered matcher list over a stdout line.
func ProgressLine(line string) (Progress, bool) {
	for _, m := range progressMatchers {
		if p, ok := m.match(line); ok {
			return p, true
		}
	}
	return Progress{}, false
}

// templateMatcher matches the custom progress template the daemon passes to
// the tool: "[downlink] 50.5% 1.5MiB/s 00:30 100MiB". Preferred because it
// is unambiguous.
type templateMatcher struct{}

var templateRe = regexp.MustCompile(`\[downlink\]\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)`)

func (templateMatcher) match(line string) (Progress, bool) {
	m := templateRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	return Progress{
		Percent:    Percent(m[1]),
		SpeedBPS:   Speed(m[2]),
		ETASeconds: ETA(m[3]),
		BytesTotal: Bytes(m[4]),
	}, true
}

// nativeMatcher matches the tool's own progress line:
// "[download]  50.5% of 100.00MiB at 1.50MiB/s ETA 00:30".
type nativeMatcher struct{}

var nativeRe = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%\s+of\s+(\S+)\s+at\s+(\S+)\s+ETA\s+(\S+)`)

func (nativeMatcher) match(line string) (Progress, bool) {
	m := nativeRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	return Progress{
		Percent:    Percent(m[1]),
		BytesTotal: Bytes(m[2]),
		SpeedBPS:   Speed(m[3]),
		ETASeconds: ETA(m[4]),
	}, true
}

// percentMatcher is the minimal fallback: any "[download] P%" line.
type percentMatcher struct{}

var percentRe = regexp.MustCompile(`\[download\]\s+(\d+\.?\d*)%`)

func (percentMatcher) match(line string) (Progress, bool) {
	m := percentRe.FindStringSubmatch(line)
	if m == nil {
		return Progress{}, false
	}
	p := Percent(m[1])
	if p == nil {
		return Progress{}, false
	}
	return Progress{Percent: p}, true
}

// Throttle gates progress emission so downstream consumers are not flooded.
// A sample passes when its percent moved at least emitThreshold points since
// the last emitted sample, or when the download is effectively complete.
type Throttle struct {
	last float64
}

const (
	emitThreshold   = 0.5
	completePercent = 99.9
)

// ShouldEmit reports whether a sample with the given percent should be
// emitted, and records it as the last emitted percent if so.
func (t *Throttle) ShouldEmit(percent float64) bool {
	if diff := percent - t.last; diff >= emitThreshold || diff <= -emitThreshold || percent >= completePercent {
		t.last = percent
		return true
	}
	return false
}
