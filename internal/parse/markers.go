package parse

import "regexp"

// Marker classifiers run independently of progress parsing: a line that
// matched a progress matcher can still carry a marker.

var (
	destRe     = regexp.MustCompile(`\[download\] Destination: (.+)`)
	alreadyRe  = regexp.MustCompile(`\[download\] (.+) has already been downloaded`)
	mergeRe    = regexp.MustCompile(`\[Merger\]|Merging formats|\[ffmpeg\]`)
	completeRe = regexp.MustCompile(`\[download\] 100%`)
)

// DestinationPath extracts the announced output path from a
// "[download] Destination: ..." line.
func DestinationPath(line string) (string, bool) {
	m := destRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// AlreadyDownloadedPath extracts the final path from an
// "... has already been downloaded" line.
func AlreadyDownloadedPath(line string) (string, bool) {
	m := alreadyRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsMergeLine reports whether the line marks the merge/post-processing phase.
func IsMergeLine(line string) bool {
	return mergeRe.MatchString(line)
}

// IsCompleteLine reports whether the line marks 100% download completion.
func IsCompleteLine(line string) bool {
	return completeRe.MatchString(line)
}
