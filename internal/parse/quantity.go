// Package parse turns free-form yt-dlp output lines into structured progress
// samples and phase markers. All functions are pure; unknown values are nil,
// never errors.
package parse

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var quantityRe = regexp.MustCompile(`([\d.]+)\s*(Ki?B|Mi?B|Gi?B|B)`)

// unitMultiplier maps a unit token to its byte multiplier. Decimal-named
// units (KB, MB, GB) are treated identically to their binary counterparts,
// matching the wrapped tool's own reporting.
func unitMultiplier(unit string) float64 {
	switch unit {
	case "B":
		return 1
	case "KB", "KiB":
		return 1024
	case "MB", "MiB":
		return 1024 * 1024
	case "GB", "GiB":
		return 1024 * 1024 * 1024
	default:
		return 1
	}
}

func unknown(s string) bool {
	return s == "" || s == "N/A"
}

// Percent parses "50.5%" or "50.5" into a percentage.
func Percent(s string) *float64 {
	cleaned := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if unknown(cleaned) {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Bytes parses "1.5GiB", "500MiB" or "100MB" into a byte count rounded to
// the nearest integer. "N/A" and "" are unknown.
func Bytes(s string) *int64 {
	s = strings.TrimSpace(s)
	if unknown(s) {
		return nil
	}
	m := quantityRe.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	num, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	v := int64(math.Round(num * unitMultiplier(m[2])))
	return &v
}

// Speed parses "1.5MiB/s" into bytes per second. Same rules as Bytes.
func Speed(s string) *int64 {
	return Bytes(s)
}

// ETA parses "30", "05:30" or "01:05:30" into seconds. Each colon-delimited
// part must be a non-negative integer or the whole ETA is unknown.
func ETA(s string) *int64 {
	s = strings.TrimSpace(s)
	if unknown(s) {
		return nil
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return nil
	}
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil
		}
		total = total*60 + int64(n)
	}
	return &total
}
