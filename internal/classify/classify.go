// Package classify maps raw yt-dlp error output to stable error codes and
// remediation actions the frontend can act on.
package classify

import (
	"strings"

	"downlink/internal/event"
)

// Result is the classified failure: a stable code, a user-facing message and
// the remediation actions for that code.
type Result struct {
	Code    event.ErrorCode
	Message string
	Actions []event.Action
}

// rule matches when any of its keywords appears in the lowercased input.
type rule struct {
	code     event.ErrorCode
	message  string
	keywords []string
}

// rules are evaluated in order; the first match wins. More specific
// categories come before broader ones (login before bot check, bot check
// before network) because real tool output often hits several keyword sets
// at once.
var rules = []rule{
	{
		code:    event.CodeLoginRequired,
		message: "This content requires signing in. Import cookies from your browser to continue.",
		keywords: []string{
			"sign in", "log in", "login", "cookies", "age-restricted", "age restricted",
			"private video", "members-only", "members only",
		},
	},
	{
		code:    event.CodeBotCheck,
		message: "The site is asking for verification that you are not a bot.",
		keywords: []string{
			"bot", "captcha", "confirm you're not", "confirm you are not",
		},
	},
	{
		code:    event.CodeGeoRestricted,
		message: "This content is not available in your region.",
		keywords: []string{
			"not available in your country", "geo", "blocked in your", "region",
		},
	},
	{
		code:    event.CodeExtractorOutdated,
		message: "The downloader could not read this site. Updating yt-dlp usually fixes this.",
		keywords: []string{
			"unsupported url", "no video formats", "unable to extract", "extractor",
		},
	},
	{
		code:    event.CodeFormatUnavailable,
		message: "The requested quality is not available for this content.",
		keywords: []string{
			"requested format", "format not available", "format is not available",
		},
	},
	{
		code:    event.CodeNetwork,
		message: "A network error interrupted the download.",
		keywords: []string{
			"network", "connection", "timed out", "timeout", "unable to download",
			"temporary failure", "getaddrinfo", "ssl",
		},
	},
}

// actions maps an error code to its fixed remediation list.
var actions = map[event.ErrorCode][]event.Action{
	event.CodeLoginRequired: {
		{Kind: event.ActionImportCookies, Label: "Import cookies"},
		{Kind: event.ActionOpenLogs, Label: "View logs"},
	},
	event.CodeBotCheck: {
		{Kind: event.ActionImportCookies, Label: "Import cookies"},
		{Kind: event.ActionRetryRecommended, Label: "Retry later"},
	},
	event.CodeGeoRestricted: {
		{Kind: event.ActionOpenSettingsProxy, Label: "Configure proxy"},
		{Kind: event.ActionOpenLogs, Label: "View logs"},
	},
	event.CodeExtractorOutdated: {
		{Kind: event.ActionUpdateYtDlp, Label: "Update yt-dlp"},
		{Kind: event.ActionRetry, Label: "Retry"},
	},
	event.CodeFormatUnavailable: {
		{Kind: event.ActionRetryRecommended, Label: "Retry with recommended quality"},
		{Kind: event.ActionOpenLogs, Label: "View logs"},
	},
	event.CodeNetwork: {
		{Kind: event.ActionRetry, Label: "Retry"},
		{Kind: event.ActionOpenSettingsProxy, Label: "Check proxy settings"},
	},
	event.CodeToolMissing: {
		{Kind: event.ActionUpdateYtDlp, Label: "Install yt-dlp"},
		{Kind: event.ActionOpenLogs, Label: "View logs"},
	},
	event.CodeUnknown: {
		{Kind: event.ActionRetry, Label: "Retry"},
		{Kind: event.ActionOpenLogs, Label: "View logs"},
	},
}

const unknownMessageLimit = 200

// Error classifies accumulated stderr output from a failed run.
func Error(stderr string) Result {
	lowered := strings.ToLower(stderr)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lowered, kw) {
				return Result{Code: r.code, Message: r.message, Actions: ActionsFor(r.code)}
			}
		}
	}
	return Result{
		Code:    event.CodeUnknown,
		Message: truncate(strings.TrimSpace(stderr), unknownMessageLimit),
		Actions: ActionsFor(event.CodeUnknown),
	}
}

// ActionsFor returns the remediation list for a code. Unrecognized codes get
// the unknown-code fallback.
func ActionsFor(code event.ErrorCode) []event.Action {
	if a, ok := actions[code]; ok {
		return a
	}
	return actions[event.CodeUnknown]
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
