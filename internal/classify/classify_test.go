package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"downlink/internal/event"
)

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stderr string
		want   event.ErrorCode
	}{
		{"sign in", "ERROR: Sign in to confirm your age", event.CodeLoginRequired},
		{"cookies", "ERROR: please provide cookies to continue", event.CodeLoginRequired},
		{"private video", "ERROR: Private video", event.CodeLoginRequired},
		{"captcha", "ERROR: unable to solve CAPTCHA challenge", event.CodeBotCheck},
		{"geo", "ERROR: This video is not available in your country", event.CodeGeoRestricted},
		{"unsupported url", "ERROR: Unsupported URL: https://example.com/clip", event.CodeExtractorOutdated},
		{"no formats", "ERROR: No video formats found", event.CodeExtractorOutdated},
		{"format", "ERROR: Requested format is not available", event.CodeFormatUnavailable},
		{"timeout", "ERROR: The read operation timed out", event.CodeNetwork},
		{"connection", "ERROR: Unable to download webpage: connection reset by peer", event.CodeNetwork},
		{"unknown", "something entirely unexpected happened", event.CodeUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Error(tc.stderr)
			assert.Equal(t, tc.want, got.Code)
			assert.NotEmpty(t, got.Actions)
		})
	}
}

func TestErrorOrderLoginBeforeBot(t *testing.T) {
	t.Parallel()

	// A common message hits both keyword sets; login-required wins because
	// importing cookies is the actionable fix for it.
	got := Error("ERROR: Sign in to confirm you're not a bot")
	assert.Equal(t, event.CodeLoginRequired, got.Code)
}

func TestLoginRequiredHasImportCookiesAction(t *testing.T) {
	t.Parallel()

	got := Error("ERROR: Sign in to confirm your age")
	require.Equal(t, event.CodeLoginRequired, got.Code)

	kinds := make([]event.ActionKind, 0, len(got.Actions))
	for _, a := range got.Actions {
		kinds = append(kinds, a.Kind)
	}
	assert.Contains(t, kinds, event.ActionImportCookies)
}

func TestUnknownMessageTruncated(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", 500)
	got := Error(long)
	assert.Equal(t, event.CodeUnknown, got.Code)
	assert.Len(t, got.Message, 200)
}

func TestActionsForUnrecognizedCode(t *testing.T) {
	t.Parallel()

	a := ActionsFor(event.ErrorCode("SOMETHING_NEW"))
	assert.Equal(t, ActionsFor(event.CodeUnknown), a)
}
