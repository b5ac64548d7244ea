package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseProbeDuration(t *testing.T) {
	dur, err := parseProbeDuration(`{"format":{"duration":"12.480000"}}`)
	require.NoError(t, err)
	require.InDelta(t, 12.48, dur, 0.001)

	_, err = parseProbeDuration(`{"format":{}}`)
	require.ErrorContains(t, err, "no duration")

	_, err = parseProbeDuration(`{"format":{"duration":"abc"}}`)
	require.Error(t, err)

	_, err = parseProbeDuration(`{"format":{"duration":"0"}}`)
	require.ErrorContains(t, err, "non-positive")

	_, err = parseProbeDuration(`not json`)
	require.Error(t, err)
}

func TestCaptionText(t *testing.T) {
	require.Equal(t, "short prompt", captionText("  short prompt  "))

	long := strings.Repeat("め", 250)
	got := captionText(long)
	require.Len(t, []rune(got), captionMaxRunes)
}

func TestEscapeDrawText(t *testing.T) {
	require.Equal(t, `it\'s 10\:30`, escapeDrawText("it's 10:30"))
	require.Equal(t, `100\% done`, escapeDrawText("100% done"))
	require.Equal(t, `a\\b`, escapeDrawText(`a\b`))
}
