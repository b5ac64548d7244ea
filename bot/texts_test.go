package bot

import (
	"testing"

	"vidforge/pipeline"
	"vidforge/session"

	"github.com/stretchr/testify/require"
)

func TestStageText(t *testing.T) {
	require.Contains(t, stageText(pipeline.StageDescribe), "Stage 1/3")
	require.Contains(t, stageText(pipeline.StageIllustrate), "Stage 2/3")
	require.Contains(t, stageText(pipeline.StageCompose), "Stage 3/3")
	// The pre-pipeline placeholder has no stage counter yet.
	require.NotContains(t, stageText(0), "Stage")
}

func TestKeyMessagesNameTheProvider(t *testing.T) {
	for _, kind := range []session.Kind{session.KindGemini, session.KindLeonardo} {
		require.Contains(t, msgKeyPrompt(kind), keyLabel(kind))
		require.Contains(t, msgKeyPrompt(kind), "https://")
		require.Contains(t, msgKeySaved(kind), keyLabel(kind))
		require.Contains(t, msgKeyInvalid(kind), keyLabel(kind))
	}
}

func TestOnboardingMarkup(t *testing.T) {
	markup := onboardingMarkup()
	require.Len(t, markup.InlineKeyboard, 2)
	require.Equal(t, cbSetGemini, markup.InlineKeyboard[0][0].Unique)
	require.Equal(t, cbSetLeonardo, markup.InlineKeyboard[1][0].Unique)
}

func TestJoinChannelMarkup(t *testing.T) {
	markup := joinChannelMarkup("@mychannel")
	require.Len(t, markup.InlineKeyboard, 1)
	require.Equal(t, "https://t.me/mychannel", markup.InlineKeyboard[0][0].URL)
}
