package bot

import (
	"fmt"
	"strings"

	"vidforge/core/telegram/keyboard"
	"vidforge/pipeline"
	"vidforge/session"

	tele "gopkg.in/telebot.v4"
)

const (
	cbSetGemini   = "set_gemini"
	cbSetLeonardo = "set_leonardo"
)

const (
	msgWelcome = "🪄 *Welcome to the AI video maker bot!*\n\n" +
		"🌟 Turn any text into a polished video in seconds.\n\n" +
		"🔑 *First step:* add the following API keys:\n\n" +
		"1. `Google Gemini API` - turns text into a visual description\n" +
		"2. `Leonardo AI API` - renders the images\n\n" +
		"Pick the key you want to add:"

	msgKeyValidatedNote = "⚠️ The key is validated automatically before it is saved."

	msgAllReady = "🎉 *All API keys are active!*\n\n" +
		"Send me the text you want turned into a video.\n\n" +
		"Example: \"a sunset over the sea with calm waves and birds crossing the sky\""

	msgPromptTooShort = "❌ That text is too short. Send at least 10 characters."

	msgJoinChannel = "⛔ *You need to join our channel first.*\n\n" +
		"Join, then send your text again."

	msgProcessingFailed = "❌ *Something went wrong!*\n\n" +
		"Possible causes:\n" +
		"- an invalid API key\n" +
		"- a network problem\n" +
		"- unsuitable text\n\n" +
		"Please try again."

	msgVideoCaption = "🎬 *Your video is ready!*\n\n" +
		"👍 Enjoy!\n" +
		"🔄 Send another text to make a new one."
)

var apiLinks = map[session.Kind]string{
	session.KindGemini:   "• [Google Gemini API](https://aistudio.google.com/app/apikey)",
	session.KindLeonardo: "• [Leonardo AI API](https://app.leonardo.ai/account)",
}

func keyLabel(kind session.Kind) string {
	return strings.ToUpper(string(kind))
}

func msgKeyPrompt(kind session.Kind) string {
	return fmt.Sprintf("🔑 *Send your %s API key now*\n\n📎 Where to get it:\n%s\n\n%s",
		keyLabel(kind), apiLinks[kind], msgKeyValidatedNote)
}

func msgKeySaved(kind session.Kind) string {
	return fmt.Sprintf("✅ *%s API key saved!*", keyLabel(kind))
}

func msgKeyInvalid(kind session.Kind) string {
	return fmt.Sprintf("❌ *Invalid key!* Send a valid %s API key.", keyLabel(kind))
}

func msgStats(users int) string {
	return fmt.Sprintf("📊 *Bot statistics*\n\n👤 Users: %d", users)
}

// stageText renders the in-place status message for a pipeline stage.
func stageText(stage pipeline.Stage) string {
	header := "🔄 *Working on your request...*\n\n"
	switch stage {
	case pipeline.StageDescribe:
		return header + fmt.Sprintf("🚀 Stage %d/%d: creating a visual description", stage, pipeline.StageTotal)
	case pipeline.StageIllustrate:
		return header + fmt.Sprintf("🚀 Stage %d/%d: rendering images (this can take a minute)", stage, pipeline.StageTotal)
	case pipeline.StageCompose:
		return header + fmt.Sprintf("🚀 Stage %d/%d: assembling the video", stage, pipeline.StageTotal)
	}
	return header + "⏳ This can take a few minutes"
}

func onboardingMarkup() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "Gemini API", Unique: cbSetGemini},
		{Text: "Leonardo API", Unique: cbSetLeonardo},
	})
}

func joinChannelMarkup(channel string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	url := "https://t.me/" + strings.TrimPrefix(channel, "@")
	btn := markup.URL("Join the channel", url)
	markup.InlineKeyboard = [][]tele.InlineButton{{*btn.Inline()}}
	return markup
}
