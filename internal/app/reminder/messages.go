package reminder

import (
	"fmt"

	domain "marco/internal/domain/reminder"
)

const summaryTimeLayout = "2006-01-02 15:04"

type catalog struct {
	summary      string
	confirmed    string
	canceled     string
	reprompt     string
	saveFailed   string
	greeting     string
	emptyRemind  string
	youSaid      string
	notification string
	voiceFailed  string
}

var catalogs = map[domain.Locale]catalog{
	domain.LocaleEnglish: {
		summary:      "Here's what I understood:\n📌 Task: %s\n🕒 When: %s\n🔔 Reminder: %d min before\nReply 'yes' to confirm.",
		confirmed:    "✅ Reminder set!",
		canceled:     "❌ Okay, reminder canceled.",
		reprompt:     "Please reply 'yes' to confirm or 'no' to cancel.",
		saveFailed:   "⚠️ Could not save the reminder, please reply again.",
		greeting:     "Hello! I'm Marco, your AI life co-pilot.\nSend me a reminder like:\n'Remind me to drink water tomorrow at 3pm'\nOr send a voice message.",
		emptyRemind:  "Please specify what you want to be reminded about.",
		youSaid:      "🗣 You said: %s",
		notification: "⏰ Reminder: %s",
		voiceFailed:  "Sorry, I couldn't understand that voice message.",
	},
	domain.LocaleArabic: {
		summary:      "📌 المهمة: %s\n🕒 الوقت: %s\n🔔 التذكير: قبل %d دقيقة\nهل أضبط التذكير؟ (نعم / لا)",
		confirmed:    "✅ تم ضبط التذكير!",
		canceled:     "❌ تم إلغاء التذكير.",
		reprompt:     "يرجى الرد بـ (نعم) للتأكيد أو (لا) للإلغاء.",
		saveFailed:   "⚠️ تعذر حفظ التذكير، يرجى الرد مرة أخرى.",
		greeting:     "مرحباً! أنا ماركو، مساعدك الذكي.\nأرسل لي تذكيراً مثل:\n'ذكرني بشرب الماء غداً الساعة ٣ مساءً'\nأو أرسل رسالة صوتية.",
		emptyRemind:  "يرجى تحديد ما تريد التذكير به.",
		youSaid:      "🗣 قلت: %s",
		notification: "⏰ تذكير: %s",
		voiceFailed:  "عذراً، لم أتمكن من فهم الرسالة الصوتية.",
	},
}

func catalogFor(locale domain.Locale) catalog {
	if c, ok := catalogs[locale]; ok {
		return c
	}
	return catalogs[domain.LocaleEnglish]
}

// SummaryMessage renders the confirmation prompt for a parsed intent.
func SummaryMessage(intent domain.ParsedIntent, locale domain.Locale) string {
	return fmt.Sprintf(catalogFor(locale).summary, intent.Task, intent.EventTime.Format(summaryTimeLayout), intent.LeadMinutes)
}

func ConfirmedMessage(locale domain.Locale) string  { return catalogFor(locale).confirmed }
func CanceledMessage(locale domain.Locale) string   { return catalogFor(locale).canceled }
func RepromptMessage(locale domain.Locale) string   { return catalogFor(locale).reprompt }
func SaveFailedMessage(locale domain.Locale) string { return catalogFor(locale).saveFailed }
func GreetingMessage(locale domain.Locale) string   { return catalogFor(locale).greeting }
func EmptyRemindMessage(locale domain.Locale) string {
	return catalogFor(locale).emptyRemind
}
func VoiceFailedMessage(locale domain.Locale) string {
	return catalogFor(locale).voiceFailed
}

// TranscriptEcho repeats a voice transcript back to the user.
func TranscriptEcho(transcript string, locale domain.Locale) string {
	return fmt.Sprintf(catalogFor(locale).youSaid, transcript)
}

// NotificationMessage is the text delivered when a reminder fires.
func NotificationMessage(task string, locale domain.Locale) string {
	return fmt.Sprintf(catalogFor(locale).notification, task)
}
