package flow

import (
	"strings"

	"nagbot/internal/transport"
	"nagbot/pkg/tgui"
)

// Callback payloads of the task action row. These are plain strings on the
// wire, unlike calendar payloads which carry the "calendar;" namespace.
const (
	DataDone   = "done"
	DataUndone = "undone"
	DataDate   = "date"
	DataDelete = "del"
)

// dateMarker separates the task text from its due-date suffix
// ("buy milk ::28-08-2026 10:00"). The format is wire-visible and must stay
// bit-compatible with existing task messages.
const dateMarker = " ::"

const doneMark = "✅"

const (
	promptCalendar  = "Выберите дату напоминания"
	noticeTimeout   = "Календарь закрыт: время выбора истекло."
	noticeCancelled = "Выбор даты отменён, напоминание удалено."
	noticeEditRetry = "Не удалось обновить календарь. Попробуйте ещё раз."
	textStart       = `_It is not the message you are looking for\.\.\._`
	textHelp        = "Use /start to test this bot."
)

// TaskButtons is the action row attached to every tracked task message.
// A done task offers the reverse toggle in the first slot.
func TaskButtons(done bool) [][]transport.Button {
	first := tgui.Btn("✔️ Выполнить", DataDone)
	if done {
		first = tgui.Btn("Выполнено", DataUndone)
	}
	return tgui.NewInline().
		Row(first, tgui.Btn("📅 Напомнить", DataDate), tgui.Btn("❌ Удалить", DataDelete)).
		Rows()
}

// baseText strips the due-date suffix from a task message.
func baseText(s string) string {
	return strings.SplitN(s, dateMarker, 2)[0]
}

// markDone prefixes the check mark; already-done text is returned unchanged
// so re-applying stays a no-op.
func markDone(s string) string {
	if s == "" {
		return doneMark
	}
	if strings.HasPrefix(s, doneMark) {
		return s
	}
	return doneMark + " " + s
}

// markUndone reverses markDone, including the legacy <del> wrapper some old
// messages still carry.
func markUndone(s string) string {
	if strings.HasPrefix(s, "<del>") && strings.HasSuffix(s, "</del>") {
		s = strings.TrimSuffix(strings.TrimPrefix(s, "<del>"), "</del>")
	}
	s = strings.TrimPrefix(s, doneMark)
	return strings.TrimPrefix(s, " ")
}
