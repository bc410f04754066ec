package picker

import (
	"fmt"
	"time"

	"nagbot/internal/transport"
	"nagbot/pkg/tgui"
)

var weekdayLabels = [7]string{"Mo", "Tu", "We", "Th", "Fr", "Sa", "Su"}

// Render produces the full calendar grid for the cursor position:
// year nav, weekday labels, the month's weeks, month nav, hour nav,
// minute nav and a cancel row. Non-interactive cells echo the cursor back
// under IGNORE so every press stays answerable.
func Render(c Cursor) [][]transport.Button {
	ignore := Encode(ActionIgnore, Cursor{Year: c.Year, Month: c.Month, Hour: c.Hour, Minute: c.Minute})

	kb := tgui.NewInline()
	kb.Row(
		tgui.Btn("<", Encode(ActionPrevYear, c)),
		tgui.Btn(fmt.Sprintf("YEAR:%d", c.Year), ignore),
		tgui.Btn(">", Encode(ActionNextYear, c)),
	)

	week := make([]transport.Button, 0, 7)
	for _, label := range weekdayLabels {
		week = append(week, tgui.Btn(label, ignore))
	}
	kb.Row(week...)

	for _, days := range monthGrid(c.Year, time.Month(c.Month)) {
		row := make([]transport.Button, 0, 7)
		for _, day := range days {
			if day == 0 {
				row = append(row, tgui.Btn(" ", ignore))
				continue
			}
			cell := c
			cell.Day = day
			row = append(row, tgui.Btn(fmt.Sprintf("%d", day), Encode(ActionDay, cell)))
		}
		kb.Row(row...)
	}

	kb.Row(
		tgui.Btn("<", Encode(ActionPrevMonth, c)),
		tgui.Btn(time.Month(c.Month).String(), ignore),
		tgui.Btn(">", Encode(ActionNextMonth, c)),
	)
	kb.Row(
		tgui.Btn("<", Encode(ActionPrevHour, c)),
		tgui.Btn(fmt.Sprintf("HOUR:%d", c.Hour), ignore),
		tgui.Btn(">", Encode(ActionNextHour, c)),
	)
	kb.Row(
		tgui.Btn("<", Encode(ActionPrevMin, c)),
		tgui.Btn(fmt.Sprintf("MIN:%d", c.Minute), ignore),
		tgui.Btn(">", Encode(ActionNextMin, c)),
	)
	kb.Row(tgui.Btn("CANCEL", Encode(ActionCancel, c)))

	return kb.Rows()
}

// monthGrid lays the month out as Monday-first weeks, zero-padded at both
// ends, matching the classic monthcalendar layout.
func monthGrid(year int, month time.Month) [][7]int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(first.Weekday()) + 6) % 7 // Monday = 0
	total := daysIn(year, month)

	weeks := make([][7]int, 0, 6)
	var cur [7]int
	col := offset
	for day := 1; day <= total; day++ {
		cur[col] = day
		col++
		if col == 7 {
			weeks = append(weeks, cur)
			cur = [7]int{}
			col = 0
		}
	}
	if col != 0 {
		weeks = append(weeks, cur)
	}
	return weeks
}
