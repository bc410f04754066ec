package picker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Namespace prefixes every calendar callback payload so the router can tell
// calendar presses apart from the plain task-action payloads ("done", "date", ...).
const Namespace = "calendar"

const payloadSep = ";"

// Action identifies what a calendar button press means.
type Action string

const (
	ActionIgnore    Action = "IGNORE"
	ActionDay       Action = "DAY"
	ActionPrevYear  Action = "PREV-YEAR"
	ActionNextYear  Action = "NEXT-YEAR"
	ActionPrevMonth Action = "PREV-MONTH"
	ActionNextMonth Action = "NEXT-MONTH"
	ActionPrevHour  Action = "PREV-HOUR"
	ActionNextHour  Action = "NEXT-HOUR"
	ActionPrevMin   Action = "PREV-MIN"
	ActionNextMin   Action = "NEXT-MIN"
	ActionCancel    Action = "CANCEL"
)

// ErrMalformedPayload is returned by Decode for payloads that are not a valid
// calendar token list. Callers must treat it as a no-op press.
var ErrMalformedPayload = errors.New("picker: malformed callback payload")

// Cursor is the transient position of the calendar widget. It only ever lives
// inside button payloads; nothing is kept server-side between presses.
type Cursor struct {
	Year   int
	Month  int // 1..12
	Day    int // 0 for non-interactive cells
	Hour   int
	Minute int
}

// CursorAt builds a cursor from a wall-clock instant.
func CursorAt(t time.Time) Cursor {
	return Cursor{
		Year:   t.Year(),
		Month:  int(t.Month()),
		Day:    t.Day(),
		Hour:   t.Hour(),
		Minute: t.Minute(),
	}
}

// Time materializes the cursor as a time.Time in loc.
func (c Cursor) Time(loc *time.Location) time.Time {
	day := c.Day
	if day < 1 {
		day = 1
	}
	return time.Date(c.Year, time.Month(c.Month), day, c.Hour, c.Minute, 0, 0, loc)
}

// Encode renders the wire payload "calendar;<action>;<y>;<m>;<d>;<h>;<min>".
func Encode(a Action, c Cursor) string {
	return strings.Join([]string{
		Namespace, string(a),
		strconv.Itoa(c.Year), strconv.Itoa(c.Month), strconv.Itoa(c.Day),
		strconv.Itoa(c.Hour), strconv.Itoa(c.Minute),
	}, payloadSep)
}

// IsCalendarPayload reports whether data carries the calendar namespace.
func IsCalendarPayload(data string) bool {
	return strings.HasPrefix(data, Namespace+payloadSep)
}

// Decode parses a calendar payload back into its action and cursor.
func Decode(data string) (Action, Cursor, error) {
	parts := strings.Split(data, payloadSep)
	if len(parts) != 7 {
		return "", Cursor{}, fmt.Errorf("%w: %d tokens", ErrMalformedPayload, len(parts))
	}
	if parts[0] != Namespace {
		return "", Cursor{}, fmt.Errorf("%w: namespace %q", ErrMalformedPayload, parts[0])
	}
	nums := make([]int, 5)
	for i, raw := range parts[2:] {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return "", Cursor{}, fmt.Errorf("%w: field %q", ErrMalformedPayload, raw)
		}
		nums[i] = n
	}
	c := Cursor{Year: nums[0], Month: nums[1], Day: nums[2], Hour: nums[3], Minute: nums[4]}
	if c.Month < 1 || c.Month > 12 || c.Day < 0 || c.Day > 31 ||
		c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return "", Cursor{}, fmt.Errorf("%w: out of range", ErrMalformedPayload)
	}
	return Action(parts[1]), c, nil
}

// Terminal reports whether the action ends the picker interaction.
// DAY commits a date, CANCEL aborts; everything else re-renders the grid.
func Terminal(a Action) bool {
	return a == ActionDay || a == ActionCancel
}

// Advance moves the cursor by one step of the given action.
//
// Month and year steps clamp the day-of-month to the target month's length
// (Jan 31 -> Feb 28, back -> Jan 28): the day survives when possible, and a
// clamped day stays clamped. Hour and minute steps are plain datetime
// arithmetic and roll over day boundaries. DAY, CANCEL and IGNORE leave the
// cursor untouched.
func Advance(c Cursor, a Action) Cursor {
	switch a {
	case ActionPrevYear:
		return addMonths(c, -12)
	case ActionNextYear:
		return addMonths(c, 12)
	case ActionPrevMonth:
		return addMonths(c, -1)
	case ActionNextMonth:
		return addMonths(c, 1)
	case ActionPrevHour:
		return shift(c, -time.Hour)
	case ActionNextHour:
		return shift(c, time.Hour)
	case ActionPrevMin:
		return shift(c, -time.Minute)
	case ActionNextMin:
		return shift(c, time.Minute)
	default:
		return c
	}
}

func addMonths(c Cursor, delta int) Cursor {
	months := (c.Year*12 + c.Month - 1) + delta
	year := months / 12
	month := months%12 + 1
	if months < 0 {
		// Not reachable for sane cursors; keep the arithmetic total anyway.
		year = (months - 11) / 12
		month = months - year*12 + 1
	}
	out := c
	out.Year = year
	out.Month = month
	if max := daysIn(year, time.Month(month)); out.Day > max {
		out.Day = max
	}
	return out
}

func shift(c Cursor, d time.Duration) Cursor {
	t := c.Time(time.UTC).Add(d)
	out := CursorAt(t)
	if c.Day == 0 {
		out.Day = 0
	}
	return out
}

func daysIn(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
