package picker

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		action Action
		cur    Cursor
	}{
		{"day", ActionDay, Cursor{Year: 2026, Month: 8, Day: 28, Hour: 10, Minute: 30}},
		{"nav", ActionNextMonth, Cursor{Year: 2026, Month: 12, Day: 31, Hour: 23, Minute: 59}},
		{"ignore no day", ActionIgnore, Cursor{Year: 2026, Month: 1, Hour: 0, Minute: 0}},
		{"cancel", ActionCancel, Cursor{Year: 1999, Month: 2, Day: 1}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			data := Encode(tc.action, tc.cur)
			if !IsCalendarPayload(data) {
				t.Fatalf("IsCalendarPayload(%q) = false", data)
			}
			a, c, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode(%q): %v", data, err)
			}
			if a != tc.action {
				t.Errorf("action = %q, want %q", a, tc.action)
			}
			if c != tc.cur {
				t.Errorf("cursor = %+v, want %+v", c, tc.cur)
			}
		})
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"plain action", "done"},
		{"too few tokens", "calendar;DAY;2026;8;28"},
		{"too many tokens", "calendar;DAY;2026;8;28;10;30;7"},
		{"wrong namespace", "kalendar;DAY;2026;8;28;10;30"},
		{"non-numeric", "calendar;DAY;2026;aug;28;10;30"},
		{"month out of range", "calendar;DAY;2026;13;28;10;30"},
		{"day out of range", "calendar;DAY;2026;8;32;10;30"},
		{"hour out of range", "calendar;DAY;2026;8;28;24;30"},
		{"minute out of range", "calendar;DAY;2026;8;28;10;60"},
		{"negative day", "calendar;DAY;2026;8;-1;10;30"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, _, err := Decode(tc.data); !errors.Is(err, ErrMalformedPayload) {
				t.Fatalf("Decode(%q) err = %v, want ErrMalformedPayload", tc.data, err)
			}
		})
	}
}

func TestAdvanceMonthClamping(t *testing.T) {
	t.Parallel()

	jan31 := Cursor{Year: 2026, Month: 1, Day: 31, Hour: 12, Minute: 0}

	feb := Advance(jan31, ActionNextMonth)
	if feb.Month != 2 || feb.Day != 28 || feb.Year != 2026 {
		t.Fatalf("Jan 31 + month = %+v, want Feb 28", feb)
	}

	// Going back does not resurrect the clamped day.
	back := Advance(feb, ActionPrevMonth)
	if back.Month != 1 || back.Day != 28 || back.Year != 2026 {
		t.Fatalf("Feb 28 - month = %+v, want Jan 28", back)
	}
}

func TestAdvanceLeapYear(t *testing.T) {
	t.Parallel()

	jan31 := Cursor{Year: 2024, Month: 1, Day: 31}
	feb := Advance(jan31, ActionNextMonth)
	if feb.Day != 29 {
		t.Fatalf("Jan 31 2024 + month day = %d, want 29", feb.Day)
	}
}

func TestAdvanceYearBoundaries(t *testing.T) {
	t.Parallel()

	dec := Cursor{Year: 2026, Month: 12, Day: 15}
	jan := Advance(dec, ActionNextMonth)
	if jan.Year != 2027 || jan.Month != 1 || jan.Day != 15 {
		t.Fatalf("Dec 15 + month = %+v, want Jan 15 2027", jan)
	}

	back := Advance(jan, ActionPrevMonth)
	if back != dec {
		t.Fatalf("Jan 15 2027 - month = %+v, want %+v", back, dec)
	}

	// Feb 29 on a leap year clamps across year steps.
	leap := Cursor{Year: 2024, Month: 2, Day: 29}
	next := Advance(leap, ActionNextYear)
	if next.Year != 2025 || next.Day != 28 {
		t.Fatalf("Feb 29 2024 + year = %+v, want Feb 28 2025", next)
	}
}

func TestAdvanceHourMinuteRollover(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		cur    Cursor
		action Action
		want   Cursor
	}{
		{
			"hour rolls date forward",
			Cursor{Year: 2026, Month: 8, Day: 31, Hour: 23, Minute: 30},
			ActionNextHour,
			Cursor{Year: 2026, Month: 9, Day: 1, Hour: 0, Minute: 30},
		},
		{
			"hour rolls date back",
			Cursor{Year: 2026, Month: 9, Day: 1, Hour: 0, Minute: 5},
			ActionPrevHour,
			Cursor{Year: 2026, Month: 8, Day: 31, Hour: 23, Minute: 5},
		},
		{
			"minute rolls hour",
			Cursor{Year: 2026, Month: 8, Day: 28, Hour: 10, Minute: 59},
			ActionNextMin,
			Cursor{Year: 2026, Month: 8, Day: 28, Hour: 11, Minute: 0},
		},
		{
			"minute back over midnight",
			Cursor{Year: 2026, Month: 1, Day: 1, Hour: 0, Minute: 0},
			ActionPrevMin,
			Cursor{Year: 2025, Month: 12, Day: 31, Hour: 23, Minute: 59},
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Advance(tc.cur, tc.action); got != tc.want {
				t.Fatalf("Advance(%+v, %s) = %+v, want %+v", tc.cur, tc.action, got, tc.want)
			}
		})
	}
}

func TestAdvanceKeepsZeroDay(t *testing.T) {
	t.Parallel()

	c := Cursor{Year: 2026, Month: 8, Day: 0, Hour: 10, Minute: 30}
	got := Advance(c, ActionNextHour)
	if got.Day != 0 {
		t.Fatalf("Day = %d, want 0 preserved for non-interactive cursors", got.Day)
	}
	if got.Hour != 11 {
		t.Fatalf("Hour = %d, want 11", got.Hour)
	}
}

func TestAdvanceTerminalActionsNoop(t *testing.T) {
	t.Parallel()

	c := Cursor{Year: 2026, Month: 8, Day: 28, Hour: 10, Minute: 30}
	for _, a := range []Action{ActionDay, ActionCancel, ActionIgnore} {
		if got := Advance(c, a); got != c {
			t.Fatalf("Advance(%s) = %+v, want unchanged", a, got)
		}
	}
}

func TestTerminal(t *testing.T) {
	t.Parallel()

	if !Terminal(ActionDay) || !Terminal(ActionCancel) {
		t.Fatal("DAY and CANCEL must be terminal")
	}
	for _, a := range []Action{ActionIgnore, ActionPrevYear, ActionNextMonth, ActionNextMin} {
		if Terminal(a) {
			t.Fatalf("%s must not be terminal", a)
		}
	}
}

func TestCursorTime(t *testing.T) {
	t.Parallel()

	loc := time.UTC
	c := Cursor{Year: 2026, Month: 8, Day: 28, Hour: 10, Minute: 30}
	want := time.Date(2026, 8, 28, 10, 30, 0, 0, loc)
	if got := c.Time(loc); !got.Equal(want) {
		t.Fatalf("Time = %v, want %v", got, want)
	}

	// Day 0 materializes as the first of the month.
	c.Day = 0
	want = time.Date(2026, 8, 1, 10, 30, 0, 0, loc)
	if got := c.Time(loc); !got.Equal(want) {
		t.Fatalf("Time(day 0) = %v, want %v", got, want)
	}
}
