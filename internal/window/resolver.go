package window

import (
	"errors"
	"fmt"
	"time"
)

// ErrStartAfterToday indicates a configured or entered start date in the
// future, which can never produce a reporting window.
var ErrStartAfterToday = errors.New("start date is after today")

// Window is one inclusive date range to request from the provider.
type Window struct {
	Start time.Time
	End   time.Time
}

// DateFormat is the wire format for all dates exchanged with the provider.
const DateFormat = "2006-01-02"

// Fixed resolves a fixed-mode group to its single window: the configured
// start date through today.
func Fixed(start, today time.Time) (Window, error) {
	start, today = DateOnly(start), DateOnly(today)
	if start.After(today) {
		return Window{}, fmt.Errorf("%w: %s", ErrStartAfterToday, start.Format(DateFormat))
	}
	return Window{Start: start, End: today}, nil
}

// Monthly partitions [start, today] into successive calendar-month windows.
// Window i runs from start+i months through the day before start+i+1 months,
// with the final window clamped to today. The windows are contiguous,
// non-overlapping and cover the interval exactly.
func Monthly(start, today time.Time) ([]Window, error) {
	start, today = DateOnly(start), DateOnly(today)
	if start.After(today) {
		return nil, fmt.Errorf("%w: %s", ErrStartAfterToday, start.Format(DateFormat))
	}

	var windows []Window
	for i := 0; ; i++ {
		ws := addMonths(start, i)
		if ws.After(today) {
			break
		}
		we := addMonths(start, i+1).AddDate(0, 0, -1)
		if we.After(today) {
			we = today
		}
		windows = append(windows, Window{Start: ws, End: we})
	}
	return windows, nil
}

// addMonths advances a date by n calendar months, clamping the day to the
// last valid day of the target month (Jan 31 + 1 month is the end of
// February, not an overflow into March).
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}

// DateOnly reduces an instant to its calendar date, rebuilt at UTC
// midnight. Start dates parse as UTC while "today" arrives in the process's
// local zone; comparing the raw instants would misjudge dates that are
// equal on the calendar, so all window comparisons go through this form.
func DateOnly(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
