// Package period resolves the reporting date range from CLI input.
package period

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the accepted --start-date/--end-date format
const DateLayout = "2006-01-02"

var (
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form
	ErrInvalidDate = errors.New("invalid date")

	// ErrEndBeforeStart is returned when the end date precedes the start date
	ErrEndBeforeStart = errors.New("end date precedes start date")
)

// Period is an inclusive range of whole UTC days
type Period struct {
	Start time.Time
	End   time.Time
}

// PreviousMonth returns the first through last day of the calendar month
// before now
func PreviousMonth(now time.Time) Period {
	y, m, _ := now.Date()
	// Day 0 of the current month normalizes to the last day of the previous one
	return Period{
		Start: time.Date(y, m-1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(y, m, 0, 0, 0, 0, 0, time.UTC),
	}
}

// Resolve builds a Period from optional start and end flags. If either flag is
// empty both default to the previous calendar month; any flag that was given
// must still be well formed.
func Resolve(start, end string, now time.Time) (Period, error) {
	var (
		p        Period
		err      error
		hasStart = start != ""
		hasEnd   = end != ""
	)

	if hasStart {
		if p.Start, err = parseDate("start", start); err != nil {
			return Period{}, err
		}
	}
	if hasEnd {
		if p.End, err = parseDate("end", end); err != nil {
			return Period{}, err
		}
	}

	if !hasStart || !hasEnd {
		return PreviousMonth(now), nil
	}

	if p.End.Before(p.Start) {
		return Period{}, fmt.Errorf("%w: %s is before %s", ErrEndBeforeStart, end, start)
	}
	return p, nil
}

func parseDate(name, value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --%s-date %q must be YYYY-MM-DD", ErrInvalidDate, name, value)
	}
	return t, nil
}

// Month returns the first day of the month the period starts in
func (p Period) Month() time.Time {
	return time.Date(p.Start.Year(), p.Start.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthLabel is the human month label used in the CSV, e.g. "January 2026"
func (p Period) MonthLabel() string {
	return p.Start.Format("January 2006")
}

// FileLabel is the month label used in file names, e.g. "January_2026"
func (p Period) FileLabel() string {
	return p.Start.Format("January_2006")
}

// Days returns the number of days covered, counting both ends
func (p Period) Days() int {
	return int(p.End.Sub(p.Start).Hours()/24) + 1
}

// ExclusiveEnd is midnight after the last day of the period
func (p Period) ExclusiveEnd() time.Time {
	return p.End.AddDate(0, 0, 1)
}

// Timespan formats the period as an ISO 8601 interval for Azure Monitor
func (p Period) Timespan() string {
	return p.Start.Format(time.RFC3339) + "/" + p.ExclusiveEnd().Format(time.RFC3339)
}

// String renders the period for logs and the console summary
func (p Period) String() string {
	return fmt.Sprintf("%s to %s", p.Start.Format("January 02, 2006"), p.End.Format("January 02, 2006"))
}
