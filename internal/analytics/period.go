package analytics

import (
	"fmt"
	"strings"
	"time"
)

type Period string

const (
	PeriodDay    Period = "day"
	PeriodWeek   Period = "week"
	PeriodMonth  Period = "month"
	PeriodCustom Period = "custom"
)

const (
	dateLayout = "2006-01-02"

	// maxWindowDays caps a report at one daily row per day of a leap year.
	maxWindowDays = 366
)

// ResolveWindow turns a period query into a concrete window ending at now.
// Custom periods take both dates; a date-only end covers that whole day.
func ResolveWindow(period Period, startDate, endDate string, now time.Time) (Window, error) {
	now = now.UTC()
	switch Period(strings.ToLower(strings.TrimSpace(string(period)))) {
	case PeriodDay:
		return Window{Start: now.Add(-24 * time.Hour), End: now}, nil
	case "", PeriodWeek:
		return Window{Start: now.AddDate(0, 0, -7), End: now}, nil
	case PeriodMonth:
		return Window{Start: now.AddDate(0, 0, -30), End: now}, nil
	case PeriodCustom:
		return customWindow(startDate, endDate)
	default:
		return Window{}, fmt.Errorf("%w: unknown period %q", ErrInvalidRange, period)
	}
}

func customWindow(startDate, endDate string) (Window, error) {
	if strings.TrimSpace(startDate) == "" || strings.TrimSpace(endDate) == "" {
		return Window{}, fmt.Errorf("%w: custom period needs startDate and endDate", ErrInvalidRange)
	}
	start, err := parseDate(startDate, false)
	if err != nil {
		return Window{}, err
	}
	end, err := parseDate(endDate, true)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: start, End: end}
	if err := w.validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) validate() error {
	switch {
	case w.Start.IsZero() || w.End.IsZero():
		return fmt.Errorf("%w: window needs a start and an end", ErrInvalidRange)
	case w.Start.After(w.End):
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, w.Start.Format(dateLayout), w.End.Format(dateLayout))
	case w.End.Sub(w.Start) > maxWindowDays*24*time.Hour:
		return fmt.Errorf("%w: window longer than %d days", ErrInvalidRange, maxWindowDays)
	}
	return nil
}

func parseDate(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: cannot parse date %q", ErrInvalidRange, s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
