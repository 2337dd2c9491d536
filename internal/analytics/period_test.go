package analytics

import (
	"errors"
	"testing"
	"time"
)

func TestResolveWindow(t *testing.T) {
	now := time.Date(2026, 4, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		period    Period
		start     string
		end       string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{name: "day", period: PeriodDay, wantStart: now.Add(-24 * time.Hour), wantEnd: now},
		{name: "week", period: PeriodWeek, wantStart: now.AddDate(0, 0, -7), wantEnd: now},
		{name: "default is week", period: "", wantStart: now.AddDate(0, 0, -7), wantEnd: now},
		{name: "month", period: "MONTH", wantStart: now.AddDate(0, 0, -30), wantEnd: now},
		{name: "dates ignored outside custom", period: PeriodDay, start: "2020-01-01", end: "2020-01-02", wantStart: now.Add(-24 * time.Hour), wantEnd: now},
		{
			name:      "custom dates",
			period:    PeriodCustom,
			start:     "2026-03-01",
			end:       "2026-03-03",
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:      "custom rfc3339",
			period:    PeriodCustom,
			start:     "2026-03-01T10:00:00+02:00",
			end:       "2026-03-01T12:00:00Z",
			wantStart: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			name:      "custom full leap year",
			period:    PeriodCustom,
			start:     "2024-01-01",
			end:       "2024-12-31",
			wantStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
		{
			name:      "custom single day",
			period:    PeriodCustom,
			start:     "2026-03-01",
			end:       "2026-03-01",
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ResolveWindow(tt.period, tt.start, tt.end, now)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !w.Start.Equal(tt.wantStart) || !w.End.Equal(tt.wantEnd) {
				t.Fatalf("got %v..%v, want %v..%v", w.Start, w.End, tt.wantStart, tt.wantEnd)
			}
		})
	}
}

func TestResolveWindowInvalid(t *testing.T) {
	now := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		period Period
		start  string
		end    string
	}{
		{name: "unknown period", period: "quarter"},
		{name: "custom without dates", period: PeriodCustom},
		{name: "custom without end", period: PeriodCustom, start: "2026-03-01"},
		{name: "custom bad date", period: PeriodCustom, start: "03/01/2026", end: "2026-03-02"},
		{name: "start after end", period: PeriodCustom, start: "2026-03-05", end: "2026-03-01"},
		{name: "span beyond a year", period: PeriodCustom, start: "0001-01-01", end: "9999-12-31"},
		{name: "367 days", period: PeriodCustom, start: "2025-01-01", end: "2026-01-02"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ResolveWindow(tt.period, tt.start, tt.end, now); !errors.Is(err, ErrInvalidRange) {
				t.Fatalf("expected ErrInvalidRange, got %v", err)
			}
		})
	}
}
