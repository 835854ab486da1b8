package recurrence

import (
	"errors"
	"testing"
	"time"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParseWeekdays(t *testing.T) {
	days, err := parseWeekdays([]string{"Monday", " we ", "FR", "0"})
	if err != nil {
		t.Fatalf("parseWeekdays() error = %v", err)
	}
	want := []string{"MO", "WE", "FR", "SU"}
	if len(days) != len(want) {
		t.Fatalf("parseWeekdays() returned %d days, want %d", len(days), len(want))
	}
	for i, d := range days {
		if d.String() != want[i] {
			t.Errorf("day %d = %s, want %s", i, d, want[i])
		}
	}

	if _, err := parseWeekdays([]string{"someday"}); !errors.Is(err, ErrValidation) {
		t.Errorf("parseWeekdays(someday) error = %v, want ErrValidation", err)
	}
}

func TestOccurrenceStarts(t *testing.T) {
	t.Run("repeatUntil is inclusive", func(t *testing.T) {
		until := utc("2025-01-03T00:00:00Z")
		rule := &Recurrence{Frequency: FrequencyDaily, RepeatUntil: &until}

		starts, truncated, err := occurrenceStarts(utc("2025-01-01T18:00:00Z"), rule, time.Time{}, time.UTC, 0)
		if err != nil {
			t.Fatalf("occurrenceStarts() error = %v", err)
		}
		if truncated {
			t.Error("expected no truncation")
		}
		if len(starts) != 3 {
			t.Fatalf("got %d starts, want 3: %v", len(starts), starts)
		}
		if !starts[2].Equal(utc("2025-01-03T18:00:00Z")) {
			t.Errorf("last start = %v", starts[2])
		}
	})

	t.Run("monthly skips short months", func(t *testing.T) {
		until := utc("2025-05-31T00:00:00Z")
		rule := &Recurrence{Frequency: FrequencyMonthly, RepeatUntil: &until}

		starts, _, err := occurrenceStarts(utc("2025-01-31T10:00:00Z"), rule, time.Time{}, time.UTC, 0)
		if err != nil {
			t.Fatalf("occurrenceStarts() error = %v", err)
		}
		want := []time.Time{
			utc("2025-01-31T10:00:00Z"),
			utc("2025-03-31T10:00:00Z"),
			utc("2025-05-31T10:00:00Z"),
		}
		if len(starts) != len(want) {
			t.Fatalf("got %v, want %v", starts, want)
		}
		for i := range want {
			if !starts[i].Equal(want[i]) {
				t.Errorf("start %d = %v, want %v", i, starts[i], want[i])
			}
		}
	})

	t.Run("window end clips the series", func(t *testing.T) {
		rule := &Recurrence{Frequency: FrequencyWeekly}

		starts, _, err := occurrenceStarts(utc("2025-01-06T09:00:00Z"), rule, utc("2025-01-27T00:00:00Z"), time.UTC, 0)
		if err != nil {
			t.Fatalf("occurrenceStarts() error = %v", err)
		}
		if len(starts) != 3 {
			t.Errorf("got %d starts, want 3", len(starts))
		}
	})

	t.Run("limit truncates", func(t *testing.T) {
		rule := &Recurrence{Frequency: FrequencyDaily}

		starts, truncated, err := occurrenceStarts(utc("2025-01-01T09:00:00Z"), rule, utc("2026-01-01T00:00:00Z"), time.UTC, 10)
		if err != nil {
			t.Fatalf("occurrenceStarts() error = %v", err)
		}
		if !truncated || len(starts) != 10 {
			t.Errorf("got %d starts (truncated=%v), want 10 truncated", len(starts), truncated)
		}
	})

	t.Run("custom yields the first occurrence only", func(t *testing.T) {
		rule := &Recurrence{Frequency: FrequencyCustom}

		starts, _, err := occurrenceStarts(utc("2025-01-01T09:00:00Z"), rule, utc("2026-01-01T00:00:00Z"), time.UTC, 0)
		if err != nil {
			t.Fatalf("occurrenceStarts() error = %v", err)
		}
		if len(starts) != 1 {
			t.Errorf("got %d starts, want 1", len(starts))
		}
	})

	t.Run("wall clock survives DST", func(t *testing.T) {
		loc, err := time.LoadLocation("America/New_York")
		if err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
		until := utc("2025-03-10T12:00:00Z")
		rule := &Recurrence{Frequency: FrequencyDaily, RepeatUntil: &until}

		starts, _, err := occurrenceStarts(utc("2025-03-08T14:00:00Z"), rule, time.Time{}, loc, 0)
		if err != nil {
			t.Fatalf("occurrenceStarts() error = %v", err)
		}
		want := []time.Time{
			utc("2025-03-08T14:00:00Z"),
			utc("2025-03-09T13:00:00Z"),
			utc("2025-03-10T13:00:00Z"),
		}
		if len(starts) != len(want) {
			t.Fatalf("got %v, want %v", starts, want)
		}
		for i := range want {
			if !starts[i].Equal(want[i]) {
				t.Errorf("start %d = %v, want %v", i, starts[i], want[i])
			}
		}
	})
}
