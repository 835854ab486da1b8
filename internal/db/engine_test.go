package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/selfieapp/selfie/internal/recurrence"
)

// These run the engine against SQLite so instant matching is checked after
// a real round trip through the DATETIME columns.

func newSQLiteEngine(t *testing.T) (*recurrence.Engine, *EventStore) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	t.Cleanup(cleanup)

	store := db.Events()
	now := func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return recurrence.NewEngine(store, testLogger(), recurrence.WithClock(now)), store
}

func createDailySeries(t *testing.T, e *recurrence.Engine, owner string) string {
	t.Helper()
	start := ts(t, "2024-01-01T10:00:00Z")
	end := ts(t, "2024-01-01T11:00:00Z")
	until := ts(t, "2024-01-05T00:00:00Z")

	recs, err := e.CreateEvent(context.Background(), owner, recurrence.EventInput{
		Title:       "Lecture",
		Start:       &start,
		End:         &end,
		IsRecurring: true,
		Recurrence:  &recurrence.Recurrence{Frequency: recurrence.FrequencyDaily, RepeatUntil: &until},
	})
	if err != nil {
		t.Fatalf("CreateEvent() error = %v", err)
	}
	if len(recs) != 5 {
		t.Fatalf("expected 5 occurrences, got %d", len(recs))
	}
	return recs[0].RecurrenceID
}

func listWindow(t *testing.T, e *recurrence.Engine, owner string) []*recurrence.Record {
	t.Helper()
	events, err := e.ListEvents(context.Background(), owner, ts(t, "2025-01-01T00:00:00Z"))
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	return events
}

func TestEngineSeriesLifecycle(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()
	rid := createDailySeries(t, e, "alice")

	title := "Moved"
	moved := ts(t, "2024-01-02T15:00:00Z")
	if _, err := e.UpdateOccurrence(ctx, "alice", rid, ts(t, "2024-01-02T10:00:00Z"), recurrence.OccurrenceUpdate{
		Title: &title,
		Start: &moved,
	}); err != nil {
		t.Fatalf("UpdateOccurrence() error = %v", err)
	}
	if _, err := e.CancelOccurrence(ctx, "alice", rid, ts(t, "2024-01-04T10:00:00Z")); err != nil {
		t.Fatalf("CancelOccurrence() error = %v", err)
	}

	events := listWindow(t, e, "alice")
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if !events[1].Start.Equal(moved) || events[1].Title != "Moved" {
		t.Errorf("expected override second, got %s at %v", events[1].Title, events[1].Start)
	}

	if _, err := e.UpdateSeries(ctx, "alice", rid, recurrence.SeriesUpdate{
		StartTime: recurrence.ClockTime{Hours: 8, Minutes: 15},
		EndTime:   recurrence.ClockTime{Hours: 9, Minutes: 0},
	}); err != nil {
		t.Fatalf("UpdateSeries() error = %v", err)
	}

	events = listWindow(t, e, "alice")
	if len(events) != 4 {
		t.Fatalf("expected cancellation to survive the series edit, got %d events", len(events))
	}
	for _, ev := range events {
		if ev.Start.Hour() != 8 || ev.Start.Minute() != 15 {
			t.Errorf("expected 08:15 start, got %v", ev.Start)
		}
		if ev.Start.Day() == 4 {
			t.Errorf("cancelled occurrence listed: %v", ev.Start)
		}
	}

	n, err := e.DeleteSeries(ctx, "alice", rid)
	if err != nil {
		t.Fatalf("DeleteSeries() error = %v", err)
	}
	if n != 7 {
		t.Errorf("expected 7 records deleted, got %d", n)
	}
	if got := listWindow(t, e, "alice"); len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}

func TestEngineOwnershipOnSQLite(t *testing.T) {
	e, _ := newSQLiteEngine(t)
	ctx := context.Background()
	rid := createDailySeries(t, e, "alice")

	if got := listWindow(t, e, "bob"); len(got) != 0 {
		t.Errorf("expected bob to see nothing, got %d", len(got))
	}
	if _, err := e.DeleteSeries(ctx, "bob", rid); !errors.Is(err, recurrence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if got := listWindow(t, e, "alice"); len(got) != 5 {
		t.Errorf("expected alice's series intact, got %d", len(got))
	}
}

func TestEngineLegacyMasterOnSQLite(t *testing.T) {
	e, store := newSQLiteEngine(t)
	ctx := context.Background()

	until := ts(t, "2024-03-31T00:00:00Z")
	master := insertTestEvent(t, store, "alice", "Rent", func(r *recurrence.Record) {
		r.ID = "legacy-master"
		r.Start = ts(t, "2024-01-31T09:00:00Z")
		end := r.Start.Add(30 * time.Minute)
		r.End = &end
		r.IsRecurring = true
		r.Recurrence = &recurrence.Recurrence{Frequency: recurrence.FrequencyMonthly, RepeatUntil: &until}
	})

	events := listWindow(t, e, "alice")
	if len(events) != 2 {
		t.Fatalf("expected January and March occurrences, got %d", len(events))
	}
	if !events[1].Start.Equal(ts(t, "2024-03-31T09:00:00Z")) {
		t.Errorf("unexpected second occurrence %v", events[1].Start)
	}

	if err := e.DeleteEvent(ctx, "alice", master.ID); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if got := listWindow(t, e, "alice"); len(got) != 0 {
		t.Errorf("expected no events, got %d", len(got))
	}
}
