package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/selfieapp/selfie/internal/recurrence"
)

// eventColumns is the column list shared by every SELECT on events.
const eventColumns = `id, owner_id, title, start_at, end_at, duration_minutes, location,
	all_day, is_recurring, recurrence, recurrence_id, overrides_original_id,
	original_start, is_cancelled, created_at, updated_at`

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one events row into a record.
func scanEvent(s scanner) (*recurrence.Record, error) {
	var (
		rec           recurrence.Record
		endAt         sql.NullTime
		rule          sql.NullString
		originalStart sql.NullTime
	)

	err := s.Scan(
		&rec.ID, &rec.OwnerID, &rec.Title, &rec.Start, &endAt, &rec.DurationMinutes, &rec.Location,
		&rec.AllDay, &rec.IsRecurring, &rule, &rec.RecurrenceID, &rec.OverridesOriginalID,
		&originalStart, &rec.IsCancelled, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Start = rec.Start.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	if endAt.Valid {
		end := endAt.Time.UTC()
		rec.End = &end
	}
	if originalStart.Valid {
		orig := originalStart.Time.UTC()
		rec.OriginalStart = &orig
	}
	if rule.Valid && rule.String != "" {
		var r recurrence.Recurrence
		if err := json.Unmarshal([]byte(rule.String), &r); err != nil {
			return nil, fmt.Errorf("failed to decode recurrence of %s: %w", rec.ID, err)
		}
		rec.Recurrence = &r
	}

	return &rec, nil
}

// encodeRecurrence returns the JSON column value for a rule, or NULL.
func encodeRecurrence(r *recurrence.Recurrence) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode recurrence: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
