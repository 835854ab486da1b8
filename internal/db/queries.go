package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/selfieapp/selfie/internal/recurrence"
)

// querier is the part of *sql.DB and *sql.Tx the store needs.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// EventStore implements recurrence.Store on the events table. Every query is
// scoped to one owner.
type EventStore struct {
	q querier
	// db is nil when the store is bound to a transaction.
	db *sql.DB
}

var _ recurrence.Store = (*EventStore)(nil)

// Insert stores a record, assigning an id and timestamps when missing.
func (s *EventStore) Insert(ctx context.Context, rec *recurrence.Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}

	rule, err := encodeRecurrence(rec.Recurrence)
	if err != nil {
		return "", err
	}

	query := `INSERT INTO events (
		id, owner_id, title, start_at, end_at, duration_minutes, location,
		all_day, is_recurring, recurrence, recurrence_id, overrides_original_id,
		original_start, is_cancelled, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.q.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.Title, rec.Start.UTC(), nullTime(rec.End), rec.DurationMinutes, rec.Location,
		rec.AllDay, rec.IsRecurring, rule, rec.RecurrenceID, rec.OverridesOriginalID,
		nullTime(rec.OriginalStart), rec.IsCancelled, rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}

	return rec.ID, nil
}

// InsertMany stores all records or none of them.
func (s *EventStore) InsertMany(ctx context.Context, recs []*recurrence.Record) ([]string, error) {
	ids := make([]string, 0, len(recs))
	err := s.WithinTx(ctx, func(tx recurrence.Store) error {
		for _, rec := range recs {
			id, err := tx.Insert(ctx, rec)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FindByID returns one record of the owner.
func (s *EventStore) FindByID(ctx context.Context, ownerID, id string) (*recurrence.Record, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE owner_id = ? AND id = ?`

	rec, err := scanEvent(s.q.QueryRowContext(ctx, query, ownerID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event by ID: %w", err)
	}
	return rec, nil
}

// whereClause builds the WHERE clause for a filter. The owner is always
// constrained, so an empty owner matches nothing.
func whereClause(f recurrence.Filter) (string, []any) {
	clauses := []string{"owner_id = ?"}
	args := []any{f.OwnerID}

	if f.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, f.ID)
	}
	if f.RecurrenceID != "" {
		clauses = append(clauses, "recurrence_id = ?")
		args = append(args, f.RecurrenceID)
	}
	if f.OverridesOriginalID != "" {
		clauses = append(clauses, "overrides_original_id = ?")
		args = append(args, f.OverridesOriginalID)
	}
	if f.SeriesKey != "" {
		clauses = append(clauses, "(recurrence_id = ? OR id = ? OR overrides_original_id = ?)")
		args = append(args, f.SeriesKey, f.SeriesKey, f.SeriesKey)
	}
	if f.ExcludeCancelled {
		clauses = append(clauses, "is_cancelled = 0")
	}

	return strings.Join(clauses, " AND "), args
}

// FindMany returns the matching records in creation order.
func (s *EventStore) FindMany(ctx context.Context, f recurrence.Filter) ([]*recurrence.Record, error) {
	where, args := whereClause(f)
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + where + ` ORDER BY created_at, rowid`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var recs []*recurrence.Record
	for rows.Next() {
		rec, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return recs, nil
}

// UpdateByID applies a patch to one record of the owner.
func (s *EventStore) UpdateByID(ctx context.Context, ownerID, id string, p recurrence.Patch) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if p.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *p.Title)
	}
	if p.Start != nil {
		sets = append(sets, "start_at = ?")
		args = append(args, p.Start.UTC())
	}
	if p.End != nil {
		sets = append(sets, "end_at = ?")
		args = append(args, p.End.UTC())
	}
	if p.Location != nil {
		sets = append(sets, "location = ?")
		args = append(args, *p.Location)
	}
	if p.AllDay != nil {
		sets = append(sets, "all_day = ?")
		args = append(args, *p.AllDay)
	}
	if p.OriginalStart != nil {
		sets = append(sets, "original_start = ?")
		args = append(args, p.OriginalStart.UTC())
	}

	query := `UPDATE events SET ` + strings.Join(sets, ", ") + ` WHERE owner_id = ? AND id = ?`
	args = append(args, ownerID, id)

	result, err := s.q.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return nil
}

// DeleteByID removes one record of the owner and reports how many rows went.
func (s *EventStore) DeleteByID(ctx context.Context, ownerID, id string) (int64, error) {
	return s.DeleteMany(ctx, recurrence.Filter{OwnerID: ownerID, ID: id})
}

// DeleteMany removes the matching records and reports how many rows went.
func (s *EventStore) DeleteMany(ctx context.Context, f recurrence.Filter) (int64, error) {
	where, args := whereClause(f)

	result, err := s.q.ExecContext(ctx, `DELETE FROM events WHERE `+where, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete events: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// WithinTx runs fn in a transaction. Nested calls reuse the outer one.
func (s *EventStore) WithinTx(ctx context.Context, fn func(recurrence.Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(&EventStore{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
