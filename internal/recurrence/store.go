package recurrence

import (
	"context"
	"time"
)

// Filter selects records of one owner. Empty fields do not constrain.
type Filter struct {
	OwnerID             string
	ID                  string
	RecurrenceID        string
	OverridesOriginalID string
	// SeriesKey matches records whose recurrenceId, id or overridesOriginalId
	// equals the key, which covers both materialized and legacy series.
	SeriesKey        string
	ExcludeCancelled bool
}

// Patch lists the fields UpdateByID may change. Nil means unchanged.
type Patch struct {
	Title         *string
	Start         *time.Time
	End           *time.Time
	Location      *string
	AllDay        *bool
	OriginalStart *time.Time
}

// Store is the record store the engine runs on. FindByID returns ErrNotFound
// when the record does not exist for the owner.
type Store interface {
	Insert(ctx context.Context, rec *Record) (string, error)
	InsertMany(ctx context.Context, recs []*Record) ([]string, error)
	FindByID(ctx context.Context, ownerID, id string) (*Record, error)
	FindMany(ctx context.Context, filter Filter) ([]*Record, error)
	UpdateByID(ctx context.Context, ownerID, id string, patch Patch) error
	DeleteByID(ctx context.Context, ownerID, id string) (int64, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
	// WithinTx runs fn against a store bound to one transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(Store) error) error
}
