package recurrence

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var errInjected = errors.New("injected store failure")

// memStore is an in-memory Store used by the engine tests. Records are kept
// in insertion order, like the SQLite store orders by creation.
type memStore struct {
	mu      sync.Mutex
	records []*Record

	// failInsertAt makes the n-th inserted record (1-based) fail.
	failInsertAt int
	inserted     int
}

func newMemStore() *memStore {
	return &memStore{}
}

func (m *memStore) matches(r *Record, f Filter) bool {
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.ID != "" && r.ID != f.ID {
		return false
	}
	if f.RecurrenceID != "" && r.RecurrenceID != f.RecurrenceID {
		return false
	}
	if f.OverridesOriginalID != "" && r.OverridesOriginalID != f.OverridesOriginalID {
		return false
	}
	if f.SeriesKey != "" && r.RecurrenceID != f.SeriesKey && r.ID != f.SeriesKey && r.OverridesOriginalID != f.SeriesKey {
		return false
	}
	if f.ExcludeCancelled && r.IsCancelled {
		return false
	}
	return true
}

func (m *memStore) insertLocked(rec *Record) error {
	m.inserted++
	if m.failInsertAt > 0 && m.inserted == m.failInsertAt {
		return errInjected
	}
	m.records = append(m.records, rec.Clone())
	return nil
}

func (m *memStore) Insert(ctx context.Context, rec *Record) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.insertLocked(rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (m *memStore) InsertMany(ctx context.Context, recs []*Record) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if err := m.insertLocked(rec); err != nil {
			return nil, err
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (m *memStore) FindByID(ctx context.Context, ownerID, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id && r.OwnerID == ownerID {
			return r.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *memStore) FindMany(ctx context.Context, f Filter) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, r := range m.records {
		if m.matches(r, f) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *memStore) UpdateByID(ctx context.Context, ownerID, id string, p Patch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID != id || r.OwnerID != ownerID {
			continue
		}
		if p.Title != nil {
			r.Title = *p.Title
		}
		if p.Start != nil {
			r.Start = *p.Start
		}
		if p.End != nil {
			r.End = cloneTime(p.End)
		}
		if p.Location != nil {
			r.Location = *p.Location
		}
		if p.AllDay != nil {
			r.AllDay = *p.AllDay
		}
		if p.OriginalStart != nil {
			r.OriginalStart = cloneTime(p.OriginalStart)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (m *memStore) DeleteByID(ctx context.Context, ownerID, id string) (int64, error) {
	return m.DeleteMany(ctx, Filter{OwnerID: ownerID, ID: id})
}

func (m *memStore) DeleteMany(ctx context.Context, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	var n int64
	for _, r := range m.records {
		if m.matches(r, f) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return n, nil
}

func (m *memStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	snapshot := make([]*Record, len(m.records))
	for i, r := range m.records {
		snapshot[i] = r.Clone()
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.records = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// put stores a record directly, bypassing the engine.
func (m *memStore) put(rec *Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec.Clone())
}
