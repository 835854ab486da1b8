package recurrence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/selfieapp/selfie/internal/metrics"
)

const (
	defaultHorizonMonths  = 3
	defaultMaxOccurrences = 1000
)

// Engine implements the event operations on top of a Store.
type Engine struct {
	store          Store
	logger         *logrus.Logger
	metrics        *metrics.Metrics
	loc            *time.Location
	horizonMonths  int
	maxOccurrences int
	now            func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the location used for calendar stepping and wall-clock edits.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithLegacyHorizon sets how many months ahead legacy masters are expanded
// when ListEvents gets no window end.
func WithLegacyHorizon(months int) Option {
	return func(e *Engine) {
		if months > 0 {
			e.horizonMonths = months
		}
	}
}

// WithMaxOccurrences caps the occurrences of one series.
func WithMaxOccurrences(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxOccurrences = n
		}
	}
}

// WithMetrics records operation outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an engine on store.
func NewEngine(store Store, logger *logrus.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	e := &Engine{
		store:          store,
		logger:         logger,
		loc:            time.UTC,
		horizonMonths:  defaultHorizonMonths,
		maxOccurrences: defaultMaxOccurrences,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Location returns the engine's calendar location.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// normalize stores instants in UTC at second precision so equality matches
// survive a round trip through the store.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func normalizePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := normalize(*t)
	return &v
}

func durationMinutes(d time.Duration) int {
	return int(d / time.Minute)
}

// ListEvents returns the displayable events of an owner: singles, series
// occurrences and overrides, with cancelled occurrences removed, sorted by
// start. A zero windowEnd bounds legacy expansion at now plus the horizon.
func (e *Engine) ListEvents(ctx context.Context, ownerID string, windowEnd time.Time) (events []*Record, err error) {
	defer func() { e.metrics.ObserveOperation("list", err) }()

	if ownerID == "" {
		return nil, validationError("owner is required")
	}
	if windowEnd.IsZero() {
		windowEnd = e.now().In(e.loc).AddDate(0, e.horizonMonths, 0)
	}

	records, err := e.store.FindMany(ctx, Filter{OwnerID: ownerID})
	if err != nil {
		return nil, persistenceError("list events", err)
	}
	return e.reconcile(records, windowEnd), nil
}

// CreateEvent stores a single event, or every occurrence of a recurring one
// under a fresh recurrenceId.
func (e *Engine) CreateEvent(ctx context.Context, ownerID string, in EventInput) (created []*Record, err error) {
	defer func() { e.metrics.ObserveOperation("create", err) }()

	if ownerID == "" {
		return nil, validationError("owner is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, validationError("title is required")
	}
	if in.Start == nil {
		return nil, validationError("start is required")
	}
	if in.IsRecurring {
		return e.createSeries(ctx, ownerID, in)
	}

	if in.End == nil {
		return nil, validationError("end is required")
	}
	start, end := normalize(*in.Start), normalize(*in.End)
	if end.Before(start) {
		return nil, validationError("end must not be before start")
	}

	now := normalize(e.now())
	rec := &Record{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		Title:           in.Title,
		Start:           start,
		End:             &end,
		DurationMinutes: durationMinutes(end.Sub(start)),
		Location:        in.Location,
		AllDay:          in.AllDay,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if _, err := e.store.Insert(ctx, rec); err != nil {
		return nil, persistenceError("insert event", err)
	}

	e.logger.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"event_id": rec.ID,
	}).Debug("Created single event")
	return []*Record{rec}, nil
}

func (e *Engine) createSeries(ctx context.Context, ownerID string, in EventInput) ([]*Record, error) {
	rule := in.Recurrence
	if rule == nil || rule.Frequency == "" {
		return nil, validationError("recurrence frequency is required")
	}
	if !rule.Frequency.IsValid() {
		return nil, validationError("unknown recurrence frequency %q", rule.Frequency)
	}
	if rule.RepeatUntil == nil {
		return nil, validationError("recurrence repeatUntil is required")
	}
	if rule.RepeatCount < 0 {
		return nil, validationError("recurrence repeatCount must not be negative")
	}

	start := normalize(*in.Start)
	var duration time.Duration
	switch {
	case in.End != nil:
		end := normalize(*in.End)
		if end.Before(start) {
			return nil, validationError("end must not be before start")
		}
		duration = end.Sub(start)
	case in.DurationMinutes > 0:
		duration = time.Duration(in.DurationMinutes) * time.Minute
	default:
		duration = DefaultDurationMinutes * time.Minute
	}

	stored := rule.Clone()
	stored.RepeatUntil = normalizePtr(rule.RepeatUntil)

	starts, truncated, err := occurrenceStarts(start, stored, time.Time{}, e.loc, e.maxOccurrences)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, validationError("series exceeds %d occurrences", e.maxOccurrences)
	}
	if len(starts) == 0 {
		return nil, validationError("repeatUntil is before start")
	}

	recurrenceID := uuid.New().String()
	now := normalize(e.now())
	recs := make([]*Record, 0, len(starts))
	for _, s := range starts {
		end := s.Add(duration)
		recs = append(recs, &Record{
			ID:              uuid.New().String(),
			OwnerID:         ownerID,
			Title:           in.Title,
			Start:           s,
			End:             &end,
			DurationMinutes: durationMinutes(duration),
			Location:        in.Location,
			AllDay:          in.AllDay,
			IsRecurring:     true,
			Recurrence:      stored.Clone(),
			RecurrenceID:    recurrenceID,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}

	err = e.store.WithinTx(ctx, func(tx Store) error {
		_, err := tx.InsertMany(ctx, recs)
		return err
	})
	if err != nil {
		return nil, persistenceError("insert series", err)
	}

	e.metrics.AddGenerated(len(recs))
	e.logger.WithFields(logrus.Fields{
		"owner_id":      ownerID,
		"recurrence_id": recurrenceID,
		"frequency":     stored.Frequency,
		"occurrences":   len(recs),
	}).Info("Created recurring series")
	return recs, nil
}

// UpdateEvent edits one record. When the target is a series occurrence and
// the caller names both the original and the series, a new override record is
// created instead and the series record is left untouched.
func (e *Engine) UpdateEvent(ctx context.Context, ownerID, id string, in UpdateInput) (updated *Record, err error) {
	defer func() { e.metrics.ObserveOperation("update", err) }()

	if id == "" {
		return nil, validationError("event id is required")
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, validationError("title must not be empty")
	}

	current, err := e.store.FindByID(ctx, ownerID, id)
	if err != nil {
		return nil, persistenceError("load event", err)
	}

	start := current.Start
	if in.Start != nil {
		start = normalize(*in.Start)
	}
	var end *time.Time
	switch {
	case in.End != nil:
		end = normalizePtr(in.End)
	case in.Start != nil:
		v := start.Add(current.Duration())
		end = &v
	default:
		end = cloneTime(current.End)
	}
	if end != nil && end.Before(start) {
		return nil, validationError("end must not be before start")
	}

	if current.IsRecurring && in.OverridesOriginalID != "" && in.RecurrenceID != "" {
		return e.insertOverride(ctx, current, in, start, end)
	}

	patch := Patch{
		Title:    in.Title,
		Location: in.Location,
		AllDay:   in.AllDay,
	}
	if in.Start != nil {
		patch.Start = &start
	}
	if in.Start != nil || in.End != nil {
		patch.End = end
	}
	if err := e.store.UpdateByID(ctx, ownerID, id, patch); err != nil {
		return nil, persistenceError("update event", err)
	}

	updated, err = e.store.FindByID(ctx, ownerID, id)
	if err != nil {
		return nil, persistenceError("reload event", err)
	}
	return updated, nil
}

func (e *Engine) insertOverride(ctx context.Context, current *Record, in UpdateInput, start time.Time, end *time.Time) (*Record, error) {
	target := current.Start
	if in.OriginalStart != nil {
		target = normalize(*in.OriginalStart)
	}

	now := normalize(e.now())
	ov := current.Clone()
	ov.ID = uuid.New().String()
	ov.Start = start
	ov.End = end
	ov.IsRecurring = false
	ov.Recurrence = nil
	ov.OverridesOriginalID = current.ID
	ov.RecurrenceID = in.RecurrenceID
	ov.OriginalStart = &target
	ov.IsCancelled = false
	ov.CreatedAt = now
	ov.UpdatedAt = now
	if in.Title != nil {
		ov.Title = *in.Title
	}
	if in.Location != nil {
		ov.Location = *in.Location
	}
	if in.AllDay != nil {
		ov.AllDay = *in.AllDay
	}

	if _, err := e.store.Insert(ctx, ov); err != nil {
		return nil, persistenceError("insert override", err)
	}

	e.logger.WithFields(logrus.Fields{
		"owner_id":      ov.OwnerID,
		"override_id":   ov.ID,
		"overrides":     current.ID,
		"recurrence_id": ov.RecurrenceID,
	}).Info("Created occurrence override")
	return ov, nil
}

// representative returns the record an occurrence-level change copies from:
// the earliest live series record of the group, else its earliest override.
func representative(ctx context.Context, store Store, ownerID, seriesKey string) (*Record, error) {
	recs, err := store.FindMany(ctx, Filter{
		OwnerID:          ownerID,
		SeriesKey:        seriesKey,
		ExcludeCancelled: true,
	})
	if err != nil {
		return nil, err
	}

	var fallback *Record
	for _, r := range recs {
		switch r.Kind() {
		case KindSeries:
			if fallback == nil || fallback.Kind() != KindSeries || r.Start.Before(fallback.Start) {
				fallback = r
			}
		case KindOverride:
			if fallback == nil || (fallback.Kind() == KindOverride && r.Start.Before(fallback.Start)) {
				fallback = r
			}
		}
	}
	if fallback == nil {
		return nil, fmt.Errorf("%w: series %s", ErrNotFound, seriesKey)
	}
	return fallback, nil
}

// occurrenceAt returns the stored occurrence of a materialized series at
// target, so overrides and tombstones point at the record they replace.
func (e *Engine) occurrenceAt(recs []*Record, target time.Time) *Record {
	for _, r := range recs {
		if r.Kind() == KindSeries && r.Mode() == SeriesMaterialized && e.sameInstant(r, r.Start, target) {
			return r
		}
	}
	return nil
}

// UpdateOccurrence replaces the occurrence of a series at overrideDate with an
// override built from the series representative and in.
func (e *Engine) UpdateOccurrence(ctx context.Context, ownerID, recurrenceID string, overrideDate time.Time, in OccurrenceUpdate) (override *Record, err error) {
	defer func() { e.metrics.ObserveOperation("update_occurrence", err) }()

	if recurrenceID == "" {
		return nil, validationError("recurrence id is required")
	}
	if overrideDate.IsZero() {
		return nil, validationError("overrideDate is required")
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, validationError("title must not be empty")
	}
	target := normalize(overrideDate)

	err = e.store.WithinTx(ctx, func(tx Store) error {
		rep, err := representative(ctx, tx, ownerID, recurrenceID)
		if err != nil {
			return err
		}

		start := target
		if in.Start != nil {
			start = normalize(*in.Start)
		}
		end := start.Add(rep.Duration())
		if in.End != nil {
			end = normalize(*in.End)
		}
		if end.Before(start) {
			return validationError("end must not be before start")
		}

		existing, err := tx.FindMany(ctx, Filter{
			OwnerID:          ownerID,
			SeriesKey:        recurrenceID,
			ExcludeCancelled: true,
		})
		if err != nil {
			return err
		}
		for _, r := range existing {
			if r.Kind() == KindOverride && r.TargetInstant().Equal(target) {
				if _, err := tx.DeleteByID(ctx, ownerID, r.ID); err != nil {
					return err
				}
			}
		}

		origin := recurrenceID
		if occ := e.occurrenceAt(existing, target); occ != nil {
			origin = occ.ID
		}

		now := normalize(e.now())
		ov := rep.Clone()
		ov.ID = uuid.New().String()
		ov.Start = start
		ov.End = &end
		ov.DurationMinutes = durationMinutes(end.Sub(start))
		ov.IsRecurring = false
		ov.Recurrence = nil
		ov.OverridesOriginalID = origin
		ov.RecurrenceID = recurrenceID
		ov.OriginalStart = &target
		ov.IsCancelled = false
		ov.CreatedAt = now
		ov.UpdatedAt = now
		if in.Title != nil {
			ov.Title = *in.Title
		}
		if in.Location != nil {
			ov.Location = *in.Location
		}
		if in.AllDay != nil {
			ov.AllDay = *in.AllDay
		}

		if _, err := tx.Insert(ctx, ov); err != nil {
			return err
		}
		override = ov
		return nil
	})
	if err != nil {
		return nil, persistenceError("update occurrence", err)
	}

	e.logger.WithFields(logrus.Fields{
		"owner_id":      ownerID,
		"recurrence_id": recurrenceID,
		"original":      target.Format(time.RFC3339),
	}).Info("Updated single occurrence")
	return override, nil
}

// atClock moves t to the given wall-clock time on the same calendar day in loc.
func atClock(t time.Time, c ClockTime, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, c.Hours, c.Minutes, 0, 0, loc).UTC()
}

// UpdateSeries applies a title, location, all-day and time-of-day edit to
// every live record of a series. Dates are kept; overrides and tombstones are
// re-keyed to the new time so they keep matching their occurrence.
func (e *Engine) UpdateSeries(ctx context.Context, ownerID, recurrenceID string, in SeriesUpdate) (updated []*Record, err error) {
	defer func() { e.metrics.ObserveOperation("update_series", err) }()

	if recurrenceID == "" {
		return nil, validationError("recurrence id is required")
	}
	if !in.StartTime.valid() {
		return nil, validationError("startTime %02d:%02d is not a valid time of day", in.StartTime.Hours, in.StartTime.Minutes)
	}
	if !in.EndTime.valid() {
		return nil, validationError("endTime %02d:%02d is not a valid time of day", in.EndTime.Hours, in.EndTime.Minutes)
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, validationError("title must not be empty")
	}

	err = e.store.WithinTx(ctx, func(tx Store) error {
		recs, err := tx.FindMany(ctx, Filter{OwnerID: ownerID, SeriesKey: recurrenceID})
		if err != nil {
			return err
		}

		live := 0
		for _, r := range recs {
			if !r.IsCancelled {
				live++
			}
		}
		if live == 0 {
			return fmt.Errorf("%w: series %s", ErrNotFound, recurrenceID)
		}

		for _, r := range recs {
			patch, err := e.seriesPatch(r, in)
			if err != nil {
				return err
			}
			if err := tx.UpdateByID(ctx, ownerID, r.ID, patch); err != nil {
				return err
			}
		}

		updated, err = tx.FindMany(ctx, Filter{
			OwnerID:          ownerID,
			SeriesKey:        recurrenceID,
			ExcludeCancelled: true,
		})
		return err
	})
	if err != nil {
		return nil, persistenceError("update series", err)
	}

	e.logger.WithFields(logrus.Fields{
		"owner_id":      ownerID,
		"recurrence_id": recurrenceID,
		"records":       len(updated),
	}).Info("Updated series")
	return updated, nil
}

func (e *Engine) seriesPatch(r *Record, in SeriesUpdate) (Patch, error) {
	start := atClock(r.Start, in.StartTime, e.loc)

	if r.IsCancelled {
		target := atClock(r.TargetInstant(), in.StartTime, e.loc)
		end := start.Add(r.Duration())
		return Patch{Start: &start, End: &end, OriginalStart: &target}, nil
	}

	endDay := r.Start
	if r.End != nil {
		endDay = *r.End
	}
	end := atClock(endDay, in.EndTime, e.loc)
	if end.Before(start) {
		return Patch{}, validationError("endTime must not be before startTime")
	}

	patch := Patch{
		Title:    in.Title,
		Location: in.Location,
		AllDay:   in.AllDay,
		Start:    &start,
		End:      &end,
	}
	if r.OriginalStart != nil {
		target := atClock(*r.OriginalStart, in.StartTime, e.loc)
		patch.OriginalStart = &target
	}
	return patch, nil
}

// CancelOccurrence writes a tombstone hiding the occurrence of a series at date.
func (e *Engine) CancelOccurrence(ctx context.Context, ownerID, recurrenceID string, date time.Time) (tombstone *Record, err error) {
	defer func() { e.metrics.ObserveOperation("cancel_occurrence", err) }()

	if recurrenceID == "" {
		return nil, validationError("recurrence id is required")
	}
	if date.IsZero() {
		return nil, validationError("date is required")
	}
	target := normalize(date)

	rep, err := representative(ctx, e.store, ownerID, recurrenceID)
	if err != nil {
		return nil, persistenceError("load series", err)
	}
	recs, err := e.store.FindMany(ctx, Filter{OwnerID: ownerID, SeriesKey: recurrenceID, ExcludeCancelled: true})
	if err != nil {
		return nil, persistenceError("load series", err)
	}
	origin := rep.ID
	if occ := e.occurrenceAt(recs, target); occ != nil {
		origin = occ.ID
	}

	end := target.Add(rep.Duration())
	now := normalize(e.now())
	tombstone = &Record{
		ID:                  uuid.New().String(),
		OwnerID:             ownerID,
		Title:               rep.Title,
		Start:               target,
		End:                 &end,
		DurationMinutes:     rep.DurationMinutes,
		Location:            rep.Location,
		AllDay:              rep.AllDay,
		RecurrenceID:        recurrenceID,
		OverridesOriginalID: origin,
		OriginalStart:       &target,
		IsCancelled:         true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if _, err := e.store.Insert(ctx, tombstone); err != nil {
		return nil, persistenceError("insert cancellation", err)
	}

	e.logger.WithFields(logrus.Fields{
		"owner_id":      ownerID,
		"recurrence_id": recurrenceID,
		"date":          target.Format(time.RFC3339),
	}).Info("Cancelled occurrence")
	return tombstone, nil
}

// DeleteSeries removes every record of a series, including legacy masters,
// their overrides and all tombstones. It returns the number deleted.
func (e *Engine) DeleteSeries(ctx context.Context, ownerID, recurrenceID string) (deleted int64, err error) {
	defer func() { e.metrics.ObserveOperation("delete_series", err) }()

	if recurrenceID == "" {
		return 0, validationError("recurrence id is required")
	}

	deleted, err = e.store.DeleteMany(ctx, Filter{OwnerID: ownerID, SeriesKey: recurrenceID})
	if err != nil {
		return 0, persistenceError("delete series", err)
	}
	if deleted == 0 {
		return 0, fmt.Errorf("%w: series %s", ErrNotFound, recurrenceID)
	}

	e.logger.WithFields(logrus.Fields{
		"owner_id":      ownerID,
		"recurrence_id": recurrenceID,
		"deleted":       deleted,
	}).Info("Deleted series")
	return deleted, nil
}

// DeleteEvent removes one record. Deleting a series-flagged record also removes
// the overrides and tombstones that point at it; a legacy master takes every
// record of its series with it.
func (e *Engine) DeleteEvent(ctx context.Context, ownerID, id string) (err error) {
	defer func() { e.metrics.ObserveOperation("delete", err) }()

	if id == "" {
		return validationError("event id is required")
	}

	err = e.store.WithinTx(ctx, func(tx Store) error {
		rec, err := tx.FindByID(ctx, ownerID, id)
		if err != nil {
			return err
		}
		if _, err := tx.DeleteByID(ctx, ownerID, id); err != nil {
			return err
		}
		if rec.Kind() != KindSeries {
			return nil
		}

		if _, err := tx.DeleteMany(ctx, Filter{OwnerID: ownerID, OverridesOriginalID: id}); err != nil {
			return err
		}
		if rec.Mode() == SeriesLegacyMaster {
			_, err = tx.DeleteMany(ctx, Filter{OwnerID: ownerID, RecurrenceID: rec.SeriesKey()})
		}
		return err
	})
	if err != nil {
		return persistenceError("delete event", err)
	}

	e.logger.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"event_id": id,
	}).Info("Deleted event")
	return nil
}
