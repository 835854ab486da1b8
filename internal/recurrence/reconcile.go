package recurrence

import (
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// reconcile turns the stored records of one owner into the displayable list.
func (e *Engine) reconcile(records []*Record, windowEnd time.Time) []*Record {
	var singles, series, overrides, cancellations []*Record
	for _, r := range records {
		switch r.Kind() {
		case KindSingle:
			singles = append(singles, r)
		case KindSeries:
			series = append(series, r)
		case KindOverride:
			overrides = append(overrides, r)
		case KindCancellation:
			cancellations = append(cancellations, r)
		}
	}

	union := make([]*Record, 0, len(records))
	union = append(union, singles...)

	for _, s := range series {
		if s.Mode() == SeriesMaterialized {
			union = append(union, s)
			continue
		}

		occurrences, truncated, err := expandLegacyMaster(s, windowEnd, e.loc, e.maxOccurrences)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"event_id": s.ID,
				"owner_id": s.OwnerID,
			}).Warnf("Failed to expand legacy series, showing master only: %v", err)
			union = append(union, s)
			continue
		}
		if truncated {
			e.metrics.IncTruncated()
			e.logger.WithFields(logrus.Fields{
				"event_id": s.ID,
				"cap":      e.maxOccurrences,
			}).Warn("Legacy series expansion truncated")
		}
		e.metrics.AddGenerated(len(occurrences))
		union = append(union, occurrences...)
	}

	// later overrides for the same occurrence win
	sort.SliceStable(overrides, func(i, j int) bool {
		return overrides[i].CreatedAt.Before(overrides[j].CreatedAt)
	})
	for _, o := range overrides {
		key, target := o.SeriesKey(), o.TargetInstant()
		replaced := false
		for i, entry := range union {
			if entry.SeriesKey() == key && e.sameInstant(entry, entry.TargetInstant(), target) {
				union[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			union = append(union, o)
		}
	}

	for _, c := range cancellations {
		key, target := c.SeriesKey(), c.TargetInstant()
		kept := union[:0]
		for _, entry := range union {
			if entry.SeriesKey() == key &&
				(e.sameInstant(entry, entry.Start, target) || e.sameInstant(entry, entry.TargetInstant(), target)) {
				continue
			}
			kept = append(kept, entry)
		}
		union = kept
	}

	out := make([]*Record, 0, len(union))
	for _, entry := range union {
		if entry.IsCancelled {
			continue
		}
		out = append(out, entry)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// sameInstant compares an entry's instant with a target. All-day entries
// ignore the time of day.
func (e *Engine) sameInstant(entry *Record, instant, target time.Time) bool {
	if entry.AllDay {
		y1, m1, d1 := instant.In(e.loc).Date()
		y2, m2, d2 := target.In(e.loc).Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	}
	return instant.Equal(target)
}
