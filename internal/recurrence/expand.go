package recurrence

import (
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var weekdays = map[string]rrule.Weekday{
	"mo": rrule.MO, "mon": rrule.MO, "monday": rrule.MO, "1": rrule.MO,
	"tu": rrule.TU, "tue": rrule.TU, "tuesday": rrule.TU, "2": rrule.TU,
	"we": rrule.WE, "wed": rrule.WE, "wednesday": rrule.WE, "3": rrule.WE,
	"th": rrule.TH, "thu": rrule.TH, "thursday": rrule.TH, "4": rrule.TH,
	"fr": rrule.FR, "fri": rrule.FR, "friday": rrule.FR, "5": rrule.FR,
	"sa": rrule.SA, "sat": rrule.SA, "saturday": rrule.SA, "6": rrule.SA,
	"su": rrule.SU, "sun": rrule.SU, "sunday": rrule.SU, "0": rrule.SU, "7": rrule.SU,
}

// parseWeekdays accepts English names, two-letter RFC 5545 codes and
// JavaScript getDay() numbers (0 = Sunday).
func parseWeekdays(days []string) ([]rrule.Weekday, error) {
	out := make([]rrule.Weekday, 0, len(days))
	for _, d := range days {
		wd, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, validationError("unknown day of week %q", d)
		}
		out = append(out, wd)
	}
	return out, nil
}

func hasWeekday(days []rrule.Weekday, wd time.Weekday) bool {
	// rrule counts from Monday, time from Sunday
	want := (int(wd) + 6) % 7
	for _, d := range days {
		if d.Day() == want {
			return true
		}
	}
	return false
}

// endOfDay returns the last second of t's calendar day in loc.
func endOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, 0, loc)
}

// seriesUntil returns the inclusive upper bound of a series: the end of the
// repeatUntil day, clipped to windowEnd when one is given.
func seriesUntil(rule *Recurrence, windowEnd time.Time, loc *time.Location) time.Time {
	until := windowEnd
	if rule != nil && rule.RepeatUntil != nil {
		ruleEnd := endOfDay(*rule.RepeatUntil, loc)
		if until.IsZero() || ruleEnd.Before(until) {
			until = ruleEnd
		}
	}
	return until
}

// occurrenceStarts steps a series from start and returns every occurrence
// start up to the series bound, in UTC. The boolean reports whether limit
// cut the expansion short.
func occurrenceStarts(start time.Time, rule *Recurrence, windowEnd time.Time, loc *time.Location, limit int) ([]time.Time, bool, error) {
	until := seriesUntil(rule, windowEnd, loc)
	if !until.IsZero() && start.After(until) {
		return nil, false, nil
	}

	var freq rrule.Frequency
	switch rule.Frequency {
	case FrequencyDaily:
		freq = rrule.DAILY
	case FrequencyWeekly:
		freq = rrule.WEEKLY
	case FrequencyMonthly:
		freq = rrule.MONTHLY
	default:
		// custom and unknown frequencies never step past the first occurrence
		return []time.Time{start.UTC()}, false, nil
	}

	opts := rrule.ROption{
		Freq:    freq,
		Dtstart: start.In(loc),
		Count:   rule.RepeatCount,
	}
	if !until.IsZero() {
		opts.Until = until.In(loc)
	}
	var out []time.Time
	if freq == rrule.WEEKLY && len(rule.DaysOfWeek) > 0 {
		days, err := parseWeekdays(rule.DaysOfWeek)
		if err != nil {
			return nil, false, err
		}
		opts.Byweekday = days

		// the series always opens on its start, even off the listed days
		if !hasWeekday(days, start.In(loc).Weekday()) {
			if opts.Count == 1 {
				return []time.Time{start.UTC()}, false, nil
			}
			if opts.Count > 1 {
				opts.Count--
			}
			out = append(out, start.UTC())
		}
	}

	r, err := rrule.NewRRule(opts)
	if err != nil {
		return nil, false, validationError("invalid recurrence rule: %v", err)
	}

	next := r.Iterator()
	for {
		t, ok := next()
		if !ok {
			return out, false, nil
		}
		if limit > 0 && len(out) == limit {
			return out, true, nil
		}
		out = append(out, t.UTC())
	}
}

// expandLegacyMaster generates the in-memory occurrences of a legacy master.
func expandLegacyMaster(master *Record, windowEnd time.Time, loc *time.Location, limit int) ([]*Record, bool, error) {
	starts, truncated, err := occurrenceStarts(master.Start, master.Recurrence, windowEnd, loc, limit)
	if err != nil {
		return nil, false, err
	}

	duration := master.Duration()
	seriesKey := master.SeriesKey()
	out := make([]*Record, 0, len(starts))
	for _, start := range starts {
		occ := master.Clone()
		// the master stays addressable as its own first occurrence
		if !start.Equal(master.Start) {
			occ.ID = master.ID + "-" + start.Format("20060102T150405Z")
		}
		occ.Start = start
		end := start.Add(duration)
		occ.End = &end
		occ.RecurrenceID = seriesKey
		out = append(out, occ)
	}
	return out, truncated, nil
}
