package recurrence

import (
	"time"
)

// DefaultDurationMinutes is used when a record has neither an end nor a duration.
const DefaultDurationMinutes = 60

// Frequency is the step of a recurrence rule.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyCustom  Frequency = "custom"
)

// ValidFrequencies contains all accepted frequency values.
var ValidFrequencies = map[Frequency]bool{
	FrequencyDaily:   true,
	FrequencyWeekly:  true,
	FrequencyMonthly: true,
	FrequencyCustom:  true,
}

// IsValid returns true if the frequency is a known value.
func (f Frequency) IsValid() bool {
	return ValidFrequencies[f]
}

// Recurrence describes how a series repeats.
type Recurrence struct {
	Frequency   Frequency  `json:"frequency"`
	DaysOfWeek  []string   `json:"daysOfWeek,omitempty"`
	RepeatUntil *time.Time `json:"repeatUntil,omitempty"`
	RepeatCount int        `json:"repeatCount,omitempty"`
}

// Clone returns a deep copy of the rule.
func (r *Recurrence) Clone() *Recurrence {
	if r == nil {
		return nil
	}
	out := *r
	if r.DaysOfWeek != nil {
		out.DaysOfWeek = append([]string(nil), r.DaysOfWeek...)
	}
	if r.RepeatUntil != nil {
		until := *r.RepeatUntil
		out.RepeatUntil = &until
	}
	return &out
}

// Record is the flat persisted shape shared by single events, series
// occurrences, overrides and cancellation tombstones.
type Record struct {
	ID                  string      `json:"id"`
	OwnerID             string      `json:"ownerId"`
	Title               string      `json:"title"`
	Start               time.Time   `json:"start"`
	End                 *time.Time  `json:"end,omitempty"`
	DurationMinutes     int         `json:"durationMinutes"`
	Location            string      `json:"location"`
	AllDay              bool        `json:"allDay"`
	IsRecurring         bool        `json:"isRecurring"`
	Recurrence          *Recurrence `json:"recurrence,omitempty"`
	RecurrenceID        string      `json:"recurrenceId,omitempty"`
	OverridesOriginalID string      `json:"overridesOriginalId,omitempty"`
	OriginalStart       *time.Time  `json:"originalStart,omitempty"`
	IsCancelled         bool        `json:"isCancelled,omitempty"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	out := *r
	out.End = cloneTime(r.End)
	out.OriginalStart = cloneTime(r.OriginalStart)
	out.Recurrence = r.Recurrence.Clone()
	return &out
}

// Kind is the role a record plays in the recurrence model.
type Kind int

const (
	KindSingle Kind = iota
	KindSeries
	KindOverride
	KindCancellation
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindSeries:
		return "series"
	case KindOverride:
		return "override"
	case KindCancellation:
		return "cancellation"
	default:
		return "unknown"
	}
}

// Kind classifies the record. Tombstones win over every other flag.
func (r *Record) Kind() Kind {
	switch {
	case r.IsCancelled:
		return KindCancellation
	case r.OverridesOriginalID != "":
		return KindOverride
	case r.IsRecurring:
		return KindSeries
	default:
		return KindSingle
	}
}

// SeriesKey returns the id grouping the record with the rest of its series.
// Legacy overrides carry no recurrenceId and point at their master instead.
func (r *Record) SeriesKey() string {
	switch {
	case r.RecurrenceID != "":
		return r.RecurrenceID
	case r.OverridesOriginalID != "":
		return r.OverridesOriginalID
	case r.IsRecurring:
		return r.ID
	default:
		return ""
	}
}

// TargetInstant is the occurrence instant an override or tombstone replaces.
// Records written before originalStart existed fall back to their start.
func (r *Record) TargetInstant() time.Time {
	if r.OriginalStart != nil {
		return *r.OriginalStart
	}
	return r.Start
}

// Duration returns the length of one occurrence.
func (r *Record) Duration() time.Duration {
	if r.End != nil && !r.End.Before(r.Start) {
		return r.End.Sub(r.Start)
	}
	if r.DurationMinutes > 0 {
		return time.Duration(r.DurationMinutes) * time.Minute
	}
	return DefaultDurationMinutes * time.Minute
}

// SeriesMode tells how a series-flagged record yields its occurrences.
type SeriesMode int

const (
	// SeriesMaterialized records are themselves one stored occurrence.
	SeriesMaterialized SeriesMode = iota
	// SeriesLegacyMaster records generate their occurrences on read.
	SeriesLegacyMaster
)

// Mode resolves how a series-flagged record yields occurrences. Materialized
// occurrences share a generated recurrenceId; legacy masters carry none, or
// their own id.
func (r *Record) Mode() SeriesMode {
	if r.RecurrenceID == "" || r.RecurrenceID == r.ID {
		return SeriesLegacyMaster
	}
	return SeriesMaterialized
}

// ClockTime is a wall-clock time of day.
type ClockTime struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

func (c ClockTime) valid() bool {
	return c.Hours >= 0 && c.Hours <= 23 && c.Minutes >= 0 && c.Minutes <= 59
}

// EventInput holds the fields accepted when creating an event.
type EventInput struct {
	Title           string
	Start           *time.Time
	End             *time.Time
	DurationMinutes int
	Location        string
	AllDay          bool
	IsRecurring     bool
	Recurrence      *Recurrence
}

// UpdateInput holds the fields accepted by UpdateEvent. Nil means unchanged.
type UpdateInput struct {
	Title               *string
	Start               *time.Time
	End                 *time.Time
	Location            *string
	AllDay              *bool
	OverridesOriginalID string
	RecurrenceID        string
	OriginalStart       *time.Time
}

// OccurrenceUpdate holds the fields of an override created by UpdateOccurrence.
type OccurrenceUpdate struct {
	Title    *string
	Start    *time.Time
	End      *time.Time
	Location *string
	AllDay   *bool
}

// SeriesUpdate holds the series-wide edit applied by UpdateSeries.
type SeriesUpdate struct {
	Title     *string
	Location  *string
	AllDay    *bool
	StartTime ClockTime
	EndTime   ClockTime
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
