package ics

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	"github.com/selfieapp/selfie/internal/recurrence"
)

const (
	// ProductID identifies the service in exported calendars.
	ProductID = "-//Selfie//Student Calendar//EN"

	uidDomain = "selfie"

	// importHorizon bounds imported rules that have neither UNTIL nor COUNT.
	importHorizon = 1 // year

	defaultTitle = "Untitled event"
)

var (
	ErrInvalidCalendar = errors.New("invalid iCalendar data")
)

// Export writes the displayed events as one VCALENDAR. Every entry becomes a
// standalone VEVENT; series members carry RELATED-TO with their series id and
// overrides additionally carry RECURRENCE-ID with the instant they replace.
func Export(w io.Writer, events []*recurrence.Record, loc *time.Location, stamp time.Time) error {
	if loc == nil {
		loc = time.UTC
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, ProductID)

	for _, ev := range events {
		cal.Children = append(cal.Children, exportEvent(ev, loc, stamp).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func exportEvent(ev *recurrence.Record, loc *time.Location, stamp time.Time) *ical.Event {
	out := ical.NewEvent()
	out.Props.SetText(ical.PropUID, ev.ID+"@"+uidDomain)
	out.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	out.Props.SetText(ical.PropSummary, ev.Title)
	if ev.Location != "" {
		out.Props.SetText(ical.PropLocation, ev.Location)
	}

	end := ev.Start.Add(ev.Duration())
	if ev.AllDay {
		startDay := dateIn(ev.Start, loc)
		endDay := dateIn(end, loc)
		// DTEND of a DATE event is exclusive
		if !endDay.After(startDay) || !end.Equal(endDay) {
			endDay = endDay.AddDate(0, 0, 1)
		}
		if !endDay.After(startDay) {
			endDay = startDay.AddDate(0, 0, 1)
		}
		out.Props.SetDate(ical.PropDateTimeStart, startDay)
		out.Props.SetDate(ical.PropDateTimeEnd, endDay)
	} else {
		out.Props.SetDateTime(ical.PropDateTimeStart, ev.Start.UTC())
		out.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())
	}

	if key := ev.SeriesKey(); key != "" {
		out.Props.SetText(ical.PropRelatedTo, key+"@"+uidDomain)
	}
	if ev.Kind() == recurrence.KindOverride {
		target := ev.TargetInstant()
		if ev.AllDay {
			out.Props.SetDate(ical.PropRecurrenceID, dateIn(target, loc))
		} else {
			out.Props.SetDateTime(ical.PropRecurrenceID, target.UTC())
		}
	}

	return out
}

// dateIn returns midnight of t's calendar day in loc.
func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Result is the outcome of decoding an iCalendar stream.
type Result struct {
	Events []recurrence.EventInput
	// Skipped counts cancelled VEVENTs and overrides of external series.
	Skipped int
}

// Import decodes every VCALENDAR in r into create inputs. Floating times and
// DATE values are read in loc.
func Import(r io.Reader, loc *time.Location) (*Result, error) {
	if loc == nil {
		loc = time.UTC
	}

	res := &Result{}
	dec := ical.NewDecoder(r)
	calendars := 0
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCalendar, err)
		}
		calendars++

		for _, ev := range cal.Events() {
			if ev.Props.Get(ical.PropRecurrenceID) != nil {
				res.Skipped++
				continue
			}
			if status, _ := ev.Props.Text(ical.PropStatus); strings.EqualFold(status, "CANCELLED") {
				res.Skipped++
				continue
			}

			in, err := importEvent(ev, loc)
			if err != nil {
				uid, _ := ev.Props.Text(ical.PropUID)
				return nil, fmt.Errorf("%w: event %q: %w", ErrInvalidCalendar, uid, err)
			}
			res.Events = append(res.Events, in)
		}
	}

	if calendars == 0 {
		return nil, fmt.Errorf("%w: no VCALENDAR found", ErrInvalidCalendar)
	}
	return res, nil
}

func importEvent(ev ical.Event, loc *time.Location) (recurrence.EventInput, error) {
	startProp := ev.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return recurrence.EventInput{}, errors.New("missing DTSTART")
	}
	start, err := startProp.DateTime(loc)
	if err != nil {
		return recurrence.EventInput{}, fmt.Errorf("invalid DTSTART: %w", err)
	}
	allDay := startProp.ValueType() == ical.ValueDate

	end, err := ev.DateTimeEnd(loc)
	if err != nil || end.IsZero() || end.Before(start) {
		if allDay {
			end = start.AddDate(0, 0, 1)
		} else {
			end = start.Add(recurrence.DefaultDurationMinutes * time.Minute)
		}
	}
	if allDay {
		// stored all-day events end inside their last day
		end = end.Add(-time.Second)
	}

	title, _ := ev.Props.Text(ical.PropSummary)
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	location, _ := ev.Props.Text(ical.PropLocation)

	in := recurrence.EventInput{
		Title:    title,
		Start:    &start,
		End:      &end,
		Location: location,
		AllDay:   allDay,
	}

	if prop := ev.Props.Get(ical.PropRecurrenceRule); prop != nil {
		rule, err := importRule(prop.Value, start, loc)
		if err != nil {
			return recurrence.EventInput{}, err
		}
		in.IsRecurring = true
		in.Recurrence = rule
	}

	return in, nil
}

// importRule maps an RRULE onto the series model. Rules the model cannot step
// (other frequencies, intervals above one) import as custom, which keeps the
// first occurrence only.
func importRule(value string, start time.Time, loc *time.Location) (*recurrence.Recurrence, error) {
	opt, err := rrule.StrToROption(value)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE: %w", err)
	}

	rule := &recurrence.Recurrence{Frequency: recurrence.FrequencyCustom}
	if opt.Interval <= 1 && len(opt.Bymonth) == 0 && len(opt.Bymonthday) == 0 && len(opt.Bysetpos) == 0 {
		switch opt.Freq {
		case rrule.DAILY:
			rule.Frequency = recurrence.FrequencyDaily
			if len(opt.Byweekday) > 0 {
				// DAILY;BYDAY=MO,WE is the same set as WEEKLY;BYDAY=MO,WE
				rule.Frequency = recurrence.FrequencyWeekly
				rule.DaysOfWeek = weekdayCodes(opt.Byweekday)
			}
		case rrule.WEEKLY:
			rule.Frequency = recurrence.FrequencyWeekly
			rule.DaysOfWeek = weekdayCodes(opt.Byweekday)
		case rrule.MONTHLY:
			// "first Monday" style rules do not step by day of month
			if len(opt.Byweekday) == 0 {
				rule.Frequency = recurrence.FrequencyMonthly
			}
		}
	}

	rule.RepeatCount = opt.Count
	switch {
	case !opt.Until.IsZero():
		until := opt.Until
		rule.RepeatUntil = &until
	case opt.Count > 0 && rule.Frequency != recurrence.FrequencyCustom:
		last, err := lastOccurrence(*opt, start, loc)
		if err != nil {
			return nil, err
		}
		rule.RepeatUntil = &last
	default:
		until := start.AddDate(importHorizon, 0, 0)
		rule.RepeatUntil = &until
	}

	return rule, nil
}

var dayCodes = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// weekdayCodes returns the two-letter codes of days, dropping any ordinal
// such as the +1 in +1MO.
func weekdayCodes(days []rrule.Weekday) []string {
	var out []string
	for _, wd := range days {
		out = append(out, dayCodes[wd.Day()])
	}
	return out
}

// lastOccurrence steps a COUNT-bounded rule to its final start.
func lastOccurrence(opt rrule.ROption, start time.Time, loc *time.Location) (time.Time, error) {
	opt.Dtstart = start.In(loc)
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid RRULE: %w", err)
	}
	all := r.All()
	if len(all) == 0 {
		return start, nil
	}
	return all[len(all)-1], nil
}
