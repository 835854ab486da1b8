package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/selfieapp/selfie/internal/ics"
	"github.com/selfieapp/selfie/internal/recurrence"
)

// maxImportBytes bounds the size of an uploaded calendar.
const maxImportBytes = 1 << 20

// APIEvent represents an event in JSON format for the API.
type APIEvent struct {
	ID                  string                 `json:"id"`
	Title               string                 `json:"title"`
	Start               string                 `json:"start"`
	End                 string                 `json:"end"`
	DurationMinutes     int                    `json:"durationMinutes"`
	Location            string                 `json:"location"`
	AllDay              bool                   `json:"allDay"`
	IsRecurring         bool                   `json:"isRecurring"`
	Recurrence          *recurrence.Recurrence `json:"recurrence,omitempty"`
	RecurrenceID        string                 `json:"recurrenceId,omitempty"`
	OverridesOriginalID string                 `json:"overridesOriginalId,omitempty"`
	OriginalStart       *string                `json:"originalStart,omitempty"`
	IsCancelled         bool                   `json:"isCancelled,omitempty"`
	Kind                string                 `json:"kind"`
	CreatedAt           string                 `json:"createdAt,omitempty"`
	UpdatedAt           string                 `json:"updatedAt,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// eventToAPI converts a record to its API representation.
func eventToAPI(r *recurrence.Record) *APIEvent {
	ev := &APIEvent{
		ID:                  r.ID,
		Title:               r.Title,
		Start:               formatTime(r.Start),
		End:                 formatTime(r.Start.Add(r.Duration())),
		DurationMinutes:     int(r.Duration() / time.Minute),
		Location:            r.Location,
		AllDay:              r.AllDay,
		IsRecurring:         r.IsRecurring,
		Recurrence:          r.Recurrence,
		RecurrenceID:        r.RecurrenceID,
		OverridesOriginalID: r.OverridesOriginalID,
		IsCancelled:         r.IsCancelled,
		Kind:                r.Kind().String(),
	}
	if r.OriginalStart != nil {
		s := formatTime(*r.OriginalStart)
		ev.OriginalStart = &s
	}
	if !r.CreatedAt.IsZero() {
		ev.CreatedAt = formatTime(r.CreatedAt)
	}
	if !r.UpdatedAt.IsZero() {
		ev.UpdatedAt = formatTime(r.UpdatedAt)
	}
	return ev
}

func eventsToAPI(records []*recurrence.Record) []*APIEvent {
	out := make([]*APIEvent, len(records))
	for i, r := range records {
		out[i] = eventToAPI(r)
	}
	return out
}

// wireTimeLayouts are the accepted timestamp forms. Values without an offset
// are read in the configured calendar location.
var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseWireTime parses an optional timestamp field. Empty values yield nil.
func (h *Handlers) parseWireTime(field string, value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(*value)
	for _, layout := range wireTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, h.engine.Location()); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s must be an ISO-8601 timestamp", recurrence.ErrValidation, field)
}

// APIRecurrence is the recurrence rule accepted on create.
type APIRecurrence struct {
	Frequency   string   `json:"frequency"`
	DaysOfWeek  []string `json:"daysOfWeek"`
	RepeatUntil *string  `json:"repeatUntil"`
	RepeatCount int      `json:"repeatCount"`
}

// APICreateEventRequest represents the request body for creating an event.
type APICreateEventRequest struct {
	Title           string         `json:"title"`
	Start           *string        `json:"start"`
	End             *string        `json:"end"`
	DurationMinutes int            `json:"durationMinutes"`
	Location        string         `json:"location"`
	AllDay          bool           `json:"allDay"`
	IsRecurring     bool           `json:"isRecurring"`
	Recurrence      *APIRecurrence `json:"recurrence"`
}

// APIUpdateEventRequest represents the request body for PUT /api/events.
type APIUpdateEventRequest struct {
	ID                  string  `json:"id"`
	Title               *string `json:"title"`
	Start               *string `json:"start"`
	End                 *string `json:"end"`
	Location            *string `json:"location"`
	AllDay              *bool   `json:"allDay"`
	OverridesOriginalID string  `json:"overridesOriginalId"`
	RecurrenceID        string  `json:"recurrenceId"`
	OriginalStart       *string `json:"originalStart"`
}

// APIOccurrenceData holds the fields of a single-occurrence edit.
type APIOccurrenceData struct {
	Title    *string `json:"title"`
	Start    *string `json:"start"`
	End      *string `json:"end"`
	Location *string `json:"location"`
	AllDay   *bool   `json:"allDay"`
}

// APIUpdateOccurrenceRequest represents the request body for PUT /api/events/:id.
type APIUpdateOccurrenceRequest struct {
	OverrideDate *string           `json:"overrideDate"`
	UpdateData   APIOccurrenceData `json:"updateData"`
}

// APISeriesData holds the fields of a series-wide edit.
type APISeriesData struct {
	Title     *string               `json:"title"`
	Location  *string               `json:"location"`
	AllDay    *bool                 `json:"allDay"`
	StartTime *recurrence.ClockTime `json:"startTime"`
	EndTime   *recurrence.ClockTime `json:"endTime"`
}

// APIUpdateSeriesRequest represents the request body for PUT /api/events/series/:recurrenceId.
type APIUpdateSeriesRequest struct {
	UpdateData APISeriesData `json:"updateData"`
}

// APIImportFailure describes a calendar entry that could not be created.
type APIImportFailure struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// APIImportResult is the response of a calendar import.
type APIImportResult struct {
	Created  int                `json:"created"`
	Skipped  int                `json:"skipped"`
	Failures []APIImportFailure `json:"failures"`
}

// untilParam reads the optional ?until= window end.
func (h *Handlers) untilParam(c *gin.Context) (time.Time, bool) {
	raw := c.Query("until")
	until, err := h.parseWireTime("until", &raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return time.Time{}, false
	}
	if until == nil {
		return time.Time{}, true
	}
	return *until, true
}

// APIListEvents returns the displayed events of the current owner.
func (h *Handlers) APIListEvents(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}
	until, ok := h.untilParam(c)
	if !ok {
		return
	}

	events, err := h.engine.ListEvents(c.Request.Context(), ownerID, until)
	if err != nil {
		h.respondError(c, err, "Failed to load events")
		return
	}

	c.JSON(http.StatusOK, eventsToAPI(events))
}

// APICreateEvent creates a single event or a materialized series.
func (h *Handlers) APICreateEvent(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	var req APICreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	in, err := h.createInput(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.engine.CreateEvent(c.Request.Context(), ownerID, in)
	if err != nil {
		h.respondError(c, err, "Failed to create event")
		return
	}

	c.JSON(http.StatusCreated, eventsToAPI(created))
}

func (h *Handlers) createInput(req APICreateEventRequest) (recurrence.EventInput, error) {
	start, err := h.parseWireTime("start", req.Start)
	if err != nil {
		return recurrence.EventInput{}, err
	}
	end, err := h.parseWireTime("end", req.End)
	if err != nil {
		return recurrence.EventInput{}, err
	}

	in := recurrence.EventInput{
		Title:           req.Title,
		Start:           start,
		End:             end,
		DurationMinutes: req.DurationMinutes,
		Location:        req.Location,
		AllDay:          req.AllDay,
		IsRecurring:     req.IsRecurring,
	}

	if req.Recurrence != nil {
		until, err := h.parseWireTime("recurrence.repeatUntil", req.Recurrence.RepeatUntil)
		if err != nil {
			return recurrence.EventInput{}, err
		}
		in.Recurrence = &recurrence.Recurrence{
			Frequency:   recurrence.Frequency(strings.ToLower(req.Recurrence.Frequency)),
			DaysOfWeek:  req.Recurrence.DaysOfWeek,
			RepeatUntil: until,
			RepeatCount: req.Recurrence.RepeatCount,
		}
	}

	return in, nil
}

// APIUpdateEvent edits one record in place, or writes an override when the
// body names the occurrence it replaces.
func (h *Handlers) APIUpdateEvent(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	var req APIUpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}

	in := recurrence.UpdateInput{
		Title:               req.Title,
		Location:            req.Location,
		AllDay:              req.AllDay,
		OverridesOriginalID: req.OverridesOriginalID,
		RecurrenceID:        req.RecurrenceID,
	}
	var err error
	if in.Start, err = h.parseWireTime("start", req.Start); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.End, err = h.parseWireTime("end", req.End); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.OriginalStart, err = h.parseWireTime("originalStart", req.OriginalStart); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updated, err := h.engine.UpdateEvent(c.Request.Context(), ownerID, req.ID, in)
	if err != nil {
		h.respondError(c, err, "Failed to update event")
		return
	}

	c.JSON(http.StatusOK, eventToAPI(updated))
}

// APIUpdateOccurrence writes an override for one occurrence of a series.
func (h *Handlers) APIUpdateOccurrence(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	var req APIUpdateOccurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	overrideDate, err := h.parseWireTime("overrideDate", req.OverrideDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if overrideDate == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "overrideDate is required"})
		return
	}

	data := req.UpdateData
	in := recurrence.OccurrenceUpdate{
		Title:    data.Title,
		Location: data.Location,
		AllDay:   data.AllDay,
	}
	if in.Start, err = h.parseWireTime("updateData.start", data.Start); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if in.End, err = h.parseWireTime("updateData.end", data.End); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	override, err := h.engine.UpdateOccurrence(c.Request.Context(), ownerID, c.Param("id"), *overrideDate, in)
	if err != nil {
		h.respondError(c, err, "Failed to update occurrence")
		return
	}

	c.JSON(http.StatusOK, eventToAPI(override))
}

// APIUpdateSeries moves every occurrence of a series to new wall-clock times.
func (h *Handlers) APIUpdateSeries(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	var req APIUpdateSeriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	data := req.UpdateData
	if data.StartTime == nil || data.EndTime == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "updateData.startTime and updateData.endTime are required"})
		return
	}

	updated, err := h.engine.UpdateSeries(c.Request.Context(), ownerID, c.Param("recurrenceId"), recurrence.SeriesUpdate{
		Title:     data.Title,
		Location:  data.Location,
		AllDay:    data.AllDay,
		StartTime: *data.StartTime,
		EndTime:   *data.EndTime,
	})
	if err != nil {
		h.respondError(c, err, "Failed to update series")
		return
	}

	c.JSON(http.StatusOK, eventsToAPI(updated))
}

// APIDeleteEvent deletes one record.
func (h *Handlers) APIDeleteEvent(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	if err := h.engine.DeleteEvent(c.Request.Context(), ownerID, c.Param("id")); err != nil {
		h.respondError(c, err, "Failed to delete event")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Event deleted"})
}

// APIDeleteSeries deletes every record of a series.
func (h *Handlers) APIDeleteSeries(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	deleted, err := h.engine.DeleteSeries(c.Request.Context(), ownerID, c.Param("recurrenceId"))
	if err != nil {
		h.respondError(c, err, "Failed to delete series")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Series deleted", "deleted": deleted})
}

// APICancelOccurrence hides one occurrence of a series.
func (h *Handlers) APICancelOccurrence(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	raw := c.Query("date")
	date, err := h.parseWireTime("date", &raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if date == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required"})
		return
	}

	tombstone, err := h.engine.CancelOccurrence(c.Request.Context(), ownerID, c.Param("recurrenceId"), *date)
	if err != nil {
		h.respondError(c, err, "Failed to cancel occurrence")
		return
	}

	c.JSON(http.StatusOK, eventToAPI(tombstone))
}

// APIExportCalendar serves the displayed events as an iCalendar file.
func (h *Handlers) APIExportCalendar(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}
	until, ok := h.untilParam(c)
	if !ok {
		return
	}

	events, err := h.engine.ListEvents(c.Request.Context(), ownerID, until)
	if err != nil {
		h.respondError(c, err, "Failed to load events")
		return
	}

	var body strings.Builder
	if err := ics.Export(&body, events, h.engine.Location(), time.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": h.sanitizeError(c, err, "Failed to export calendar")})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="selfie.ics"`)
	c.Data(http.StatusOK, "text/calendar; charset=utf-8", []byte(body.String()))
}

// APIImportCalendar creates events from an uploaded iCalendar file. Entries
// the engine rejects are reported and do not stop the import.
func (h *Handlers) APIImportCalendar(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}

	body := http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)
	parsed, err := ics.Import(body, h.engine.Location())
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Calendar file too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.imports.StartImport(ownerID, len(parsed.Events), parsed.Skipped) {
		c.JSON(http.StatusConflict, gin.H{"error": "An import is already running"})
		return
	}

	result := APIImportResult{Skipped: parsed.Skipped, Failures: []APIImportFailure{}}
	for _, in := range parsed.Events {
		created, err := h.engine.CreateEvent(c.Request.Context(), ownerID, in)
		if err != nil {
			if !errors.Is(err, recurrence.ErrValidation) {
				h.imports.FinishImport(ownerID, false, "import aborted")
				h.respondError(c, err, "Failed to import calendar")
				return
			}
			h.imports.IncrementProgress(ownerID, 0, 1)
			result.Failures = append(result.Failures, APIImportFailure{Title: in.Title, Error: err.Error()})
			continue
		}
		h.imports.IncrementProgress(ownerID, len(created), 0)
		result.Created += len(created)
	}
	h.imports.FinishImport(ownerID, true, "")

	h.logger.WithFields(logrus.Fields{
		"owner":    ownerID,
		"created":  result.Created,
		"skipped":  result.Skipped,
		"failures": len(result.Failures),
	}).Info("Imported calendar")

	c.JSON(http.StatusOK, result)
}

// APIListImports returns the owner's running and recent calendar imports.
func (h *Handlers) APIListImports(c *gin.Context) {
	ownerID, ok := currentOwner(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.imports.ForOwner(ownerID))
}
