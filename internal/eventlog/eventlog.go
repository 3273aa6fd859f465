// Package eventlog maintains a repair unit's append-only event log and the
// fields derived from it: current status, current assignee and updated_at
// always reflect the most recent status entry.
package eventlog

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"repair_tracker/internal/models"
)

var (
	ErrEntryNotFound     = errors.New("event not found")
	ErrOriginImmutable   = errors.New("the initial status event cannot be deleted")
	ErrMissingOrigin     = errors.New("the first event of a unit must be a status event")
	ErrNoStatusRemaining = errors.New("deleting this event would leave the unit without a status")
	ErrUnknownEntryType  = models.ErrUnknownEntryType
)

// Append stamps e with a fresh id and now, validates it and appends it to
// u's log. A status entry overwrites the derived fields. u is left untouched
// on error. The stored entry is returned.
func Append(u *models.RepairUnit, e models.Entry, now time.Time) (models.Entry, error) {
	if err := e.Validate(); err != nil {
		return models.Entry{}, err
	}
	if len(u.Events) == 0 && !e.IsStatus() {
		return models.Entry{}, ErrMissingOrigin
	}

	e.ID = uuid.NewString()
	e.Timestamp = now.UTC()

	if e.IsStatus() {
		if err := apply(u, e); err != nil {
			return models.Entry{}, err
		}
	}
	u.Events = append(u.Events, e)
	return e, nil
}

// Delete removes the entry with the given id. The origin status entry is
// immutable. Removing a status entry resets the derived fields to the latest
// remaining status entry.
func Delete(u *models.RepairUnit, id string) (models.Entry, error) {
	idx := -1
	for i, e := range u.Events {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return models.Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, id)
	}

	removed := u.Events[idx]
	if idx == 0 && removed.IsStatus() {
		return models.Entry{}, ErrOriginImmutable
	}

	rest := make([]models.Entry, 0, len(u.Events)-1)
	rest = append(rest, u.Events[:idx]...)
	rest = append(rest, u.Events[idx+1:]...)

	if removed.IsStatus() {
		latest, ok := latestStatus(rest)
		if !ok {
			return models.Entry{}, ErrNoStatusRemaining
		}
		if err := apply(u, latest); err != nil {
			return models.Entry{}, err
		}
	}
	u.Events = rest
	return removed, nil
}

// Current returns the most recent status entry of u.
func Current(u *models.RepairUnit) (models.Entry, bool) {
	return latestStatus(u.Events)
}

// Rebuild recomputes the derived fields from the whole log.
func Rebuild(u *models.RepairUnit) error {
	latest, ok := latestStatus(u.Events)
	if !ok {
		return ErrMissingOrigin
	}
	return apply(u, latest)
}

func latestStatus(events []models.Entry) (models.Entry, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].IsStatus() {
			return events[i], true
		}
	}
	return models.Entry{}, false
}

func apply(u *models.RepairUnit, e models.Entry) error {
	p, ok := e.Status()
	if !ok {
		return fmt.Errorf("%w: not a status event", models.ErrInvalidPayload)
	}
	statusID, err := models.ParseKeyAs(p.StatusKey, models.PrefixStatus)
	if err != nil {
		return err
	}
	var assignee *int64
	if p.Assignee != "" {
		id, err := models.ParseKeyAs(p.Assignee, models.PrefixAssignee)
		if err != nil {
			return err
		}
		assignee = &id
	}
	u.CurrentStatusID = statusID
	u.CurrentAssigneeID = assignee
	u.UpdatedAt = e.Timestamp
	return nil
}

// Filter narrows a log for listing. Zero values match everything.
type Filter struct {
	From time.Time
	To   time.Time
	Type models.EntryType
}

// List returns the entries of events matching f, in log order.
func List(events []models.Entry, f Filter) []models.Entry {
	out := make([]models.Entry, 0, len(events))
	for _, e := range events {
		if f.Type != "" && e.Type() != f.Type {
			continue
		}
		if !f.From.IsZero() && e.Timestamp.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.Timestamp.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	return out
}
