package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"repair_tracker/internal/eventlog"
	"repair_tracker/internal/models"
)

type EventLogService struct {
	*core
}

func NewEventLogService(c *core) *EventLogService {
	return &EventLogService{core: c}
}

var (
	errInvalidTimeRange = errors.New("invalid time range: from must be <= to")
)

// normalizeToUTC returns t in UTC, preserving zero time values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

// normalizeAndValidateFilter prepares the filter and validates the time range and type.
func normalizeAndValidateFilter(f LogFilter) (eventlog.Filter, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)

	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return eventlog.Filter{}, fmt.Errorf("%w: %w", ErrValidation, errInvalidTimeRange)
	}

	out := eventlog.Filter{From: from, To: to}
	if f.Type != "" {
		t, err := models.ParseEntryType(f.Type)
		if err != nil {
			return eventlog.Filter{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		out.Type = t
	}
	return out, nil
}

// ListUnitEvents returns the unit's log narrowed by f, oldest first.
func (s *EventLogService) ListUnitEvents(ctx context.Context, unitKey string, f LogFilter) ([]models.Entry, error) {
	filter, err := normalizeAndValidateFilter(f)
	if err != nil {
		return nil, err
	}
	id, err := parseKey(unitKey, models.PrefixUnit)
	if err != nil {
		return nil, err
	}
	u, err := s.repos.Units.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return eventlog.List(u.Events, filter), nil
}
