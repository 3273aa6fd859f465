package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"repair_tracker/internal/eventlog"
	"repair_tracker/internal/models"
	"repair_tracker/internal/repository"
)

type UnitService struct {
	*core
}

func NewUnitService(c *core) *UnitService {
	return &UnitService{core: c}
}

// SaveUnit creates or updates a unit of the order. Every unit mutation holds
// the order lock from read to publish, since units of one order share the
// order's lifecycle pair.
func (s *UnitService) SaveUnit(ctx context.Context, orderKey string, p UnitParams) (models.RepairUnit, error) {
	orderID, err := parseKey(orderKey, models.PrefixOrder)
	if err != nil {
		return models.RepairUnit{}, err
	}
	unlock := s.locks.Lock(models.OrderKey(orderID))
	defer unlock()

	var saved models.RepairUnit
	err = s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		o, err := tx.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}

		var u models.RepairUnit
		var statusChanged bool
		if p.Key == "" {
			u, err = s.createUnit(ctx, tx, o, p)
			statusChanged = true
		} else {
			u, statusChanged, err = s.updateUnit(ctx, tx, o, p)
		}
		if err != nil {
			return err
		}
		saved = u
		out.update(o.Channel(), u)

		if statusChanged {
			_, err = recalculateInTx(ctx, tx, o.ID, s.now(), out)
		}
		return err
	})
	if err != nil {
		return models.RepairUnit{}, err
	}
	return saved, nil
}

func (s *UnitService) createUnit(ctx context.Context, tx *repository.Repository, o models.RepairOrder, p UnitParams) (models.RepairUnit, error) {
	if p.Type == nil || !p.Type.Valid() {
		return models.RepairUnit{}, fmt.Errorf("%w: type must be machine or hashboard", ErrValidation)
	}
	if p.StatusKey == nil {
		return models.RepairUnit{}, fmt.Errorf("%w: status_key is required", ErrValidation)
	}

	now := s.now()
	u := models.RepairUnit{
		Type:          *p.Type,
		RepairOrderID: o.ID,
		Created:       now,
	}
	if p.Serial != nil {
		u.Serial = strings.TrimSpace(*p.Serial)
	}
	if err := setModel(ctx, tx, &u, p.ModelKey); err != nil {
		return models.RepairUnit{}, err
	}

	origin := statusEntry(p)
	if err := checkEntryRefs(ctx, tx, u.Type, origin); err != nil {
		return models.RepairUnit{}, err
	}
	if _, err := eventlog.Append(&u, origin, now); err != nil {
		return models.RepairUnit{}, domainErr(err)
	}

	id, err := tx.Units.Create(ctx, u)
	if err != nil {
		return models.RepairUnit{}, err
	}
	u.ID = id
	return u, nil
}

func (s *UnitService) updateUnit(ctx context.Context, tx *repository.Repository, o models.RepairOrder, p UnitParams) (models.RepairUnit, bool, error) {
	u, err := unitOfOrder(ctx, tx, o, p.Key)
	if err != nil {
		return models.RepairUnit{}, false, err
	}
	if p.Type != nil && *p.Type != u.Type {
		return models.RepairUnit{}, false, fmt.Errorf("%w: unit type cannot change", ErrValidation)
	}
	if p.Serial != nil {
		u.Serial = strings.TrimSpace(*p.Serial)
	}
	if err := setModel(ctx, tx, &u, p.ModelKey); err != nil {
		return models.RepairUnit{}, false, err
	}

	now := s.now()
	statusChanged := false

	if p.RemoveEvent != "" {
		removed, err := eventlog.Delete(&u, p.RemoveEvent)
		if err != nil {
			return models.RepairUnit{}, false, domainErr(err)
		}
		statusChanged = removed.IsStatus()
	}

	var appends []models.Entry
	if p.StatusKey != nil {
		appends = append(appends, statusEntry(p))
	} else if p.AssigneeKey != nil {
		return models.RepairUnit{}, false, fmt.Errorf("%w: assignee_key needs status_key", ErrValidation)
	}
	if p.AppendEvent != nil {
		e := *p.AppendEvent
		if e.Actor == "" {
			e.Actor = p.Actor
		}
		appends = append(appends, e)
	}
	for _, e := range appends {
		if err := checkEntryRefs(ctx, tx, u.Type, e); err != nil {
			return models.RepairUnit{}, false, err
		}
		if _, err := eventlog.Append(&u, e, now); err != nil {
			return models.RepairUnit{}, false, domainErr(err)
		}
		statusChanged = statusChanged || e.IsStatus()
	}

	if err := tx.Units.Update(ctx, u); err != nil {
		return models.RepairUnit{}, false, err
	}
	return u, statusChanged, nil
}

// DeleteUnit removes a unit from its order.
func (s *UnitService) DeleteUnit(ctx context.Context, orderKey, unitKey string) error {
	orderID, err := parseKey(orderKey, models.PrefixOrder)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(models.OrderKey(orderID))
	defer unlock()

	return s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		o, err := tx.Orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		u, err := unitOfOrder(ctx, tx, o, unitKey)
		if err != nil {
			return err
		}
		if err := tx.Units.Delete(ctx, u.ID); err != nil {
			return err
		}
		out.delete(o.Channel(), u.Key())
		_, err = recalculateInTx(ctx, tx, o.ID, s.now(), out)
		return err
	})
}

// unitOfOrder loads the unit and hides units of other orders as not found.
func unitOfOrder(ctx context.Context, tx *repository.Repository, o models.RepairOrder, key string) (models.RepairUnit, error) {
	id, err := parseKey(key, models.PrefixUnit)
	if err != nil {
		return models.RepairUnit{}, err
	}
	u, err := tx.Units.Get(ctx, id)
	if err != nil {
		return models.RepairUnit{}, err
	}
	if u.RepairOrderID != o.ID {
		return models.RepairUnit{}, fmt.Errorf("unit %s in order %s: %w", key, o.Key(), ErrNotFound)
	}
	return u, nil
}

func statusEntry(p UnitParams) models.Entry {
	sp := models.StatusPayload{}
	if p.StatusKey != nil {
		sp.StatusKey = *p.StatusKey
	}
	if p.AssigneeKey != nil {
		sp.Assignee = *p.AssigneeKey
	}
	return models.Entry{Actor: p.Actor, Payload: sp}
}

func setModel(ctx context.Context, tx *repository.Repository, u *models.RepairUnit, key *string) error {
	if key == nil {
		return nil
	}
	if *key == "" {
		u.ModelID = nil
		return nil
	}
	id, err := parseKey(*key, models.PrefixUnitModel)
	if err != nil {
		return err
	}
	if _, err := tx.UnitModels.Get(ctx, id); err != nil {
		return err
	}
	u.ModelID = &id
	return nil
}

// checkEntryRefs validates the entry and, for status entries, that the
// referenced status is usable for the unit type and the assignee exists.
func checkEntryRefs(ctx context.Context, tx *repository.Repository, t models.UnitType, e models.Entry) error {
	if err := e.Validate(); err != nil {
		return domainErr(err)
	}
	if e.Actor != "" {
		if err := assigneeExists(ctx, tx, e.Actor); err != nil {
			return err
		}
	}
	sp, ok := e.Status()
	if !ok {
		return nil
	}
	statusID, err := parseKey(sp.StatusKey, models.PrefixStatus)
	if err != nil {
		return err
	}
	st, err := tx.Statuses.Get(ctx, statusID)
	if err != nil {
		return err
	}
	if !st.UsableFor(t) {
		return fmt.Errorf("%w: status %s cannot be used for %s units", ErrValidation, sp.StatusKey, t)
	}
	if sp.Assignee != "" {
		return assigneeExists(ctx, tx, sp.Assignee)
	}
	return nil
}

func assigneeExists(ctx context.Context, tx *repository.Repository, key string) error {
	id, err := parseKey(key, models.PrefixAssignee)
	if err != nil {
		return err
	}
	_, err = tx.Assignees.Get(ctx, id)
	return err
}

// domainErr marks payload and log rule violations as validation failures
// while keeping the original sentinel reachable through errors.Is.
func domainErr(err error) error {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, eventlog.ErrEntryNotFound):
		return err
	case errors.Is(err, models.ErrInvalidPayload),
		errors.Is(err, models.ErrUnknownEntryType),
		errors.Is(err, models.ErrInvalidKey),
		errors.Is(err, eventlog.ErrOriginImmutable),
		errors.Is(err, eventlog.ErrMissingOrigin),
		errors.Is(err, eventlog.ErrNoStatusRemaining):
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return err
}
