package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repair_tracker"
	"repair_tracker/internal/aggregate"
	"repair_tracker/internal/models"
	"repair_tracker/internal/repository"
)

type CatalogService struct {
	*core
}

func NewCatalogService(c *core) *CatalogService {
	return &CatalogService{core: c}
}

// SaveAssignee creates (no key) or updates an assignee. New assignees are active unless told otherwise.
func (s *CatalogService) SaveAssignee(ctx context.Context, p AssigneeParams) (models.Assignee, error) {
	var saved models.Assignee
	err := s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		if p.Key == "" {
			name, err := requireName("name", p.Name)
			if err != nil {
				return err
			}
			a := models.Assignee{Name: name, IsActive: true}
			if p.IsActive != nil {
				a.IsActive = *p.IsActive
			}
			if a.ID, err = tx.Assignees.Create(ctx, a); err != nil {
				return err
			}
			saved = a
		} else {
			id, err := parseKey(p.Key, models.PrefixAssignee)
			if err != nil {
				return err
			}
			a, err := tx.Assignees.Get(ctx, id)
			if err != nil {
				return err
			}
			if p.Name != nil {
				if a.Name, err = requireName("name", p.Name); err != nil {
					return err
				}
			}
			if p.IsActive != nil {
				a.IsActive = *p.IsActive
			}
			if err := tx.Assignees.Update(ctx, a); err != nil {
				return err
			}
			saved = a
		}
		out.update(repair_tracker.ChannelAssignees, saved)
		return nil
	})
	return saved, err
}

func (s *CatalogService) DeleteAssignee(ctx context.Context, key string) error {
	id, err := parseKey(key, models.PrefixAssignee)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		if err := tx.Assignees.Delete(ctx, id); err != nil {
			return err
		}
		out.delete(repair_tracker.ChannelAssignees, key)
		return nil
	})
}

func (s *CatalogService) ListAssignees(ctx context.Context, activeOnly bool) ([]models.Assignee, error) {
	all, err := cached(s.cache, repair_tracker.ChannelAssignees, func() ([]models.Assignee, error) {
		return s.repos.Assignees.List(ctx, false)
	})
	if err != nil || !activeOnly {
		return all, err
	}
	active := make([]models.Assignee, 0, len(all))
	for _, a := range all {
		if a.IsActive {
			active = append(active, a)
		}
	}
	return active, nil
}

// SaveStatus creates or updates a status. Flipping the ending flag of a
// status in use recalculates every order holding a unit in that status
// inside the same transaction, under the locks of those orders.
func (s *CatalogService) SaveStatus(ctx context.Context, p StatusParams) (models.Status, error) {
	if p.Key == "" || p.IsEnding == nil {
		return s.saveStatus(ctx, p, nil)
	}
	id, err := parseKey(p.Key, models.PrefixStatus)
	if err != nil {
		return models.Status{}, err
	}

	for attempt := 1; ; attempt++ {
		orderIDs, err := s.repos.Units.OrderIDsWithStatus(ctx, id)
		if err != nil {
			return models.Status{}, err
		}
		locked := make(map[int64]struct{}, len(orderIDs))
		keys := make([]string, 0, len(orderIDs))
		for _, oid := range orderIDs {
			locked[oid] = struct{}{}
			keys = append(keys, models.OrderKey(oid))
		}

		unlock := s.locks.LockAll(keys)
		saved, err := s.saveStatus(ctx, p, locked)
		unlock()

		if !errors.Is(err, errOrdersMoved) {
			return saved, err
		}
		if attempt == statusLockAttempts {
			s.log.Warnw("status_recalculate_contended", "status", p.Key, "attempts", attempt)
			return models.Status{}, fmt.Errorf("%w: orders using status %s kept changing", ErrConflict, p.Key)
		}
	}
}

const statusLockAttempts = 3

// errOrdersMoved rolls back a status save when a unit entered the status
// after its orders were locked.
var errOrdersMoved = errors.New("orders using status changed")

// saveStatus writes the status. When the ending flag flips, every order in
// locked that holds a unit in the status is recalculated in the same
// transaction.
func (s *CatalogService) saveStatus(ctx context.Context, p StatusParams, locked map[int64]struct{}) (models.Status, error) {
	var saved models.Status
	err := s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		var st models.Status
		if p.Key == "" {
			name, err := requireName("status", p.Status)
			if err != nil {
				return err
			}
			st.Status = name
		} else {
			id, err := parseKey(p.Key, models.PrefixStatus)
			if err != nil {
				return err
			}
			if st, err = tx.Statuses.Get(ctx, id); err != nil {
				return err
			}
			if p.Status != nil {
				if st.Status, err = requireName("status", p.Status); err != nil {
					return err
				}
			}
		}

		wasEnding := st.IsEnding
		applyStatusParams(&st, p)

		var err error
		endingChanged := false
		if st.ID == 0 {
			st.ID, err = tx.Statuses.Create(ctx, st)
		} else {
			err = tx.Statuses.Update(ctx, st)
			endingChanged = wasEnding != st.IsEnding
		}
		if err != nil {
			return err
		}
		saved = st
		out.update(repair_tracker.ChannelStatuses, saved)

		if !endingChanged {
			return nil
		}
		orderIDs, err := tx.Units.OrderIDsWithStatus(ctx, st.ID)
		if err != nil {
			return err
		}
		for _, oid := range orderIDs {
			if _, ok := locked[oid]; !ok {
				return errOrdersMoved
			}
		}
		now := s.now()
		for _, oid := range orderIDs {
			if _, err := recalculateInTx(ctx, tx, oid, now, out); err != nil {
				s.log.Errorw("status_recalculate_failed", "status", st.Key(), "order", models.OrderKey(oid), "err", err)
				return fmt.Errorf("recalculate %s: %w", models.OrderKey(oid), err)
			}
		}
		return nil
	})
	if err != nil {
		return models.Status{}, err
	}
	return saved, nil
}

func applyStatusParams(st *models.Status, p StatusParams) {
	if p.Color != nil {
		st.Color = strings.TrimSpace(*p.Color)
	}
	if p.IsEnding != nil {
		st.IsEnding = *p.IsEnding
	}
	if p.CanUseForOrder != nil {
		st.CanUseForOrder = *p.CanUseForOrder
	}
	if p.CanUseForMachine != nil {
		st.CanUseForMachine = *p.CanUseForMachine
	}
	if p.CanUseForHashboard != nil {
		st.CanUseForHashboard = *p.CanUseForHashboard
	}
}

// recalculateInTx recomputes started/finished of the order and queues an
// orders update when either changed.
func recalculateInTx(ctx context.Context, tx *repository.Repository, orderID int64, now time.Time, out *outbox) (models.RepairOrder, error) {
	o, err := tx.Orders.Get(ctx, orderID)
	if err != nil {
		return models.RepairOrder{}, err
	}
	units, err := tx.Units.ListByOrder(ctx, orderID)
	if err != nil {
		return models.RepairOrder{}, err
	}
	statuses, err := statusMap(ctx, tx.Statuses)
	if err != nil {
		return models.RepairOrder{}, err
	}
	if !aggregate.Recalculate(&o, aggregate.Endings(units, statuses), now) {
		return o, nil
	}
	if err := tx.Orders.Update(ctx, o); err != nil {
		return models.RepairOrder{}, err
	}
	out.update(repair_tracker.ChannelOrders, o)
	return o, nil
}

func (s *CatalogService) DeleteStatus(ctx context.Context, key string) error {
	id, err := parseKey(key, models.PrefixStatus)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		if err := tx.Statuses.Delete(ctx, id); err != nil {
			return err
		}
		out.delete(repair_tracker.ChannelStatuses, key)
		return nil
	})
}

func (s *CatalogService) ListStatuses(ctx context.Context) ([]models.Status, error) {
	return cached(s.cache, repair_tracker.ChannelStatuses, func() ([]models.Status, error) {
		return s.repos.Statuses.List(ctx)
	})
}

func (s *CatalogService) SaveUnitModel(ctx context.Context, p UnitModelParams) (models.UnitModel, error) {
	var saved models.UnitModel
	err := s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		name, err := requireName("name", p.Name)
		if err != nil {
			return err
		}
		if p.Key == "" {
			m := models.UnitModel{Name: name}
			if m.ID, err = tx.UnitModels.Create(ctx, m); err != nil {
				return err
			}
			saved = m
		} else {
			id, err := parseKey(p.Key, models.PrefixUnitModel)
			if err != nil {
				return err
			}
			m := models.UnitModel{ID: id, Name: name}
			if err := tx.UnitModels.Update(ctx, m); err != nil {
				return err
			}
			saved = m
		}
		out.update(repair_tracker.ChannelUnitModels, saved)
		return nil
	})
	return saved, err
}

func (s *CatalogService) DeleteUnitModel(ctx context.Context, key string) error {
	id, err := parseKey(key, models.PrefixUnitModel)
	if err != nil {
		return err
	}
	return s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		if err := tx.UnitModels.Delete(ctx, id); err != nil {
			return err
		}
		out.delete(repair_tracker.ChannelUnitModels, key)
		return nil
	})
}

func (s *CatalogService) ListUnitModels(ctx context.Context) ([]models.UnitModel, error) {
	return cached(s.cache, repair_tracker.ChannelUnitModels, func() ([]models.UnitModel, error) {
		return s.repos.UnitModels.List(ctx)
	})
}
