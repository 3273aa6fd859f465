package service

import (
	"context"
	"fmt"
	"strings"

	"repair_tracker"
	"repair_tracker/internal/models"
	"repair_tracker/internal/repository"
)

type OrderService struct {
	*core
}

func NewOrderService(c *core) *OrderService {
	return &OrderService{core: c}
}

// SaveOrder creates (no key) or updates an order. The order status must be
// usable for orders.
func (s *OrderService) SaveOrder(ctx context.Context, p OrderParams) (models.RepairOrder, error) {
	if p.Key == "" {
		return s.createOrder(ctx, p)
	}

	id, err := parseKey(p.Key, models.PrefixOrder)
	if err != nil {
		return models.RepairOrder{}, err
	}
	unlock := s.locks.Lock(models.OrderKey(id))
	defer unlock()

	var saved models.RepairOrder
	err = s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		o, err := tx.Orders.Get(ctx, id)
		if err != nil {
			return err
		}
		if p.Name != nil {
			if o.Name, err = requireName("name", p.Name); err != nil {
				return err
			}
		}
		if p.StatusKey != nil {
			if o.StatusID, err = orderStatus(ctx, tx, *p.StatusKey); err != nil {
				return err
			}
		}
		applyOrderParams(&o, p)
		if err := tx.Orders.Update(ctx, o); err != nil {
			return err
		}
		saved = o
		out.update(repair_tracker.ChannelOrders, o)
		return nil
	})
	return saved, err
}

func (s *OrderService) createOrder(ctx context.Context, p OrderParams) (models.RepairOrder, error) {
	name, err := requireName("name", p.Name)
	if err != nil {
		return models.RepairOrder{}, err
	}
	if p.StatusKey == nil {
		return models.RepairOrder{}, fmt.Errorf("%w: status_key is required", ErrValidation)
	}

	var saved models.RepairOrder
	err = s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		o := models.RepairOrder{Name: name, Created: s.now()}
		var err error
		if o.StatusID, err = orderStatus(ctx, tx, *p.StatusKey); err != nil {
			return err
		}
		applyOrderParams(&o, p)
		if o.ID, err = tx.Orders.Create(ctx, o); err != nil {
			return err
		}
		saved = o
		out.update(repair_tracker.ChannelOrders, o)
		return nil
	})
	return saved, err
}

func applyOrderParams(o *models.RepairOrder, p OrderParams) {
	if p.Summary != nil {
		o.Summary = *p.Summary
	}
	if p.Color != nil {
		o.Color = strings.TrimSpace(*p.Color)
	}
	if p.Received != nil {
		r := p.Received.UTC()
		o.Received = &r
	}
	if p.ReceivedQuantity != nil {
		q := *p.ReceivedQuantity
		o.ReceivedQuantity = &q
	}
}

func orderStatus(ctx context.Context, tx *repository.Repository, key string) (int64, error) {
	id, err := parseKey(key, models.PrefixStatus)
	if err != nil {
		return 0, err
	}
	st, err := tx.Statuses.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !st.CanUseForOrder {
		return 0, fmt.Errorf("%w: status %s cannot be used for orders", ErrValidation, key)
	}
	return id, nil
}

// DeleteOrder removes the order together with its units.
func (s *OrderService) DeleteOrder(ctx context.Context, key string) error {
	id, err := parseKey(key, models.PrefixOrder)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(models.OrderKey(id))
	defer unlock()

	return s.mutate(ctx, func(tx *repository.Repository, out *outbox) error {
		units, err := tx.Units.ListByOrder(ctx, id)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(units))
		for _, u := range units {
			if err := tx.Units.Delete(ctx, u.ID); err != nil {
				return err
			}
			keys = append(keys, u.Key())
		}
		if err := tx.Orders.Delete(ctx, id); err != nil {
			return err
		}
		out.delete(repair_tracker.OrderChannel(key), keys...)
		out.delete(repair_tracker.ChannelOrders, key)
		return nil
	})
}

func (s *OrderService) GetOrder(ctx context.Context, key string) (OrderDetails, error) {
	id, err := parseKey(key, models.PrefixOrder)
	if err != nil {
		return OrderDetails{}, err
	}
	o, err := s.repos.Orders.Get(ctx, id)
	if err != nil {
		return OrderDetails{}, err
	}
	units, err := s.orderUnits(ctx, o)
	if err != nil {
		return OrderDetails{}, err
	}
	return OrderDetails{Order: o, Units: units}, nil
}

func (s *OrderService) ListOrders(ctx context.Context) ([]models.RepairOrder, error) {
	return cached(s.cache, repair_tracker.ChannelOrders, func() ([]models.RepairOrder, error) {
		return s.repos.Orders.List(ctx)
	})
}

// orderUnits returns the units of o through the per-order snapshot cache.
func (c *core) orderUnits(ctx context.Context, o models.RepairOrder) ([]models.RepairUnit, error) {
	return cached(c.cache, o.Channel(), func() ([]models.RepairUnit, error) {
		return c.repos.Units.ListByOrder(ctx, o.ID)
	})
}
