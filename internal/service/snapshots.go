package service

import (
	"context"
	"fmt"

	"repair_tracker"
	"repair_tracker/internal/models"
)

type SnapshotService struct {
	*core
	catalog *CatalogService
	orders  *OrderService
}

func NewSnapshotService(c *core) *SnapshotService {
	return &SnapshotService{core: c, catalog: NewCatalogService(c), orders: NewOrderService(c)}
}

// Snapshot returns the full current content of channel as one update
// message. Per-order channels of unknown orders fail with ErrNotFound.
func (s *SnapshotService) Snapshot(ctx context.Context, channel string) (repair_tracker.Message, error) {
	switch channel {
	case repair_tracker.ChannelAssignees:
		list, err := s.catalog.ListAssignees(ctx, false)
		return snapshot(channel, list, err)
	case repair_tracker.ChannelStatuses:
		list, err := s.catalog.ListStatuses(ctx)
		return snapshot(channel, list, err)
	case repair_tracker.ChannelUnitModels:
		list, err := s.catalog.ListUnitModels(ctx)
		return snapshot(channel, list, err)
	case repair_tracker.ChannelOrders:
		list, err := s.orders.ListOrders(ctx)
		return snapshot(channel, list, err)
	}

	orderKey, ok := repair_tracker.OrderKeyFromChannel(channel)
	if !ok {
		return repair_tracker.Message{}, fmt.Errorf("%w: unknown channel %q", ErrValidation, channel)
	}
	id, err := parseKey(orderKey, models.PrefixOrder)
	if err != nil {
		return repair_tracker.Message{}, err
	}
	if channel != repair_tracker.OrderChannel(models.OrderKey(id)) {
		return repair_tracker.Message{}, fmt.Errorf("%w: channel %q is not canonical", ErrValidation, channel)
	}
	o, err := s.repos.Orders.Get(ctx, id)
	if err != nil {
		return repair_tracker.Message{}, err
	}
	units, err := s.orderUnits(ctx, o)
	return snapshot(channel, units, err)
}

func snapshot[T any](channel string, list []T, err error) (repair_tracker.Message, error) {
	if err != nil {
		return repair_tracker.Message{}, err
	}
	items := make([]any, len(list))
	for i, v := range list {
		items[i] = v
	}
	return repair_tracker.UpdateMessage(channel, items...), nil
}
