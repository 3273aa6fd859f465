package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"repair_tracker"
	"repair_tracker/internal/metrics"
	"repair_tracker/internal/protocol"
	"repair_tracker/internal/service"
)

// handleCommand decodes one client frame and runs it. Every failure is
// reported to the sender only.
func (h *Handler) handleCommand(ctx context.Context, id string, raw []byte) {
	cmd, err := protocol.Parse(raw)
	if err != nil {
		metrics.RecordCommand("invalid", false)
		h.registry.SendError(id, err.Error())
		return
	}

	ok := true
	switch cmd.Kind {
	case protocol.CommandPing:
		ok = h.registry.Deliver(id, repair_tracker.PongMessage()) == nil
	case protocol.CommandSubscribe:
		ok = h.subscribe(ctx, id, cmd.Channels)
	case protocol.CommandUpdate:
		ok = h.applyUpdates(ctx, id, cmd.Channel, cmd.Items)
	case protocol.CommandDelete:
		ok = h.applyDeletes(ctx, id, cmd.Channel, cmd.Items)
	}
	metrics.RecordCommand(cmd.Kind.String(), ok)
}

// subscribe joins every channel that exists, acknowledges them and sends an
// initial snapshot for each channel the connection was not yet in.
func (h *Handler) subscribe(ctx context.Context, id string, channels []string) bool {
	ok := true
	valid := make([]string, 0, len(channels))
	for _, ch := range channels {
		if _, err := h.services.Snapshot(ctx, ch); err != nil {
			ok = false
			h.registry.SendError(id, fmt.Sprintf("cannot subscribe to %q: %v", ch, err))
			continue
		}
		valid = append(valid, ch)
	}
	if len(valid) == 0 {
		return false
	}

	added, err := h.registry.SubscribeToChannels(id, valid)
	if err != nil {
		return false
	}
	if h.log != nil {
		h.log.Infow("ws_subscribe", "websocket_id", id, "channels", valid, "new", added)
	}
	if err := h.registry.Deliver(id, repair_tracker.SubscribedMessage(valid)); err != nil {
		return false
	}

	for _, ch := range added {
		snap, err := h.services.Snapshot(ctx, ch)
		if err != nil {
			ok = false
			h.registry.SendError(id, fmt.Sprintf("initial data for %q: %v", ch, err))
			continue
		}
		if err := h.registry.Deliver(id, snap); err != nil {
			return false
		}
	}
	return ok
}

// applyUpdates applies each item on its own; a bad item does not stop the rest.
func (h *Handler) applyUpdates(ctx context.Context, id, channel string, items []json.RawMessage) bool {
	var apply func(json.RawMessage) error
	switch channel {
	case repair_tracker.ChannelAssignees:
		apply = decodeInto(func(p service.AssigneeParams) error {
			_, err := h.services.SaveAssignee(ctx, p)
			return err
		})
	case repair_tracker.ChannelStatuses:
		apply = decodeInto(func(p service.StatusParams) error {
			_, err := h.services.SaveStatus(ctx, p)
			return err
		})
	case repair_tracker.ChannelUnitModels:
		apply = decodeInto(func(p service.UnitModelParams) error {
			_, err := h.services.SaveUnitModel(ctx, p)
			return err
		})
	case repair_tracker.ChannelOrders:
		apply = decodeInto(func(p service.OrderParams) error {
			_, err := h.services.SaveOrder(ctx, p)
			return err
		})
	default:
		orderKey, isOrder := repair_tracker.OrderKeyFromChannel(channel)
		if !isOrder {
			h.registry.SendError(id, fmt.Sprintf("update: unknown channel %q", channel))
			return false
		}
		apply = decodeInto(func(p service.UnitParams) error {
			_, err := h.services.SaveUnit(ctx, orderKey, p)
			return err
		})
	}
	return h.eachItem(id, "update", channel, items, apply)
}

// applyDeletes removes each keyed item on its own.
func (h *Handler) applyDeletes(ctx context.Context, id, channel string, items []json.RawMessage) bool {
	var remove func(key string) error
	switch channel {
	case repair_tracker.ChannelAssignees:
		remove = func(key string) error { return h.services.DeleteAssignee(ctx, key) }
	case repair_tracker.ChannelStatuses:
		remove = func(key string) error { return h.services.DeleteStatus(ctx, key) }
	case repair_tracker.ChannelUnitModels:
		remove = func(key string) error { return h.services.DeleteUnitModel(ctx, key) }
	case repair_tracker.ChannelOrders:
		remove = func(key string) error { return h.services.DeleteOrder(ctx, key) }
	default:
		orderKey, isOrder := repair_tracker.OrderKeyFromChannel(channel)
		if !isOrder {
			h.registry.SendError(id, fmt.Sprintf("delete: unknown channel %q", channel))
			return false
		}
		remove = func(key string) error { return h.services.DeleteUnit(ctx, orderKey, key) }
	}
	return h.eachItem(id, "delete", channel, items, func(item json.RawMessage) error {
		key, err := protocol.DeleteKey(item)
		if err != nil {
			return err
		}
		return remove(key)
	})
}

func (h *Handler) eachItem(id, op, channel string, items []json.RawMessage, fn func(json.RawMessage) error) bool {
	ok := true
	for i, item := range items {
		if err := fn(item); err != nil {
			ok = false
			if h.log != nil {
				h.log.Debugw("ws_item_rejected", "websocket_id", id, "op", op, "channel", channel, "index", i, "err", err)
			}
			h.registry.SendError(id, fmt.Sprintf("%s %s item %d: %v", op, channel, i, err))
		}
	}
	return ok
}

// decodeInto unmarshals one item into T before handing it to fn.
func decodeInto[T any](fn func(T) error) func(json.RawMessage) error {
	return func(item json.RawMessage) error {
		var p T
		if err := json.Unmarshal(item, &p); err != nil {
			return fmt.Errorf("%w: %v", protocol.ErrMalformed, err)
		}
		return fn(p)
	}
}
