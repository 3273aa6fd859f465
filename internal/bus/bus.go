// Package bus is an in-process, channel-keyed publish/subscribe primitive.
//
// Publish snapshots the subscriber set under the bus lock and notifies
// subscribers after releasing it, so a slow subscriber never blocks
// Subscribe/Unsubscribe for other callers. Successive publishes from one
// caller on one channel reach each subscriber in order.
package bus

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"repair_tracker"
	"repair_tracker/internal/logger"
	"repair_tracker/internal/metrics"
)

var ErrClosed = errors.New("event bus is closed")

// Subscriber receives published messages. Implementations are used as set
// members, so they must be comparable (pointer receivers are the norm).
type Subscriber interface {
	Notify(msg repair_tracker.Message) error
}

type Bus struct {
	mu          sync.Mutex
	subscribers map[string]map[Subscriber]struct{}
	closed      bool
	log         *logger.Logger
}

func New(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.Nop()
	}
	return &Bus{
		subscribers: make(map[string]map[Subscriber]struct{}),
		log:         log,
	}
}

// Subscribe registers sub under channel. Registering the same pair twice has no effect.
func (b *Bus) Subscribe(channel string, sub Subscriber) error {
	if sub == nil {
		return errors.New("nil subscriber")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	set, ok := b.subscribers[channel]
	if !ok {
		set = make(map[Subscriber]struct{})
		b.subscribers[channel] = set
	}
	set[sub] = struct{}{}
	return nil
}

// Unsubscribe removes the registration and drops the channel once it has no subscribers.
func (b *Bus) Unsubscribe(channel string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.subscribers[channel]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.subscribers, channel)
	}
}

// Publish delivers msg to every current subscriber of channel. Messages on
// channels without subscribers are dropped. Subscriber failures are logged
// and never returned.
func (b *Bus) Publish(channel string, msg repair_tracker.Message) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	set := b.subscribers[channel]
	snapshot := make([]Subscriber, 0, len(set))
	for sub := range set {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	metrics.RecordPublish(channel)
	for _, sub := range snapshot {
		b.notify(channel, sub, msg)
	}
}

// notify isolates one subscriber: errors and panics are reported, not propagated.
func (b *Bus) notify(channel string, sub Subscriber, msg repair_tracker.Message) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordDelivery(metrics.DeliveryPanic)
			b.log.Errorw("bus_subscriber_panic", "channel", channel, "panic", fmt.Sprint(r))
		}
	}()
	if err := sub.Notify(msg); err != nil {
		metrics.RecordDelivery(metrics.DeliveryError)
		b.log.Warnw("bus_subscriber_failed", "channel", channel, "err", err)
		return
	}
	metrics.RecordDelivery(metrics.DeliveryOK)
}

// SubscriberCount returns the number of subscribers currently registered on channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[channel])
}

// Channels lists the channels that currently have subscribers, sorted.
func (b *Bus) Channels() []string {
	b.mu.Lock()
	out := make([]string, 0, len(b.subscribers))
	for ch := range b.subscribers {
		out = append(out, ch)
	}
	b.mu.Unlock()
	sort.Strings(out)
	return out
}

// Close drops every subscription. Later publishes are ignored and subscribes fail with ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subscribers = make(map[string]map[Subscriber]struct{})
}
