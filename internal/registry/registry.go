// Package registry tracks client connections: their identities, channel
// memberships and outbound queues, and routes private error messages.
package registry

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"repair_tracker"
	"repair_tracker/internal/bus"
	"repair_tracker/internal/logger"
	"repair_tracker/internal/metrics"
)

const DefaultQueueSize = 64

var (
	ErrUnknownConnection = errors.New("unknown connection")
	ErrQueueFull         = errors.New("outbound queue full")
)

// Transport is the write side of a client connection. Send is only ever
// called from the connection's single writer goroutine.
type Transport interface {
	Send(msg repair_tracker.Message) error
	Close() error
}

// Broker is the part of the event bus the registry needs.
type Broker interface {
	Subscribe(channel string, sub bus.Subscriber) error
	Unsubscribe(channel string, sub bus.Subscriber)
	Publish(channel string, msg repair_tracker.Message)
}

type Registry struct {
	broker    Broker
	log       *logger.Logger
	queueSize int

	mu     sync.Mutex
	conns  map[string]*Connection
	routed bool // router subscribed to the error channel; guarded by mu

	router *errorRouter
}

type Option func(*Registry)

// WithQueueSize bounds each connection's outbound queue.
func WithQueueSize(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

func New(broker Broker, log *logger.Logger, opts ...Option) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	r := &Registry{
		broker:    broker,
		log:       log,
		queueSize: DefaultQueueSize,
		conns:     make(map[string]*Connection),
	}
	r.router = &errorRouter{reg: r}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers a transport under a fresh identity and starts its writer.
func (r *Registry) Connect(t Transport) string {
	c := &Connection{
		id:        uuid.NewString(),
		reg:       r,
		transport: t,
		channels:  make(map[string]struct{}),
		queue:     make(chan repair_tracker.Message, r.queueSize),
		done:      make(chan struct{}),
	}

	r.mu.Lock()
	if !r.routed {
		if err := r.broker.Subscribe(repair_tracker.ChannelMessages, r.router); err != nil {
			r.log.Errorw("registry_error_router_subscribe_failed", "err", err)
		} else {
			r.routed = true
		}
	}
	r.conns[c.id] = c
	r.mu.Unlock()

	metrics.ConnectionOpened()
	go c.writeLoop()

	r.log.Debugw("registry_connected", "websocket_id", c.id)
	return c.id
}

// SubscribeToChannels joins the connection to every channel it is not yet a
// member of and returns the newly joined ones. The private error channel is
// never joined explicitly.
func (r *Registry) SubscribeToChannels(id string, channels []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}

	var added []string
	for _, ch := range channels {
		if ch == repair_tracker.ChannelMessages {
			continue
		}
		if _, joined := c.channels[ch]; joined {
			continue
		}
		// Bus subscribe happens under the registry lock so a concurrent
		// Disconnect cannot miss a membership it has to undo.
		if err := r.broker.Subscribe(ch, c); err != nil {
			return added, err
		}
		c.channels[ch] = struct{}{}
		added = append(added, ch)
	}
	return added, nil
}

// Channels returns the channels the connection has joined.
func (r *Registry) Channels(id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return nil, ErrUnknownConnection
	}
	out := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		out = append(out, ch)
	}
	return out, nil
}

// Disconnect removes all bookkeeping for id, unsubscribes it everywhere and
// closes its transport. Safe to call repeatedly and concurrently.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	c, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	channels := make([]string, 0, len(c.channels))
	for ch := range c.channels {
		channels = append(channels, ch)
	}
	c.channels = nil
	r.mu.Unlock()

	for _, ch := range channels {
		r.broker.Unsubscribe(ch, c)
	}
	c.shutdown()
	metrics.ConnectionClosed()

	r.log.Debugw("registry_disconnected", "websocket_id", id, "channels", len(channels))
}

// Deliver queues msg for one connection.
func (r *Registry) Deliver(id string, msg repair_tracker.Message) error {
	r.mu.Lock()
	c, ok := r.conns[id]
	r.mu.Unlock()
	if !ok {
		return ErrUnknownConnection
	}
	return c.Notify(msg)
}

// SendError publishes a private error for id on the error channel.
func (r *Registry) SendError(id, text string) {
	r.broker.Publish(repair_tracker.ChannelMessages, repair_tracker.ErrorMessage(id, text))
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Close disconnects every connection and detaches the error router. A later
// Connect attaches it again.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Disconnect(id)
	}

	r.mu.Lock()
	r.broker.Unsubscribe(repair_tracker.ChannelMessages, r.router)
	r.routed = false
	r.mu.Unlock()
}

// errorRouter forwards error-channel messages to their target connection only.
type errorRouter struct {
	reg *Registry
}

func (e *errorRouter) Notify(msg repair_tracker.Message) error {
	if msg.WebsocketID == "" {
		return nil
	}
	err := e.reg.Deliver(msg.WebsocketID, msg)
	if errors.Is(err, ErrUnknownConnection) {
		return nil
	}
	return err
}
