package registry

import (
	"sync"

	"repair_tracker"
	"repair_tracker/internal/metrics"
)

// Connection is one client's bus subscriber. Notify never blocks: messages
// go into a bounded queue drained by a single writer goroutine, which is the
// only caller of Transport.Send.
type Connection struct {
	id        string
	reg       *Registry
	transport Transport

	// guarded by reg.mu
	channels map[string]struct{}

	queue    chan repair_tracker.Message
	done     chan struct{}
	doneOnce sync.Once
}

func (c *Connection) ID() string { return c.id }

// Notify enqueues msg. A full queue marks the client as a slow consumer and
// disconnects it.
func (c *Connection) Notify(msg repair_tracker.Message) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	select {
	case c.queue <- msg:
		return nil
	case <-c.done:
		return nil
	default:
	}

	metrics.RecordDropped()
	c.reg.log.Warnw("registry_slow_consumer", "websocket_id", c.id, "channel", msg.Channel)
	c.reg.Disconnect(c.id)
	return ErrQueueFull
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.queue:
			if err := c.transport.Send(msg); err != nil {
				c.reg.log.Infow("registry_send_failed", "websocket_id", c.id, "err", err)
				c.reg.Disconnect(c.id)
				return
			}
		}
	}
}

func (c *Connection) shutdown() {
	c.doneOnce.Do(func() {
		close(c.done)
		if err := c.transport.Close(); err != nil {
			c.reg.log.Debugw("registry_transport_close_failed", "websocket_id", c.id, "err", err)
		}
	})
}
