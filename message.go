package repair_tracker

import (
	"encoding/json"
	"strings"
)

// Kind is the "type" of a server frame.
type Kind string

const (
	KindUpdate     Kind = "update"
	KindDelete     Kind = "delete"
	KindError      Kind = "error"
	KindConnected  Kind = "connected"
	KindSubscribed Kind = "subscribed"
	KindPong       Kind = "pong"
)

// Fixed channel names. Per-order channels are built with OrderChannel.
const (
	ChannelAssignees  = "assignees"
	ChannelStatuses   = "statuses"
	ChannelUnitModels = "unit_models"
	ChannelOrders     = "orders"
	ChannelMessages   = "__messages__" // private, error routing only

	orderChannelPrefix = "order:"
)

// Message is the envelope exchanged over the bus and written to clients.
type Message struct {
	Channel     string   `json:"channel,omitempty"`
	Type        Kind     `json:"type"`
	Data        []any    `json:"data,omitempty"`
	WebsocketID string   `json:"websocket_id,omitempty"` // error target / connected identity
	Text        string   `json:"message,omitempty"`
	Channels    []string `json:"channels,omitempty"`
}

// MarshalJSON always emits data for update and delete frames, even when empty.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Type != KindUpdate && m.Type != KindDelete {
		return json.Marshal(plain(m))
	}
	data := m.Data
	if data == nil {
		data = []any{}
	}
	return json.Marshal(struct {
		plain
		Data []any `json:"data"`
	}{plain(m), data})
}

// UpdateMessage builds a broadcast carrying serialized entities.
func UpdateMessage(channel string, items ...any) Message {
	data := make([]any, 0, len(items))
	data = append(data, items...)
	return Message{Channel: channel, Type: KindUpdate, Data: data}
}

// DeleteMessage builds a broadcast carrying entity keys.
func DeleteMessage(channel string, keys ...string) Message {
	data := make([]any, 0, len(keys))
	for _, k := range keys {
		data = append(data, k)
	}
	return Message{Channel: channel, Type: KindDelete, Data: data}
}

// ErrorMessage builds a private error addressed to one connection.
func ErrorMessage(target, text string) Message {
	return Message{Channel: ChannelMessages, Type: KindError, WebsocketID: target, Text: text}
}

func ConnectedMessage(id string) Message {
	return Message{Type: KindConnected, WebsocketID: id}
}

func SubscribedMessage(channels []string) Message {
	return Message{Type: KindSubscribed, Channels: channels, Text: "Subscribed successfully"}
}

func PongMessage() Message {
	return Message{Type: KindPong}
}

// OrderChannel returns the channel carrying the units of the order with the given key (RO-n).
func OrderChannel(orderKey string) string {
	return orderChannelPrefix + orderKey
}

// OrderKeyFromChannel extracts the order key from a per-order channel name.
func OrderKeyFromChannel(channel string) (string, bool) {
	if !strings.HasPrefix(channel, orderChannelPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(channel, orderChannelPrefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// IsListChannel reports whether channel is one of the entity-list channels.
func IsListChannel(channel string) bool {
	switch channel {
	case ChannelAssignees, ChannelStatuses, ChannelUnitModels, ChannelOrders:
		return true
	}
	return false
}
