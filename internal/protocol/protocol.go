// Package protocol decodes client websocket commands into a closed set of
// command kinds.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type CommandKind int

const (
	CommandSubscribe CommandKind = iota + 1
	CommandUpdate
	CommandDelete
	CommandPing
)

var (
	ErrMalformed      = errors.New("malformed command")
	ErrUnknownCommand = errors.New("unknown command type")
)

func (k CommandKind) String() string {
	switch k {
	case CommandSubscribe:
		return "subscribe"
	case CommandUpdate:
		return "update"
	case CommandDelete:
		return "delete"
	case CommandPing:
		return "ping"
	}
	return "unknown"
}

func parseKind(s string) (CommandKind, error) {
	switch s {
	case "subscribe":
		return CommandSubscribe, nil
	case "update":
		return CommandUpdate, nil
	case "delete":
		return CommandDelete, nil
	case "ping":
		return CommandPing, nil
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownCommand, s)
}

// Command is one decoded client frame. Channels is set for subscribe,
// Channel and Items for update and delete.
type Command struct {
	Kind     CommandKind
	Channels []string
	Channel  string
	Items    []json.RawMessage
}

type envelope struct {
	Type     string            `json:"type"`
	Channels []string          `json:"channels"`
	Channel  string            `json:"channel"`
	Data     []json.RawMessage `json:"data"`
}

// Parse decodes raw and checks the fields its kind requires.
func Parse(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	kind, err := parseKind(env.Type)
	if err != nil {
		return Command{}, err
	}

	cmd := Command{Kind: kind}
	switch kind {
	case CommandSubscribe:
		if len(env.Channels) == 0 {
			return Command{}, fmt.Errorf("%w: subscribe needs channels", ErrMalformed)
		}
		for _, ch := range env.Channels {
			if strings.TrimSpace(ch) == "" {
				return Command{}, fmt.Errorf("%w: empty channel name", ErrMalformed)
			}
		}
		cmd.Channels = env.Channels
	case CommandUpdate, CommandDelete:
		if env.Channel == "" {
			return Command{}, fmt.Errorf("%w: %s needs a channel", ErrMalformed, kind)
		}
		if env.Data == nil {
			return Command{}, fmt.Errorf("%w: %s needs data", ErrMalformed, kind)
		}
		cmd.Channel = env.Channel
		cmd.Items = env.Data
	case CommandPing:
	}
	return cmd, nil
}

// DeleteKey decodes one delete item, which must be a key string.
func DeleteKey(item json.RawMessage) (string, error) {
	var key string
	if err := json.Unmarshal(item, &key); err != nil {
		return "", fmt.Errorf("%w: delete items are key strings", ErrMalformed)
	}
	return key, nil
}
