package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Prefix identifies the entity type of a key.
type Prefix string

const (
	PrefixAssignee  Prefix = "AS"
	PrefixStatus    Prefix = "ST"
	PrefixUnitModel Prefix = "UM"
	PrefixOrder     Prefix = "RO"
	PrefixUnit      Prefix = "RU"
)

var ErrInvalidKey = errors.New("invalid key")

// Key is a parsed <PREFIX>-<numeric-id> entity key.
type Key struct {
	Prefix Prefix
	ID     int64
}

func (k Key) String() string {
	return FormatKey(k.Prefix, k.ID)
}

func FormatKey(p Prefix, id int64) string {
	return string(p) + "-" + strconv.FormatInt(id, 10)
}

func knownPrefix(p Prefix) bool {
	switch p {
	case PrefixAssignee, PrefixStatus, PrefixUnitModel, PrefixOrder, PrefixUnit:
		return true
	}
	return false
}

// ParseKey parses keys such as "RO-12". Unknown prefixes and non-positive ids are rejected.
func ParseKey(s string) (Key, error) {
	prefix, num, ok := strings.Cut(s, "-")
	if !ok || strings.Contains(num, "-") {
		return Key{}, fmt.Errorf("%w %q", ErrInvalidKey, s)
	}
	p := Prefix(prefix)
	if !knownPrefix(p) {
		return Key{}, fmt.Errorf("%w %q: unknown prefix %q", ErrInvalidKey, s, prefix)
	}
	id, err := strconv.ParseInt(num, 10, 64)
	if err != nil || id <= 0 {
		return Key{}, fmt.Errorf("%w %q: bad id", ErrInvalidKey, s)
	}
	// RO-01 and RO-+1 name RO-1; only one spelling may reach locks and channels.
	if FormatKey(p, id) != s {
		return Key{}, fmt.Errorf("%w %q: not canonical", ErrInvalidKey, s)
	}
	return Key{Prefix: p, ID: id}, nil
}

// ParseKeyAs parses s and requires the given prefix, returning the numeric id.
func ParseKeyAs(s string, want Prefix) (int64, error) {
	k, err := ParseKey(s)
	if err != nil {
		return 0, err
	}
	if k.Prefix != want {
		return 0, fmt.Errorf("%w %q: expected %s key", ErrInvalidKey, s, want)
	}
	return k.ID, nil
}

func AssigneeKey(id int64) string  { return FormatKey(PrefixAssignee, id) }
func StatusKey(id int64) string    { return FormatKey(PrefixStatus, id) }
func UnitModelKey(id int64) string { return FormatKey(PrefixUnitModel, id) }
func OrderKey(id int64) string     { return FormatKey(PrefixOrder, id) }
func UnitKey(id int64) string      { return FormatKey(PrefixUnit, id) }
