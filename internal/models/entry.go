package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// EntryType tags the variant of an event log entry.
type EntryType string

const (
	EntryStatus     EntryType = "status"
	EntryComment    EntryType = "comment"
	EntryRepair     EntryType = "repair"
	EntryInspection EntryType = "inspection"
	EntrySummary    EntryType = "summary"
	EntryDiagnosis  EntryType = "diagnosis"
	EntryHashrate   EntryType = "hashrate_24hr"
)

var (
	ErrUnknownEntryType = errors.New("unknown event type")
	ErrInvalidPayload   = errors.New("invalid event payload")
)

// ParseEntryType normalizes s and rejects unknown tags.
func ParseEntryType(s string) (EntryType, error) {
	t := EntryType(strings.ToLower(strings.TrimSpace(s)))
	if _, err := newPayload(t); err != nil {
		return "", err
	}
	return t, nil
}

// Payload is the type-specific part of an Entry. The set of implementations is closed.
type Payload interface {
	Type() EntryType
	Validate() error
}

type StatusPayload struct {
	StatusKey string `json:"status_key"`
	Assignee  string `json:"assignee,omitempty"`
}

type CommentPayload struct {
	Text string `json:"text"`
}

type RepairPayload struct {
	Components []string `json:"components"`
	Notes      string   `json:"notes,omitempty"`
}

type InspectionPayload struct {
	Passed bool   `json:"passed"`
	Notes  string `json:"notes,omitempty"`
}

type SummaryPayload struct {
	Text string `json:"text"`
}

type DiagnosisPayload struct {
	Issues []string `json:"issues,omitempty"`
	Notes  string   `json:"notes,omitempty"`
}

type HashratePayload struct {
	HashrateTHs float64 `json:"hashrate_ths"`
}

func (StatusPayload) Type() EntryType     { return EntryStatus }
func (CommentPayload) Type() EntryType    { return EntryComment }
func (RepairPayload) Type() EntryType     { return EntryRepair }
func (InspectionPayload) Type() EntryType { return EntryInspection }
func (SummaryPayload) Type() EntryType    { return EntrySummary }
func (DiagnosisPayload) Type() EntryType  { return EntryDiagnosis }
func (HashratePayload) Type() EntryType   { return EntryHashrate }

func (p StatusPayload) Validate() error {
	if _, err := ParseKeyAs(p.StatusKey, PrefixStatus); err != nil {
		return fmt.Errorf("%w: status_key: %v", ErrInvalidPayload, err)
	}
	if p.Assignee != "" {
		if _, err := ParseKeyAs(p.Assignee, PrefixAssignee); err != nil {
			return fmt.Errorf("%w: assignee: %v", ErrInvalidPayload, err)
		}
	}
	return nil
}

func (p CommentPayload) Validate() error {
	return requireText("text", p.Text)
}

func (p RepairPayload) Validate() error {
	if len(p.Components) == 0 {
		return fmt.Errorf("%w: components must not be empty", ErrInvalidPayload)
	}
	for _, c := range p.Components {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("%w: blank component", ErrInvalidPayload)
		}
	}
	return nil
}

func (InspectionPayload) Validate() error { return nil }

func (p SummaryPayload) Validate() error {
	return requireText("text", p.Text)
}

func (p DiagnosisPayload) Validate() error {
	if len(p.Issues) == 0 && strings.TrimSpace(p.Notes) == "" {
		return fmt.Errorf("%w: diagnosis needs issues or notes", ErrInvalidPayload)
	}
	return nil
}

func (p HashratePayload) Validate() error {
	if p.HashrateTHs < 0 || math.IsNaN(p.HashrateTHs) || math.IsInf(p.HashrateTHs, 0) {
		return fmt.Errorf("%w: hashrate_ths must be a non-negative number", ErrInvalidPayload)
	}
	return nil
}

func requireText(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidPayload, field)
	}
	return nil
}

func newPayload(t EntryType) (Payload, error) {
	switch t {
	case EntryStatus:
		return &StatusPayload{}, nil
	case EntryComment:
		return &CommentPayload{}, nil
	case EntryRepair:
		return &RepairPayload{}, nil
	case EntryInspection:
		return &InspectionPayload{}, nil
	case EntrySummary:
		return &SummaryPayload{}, nil
	case EntryDiagnosis:
		return &DiagnosisPayload{}, nil
	case EntryHashrate:
		return &HashratePayload{}, nil
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownEntryType, string(t))
}

// deref turns the pointer produced by newPayload back into a value payload.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *StatusPayload:
		return *v
	case *CommentPayload:
		return *v
	case *RepairPayload:
		return *v
	case *InspectionPayload:
		return *v
	case *SummaryPayload:
		return *v
	case *DiagnosisPayload:
		return *v
	case *HashratePayload:
		return *v
	}
	return p
}

// Entry is one record of a unit's append-only event log.
//
// On the wire the payload fields are flattened next to the common fields:
//
//	{"id":"…","type":"status","actor":"AS-1","timestamp":"…","status_key":"ST-2"}
type Entry struct {
	ID        string
	Actor     string
	Timestamp time.Time
	Payload   Payload
}

func (e Entry) Type() EntryType {
	if e.Payload == nil {
		return ""
	}
	return e.Payload.Type()
}

func (e Entry) IsStatus() bool { return e.Type() == EntryStatus }

// Status returns the status payload when e is a status entry.
func (e Entry) Status() (StatusPayload, bool) {
	p, ok := e.Payload.(StatusPayload)
	return p, ok
}

// Validate checks the common fields and the payload.
func (e Entry) Validate() error {
	if e.Payload == nil {
		return fmt.Errorf("%w: missing payload", ErrUnknownEntryType)
	}
	if e.Actor != "" {
		if _, err := ParseKeyAs(e.Actor, PrefixAssignee); err != nil {
			return fmt.Errorf("%w: actor: %v", ErrInvalidPayload, err)
		}
	}
	return e.Payload.Validate()
}

type entryHeader struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("%w: missing payload", ErrUnknownEntryType)
	}
	head, err := json.Marshal(entryHeader{ID: e.ID, Type: e.Type(), Actor: e.Actor, Timestamp: e.Timestamp.UTC()})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var head struct {
		ID        string    `json:"id"`
		Type      string    `json:"type"`
		Actor     string    `json:"actor"`
		Timestamp time.Time `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	p, err := newPayload(EntryType(head.Type))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	*e = Entry{
		ID:        head.ID,
		Actor:     head.Actor,
		Timestamp: head.Timestamp.UTC(),
		Payload:   deref(p),
	}
	return nil
}
