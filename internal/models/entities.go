package models

import (
	"encoding/json"
	"time"

	"repair_tracker"
)

// UnitType distinguishes whole machines from individual hashboards.
type UnitType string

const (
	UnitTypeMachine   UnitType = "machine"
	UnitTypeHashboard UnitType = "hashboard"
)

func (t UnitType) Valid() bool {
	return t == UnitTypeMachine || t == UnitTypeHashboard
}

type Assignee struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

func (a Assignee) Key() string { return AssigneeKey(a.ID) }

func (a Assignee) MarshalJSON() ([]byte, error) {
	type plain Assignee
	return json.Marshal(struct {
		Key string `json:"key"`
		plain
	}{a.Key(), plain(a)})
}

type UnitModel struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (m UnitModel) Key() string { return UnitModelKey(m.ID) }

func (m UnitModel) MarshalJSON() ([]byte, error) {
	type plain UnitModel
	return json.Marshal(struct {
		Key string `json:"key"`
		plain
	}{m.Key(), plain(m)})
}

// Status is a workflow state. IsEnding marks statuses that count as finished for orders.
type Status struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	Color              string `json:"color"`
	IsEnding           bool   `json:"is_ending_status"`
	CanUseForOrder     bool   `json:"can_use_for_order"`
	CanUseForMachine   bool   `json:"can_use_for_machine"`
	CanUseForHashboard bool   `json:"can_use_for_hashboard"`
}

func (s Status) Key() string { return StatusKey(s.ID) }

// UsableFor reports whether the status may be set on a unit of type t.
func (s Status) UsableFor(t UnitType) bool {
	switch t {
	case UnitTypeMachine:
		return s.CanUseForMachine
	case UnitTypeHashboard:
		return s.CanUseForHashboard
	}
	return false
}

func (s Status) MarshalJSON() ([]byte, error) {
	type plain Status
	return json.Marshal(struct {
		Key string `json:"key"`
		plain
	}{s.Key(), plain(s)})
}

// RepairOrder groups units. Started and Finished are derived from its units.
type RepairOrder struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	StatusID         int64      `json:"status_id"`
	Summary          string     `json:"summary"`
	Color            string     `json:"color"`
	Created          time.Time  `json:"created"`
	Received         *time.Time `json:"received"`
	ReceivedQuantity *int       `json:"received_quantity"`
	Started          *time.Time `json:"started"`
	Finished         *time.Time `json:"finished"`
}

func (o RepairOrder) Key() string { return OrderKey(o.ID) }

// Channel returns the per-order channel name.
func (o RepairOrder) Channel() string { return repair_tracker.OrderChannel(o.Key()) }

func (o RepairOrder) MarshalJSON() ([]byte, error) {
	type plain RepairOrder
	return json.Marshal(struct {
		Key string `json:"key"`
		plain
	}{o.Key(), plain(o)})
}

// RepairUnit is a physical unit inside an order. CurrentStatusID, CurrentAssigneeID
// and UpdatedAt always mirror the latest status entry of Events.
type RepairUnit struct {
	ID                int64     `json:"id"`
	Serial            string    `json:"serial"`
	Type              UnitType  `json:"type"`
	ModelID           *int64    `json:"model_id"`
	CurrentStatusID   int64     `json:"current_status_id"`
	CurrentAssigneeID *int64    `json:"current_assignee_id"`
	RepairOrderID     int64     `json:"repair_order_id"`
	Created           time.Time `json:"created"`
	UpdatedAt         time.Time `json:"updated_at"`
	Events            []Entry   `json:"events_json"`
}

func (u RepairUnit) Key() string { return UnitKey(u.ID) }

func (u RepairUnit) MarshalJSON() ([]byte, error) {
	type plain RepairUnit
	p := plain(u)
	if p.Events == nil {
		p.Events = []Entry{}
	}
	return json.Marshal(struct {
		Key string `json:"key"`
		plain
	}{u.Key(), p})
}
