package service

import (
	"time"

	"repair_tracker/internal/models"
)

// Params decode straight from websocket update items. A missing Key creates
// the entity; nil fields are left unchanged on update.

type AssigneeParams struct {
	Key      string  `json:"key"`
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

type StatusParams struct {
	Key                string  `json:"key"`
	Status             *string `json:"status"`
	Color              *string `json:"color"`
	IsEnding           *bool   `json:"is_ending_status"`
	CanUseForOrder     *bool   `json:"can_use_for_order"`
	CanUseForMachine   *bool   `json:"can_use_for_machine"`
	CanUseForHashboard *bool   `json:"can_use_for_hashboard"`
}

type UnitModelParams struct {
	Key  string  `json:"key"`
	Name *string `json:"name"`
}

// OrderParams never carries started/finished; those are derived from units.
type OrderParams struct {
	Key              string     `json:"key"`
	Name             *string    `json:"name"`
	StatusKey        *string    `json:"status_key"`
	Summary          *string    `json:"summary"`
	Color            *string    `json:"color"`
	Received         *time.Time `json:"received"`
	ReceivedQuantity *int       `json:"received_quantity"`
}

// UnitParams creates a unit (no Key: Type and StatusKey required, the
// status becomes the origin event) or updates one. On update StatusKey and
// AssigneeKey append a status event; RemoveEvent is applied before
// AppendEvent.
type UnitParams struct {
	Key         string           `json:"key"`
	Serial      *string          `json:"serial"`
	Type        *models.UnitType `json:"type"`
	ModelKey    *string          `json:"model_key"`
	StatusKey   *string          `json:"status_key"`
	AssigneeKey *string          `json:"assignee_key"`
	Actor       string           `json:"actor"`
	AppendEvent *models.Entry    `json:"append_event"`
	RemoveEvent string           `json:"remove_event"`
}

// LogFilter supports history filtering by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "" or one of the entry types
}

// OrderDetails is an order together with its units.
type OrderDetails struct {
	Order models.RepairOrder  `json:"order"`
	Units []models.RepairUnit `json:"units"`
}
