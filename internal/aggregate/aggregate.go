// Package aggregate derives an order's lifecycle timestamps from its units.
package aggregate

import (
	"time"

	"repair_tracker/internal/models"
)

// Recalculate updates o.Started and o.Finished from the ending flags of the
// current statuses of its units (one flag per unit) and reports whether
// either field changed.
//
// Started is set once units exist and is only cleared when the order has no
// units left. Finished is set while every unit sits on an ending status and
// cleared as soon as one does not.
func Recalculate(o *models.RepairOrder, endings []bool, now time.Time) bool {
	if len(endings) == 0 {
		changed := o.Started != nil || o.Finished != nil
		o.Started, o.Finished = nil, nil
		return changed
	}

	changed := false
	now = now.UTC()

	if o.Started == nil {
		o.Started = timePtr(now)
		changed = true
	}

	allEnding := true
	for _, e := range endings {
		if !e {
			allEnding = false
			break
		}
	}

	switch {
	case allEnding && o.Finished == nil:
		o.Finished = timePtr(now)
		changed = true
	case !allEnding && o.Finished != nil:
		o.Finished = nil
		changed = true
	}
	return changed
}

// Endings maps each unit to whether its current status is an ending status.
// Units whose status is unknown count as not ending.
func Endings(units []models.RepairUnit, statuses map[int64]models.Status) []bool {
	out := make([]bool, len(units))
	for i, u := range units {
		out[i] = statuses[u.CurrentStatusID].IsEnding
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }
