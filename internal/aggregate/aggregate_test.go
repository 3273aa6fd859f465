package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair_tracker/internal/models"
)

var (
	t1 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
	t3 = t1.Add(2 * time.Hour)
)

func TestRecalculate_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		started      *time.Time
		finished     *time.Time
		endings      []bool
		wantStarted  *time.Time
		wantFinished *time.Time
		wantChanged  bool
	}{
		{"no units stays empty", nil, nil, nil, nil, nil, false},
		{"no units clears both", &t1, &t1, nil, nil, nil, true},
		{"first unit starts", nil, nil, []bool{false}, &t2, nil, true},
		{"first ending unit starts and finishes", nil, nil, []bool{true}, &t2, &t2, true},
		{"started never moves forward", &t1, nil, []bool{false, false}, &t1, nil, false},
		{"all ending finishes", &t1, nil, []bool{true, true}, &t1, &t2, true},
		{"finished is kept", &t1, &t1, []bool{true}, &t1, &t1, false},
		{"one unit leaves ending clears finished", &t1, &t1, []bool{true, false}, &t1, nil, true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := &models.RepairOrder{ID: 1, Started: tc.started, Finished: tc.finished}
			changed := Recalculate(o, tc.endings, t2)

			assert.Equal(t, tc.wantChanged, changed)
			assert.Equal(t, tc.wantStarted, o.Started)
			assert.Equal(t, tc.wantFinished, o.Finished)
		})
	}
}

// Mirrors the order lifecycle: U1 non-ending, U1 ending, U2 non-ending.
func TestRecalculate_OrderLifecycle(t *testing.T) {
	t.Parallel()

	o := &models.RepairOrder{ID: 7}

	require.True(t, Recalculate(o, []bool{false}, t1))
	require.NotNil(t, o.Started)
	assert.Nil(t, o.Finished)
	started := *o.Started

	require.True(t, Recalculate(o, []bool{true}, t2))
	require.NotNil(t, o.Finished)
	assert.True(t, o.Finished.Equal(t2))

	require.True(t, Recalculate(o, []bool{true, false}, t3))
	assert.Nil(t, o.Finished)
	assert.True(t, o.Started.Equal(started), "started must not move while units remain")

	// remove one unit and add another: started still unchanged
	assert.False(t, Recalculate(o, []bool{false}, t3))
	assert.True(t, o.Started.Equal(started))

	require.True(t, Recalculate(o, nil, t3))
	assert.Nil(t, o.Started)
	assert.Nil(t, o.Finished)
}

func TestEndings(t *testing.T) {
	t.Parallel()

	statuses := map[int64]models.Status{
		1: {ID: 1, IsEnding: false},
		2: {ID: 2, IsEnding: true},
	}
	units := []models.RepairUnit{
		{ID: 1, CurrentStatusID: 2},
		{ID: 2, CurrentStatusID: 1},
		{ID: 3, CurrentStatusID: 99},
	}
	assert.Equal(t, []bool{true, false, false}, Endings(units, statuses))
}
