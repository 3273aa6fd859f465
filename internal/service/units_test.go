package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair_tracker"
	"repair_tracker/internal/eventlog"
	"repair_tracker/internal/models"
)

func TestUnits_OrderLifecycleFollowsUnitStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d := f.getOrder(t)
	assert.Nil(t, d.Order.Started)
	assert.Nil(t, d.Order.Finished)

	u1 := f.createUnit(t, f.working)
	d = f.getOrder(t)
	require.NotNil(t, d.Order.Started)
	assert.Nil(t, d.Order.Finished)
	started := *d.Order.Started

	_, err := f.svc.SaveUnit(ctx, f.order.Key(), UnitParams{Key: u1.Key(), StatusKey: strPtr(f.done.Key())})
	require.NoError(t, err)
	d = f.getOrder(t)
	assert.NotNil(t, d.Order.Finished)

	f.createUnit(t, f.working)
	d = f.getOrder(t)
	assert.Nil(t, d.Order.Finished, "not every unit is on an ending status")
	require.NotNil(t, d.Order.Started)
	assert.True(t, d.Order.Started.Equal(started), "started must not move")

	// every change of the pair was announced on the orders channel
	assert.Len(t, f.pub.on(repair_tracker.ChannelOrders), 3)
}

func TestUnits_CreatePublishesUnitWithOriginEvent(t *testing.T) {
	f := newFixture(t)

	u, err := f.svc.SaveUnit(context.Background(), f.order.Key(), UnitParams{
		Serial:      strPtr(" SN-001 "),
		Type:        unitType(models.UnitTypeHashboard),
		StatusKey:   strPtr(f.working.Key()),
		AssigneeKey: strPtr(f.alice.Key()),
		Actor:       f.alice.Key(),
	})
	require.NoError(t, err)

	assert.Equal(t, "SN-001", u.Serial)
	assert.Equal(t, f.working.ID, u.CurrentStatusID)
	require.NotNil(t, u.CurrentAssigneeID)
	assert.Equal(t, f.alice.ID, *u.CurrentAssigneeID)
	require.Len(t, u.Events, 1)
	assert.True(t, u.Events[0].IsStatus())
	assert.True(t, u.Events[0].Timestamp.Equal(u.UpdatedAt))

	msgs := f.pub.on(f.order.Channel())
	require.Len(t, msgs, 1)
	assert.Equal(t, repair_tracker.KindUpdate, msgs[0].Type)
	got, ok := msgs[0].Data[0].(models.RepairUnit)
	require.True(t, ok)
	assert.Equal(t, u.Key(), got.Key())
}

func TestUnits_CreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		order string
		p     UnitParams
	}{
		{"missing type", f.order.Key(), UnitParams{StatusKey: strPtr(f.working.Key())}},
		{"bad type", f.order.Key(), UnitParams{Type: unitType("toaster"), StatusKey: strPtr(f.working.Key())}},
		{"missing status", f.order.Key(), UnitParams{Type: unitType(models.UnitTypeMachine)}},
		{"status not for units", f.order.Key(), UnitParams{Type: unitType(models.UnitTypeMachine), StatusKey: strPtr(f.open.Key())}},
		{"wrong key prefix", f.order.Key(), UnitParams{Type: unitType(models.UnitTypeMachine), StatusKey: strPtr("AS-1")}},
		{"unknown assignee", f.order.Key(), UnitParams{Type: unitType(models.UnitTypeMachine), StatusKey: strPtr(f.working.Key()), AssigneeKey: strPtr("AS-99")}},
		{"unknown model", f.order.Key(), UnitParams{Type: unitType(models.UnitTypeMachine), StatusKey: strPtr(f.working.Key()), ModelKey: strPtr("UM-5")}},
		{"unknown order", "RO-404", UnitParams{Type: unitType(models.UnitTypeMachine), StatusKey: strPtr(f.working.Key())}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.SaveUnit(ctx, tc.order, tc.p)
			assert.Error(t, err)
		})
	}
	assert.Zero(t, f.pub.count(), "rejected mutations publish nothing")
	assert.Empty(t, f.getOrder(t).Units)
}

func TestUnits_DeletingOriginIsRejectedSilently(t *testing.T) {
	f := newFixture(t)
	u := f.createUnit(t, f.working)
	f.pub.reset()

	_, err := f.svc.SaveUnit(context.Background(), f.order.Key(), UnitParams{Key: u.Key(), RemoveEvent: u.Events[0].ID})
	require.ErrorIs(t, err, eventlog.ErrOriginImmutable)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, f.pub.count())
	units := f.getOrder(t).Units
	require.Len(t, units, 1)
	assert.Len(t, units[0].Events, 1)
}

func TestUnits_RemovingStatusEventRevertsAndRecalculates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUnit(t, f.working)

	u, err := f.svc.SaveUnit(ctx, f.order.Key(), UnitParams{Key: u.Key(), StatusKey: strPtr(f.done.Key())})
	require.NoError(t, err)
	require.NotNil(t, f.getOrder(t).Order.Finished)
	statusEvent := u.Events[len(u.Events)-1]

	u, err = f.svc.SaveUnit(ctx, f.order.Key(), UnitParams{Key: u.Key(), RemoveEvent: statusEvent.ID})
	require.NoError(t, err)
	assert.Equal(t, f.working.ID, u.CurrentStatusID)
	assert.True(t, u.Events[0].Timestamp.Equal(u.UpdatedAt))
	assert.Nil(t, f.getOrder(t).Order.Finished)
}

func TestUnits_AppendNonStatusEventKeepsDerived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUnit(t, f.working)
	f.pub.reset()

	got, err := f.svc.SaveUnit(ctx, f.order.Key(), UnitParams{
		Key:         u.Key(),
		AppendEvent: &models.Entry{Payload: models.RepairPayload{Components: []string{"psu"}}},
		Actor:       f.alice.Key(),
	})
	require.NoError(t, err)
	require.Len(t, got.Events, 2)
	assert.Equal(t, f.alice.Key(), got.Events[1].Actor)
	assert.True(t, u.UpdatedAt.Equal(got.UpdatedAt))
	assert.Empty(t, f.pub.on(repair_tracker.ChannelOrders), "order pair unaffected")
	assert.Len(t, f.pub.on(f.order.Channel()), 1)
}

func TestUnits_UnitOfAnotherOrderIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUnit(t, f.working)

	other, err := f.svc.SaveOrder(ctx, OrderParams{Name: strPtr("Batch 2"), StatusKey: strPtr(f.open.Key())})
	require.NoError(t, err)

	_, err = f.svc.SaveUnit(ctx, other.Key(), UnitParams{Key: u.Key(), Serial: strPtr("x")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteUnit(ctx, other.Key(), u.Key()), ErrNotFound)
}

func TestUnits_DeleteLastUnitClearsPair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUnit(t, f.done)
	require.NotNil(t, f.getOrder(t).Order.Finished)
	f.pub.reset()

	require.NoError(t, f.svc.DeleteUnit(ctx, f.order.Key(), u.Key()))

	d := f.getOrder(t)
	assert.Empty(t, d.Units)
	assert.Nil(t, d.Order.Started)
	assert.Nil(t, d.Order.Finished)

	msgs := f.pub.on(f.order.Channel())
	require.Len(t, msgs, 1)
	assert.Equal(t, repair_tracker.KindDelete, msgs[0].Type)
	assert.Equal(t, []any{u.Key()}, msgs[0].Data)
}

func TestUnits_ConcurrentStatusAppendsAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUnit(t, f.working)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		status := f.working
		if i%2 == 0 {
			status = f.done
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.SaveUnit(ctx, f.order.Key(), UnitParams{Key: u.Key(), StatusKey: strPtr(status.Key())})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	units := f.getOrder(t).Units
	require.Len(t, units, 1)
	got := units[0]
	require.Len(t, got.Events, n+1, "no append may be lost")

	last, ok := eventlog.Current(&got)
	require.True(t, ok)
	p, _ := last.Status()
	assert.Equal(t, p.StatusKey, models.StatusKey(got.CurrentStatusID))
	assert.True(t, last.Timestamp.Equal(got.UpdatedAt))
}

func TestUnits_NonCanonicalOrderKeyCannotBypassOrderLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUnit(t, f.working)
	f.pub.reset()

	unlock := f.locks.Lock(f.order.Key())

	padded := fmt.Sprintf("RO-0%d", f.order.ID)
	_, err := f.svc.SaveUnit(ctx, padded, UnitParams{Key: u.Key(), StatusKey: strPtr(f.done.Key())})
	assert.ErrorIs(t, err, models.ErrInvalidKey)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, f.svc.DeleteUnit(ctx, padded, u.Key()), models.ErrInvalidKey)
	assert.Zero(t, f.pub.count())

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.SaveUnit(ctx, f.order.Key(), UnitParams{Key: u.Key(), StatusKey: strPtr(f.done.Key())})
		done <- err
	}()
	select {
	case <-done:
		t.Fatal("unit save finished while the order lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("unit save did not resume after unlock")
	}
	assert.NotEmpty(t, f.pub.on(f.order.Channel()))
}

func TestUnits_StartedSurvivesUnitTurnover(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u1 := f.createUnit(t, f.working)
	d := f.getOrder(t)
	require.NotNil(t, d.Order.Started)
	started := *d.Order.Started
	f.pub.reset()

	assertStarted := func(step string) {
		t.Helper()
		d := f.getOrder(t)
		require.NotNil(t, d.Order.Started, step)
		assert.True(t, d.Order.Started.Equal(started), "%s: started moved to %v", step, d.Order.Started)
		assert.Nil(t, d.Order.Finished, step)
	}

	f.createUnit(t, f.working)
	assertStarted("second unit added")

	require.NoError(t, f.svc.DeleteUnit(ctx, f.order.Key(), u1.Key()))
	assertStarted("first unit removed")

	f.createUnit(t, f.working)
	assertStarted("third unit added")

	assert.Empty(t, f.pub.on(repair_tracker.ChannelOrders), "the lifecycle pair never changed")
}
