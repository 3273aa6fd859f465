package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repair_tracker"
	"repair_tracker/internal/models"
	"repair_tracker/internal/repository"
	"repair_tracker/internal/repository/db"
)

type recorder struct {
	mu   sync.Mutex
	msgs []repair_tracker.Message
}

func (r *recorder) Publish(channel string, msg repair_tracker.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) on(channel string) []repair_tracker.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []repair_tracker.Message
	for _, m := range r.msgs {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// stepClock advances one second per reading so timestamps are distinct.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	svc   *Service
	pub   *recorder
	repo  *repository.Repository
	conn  *sql.DB
	locks *keyedMutex

	open    models.Status // orders only
	working models.Status // units, not ending
	done    models.Status // units, ending
	alice   models.Assignee
	order   models.RepairOrder
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func unitType(t models.UnitType) *models.UnitType { return &t }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn, err := db.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	repo := repository.NewRepository(conn)
	pub := &recorder{}
	clock := &stepClock{t: time.Date(2025, 8, 1, 8, 0, 0, 0, time.UTC)}
	svc := NewService(repo, pub, Options{Now: clock.Now, CacheTTL: time.Minute})

	ctx := context.Background()
	f := &fixture{svc: svc, pub: pub, repo: repo, conn: conn, locks: svc.Units.(*UnitService).locks}

	f.open, err = svc.SaveStatus(ctx, StatusParams{Status: strPtr("Open"), CanUseForOrder: boolPtr(true)})
	require.NoError(t, err)
	f.working, err = svc.SaveStatus(ctx, StatusParams{
		Status: strPtr("In repair"), CanUseForMachine: boolPtr(true), CanUseForHashboard: boolPtr(true),
	})
	require.NoError(t, err)
	f.done, err = svc.SaveStatus(ctx, StatusParams{
		Status: strPtr("Repaired"), IsEnding: boolPtr(true), CanUseForMachine: boolPtr(true), CanUseForHashboard: boolPtr(true),
	})
	require.NoError(t, err)
	f.alice, err = svc.SaveAssignee(ctx, AssigneeParams{Name: strPtr("alice")})
	require.NoError(t, err)
	f.order, err = svc.SaveOrder(ctx, OrderParams{Name: strPtr("Batch 1"), StatusKey: strPtr(f.open.Key())})
	require.NoError(t, err)

	pub.reset()
	return f
}

func (f *fixture) createUnit(t *testing.T, status models.Status) models.RepairUnit {
	t.Helper()
	u, err := f.svc.SaveUnit(context.Background(), f.order.Key(), UnitParams{
		Type:      unitType(models.UnitTypeMachine),
		StatusKey: strPtr(status.Key()),
	})
	require.NoError(t, err)
	return u
}

func (f *fixture) getOrder(t *testing.T) OrderDetails {
	t.Helper()
	d, err := f.svc.GetOrder(context.Background(), f.order.Key())
	require.NoError(t, err)
	return d
}
