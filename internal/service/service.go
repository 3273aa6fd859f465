package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"repair_tracker"
	"repair_tracker/internal/logger"
	"repair_tracker/internal/models"
	"repair_tracker/internal/repository"
)

var (
	ErrNotFound   = repository.ErrNotFound
	ErrValidation = errors.New("validation failed")
	ErrInUse      = repository.ErrInUse
	ErrConflict   = repository.ErrConflict
)

// Publisher is the part of the event bus services publish on.
type Publisher interface {
	Publish(channel string, msg repair_tracker.Message)
}

// Catalog manages the reference entities: assignees, statuses and unit models.
type Catalog interface {
	SaveAssignee(ctx context.Context, p AssigneeParams) (models.Assignee, error)
	DeleteAssignee(ctx context.Context, key string) error
	ListAssignees(ctx context.Context, activeOnly bool) ([]models.Assignee, error)

	SaveStatus(ctx context.Context, p StatusParams) (models.Status, error)
	DeleteStatus(ctx context.Context, key string) error
	ListStatuses(ctx context.Context) ([]models.Status, error)

	SaveUnitModel(ctx context.Context, p UnitModelParams) (models.UnitModel, error)
	DeleteUnitModel(ctx context.Context, key string) error
	ListUnitModels(ctx context.Context) ([]models.UnitModel, error)
}

// Orders manages repair orders. Started/finished are never set directly.
type Orders interface {
	SaveOrder(ctx context.Context, p OrderParams) (models.RepairOrder, error)
	DeleteOrder(ctx context.Context, key string) error
	GetOrder(ctx context.Context, key string) (OrderDetails, error)
	ListOrders(ctx context.Context) ([]models.RepairOrder, error)
}

// Units manages the units of one order and their event logs.
type Units interface {
	SaveUnit(ctx context.Context, orderKey string, p UnitParams) (models.RepairUnit, error)
	DeleteUnit(ctx context.Context, orderKey, unitKey string) error
}

// EventLog exposes a unit's log with filtering access.
type EventLog interface {
	ListUnitEvents(ctx context.Context, unitKey string, f LogFilter) ([]models.Entry, error)
}

// Snapshots builds the initial update message for a freshly joined channel.
type Snapshots interface {
	Snapshot(ctx context.Context, channel string) (repair_tracker.Message, error)
}

type Service struct {
	Catalog
	Orders
	Units
	EventLog
	Snapshots
}

type Options struct {
	Log      *logger.Logger
	CacheTTL time.Duration
	Now      func() time.Time
}

func NewService(repos *repository.Repository, pub Publisher, opts Options) *Service {
	c := newCore(repos, pub, opts)
	return &Service{
		Catalog:   NewCatalogService(c),
		Orders:    NewOrderService(c),
		Units:     NewUnitService(c),
		EventLog:  NewEventLogService(c),
		Snapshots: NewSnapshotService(c),
	}
}

// core is the state shared by all services.
type core struct {
	repos *repository.Repository
	pub   Publisher
	locks *keyedMutex
	cache *snapshotCache
	log   *logger.Logger
	now   func() time.Time
}

func newCore(repos *repository.Repository, pub Publisher, opts Options) *core {
	if opts.Log == nil {
		opts.Log = logger.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &core{
		repos: repos,
		pub:   pub,
		locks: newKeyedMutex(),
		cache: newSnapshotCache(opts.CacheTTL),
		log:   opts.Log,
		now:   func() time.Time { return opts.Now().UTC() },
	}
}

// outbox collects what a mutation has to announce once it is committed.
type outbox struct {
	stale []string
	msgs  []repair_tracker.Message
}

func (o *outbox) update(channel string, items ...any) {
	o.stale = append(o.stale, channel)
	o.msgs = append(o.msgs, repair_tracker.UpdateMessage(channel, items...))
}

func (o *outbox) delete(channel string, keys ...string) {
	if len(keys) == 0 {
		return
	}
	o.stale = append(o.stale, channel)
	o.msgs = append(o.msgs, repair_tracker.DeleteMessage(channel, keys...))
}

// mutate runs fn in one transaction and, after commit, invalidates the
// affected snapshots and publishes the collected messages in order.
func (c *core) mutate(ctx context.Context, fn func(tx *repository.Repository, out *outbox) error) error {
	var out outbox
	if err := c.repos.Transact(ctx, func(tx *repository.Repository) error {
		return fn(tx, &out)
	}); err != nil {
		return err
	}
	c.cache.invalidate(out.stale...)
	for _, msg := range out.msgs {
		c.pub.Publish(msg.Channel, msg)
	}
	if len(out.msgs) > 0 {
		c.log.Debugw("service_mutation_published", "messages", len(out.msgs), "channels", out.stale)
	}
	return nil
}

func parseKey(key string, want models.Prefix) (int64, error) {
	id, err := models.ParseKeyAs(key, want)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return id, nil
}

func requireName(field string, v *string) (string, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return "", fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return strings.TrimSpace(*v), nil
}

func statusMap(ctx context.Context, repo repository.StatusRepo) (map[int64]models.Status, error) {
	list, err := repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]models.Status, len(list))
	for _, s := range list {
		out[s.ID] = s
	}
	return out, nil
}
