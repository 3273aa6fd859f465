package handlers

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"

	"repair_tracker"
	"repair_tracker/internal/bus"
	"repair_tracker/internal/models"
	"repair_tracker/internal/registry"
	"repair_tracker/internal/service"
)

// ---- Service Mocks ----

type mockCatalog struct {
	mu sync.Mutex

	assignees  []models.Assignee
	statuses   []models.Status
	unitModels []models.UnitModel
	listErr    error
	saveErr    error
	deleteErr  error

	lastActiveOnly bool
	savedAssignees []service.AssigneeParams
	deleted        []string
}

func (m *mockCatalog) SaveAssignee(ctx context.Context, p service.AssigneeParams) (models.Assignee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return models.Assignee{}, m.saveErr
	}
	m.savedAssignees = append(m.savedAssignees, p)
	return models.Assignee{ID: int64(len(m.savedAssignees))}, nil
}
func (m *mockCatalog) DeleteAssignee(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, key)
	return nil
}
func (m *mockCatalog) ListAssignees(ctx context.Context, activeOnly bool) ([]models.Assignee, error) {
	m.lastActiveOnly = activeOnly
	return m.assignees, m.listErr
}
func (m *mockCatalog) SaveStatus(ctx context.Context, p service.StatusParams) (models.Status, error) {
	return models.Status{}, m.saveErr
}
func (m *mockCatalog) DeleteStatus(ctx context.Context, key string) error { return m.deleteErr }
func (m *mockCatalog) ListStatuses(ctx context.Context) ([]models.Status, error) {
	return m.statuses, m.listErr
}
func (m *mockCatalog) SaveUnitModel(ctx context.Context, p service.UnitModelParams) (models.UnitModel, error) {
	return models.UnitModel{}, m.saveErr
}
func (m *mockCatalog) DeleteUnitModel(ctx context.Context, key string) error { return m.deleteErr }
func (m *mockCatalog) ListUnitModels(ctx context.Context) ([]models.UnitModel, error) {
	return m.unitModels, m.listErr
}

type mockOrders struct {
	orders  []models.RepairOrder
	details service.OrderDetails
	err     error
	lastKey string
}

func (m *mockOrders) SaveOrder(ctx context.Context, p service.OrderParams) (models.RepairOrder, error) {
	return models.RepairOrder{}, m.err
}
func (m *mockOrders) DeleteOrder(ctx context.Context, key string) error { return m.err }
func (m *mockOrders) GetOrder(ctx context.Context, key string) (service.OrderDetails, error) {
	m.lastKey = key
	return m.details, m.err
}
func (m *mockOrders) ListOrders(ctx context.Context) ([]models.RepairOrder, error) {
	return m.orders, m.err
}

type mockUnits struct {
	mu           sync.Mutex
	err          error
	lastOrderKey string
	saved        []service.UnitParams
}

func (m *mockUnits) SaveUnit(ctx context.Context, orderKey string, p service.UnitParams) (models.RepairUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOrderKey = orderKey
	if m.err != nil {
		return models.RepairUnit{}, m.err
	}
	m.saved = append(m.saved, p)
	return models.RepairUnit{}, nil
}
func (m *mockUnits) DeleteUnit(ctx context.Context, orderKey, unitKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastOrderKey = orderKey
	return m.err
}

type mockEventLog struct {
	resp    []models.Entry
	err     error
	lastKey string
	last    service.LogFilter
}

func (m *mockEventLog) ListUnitEvents(ctx context.Context, unitKey string, f service.LogFilter) ([]models.Entry, error) {
	m.lastKey = unitKey
	m.last = f
	return m.resp, m.err
}

// mockSnapshots answers every channel in known with an empty update.
type mockSnapshots struct {
	known map[string]bool
}

func (m *mockSnapshots) Snapshot(ctx context.Context, channel string) (repair_tracker.Message, error) {
	if !m.known[channel] {
		return repair_tracker.Message{}, service.ErrValidation
	}
	return repair_tracker.UpdateMessage(channel), nil
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, registry.New(bus.New(nil), nil), nil, Options{})
	return h.InitRoutes()
}
