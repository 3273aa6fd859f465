package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repair_tracker"
	"repair_tracker/internal/repository"
	"repair_tracker/internal/repository/db"
	"repair_tracker/internal/service"
)

type discard struct{}

func (discard) Publish(string, repair_tracker.Message) {}

const sample = `
assignees:
  - name: alice
  - name: bob
    is_active: false
statuses:
  - status: Open
    can_use_for_order: true
  - status: Repaired
    is_ending_status: true
    can_use_for_machine: true
unit_models:
  - name: S19
`

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newCatalog(t *testing.T) service.Catalog {
	t.Helper()
	conn, err := db.InitDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return service.NewService(repository.NewRepository(conn), discard{}, service.Options{})
}

func TestLoad(t *testing.T) {
	d, err := Load(writeSeed(t, sample))
	require.NoError(t, err)

	require.Len(t, d.Assignees, 2)
	require.NotNil(t, d.Assignees[1].IsActive)
	assert.False(t, *d.Assignees[1].IsActive)
	require.Len(t, d.Statuses, 2)
	assert.True(t, d.Statuses[1].IsEnding)
	assert.Equal(t, "S19", d.UnitModels[0].Name)

	_, err = Load(writeSeed(t, "colors: [red]\n"))
	assert.Error(t, err, "unknown sections are rejected")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestApply_OnlyIntoEmptyTables(t *testing.T) {
	ctx := context.Background()
	cat := newCatalog(t)
	d, err := Load(writeSeed(t, sample))
	require.NoError(t, err)

	require.NoError(t, Apply(ctx, cat, d, nil))

	assignees, err := cat.ListAssignees(ctx, false)
	require.NoError(t, err)
	assert.Len(t, assignees, 2)
	active, err := cat.ListAssignees(ctx, true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	statuses, err := cat.ListStatuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].CanUseForOrder)
	assert.True(t, statuses[1].IsEnding)

	// a second run must not duplicate anything
	require.NoError(t, Apply(ctx, cat, d, nil))
	statuses, err = cat.ListStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, statuses, 2)
	unitModels, err := cat.ListUnitModels(ctx)
	require.NoError(t, err)
	assert.Len(t, unitModels, 1)
}
