package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"repair_tracker/internal/models"
)

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return c
}

var unitCols = []string{
	"id", "serial", "type", "model_id", "current_status_id", "current_assignee_id",
	"repair_order_id", "created", "updated_at", "events_json",
}

func TestUnitSQLite_Create_StoresEventsAsJSON(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	created := time.Date(2025, 4, 2, 10, 0, 0, 500, time.UTC)
	u := models.RepairUnit{
		Serial:          "SN-1",
		Type:            models.UnitTypeMachine,
		CurrentStatusID: 2,
		RepairOrderID:   5,
		Created:         created,
		UpdatedAt:       created,
		Events: []models.Entry{{
			ID:        "e1",
			Timestamp: created,
			Payload:   models.StatusPayload{StatusKey: "ST-2"},
		}},
	}

	eventsJSON := sqlmockArgumentFunc(func(v driver.Value) bool {
		s, ok := v.(string)
		if !ok {
			return false
		}
		var entries []models.Entry
		if err := json.Unmarshal([]byte(s), &entries); err != nil {
			return false
		}
		return len(entries) == 1 && entries[0].ID == "e1" && entries[0].IsStatus()
	})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO repair_units")).
		WithArgs(
			"SN-1", "machine",
			sql.NullInt64{}, // model
			int64(2),
			sql.NullInt64{}, // assignee
			int64(5),
			"2025-04-02T10:00:00.0000005Z",
			"2025-04-02T10:00:00.0000005Z",
			eventsJSON,
		).
		WillReturnResult(sqlmock.NewResult(11, 1))

	id, err := NewUnitSQLite(db).Create(ctx(t), u)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id != 11 {
		t.Fatalf("id = %d; want 11", id)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUnitSQLite_Get_DecodesRow(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	events := `[{"id":"e1","type":"status","timestamp":"2025-04-02T10:00:00Z","status_key":"ST-2","assignee":"AS-3"},` +
		`{"id":"e2","type":"hashrate_24hr","timestamp":"2025-04-03T10:00:00Z","hashrate_ths":98.5}]`
	rows := sqlmock.NewRows(unitCols).AddRow(
		4, "SN-9", "hashboard", 6, 2, 3, 5,
		"2025-04-02T10:00:00Z", "2025-04-02T10:00:00Z", events,
	)
	mock.ExpectQuery(regexp.QuoteMeta(selectUnitSQL)).WithArgs(int64(4)).WillReturnRows(rows)

	u, err := NewUnitSQLite(db).Get(ctx(t), 4)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if u.Key() != "RU-4" || u.Type != models.UnitTypeHashboard {
		t.Fatalf("unexpected unit: %+v", u)
	}
	if u.ModelID == nil || *u.ModelID != 6 || u.CurrentAssigneeID == nil || *u.CurrentAssigneeID != 3 {
		t.Fatalf("nullable ids not decoded: %+v", u)
	}
	if len(u.Events) != 2 {
		t.Fatalf("events = %d; want 2", len(u.Events))
	}
	if hr, ok := u.Events[1].Payload.(models.HashratePayload); !ok || hr.HashrateTHs != 98.5 {
		t.Fatalf("unexpected hashrate payload: %#v", u.Events[1].Payload)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUnitSQLite_Get_RejectsUnknownEventType(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(unitCols).AddRow(
		4, "", "machine", nil, 2, nil, 5,
		"2025-04-02T10:00:00Z", "2025-04-02T10:00:00Z",
		`[{"id":"e1","type":"teleport","timestamp":"2025-04-02T10:00:00Z"}]`,
	)
	mock.ExpectQuery(regexp.QuoteMeta(selectUnitSQL)).WithArgs(int64(4)).WillReturnRows(rows)

	_, err = NewUnitSQLite(db).Get(ctx(t), 4)
	if !errors.Is(err, models.ErrUnknownEntryType) {
		t.Fatalf("expected ErrUnknownEntryType, got %v", err)
	}
}

func TestUnitSQLite_DeleteMissing(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(deleteUnitSQL)).WithArgs(int64(8)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := NewUnitSQLite(db).Delete(ctx(t), 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransact_CommitsAndRollsBack(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	defer db.Close()
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(deleteUnitSQL)).WithArgs(int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Transact(ctx(t), func(tx *Repository) error {
		return tx.Units.Delete(context.Background(), 1)
	}); err != nil {
		t.Fatalf("transact commit path: %v", err)
	}

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()
	if err := repo.Transact(ctx(t), func(tx *Repository) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

// sqlmockArgumentFunc adapts a predicate to sqlmock.Argument.
type sqlmockArgumentFunc func(v driver.Value) bool

func (f sqlmockArgumentFunc) Match(v driver.Value) bool { return f(v) }
