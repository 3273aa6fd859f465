package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"repair_tracker/internal/models"
)

func fixedZone(name string, offsetSec int) *time.Location {
	return time.FixedZone(name, offsetSec)
}

func mustTimeIn(loc *time.Location, y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, loc)
}

// normalizeToUTC

func Test_normalizeToUTC(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   time.Time
		want func(time.Time) bool
	}{
		{
			name: "zero time remains zero",
			in:   time.Time{},
			want: func(out time.Time) bool { return out.IsZero() },
		},
		{
			name: "non-UTC converted to UTC preserving instant",
			in:   mustTimeIn(fixedZone("UTC+3", 3*3600), 2025, time.August, 1, 12, 34, 56),
			want: func(out time.Time) bool {
				exp := time.Date(2025, time.August, 1, 9, 34, 56, 0, time.UTC)
				return out.Location() == time.UTC && out.Equal(exp)
			},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := normalizeToUTC(tc.in)
			if !tc.want(got) {
				t.Fatalf("unexpected normalizeToUTC result: %v (loc=%v)", got, got.Location())
			}
		})
	}
}

// normalizeAndValidateFilter

func Test_normalizeAndValidateFilter(t *testing.T) {
	t.Parallel()

	fromLocal := mustTimeIn(fixedZone("UTC+2", 2*3600), 2025, time.September, 10, 10, 0, 0)
	toUTC := time.Date(2025, time.September, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		in       LogFilter
		wantFrom time.Time
		wantTo   time.Time
		wantType models.EntryType
		wantErr  error
	}{
		{
			name: "all zero/empty ok",
			in:   LogFilter{},
		},
		{
			name: "from after to -> error",
			in: LogFilter{
				From: time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
				To:   time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC),
			},
			wantErr: errInvalidTimeRange,
		},
		{
			name:    "unknown type -> error",
			in:      LogFilter{Type: "teleport"},
			wantErr: models.ErrUnknownEntryType,
		},
		{
			name: "normalize tz and type",
			in: LogFilter{
				From: fromLocal,
				To:   toUTC,
				Type: " Status ",
			},
			wantFrom: time.Date(2025, time.September, 10, 8, 0, 0, 0, time.UTC), // 10:00 +02 -> 08:00Z
			wantTo:   toUTC,
			wantType: models.EntryStatus,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := normalizeAndValidateFilter(tc.in)

			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected err %v; got %v", tc.wantErr, err)
			}
			if tc.wantErr != nil && !errors.Is(err, ErrValidation) {
				t.Fatalf("filter errors must be validation errors; got %v", err)
			}
			if !tc.wantFrom.IsZero() && !got.From.Equal(tc.wantFrom) {
				t.Fatalf("from: got %v; want %v", got.From, tc.wantFrom)
			}
			if !tc.wantTo.IsZero() && !got.To.Equal(tc.wantTo) {
				t.Fatalf("to: got %v; want %v", got.To, tc.wantTo)
			}
			if got.Type != tc.wantType {
				t.Fatalf("type: got %q; want %q", got.Type, tc.wantType)
			}
		})
	}
}

// EventLogService.ListUnitEvents

func TestEventLogService_ListUnitEvents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.createUnit(t, f.working)

	u, err := f.svc.SaveUnit(ctx, f.order.Key(), UnitParams{
		Key:         u.Key(),
		AppendEvent: &models.Entry{Payload: models.CommentPayload{Text: "dusty"}},
	})
	if err != nil {
		t.Fatalf("append comment: %v", err)
	}

	all, err := f.svc.ListUnitEvents(ctx, u.Key(), LogFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d events; want 2", len(all))
	}

	comments, err := f.svc.ListUnitEvents(ctx, u.Key(), LogFilter{Type: "comment"})
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Type() != models.EntryComment {
		t.Fatalf("unexpected comments: %+v", comments)
	}

	after, err := f.svc.ListUnitEvents(ctx, u.Key(), LogFilter{From: all[1].Timestamp})
	if err != nil {
		t.Fatalf("list from: %v", err)
	}
	if len(after) != 1 || after[0].ID != all[1].ID {
		t.Fatalf("unexpected window: %+v", after)
	}

	if _, err := f.svc.ListUnitEvents(ctx, "RU-999", LogFilter{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound; got %v", err)
	}
	if _, err := f.svc.ListUnitEvents(ctx, "RO-1", LogFilter{}); !errors.Is(err, models.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey; got %v", err)
	}
}
