package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"repair_tracker/internal/models"
	"repair_tracker/internal/service"
)

func TestUnitEventsHandler_ListAndValidation(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	events := []models.Entry{
		{ID: "e1", Timestamp: now, Payload: models.StatusPayload{StatusKey: "ST-1"}},
		{ID: "e2", Timestamp: now.Add(time.Second), Payload: models.CommentPayload{Text: "fan"}},
	}
	logs := &mockEventLog{resp: events}
	r := newTestRouter(&service.Service{EventLog: logs})

	// invalid 'from' -> 400 before the service is called
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/units/RU-1/events?from=notatime", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}
	if logs.lastKey != "" {
		t.Fatalf("service called on invalid input")
	}

	// valid range and type
	w = httptest.NewRecorder()
	q := "/api/units/RU-1/events?from=" + now.Format(time.RFC3339) + "&to=2030-01-01&type=%20comment%20"
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, q, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int            `json:"count"`
		Events []models.Entry `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Count != 2 || len(out.Events) != 2 || out.Events[1].Type() != models.EntryComment {
		t.Fatalf("unexpected response: %+v", out)
	}
	if logs.lastKey != "RU-1" || logs.last.Type != "comment" {
		t.Fatalf("unexpected service call: key=%q filter=%+v", logs.lastKey, logs.last)
	}
	if !logs.last.From.Equal(now) {
		t.Fatalf("from=%v want %v", logs.last.From, now)
	}
	wantTo := time.Date(2030, 1, 1, 23, 59, 59, 999999999, time.UTC)
	if !logs.last.To.Equal(wantTo) {
		t.Fatalf("date-only 'to' not extended to end of day: %v", logs.last.To)
	}
}

func TestUnitEventsHandler_ServiceErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("unit 5: %w", service.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: unknown event type", service.ErrValidation), http.StatusBadRequest},
	}
	for _, tc := range cases {
		r := newTestRouter(&service.Service{EventLog: &mockEventLog{err: tc.err}})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/units/RU-5/events", nil))
		if w.Code != tc.want {
			t.Fatalf("err %v: status=%d want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestParseQueryTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-08-27T15:04:05Z", time.Date(2025, 8, 27, 15, 4, 5, 0, time.UTC), true},
		{"2025-08-27T18:04:05+03:00", time.Date(2025, 8, 27, 15, 4, 5, 0, time.UTC), true},
		{"2025-08-27 15:04:05", time.Date(2025, 8, 27, 15, 4, 5, 0, time.UTC), true},
		{"2025-08-27", time.Date(2025, 8, 27, 0, 0, 0, 0, time.UTC), true},
		{"27/08/2025", time.Time{}, false},
	}
	for _, tc := range cases {
		got, err := parseQueryTime(tc.in)
		if (err == nil) != tc.ok {
			t.Fatalf("%q: err=%v", tc.in, err)
		}
		if tc.ok && !got.Equal(tc.want) {
			t.Fatalf("%q: got %v want %v", tc.in, got, tc.want)
		}
	}
}
