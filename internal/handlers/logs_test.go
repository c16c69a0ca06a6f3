package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"modbus_console/internal/models"
	"modbus_console/internal/service"
)

func TestLogsHandler_ListAndValidation(t *testing.T) {
	auth := &mockAuth{parseID: 99}
	now := time.Now().UTC().Truncate(time.Second)
	events := []models.ConsoleEvent{
		{EventID: "e1", OccurredAt: now, Type: models.EventConnected, Channel: "device", Description: "device channel connected"},
		{EventID: "e2", OccurredAt: now.Add(1 * time.Second), Type: models.EventControl, DeviceID: "3", Description: "HR50 = 240"},
	}
	logs := &mockEventLog{resp: events}
	s := &service.Service{
		Authorization: auth,
		EventLog:      logs,
	}
	r := newTestRouter(s)

	// Missing/invalid 'from' → 400
	w := httptest.NewRecorder()
	r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/logs/?from=notatime", nil)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 invalid 'from', got %d", w.Code)
	}

	// Valid range and type (lowercase type should be normalized to upper in service call)
	w = httptest.NewRecorder()
	q := "/api/v1/logs/?from=" + now.Format(time.RFC3339) + "&to=" + now.Add(2*time.Second).Format(time.RFC3339) +
		"&type=control&channel=device&device=3&limit=20"
	r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodGet, q, nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("logs status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Count  int                   `json:"count"`
		Events []models.ConsoleEvent `json:"events"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	if out.Count != 2 || len(out.Events) != 2 {
		t.Fatalf("unexpected response: %+v", out)
	}
	f := logs.lastFilt
	if f.Type != models.EventControl || f.Channel != "device" || f.DeviceID != "3" || f.Limit != 20 {
		t.Fatalf("unexpected filter: %+v", f)
	}
	if !f.From.Equal(now) || !f.To.Equal(now.Add(2*time.Second)) {
		t.Fatalf("unexpected range: %v..%v", f.From, f.To)
	}
}

func TestLogsHandler_DateOnlyToIsEndOfDay(t *testing.T) {
	logs := &mockEventLog{}
	r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, EventLog: logs})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodGet, "/api/v1/logs/?from=2025-08-01&to=2025-08-01", nil)))
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d, body=%s", w.Code, w.Body.String())
	}
	want := time.Date(2025, 8, 1, 23, 59, 59, 999999999, time.UTC)
	if !logs.lastFilt.To.Equal(want) {
		t.Fatalf("to: got %v, want %v", logs.lastFilt.To, want)
	}
}

func TestLogsHandler_Errors(t *testing.T) {
	cases := []struct {
		name string
		url  string
		err  error
		code int
	}{
		{name: "from after to", url: "/api/v1/logs/?from=2025-08-02&to=2025-08-01", code: http.StatusBadRequest},
		{name: "negative limit", url: "/api/v1/logs/?limit=-1", code: http.StatusBadRequest},
		{name: "non-numeric limit", url: "/api/v1/logs/?limit=ten", code: http.StatusBadRequest},
		{name: "service validation", url: "/api/v1/logs/?channel=bus", err: fmt.Errorf("bad filter: %w", service.ErrInvalidFilter), code: http.StatusBadRequest},
		{name: "repository failure", url: "/api/v1/logs/", err: errors.New("disk I/O error"), code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			logs := &mockEventLog{err: tc.err}
			r := newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, EventLog: logs})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, withAuth(httptest.NewRequest(http.MethodGet, tc.url, nil)))
			if w.Code != tc.code {
				t.Fatalf("status: got %d, want %d (body=%s)", w.Code, tc.code, w.Body.String())
			}
		})
	}
}

func TestLogsHandler_RequiresToken(t *testing.T) {
	r := newTestRouter(&service.Service{Authorization: &mockAuth{}, EventLog: &mockEventLog{}})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/logs/", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
