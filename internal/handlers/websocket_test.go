package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"modbus_console/internal/service"
	"modbus_console/internal/view"
)

// --- parseInterval unit tests ---

func TestParseInterval(t *testing.T) {
	h := NewHandler(&service.Service{}, nil)

	cases := []struct {
		name string
		u    string
		want time.Duration
	}{
		{"default_when_missing", "/ws/view", 1 * time.Second},
		{"interval_string_valid", "/ws/view?interval=200ms", 200 * time.Millisecond},
		{"interval_ms_valid", "/ws/view?interval_ms=150", 150 * time.Millisecond},
		{"interval_too_large", "/ws/view?interval=20s", 1 * time.Second},
		{"interval_too_small", "/ws/view?interval=1ms", 1 * time.Second},
		{"interval_ms_too_large", "/ws/view?interval_ms=20000", 1 * time.Second},
		{"interval_ms_too_small", "/ws/view?interval_ms=5", 1 * time.Second},
		{"interval_invalid_string", "/ws/view?interval=bogus", 1 * time.Second},
		{"interval_ms_invalid", "/ws/view?interval_ms=NaN", 1 * time.Second},
		{"both_present_interval_wins", "/ws/view?interval=2s&interval_ms=150", 2 * time.Second},
		{"both_present_invalid_interval_ms_used", "/ws/view?interval=bogus&interval_ms=250", 250 * time.Millisecond},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, tc.u, nil)
			c, _ := gin.CreateTestContext(w)
			c.Request = req
			got := h.parseInterval(c)
			if got != tc.want {
				t.Fatalf("got %v, want %v for %s", got, tc.want, tc.u)
			}
		})
	}
}

func TestParseInterval_ConfiguredDefault(t *testing.T) {
	h := NewHandler(&service.Service{}, nil, WithStreamInterval(300*time.Millisecond))
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/ws/view", nil)
	if got := h.parseInterval(c); got != 300*time.Millisecond {
		t.Fatalf("got %v, want 300ms", got)
	}
}

// --- websocket integration tests ---

type envelope struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func dialView(t *testing.T, srv *httptest.Server, query url.Values) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws/view"
	u.RawQuery = query.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return conn
}

func readView(t *testing.T, conn *websocket.Conn, wait time.Duration) (view.Snapshot, error) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	var env envelope
	if err := conn.ReadJSON(&env); err != nil {
		return view.Snapshot{}, err
	}
	if env.Type != "view" || len(env.Data) == 0 {
		t.Fatalf("bad envelope: %+v", env)
	}
	var snap view.Snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("unmarshal view: %v", err)
	}
	return snap, nil
}

func TestWebSocket_ViewStream_InitialThenOnChange(t *testing.T) {
	con := &mockConsole{snap: view.Snapshot{
		Version: 1,
		Active:  "1",
		Devices: []view.DeviceView{{DeviceInfo: view.DeviceInfo{ID: "1", Name: "Sensor"}, Active: true}},
	}}
	srv := httptest.NewServer(newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, Console: con}))
	defer srv.Close()

	conn := dialView(t, srv, url.Values{"access_token": {"tok"}, "interval_ms": {"50"}})
	defer conn.Close()

	snap, err := readView(t, conn, time.Second)
	if err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if snap.Version != 1 || snap.Active != "1" || len(snap.Devices) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Unchanged version: nothing is pushed.
	if _, err := readView(t, conn, 200*time.Millisecond); err == nil {
		t.Fatal("unchanged view was pushed again")
	}
}

func TestWebSocket_ViewStream_PushesNewVersion(t *testing.T) {
	con := &mockConsole{snap: view.Snapshot{Version: 1}}
	srv := httptest.NewServer(newTestRouter(&service.Service{Authorization: &mockAuth{parseID: 1}, Console: con}))
	defer srv.Close()

	conn := dialView(t, srv, url.Values{"access_token": {"tok"}, "interval_ms": {"50"}})
	defer conn.Close()

	if _, err := readView(t, conn, time.Second); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	con.setSnapshot(view.Snapshot{Version: 2, Active: "3"})
	snap, err := readView(t, conn, time.Second)
	if err != nil {
		t.Fatalf("read update: %v", err)
	}
	if snap.Version != 2 || snap.Active != "3" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestWebSocket_RejectsWithoutToken(t *testing.T) {
	srv := httptest.NewServer(newTestRouter(&service.Service{Authorization: &mockAuth{}, Console: &mockConsole{}}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws/view"
	dialer := websocket.Dialer{HandshakeTimeout: 2 * time.Second}
	conn, resp, err := dialer.Dial(u.String(), nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}
