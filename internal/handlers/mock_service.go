package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"modbus_console/internal/channel"
	"modbus_console/internal/models"
	"modbus_console/internal/service"
	"modbus_console/internal/view"
)

// ---- Service Mocks ----

type mockAuth struct {
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastGenUsername string
	lastGenPassword string
	lastParseToken  string
}

func (m *mockAuth) EnsureOperator(username, passwordHash string) (int, error) {
	return 1, nil
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockConsole struct {
	mu sync.Mutex

	snap     view.Snapshot
	system   models.SystemStatus
	device   service.DeviceDetail
	channels []channel.Stats
	err      error

	lastDevice  string
	lastControl service.ControlParams
	lastRefresh string
	lastKind    string
	viewCalls   int
}

func (m *mockConsole) View() view.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viewCalls++
	return m.snap
}
func (m *mockConsole) setSnapshot(s view.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = s
}
func (m *mockConsole) System() models.SystemStatus { return m.system }
func (m *mockConsole) Device(ctx context.Context, id string) (service.DeviceDetail, error) {
	m.lastDevice = id
	return m.device, m.err
}
func (m *mockConsole) Control(ctx context.Context, id string, p service.ControlParams) error {
	m.lastDevice = id
	m.lastControl = p
	return m.err
}
func (m *mockConsole) Activate(ctx context.Context, id string) error {
	m.lastDevice = id
	return m.err
}
func (m *mockConsole) Refresh(ctx context.Context, id string) error {
	m.lastRefresh = id
	return m.err
}
func (m *mockConsole) Channels(ctx context.Context) ([]channel.Stats, error) {
	return m.channels, m.err
}
func (m *mockConsole) Reconnect(ctx context.Context, kind string) error {
	m.lastKind = kind
	return m.err
}

type mockEventLog struct {
	resp     []models.ConsoleEvent
	err      error
	lastFilt service.LogFilter
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ConsoleEvent, error) {
	m.lastFilt = f
	return m.resp, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service, opts ...Option) *gin.Engine {
	h := NewHandler(s, nil, opts...)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

func withAuth(req *http.Request) *http.Request {
	for k, vv := range authHeader("valid") {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	return req
}
