package view

import (
	"sort"
	"sync"

	"modbus_console/internal/models"
)

// Labeler supplies the static presentation of a register.
type Labeler interface {
	Label(deviceID string, e models.RegisterEntry) string
	Unit(deviceID string, e models.RegisterEntry) string
	Icon(deviceID string, e models.RegisterEntry) string
}

// RegisterView is one rendered register row.
type RegisterView struct {
	Key     models.RegisterKey `json:"key"`
	Label   string             `json:"label"`
	Unit    string             `json:"unit,omitempty"`
	Icon    string             `json:"icon,omitempty"`
	Raw     int64              `json:"raw"`
	Display string             `json:"display"`
	Pending bool               `json:"pending,omitempty"`
}

// DeviceView is one rendered device tab.
type DeviceView struct {
	DeviceInfo
	Active    bool           `json:"active"`
	Registers []RegisterView `json:"registers"`
	Commits   int            `json:"commits"`
}

// Snapshot is a deep copy of the view model.
type Snapshot struct {
	Version  uint64              `json:"version"`
	Active   string              `json:"active,omitempty"`
	Devices  []DeviceView        `json:"devices"`
	Channels map[string]string   `json:"channels"`
	System   models.SystemStatus `json:"system"`
}

type deviceState struct {
	info      DeviceInfo
	registers map[models.RegisterKey]*RegisterView
	pending   map[models.RegisterKey]bool
	commits   int
}

// Model is the in-memory view: written by the loop, read concurrently by the HTTP API.
type Model struct {
	labels Labeler

	mu       sync.RWMutex
	version  uint64
	order    []string
	devices  map[string]*deviceState
	active   string
	channels map[string]string
	system   models.SystemStatus
}

// NewModel returns an empty Model.
func NewModel(labels Labeler) *Model {
	return &Model{
		labels:   labels,
		devices:  make(map[string]*deviceState),
		channels: make(map[string]string),
	}
}

func (m *Model) CreateDevice(info DeviceInfo, before string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[info.ID]; ok {
		return
	}
	m.devices[info.ID] = &deviceState{
		info:      info,
		registers: make(map[models.RegisterKey]*RegisterView),
		pending:   make(map[models.RegisterKey]bool),
	}
	pos := len(m.order)
	if before != "" {
		for i, id := range m.order {
			if id == before {
				pos = i
				break
			}
		}
	}
	m.order = append(m.order, "")
	copy(m.order[pos+1:], m.order[pos:])
	m.order[pos] = info.ID
	m.version++
}

func (m *Model) SetActive(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.devices[id]; !ok || m.active == id {
		return
	}
	m.active = id
	m.version++
}

func (m *Model) Commit(deviceID string, changes []models.Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return
	}
	for _, ch := range changes {
		r, ok := d.registers[ch.Key]
		if !ok {
			e := models.RegisterEntry{Kind: ch.Key.Kind, Address: ch.Key.Address, Value: ch.Raw}
			r = &RegisterView{Key: ch.Key}
			if m.labels != nil {
				r.Label = m.labels.Label(deviceID, e)
				r.Unit = m.labels.Unit(deviceID, e)
				r.Icon = m.labels.Icon(deviceID, e)
			}
			d.registers[ch.Key] = r
		}
		r.Raw = ch.Raw
		r.Display = ch.Display
	}
	d.commits++
	m.version++
}

func (m *Model) SetPending(deviceID string, key models.RegisterKey, pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return
	}
	if pending {
		d.pending[key] = true
	} else {
		delete(d.pending, key)
	}
	m.version++
}

func (m *Model) SetChannelState(channel, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[channel] = state
	m.version++
}

func (m *Model) SetSystemStatus(st models.SystemStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.system = st
	m.version++
}

// Version increases on every mutation.
func (m *Model) Version() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version
}

// Commits returns how many change-sets were committed to a device.
func (m *Model) Commits(deviceID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.devices[deviceID]; ok {
		return d.commits
	}
	return 0
}

// Order returns the device ids in tab order.
func (m *Model) Order() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...)
}

// Active returns the visible device id.
func (m *Model) Active() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Display returns the rendered display value of a register.
func (m *Model) Display(deviceID string, key models.RegisterKey) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[deviceID]
	if !ok {
		return "", false
	}
	r, ok := d.registers[key]
	if !ok {
		return "", false
	}
	return r.Display, true
}

// Device returns one device tab.
func (m *Model) Device(id string) (DeviceView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.devices[id]
	if !ok {
		return DeviceView{}, false
	}
	return m.deviceView(d), true
}

// Snapshot copies the whole model.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		Version:  m.version,
		Active:   m.active,
		Devices:  make([]DeviceView, 0, len(m.order)),
		Channels: make(map[string]string, len(m.channels)),
		System:   m.system,
	}
	for _, id := range m.order {
		s.Devices = append(s.Devices, m.deviceView(m.devices[id]))
	}
	for k, v := range m.channels {
		s.Channels[k] = v
	}
	return s
}

func (m *Model) deviceView(d *deviceState) DeviceView {
	dv := DeviceView{
		DeviceInfo: d.info,
		Active:     d.info.ID == m.active,
		Registers:  make([]RegisterView, 0, len(d.registers)),
		Commits:    d.commits,
	}
	for _, r := range d.registers {
		rv := *r
		rv.Pending = d.pending[r.Key]
		dv.Registers = append(dv.Registers, rv)
	}
	sort.Slice(dv.Registers, func(i, j int) bool { return dv.Registers[i].Key.Less(dv.Registers[j].Key) })
	return dv
}
