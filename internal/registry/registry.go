// Package registry owns the authoritative snapshot of every known device and decides
// when device tabs are built and in which order they appear.
package registry

import (
	"errors"
	"strconv"
	"time"

	"modbus_console/internal/logger"
	"modbus_console/internal/loop"
	"modbus_console/internal/metrics"
	"modbus_console/internal/models"
	"modbus_console/internal/view"
)

// ErrUnknownDevice is returned for ids the registry has not constructed.
var ErrUnknownDevice = errors.New("unknown device")

// Defaults for the two rate controls.
const (
	DefaultDeviceWindow = 200 * time.Millisecond
	DefaultBuildWindow  = 100 * time.Millisecond
	DefaultPrimary      = "1"
)

// Update is one device's register set as received from the backend.
type Update struct {
	ID      string
	Name    string
	Entries []models.RegisterEntry
	At      time.Time
}

// Differ stages register changes for the view.
type Differ interface {
	Diff(deviceID string, entries []models.RegisterEntry) int
}

// Namer supplies fallback device names and icons.
type Namer interface {
	DeviceName(deviceID string) string
	DeviceIcon(deviceID string) string
}

// UpdateListener observes every applied update, before diffing.
type UpdateListener func(deviceID string, entries []models.RegisterEntry)

// Config tunes the registry.
type Config struct {
	Primary      string
	DeviceWindow time.Duration
	BuildWindow  time.Duration
}

// Registry is loop-owned; no method is safe for concurrent use.
type Registry struct {
	cfg     Config
	loop    loop.Loop
	view    view.View
	differ  Differ
	names   Namer
	log     *logger.Logger
	metrics *metrics.Metrics

	devices      map[string]*models.DeviceSnapshot
	order        []string
	constructed  map[string]bool
	pendingBuild []string
	active       string

	build     *loop.Throttle
	throttles map[string]*loop.Throttle
	listeners []UpdateListener
}

// New returns an empty Registry.
func New(cfg Config, l loop.Loop, v view.View, d Differ, names Namer, log *logger.Logger, m *metrics.Metrics) *Registry {
	if cfg.Primary == "" {
		cfg.Primary = DefaultPrimary
	}
	return &Registry{
		cfg:         cfg,
		loop:        l,
		view:        v,
		differ:      d,
		names:       names,
		log:         logger.OrNop(log).Named("registry"),
		metrics:     m,
		devices:     make(map[string]*models.DeviceSnapshot),
		constructed: make(map[string]bool),
		build:       loop.NewThrottle(l, cfg.BuildWindow),
		throttles:   make(map[string]*loop.Throttle),
	}
}

// OnUpdate registers a listener for applied updates.
func (r *Registry) OnUpdate(fn UpdateListener) {
	r.listeners = append(r.listeners, fn)
}

// ApplyFullSnapshot handles a full device snapshot. The first snapshot stores every device and
// builds all tabs in one throttled pass; later snapshots go through the per-device path.
func (r *Registry) ApplyFullSnapshot(updates []Update) {
	if len(r.devices) > 0 {
		for _, u := range updates {
			r.ApplyDeviceUpdate(u)
		}
		return
	}
	for _, u := range updates {
		if u.ID == "" {
			continue
		}
		r.store(u)
		r.pendingBuild = append(r.pendingBuild, u.ID)
	}
	if len(r.pendingBuild) > 0 {
		r.build.Trigger(r.constructPending)
	}
}

// ApplyDeviceUpdate merges one device's registers, constructing the device first if needed.
func (r *Registry) ApplyDeviceUpdate(u Update) {
	if u.ID == "" {
		return
	}
	r.store(u)
	if !r.constructed[u.ID] {
		r.construct(u.ID)
	}
	for _, l := range r.listeners {
		l(u.ID, u.Entries)
	}
	id := u.ID
	r.throttle(id).Trigger(func() { r.refresh(id) })
}

// store upserts u into its snapshot, creating the snapshot on first sight.
func (r *Registry) store(u Update) *models.DeviceSnapshot {
	snap, ok := r.devices[u.ID]
	if !ok {
		snap = models.NewDeviceSnapshot(u.ID, u.Name)
		r.devices[u.ID] = snap
	}
	if u.Name != "" {
		snap.Name = u.Name
	}
	for _, e := range u.Entries {
		snap.Upsert(e)
	}
	if !u.At.IsZero() {
		snap.UpdatedAt = u.At
	} else {
		snap.UpdatedAt = r.loop.Now()
	}
	return snap
}

func (r *Registry) constructPending() {
	ids := r.pendingBuild
	r.pendingBuild = nil
	for _, id := range ids {
		if r.constructed[id] {
			continue
		}
		r.construct(id)
		r.refresh(id)
	}
	r.log.Infow("registry_built", "devices", len(ids), "order", r.order)
}

// construct creates the device tab at its sorted position.
func (r *Registry) construct(id string) {
	before := ""
	pos := len(r.order)
	for i, other := range r.order {
		if r.less(id, other) {
			before, pos = other, i
			break
		}
	}
	r.order = append(r.order, "")
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = id
	r.constructed[id] = true

	r.view.CreateDevice(r.info(id), before)
	r.metrics.SetDevices(len(r.order))
	r.log.Debugw("registry_device_constructed", "device", id, "position", pos)

	switch {
	case id == r.cfg.Primary:
		r.activate(id)
	case r.active == "":
		r.activate(id)
	}
}

func (r *Registry) info(id string) view.DeviceInfo {
	info := view.DeviceInfo{ID: id}
	if snap := r.devices[id]; snap != nil {
		info.Name = snap.Name
	}
	if r.names != nil {
		if info.Name == "" {
			info.Name = r.names.DeviceName(id)
		}
		info.Icon = r.names.DeviceIcon(id)
	}
	return info
}

// refresh runs the aggregate update path for a device against its current snapshot.
func (r *Registry) refresh(id string) {
	snap, ok := r.devices[id]
	if !ok || !r.constructed[id] {
		return
	}
	r.differ.Diff(id, snap.Entries())
}

func (r *Registry) throttle(id string) *loop.Throttle {
	t, ok := r.throttles[id]
	if !ok {
		t = loop.NewThrottle(r.loop, r.cfg.DeviceWindow)
		r.throttles[id] = t
	}
	return t
}

func (r *Registry) activate(id string) {
	if r.active == id {
		return
	}
	r.active = id
	r.view.SetActive(id)
}

// less orders device ids: the primary first, then numeric ids ascending, then the rest lexicographically.
func (r *Registry) less(a, b string) bool {
	if a == r.cfg.Primary {
		return b != r.cfg.Primary
	}
	if b == r.cfg.Primary {
		return false
	}
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	switch {
	case errA == nil && errB == nil:
		return na < nb
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}

// SetActive switches the visible device.
func (r *Registry) SetActive(id string) error {
	if !r.constructed[id] {
		return ErrUnknownDevice
	}
	r.activate(id)
	return nil
}

// Active returns the visible device id.
func (r *Registry) Active() string { return r.active }

// Order returns the constructed device ids in display order.
func (r *Registry) Order() []string {
	return append([]string(nil), r.order...)
}

// Snapshot returns a copy of a device's snapshot.
func (r *Registry) Snapshot(id string) (models.DeviceSnapshot, bool) {
	snap, ok := r.devices[id]
	if !ok {
		return models.DeviceSnapshot{}, false
	}
	return models.DeviceSnapshot{
		ID:        snap.ID,
		Name:      snap.Name,
		Registers: snap.Entries(),
		UpdatedAt: snap.UpdatedAt,
	}, true
}

// Value returns the current raw value of a register.
func (r *Registry) Value(id string, k models.RegisterKey) (int64, bool) {
	snap, ok := r.devices[id]
	if !ok {
		return 0, false
	}
	return snap.Value(k)
}

// Close cancels every pending throttled run.
func (r *Registry) Close() {
	r.build.Cancel()
	for _, t := range r.throttles {
		t.Cancel()
	}
}
