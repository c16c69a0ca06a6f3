// Package control turns operator actions into control commands and reconciles them against
// authoritative device state.
package control

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"modbus_console/internal/logger"
	"modbus_console/internal/loop"
	"modbus_console/internal/metrics"
	"modbus_console/internal/models"
	"modbus_console/internal/protocol"
	"modbus_console/internal/view"
)

var (
	// ErrReadOnlyRegister is returned for actions on input registers and discrete inputs.
	ErrReadOnlyRegister = errors.New("register is read-only")
	// ErrInvalidAction is returned for actions without a device or with a negative address.
	ErrInvalidAction = errors.New("invalid control action")
)

// Defaults for the dispatcher timings.
const (
	DefaultWindow         = 300 * time.Millisecond
	DefaultReconcileDelay = 100 * time.Millisecond
	DefaultPendingTimeout = 5 * time.Second
)

// MaxRegisterValue is the largest raw value a 16-bit holding register stores.
const MaxRegisterValue = 65535

// Action is an operator request to write one register. Value is in raw register units;
// any non-zero value switches a coil on.
type Action struct {
	DeviceID string              `json:"device_id"`
	Kind     models.RegisterKind `json:"type"`
	Address  int                 `json:"address"`
	Value    float64             `json:"value"`
}

func (a Action) Key() models.RegisterKey {
	return models.RegisterKey{Kind: a.Kind, Address: a.Address}
}

// Sender is the device channel's outbound queue.
type Sender interface {
	Send(msg protocol.Outbound)
}

// AuditFunc receives control events for the audit log.
type AuditFunc func(ev models.ConsoleEvent)

// Config tunes the dispatcher.
type Config struct {
	Window         time.Duration
	ReconcileDelay time.Duration
	PendingTimeout time.Duration
}

type controlKey struct {
	device string
	key    models.RegisterKey
}

type pendingCommand struct {
	cmd           models.PendingControl
	intended      int64
	reconcileSent bool
	// mismatched holds the last differing value seen after the reconciliation read was
	// requested. Periodic pushes may still carry the pre-write value, so a mismatch is only
	// declared when the command expires without a matching update.
	mismatched bool
	actual     int64
	reconcile  loop.Timer
	expire     loop.Timer
}

// Dispatcher is loop-owned.
type Dispatcher struct {
	cfg     Config
	loop    loop.Loop
	out     Sender
	view    view.View
	audit   AuditFunc
	log     *logger.Logger
	metrics *metrics.Metrics

	throttles map[controlKey]*loop.Throttle
	pending   map[controlKey]*pendingCommand
}

// New returns a Dispatcher sending on out.
func New(cfg Config, l loop.Loop, out Sender, v view.View, audit AuditFunc, log *logger.Logger, m *metrics.Metrics) *Dispatcher {
	if cfg.ReconcileDelay <= 0 {
		cfg.ReconcileDelay = DefaultReconcileDelay
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultPendingTimeout
	}
	if audit == nil {
		audit = func(models.ConsoleEvent) {}
	}
	return &Dispatcher{
		cfg:       cfg,
		loop:      l,
		out:       out,
		view:      v,
		audit:     audit,
		log:       logger.OrNop(log).Named("control"),
		metrics:   m,
		throttles: make(map[controlKey]*loop.Throttle),
		pending:   make(map[controlKey]*pendingCommand),
	}
}

// Dispatch validates a and sends it, at most once per control per throttle window.
// A call inside the window replaces the value the trailing send carries.
func (d *Dispatcher) Dispatch(a Action) error {
	if a.DeviceID == "" || a.Address < 0 {
		return ErrInvalidAction
	}
	if !a.Kind.Writable() {
		d.metrics.IncControl(a.Kind.String(), "rejected")
		return fmt.Errorf("%s%d: %w", a.Kind, a.Address, ErrReadOnlyRegister)
	}
	if a.Kind == models.HoldingRegister {
		if v := math.Round(a.Value); math.IsNaN(v) || v < 0 || v > MaxRegisterValue {
			d.metrics.IncControl(a.Kind.String(), "rejected")
			return fmt.Errorf("%w: %s%d value %v outside 0..%d", ErrInvalidAction, a.Kind, a.Address, a.Value, MaxRegisterValue)
		}
	}
	k := controlKey{device: a.DeviceID, key: a.Key()}
	th, ok := d.throttles[k]
	if !ok {
		th = loop.NewThrottle(d.loop, d.cfg.Window)
		d.throttles[k] = th
	}
	th.Trigger(func() { d.issue(a) })
	if th.Scheduled() {
		d.metrics.IncControl(a.Kind.String(), "throttled")
	}
	return nil
}

// Coerce converts an action value to its wire form: bool for coils, otherwise an integer
// rounded and clamped to 0..MaxRegisterValue.
func Coerce(kind models.RegisterKind, v float64) any {
	if kind == models.Coil {
		return v != 0
	}
	switch r := math.Round(v); {
	case math.IsNaN(r) || r < 0:
		return int64(0)
	case r > MaxRegisterValue:
		return int64(MaxRegisterValue)
	default:
		return int64(r)
	}
}

func rawOf(v any) int64 {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case int64:
		return x
	default:
		return 0
	}
}

func (d *Dispatcher) issue(a Action) {
	now := d.loop.Now()
	k := controlKey{device: a.DeviceID, key: a.Key()}
	value := Coerce(a.Kind, a.Value)

	if prev := d.pending[k]; prev != nil {
		prev.stop()
	}
	p := &pendingCommand{
		cmd: models.PendingControl{
			DeviceID: a.DeviceID,
			Key:      k.key,
			Value:    value,
			IssuedAt: now,
		},
		intended: rawOf(value),
	}
	d.pending[k] = p
	d.view.SetPending(a.DeviceID, k.key, true)

	d.out.Send(protocol.Control{
		DeviceID:     a.DeviceID,
		RegisterType: a.Kind,
		Address:      a.Address,
		Value:        value,
		Timestamp:    now,
	})
	d.metrics.IncControl(a.Kind.String(), "sent")
	d.log.Infow("control_sent", "device", a.DeviceID, "register", k.key.String(), "value", value)
	d.audit(models.ConsoleEvent{
		OccurredAt:  now,
		Type:        models.EventControl,
		Channel:     "device",
		DeviceID:    a.DeviceID,
		Description: fmt.Sprintf("set %s to %v", k.key, value),
		Metadata:    map[string]any{"register": k.key.String(), "value": value},
	})

	p.reconcile = d.loop.AfterFunc(d.cfg.ReconcileDelay, func() {
		p.reconcileSent = true
		d.out.Send(protocol.RequestDevice(a.DeviceID))
	})
	p.expire = d.loop.AfterFunc(d.cfg.PendingTimeout, func() {
		if d.pending[k] != p {
			return
		}
		d.clear(k)
		if p.mismatched {
			d.mismatch(k, p.intended, p.actual)
			return
		}
		d.log.Warnw("control_pending_expired", "device", a.DeviceID, "register", k.key.String())
	})
}

// Reconcile checks an authoritative update against pending commands. Once the reconciliation
// read has been requested, an update carrying the intended value settles the command. A
// differing value is remembered and reported as a mismatch if the command expires unsettled.
func (d *Dispatcher) Reconcile(deviceID string, entries []models.RegisterEntry) {
	if len(d.pending) == 0 {
		return
	}
	for _, e := range entries {
		k := controlKey{device: deviceID, key: e.Key()}
		p := d.pending[k]
		if p == nil || !p.reconcileSent {
			continue
		}
		if e.Value != p.intended {
			p.mismatched, p.actual = true, e.Value
			d.log.Debugw("control_reconcile_differs", "device", deviceID, "register", k.key.String(),
				"intended", p.intended, "actual", e.Value)
			continue
		}
		d.clear(k)
		d.log.Debugw("control_reconciled", "device", deviceID, "register", k.key.String())
	}
}

func (d *Dispatcher) mismatch(k controlKey, intended, actual int64) {
	d.log.Warnw("control_mismatch", "device", k.device, "register", k.key.String(),
		"intended", intended, "actual", actual)
	d.metrics.IncControl(k.key.Kind.String(), "mismatch")
	d.audit(models.ConsoleEvent{
		OccurredAt:  d.loop.Now(),
		Type:        models.EventControlMismatch,
		Channel:     "device",
		DeviceID:    k.device,
		Description: fmt.Sprintf("%s is %d after setting %d", k.key, actual, intended),
		Metadata:    map[string]any{"register": k.key.String(), "intended": intended, "actual": actual},
	})
}

func (d *Dispatcher) clear(k controlKey) {
	p := d.pending[k]
	if p == nil {
		return
	}
	p.stop()
	delete(d.pending, k)
	d.view.SetPending(k.device, k.key, false)
}

func (p *pendingCommand) stop() {
	// The reconciliation read is still sent once armed; only expiry is cancelled.
	p.expire = loop.StopTimer(p.expire)
}

// Pending lists the commands awaiting reconciliation for a device.
func (d *Dispatcher) Pending(deviceID string) []models.PendingControl {
	var out []models.PendingControl
	for k, p := range d.pending {
		if k.device == deviceID {
			out = append(out, p.cmd)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Less(out[j].Key) })
	return out
}

// Stop cancels throttled sends and pending timers.
func (d *Dispatcher) Stop() {
	for _, th := range d.throttles {
		th.Cancel()
	}
	for k, p := range d.pending {
		p.stop()
		p.reconcile = loop.StopTimer(p.reconcile)
		delete(d.pending, k)
	}
}
