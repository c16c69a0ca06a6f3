// Package app assembles the console core: two channels, their routers, the device registry,
// the commit scheduler and the control dispatcher, all driven by one loop.
package app

import (
	"context"
	"errors"
	"fmt"

	"modbus_console/internal/channel"
	"modbus_console/internal/config"
	"modbus_console/internal/control"
	"modbus_console/internal/logger"
	"modbus_console/internal/loop"
	"modbus_console/internal/metrics"
	"modbus_console/internal/models"
	"modbus_console/internal/presentation"
	"modbus_console/internal/protocol"
	"modbus_console/internal/registry"
	"modbus_console/internal/router"
	"modbus_console/internal/scheduler"
	"modbus_console/internal/transport"
	"modbus_console/internal/view"
)

var (
	// ErrChannelActive is returned when reconnecting a channel that is still recovering on its own.
	ErrChannelActive = errors.New("channel is not stopped")
	// ErrStopped is returned by Reconnect after Shutdown.
	ErrStopped = errors.New("console stopped")
)

// Options carries the collaborators of an App.
type Options struct {
	Config  *config.Config
	Loop    loop.Loop
	Dialer  transport.Dialer
	Catalog *presentation.Catalog
	// Views receive every view call after the built-in model.
	Views   []view.View
	Audit   control.AuditFunc
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// App is the console core. Exported methods are safe for concurrent use; they hop onto the loop.
type App struct {
	cfg     *config.Config
	loop    loop.Loop
	log     *logger.Logger
	metrics *metrics.Metrics
	audit   control.AuditFunc

	catalog    *presentation.Catalog
	model      *view.Model
	view       view.Multi
	scheduler  *scheduler.Scheduler
	registry   *registry.Registry
	dispatcher *control.Dispatcher

	dialer  transport.Dialer
	system  *channel.Channel
	device  *channel.Channel
	stopped bool
}

// sendFunc adapts a function to control.Sender.
type sendFunc func(msg protocol.Outbound)

func (f sendFunc) Send(msg protocol.Outbound) { f(msg) }

// New wires the core. Nothing connects until Start.
func New(opts Options) *App {
	cfg := opts.Config
	log := logger.OrNop(opts.Logger)
	cat := opts.Catalog
	if cat == nil {
		cat = presentation.Default()
	}
	audit := opts.Audit
	if audit == nil {
		audit = func(models.ConsoleEvent) {}
	}

	a := &App{
		cfg:     cfg,
		loop:    opts.Loop,
		log:     log,
		metrics: opts.Metrics,
		audit:   audit,
		dialer:  opts.Dialer,
		catalog: cat,
		model:   view.NewModel(cat),
	}
	a.view = append(view.Multi{a.model}, opts.Views...)

	a.scheduler = scheduler.New(a.loop, cat, a.view, cfg.Display.FrameInterval, log, a.metrics)
	a.registry = registry.New(cfg.RegistryConfig(), a.loop, a.view, a.scheduler, cat, log, a.metrics)

	a.system = a.newChannel(channel.KindSystem)
	a.device = a.newChannel(channel.KindDevice)

	// The device channel may be rebuilt, so the dispatcher resolves it on every send.
	a.dispatcher = control.New(cfg.ControlConfig(), a.loop, sendFunc(func(msg protocol.Outbound) { a.device.Send(msg) }),
		a.view, audit, log, a.metrics)
	a.registry.OnUpdate(a.dispatcher.Reconcile)
	return a
}

// newChannel builds a channel of the given kind with its own router. The backend answers a data
// request on either endpoint, so both routers handle every inbound type.
func (a *App) newChannel(kind channel.Kind) *channel.Channel {
	profile := channel.SystemProfile(a.cfg.Backend.SystemPath)
	if kind == channel.KindDevice {
		profile = channel.DeviceProfile(a.cfg.Backend.DevicePath)
	}
	r := router.New(string(kind), a.log, a.metrics).
		Handle(protocol.TypeSystemStatus, a.onSystemStatus).
		Handle(protocol.TypeDeviceStatus, a.onDeviceStatus).
		Handle(protocol.TypeDeviceUpdate, a.onDeviceUpdate)
	ch := channel.New(profile, a.cfg.ChannelFor(kind), channel.Options{
		Loop:    a.loop,
		Dialer:  a.dialer,
		Handler: r,
		Logger:  a.log,
		Metrics: a.metrics,
	})
	ch.OnTransition(a.onTransition)
	a.view.SetChannelState(string(kind), ch.State().String())
	return ch
}

// Start connects both channels.
func (a *App) Start() {
	a.loop.Post(func() {
		a.log.Infow("console_starting", "system_url", a.system.URL(), "device_url", a.device.URL())
		a.system.Connect()
		a.device.Connect()
	})
}

// Shutdown closes both channels and cancels every pending timer. It waits for the loop to run it.
func (a *App) Shutdown(ctx context.Context) error {
	return loop.Call(ctx, a.loop, func() {
		a.stopped = true
		a.system.Shutdown()
		a.device.Shutdown()
		a.dispatcher.Stop()
		a.registry.Close()
		a.scheduler.Stop()
		a.log.Infow("console_stopped")
	})
}

func (a *App) onSystemStatus(msg protocol.Message) error {
	st := msg.(protocol.SystemStatus).Model()
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = a.loop.Now()
	}
	a.view.SetSystemStatus(st)
	return nil
}

func (a *App) onDeviceStatus(msg protocol.Message) error {
	ds := msg.(protocol.DeviceStatus)
	updates := make([]registry.Update, 0, len(ds.Devices))
	var errs []error
	for _, id := range ds.IDs() {
		payload := ds.Devices[protocol.DeviceID(id)]
		u, err := a.update(id, payload, ds.Timestamp)
		if err != nil {
			errs = append(errs, err)
		}
		updates = append(updates, u)
	}
	a.registry.ApplyFullSnapshot(updates)
	return errors.Join(errs...)
}

func (a *App) onDeviceUpdate(msg protocol.Message) error {
	du := msg.(protocol.DeviceUpdate)
	u, err := a.update(string(du.DeviceID), du.Data, du.Timestamp)
	a.registry.ApplyDeviceUpdate(u)
	return err
}

// update converts a payload; bad entries are skipped and reported while the rest is applied.
func (a *App) update(id string, p protocol.DevicePayload, ts protocol.Timestamp) (registry.Update, error) {
	entries, err := p.Entries()
	if err != nil {
		err = fmt.Errorf("device %s: %w", id, err)
	}
	at := p.LastUpdate.Time
	if at.IsZero() {
		at = ts.Time
	}
	return registry.Update{ID: id, Name: p.Name, Entries: entries, At: at}, err
}

func (a *App) onTransition(t channel.Transition) {
	a.view.SetChannelState(string(t.Kind), t.To.String())

	ev := models.ConsoleEvent{OccurredAt: t.At, Channel: string(t.Kind)}
	switch {
	case t.To == channel.Open:
		ev.Type = models.EventConnected
		ev.Description = fmt.Sprintf("%s channel connected", t.Kind)
	case t.To == channel.Reconnecting:
		ev.Type = models.EventReconnecting
		ev.Description = fmt.Sprintf("%s channel reconnecting, attempt %d", t.Kind, t.Attempts)
	case t.To == channel.CircuitOpen:
		ev.Type = models.EventCircuitOpen
		ev.Description = fmt.Sprintf("%s channel stopped after repeated errors", t.Kind)
	case t.To == channel.Disconnected && t.Reason == channel.ReasonGiveUp:
		ev.Type = models.EventGiveUp
		ev.Description = fmt.Sprintf("%s channel gave up after %d attempts", t.Kind, t.Attempts)
	case t.To == channel.Disconnected && t.From != channel.Disconnected:
		ev.Type = models.EventDisconnected
		ev.Description = fmt.Sprintf("%s channel disconnected", t.Kind)
	default:
		return
	}
	meta := map[string]any{"from": t.From.String(), "reason": t.Reason}
	if t.Err != nil {
		meta["error"] = t.Err.Error()
	}
	ev.Metadata = meta
	a.audit(ev)
}

// Model returns the view model; it is safe to read concurrently.
func (a *App) Model() *view.Model { return a.model }

// Catalog returns the presentation table in use.
func (a *App) Catalog() *presentation.Catalog { return a.catalog }

// Activate switches the visible device.
func (a *App) Activate(ctx context.Context, id string) error {
	var err error
	if cerr := loop.Call(ctx, a.loop, func() { err = a.registry.SetActive(id) }); cerr != nil {
		return cerr
	}
	return err
}

// Control queues a control command through the dispatcher.
func (a *App) Control(ctx context.Context, act control.Action) error {
	var err error
	if cerr := loop.Call(ctx, a.loop, func() { err = a.dispatcher.Dispatch(act) }); cerr != nil {
		return cerr
	}
	return err
}

// Refresh asks the backend for one device, or for all of them when id is empty.
func (a *App) Refresh(ctx context.Context, id string) error {
	msg := protocol.RequestAllDevices()
	if id != "" {
		msg = protocol.RequestDevice(id)
	}
	return loop.Call(ctx, a.loop, func() { a.device.Send(msg) })
}

// Channels returns both channels' statistics, system first.
func (a *App) Channels(ctx context.Context) ([]channel.Stats, error) {
	var out []channel.Stats
	err := loop.Call(ctx, a.loop, func() {
		out = []channel.Stats{a.system.Stats(), a.device.Stats()}
	})
	return out, err
}

// Reconnect replaces a channel that gave up or tripped its breaker with a new instance and
// connects it. Queued messages of the old instance are carried over.
func (a *App) Reconnect(ctx context.Context, kind channel.Kind) error {
	var err error
	cerr := loop.Call(ctx, a.loop, func() {
		if a.stopped {
			err = ErrStopped
			return
		}
		var slot **channel.Channel
		switch kind {
		case channel.KindSystem:
			slot = &a.system
		case channel.KindDevice:
			slot = &a.device
		default:
			err = fmt.Errorf("unknown channel %q", kind)
			return
		}
		old := *slot
		if st := old.State(); st != channel.CircuitOpen && st != channel.Disconnected {
			err = fmt.Errorf("%s channel is %s: %w", kind, st, ErrChannelActive)
			return
		}
		pending := old.Drain()
		old.Shutdown()
		ch := a.newChannel(kind)
		for _, msg := range pending {
			ch.Send(msg)
		}
		*slot = ch
		a.log.Infow("console_channel_rebuilt", "channel", string(kind), "carried", len(pending))
		ch.Connect()
	})
	if cerr != nil {
		return cerr
	}
	return err
}

// Pending lists a device's unreconciled control commands.
func (a *App) Pending(ctx context.Context, id string) ([]models.PendingControl, error) {
	var out []models.PendingControl
	err := loop.Call(ctx, a.loop, func() { out = a.dispatcher.Pending(id) })
	return out, err
}

// Snapshot returns the authoritative registers of a device.
func (a *App) Snapshot(ctx context.Context, id string) (models.DeviceSnapshot, bool, error) {
	var (
		snap models.DeviceSnapshot
		ok   bool
	)
	err := loop.Call(ctx, a.loop, func() { snap, ok = a.registry.Snapshot(id) })
	return snap, ok, err
}
