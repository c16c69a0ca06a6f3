// Package channel implements a managed duplex connection to the backend: lifecycle, bounded
// reconnection, heartbeat, an error-rate circuit breaker and an order-preserving outbound queue.
//
// A Channel is owned by the loop. Every method must be called from a loop task.
package channel

import (
	"context"
	"errors"
	"strings"
	"time"

	"modbus_console/internal/logger"
	"modbus_console/internal/loop"
	"modbus_console/internal/metrics"
	"modbus_console/internal/protocol"
	"modbus_console/internal/transport"
)

// backpressureRetry is the minimum wait before retrying a write the transport refused.
const backpressureRetry = 100 * time.Millisecond

var (
	// ErrIdle is the transport error raised when no frame arrived within the idle timeout.
	ErrIdle = errors.New("channel idle timeout")
	// ErrShutdown is reported to listeners when the channel is shut down.
	ErrShutdown = errors.New("channel shut down")
)

// FrameHandler consumes inbound frames. Returning an error wrapping protocol.ErrMalformedFrame
// counts toward the circuit breaker; any other error is recorded as a handler error.
type FrameHandler interface {
	Route(frame []byte) error
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(frame []byte) error

func (f FrameHandlerFunc) Route(frame []byte) error { return f(frame) }

// Options carries a Channel's collaborators.
type Options struct {
	Loop    loop.Loop
	Dialer  transport.Dialer
	Handler FrameHandler
	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Channel is one managed connection to a backend endpoint.
type Channel struct {
	profile Profile
	cfg     Config
	url     string

	loop    loop.Loop
	dialer  transport.Dialer
	handler FrameHandler
	log     *logger.Logger
	metrics *metrics.Metrics

	state       State
	gen         uint64
	conn        transport.Conn
	attempts    int
	errCount    int
	windowStart time.Time
	suppressed  bool

	heartbeat  loop.Timer
	watchdog   loop.Timer
	reconnect  loop.Timer
	drainTimer loop.Timer
	draining   bool
	queue      []protocol.Envelope
	// parked holds messages that failed to encode. They are kept for Drain, never written.
	parked []protocol.Envelope

	handlerErrors int
	changedAt     time.Time
	listeners     []Listener
}

// New builds a Channel in the Disconnected state.
func New(p Profile, cfg Config, opts Options) *Channel {
	c := &Channel{
		profile: p,
		cfg:     cfg,
		url:     strings.TrimRight(cfg.BaseURL, "/") + p.Path,
		loop:    opts.Loop,
		dialer:  opts.Dialer,
		handler: opts.Handler,
		log:     logger.OrNop(opts.Logger).Named("channel").With("channel", string(p.Kind)),
		metrics: opts.Metrics,
		state:   Disconnected,
	}
	c.changedAt = c.loop.Now()
	c.metrics.SetChannelState(string(p.Kind), int(Disconnected))
	return c
}

// SetHandler replaces the frame handler.
func (c *Channel) SetHandler(h FrameHandler) { c.handler = h }

// OnTransition registers a listener for state changes.
func (c *Channel) OnTransition(l Listener) {
	c.listeners = append(c.listeners, l)
}

func (c *Channel) Kind() Kind    { return c.profile.Kind }
func (c *Channel) State() State  { return c.state }
func (c *Channel) URL() string   { return c.url }
func (c *Channel) QueueLen() int { return len(c.queue) }

// Stats returns a snapshot of the channel's counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Kind:          c.profile.Kind,
		URL:           c.url,
		State:         c.state,
		Attempts:      c.attempts,
		Errors:        c.errCount,
		QueueLen:      len(c.queue),
		Parked:        len(c.parked),
		HandlerErrors: c.handlerErrors,
		ChangedAt:     c.changedAt,
	}
}

// Connect starts establishing the connection. It is a no-op unless the channel is
// Disconnected or Reconnecting, and after Shutdown.
func (c *Channel) Connect() {
	if c.suppressed || (c.state != Disconnected && c.state != Reconnecting) {
		return
	}
	reason := ReasonConnect
	if c.state == Reconnecting {
		reason = ReasonReconnect
	}
	c.reconnect = loop.StopTimer(c.reconnect)
	c.setState(Connecting, reason, nil)

	c.gen++
	gen := c.gen
	url, timeout, dialer := c.url, c.cfg.DialTimeout, c.dialer
	c.loop.Go(func() func() {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		conn, err := dialer.Dial(ctx, url)
		return func() { c.onDial(gen, conn, err) }
	})
}

func (c *Channel) onDial(gen uint64, conn transport.Conn, err error) {
	if gen != c.gen || c.state != Connecting {
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.log.Warnw("channel_dial_failed", "url", c.url, "attempt", c.attempts, "err", err)
		c.handleClose(err)
		c.onError(ErrorTransport, err)
		return
	}
	c.conn = conn
	conn.Listen(&connEvents{c: c, gen: gen})
	c.onOpen()
}

// connEvents forwards transport callbacks onto the loop, tagged with the connection generation.
type connEvents struct {
	c   *Channel
	gen uint64
}

func (e *connEvents) OnFrame(data []byte) {
	e.c.loop.Post(func() { e.c.onFrame(e.gen, data) })
}

func (e *connEvents) OnClose(err error) {
	e.c.loop.Post(func() {
		if e.gen != e.c.gen {
			return
		}
		e.c.handleClose(err)
	})
}

func (c *Channel) onOpen() {
	c.attempts = 0
	c.errCount = 0
	c.windowStart = c.loop.Now()
	c.setState(Open, ReasonOpened, nil)
	c.log.Infow("channel_open", "url", c.url)

	c.scheduleHeartbeat(c.gen)
	c.armWatchdog(c.gen)
	if c.profile.OpenRequests != nil {
		for _, msg := range c.profile.OpenRequests() {
			c.enqueue(msg)
		}
	}
	c.startDrain()
}

func (c *Channel) onFrame(gen uint64, data []byte) {
	if gen != c.gen || c.state != Open {
		return
	}
	c.armWatchdog(gen)
	if c.handler == nil {
		return
	}
	err := c.handler.Route(data)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrMalformedFrame):
		c.log.Debugw("channel_frame_discarded", "err", err)
		c.onError(ErrorMalformed, err)
	default:
		c.handlerErrors++
	}
}

// handleClose reacts to a lost connection: schedule a reconnect while attempts remain, else give up.
func (c *Channel) handleClose(cause error) {
	if c.suppressed || c.state == CircuitOpen {
		return
	}
	c.teardown()

	if c.attempts < c.cfg.MaxReconnectAttempts {
		c.attempts++
		c.metrics.IncReconnect(string(c.profile.Kind))
		c.log.Infow("channel_reconnect_scheduled", "attempt", c.attempts, "max", c.cfg.MaxReconnectAttempts,
			"delay", c.cfg.ReconnectDelay, "err", cause)
		c.setState(Reconnecting, ReasonClosed, cause)
		c.reconnect = c.loop.AfterFunc(c.cfg.ReconnectDelay, c.Connect)
		return
	}
	c.log.Errorw("channel_give_up", "attempts", c.attempts, "err", cause)
	c.setState(Disconnected, ReasonGiveUp, cause)
}

// onError counts an error in the rolling window and trips the circuit at the threshold.
func (c *Channel) onError(class ErrorClass, err error) {
	if c.suppressed || c.state == CircuitOpen {
		return
	}
	now := c.loop.Now()
	if now.Sub(c.windowStart) > c.cfg.ErrorResetInterval {
		c.errCount = 0
		c.windowStart = now
	}
	c.errCount++
	c.metrics.IncError(string(c.profile.Kind), class.String())
	c.log.Warnw("channel_error", "class", class.String(), "count", c.errCount, "max", c.cfg.MaxErrors, "err", err)

	if c.errCount < c.cfg.MaxErrors {
		return
	}
	if c.state != Open && c.state != Reconnecting {
		return
	}
	c.tripCircuit(err)
}

func (c *Channel) tripCircuit(cause error) {
	c.teardown()
	c.reconnect = loop.StopTimer(c.reconnect)
	c.metrics.IncCircuitTrip(string(c.profile.Kind))
	c.log.Errorw("channel_circuit_open", "errors", c.errCount, "window", c.cfg.ErrorResetInterval, "err", cause)
	c.setState(CircuitOpen, ReasonCircuit, cause)
}

// Shutdown stops every timer, closes the connection and suppresses further reconnects.
func (c *Channel) Shutdown() {
	if c.suppressed {
		return
	}
	c.suppressed = true
	c.reconnect = loop.StopTimer(c.reconnect)
	if c.state == CircuitOpen || c.state == Disconnected {
		c.teardown()
		return
	}
	c.setState(Closing, ReasonShutdown, ErrShutdown)
	c.teardown()
	c.setState(Disconnected, ReasonShutdown, ErrShutdown)
}

// teardown invalidates the current connection generation, stops connection timers and closes the conn.
func (c *Channel) teardown() {
	c.gen++
	c.heartbeat = loop.StopTimer(c.heartbeat)
	c.watchdog = loop.StopTimer(c.watchdog)
	c.drainTimer = loop.StopTimer(c.drainTimer)
	c.draining = false
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Channel) scheduleHeartbeat(gen uint64) {
	if c.cfg.HeartbeatInterval <= 0 {
		return
	}
	c.heartbeat = c.loop.AfterFunc(c.cfg.HeartbeatInterval, func() {
		if gen != c.gen || c.state != Open {
			return
		}
		c.Send(protocol.Heartbeat{})
		c.scheduleHeartbeat(gen)
	})
}

func (c *Channel) armWatchdog(gen uint64) {
	c.watchdog = loop.StopTimer(c.watchdog)
	if c.cfg.IdleTimeout <= 0 {
		return
	}
	c.watchdog = c.loop.AfterFunc(c.cfg.IdleTimeout, func() {
		if gen != c.gen || c.state != Open {
			return
		}
		c.log.Warnw("channel_idle", "timeout", c.cfg.IdleTimeout)
		c.onError(ErrorTransport, ErrIdle)
		c.handleClose(ErrIdle)
	})
}

// Send queues msg. When the channel is open and no drain is running, draining starts at once.
func (c *Channel) Send(msg protocol.Outbound) {
	c.enqueue(msg)
	if c.state == Open && !c.draining {
		c.startDrain()
	}
}

// Drain removes and returns every queued message, oldest first, followed by parked ones.
func (c *Channel) Drain() []protocol.Outbound {
	out := make([]protocol.Outbound, 0, len(c.queue)+len(c.parked))
	for _, env := range c.queue {
		out = append(out, env.Msg)
	}
	for _, env := range c.parked {
		out = append(out, env.Msg)
	}
	c.queue, c.parked = nil, nil
	c.metrics.SetQueueDepth(string(c.profile.Kind), 0)
	return out
}

func (c *Channel) enqueue(msg protocol.Outbound) {
	c.queue = append(c.queue, protocol.NewEnvelope(msg, c.loop.Now()))
	c.metrics.SetQueueDepth(string(c.profile.Kind), len(c.queue))
}

func (c *Channel) startDrain() {
	if c.draining {
		return
	}
	c.draining = true
	c.drainStep()
}

// drainStep writes the oldest queued message and schedules the next step after the spacing delay.
func (c *Channel) drainStep() {
	c.drainTimer = nil
	for {
		if len(c.queue) == 0 {
			c.draining = false
			return
		}
		env := c.queue[0]
		c.queue = c.queue[1:]
		c.metrics.SetQueueDepth(string(c.profile.Kind), len(c.queue))

		if c.state != Open || c.conn == nil {
			c.requeue(env)
			c.draining = false
			return
		}
		data, err := env.Encode()
		if err != nil {
			// Every built-in message encodes; this only catches a broken Outbound implementation.
			c.parked = append(c.parked, env)
			c.log.Errorw("channel_encode_failed", "type", env.Msg.Type().String(), "parked", len(c.parked), "err", err)
			continue
		}
		err = c.conn.Write(data)
		if errors.Is(err, transport.ErrBackpressure) {
			c.requeue(env)
			c.log.Debugw("channel_backpressure", "type", env.Msg.Type().String(), "queue", len(c.queue))
			c.drainTimer = c.loop.AfterFunc(max(c.cfg.DrainSpacing, backpressureRetry), c.drainStep)
			return
		}
		if err != nil {
			c.requeue(env)
			c.draining = false
			c.log.Warnw("channel_write_failed", "type", env.Msg.Type().String(), "err", err)
			c.onError(ErrorTransport, err)
			c.handleClose(err)
			return
		}
		c.metrics.IncSent(string(c.profile.Kind), env.Msg.Type().String())
		c.drainTimer = c.loop.AfterFunc(c.cfg.DrainSpacing, c.drainStep)
		return
	}
}

// requeue puts env back at the front of the queue.
func (c *Channel) requeue(env protocol.Envelope) {
	c.queue = append([]protocol.Envelope{env}, c.queue...)
	c.metrics.IncRequeued(string(c.profile.Kind))
	c.metrics.SetQueueDepth(string(c.profile.Kind), len(c.queue))
}

func (c *Channel) setState(to State, reason string, cause error) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	c.changedAt = c.loop.Now()
	c.metrics.SetChannelState(string(c.profile.Kind), int(to))
	c.log.Debugw("channel_state", "from", from.String(), "to", to.String(), "reason", reason)

	tr := Transition{
		Kind:     c.profile.Kind,
		From:     from,
		To:       to,
		At:       c.changedAt,
		Attempts: c.attempts,
		Reason:   reason,
		Err:      cause,
	}
	for _, l := range c.listeners {
		l(tr)
	}
}
