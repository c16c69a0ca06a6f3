// Package router decodes inbound frames and dispatches them by message type.
package router

import (
	"fmt"

	"modbus_console/internal/logger"
	"modbus_console/internal/metrics"
	"modbus_console/internal/protocol"
)

// Handler processes one decoded message.
type Handler func(msg protocol.Message) error

// HandlerError reports a handler failure caught at the router boundary.
type HandlerError struct {
	Type protocol.MessageType
	Err  error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s handler: %v", e.Type, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Router is the dispatch table of one channel.
type Router struct {
	channel  string
	handlers [protocol.TypeControl + 1]Handler
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New returns an empty Router for the named channel.
func New(channel string, log *logger.Logger, m *metrics.Metrics) *Router {
	return &Router{
		channel: channel,
		log:     logger.OrNop(log).Named("router").With("channel", channel),
		metrics: m,
	}
}

// Handle registers h for t, replacing any previous handler. Registering TypeUnknown
// overrides the default of ignoring unhandled messages.
func (r *Router) Handle(t protocol.MessageType, h Handler) *Router {
	if t.Valid() && int(t) < len(r.handlers) {
		r.handlers[t] = h
	}
	return r
}

// Route decodes frame and dispatches it. Malformed frames return an error wrapping
// protocol.ErrMalformedFrame; handler failures and panics return a *HandlerError.
func (r *Router) Route(frame []byte) error {
	msg, err := protocol.Decode(frame)
	if err != nil {
		return err
	}
	return r.Dispatch(msg)
}

// Dispatch runs the handler registered for msg's type.
func (r *Router) Dispatch(msg protocol.Message) (err error) {
	t := msg.Type()
	r.metrics.IncReceived(r.channel, t.String())

	var h Handler
	if t.Valid() && int(t) < len(r.handlers) {
		h = r.handlers[t]
	}
	if h == nil {
		if u, ok := msg.(protocol.Unknown); ok {
			r.log.Debugw("router_unhandled_type", "type", u.Name)
		}
		return nil
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = r.fail(t, fmt.Errorf("panic: %v", rec))
		}
	}()
	if herr := h(msg); herr != nil {
		return r.fail(t, herr)
	}
	return nil
}

func (r *Router) fail(t protocol.MessageType, err error) error {
	r.metrics.IncHandlerError(r.channel, t.String())
	r.log.Errorw("router_handler_failed", "type", t.String(), "err", err)
	return &HandlerError{Type: t, Err: err}
}
