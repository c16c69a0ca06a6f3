// Package transport abstracts the physical duplex connection a channel runs over.
package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is reported when writing to a connection that has been closed.
	ErrClosed = errors.New("transport: connection closed")
	// ErrBackpressure is reported when the connection cannot accept another frame yet.
	// The frame was not taken; the caller keeps it and retries later.
	ErrBackpressure = errors.New("transport: send buffer full")
)

// Events receives what happens on a connection. Implementations are called from the
// connection's reader goroutine and must hand work over to the loop.
type Events interface {
	OnFrame(data []byte)
	// OnClose is called exactly once, after the last OnFrame.
	OnClose(err error)
}

// Conn is one established connection.
type Conn interface {
	// Listen starts delivering inbound frames to ev. Called once, right after Dial.
	Listen(ev Events)
	// Write hands one text frame to the connection without blocking. It returns ErrClosed
	// or ErrBackpressure when the frame was not accepted. Failures after acceptance are
	// reported through Events.OnClose.
	Write(data []byte) error
	// Close tears the connection down. OnClose still fires.
	Close() error
}

// Dialer opens connections to an endpoint URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}
