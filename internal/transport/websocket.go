package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Timing configuration and message size limits.
const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultSendBuffer       = 256
	maxMsgSize              = 1 << 20 // 1 MB, a full device_status fits comfortably
)

// WebsocketDialer dials the backend with gorilla/websocket.
type WebsocketDialer struct {
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
	// SendBuffer is the number of frames a connection holds before Write reports backpressure.
	SendBuffer int
}

// NewWebsocketDialer returns a dialer with the given timeouts; zero values fall back to defaults.
func NewWebsocketDialer(handshakeTimeout, writeWait time.Duration) *WebsocketDialer {
	if handshakeTimeout <= 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}
	if writeWait <= 0 {
		writeWait = defaultWriteWait
	}
	return &WebsocketDialer{HandshakeTimeout: handshakeTimeout, WriteWait: writeWait, SendBuffer: defaultSendBuffer}
}

func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxMsgSize)

	size := d.SendBuffer
	if size <= 0 {
		size = defaultSendBuffer
	}
	c := &wsConn{
		conn:      conn,
		writeWait: d.WriteWait,
		send:      make(chan []byte, size),
		done:      make(chan struct{}),
	}
	go c.writePump()
	return c, nil
}

// wsConn splits a websocket into a reader goroutine and a writer goroutine. Only writePump
// touches the socket for writing, so Write never blocks the caller.
type wsConn struct {
	conn      *websocket.Conn
	writeWait time.Duration

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	writeErr error
}

func (c *wsConn) Listen(ev Events) {
	go c.readPump(ev)
}

// readPump drains incoming frames until the connection fails or is closed.
func (c *wsConn) readPump(ev Events) {
	var err error
	defer func() {
		_ = c.Close()
		if werr := c.failure(); werr != nil {
			err = werr
		}
		ev.OnClose(err)
	}()
	for {
		var (
			kind int
			data []byte
		)
		kind, data, err = c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		ev.OnFrame(data)
	}
}

// writePump owns every write on the socket. On Close it flushes what is buffered, sends the
// close frame and closes the socket, which ends readPump.
func (c *wsConn) writePump() {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			if err := c.writeFrame(websocket.TextMessage, data); err != nil {
				c.fail(err)
				return
			}
		case <-c.done:
			for {
				select {
				case data := <-c.send:
					if err := c.writeFrame(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					_ = c.writeFrame(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (c *wsConn) writeFrame(kind int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeWait))
	return c.conn.WriteMessage(kind, data)
}

func (c *wsConn) fail(err error) {
	c.mu.Lock()
	if c.writeErr == nil {
		c.writeErr = fmt.Errorf("websocket write: %w", err)
	}
	c.mu.Unlock()
	_ = c.Close()
}

func (c *wsConn) failure() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeErr
}

func (c *wsConn) Write(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close signals writePump to finish. It does not wait for the socket to close.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
