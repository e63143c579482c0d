package main

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errConnClosed    = errors.New("connection closed")
	errSendQueueFull = errors.New("send queue full")
)

// connection is one upgraded websocket. Frames queued with enqueue are
// written by the writer goroutine, so a slow peer never blocks the caller.
type connection struct {
	id   string
	addr string
	ws   websocketManager
	send chan []byte
	done chan struct{}

	mu        sync.Mutex // Protects closed, closeCode, closeText
	closed    bool
	closeCode int
	closeText string
}

func newConnection(ws websocketManager, addr string, queueSize int) *connection {
	return &connection{
		id:        uuid.NewString(),
		addr:      addr,
		ws:        ws,
		send:      make(chan []byte, queueSize),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

// enqueue hands a frame to the writer without blocking.
func (c *connection) enqueue(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- message:
		return nil
	default:
		return errSendQueueFull
	}
}

// close closes the send queue; the writer then sends a close frame with the
// given code and releases the socket. Only the first call has any effect.
func (c *connection) close(code int, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	c.closed = true
	c.closeCode = code
	c.closeText = text
	close(c.send)
	return true
}

func (c *connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// writer drains the send queue onto the socket and answers every tick with
// a ping. A failed write closes the socket, which in turn fails the
// session's pending read.
func (c *connection) writer(ticks <-chan time.Time) {
	defer close(c.done)
	defer c.ws.wsClose()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.mu.Lock()
				code, text := c.closeCode, c.closeText
				c.mu.Unlock()
				c.ws.wsWriteClose(code, text)
				return
			}
			c.ws.wsSetWriteDeadline()
			if err := c.ws.wsWriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			incr("conn.send", 1)
		case _, ok := <-ticks:
			if !ok {
				ticks = nil
				continue
			}
			c.ws.wsSetWriteDeadline()
			if err := c.ws.wsWriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
