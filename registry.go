package main

import (
	"errors"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	errRegistryFull   = errors.New("registry full")
	errRegistryClosed = errors.New("registry closed")
)

// registry is the set of live connections. Every session shares one
// registry for the lifetime of the server.
type registry struct {
	mu     sync.RWMutex // Protects conns and closed
	conns  connections
	closed bool
	max    int
}

type connections map[*connection]struct{}

// newRegistry returns an empty registry holding at most maxConns
// connections. Zero means no limit.
func newRegistry(maxConns int) *registry {
	return &registry{
		conns: make(connections),
		max:   maxConns,
	}
}

// Add inserts c. Adding a connection that is already present is a no-op.
func (r *registry) Add(c *connection) error {
	r.mu.Lock()
	if _, ok := r.conns[c]; ok {
		r.mu.Unlock()
		return nil
	}
	if r.closed {
		r.mu.Unlock()
		return errRegistryClosed
	}
	if r.max > 0 && len(r.conns) >= r.max {
		r.mu.Unlock()
		mark("rejections", 1)
		return errRegistryFull
	}
	r.conns[c] = struct{}{}
	n := len(r.conns)
	r.mu.Unlock()

	incr("websockets", 1)
	log.Printf("conn %s registered from %s (%d active)", c.id, c.addr, n)
	return nil
}

// Remove deletes c and closes its send queue. Removing an absent
// connection does nothing.
func (r *registry) Remove(c *connection) {
	r.remove(c, websocket.CloseNormalClosure, "")
}

func (r *registry) remove(c *connection, code int, text string) bool {
	r.mu.Lock()
	_, ok := r.conns[c]
	if ok {
		delete(r.conns, c)
	}
	n := len(r.conns)
	r.mu.Unlock()

	if !ok {
		return false
	}
	c.close(code, text)
	decr("websockets", 1)
	log.Printf("conn %s removed (%d active)", c.id, n)
	return true
}

// Unicast sends message to c alone. A failed send evicts c.
func (r *registry) Unicast(message []byte, c *connection) {
	if err := c.enqueue(message); err != nil {
		r.evict(c, err)
	}
}

// Broadcast sends message to every connection registered at the time of
// the call. Each failed send evicts only the failing connection.
func (r *registry) Broadcast(message []byte) {
	mark("broadcasts", 1)
	for _, c := range r.snapshot() {
		if err := c.enqueue(message); err != nil {
			r.evict(c, err)
		}
	}
}

func (r *registry) evict(c *connection, err error) {
	code := websocket.CloseNormalClosure
	if errors.Is(err, errSendQueueFull) {
		code = websocket.ClosePolicyViolation
	}
	if r.remove(c, code, err.Error()) {
		incr("evictions", 1)
		log.Printf("conn %s evicted: %v", c.id, err)
	}
}

func (r *registry) snapshot() []*connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Len returns the number of registered connections.
func (r *registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// closeAll removes every connection, telling peers the server is going
// away. Later calls to Add fail with errRegistryClosed.
func (r *registry) closeAll() int {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	n := 0
	for _, c := range r.snapshot() {
		if r.remove(c, websocket.CloseGoingAway, "server shutting down") {
			n++
		}
	}
	return n
}
