package main

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

func TestRegistryAdd(t *testing.T) {
	r := newRegistry(0)

	// Assert no connections exist
	if r.Len() != 0 {
		t.Fatal("Error in test environment, Expectation: 0, Received:", r.Len())
	}

	const n = 100
	conns := make([]*connection, n)
	var wg sync.WaitGroup
	for i := range conns {
		conns[i] = newTestConnection(1)
		wg.Add(1)
		go func(c *connection) {
			defer wg.Done()
			if err := r.Add(c); err != nil {
				t.Error("Expectation: nil, Received:", err)
			}
		}(conns[i])
	}
	wg.Wait()
	if r.Len() != n {
		t.Fatal("Expectation:", n, "Received:", r.Len())
	}

	// Removing any subset of M leaves N-M.
	const removed = 37
	for _, c := range conns[:removed] {
		wg.Add(1)
		go func(c *connection) {
			defer wg.Done()
			r.Remove(c)
		}(c)
	}
	wg.Wait()
	if r.Len() != n-removed {
		t.Fatal("Expectation:", n-removed, "Received:", r.Len())
	}
}

func TestRegistryAddTwice(t *testing.T) {
	r := newRegistry(0)
	c := newTestConnection(1)

	r.Add(c)
	if err := r.Add(c); err != nil {
		t.Fatal("Expectation: nil, Received:", err)
	}
	if r.Len() != 1 {
		t.Fatal("Expectation: 1, Received:", r.Len())
	}
}

func TestRegistryRemove(t *testing.T) {
	r := newRegistry(0)
	c, other := newTestConnection(1), newTestConnection(1)
	r.Add(c)
	r.Add(other)

	r.Remove(c)
	if r.Len() != 1 {
		t.Fatal("Expectation: 1, Received:", r.Len())
	}
	if !c.isClosed() {
		t.Fatal("ERR: removed connection's queue not closed")
	}

	// Removing again, or removing a stranger, changes nothing.
	r.Remove(c)
	r.Remove(newTestConnection(1))
	if r.Len() != 1 {
		t.Fatal("Expectation: 1, Received:", r.Len())
	}
	if other.isClosed() {
		t.Fatal("ERR: unrelated connection closed")
	}
}

func TestRegistryRemoveConcurrent(t *testing.T) {
	r := newRegistry(0)
	c := newTestConnection(1)
	r.Add(c)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Remove(c)
		}()
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Fatal("Expectation: 0, Received:", r.Len())
	}
}

func TestRegistryUnicast(t *testing.T) {
	r := newRegistry(0)
	c, other := newTestConnection(4), newTestConnection(4)
	r.Add(c)
	r.Add(other)

	r.Unicast([]byte("banana"), c)
	if len(c.send) != 1 || string(<-c.send) != "banana" {
		t.Fatal("Expectation: banana queued for the target")
	}
	if len(other.send) != 0 {
		t.Fatal("Expectation: 0, Received:", len(other.send))
	}
}

func TestRegistryUnicastFailure(t *testing.T) {
	r := newRegistry(0)
	c := newTestConnection(1)
	r.Add(c)

	r.Unicast([]byte("banana"), c)
	// The queue is full; the failure is swallowed and c is evicted.
	r.Unicast([]byte("monkey"), c)
	if r.Len() != 0 {
		t.Fatal("Expectation: 0, Received:", r.Len())
	}

	// Sending to an evicted connection is still harmless.
	r.Unicast([]byte("banana"), c)
}

func TestRegistryBroadcast(t *testing.T) {
	r := newRegistry(0)
	conns := []*connection{newTestConnection(4), newTestConnection(4), newTestConnection(4)}
	for _, c := range conns {
		r.Add(c)
	}

	r.Broadcast([]byte("banana"))
	for i, c := range conns {
		if len(c.send) != 1 {
			t.Fatal("Expectation: connection", i, "has 1 message, Received:", len(c.send))
		}
		if text := <-c.send; string(text) != "banana" {
			t.Fatal("Expectation: banana, Received:", string(text))
		}
	}
}

func TestRegistryBroadcastIsolation(t *testing.T) {
	r := newRegistry(0)
	good1, good2 := newTestConnection(4), newTestConnection(4)
	closed := newTestConnection(4)
	full := newTestConnection(1)
	for _, c := range []*connection{good1, closed, good2, full} {
		r.Add(c)
	}
	closed.close(websocket.CloseNormalClosure, "")
	full.enqueue([]byte("backlog"))

	r.Broadcast([]byte("banana"))

	if r.Len() != 2 {
		t.Fatal("Expectation: 2, Received:", r.Len())
	}
	for _, c := range []*connection{good1, good2} {
		if len(c.send) != 1 || string(<-c.send) != "banana" {
			t.Fatal("Expectation: healthy connections receive the broadcast")
		}
	}
	if !full.isClosed() {
		t.Fatal("ERR: slow connection not closed on eviction")
	}
}

func TestRegistryCapacity(t *testing.T) {
	r := newRegistry(2)
	r.Add(newTestConnection(1))
	r.Add(newTestConnection(1))

	if err := r.Add(newTestConnection(1)); !errors.Is(err, errRegistryFull) {
		t.Fatal("Expectation: errRegistryFull, Received:", err)
	}
	if r.Len() != 2 {
		t.Fatal("Expectation: 2, Received:", r.Len())
	}
}

func TestRegistryCloseAll(t *testing.T) {
	r := newRegistry(0)
	conns := []*connection{newTestConnection(1), newTestConnection(1), newTestConnection(1)}
	for _, c := range conns {
		r.Add(c)
	}

	if n := r.closeAll(); n != len(conns) {
		t.Fatal("Expectation:", len(conns), "Received:", n)
	}
	if r.Len() != 0 {
		t.Fatal("Expectation: 0, Received:", r.Len())
	}
	for _, c := range conns {
		if !c.isClosed() {
			t.Fatal("ERR: connection not closed")
		}
		if c.closeCode != websocket.CloseGoingAway {
			t.Fatal("Expectation: 1001, Received:", c.closeCode)
		}
	}
	if err := r.Add(newTestConnection(1)); !errors.Is(err, errRegistryClosed) {
		t.Fatal("Expectation: errRegistryClosed, Received:", err)
	}
}

// Broadcasts racing with adds and removes must neither panic nor deliver
// twice. Run with -race.
func TestRegistryBroadcastDuringMutation(t *testing.T) {
	r := newRegistry(0)
	stable := newTestConnection(1024)
	r.Add(stable)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := newTestConnection(1024)
			r.Add(c)
			r.Remove(c)
		}()
		go func(i int) {
			defer wg.Done()
			r.Broadcast([]byte(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	if len(stable.send) != 20 {
		t.Fatal("Expectation: 20, Received:", len(stable.send))
	}
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		text := string(<-stable.send)
		if seen[text] {
			t.Fatal("ERR: duplicate delivery of", text)
		}
		seen[text] = true
	}
	if r.Len() != 1 {
		t.Fatal("Expectation: 1, Received:", r.Len())
	}
}
