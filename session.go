package main

import (
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

var errBinaryFrame = errors.New("binary frames are not supported")

// session runs one connection from registration to deregistration.
type session struct {
	conn   *connection
	reg    *registry
	ticker *mTicker // nil disables keepalive pings
}

func newSession(conn *connection, reg *registry, ticker *mTicker) *session {
	return &session{conn: conn, reg: reg, ticker: ticker}
}

// run blocks until the peer disconnects or a read fails, then removes the
// connection and waits for its writer to finish.
func (s *session) run() {
	c := s.conn
	if err := s.reg.Add(c); err != nil {
		log.Printf("conn %s from %s rejected: %v", c.id, c.addr, err)
		c.ws.wsWriteClose(websocket.CloseTryAgainLater, err.Error())
		c.ws.wsClose()
		return
	}

	var ticks <-chan time.Time
	if s.ticker != nil {
		sub := s.ticker.subscribe()
		defer s.ticker.unsubscribe(sub)
		ticks = sub.tick
	}
	go c.writer(ticks)
	defer func() {
		s.reg.Remove(c)
		<-c.done
	}()

	c.ws.wsSetReadLimit()
	c.ws.wsSetReadDeadline()
	c.ws.wsSetPongHandler()
	for {
		if err := s.readMessage(); err != nil {
			logReadError(c, err)
			return
		}
	}
}

// readMessage reads and handles one frame.
func (s *session) readMessage() error {
	messageType, message, err := s.conn.ws.wsReadMessage()
	if err != nil {
		return err
	}
	if messageType == websocket.BinaryMessage {
		return errBinaryFrame
	}
	incr("conn.recv", 1)
	s.handle(message)
	return nil
}

// handle answers one text frame: an error reply for malformed JSON,
// otherwise an echo to the sender and a broadcast to everyone.
func (s *session) handle(message []byte) {
	in, err := decodeInbound(message)
	if err != nil {
		incr("messages.invalid", 1)
		log.Printf("conn %s sent invalid JSON: %v", s.conn.id, err)
		s.reg.Unicast(errorReply().encode(), s.conn)
		return
	}
	s.reg.Unicast(echoReply(in).encode(), s.conn)
	s.reg.Broadcast(broadcastReply(in).encode())
}

func logReadError(c *connection, err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		log.Printf("conn %s disconnected", c.id)
	case c.isClosed():
		log.Printf("conn %s closed by server", c.id)
	default:
		log.Printf("conn %s read error: %v", c.id, err)
	}
}
