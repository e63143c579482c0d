package main

import (
	"time"

	"github.com/gorilla/websocket"
)

// websocketManager is the subset of *websocket.Conn a session needs.
// Tests substitute a scripted implementation.
type websocketManager interface {
	wsSetReadLimit()
	wsSetReadDeadline()
	wsSetPongHandler()
	wsReadMessage() (int, []byte, error)
	wsSetWriteDeadline()
	wsWriteMessage(int, []byte) error
	wsWriteClose(code int, text string)
	wsClose()
}

type websocketInteractor struct {
	ws             *websocket.Conn
	maxMessageSize int64
	writeWait      time.Duration
	// Zero disables read deadlines.
	pongWait time.Duration
}

func newWebsocketInteractor(ws *websocket.Conn, cfg config) websocketInteractor {
	w := websocketInteractor{
		ws:             ws,
		maxMessageSize: cfg.MaxMessageSize,
		writeWait:      cfg.SendTimeout,
	}
	if cfg.PingInterval > 0 {
		w.pongWait = cfg.PingInterval + cfg.PingTimeout
	}
	return w
}

func (w websocketInteractor) wsSetReadLimit() {
	w.ws.SetReadLimit(w.maxMessageSize)
}

func (w websocketInteractor) wsSetReadDeadline() {
	if w.pongWait <= 0 {
		w.ws.SetReadDeadline(time.Time{})
		return
	}
	w.ws.SetReadDeadline(time.Now().Add(w.pongWait))
}

func (w websocketInteractor) wsSetPongHandler() {
	w.ws.SetPongHandler(func(string) error { w.wsSetReadDeadline(); return nil })
}

func (w websocketInteractor) wsClose() {
	w.ws.Close()
}

func (w websocketInteractor) wsReadMessage() (messageType int, p []byte, err error) {
	return w.ws.ReadMessage()
}

func (w websocketInteractor) wsSetWriteDeadline() {
	if w.writeWait <= 0 {
		w.ws.SetWriteDeadline(time.Time{})
		return
	}
	w.ws.SetWriteDeadline(time.Now().Add(w.writeWait))
}

func (w websocketInteractor) wsWriteMessage(messageType int, payload []byte) error {
	return w.ws.WriteMessage(messageType, payload)
}

// wsWriteClose sends a close frame. Errors are ignored, the socket is
// about to be released anyway.
func (w websocketInteractor) wsWriteClose(code int, text string) {
	w.wsSetWriteDeadline()
	w.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
}
