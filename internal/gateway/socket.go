// Package gateway implements the HTTP upgrade surface that dispatches
// authenticated WebSocket connections to the CRDT and control room engines
// (spec §4.5).
package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn this package depends on, kept
// narrow so tests can substitute a fake connection.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
}

const writeWait = 10 * time.Second

// socket wraps a raw WebSocket connection with a buffered send channel and
// satisfies both docengine.Socket and controlroom.Socket (identical method
// sets: Send([]byte), Close(string)).
type socket struct {
	conn        wsConn
	messageType int // websocket.BinaryMessage or websocket.TextMessage
	send        chan []byte

	mu          sync.Mutex
	closeOnce   sync.Once
	closed      bool
	closeReason string
}

func newSocket(conn wsConn, messageType int) *socket {
	return &socket{
		conn:        conn,
		messageType: messageType,
		send:        make(chan []byte, 256),
	}
}

// Send queues a frame for delivery. A full buffer drops the frame rather
// than blocking the caller, per spec §5's no-per-message-timeout rule.
func (s *socket) Send(frame []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	select {
	case s.send <- frame:
	default:
	}
}

// Close terminates the connection. Safe to call multiple times.
func (s *socket) Close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.closeReason = reason
		s.mu.Unlock()
		close(s.send)
	})
}

// writePump drains the send channel to the wire until it is closed (by
// Close) or a write fails. Must run in its own goroutine.
func (s *socket) writePump() {
	defer s.conn.Close()

	for frame := range s.send {
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(s.messageType, frame); err != nil {
			return
		}
	}
	s.mu.Lock()
	reason := s.closeReason
	s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason))
}

// readPump blocks reading inbound frames and invokes onMessage for each one
// of the expected wire type, calling onClose once the connection ends.
func (s *socket) readPump(maxFrameSize int64, onMessage func([]byte), onClose func()) {
	defer onClose()

	s.conn.SetReadLimit(maxFrameSize)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != s.messageType {
			continue
		}
		onMessage(data)
	}
}
