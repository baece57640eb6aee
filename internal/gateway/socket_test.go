package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn is an in-memory wsConn double. Inbound messages are fed via
// the inbox channel; outbound writes are recorded in outbox.
type fakeConn struct {
	mu     sync.Mutex
	inbox  chan []byte
	outbox [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.inbox
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return websocket.BinaryMessage, msg, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("closed")
	}
	cp := append([]byte(nil), data...)
	f.outbox = append(f.outbox, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.inbox)
	}
	return nil
}

func (f *fakeConn) SetWriteDeadline(t time.Time) error { return nil }
func (f *fakeConn) SetReadLimit(limit int64)           {}

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.outbox))
	copy(out, f.outbox)
	return out
}

func TestSocket_SendDeliversOverWritePump(t *testing.T) {
	conn := newFakeConn()
	s := newSocket(conn, websocket.BinaryMessage)
	go s.writePump()

	s.Send([]byte("frame-1"))
	s.Send([]byte("frame-2"))

	require.Eventually(t, func() bool {
		return len(conn.written()) >= 2
	}, time.Second, 5*time.Millisecond)

	written := conn.written()
	assert.Equal(t, []byte("frame-1"), written[0])
	assert.Equal(t, []byte("frame-2"), written[1])
}

func TestSocket_CloseStopsWritePumpAndSendsCloseFrame(t *testing.T) {
	conn := newFakeConn()
	s := newSocket(conn, websocket.BinaryMessage)
	done := make(chan struct{})
	go func() {
		s.writePump()
		close(done)
	}()

	s.Close("server shutting down")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writePump never returned after Close")
	}

	written := conn.written()
	require.NotEmpty(t, written)
	assert.Equal(t, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutting down"), written[len(written)-1])
}

func TestSocket_SendAfterCloseIsNoop(t *testing.T) {
	conn := newFakeConn()
	s := newSocket(conn, websocket.BinaryMessage)
	s.Close("bye")
	assert.NotPanics(t, func() { s.Send([]byte("late")) })
}

func TestSocket_ReadPumpDispatchesMessagesAndCallsOnClose(t *testing.T) {
	conn := newFakeConn()
	s := newSocket(conn, websocket.BinaryMessage)

	var received [][]byte
	var mu sync.Mutex
	closeCalled := make(chan struct{})

	go s.readPump(1024, func(frame []byte) {
		mu.Lock()
		received = append(received, frame)
		mu.Unlock()
	}, func() {
		close(closeCalled)
	})

	conn.inbox <- []byte("hello")
	conn.inbox <- []byte("world")
	conn.Close()

	select {
	case <-closeCalled:
	case <-time.After(time.Second):
		t.Fatal("onClose never called")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.Equal(t, []byte("hello"), received[0])
	assert.Equal(t, []byte("world"), received[1])
}
