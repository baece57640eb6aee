package controlroom

import "sync"

type fakeSocket struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	closeAs string
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{}
}

func (f *fakeSocket) Send(payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, payload)
}

func (f *fakeSocket) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeAs = reason
}

func (f *fakeSocket) received() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeSocket) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
