package controlroom

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEngine_GetOrCreateRoomReturnsSameInstance(t *testing.T) {
	e := NewEngine()
	r1 := e.GetOrCreateRoom("room-1", false, "", "")
	r2 := e.GetOrCreateRoom("room-1", false, "", "")
	assert.Same(t, r1, r2)
	assert.Equal(t, 1, e.RoomCount())
}

func TestEngine_DisconnectFromRemovesEmptyRoom(t *testing.T) {
	e := NewEngine()
	r := e.GetOrCreateRoom("room-1", false, "", "")
	s := newFakeSocket()
	r.Connect(s)

	e.DisconnectFrom("room-1", s)
	assert.Equal(t, 0, e.RoomCount())
}

func TestEngine_DisconnectFromKeepsNonEmptyRoom(t *testing.T) {
	e := NewEngine()
	r := e.GetOrCreateRoom("room-1", false, "", "")
	a := newFakeSocket()
	b := newFakeSocket()
	r.Connect(a)
	r.Connect(b)

	e.DisconnectFrom("room-1", a)
	assert.Equal(t, 1, e.RoomCount())
}
