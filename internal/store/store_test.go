package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_MissingKeyIsNotError(t *testing.T) {
	s := NewMemStore()

	doc, err := s.LoadDoc("room1:notes.md")
	require.NoError(t, err)
	assert.Nil(t, doc)

	rooms, err := s.LoadAllRooms()
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestMemStore_DocRoundTrip(t *testing.T) {
	s := NewMemStore()

	require.NoError(t, s.PersistDoc("room1:notes.md", []byte("snapshot-bytes")))

	doc, err := s.LoadDoc("room1:notes.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot-bytes"), doc)
}

func TestMemStore_RoomLifecycle(t *testing.T) {
	s := NewMemStore()

	room := RoomRecord{ID: "room1", Token: "tok", Name: "demo", CreatedAt: 1}
	require.NoError(t, s.SaveRoom(room))

	rooms, err := s.LoadAllRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room, rooms[0])

	require.NoError(t, s.DeleteRoom("room1"))
	rooms, err = s.LoadAllRooms()
	require.NoError(t, err)
	assert.Empty(t, rooms)

	// Deleting an absent id is not an error.
	require.NoError(t, s.DeleteRoom("does-not-exist"))
}

func TestMemStore_Close(t *testing.T) {
	s := NewMemStore()
	assert.NoError(t, s.Close())
}

func TestBoltStore_DocAndRoomRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "docs.db")

	s, err := OpenBolt(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	_, statErr := os.Stat(filepath.Dir(path))
	require.NoError(t, statErr)

	doc, err := s.LoadDoc("room1:notes.md")
	require.NoError(t, err)
	assert.Nil(t, doc)

	require.NoError(t, s.PersistDoc("room1:notes.md", []byte("hello")))
	doc, err = s.LoadDoc("room1:notes.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), doc)

	room := RoomRecord{ID: "room1", Token: "token-1234567890123456789012", Name: "demo", CreatedAt: 42}
	require.NoError(t, s.SaveRoom(room))

	rooms, err := s.LoadAllRooms()
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room, rooms[0])
}

func TestBoltStore_CloseIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")
	s, err := OpenBolt(path)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestBoltStore_PersistenceSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs.db")

	s1, err := OpenBolt(path)
	require.NoError(t, err)
	require.NoError(t, s1.PersistDoc("room1:x", []byte("persisted")))
	require.NoError(t, s1.Close())

	s2, err := OpenBolt(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	doc, err := s2.LoadDoc("room1:x")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), doc)
}
