// Package roomregistry implements room creation, lookup, deletion, and
// token authentication (spec §4.2).
package roomregistry

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/opensync/docrelay/internal/logging"
	"github.com/opensync/docrelay/internal/metrics"
	"github.com/opensync/docrelay/internal/store"
)

const (
	minIDLength    = 12
	minTokenLength = 24
	maxNameLength  = 100
	maxHostLength  = 128
)

var (
	ErrInvalidName  = errors.New("roomregistry: invalid name")
	ErrInvalidHost  = errors.New("roomregistry: invalid host identity")
	ErrNotFound     = errors.New("roomregistry: room not found")
	ErrTokenInvalid = errors.New("roomregistry: token mismatch")
)

// Room is the registry's in-memory representation of a room.
type Room struct {
	ID                string
	Token             string
	Name              string
	CreatedAt         time.Time
	HostUserID        string
	RequireApproval   bool
	DefaultPermission string
	Participants      []string
}

// Registry is the in-memory room map, backed by a persistence store.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	store store.Store
}

// NewRegistry constructs a Registry and loads every persisted room from
// store into memory.
func NewRegistry(st store.Store) (*Registry, error) {
	r := &Registry{
		rooms: make(map[string]*Room),
		store: st,
	}

	records, err := st.LoadAllRooms()
	if err != nil {
		return nil, fmt.Errorf("roomregistry: load rooms at startup: %w", err)
	}
	for _, rec := range records {
		r.rooms[rec.ID] = fromRecord(rec)
	}
	metrics.ActiveRooms.Set(float64(len(r.rooms)))

	return r, nil
}

// Create validates input, generates an id and token, persists the room, and
// adds it to the in-memory map.
func (r *Registry) Create(name, hostUserID string) (*Room, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := validateHost(hostUserID); err != nil {
		return nil, err
	}

	id, err := randomToken(minIDLength)
	if err != nil {
		return nil, fmt.Errorf("roomregistry: generate id: %w", err)
	}
	token, err := randomToken(minTokenLength)
	if err != nil {
		return nil, fmt.Errorf("roomregistry: generate token: %w", err)
	}

	room := &Room{
		ID:         id,
		Token:      token,
		Name:       name,
		CreatedAt:  time.Now(),
		HostUserID: hostUserID,
	}

	if err := r.store.SaveRoom(toRecord(room)); err != nil {
		return nil, fmt.Errorf("roomregistry: persist room: %w", err)
	}

	r.mu.Lock()
	r.rooms[id] = room
	r.mu.Unlock()

	metrics.ActiveRooms.Inc()
	logging.Info(nil, "room created")

	return room, nil
}

// Count reports how many rooms are currently registered. Used by the
// health endpoint.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Get looks up a room by id without checking a token.
func (r *Registry) Get(id string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[id]
	return room, ok
}

// Authenticate looks up a room and constant-time-compares the supplied
// token against its stored token.
func (r *Registry) Authenticate(id, token string) (*Room, error) {
	room, ok := r.Get(id)
	if !ok {
		return nil, ErrNotFound
	}
	if !constantTimeEqual(room.Token, token) {
		return nil, ErrTokenInvalid
	}
	return room, nil
}

// Delete removes a room after authenticating the caller's token.
func (r *Registry) Delete(id, token string) error {
	room, ok := r.Get(id)
	if !ok {
		return ErrNotFound
	}
	if !constantTimeEqual(room.Token, token) {
		return ErrTokenInvalid
	}

	r.mu.Lock()
	delete(r.rooms, id)
	r.mu.Unlock()

	if err := r.store.DeleteRoom(id); err != nil {
		return fmt.Errorf("roomregistry: delete persisted room: %w", err)
	}

	metrics.ActiveRooms.Dec()
	return nil
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		// Still run a comparison of the stored token's length so a
		// wrong-length token costs about as much as a same-length one.
		subtle.ConstantTimeCompare([]byte(a), []byte(a))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomToken(minLength int) (string, error) {
	raw := make([]byte, minLength)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func validateName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return ErrInvalidName
	}
	if containsControlBytes(name) {
		return ErrInvalidName
	}
	return nil
}

func validateHost(host string) error {
	if host == "" {
		return nil
	}
	if len(host) > maxHostLength || containsControlBytes(host) {
		return ErrInvalidHost
	}
	return nil
}

func containsControlBytes(s string) bool {
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b <= 0x1F || b == 0x7F {
			return true
		}
	}
	return false
}

func toRecord(r *Room) store.RoomRecord {
	return store.RoomRecord{
		ID:                r.ID,
		Token:             r.Token,
		Name:              r.Name,
		CreatedAt:         r.CreatedAt.Unix(),
		HostUserID:        r.HostUserID,
		RequireApproval:   r.RequireApproval,
		DefaultPermission: r.DefaultPermission,
		Participants:      r.Participants,
	}
}

func fromRecord(rec store.RoomRecord) *Room {
	return &Room{
		ID:                rec.ID,
		Token:             rec.Token,
		Name:              rec.Name,
		CreatedAt:         time.Unix(rec.CreatedAt, 0),
		HostUserID:        rec.HostUserID,
		RequireApproval:   rec.RequireApproval,
		DefaultPermission: rec.DefaultPermission,
		Participants:      rec.Participants,
	}
}
