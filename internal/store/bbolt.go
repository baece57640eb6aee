package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"
)

var (
	docsBucket  = []byte("docs")
	roomsBucket = []byte("rooms")
)

// BoltStore persists documents and room metadata in a single bbolt file.
type BoltStore struct {
	db       *bbolt.DB
	closeOne sync.Once
}

// OpenBolt opens (creating if necessary) a bbolt-backed store at path.
func OpenBolt(path string) (*BoltStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(docsBucket); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(roomsBucket); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) LoadDoc(name string) ([]byte, error) {
	var snapshot []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(docsBucket).Get([]byte(name))
		if v == nil {
			return nil
		}
		snapshot = append([]byte(nil), v...)
		return nil
	})
	return snapshot, err
}

func (s *BoltStore) PersistDoc(name string, snapshot []byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(docsBucket).Put([]byte(name), snapshot)
	})
}

func (s *BoltStore) LoadAllRooms() ([]RoomRecord, error) {
	var rooms []RoomRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(roomsBucket).ForEach(func(k, v []byte) error {
			var rec RoomRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("store: decode room %q: %w", k, err)
			}
			rooms = append(rooms, rec)
			return nil
		})
	})
	return rooms, err
}

func (s *BoltStore) SaveRoom(room RoomRecord) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("store: encode room: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(roomsBucket).Put([]byte(room.ID), data)
	})
}

func (s *BoltStore) DeleteRoom(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(roomsBucket).Delete([]byte(id))
	})
}

// Close closes the underlying bbolt database. Safe to call more than once.
func (s *BoltStore) Close() error {
	var err error
	s.closeOne.Do(func() {
		err = s.db.Close()
	})
	return err
}
