// Package crdt implements the server's view of a CRDT replica.
//
// The server never interprets document content (spec §1), so updates are
// treated as opaque byte strings. What the server must get right is the
// append-only log semantics: applying an update, reporting how many
// updates a replica has seen (its state vector), and encoding the updates
// a peer is missing since some vector. This mirrors the update-log
// replica in the pack's Yjs-compatible collab-doc example, since no
// maintained Go CRDT library exists in the retrieved corpus.
package crdt

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
)

// Replica is a single document's server-side CRDT state: an ordered log of
// opaque update blobs plus the count of updates applied ("state vector").
type Replica struct {
	mu      sync.Mutex
	updates [][]byte
}

// NewReplica returns an empty replica.
func NewReplica() *Replica {
	return &Replica{}
}

// ApplyUpdate appends data to the update log and returns the new state
// vector (the total number of updates now applied).
func (r *Replica) ApplyUpdate(data []byte) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, append([]byte(nil), data...))
	return uint64(len(r.updates))
}

// StateVector reports how many updates this replica has applied.
func (r *Replica) StateVector() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.updates))
}

// EncodeStateAsUpdateSince returns every update applied after sv, each
// length-prefixed so the receiver can split the blob back into individual
// updates. sv == 0 returns the entire log — the step-2 response to a
// client's first step-1 query.
func (r *Replica) EncodeStateAsUpdateSince(sv uint64) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sv > uint64(len(r.updates)) {
		sv = uint64(len(r.updates))
	}

	var out []byte
	var lenBuf [binary.MaxVarintLen64]byte
	for _, u := range r.updates[sv:] {
		n := binary.PutUvarint(lenBuf[:], uint64(len(u)))
		out = append(out, lenBuf[:n]...)
		out = append(out, u...)
	}
	return out
}

// DecodeUpdates splits a length-prefixed blob produced by
// EncodeStateAsUpdateSince back into individual update payloads.
func DecodeUpdates(blob []byte) ([][]byte, error) {
	var updates [][]byte
	for len(blob) > 0 {
		n, size := binary.Uvarint(blob)
		if size <= 0 {
			return nil, fmt.Errorf("crdt: malformed length prefix")
		}
		blob = blob[size:]
		if uint64(len(blob)) < n {
			return nil, fmt.Errorf("crdt: truncated update payload")
		}
		updates = append(updates, blob[:n])
		blob = blob[n:]
	}
	return updates, nil
}

// snapshotEnvelope is the JSON form written to and read from the persistence
// store; it is opaque to everything outside this package.
type snapshotEnvelope struct {
	Updates [][]byte `json:"updates"`
}

// Snapshot serializes the full update log for persistence.
func (r *Replica) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.Marshal(snapshotEnvelope{Updates: r.updates})
}

// LoadSnapshot restores a replica's update log from a previously persisted
// snapshot. An empty or nil snapshot leaves the replica unchanged.
func (r *Replica) LoadSnapshot(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("crdt: decode snapshot: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = env.Updates
	return nil
}

// Destroy drops the in-memory update log. The replica holds no external
// resources, so this is otherwise a no-op.
func (r *Replica) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = nil
}
