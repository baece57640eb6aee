package crdt

import "sync"

// AwarenessEntry is one client's ephemeral presence state.
type AwarenessEntry struct {
	State []byte
	Clock uint32
}

// AwarenessDiff describes the ids affected by an applied awareness update,
// split the way the wire protocol reports them.
type AwarenessDiff struct {
	Added   []uint32
	Updated []uint32
	Removed []uint32
}

// Awareness maps an awareness-client-id (chosen by the client) to its
// current opaque state, with a per-entry logical clock so stale updates are
// dropped.
type Awareness struct {
	mu      sync.Mutex
	entries map[uint32]AwarenessEntry
}

// NewAwareness returns an empty awareness map.
func NewAwareness() *Awareness {
	return &Awareness{entries: make(map[uint32]AwarenessEntry)}
}

// ApplyUpdate applies a decoded set of (id, clock, state) entries. An entry
// is accepted when it is new or its clock strictly advances the existing
// one; a nil state removes the id (client-initiated withdrawal).
func (a *Awareness) ApplyUpdate(ids []uint32, clocks []uint32, states [][]byte) AwarenessDiff {
	a.mu.Lock()
	defer a.mu.Unlock()

	var diff AwarenessDiff
	for i, id := range ids {
		clock := clocks[i]
		state := states[i]

		existing, known := a.entries[id]
		if state == nil {
			if known {
				delete(a.entries, id)
				diff.Removed = append(diff.Removed, id)
			}
			continue
		}

		if !known {
			a.entries[id] = AwarenessEntry{State: state, Clock: clock}
			diff.Added = append(diff.Added, id)
			continue
		}

		if clock > existing.Clock {
			a.entries[id] = AwarenessEntry{State: state, Clock: clock}
			diff.Updated = append(diff.Updated, id)
		}
	}
	return diff
}

// EncodeAll returns every known id with its current state and clock, for
// the initial awareness frame sent to a newly connected socket.
func (a *Awareness) EncodeAll() (ids []uint32, clocks []uint32, states [][]byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, entry := range a.entries {
		ids = append(ids, id)
		clocks = append(clocks, entry.Clock)
		states = append(states, entry.State)
	}
	return ids, clocks, states
}

// Remove withdraws the given ids, as on socket disconnect or document
// destruction. Returns the subset that was actually present.
func (a *Awareness) Remove(ids []uint32) []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var removed []uint32
	for _, id := range ids {
		if _, ok := a.entries[id]; ok {
			delete(a.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len reports the number of known awareness ids. Used by tests.
func (a *Awareness) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
