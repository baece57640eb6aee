package docengine

import (
	"context"
	"sync"
	"time"

	"github.com/opensync/docrelay/internal/crdt"
	"github.com/opensync/docrelay/internal/logging"
	"github.com/opensync/docrelay/internal/metrics"
	"github.com/opensync/docrelay/internal/store"
	"go.uber.org/zap"
)

const (
	// defaultPersistDebounce is the nominal persist-debounce timer (spec §3/§4.3).
	defaultPersistDebounce = 5 * time.Second
	// defaultIdleGrace is the nominal idle-destroy grace period (spec §3/§4.3).
	defaultIdleGrace = 30 * time.Second
)

// Document owns one document's CRDT replica, awareness state, connected
// sockets, and timers. All mutation of this cohesive unit happens under mu,
// held across apply-update -> capture-emitted-events, per spec §5.
type Document struct {
	name string

	mu         sync.Mutex
	replica    *crdt.Replica
	awareness  *crdt.Awareness
	clients    map[Socket]map[uint32]struct{}
	persistTmr *time.Timer
	idleTmr    *time.Timer
	destroyed  bool

	store           store.Store
	persistDebounce time.Duration
	idleGrace       time.Duration

	// onIdleDestroyed is invoked (outside the lock) once the document has
	// been fully torn down, so the engine can drop it from its map. It
	// receives the document itself so the engine can identity-check the
	// map entry before deleting it.
	onIdleDestroyed func(d *Document)
}

func newDocument(name string, st store.Store, onIdleDestroyed func(*Document)) *Document {
	return &Document{
		name:            name,
		replica:         crdt.NewReplica(),
		awareness:       crdt.NewAwareness(),
		clients:         make(map[Socket]map[uint32]struct{}),
		store:           st,
		persistDebounce: defaultPersistDebounce,
		idleGrace:       defaultIdleGrace,
		onIdleDestroyed: onIdleDestroyed,
	}
}

// load restores any persisted snapshot into the replica. Called once, while
// the document is still unreachable from the engine's map (see GetOrCreate).
func (d *Document) load() {
	snapshot, err := d.store.LoadDoc(d.name)
	if err != nil {
		logging.Error(context.Background(), "failed to load document snapshot", zap.String("doc", d.name), zap.Error(err))
		return
	}
	if snapshot == nil {
		return
	}
	if err := d.replica.LoadSnapshot(snapshot); err != nil {
		logging.Error(context.Background(), "failed to decode document snapshot", zap.String("doc", d.name), zap.Error(err))
	}
}

// Connect registers a newly authenticated socket, cancels any pending idle
// timer, and sends the initial sync/awareness frames (spec §4.3 "on connect").
// It reports false without attaching the socket if the document has already
// been destroyed (its idle timer fired and teardown is underway or done) —
// the caller must then ask the engine for a fresh document instead of
// attaching to one whose history is being erased.
func (d *Document) Connect(s Socket) bool {
	d.mu.Lock()
	if d.destroyed {
		d.mu.Unlock()
		return false
	}
	d.clients[s] = make(map[uint32]struct{})
	if d.idleTmr != nil {
		d.idleTmr.Stop()
		d.idleTmr = nil
	}
	sv := d.replica.StateVector()
	ids, clocks, states := d.awareness.EncodeAll()
	d.mu.Unlock()

	s.Send(EncodeSyncStep1(sv))
	if len(ids) > 0 {
		s.Send(EncodeFrame(FrameAwareness, EncodeAwareness(ids, clocks, states)))
	}
	return true
}

// HandleSync processes a sync frame's body from the originating socket.
func (d *Document) HandleSync(origin Socket, body []byte) {
	msgType, payload, err := DecodeSync(body)
	if err != nil {
		return
	}

	switch msgType {
	case SyncStep1:
		theirSV, err := decodeUvarint(payload)
		if err != nil {
			return
		}
		d.mu.Lock()
		blob := d.replica.EncodeStateAsUpdateSince(theirSV)
		d.mu.Unlock()
		origin.Send(EncodeSyncStep2(blob))

	case SyncStep2:
		d.applyUpdatesAndBroadcast(origin, payload)

	case SyncUpdate:
		d.applyUpdatesAndBroadcast(origin, encodeSingleUpdateAsBlob(payload))
	}
}

// applyUpdatesAndBroadcast decodes a length-prefixed updates blob, applies
// each update to the replica under the document lock, then broadcasts and
// schedules a persist — all per spec §4.3/§5 ordering rules.
func (d *Document) applyUpdatesAndBroadcast(origin Socket, blob []byte) {
	updates, err := DecodeUpdates(blob)
	if err != nil {
		return
	}
	if len(updates) == 0 {
		return
	}

	d.mu.Lock()
	var recipients []Socket
	for u := range d.clients {
		if u != origin {
			recipients = append(recipients, u)
		}
	}
	for _, u := range updates {
		d.replica.ApplyUpdate(u)
	}
	d.resetPersistTimerLocked()
	d.mu.Unlock()

	frame := EncodeSyncUpdate(joinUpdates(updates))
	for _, r := range recipients {
		r.Send(frame)
	}
	metrics.DocumentUpdates.WithLabelValues("sync").Add(float64(len(updates)))
}

// HandleAwareness processes an awareness frame from the originating socket.
func (d *Document) HandleAwareness(origin Socket, body []byte) {
	ids, clocks, states, err := DecodeAwareness(body)
	if err != nil {
		return
	}

	d.mu.Lock()
	diff := d.awareness.ApplyUpdate(ids, clocks, states)
	if known, ok := d.clients[origin]; ok {
		for _, id := range diff.Added {
			known[id] = struct{}{}
		}
		for _, id := range diff.Updated {
			known[id] = struct{}{}
		}
	}
	var recipients []Socket
	for s := range d.clients {
		recipients = append(recipients, s)
	}
	d.mu.Unlock()

	if len(diff.Added) == 0 && len(diff.Updated) == 0 && len(diff.Removed) == 0 {
		return
	}

	allIDs := append(append(append([]uint32{}, diff.Added...), diff.Updated...), diff.Removed...)
	frameIDs, frameClocks, frameStates := d.reencodeDiff(allIDs)
	frame := EncodeFrame(FrameAwareness, EncodeAwareness(frameIDs, frameClocks, frameStates))

	for _, s := range recipients {
		s.Send(frame)
	}
	metrics.DocumentUpdates.WithLabelValues("awareness").Inc()
}

// reencodeDiff looks up the current clock/state for each id (or marks a
// removal when no longer present) so a single frame can be broadcast
// encoding the union of added+updated+removed ids.
func (d *Document) reencodeDiff(ids []uint32) (outIDs, outClocks []uint32, outStates [][]byte) {
	known := make(map[uint32]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := known[id]; dup {
			continue
		}
		known[id] = struct{}{}
	}

	d.mu.Lock()
	curIDs, curClocks, curStates := d.awareness.EncodeAll()
	d.mu.Unlock()

	present := make(map[uint32]int, len(curIDs))
	for i, id := range curIDs {
		present[id] = i
	}

	for id := range known {
		if idx, ok := present[id]; ok {
			outIDs = append(outIDs, id)
			outClocks = append(outClocks, curClocks[idx])
			outStates = append(outStates, curStates[idx])
		} else {
			outIDs = append(outIDs, id)
			outClocks = append(outClocks, 0)
			outStates = append(outStates, nil)
		}
	}
	return outIDs, outClocks, outStates
}

// HandleFileOp relays an opaque file-op frame body to every other connected
// socket, verbatim.
func (d *Document) HandleFileOp(origin Socket, body []byte) {
	d.mu.Lock()
	var recipients []Socket
	for s := range d.clients {
		if s != origin {
			recipients = append(recipients, s)
		}
	}
	d.mu.Unlock()

	frame := EncodeFrame(FrameFileOp, body)
	for _, s := range recipients {
		s.Send(frame)
	}
}

// Disconnect removes a socket, withdraws its awareness ids, and starts the
// idle-destroy timer if the document is now empty.
func (d *Document) Disconnect(s Socket) {
	d.mu.Lock()
	ownedIDs, ok := d.clients[s]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.clients, s)

	var toRemove []uint32
	for id := range ownedIDs {
		toRemove = append(toRemove, id)
	}
	removed := d.awareness.Remove(toRemove)

	empty := len(d.clients) == 0
	if empty && !d.destroyed {
		d.idleTmr = time.AfterFunc(d.idleGrace, d.onIdleTimerFire)
	}
	d.mu.Unlock()

	if len(removed) > 0 {
		d.broadcastAwarenessRemoval(removed)
	}
}

func (d *Document) broadcastAwarenessRemoval(removed []uint32) {
	ids := removed
	clocks := make([]uint32, len(ids))
	states := make([][]byte, len(ids))
	frame := EncodeFrame(FrameAwareness, EncodeAwareness(ids, clocks, states))

	d.mu.Lock()
	var recipients []Socket
	for s := range d.clients {
		recipients = append(recipients, s)
	}
	d.mu.Unlock()

	for _, s := range recipients {
		s.Send(frame)
	}
}

func (d *Document) resetPersistTimerLocked() {
	if d.persistTmr != nil {
		d.persistTmr.Stop()
	}
	d.persistTmr = time.AfterFunc(d.persistDebounce, d.persistNow)
}

func (d *Document) persistNow() {
	d.mu.Lock()
	snapshot, err := d.replica.Snapshot()
	d.mu.Unlock()
	if err != nil {
		logging.Error(context.Background(), "failed to snapshot replica", zap.String("doc", d.name), zap.Error(err))
		return
	}
	if err := d.store.PersistDoc(d.name, snapshot); err != nil {
		logging.Error(context.Background(), "failed to persist document", zap.String("doc", d.name), zap.Error(err))
		metrics.PersistenceWrites.WithLabelValues("error").Inc()
		return
	}
	metrics.PersistenceWrites.WithLabelValues("ok").Inc()
}

// onIdleTimerFire runs when a document has had zero clients for idleGrace.
// If still empty, it persists once more, drops all awareness state, and
// destroys the replica.
func (d *Document) onIdleTimerFire() {
	d.mu.Lock()
	if len(d.clients) > 0 || d.destroyed {
		d.idleTmr = nil
		d.mu.Unlock()
		return
	}
	d.destroyed = true
	if d.persistTmr != nil {
		d.persistTmr.Stop()
	}
	d.mu.Unlock()

	d.persistNow()

	d.mu.Lock()
	d.awareness = crdt.NewAwareness()
	d.replica.Destroy()
	d.mu.Unlock()

	if d.onIdleDestroyed != nil {
		d.onIdleDestroyed(d)
	}
}

// shutdown cancels timers, persists once (awaited), closes every socket,
// and destroys the replica. Used during process shutdown (spec §4.3).
func (d *Document) shutdown() {
	d.mu.Lock()
	if d.idleTmr != nil {
		d.idleTmr.Stop()
	}
	if d.persistTmr != nil {
		d.persistTmr.Stop()
	}
	var sockets []Socket
	for s := range d.clients {
		sockets = append(sockets, s)
	}
	d.destroyed = true
	d.mu.Unlock()

	d.persistNow()

	for _, s := range sockets {
		s.Close("server shutting down")
	}

	d.mu.Lock()
	d.replica.Destroy()
	d.mu.Unlock()
}

func encodeSingleUpdateAsBlob(update []byte) []byte {
	return joinUpdates([][]byte{update})
}

// joinUpdates re-encodes a slice of updates into the same length-prefixed
// blob format EncodeStateAsUpdateSince/DecodeUpdates use, so a broadcast
// can carry multiple applied updates in one sync frame.
func joinUpdates(updates [][]byte) []byte {
	var out []byte
	for _, u := range updates {
		out = append(out, encodeUvarint(uint64(len(u)))...)
		out = append(out, u...)
	}
	return out
}
