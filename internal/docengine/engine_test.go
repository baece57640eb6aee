package docengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensync/docrelay/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_GetOrCreateDocumentReturnsSameInstance(t *testing.T) {
	e := NewEngine(store.NewMemStore())

	const workers = 20
	results := make([]*Document, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = e.GetOrCreateDocument("shared-doc")
		}(i)
	}
	wg.Wait()

	first := results[0]
	for _, d := range results {
		assert.Same(t, first, d)
	}
}

func TestEngine_DocumentRemovedAfterIdleDestroy(t *testing.T) {
	e := NewEngine(store.NewMemStore())
	d := e.GetOrCreateDocument("temp-doc")
	d.persistDebounce = 10 * time.Millisecond
	d.idleGrace = 10 * time.Millisecond

	s := newFakeSocket()
	d.Connect(s)
	d.Disconnect(s)

	deadline := time.After(2 * time.Second)
	for {
		e.mu.Lock()
		_, exists := e.docs["temp-doc"]
		e.mu.Unlock()
		if !exists {
			break
		}
		select {
		case <-deadline:
			t.Fatal("document was never removed from the engine")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestEngine_ConnectRetriesOntoFreshDocumentWhenRaceWithDestroy(t *testing.T) {
	e := NewEngine(store.NewMemStore())
	stale := e.GetOrCreateDocument("raced-doc")

	// Simulate the idle timer having fired and marked the document
	// destroyed, in the window before onIdleDestroyed has removed it from
	// the engine's map.
	stale.mu.Lock()
	stale.destroyed = true
	stale.mu.Unlock()

	s := newFakeSocket()
	fresh := e.Connect("raced-doc", s)

	assert.NotSame(t, stale, fresh)

	e.mu.Lock()
	current := e.docs["raced-doc"]
	e.mu.Unlock()
	assert.Same(t, fresh, current)
}

func TestEngine_RemoveDocumentIgnoresStaleIdentity(t *testing.T) {
	e := NewEngine(store.NewMemStore())
	first := e.GetOrCreateDocument("replaced-doc")

	// A new document has since replaced "replaced-doc" in the map (as
	// Connect's retry loop does). The stale document's own teardown must
	// not evict the new one.
	e.mu.Lock()
	second := newDocument("replaced-doc", e.store, e.removeDocument)
	e.docs["replaced-doc"] = second
	e.mu.Unlock()

	e.removeDocument(first)

	e.mu.Lock()
	current, ok := e.docs["replaced-doc"]
	e.mu.Unlock()
	assert.True(t, ok)
	assert.Same(t, second, current)
}

func TestEngine_ShutdownPersistsAndClosesSockets(t *testing.T) {
	st := store.NewMemStore()
	e := NewEngine(st)
	d := e.GetOrCreateDocument("shutdown-doc")

	s := newFakeSocket()
	d.Connect(s)
	d.HandleSync(s, EncodeFrameBodyForTest(SyncUpdate, []byte("final-state")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := e.Shutdown(ctx)
	require.NoError(t, err)

	assert.True(t, s.isClosed())

	snapshot, err := st.LoadDoc("shutdown-doc")
	require.NoError(t, err)
	assert.NotEmpty(t, snapshot)

	e.mu.Lock()
	assert.Empty(t, e.docs)
	e.mu.Unlock()
}
