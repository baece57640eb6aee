package docengine

import (
	"context"
	"sync"

	"github.com/opensync/docrelay/internal/metrics"
	"github.com/opensync/docrelay/internal/store"
)

// Engine owns every live document in the process and guarantees that
// concurrent first-connects to the same document name converge onto a
// single replica instance (spec §8, "at-most-one-creator").
type Engine struct {
	mu      sync.Mutex
	docs    map[string]*Document
	pending map[string]chan struct{}

	store store.Store
}

// NewEngine returns an engine backed by the given persistence store.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		docs:    make(map[string]*Document),
		pending: make(map[string]chan struct{}),
		store:   st,
	}
}

// GetOrCreateDocument returns the named document, constructing and loading
// it from the store on first reference. A pending-creation map (spec §4.3)
// keyed by document name ensures at most one goroutine ever loads a given
// document's snapshot, while e.mu itself is never held across that load —
// only across the short map mutations before and after it.
func (e *Engine) GetOrCreateDocument(name string) *Document {
	for {
		e.mu.Lock()
		if d, ok := e.docs[name]; ok {
			e.mu.Unlock()
			return d
		}
		if wait, ok := e.pending[name]; ok {
			e.mu.Unlock()
			<-wait
			continue
		}
		ready := make(chan struct{})
		e.pending[name] = ready
		e.mu.Unlock()

		d := newDocument(name, e.store, e.removeDocument)
		d.load()

		e.mu.Lock()
		e.docs[name] = d
		delete(e.pending, name)
		metrics.ActiveDocuments.Set(float64(len(e.docs)))
		e.mu.Unlock()
		close(ready)
		return d
	}
}

// Connect resolves the named document and attaches s to it, retrying
// against a freshly created document if the one it found was mid-teardown
// (spec §3/§8: new arrivals during the idle grace period must never be
// orphaned by a concurrent destroy). Callers should use this instead of
// GetOrCreateDocument+Connect so the retry-on-destroyed race is handled in
// one place.
func (e *Engine) Connect(name string, s Socket) *Document {
	for {
		d := e.GetOrCreateDocument(name)
		if d.Connect(s) {
			return d
		}
		e.removeDocument(d)
	}
}

// removeDocument drops a document from the map once its idle-destroy timer
// has fired. It only removes the map entry if it is still exactly the
// document that asked to be removed — a concurrent Connect that raced the
// idle timer may already have replaced it with a fresh instance, which must
// survive this call.
func (e *Engine) removeDocument(d *Document) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cur, ok := e.docs[d.name]; ok && cur == d {
		delete(e.docs, d.name)
		metrics.ActiveDocuments.Set(float64(len(e.docs)))
	}
}

// Shutdown persists and tears down every live document, then closes the
// store. Safe to call once during process shutdown.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	docs := make([]*Document, 0, len(e.docs))
	for _, d := range e.docs {
		docs = append(docs, d)
	}
	e.docs = make(map[string]*Document)
	e.mu.Unlock()

	var wg sync.WaitGroup
	for _, d := range docs {
		wg.Add(1)
		go func(d *Document) {
			defer wg.Done()
			d.shutdown()
		}(d)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	metrics.ActiveDocuments.Set(0)
	return e.store.Close()
}
