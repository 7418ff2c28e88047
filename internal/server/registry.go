package server

import (
	"sort"
	"sync"
)

// Recipient is a point-in-time view of one registered connection.
type Recipient struct {
	ID   string
	Sink Sink
}

type registryEntry struct {
	sink Sink
	seq  uint64
}

// Registry maps connection ids to their outbound sinks. Every mutation and
// every full iteration goes through the same mutex; callers must never send
// while holding it, so the registry only ever hands out snapshots.
type Registry struct {
	mu      sync.Mutex
	entries map[string]registryEntry
	nextSeq uint64
	closed  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]registryEntry)}
}

// Register inserts sink under id. It fails with ErrDuplicateID instead of
// replacing a live registration, and with ErrHubClosed after Close.
func (r *Registry) Register(id string, sink Sink) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrHubClosed
	}
	if _, exists := r.entries[id]; exists {
		return ErrDuplicateID
	}
	r.nextSeq++
	r.entries[id] = registryEntry{sink: sink, seq: r.nextSeq}
	return nil
}

// Deregister removes id and returns its sink. Removing an absent id is a
// no-op that reports false.
func (r *Registry) Deregister(id string) (Sink, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	return entry.sink, true
}

// removeIf deregisters id only while it still maps to sink, so a stale
// failure report cannot evict a newer registration reusing the same id.
func (r *Registry) removeIf(id string, sink Sink) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok || entry.sink != sink {
		return false
	}
	delete(r.entries, id)
	return true
}

// Get returns the sink registered under id.
func (r *Registry) Get(id string) (Sink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.sink, nil
}

// SnapshotExcept returns every registered connection other than excluded,
// in registration order.
func (r *Registry) SnapshotExcept(excluded string) []Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orderedLocked(excluded)
}

// Close removes every registration, returns them in registration order and
// rejects every later Register.
func (r *Registry) Close() []Recipient {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	recipients := r.orderedLocked("")
	r.entries = make(map[string]registryEntry)
	return recipients
}

func (r *Registry) orderedLocked(excluded string) []Recipient {
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		if id != excluded {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		return r.entries[ids[i]].seq < r.entries[ids[j]].seq
	})

	recipients := make([]Recipient, len(ids))
	for i, id := range ids {
		recipients[i] = Recipient{ID: id, Sink: r.entries[id].sink}
	}
	return recipients
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
