package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is a mutex-guarded in-process store for dev and tests.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
	documents   map[string]Record
	watchers    []ChangeFunc
}

type memCollection struct {
	order   []string
	records map[string]Record
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]*memCollection),
		documents:   make(map[string]Record),
	}
}

func (m *Memory) collection(name string) *memCollection {
	col, ok := m.collections[name]
	if !ok {
		col = &memCollection{records: make(map[string]Record)}
		m.collections[name] = col
	}
	return col
}

// List returns records in insertion order.
func (m *Memory) List(_ context.Context, collection string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	out := make([]Record, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, col.records[id].Clone())
	}
	return out, nil
}

// Get returns a record or nil.
func (m *Memory) Get(_ context.Context, collection, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, ok := m.collections[collection]
	if !ok {
		return nil, nil
	}
	rec, ok := col.records[id]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

// Insert writes a new record, assigning an id when absent.
func (m *Memory) Insert(_ context.Context, collection string, rec Record) (string, error) {
	stored := rec.Clone()
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored["id"] = id
	}

	m.mu.Lock()
	col := m.collection(collection)
	if _, exists := col.records[id]; !exists {
		col.order = append(col.order, id)
	}
	col.records[id] = stored
	m.mu.Unlock()

	m.notify(collection)
	return id, nil
}

// Upsert replaces the record stored under id.
func (m *Memory) Upsert(_ context.Context, collection, id string, rec Record) error {
	stored := rec.Clone()
	stored["id"] = id

	m.mu.Lock()
	col := m.collection(collection)
	if _, exists := col.records[id]; !exists {
		col.order = append(col.order, id)
	}
	col.records[id] = stored
	m.mu.Unlock()

	m.notify(collection)
	return nil
}

// Delete removes a record if present.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	col, ok := m.collections[collection]
	removed := false
	if ok {
		if _, exists := col.records[id]; exists {
			delete(col.records, id)
			for i, existing := range col.order {
				if existing == id {
					col.order = append(col.order[:i], col.order[i+1:]...)
					break
				}
			}
			removed = true
		}
	}
	m.mu.Unlock()

	if removed {
		m.notify(collection)
	}
	return nil
}

// GetDocument returns a singleton document or nil.
func (m *Memory) GetDocument(_ context.Context, name string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[name]
	if !ok {
		return nil, nil
	}
	return doc.Clone(), nil
}

// SetDocument replaces a singleton document.
func (m *Memory) SetDocument(_ context.Context, name string, doc Record) error {
	m.mu.Lock()
	m.documents[name] = doc.Clone()
	m.mu.Unlock()

	m.notify(name)
	return nil
}

// Watch registers a change callback.
func (m *Memory) Watch(fn ChangeFunc) {
	m.mu.Lock()
	m.watchers = append(m.watchers, fn)
	m.mu.Unlock()
}

func (m *Memory) notify(collection string) {
	m.mu.RLock()
	watchers := make([]ChangeFunc, len(m.watchers))
	copy(watchers, m.watchers)
	m.mu.RUnlock()
	for _, fn := range watchers {
		fn(collection)
	}
}
