package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/rs/zerolog/log"
)

// DefaultSessionTTL is how long an idle document stays available.
const DefaultSessionTTL = time.Hour

const memoryBackend = "memory"

type memoryEntry struct {
	doc       document.Document
	expiresAt time.Time
}

// MemoryStore keeps documents in memory with a sliding expiry. Reads and
// writes both extend a document's lifetime.
type MemoryStore struct {
	mu       sync.RWMutex
	entries  map[string]*memoryEntry
	ttl      time.Duration
	metrics  MetricsCollector
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store. A ttl of zero uses DefaultSessionTTL.
func NewMemoryStore(ttl time.Duration, metrics MetricsCollector) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		metrics: metrics,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
}

// Put stores a copy of doc.
func (m *MemoryStore) Put(ctx context.Context, doc *document.Document) (err error) {
	start := time.Now()
	defer func() { record(m.metrics, memoryBackend, "put", start, err) }()

	if doc == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("document validation failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[doc.ID] = &memoryEntry{doc: *doc, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Get returns a copy of the document.
func (m *MemoryStore) Get(ctx context.Context, id string) (doc *document.Document, err error) {
	start := time.Now()
	defer func() { record(m.metrics, memoryBackend, "get", start, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := m.now()
	if now.After(entry.expiresAt) {
		delete(m.entries, id)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	entry.expiresAt = now.Add(m.ttl)

	cp := entry.doc
	return &cp, nil
}

// List returns the live documents, newest first.
func (m *MemoryStore) List(ctx context.Context) ([]*document.Document, error) {
	start := time.Now()

	m.mu.RLock()
	now := m.now()
	docs := make([]*document.Document, 0, len(m.entries))
	for _, entry := range m.entries {
		if now.After(entry.expiresAt) {
			continue
		}
		cp := entry.doc
		docs = append(docs, &cp)
	}
	m.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})

	record(m.metrics, memoryBackend, "list", start, nil)
	return docs, nil
}

// Delete removes a document.
func (m *MemoryStore) Delete(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { record(m.metrics, memoryBackend, "delete", start, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.entries, id)
	return nil
}

// Health always succeeds for the in-memory store.
func (m *MemoryStore) Health(ctx context.Context) error {
	return nil
}

// Len returns the number of stored entries, including expired ones not yet
// swept.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Sweep removes expired documents and returns how many were dropped.
func (m *MemoryStore) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, entry := range m.entries {
		if now.After(entry.expiresAt) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps expired documents every interval until Close.
func (m *MemoryStore) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = m.ttl / 4
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.Sweep(); n > 0 {
					log.Debug().Int("expired", n).Msg("Expired documents removed")
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// Close stops the janitor.
func (m *MemoryStore) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}
