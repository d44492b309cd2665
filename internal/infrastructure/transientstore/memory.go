package transientstore

import (
	"context"
	"sort"
	"sync"

	"github.com/objectstage/batch-api/internal/domain/batch"
)

// MemoryProvider is an in-memory StoreProvider for tests and local runs
// without Redis. Entries never expire.
type MemoryProvider struct {
	mu     sync.Mutex
	stores map[string]*MemoryStore
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{stores: make(map[string]*MemoryStore)}
}

func (p *MemoryProvider) Store(name string) batch.TransientStore {
	p.mu.Lock()
	defer p.mu.Unlock()
	store, ok := p.stores[name]
	if !ok {
		store = NewMemoryStore()
		p.stores[name] = store
	}
	return store
}

type memoryEntry struct {
	params map[string]string
	files  map[string]batch.FileEntry
}

// MemoryStore mirrors RedisStore semantics: a batch can exist with a nil
// parameter map, and GetParameters reports that as nil rather than empty.
type MemoryStore struct {
	mu      sync.RWMutex
	batches map[string]*memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]*memoryEntry)}
}

func (s *MemoryStore) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.batches[id]
	return ok, nil
}

func (s *MemoryStore) GetParameters(ctx context.Context, id string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.batches[id]
	if !ok || entry.params == nil {
		return nil, nil
	}
	out := make(map[string]string, len(entry.params))
	for k, v := range entry.params {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) PutParameters(ctx context.Context, id string, params map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.batches[id]
	if !ok {
		entry = &memoryEntry{files: make(map[string]batch.FileEntry)}
		s.batches[id] = entry
	}
	if len(params) == 0 {
		entry.params = nil
		return nil
	}
	entry.params = make(map[string]string, len(params))
	for k, v := range params {
		entry.params[k] = v
	}
	return nil
}

func (s *MemoryStore) PutFileEntry(ctx context.Context, id string, fe batch.FileEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.batches[id]
	if !ok {
		entry = &memoryEntry{files: make(map[string]batch.FileEntry)}
		s.batches[id] = entry
	}
	entry.files[fe.Index] = fe
	return nil
}

func (s *MemoryStore) GetFileEntries(ctx context.Context, id string) ([]batch.FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.batches[id]
	if !ok {
		return nil, nil
	}
	out := make([]batch.FileEntry, 0, len(entry.files))
	for _, fe := range entry.files {
		out = append(out, fe)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *MemoryStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, id)
	return nil
}

// MarkExists registers an id with no parameters, matching the residual state
// a TTL store can be left in. Test helper.
func (s *MemoryStore) MarkExists(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[id]; !ok {
		s.batches[id] = &memoryEntry{files: make(map[string]batch.FileEntry)}
	}
}
