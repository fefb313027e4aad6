package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps the index in process memory. It mirrors RedisStore's
// semantics and is used where no Redis is available, such as tests and
// dry runs.
type MemoryStore struct {
	mu       sync.RWMutex
	registry map[string]map[string]struct{}
	postings map[string]map[string]map[string]struct{}
	writes   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		registry: make(map[string]map[string]struct{}),
		postings: make(map[string]map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) AddMessageToCode(ctx context.Context, channel, code, messageID string) error {
	m.mu.Lock()
	codes, ok := m.postings[channel]
	if !ok {
		codes = make(map[string]map[string]struct{})
		m.postings[channel] = codes
	}
	ids, ok := codes[code]
	if !ok {
		ids = make(map[string]struct{})
		codes[code] = ids
	}
	ids[messageID] = struct{}{}
	m.writes++
	m.mu.Unlock()
	return m.AddCodeToChannel(ctx, channel, code)
}

func (m *MemoryStore) AddCodeToChannel(_ context.Context, channel, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes, ok := m.registry[channel]
	if !ok {
		codes = make(map[string]struct{})
		m.registry[channel] = codes
	}
	codes[code] = struct{}{}
	m.writes++
	return nil
}

func (m *MemoryStore) ChannelCodes(_ context.Context, channel string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.registry[channel]), nil
}

func (m *MemoryStore) CodeMessages(_ context.Context, channel, code string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.postings[channel][code]), nil
}

// CodesMessages returns the union of the message ids linked to any of codes.
func (m *MemoryStore) CodesMessages(_ context.Context, channel string, codes []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	union := make(map[string]struct{})
	for _, code := range codes {
		for id := range m.postings[channel][code] {
			union[id] = struct{}{}
		}
	}
	return sortedKeys(union), nil
}

func (m *MemoryStore) DeleteCodeSet(_ context.Context, channel, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if codes, ok := m.postings[channel]; ok {
		delete(codes, code)
		if len(codes) == 0 {
			delete(m.postings, channel)
		}
	}
	m.writes++
	return nil
}

func (m *MemoryStore) DeleteChannelRegistry(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registry, channel)
	m.writes++
	return nil
}

// Writes returns the number of mutating calls made so far.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Snapshot returns a copy of the channel's index as code -> sorted ids.
func (m *MemoryStore) Snapshot(channel string) map[string][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string][]string, len(m.postings[channel]))
	for code, ids := range m.postings[channel] {
		out[code] = sortedKeys(ids)
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
