package memory

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/hupe1980/agentcookbook/core"
)

// StoredMemory is the internal representation persisted by InMemoryStore.
type StoredMemory struct {
	ID       string
	Content  string
	Metadata map[string]any
	seq      int
}

// InMemoryStore is a process-local MemoryStore offering:
//  1. Session scoped key/value memory (Get / Put)
//  2. Stored memories with keyword Search
//
// Search scores a memory by the fraction of query keywords it contains
// (case-insensitive); ties keep insertion order. An empty query matches
// everything with score 1.
type InMemoryStore struct {
	mu      sync.RWMutex
	memory  map[string]map[string]any          // sessionID -> key -> value
	storage map[string]map[string]StoredMemory // sessionID -> memoryID -> stored memory
	nextID  int
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memory:  make(map[string]map[string]any),
		storage: make(map[string]map[string]StoredMemory),
	}
}

// Get returns a shallow copy of the key/value memory map for the session.
func (m *InMemoryStore) Get(sessionID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]any, len(m.memory[sessionID]))
	maps.Copy(out, m.memory[sessionID])
	return out, nil
}

// Put merges the provided delta map into the session's key/value memory.
func (m *InMemoryStore) Put(sessionID string, delta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.memory[sessionID]; !exists {
		m.memory[sessionID] = make(map[string]any)
	}
	maps.Copy(m.memory[sessionID], delta)
	return nil
}

// Search returns up to limit memories ordered by descending score.
func (m *InMemoryStore) Search(sessionID string, query string, limit int) ([]core.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms := keywords(query)

	type hit struct {
		mem   StoredMemory
		score float64
	}
	var hits []hit
	for _, stored := range m.storage[sessionID] {
		score := 1.0
		if len(terms) > 0 {
			words := keywordSet(stored.Content)
			matched := 0
			for _, t := range terms {
				if words[t] {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			score = float64(matched) / float64(len(terms))
		}
		hits = append(hits, hit{mem: stored, score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].mem.seq < hits[j].mem.seq
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]core.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, core.SearchResult{
			ID:       h.mem.ID,
			Content:  h.mem.Content,
			Score:    h.score,
			Metadata: maps.Clone(h.mem.Metadata),
		})
	}
	return results, nil
}

// Store appends a new stored memory.
func (m *InMemoryStore) Store(sessionID string, content string, metadata map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.storage[sessionID]; !exists {
		m.storage[sessionID] = make(map[string]StoredMemory)
	}
	seq := m.nextID
	m.nextID++
	memoryID := fmt.Sprintf("mem_%d", seq)
	m.storage[sessionID][memoryID] = StoredMemory{ID: memoryID, Content: content, Metadata: maps.Clone(metadata), seq: seq}
	return nil
}

// Delete removes a stored memory entry by id.
func (m *InMemoryStore) Delete(sessionID string, memoryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.storage[sessionID][memoryID]; !exists {
		return fmt.Errorf("memory %q not found", memoryID)
	}
	delete(m.storage[sessionID], memoryID)
	return nil
}

func keywords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := map[string]bool{}
	out := fields[:0]
	for _, f := range fields {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func keywordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range keywords(s) {
		set[w] = true
	}
	return set
}
