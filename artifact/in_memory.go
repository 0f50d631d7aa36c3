package artifact

import (
	"slices"
	"sync"
)

// InMemoryStore is an in-process ArtifactStore keeping every saved version.
// Get returns the latest version; GetVersion addresses older ones. Data is
// copied on save and retrieval.
//
// Layout: sessionID -> artifactID -> versions (oldest first)
type InMemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]map[string][][]byte
}

// NewInMemoryStore returns an empty in-memory artifact store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{artifacts: make(map[string]map[string][][]byte)}
}

// Save stores a new version of the artifact.
func (a *InMemoryStore) Save(sessionID, artifactID string, data []byte) error {
	_, err := a.SaveVersion(sessionID, artifactID, data)
	return err
}

// SaveVersion stores a new version and returns its number (starting at 0).
func (a *InMemoryStore) SaveVersion(sessionID, artifactID string, data []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.artifacts[sessionID]; !exists {
		a.artifacts[sessionID] = make(map[string][][]byte)
	}
	a.artifacts[sessionID][artifactID] = append(a.artifacts[sessionID][artifactID], slices.Clone(data))
	return len(a.artifacts[sessionID][artifactID]) - 1, nil
}

// Get returns a copy of the latest version or ErrNotFound.
func (a *InMemoryStore) Get(sessionID, artifactID string) ([]byte, error) {
	return a.GetVersion(sessionID, artifactID, -1)
}

// GetVersion returns a specific version; a negative version means latest.
func (a *InMemoryStore) GetVersion(sessionID, artifactID string, version int) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	versions := a.artifacts[sessionID][artifactID]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	if version < 0 {
		version = len(versions) - 1
	}
	if version >= len(versions) {
		return nil, ErrNotFound
	}
	return slices.Clone(versions[version]), nil
}

// Versions lists the available version numbers of an artifact.
func (a *InMemoryStore) Versions(sessionID, artifactID string) ([]int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	versions := a.artifacts[sessionID][artifactID]
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	out := make([]int, len(versions))
	for i := range versions {
		out[i] = i
	}
	return out, nil
}

// List returns the sorted artifact ids stored for the session.
func (a *InMemoryStore) List(sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m := a.artifacts[sessionID]
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete removes all versions of the artifact or returns ErrNotFound.
func (a *InMemoryStore) Delete(sessionID, artifactID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.artifacts[sessionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[artifactID]; !ok {
		return ErrNotFound
	}
	delete(m, artifactID)
	return nil
}
