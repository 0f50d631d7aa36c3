package core

// ArtifactStore keeps binary tool outputs (reports, generated files) per
// session. Saving an existing id replaces what Get returns; List is sorted.
type ArtifactStore interface {
	Save(sessionID, artifactID string, data []byte) error
	Get(sessionID, artifactID string) ([]byte, error)
	List(sessionID string) ([]string, error)
	Delete(sessionID, artifactID string) error
}

// MemoryStore holds what an agent remembers about a session beyond its event
// history: a key/value scratchpad (Get/Put) and free-text snippets that
// Search ranks against a query.
type MemoryStore interface {
	Get(sessionID string) (map[string]any, error)
	Put(sessionID string, delta map[string]any) error
	Store(sessionID, content string, metadata map[string]any) error
	Search(sessionID, query string, limit int) ([]SearchResult, error)
	Delete(sessionID, memoryID string) error
}

// SearchResult is one remembered snippet, best matches first.
type SearchResult struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
