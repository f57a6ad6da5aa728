package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of the Store interface.
// Useful for testing and development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
	}
}

// Load retrieves a document's content.
func (m *MemoryStore) Load(_ context.Context, docID string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[docID]
	if !exists {
		return Document{}, ErrDocumentNotFound
	}

	return doc, nil
}

// Save writes the document's content, replacing any previous record.
func (m *MemoryStore) Save(_ context.Context, docID, content string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[docID] = Document{
		ID:        docID,
		Content:   content,
		UpdatedAt: updatedAt,
	}

	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// Len returns the number of stored documents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.docs)
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
