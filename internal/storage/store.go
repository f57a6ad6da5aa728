package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDocumentNotFound is returned by Load when no document exists under the
// given ID. Callers creating a session treat it as an empty document.
var ErrDocumentNotFound = errors.New("document not found")

// Document is the durable record of a document's reconciled content.
type Document struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is the durable persistence collaborator. The engine treats it as
// eventually consistent: flushes collapse many in-memory updates into one
// write, and a failed Save is retried on the next scheduler tick.
type Store interface {
	// Load retrieves a document's content.
	// Returns ErrDocumentNotFound if the document doesn't exist.
	Load(ctx context.Context, docID string) (Document, error)

	// Save writes the document's reconciled content, replacing any previous
	// record.
	Save(ctx context.Context, docID, content string, updatedAt time.Time) error

	// Close releases any backend resources.
	Close() error
}
