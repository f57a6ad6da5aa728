package storage

import (
	"context"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var documentsBucket = []byte("documents")

// BoltStore persists documents in an embedded bbolt database, one JSON
// record per document.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) the database file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(documentsBucket)

		return err
	})
	if err != nil {
		_ = db.Close()

		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Load retrieves a document's content.
func (s *BoltStore) Load(_ context.Context, docID string) (Document, error) {
	var doc Document

	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(documentsBucket).Get([]byte(docID))
		if raw == nil {
			return ErrDocumentNotFound
		}

		return json.Unmarshal(raw, &doc)
	})
	if err != nil {
		return Document{}, err
	}

	return doc, nil
}

// Save writes the document's content, replacing any previous record.
func (s *BoltStore) Save(_ context.Context, docID, content string, updatedAt time.Time) error {
	raw, err := json.Marshal(Document{
		ID:        docID,
		Content:   content,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(documentsBucket).Put([]byte(docID), raw)
	})
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Ensure BoltStore implements Store.
var _ Store = (*BoltStore)(nil)
