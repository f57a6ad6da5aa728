package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists documents as JSON records under doc:<id> keys.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the Redis server at addr.
func NewRedisStore(ctx context.Context, addr string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()

		return nil, err
	}

	return &RedisStore{client: client}, nil
}

func redisKey(docID string) string {
	return "doc:" + docID
}

// Load retrieves a document's content.
func (s *RedisStore) Load(ctx context.Context, docID string) (Document, error) {
	raw, err := s.client.Get(ctx, redisKey(docID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, ErrDocumentNotFound
		}

		return Document{}, err
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, err
	}

	return doc, nil
}

// Save writes the document's content, replacing any previous record.
func (s *RedisStore) Save(ctx context.Context, docID, content string, updatedAt time.Time) error {
	raw, err := json.Marshal(Document{
		ID:        docID,
		Content:   content,
		UpdatedAt: updatedAt,
	})
	if err != nil {
		return err
	}

	return s.client.Set(ctx, redisKey(docID), raw, 0).Err()
}

// Close closes the client connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
