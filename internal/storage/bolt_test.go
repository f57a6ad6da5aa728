package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/davrk/syncpad/internal/storage"
	"github.com/stretchr/testify/require"
)

func newBoltStore(t *testing.T) *storage.BoltStore {
	t.Helper()

	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "docs.db"))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func TestBoltStore_LoadMissing(t *testing.T) {
	t.Parallel()

	store := newBoltStore(t)

	_, err := store.Load(context.Background(), "missing")

	if !errors.Is(err, storage.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
}

func TestBoltStore_SaveAndLoad(t *testing.T) {
	t.Parallel()

	store := newBoltStore(t)
	now := time.Now()

	require.NoError(t, store.Save(context.Background(), "doc1", "hello", now))

	doc, err := store.Load(context.Background(), "doc1")
	require.NoError(t, err)

	if doc.Content != "hello" {
		t.Errorf("expected %q, got %q", "hello", doc.Content)
	}

	if !doc.UpdatedAt.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, doc.UpdatedAt)
	}
}

func TestBoltStore_SaveOverwrites(t *testing.T) {
	t.Parallel()

	store := newBoltStore(t)

	require.NoError(t, store.Save(context.Background(), "doc1", "first", time.Now()))
	require.NoError(t, store.Save(context.Background(), "doc1", "second", time.Now()))

	doc, err := store.Load(context.Background(), "doc1")
	require.NoError(t, err)

	if doc.Content != "second" {
		t.Errorf("expected %q, got %q", "second", doc.Content)
	}
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "docs.db")

	store, err := storage.NewBoltStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), "doc1", "durable", time.Now()))
	require.NoError(t, store.Close())

	reopened, err := storage.NewBoltStore(path)
	require.NoError(t, err)

	defer func() {
		_ = reopened.Close()
	}()

	doc, err := reopened.Load(context.Background(), "doc1")
	require.NoError(t, err)

	if doc.Content != "durable" {
		t.Errorf("expected %q, got %q", "durable", doc.Content)
	}
}
