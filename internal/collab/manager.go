package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/davrk/syncpad/internal/storage"
	"github.com/davrk/syncpad/internal/ws"
)

// ErrLoadTimeout is returned when a document's initial load did not finish
// within the caller's deadline. The join fails; the client may retry.
var ErrLoadTimeout = errors.New("document load timed out")

// Manager owns the map from document ID to live session. Sessions are
// created lazily on first join, seeded from the durable store, and evicted
// after a final flush once idle.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	// Shared dependencies
	store         storage.Store
	hub           *ws.Hub
	reconciler    Reconciler
	historyWindow int
	loadTimeout   time.Duration
	logger        zerolog.Logger
}

// ManagerConfig holds configuration for creating a manager.
type ManagerConfig struct {
	Store         storage.Store
	Hub           *ws.Hub
	Reconciler    Reconciler
	HistoryWindow int
	LoadTimeout   time.Duration
	Logger        zerolog.Logger
}

// NewManager creates a new session manager.
func NewManager(cfg ManagerConfig) *Manager {
	loadTimeout := cfg.LoadTimeout
	if loadTimeout == 0 {
		loadTimeout = 5 * time.Second
	}

	return &Manager{
		sessions:      make(map[string]*Session),
		store:         cfg.Store,
		hub:           cfg.Hub,
		reconciler:    cfg.Reconciler,
		historyWindow: cfg.HistoryWindow,
		loadTimeout:   loadTimeout,
		logger:        cfg.Logger,
	}
}

// Session returns the resident session for a document, loading it from the
// store on first access. The manager lock is held only to install the
// session placeholder; the load itself runs outside it, so a stalled load
// affects only callers of the same document. Those callers block until the
// load finishes or their context expires, whichever comes first.
func (m *Manager) Session(ctx context.Context, docID string) (*Session, error) {
	m.mu.RLock()
	session, exists := m.sessions[docID]
	m.mu.RUnlock()

	if exists {
		return m.await(ctx, session)
	}

	m.mu.Lock()

	if session, exists = m.sessions[docID]; exists {
		m.mu.Unlock()

		return m.await(ctx, session)
	}

	session = NewSession(SessionConfig{
		DocID:         docID,
		Store:         m.store,
		Hub:           m.hub,
		Reconciler:    m.reconciler,
		HistoryWindow: m.historyWindow,
		Logger:        m.logger,
	})
	m.sessions[docID] = session
	m.mu.Unlock()

	loadCtx, cancel := context.WithTimeout(ctx, m.loadTimeout)
	defer cancel()

	if err := session.load(loadCtx); err != nil {
		m.remove(docID)

		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLoadTimeout
		}

		return nil, err
	}

	return session, nil
}

// await blocks until the session's initial load finished. A session whose
// load failed has already been removed from the map, so a retry reloads.
func (m *Manager) await(ctx context.Context, session *Session) (*Session, error) {
	if err := session.waitReady(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrLoadTimeout
		}

		return nil, err
	}

	return session, nil
}

// Peek returns the resident session or nil, without loading.
func (m *Manager) Peek(docID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.sessions[docID]
}

// Sessions returns the currently resident sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}

	return sessions
}

// SessionCount returns the number of resident sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.sessions)
}

func (m *Manager) remove(docID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, docID)
}

// Flush writes the session's content to the durable store if it is dirty.
// The content is snapshotted under the session lock; the write itself runs
// outside it. On success the dirty flag is cleared unless a newer update
// has been committed in the meantime.
func (m *Manager) Flush(ctx context.Context, session *Session) error {
	content, revision, updatedAt, dirty := session.flushSnapshot()
	if !dirty {
		return nil
	}

	if err := m.store.Save(ctx, session.DocID(), content, updatedAt); err != nil {
		return err
	}

	session.markClean(revision)

	return nil
}

// Evict flushes and removes a session. Eviction is deferred, not forced, on
// flush failure: the session stays resident with its unsaved state.
func (m *Manager) Evict(ctx context.Context, docID string) error {
	session := m.Peek(docID)
	if session == nil {
		return nil
	}

	if err := m.Flush(ctx, session); err != nil {
		m.logger.Error().Err(err).Str("doc", docID).
			Msg("eviction deferred: flush failed, keeping unsaved session")

		return err
	}

	session.close()
	m.remove(docID)

	return nil
}

// EvictIdle evicts every session that has had no participants and no
// activity for at least idleAfter.
func (m *Manager) EvictIdle(ctx context.Context, idleAfter time.Duration) {
	for _, session := range m.Sessions() {
		if session.Participants() > 0 {
			continue
		}

		if time.Since(session.IdleSince()) < idleAfter {
			continue
		}

		_ = m.Evict(ctx, session.DocID())
	}
}

// CloseAll performs the shutdown flush: every dirty session is written out
// synchronously and closed. The last error is returned; a failed flush
// never prevents the remaining sessions from being attempted.
func (m *Manager) CloseAll(ctx context.Context) error {
	var lastErr error

	for _, session := range m.Sessions() {
		if err := m.Flush(ctx, session); err != nil {
			m.logger.Error().Err(err).Str("doc", session.DocID()).
				Msg("shutdown flush failed")

			lastErr = err
		}

		session.close()
		m.remove(session.DocID())
	}

	return lastErr
}
