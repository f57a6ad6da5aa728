package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/davrk/syncpad/internal/ot"
	"github.com/davrk/syncpad/internal/storage"
	"github.com/davrk/syncpad/internal/ws"
)

// Common errors.
var (
	ErrSessionClosed = errors.New("session is closed")

	// ErrCorruptOperation is returned when a transformed batch still targets
	// positions outside the buffer. A correct transform can never produce
	// one; the session is left untouched and the error is logged loudly.
	ErrCorruptOperation = errors.New("corrupt operation")
)

// cursorUnset marks a participant that has not reported a cursor yet.
const cursorUnset = -1

// Snapshot is the full document state a joining client needs to initialize
// its local buffer without history replay.
type Snapshot struct {
	Content  string
	Revision int
	Presence map[string]ws.PresenceEntry
}

// Session is the per-document coordinator: it owns the authoritative
// content, the revision log and the presence map, and decides what to
// broadcast and what to persist. All mutations are serialized through the
// session mutex (single-writer discipline); different documents are fully
// independent.
type Session struct {
	docID string

	mu       sync.Mutex
	content  string
	log      *ot.Log
	presence map[string]ws.PresenceEntry
	closed   bool

	dirty      bool
	lastUpdate time.Time
	lastActive time.Time

	ready   chan struct{}
	loadErr error

	// Dependencies
	store      storage.Store
	hub        *ws.Hub
	reconciler Reconciler
	logger     zerolog.Logger
}

// SessionConfig holds configuration for creating a session.
type SessionConfig struct {
	DocID         string
	Store         storage.Store
	Hub           *ws.Hub
	Reconciler    Reconciler
	HistoryWindow int
	Logger        zerolog.Logger
}

// NewSession creates a session in the loading state. The caller must run
// load before serving events; until then waitReady blocks.
func NewSession(cfg SessionConfig) *Session {
	window := cfg.HistoryWindow
	if window == 0 {
		window = 128
	}

	reconciler := cfg.Reconciler
	if reconciler == nil {
		reconciler = OTReconciler{}
	}

	return &Session{
		docID:      cfg.DocID,
		log:        ot.NewLog(window),
		presence:   make(map[string]ws.PresenceEntry),
		lastActive: time.Now(),
		ready:      make(chan struct{}),
		store:      cfg.Store,
		hub:        cfg.Hub,
		reconciler: reconciler,
		logger:     cfg.Logger.With().Str("doc", cfg.DocID).Logger(),
	}
}

// load seeds the session from the durable store. An absent document starts
// as an empty buffer at revision 0. Closes the ready channel either way so
// waiters observe the outcome.
func (s *Session) load(ctx context.Context) error {
	doc, err := s.store.Load(ctx, s.docID)

	s.mu.Lock()

	switch {
	case errors.Is(err, storage.ErrDocumentNotFound):
		s.content = ""
	case err != nil:
		s.loadErr = err
	default:
		s.content = doc.Content
	}

	s.mu.Unlock()
	close(s.ready)

	return s.loadErr
}

// waitReady blocks until the initial load finished or the context expires.
func (s *Session) waitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers the participant in the presence map with an unset cursor,
// announces it to the other participants and returns a full snapshot.
func (s *Session) Join(participantID, userID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}

	snapshot := Snapshot{
		Content:  s.content,
		Revision: s.log.Revision(),
		Presence: make(map[string]ws.PresenceEntry, len(s.presence)),
	}

	for id, entry := range s.presence {
		snapshot.Presence[id] = entry
	}

	s.presence[participantID] = ws.PresenceEntry{
		UserID: userID,
		Cursor: cursorUnset,
	}
	s.lastActive = time.Now()

	if s.hub != nil {
		s.hub.BroadcastPresence(s.docID, participantID, userID)
	}

	return snapshot, nil
}

// Update reconciles a client batch against everything committed since the
// client's base revision, applies it, advances the revision and fans the
// rebased batch out to the other participants. Returns the new revision for
// the originator's ack. Nothing is mutated on any failure.
func (s *Session) Update(participantID, userID string, batch ot.Batch, baseRevision int, cursor *int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSessionClosed
	}

	concurrent, err := s.log.Concurrent(baseRevision)
	if err != nil {
		return 0, err
	}

	content, rebased, err := s.reconciler.Reconcile(s.content, batch, concurrent)
	if err != nil {
		s.logger.Error().Err(err).
			Int("baseRevision", baseRevision).
			Int("revision", s.log.Revision()).
			Msg("rejecting corrupt operation")

		return 0, ErrCorruptOperation
	}

	s.content = content
	revision := s.log.Commit(rebased)
	s.dirty = true
	s.lastUpdate = time.Now()
	s.lastActive = s.lastUpdate

	if cursor != nil {
		s.setCursorLocked(participantID, *cursor)
	}

	if s.hub != nil {
		s.hub.BroadcastUpdate(s.docID, revision, rebased, userID, participantID)

		if cursor != nil {
			s.hub.BroadcastCursor(s.docID, participantID, userID, *cursor)
		}
	}

	return revision, nil
}

// Cursor updates the participant's presence entry and announces the new
// position. Never touches content or revision, never persisted.
func (s *Session) Cursor(participantID string, position int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	entry, ok := s.presence[participantID]
	if !ok {
		return
	}

	s.setCursorLocked(participantID, position)
	s.lastActive = time.Now()

	if s.hub != nil {
		s.hub.BroadcastCursor(s.docID, participantID, entry.UserID, position)
	}
}

// setCursorLocked must be called with the session mutex held.
func (s *Session) setCursorLocked(participantID string, position int) {
	entry, ok := s.presence[participantID]
	if !ok {
		return
	}

	entry.Cursor = position
	s.presence[participantID] = entry
}

// Leave removes the participant from the presence map and announces the
// removal. Idempotent: leaving twice, or leaving without having joined, is
// safe. Returns the number of remaining participants.
func (s *Session) Leave(participantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.presence[participantID]; ok {
		delete(s.presence, participantID)
		s.lastActive = time.Now()

		if s.hub != nil {
			s.hub.BroadcastPresenceRemove(s.docID, participantID)
		}
	}

	return len(s.presence)
}

// State returns the current content and revision.
func (s *Session) State() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.content, s.log.Revision()
}

// DocID returns the document ID for this session.
func (s *Session) DocID() string {
	return s.docID
}

// Participants returns the number of registered participants.
func (s *Session) Participants() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.presence)
}

// Dirty reports whether the session has updates not yet persisted.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dirty
}

// IdleSince returns the time of the last join, update, cursor or leave.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastActive
}

// flushSnapshot captures the state a flush must write, under the session
// mutex so the store never sees a torn buffer.
func (s *Session) flushSnapshot() (content string, revision int, updatedAt time.Time, dirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.content, s.log.Revision(), s.lastUpdate, s.dirty
}

// markClean clears the dirty flag if no update was committed since the
// snapshot at the given revision was taken.
func (s *Session) markClean(revision int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.log.Revision() == revision {
		s.dirty = false
	}
}

// close marks the session closed; subsequent events are rejected.
func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}
