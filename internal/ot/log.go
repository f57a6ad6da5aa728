package ot

import "errors"

// Log errors.
var (
	// ErrFutureRevision is returned when a client claims a base revision the
	// log has never committed.
	ErrFutureRevision = errors.New("base revision is in the future")

	// ErrRevisionTooOld is returned when the client's base revision has
	// fallen out of the retained history window.
	ErrRevisionTooOld = errors.New("base revision too old, history unavailable")
)

// SequencedBatch wraps a batch with the revision assigned when it was
// committed: the batch was applied to the buffer at revision Revision-1 and
// produced revision Revision.
type SequencedBatch struct {
	Batch    Batch `json:"batch"`
	Revision int   `json:"revision"`
}

// Log tracks a document's revision counter and a bounded trailing window of
// committed batches, used to transform incoming batches that were derived
// from an older revision. It is not safe for concurrent use: the session
// coordinator owning the document serializes all access.
type Log struct {
	revision int
	history  []SequencedBatch
	window   int
}

// NewLog creates a log retaining at most window committed batches.
func NewLog(window int) *Log {
	return &Log{
		history: make([]SequencedBatch, 0, window),
		window:  window,
	}
}

// Revision returns the current revision.
func (l *Log) Revision() int {
	return l.revision
}

// SetRevision seeds the revision counter after loading a document from
// storage. Only valid on an empty log.
func (l *Log) SetRevision(revision int) {
	l.revision = revision
}

// Window returns the configured history window size.
func (l *Log) Window() int {
	return l.window
}

// Len returns the number of batches currently retained.
func (l *Log) Len() int {
	return len(l.history)
}

// Concurrent returns the batches committed after baseRevision, in commit
// order. Returns ErrFutureRevision if the client claims a revision the log
// has never committed, ErrRevisionTooOld if the base has fallen out of the
// retained window.
func (l *Log) Concurrent(baseRevision int) ([]Batch, error) {
	if baseRevision > l.revision {
		return nil, ErrFutureRevision
	}

	if baseRevision == l.revision {
		return nil, nil
	}

	// Every batch after baseRevision must still be retained.
	if len(l.history) == 0 || l.history[0].Revision > baseRevision+1 {
		return nil, ErrRevisionTooOld
	}

	concurrent := make([]Batch, 0, l.revision-baseRevision)

	for _, committed := range l.history {
		if committed.Revision > baseRevision {
			concurrent = append(concurrent, committed.Batch)
		}
	}

	return concurrent, nil
}

// Transform reconciles an incoming batch derived from baseRevision against
// every batch committed after it, in commit order. The caller commits the
// result with Commit once it has been applied to the buffer.
func (l *Log) Transform(batch Batch, baseRevision int) (Batch, error) {
	concurrent, err := l.Concurrent(baseRevision)
	if err != nil {
		return nil, err
	}

	return TransformBatch(batch, concurrent), nil
}

// Commit advances the revision and appends the batch to history, pruning the
// oldest entry when the window is full. Returns the new revision.
func (l *Log) Commit(batch Batch) int {
	l.revision++

	l.history = append(l.history, SequencedBatch{
		Batch:    batch,
		Revision: l.revision,
	})

	if len(l.history) > l.window {
		l.history = l.history[1:]
	}

	return l.revision
}

// History returns the retained batches committed after sinceRevision.
func (l *Log) History(sinceRevision int) []SequencedBatch {
	var result []SequencedBatch

	for _, committed := range l.history {
		if committed.Revision > sinceRevision {
			result = append(result, committed)
		}
	}

	return result
}
