package collab

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Flusher runs the persistence schedule: on a fixed interval it writes
// every dirty session to the durable store, collapsing however many
// in-memory updates happened since the last tick into one write per
// document. A failed write leaves the session dirty and is retried on the
// next tick; in-memory content stays authoritative throughout. The same
// pass evicts sessions that have been idle without participants.
type Flusher struct {
	manager    *Manager
	interval   time.Duration
	idleAfter  time.Duration
	maxRetries uint64
	logger     zerolog.Logger

	done    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
}

// FlusherConfig holds configuration for creating a flusher.
type FlusherConfig struct {
	Manager    *Manager
	Interval   time.Duration
	IdleAfter  time.Duration
	MaxRetries uint64
	Logger     zerolog.Logger
}

// NewFlusher creates a flusher; Run starts it.
func NewFlusher(cfg FlusherConfig) *Flusher {
	interval := cfg.Interval
	if interval == 0 {
		interval = 10 * time.Second
	}

	idleAfter := cfg.IdleAfter
	if idleAfter == 0 {
		idleAfter = 5 * time.Minute
	}

	return &Flusher{
		manager:    cfg.Manager,
		interval:   interval,
		idleAfter:  idleAfter,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
		done:       make(chan struct{}),
	}
}

// Run ticks until Close is called. Blocks; start it in its own goroutine.
func (f *Flusher) Run() {
	f.stopped.Add(1)
	defer f.stopped.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			f.tick(context.Background())
		case <-f.done:
			return
		}
	}
}

// tick flushes every dirty session and sweeps idle ones.
func (f *Flusher) tick(ctx context.Context) {
	for _, session := range f.manager.Sessions() {
		if !session.Dirty() {
			continue
		}

		if err := f.flush(ctx, session); err != nil {
			f.logger.Error().Err(err).Str("doc", session.DocID()).
				Msg("flush failed, will retry on next tick")
		}
	}

	f.manager.EvictIdle(ctx, f.idleAfter)
}

// flush writes one session with bounded exponential retry.
func (f *Flusher) flush(ctx context.Context, session *Session) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.maxRetries), ctx)

	return backoff.Retry(func() error {
		return f.manager.Flush(ctx, session)
	}, policy)
}

// Close stops the schedule and performs the final synchronous flush of all
// dirty sessions through the manager.
func (f *Flusher) Close(ctx context.Context) error {
	var err error

	f.once.Do(func() {
		close(f.done)
		f.stopped.Wait()
		err = f.manager.CloseAll(ctx)
	})

	return err
}
