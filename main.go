package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/davrk/syncpad/internal/api"
	"github.com/davrk/syncpad/internal/collab"
	"github.com/davrk/syncpad/internal/storage"
	"github.com/davrk/syncpad/internal/ws"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "listen address")
		storeBackend  = flag.String("store", "memory", "durable store backend: memory|bolt|postgres|redis")
		boltPath      = flag.String("bolt-path", "syncpad.db", "bolt database file (store=bolt)")
		postgresURL   = flag.String("postgres-url", "postgres://localhost:5432/syncpad", "postgres connection URL (store=postgres)")
		redisAddr     = flag.String("redis-addr", "localhost:6379", "redis address (store=redis)")
		flushInterval = flag.Duration("flush-interval", 10*time.Second, "interval between persistence flushes")
		flushRetries  = flag.Uint64("flush-retries", 3, "retries per flush attempt before waiting for the next tick")
		historyWindow = flag.Int("history-window", 128, "committed batches retained per document for transformation")
		idleAfter     = flag.Duration("idle-eviction", 5*time.Minute, "evict sessions idle without participants for this long")
		loadTimeout   = flag.Duration("load-timeout", 5*time.Second, "deadline for a document's initial load")
		debug         = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if *debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	store, err := openStore(*storeBackend, *boltPath, *postgresURL, *redisAddr)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", *storeBackend).Msg("failed to open store")
	}

	defer func() {
		_ = store.Close()
	}()

	hub := ws.NewHub()

	manager := collab.NewManager(collab.ManagerConfig{
		Store:         store,
		Hub:           hub,
		HistoryWindow: *historyWindow,
		LoadTimeout:   *loadTimeout,
		Logger:        logger,
	})

	flusher := collab.NewFlusher(collab.FlusherConfig{
		Manager:    manager,
		Interval:   *flushInterval,
		IdleAfter:  *idleAfter,
		MaxRetries: *flushRetries,
		Logger:     logger,
	})
	go flusher.Run()

	server := api.NewServer(api.ServerConfig{
		Manager: manager,
		Hub:     hub,
		Logger:  logger,
	})

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", *addr).Str("store", *storeBackend).Msg("starting server")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}

	// Final synchronous flush of every dirty session.
	if err := flusher.Close(ctx); err != nil {
		logger.Error().Err(err).Msg("final flush failed")
	}

	logger.Info().Msg("shutdown complete")
}

// openStore selects the durable store backend.
func openStore(backend, boltPath, postgresURL, redisAddr string) (storage.Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "bolt":
		return storage.NewBoltStore(boltPath)
	case "postgres":
		return storage.NewPostgresStore(ctx, postgresURL)
	case "redis":
		return storage.NewRedisStore(ctx, redisAddr)
	default:
		return nil, errors.New("unknown store backend: " + backend)
	}
}
