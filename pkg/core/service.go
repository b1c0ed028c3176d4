package core

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// initializer is implemented by embedders with an expensive one-time setup
// step (the ONNX embedder's model load). Initialize triggers it eagerly so
// the first search does not pay the load cost.
type initializer interface {
	Init(ctx context.Context) error
}

// Service is the orchestration point for the memory lifecycle: it creates
// records, embeds them best-effort, persists them, and answers search and
// read requests. Construct one per process and pass it to the tool layer;
// there is no global instance.
type Service struct {
	store    *SQLiteStore
	embedder Embedder
	searcher *Searcher
	cfg      Config
	logger   *log.Logger

	initOnce sync.Once
	initErr  error
}

// NewService wires a store and an embedder into a memory service.
func NewService(store *SQLiteStore, embedder Embedder, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	return &Service{
		store:    store,
		embedder: embedder,
		searcher: NewSearcher(embedder),
		cfg:      cfg,
		logger:   logger.With("component", "service"),
	}
}

// Initialize prepares the store schema and warms up the embedding model.
// Idempotent; concurrent first-callers wait on the same attempt.
func (s *Service) Initialize(ctx context.Context) error {
	s.initOnce.Do(func() {
		if s.initErr = s.store.Init(ctx); s.initErr != nil {
			return
		}
		if init, ok := s.embedder.(initializer); ok {
			s.initErr = init.Init(ctx)
		}
	})
	return s.initErr
}

// AddMemory creates and persists a new memory record. Embedding generation
// is best-effort: on failure the record is stored without an embedding and
// the add still succeeds. Storage failures propagate.
func (s *Service) AddMemory(ctx context.Context, content, sessionID, agentID string, metadata Metadata) (*Memory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, wrapError("add", ErrEmptyContent)
	}
	if err := metadata.Validate(); err != nil {
		return nil, wrapError("add", err)
	}

	m := NewMemory(content, sessionID, agentID, metadata)

	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		// The record is still stored; it just never shows up in search.
		s.logger.Warn("embedding failed, storing memory without embedding", "id", m.ID, "error", err)
	} else {
		m.Embedding = &Embedding{Vector: vector, Dimensions: len(vector)}
	}

	if _, err := s.store.Put(ctx, m); err != nil {
		return nil, err
	}

	return m, nil
}

// SearchMemories lists candidates matching the filter and ranks them
// against the query. Unset threshold and limit fall back to the configured
// defaults; out-of-range values are rejected.
func (s *Service) SearchMemories(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	if opts.Threshold == 0 {
		opts.Threshold = s.cfg.Threshold
	}
	if opts.Limit == 0 {
		opts.Limit = s.cfg.Limit
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, wrapError("search", ErrInvalidThreshold)
	}
	if opts.Limit < 0 {
		return nil, wrapError("search", ErrInvalidLimit)
	}

	memories, err := s.store.List(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, nil
	}

	return s.searcher.Rank(ctx, query, memories, opts)
}

// GetMemory returns a memory by id, or (nil, nil) when absent.
func (s *Service) GetMemory(ctx context.Context, id string) (*Memory, error) {
	return s.store.Get(ctx, id)
}

// GetAllMemories lists memories matching the filter, newest first.
func (s *Service) GetAllMemories(ctx context.Context, filter Filter) ([]*Memory, error) {
	return s.store.List(ctx, filter)
}

// DeleteMemory removes a memory by id. Returns true iff it existed.
func (s *Service) DeleteMemory(ctx context.Context, id string) (bool, error) {
	return s.store.Delete(ctx, id)
}

// Stats reports store totals.
func (s *Service) Stats(ctx context.Context) (StoreStats, error) {
	return s.store.Stats(ctx)
}
