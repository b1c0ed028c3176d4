package core

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kopertop/go-mem-mcp/internal/encoding"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore persists memory records in a single SQLite database.
// Schema creation happens transparently on the first operation; concurrent
// first-callers are serialized onto a single initialization pass.
type SQLiteStore struct {
	path   string
	logger *log.Logger

	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewStore creates a store handle for the given database path. The
// database is not opened until Init or the first operation.
func NewStore(path string, logger *log.Logger) *SQLiteStore {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &SQLiteStore{
		path:   path,
		logger: logger.With("component", "store"),
	}
}

// Init opens the database and creates the schema. Idempotent and safe to
// call repeatedly or concurrently.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initLocked(ctx)
}

func (s *SQLiteStore) initLocked(ctx context.Context) error {
	if s.closed {
		return wrapError("init", ErrStoreClosed)
	}
	if s.db != nil {
		return nil
	}

	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return wrapError("init", fmt.Errorf("failed to create data directory: %w", err))
		}
	}

	// _journal_mode=WAL: better concurrency
	// _busy_timeout=5000: wait up to 5s for a lock instead of failing
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", s.path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return wrapError("init", fmt.Errorf("failed to open database: %w", err))
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(2 * time.Hour)

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return wrapError("init", err)
	}

	s.db = db
	return nil
}

// createTables creates the memories table and its lookup indexes.
func createTables(ctx context.Context, db *sql.DB) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		session_id TEXT,
		agent_id TEXT,
		content TEXT NOT NULL,
		metadata TEXT,
		embedding BLOB,
		dimensions INTEGER,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_session_id ON memories(session_id);
	CREATE INDEX IF NOT EXISTS idx_memories_agent_id ON memories(agent_id);
	CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
	`

	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// conn returns the open database handle, initializing on first use.
func (s *SQLiteStore) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.RLock()
	db, closed := s.db, s.closed
	s.mu.RUnlock()

	if closed {
		return nil, ErrStoreClosed
	}
	if db != nil {
		return db, nil
	}

	s.mu.Lock()
	err := s.initLocked(ctx)
	db = s.db
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Put inserts a new memory record. IDs are unique for the lifetime of the
// store; there is no update-in-place.
func (s *SQLiteStore) Put(ctx context.Context, m *Memory) (string, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return "", wrapError("put", err)
	}

	if m.ID == "" {
		return "", wrapError("put", fmt.Errorf("memory ID cannot be empty"))
	}
	if m.Content == "" {
		return "", wrapError("put", ErrEmptyContent)
	}

	var embeddingBlob []byte
	var dimensions sql.NullInt64
	if m.Embedding != nil {
		embeddingBlob, err = encoding.EncodeVector(m.Embedding.Vector)
		if err != nil {
			return "", wrapError("put", err)
		}
		dimensions = sql.NullInt64{Int64: int64(m.Embedding.Dimensions), Valid: true}
	}

	var metadataJSON sql.NullString
	if m.Metadata != nil {
		encoded, err := encoding.EncodeMetadata(m.Metadata)
		if err != nil {
			return "", wrapError("put", err)
		}
		metadataJSON = sql.NullString{String: encoded, Valid: true}
	}

	query := `
	INSERT INTO memories (id, session_id, agent_id, content, metadata, embedding, dimensions, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = db.ExecContext(ctx, query,
		m.ID,
		nullString(m.SessionID),
		nullString(m.AgentID),
		m.Content,
		metadataJSON,
		embeddingBlob,
		dimensions,
		encoding.EncodeTime(m.CreatedAt),
		encoding.EncodeTime(m.UpdatedAt),
	)
	if err != nil {
		return "", wrapError("put", fmt.Errorf("failed to insert memory: %w", err))
	}

	return m.ID, nil
}

// Get returns the memory with the given id, or (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Memory, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, wrapError("get", err)
	}

	row := db.QueryRowContext(ctx, `
		SELECT id, session_id, agent_id, content, metadata, embedding, dimensions, created_at, updated_at
		FROM memories WHERE id = ?`, id)

	m, err := s.scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("get", err)
	}
	return m, nil
}

// List returns memories matching the filter, newest first. Ties on
// created_at fall back to insertion order.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Memory, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, wrapError("list", err)
	}

	query := `
		SELECT id, session_id, agent_id, content, metadata, embedding, dimensions, created_at, updated_at
		FROM memories`
	var conditions []string
	var params []any

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id = ?")
		params = append(params, filter.SessionID)
	}
	if filter.AgentID != "" {
		conditions = append(conditions, "agent_id = ?")
		params = append(params, filter.AgentID)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid ASC"

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, wrapError("list", fmt.Errorf("failed to query memories: %w", err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn("failed to close rows", "error", closeErr)
		}
	}()

	var memories []*Memory
	for rows.Next() {
		m, err := s.scanMemory(rows)
		if err != nil {
			return nil, wrapError("list", err)
		}
		if !filter.matches(m) {
			continue
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("list", err)
	}

	return memories, nil
}

// Delete removes the memory with the given id. Returns true iff a row
// existed and was removed; an unknown id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, wrapError("delete", err)
	}

	result, err := db.ExecContext(ctx, "DELETE FROM memories WHERE id = ?", id)
	if err != nil {
		return false, wrapError("delete", fmt.Errorf("failed to delete memory: %w", err))
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, wrapError("delete", fmt.Errorf("failed to get rows affected: %w", err))
	}

	return rowsAffected > 0, nil
}

// StoreStats summarizes the store contents.
type StoreStats struct {
	Count    int64 `json:"count"`
	Embedded int64 `json:"embedded"`
}

// Stats returns the total record count and how many carry an embedding.
func (s *SQLiteStore) Stats(ctx context.Context) (StoreStats, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return StoreStats{}, wrapError("stats", err)
	}

	var stats StoreStats
	row := db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(embedding) FROM memories")
	if err := row.Scan(&stats.Count, &stats.Embedded); err != nil {
		return StoreStats{}, wrapError("stats", fmt.Errorf("failed to query stats: %w", err))
	}

	return stats, nil
}

// Close releases the database handle. The store cannot be reused after.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return wrapError("close", err)
		}
		s.db = nil
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanMemory decodes one row into a Memory. A metadata or embedding blob
// that fails to decode downgrades to an absent field with a logged warning;
// the record itself remains readable.
func (s *SQLiteStore) scanMemory(row rowScanner) (*Memory, error) {
	var (
		m             Memory
		sessionID     sql.NullString
		agentID       sql.NullString
		metadataJSON  sql.NullString
		embeddingBlob []byte
		dimensions    sql.NullInt64
		createdAt     string
		updatedAt     string
	)

	err := row.Scan(&m.ID, &sessionID, &agentID, &m.Content, &metadataJSON, &embeddingBlob, &dimensions, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	m.SessionID = sessionID.String
	m.AgentID = agentID.String

	if metadataJSON.Valid && metadataJSON.String != "" {
		metadata, err := encoding.DecodeMetadata(metadataJSON.String)
		if err != nil {
			s.logger.Warn("dropping undecodable metadata", "id", m.ID, "error", err)
		} else {
			m.Metadata = metadata
		}
	}

	if len(embeddingBlob) > 0 && dimensions.Valid {
		vector, err := encoding.DecodeVector(embeddingBlob, int(dimensions.Int64))
		if err != nil {
			s.logger.Warn("dropping undecodable embedding", "id", m.ID, "error", err)
		} else {
			m.Embedding = &Embedding{Vector: vector, Dimensions: int(dimensions.Int64)}
		}
	}

	if m.CreatedAt, err = encoding.DecodeTime(createdAt); err != nil {
		return nil, err
	}
	if m.UpdatedAt, err = encoding.DecodeTime(updatedAt); err != nil {
		return nil, err
	}

	return &m, nil
}

// nullString treats the empty string as NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
