package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Metadata is a flat map of scalar attributes attached to a memory.
// Values must be strings, numbers, or booleans.
type Metadata map[string]any

// Validate checks that every metadata value is a scalar.
func (m Metadata) Validate() error {
	for key, val := range m {
		switch val.(type) {
		case string, bool,
			int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64,
			float32, float64:
		default:
			return fmt.Errorf("%w: key %q has type %T", ErrInvalidMetadata, key, val)
		}
	}
	return nil
}

// Embedding is a dense vector representation of a memory's content.
// Dimensions always equals len(Vector) for a stored embedding.
type Embedding struct {
	Vector     []float32 `json:"vector"`
	Dimensions int       `json:"dimensions"`
}

// Memory is the persisted unit: a text record with optional session/agent
// tags, scalar metadata, and an optional embedding. Records are immutable
// once stored; they are only ever read or deleted. A record without an
// embedding is valid and retrievable, just not semantically searchable.
type Memory struct {
	ID        string     `json:"id"`
	SessionID string     `json:"sessionId,omitempty"`
	AgentID   string     `json:"agentId,omitempty"`
	Content   string     `json:"content"`
	Metadata  Metadata   `json:"metadata,omitempty"`
	Embedding *Embedding `json:"embedding,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// NewMemory constructs a memory with a fresh id and equal creation and
// update timestamps. The embedding is attached separately by the service.
// Timestamps carry millisecond precision, matching the stored form.
func NewMemory(content, sessionID, agentID string, metadata Metadata) *Memory {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &Memory{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		AgentID:   agentID,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Filter narrows listing by equality on session and agent tags. Empty
// fields are unconstrained. Metadata, when set, requires every listed
// key/value pair to match the record's metadata.
type Filter struct {
	SessionID string
	AgentID   string
	Metadata  Metadata
}

// matches reports whether the memory's metadata satisfies the filter's
// metadata constraints. Session and agent equality happen in SQL; metadata
// matching is applied in Go after the scan.
func (f Filter) matches(m *Memory) bool {
	for key, want := range f.Metadata {
		got, ok := m.Metadata[key]
		if !ok || !scalarEqual(got, want) {
			return false
		}
	}
	return true
}

// scalarEqual compares two metadata scalars, treating all numeric types as
// float64 the way JSON round-tripping does.
func scalarEqual(a, b any) bool {
	af, aNum := toFloat(a)
	bf, bNum := toFloat(b)
	if aNum && bNum {
		return af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// SearchOptions controls semantic search. Zero values mean "use the
// configured defaults" (threshold 0.7, limit 10).
type SearchOptions struct {
	Threshold float64
	Limit     int
	Filter    Filter
}

// SearchResult pairs a memory with its cosine similarity to the query.
type SearchResult struct {
	Memory     *Memory `json:"memory"`
	Similarity float64 `json:"similarity"`
}
