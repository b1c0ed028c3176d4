package core

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "test.db"), log.New(io.Discard))
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return store
}

func TestStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := NewMemory("I love pizza", "s1", "a1", Metadata{
		"source": "conversation",
		"pinned": true,
	})
	m.Embedding = &Embedding{Vector: []float32{0.6, 0.8}, Dimensions: 2}

	id, err := store.Put(ctx, m)
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if id != m.ID {
		t.Errorf("Put() returned id %q, want %q", id, m.ID)
	}

	got, err := store.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for a stored memory")
	}

	if got.Content != m.Content {
		t.Errorf("Content = %q, want %q", got.Content, m.Content)
	}
	if got.SessionID != "s1" || got.AgentID != "a1" {
		t.Errorf("Tags = (%q, %q), want (s1, a1)", got.SessionID, got.AgentID)
	}
	if got.Metadata["source"] != "conversation" {
		t.Errorf("Metadata[source] = %v, want conversation", got.Metadata["source"])
	}
	if got.Metadata["pinned"] != true {
		t.Errorf("Metadata[pinned] = %v, want true", got.Metadata["pinned"])
	}
	if !got.CreatedAt.Equal(m.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, m.CreatedAt)
	}
	if !got.CreatedAt.Equal(got.UpdatedAt) {
		t.Errorf("CreatedAt %v != UpdatedAt %v on a fresh record", got.CreatedAt, got.UpdatedAt)
	}

	if got.Embedding == nil {
		t.Fatal("Embedding missing after round trip")
	}
	if got.Embedding.Dimensions != 2 || len(got.Embedding.Vector) != 2 {
		t.Fatalf("Embedding dimensions = %d, vector length %d, want 2", got.Embedding.Dimensions, len(got.Embedding.Vector))
	}
	if got.Embedding.Vector[0] != 0.6 || got.Embedding.Vector[1] != 0.8 {
		t.Errorf("Embedding vector = %v, want [0.6 0.8]", got.Embedding.Vector)
	}
}

func TestStorePutWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := NewMemory("no embedding here", "", "", nil)
	if _, err := store.Put(ctx, m); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Embedding != nil {
		t.Errorf("Embedding = %v, want nil", got.Embedding)
	}
	if got.SessionID != "" || got.AgentID != "" {
		t.Errorf("Tags = (%q, %q), want empty", got.SessionID, got.AgentID)
	}
	if got.Metadata != nil {
		t.Errorf("Metadata = %v, want nil", got.Metadata)
	}
}

func TestStorePutRejectsEmptyContent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := NewMemory("", "", "", nil)
	if _, err := store.Put(ctx, m); err == nil {
		t.Error("Expected error for empty content")
	}
}

func TestStoreGetAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	got, err := store.Get(ctx, "nonexistent-id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %v, want nil for absent id", got)
	}
}

func TestStoreListFilterAndOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	put := func(content, sessionID, agentID string, at time.Time) *Memory {
		m := NewMemory(content, sessionID, agentID, nil)
		m.CreatedAt = at
		m.UpdatedAt = at
		if _, err := store.Put(ctx, m); err != nil {
			t.Fatalf("Put(%q) error = %v", content, err)
		}
		return m
	}

	oldest := put("oldest", "s1", "a1", base)
	middle := put("middle", "s1", "a2", base.Add(time.Minute))
	newest := put("newest", "s2", "a1", base.Add(2*time.Minute))
	tieFirst := put("tie first", "s1", "a1", base.Add(3*time.Minute))
	tieSecond := put("tie second", "s1", "a1", base.Add(3*time.Minute))

	t.Run("no filter returns all newest first", func(t *testing.T) {
		all, err := store.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(all) != 5 {
			t.Fatalf("List() returned %d memories, want 5", len(all))
		}
		wantOrder := []string{tieFirst.ID, tieSecond.ID, newest.ID, middle.ID, oldest.ID}
		for i, want := range wantOrder {
			if all[i].ID != want {
				t.Errorf("List()[%d].ID = %s, want %s", i, all[i].ID, want)
			}
		}
	})

	t.Run("session filter", func(t *testing.T) {
		got, err := store.List(ctx, Filter{SessionID: "s1"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 4 {
			t.Fatalf("List() returned %d memories, want 4", len(got))
		}
		for _, m := range got {
			if m.SessionID != "s1" {
				t.Errorf("Memory %s has session %q, want s1", m.ID, m.SessionID)
			}
		}
	})

	t.Run("session and agent filter", func(t *testing.T) {
		got, err := store.List(ctx, Filter{SessionID: "s1", AgentID: "a2"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 1 || got[0].ID != middle.ID {
			t.Fatalf("List() = %v, want exactly the middle memory", got)
		}
	})

	t.Run("unmatched filter is empty not error", func(t *testing.T) {
		got, err := store.List(ctx, Filter{SessionID: "missing"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(got) != 0 {
			t.Errorf("List() returned %d memories, want 0", len(got))
		}
	})
}

func TestStoreListMetadataFilter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	tagged := NewMemory("tagged", "s1", "", Metadata{"topic": "food", "rank": 2})
	if _, err := store.Put(ctx, tagged); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	other := NewMemory("other", "s1", "", Metadata{"topic": "travel"})
	if _, err := store.Put(ctx, other); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.List(ctx, Filter{Metadata: Metadata{"topic": "food", "rank": 2}})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 1 || got[0].ID != tagged.ID {
		t.Fatalf("List() = %d results, want exactly the tagged memory", len(got))
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m := NewMemory("to be deleted", "", "", nil)
	if _, err := store.Put(ctx, m); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	deleted, err := store.Delete(ctx, m.ID)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false for an existing memory")
	}

	got, err := store.Get(ctx, m.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Error("Memory still readable after delete")
	}

	deleted, err = store.Delete(ctx, "nonexistent-id")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted {
		t.Error("Delete() = true for an unknown id")
	}
}

func TestStoreCorruptMetadataDowngradesToAbsent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	// Write a row with unparseable metadata directly, bypassing Put.
	_, err := store.db.ExecContext(ctx, `
		INSERT INTO memories (id, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		"corrupt-meta", "still readable", "{not json", "2024-05-01T12:00:00.000Z", "2024-05-01T12:00:00.000Z")
	if err != nil {
		t.Fatalf("Raw insert failed: %v", err)
	}

	got, err := store.Get(ctx, "corrupt-meta")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil for a record with corrupt metadata")
	}
	if got.Metadata != nil {
		t.Errorf("Metadata = %v, want nil after decode failure", got.Metadata)
	}
	if got.Content != "still readable" {
		t.Errorf("Content = %q, want unchanged", got.Content)
	}
}

func TestStoreStats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	withEmbedding := NewMemory("embedded", "", "", nil)
	withEmbedding.Embedding = &Embedding{Vector: []float32{1, 0}, Dimensions: 2}
	if _, err := store.Put(ctx, withEmbedding); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := store.Put(ctx, NewMemory("plain", "", "", nil)); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Count != 2 {
		t.Errorf("Count = %d, want 2", stats.Count)
	}
	if stats.Embedded != 1 {
		t.Errorf("Embedded = %d, want 1", stats.Embedded)
	}
}

func TestStoreClosedRejectsOperations(t *testing.T) {
	ctx := context.Background()
	store := NewStore(filepath.Join(t.TempDir(), "closed.db"), log.New(io.Discard))

	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := store.Put(ctx, NewMemory("x", "", "", nil)); err == nil {
		t.Error("Expected error putting into a closed store")
	}
	if _, err := store.Get(ctx, "any"); err == nil {
		t.Error("Expected error reading from a closed store")
	}
}

func TestStoreInitIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Init(ctx); err != nil {
		t.Fatalf("First Init() error = %v", err)
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Second Init() error = %v", err)
	}
}
