// Package core implements the memory store and semantic retrieval engine:
// SQLite persistence of memory records, best-effort embedding generation at
// creation time, and a linear-scan ranking of stored memories against a
// query by cosine similarity.
//
// Basic usage:
//
//	store := core.NewStore(cfg.Path, logger)
//	svc := core.NewService(store, embedder, cfg, logger)
//	if err := svc.Initialize(ctx); err != nil { ... }
//
//	m, err := svc.AddMemory(ctx, "I love pizza", "session-1", "", nil)
//	results, err := svc.SearchMemories(ctx, "favorite food", core.SearchOptions{})
//
// The design favors write availability over semantic completeness: a failed
// embedding call never fails an add, it just leaves the record out of
// semantic search. The scan is linear and suitable for small-to-moderate
// record counts; there is no approximate-nearest-neighbor index.
package core
