package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/karen-ai/nlpcore/pkg/memoryindex"
	"github.com/karen-ai/nlpcore/pkg/memoryindex/postgres"
)

const testDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if NLPCORE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("NLPCORE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NLPCORE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestIndex creates a fresh [postgres.Index] with an empty embeddings
// table and closes it when the test finishes.
func newTestIndex(t *testing.T) *postgres.Index {
	t.Helper()
	ctx := context.Background()

	idx, err := postgres.New(ctx, testDSN(t), testDim)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(idx.Close)

	// Start each test from a clean table; the schema itself is idempotent.
	for _, id := range []string{"a", "b", "c"} {
		if err := idx.Delete(ctx, id); err != nil {
			t.Fatalf("Delete(%q): %v", id, err)
		}
	}
	return idx
}

func TestUpsertAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	entries := []memoryindex.Entry{
		{ID: "a", Text: "alpha", Vector: []float32{1, 0, 0, 0}, Model: "test"},
		{ID: "b", Text: "beta", Vector: []float32{0, 1, 0, 0}, Model: "test"},
		{ID: "c", Text: "gamma", Vector: []float32{0.9, 0.1, 0, 0}, Model: "test"},
	}
	for _, e := range entries {
		if err := idx.Upsert(ctx, e); err != nil {
			t.Fatalf("Upsert(%q): %v", e.ID, err)
		}
	}

	matches, err := idx.Search(ctx, []float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("len = %d, want 2", len(matches))
	}
	if matches[0].Entry.ID != "a" {
		t.Errorf("nearest = %q, want a", matches[0].Entry.ID)
	}
	if matches[1].Entry.ID != "c" {
		t.Errorf("second = %q, want c", matches[1].Entry.ID)
	}
	if matches[0].Distance > matches[1].Distance {
		t.Error("results not ordered by ascending distance")
	}
}

func TestUpsert_Replaces(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Upsert(ctx, memoryindex.Entry{
		ID: "a", Text: "old", Vector: []float32{1, 0, 0, 0},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, memoryindex.Entry{
		ID: "a", Text: "new", Vector: []float32{0, 0, 0, 1},
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	matches, err := idx.Search(ctx, []float32{0, 0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 || matches[0].Entry.Text != "new" {
		t.Fatalf("matches = %+v, want single replaced entry", matches)
	}
}

func TestDelete_MissingIDSucceeds(t *testing.T) {
	idx := newTestIndex(t)
	if err := idx.Delete(context.Background(), "nonexistent"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
