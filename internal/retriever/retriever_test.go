package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/rook-mem/rook/pkg/memory"
	memmock "github.com/rook-mem/rook/pkg/memory/mock"
	embmock "github.com/rook-mem/rook/pkg/provider/embeddings/mock"
	"github.com/rook-mem/rook/pkg/types"
)

func testScope() types.Scope { return types.Scope{User: "u1", Agent: "a1"} }

func seedVectorStore(t *testing.T, store *memmock.VectorStore, now time.Time) {
	t.Helper()
	ctx := context.Background()
	items := []memory.Memory{
		{ID: "m1", Scope: testScope(), Text: "likes tea", Embedding: []float32{1, 0}, CreatedAt: now, UpdatedAt: now,
			Strength: memory.Strength{Stability: 10, LastReviewed: now}},
		{ID: "m2", Scope: testScope(), Text: "likes coffee", Embedding: []float32{0.9, 0.1}, CreatedAt: now, UpdatedAt: now,
			Strength: memory.Strength{Stability: 10, LastReviewed: now}},
		{ID: "key1", Scope: testScope(), Text: "is named Priya", Embedding: []float32{0, 1}, IsKey: true, CreatedAt: now, UpdatedAt: now,
			Strength: memory.Strength{Stability: 10, LastReviewed: now}},
	}
	if err := store.Insert(ctx, items); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSearchQuickModeReturnsVectorResultsPlusKeyTier(t *testing.T) {
	now := time.Now()
	store := memmock.NewVectorStore()
	seedVectorStore(t, store, now)

	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}
	r := New(store, nil, nil, embedder, WithClock(func() time.Time { return now }))

	got, err := r.Search(context.Background(), Query{Scope: testScope(), Text: "tea", Mode: Quick, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	var sawKey bool
	for _, res := range got {
		if res.Memory.ID == "key1" {
			sawKey = true
		}
	}
	if !sawKey {
		t.Fatalf("expected key-tier memory always present, got %+v", got)
	}
	if len(got) < 2 {
		t.Fatalf("expected at least key tier + one vector hit, got %+v", got)
	}
}

func TestSearchStandardModeUsesKeywordAndActivation(t *testing.T) {
	now := time.Now()
	store := memmock.NewVectorStore()
	seedVectorStore(t, store, now)
	fts := memmock.NewFullTextIndex()
	if err := fts.Index(context.Background(), "m2", []string{"likes", "coffee"}); err != nil {
		t.Fatal(err)
	}
	graphStore := memmock.NewGraphStore()

	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}
	r := New(store, fts, graphStore, embedder, WithClock(func() time.Time { return now }))

	got, err := r.Search(context.Background(), Query{Scope: testScope(), Text: "coffee", Mode: Standard, Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("expected results")
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	now := time.Now()
	store := memmock.NewVectorStore()
	seedVectorStore(t, store, now)
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}
	r := New(store, nil, nil, embedder, WithClock(func() time.Time { return now }))

	got, err := r.Search(context.Background(), Query{Scope: testScope(), Text: "tea", Mode: Quick, Limit: 1})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected limit=1 to be respected, got %d", len(got))
	}
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	store := memmock.NewVectorStore()
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}
	r := New(store, nil, nil, embedder)

	_, err := r.Search(context.Background(), Query{Scope: testScope(), Text: "x", Mode: "bogus", Limit: 10})
	if err == nil {
		t.Fatalf("expected an error for an unknown mode")
	}
}
