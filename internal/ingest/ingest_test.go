package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/rook-mem/rook/internal/contradiction"
	"github.com/rook-mem/rook/pkg/memory"
	memmock "github.com/rook-mem/rook/pkg/memory/mock"
	embmock "github.com/rook-mem/rook/pkg/provider/embeddings/mock"
	"github.com/rook-mem/rook/pkg/provider/llm"
	llmmock "github.com/rook-mem/rook/pkg/provider/llm/mock"
	"github.com/rook-mem/rook/pkg/types"
)

func testScope() types.Scope { return types.Scope{User: "u1", Agent: "a1"} }

func newGate(model *llmmock.Provider) (*memmock.VectorStore, *Gate) {
	store := memmock.NewVectorStore()
	detector := contradiction.New(&embmock.Provider{}, model)
	return store, New(store, detector, model, DefaultThresholds())
}

func TestIngestCreatesWhenNoNeighbors(t *testing.T) {
	store, gate := newGate(&llmmock.Provider{})
	ctx := context.Background()

	dec, err := gate.Ingest(ctx, testScope(), Candidate{Text: "likes tea", Embedding: []float32{1, 0}}, time.Now())
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if dec.Kind != Created {
		t.Fatalf("expected Created, got %+v", dec)
	}
	if len(store.All()) != 1 {
		t.Fatalf("expected 1 stored memory, got %d", len(store.All()))
	}
}

func TestIngestSkipsExactDuplicate(t *testing.T) {
	store, gate := newGate(&llmmock.Provider{})
	ctx := context.Background()
	now := time.Now()

	if err := store.Insert(ctx, []memory.Memory{{
		ID: "existing", Scope: testScope(), Text: "likes tea", Embedding: []float32{1, 0}, CreatedAt: now,
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	dec, err := gate.Ingest(ctx, testScope(), Candidate{Text: "likes tea", Embedding: []float32{1, 0}}, now)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if dec.Kind != Skipped || dec.Reason != "duplicate" {
		t.Fatalf("expected Skipped/duplicate, got %+v", dec)
	}
}

func TestIngestUpdatesNearDuplicateWithoutContradiction(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "likes tea and coffee"}}
	store, gate := newGate(model)
	ctx := context.Background()
	now := time.Now()

	if err := store.Insert(ctx, []memory.Memory{{
		ID: "existing", Scope: testScope(), Text: "likes tea", Embedding: []float32{1, 0}, Version: 1, CreatedAt: now,
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// 0.85 cosine similarity: in the update band (0.80-0.95), no negation
	// present so the contradiction detector abstains through all layers.
	dec, err := gate.Ingest(ctx, testScope(), Candidate{Text: "also likes coffee", Embedding: []float32{0.85, 0.5268}}, now)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if dec.Kind != Updated || dec.ID != "existing" {
		t.Fatalf("expected Updated existing, got %+v", dec)
	}
	got, _ := store.Get(ctx, "existing")
	if got.Version != 2 {
		t.Fatalf("expected version bump to 2, got %d", got.Version)
	}
}

func TestIngestCreatesWhenFarFromEveryNeighbor(t *testing.T) {
	store, gate := newGate(&llmmock.Provider{})
	ctx := context.Background()
	now := time.Now()

	if err := store.Insert(ctx, []memory.Memory{{
		ID: "existing", Scope: testScope(), Text: "likes tea", Embedding: []float32{1, 0}, CreatedAt: now,
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	dec, err := gate.Ingest(ctx, testScope(), Candidate{Text: "works as an engineer", Embedding: []float32{0, 1}}, now)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if dec.Kind != Created {
		t.Fatalf("expected Created for a dissimilar fact, got %+v", dec)
	}
}
