package activation

import (
	"context"
	"testing"

	"github.com/rook-mem/rook/pkg/memory"
	memmock "github.com/rook-mem/rook/pkg/memory/mock"
)

func TestSpreadPropagatesAlongEdgesWithDecay(t *testing.T) {
	ctx := context.Background()
	store := memmock.NewGraphStore()

	if err := store.AddNode(ctx, memory.GraphNode{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddNode(ctx, memory.GraphNode{ID: "b"}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddEdge(ctx, memory.GraphEdge{ID: "e1", SourceNodeID: "a", TargetNodeID: "b", Weight: 1}); err != nil {
		t.Fatal(err)
	}

	p := DefaultParams()
	p.MaxDepth = 1
	got, err := Spread(ctx, store, []Seed{{NodeID: "a", Activation: 1.0}}, p)
	if err != nil {
		t.Fatalf("Spread: %v", err)
	}

	if got["b"] != 1.0*1.0*p.DecayFactor {
		t.Fatalf("expected b's activation = decay_factor, got %v", got["b"])
	}
	if got["a"] != 1.0 {
		t.Fatalf("expected a's own activation to carry forward unchanged, got %v", got["a"])
	}
}

func TestSpreadDoesNotFireBelowThreshold(t *testing.T) {
	ctx := context.Background()
	store := memmock.NewGraphStore()
	if err := store.AddEdge(ctx, memory.GraphEdge{ID: "e1", SourceNodeID: "a", TargetNodeID: "b", Weight: 1}); err != nil {
		t.Fatal(err)
	}

	p := DefaultParams()
	p.MaxDepth = 1
	got, err := Spread(ctx, store, []Seed{{NodeID: "a", Activation: 0.05}}, p) // below 0.1 threshold
	if err != nil {
		t.Fatalf("Spread: %v", err)
	}
	if _, ok := got["b"]; ok {
		t.Fatalf("node below firing threshold should not propagate, got %v", got)
	}
}

func TestSpreadIsDeterministicWithoutNoise(t *testing.T) {
	ctx := context.Background()
	store := memmock.NewGraphStore()
	if err := store.AddEdge(ctx, memory.GraphEdge{ID: "e1", SourceNodeID: "a", TargetNodeID: "b", Weight: 0.5}); err != nil {
		t.Fatal(err)
	}

	p := DefaultParams()
	run1, err := Spread(ctx, store, []Seed{{NodeID: "a", Activation: 1.0}}, p)
	if err != nil {
		t.Fatal(err)
	}
	run2, err := Spread(ctx, store, []Seed{{NodeID: "a", Activation: 1.0}}, p)
	if err != nil {
		t.Fatal(err)
	}
	if run1["b"] != run2["b"] {
		t.Fatalf("expected deterministic output, got %v and %v", run1["b"], run2["b"])
	}
}

func TestProjectToMemoriesCapsTotal(t *testing.T) {
	activation := map[string]float64{"n1": 0.6, "n2": 0.6}
	memoryNodes := map[string][]string{"mem-1": {"n1", "n2"}}

	got := ProjectToMemories(activation, memoryNodes, 1.0)
	if got["mem-1"] != 1.0 {
		t.Fatalf("expected cap applied, got %v", got["mem-1"])
	}
}
