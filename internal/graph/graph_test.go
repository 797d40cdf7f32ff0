package graph

import (
	"context"
	"testing"
	"time"

	"github.com/rook-mem/rook/pkg/memory"
	memmock "github.com/rook-mem/rook/pkg/memory/mock"
	embmock "github.com/rook-mem/rook/pkg/provider/embeddings/mock"
	"github.com/rook-mem/rook/pkg/provider/llm"
	llmmock "github.com/rook-mem/rook/pkg/provider/llm/mock"
	"github.com/rook-mem/rook/pkg/types"
)

func testScope() types.Scope { return types.Scope{User: "u1", Agent: "a1"} }

func TestExtractTriplesParsesJSON(t *testing.T) {
	model := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{
		Content: `{"triples": [{"subject": "Priya", "subject_type": "person", "relation": "works_at", "object": "Acme", "object_type": "organization"}]}`,
	}}
	e := New(memmock.NewGraphStore(), &embmock.Provider{}, model)

	got, err := e.ExtractTriples(context.Background(), "Priya works at Acme")
	if err != nil {
		t.Fatalf("ExtractTriples: %v", err)
	}
	if len(got) != 1 || got[0].Subject != "Priya" || got[0].Object != "Acme" {
		t.Fatalf("unexpected triples: %+v", got)
	}
}

func TestApplyReusesExistingNodeOnNameMatch(t *testing.T) {
	store := memmock.NewGraphStore()
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}
	e := New(store, embedder, &llmmock.Provider{})
	ctx := context.Background()
	scope := testScope()

	if err := store.AddNode(ctx, memory.GraphNode{ID: "existing-priya", Scope: scope, Name: "priya", Type: memory.NodeTypePerson}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := e.Apply(ctx, scope, "mem-1", []Triple{{
		Subject: "Priya", SubjectType: memory.NodeTypePerson,
		Relation: "works_at",
		Object:   "Acme", ObjectType: memory.NodeTypeOrganization,
	}}, nil, time.Now())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	neighbors, err := store.Neighbors(ctx, "existing-priya")
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(neighbors) != 1 {
		t.Fatalf("expected an edge from the reused node, got %+v", neighbors)
	}
}

func TestApplyCreatesCategoryEdges(t *testing.T) {
	store := memmock.NewGraphStore()
	e := New(store, &embmock.Provider{EmbedResult: []float32{1, 0}}, &llmmock.Provider{})
	ctx := context.Background()

	err := e.Apply(ctx, testScope(), "mem-1", nil, []memory.Category{memory.CategoryPreference}, time.Now())
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	neighbors, err := store.Neighbors(ctx, "mem-1")
	if err != nil {
		t.Fatalf("Neighbors: %v", err)
	}
	if len(neighbors) != 1 {
		t.Fatalf("expected one category edge from the memory node, got %+v", neighbors)
	}
}

func TestDeleteByMemoryGarbageCollects(t *testing.T) {
	store := memmock.NewGraphStore()
	e := New(store, &embmock.Provider{EmbedResult: []float32{1, 0}}, &llmmock.Provider{})
	ctx := context.Background()

	if err := e.Apply(ctx, testScope(), "mem-1", []Triple{{
		Subject: "Priya", SubjectType: memory.NodeTypePerson,
		Relation: "works_at",
		Object:   "Acme", ObjectType: memory.NodeTypeOrganization,
	}}, nil, time.Now()); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if err := e.DeleteByMemory(ctx, "mem-1"); err != nil {
		t.Fatalf("DeleteByMemory: %v", err)
	}
	for _, name := range []string{"Priya", "Acme"} {
		if n, err := store.FindSimilarNode(ctx, testScope(), name, memory.NodeTypePerson, nil, 0.7); err != nil || n != nil {
			t.Fatalf("expected node %q to be garbage collected, got %+v (err %v)", name, n, err)
		}
	}
}
