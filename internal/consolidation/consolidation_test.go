package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/rook-mem/rook/internal/fsrs"
	"github.com/rook-mem/rook/pkg/memory"
	memmock "github.com/rook-mem/rook/pkg/memory/mock"
	"github.com/rook-mem/rook/pkg/types"
)

func testScope() types.Scope { return types.Scope{User: "u1", Agent: "a1"} }

func TestTagSetsInitialStrengthFromPredictionError(t *testing.T) {
	m := &memory.Memory{}
	now := time.Now()
	Tag(m, 0.7, now)
	if m.Consolidation.TagStrength != 0.7 {
		t.Fatalf("expected tag strength 0.7, got %v", m.Consolidation.TagStrength)
	}
	if !m.Consolidation.TaggedAt.Equal(now) {
		t.Fatalf("expected tagged_at to be set")
	}
}

func TestEffectiveTagStrengthDecaysOverTime(t *testing.T) {
	now := time.Now()
	c := memory.Consolidation{TaggedAt: now, TagStrength: 1.0}
	tau := 60 * time.Minute

	immediate := effectiveTagStrength(c, now, tau)
	if immediate != 1.0 {
		t.Fatalf("expected no decay at t=0, got %v", immediate)
	}

	afterTau := effectiveTagStrength(c, now.Add(tau), tau)
	if afterTau > 0.38 || afterTau < 0.36 {
		t.Fatalf("expected ~1/e after one tau, got %v", afterTau)
	}
}

func TestSweepPromotesStorageStrengthWhenTagClearsThreshold(t *testing.T) {
	ctx := context.Background()
	store := memmock.NewVectorStore()
	now := time.Now()

	m := memory.Memory{
		ID: "m1", Scope: testScope(), CreatedAt: now.Add(-time.Hour), UpdatedAt: now,
		Strength:      memory.Strength{Stability: 10, LastReviewed: now},
		Consolidation: memory.Consolidation{TaggedAt: now, TagStrength: 0.9},
	}
	if err := store.Insert(ctx, []memory.Memory{m}); err != nil {
		t.Fatal(err)
	}

	params := DefaultParams()
	e := New(store, params, nil)
	e.now = func() time.Time { return now }

	promoted, archived, err := e.Sweep(ctx, memory.ScopeFilter(testScope().Tenant, testScope().User, testScope().Agent, ""))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if promoted != 1 {
		t.Fatalf("expected 1 promotion, got %d", promoted)
	}
	if archived != 0 {
		t.Fatalf("expected 0 archived, got %d", archived)
	}

	got, err := store.Get(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Strength.StorageStrength != params.StorageStrengthGain {
		t.Fatalf("expected storage_strength=%v, got %v", params.StorageStrengthGain, got.Strength.StorageStrength)
	}
	if !got.Consolidation.TaggedAt.IsZero() {
		t.Fatalf("expected tag to be cleared after promotion")
	}
}

func TestSweepArchivesDecayedNonKeyMemories(t *testing.T) {
	ctx := context.Background()
	store := memmock.NewVectorStore()
	now := time.Now()

	m := memory.Memory{
		ID: "old", Scope: testScope(), CreatedAt: now.Add(-60 * 24 * time.Hour), UpdatedAt: now,
		Strength: memory.Strength{Stability: 0.01, LastReviewed: now.Add(-60 * 24 * time.Hour)},
	}
	if err := store.Insert(ctx, []memory.Memory{m}); err != nil {
		t.Fatal(err)
	}

	params := DefaultParams()
	params.FSRS = fsrs.DefaultParams()
	e := New(store, params, nil)
	e.now = func() time.Time { return now }

	_, archived, err := e.Sweep(ctx, memory.ScopeFilter(testScope().Tenant, testScope().User, testScope().Agent, ""))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if archived != 1 {
		t.Fatalf("expected 1 archived, got %d", archived)
	}

	got, err := store.Get(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsDeleted() {
		t.Fatalf("expected memory to be soft-deleted")
	}
	if got.DeleteReason != "decay" {
		t.Fatalf("expected decay reason, got %q", got.DeleteReason)
	}
}

func TestSweepExemptsKeyMemoriesFromArchival(t *testing.T) {
	ctx := context.Background()
	store := memmock.NewVectorStore()
	now := time.Now()

	m := memory.Memory{
		ID: "key1", Scope: testScope(), IsKey: true, CreatedAt: now.Add(-60 * 24 * time.Hour), UpdatedAt: now,
		Strength: memory.Strength{Stability: 0.01, LastReviewed: now.Add(-60 * 24 * time.Hour)},
	}
	if err := store.Insert(ctx, []memory.Memory{m}); err != nil {
		t.Fatal(err)
	}

	e := New(store, DefaultParams(), nil)
	e.now = func() time.Time { return now }

	_, archived, err := e.Sweep(ctx, memory.ScopeFilter(testScope().Tenant, testScope().User, testScope().Agent, ""))
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if archived != 0 {
		t.Fatalf("expected key memory to be exempt, got %d archived", archived)
	}
}

func TestApplyBehavioralTagBoostsMemoriesInWindow(t *testing.T) {
	ctx := context.Background()
	store := memmock.NewVectorStore()
	now := time.Now()

	inWindow := memory.Memory{ID: "near", Scope: testScope(), CreatedAt: now.Add(-10 * time.Minute), UpdatedAt: now, Strength: memory.Strength{LastReviewed: now}}
	outOfWindow := memory.Memory{ID: "far", Scope: testScope(), CreatedAt: now.Add(-10 * time.Hour), UpdatedAt: now, Strength: memory.Strength{LastReviewed: now}}
	if err := store.Insert(ctx, []memory.Memory{inWindow, outOfWindow}); err != nil {
		t.Fatal(err)
	}

	e := New(store, DefaultParams(), nil)
	if err := e.ApplyBehavioralTag(ctx, memory.ScopeFilter(testScope().Tenant, testScope().User, testScope().Agent, ""), now); err != nil {
		t.Fatalf("ApplyBehavioralTag: %v", err)
	}

	near, err := store.Get(ctx, "near")
	if err != nil {
		t.Fatal(err)
	}
	if near.Consolidation.ConsolidationScore <= 0 {
		t.Fatalf("expected in-window memory to gain a consolidation score boost, got %v", near.Consolidation.ConsolidationScore)
	}

	far, err := store.Get(ctx, "far")
	if err != nil {
		t.Fatal(err)
	}
	if far.Consolidation.ConsolidationScore != 0 {
		t.Fatalf("expected out-of-window memory to be untouched, got %v", far.Consolidation.ConsolidationScore)
	}
}
