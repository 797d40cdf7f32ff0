// Package ingest implements Rook's ingestion gate (component F): deciding
// whether a candidate fact is a duplicate, an update, a supersession, or a
// wholly new memory, and applying that decision against a VectorStore.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rook-mem/rook/internal/contradiction"
	"github.com/rook-mem/rook/internal/fsrs"
	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/llm"
	"github.com/rook-mem/rook/pkg/types"
)

// DecisionKind enumerates the four outcomes of the gate.
type DecisionKind string

const (
	Skipped    DecisionKind = "skipped"
	Created    DecisionKind = "created"
	Updated    DecisionKind = "updated"
	Superseded DecisionKind = "superseded"
)

// Decision is the structured result of Ingest.
type Decision struct {
	Kind DecisionKind

	// Reason explains a Skipped decision (e.g. "duplicate").
	Reason string

	// ID is the id of the resulting (or matched, for Skipped/Updated)
	// memory.
	ID string

	// OldID is set for Superseded: the id of the memory that was marked
	// soft-deleted.
	OldID string

	// DiffSummary is set for Updated: a short LLM-produced description of
	// what changed.
	DiffSummary string
}

// Thresholds configures the gate's similarity boundaries (§4.F).
type Thresholds struct {
	SkipSimilarity      float64
	MergeFloor          float64
	SurpriseBoost       float64
	BaseStability       float64
	TopK                int
}

// DefaultThresholds returns Rook's default gate configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SkipSimilarity: 0.95,
		MergeFloor:     0.80,
		SurpriseBoost:  0.5,
		BaseStability:  1.0,
		TopK:           5,
	}
}

// Gate is the ingestion decision engine.
type Gate struct {
	store    memory.VectorStore
	detector *contradiction.Detector
	model    llm.Provider
	th       Thresholds
}

// New constructs a Gate.
func New(store memory.VectorStore, detector *contradiction.Detector, model llm.Provider, th Thresholds) *Gate {
	return &Gate{store: store, detector: detector, model: model, th: th}
}

// candidate mirrors the extractor's Candidate shape without importing that
// package, keeping ingest decoupled from extraction.
type Candidate struct {
	Text       string
	Embedding  []float32
	Keywords   []string
	Modality   memory.Modality
	Provenance memory.Provenance
	Categories []memory.Category
}

// Ingest runs the full gate for candidate c in scope, against the nearest
// existing memories in store, and applies whichever decision results.
func (g *Gate) Ingest(ctx context.Context, scope types.Scope, c Candidate, now time.Time) (Decision, error) {
	filter := memory.ScopeFilter(scope.Tenant, scope.User, scope.Agent, scope.Session)
	neighbors, err := g.store.Search(ctx, c.Embedding, g.th.TopK, filter)
	if err != nil {
		return Decision{}, rookerr.Wrap(rookerr.StoreError, "ingest: nearest-neighbor search failed", err)
	}

	if len(neighbors) == 0 {
		return g.create(ctx, scope, c, 0, now)
	}

	best := neighbors[0]
	bestMem, err := g.store.Get(ctx, best.ID)
	if err != nil {
		return Decision{}, rookerr.Wrap(rookerr.StoreError, "ingest: fetch best match failed", err)
	}

	switch {
	case best.Score >= g.th.SkipSimilarity:
		outcome, err := g.detector.Detect(ctx, contradiction.Candidate{Text: c.Text, Embedding: c.Embedding}, contradiction.Target{
			Text: bestMem.Text, Embedding: bestMem.Embedding, IsKey: bestMem.IsKey,
		})
		if err != nil {
			return Decision{}, err
		}
		if outcome.Verdict != contradiction.Contradicts {
			return Decision{Kind: Skipped, Reason: "duplicate", ID: bestMem.ID}, nil
		}
		return g.supersede(ctx, scope, c, bestMem, now)

	case best.Score >= g.th.MergeFloor:
		outcome, err := g.detector.Detect(ctx, contradiction.Candidate{Text: c.Text, Embedding: c.Embedding}, contradiction.Target{
			Text: bestMem.Text, Embedding: bestMem.Embedding, IsKey: bestMem.IsKey,
		})
		if err != nil {
			return Decision{}, err
		}
		if outcome.Verdict == contradiction.Contradicts {
			return g.supersede(ctx, scope, c, bestMem, now)
		}
		return g.update(ctx, c, bestMem, now)

	default:
		return g.create(ctx, scope, c, best.Score, now)
	}
}

func (g *Gate) create(ctx context.Context, scope types.Scope, c Candidate, maxSimilarity float64, now time.Time) (Decision, error) {
	predictionError := 1 - maxSimilarity
	stability := fsrs.InitialStability(g.th.BaseStability, predictionError, g.th.SurpriseBoost)

	m := memory.Memory{
		ID:         types.NewID(),
		Scope:      scope,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		AccessedAt: now,
		Text:       c.Text,
		Embedding:  c.Embedding,
		Keywords:   c.Keywords,
		Modality:   c.Modality,
		Provenance: c.Provenance,
		Categories: c.Categories,
		Strength: memory.Strength{
			Stability:    stability,
			Difficulty:   5,
			LastReviewed: now,
		},
	}
	if err := g.store.Insert(ctx, []memory.Memory{m}); err != nil {
		return Decision{}, rookerr.Wrap(rookerr.StoreError, "ingest: insert failed", err)
	}
	return Decision{Kind: Created, ID: m.ID}, nil
}

func (g *Gate) update(ctx context.Context, c Candidate, target *memory.Memory, now time.Time) (Decision, error) {
	merged, diff, err := g.mergeContent(ctx, target.Text, c.Text)
	if err != nil {
		return Decision{}, err
	}

	updated := *target
	updated.Text = merged
	updated.Embedding = c.Embedding
	updated.Keywords = c.Keywords
	updated.Version = target.Version + 1
	updated.UpdatedAt = now

	if err := g.store.Update(ctx, target.ID, updated); err != nil {
		return Decision{}, rookerr.Wrap(rookerr.StoreError, "ingest: update failed", err)
	}
	return Decision{Kind: Updated, ID: target.ID, DiffSummary: diff}, nil
}

func (g *Gate) supersede(ctx context.Context, scope types.Scope, c Candidate, target *memory.Memory, now time.Time) (Decision, error) {
	newMem := memory.Memory{
		ID:         types.NewID(),
		Scope:      scope,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
		AccessedAt: now,
		Text:       c.Text,
		Embedding:  c.Embedding,
		Keywords:   c.Keywords,
		Modality:   c.Modality,
		Provenance: c.Provenance,
		Categories: c.Categories,
		Strength: memory.Strength{
			Stability:    fsrs.InitialStability(g.th.BaseStability, 1, g.th.SurpriseBoost),
			Difficulty:   5,
			LastReviewed: now,
		},
		Relations: []memory.MemoryRelation{{Kind: memory.RelationSupersedes, TargetID: target.ID}},
	}
	if err := g.store.Insert(ctx, []memory.Memory{newMem}); err != nil {
		return Decision{}, rookerr.Wrap(rookerr.StoreError, "ingest: supersession insert failed", err)
	}

	supersededTarget := *target
	supersededTarget.DeletedAt = now
	supersededTarget.DeleteReason = "superseded"
	supersededTarget.Relations = append(supersededTarget.Relations, memory.MemoryRelation{
		Kind: memory.RelationSupersedes, TargetID: newMem.ID,
	})
	if err := g.store.Update(ctx, target.ID, supersededTarget); err != nil {
		return Decision{}, rookerr.Wrap(rookerr.StoreError, "ingest: soft-delete of superseded memory failed", err)
	}

	return Decision{Kind: Superseded, OldID: target.ID, ID: newMem.ID}, nil
}

const mergeSystemPrompt = `You merge an existing memory with newly learned information about the same fact.

Respond with ONLY the merged factual statement, one sentence, incorporating anything new from the update while preserving still-true detail from the original. Do not add commentary.`

func (g *Gate) mergeContent(ctx context.Context, existing, update string) (merged, diffSummary string, err error) {
	resp, err := g.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: mergeSystemPrompt,
		Messages: []types.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Existing: %s\nUpdate: %s", existing, update),
		}},
		Temperature: 0,
	})
	if err != nil {
		return "", "", rookerr.Wrap(rookerr.ProviderError, "ingest: content merge failed", err)
	}
	return resp.Content, fmt.Sprintf("merged %q with %q", existing, update), nil
}
