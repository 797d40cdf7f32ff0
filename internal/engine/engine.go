// Package engine wires Rook's subsystems into a single running instance.
//
// The Engine struct owns the full lifecycle: New creates and connects all
// subsystems, the public methods (Remember, Recall, RegisterIntention, ...)
// are the operations an embedding application calls, and Shutdown tears
// everything down in order.
//
// For testing, pass mock implementations in the Providers struct; the only
// functional option is WithClock. New never builds providers itself: the
// caller (cmd/rookd, via the config registry) supplies them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/rook-mem/rook/internal/activation"
	"github.com/rook-mem/rook/internal/config"
	"github.com/rook-mem/rook/internal/consolidation"
	"github.com/rook-mem/rook/internal/contradiction"
	"github.com/rook-mem/rook/internal/eventbus"
	"github.com/rook-mem/rook/internal/extractor"
	"github.com/rook-mem/rook/internal/fsrs"
	"github.com/rook-mem/rook/internal/graph"
	"github.com/rook-mem/rook/internal/ingest"
	"github.com/rook-mem/rook/internal/intention"
	"github.com/rook-mem/rook/internal/retriever"
	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/embeddings"
	"github.com/rook-mem/rook/pkg/provider/llm"
	"github.com/rook-mem/rook/pkg/types"
)

// Providers holds one interface value per capability slot. Populated by
// cmd/rookd via the config registry, or directly by tests.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
	VectorDB   memory.VectorStore
	GraphDB    memory.GraphStore
	Reranker   memory.Reranker
	FullText   memory.FullTextIndex
}

// Engine owns every subsystem lifetime and exposes Rook's public operations.
type Engine struct {
	cfg       *config.Config
	providers *Providers
	log       *slog.Logger

	extractor     *extractor.Extractor
	contradiction *contradiction.Detector
	gate          *ingest.Gate
	graphEngine   *graph.Engine
	retriever     *retriever.Retriever
	consolidation *consolidation.Engine
	intentions    *intention.Registry
	bus           *eventbus.Bus

	now func() time.Time

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Engine)

// WithClock overrides the time source (tests only).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New wires every subsystem together from cfg and providers.
func New(cfg *config.Config, providers *Providers, log *slog.Logger, opts ...Option) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{cfg: cfg, providers: providers, log: log, now: time.Now}
	for _, o := range opts {
		o(e)
	}

	if providers.VectorDB == nil {
		return nil, fmt.Errorf("engine: a vector store provider is required")
	}

	e.extractor = extractor.New(providers.LLM,
		extractor.WithMinConfidence(cfg.Ingestion.MinConfidence),
		extractor.WithTimeout(cfg.Ingestion.LLMTimeout),
		extractor.WithLogger(log),
	)

	e.contradiction = contradiction.New(providers.Embeddings, providers.LLM)

	e.gate = ingest.New(providers.VectorDB, e.contradiction, providers.LLM, ingest.Thresholds{
		SkipSimilarity: cfg.Ingestion.SkipSimilarity,
		MergeFloor:     cfg.Ingestion.MergeFloor,
		SurpriseBoost:  cfg.Ingestion.SurpriseBoost,
		BaseStability:  cfg.Ingestion.BaseStability,
		TopK:           cfg.Ingestion.TopK,
	})

	if providers.GraphDB != nil {
		e.graphEngine = graph.New(providers.GraphDB, providers.Embeddings, providers.LLM,
			graph.WithMergeThreshold(cfg.Graph.MergeThreshold),
		)
	}

	var noise func(string) float64
	if sigma := cfg.Activation.NoiseSigma; sigma > 0 {
		noise = func(string) float64 { return activation.Logistic(rand.Float64(), sigma) }
	}

	retrieverOpts := []retriever.Option{
		retriever.WithCaps(retriever.Caps{
			MaxKeyMemories: cfg.Retrieval.MaxKeyMemories,
			MaxSemantic:    cfg.Retrieval.MaxSemantic,
			MaxKeyword:     cfg.Retrieval.MaxKeyword,
			DedupThreshold: cfg.Retrieval.DedupThreshold,
			RRFk:           cfg.Retrieval.RRFk,
			CategoryBoost:  cfg.Retrieval.CategoryBoost,
		}),
		retriever.WithActivationParams(activation.Params{
			DecayFactor:     cfg.Activation.DecayFactor,
			FiringThreshold: cfg.Activation.FiringThreshold,
			MaxDepth:        cfg.Activation.MaxDepth,
			Noise:           noise,
		}),
		retriever.WithClock(e.now),
	}
	if providers.Reranker != nil {
		retrieverOpts = append(retrieverOpts, retriever.WithReranker(providers.Reranker))
	}
	e.retriever = retriever.New(providers.VectorDB, providers.FullText, providers.GraphDB, providers.Embeddings, retrieverOpts...)

	e.consolidation = consolidation.New(providers.VectorDB, consolidation.Params{
		TagDecayTau:            cfg.Consolidation.TagDecayTau,
		ConsolidationThreshold: cfg.Consolidation.ConsolidationThreshold,
		StorageStrengthGain:    cfg.Consolidation.StorageStrengthGain,
		BehavioralWindowBefore: cfg.Consolidation.BehavioralWindowBefore,
		BehavioralWindowAfter:  cfg.Consolidation.BehavioralWindowAfter,
		SweepInterval:          cfg.Consolidation.SweepInterval,
		FSRS:                   fsrs.DefaultParams(),
	}, log)

	e.intentions = intention.New(providers.Embeddings, intention.Params{
		FalsePositiveRate: cfg.Intention.FalsePositiveRate,
		SemanticPassEvery: cfg.Intention.SemanticPassEvery,
	})

	e.bus = eventbus.New(log)
	for _, wh := range cfg.EventBus.Webhooks {
		e.bus.SubscribeWebhook(eventbus.WebhookConfig{
			URL:         wh.URL,
			Secret:      wh.Secret,
			Timeout:     wh.Timeout,
			MaxAttempts: wh.MaxAttempts,
		})
	}

	return e, nil
}

// EventBus exposes the event bus so callers can subscribe in-process.
func (e *Engine) EventBus() *eventbus.Bus { return e.bus }

// Intentions exposes the intention registry so callers can register triggers.
func (e *Engine) Intentions() *intention.Registry { return e.intentions }

// Remember runs the full ingestion pipeline for one raw message batch:
// extraction, contradiction-aware gating, graph update, and a lifecycle
// event per resulting decision: created for Created, updated for Updated
// and Superseded; Skipped decisions publish no event.
func (e *Engine) Remember(ctx context.Context, scope types.Scope, messages []types.Message) ([]ingest.Decision, error) {
	candidates, err := e.extractor.Extract(ctx, messages)
	if err != nil {
		return nil, err
	}

	now := e.now()
	decisions := make([]ingest.Decision, 0, len(candidates))
	for _, cand := range candidates {
		embedding, err := e.providers.Embeddings.Embed(ctx, cand.Text)
		if err != nil {
			return decisions, rookerr.Wrap(rookerr.ProviderError, "engine: embed candidate failed", err)
		}

		decision, err := e.gate.Ingest(ctx, scope, ingest.Candidate{
			Text:      cand.Text,
			Embedding: embedding,
			Modality:  cand.Modality,
		}, now)
		if err != nil {
			return decisions, err
		}
		decisions = append(decisions, decision)

		if e.graphEngine != nil && decision.Kind != ingest.Skipped {
			triples, err := e.graphEngine.ExtractTriples(ctx, cand.Text)
			if err != nil {
				e.log.Warn("graph triple extraction failed", "error", err)
			} else if err := e.graphEngine.Apply(ctx, scope, decision.ID, triples, nil, now); err != nil {
				e.log.Warn("graph apply failed", "error", err)
			}
		}

		e.publishForDecision(ctx, scope, decision, now)
	}
	return decisions, nil
}

func (e *Engine) publishForDecision(ctx context.Context, scope types.Scope, d ingest.Decision, at time.Time) {
	if e.bus == nil {
		return
	}
	kind := eventbus.Created
	switch d.Kind {
	case ingest.Updated:
		kind = eventbus.Updated
	case ingest.Superseded:
		kind = eventbus.Updated
	case ingest.Skipped:
		return
	}
	e.bus.Publish(ctx, eventbus.Event{Kind: kind, Scope: scope, At: at})
}

// Recall runs the hybrid retrieval pipeline for a single query.
func (e *Engine) Recall(ctx context.Context, q retriever.Query) ([]retriever.Result, error) {
	return e.retriever.Search(ctx, q)
}

// RegisterIntention adds an intention to the standing registry.
func (e *Engine) RegisterIntention(in memory.Intention) {
	e.intentions.Register(in)
}

// EvaluateMessage runs every standing intention against an inbound message.
func (e *Engine) EvaluateMessage(ctx context.Context, m intention.Message) ([]intention.Fired, error) {
	return e.intentions.Evaluate(ctx, m)
}

// StartConsolidation starts the periodic consolidation sweep for scopeFilter,
// running until ctx is cancelled or Shutdown is called.
func (e *Engine) StartConsolidation(ctx context.Context, scopeFilter memory.Filter) {
	e.consolidation.Start(ctx, scopeFilter)
}

// Shutdown tears down background goroutines. Safe to call multiple times.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.consolidation.Stop()
	})
	return nil
}
