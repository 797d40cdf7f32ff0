package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/rook-mem/rook/internal/config"
	"github.com/rook-mem/rook/internal/engine"
	"github.com/rook-mem/rook/internal/eventbus"
	"github.com/rook-mem/rook/internal/ingest"
	"github.com/rook-mem/rook/internal/intention"
	"github.com/rook-mem/rook/internal/retriever"
	"github.com/rook-mem/rook/pkg/memory"
	memmock "github.com/rook-mem/rook/pkg/memory/mock"
	embmock "github.com/rook-mem/rook/pkg/provider/embeddings/mock"
	llmmock "github.com/rook-mem/rook/pkg/provider/llm/mock"
	"github.com/rook-mem/rook/pkg/provider/llm"
	"github.com/rook-mem/rook/pkg/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Ingestion: config.IngestionConfig{
			SkipSimilarity: 0.95,
			MergeFloor:     0.80,
			SurpriseBoost:  0.5,
			BaseStability:  1.0,
			TopK:           5,
			MinConfidence:  0.4,
			LLMTimeout:     5 * time.Second,
		},
		Retrieval: config.RetrievalConfig{
			MaxKeyMemories: 15,
			MaxSemantic:    35,
			MaxKeyword:     35,
			DedupThreshold: 0.95,
			RRFk:           60,
			CategoryBoost:  1.2,
		},
		Activation: config.ActivationConfig{
			DecayFactor:     0.8,
			FiringThreshold: 0.1,
			MaxDepth:        3,
		},
		Consolidation: config.ConsolidationConfig{
			TagDecayTau:            time.Hour,
			ConsolidationThreshold: 0.5,
			StorageStrengthGain:    0.15,
			BehavioralWindowBefore: 30 * time.Minute,
			BehavioralWindowAfter:  2 * time.Hour,
			SweepInterval:          time.Hour,
		},
		Intention: config.IntentionConfig{
			FalsePositiveRate: 0.001,
			SemanticPassEvery: 10,
		},
	}
}

func testScope() types.Scope { return types.Scope{User: "u1", Agent: "a1"} }

func TestRememberCreatesNewMemoryFromExtractedFact(t *testing.T) {
	vectors := memmock.NewVectorStore()
	llmProvider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[{"text":"the user prefers dark roast coffee","message_id":"m1","modality":"text","confidence":0.9}]`,
		},
	}
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}

	e, err := engine.New(testConfig(), &engine.Providers{
		LLM:        llmProvider,
		Embeddings: embedder,
		VectorDB:   vectors,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	decisions, err := e.Remember(context.Background(), testScope(), []types.Message{
		{Role: "user", Content: "I always get dark roast coffee"},
	})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if len(decisions) != 1 || decisions[0].Kind != ingest.Created {
		t.Fatalf("expected one Created decision, got %+v", decisions)
	}
	if len(vectors.All()) != 1 {
		t.Fatalf("expected one memory stored, got %d", len(vectors.All()))
	}
}

func TestRememberPublishesCreatedEvent(t *testing.T) {
	vectors := memmock.NewVectorStore()
	llmProvider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: `[{"text":"fact one","message_id":"m1","modality":"text","confidence":0.9}]`,
		},
	}
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}

	e, err := engine.New(testConfig(), &engine.Providers{
		LLM:        llmProvider,
		Embeddings: embedder,
		VectorDB:   vectors,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var got []eventbus.Event
	e.EventBus().Subscribe(func(ctx context.Context, ev eventbus.Event) {
		got = append(got, ev)
	})

	_, err = e.Remember(context.Background(), testScope(), []types.Message{{Role: "user", Content: "fact one"}})
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if len(got) != 1 || got[0].Kind != eventbus.Created {
		t.Fatalf("expected one created event, got %+v", got)
	}
}

func TestRecallReturnsEmptyResultsForEmptyStore(t *testing.T) {
	vectors := memmock.NewVectorStore()
	embedder := &embmock.Provider{EmbedResult: []float32{1, 0}}

	e, err := engine.New(testConfig(), &engine.Providers{
		LLM:        &llmmock.Provider{},
		Embeddings: embedder,
		VectorDB:   vectors,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results, err := e.Recall(context.Background(), retriever.Query{Scope: testScope(), Text: "coffee", Mode: retriever.Quick, Limit: 10})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results from an empty store, got %+v", results)
	}
}

func TestRegisterIntentionAndEvaluateMessage(t *testing.T) {
	vectors := memmock.NewVectorStore()
	e, err := engine.New(testConfig(), &engine.Providers{
		LLM:        &llmmock.Provider{},
		Embeddings: &embmock.Provider{EmbedResult: []float32{1, 0}},
		VectorDB:   vectors,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	e.RegisterIntention(memory.Intention{ID: "i1", Trigger: memory.KeywordMention("renewal"), CreatedAt: time.Now()})

	fired, err := e.EvaluateMessage(context.Background(), intention.Message{Text: "the renewal is due", At: time.Now()})
	if err != nil {
		t.Fatalf("EvaluateMessage: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("expected intention i1 to fire, got %+v", fired)
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	vectors := memmock.NewVectorStore()
	e, err := engine.New(testConfig(), &engine.Providers{
		LLM:        &llmmock.Provider{},
		Embeddings: &embmock.Provider{EmbedResult: []float32{1, 0}},
		VectorDB:   vectors,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx := context.Background()
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := e.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
