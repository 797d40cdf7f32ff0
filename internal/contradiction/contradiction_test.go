package contradiction

import (
	"context"
	"errors"
	"testing"

	"github.com/rook-mem/rook/pkg/provider/llm"
	llmmock "github.com/rook-mem/rook/pkg/provider/llm/mock"
	embmock "github.com/rook-mem/rook/pkg/provider/embeddings/mock"
)

func TestDetectLayer1EmbeddingOpposition(t *testing.T) {
	embedder := &embmock.Provider{
		EmbedBatchResult: [][]float32{
			{1, 0, 0}, // masked candidate: "is busy" -> pushed toward target once negation removed
			{1, 0, 0}, // masked target
		},
	}
	model := &llmmock.Provider{}
	d := New(embedder, model)

	out, err := d.Detect(context.Background(), Candidate{
		Text:      "Sam is not available on Fridays",
		Embedding: []float32{1, 1, 0},
	}, Target{
		Text:      "Sam is available on Fridays",
		Embedding: []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out.Verdict != Contradicts || out.Layer != LayerEmbeddingOpposition {
		t.Fatalf("expected layer-1 contradiction, got %+v", out)
	}
}

func TestDetectLayer2KeywordNegation(t *testing.T) {
	d := New(&embmock.Provider{}, &llmmock.Provider{})

	out, err := d.Detect(context.Background(), Candidate{
		Text:      "Jordan dislikes coffee",
		Embedding: []float32{0, 0}, // below same-topic floor, layer 1 abstains
	}, Target{
		Text:      "Jordan likes coffee",
		Embedding: []float32{1, 0},
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out.Verdict != Contradicts || out.Layer != LayerKeywordNegation {
		t.Fatalf("expected layer-2 contradiction, got %+v", out)
	}
}

func TestDetectLayer3Temporal(t *testing.T) {
	d := New(&embmock.Provider{}, &llmmock.Provider{})

	out, err := d.Detect(context.Background(), Candidate{
		Text:      "Priya has a meeting on 2026-03-05",
		Embedding: []float32{0, 0},
	}, Target{
		Text:      "Priya is free on 2026-03-05",
		Embedding: []float32{1, 0},
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out.Verdict != Contradicts || out.Layer != LayerTemporal {
		t.Fatalf("expected layer-3 contradiction, got %+v", out)
	}
}

func TestDetectLayer4OnlyFiresForKeyOrCorrectionCue(t *testing.T) {
	model := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"contradicts": true, "rationale": "direct correction"}`},
	}
	d := New(&embmock.Provider{}, model)

	out, err := d.Detect(context.Background(), Candidate{
		Text:      "Actually, Priya moved to Austin",
		Embedding: []float32{0, 0},
	}, Target{
		Text:      "Priya lives in Denver",
		Embedding: []float32{1, 0},
		IsKey:     false,
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out.Verdict != Contradicts || out.Layer != LayerLLM {
		t.Fatalf("expected layer-4 contradiction via correction cue, got %+v", out)
	}
}

func TestDetectLayer1ErrorDegradesToAbstainAndFallsThrough(t *testing.T) {
	embedder := &embmock.Provider{EmbedBatchErr: errors.New("embedding backend unreachable")}
	d := New(embedder, &llmmock.Provider{})

	// Same pair as TestDetectLayer1EmbeddingOpposition, but the re-embedding
	// call fails: layer 1 must abstain instead of aborting detection, so the
	// cascade falls through and layer 2's negation-pair match still fires.
	out, err := d.Detect(context.Background(), Candidate{
		Text:      "Sam is not available on Fridays",
		Embedding: []float32{1, 1, 0},
	}, Target{
		Text:      "Sam is available on Fridays",
		Embedding: []float32{1, 0, 0},
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out.Verdict != Contradicts || out.Layer != LayerKeywordNegation {
		t.Fatalf("expected layer-1 to abstain and layer-2 to fire, got %+v", out)
	}
}

func TestDetectLayer4ErrorDegradesToAbstain(t *testing.T) {
	model := &llmmock.Provider{CompleteErr: errors.New("provider unavailable")}
	d := New(&embmock.Provider{}, model)

	out, err := d.Detect(context.Background(), Candidate{
		Text:      "Actually, Priya moved to Austin",
		Embedding: []float32{0, 0},
	}, Target{
		Text:      "Priya lives in Denver",
		Embedding: []float32{1, 0},
		IsKey:     false,
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out.Verdict != Abstain {
		t.Fatalf("expected layer-4 provider error to degrade to abstain, got %+v", out)
	}
}

func TestDetectAbstainsWhenNoLayerFires(t *testing.T) {
	d := New(&embmock.Provider{}, &llmmock.Provider{})

	out, err := d.Detect(context.Background(), Candidate{
		Text:      "Priya enjoys hiking",
		Embedding: []float32{0, 0},
	}, Target{
		Text:      "Priya works as a nurse",
		Embedding: []float32{1, 0},
		IsKey:     false,
	})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if out.Verdict != Abstain {
		t.Fatalf("expected abstain, got %+v", out)
	}
}
