package extractor

import (
	"context"
	"testing"

	"github.com/rook-mem/rook/pkg/provider/llm"
	llmmock "github.com/rook-mem/rook/pkg/provider/llm/mock"
	"github.com/rook-mem/rook/pkg/types"
)

// sequencedProvider returns a different CompletionResponse on each
// successive call, used to exercise the malformed-JSON retry path.
type sequencedProvider struct {
	llm.Provider
	responses []*llm.CompletionResponse
	calls     int
}

func (s *sequencedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

func TestExtractFiltersBelowMinConfidence(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `[
			{"text":"likes tea","message_id":"m1","modality":"text","confidence":0.9},
			{"text":"might live nearby","message_id":"m1","modality":"text","confidence":0.1}
		]`},
	}
	e := New(p)

	got, err := e.Extract(context.Background(), []types.Message{{Role: "user", Content: "I like tea"}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].Text != "likes tea" {
		t.Fatalf("expected only the high-confidence candidate, got %+v", got)
	}
}

func TestExtractRetriesOnceOnMalformedJSON(t *testing.T) {
	p := &sequencedProvider{
		responses: []*llm.CompletionResponse{
			{Content: "not json at all"},
			{Content: `[{"text":"recovered fact","message_id":"m1","modality":"text","confidence":0.8}]`},
		},
	}
	e := New(p)

	got, err := e.Extract(context.Background(), []types.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if p.calls != 2 {
		t.Fatalf("expected exactly one retry (2 calls total), got %d", p.calls)
	}
	if len(got) != 1 || got[0].Text != "recovered fact" {
		t.Fatalf("unexpected candidates after retry: %+v", got)
	}
}

func TestExtractProviderErrorAbortsBatch(t *testing.T) {
	p := &llmmock.Provider{CompleteErr: context.DeadlineExceeded}
	e := New(p)

	_, err := e.Extract(context.Background(), []types.Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestExtractStillMalformedAfterRetryIsProviderError(t *testing.T) {
	p := &sequencedProvider{
		responses: []*llm.CompletionResponse{
			{Content: "still not json"},
			{Content: "still not json"},
		},
	}
	e := New(p)

	_, err := e.Extract(context.Background(), []types.Message{{Role: "user", Content: "hi"}})
	if err == nil {
		t.Fatalf("expected an error after exhausting the retry")
	}
	if p.calls != 2 {
		t.Fatalf("expected exactly 2 calls, got %d", p.calls)
	}
}

func TestExtractHandlesCodeFencedJSON(t *testing.T) {
	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "```json\n[{\"text\":\"fenced fact\",\"message_id\":\"m1\",\"modality\":\"text\",\"confidence\":0.7}]\n```"},
	}
	e := New(p)

	got, err := e.Extract(context.Background(), []types.Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got) != 1 || got[0].Text != "fenced fact" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}
