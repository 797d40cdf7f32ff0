// Package extractor implements Rook's fact extractor (component D): turning
// a batch of raw messages into atomic fact candidates via a structured
// LanguageModel call.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/llm"
	"github.com/rook-mem/rook/pkg/types"
)

// Candidate is one atomic fact proposed by the extraction prompt, not yet
// run through the contradiction detector or ingestion gate.
type Candidate struct {
	Text       string
	MessageID  string
	Modality   memory.Modality
	Confidence float64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMinConfidence overrides the default extraction-confidence floor.
func WithMinConfidence(v float64) Option {
	return func(e *Extractor) { e.minConfidence = v }
}

// WithTimeout overrides the per-call LLM timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Extractor) { e.timeout = d }
}

// WithLogger overrides the default slog.Logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.log = l }
}

// Extractor turns raw message batches into fact Candidates.
type Extractor struct {
	model         llm.Provider
	minConfidence float64
	timeout       time.Duration
	log           *slog.Logger
}

// New constructs an Extractor backed by model.
func New(model llm.Provider, opts ...Option) *Extractor {
	e := &Extractor{
		model:         model,
		minConfidence: 0.4,
		timeout:       30 * time.Second,
		log:           slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

const systemPrompt = `You extract atomic, standalone facts worth remembering long-term from a conversation excerpt.

Respond with ONLY a JSON array, no surrounding prose. Each element has exactly these fields:
  "text": a self-contained factual statement (no pronouns without antecedents)
  "message_id": the id of the message this fact was drawn from
  "modality": one of "text", "document", "image", "audio"
  "confidence": a number in [0, 1] reflecting how clearly the source states this fact

Return an empty array if no durable facts are present.`

// rawCandidate mirrors the JSON shape requested of the model.
type rawCandidate struct {
	Text       string  `json:"text"`
	MessageID  string  `json:"message_id"`
	Modality   string  `json:"modality"`
	Confidence float64 `json:"confidence"`
}

// Extract runs the extraction prompt over messages and returns every
// candidate whose confidence clears minConfidence. A provider-error aborts
// the whole batch with rookerr.ProviderError; when the call's deadline
// expires the batch is dropped with a logged warning and Extract returns
// no candidates and no error. Malformed JSON is retried once with a
// corrective follow-up before being treated as a provider error.
func (e *Extractor) Extract(ctx context.Context, messages []types.Message) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Temperature:  0,
	}

	resp, err := e.model.Complete(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			e.log.Warn("extractor: language model call timed out, dropping batch", "error", err)
			return nil, nil
		}
		return nil, classifyErr(ctx, err)
	}

	raw, parseErr := parseCandidates(resp.Content)
	if parseErr != nil {
		e.log.Warn("extractor: malformed JSON from model, retrying once", "error", parseErr)
		resp, err = e.model.Complete(ctx, correctiveRequest(req, resp.Content, parseErr))
		if err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				e.log.Warn("extractor: language model call timed out, dropping batch", "error", err)
				return nil, nil
			}
			return nil, classifyErr(ctx, err)
		}
		raw, parseErr = parseCandidates(resp.Content)
		if parseErr != nil {
			return nil, rookerr.Wrap(rookerr.ProviderError, "extractor: model did not return valid JSON after retry", parseErr)
		}
	}

	out := make([]Candidate, 0, len(raw))
	for _, c := range raw {
		if c.Confidence < e.minConfidence {
			continue
		}
		out = append(out, Candidate{
			Text:       c.Text,
			MessageID:  c.MessageID,
			Modality:   memory.Modality(c.Modality),
			Confidence: c.Confidence,
		})
	}
	return out, nil
}

func classifyErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return rookerr.Wrap(rookerr.Timeout, "extractor: language model call timed out", err)
	}
	return rookerr.Wrap(rookerr.ProviderError, "extractor: language model call failed", err)
}

func parseCandidates(content string) ([]rawCandidate, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw []rawCandidate
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	return raw, nil
}

func correctiveRequest(orig llm.CompletionRequest, badOutput string, parseErr error) llm.CompletionRequest {
	corrective := orig
	corrective.Messages = append(append([]types.Message{}, orig.Messages...), types.Message{
		Role:    "assistant",
		Content: badOutput,
	}, types.Message{
		Role: "user",
		Content: fmt.Sprintf(
			"That response was not valid JSON (%v). Reply again with ONLY the JSON array described earlier, no prose, no code fences.",
			parseErr,
		),
	})
	return corrective
}
