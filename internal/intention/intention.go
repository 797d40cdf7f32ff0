// Package intention implements Rook's intention engine (component K): a
// trigger registry checked against every inbound message using a tiered
// strategy — a bloom-filter prefilter for keyword triggers, with a full
// semantic pass over TopicDiscussed triggers every N messages.
package intention

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"

	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/embeddings"
)

// defaultFalsePositiveRate is the bloom filter's target false-positive rate.
const defaultFalsePositiveRate = 0.001

// defaultSemanticPassEvery is how often, in messages, the full semantic
// pass over TopicDiscussed triggers runs.
const defaultSemanticPassEvery = 10

// Message is one inbound unit of conversation evaluated against the
// registry.
type Message struct {
	Text      string
	UserID    string
	Channel   string
	Embedding []float32
	At        time.Time
}

// Params configures the intention engine.
type Params struct {
	FalsePositiveRate float64
	SemanticPassEvery int
}

// DefaultParams returns Rook's default intention-checking configuration.
func DefaultParams() Params {
	return Params{FalsePositiveRate: defaultFalsePositiveRate, SemanticPassEvery: defaultSemanticPassEvery}
}

// Registry holds standing intentions for a scope and evaluates them against
// inbound messages using the Tiered strategy (§4.K).
//
// All methods are safe for concurrent use.
type Registry struct {
	embedder embeddings.Provider
	params   Params

	mu          sync.RWMutex
	intentions  map[string]*memory.Intention
	filter      *bloom.BloomFilter
	messageSeen int
}

// New constructs an empty Registry.
func New(embedder embeddings.Provider, params Params) *Registry {
	if params.FalsePositiveRate <= 0 {
		params.FalsePositiveRate = defaultFalsePositiveRate
	}
	if params.SemanticPassEvery <= 0 {
		params.SemanticPassEvery = defaultSemanticPassEvery
	}
	return &Registry{
		embedder:   embedder,
		params:     params,
		intentions: make(map[string]*memory.Intention),
		filter:     bloom.NewWithEstimates(1024, params.FalsePositiveRate),
	}
}

// Register adds in to the registry and folds any keyword triggers it
// carries into the bloom prefilter.
func (r *Registry) Register(in memory.Intention) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intentions[in.ID] = &in
	r.rebuildFilterLocked()
}

// Unregister removes an intention by id.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.intentions, id)
	r.rebuildFilterLocked()
}

// rebuildFilterLocked recomputes the bloom filter from the tokens of every
// registered intention's keyword triggers, so a phrase keyword passes the
// prefilter when any of its tokens appears in the message. Must be called
// with r.mu held.
func (r *Registry) rebuildFilterLocked() {
	r.filter = bloom.NewWithEstimates(uint(len(r.intentions))*8+64, r.params.FalsePositiveRate)
	for _, in := range r.intentions {
		for _, kw := range in.Trigger.Keywords() {
			for _, tok := range tokenize(kw) {
				r.filter.Add([]byte(tok))
			}
		}
	}
}

// Fired is an intention whose trigger matched m.
type Fired struct {
	Intention memory.Intention
}

// Evaluate runs the Tiered strategy against m: a bloom-filter prefilter
// gates keyword-trigger evaluation on every message; a full semantic pass
// over TopicDiscussed triggers runs every SemanticPassEvery messages.
// Fired, fire_once intentions are marked fired; expired intentions are
// purged.
func (r *Registry) Evaluate(ctx context.Context, m Message) ([]Fired, error) {
	r.mu.Lock()
	r.messageSeen++
	runSemantic := r.messageSeen%r.params.SemanticPassEvery == 0
	candidateTokens := tokenize(m.Text)
	var hasBloomHit bool
	for _, tok := range candidateTokens {
		if r.filter.Test([]byte(tok)) {
			hasBloomHit = true
			break
		}
	}
	snapshot := make([]*memory.Intention, 0, len(r.intentions))
	for _, in := range r.intentions {
		snapshot = append(snapshot, in)
	}
	r.mu.Unlock()

	var queryEmbedding []float32
	if runSemantic && r.embedder != nil {
		emb, err := r.embedder.Embed(ctx, m.Text)
		if err != nil {
			return nil, rookerr.Wrap(rookerr.ProviderError, "intention: query embedding failed", err)
		}
		queryEmbedding = emb
	}

	var fired []Fired
	var toRemove []string
	var toMarkFired []string

	for _, in := range snapshot {
		if in.Expired(m.At) {
			toRemove = append(toRemove, in.ID)
			continue
		}
		if in.Fired {
			continue
		}

		needsSemantic := containsTopicTrigger(in.Trigger)
		if needsSemantic && !runSemantic {
			continue
		}
		if !needsSemantic && len(in.Trigger.Keywords()) > 0 && !hasBloomHit {
			continue
		}

		if evaluateTrigger(in.Trigger, m, queryEmbedding, in.CreatedAt) {
			fired = append(fired, Fired{Intention: *in})
			if in.FireOnce {
				toMarkFired = append(toMarkFired, in.ID)
			}
		}
	}

	if len(toRemove) > 0 || len(toMarkFired) > 0 {
		r.mu.Lock()
		for _, id := range toRemove {
			delete(r.intentions, id)
		}
		for _, id := range toMarkFired {
			if in, ok := r.intentions[id]; ok {
				in.Fired = true
			}
		}
		if len(toRemove) > 0 {
			r.rebuildFilterLocked()
		}
		r.mu.Unlock()
	}

	return fired, nil
}

// containsTopicTrigger reports whether t or any descendant is a
// TopicDiscussed leaf, which requires the semantic pass to evaluate.
func containsTopicTrigger(t memory.Trigger) bool {
	switch t.Kind {
	case memory.TriggerTopicDiscussed:
		return true
	case memory.TriggerAll, memory.TriggerAny:
		for _, c := range t.Children {
			if containsTopicTrigger(c) {
				return true
			}
		}
	}
	return false
}

// evaluateTrigger recursively evaluates t against m. createdAt is the
// owning intention's CreatedAt, the reference point for TimeElapsed.
func evaluateTrigger(t memory.Trigger, m Message, queryEmbedding []float32, createdAt time.Time) bool {
	switch t.Kind {
	case memory.TriggerKeywordMention:
		return strings.Contains(strings.ToLower(m.Text), strings.ToLower(t.Keyword))
	case memory.TriggerTopicDiscussed:
		if queryEmbedding == nil {
			return false
		}
		return cosine(queryEmbedding, m.Embedding) >= t.SimilarityThreshold
	case memory.TriggerTimeElapsed:
		return m.At.Sub(createdAt) >= t.Elapsed
	case memory.TriggerUserMentioned:
		return strings.EqualFold(m.UserID, t.UserID) || strings.Contains(m.Text, t.UserID)
	case memory.TriggerScheduledTime:
		return !m.At.Before(t.At)
	case memory.TriggerContextEntered:
		return m.Channel == t.Channel
	case memory.TriggerAll:
		for _, c := range t.Children {
			if !evaluateTrigger(c, m, queryEmbedding, createdAt) {
				return false
			}
		}
		return true
	case memory.TriggerAny:
		for _, c := range t.Children {
			if evaluateTrigger(c, m, queryEmbedding, createdAt) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
