// Package retriever implements Rook's hybrid retriever (component I): the
// four-mode pipeline that combines key-tier recall, vector search, keyword
// search, spreading activation, category boosting, reciprocal rank fusion,
// FSRS weighting, optional reranking, and deduplication.
package retriever

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rook-mem/rook/internal/activation"
	"github.com/rook-mem/rook/internal/fsrs"
	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/embeddings"
	"github.com/rook-mem/rook/pkg/types"
)

// Mode selects which stages of the pipeline run (§4.I).
type Mode string

const (
	Quick     Mode = "quick"
	Standard  Mode = "standard"
	Precise   Mode = "precise"
	Cognitive Mode = "cognitive"
)

// fusionWeights is the per-mode RRF weight table (Open Question iii).
type fusionWeights struct {
	Vector, Keyword, Activation float64
}

var modeWeights = map[Mode]fusionWeights{
	Quick:     {Vector: 1.0, Keyword: 0, Activation: 0},
	Standard:  {Vector: 1.0, Keyword: 0.8, Activation: 0.6},
	Precise:   {Vector: 1.0, Keyword: 0.8, Activation: 0.6},
	Cognitive: {Vector: 0.9, Keyword: 0.7, Activation: 0.9},
}

// Caps bounds the size of every intermediate stage (§6 configuration
// options).
type Caps struct {
	MaxKeyMemories int
	MaxSemantic    int
	MaxKeyword     int
	DedupThreshold float64
	RRFk           float64
	CategoryBoost  float64
}

// DefaultCaps returns Rook's default retrieval caps.
func DefaultCaps() Caps {
	return Caps{
		MaxKeyMemories: 15,
		MaxSemantic:    35,
		MaxKeyword:     35,
		DedupThreshold: 0.95,
		RRFk:           60,
		CategoryBoost:  1.2,
	}
}

// Query is a single retrieval request.
type Query struct {
	Scope      types.Scope
	Text       string
	Mode       Mode
	Limit      int
	Categories []memory.Category
}

// Retriever runs the hybrid pipeline against a set of capability stores.
type Retriever struct {
	vectors   memory.VectorStore
	keywords  memory.FullTextIndex
	graph     memory.GraphStore
	reranker  memory.Reranker
	embedder  embeddings.Provider
	caps      Caps
	fsrs      fsrs.Params
	activation activation.Params
	now       func() time.Time
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithCaps overrides the default retrieval caps.
func WithCaps(c Caps) Option { return func(r *Retriever) { r.caps = c } }

// WithFSRSParams overrides the scheduler parameters used for stage 7.
func WithFSRSParams(p fsrs.Params) Option { return func(r *Retriever) { r.fsrs = p } }

// WithActivationParams overrides the spreading-activation parameters used
// for stage 4.
func WithActivationParams(p activation.Params) Option {
	return func(r *Retriever) { r.activation = p }
}

// WithReranker attaches an optional reranker for Precise mode (stage 8).
func WithReranker(r2 memory.Reranker) Option { return func(r *Retriever) { r.reranker = r2 } }

// WithClock overrides the time source (tests only).
func WithClock(now func() time.Time) Option { return func(r *Retriever) { r.now = now } }

// New constructs a Retriever.
func New(vectors memory.VectorStore, keywords memory.FullTextIndex, graph memory.GraphStore, embedder embeddings.Provider, opts ...Option) *Retriever {
	r := &Retriever{
		vectors:    vectors,
		keywords:   keywords,
		graph:      graph,
		embedder:   embedder,
		caps:       DefaultCaps(),
		fsrs:       fsrs.DefaultParams(),
		activation: activation.DefaultParams(),
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// scored tracks a memory's signal breakdown through the pipeline.
type scored struct {
	id         string
	mem        *memory.Memory
	vectorRank int
	keywordRank int
	activationRank int
	hasVector, hasKeyword, hasActivation bool
	fused float64
}

// Result is one ranked memory returned to the caller.
type Result struct {
	Memory memory.Memory
	Score  float64
}

// Search runs q's pipeline and returns up to q.Limit results.
func (r *Retriever) Search(ctx context.Context, q Query) ([]Result, error) {
	weights, ok := modeWeights[q.Mode]
	if !ok {
		return nil, rookerr.New(rookerr.InvalidInput, "retriever: unknown mode")
	}
	scopeFilter := memory.ScopeFilter(q.Scope.Tenant, q.Scope.User, q.Scope.Agent, q.Scope.Session)
	now := r.now()

	keyResults, err := r.keyTier(ctx, scopeFilter)
	if err != nil {
		return nil, err
	}

	queryEmbedding, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, rookerr.Wrap(rookerr.ProviderError, "retriever: query embedding failed", err)
	}

	var vectorHits, keywordHits []memory.ScoredID
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.vectors.Search(gctx, queryEmbedding, r.caps.MaxSemantic, scopeFilter)
		if err != nil {
			return rookerr.Wrap(rookerr.StoreError, "retriever: vector search failed", err)
		}
		vectorHits = hits
		return nil
	})
	if weights.Keyword > 0 && r.keywords != nil {
		g.Go(func() error {
			hits, err := r.keywords.Query(gctx, tokenize(q.Text), r.caps.MaxKeyword)
			if err != nil {
				return rookerr.Wrap(rookerr.StoreError, "retriever: keyword search failed", err)
			}
			keywordHits = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := map[string]*scored{}
	assignRanks(candidates, vectorHits, func(s *scored, rank int) { s.hasVector = true; s.vectorRank = rank })
	assignRanks(candidates, keywordHits, func(s *scored, rank int) { s.hasKeyword = true; s.keywordRank = rank })

	var activationHits []memory.ScoredID
	if weights.Activation > 0 && r.graph != nil {
		seeds := make([]activation.Seed, 0, len(vectorHits)+len(keywordHits))
		for _, h := range vectorHits {
			seeds = append(seeds, activation.Seed{NodeID: h.ID, Activation: h.Score})
		}
		for _, h := range keywordHits {
			seeds = append(seeds, activation.Seed{NodeID: h.ID, Activation: h.Score})
		}
		nodeActivation, err := activation.Spread(ctx, r.graph, seeds, r.activation)
		if err != nil {
			return nil, err
		}
		activationHits = projectActivation(ctx, r.graph, nodeActivation)
		assignRanks(candidates, activationHits, func(s *scored, rank int) { s.hasActivation = true; s.activationRank = rank })
	}

	for id, c := range candidates {
		m, err := r.vectors.Get(ctx, id)
		if err != nil || m.IsDeleted() {
			delete(candidates, id)
			continue
		}
		c.mem = m
	}

	for _, c := range candidates {
		c.fused = rrf(weights, r.caps.RRFk, c)
		if hasCategoryOverlap(c.mem.Categories, q.Categories) {
			c.fused *= r.caps.CategoryBoost
		}
		retrievability := fsrs.CurrentRetrievability(c.mem.Strength, now, r.fsrs.Weights)
		c.fused *= fsrsWeight(q.Mode, retrievability, c.mem.Strength.RetrievalStrength)
	}

	results := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, *c)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].fused > results[j].fused })

	if q.Mode == Precise && r.reranker != nil {
		if err := r.rerank(ctx, q.Text, results); err != nil {
			return nil, err
		}
		sort.Slice(results, func(i, j int) bool { return results[i].fused > results[j].fused })
	}

	results = dedup(results, r.caps.DedupThreshold, now, r.fsrs.Weights)
	results = mergeKeyTier(keyResults, results)

	if q.Limit > 0 && len(results) > q.Limit {
		results = results[:q.Limit]
	}

	out := make([]Result, len(results))
	for i, s := range results {
		out[i] = Result{Memory: *s.mem, Score: s.fused}
	}
	return out, nil
}

func (r *Retriever) keyTier(ctx context.Context, scopeFilter memory.Filter) ([]scored, error) {
	filter := memory.And(scopeFilter, memory.Eq("is_key", true))
	hits, err := r.vectors.Search(ctx, nil, r.caps.MaxKeyMemories, filter)
	if err != nil {
		return nil, rookerr.Wrap(rookerr.StoreError, "retriever: key tier search failed", err)
	}
	out := make([]scored, 0, len(hits))
	for _, h := range hits {
		m, err := r.vectors.Get(ctx, h.ID)
		if err != nil {
			continue
		}
		out = append(out, scored{id: h.ID, mem: m, fused: 1})
	}
	return out, nil
}

func assignRanks(candidates map[string]*scored, hits []memory.ScoredID, mark func(*scored, int)) {
	for i, h := range hits {
		c, ok := candidates[h.ID]
		if !ok {
			c = &scored{id: h.ID}
			candidates[h.ID] = c
		}
		mark(c, i+1)
	}
}

func rrf(w fusionWeights, k float64, c *scored) float64 {
	var sum float64
	if c.hasVector {
		sum += w.Vector / (k + float64(c.vectorRank))
	}
	if c.hasKeyword {
		sum += w.Keyword / (k + float64(c.keywordRank))
	}
	if c.hasActivation {
		sum += w.Activation / (k + float64(c.activationRank))
	}
	return sum
}

func hasCategoryOverlap(have, want []memory.Category) bool {
	if len(want) == 0 {
		return false
	}
	set := make(map[memory.Category]struct{}, len(have))
	for _, c := range have {
		set[c] = struct{}{}
	}
	for _, c := range want {
		if _, ok := set[c]; ok {
			return true
		}
	}
	return false
}

// fsrsWeight scales the fused score by retrievability and retrieval
// strength; Cognitive mode weights the scheduler signal more heavily to
// foreground well-consolidated, easily-recalled memories.
func fsrsWeight(mode Mode, retrievability, retrievalStrength float64) float64 {
	base := 0.5 + 0.5*retrievability
	boost := 1 + 0.1*retrievalStrength
	if mode == Cognitive {
		return base * boost * 1.3
	}
	return base * boost
}

func (r *Retriever) rerank(ctx context.Context, query string, results []scored) error {
	topK := len(results)
	if topK == 0 {
		return nil
	}
	docs := make([]string, len(results))
	for i, s := range results {
		docs[i] = s.mem.Text
	}
	ranked, err := r.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		return rookerr.Wrap(rookerr.ProviderError, "retriever: rerank failed", err)
	}
	for rank, rr := range ranked {
		idx, err := strconv.Atoi(rr.ID)
		if err != nil || idx < 0 || idx >= len(results) {
			continue
		}
		results[idx].fused = 1.0 / float64(rank+1)
	}
	return nil
}

// dedup drops the lower-scored of any pair whose embeddings are at least
// dedupThreshold similar, keeping the newer memory on ties. is_key
// memories are exempted (handled separately by mergeKeyTier).
func dedup(results []scored, threshold float64, now time.Time, w fsrs.Weights) []scored {
	kept := make([]scored, 0, len(results))
	for _, candidate := range results {
		dominated := false
		for i, k := range kept {
			if cosine(candidate.mem.Embedding, k.mem.Embedding) < threshold {
				continue
			}
			if candidate.fused > k.fused || (candidate.fused == k.fused && candidate.mem.UpdatedAt.After(k.mem.UpdatedAt)) {
				kept[i] = candidate
			}
			dominated = true
			break
		}
		if !dominated {
			kept = append(kept, candidate)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].fused != kept[j].fused {
			return kept[i].fused > kept[j].fused
		}
		ri := fsrs.CurrentRetrievability(kept[i].mem.Strength, now, w)
		rj := fsrs.CurrentRetrievability(kept[j].mem.Strength, now, w)
		if ri != rj {
			return ri > rj
		}
		if !kept[i].mem.UpdatedAt.Equal(kept[j].mem.UpdatedAt) {
			return kept[i].mem.UpdatedAt.After(kept[j].mem.UpdatedAt)
		}
		return kept[i].id < kept[j].id
	})
	return kept
}

func mergeKeyTier(keyResults, rest []scored) []scored {
	keyIDs := make(map[string]struct{}, len(keyResults))
	for _, k := range keyResults {
		keyIDs[k.id] = struct{}{}
	}
	merged := make([]scored, 0, len(keyResults)+len(rest))
	merged = append(merged, keyResults...)
	for _, s := range rest {
		if _, isKey := keyIDs[s.id]; isKey {
			continue
		}
		merged = append(merged, s)
	}
	return merged
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

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

// projectActivation turns node-level activation into memory-level
// activation by walking the "mentions" edges each node receives from
// memories (see internal/graph), which point memory id -> node id.
func projectActivation(ctx context.Context, store memory.GraphStore, nodeActivation map[string]float64) []memory.ScoredID {
	memTotals := map[string]float64{}
	for nodeID, a := range nodeActivation {
		incoming, err := store.IncomingNeighbors(ctx, nodeID)
		if err != nil {
			continue
		}
		for _, in := range incoming {
			memTotals[in.ID] += a * in.Score
		}
	}
	out := make([]memory.ScoredID, 0, len(memTotals))
	for id, score := range memTotals {
		out = append(out, memory.ScoredID{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
