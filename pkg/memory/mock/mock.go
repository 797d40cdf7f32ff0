// Package mock provides in-memory, functional implementations of every
// capability interface in pkg/memory: VectorStore, GraphStore,
// FullTextIndex, HistoryStore, and the optional Reranker. Unlike the
// call-recording mocks under pkg/provider/*/mock, these actually perform
// cosine-similarity search, filter evaluation, and graph traversal so that
// engine-level component tests exercise real behavior without a live
// Postgres backend.
//
// All types are safe for concurrent use.
package mock

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/types"
)

// VectorStore is an in-memory memory.VectorStore.
type VectorStore struct {
	mu    sync.RWMutex
	items map[string]memory.Memory
}

// NewVectorStore returns an empty VectorStore.
func NewVectorStore() *VectorStore {
	return &VectorStore{items: make(map[string]memory.Memory)}
}

var _ memory.VectorStore = (*VectorStore)(nil)

func (s *VectorStore) Insert(_ context.Context, items []memory.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range items {
		s.items[m.ID] = m
	}
	return nil
}

func (s *VectorStore) Get(_ context.Context, id string) (*memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.items[id]
	if !ok {
		return nil, rookerr.New(rookerr.NotFound, "memory "+id+" not found")
	}
	cp := m
	return &cp, nil
}

func (s *VectorStore) Update(_ context.Context, id string, item memory.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return rookerr.New(rookerr.NotFound, "memory "+id+" not found")
	}
	s.items[id] = item
	return nil
}

func (s *VectorStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

// Search ranks every non-deleted memory matching filter by cosine
// similarity to vector and returns up to limit results, highest first.
func (s *VectorStore) Search(_ context.Context, vector []float32, limit int, filter memory.Filter) ([]memory.ScoredID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var scored []memory.ScoredID
	for _, m := range s.items {
		if m.IsDeleted() {
			continue
		}
		if !Matches(m, filter) {
			continue
		}
		scored = append(scored, memory.ScoredID{ID: m.ID, Score: cosine(vector, m.Embedding)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// All returns every record currently stored, including soft-deleted ones.
// Test-only helper, not part of memory.VectorStore.
func (s *VectorStore) All() []memory.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]memory.Memory, 0, len(s.items))
	for _, m := range s.items {
		out = append(out, m)
	}
	return out
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

// Matches evaluates filter against m. It implements the subset of the
// filter DSL (§7) that the in-memory store needs for tests: scope fields,
// is_key, categories, id/ids, and the logical/comparison/collection
// operators composing them. Unrecognised fields are treated as absent
// (comparisons against an absent field always fail except Not(Exists)).
func Matches(m memory.Memory, f memory.Filter) bool {
	switch f.Op {
	case memory.OpAnd:
		for _, c := range f.Children {
			if !Matches(m, c) {
				return false
			}
		}
		return true
	case memory.OpOr:
		if len(f.Children) == 0 {
			return true
		}
		for _, c := range f.Children {
			if Matches(m, c) {
				return true
			}
		}
		return false
	case memory.OpNot:
		return !Matches(m, f.Children[0])
	}

	val, ok := fieldValue(m, f.Field)
	switch f.Op {
	case memory.OpIsNull:
		return !ok || val == nil
	case memory.OpIsNotNull:
		return ok && val != nil
	case memory.OpExists:
		return ok
	}
	if !ok {
		return false
	}

	switch f.Op {
	case memory.OpEq:
		return equal(val, f.Value)
	case memory.OpNe:
		return !equal(val, f.Value)
	case memory.OpContains:
		s, _ := val.(string)
		sub, _ := f.Value.(string)
		return strings.Contains(s, sub)
	case memory.OpIContains:
		s, _ := val.(string)
		sub, _ := f.Value.(string)
		return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
	case memory.OpIn:
		values, _ := f.Value.([]any)
		for _, v := range values {
			if equal(val, v) {
				return true
			}
		}
		return false
	case memory.OpGt, memory.OpGte, memory.OpLt, memory.OpLte:
		return compareOrdered(f.Op, val, f.Value)
	default:
		return false
	}
}

func fieldValue(m memory.Memory, field string) (any, bool) {
	switch field {
	case "scope.tenant":
		return m.Scope.Tenant, true
	case "scope.user":
		return m.Scope.User, true
	case "scope.agent":
		return m.Scope.Agent, true
	case "scope.session":
		return m.Scope.Session, true
	case "is_key":
		return m.IsKey, true
	case "id":
		return m.ID, true
	case "ids":
		return m.ID, true
	case "categories":
		for _, c := range m.Categories {
			return string(c), true
		}
		return nil, false
	case "created_at":
		return m.CreatedAt, true
	case "updated_at":
		return m.UpdatedAt, true
	case "accessed_at":
		return m.AccessedAt, true
	default:
		return nil, false
	}
}

func equal(a, b any) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		return a == b
	}
}

// compareOrdered implements gt/gte/lt/lte for the two ordered types the
// core filters on: time.Time fields and numeric literals.
func compareOrdered(op memory.FilterOp, a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		if !ok {
			return false
		}
		switch op {
		case memory.OpGt:
			return at.After(bt)
		case memory.OpGte:
			return at.After(bt) || at.Equal(bt)
		case memory.OpLt:
			return at.Before(bt)
		case memory.OpLte:
			return at.Before(bt) || at.Equal(bt)
		}
		return false
	}

	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if !aok || !bok {
		return false
	}
	switch op {
	case memory.OpGt:
		return af > bf
	case memory.OpGte:
		return af >= bf
	case memory.OpLt:
		return af < bf
	case memory.OpLte:
		return af <= bf
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// GraphStore is an in-memory memory.GraphStore.
type GraphStore struct {
	mu    sync.RWMutex
	nodes map[string]memory.GraphNode
	edges map[string]memory.GraphEdge
}

// NewGraphStore returns an empty GraphStore.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		nodes: make(map[string]memory.GraphNode),
		edges: make(map[string]memory.GraphEdge),
	}
}

var _ memory.GraphStore = (*GraphStore)(nil)

func (g *GraphStore) AddNode(_ context.Context, node memory.GraphNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[node.ID] = node
	return nil
}

func (g *GraphStore) AddEdge(_ context.Context, edge memory.GraphEdge) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[edge.ID] = edge
	if n, ok := g.nodes[edge.TargetNodeID]; ok {
		n.RefCount++
		g.nodes[edge.TargetNodeID] = n
	}
	return nil
}

// FindSimilarNode matches by normalized-name equality first; failing that,
// by same-type cosine similarity against threshold, highest scoring node
// wins. Returns nil, nil when nothing clears either bar.
func (g *GraphStore) FindSimilarNode(_ context.Context, scope types.Scope, name string, nodeType memory.NodeType, embedding []float32, threshold float64) (*memory.GraphNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	normalized := normalizeName(name)
	var best *memory.GraphNode
	var bestScore float64
	for _, n := range g.nodes {
		if !scope.Contains(n.Scope) && !n.Scope.Contains(scope) {
			continue
		}
		if normalizeName(n.Name) == normalized {
			cp := n
			return &cp, nil
		}
		if n.Type != nodeType {
			continue
		}
		score := cosine(embedding, n.Embedding)
		if score >= threshold && score > bestScore {
			cp := n
			best = &cp
			bestScore = score
		}
	}
	return best, nil
}

func normalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (g *GraphStore) GetNode(_ context.Context, id string) (*memory.GraphNode, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return nil, rookerr.New(rookerr.NotFound, "node "+id+" not found")
	}
	cp := n
	return &cp, nil
}

func (g *GraphStore) Neighbors(_ context.Context, id string) ([]memory.ScoredID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []memory.ScoredID
	for _, e := range g.edges {
		if e.SourceNodeID == id {
			out = append(out, memory.ScoredID{ID: e.TargetNodeID, Score: e.Weight})
		}
	}
	return out, nil
}

func (g *GraphStore) IncomingNeighbors(_ context.Context, id string) ([]memory.ScoredID, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []memory.ScoredID
	for _, e := range g.edges {
		if e.TargetNodeID == id {
			out = append(out, memory.ScoredID{ID: e.SourceNodeID, Score: e.Weight})
		}
	}
	return out, nil
}

// DeleteByMemory removes every edge provenanced by memoryID, decrements the
// reference count of each edge's target node, and garbage-collects any node
// whose count reaches zero.
func (g *GraphStore) DeleteByMemory(_ context.Context, memoryID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for id, e := range g.edges {
		if e.ProvenanceMemoryID != memoryID {
			continue
		}
		delete(g.edges, id)
		if n, ok := g.nodes[e.TargetNodeID]; ok {
			n.RefCount--
			if n.RefCount <= 0 {
				delete(g.nodes, e.TargetNodeID)
			} else {
				g.nodes[e.TargetNodeID] = n
			}
		}
	}
	return nil
}

// FullTextIndex is an in-memory memory.FullTextIndex using term-overlap
// scoring (shared token count) in place of a real BM25 ranking function.
type FullTextIndex struct {
	mu     sync.RWMutex
	tokens map[string][]string
}

// NewFullTextIndex returns an empty FullTextIndex.
func NewFullTextIndex() *FullTextIndex {
	return &FullTextIndex{tokens: make(map[string][]string)}
}

var _ memory.FullTextIndex = (*FullTextIndex)(nil)

func (f *FullTextIndex) Index(_ context.Context, id string, tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[id] = tokens
	return nil
}

func (f *FullTextIndex) Query(_ context.Context, tokens []string, limit int) ([]memory.ScoredID, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	query := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		query[strings.ToLower(t)] = struct{}{}
	}

	var scored []memory.ScoredID
	for id, doc := range f.tokens {
		var hits int
		for _, t := range doc {
			if _, ok := query[strings.ToLower(t)]; ok {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		scored = append(scored, memory.ScoredID{ID: id, Score: float64(hits)})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// HistoryStore is an in-memory, append-only memory.HistoryStore.
type HistoryStore struct {
	mu      sync.RWMutex
	records map[string][]memory.VersionRecord
}

// NewHistoryStore returns an empty HistoryStore.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{records: make(map[string][]memory.VersionRecord)}
}

var _ memory.HistoryStore = (*HistoryStore)(nil)

func (h *HistoryStore) Append(_ context.Context, record memory.VersionRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records[record.MemoryID] = append(h.records[record.MemoryID], record)
	return nil
}

func (h *HistoryStore) History(_ context.Context, memoryID string) ([]memory.VersionRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]memory.VersionRecord, len(h.records[memoryID]))
	copy(out, h.records[memoryID])
	return out, nil
}

// Reranker is an in-memory memory.Reranker that scores docs by token
// overlap with query, standing in for a real cross-encoder model in tests.
type Reranker struct{}

// NewReranker returns a token-overlap Reranker.
func NewReranker() *Reranker { return &Reranker{} }

var _ memory.Reranker = (*Reranker)(nil)

func (r *Reranker) Rerank(_ context.Context, query string, docs []string, topK int) ([]memory.ScoredID, error) {
	qtoks := tokenSet(query)

	scored := make([]memory.ScoredID, len(docs))
	for i, d := range docs {
		dtoks := tokenSet(d)
		var overlap int
		for t := range qtoks {
			if _, ok := dtoks[t]; ok {
				overlap++
			}
		}
		denom := len(qtoks) + len(dtoks) - overlap
		score := 0.0
		if denom > 0 {
			score = float64(overlap) / float64(denom)
		}
		scored[i] = memory.ScoredID{ID: strconv.Itoa(i), Score: score}
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[f] = struct{}{}
	}
	return out
}
