// Package graph implements Rook's knowledge graph engine (component G):
// entity/edge extraction from accepted memories, merge resolution against
// existing nodes, and reference-counted cascade deletion.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
	"github.com/rook-mem/rook/pkg/provider/embeddings"
	"github.com/rook-mem/rook/pkg/provider/llm"
	"github.com/rook-mem/rook/pkg/types"
)

// Triple is one (subject, relation, object) fact extracted from a memory's
// text, prior to node resolution.
type Triple struct {
	Subject       string
	SubjectType   memory.NodeType
	Relation      string
	Object        string
	ObjectType    memory.NodeType
}

// extractionResult mirrors the JSON contract requested of the model.
type extractionResult struct {
	Triples []struct {
		Subject     string `json:"subject"`
		SubjectType string `json:"subject_type"`
		Relation    string `json:"relation"`
		Object      string `json:"object"`
		ObjectType  string `json:"object_type"`
	} `json:"triples"`
}

const extractionSystemPrompt = `Extract entity relationships from the statement as (subject, relation, object) triples.

Respond with ONLY JSON: {"triples": [{"subject": "...", "subject_type": "person|organization|location|project|concept|event|category", "relation": "...", "object": "...", "object_type": "..."}]}.
Return {"triples": []} if no clear entities/relations are present.`

// Option configures an Engine.
type Option func(*Engine)

// WithMergeThreshold overrides the default 0.7 embedding-similarity merge
// threshold used when name normalization does not resolve a match.
func WithMergeThreshold(v float64) Option {
	return func(e *Engine) { e.mergeThreshold = v }
}

// Engine runs entity/edge extraction and merge resolution against a
// memory.GraphStore.
type Engine struct {
	store          memory.GraphStore
	embedder       embeddings.Provider
	model          llm.Provider
	mergeThreshold float64
}

// New constructs an Engine.
func New(store memory.GraphStore, embedder embeddings.Provider, model llm.Provider, opts ...Option) *Engine {
	e := &Engine{store: store, embedder: embedder, model: model, mergeThreshold: 0.7}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractTriples runs the LLM entity-extraction pass over text.
func (e *Engine) ExtractTriples(ctx context.Context, text string) ([]Triple, error) {
	resp, err := e.model.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractionSystemPrompt,
		Messages:     []types.Message{{Role: "user", Content: text}},
		Temperature:  0,
	})
	if err != nil {
		return nil, rookerr.Wrap(rookerr.ProviderError, "graph: entity extraction failed", err)
	}

	content := strings.TrimSpace(resp.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var result extractionResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return nil, rookerr.Wrap(rookerr.ProviderError, "graph: entity extraction returned invalid JSON", err)
	}

	out := make([]Triple, 0, len(result.Triples))
	for _, t := range result.Triples {
		out = append(out, Triple{
			Subject:     t.Subject,
			SubjectType: memory.NodeType(t.SubjectType),
			Relation:    t.Relation,
			Object:      t.Object,
			ObjectType:  memory.NodeType(t.ObjectType),
		})
	}
	return out, nil
}

// Apply resolves every triple against existing nodes (creating new ones
// where no merge candidate clears the threshold), then records the edges
// attributing each to memoryID. It also attaches m to its Categories as
// memory->category edges.
func (e *Engine) Apply(ctx context.Context, scope types.Scope, memoryID string, triples []Triple, categories []memory.Category, now time.Time) error {
	for _, t := range triples {
		subjectID, err := e.resolveNode(ctx, scope, t.Subject, t.SubjectType)
		if err != nil {
			return err
		}
		objectID, err := e.resolveNode(ctx, scope, t.Object, t.ObjectType)
		if err != nil {
			return err
		}
		if err := e.store.AddEdge(ctx, memory.GraphEdge{
			ID:                  types.NewID(),
			Scope:               scope,
			SourceNodeID:        subjectID,
			TargetNodeID:        objectID,
			RelationType:        t.Relation,
			Weight:              1,
			ProvenanceMemoryID:  memoryID,
		}); err != nil {
			return rookerr.Wrap(rookerr.StoreError, "graph: add edge failed", err)
		}

		// "mentions" edges from the memory's pseudo-node to each entity it
		// touches let the retriever's spreading-activation stage seed from
		// (and project back onto) memories via IncomingNeighbors, without a
		// separate memory-to-node index.
		for _, entityID := range []string{subjectID, objectID} {
			if err := e.store.AddEdge(ctx, memory.GraphEdge{
				ID:                  types.NewID(),
				Scope:               scope,
				SourceNodeID:        memoryID,
				TargetNodeID:        entityID,
				RelationType:        "mentions",
				Weight:              1,
				ProvenanceMemoryID:  memoryID,
			}); err != nil {
				return rookerr.Wrap(rookerr.StoreError, "graph: add mention edge failed", err)
			}
		}
	}

	for _, cat := range categories {
		categoryNodeID, err := e.resolveNode(ctx, scope, string(cat), memory.NodeTypeCategory)
		if err != nil {
			return err
		}
		if err := e.store.AddEdge(ctx, memory.GraphEdge{
			ID:                  types.NewID(),
			Scope:               scope,
			SourceNodeID:        memoryID,
			TargetNodeID:        categoryNodeID,
			RelationType:        "belongs_to_category",
			Weight:              1,
			ProvenanceMemoryID:  memoryID,
		}); err != nil {
			return rookerr.Wrap(rookerr.StoreError, "graph: add category edge failed", err)
		}
	}
	return nil
}

// resolveNode returns the id of an existing node matching name/nodeType, or
// creates a new one. Merge tuning: the threshold passed to FindSimilarNode
// is widened for UUID-like identifiers (0.95+) and narrowed for ordinary
// natural-language names (0.6-0.7), per §4.G.
func (e *Engine) resolveNode(ctx context.Context, scope types.Scope, name string, nodeType memory.NodeType) (string, error) {
	threshold := e.mergeThreshold
	if looksLikeUUID(name) {
		threshold = 0.95
	}

	embedding, err := e.embedder.Embed(ctx, name)
	if err != nil {
		return "", rookerr.Wrap(rookerr.ProviderError, "graph: node embedding failed", err)
	}

	existing, err := e.store.FindSimilarNode(ctx, scope, name, nodeType, embedding, threshold)
	if err != nil {
		return "", rookerr.Wrap(rookerr.StoreError, "graph: find-similar-node failed", err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	node := memory.GraphNode{
		ID:        types.NewID(),
		Scope:     scope,
		Name:      name,
		Type:      nodeType,
		Embedding: embedding,
		RefCount:  0,
	}
	if err := e.store.AddNode(ctx, node); err != nil {
		return "", rookerr.Wrap(rookerr.StoreError, "graph: add node failed", err)
	}
	return node.ID, nil
}

func looksLikeUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	for i, c := range s {
		switch i {
		case 8, 13, 18, 23:
			if c != '-' {
				return false
			}
		default:
			if !isHex(byte(c)) {
				return false
			}
		}
	}
	return true
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

// DeleteByMemory removes the edges and any reference-count-zero nodes
// attributable to memoryID.
func (e *Engine) DeleteByMemory(ctx context.Context, memoryID string) error {
	if err := e.store.DeleteByMemory(ctx, memoryID); err != nil {
		return rookerr.Wrap(rookerr.StoreError, fmt.Sprintf("graph: cascade delete for memory %s failed", memoryID), err)
	}
	return nil
}
