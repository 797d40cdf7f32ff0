// Package memory defines Rook's core data model — Memory, GraphNode,
// GraphEdge, Intention, VersionRecord — and the capability interfaces
// (VectorStore, GraphStore, Reranker, FullTextIndex, HistoryStore) that the
// engine components in internal/ are built against. None of these
// interfaces are implemented in this package; pkg/store/postgres provides a
// reference implementation and pkg/memory/mock provides in-memory
// implementations for tests.
package memory

import (
	"time"

	"github.com/rook-mem/rook/pkg/types"
)

// Modality classifies the originating medium of a Memory's content.
type Modality string

const (
	ModalityText     Modality = "text"
	ModalityDocument Modality = "document"
	ModalityImage    Modality = "image"
	ModalityAudio    Modality = "audio"
)

// Category is one of the default cognitive categories a Memory may be
// classified into. The taxonomy is configurable; these are the defaults.
type Category string

const (
	CategoryIdentity     Category = "identity"
	CategoryPreference   Category = "preference"
	CategoryRelationship Category = "relationship"
	CategoryGoal         Category = "goal"
	CategoryEvent        Category = "event"
	CategorySkill        Category = "skill"
	CategoryHealth       Category = "health"
	CategoryLocation     Category = "location"
	CategoryWork         Category = "work"
	CategoryOther        Category = "other"
)

// RelationKind enumerates the typed pointers a Memory may hold to other
// memories.
type RelationKind string

const (
	RelationContradicts RelationKind = "contradicts"
	RelationSupersedes  RelationKind = "supersedes"
	RelationElaborates  RelationKind = "elaborates"
	RelationRelatedTo   RelationKind = "related_to"
)

// MemoryRelation is a typed, directed pointer from one Memory to another.
type MemoryRelation struct {
	Kind     RelationKind
	TargetID string
}

// Provenance records where a Memory's content came from.
type Provenance struct {
	MessageID          string
	Channel             string
	ExtractionModel     string
	ExtractionConfidence float64
}

// Strength holds the FSRS-6 scheduling state for a Memory (component C).
type Strength struct {
	// Stability is the time horizon, in days, at which Retrievability = 0.9.
	Stability float64

	// Difficulty is the item's intrinsic hardness, in [1, 10].
	Difficulty float64

	// RetrievalStrength is a capped strength signal boosted by every
	// successful review: the scheduler adds a grade-dependent gain, damped
	// by StorageStrength, so growth is additive rather than multiplicative.
	RetrievalStrength float64

	// StorageStrength is an additive, diminishing-returns strength signal
	// that never decays. It does not enter the archival check, which uses
	// retrievability, age and IsKey.
	StorageStrength float64

	// LastReviewed is the timestamp retrievability is computed relative to.
	LastReviewed time.Time

	// ReviewCount is the number of grade-driven reviews applied so far.
	ReviewCount int
}

// Consolidation holds the synaptic/behavioral tagging state for a Memory
// (component J).
type Consolidation struct {
	// TaggedAt is zero if the memory currently carries no synaptic tag.
	TaggedAt time.Time

	// TagStrength decays exponentially toward zero from TaggedAt.
	TagStrength float64

	// ConsolidationScore accumulates behavioral-tagging boosts between
	// sweeps.
	ConsolidationScore float64
}

// Memory is Rook's primary entity: a single atomic fact with its
// embedding, classification, strength, and consolidation state.
type Memory struct {
	// ID is an opaque, globally unique identifier.
	ID string

	// Scope is the 4-tuple isolation boundary this memory belongs to.
	Scope types.Scope

	// Version increases by 1 on every content-changing update.
	Version int

	CreatedAt  time.Time
	UpdatedAt  time.Time
	AccessedAt time.Time
	AccessCount int

	// DeletedAt is the zero time unless this memory has been soft-deleted.
	DeletedAt time.Time
	// DeleteReason explains a soft-delete, e.g. "decay" or "superseded".
	DeleteReason string

	// Text is the canonical content.
	Text string
	// Embedding is the dense vector representation of Text.
	Embedding []float32
	// Keywords is the extracted token set used by the full-text path.
	Keywords []string
	Modality Modality
	Provenance Provenance

	Categories []Category
	// IsKey exempts this memory from archival and guarantees it is always
	// included in the key tier of every retrieval.
	IsKey bool

	Strength      Strength
	Consolidation Consolidation

	Relations []MemoryRelation
}

// IsDeleted reports whether m has been soft-deleted, i.e. DeletedAt is set.
func (m Memory) IsDeleted() bool {
	return !m.DeletedAt.IsZero()
}

// GraphNode is a knowledge-graph entity (component G).
type GraphNode struct {
	ID    string
	Scope types.Scope
	Name  string
	Type  NodeType
	// Embedding backs the type+similarity branch of entity-merge
	// resolution (FindSimilarNode) when name normalization alone does not
	// produce a match.
	Embedding []float32
	// Properties holds arbitrary extracted attributes (e.g. a person's
	// role, a location's region).
	Properties map[string]string
	// RefCount is the number of memories currently referencing this node
	// via an edge's provenance; used to reference-count node deletion.
	RefCount int
}

// NodeType enumerates the controlled vocabulary for GraphNode.Type.
type NodeType string

const (
	NodeTypePerson       NodeType = "person"
	NodeTypeOrganization NodeType = "organization"
	NodeTypeLocation     NodeType = "location"
	NodeTypeProject      NodeType = "project"
	NodeTypeConcept      NodeType = "concept"
	NodeTypeEvent        NodeType = "event"
	NodeTypeCategory     NodeType = "category"
)

// GraphEdge is a directed, weighted, typed connection between two
// GraphNodes, attributed to the memory that produced it.
type GraphEdge struct {
	ID            string
	Scope         types.Scope
	SourceNodeID  string
	TargetNodeID  string
	RelationType  string
	Weight        float64
	ProvenanceMemoryID string
}

// Intention is a standing condition the caller wants Rook to watch for
// (component K).
type Intention struct {
	ID        string
	Scope     types.Scope
	Content   string
	Trigger   Trigger
	CreatedAt time.Time
	// ExpiresAt is zero if the intention never expires.
	ExpiresAt time.Time
	FireOnce  bool
	Fired     bool
}

// Expired reports whether the intention has passed its expiry at time `at`.
func (in Intention) Expired(at time.Time) bool {
	return !in.ExpiresAt.IsZero() && at.After(in.ExpiresAt)
}

// VersionRecord is one append-only entry in a Memory's history log.
type VersionRecord struct {
	MemoryID string
	Version  int
	Text     string
	Metadata map[string]string
	ChangedAt time.Time
	Actor    string
}
