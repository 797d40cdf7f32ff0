// Package config provides the configuration schema, loader, and provider
// registry for Rook.
package config

import "time"

// Config is the root configuration structure for a Rook deployment.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	FSRS          FSRSConfig          `yaml:"fsrs"`
	Ingestion     IngestionConfig     `yaml:"ingestion"`
	Graph         GraphConfig         `yaml:"graph"`
	Activation    ActivationConfig    `yaml:"activation"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Consolidation ConsolidationConfig `yaml:"consolidation"`
	Intention     IntentionConfig     `yaml:"intention"`
	EventBus      EventBusConfig      `yaml:"event_bus"`
}

// ServerConfig holds process-wide settings for the Rook process.
type ServerConfig struct {
	// LogLevel controls verbosity. Valid values: "debug", "info", "warn", "error".
	LogLevel LogLevel `yaml:"log_level"`

	// ListenAddr is an HTTP listen address, e.g. ":8080"; an empty value is
	// defaulted to ":8080". rookd only logs it at startup: it serves MCP
	// over stdio and binds no HTTP listener.
	ListenAddr string `yaml:"listen_addr"`
}

// LogLevel is the controlled vocabulary for ServerConfig.LogLevel.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised log levels.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	}
	return false
}

// ProvidersConfig declares which provider implementation to use for each
// capability the core depends on. Each field selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`
	VectorDB   ProviderEntry `yaml:"vector_db"`
	GraphDB    ProviderEntry `yaml:"graph_db"`
	Reranker   ProviderEntry `yaml:"reranker"`
	FullText   ProviderEntry `yaml:"full_text"`

	// LLMFallbacks are tried in order whenever the primary LLM provider's
	// circuit breaker is open or a call to it fails. Leave empty to use the
	// primary with no failover.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the
// [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "postgres").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "text-embedding-3-small").
	Model string `yaml:"model"`

	// DSN is the connection string for store-backed providers (vector_db, graph_db).
	DSN string `yaml:"dsn"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// FSRSConfig configures the strength scheduler (component C).
type FSRSConfig struct {
	// Weights is the 21-element FSRS-6 parameter vector. Empty uses the
	// built-in reference vector.
	Weights []float64 `yaml:"weights"`

	StorageDampingHalfLife float64 `yaml:"storage_damping_half_life"`
	RetrievalStrengthCap   float64 `yaml:"retrieval_strength_cap"`
	StorageStrengthGain    float64 `yaml:"storage_strength_gain"`
	LapseStabilityFloor    float64 `yaml:"lapse_stability_floor"`
	ArchivalThreshold      float64 `yaml:"archival_threshold"`
	MinAgeDays             float64 `yaml:"min_age_days"`
}

// IngestionConfig configures the ingestion gate (component F).
type IngestionConfig struct {
	SkipSimilarity float64 `yaml:"skip_similarity"`
	MergeFloor     float64 `yaml:"merge_floor"`
	SurpriseBoost  float64 `yaml:"surprise_boost"`
	BaseStability  float64 `yaml:"base_stability"`
	TopK           int     `yaml:"top_k"`

	MinConfidence float64       `yaml:"min_confidence"`
	LLMTimeout    time.Duration `yaml:"llm_timeout"`
}

// GraphConfig configures the knowledge graph engine (component G).
type GraphConfig struct {
	MergeThreshold float64 `yaml:"merge_threshold"`
}

// ActivationConfig configures spreading activation (component H).
type ActivationConfig struct {
	DecayFactor     float64 `yaml:"decay_factor"`
	FiringThreshold float64 `yaml:"firing_threshold"`
	MaxDepth        int     `yaml:"max_depth"`
	NoiseSigma      float64 `yaml:"noise_sigma"`
}

// RetrievalConfig configures the hybrid retriever's caps (component I).
type RetrievalConfig struct {
	MaxKeyMemories int     `yaml:"max_key_memories"`
	MaxSemantic    int     `yaml:"max_semantic"`
	MaxKeyword     int     `yaml:"max_keyword"`
	MaxQueryChars  int     `yaml:"max_query_chars"`
	DedupThreshold float64 `yaml:"dedup_threshold"`
	RRFk           float64 `yaml:"rrf_k"`
	CategoryBoost  float64 `yaml:"category_boost"`
}

// ConsolidationConfig configures the consolidation engine (component J).
type ConsolidationConfig struct {
	TagDecayTau            time.Duration `yaml:"tag_decay_tau"`
	ConsolidationThreshold float64       `yaml:"consolidation_threshold"`
	StorageStrengthGain    float64       `yaml:"storage_strength_gain"`
	BehavioralWindowBefore time.Duration `yaml:"behavioral_window_before"`
	BehavioralWindowAfter  time.Duration `yaml:"behavioral_window_after"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
}

// IntentionConfig configures the intention engine (component K).
type IntentionConfig struct {
	FalsePositiveRate float64 `yaml:"false_positive_rate"`
	SemanticPassEvery int     `yaml:"semantic_pass_every"`
}

// EventBusConfig configures webhook delivery (component L).
type EventBusConfig struct {
	Webhooks []WebhookEntry `yaml:"webhooks"`
}

// WebhookEntry describes a single webhook subscription.
type WebhookEntry struct {
	URL         string        `yaml:"url"`
	Secret      string        `yaml:"secret"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}
