package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per capability kind.
// Used by [Validate] to reject unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anyllm"},
	"embeddings": {"openai", "ollama"},
	"vector_db":  {"postgres"},
	"graph_db":   {"postgres"},
	"reranker":   {"none"},
	"full_text":  {"postgres", "none"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults for any
// unset numeric field, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in every zero-valued tunable with Rook's reference
// defaults, so a deployment only needs to override what it cares about.
func applyDefaults(cfg *Config) {
	if cfg.FSRS.StorageDampingHalfLife == 0 {
		cfg.FSRS.StorageDampingHalfLife = 2.0
	}
	if cfg.FSRS.RetrievalStrengthCap == 0 {
		cfg.FSRS.RetrievalStrengthCap = 10.0
	}
	if cfg.FSRS.StorageStrengthGain == 0 {
		cfg.FSRS.StorageStrengthGain = 0.2
	}
	if cfg.FSRS.LapseStabilityFloor == 0 {
		cfg.FSRS.LapseStabilityFloor = 0.3
	}
	if cfg.FSRS.ArchivalThreshold == 0 {
		cfg.FSRS.ArchivalThreshold = 0.1
	}
	if cfg.FSRS.MinAgeDays == 0 {
		cfg.FSRS.MinAgeDays = 30
	}

	if cfg.Ingestion.SkipSimilarity == 0 {
		cfg.Ingestion.SkipSimilarity = 0.95
	}
	if cfg.Ingestion.MergeFloor == 0 {
		cfg.Ingestion.MergeFloor = 0.80
	}
	if cfg.Ingestion.SurpriseBoost == 0 {
		cfg.Ingestion.SurpriseBoost = 0.5
	}
	if cfg.Ingestion.BaseStability == 0 {
		cfg.Ingestion.BaseStability = 1.0
	}
	if cfg.Ingestion.TopK == 0 {
		cfg.Ingestion.TopK = 5
	}
	if cfg.Ingestion.MinConfidence == 0 {
		cfg.Ingestion.MinConfidence = 0.4
	}
	if cfg.Ingestion.LLMTimeout == 0 {
		cfg.Ingestion.LLMTimeout = 30 * time.Second
	}

	if cfg.Graph.MergeThreshold == 0 {
		cfg.Graph.MergeThreshold = 0.7
	}

	if cfg.Activation.DecayFactor == 0 {
		cfg.Activation.DecayFactor = 0.8
	}
	if cfg.Activation.FiringThreshold == 0 {
		cfg.Activation.FiringThreshold = 0.1
	}
	if cfg.Activation.MaxDepth == 0 {
		cfg.Activation.MaxDepth = 3
	}

	if cfg.Retrieval.MaxKeyMemories == 0 {
		cfg.Retrieval.MaxKeyMemories = 15
	}
	if cfg.Retrieval.MaxSemantic == 0 {
		cfg.Retrieval.MaxSemantic = 35
	}
	if cfg.Retrieval.MaxKeyword == 0 {
		cfg.Retrieval.MaxKeyword = 35
	}
	if cfg.Retrieval.MaxQueryChars == 0 {
		cfg.Retrieval.MaxQueryChars = 2000
	}
	if cfg.Retrieval.DedupThreshold == 0 {
		cfg.Retrieval.DedupThreshold = 0.95
	}
	if cfg.Retrieval.RRFk == 0 {
		cfg.Retrieval.RRFk = 60
	}
	if cfg.Retrieval.CategoryBoost == 0 {
		cfg.Retrieval.CategoryBoost = 1.2
	}

	if cfg.Consolidation.TagDecayTau == 0 {
		cfg.Consolidation.TagDecayTau = 60 * time.Minute
	}
	if cfg.Consolidation.ConsolidationThreshold == 0 {
		cfg.Consolidation.ConsolidationThreshold = 0.5
	}
	if cfg.Consolidation.StorageStrengthGain == 0 {
		cfg.Consolidation.StorageStrengthGain = 0.15
	}
	if cfg.Consolidation.BehavioralWindowBefore == 0 {
		cfg.Consolidation.BehavioralWindowBefore = 30 * time.Minute
	}
	if cfg.Consolidation.BehavioralWindowAfter == 0 {
		cfg.Consolidation.BehavioralWindowAfter = 2 * time.Hour
	}
	if cfg.Consolidation.SweepInterval == 0 {
		cfg.Consolidation.SweepInterval = time.Hour
	}

	if cfg.Intention.FalsePositiveRate == 0 {
		cfg.Intention.FalsePositiveRate = 0.001
	}
	if cfg.Intention.SemanticPassEvery == 0 {
		cfg.Intention.SemanticPassEvery = 10
	}

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogLevelInfo
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if err := validateProviderName("llm", cfg.Providers.LLM.Name); err != nil {
		errs = append(errs, err)
	}
	for i, fb := range cfg.Providers.LLMFallbacks {
		if err := validateProviderName("llm", fb.Name); err != nil {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d]: %w", i, err))
		}
	}
	if err := validateProviderName("embeddings", cfg.Providers.Embeddings.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("vector_db", cfg.Providers.VectorDB.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("graph_db", cfg.Providers.GraphDB.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("reranker", cfg.Providers.Reranker.Name); err != nil {
		errs = append(errs, err)
	}
	if err := validateProviderName("full_text", cfg.Providers.FullText.Name); err != nil {
		errs = append(errs, err)
	}

	if cfg.Ingestion.SkipSimilarity <= cfg.Ingestion.MergeFloor {
		errs = append(errs, fmt.Errorf("ingestion.skip_similarity (%.3f) must be greater than ingestion.merge_floor (%.3f)",
			cfg.Ingestion.SkipSimilarity, cfg.Ingestion.MergeFloor))
	}
	if cfg.Ingestion.MinConfidence < 0 || cfg.Ingestion.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("ingestion.min_confidence (%.3f) must be in [0, 1]", cfg.Ingestion.MinConfidence))
	}

	if cfg.FSRS.ArchivalThreshold <= 0 || cfg.FSRS.ArchivalThreshold >= 1 {
		errs = append(errs, fmt.Errorf("fsrs.archival_threshold (%.3f) must be in (0, 1)", cfg.FSRS.ArchivalThreshold))
	}
	if cfg.FSRS.StorageDampingHalfLife <= 0 {
		errs = append(errs, fmt.Errorf("fsrs.storage_damping_half_life must be positive, got %.3f", cfg.FSRS.StorageDampingHalfLife))
	}
	if len(cfg.FSRS.Weights) != 0 && len(cfg.FSRS.Weights) != 21 {
		errs = append(errs, fmt.Errorf("fsrs.weights must have exactly 21 entries if set, got %d", len(cfg.FSRS.Weights)))
	}

	if cfg.Activation.DecayFactor <= 0 || cfg.Activation.DecayFactor > 1 {
		errs = append(errs, fmt.Errorf("activation.decay_factor (%.3f) must be in (0, 1]", cfg.Activation.DecayFactor))
	}
	if cfg.Activation.MaxDepth <= 0 {
		errs = append(errs, fmt.Errorf("activation.max_depth must be positive, got %d", cfg.Activation.MaxDepth))
	}

	if cfg.Retrieval.DedupThreshold <= 0 || cfg.Retrieval.DedupThreshold > 1 {
		errs = append(errs, fmt.Errorf("retrieval.dedup_threshold (%.3f) must be in (0, 1]", cfg.Retrieval.DedupThreshold))
	}

	if cfg.Consolidation.TagDecayTau <= 0 {
		errs = append(errs, fmt.Errorf("consolidation.tag_decay_tau must be positive"))
	}
	if cfg.Consolidation.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("consolidation.sweep_interval must be positive"))
	}

	if cfg.Intention.FalsePositiveRate <= 0 || cfg.Intention.FalsePositiveRate >= 1 {
		errs = append(errs, fmt.Errorf("intention.false_positive_rate (%.4f) must be in (0, 1)", cfg.Intention.FalsePositiveRate))
	}
	if cfg.Intention.SemanticPassEvery <= 0 {
		errs = append(errs, fmt.Errorf("intention.semantic_pass_every must be positive"))
	}

	for i, wh := range cfg.EventBus.Webhooks {
		prefix := fmt.Sprintf("event_bus.webhooks[%d]", i)
		if wh.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required", prefix))
		}
		if wh.MaxAttempts < 0 {
			errs = append(errs, fmt.Errorf("%s.max_attempts must not be negative", prefix))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName reports an error when name is set but not among the
// recognised provider names for kind. An empty name is not validated here;
// whether a provider is required at all is deployment-specific.
func validateProviderName(kind, name string) error {
	if name == "" {
		return nil
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return nil
	}
	if !slices.Contains(known, name) {
		return fmt.Errorf("providers.%s.name %q is not a recognised provider; known: %v", kind, name, known)
	}
	return nil
}
