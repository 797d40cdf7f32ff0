// Package consolidation implements Rook's consolidation engine (component
// J): synaptic tagging at ingestion time, behavioral tagging around novel
// events, and a periodic sweep that promotes storage_strength and runs
// archival.
package consolidation

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/rook-mem/rook/internal/fsrs"
	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
)

// defaultInterval is the default period between consolidation sweeps.
const defaultInterval = time.Hour

// Params configures the consolidation engine (§4.J).
type Params struct {
	// TagDecayTau is a time constant tau (not a half-life); tag strength
	// decays as exp(-elapsed/tau).
	TagDecayTau time.Duration

	// ConsolidationThreshold is the effective tag strength, after decay,
	// above which a sweep promotes storage_strength.
	ConsolidationThreshold float64

	// StorageStrengthGain is the capped amount storage_strength grows by
	// per promotion.
	StorageStrengthGain float64

	// BehavioralWindowBefore/After bound the wall-clock window around a
	// novel event within which memories receive a consolidation_score
	// boost.
	BehavioralWindowBefore time.Duration
	BehavioralWindowAfter  time.Duration

	// SweepInterval is how often the periodic sweep runs.
	SweepInterval time.Duration

	FSRS fsrs.Params
}

// DefaultParams returns Rook's default consolidation configuration.
func DefaultParams() Params {
	return Params{
		TagDecayTau:            60 * time.Minute,
		ConsolidationThreshold: 0.5,
		StorageStrengthGain:    0.15,
		BehavioralWindowBefore: 30 * time.Minute,
		BehavioralWindowAfter:  2 * time.Hour,
		SweepInterval:          defaultInterval,
		FSRS:                   fsrs.DefaultParams(),
	}
}

// Store is the subset of memory.VectorStore the engine needs, scoped down
// for easier mocking in tests; production code passes a memory.VectorStore.
type Store interface {
	Search(ctx context.Context, vector []float32, limit int, filter memory.Filter) ([]memory.ScoredID, error)
	Get(ctx context.Context, id string) (*memory.Memory, error)
	Update(ctx context.Context, id string, item memory.Memory) error
}

// Engine runs synaptic tagging, behavioral tagging, and the periodic sweep.
//
// All methods are safe for concurrent use.
type Engine struct {
	store  Store
	params Params
	log    *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once
}

// New constructs an Engine.
func New(store Store, params Params, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		store:  store,
		params: params,
		log:    log,
		now:    time.Now,
		done:   make(chan struct{}),
	}
}

// Tag applies an initial synaptic tag to a freshly ingested memory, scaled
// by the ingestion prediction error (higher surprise, stronger tag).
func Tag(m *memory.Memory, predictionError float64, at time.Time) {
	m.Consolidation.TaggedAt = at
	m.Consolidation.TagStrength = clamp01(predictionError)
}

// effectiveTagStrength returns a memory's current tag strength after
// exponential decay from TaggedAt to at.
func effectiveTagStrength(c memory.Consolidation, at time.Time, tau time.Duration) float64 {
	if c.TaggedAt.IsZero() || c.TagStrength == 0 {
		return 0
	}
	elapsed := at.Sub(c.TaggedAt)
	if elapsed < 0 {
		return c.TagStrength
	}
	return c.TagStrength * math.Exp(-elapsed.Seconds()/tau.Seconds())
}

// ApplyBehavioralTag boosts the consolidation_score of every non-deleted
// memory in scope whose created_at falls within the behavioral window
// around a novel event at eventTime, scaled by temporal proximity.
func (e *Engine) ApplyBehavioralTag(ctx context.Context, scopeFilter memory.Filter, eventTime time.Time) error {
	windowStart := eventTime.Add(-e.params.BehavioralWindowBefore)
	windowEnd := eventTime.Add(e.params.BehavioralWindowAfter)

	hits, err := e.store.Search(ctx, nil, 0, scopeFilter)
	if err != nil {
		return rookerr.Wrap(rookerr.StoreError, "consolidation: behavioral scan failed", err)
	}

	for _, h := range hits {
		m, err := e.store.Get(ctx, h.ID)
		if err != nil || m == nil || m.IsDeleted() {
			continue
		}
		if m.CreatedAt.Before(windowStart) || m.CreatedAt.After(windowEnd) {
			continue
		}
		proximity := temporalProximity(m.CreatedAt, eventTime, e.params.BehavioralWindowBefore, e.params.BehavioralWindowAfter)
		m.Consolidation.ConsolidationScore += proximity
		if err := e.store.Update(ctx, m.ID, *m); err != nil {
			e.log.Warn("behavioral tag update failed", "memory_id", m.ID, "error", err)
		}
	}
	return nil
}

// temporalProximity returns 1.0 at eventTime, decaying linearly to 0 at the
// window's edges.
func temporalProximity(createdAt, eventTime time.Time, before, after time.Duration) float64 {
	delta := createdAt.Sub(eventTime)
	if delta <= 0 {
		if before <= 0 {
			return 1
		}
		return clamp01(1 + float64(delta)/float64(before))
	}
	if after <= 0 {
		return 1
	}
	return clamp01(1 - float64(delta)/float64(after))
}

// Sweep runs one consolidation pass over every memory matching scopeFilter:
// tagged memories whose effective tag clears the consolidation threshold
// get a capped storage_strength promotion and have their tag cleared, and
// every non-key memory is checked for archival eligibility.
func (e *Engine) Sweep(ctx context.Context, scopeFilter memory.Filter) (promoted, archived int, err error) {
	at := e.now()
	hits, searchErr := e.store.Search(ctx, nil, 0, scopeFilter)
	if searchErr != nil {
		return 0, 0, rookerr.Wrap(rookerr.StoreError, "consolidation: sweep scan failed", searchErr)
	}

	for _, h := range hits {
		m, getErr := e.store.Get(ctx, h.ID)
		if getErr != nil || m == nil || m.IsDeleted() {
			continue
		}

		changed := false
		if eff := effectiveTagStrength(m.Consolidation, at, e.params.TagDecayTau); eff >= e.params.ConsolidationThreshold {
			m.Strength.StorageStrength += e.params.StorageStrengthGain
			m.Consolidation.TaggedAt = time.Time{}
			m.Consolidation.TagStrength = 0
			promoted++
			changed = true
		}

		if fsrs.ShouldArchive(*m, at, e.params.FSRS) {
			m.DeletedAt = at
			m.DeleteReason = "decay"
			archived++
			changed = true
		}

		if changed {
			if updErr := e.store.Update(ctx, m.ID, *m); updErr != nil {
				e.log.Warn("sweep update failed", "memory_id", m.ID, "error", updErr)
			}
		}
	}
	return promoted, archived, nil
}

// Start begins the periodic sweep loop in a background goroutine, scanning
// every scope matched by scopeFilter. The goroutine runs until Stop is
// called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context, scopeFilter memory.Filter) {
	go e.loop(ctx, scopeFilter)
}

// Stop halts the sweep loop. Safe to call multiple times.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.done) })
}

func (e *Engine) loop(ctx context.Context, scopeFilter memory.Filter) {
	interval := e.params.SweepInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			promoted, archived, err := e.Sweep(ctx, scopeFilter)
			e.mu.Unlock()
			if err != nil {
				e.log.Warn("periodic consolidation sweep failed", "error", err)
				continue
			}
			e.log.Info("consolidation sweep completed", "promoted", promoted, "archived", archived)
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
