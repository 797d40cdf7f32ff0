// Package fsrs implements Rook's strength scheduler (component C): the
// FSRS-6 power-law forgetting curve, grade-driven stability updates, and
// the dual retrieval/storage strength model that gates archival.
package fsrs

import (
	"math"
	"time"

	"github.com/rook-mem/rook/pkg/memory"
)

// Grade is the reviewer's assessment of a single recall, per the standard
// FSRS rating scale.
type Grade int

const (
	Again Grade = 1
	Hard  Grade = 2
	Good  Grade = 3
	Easy  Grade = 4
)

// Weights is the 21-element FSRS-6 parameter vector, indexed w[0]..w[20]
// to match the algorithm's published numbering (w₈, w₉, w₁₀, w₂₀, ...).
type Weights [21]float64

// DefaultWeights returns the FSRS-6 reference parameter vector. Deployments
// that have accumulated enough review history can fit and override this
// per user via configuration.
func DefaultWeights() Weights {
	return Weights{
		0.40255, 1.18385, 3.173, 15.69105, 7.1949, 0.5345, 1.4604, 0.0046,
		1.54575, 0.1192, 1.01925, 1.9395, 0.11, 0.29605, 2.2698, 0.2315,
		2.9898, 0.51655, 0.6621, 0.0124, 0.5, // w20
	}
}

// Params bundles the scheduler's tunables. Zero-value Params is invalid;
// use NewParams or DefaultParams.
type Params struct {
	Weights Weights

	// StorageDampingHalfLife is the storage_strength value at which a
	// retrieval_strength gain is halved (Open Question i).
	StorageDampingHalfLife float64

	// RetrievalStrengthCap bounds retrieval_strength from growing without
	// limit under repeated reviews.
	RetrievalStrengthCap float64

	// StorageStrengthGain is the base additive increment applied to
	// storage_strength on every successful (non-Again) review, itself
	// subject to diminishing returns as storage_strength grows.
	StorageStrengthGain float64

	// LapseStabilityFloor is the minimum stability assigned after an Again
	// grade, expressed as a fraction of pre-lapse stability.
	LapseStabilityFloor float64

	// ArchivalThreshold is the retrievability below which a non-key memory
	// becomes eligible for decay archival.
	ArchivalThreshold float64

	// MinAgeDays is the minimum age, in days since creation, before a
	// memory can be archived regardless of retrievability.
	MinAgeDays float64
}

// DefaultParams returns Rook's default scheduler configuration.
func DefaultParams() Params {
	return Params{
		Weights:                DefaultWeights(),
		StorageDampingHalfLife: 2.0,
		RetrievalStrengthCap:   10.0,
		StorageStrengthGain:    0.2,
		LapseStabilityFloor:    0.3,
		ArchivalThreshold:      0.1,
		MinAgeDays:             30,
	}
}

// w20 is the decay exponent, the 21st (index 20) weight.
func (w Weights) w20() float64 { return w[20] }

// forgettingFactor returns f in R(t,S) = (1 + f*t/S)^(-w20).
func (w Weights) forgettingFactor() float64 {
	return math.Pow(0.9, -1/w.w20()) - 1
}

// Retrievability returns R(t,S): the probability of successful recall after
// t days have elapsed since the review that produced stability S. t and S
// are both expressed in days; S must be strictly positive.
func Retrievability(t, s float64, w Weights) float64 {
	if s <= 0 {
		return 0
	}
	if t <= 0 {
		return 1
	}
	f := w.forgettingFactor()
	return math.Pow(1+f*t/s, -w.w20())
}

// gradeMultiplier returns m(G) in the stability update formula: 1 for
// Good, larger for Easy, smaller for Hard. Again does not use m(G) at all
// (it takes the lapse path).
func gradeMultiplier(g Grade, w Weights) float64 {
	switch g {
	case Hard:
		return w[15]
	case Good:
		return 1
	case Easy:
		return w[16]
	default:
		return 1
	}
}

// difficultyTarget returns the per-grade difficulty a review nudges D
// toward.
func difficultyTarget(g Grade, w Weights) float64 {
	// D_0(G) = w4 - (G-3)*w5, clamped to [1, 10].
	d := w[4] - float64(g-3)*w[5]
	return clamp(d, 1, 10)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Result is the outcome of applying a single review to a memory's strength
// state.
type Result struct {
	Strength memory.Strength
}

// Review applies grade g, observed at time now, to the current strength
// state s, returning the updated state. now should be the wall-clock time
// the review (retrieval or explicit feedback) occurred; elapsed time is
// computed against s.LastReviewed.
func Review(s memory.Strength, g Grade, now time.Time, p Params) memory.Strength {
	w := p.Weights

	if s.Stability <= 0 {
		s.Stability = 1
	}
	if s.Difficulty <= 0 {
		s.Difficulty = difficultyTarget(Good, w)
	}

	elapsedDays := 0.0
	if !s.LastReviewed.IsZero() {
		elapsedDays = now.Sub(s.LastReviewed).Hours() / 24
		if elapsedDays < 0 {
			elapsedDays = 0
		}
	}
	r := Retrievability(elapsedDays, s.Stability, w)

	out := s
	out.LastReviewed = now
	out.ReviewCount = s.ReviewCount + 1

	if g == Again {
		out.Stability = math.Max(s.Stability*p.LapseStabilityFloor, 0.1)
		out.Difficulty = clamp(s.Difficulty+w[6], 1, 10)
		// A lapse does not grow either strength signal.
		return out
	}

	m := gradeMultiplier(g, w)
	growth := w[8] * math.Exp(11-s.Difficulty) * math.Pow(s.Stability, -w[9]) * (math.Exp((1-r)*w[10]) - 1) * m
	out.Stability = s.Stability * (1 + growth)

	target := difficultyTarget(g, w)
	out.Difficulty = clamp(s.Difficulty+(target-s.Difficulty)*0.2, 1, 10)

	damping := 1 / (1 + s.StorageStrength/p.StorageDampingHalfLife)
	retrievalGain := gradeRetrievalGain(g) * damping
	out.RetrievalStrength = math.Min(s.RetrievalStrength+retrievalGain, p.RetrievalStrengthCap)

	storageGain := p.StorageStrengthGain / (1 + s.StorageStrength)
	out.StorageStrength = s.StorageStrength + storageGain

	return out
}

// gradeRetrievalGain is the un-damped retrieval_strength increment before
// the storage-strength paradox damping is applied.
func gradeRetrievalGain(g Grade) float64 {
	switch g {
	case Hard:
		return 0.3
	case Good:
		return 0.6
	case Easy:
		return 1.0
	default:
		return 0
	}
}

// CurrentRetrievability returns R at time `at` for a memory's current
// strength state, without applying a review.
func CurrentRetrievability(s memory.Strength, at time.Time, w Weights) float64 {
	if s.LastReviewed.IsZero() || s.Stability <= 0 {
		return 1
	}
	elapsedDays := at.Sub(s.LastReviewed).Hours() / 24
	if elapsedDays < 0 {
		elapsedDays = 0
	}
	return Retrievability(elapsedDays, s.Stability, w)
}

// ShouldArchive reports whether m is eligible for decay archival at time
// `at`: its retrievability has fallen below p.ArchivalThreshold, it has
// aged at least p.MinAgeDays since creation, and it is not marked IsKey.
func ShouldArchive(m memory.Memory, at time.Time, p Params) bool {
	if m.IsKey || m.IsDeleted() {
		return false
	}
	ageDays := at.Sub(m.CreatedAt).Hours() / 24
	if ageDays < p.MinAgeDays {
		return false
	}
	r := CurrentRetrievability(m.Strength, at, p.Weights)
	return r < p.ArchivalThreshold
}

// InitialStability returns the starting stability for a newly created
// memory, scaled up from baseStability by the ingestion gate's surprise
// boost (component F): 1 + predictionError*surpriseBoost.
func InitialStability(baseStability, predictionError, surpriseBoost float64) float64 {
	return baseStability * (1 + predictionError*surpriseBoost)
}
