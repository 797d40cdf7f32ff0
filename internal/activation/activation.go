// Package activation implements Rook's spreading activation algorithm
// (component H): a breadth-limited, synchronous propagation of activation
// over the knowledge graph, used by the hybrid retriever to surface
// memories connected to — but not directly matching — a query.
package activation

import (
	"context"
	"math"

	"github.com/rook-mem/rook/internal/rookerr"
	"github.com/rook-mem/rook/pkg/memory"
)

// Seed is a starting point for propagation: a graph node with its initial
// activation level.
type Seed struct {
	NodeID     string
	Activation float64
}

// Params configures the propagation (§4.H). Noise is omitted by default
// (Noise == nil) to keep the algorithm deterministic, per the spec's
// "deterministic under σ=0" property.
type Params struct {
	DecayFactor     float64
	FiringThreshold float64
	MaxDepth        int

	// Noise, if non-nil, is sampled once per node per step and added to its
	// activation. Tests that need determinism simply leave this nil.
	Noise func(nodeID string) float64

	// BaseLevel, if non-nil, adds an ACT-R base-level activation term to
	// every seed node before the first step; nodes first reached during
	// propagation do not receive it.
	BaseLevel func(nodeID string) float64
}

// DefaultParams returns Rook's default propagation configuration.
func DefaultParams() Params {
	return Params{
		DecayFactor:     0.8,
		FiringThreshold: 0.1,
		MaxDepth:        3,
	}
}

// Spread runs the breadth-limited propagation from seeds over store and
// returns the final activation map, keyed by node id.
func Spread(ctx context.Context, store memory.GraphStore, seeds []Seed, p Params) (map[string]float64, error) {
	activation := make(map[string]float64, len(seeds))
	for _, s := range seeds {
		activation[s.NodeID] += s.Activation
	}
	if p.BaseLevel != nil {
		for id := range activation {
			activation[id] += p.BaseLevel(id)
		}
	}

	for step := 0; step < p.MaxDepth; step++ {
		next := make(map[string]float64, len(activation))
		for id, a := range activation {
			next[id] += a
		}

		for id, a := range activation {
			if a < p.FiringThreshold {
				continue
			}
			neighbors, err := store.Neighbors(ctx, id)
			if err != nil {
				return nil, rookerr.Wrap(rookerr.StoreError, "activation: neighbor lookup failed", err)
			}
			for _, n := range neighbors {
				next[n.ID] += a * n.Score * p.DecayFactor
			}
		}

		if p.Noise != nil {
			for id := range next {
				next[id] += p.Noise(id)
			}
		}

		activation = next
	}

	return activation, nil
}

// Logistic returns a standard logistic(0, scale) sample given a uniform
// random draw u in (0,1), for callers that want to plug Params.Noise into
// a real RNG: logistic(0,σ) has CDF inverse σ·ln(u/(1-u)).
func Logistic(u, scale float64) float64 {
	if u <= 0 {
		u = 1e-9
	}
	if u >= 1 {
		u = 1 - 1e-9
	}
	return scale * math.Log(u/(1-u))
}

// ProjectToMemories accumulates node activation onto the memories that
// reference those nodes (via graph edges whose provenance is the memory),
// capping each memory's total at cap. memoryNodes maps a memory id to the
// node ids it touches, typically derived from the graph edges created for
// that memory during ingestion (component G).
func ProjectToMemories(activation map[string]float64, memoryNodes map[string][]string, cap float64) map[string]float64 {
	out := make(map[string]float64, len(memoryNodes))
	for memID, nodeIDs := range memoryNodes {
		var total float64
		for _, id := range nodeIDs {
			total += activation[id]
		}
		if total > cap {
			total = cap
		}
		out[memID] = total
	}
	return out
}
