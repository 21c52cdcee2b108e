// Package recommend builds a run's ranked recommendation list: filter the
// universe, score and rank candidates, apply constraints and the
// edge-over-cost admission gate, classify changes, and persist the result.
package recommend

import (
	"context"

	"github.com/stockmonitor/monthend/internal/contracts"
)

// Score is one candidate's factor output.
type Score struct {
	Symbol           string
	Composite        float64 // 0-100, drives ranking
	Confidence       float64 // 0-100
	ExpectedAlphaBps float64
	Drivers          []contracts.FactorDriver
	Rationale        string
}

// Scorer supplies factor scores for universe constituents. The real
// factor computation happens upstream; implementations here only fetch
// or approximate it.
type Scorer interface {
	Score(ctx context.Context, c *contracts.UniverseConstituent) (Score, error)
}

// StaticScorer assigns a flat score to every candidate. It stands in
// until precomputed factor scores are wired to a real source, keeping the
// pipeline exercisable end to end.
type StaticScorer struct {
	Composite        float64
	Confidence       float64
	ExpectedAlphaBps float64
}

// NewStaticScorer returns the default placeholder scorer.
func NewStaticScorer() *StaticScorer {
	return &StaticScorer{
		Composite:        50,
		Confidence:       75,
		ExpectedAlphaBps: 50,
	}
}

func (s *StaticScorer) Score(ctx context.Context, c *contracts.UniverseConstituent) (Score, error) {
	return Score{
		Symbol:           c.Symbol,
		Composite:        s.Composite,
		Confidence:       s.Confidence,
		ExpectedAlphaBps: s.ExpectedAlphaBps,
		Drivers: []contracts.FactorDriver{
			{Factor: "value", Contribution: s.Composite * 0.4},
			{Factor: "momentum", Contribution: s.Composite * 0.35},
			{Factor: "quality", Contribution: s.Composite * 0.25},
		},
		Rationale: "static placeholder score",
	}, nil
}
