// Package scores implements the community interaction metrics: the global
// medium-based scores (MIP, MRO) and the detailed per-interaction scores
// (SCS, MUS, MPS) combined into SMETANA values.
package scores

import (
	"context"
	"fmt"
	"sort"

	"github.com/cdanielmachado/smetana/internal/community"
	"github.com/cdanielmachado/smetana/internal/environment"
	"github.com/cdanielmachado/smetana/internal/solver"
)

// Candidate is one openable uptake route in a minimal-medium search: the
// flux variable whose negative direction imports Compound.
type Candidate struct {
	Compound string
	Variable string
}

// MinimalMediumQuery describes one minimal-medium MILP: which uptake routes
// may open, which growth variables must reach which floor, and optional
// per-compound objective weights.
type MinimalMediumQuery struct {
	Candidates []Candidate
	// Growth maps flux variables (organism biomass or community growth) to
	// the minimum value each must attain.
	Growth map[string]float64
	// MaxUptake caps the uptake rate of every opened candidate.
	MaxUptake float64
	// Weights gives the objective weight per compound; missing entries
	// weigh 1. Nil means uniform.
	Weights map[string]float64
}

// MinimalMedium solves for a minimum-cardinality (or minimum-weight) set of
// candidate compounds whose uptake sustains the required growth. Each
// candidate gets a binary indicator; a zero indicator forces its uptake
// closed. The problem is modified only within a scope that is fully undone
// before returning.
//
// The selected compounds are returned in candidate order. A non-optimal
// status (typically infeasible) is not an error; the caller decides what it
// means for the score at hand.
func MinimalMedium(ctx context.Context, s solver.Solver, p *solver.Problem, q MinimalMediumQuery) ([]string, solver.Status, error) {
	scope := p.Begin()
	defer scope.Close()

	obj := solver.Objective{
		Coeffs:   make(map[string]float64, len(q.Candidates)),
		Minimize: true,
	}
	for _, cand := range q.Candidates {
		_, ub, err := p.Bounds(cand.Variable)
		if err != nil {
			return nil, solver.StatusError, fmt.Errorf("minimal medium: %w", err)
		}
		if err := scope.SetBounds(cand.Variable, -q.MaxUptake, ub); err != nil {
			return nil, solver.StatusError, fmt.Errorf("minimal medium: %w", err)
		}
		ind := "ind:" + cand.Variable
		if err := scope.AddVariable(ind, 0, 1, solver.Binary); err != nil {
			return nil, solver.StatusError, fmt.Errorf("minimal medium: %w", err)
		}
		// Closed indicator means no uptake: v >= -MaxUptake*y.
		link := map[string]float64{cand.Variable: 1, ind: q.MaxUptake}
		if err := scope.AddConstraint("indlink:"+cand.Variable, link, solver.GreaterEq, 0); err != nil {
			return nil, solver.StatusError, fmt.Errorf("minimal medium: %w", err)
		}
		w := 1.0
		if q.Weights != nil {
			if ww, ok := q.Weights[cand.Compound]; ok {
				w = ww
			}
		}
		obj.Coeffs[ind] = w
	}

	for i, entry := range growthRows(q.Growth) {
		row := map[string]float64{entry.variable: 1}
		name := fmt.Sprintf("min_growth:%d", i)
		if err := scope.AddConstraint(name, row, solver.GreaterEq, entry.floor); err != nil {
			return nil, solver.StatusError, fmt.Errorf("minimal medium: %w", err)
		}
	}

	sol := s.Solve(ctx, p, obj)
	if sol.Status != solver.StatusOptimal {
		return nil, sol.Status, sol.Err
	}

	var selected []string
	for _, cand := range q.Candidates {
		if sol.Values["ind:"+cand.Variable] > 0.5 {
			selected = append(selected, cand.Compound)
		}
	}
	return selected, solver.StatusOptimal, nil
}

// MinimalEnvironment derives a medium for the community itself: starting
// from a complete environment, the smallest compound set on which every
// member reaches the growth floor, cross-feeding allowed. The returned
// environment is named after the reserved "minimal" medium.
func MinimalEnvironment(ctx context.Context, s solver.Solver, com *community.Community, maxUptake, minGrowth float64, excluded map[string]bool) (*environment.Environment, solver.Status, error) {
	p := com.Problem()
	restore, err := environment.Complete().Apply(p, com.Exchanges(), maxUptake*float64(com.Size()), excluded)
	if err != nil {
		return nil, solver.StatusError, fmt.Errorf("minimal environment: %w", err)
	}
	defer restore()

	floors := make(map[string]float64, com.Size())
	for _, org := range com.Organisms() {
		bio, err := com.BiomassVariable(org)
		if err != nil {
			return nil, solver.StatusError, err
		}
		floors[bio] = minGrowth
	}
	compounds, status, err := MinimalMedium(ctx, s, p, MinimalMediumQuery{
		Candidates: uptakeCandidates(com, environment.Complete(), excluded, ""),
		Growth:     floors,
		MaxUptake:  maxUptake,
	})
	if status != solver.StatusOptimal {
		return nil, status, err
	}
	return environment.FromCompounds(environment.MinimalName, compounds), solver.StatusOptimal, nil
}

type growthRow struct {
	variable string
	floor    float64
}

// growthRows orders the growth floor map deterministically so constraint
// names are stable across runs.
func growthRows(floors map[string]float64) []growthRow {
	rows := make([]growthRow, 0, len(floors))
	for v, f := range floors {
		rows = append(rows, growthRow{v, f})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].variable < rows[j].variable })
	return rows
}
