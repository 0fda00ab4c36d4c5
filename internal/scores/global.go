package scores

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/api/schemas"
	"github.com/cdanielmachado/smetana/internal/community"
	"github.com/cdanielmachado/smetana/internal/environment"
	"github.com/cdanielmachado/smetana/internal/solver"
)

// GlobalCalculator computes the community-level scores: metabolic
// interaction potential (MIP) and metabolic resource overlap (MRO), both
// derived from minimal media.
type GlobalCalculator struct {
	Solver    solver.Solver
	Log       *zap.Logger
	MaxUptake float64
	MinGrowth float64
	// Excluded compounds stay closed at the community boundary no matter
	// the medium.
	Excluded map[string]bool
}

// GlobalResult carries the global scores of one community on one medium,
// plus the minimal media they were derived from.
type GlobalResult struct {
	MIP schemas.Score
	MRO schemas.Score

	// IndividualMedia maps each organism to its minimal medium, computed
	// with every other member knocked out. A nil entry with the organism in
	// NonGrowing means no medium sustains it.
	IndividualMedia map[string][]string
	// CommunityMedium is the minimal medium sustaining every member at
	// once, cooperation allowed. Nil when infeasible.
	CommunityMedium []string
	// PairwiseMRO holds the per-pair overlap ratios behind the MRO mean,
	// keyed symmetrically by organism id.
	PairwiseMRO map[string]map[string]float64
	// NonGrowing lists members with no feasible individual medium.
	NonGrowing []string
}

// Compute derives MIP and MRO for a community under a medium.
//
// MIP is the number of uptake compounds the members save by cooperating:
// the summed sizes of the individual minimal media minus the size of the
// community minimal medium. MRO is the mean pairwise overlap between
// individual minimal media, |A∩B| / min(|A|,|B|).
func (g *GlobalCalculator) Compute(ctx context.Context, com *community.Community, env *environment.Environment) (*GlobalResult, error) {
	p := com.Problem()
	// The boundary bound scales with community size; one member's limit
	// applies per organism, not per community.
	restore, err := env.Apply(p, com.Exchanges(), g.MaxUptake*float64(com.Size()), g.Excluded)
	if err != nil {
		return nil, fmt.Errorf("global scores: %w", err)
	}
	defer restore()

	res := &GlobalResult{
		MIP:             schemas.NA(),
		MRO:             schemas.NA(),
		IndividualMedia: make(map[string][]string, com.Size()),
		PairwiseMRO:     make(map[string]map[string]float64),
	}

	growing := make([]string, 0, com.Size())
	incomplete := false
	for _, org := range com.Organisms() {
		medium, status, err := g.individualMedium(ctx, com, env, org)
		switch status {
		case solver.StatusOptimal:
			res.IndividualMedia[org] = medium
			growing = append(growing, org)
		case solver.StatusError, solver.StatusTimeout:
			// Missing data, not a verdict on the organism; the run goes
			// on with what the other members yield.
			incomplete = true
			g.Log.Warn("individual minimal medium solve failed",
				zap.String("community", com.ID),
				zap.String("organism", org),
				zap.Stringer("status", status),
				zap.Error(err))
		default:
			res.NonGrowing = append(res.NonGrowing, org)
			g.Log.Warn("organism has no feasible minimal medium",
				zap.String("community", com.ID),
				zap.String("organism", org),
				zap.Stringer("status", status))
		}
	}

	g.computeMRO(res, growing)

	if len(res.NonGrowing) > 0 || incomplete {
		return res, nil
	}

	medium, status, err := g.communityMedium(ctx, com, env)
	if status != solver.StatusOptimal {
		g.Log.Warn("community minimal medium not solved",
			zap.String("community", com.ID),
			zap.Stringer("status", status),
			zap.Error(err))
		return res, nil
	}
	res.CommunityMedium = medium

	total := 0
	for _, org := range com.Organisms() {
		total += len(res.IndividualMedia[org])
	}
	res.MIP = schemas.NewScore(float64(total - len(medium)))
	return res, nil
}

// individualMedium finds one organism's minimal medium inside the merged
// model, with every other member knocked out.
func (g *GlobalCalculator) individualMedium(ctx context.Context, com *community.Community, env *environment.Environment, org string) ([]string, solver.Status, error) {
	p := com.Problem()
	scope := p.Begin()
	defer scope.Close()

	for _, other := range com.Organisms() {
		if other == org {
			continue
		}
		for _, rxn := range com.Reactions(other) {
			if err := scope.SetBounds(rxn, 0, 0); err != nil {
				return nil, solver.StatusError, fmt.Errorf("global scores: knock out %s: %w", other, err)
			}
		}
	}

	bio, err := com.BiomassVariable(org)
	if err != nil {
		return nil, solver.StatusError, err
	}
	q := MinimalMediumQuery{
		Candidates: uptakeCandidates(com, env, g.Excluded, org),
		Growth:     map[string]float64{bio: g.MinGrowth},
		MaxUptake:  g.MaxUptake,
	}
	return MinimalMedium(ctx, g.Solver, p, q)
}

// communityMedium finds the smallest medium on which every member reaches
// the growth floor simultaneously, cross-feeding allowed.
func (g *GlobalCalculator) communityMedium(ctx context.Context, com *community.Community, env *environment.Environment) ([]string, solver.Status, error) {
	floors := make(map[string]float64, com.Size())
	for _, org := range com.Organisms() {
		bio, err := com.BiomassVariable(org)
		if err != nil {
			return nil, solver.StatusError, err
		}
		floors[bio] = g.MinGrowth
	}
	q := MinimalMediumQuery{
		Candidates: uptakeCandidates(com, env, g.Excluded, ""),
		Growth:     floors,
		MaxUptake:  g.MaxUptake,
	}
	return MinimalMedium(ctx, g.Solver, com.Problem(), q)
}

func (g *GlobalCalculator) computeMRO(res *GlobalResult, growing []string) {
	sum, pairs := 0.0, 0
	for i := 0; i < len(growing); i++ {
		for j := i + 1; j < len(growing); j++ {
			a, b := growing[i], growing[j]
			ma, mb := res.IndividualMedia[a], res.IndividualMedia[b]
			smaller := len(ma)
			if len(mb) < smaller {
				smaller = len(mb)
			}
			if smaller == 0 {
				continue
			}
			overlap := 0
			inA := make(map[string]bool, len(ma))
			for _, c := range ma {
				inA[c] = true
			}
			for _, c := range mb {
				if inA[c] {
					overlap++
				}
			}
			ratio := float64(overlap) / float64(smaller)
			if res.PairwiseMRO[a] == nil {
				res.PairwiseMRO[a] = make(map[string]float64)
			}
			if res.PairwiseMRO[b] == nil {
				res.PairwiseMRO[b] = make(map[string]float64)
			}
			res.PairwiseMRO[a][b] = ratio
			res.PairwiseMRO[b][a] = ratio
			sum += ratio
			pairs++
		}
	}
	if pairs > 0 {
		res.MRO = schemas.NewScore(sum / float64(pairs))
	}
}

// uptakeCandidates lists the community exchange variables an organism (or,
// with org empty, any member) could draw from, filtered to the medium's
// compounds. Excluded compounds never become candidates; the search must
// not reopen them.
func uptakeCandidates(com *community.Community, env *environment.Environment, excluded map[string]bool, org string) []Candidate {
	var cands []Candidate
	seen := make(map[string]bool)
	orgs := com.Organisms()
	if org != "" {
		orgs = []string{org}
	}
	for _, o := range orgs {
		for _, b := range com.Shuttles(o) {
			if seen[b.Compound] || !env.Allows(b.Compound) || excluded[b.Compound] {
				continue
			}
			seen[b.Compound] = true
			cands = append(cands, Candidate{Compound: b.Compound, Variable: b.CommunityExchange})
		}
	}
	return cands
}
