package scores

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cdanielmachado/smetana/internal/community"
	"github.com/cdanielmachado/smetana/internal/environment"
	"github.com/cdanielmachado/smetana/internal/model"
	"github.com/cdanielmachado/smetana/internal/solver"
)

// DetailedCalculator computes the per-interaction scores of one community
// on one medium: species coupling (SCS), metabolite uptake (MUS) and
// metabolite production (MPS). Each organism is processed by one worker on
// its own clone of the merged model.
type DetailedCalculator struct {
	Solver solver.Solver
	Log    *zap.Logger

	MaxUptake float64
	MinGrowth float64
	AbsTol    float64

	// Excluded compounds stay closed at the community boundary in both
	// directions, whatever the medium says.
	Excluded map[string]bool

	Trials       int
	Perturbation float64
	Seed         int64
	Workers      int

	// IgnoreCoupling skips the SCS computation; combined scores then use
	// only uptake and production.
	IgnoreCoupling bool
}

// DetailedResult holds the raw per-organism score maps. Outer-key presence
// marks the score as computed; organisms listed in NonGrowing have no
// entries at all.
type DetailedResult struct {
	Organisms  []string
	NonGrowing []string

	// SCS maps receiver -> donor -> coupling frequency.
	SCS map[string]map[string]float64
	// MUS maps receiver -> compound -> uptake frequency, with an entry for
	// every compound the receiver can import.
	MUS map[string]map[string]float64
	// MPS maps donor -> compound -> 0 or 1, with an entry for every
	// compound the donor could contribute to the pool.
	MPS map[string]map[string]float64
}

// Compute runs the full detailed scoring pass.
func (d *DetailedCalculator) Compute(ctx context.Context, com *community.Community, env *environment.Environment) (*DetailedResult, error) {
	res := &DetailedResult{
		Organisms: com.Organisms(),
		SCS:       make(map[string]map[string]float64),
		MUS:       make(map[string]map[string]float64),
		MPS:       make(map[string]map[string]float64),
	}

	growing, failed, err := d.growthScreen(ctx, com, env)
	if err != nil {
		return nil, err
	}
	for _, org := range com.Organisms() {
		switch {
		case failed[org]:
			// Missing data, not a growth verdict.
			d.Log.Warn("growth screen solve failed, scores will be n/a",
				zap.String("community", com.ID),
				zap.String("organism", org))
		case !growing[org]:
			res.NonGrowing = append(res.NonGrowing, org)
			d.Log.Warn("organism cannot reach growth floor, scores will be n/a",
				zap.String("community", com.ID),
				zap.String("organism", org))
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	g.SetLimit(workers)
	var mu sync.Mutex

	for _, org := range com.Organisms() {
		if !growing[org] {
			continue
		}
		org := org
		g.Go(func() error {
			clone := com.Clone()
			restore, err := env.Apply(clone.Problem(), clone.Exchanges(), d.MaxUptake*float64(com.Size()), d.Excluded)
			if err != nil {
				return fmt.Errorf("detailed scores: %w", err)
			}
			defer restore()

			var scs map[string]float64
			if !d.IgnoreCoupling {
				scs, err = d.receiverCoupling(gctx, clone, org)
				if err != nil {
					return err
				}
			}
			mus, err := d.receiverUptake(gctx, clone, org)
			if err != nil {
				return err
			}
			mps, err := d.donorProduction(gctx, clone, env, org)
			if err != nil {
				return err
			}

			if (!d.IgnoreCoupling && scs == nil) || mus == nil || mps == nil {
				d.Log.Warn("no feasible trials for some scores, reporting n/a",
					zap.String("community", com.ID),
					zap.String("organism", org))
			}

			mu.Lock()
			defer mu.Unlock()
			if scs != nil {
				res.SCS[org] = scs
			}
			if mus != nil {
				res.MUS[org] = mus
			}
			if mps != nil {
				res.MPS[org] = mps
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// growthScreen checks which members can individually reach the growth floor
// inside the community under the medium.
func (d *DetailedCalculator) growthScreen(ctx context.Context, com *community.Community, env *environment.Environment) (map[string]bool, map[string]bool, error) {
	p := com.Problem()
	restore, err := env.Apply(p, com.Exchanges(), d.MaxUptake*float64(com.Size()), d.Excluded)
	if err != nil {
		return nil, nil, fmt.Errorf("growth screen: %w", err)
	}
	defer restore()

	growing := make(map[string]bool, com.Size())
	failed := make(map[string]bool)
	for _, org := range com.Organisms() {
		bio, err := com.BiomassVariable(org)
		if err != nil {
			return nil, nil, err
		}
		sol := d.Solver.Solve(ctx, p, solver.Objective{Coeffs: map[string]float64{bio: 1}})
		switch sol.Status {
		case solver.StatusOptimal:
			growing[org] = sol.Objective+d.AbsTol >= d.MinGrowth
		case solver.StatusError, solver.StatusTimeout:
			failed[org] = true
		}
	}
	return growing, failed, nil
}

// receiverCoupling computes SCS for one receiver: across randomized trials,
// how often each other member must be present for the receiver to grow.
// Presence is a binary per donor that, when zero, forces every donor
// reaction to carry no flux.
func (d *DetailedCalculator) receiverCoupling(ctx context.Context, com *community.Community, receiver string) (map[string]float64, error) {
	p := com.Problem()
	scope := p.Begin()
	defer scope.Close()

	// No organism may demand growth a priori.
	for _, org := range com.Organisms() {
		bio, err := com.BiomassVariable(org)
		if err != nil {
			return nil, err
		}
		_, ub, err := p.Bounds(bio)
		if err != nil {
			return nil, err
		}
		if err := scope.SetBounds(bio, 0, ub); err != nil {
			return nil, err
		}
	}

	bioR, err := com.BiomassVariable(receiver)
	if err != nil {
		return nil, err
	}
	if err := scope.AddConstraint("scs_growth", map[string]float64{bioR: 1}, solver.GreaterEq, d.MinGrowth); err != nil {
		return nil, err
	}

	var donors []string
	for _, org := range com.Organisms() {
		if org == receiver {
			continue
		}
		donors = append(donors, org)
		bio, err := com.BiomassVariable(org)
		if err != nil {
			return nil, err
		}
		y := "don:" + org
		if err := scope.AddVariable(y, 0, 1, solver.Binary); err != nil {
			return nil, err
		}
		// The biomass reaction needs no tie of its own: with every other
		// donor flux forced to zero it cannot run.
		for _, rxn := range com.Reactions(org) {
			if rxn == bio {
				continue
			}
			lo := map[string]float64{rxn: 1, y: model.Unbounded}
			if err := scope.AddConstraint("don_lo:"+rxn, lo, solver.GreaterEq, 0); err != nil {
				return nil, err
			}
			hi := map[string]float64{rxn: 1, y: -model.Unbounded}
			if err := scope.AddConstraint("don_hi:"+rxn, hi, solver.LessEq, 0); err != nil {
				return nil, err
			}
		}
	}
	if len(donors) == 0 {
		return map[string]float64{}, nil
	}

	counts := make(map[string]int, len(donors))
	feasible := 0
	for trial := 0; trial < d.Trials; trial++ {
		rng := d.rng("scs", receiver, trial)
		obj := solver.Objective{Coeffs: make(map[string]float64, len(donors)), Minimize: true}
		for _, donor := range donors {
			obj.Coeffs["don:"+donor] = d.perturbed(rng)
		}
		sol := d.Solver.Solve(ctx, p, obj)
		if sol.Status != solver.StatusOptimal {
			if sol.Status == solver.StatusError || sol.Status == solver.StatusTimeout {
				d.Log.Warn("coupling trial discarded",
					zap.String("community", com.ID),
					zap.String("organism", receiver),
					zap.Int("trial", trial),
					zap.Stringer("status", sol.Status),
					zap.Error(sol.Err))
			}
			continue
		}
		feasible++
		for _, donor := range donors {
			if sol.Values["don:"+donor] > 0.5 {
				counts[donor]++
			}
		}
	}
	if feasible == 0 {
		return nil, nil
	}

	scores := make(map[string]float64, len(donors))
	for _, donor := range donors {
		scores[donor] = float64(counts[donor]) / float64(feasible)
	}
	return scores, nil
}

// receiverUptake computes MUS for one receiver: across randomized
// minimal-medium trials restricted to the receiver's own import routes, how
// often each compound is required.
func (d *DetailedCalculator) receiverUptake(ctx context.Context, com *community.Community, receiver string) (map[string]float64, error) {
	bio, err := com.BiomassVariable(receiver)
	if err != nil {
		return nil, err
	}
	shuttles := com.Shuttles(receiver)
	cands := make([]Candidate, 0, len(shuttles))
	for _, b := range shuttles {
		cands = append(cands, Candidate{Compound: b.Compound, Variable: b.Shuttle})
	}

	counts := make(map[string]int, len(cands))
	feasible := 0
	for trial := 0; trial < d.Trials; trial++ {
		rng := d.rng("mus", receiver, trial)
		weights := make(map[string]float64, len(cands))
		for _, c := range cands {
			weights[c.Compound] = d.perturbed(rng)
		}
		selected, status, err := MinimalMedium(ctx, d.Solver, com.Problem(), MinimalMediumQuery{
			Candidates: cands,
			Growth:     map[string]float64{bio: d.MinGrowth},
			MaxUptake:  d.MaxUptake,
			Weights:    weights,
		})
		if status != solver.StatusOptimal {
			if status == solver.StatusError || status == solver.StatusTimeout {
				d.Log.Warn("uptake trial discarded",
					zap.String("community", com.ID),
					zap.String("organism", receiver),
					zap.Int("trial", trial),
					zap.Stringer("status", status),
					zap.Error(err))
			}
			continue
		}
		feasible++
		for _, compound := range selected {
			counts[compound]++
		}
	}
	if feasible == 0 {
		return nil, nil
	}

	scores := make(map[string]float64, len(cands))
	for _, c := range cands {
		scores[c.Compound] = float64(counts[c.Compound]) / float64(feasible)
	}
	return scores, nil
}

// donorProduction computes MPS for one donor: which compounds it can
// secrete into the pool while growing, under the medium. Compounds the
// medium already supplies are not counted as production. Each trial
// repeatedly maximizes a randomly weighted sum of the unresolved secretion
// fluxes, peeling off everything secreted above tolerance, and settles the
// stragglers one by one.
func (d *DetailedCalculator) donorProduction(ctx context.Context, com *community.Community, env *environment.Environment, donor string) (map[string]float64, error) {
	bio, err := com.BiomassVariable(donor)
	if err != nil {
		return nil, err
	}

	var shuttles []community.Binding
	for _, b := range com.Shuttles(donor) {
		if !env.IsComplete() && env.Allows(b.Compound) {
			continue
		}
		shuttles = append(shuttles, b)
	}

	scores := make(map[string]float64, len(shuttles))
	for _, b := range shuttles {
		scores[b.Compound] = 0
	}

	p := com.Problem()
	scope := p.Begin()
	defer scope.Close()
	if err := scope.AddConstraint("mps_growth", map[string]float64{bio: 1}, solver.GreaterEq, d.MinGrowth); err != nil {
		return nil, err
	}

	solved := false
	discarded := 0
	for trial := 0; trial < d.Trials; trial++ {
		rng := d.rng("mps", donor, trial)
		remaining := make([]community.Binding, 0, len(shuttles))
		for _, b := range shuttles {
			if scores[b.Compound] == 0 {
				remaining = append(remaining, b)
			}
		}
		if len(remaining) == 0 {
			break
		}

		for len(remaining) > 0 {
			obj := solver.Objective{Coeffs: make(map[string]float64, len(remaining))}
			for _, b := range remaining {
				obj.Coeffs[b.Shuttle] = d.perturbed(rng)
			}
			sol := d.Solver.Solve(ctx, p, obj)
			if sol.Status == solver.StatusInfeasible || sol.Status == solver.StatusUnbounded {
				// Growth floor unreachable for the donor.
				return nil, nil
			}
			if sol.Status != solver.StatusOptimal {
				// Numerical failure; discard this trial only.
				discarded++
				d.Log.Warn("production trial discarded",
					zap.String("community", com.ID),
					zap.String("organism", donor),
					zap.Int("trial", trial),
					zap.Stringer("status", sol.Status),
					zap.Error(sol.Err))
				remaining = nil
				break
			}
			solved = true

			var rest []community.Binding
			for _, b := range remaining {
				if sol.Values[b.Shuttle] > d.AbsTol {
					scores[b.Compound] = 1
				} else {
					rest = append(rest, b)
				}
			}
			if len(rest) == len(remaining) {
				// Joint maximization stalled; settle each leftover alone.
				for _, b := range rest {
					one := d.Solver.Solve(ctx, p, solver.Objective{Coeffs: map[string]float64{b.Shuttle: 1}})
					if one.Status == solver.StatusOptimal && one.Objective > d.AbsTol {
						scores[b.Compound] = 1
					}
				}
				remaining = nil
				break
			}
			remaining = rest
		}
	}
	if !solved && discarded > 0 {
		return nil, nil
	}
	return scores, nil
}

// perturbed draws one objective weight from [1-p, 1+p].
func (d *DetailedCalculator) perturbed(rng *rand.Rand) float64 {
	if d.Perturbation <= 0 {
		return 1
	}
	return 1 - d.Perturbation + 2*d.Perturbation*rng.Float64()
}

// rng builds the deterministic random source of one trial, so results
// repeat for a fixed seed regardless of worker scheduling.
func (d *DetailedCalculator) rng(kind, org string, trial int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(org))
	base := int64(h.Sum64() & 0x7fffffffffffffff)
	return rand.New(rand.NewSource(d.Seed ^ base ^ int64(trial)*0x9e3779b9))
}
