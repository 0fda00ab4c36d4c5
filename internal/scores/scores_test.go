package scores

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/internal/community"
	"github.com/cdanielmachado/smetana/internal/environment"
	"github.com/cdanielmachado/smetana/internal/model"
	"github.com/cdanielmachado/smetana/internal/solver"
	"github.com/cdanielmachado/smetana/internal/testutil"
)

func crossFeedingPair(t *testing.T) *community.Community {
	t.Helper()
	com, err := community.Build("pair", []*model.Model{
		testutil.Auxotroph("a", "aa1", "aa2"),
		testutil.Auxotroph("b", "aa2", "aa1"),
	}, community.Options{})
	require.NoError(t, err)
	return com
}

func globalCalc() *GlobalCalculator {
	return &GlobalCalculator{
		Solver:    solver.NewGonum(),
		Log:       zap.NewNop(),
		MaxUptake: 10,
		MinGrowth: 0.1,
	}
}

func detailedCalc() *DetailedCalculator {
	return &DetailedCalculator{
		Solver:       solver.NewGonum(),
		Log:          zap.NewNop(),
		MaxUptake:    10,
		MinGrowth:    0.1,
		AbsTol:       1e-6,
		Trials:       5,
		Perturbation: 0.5,
		Seed:         1,
		Workers:      2,
	}
}

func TestMinimalMediumCrossFeedingPair(t *testing.T) {
	com := crossFeedingPair(t)
	p := com.Problem()
	restore, err := environment.Complete().Apply(p, com.Exchanges(), 10, nil)
	require.NoError(t, err)
	defer restore()

	before := p.Snapshot()
	var cands []Candidate
	for compound, v := range com.Exchanges() {
		cands = append(cands, Candidate{Compound: compound, Variable: v})
	}
	bioA, err := com.BiomassVariable("a")
	require.NoError(t, err)
	bioB, err := com.BiomassVariable("b")
	require.NoError(t, err)

	selected, status, err := MinimalMedium(context.Background(), solver.NewGonum(), p, MinimalMediumQuery{
		Candidates: cands,
		Growth:     map[string]float64{bioA: 0.1, bioB: 0.1},
		MaxUptake:  10,
	})
	require.NoError(t, err)
	require.Equal(t, solver.StatusOptimal, status)

	// Cross-feeding covers both amino acids; only glucose comes from the
	// medium.
	assert.Equal(t, []string{"glc_e"}, selected)

	if diff := cmp.Diff(before, p.Snapshot()); diff != "" {
		t.Errorf("problem not restored (-before +after):\n%s", diff)
	}
}

func TestGlobalScoresCrossFeedingPair(t *testing.T) {
	res, err := globalCalc().Compute(context.Background(), crossFeedingPair(t), environment.Complete())
	require.NoError(t, err)

	require.Empty(t, res.NonGrowing)
	assert.ElementsMatch(t, []string{"glc_e", "aa2_e"}, res.IndividualMedia["a"])
	assert.ElementsMatch(t, []string{"glc_e", "aa1_e"}, res.IndividualMedia["b"])
	assert.Equal(t, []string{"glc_e"}, res.CommunityMedium)

	// Together the pair saves both amino acid requirements and shares the
	// glucose requirement.
	require.True(t, res.MIP.Valid)
	assert.Equal(t, 3.0, res.MIP.Value)

	// One shared compound out of two per medium.
	require.True(t, res.MRO.Valid)
	assert.InDelta(t, 0.5, res.MRO.Value, 1e-9)
	assert.InDelta(t, 0.5, res.PairwiseMRO["a"]["b"], 1e-9)
	assert.InDelta(t, 0.5, res.PairwiseMRO["b"]["a"], 1e-9)
}

func TestGlobalScoresIdenticalRequirements(t *testing.T) {
	com, err := community.Build("twins", []*model.Model{
		testutil.Prototroph("a", "glc", "nh4"),
		testutil.Prototroph("b", "glc", "nh4"),
	}, community.Options{})
	require.NoError(t, err)

	res, err := globalCalc().Compute(context.Background(), com, environment.Complete())
	require.NoError(t, err)

	require.True(t, res.MRO.Valid)
	assert.Equal(t, 1.0, res.MRO.Value)
	require.True(t, res.MIP.Valid)
	assert.Equal(t, 2.0, res.MIP.Value)
}

func TestGlobalScoresDisjointRequirements(t *testing.T) {
	com, err := community.Build("disjoint", []*model.Model{
		testutil.Prototroph("a", "n1"),
		testutil.Prototroph("b", "n2"),
	}, community.Options{})
	require.NoError(t, err)

	res, err := globalCalc().Compute(context.Background(), com, environment.Complete())
	require.NoError(t, err)

	require.True(t, res.MRO.Valid)
	assert.Equal(t, 0.0, res.MRO.Value)
	require.True(t, res.MIP.Valid)
	assert.Equal(t, 0.0, res.MIP.Value)
}

func TestGlobalScoresNonGrowingMember(t *testing.T) {
	com, err := community.Build("broken", []*model.Model{
		testutil.Prototroph("a", "glc"),
		testutil.NonGrower("dead"),
	}, community.Options{})
	require.NoError(t, err)

	res, err := globalCalc().Compute(context.Background(), com, environment.Complete())
	require.NoError(t, err)

	assert.Equal(t, []string{"dead"}, res.NonGrowing)
	assert.False(t, res.MIP.Valid)
	assert.False(t, res.MRO.Valid)
	assert.Nil(t, res.CommunityMedium)
}

func TestDetailedScoresCrossFeedingPair(t *testing.T) {
	com := crossFeedingPair(t)
	env := environment.FromCompounds("glucose", []string{"glc_e"})

	res, err := detailedCalc().Compute(context.Background(), com, env)
	require.NoError(t, err)
	require.Empty(t, res.NonGrowing)

	// Each member strictly requires the other.
	assert.Equal(t, 1.0, res.SCS["a"]["b"])
	assert.Equal(t, 1.0, res.SCS["b"]["a"])

	// Glucose and the missing amino acid are always taken up; the
	// self-made one never is.
	assert.Equal(t, 1.0, res.MUS["a"]["glc_e"])
	assert.Equal(t, 1.0, res.MUS["a"]["aa2_e"])
	assert.Equal(t, 0.0, res.MUS["a"]["aa1_e"])
	assert.Equal(t, 1.0, res.MUS["b"]["aa1_e"])

	// Each member can secrete what it synthesizes but not what it only
	// consumes; the medium compound is not counted.
	assert.Equal(t, map[string]float64{"aa1_e": 1, "aa2_e": 0}, res.MPS["a"])
	assert.Equal(t, map[string]float64{"aa1_e": 0, "aa2_e": 1}, res.MPS["b"])
}

// flakySolver fails its first n solves with a backend error and delegates
// the rest. n < 0 fails every solve.
type flakySolver struct {
	inner solver.Solver
	fail  int
}

func (f *flakySolver) Solve(ctx context.Context, p *solver.Problem, obj solver.Objective) solver.Solution {
	if f.fail != 0 {
		if f.fail > 0 {
			f.fail--
		}
		return solver.Solution{Status: solver.StatusError, Err: errors.New("singular basis")}
	}
	return f.inner.Solve(ctx, p, obj)
}

func TestGlobalScoresSolverFailureIsMissingData(t *testing.T) {
	com := crossFeedingPair(t)
	calc := globalCalc()
	calc.Solver = &flakySolver{inner: solver.NewGonum(), fail: -1}

	res, err := calc.Compute(context.Background(), com, environment.Complete())
	require.NoError(t, err)

	// A backend failure is missing data, not a growth verdict.
	assert.Empty(t, res.NonGrowing)
	assert.False(t, res.MIP.Valid)
	assert.False(t, res.MRO.Valid)
}

func TestDonorProductionDiscardsFailedTrials(t *testing.T) {
	com := crossFeedingPair(t)
	env := environment.FromCompounds("glucose", []string{"glc_e"})
	restore, err := env.Apply(com.Problem(), com.Exchanges(), 20, nil)
	require.NoError(t, err)
	defer restore()

	calc := detailedCalc()
	calc.Solver = &flakySolver{inner: solver.NewGonum(), fail: 1}

	mps, err := calc.donorProduction(context.Background(), com, env, "b")
	require.NoError(t, err)
	require.NotNil(t, mps)
	assert.Equal(t, map[string]float64{"aa1_e": 0, "aa2_e": 1}, mps)
}

func TestAggregateCrossFeedingPair(t *testing.T) {
	com := crossFeedingPair(t)
	env := environment.FromCompounds("glucose", []string{"glc_e"})

	res, err := detailedCalc().Compute(context.Background(), com, env)
	require.NoError(t, err)

	records := Aggregate(com, res, "glucose", AggregateOptions{})
	require.Len(t, records, 2)

	byReceiver := make(map[string]int)
	for i, rec := range records {
		byReceiver[rec.Receiver] = i
		assert.Equal(t, "pair", rec.Community)
		assert.Equal(t, "glucose", rec.Medium)
		require.True(t, rec.SMETANA.Valid)
		assert.Equal(t, 1.0, rec.SMETANA.Value)
	}
	assert.Equal(t, "aa2_e", records[byReceiver["a"]].Compound)
	assert.Equal(t, "b", records[byReceiver["a"]].Donor)
	assert.Equal(t, "aa1_e", records[byReceiver["b"]].Compound)

	total := Total(res, records)
	require.True(t, total.Valid)
	assert.Equal(t, 2.0, total.Value)
}

func TestAggregateKeepsZerosOnRequest(t *testing.T) {
	com := crossFeedingPair(t)
	env := environment.FromCompounds("glucose", []string{"glc_e"})

	res, err := detailedCalc().Compute(context.Background(), com, env)
	require.NoError(t, err)

	without := Aggregate(com, res, "glucose", AggregateOptions{})
	with := Aggregate(com, res, "glucose", AggregateOptions{Zeros: true})
	assert.Greater(t, len(with), len(without))
	for _, rec := range with {
		require.True(t, rec.SMETANA.Valid)
	}
}

func TestAggregateExcludedCompounds(t *testing.T) {
	com := crossFeedingPair(t)
	env := environment.FromCompounds("glucose", []string{"glc_e"})

	res, err := detailedCalc().Compute(context.Background(), com, env)
	require.NoError(t, err)

	records := Aggregate(com, res, "glucose", AggregateOptions{
		Excluded: map[string]bool{"aa2_e": true},
	})
	for _, rec := range records {
		assert.NotEqual(t, "aa2_e", rec.Compound)
	}
}

func TestDetailedScoresNonGrowingMember(t *testing.T) {
	com, err := community.Build("broken", []*model.Model{
		testutil.Prototroph("a", "glc"),
		testutil.NonGrower("dead"),
	}, community.Options{})
	require.NoError(t, err)
	env := environment.FromCompounds("glucose", []string{"glc_e"})

	res, err := detailedCalc().Compute(context.Background(), com, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"dead"}, res.NonGrowing)

	// The surviving member does not depend on the dead one.
	assert.Equal(t, 0.0, res.SCS["a"]["dead"])

	records := Aggregate(com, res, "glucose", AggregateOptions{Zeros: true})
	for _, rec := range records {
		if rec.Receiver == "dead" || rec.Donor == "dead" {
			assert.False(t, rec.SMETANA.Valid)
			assert.False(t, rec.SCS.Valid)
		}
	}
	assert.False(t, Total(res, records).Valid)
}

func TestDetailedScoresIgnoreCoupling(t *testing.T) {
	com := crossFeedingPair(t)
	env := environment.FromCompounds("glucose", []string{"glc_e"})

	calc := detailedCalc()
	calc.IgnoreCoupling = true
	res, err := calc.Compute(context.Background(), com, env)
	require.NoError(t, err)
	assert.Empty(t, res.SCS)

	records := Aggregate(com, res, "glucose", AggregateOptions{IgnoreCoupling: true})
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.False(t, rec.SCS.Valid)
		require.True(t, rec.SMETANA.Valid)
	}
}

func TestDetailedScoresDeterministic(t *testing.T) {
	env := environment.FromCompounds("glucose", []string{"glc_e"})

	first, err := detailedCalc().Compute(context.Background(), crossFeedingPair(t), env)
	require.NoError(t, err)
	second, err := detailedCalc().Compute(context.Background(), crossFeedingPair(t), env)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("results differ across identical runs (-first +second):\n%s", diff)
	}
}
