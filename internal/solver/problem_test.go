package solver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildToyProblem(t *testing.T) *Problem {
	t.Helper()
	p := NewProblem()
	require.NoError(t, p.AddVariable("v1", -10, 10, Continuous))
	require.NoError(t, p.AddVariable("v2", 0, 1000, Continuous))
	require.NoError(t, p.AddVariable("y", 0, 1, Binary))
	require.NoError(t, p.AddConstraint("mb", map[string]float64{"v1": 1, "v2": -1}, Equal, 0))
	return p
}

func TestProblemVariables(t *testing.T) {
	p := buildToyProblem(t)

	assert.Equal(t, 3, p.NumVariables())
	assert.True(t, p.HasVariable("v1"))
	assert.False(t, p.HasVariable("v3"))

	lb, ub, err := p.Bounds("v1")
	require.NoError(t, err)
	assert.Equal(t, -10.0, lb)
	assert.Equal(t, 10.0, ub)

	kind, err := p.Kind("y")
	require.NoError(t, err)
	assert.Equal(t, Binary, kind)

	assert.Error(t, p.AddVariable("v1", 0, 1, Continuous), "duplicate variable")
	assert.Error(t, p.SetBounds("v1", 5, -5), "crossed bounds")
	_, _, err = p.Bounds("nope")
	assert.Error(t, err)
}

func TestProblemConstraints(t *testing.T) {
	p := buildToyProblem(t)

	assert.Error(t, p.AddConstraint("bad", map[string]float64{"ghost": 1}, LessEq, 0),
		"constraints may not reference unknown variables")
	assert.Error(t, p.AddConstraint("mb", map[string]float64{"v1": 1}, Equal, 0),
		"duplicate constraint name")

	require.NoError(t, p.AddConstraint("cap", map[string]float64{"v2": 1}, LessEq, 5))
	assert.Equal(t, []string{"mb", "cap"}, p.Constraints())

	con, ok := p.Constraint("cap")
	require.True(t, ok)
	assert.Equal(t, LessEq, con.Sense)
	assert.Equal(t, 5.0, con.RHS)

	// Mutating the returned copy must not touch the stored constraint.
	con.Coeffs["v2"] = 99
	stored, _ := p.Constraint("cap")
	assert.Equal(t, 1.0, stored.Coeffs["v2"])

	p.RemoveConstraint("cap")
	assert.Equal(t, []string{"mb"}, p.Constraints())
	p.RemoveConstraint("cap") // removing twice is a no-op
}

func TestRemoveVariableGuard(t *testing.T) {
	p := buildToyProblem(t)
	assert.Error(t, p.RemoveVariable("v1"), "still referenced by mb")

	require.NoError(t, p.RemoveVariable("y"))
	assert.False(t, p.HasVariable("y"))
	// index stays consistent after compaction
	lb, _, err := p.Bounds("v2")
	require.NoError(t, err)
	assert.Equal(t, 0.0, lb)
}

func TestCloneIsIndependent(t *testing.T) {
	p := buildToyProblem(t)
	cp := p.Clone()

	require.NoError(t, cp.SetBounds("v1", 0, 0))
	require.NoError(t, cp.AddConstraint("extra", map[string]float64{"v2": 1}, GreaterEq, 1))

	lb, ub, err := p.Bounds("v1")
	require.NoError(t, err)
	assert.Equal(t, -10.0, lb)
	assert.Equal(t, 10.0, ub)
	_, ok := p.Constraint("extra")
	assert.False(t, ok)
}

func TestScopeRestoresBitIdentical(t *testing.T) {
	p := buildToyProblem(t)
	before := p.Snapshot()
	beforeCons := p.Constraints()

	sc := p.Begin()
	require.NoError(t, sc.SetBounds("v1", 0, 0))
	require.NoError(t, sc.SetBounds("v1", -1, 1)) // touched twice, original still wins
	require.NoError(t, sc.AddVariable("ind", 0, 1, Binary))
	require.NoError(t, sc.AddConstraint("link", map[string]float64{"v1": 1, "ind": 10}, GreaterEq, 0))
	sc.Close()
	sc.Close() // idempotent

	after := p.Snapshot()
	if diff := cmp.Diff(before, after); diff != "" {
		t.Fatalf("bounds changed after scope close (-before +after):\n%s", diff)
	}
	assert.Equal(t, beforeCons, p.Constraints())
	assert.False(t, p.HasVariable("ind"))
}

func TestScopeCloseOrder(t *testing.T) {
	// A scoped constraint referencing a scoped variable must not block
	// rollback: constraints are removed before variables.
	p := NewProblem()
	require.NoError(t, p.AddVariable("v", 0, 1, Continuous))

	sc := p.Begin()
	require.NoError(t, sc.AddVariable("y", 0, 1, Binary))
	require.NoError(t, sc.AddConstraint("c", map[string]float64{"v": 1, "y": 1}, LessEq, 1))
	sc.Close()

	assert.False(t, p.HasVariable("y"))
	assert.Empty(t, p.Constraints())
}
