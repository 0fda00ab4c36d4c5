// Package solver defines the linear/mixed-integer optimization surface the
// scoring engine is built on: an incrementally mutable Problem, a Solver
// interface consumed as a black box, and a default backend built on gonum's
// simplex implementation with branch-and-bound for binary variables.
package solver

import (
	"context"
	"time"
)

// Status is the outcome of a solve, as reported by any backend.
type Status int

const (
	// StatusOptimal means an optimal solution was found.
	StatusOptimal Status = iota
	// StatusInfeasible means no assignment satisfies the constraints. This is
	// an expected outcome for many queries (an organism that cannot grow on a
	// restrictive medium), not an error.
	StatusInfeasible
	// StatusUnbounded means the objective can improve without limit.
	StatusUnbounded
	// StatusTimeout means the per-solve wall-clock limit expired.
	StatusTimeout
	// StatusError means the backend failed for numerical or internal reasons.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusUnbounded:
		return "unbounded"
	case StatusTimeout:
		return "timeout"
	default:
		return "error"
	}
}

// VarType distinguishes continuous fluxes from binary indicator variables.
type VarType int

const (
	Continuous VarType = iota
	Binary
)

// Sense is the relation of a linear constraint.
type Sense byte

const (
	LessEq    Sense = '<'
	GreaterEq Sense = '>'
	Equal     Sense = '='
)

// Constraint is one linear row: sum(Coeffs[v] * v) Sense RHS.
type Constraint struct {
	Coeffs map[string]float64
	Sense  Sense
	RHS    float64
}

// Objective is a linear objective over problem variables.
type Objective struct {
	Coeffs   map[string]float64
	Minimize bool
}

// Solution is the result of one solve. Values is populated only when Status
// is StatusOptimal.
type Solution struct {
	Status    Status
	Objective float64
	Values    map[string]float64
	Err       error
}

// Solver is the black-box optimization interface consumed by every score
// calculation. Implementations must treat the Problem as read-only for the
// duration of the call.
type Solver interface {
	Solve(ctx context.Context, p *Problem, obj Objective) Solution
}

// WithTimeout caps the wall clock of every individual Solve call. A zero or
// negative limit returns the solver unchanged.
func WithTimeout(s Solver, limit time.Duration) Solver {
	if limit <= 0 {
		return s
	}
	return &timeoutSolver{inner: s, limit: limit}
}

type timeoutSolver struct {
	inner Solver
	limit time.Duration
}

func (t *timeoutSolver) Solve(ctx context.Context, p *Problem, obj Objective) Solution {
	ctx, cancel := context.WithTimeout(ctx, t.limit)
	defer cancel()
	return t.inner.Solve(ctx, p, obj)
}
