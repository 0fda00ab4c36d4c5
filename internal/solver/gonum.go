package solver

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// GonumBackend solves LPs with gonum's dense simplex and handles binary
// variables with a depth-first branch-and-bound over the LP relaxation.
// It is stateless apart from tolerances, so one instance can be shared by
// all workers (each solve reads its own Problem).
type GonumBackend struct {
	// SimplexTol is the convergence tolerance passed to lp.Simplex.
	SimplexTol float64
	// IntTol is the integrality tolerance: a binary variable within IntTol
	// of 0 or 1 counts as integral.
	IntTol float64
	// MaxNodes bounds the branch-and-bound tree; exceeding it reports
	// StatusTimeout so the caller discards the trial instead of hanging.
	MaxNodes int
}

// NewGonum returns a backend with the default tolerances.
func NewGonum() *GonumBackend {
	return &GonumBackend{
		SimplexTol: 1e-10,
		IntTol:     1e-6,
		MaxNodes:   50000,
	}
}

var _ Solver = (*GonumBackend)(nil)

// relaxation is the outcome of a single LP solve in minimize space.
type relaxation struct {
	status Status
	obj    float64
	x      []float64
	err    error
}

// Solve optimizes the problem. Binary variables are branched on; continuous
// problems go straight to the simplex.
func (g *GonumBackend) Solve(ctx context.Context, p *Problem, obj Objective) Solution {
	n := p.NumVariables()
	sign := 1.0
	if !obj.Minimize {
		sign = -1.0
	}
	c := make([]float64, n)
	for name, coef := range obj.Coeffs {
		i, ok := p.index[name]
		if !ok {
			return Solution{Status: StatusError, Err: errors.New("solver: objective references unknown variable " + name)}
		}
		c[i] = sign * coef
	}

	var binaries []int
	for i, kind := range p.kinds {
		if kind == Binary {
			binaries = append(binaries, i)
		}
	}

	if len(binaries) == 0 {
		rel := g.solveRelaxation(p, c, nil)
		return g.finish(p, rel, sign, nil)
	}
	return g.branchAndBound(ctx, p, c, sign, binaries)
}

// branchAndBound explores the binary assignments depth first, pruning
// against the incumbent objective.
func (g *GonumBackend) branchAndBound(ctx context.Context, p *Problem, c []float64, sign float64, binaries []int) Solution {
	var (
		best      relaxation
		bestFound bool
		bestObj   = math.Inf(1)
		timedOut  bool
		unbounded bool
		rootErr   error
		rootInfes bool
		nodes     int
	)
	overrides := make(map[int][2]float64)

	var visit func(depth int)
	visit = func(depth int) {
		if timedOut || unbounded {
			return
		}
		if ctx.Err() != nil {
			timedOut = true
			return
		}
		nodes++
		if g.MaxNodes > 0 && nodes > g.MaxNodes {
			timedOut = true
			return
		}

		rel := g.solveRelaxation(p, c, overrides)
		switch rel.status {
		case StatusUnbounded:
			if depth == 0 {
				unbounded = true
			}
			return
		case StatusInfeasible:
			if depth == 0 {
				rootInfes = true
			}
			return
		case StatusError:
			if depth == 0 {
				rootErr = rel.err
			}
			return
		}

		if bestFound && rel.obj >= bestObj-1e-9 {
			return // cannot beat the incumbent
		}

		frac := -1
		fracDist := g.IntTol
		for _, j := range binaries {
			d := math.Abs(rel.x[j] - math.Round(rel.x[j]))
			if d > fracDist {
				frac = j
				fracDist = d
			}
		}
		if frac < 0 {
			best = rel
			bestObj = rel.obj
			bestFound = true
			return
		}

		// Branch toward the nearer integer first.
		order := [2]float64{0, 1}
		if rel.x[frac] > 0.5 {
			order = [2]float64{1, 0}
		}
		for _, v := range order {
			overrides[frac] = [2]float64{v, v}
			visit(depth + 1)
			delete(overrides, frac)
			if timedOut || unbounded {
				return
			}
		}
	}
	visit(0)

	switch {
	case unbounded:
		return Solution{Status: StatusUnbounded}
	case bestFound:
		sol := g.finish(p, best, sign, binaries)
		return sol
	case timedOut:
		return Solution{Status: StatusTimeout, Err: ctx.Err()}
	case rootErr != nil:
		return Solution{Status: StatusError, Err: rootErr}
	case rootInfes:
		return Solution{Status: StatusInfeasible}
	default:
		// Every branch was pruned infeasible.
		return Solution{Status: StatusInfeasible}
	}
}

// finish converts a minimize-space relaxation into the caller-facing
// Solution, rounding binaries to exact integers.
func (g *GonumBackend) finish(p *Problem, rel relaxation, sign float64, binaries []int) Solution {
	switch rel.status {
	case StatusOptimal:
	case StatusInfeasible, StatusUnbounded:
		return Solution{Status: rel.status}
	default:
		return Solution{Status: StatusError, Err: rel.err}
	}
	values := make(map[string]float64, len(p.names))
	for i, name := range p.names {
		values[name] = rel.x[i]
	}
	for _, j := range binaries {
		values[p.names[j]] = math.Round(rel.x[j])
	}
	return Solution{
		Status:    StatusOptimal,
		Objective: sign * rel.obj,
		Values:    values,
	}
}

// feasTol is the slack allowed when a constraint is fully decided by fixed
// variables.
const feasTol = 1e-6

// solveRelaxation assembles the LP in gonum's general form, converts it to
// standard form and runs the simplex. overrides replaces variable bounds by
// index (used to fix branched binaries).
//
// Fixed variables (lb == ub, the knockout idiom and branched binaries) are
// substituted into the right-hand side rather than emitted as equality
// rows: unit rows for fixed fluxes make the equality system rank deficient
// next to the mass balances and the simplex cannot factorize a basis.
// Equality rows that end up linearly dependent after the substitution are
// eliminated for the same reason.
func (g *GonumBackend) solveRelaxation(p *Problem, c []float64, overrides map[int][2]float64) relaxation {
	n := len(p.names)

	fixed := make([]float64, n)
	col := make([]int, n) // original index -> reduced column, -1 when fixed
	var free []int
	for i := 0; i < n; i++ {
		lb, ub := p.lb[i], p.ub[i]
		if ov, ok := overrides[i]; ok {
			lb, ub = ov[0], ov[1]
		}
		if lb > ub {
			return relaxation{status: StatusInfeasible}
		}
		if lb == ub {
			fixed[i] = lb
			col[i] = -1
			continue
		}
		col[i] = len(free)
		free = append(free, i)
	}
	m := len(free)

	var (
		gRows [][]float64 // inequality rows over the free columns, G x <= h
		h     []float64
		aRows [][]float64 // equality rows over the free columns, A x = b
		beq   []float64
	)

	for j, i := range free {
		lb, ub := p.lb[i], p.ub[i]
		if ov, ok := overrides[i]; ok {
			lb, ub = ov[0], ov[1]
		}
		if !math.IsInf(ub, 1) {
			row := make([]float64, m)
			row[j] = 1
			gRows, h = append(gRows, row), append(h, ub)
		}
		if !math.IsInf(lb, -1) {
			row := make([]float64, m)
			row[j] = -1
			gRows, h = append(gRows, row), append(h, -lb)
		}
	}

	for _, name := range p.conOrder {
		con := p.cons[name]
		row := make([]float64, m)
		rhs := con.RHS
		support := false
		for v, coef := range con.Coeffs {
			i := p.index[v]
			if col[i] < 0 {
				rhs -= coef * fixed[i]
				continue
			}
			if coef != 0 {
				row[col[i]] = coef
				support = true
			}
		}
		if !support {
			// The fixed variables decide this row on their own.
			sat := true
			switch con.Sense {
			case LessEq:
				sat = rhs >= -feasTol
			case GreaterEq:
				sat = rhs <= feasTol
			case Equal:
				sat = math.Abs(rhs) <= feasTol
			}
			if !sat {
				return relaxation{status: StatusInfeasible}
			}
			continue
		}
		switch con.Sense {
		case LessEq:
			gRows, h = append(gRows, row), append(h, rhs)
		case GreaterEq:
			for k := range row {
				row[k] = -row[k]
			}
			gRows, h = append(gRows, row), append(h, -rhs)
		case Equal:
			aRows, beq = append(aRows, row), append(beq, rhs)
		}
	}

	var consistent bool
	aRows, beq, consistent = independentRows(aRows, beq)
	if !consistent {
		return relaxation{status: StatusInfeasible}
	}

	expand := func(xFree []float64) ([]float64, float64) {
		x := append([]float64(nil), fixed...)
		for j, i := range free {
			x[i] = xFree[j]
		}
		obj := 0.0
		for i := 0; i < n; i++ {
			obj += c[i] * x[i]
		}
		return x, obj
	}

	if m == 0 {
		x, obj := expand(nil)
		return relaxation{status: StatusOptimal, obj: obj, x: x}
	}

	cRed := make([]float64, m)
	for j, i := range free {
		cRed[j] = c[i]
	}
	var gm, am mat.Matrix
	if len(h) > 0 {
		gm = mat.NewDense(len(h), m, flatten(gRows))
	}
	if len(beq) > 0 {
		am = mat.NewDense(len(beq), m, flatten(aRows))
	}

	cNew, aNew, bNew := lp.Convert(cRed, gm, h, am, beq)
	_, xNew, err := lp.Simplex(cNew, aNew, bNew, g.SimplexTol, nil)
	if err != nil {
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return relaxation{status: StatusInfeasible}
		case errors.Is(err, lp.ErrUnbounded):
			return relaxation{status: StatusUnbounded}
		default:
			return relaxation{status: StatusError, err: err}
		}
	}

	// Convert splits each free variable x into x = x+ - x-; fold the split
	// back together before restoring the fixed coordinates.
	xFree := make([]float64, m)
	for j := range xFree {
		xFree[j] = xNew[j] - xNew[m+j]
	}
	x, obj := expand(xFree)
	return relaxation{status: StatusOptimal, obj: obj, x: x}
}

// independentRows reduces the equality system [A|b] to row echelon form,
// dropping rows that are linear combinations of earlier ones. A dropped row
// with a nonzero residual means the system is inconsistent.
func independentRows(a [][]float64, b []float64) ([][]float64, []float64, bool) {
	const pivTol = 1e-9
	rows := len(a)
	if rows == 0 {
		return nil, nil, true
	}
	cols := len(a[0])
	r := 0
	for c := 0; c < cols && r < rows; c++ {
		piv, max := -1, pivTol
		for i := r; i < rows; i++ {
			if v := math.Abs(a[i][c]); v > max {
				piv, max = i, v
			}
		}
		if piv < 0 {
			continue
		}
		a[r], a[piv] = a[piv], a[r]
		b[r], b[piv] = b[piv], b[r]
		for i := r + 1; i < rows; i++ {
			if a[i][c] == 0 {
				continue
			}
			f := a[i][c] / a[r][c]
			for j := c; j < cols; j++ {
				a[i][j] -= f * a[r][j]
			}
			b[i] -= f * b[r]
		}
		r++
	}
	for i := r; i < rows; i++ {
		if math.Abs(b[i]) > feasTol {
			return nil, nil, false
		}
	}
	return a[:r], b[:r], true
}

func flatten(rows [][]float64) []float64 {
	flat := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		flat = append(flat, row...)
	}
	return flat
}
