package solver

import (
	"fmt"
	"math"
)

// Infinity is the bound value treated as "no bound" when assembling the LP.
var Infinity = math.Inf(1)

// Problem is an incrementally mutable linear/mixed-integer program. One
// Problem is built per community model and then reused across score
// computations: temporary bound changes and constraint additions are applied
// through a Scope and rolled back before the next computation.
//
// A Problem must not be mutated or solved concurrently; parallel workers
// operate on Clone()s.
type Problem struct {
	names []string
	index map[string]int
	lb    []float64
	ub    []float64
	kinds []VarType

	cons     map[string]Constraint
	conOrder []string
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{
		index: make(map[string]int),
		cons:  make(map[string]Constraint),
	}
}

// NumVariables reports the number of variables.
func (p *Problem) NumVariables() int { return len(p.names) }

// AddVariable registers a new variable with the given bounds and kind.
func (p *Problem) AddVariable(name string, lb, ub float64, kind VarType) error {
	if _, ok := p.index[name]; ok {
		return fmt.Errorf("solver: variable %q already defined", name)
	}
	if lb > ub {
		return fmt.Errorf("solver: variable %q has crossed bounds [%g, %g]", name, lb, ub)
	}
	p.index[name] = len(p.names)
	p.names = append(p.names, name)
	p.lb = append(p.lb, lb)
	p.ub = append(p.ub, ub)
	p.kinds = append(p.kinds, kind)
	return nil
}

// RemoveVariable deletes a variable. It fails if any constraint still
// references it; scoped additions are removed by Scope.Close in reverse
// order, so this only triggers on misuse.
func (p *Problem) RemoveVariable(name string) error {
	i, ok := p.index[name]
	if !ok {
		return fmt.Errorf("solver: unknown variable %q", name)
	}
	for conName, con := range p.cons {
		if _, used := con.Coeffs[name]; used {
			return fmt.Errorf("solver: variable %q still referenced by constraint %q", name, conName)
		}
	}
	p.names = append(p.names[:i], p.names[i+1:]...)
	p.lb = append(p.lb[:i], p.lb[i+1:]...)
	p.ub = append(p.ub[:i], p.ub[i+1:]...)
	p.kinds = append(p.kinds[:i], p.kinds[i+1:]...)
	delete(p.index, name)
	for j := i; j < len(p.names); j++ {
		p.index[p.names[j]] = j
	}
	return nil
}

// HasVariable reports whether the variable exists.
func (p *Problem) HasVariable(name string) bool {
	_, ok := p.index[name]
	return ok
}

// VariableNames returns the variable names in declaration order. The caller
// must not modify the returned slice.
func (p *Problem) VariableNames() []string { return p.names }

// Kind returns the variable kind.
func (p *Problem) Kind(name string) (VarType, error) {
	i, ok := p.index[name]
	if !ok {
		return Continuous, fmt.Errorf("solver: unknown variable %q", name)
	}
	return p.kinds[i], nil
}

// Bounds returns the current bounds of a variable.
func (p *Problem) Bounds(name string) (lb, ub float64, err error) {
	i, ok := p.index[name]
	if !ok {
		return 0, 0, fmt.Errorf("solver: unknown variable %q", name)
	}
	return p.lb[i], p.ub[i], nil
}

// SetBounds overwrites the bounds of a variable.
func (p *Problem) SetBounds(name string, lb, ub float64) error {
	i, ok := p.index[name]
	if !ok {
		return fmt.Errorf("solver: unknown variable %q", name)
	}
	if lb > ub {
		return fmt.Errorf("solver: variable %q crossed bounds [%g, %g]", name, lb, ub)
	}
	p.lb[i] = lb
	p.ub[i] = ub
	return nil
}

// AddConstraint registers a named linear constraint. Every referenced
// variable must already exist.
func (p *Problem) AddConstraint(name string, coeffs map[string]float64, sense Sense, rhs float64) error {
	if _, ok := p.cons[name]; ok {
		return fmt.Errorf("solver: constraint %q already defined", name)
	}
	for v := range coeffs {
		if _, ok := p.index[v]; !ok {
			return fmt.Errorf("solver: constraint %q references unknown variable %q", name, v)
		}
	}
	copied := make(map[string]float64, len(coeffs))
	for v, c := range coeffs {
		copied[v] = c
	}
	p.cons[name] = Constraint{Coeffs: copied, Sense: sense, RHS: rhs}
	p.conOrder = append(p.conOrder, name)
	return nil
}

// RemoveConstraint deletes a constraint if present.
func (p *Problem) RemoveConstraint(name string) {
	if _, ok := p.cons[name]; !ok {
		return
	}
	delete(p.cons, name)
	for i, n := range p.conOrder {
		if n == name {
			p.conOrder = append(p.conOrder[:i], p.conOrder[i+1:]...)
			break
		}
	}
}

// Constraints returns the constraint names in insertion order.
func (p *Problem) Constraints() []string {
	out := make([]string, len(p.conOrder))
	copy(out, p.conOrder)
	return out
}

// Constraint returns a copy of the named constraint.
func (p *Problem) Constraint(name string) (Constraint, bool) {
	c, ok := p.cons[name]
	if !ok {
		return Constraint{}, false
	}
	coeffs := make(map[string]float64, len(c.Coeffs))
	for v, cf := range c.Coeffs {
		coeffs[v] = cf
	}
	return Constraint{Coeffs: coeffs, Sense: c.Sense, RHS: c.RHS}, true
}

// Clone returns a deep copy. Workers running independent trials each clone
// the shared community problem so no solver state crosses goroutines.
func (p *Problem) Clone() *Problem {
	cp := &Problem{
		names:    append([]string(nil), p.names...),
		lb:       append([]float64(nil), p.lb...),
		ub:       append([]float64(nil), p.ub...),
		kinds:    append([]VarType(nil), p.kinds...),
		index:    make(map[string]int, len(p.index)),
		cons:     make(map[string]Constraint, len(p.cons)),
		conOrder: append([]string(nil), p.conOrder...),
	}
	for name, i := range p.index {
		cp.index[name] = i
	}
	for name, con := range p.cons {
		coeffs := make(map[string]float64, len(con.Coeffs))
		for v, c := range con.Coeffs {
			coeffs[v] = c
		}
		cp.cons[name] = Constraint{Coeffs: coeffs, Sense: con.Sense, RHS: con.RHS}
	}
	return cp
}

// Snapshot captures the current bounds of the named variables (all variables
// when none are given) for later comparison or restoration.
func (p *Problem) Snapshot(names ...string) map[string][2]float64 {
	if len(names) == 0 {
		names = p.names
	}
	saved := make(map[string][2]float64, len(names))
	for _, n := range names {
		if i, ok := p.index[n]; ok {
			saved[n] = [2]float64{p.lb[i], p.ub[i]}
		}
	}
	return saved
}
