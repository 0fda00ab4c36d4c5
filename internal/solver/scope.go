package solver

// Scope groups temporary modifications to a Problem so they can be undone in
// one call. Every scoped bound change is snapshotted before it is applied,
// and every variable or constraint added through the scope is removed on
// Close, regardless of whether the solve in between succeeded or failed.
//
// The intended pattern is
//
//	sc := p.Begin()
//	defer sc.Close()
//
// which guarantees the Problem is bit-identical to its pre-scope state when
// the caller returns.
type Scope struct {
	p          *Problem
	savedLB    map[string]float64
	savedUB    map[string]float64
	addedVars  []string
	addedCons  []string
	closed     bool
}

// Begin opens a modification scope on the problem.
func (p *Problem) Begin() *Scope {
	return &Scope{
		p:       p,
		savedLB: make(map[string]float64),
		savedUB: make(map[string]float64),
	}
}

// SetBounds changes a variable's bounds, remembering the original values the
// first time the variable is touched within this scope.
func (s *Scope) SetBounds(name string, lb, ub float64) error {
	if _, seen := s.savedLB[name]; !seen {
		origLB, origUB, err := s.p.Bounds(name)
		if err != nil {
			return err
		}
		s.savedLB[name] = origLB
		s.savedUB[name] = origUB
	}
	return s.p.SetBounds(name, lb, ub)
}

// AddVariable adds a variable that will be removed when the scope closes.
func (s *Scope) AddVariable(name string, lb, ub float64, kind VarType) error {
	if err := s.p.AddVariable(name, lb, ub, kind); err != nil {
		return err
	}
	s.addedVars = append(s.addedVars, name)
	return nil
}

// AddConstraint adds a constraint that will be removed when the scope closes.
func (s *Scope) AddConstraint(name string, coeffs map[string]float64, sense Sense, rhs float64) error {
	if err := s.p.AddConstraint(name, coeffs, sense, rhs); err != nil {
		return err
	}
	s.addedCons = append(s.addedCons, name)
	return nil
}

// Close rolls back every modification made through the scope. It is
// idempotent so it can be deferred and also called early.
func (s *Scope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	// Constraints first: added constraints may reference added variables.
	for i := len(s.addedCons) - 1; i >= 0; i-- {
		s.p.RemoveConstraint(s.addedCons[i])
	}
	for i := len(s.addedVars) - 1; i >= 0; i-- {
		// Removal only fails when a foreign constraint still references the
		// variable, which would be a programming error upstream.
		_ = s.p.RemoveVariable(s.addedVars[i])
	}
	for name, lb := range s.savedLB {
		if s.p.HasVariable(name) {
			_ = s.p.SetBounds(name, lb, s.savedUB[name])
		}
	}
}
