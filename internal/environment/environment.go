// Package environment models growth media: which extracellular compounds a
// community may take up, and how a medium translates into exchange bounds on
// a merged optimization model.
package environment

import (
	"sort"

	"github.com/cdanielmachado/smetana/internal/model"
	"github.com/cdanielmachado/smetana/internal/solver"
)

// CompleteName is the reserved medium name for an unrestricted environment.
const CompleteName = "complete"

// MinimalName is the reserved medium name for an environment derived per
// community: the smallest compound set sustaining every member.
const MinimalName = "minimal"

// Environment is a named growth medium. A nil compound set means the
// complete medium, where every exchangeable compound is available.
type Environment struct {
	name      string
	compounds map[string]bool
	order     []string
}

// Complete returns the unrestricted medium.
func Complete() *Environment {
	return &Environment{name: CompleteName}
}

// FromCompounds builds a medium from an explicit compound list. Duplicates
// collapse; order is preserved.
func FromCompounds(name string, compounds []string) *Environment {
	e := &Environment{
		name:      name,
		compounds: make(map[string]bool, len(compounds)),
	}
	for _, c := range compounds {
		if !e.compounds[c] {
			e.compounds[c] = true
			e.order = append(e.order, c)
		}
	}
	return e
}

// Name returns the medium name.
func (e *Environment) Name() string { return e.name }

// IsComplete reports whether the medium allows every compound.
func (e *Environment) IsComplete() bool { return e.compounds == nil }

// Allows reports whether the medium supplies a compound.
func (e *Environment) Allows(compound string) bool {
	return e.compounds == nil || e.compounds[compound]
}

// Compounds returns the medium's compound list. Nil for the complete
// medium. The caller must not modify the slice.
func (e *Environment) Compounds() []string { return e.order }

// Apply sets the bounds of the given community exchange variables to match
// the medium: compounds in the medium may be taken up at rates up to
// maxUptake, everything else only secreted, and excluded compounds are
// closed in both directions regardless of the medium. It returns a restore
// function that puts the previous bounds back; the restore is bit-exact.
func (e *Environment) Apply(p *solver.Problem, exchanges map[string]string, maxUptake float64, excluded map[string]bool) (func(), error) {
	compounds := make([]string, 0, len(exchanges))
	for c := range exchanges {
		compounds = append(compounds, c)
	}
	sort.Strings(compounds)

	scope := p.Begin()
	for _, c := range compounds {
		lb, ub := 0.0, model.Unbounded
		switch {
		case excluded[c]:
			ub = 0
		case e.Allows(c):
			lb = -maxUptake
		}
		if err := scope.SetBounds(exchanges[c], lb, ub); err != nil {
			scope.Close()
			return nil, err
		}
	}
	return scope.Close, nil
}
