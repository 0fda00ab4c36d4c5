// Package community merges single-species metabolic models into one
// optimization problem. Each organism keeps a private namespace for its
// reactions and metabolites; only extracellular metabolites are funneled
// into a shared pool compartment, with an explicit binding table recording
// which organism-local exchange reaction feeds which pool metabolite.
package community

import (
	"fmt"
	"strings"

	"github.com/cdanielmachado/smetana/internal/model"
	"github.com/cdanielmachado/smetana/internal/solver"
)

// GrowthVariable is the name of the community growth rate variable.
const GrowthVariable = "community_growth"

// BuildError reports a malformed or conflicting organism model. It is fatal
// for the community being built but never for the whole run.
type BuildError struct {
	Organism string
	Reason   string
}

func (e *BuildError) Error() string {
	if e.Organism == "" {
		return "community build: " + e.Reason
	}
	return fmt.Sprintf("community build: organism %s: %s", e.Organism, e.Reason)
}

// Options configures community construction.
type Options struct {
	// CouplingFraction is the minimum fraction of the community growth rate
	// each organism must sustain. Zero disables growth coupling.
	CouplingFraction float64
}

// Binding records how one organism-level exchange reaction is wired into the
// shared pool, so that scores can translate between namespaced solver
// variables and the original compound ids.
type Binding struct {
	// Compound is the extracellular metabolite id shared across organisms.
	Compound string
	// Shuttle is the namespaced organism exchange reaction; positive flux
	// moves the compound from the organism into the pool.
	Shuttle string
	// OrganismMetabolite is the organism's namespaced extracellular copy.
	OrganismMetabolite string
	// CommunityExchange is the pool-level exchange reaction for Compound.
	CommunityExchange string
}

// Community is a merged multi-species optimization model plus the lookup
// tables needed to interrogate it organism by organism.
type Community struct {
	ID string

	problem   *solver.Problem
	organisms []string
	reactions map[string][]string
	biomass   map[string]string
	shuttles  map[string][]Binding
	exchanges map[string]string
	compounds []string
}

// orgVar namespaces an organism-local id.
func orgVar(org, id string) string { return org + ":" + id }

// exchangeVar names the community-level exchange reaction of a compound.
func exchangeVar(compound string) string { return "EX:" + compound }

// Build merges the given models into a community optimization model. The
// resulting problem satisfies steady state for every metabolite, conserves
// flux between organism exchanges and pool exchanges, and defines the
// community growth rate as the equal-weight mean of the organism growth
// rates.
func Build(id string, models []*model.Model, opts Options) (*Community, error) {
	if len(models) == 0 {
		return nil, &BuildError{Reason: "no organisms given"}
	}

	c := &Community{
		ID:        id,
		problem:   solver.NewProblem(),
		reactions: make(map[string][]string, len(models)),
		biomass:   make(map[string]string, len(models)),
		shuttles:  make(map[string][]Binding, len(models)),
		exchanges: make(map[string]string),
	}

	seen := make(map[string]bool, len(models))
	external := ""
	for _, m := range models {
		if seen[m.ID] {
			return nil, &BuildError{Organism: m.ID, Reason: "duplicate organism id"}
		}
		seen[m.ID] = true
		if strings.Contains(m.ID, ":") {
			return nil, &BuildError{Organism: m.ID, Reason: "organism id must not contain ':'"}
		}
		if _, ok := m.Reaction(m.Biomass); !ok || m.Biomass == "" {
			return nil, &BuildError{Organism: m.ID, Reason: "no recognizable biomass reaction"}
		}
		if external == "" {
			external = m.ExternalCompartment()
		} else if m.ExternalCompartment() != external {
			return nil, &BuildError{Organism: m.ID, Reason: fmt.Sprintf(
				"external compartment %q conflicts with community compartment %q",
				m.ExternalCompartment(), external)}
		}
		c.organisms = append(c.organisms, m.ID)
	}

	// Mass-balance rows are accumulated first and added to the problem once
	// every variable exists.
	rows := make(map[string]map[string]float64)
	var rowOrder []string
	addCoeff := func(row, variable string, coeff float64) {
		coeffs, ok := rows[row]
		if !ok {
			coeffs = make(map[string]float64)
			rows[row] = coeffs
			rowOrder = append(rowOrder, row)
		}
		coeffs[variable] += coeff
	}

	for _, m := range models {
		org := m.ID
		exchangeSet := make(map[string]bool, len(m.ExchangeReactions()))
		for _, rid := range m.ExchangeReactions() {
			exchangeSet[rid] = true
		}

		for i := range m.Reactions {
			rxn := &m.Reactions[i]
			name := orgVar(org, rxn.ID)
			lb, ub := rxn.Bounds()

			switch {
			case rxn.ID == m.Biomass:
				// Biomass runs forward only.
				if lb < 0 {
					lb = 0
				}
			case exchangeSet[rxn.ID]:
				// Organism exchanges become internal shuttles to the pool;
				// uptake limits move to the community-level exchange.
				lb, ub = -model.Unbounded, model.Unbounded
			}
			if err := c.problem.AddVariable(name, lb, ub, solver.Continuous); err != nil {
				return nil, &BuildError{Organism: org, Reason: err.Error()}
			}
			c.reactions[org] = append(c.reactions[org], name)

			for metID, coeff := range rxn.Stoichiometry {
				addCoeff("mb:"+orgVar(org, metID), name, coeff)
			}

			if exchangeSet[rxn.ID] {
				compound, coeff, err := m.ExchangedMetabolite(rxn.ID)
				if err != nil {
					return nil, &BuildError{Organism: org, Reason: err.Error()}
				}
				exch, ok := c.exchanges[compound]
				if !ok {
					exch = exchangeVar(compound)
					if err := c.problem.AddVariable(exch, -model.Unbounded, model.Unbounded, solver.Continuous); err != nil {
						return nil, &BuildError{Organism: org, Reason: err.Error()}
					}
					c.exchanges[compound] = exch
					c.compounds = append(c.compounds, compound)
					// The pool exchange drains the pool; negative flux is
					// uptake from the medium.
					addCoeff("mb:pool:"+compound, exch, -1)
				}
				// The shuttle's pool side mirrors its organism side.
				addCoeff("mb:pool:"+compound, name, -coeff)
				c.shuttles[org] = append(c.shuttles[org], Binding{
					Compound:           compound,
					Shuttle:            name,
					OrganismMetabolite: orgVar(org, compound),
					CommunityExchange:  exch,
				})
			}
		}
		c.biomass[org] = orgVar(org, m.Biomass)
	}

	for _, row := range rowOrder {
		if err := c.problem.AddConstraint(row, rows[row], solver.Equal, 0); err != nil {
			return nil, &BuildError{Reason: err.Error()}
		}
	}

	// Community growth rate: equal-weight mean of organism growth rates.
	if err := c.problem.AddVariable(GrowthVariable, 0, model.Unbounded, solver.Continuous); err != nil {
		return nil, &BuildError{Reason: err.Error()}
	}
	growthDef := map[string]float64{GrowthVariable: -1}
	weight := 1.0 / float64(len(c.organisms))
	for _, org := range c.organisms {
		growthDef[c.biomass[org]] = weight
	}
	if err := c.problem.AddConstraint("growth", growthDef, solver.Equal, 0); err != nil {
		return nil, &BuildError{Reason: err.Error()}
	}

	if opts.CouplingFraction > 0 {
		for _, org := range c.organisms {
			row := map[string]float64{
				c.biomass[org]: 1,
				GrowthVariable: -opts.CouplingFraction,
			}
			if err := c.problem.AddConstraint("coupling:"+org, row, solver.GreaterEq, 0); err != nil {
				return nil, &BuildError{Organism: org, Reason: err.Error()}
			}
		}
	}

	return c, nil
}

// Problem exposes the merged optimization model for solving and scoped
// modification.
func (c *Community) Problem() *solver.Problem { return c.problem }

// Organisms returns the organism ids in build order. The caller must not
// modify the returned slice.
func (c *Community) Organisms() []string { return c.organisms }

// Size is the number of member organisms.
func (c *Community) Size() int { return len(c.organisms) }

// BiomassVariable returns the namespaced biomass flux variable of an
// organism.
func (c *Community) BiomassVariable(org string) (string, error) {
	v, ok := c.biomass[org]
	if !ok {
		return "", fmt.Errorf("community %s: unknown organism %q", c.ID, org)
	}
	return v, nil
}

// Reactions returns every namespaced reaction variable of an organism,
// shuttles and biomass included. The caller must not modify the slice.
func (c *Community) Reactions(org string) []string { return c.reactions[org] }

// Shuttles returns the exchange bindings of an organism.
func (c *Community) Shuttles(org string) []Binding { return c.shuttles[org] }

// Exchanges returns compound -> community exchange variable for every
// compound any member can exchange. The caller must not modify the map.
func (c *Community) Exchanges() map[string]string { return c.exchanges }

// Compounds returns the exchangeable compounds in first-seen order.
func (c *Community) Compounds() []string { return c.compounds }

// Objective is the default community objective: maximize community growth.
func (c *Community) Objective() solver.Objective {
	return solver.Objective{
		Coeffs:   map[string]float64{GrowthVariable: 1},
		Minimize: false,
	}
}

// Clone copies the community with an independent problem, for workers that
// run concurrent solves. The immutable lookup tables are shared.
func (c *Community) Clone() *Community {
	cp := *c
	cp.problem = c.problem.Clone()
	return &cp
}
