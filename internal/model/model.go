// Package model holds the per-species metabolic model adapter: the in-memory
// reaction/metabolite/compartment graph of one organism, immutable after
// load, plus the JSON loader and model cache that feed it.
package model

import (
	"fmt"
)

// Unbounded is the large finite constant used wherever a flux bound is
// conceptually unlimited. Keeping bounds finite keeps the simplex
// well-behaved.
const Unbounded = 1000.0

// Compartment is a cellular compartment; exactly one per model must be
// flagged external (the extracellular space shared by the community).
type Compartment struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	External bool   `json:"external,omitempty"`
}

// Metabolite is a chemical species located in one compartment.
type Metabolite struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Compartment string `json:"compartment"`
}

// Reaction is a stoichiometry-weighted conversion with flux bounds.
// Negative coefficients consume, positive produce. By convention an exchange
// reaction has negative flux for uptake.
type Reaction struct {
	ID            string             `json:"id"`
	Name          string             `json:"name,omitempty"`
	LB            *float64           `json:"lb,omitempty"`
	UB            *float64           `json:"ub,omitempty"`
	Stoichiometry map[string]float64 `json:"stoichiometry"`
}

// Bounds returns the effective flux bounds, defaulting to [-Unbounded,
// Unbounded] when the document omits them.
func (r *Reaction) Bounds() (lb, ub float64) {
	lb, ub = -Unbounded, Unbounded
	if r.LB != nil {
		lb = *r.LB
	}
	if r.UB != nil {
		ub = *r.UB
	}
	return lb, ub
}

// Model is one organism's genome-scale metabolic model. It is read-only
// after Validate; everything downstream (community merging, scoring) only
// reads it.
type Model struct {
	ID           string        `json:"id"`
	Compartments []Compartment `json:"compartments"`
	Metabolites  []Metabolite  `json:"metabolites"`
	Reactions    []Reaction    `json:"reactions"`
	Biomass      string        `json:"biomass"`

	mets      map[string]*Metabolite
	rxns      map[string]*Reaction
	external  string
	exchanges []string
}

// Validate checks internal consistency and precomputes the lookup tables and
// the derived exchange reaction set. It must be called once after loading.
func (m *Model) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("model has no id")
	}
	comps := make(map[string]bool, len(m.Compartments))
	m.external = ""
	for _, c := range m.Compartments {
		if comps[c.ID] {
			return fmt.Errorf("model %s: duplicate compartment %q", m.ID, c.ID)
		}
		comps[c.ID] = true
		if c.External {
			if m.external != "" {
				return fmt.Errorf("model %s: multiple external compartments (%q, %q)", m.ID, m.external, c.ID)
			}
			m.external = c.ID
		}
	}
	if m.external == "" {
		return fmt.Errorf("model %s: no external compartment", m.ID)
	}

	m.mets = make(map[string]*Metabolite, len(m.Metabolites))
	for i := range m.Metabolites {
		met := &m.Metabolites[i]
		if _, dup := m.mets[met.ID]; dup {
			return fmt.Errorf("model %s: duplicate metabolite %q", m.ID, met.ID)
		}
		if !comps[met.Compartment] {
			return fmt.Errorf("model %s: metabolite %q in unknown compartment %q", m.ID, met.ID, met.Compartment)
		}
		m.mets[met.ID] = met
	}

	m.rxns = make(map[string]*Reaction, len(m.Reactions))
	m.exchanges = nil
	for i := range m.Reactions {
		rxn := &m.Reactions[i]
		if _, dup := m.rxns[rxn.ID]; dup {
			return fmt.Errorf("model %s: duplicate reaction %q", m.ID, rxn.ID)
		}
		if len(rxn.Stoichiometry) == 0 {
			return fmt.Errorf("model %s: reaction %q has empty stoichiometry", m.ID, rxn.ID)
		}
		for metID := range rxn.Stoichiometry {
			if _, ok := m.mets[metID]; !ok {
				return fmt.Errorf("model %s: reaction %q references unknown metabolite %q", m.ID, rxn.ID, metID)
			}
		}
		lb, ub := rxn.Bounds()
		if lb > ub {
			return fmt.Errorf("model %s: reaction %q has crossed bounds [%g, %g]", m.ID, rxn.ID, lb, ub)
		}
		m.rxns[rxn.ID] = rxn
		if m.isExchange(rxn) {
			m.exchanges = append(m.exchanges, rxn.ID)
		}
	}

	if m.Biomass == "" {
		return fmt.Errorf("model %s: no biomass reaction designated", m.ID)
	}
	if _, ok := m.rxns[m.Biomass]; !ok {
		return fmt.Errorf("model %s: biomass reaction %q not found", m.ID, m.Biomass)
	}
	return nil
}

// isExchange recognizes boundary reactions: a single metabolite, located in
// the external compartment.
func (m *Model) isExchange(rxn *Reaction) bool {
	if len(rxn.Stoichiometry) != 1 {
		return false
	}
	for metID := range rxn.Stoichiometry {
		return m.mets[metID].Compartment == m.external
	}
	return false
}

// ExternalCompartment returns the id of the external compartment.
func (m *Model) ExternalCompartment() string { return m.external }

// ExchangeReactions returns the ids of the model's exchange reactions in
// declaration order.
func (m *Model) ExchangeReactions() []string { return m.exchanges }

// ExchangedMetabolite returns the single metabolite moved by an exchange
// reaction, with its stoichiometric coefficient.
func (m *Model) ExchangedMetabolite(rxnID string) (metID string, coeff float64, err error) {
	rxn, ok := m.rxns[rxnID]
	if !ok {
		return "", 0, fmt.Errorf("model %s: unknown reaction %q", m.ID, rxnID)
	}
	if len(rxn.Stoichiometry) != 1 {
		return "", 0, fmt.Errorf("model %s: reaction %q is not an exchange reaction", m.ID, rxnID)
	}
	for metID, coeff = range rxn.Stoichiometry {
	}
	return metID, coeff, nil
}

// Reaction looks up a reaction by id.
func (m *Model) Reaction(id string) (*Reaction, bool) {
	r, ok := m.rxns[id]
	return r, ok
}

// Metabolite looks up a metabolite by id.
func (m *Model) Metabolite(id string) (*Metabolite, bool) {
	met, ok := m.mets[id]
	return met, ok
}
