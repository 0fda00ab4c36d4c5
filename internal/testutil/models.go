// Package testutil builds small hand-crafted organism models used across the
// engine's tests: complementary auxotrophs, prototrophs with fixed nutrient
// requirements, and an organism that can never grow.
package testutil

import (
	"fmt"

	"github.com/cdanielmachado/smetana/internal/model"
)

func f(v float64) *float64 { return &v }

func baseModel(id string) *model.Model {
	return &model.Model{
		ID: id,
		Compartments: []model.Compartment{
			{ID: "c", Name: "cytosol"},
			{ID: "e", Name: "extracellular", External: true},
		},
	}
}

func addExchanged(m *model.Model, compound string, uptake float64) {
	m.Metabolites = append(m.Metabolites,
		model.Metabolite{ID: compound + "_c", Compartment: "c"},
		model.Metabolite{ID: compound + "_e", Compartment: "e"},
	)
	m.Reactions = append(m.Reactions,
		model.Reaction{
			ID:            "EX_" + compound,
			LB:            f(-uptake),
			UB:            f(model.Unbounded),
			Stoichiometry: map[string]float64{compound + "_e": -1},
		},
		model.Reaction{
			ID:            "TR_" + compound,
			Stoichiometry: map[string]float64{compound + "_e": -1, compound + "_c": 1},
		},
	)
}

// Auxotroph builds an organism that grows on glucose plus one amino acid it
// cannot synthesize (needs), while synthesizing and optionally secreting
// another (makes). Two of these with swapped makes/needs form a classic
// complementary cross-feeding pair.
func Auxotroph(id, makes, needs string) *model.Model {
	m := baseModel(id)
	addExchanged(m, "glc", 10)
	addExchanged(m, makes, 10)
	addExchanged(m, needs, 10)
	m.Reactions = append(m.Reactions,
		model.Reaction{
			ID:            "SYN_" + makes,
			LB:            f(0),
			Stoichiometry: map[string]float64{"glc_c": -1, makes + "_c": 1},
		},
		model.Reaction{
			ID:            "GROWTH",
			LB:            f(0),
			Stoichiometry: map[string]float64{"glc_c": -1, needs + "_c": -1},
		},
	)
	m.Biomass = "GROWTH"
	if err := m.Validate(); err != nil {
		panic(fmt.Sprintf("testutil: invalid auxotroph model: %v", err))
	}
	return m
}

// Prototroph builds an organism whose biomass consumes exactly the given
// nutrients, every one of which must be taken up from the environment.
func Prototroph(id string, nutrients ...string) *model.Model {
	m := baseModel(id)
	growth := make(map[string]float64, len(nutrients))
	for _, n := range nutrients {
		addExchanged(m, n, 10)
		growth[n+"_c"] = -1
	}
	m.Reactions = append(m.Reactions, model.Reaction{
		ID:            "GROWTH",
		LB:            f(0),
		Stoichiometry: growth,
	})
	m.Biomass = "GROWTH"
	if err := m.Validate(); err != nil {
		panic(fmt.Sprintf("testutil: invalid prototroph model: %v", err))
	}
	return m
}

// NonGrower builds an organism whose biomass requires a metabolite nothing
// can supply, so its growth rate is zero under every medium.
func NonGrower(id string) *model.Model {
	m := baseModel(id)
	addExchanged(m, "glc", 10)
	m.Metabolites = append(m.Metabolites, model.Metabolite{ID: "ghost_c", Compartment: "c"})
	m.Reactions = append(m.Reactions, model.Reaction{
		ID:            "GROWTH",
		LB:            f(0),
		Stoichiometry: map[string]float64{"ghost_c": -1},
	})
	m.Biomass = "GROWTH"
	if err := m.Validate(); err != nil {
		panic(fmt.Sprintf("testutil: invalid non-grower model: %v", err))
	}
	return m
}
