package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func validModel() *Model {
	return &Model{
		ID: "ec1",
		Compartments: []Compartment{
			{ID: "c"},
			{ID: "e", External: true},
		},
		Metabolites: []Metabolite{
			{ID: "glc_c", Compartment: "c"},
			{ID: "glc_e", Compartment: "e"},
		},
		Reactions: []Reaction{
			{ID: "EX_glc", LB: f(-10), Stoichiometry: map[string]float64{"glc_e": -1}},
			{ID: "TR_glc", Stoichiometry: map[string]float64{"glc_e": -1, "glc_c": 1}},
			{ID: "GROWTH", LB: f(0), Stoichiometry: map[string]float64{"glc_c": -1}},
		},
		Biomass: "GROWTH",
	}
}

func TestValidateDerivesExchanges(t *testing.T) {
	m := validModel()
	require.NoError(t, m.Validate())

	assert.Equal(t, "e", m.ExternalCompartment())
	assert.Equal(t, []string{"EX_glc"}, m.ExchangeReactions())

	met, coeff, err := m.ExchangedMetabolite("EX_glc")
	require.NoError(t, err)
	assert.Equal(t, "glc_e", met)
	assert.Equal(t, -1.0, coeff)

	_, _, err = m.ExchangedMetabolite("TR_glc")
	assert.Error(t, err, "transport reactions are not exchanges")
}

func TestReactionBoundsDefaults(t *testing.T) {
	r := Reaction{ID: "r"}
	lb, ub := r.Bounds()
	assert.Equal(t, -Unbounded, lb)
	assert.Equal(t, Unbounded, ub)

	r.LB = f(0)
	lb, ub = r.Bounds()
	assert.Equal(t, 0.0, lb)
	assert.Equal(t, Unbounded, ub)
}

func TestValidateRejectsBrokenModels(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Model)
	}{
		{"no id", func(m *Model) { m.ID = "" }},
		{"no external compartment", func(m *Model) { m.Compartments[1].External = false }},
		{"two external compartments", func(m *Model) { m.Compartments[0].External = true }},
		{"duplicate compartment", func(m *Model) { m.Compartments[0].ID = "e" }},
		{"duplicate metabolite", func(m *Model) { m.Metabolites[0].ID = "glc_e" }},
		{"unknown compartment", func(m *Model) { m.Metabolites[0].Compartment = "p" }},
		{"duplicate reaction", func(m *Model) { m.Reactions[0].ID = "GROWTH" }},
		{"empty stoichiometry", func(m *Model) { m.Reactions[1].Stoichiometry = nil }},
		{"unknown metabolite", func(m *Model) { m.Reactions[1].Stoichiometry = map[string]float64{"nope": 1} }},
		{"crossed bounds", func(m *Model) { m.Reactions[0].LB = f(5); m.Reactions[0].UB = f(-5) }},
		{"no biomass", func(m *Model) { m.Biomass = "" }},
		{"missing biomass reaction", func(m *Model) { m.Biomass = "GROWTH2" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := validModel()
			tc.mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}
