// Package population builds the set of individuals and their contact network.
package population

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/episim/internal/constants"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/network"
)

// AgeGroup is one bucket of the age distribution.
type AgeGroup struct {
	Label  string  `json:"label" yaml:"label"`
	MinAge int     `json:"min_age" yaml:"min_age"`
	MaxAge int     `json:"max_age" yaml:"max_age"` // inclusive
	Weight float64 `json:"weight" yaml:"weight"`   // relative share of the population
}

// DefaultAgeGroups returns the age distribution used when none is configured.
func DefaultAgeGroups() []AgeGroup {
	return []AgeGroup{
		{Label: "0-17", MinAge: 0, MaxAge: 17, Weight: 0.22},
		{Label: "18-34", MinAge: 18, MaxAge: 34, Weight: 0.23},
		{Label: "35-49", MinAge: 35, MaxAge: 49, Weight: 0.20},
		{Label: "50-64", MinAge: 50, MaxAge: 64, Weight: 0.19},
		{Label: "65+", MinAge: 65, MaxAge: 95, Weight: 0.16},
	}
}

// Params holds everything needed to build a population.
type Params struct {
	Size        int
	AvgDegree   int
	RewireProb  float64
	RiskFactors map[string]float64 // age group label -> multiplier
	AgeGroups   []AgeGroup         // nil means DefaultAgeGroups
}

// Population owns the individuals and the contact network between them.
// Individual IDs equal their index in Individuals.
type Population struct {
	Individuals []models.Individual
	Network     *network.ContactNetwork
}

// Build creates a population of p.Size individuals with ages drawn from the
// age distribution and risk factors looked up by age group, then wires them
// into a small-world contact network. All randomness comes from rng.
func Build(p Params, rng *rand.Rand) (*Population, error) {
	if err := network.ValidateParams(p.Size, p.AvgDegree, p.RewireProb); err != nil {
		return nil, err
	}
	if err := ValidateRiskFactors(p.RiskFactors); err != nil {
		return nil, err
	}
	groups := p.AgeGroups
	if len(groups) == 0 {
		groups = DefaultAgeGroups()
	}
	if err := ValidateAgeGroups(groups); err != nil {
		return nil, err
	}

	sampler := newAgeSampler(groups)
	individuals := make([]models.Individual, p.Size)
	for i := range individuals {
		g := sampler.pick(rng)
		individuals[i] = models.Individual{
			ID:         i,
			Age:        g.MinAge + rng.IntN(g.MaxAge-g.MinAge+1),
			AgeGroup:   g.Label,
			RiskFactor: RiskFor(p.RiskFactors, g.Label),
			State:      models.StateSusceptible,
		}
	}

	g, err := network.NewSmallWorld(p.Size, p.AvgDegree, p.RewireProb, rng)
	if err != nil {
		return nil, fmt.Errorf("build contact network: %w", err)
	}

	return &Population{Individuals: individuals, Network: g}, nil
}

// RiskFor returns the multiplier for group, defaulting to 1.0 when unmapped.
func RiskFor(table map[string]float64, group string) float64 {
	if r, ok := table[group]; ok {
		return r
	}
	return constants.DefaultRiskFactor
}

// ValidateRiskFactors rejects negative or non-finite multipliers.
func ValidateRiskFactors(table map[string]float64) error {
	for group, r := range table {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return &models.ConfigError{
				Field:  fmt.Sprintf("population.risk_factors[%q]", group),
				Reason: "must be a non-negative number",
			}
		}
	}
	return nil
}

// ValidateAgeGroups checks bounds, weights and label uniqueness.
func ValidateAgeGroups(groups []AgeGroup) error {
	seen := make(map[string]bool, len(groups))
	total := 0.0
	for i, g := range groups {
		field := fmt.Sprintf("population.age_groups[%d]", i)
		if g.Label == "" {
			return &models.ConfigError{Field: field, Reason: "label is required"}
		}
		if seen[g.Label] {
			return &models.ConfigError{Field: field, Reason: fmt.Sprintf("duplicate label %q", g.Label)}
		}
		seen[g.Label] = true
		if g.MinAge < 0 || g.MaxAge < g.MinAge {
			return &models.ConfigError{Field: field, Reason: "requires 0 <= min_age <= max_age"}
		}
		if g.Weight < 0 || math.IsNaN(g.Weight) || math.IsInf(g.Weight, 0) {
			return &models.ConfigError{Field: field, Reason: "weight must be a non-negative number"}
		}
		total += g.Weight
	}
	if total <= 0 {
		return &models.ConfigError{Field: "population.age_groups", Reason: "weights must sum to a positive value"}
	}
	return nil
}

// ageSampler picks age groups proportionally to their weights.
type ageSampler struct {
	groups     []AgeGroup
	cumulative []float64
}

func newAgeSampler(groups []AgeGroup) ageSampler {
	cum := make([]float64, len(groups))
	sum := 0.0
	for i, g := range groups {
		sum += g.Weight
		cum[i] = sum
	}
	return ageSampler{groups: groups, cumulative: cum}
}

func (s ageSampler) pick(rng *rand.Rand) AgeGroup {
	total := s.cumulative[len(s.cumulative)-1]
	x := rng.Float64() * total
	// Group i owns [cumulative[i-1], cumulative[i]).
	i := sort.SearchFloat64s(s.cumulative, x)
	for i < len(s.groups)-1 && s.cumulative[i] <= x {
		i++
	}
	return s.groups[i]
}

// Len returns the number of individuals.
func (p *Population) Len() int {
	return len(p.Individuals)
}

// Get returns the individual with the given id.
func (p *Population) Get(id int) *models.Individual {
	return &p.Individuals[id]
}

// Neighbors returns the active contacts of id.
func (p *Population) Neighbors(id int) []int {
	return p.Network.Neighbors(id)
}

// Quarantine flags id as quarantined and suppresses all its contacts.
// It returns false if id was already quarantined.
func (p *Population) Quarantine(id int) bool {
	ind := &p.Individuals[id]
	if ind.Quarantined {
		return false
	}
	ind.Quarantined = true
	p.Network.SuppressEdgesFor(id)
	return true
}

// Release lifts the quarantine of id and restores its contacts.
// It returns false if id was not quarantined.
func (p *Population) Release(id int) bool {
	ind := &p.Individuals[id]
	if !ind.Quarantined {
		return false
	}
	ind.Quarantined = false
	p.Network.RestoreEdgesFor(id)
	return true
}

// States returns a copy of every individual's state, indexed by id.
func (p *Population) States() []models.State {
	out := make([]models.State, len(p.Individuals))
	for i := range p.Individuals {
		out[i] = p.Individuals[i].State
	}
	return out
}

// Counts tallies individuals per state.
func (p *Population) Counts() models.DayCounts {
	var c models.DayCounts
	for i := range p.Individuals {
		c.Add(p.Individuals[i].State, 1)
	}
	return c
}

// AgeDistribution returns the number of individuals per age group.
func (p *Population) AgeDistribution() map[string]int {
	dist := make(map[string]int)
	for i := range p.Individuals {
		dist[p.Individuals[i].AgeGroup]++
	}
	return dist
}

// Snapshot returns a copy of all individuals.
func (p *Population) Snapshot() []models.Individual {
	out := make([]models.Individual, len(p.Individuals))
	copy(out, p.Individuals)
	return out
}
