// Package disease advances the per-individual SEIR state machine by one day.
//
// A step is synchronous: every decision for day d is computed from a frozen
// copy of the states at the end of day d-1 and only then committed, so the
// order in which individuals are visited cannot influence the outcome.
package disease

import (
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
)

// StepStats counts the transitions committed by one step.
type StepStats struct {
	NewlyExposed   int
	NewlyInfected  int
	NewlyRecovered int
}

// Changed returns the total number of transitions.
func (s StepStats) Changed() int {
	return s.NewlyExposed + s.NewlyInfected + s.NewlyRecovered
}

// Engine applies a virus to a population one day at a time.
// The engine holds no per-run state; everything mutable lives in the
// population passed to Step.
type Engine struct {
	virus  models.Virus
	logger *slog.Logger
}

// NewEngine creates a disease engine for v. A nil logger discards output.
func NewEngine(v models.Virus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{virus: v, logger: logger}
}

// Virus returns the virus driving this engine.
func (e *Engine) Virus() models.Virus {
	return e.virus
}

// pending is the decided next state of one individual.
type pending struct {
	state models.State
	days  int
}

// Step advances every individual by one day.
//
// Transmission uses the network's currently active edges, so interventions
// applied earlier in the same day are honoured, while the infectious status
// of neighbours is read from the previous day's snapshot.
func (e *Engine) Step(pop *population.Population, day int, rng *rand.Rand) StepStats {
	prev := pop.States()
	next := make([]pending, len(prev))

	for id := range prev {
		ind := &pop.Individuals[id]
		next[id] = e.decide(pop, ind, prev, rng)
	}

	var stats StepStats
	for id := range next {
		ind := &pop.Individuals[id]
		if next[id].state != ind.State {
			switch next[id].state {
			case models.StateExposed:
				stats.NewlyExposed++
			case models.StateInfected:
				stats.NewlyInfected++
			case models.StateRecovered:
				stats.NewlyRecovered++
			}
		}
		ind.State = next[id].state
		ind.DaysInState = next[id].days
	}

	e.logger.Debug("disease step",
		"day", day,
		"exposed", stats.NewlyExposed,
		"infected", stats.NewlyInfected,
		"recovered", stats.NewlyRecovered)

	return stats
}

// decide computes the next state of ind against the snapshot prev.
func (e *Engine) decide(pop *population.Population, ind *models.Individual, prev []models.State, rng *rand.Rand) pending {
	switch prev[ind.ID] {
	case models.StateSusceptible:
		p := TransmissionProbability(e.virus, ind)
		if p <= 0 {
			return pending{models.StateSusceptible, ind.DaysInState + 1}
		}
		// Each infected neighbour gets an independent trial; any success exposes.
		for _, nb := range pop.Neighbors(ind.ID) {
			if prev[nb] != models.StateInfected {
				continue
			}
			if rng.Float64() < p {
				return pending{models.StateExposed, 0}
			}
		}
		return pending{models.StateSusceptible, ind.DaysInState + 1}

	case models.StateExposed:
		days := ind.DaysInState + 1
		if days >= e.virus.Latency() {
			return pending{models.StateInfected, 0}
		}
		return pending{models.StateExposed, days}

	case models.StateInfected:
		days := ind.DaysInState + 1
		cured := rng.Float64() < e.virus.CureRate
		if cured || days >= e.virus.InfectionTime {
			return pending{models.StateRecovered, 0}
		}
		return pending{models.StateInfected, days}

	default:
		return pending{models.StateRecovered, ind.DaysInState + 1}
	}
}

// TransmissionProbability is the per-contact exposure probability for a
// susceptible individual: infect_rate scaled by the individual's risk
// factor, zero when vaccinated, clamped to [0, 1].
func TransmissionProbability(v models.Virus, ind *models.Individual) float64 {
	if ind.Vaccinated {
		return 0
	}
	p := v.InfectRate * ind.RiskFactor
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}
