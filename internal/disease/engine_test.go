package disease

import (
	"math/rand/v2"
	"testing"

	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// ringPopulation builds a rewire-free ring of n individuals with degree k.
func ringPopulation(t *testing.T, n, k int) *population.Population {
	t.Helper()
	pop, err := population.Build(population.Params{Size: n, AvgDegree: k}, newRNG(1))
	if err != nil {
		t.Fatalf("population.Build() error = %v", err)
	}
	return pop
}

func statesOf(pop *population.Population, ids ...int) []models.State {
	out := make([]models.State, len(ids))
	for i, id := range ids {
		out[i] = pop.Individuals[id].State
	}
	return out
}

func TestStep_RingScenario(t *testing.T) {
	pop := ringPopulation(t, 10, 4)
	pop.Get(0).SetState(models.StateInfected)
	engine := NewEngine(models.Virus{InfectRate: 1, CureRate: 0, InfectionTime: 3}, nil)
	rng := newRNG(2)

	stats := engine.Step(pop, 1, rng)
	if stats.NewlyExposed != 4 {
		t.Errorf("day 1 NewlyExposed = %d, want 4", stats.NewlyExposed)
	}
	for _, id := range []int{1, 2, 8, 9} {
		if pop.Individuals[id].State != models.StateExposed {
			t.Errorf("day 1: individual %d = %v, want Exposed", id, pop.Individuals[id].State)
		}
	}
	for _, id := range []int{3, 4, 5, 6, 7} {
		if pop.Individuals[id].State != models.StateSusceptible {
			t.Errorf("day 1: individual %d = %v, want Susceptible", id, pop.Individuals[id].State)
		}
	}

	engine.Step(pop, 2, rng)
	for _, id := range []int{0, 1, 2, 8, 9} {
		if pop.Individuals[id].State != models.StateInfected {
			t.Errorf("day 2: individual %d = %v, want Infected", id, pop.Individuals[id].State)
		}
	}
	// Newly infected neighbours were Exposed in the snapshot, so nobody else
	// can be reached on day 2.
	for _, id := range []int{3, 4, 5, 6, 7} {
		if pop.Individuals[id].State != models.StateSusceptible {
			t.Errorf("day 2: individual %d = %v, want Susceptible", id, pop.Individuals[id].State)
		}
	}

	for day := 3; day <= 5; day++ {
		engine.Step(pop, day, rng)
	}
	if pop.Individuals[0].State != models.StateRecovered {
		t.Errorf("day 5: patient zero = %v, want Recovered", pop.Individuals[0].State)
	}

	for day := 6; day <= 10; day++ {
		engine.Step(pop, day, rng)
	}
	c := pop.Counts()
	if c.Recovered != 10 || c.Exposed != 0 || c.Infected != 0 {
		t.Errorf("day 10 counts = %+v, want all Recovered", c)
	}
}

func TestStep_SnapshotPreventsChaining(t *testing.T) {
	// On a line-like ring with degree 2 and certain transmission, infection
	// can move at most one hop per day no matter the visiting order.
	pop := ringPopulation(t, 20, 2)
	pop.Get(10).SetState(models.StateInfected)
	engine := NewEngine(models.Virus{InfectRate: 1, InfectionTime: 100, LatentPeriod: 1}, nil)

	engine.Step(pop, 1, newRNG(1))
	got := statesOf(pop, 8, 9, 10, 11, 12)
	want := []models.State{
		models.StateSusceptible, models.StateExposed, models.StateInfected,
		models.StateExposed, models.StateSusceptible,
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("individual %d = %v, want %v", 8+i, got[i], want[i])
		}
	}
}

func TestStep_VaccinatedNeverExposed(t *testing.T) {
	pop := ringPopulation(t, 10, 4)
	pop.Get(0).SetState(models.StateInfected)
	for _, id := range pop.Neighbors(0) {
		pop.Get(id).Vaccinated = true
	}
	engine := NewEngine(models.Virus{InfectRate: 1, InfectionTime: 30}, nil)
	rng := newRNG(3)

	for day := 1; day <= 20; day++ {
		engine.Step(pop, day, rng)
		for _, id := range []int{1, 2, 8, 9} {
			if s := pop.Individuals[id].State; s != models.StateSusceptible {
				t.Fatalf("day %d: vaccinated individual %d = %v", day, id, s)
			}
		}
	}
}

func TestStep_QuarantinedInfectedDoesNotSpread(t *testing.T) {
	pop := ringPopulation(t, 10, 4)
	pop.Get(0).SetState(models.StateInfected)
	pop.Quarantine(0)
	engine := NewEngine(models.Virus{InfectRate: 1, InfectionTime: 5}, nil)
	rng := newRNG(4)

	for day := 1; day <= 5; day++ {
		engine.Step(pop, day, rng)
	}
	c := pop.Counts()
	if c.Susceptible != 9 || c.Recovered != 1 {
		t.Errorf("counts = %+v, want 9 Susceptible and 1 Recovered", c)
	}
}

func TestStep_BoundedInfectiousDuration(t *testing.T) {
	for _, infectionTime := range []int{0, 1, 2, 5} {
		pop := ringPopulation(t, 30, 4)
		pop.Get(0).SetState(models.StateInfected)
		engine := NewEngine(models.Virus{InfectRate: 0.8, CureRate: 0.1, InfectionTime: infectionTime}, nil)
		rng := newRNG(5)

		run := make([]int, pop.Len())
		run[0] = 1 // patient zero is infected at the end of day 0
		limit := infectionTime
		if limit < 1 {
			limit = 1
		}
		for day := 1; day <= 40; day++ {
			engine.Step(pop, day, rng)
			for id := range pop.Individuals {
				if pop.Individuals[id].State == models.StateInfected {
					run[id]++
					if run[id] > limit {
						t.Fatalf("infection_time=%d: individual %d infected for %d days", infectionTime, id, run[id])
					}
				}
			}
		}
	}
}

func TestStep_LatentPeriod(t *testing.T) {
	pop := ringPopulation(t, 10, 2)
	pop.Get(5).SetState(models.StateExposed)
	engine := NewEngine(models.Virus{InfectRate: 0, InfectionTime: 10, LatentPeriod: 3}, nil)
	rng := newRNG(6)

	for day := 1; day <= 2; day++ {
		engine.Step(pop, day, rng)
		if s := pop.Individuals[5].State; s != models.StateExposed {
			t.Fatalf("day %d: state = %v, want Exposed", day, s)
		}
	}
	engine.Step(pop, 3, rng)
	if s := pop.Individuals[5].State; s != models.StateInfected {
		t.Errorf("day 3: state = %v, want Infected", s)
	}
}

func TestStep_RecoveredIsTerminal(t *testing.T) {
	pop := ringPopulation(t, 10, 4)
	pop.Get(0).SetState(models.StateInfected)
	pop.Get(1).SetState(models.StateRecovered)
	engine := NewEngine(models.Virus{InfectRate: 1, InfectionTime: 3}, nil)
	rng := newRNG(7)

	for day := 1; day <= 15; day++ {
		engine.Step(pop, day, rng)
		if s := pop.Individuals[1].State; s != models.StateRecovered {
			t.Fatalf("day %d: recovered individual moved to %v", day, s)
		}
	}
}

func TestStep_Deterministic(t *testing.T) {
	run := func() []models.State {
		pop, err := population.Build(population.Params{Size: 200, AvgDegree: 6, RewireProb: 0.2}, newRNG(8))
		if err != nil {
			t.Fatal(err)
		}
		pop.Get(0).SetState(models.StateInfected)
		engine := NewEngine(models.Virus{InfectRate: 0.3, CureRate: 0.1, InfectionTime: 4}, nil)
		rng := newRNG(9)
		for day := 1; day <= 30; day++ {
			engine.Step(pop, day, rng)
		}
		return pop.States()
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("individual %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestTransmissionProbability(t *testing.T) {
	v := models.Virus{InfectRate: 0.4}
	tests := []struct {
		name string
		ind  models.Individual
		want float64
	}{
		{"baseline", models.Individual{RiskFactor: 1}, 0.4},
		{"scaled", models.Individual{RiskFactor: 2}, 0.8},
		{"clamped", models.Individual{RiskFactor: 5}, 1},
		{"zero risk", models.Individual{RiskFactor: 0}, 0},
		{"vaccinated", models.Individual{RiskFactor: 2, Vaccinated: true}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TransmissionProbability(v, &tt.ind); got != tt.want {
				t.Errorf("TransmissionProbability() = %v, want %v", got, tt.want)
			}
		})
	}
}
