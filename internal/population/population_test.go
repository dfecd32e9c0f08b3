package population

import (
	"errors"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/nvandessel/episim/internal/models"
)

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func TestBuild(t *testing.T) {
	pop, err := Build(Params{
		Size:        100,
		AvgDegree:   6,
		RewireProb:  0.1,
		RiskFactors: map[string]float64{"65+": 2.5, "0-17": 0.5},
	}, newRNG(1))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if pop.Len() != 100 {
		t.Errorf("Len() = %d, want 100", pop.Len())
	}
	if pop.Network.Size() != 100 {
		t.Errorf("Network.Size() = %d, want 100", pop.Network.Size())
	}
	if pop.Network.EdgeCount() != 300 {
		t.Errorf("Network.EdgeCount() = %d, want 300", pop.Network.EdgeCount())
	}

	groups := make(map[string]AgeGroup)
	for _, g := range DefaultAgeGroups() {
		groups[g.Label] = g
	}
	for i, ind := range pop.Individuals {
		if ind.ID != i {
			t.Errorf("Individuals[%d].ID = %d", i, ind.ID)
		}
		if ind.State != models.StateSusceptible {
			t.Errorf("Individuals[%d].State = %v, want Susceptible", i, ind.State)
		}
		g, ok := groups[ind.AgeGroup]
		if !ok {
			t.Fatalf("Individuals[%d].AgeGroup = %q not in default groups", i, ind.AgeGroup)
		}
		if ind.Age < g.MinAge || ind.Age > g.MaxAge {
			t.Errorf("Individuals[%d].Age = %d outside %q", i, ind.Age, g.Label)
		}
		wantRisk := 1.0
		switch ind.AgeGroup {
		case "65+":
			wantRisk = 2.5
		case "0-17":
			wantRisk = 0.5
		}
		if ind.RiskFactor != wantRisk {
			t.Errorf("Individuals[%d] (%s).RiskFactor = %v, want %v", i, ind.AgeGroup, ind.RiskFactor, wantRisk)
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"size one", Params{Size: 1}},
		{"odd degree", Params{Size: 10, AvgDegree: 5}},
		{"degree too large", Params{Size: 4, AvgDegree: 4}},
		{"negative risk", Params{Size: 10, AvgDegree: 2, RiskFactors: map[string]float64{"65+": -1}}},
		{"NaN risk", Params{Size: 10, AvgDegree: 2, RiskFactors: map[string]float64{"65+": math.NaN()}}},
		{"empty label", Params{Size: 10, AvgDegree: 2, AgeGroups: []AgeGroup{{MaxAge: 5, Weight: 1}}}},
		{"inverted bounds", Params{Size: 10, AvgDegree: 2, AgeGroups: []AgeGroup{{Label: "x", MinAge: 9, MaxAge: 5, Weight: 1}}}},
		{"zero weights", Params{Size: 10, AvgDegree: 2, AgeGroups: []AgeGroup{{Label: "x", MaxAge: 5}}}},
		{"duplicate labels", Params{Size: 10, AvgDegree: 2, AgeGroups: []AgeGroup{
			{Label: "x", MaxAge: 5, Weight: 1},
			{Label: "x", MinAge: 6, MaxAge: 9, Weight: 1},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.params, newRNG(1))
			if !errors.Is(err, models.ErrConfiguration) {
				t.Errorf("Build() error = %v, want configuration error", err)
			}
		})
	}
}

func TestBuild_Deterministic(t *testing.T) {
	params := Params{Size: 50, AvgDegree: 4, RewireProb: 0.2}
	a, err := Build(params, newRNG(99))
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(params, newRNG(99))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a.Individuals, b.Individuals) {
		t.Error("same seed produced different individuals")
	}
	if !reflect.DeepEqual(a.Network.Edges(), b.Network.Edges()) {
		t.Error("same seed produced different networks")
	}
}

func TestBuild_CustomAgeGroups(t *testing.T) {
	pop, err := Build(Params{
		Size:      40,
		AvgDegree: 2,
		AgeGroups: []AgeGroup{
			{Label: "never", MinAge: 0, MaxAge: 10, Weight: 0},
			{Label: "adult", MinAge: 30, MaxAge: 30, Weight: 1},
		},
	}, newRNG(5))
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	dist := pop.AgeDistribution()
	if dist["adult"] != 40 || dist["never"] != 0 {
		t.Errorf("AgeDistribution() = %v, want all adult", dist)
	}
	for _, ind := range pop.Individuals {
		if ind.Age != 30 {
			t.Errorf("Age = %d, want 30", ind.Age)
		}
	}
}

func TestRiskFor(t *testing.T) {
	table := map[string]float64{"65+": 3}
	if got := RiskFor(table, "65+"); got != 3 {
		t.Errorf("RiskFor(65+) = %v, want 3", got)
	}
	if got := RiskFor(table, "18-34"); got != 1 {
		t.Errorf("RiskFor(18-34) = %v, want 1", got)
	}
	if got := RiskFor(nil, "x"); got != 1 {
		t.Errorf("RiskFor(nil) = %v, want 1", got)
	}
}

func TestQuarantineRelease(t *testing.T) {
	pop, err := Build(Params{Size: 10, AvgDegree: 4}, newRNG(1))
	if err != nil {
		t.Fatal(err)
	}
	before := pop.Neighbors(3)

	if !pop.Quarantine(3) {
		t.Fatal("Quarantine(3) = false")
	}
	if pop.Quarantine(3) {
		t.Error("Quarantine(3) twice = true")
	}
	if !pop.Get(3).Quarantined {
		t.Error("Quarantined flag not set")
	}
	if n := pop.Neighbors(3); len(n) != 0 {
		t.Errorf("Neighbors(3) while quarantined = %v", n)
	}

	if !pop.Release(3) {
		t.Fatal("Release(3) = false")
	}
	if pop.Release(3) {
		t.Error("Release(3) twice = true")
	}
	if !reflect.DeepEqual(pop.Neighbors(3), before) {
		t.Errorf("Neighbors(3) after release = %v, want %v", pop.Neighbors(3), before)
	}
}

func TestCountsAndStates(t *testing.T) {
	pop, err := Build(Params{Size: 6, AvgDegree: 2}, newRNG(1))
	if err != nil {
		t.Fatal(err)
	}
	pop.Get(0).SetState(models.StateInfected)
	pop.Get(1).SetState(models.StateRecovered)
	pop.Get(2).SetState(models.StateExposed)

	c := pop.Counts()
	if c.Susceptible != 3 || c.Exposed != 1 || c.Infected != 1 || c.Recovered != 1 {
		t.Errorf("Counts() = %+v", c)
	}

	states := pop.States()
	pop.Get(0).SetState(models.StateRecovered)
	if states[0] != models.StateInfected {
		t.Error("States() did not return a copy")
	}

	snap := pop.Snapshot()
	snap[5].Age = -1
	if pop.Get(5).Age == -1 {
		t.Error("Snapshot() did not return a copy")
	}
}
