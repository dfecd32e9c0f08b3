package metrics

import (
	"os"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nvandessel/episim/internal/intervention"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/simulation"
)

func sampleResult() *simulation.Result {
	return &simulation.Result{
		History: []models.DayCounts{
			{Day: 1, Susceptible: 8, Exposed: 1, Infected: 1},
			{Day: 2, Susceptible: 6, Exposed: 1, Infected: 3},
			{Day: 3, Susceptible: 6, Infected: 2, Recovered: 2},
		},
		Events: []models.Event{
			{Day: 1, PersonID: 1, From: models.StateSusceptible, To: models.StateExposed},
			{Day: 2, PersonID: 2, From: models.StateSusceptible, To: models.StateExposed},
			{Day: 2, PersonID: 3, From: models.StateSusceptible, To: models.StateExposed},
			{Day: 2, PersonID: 1, From: models.StateExposed, To: models.StateInfected},
			{Day: 3, PersonID: 0, From: models.StateInfected, To: models.StateRecovered},
		},
		Decisions: []intervention.Decision{
			{Day: 1, Kind: intervention.KindVaccinate, Action: "vaccinate", Targets: 3},
			{Day: 2, Kind: intervention.KindVaccinate, Action: "vaccinate", Targets: 2},
		},
		Summary: simulation.Summary{
			RunID:        "007",
			RuntimeMS:    1500,
			FinalState:   map[string]int{"S": 6, "E": 0, "I": 2, "R": 2},
			EverInfected: 4,
		},
	}
}

func TestFileName(t *testing.T) {
	if got := FileName("007"); got != "run_007.prom" {
		t.Errorf("FileName() = %q", got)
	}
}

func TestObserve(t *testing.T) {
	m := New("007")
	m.Observe(sampleResult())

	gauges := []struct {
		name string
		got  float64
		want float64
	}{
		{"final susceptible", testutil.ToFloat64(m.FinalIndividuals.WithLabelValues("susceptible")), 6},
		{"final exposed", testutil.ToFloat64(m.FinalIndividuals.WithLabelValues("exposed")), 0},
		{"final recovered", testutil.ToFloat64(m.FinalIndividuals.WithLabelValues("recovered")), 2},
		{"S->E", testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("susceptible", "exposed")), 3},
		{"I->R", testutil.ToFloat64(m.TransitionsTotal.WithLabelValues("infected", "recovered")), 1},
		{"vaccinated", testutil.ToFloat64(m.InterventionTargetsTotal.WithLabelValues("vaccinate", "vaccinate")), 5},
		{"duration", testutil.ToFloat64(m.RunDurationSeconds), 1.5},
		{"days", testutil.ToFloat64(m.SimulatedDays), 3},
		{"ever infected", testutil.ToFloat64(m.EverInfected), 4},
		{"peak", testutil.ToFloat64(m.PeakInfected), 3},
	}
	for _, g := range gauges {
		if g.got != g.want {
			t.Errorf("%s = %v, want %v", g.name, g.got, g.want)
		}
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New("007")
	m.Observe(sampleResult())

	path, err := m.WriteTextfile(t.TempDir(), "007")
	if err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{
		`episim_final_individuals{run_id="007",state="infected"} 2`,
		`episim_transitions_total{from="exposed",run_id="007",to="infected"} 1`,
		`episim_ever_infected{run_id="007"} 4`,
		"# TYPE episim_transitions_total counter",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New("001"), New("002")
	a.Observe(sampleResult())

	if v := testutil.ToFloat64(b.EverInfected); v != 0 {
		t.Errorf("second registry saw first run's data: ever_infected = %v", v)
	}
	if n := testutil.CollectAndCount(b.TransitionsTotal); n != 0 {
		t.Errorf("second registry has %d transition series, want 0", n)
	}
}
