package simulation

import (
	"math"
	"time"

	"github.com/nvandessel/episim/internal/models"
)

// Summary aggregates a completed run. Count maps are keyed by short state
// name ("S", "E", "I", "R") and always carry all four keys.
type Summary struct {
	RunID           string             `json:"RunID"`
	RunUUID         string             `json:"RunUUID"`
	Purpose         string             `json:"Purpose"`
	ParamsChanged   string             `json:"ParametersChanged"`
	Virus           string             `json:"Virus"`
	PopulationSize  int                `json:"PopulationSize"`
	DurationDays    int                `json:"DurationDays"`
	Seed            uint64             `json:"Seed"`
	RuntimeMS       float64            `json:"Runtime_ms"`
	Timestamp       time.Time          `json:"Timestamp"`
	FinalState      map[string]int     `json:"FinalState"`
	TotalCounts     map[string]int     `json:"TotalCounts"`
	AvgCounts       map[string]float64 `json:"AvgCounts"`
	EverInfected    int                `json:"EverInfected"`
	Throughput      float64            `json:"Throughput"`
	AgeDistribution map[string]int     `json:"AgeDistribution"`
}

// summarize builds the run summary from the daily history.
//
// TotalCounts sums each state over all days (person-days). EverInfected is
// the number of individuals who reached Infected; states only move forward,
// so that is everyone ending in Infected or Recovered. Individuals still
// Exposed on the last day are not counted. Throughput divides EverInfected
// by the elapsed milliseconds.
func (s *Simulation) summarize(history []models.DayCounts, elapsed time.Duration) Summary {
	var final models.DayCounts
	if len(history) > 0 {
		final = history[len(history)-1]
	} else {
		final = s.pop.Counts()
	}

	var total models.DayCounts
	for _, day := range history {
		for _, st := range models.AllStates {
			total.Add(st, day.Get(st))
		}
	}

	avg := make(map[string]float64, len(models.AllStates))
	for _, st := range models.AllStates {
		if len(history) > 0 {
			avg[st.Short()] = float64(total.Get(st)) / float64(len(history))
		} else {
			avg[st.Short()] = 0
		}
	}

	runtimeMS := float64(elapsed) / float64(time.Millisecond)
	ever := final.Infected + final.Recovered
	var throughput float64
	if runtimeMS > 0 {
		throughput = float64(ever) / runtimeMS
	}

	return Summary{
		RunID:           s.runID,
		RunUUID:         s.runUUID.String(),
		Purpose:         s.cfg.Simulation.Purpose,
		ParamsChanged:   s.cfg.Simulation.ParamsChanged,
		Virus:           s.engine.Virus().Name,
		PopulationSize:  s.pop.Len(),
		DurationDays:    len(history),
		Seed:            s.seed,
		RuntimeMS:       round4(runtimeMS),
		Timestamp:       s.now(),
		FinalState:      final.Map(),
		TotalCounts:     total.Map(),
		AvgCounts:       avg,
		EverInfected:    ever,
		Throughput:      round4(throughput),
		AgeDistribution: s.pop.AgeDistribution(),
	}
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
