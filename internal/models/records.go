package models

import "fmt"

// DayCounts holds the number of individuals in each state at the end of a day.
type DayCounts struct {
	Day         int `json:"day"`
	Susceptible int `json:"S"`
	Exposed     int `json:"E"`
	Infected    int `json:"I"`
	Recovered   int `json:"R"`
}

// Get returns the count for s.
func (c DayCounts) Get(s State) int {
	switch s {
	case StateSusceptible:
		return c.Susceptible
	case StateExposed:
		return c.Exposed
	case StateInfected:
		return c.Infected
	case StateRecovered:
		return c.Recovered
	default:
		return 0
	}
}

// Add increments the count for s by n.
func (c *DayCounts) Add(s State, n int) {
	switch s {
	case StateSusceptible:
		c.Susceptible += n
	case StateExposed:
		c.Exposed += n
	case StateInfected:
		c.Infected += n
	case StateRecovered:
		c.Recovered += n
	}
}

// Total returns the sum over all states.
func (c DayCounts) Total() int {
	return c.Susceptible + c.Exposed + c.Infected + c.Recovered
}

// Map returns the counts keyed by short state name. All four keys are present.
func (c DayCounts) Map() map[string]int {
	m := make(map[string]int, len(AllStates))
	for _, s := range AllStates {
		m[s.Short()] = c.Get(s)
	}
	return m
}

// Event records a single state change of one individual.
type Event struct {
	Day      int    `json:"day"`
	PersonID int    `json:"person_id"`
	Age      int    `json:"age"`
	AgeGroup string `json:"age_group"`
	From     State  `json:"from"`
	To       State  `json:"to"`
}

// Label renders the transition as "<Old> → <New>".
func (e Event) Label() string {
	return fmt.Sprintf("%s → %s", e.From, e.To)
}
