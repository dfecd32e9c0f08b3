package models

// Individual is a node in the contact network.
// IDs are dense indices into the population, stable for the whole run.
type Individual struct {
	ID         int     `json:"id"`
	Age        int     `json:"age"`
	AgeGroup   string  `json:"age_group"`
	RiskFactor float64 `json:"risk_factor"`

	State       State `json:"state"`
	DaysInState int   `json:"days_in_state"`

	Vaccinated  bool `json:"vaccinated"`
	Quarantined bool `json:"quarantined"`
}

// SetState moves the individual to s and resets the day counter.
func (ind *Individual) SetState(s State) {
	ind.State = s
	ind.DaysInState = 0
}
