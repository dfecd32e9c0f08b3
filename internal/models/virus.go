package models

// Virus describes transmission and recovery dynamics.
// It is created once per run and never mutated.
type Virus struct {
	Name string `json:"name" yaml:"name"`

	// InfectRate is the per-contact, per-day transmission probability.
	InfectRate float64 `json:"infect_rate" yaml:"infect_rate"`

	// CureRate is the per-day probability that an infected individual recovers.
	CureRate float64 `json:"cure_rate" yaml:"cure_rate"`

	// InfectionTime caps the infectious period in days. Recovery is forced
	// once an individual has spent this many steps infected.
	InfectionTime int `json:"infection_time" yaml:"infection_time"`

	// LatentPeriod is the number of steps spent Exposed before becoming
	// Infected. Values below 1 are treated as 1.
	LatentPeriod int `json:"latent_period" yaml:"latent_period"`
}

// Latency returns the effective latent period (at least one day).
func (v Virus) Latency() int {
	if v.LatentPeriod < 1 {
		return 1
	}
	return v.LatentPeriod
}

// Validate checks the parameter ranges.
func (v Virus) Validate() error {
	if v.InfectRate < 0 || v.InfectRate > 1 || v.InfectRate != v.InfectRate {
		return &ConfigError{Field: "virus.infect_rate", Reason: "must be between 0 and 1"}
	}
	if v.CureRate < 0 || v.CureRate > 1 || v.CureRate != v.CureRate {
		return &ConfigError{Field: "virus.cure_rate", Reason: "must be between 0 and 1"}
	}
	if v.InfectionTime < 0 {
		return &ConfigError{Field: "virus.infection_time", Reason: "must be non-negative"}
	}
	if v.LatentPeriod < 0 {
		return &ConfigError{Field: "virus.latent_period", Reason: "must be non-negative"}
	}
	return nil
}
