// Package intervention applies public-health rules to a population.
//
// Rules are plain data. A single Policy interprets them once per simulated
// day, always in the order vaccinate, social distancing, quarantine, so that
// protective effects land before isolation narrows the contact surface.
package intervention

import (
	"fmt"
	"math"

	"github.com/nvandessel/episim/internal/models"
)

// Kind identifies what a rule does.
type Kind string

const (
	KindVaccinate  Kind = "vaccinate"         // Flag susceptible individuals as immune
	KindDistancing Kind = "social_distancing" // Suppress a share of all contacts
	KindQuarantine Kind = "quarantine"        // Isolate infected individuals
)

// order returns the position of k in the daily application sequence.
func (k Kind) order() int {
	switch k {
	case KindVaccinate:
		return 0
	case KindDistancing:
		return 1
	case KindQuarantine:
		return 2
	default:
		return 3
	}
}

// ValidKinds lists the supported rule kinds in application order.
var ValidKinds = []Kind{KindVaccinate, KindDistancing, KindQuarantine}

// Rule describes one intervention.
type Rule struct {
	// Name is an optional label used in traces; defaults to the kind.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Kind Kind `json:"kind" yaml:"kind"`

	// StartDay is the first simulated day (1-based) the rule is in force.
	StartDay int `json:"start_day" yaml:"start_day"`

	// EndDay is the first day the rule is no longer in force; 0 means never.
	// Effects that can be reverted are reverted on this day.
	EndDay int `json:"end_day,omitempty" yaml:"end_day,omitempty"`

	// Coverage is the share of eligible individuals vaccinated per day.
	Coverage float64 `json:"coverage,omitempty" yaml:"coverage,omitempty"`

	// Reduction is the share of active contacts removed by distancing.
	Reduction float64 `json:"reduction,omitempty" yaml:"reduction,omitempty"`
}

// Label returns the rule's name, or its kind when unnamed.
func (r Rule) Label() string {
	if r.Name != "" {
		return r.Name
	}
	return string(r.Kind)
}

// activeOn reports whether day falls inside the rule's window.
func (r Rule) activeOn(day int) bool {
	if day < r.StartDay {
		return false
	}
	return r.EndDay == 0 || day < r.EndDay
}

// endedBy reports whether the rule's window closed on or before day.
func (r Rule) endedBy(day int) bool {
	return r.EndDay != 0 && day >= r.EndDay
}

// Validate checks a rule. index is used to name the offending field.
func (r Rule) Validate(index int) error {
	field := func(name string) string {
		return fmt.Sprintf("interventions[%d].%s", index, name)
	}

	switch r.Kind {
	case KindVaccinate, KindDistancing, KindQuarantine:
	default:
		return &models.ConfigError{Field: field("kind"), Reason: fmt.Sprintf("unknown kind %q (valid: vaccinate, social_distancing, quarantine)", r.Kind)}
	}
	if r.StartDay < 1 {
		return &models.ConfigError{Field: field("start_day"), Reason: "must be at least 1"}
	}
	if r.EndDay != 0 && r.EndDay <= r.StartDay {
		return &models.ConfigError{Field: field("end_day"), Reason: "must be after start_day"}
	}
	if !unitInterval(r.Coverage) {
		return &models.ConfigError{Field: field("coverage"), Reason: "must be between 0 and 1"}
	}
	if !unitInterval(r.Reduction) {
		return &models.ConfigError{Field: field("reduction"), Reason: "must be between 0 and 1"}
	}
	return nil
}

func unitInterval(x float64) bool {
	return !math.IsNaN(x) && x >= 0 && x <= 1
}
