package mcp

import (
	"github.com/nvandessel/episim/internal/export"
	"github.com/nvandessel/episim/internal/intervention"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/runlog"
	"github.com/nvandessel/episim/internal/simulation"
)

// RunInput defines the input for the episim_run tool.
type RunInput struct {
	Purpose       string              `json:"purpose,omitempty" jsonschema:"Why this run was made; recorded in the run log"`
	ParamsChanged string              `json:"params_changed,omitempty" jsonschema:"Which parameters differ from the baseline; recorded in the run log"`
	Overrides     map[string]string   `json:"overrides,omitempty" jsonschema:"Configuration overrides keyed by dotted name, e.g. virus.infect_rate or population.size"`
	Interventions []intervention.Rule `json:"interventions,omitempty" jsonschema:"Intervention rules replacing the configured ones when non-empty"`
}

// RunOutput defines the output for the episim_run tool.
type RunOutput struct {
	RunID        string         `json:"run_id" jsonschema:"Zero-padded run identifier"`
	RunUUID      string         `json:"run_uuid" jsonschema:"Globally unique run identifier"`
	Seed         uint64         `json:"seed" jsonschema:"Seed that reproduces the run"`
	FinalState   map[string]int `json:"final_state" jsonschema:"Individuals per state (S, E, I, R) at the end"`
	EverInfected int            `json:"ever_infected" jsonschema:"Individuals who reached Infected during the run"`
	RuntimeMS    float64        `json:"runtime_ms" jsonschema:"Wall-clock simulation time in milliseconds"`
	Files        []export.File  `json:"files" jsonschema:"Artifacts written for the run"`
	Message      string         `json:"message" jsonschema:"Human-readable result message"`
}

// RunsInput defines the input for the episim_runs tool.
type RunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Return only the most recent N runs (default: all)"`
}

// RunsOutput defines the output for the episim_runs tool.
type RunsOutput struct {
	Runs  []runlog.Entry `json:"runs" jsonschema:"Completed runs ordered by run id"`
	Count int            `json:"count" jsonschema:"Number of runs returned"`
}

// SummaryInput defines the input for the episim_summary tool.
type SummaryInput struct {
	RunID          string `json:"run_id" jsonschema:"Run identifier, e.g. 004"`
	IncludeHistory bool   `json:"include_history,omitempty" jsonschema:"Also return the daily S/E/I/R counts"`
}

// SummaryOutput defines the output for the episim_summary tool.
type SummaryOutput struct {
	Summary simulation.Summary `json:"summary" jsonschema:"Run summary as exported"`
	History []models.DayCounts `json:"history,omitempty" jsonschema:"Daily counts when requested"`
}

// ConfigInput defines the input for the episim_config tool.
type ConfigInput struct {
	Key string `json:"key,omitempty" jsonschema:"Dotted configuration key; empty returns every key"`
}

// ConfigOutput defines the output for the episim_config tool.
type ConfigOutput struct {
	Values map[string]any `json:"values" jsonschema:"Effective configuration values keyed by dotted name"`
}
