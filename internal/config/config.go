// Package config provides unified configuration loading for episim.
// It supports loading from YAML (or JSON) files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nvandessel/episim/internal/constants"
	"github.com/nvandessel/episim/internal/intervention"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/network"
	"github.com/nvandessel/episim/internal/population"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file picked up from the working directory when
// no explicit path is given.
const DefaultFile = "episim.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "EPISIM_"

// Config contains all episim configuration settings.
type Config struct {
	// Simulation controls the run itself.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Virus parameterizes the disease.
	Virus VirusConfig `json:"virus" yaml:"virus"`

	// Population controls the synthetic population and its contact network.
	Population PopulationConfig `json:"population" yaml:"population"`

	// Interventions are applied every day in kind order.
	Interventions []intervention.Rule `json:"interventions,omitempty" yaml:"interventions,omitempty"`

	// Output controls where run artifacts go.
	Output OutputConfig `json:"output" yaml:"output"`

	// Logging contains settings for operational and decision logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the day loop.
type SimulationConfig struct {
	// Duration is the number of simulated days.
	Duration int `json:"duration" yaml:"duration" validate:"gte=1"`

	// Purpose and ParamsChanged are free text recorded in the run log.
	Purpose       string `json:"purpose" yaml:"purpose"`
	ParamsChanged string `json:"params_changed" yaml:"params_changed"`

	// Seed drives every random draw. 0 derives a seed from the clock; the
	// seed actually used is recorded in the run summary.
	Seed uint64 `json:"seed" yaml:"seed"`

	// PatientZero is the id of the individual infected before day 1.
	PatientZero int `json:"patient_zero" yaml:"patient_zero" validate:"gte=0"`
}

// VirusConfig mirrors models.Virus with file tags.
type VirusConfig struct {
	Name          string  `json:"name" yaml:"name" validate:"required"`
	InfectRate    float64 `json:"infect_rate" yaml:"infect_rate" validate:"gte=0,lte=1"`
	CureRate      float64 `json:"cure_rate" yaml:"cure_rate" validate:"gte=0,lte=1"`
	InfectionTime int     `json:"infection_time" yaml:"infection_time" validate:"gte=0"`
	LatentPeriod  int     `json:"latent_period" yaml:"latent_period" validate:"gte=1"`
}

// PopulationConfig configures population.Build.
type PopulationConfig struct {
	Size       int     `json:"size" yaml:"size" validate:"gt=1"`
	AvgDegree  int     `json:"avg_degree" yaml:"avg_degree" validate:"gte=0"`
	RewireProb float64 `json:"rewire_prob" yaml:"rewire_prob" validate:"gte=0,lte=1"`

	// RiskFactors maps age group labels to infection multipliers.
	// Groups without an entry use 1.0.
	RiskFactors map[string]float64 `json:"risk_factors,omitempty" yaml:"risk_factors,omitempty"`

	// AgeGroups overrides the default age distribution.
	AgeGroups []population.AgeGroup `json:"age_groups,omitempty" yaml:"age_groups,omitempty"`
}

// OutputConfig configures run artifacts.
type OutputConfig struct {
	// ResultsDir receives every file a run writes.
	ResultsDir string `json:"results_dir" yaml:"results_dir" validate:"required"`

	// Archive writes a compressed run archive after each run.
	Archive bool `json:"archive" yaml:"archive"`

	// KeepArchives retains only the newest N archives; 0 keeps all.
	KeepArchives int `json:"keep_archives" yaml:"keep_archives" validate:"gte=0"`
}

// LoggingConfig configures episim's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables decision logging to <results>/decisions.jsonl.
	Level string `json:"level" yaml:"level" validate:"omitempty,oneof=info debug trace"`
}

// Default returns a Config with the documented defaults.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Duration:      constants.DefaultDuration,
			Purpose:       constants.DefaultPurpose,
			ParamsChanged: constants.DefaultParamsChanged,
			PatientZero:   constants.DefaultPatientZero,
		},
		Virus: VirusConfig{
			Name:          constants.DefaultVirusName,
			InfectRate:    constants.DefaultInfectRate,
			CureRate:      constants.DefaultCureRate,
			InfectionTime: constants.DefaultInfectionTime,
			LatentPeriod:  constants.DefaultLatentPeriod,
		},
		Population: PopulationConfig{
			Size:       constants.DefaultPopulationSize,
			AvgDegree:  constants.DefaultAvgDegree,
			RewireProb: constants.DefaultRewireProb,
		},
		Output: OutputConfig{
			ResultsDir:   constants.DefaultResultsDir,
			Archive:      true,
			KeepArchives: constants.DefaultKeepArchives,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration.
// Order: defaults -> path (or ./episim.yaml when path is empty) -> environment variables
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		if _, statErr := os.Stat(DefaultFile); statErr == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		fileConfig, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		config = fileConfig
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML or JSON file.
// Unset fields keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Simulation.Purpose = expandEnvVars(config.Simulation.Purpose)
	config.Simulation.ParamsChanged = expandEnvVars(config.Simulation.ParamsChanged)
	config.Output.ResultsDir = expandEnvVars(config.Output.ResultsDir)

	return config, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report yaml field names so errors match what users write.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that the configuration is valid. Failures are
// *models.ConfigError values naming the offending field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return &models.ConfigError{Field: "config", Reason: err.Error()}
	}

	if err := c.VirusModel().Validate(); err != nil {
		return err
	}
	p := c.Population
	if err := network.ValidateParams(p.Size, p.AvgDegree, p.RewireProb); err != nil {
		return err
	}
	if err := population.ValidateRiskFactors(p.RiskFactors); err != nil {
		return err
	}
	if len(p.AgeGroups) > 0 {
		if err := population.ValidateAgeGroups(p.AgeGroups); err != nil {
			return err
		}
	}
	for i, r := range c.Interventions {
		if err := r.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// fieldError converts a validator failure into a ConfigError.
func fieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	var reason string
	switch fe.Tag() {
	case "required":
		reason = "must be set"
	case "gte":
		reason = "must be at least " + fe.Param()
	case "gt":
		reason = "must be greater than " + fe.Param()
	case "lte":
		reason = "must be at most " + fe.Param()
	case "oneof":
		reason = fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		reason = fmt.Sprintf("failed %q check", fe.Tag())
	}
	return &models.ConfigError{Field: field, Reason: fmt.Sprintf("%s, got %v", reason, fe.Value())}
}

// VirusModel returns the immutable virus described by the config.
func (c *Config) VirusModel() models.Virus {
	return models.Virus{
		Name:          c.Virus.Name,
		InfectRate:    c.Virus.InfectRate,
		CureRate:      c.Virus.CureRate,
		InfectionTime: c.Virus.InfectionTime,
		LatentPeriod:  c.Virus.LatentPeriod,
	}
}

// PopulationParams returns the parameters for population.Build.
func (c *Config) PopulationParams() population.Params {
	return population.Params{
		Size:        c.Population.Size,
		AvgDegree:   c.Population.AvgDegree,
		RewireProb:  c.Population.RewireProb,
		RiskFactors: c.Population.RiskFactors,
		AgeGroups:   c.Population.AgeGroups,
	}
}

// Clone returns a deep copy so callers can adjust a config per run.
func (c *Config) Clone() *Config {
	out := *c
	if c.Population.RiskFactors != nil {
		out.Population.RiskFactors = make(map[string]float64, len(c.Population.RiskFactors))
		for k, v := range c.Population.RiskFactors {
			out.Population.RiskFactors[k] = v
		}
	}
	out.Population.AgeGroups = append([]population.AgeGroup(nil), c.Population.AgeGroups...)
	out.Interventions = append([]intervention.Rule(nil), c.Interventions...)
	return &out
}

// Keys lists every scalar key accepted by Get and Set, in display order.
var Keys = []string{
	"simulation.duration",
	"simulation.purpose",
	"simulation.params_changed",
	"simulation.seed",
	"simulation.patient_zero",
	"virus.name",
	"virus.infect_rate",
	"virus.cure_rate",
	"virus.infection_time",
	"virus.latent_period",
	"population.size",
	"population.avg_degree",
	"population.rewire_prob",
	"output.results_dir",
	"output.archive",
	"output.keep_archives",
	"logging.level",
}

// Get retrieves a configuration value by dot-notation key.
func (c *Config) Get(key string) (any, bool) {
	switch key {
	case "simulation.duration":
		return c.Simulation.Duration, true
	case "simulation.purpose":
		return c.Simulation.Purpose, true
	case "simulation.params_changed":
		return c.Simulation.ParamsChanged, true
	case "simulation.seed":
		return c.Simulation.Seed, true
	case "simulation.patient_zero":
		return c.Simulation.PatientZero, true
	case "virus.name":
		return c.Virus.Name, true
	case "virus.infect_rate":
		return c.Virus.InfectRate, true
	case "virus.cure_rate":
		return c.Virus.CureRate, true
	case "virus.infection_time":
		return c.Virus.InfectionTime, true
	case "virus.latent_period":
		return c.Virus.LatentPeriod, true
	case "population.size":
		return c.Population.Size, true
	case "population.avg_degree":
		return c.Population.AvgDegree, true
	case "population.rewire_prob":
		return c.Population.RewireProb, true
	case "output.results_dir":
		return c.Output.ResultsDir, true
	case "output.archive":
		return c.Output.Archive, true
	case "output.keep_archives":
		return c.Output.KeepArchives, true
	case "logging.level":
		return c.Logging.Level, true
	default:
		return nil, false
	}
}

// Set parses value and assigns it to the dot-notation key. Range checks are
// left to Validate. The config is unchanged when value does not parse.
func (c *Config) Set(key, value string) error {
	switch key {
	case "simulation.duration":
		return setInt(&c.Simulation.Duration, key, value)
	case "simulation.purpose":
		c.Simulation.Purpose = value
	case "simulation.params_changed":
		c.Simulation.ParamsChanged = value
	case "simulation.seed":
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return &models.ConfigError{Field: key, Reason: fmt.Sprintf("invalid seed: %s", value)}
		}
		c.Simulation.Seed = seed
	case "simulation.patient_zero":
		return setInt(&c.Simulation.PatientZero, key, value)
	case "virus.name":
		c.Virus.Name = value
	case "virus.infect_rate":
		return setFloat(&c.Virus.InfectRate, key, value)
	case "virus.cure_rate":
		return setFloat(&c.Virus.CureRate, key, value)
	case "virus.infection_time":
		return setInt(&c.Virus.InfectionTime, key, value)
	case "virus.latent_period":
		return setInt(&c.Virus.LatentPeriod, key, value)
	case "population.size":
		return setInt(&c.Population.Size, key, value)
	case "population.avg_degree":
		return setInt(&c.Population.AvgDegree, key, value)
	case "population.rewire_prob":
		return setFloat(&c.Population.RewireProb, key, value)
	case "output.results_dir":
		c.Output.ResultsDir = value
	case "output.archive":
		c.Output.Archive = value == "true" || value == "1"
	case "output.keep_archives":
		return setInt(&c.Output.KeepArchives, key, value)
	case "logging.level":
		c.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

// EnvVar returns the environment variable that overrides key,
// e.g. "virus.infect_rate" -> "EPISIM_VIRUS_INFECT_RATE".
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *Config) error {
	for _, key := range Keys {
		v := os.Getenv(EnvVar(key))
		if v == "" {
			continue
		}
		if err := config.Set(key, v); err != nil {
			return fmt.Errorf("applying %s: %w", EnvVar(key), err)
		}
	}
	return nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &models.ConfigError{Field: key, Reason: fmt.Sprintf("invalid integer: %s", value)}
	}
	return n, nil
}

func setInt(dst *int, key, value string) error {
	n, err := parseInt(key, value)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key, value string) error {
	f, err := parseFloat(key, value)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, &models.ConfigError{Field: key, Reason: fmt.Sprintf("invalid number: %s", value)}
	}
	return f, nil
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
