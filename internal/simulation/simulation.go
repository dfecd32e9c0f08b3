package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/episim/internal/config"
	"github.com/nvandessel/episim/internal/disease"
	"github.com/nvandessel/episim/internal/intervention"
	"github.com/nvandessel/episim/internal/logging"
	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
)

// Phase is the lifecycle position of a Simulation.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseSeeded
	PhaseRunning
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseSeeded:
		return "seeded"
	case PhaseRunning:
		return "running"
	case PhaseCompleted:
		return "completed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Result is everything a completed run produced.
type Result struct {
	History    []models.DayCounts      `json:"history"`
	Events     []models.Event          `json:"events"`
	Decisions  []intervention.Decision `json:"decisions,omitempty"`
	Summary    Summary                 `json:"summary"`
	Population []models.Individual     `json:"-"`
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the operational logger. Nil discards.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer receives intervention decisions.
func WithTracer(t intervention.Tracer) Option {
	return func(s *Simulation) { s.tracer = t }
}

// WithRunID sets the run identifier recorded in the summary.
func WithRunID(id string) Option {
	return func(s *Simulation) { s.runID = id }
}

// WithClock replaces time.Now, for tests that need a fixed timestamp.
func WithClock(now func() time.Time) Option {
	return func(s *Simulation) { s.now = now }
}

// Simulation runs one epidemic. It is not safe for concurrent use and Run
// may be called only once.
type Simulation struct {
	cfg     *config.Config
	seed    uint64
	rng     *rand.Rand
	pop     *population.Population
	engine  *disease.Engine
	policy  *intervention.Policy
	logger  *slog.Logger
	tracer  intervention.Tracer
	runID   string
	runUUID uuid.UUID
	now     func() time.Time
	phase   Phase
}

// New validates cfg, builds the population and seeds patient zero.
// When cfg.Simulation.Seed is 0 a seed is derived from the clock; Seed
// reports the value actually used.
func New(cfg *config.Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := newSimulation(cfg, opts)

	pop, err := population.Build(cfg.PopulationParams(), s.rng)
	if err != nil {
		return nil, fmt.Errorf("building population: %w", err)
	}
	if err := s.init(pop); err != nil {
		return nil, err
	}
	return s, nil
}

func newSimulation(cfg *config.Config, opts []Option) *Simulation {
	s := &Simulation{
		cfg:     cfg,
		logger:  slog.New(slog.DiscardHandler),
		runUUID: uuid.New(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.seed = cfg.Simulation.Seed
	if s.seed == 0 {
		s.seed = uint64(s.now().UnixNano())
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	return s
}

// init wires the engine and policy and infects patient zero.
func (s *Simulation) init(pop *population.Population) error {
	policy, err := intervention.NewPolicy(s.cfg.Interventions,
		intervention.WithTracer(s.tracer),
		intervention.WithLogger(s.logger))
	if err != nil {
		return err
	}
	s.policy = policy
	s.engine = disease.NewEngine(s.cfg.VirusModel(), s.logger)
	s.pop = pop

	if pop == nil || pop.Len() == 0 {
		return &models.StateError{Reason: "population is empty"}
	}
	zero := s.cfg.Simulation.PatientZero
	if zero < 0 || zero >= pop.Len() {
		return &models.StateError{Reason: fmt.Sprintf("patient zero %d outside population of %d", zero, pop.Len())}
	}
	pop.Get(zero).SetState(models.StateInfected)
	s.phase = PhaseSeeded

	s.logger.Debug("simulation seeded",
		"run_id", s.runID, "seed", s.seed, "size", pop.Len(),
		"edges", pop.Network.EdgeCount(), "patient_zero", zero)
	return nil
}

// Seed returns the seed driving the run.
func (s *Simulation) Seed() uint64 { return s.seed }

// RunUUID returns the globally unique id of this run.
func (s *Simulation) RunUUID() uuid.UUID { return s.runUUID }

// Phase returns the lifecycle position.
func (s *Simulation) Phase() Phase { return s.phase }

// Population exposes the live population, for inspection before or after Run.
func (s *Simulation) Population() *population.Population { return s.pop }

// Run executes every configured day and returns the collected data.
// The context is checked between days; a cancelled run returns the context
// error and no result. A second call returns a StateError.
func (s *Simulation) Run(ctx context.Context) (*Result, error) {
	if s.phase != PhaseSeeded {
		return nil, &models.StateError{Reason: "simulation already run"}
	}
	s.phase = PhaseRunning
	defer func() { s.phase = PhaseCompleted }()

	duration := s.cfg.Simulation.Duration
	start := s.now()
	history := make([]models.DayCounts, 0, duration)
	var events []models.Event
	var decisions []intervention.Decision
	extinct := false

	for day := 1; day <= duration; day++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation cancelled on day %d: %w", day, err)
		}

		prev := s.pop.States()
		decisions = append(decisions, s.policy.Apply(day, s.pop, s.rng)...)
		s.engine.Step(s.pop, day, s.rng)

		counts := s.pop.Counts()
		counts.Day = day
		history = append(history, counts)
		events = appendEvents(events, day, prev, s.pop)

		if !extinct && counts.Exposed == 0 && counts.Infected == 0 {
			extinct = true
			s.logger.Log(ctx, logging.LevelTrace, "epidemic extinct", "day", day)
		}
	}
	elapsed := s.now().Sub(start)

	summary := s.summarize(history, elapsed)
	s.logger.Info("simulation complete",
		"run_id", s.runID, "days", duration, "ever_infected", summary.EverInfected,
		"runtime_ms", summary.RuntimeMS)

	return &Result{
		History:    history,
		Events:     events,
		Decisions:  decisions,
		Summary:    summary,
		Population: s.pop.Snapshot(),
	}, nil
}

// appendEvents records every individual whose state differs from prev,
// in ascending id order.
func appendEvents(events []models.Event, day int, prev []models.State, pop *population.Population) []models.Event {
	for i := range pop.Individuals {
		ind := &pop.Individuals[i]
		if ind.State == prev[i] {
			continue
		}
		events = append(events, models.Event{
			Day:      day,
			PersonID: ind.ID,
			Age:      ind.Age,
			AgeGroup: ind.AgeGroup,
			From:     prev[i],
			To:       ind.State,
		})
	}
	return events
}
