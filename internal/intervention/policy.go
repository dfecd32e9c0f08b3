package intervention

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/episim/internal/models"
	"github.com/nvandessel/episim/internal/population"
)

// Tracer receives one structured record per intervention decision.
// logging.DecisionLogger satisfies it.
type Tracer interface {
	Log(event map[string]any)
}

// Decision summarizes what a rule did on a given day.
type Decision struct {
	Day     int    `json:"day"`
	Rule    string `json:"rule"`
	Kind    Kind   `json:"kind"`
	Action  string `json:"action"`  // "vaccinate", "suppress", "release", "quarantine"
	Targets int    `json:"targets"` // individuals or edges affected
}

// ruleState is a rule plus the bookkeeping needed for idempotence and reversal.
type ruleState struct {
	Rule
	lastDay  int
	held     []int // edge indices held by a distancing rule
	applied  bool
	released bool
}

// Policy interprets a fixed set of rules against a population.
type Policy struct {
	rules  []*ruleState
	tracer Tracer
	logger *slog.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithTracer sends every decision to t.
func WithTracer(t Tracer) Option {
	return func(p *Policy) { p.tracer = t }
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPolicy validates rules and orders them for application. Rules of the
// same kind keep their declaration order.
func NewPolicy(rules []Rule, opts ...Option) (*Policy, error) {
	states := make([]*ruleState, 0, len(rules))
	for i, r := range rules {
		if err := r.Validate(i); err != nil {
			return nil, err
		}
		states = append(states, &ruleState{Rule: r})
	}
	sort.SliceStable(states, func(i, j int) bool {
		return states[i].Kind.order() < states[j].Kind.order()
	})

	p := &Policy{
		rules:  states,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	return len(p.rules)
}

// Apply runs every rule for day. Calling Apply again for the same day has no
// further effect. Decisions with zero targets are omitted.
func (p *Policy) Apply(day int, pop *population.Population, rng *rand.Rand) []Decision {
	var decisions []Decision
	for _, rs := range p.rules {
		if rs.lastDay == day {
			continue
		}
		rs.lastDay = day

		var d []Decision
		switch rs.Kind {
		case KindVaccinate:
			d = rs.vaccinate(day, pop, rng)
		case KindDistancing:
			d = rs.distance(day, pop, rng)
		case KindQuarantine:
			d = rs.quarantine(day, pop)
		}
		for _, dec := range d {
			if dec.Targets == 0 {
				continue
			}
			p.record(dec)
			decisions = append(decisions, dec)
		}
	}
	return decisions
}

func (p *Policy) record(d Decision) {
	p.logger.Debug("intervention",
		"day", d.Day, "rule", d.Rule, "action", d.Action, "targets", d.Targets)
	if p.tracer != nil {
		p.tracer.Log(map[string]any{
			"type":    "intervention",
			"day":     d.Day,
			"rule":    d.Rule,
			"kind":    string(d.Kind),
			"action":  d.Action,
			"targets": d.Targets,
		})
	}
}

func (rs *ruleState) decision(day int, action string, targets int) Decision {
	return Decision{Day: day, Rule: rs.Label(), Kind: rs.Kind, Action: action, Targets: targets}
}

// vaccinate flags a random share of susceptible, unvaccinated individuals.
func (rs *ruleState) vaccinate(day int, pop *population.Population, rng *rand.Rand) []Decision {
	if !rs.activeOn(day) {
		return nil
	}
	eligible := make([]int, 0, pop.Len())
	for i := range pop.Individuals {
		ind := &pop.Individuals[i]
		if ind.State == models.StateSusceptible && !ind.Vaccinated {
			eligible = append(eligible, ind.ID)
		}
	}
	n := int(math.Round(rs.Coverage * float64(len(eligible))))
	for _, id := range sample(eligible, n, rng) {
		pop.Individuals[id].Vaccinated = true
	}
	return []Decision{rs.decision(day, "vaccinate", n)}
}

// distance holds a random share of active edges on the first active day
// and lifts exactly those holds when the window closes.
func (rs *ruleState) distance(day int, pop *population.Population, rng *rand.Rand) []Decision {
	g := pop.Network
	if rs.applied && !rs.released && rs.endedBy(day) {
		for _, e := range rs.held {
			g.ReleaseEdge(e)
		}
		n := len(rs.held)
		rs.held = nil
		rs.released = true
		return []Decision{rs.decision(day, "release", n)}
	}
	if rs.applied || !rs.activeOn(day) {
		return nil
	}
	active := g.ActiveEdgeIDs()
	n := int(math.Floor(rs.Reduction * float64(len(active))))
	rs.held = sample(active, n, rng)
	for _, e := range rs.held {
		g.HoldEdge(e)
	}
	rs.applied = true
	return []Decision{rs.decision(day, "suppress", n)}
}

// quarantine isolates infected individuals and releases those who are no
// longer infected. When the window closes everyone is released.
func (rs *ruleState) quarantine(day int, pop *population.Population) []Decision {
	if rs.endedBy(day) {
		if rs.released {
			return nil
		}
		rs.released = true
		released := 0
		for i := range pop.Individuals {
			if pop.Release(i) {
				released++
			}
		}
		return []Decision{rs.decision(day, "release", released)}
	}
	if !rs.activeOn(day) {
		return nil
	}

	isolated, released := 0, 0
	for i := range pop.Individuals {
		ind := &pop.Individuals[i]
		switch {
		case ind.State == models.StateInfected && !ind.Quarantined:
			pop.Quarantine(i)
			isolated++
		case ind.Quarantined && ind.State != models.StateInfected:
			pop.Release(i)
			released++
		}
	}
	return []Decision{
		rs.decision(day, "quarantine", isolated),
		rs.decision(day, "release", released),
	}
}

// sample returns n distinct elements of ids chosen uniformly at random.
// It shuffles a copy so the caller's slice is left untouched.
func sample(ids []int, n int, rng *rand.Rand) []int {
	if n <= 0 {
		return nil
	}
	if n > len(ids) {
		n = len(ids)
	}
	pool := make([]int, len(ids))
	copy(pool, ids)
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n]
}
