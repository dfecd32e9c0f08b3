package models

import "fmt"

// State is the disease state of an individual.
type State uint8

const (
	StateSusceptible State = iota // Can be exposed
	StateExposed                  // Carrying the virus, not yet infectious
	StateInfected                 // Infectious
	StateRecovered                // Terminal
)

// AllStates lists every state in reporting order.
var AllStates = [...]State{StateSusceptible, StateExposed, StateInfected, StateRecovered}

var stateNames = [...]string{"Susceptible", "Exposed", "Infected", "Recovered"}

// String returns the full state name, e.g. "Infected".
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// Short returns the single letter key used in compact tables ("S", "E", "I", "R").
func (s State) Short() string {
	if int(s) < len(stateNames) {
		return stateNames[s][:1]
	}
	return "?"
}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	return int(s) < len(stateNames)
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateRecovered
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid state %d", uint8(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
// It accepts the full name or the single letter key.
func (s *State) UnmarshalText(text []byte) error {
	parsed, err := ParseState(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseState maps a state name or short key to a State.
func ParseState(name string) (State, error) {
	for _, st := range AllStates {
		if name == st.String() || name == st.Short() {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown state %q", name)
}
