// Package core defines the contract between the connector runtime and
// messaging providers: the lifecycle states, the provider hook
// interfaces, and the uniform operation results.
//
// The split matters: a provider implements the small hook interfaces in
// this package and never touches the state machine; the runtime package
// wraps a provider and owns gating, validation, authentication, and
// observability. Expected failures travel in results, contract faults
// travel as errors.
package core

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/heraldhq/herald/pkg/errors"
)

// ConnectorState is the lifecycle state of a channel connector.
//
// Transitions: Uninitialized -> Initializing -> Ready on success or
// Error on failure; any non-terminal state -> ShuttingDown -> Shutdown.
// Error is a dead end for initialization: a connector is never
// re-initialized.
type ConnectorState int32

const (
	// StateUninitialized is the state of a freshly constructed connector.
	StateUninitialized ConnectorState = iota
	// StateInitializing is held while authentication and provider setup run.
	StateInitializing
	// StateReady accepts operational calls.
	StateReady
	// StateError is reached when initialization fails.
	StateError
	// StateShuttingDown is held while provider teardown runs.
	StateShuttingDown
	// StateShutdown is the terminal state.
	StateShutdown
)

var stateNames = map[ConnectorState]string{
	StateUninitialized: "Uninitialized",
	StateInitializing:  "Initializing",
	StateReady:         "Ready",
	StateError:         "Error",
	StateShuttingDown:  "ShuttingDown",
	StateShutdown:      "Shutdown",
}

// String returns the state name used in logs, health issues, and
// contract faults.
func (s ConnectorState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int32(s))
}

// Terminal reports whether no further transitions are possible.
func (s ConnectorState) Terminal() bool {
	return s == StateShutdown
}

// ParseConnectorState resolves a state name back to its value.
func ParseConnectorState(name string) (ConnectorState, error) {
	for state, n := range stateNames {
		if n == name {
			return state, nil
		}
	}
	return StateUninitialized, errors.Newf(errors.ErrorTypeValidation, "unknown connector state %q", name)
}

// MarshalJSON renders the state as its name.
func (s ConnectorState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses a state name.
func (s *ConnectorState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	state, err := ParseConnectorState(name)
	if err != nil {
		return err
	}
	*s = state
	return nil
}
