package workflow

import (
	"context"
	"fmt"
	"slices"
)

// GuardFunc decides whether a configured transition may be taken
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects transition rules and builds machines from them
type StateMachineBuilder interface {
	// Configure returns the configuration for transitions leaving state
	Configure(state State) StateConfiguration

	// Build creates a machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration configures transitions for a specific state
type StateConfiguration interface {
	// Permit allows a trigger to move to the target state unconditionally
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf allows a trigger to move to the target state when guard passes.
	// Guards for one trigger are evaluated in registration order.
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration
}

// rule is one edge of the transition table
type rule struct {
	from    State
	trigger Trigger
	to      State
	guard   GuardFunc
}

type builder struct {
	rules   []rule
	configs map[State]*stateConfig
}

type stateConfig struct {
	from State
	b    *builder
}

// NewBuilder creates a new state machine builder
func NewBuilder() StateMachineBuilder {
	return &builder{configs: make(map[State]*stateConfig)}
}

func (b *builder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if c, ok := b.configs[state]; ok {
		return c
	}
	c := &stateConfig{from: state, b: b}
	b.configs[state] = c
	return c
}

// Build snapshots the rules; later Configure calls do not affect the machine.
func (b *builder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}
	return &machine{current: initialState, rules: slices.Clone(b.rules)}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	return c.PermitIf(trigger, toState, nil)
}

func (c *stateConfig) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	c.b.rules = append(c.b.rules, rule{from: c.from, trigger: trigger, to: toState, guard: guard})
	return c
}

type machine struct {
	current State
	rules   []rule
}

func (m *machine) State() State {
	return m.current
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) (State, error) {
	to, ok, configured := m.next(ctx, trigger)
	switch {
	case !configured:
		return m.current, fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	case !ok:
		return m.current, fmt.Errorf("%w: trigger %s from %s", ErrGuardFailed, trigger, m.current)
	}
	m.current = to
	return to, nil
}

// next walks the rules for trigger in registration order and returns the
// target of the first one whose guard passes. configured reports whether any
// rule for trigger leaves the current state.
func (m *machine) next(ctx context.Context, trigger Trigger) (to State, ok, configured bool) {
	for _, r := range m.rules {
		if r.from != m.current || r.trigger != trigger {
			continue
		}
		configured = true
		if r.guard == nil || r.guard(ctx) {
			return r.to, true, true
		}
	}
	return "", false, configured
}
