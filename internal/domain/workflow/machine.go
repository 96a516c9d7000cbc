package workflow

import "context"

// StateMachine tracks the current state of one request and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// Fire executes the trigger and returns the resulting state
	Fire(ctx context.Context, trigger Trigger) (State, error)
}
