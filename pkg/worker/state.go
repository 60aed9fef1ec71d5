package worker

import (
	"fmt"
	"sync"
)

// LoopState is the stage the execution loop is in. The loop publishes its
// state so tests and diagnostics can observe where a worker is parked.
type LoopState string

const (
	StateIdle          LoopState = "IDLE"
	StateFetching      LoopState = "FETCHING_TASK"
	StateDeserializing LoopState = "DESERIALIZING"
	StateResolving     LoopState = "RESOLVING_ARGS"
	StateExecuting     LoopState = "EXECUTING"
	StatePublishing    LoopState = "PUBLISHING_RESULTS"
	StateDisconnected  LoopState = "DISCONNECTED"
)

// isAllowedTransition is the loop's transition table. The happy path cycles
// Idle → Fetching → Deserializing → Resolving → Executing → Publishing →
// Idle; every working stage may abort back to Idle when its task fails, and
// Disconnected is terminal, entered only from Idle.
func isAllowedTransition(from, to LoopState) bool {
	switch from {
	case StateIdle:
		return to == StateFetching || to == StateDisconnected
	case StateFetching:
		return to == StateDeserializing || to == StateIdle
	case StateDeserializing:
		return to == StateResolving || to == StateIdle
	case StateResolving:
		return to == StateExecuting || to == StateIdle
	case StateExecuting:
		return to == StatePublishing || to == StateIdle
	case StatePublishing:
		return to == StateIdle
	default:
		return false
	}
}

// stateMachine tracks the loop stage and validates every transition, so a
// broken loop fails loudly instead of drifting through impossible states.
type stateMachine struct {
	mu  sync.Mutex
	cur LoopState
}

func newStateMachine() *stateMachine {
	return &stateMachine{cur: StateIdle}
}

func (m *stateMachine) current() LoopState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

func (m *stateMachine) to(next LoopState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !isAllowedTransition(m.cur, next) {
		return fmt.Errorf("disallowed loop transition: %s -> %s", m.cur, next)
	}
	m.cur = next
	return nil
}
