package engine

import (
	"fmt"

	"github.com/samber/lo"
)

// State is where a repository handle is in the merge workflow.
type State string

const (
	StateIdle       State = "idle"
	StateCloning    State = "cloning"
	StateReady      State = "ready"
	StateMerging    State = "merging"
	StateClean      State = "clean"
	StateConflicted State = "conflicted"
	StateResolving  State = "resolving"
	StateCommitting State = "committing"
	StatePushing    State = "pushing"
	StateDone       State = "done"
	StateError      State = "error"
)

var (
	// settled states can start any repository operation.
	settled = []State{StateReady, StateClean, StateConflicted, StateResolving, StateDone, StateError}

	resolvable = []State{StateConflicted, StateResolving, StateError}
	pushable   = []State{StateReady, StateClean, StateDone, StateError}
)

func (h *Handle) State() State {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()

	return h.state
}

func (h *Handle) setState(s State) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	h.state = s
}

// expect fails with ErrInvalidState unless the handle is in one of allowed.
func (h *Handle) expect(op string, allowed ...State) error {
	current := h.State()
	if lo.Contains(allowed, current) {
		return nil
	}
	return fmt.Errorf("%w: cannot %s while %s", ErrInvalidState, op, current)
}

// settle moves the handle out of a failed operation. A merge waiting for
// resolution keeps the session conflicted, anything else lands in error.
func (h *Handle) settle(err error) {
	if err == nil {
		return
	}
	if _, pending, _ := h.repo.MergeHeadHash(); pending {
		h.setState(StateConflicted)
		return
	}
	h.setState(StateError)
}
