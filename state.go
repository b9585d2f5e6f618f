package x402

import (
	"fmt"
	"sync"
)

// CallState is a step in the life of one payment-gated call.
//
//	Initiated -> AwaitingResponse -> Success
//	                              -> ChallengeReceived -> Signing -> Retried -> Success
//	                                                                         -> TerminalFailure
//	(any non-terminal state)      -> TerminalFailure
//
// No state is entered twice, so a call signs at most once and retries at
// most once.
type CallState int

const (
	StateInitiated CallState = iota
	StateAwaitingResponse
	StateChallengeReceived
	StateSigning
	StateRetried
	StateSuccess
	StateTerminalFailure
)

var callStateNames = [...]string{
	StateInitiated:         "initiated",
	StateAwaitingResponse:  "awaiting_response",
	StateChallengeReceived: "challenge_received",
	StateSigning:           "signing",
	StateRetried:           "retried",
	StateSuccess:           "success",
	StateTerminalFailure:   "terminal_failure",
}

func (s CallState) String() string {
	if s < 0 || int(s) >= len(callStateNames) {
		return fmt.Sprintf("call_state(%d)", int(s))
	}
	return callStateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s CallState) Terminal() bool {
	return s == StateSuccess || s == StateTerminalFailure
}

var callTransitions = map[CallState][]CallState{
	StateInitiated:         {StateAwaitingResponse, StateTerminalFailure},
	StateAwaitingResponse:  {StateSuccess, StateChallengeReceived, StateTerminalFailure},
	StateChallengeReceived: {StateSigning, StateTerminalFailure},
	StateSigning:           {StateRetried, StateTerminalFailure},
	StateRetried:           {StateSuccess, StateTerminalFailure},
}

// CanTransitionTo reports whether next directly follows s.
func (s CallState) CanTransitionTo(next CallState) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CallTrace records the states one call went through. It is safe for
// concurrent reads while the owning call advances it.
type CallTrace struct {
	mu     sync.Mutex
	states []CallState
}

// NewCallTrace returns a trace positioned at StateInitiated.
func NewCallTrace() *CallTrace {
	return &CallTrace{states: []CallState{StateInitiated}}
}

// Advance moves the trace to next. It fails when next does not follow the
// current state or has already been visited.
func (t *CallTrace) Advance(next CallState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.states[len(t.states)-1]
	for _, seen := range t.states {
		if seen == next {
			return fmt.Errorf("x402: call state %s already visited", next)
		}
	}
	if !current.CanTransitionTo(next) {
		return fmt.Errorf("x402: invalid call transition %s -> %s", current, next)
	}
	t.states = append(t.states, next)
	return nil
}

// Current returns the latest state.
func (t *CallTrace) Current() CallState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[len(t.states)-1]
}

// States returns a copy of every state visited, in order.
func (t *CallTrace) States() []CallState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]CallState, len(t.states))
	copy(out, t.states)
	return out
}

// Visited reports whether the call passed through s.
func (t *CallTrace) Visited(s CallState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, seen := range t.states {
		if seen == s {
			return true
		}
	}
	return false
}
