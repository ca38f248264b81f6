package masumi

// State is the lifecycle state of one escrow payment. The string values are
// exactly the onChainState names reported by the settlement service; the two
// local pre-funding states are never reported remotely.
type State string

const (
	// StateCreated means the payment request exists on the settlement
	// service but nothing has been observed on chain yet.
	StateCreated State = "Created"

	// StateAwaitingExternalAction is equivalent to StateCreated from the
	// settlement service's point of view (onChainState null): the purchaser
	// has not locked funds yet.
	StateAwaitingExternalAction State = "AwaitingExternalAction"

	StateFundsLocked      State = "FundsLocked"
	StateResultSubmitted  State = "ResultSubmitted"
	StateRefundRequested  State = "RefundRequested"
	StateRefundAuthorized State = "RefundAuthorized"
	StateDisputed         State = "Disputed"

	StateWithdrawn         State = "Withdrawn"
	StateRefundWithdrawn   State = "RefundWithdrawn"
	StateDisputedWithdrawn State = "DisputedWithdrawn"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	switch s {
	case StateWithdrawn, StateRefundWithdrawn, StateDisputedWithdrawn:
		return true
	}
	return false
}

// MapReported converts a settlement-service onChainState into a typed state.
// A nil or empty report means the escrow has not been observed on chain.
func MapReported(reported *State) State {
	if reported == nil || *reported == "" {
		return StateAwaitingExternalAction
	}
	return *reported
}

// Next translates one remote report into the payment's next state and the
// signal to emit. The machine never invents transitions: the new state is
// always the mapped report, because the settlement service is the source of
// truth - a refund terminal arriving after a believed Withdrawn is an
// authoritative correction, not an error. changed is false (and sig empty)
// when the report matches the current state; emitting is the caller's job
// and happens only on change.
func Next(current State, reported *State) (next State, sig Signal, changed bool) {
	next = MapReported(reported)
	if next == current {
		return next, "", false
	}
	// Created and AwaitingExternalAction are the same externally-reported
	// state; flapping between them is not a transition.
	if current == StateCreated && next == StateAwaitingExternalAction {
		return current, "", false
	}

	switch next {
	case StateFundsLocked:
		sig = SignalFundsLocked
	case StateResultSubmitted:
		sig = SignalResultSubmitted
	case StateWithdrawn:
		sig = SignalCompleted
	case StateRefundAuthorized:
		sig = SignalRefundAuthorized
	default:
		sig = SignalStateChanged
	}
	return next, sig, true
}
