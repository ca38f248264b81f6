package masumi

import "testing"

func reported(s State) *State { return &s }

func TestMapReported(t *testing.T) {
	if got := MapReported(nil); got != StateAwaitingExternalAction {
		t.Errorf("Expected AwaitingExternalAction for nil report, got %s", got)
	}
	empty := State("")
	if got := MapReported(&empty); got != StateAwaitingExternalAction {
		t.Errorf("Expected AwaitingExternalAction for empty report, got %s", got)
	}
	if got := MapReported(reported(StateFundsLocked)); got != StateFundsLocked {
		t.Errorf("Expected FundsLocked, got %s", got)
	}
}

func TestNextSignals(t *testing.T) {
	tests := []struct {
		name       string
		current    State
		reported   *State
		wantState  State
		wantSignal Signal
		wantChange bool
	}{
		{"unchanged emits nothing", StateFundsLocked, reported(StateFundsLocked), StateFundsLocked, "", false},
		{"created to awaiting is not a transition", StateCreated, nil, StateCreated, "", false},
		{"funds locked", StateAwaitingExternalAction, reported(StateFundsLocked), StateFundsLocked, SignalFundsLocked, true},
		{"result submitted", StateFundsLocked, reported(StateResultSubmitted), StateResultSubmitted, SignalResultSubmitted, true},
		{"completed", StateResultSubmitted, reported(StateWithdrawn), StateWithdrawn, SignalCompleted, true},
		{"refund requested", StateFundsLocked, reported(StateRefundRequested), StateRefundRequested, SignalStateChanged, true},
		{"refund authorized", StateRefundRequested, reported(StateRefundAuthorized), StateRefundAuthorized, SignalRefundAuthorized, true},
		{"refund withdrawn", StateRefundAuthorized, reported(StateRefundWithdrawn), StateRefundWithdrawn, SignalStateChanged, true},
		{"disputed", StateRefundRequested, reported(StateDisputed), StateDisputed, SignalStateChanged, true},
		{"disputed withdrawn", StateDisputed, reported(StateDisputedWithdrawn), StateDisputedWithdrawn, SignalStateChanged, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, sig, changed := Next(tt.current, tt.reported)
			if next != tt.wantState {
				t.Errorf("Expected state %s, got %s", tt.wantState, next)
			}
			if sig != tt.wantSignal {
				t.Errorf("Expected signal %q, got %q", tt.wantSignal, sig)
			}
			if changed != tt.wantChange {
				t.Errorf("Expected changed=%v, got %v", tt.wantChange, changed)
			}
		})
	}
}

func TestNextTrustsLatestReport(t *testing.T) {
	// A refund terminal arriving after a believed Withdrawn is an
	// authoritative correction, not an error.
	next, sig, changed := Next(StateWithdrawn, reported(StateRefundWithdrawn))
	if next != StateRefundWithdrawn {
		t.Errorf("Expected RefundWithdrawn, got %s", next)
	}
	if !changed {
		t.Error("Expected a transition")
	}
	if sig != SignalStateChanged {
		t.Errorf("Expected stateChanged, got %s", sig)
	}
}

func TestTerminalStates(t *testing.T) {
	terminals := []State{StateWithdrawn, StateRefundWithdrawn, StateDisputedWithdrawn}
	for _, s := range terminals {
		if !s.Terminal() {
			t.Errorf("Expected %s to be terminal", s)
		}
	}
	nonTerminals := []State{
		StateCreated, StateAwaitingExternalAction, StateFundsLocked,
		StateResultSubmitted, StateRefundRequested, StateRefundAuthorized, StateDisputed,
	}
	for _, s := range nonTerminals {
		if s.Terminal() {
			t.Errorf("Expected %s not to be terminal", s)
		}
	}
}
