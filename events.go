package masumi

// Signal names one externally-visible lifecycle notification.
type Signal string

const (
	SignalCreated          Signal = "created"
	SignalStateChanged     Signal = "stateChanged"
	SignalFundsLocked      Signal = "fundsLocked"
	SignalResultSubmitted  Signal = "resultSubmitted"
	SignalCompleted        Signal = "completed"
	SignalRefundAuthorized Signal = "refundAuthorized"
)

// Event describes one observed transition: the states on either side and a
// snapshot of the payment at the time of observation. Events are values and
// are never persisted; they exist only to drive subscribers.
type Event struct {
	Signal   Signal
	Previous State
	Current  State
	Payment  Payment
}

// Hooks are the typed lifecycle subscribers of a coordinator, registered at
// construction time. Any field may be nil. Hooks are invoked synchronously
// from the goroutine that observed the transition, after the index has been
// updated; a hook must not call back into mutating coordinator operations
// for the same payment.
type Hooks struct {
	// OnCreated fires once per Create or Track.
	OnCreated func(Event)

	// OnStateChanged fires for transitions with no more specific hook.
	OnStateChanged func(Event)

	// OnFundsLocked fires on entry into FundsLocked: the purchaser's funds
	// are escrowed and work may begin.
	OnFundsLocked func(Event)

	// OnResultSubmitted fires once the decision hash has been accepted.
	OnResultSubmitted func(Event)

	// OnCompleted fires on entry into Withdrawn.
	OnCompleted func(Event)

	// OnRefundAuthorized fires on entry into RefundAuthorized.
	OnRefundAuthorized func(Event)

	// OnMonitorError fires when a monitoring pass fails to refresh one
	// payment. The pass continues with the remaining payments.
	OnMonitorError func(blockchainIdentifier string, err error)
}

// dispatch routes an event to the hook registered for its signal.
func (h Hooks) dispatch(ev Event) {
	var fn func(Event)
	switch ev.Signal {
	case SignalCreated:
		fn = h.OnCreated
	case SignalFundsLocked:
		fn = h.OnFundsLocked
	case SignalResultSubmitted:
		fn = h.OnResultSubmitted
	case SignalCompleted:
		fn = h.OnCompleted
	case SignalRefundAuthorized:
		fn = h.OnRefundAuthorized
	default:
		fn = h.OnStateChanged
	}
	if fn != nil {
		fn(ev)
	}
}
