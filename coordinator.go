package masumi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/masumi-network/masumi-go/mip004"
)

// ErrAlreadyMonitoring is returned by StartMonitoring when a monitor loop is
// already running.
var ErrAlreadyMonitoring = errors.New("monitoring already started")

// Coordinator owns the authoritative in-process index of tracked payments,
// keyed by blockchain identifier, and is its sole mutator. All external I/O
// for a tracked payment flows through the coordinator; callers only ever see
// snapshot copies.
type Coordinator struct {
	client  SettlementClient
	agentID string
	network Network
	hooks   Hooks
	log     *slog.Logger

	mu       sync.Mutex
	payments map[string]*Payment

	monitorMu   sync.Mutex
	monitorStop chan struct{}
	monitorDone chan struct{}
}

// CoordinatorOption configures a coordinator at construction time.
type CoordinatorOption func(*Coordinator)

// WithHooks registers lifecycle subscribers.
func WithHooks(hooks Hooks) CoordinatorOption {
	return func(c *Coordinator) {
		c.hooks = hooks
	}
}

// WithLogger sets the structured logger used by the monitor loop.
func WithLogger(log *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.log = log
	}
}

// NewCoordinator creates a coordinator for one agent identity on one network.
func NewCoordinator(client SettlementClient, agentID string, network Network, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		client:   client,
		agentID:  agentID,
		network:  network,
		log:      slog.Default(),
		payments: make(map[string]*Payment),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateParams are the caller-supplied inputs of Create.
type CreateParams struct {
	// PurchaserIdentifier is the buyer-supplied correlation key. Required;
	// it salts every hash computed for the payment.
	PurchaserIdentifier string

	// Input is the work's input payload. Optional; when present it must be
	// valid JSON and its MIP-004 digest is bound into the payment.
	Input json.RawMessage

	// PayBy and SubmitBy default to one and two hours from now. They are
	// informational here; the settlement service enforces them.
	PayBy    time.Time
	SubmitBy time.Time
}

// Create registers a new escrow payment with the settlement service and
// starts tracking it. Fails fast: the underlying request error is surfaced
// to the caller and nothing is stored, since blindly retrying a creation
// could double-charge the purchaser.
func (c *Coordinator) Create(ctx context.Context, params CreateParams) (Payment, error) {
	if c.agentID == "" {
		return Payment{}, &ConfigurationError{Field: "AgentIdentifier", Message: "agent identity is required to create payments"}
	}
	if params.PurchaserIdentifier == "" {
		return Payment{}, &ValidationError{Message: "purchaser identifier is required"}
	}

	var inputDigest string
	if len(params.Input) > 0 {
		digest, err := mip004.HashInput(params.PurchaserIdentifier, params.Input)
		if err != nil {
			return Payment{}, &ValidationError{Message: "input payload is not valid JSON", Err: err}
		}
		inputDigest = digest
	}

	payBy := params.PayBy
	if payBy.IsZero() {
		payBy = time.Now().Add(1 * time.Hour)
	}
	submitBy := params.SubmitBy
	if submitBy.IsZero() {
		submitBy = time.Now().Add(2 * time.Hour)
	}

	record, err := c.client.CreatePayment(ctx, CreatePaymentRequest{
		AgentIdentifier:         c.agentID,
		Network:                 c.network,
		PayByTime:               payBy,
		SubmitResultTime:        submitBy,
		IdentifierFromPurchaser: params.PurchaserIdentifier,
		InputHash:               inputDigest,
	})
	if err != nil {
		return Payment{}, err
	}

	payment := paymentFromRecord(record, params.PurchaserIdentifier)
	if record.OnChainState == nil {
		payment.State = StateCreated
	}
	payment.InputDigest = inputDigest

	c.mu.Lock()
	stored := payment
	c.payments[payment.BlockchainIdentifier] = &stored
	c.mu.Unlock()

	c.hooks.dispatch(Event{
		Signal:   SignalCreated,
		Previous: payment.State,
		Current:  payment.State,
		Payment:  payment,
	})
	return payment, nil
}

// Track adopts a payment that was not created by this process. The reported
// remote state is taken as-is to initialize the entry; the purchaser
// identifier must be supplied because later result hashing depends on it.
// Tracking an already-tracked payment is equivalent to Refresh.
func (c *Coordinator) Track(ctx context.Context, blockchainIdentifier, purchaserIdentifier string) (Payment, error) {
	c.mu.Lock()
	_, known := c.payments[blockchainIdentifier]
	c.mu.Unlock()
	if known {
		return c.Refresh(ctx, blockchainIdentifier)
	}
	if purchaserIdentifier == "" {
		return Payment{}, &ValidationError{Message: "purchaser identifier is required to track a payment"}
	}

	record, err := c.client.ResolvePayment(ctx, ResolvePaymentRequest{
		BlockchainIdentifier: blockchainIdentifier,
		Network:              c.network,
	})
	if err != nil {
		return Payment{}, err
	}

	payment := paymentFromRecord(record, purchaserIdentifier)

	c.mu.Lock()
	stored := payment
	c.payments[payment.BlockchainIdentifier] = &stored
	c.mu.Unlock()

	c.hooks.dispatch(Event{
		Signal:   SignalCreated,
		Previous: payment.State,
		Current:  payment.State,
		Payment:  payment,
	})
	return payment, nil
}

// Refresh resolves the current remote state of a tracked payment, advances
// the state machine, and emits the resulting signal, if any. Unknown ids
// return NotTrackedError; adoption of foreign payments is the explicit Track
// operation instead.
func (c *Coordinator) Refresh(ctx context.Context, blockchainIdentifier string) (Payment, error) {
	c.mu.Lock()
	entry, ok := c.payments[blockchainIdentifier]
	if !ok {
		c.mu.Unlock()
		return Payment{}, &NotTrackedError{BlockchainIdentifier: blockchainIdentifier}
	}
	previous := entry.State
	c.mu.Unlock()

	record, err := c.client.ResolvePayment(ctx, ResolvePaymentRequest{
		BlockchainIdentifier: blockchainIdentifier,
		Network:              c.network,
	})
	if err != nil {
		return Payment{}, err
	}

	next, sig, changed := Next(previous, record.OnChainState)

	c.mu.Lock()
	entry, ok = c.payments[blockchainIdentifier]
	if !ok {
		c.mu.Unlock()
		return Payment{}, &NotTrackedError{BlockchainIdentifier: blockchainIdentifier}
	}
	updated := *entry
	updated.State = next
	applyRecord(&updated, record)
	*entry = updated
	snapshot := updated
	c.mu.Unlock()

	if changed {
		c.hooks.dispatch(Event{
			Signal:   sig,
			Previous: previous,
			Current:  next,
			Payment:  snapshot,
		})
	}
	return snapshot, nil
}

// SubmitResult hashes the output payload against the payment's stored
// purchaser identifier, submits the decision hash, and updates the entry.
// The payment must already be tracked: the purchaser identity needed for
// hashing is only known locally. The result digest is write-once; an
// identical resubmission is a no-op at the hashing layer, a different one is
// a validation error.
func (c *Coordinator) SubmitResult(ctx context.Context, blockchainIdentifier, output string) (Payment, error) {
	c.mu.Lock()
	entry, ok := c.payments[blockchainIdentifier]
	if !ok {
		c.mu.Unlock()
		return Payment{}, &NotTrackedError{BlockchainIdentifier: blockchainIdentifier}
	}
	purchaser := entry.PurchaserIdentifier
	inputDigest := entry.InputDigest
	existingDigest := entry.ResultDigest
	previous := entry.State
	c.mu.Unlock()

	outputDigest := mip004.HashOutput(purchaser, output)
	if existingDigest != "" && existingDigest != outputDigest {
		return Payment{}, &ValidationError{Message: "result digest is already set and cannot change"}
	}

	record, err := c.client.SubmitResult(ctx, SubmitResultRequest{
		BlockchainIdentifier: blockchainIdentifier,
		Network:              c.network,
		SubmitResultHash:     mip004.DecisionHash(inputDigest, outputDigest),
	})
	if err != nil {
		return Payment{}, err
	}

	next, _, _ := Next(previous, record.OnChainState)

	c.mu.Lock()
	entry, ok = c.payments[blockchainIdentifier]
	if !ok {
		c.mu.Unlock()
		return Payment{}, &NotTrackedError{BlockchainIdentifier: blockchainIdentifier}
	}
	updated := *entry
	updated.State = next
	applyRecord(&updated, record)
	updated.ResultDigest = outputDigest
	*entry = updated
	snapshot := updated
	c.mu.Unlock()

	c.hooks.dispatch(Event{
		Signal:   SignalResultSubmitted,
		Previous: previous,
		Current:  next,
		Payment:  snapshot,
	})
	return snapshot, nil
}

// AuthorizeRefund authorizes a purchaser-requested refund for a tracked
// payment and advances the state machine with the service's response.
func (c *Coordinator) AuthorizeRefund(ctx context.Context, blockchainIdentifier string) (Payment, error) {
	c.mu.Lock()
	entry, ok := c.payments[blockchainIdentifier]
	if !ok {
		c.mu.Unlock()
		return Payment{}, &NotTrackedError{BlockchainIdentifier: blockchainIdentifier}
	}
	previous := entry.State
	c.mu.Unlock()

	record, err := c.client.AuthorizeRefund(ctx, AuthorizeRefundRequest{
		BlockchainIdentifier: blockchainIdentifier,
		Network:              c.network,
	})
	if err != nil {
		return Payment{}, err
	}

	next, sig, changed := Next(previous, record.OnChainState)

	c.mu.Lock()
	entry, ok = c.payments[blockchainIdentifier]
	if !ok {
		c.mu.Unlock()
		return Payment{}, &NotTrackedError{BlockchainIdentifier: blockchainIdentifier}
	}
	updated := *entry
	updated.State = next
	applyRecord(&updated, record)
	*entry = updated
	snapshot := updated
	c.mu.Unlock()

	if changed {
		c.hooks.dispatch(Event{
			Signal:   sig,
			Previous: previous,
			Current:  next,
			Payment:  snapshot,
		})
	}
	return snapshot, nil
}

// Reconcile pages through every remote payment for the configured network,
// refreshing tracked entries and adopting unknown ones. Adopted entries use
// the purchaser identifier the settlement service reports. Returns the
// number of newly adopted payments.
func (c *Coordinator) Reconcile(ctx context.Context) (int, error) {
	adopted := 0
	cursor := ""
	for {
		page, err := c.client.ListPayments(ctx, ListPaymentsParams{
			Network:  c.network,
			Limit:    50,
			CursorID: cursor,
		})
		if err != nil {
			return adopted, err
		}

		for i := range page.Payments {
			record := &page.Payments[i]
			if c.adoptOrAdvance(record) {
				adopted++
			}
		}

		if page.CursorID == "" || len(page.Payments) == 0 {
			return adopted, nil
		}
		cursor = page.CursorID
	}
}

// adoptOrAdvance applies one listed record to the index. Reports true when
// the record was previously unknown.
func (c *Coordinator) adoptOrAdvance(record *PaymentRecord) bool {
	c.mu.Lock()
	entry, known := c.payments[record.BlockchainIdentifier]
	if !known {
		payment := paymentFromRecord(record, record.IdentifierFromPurchaser)
		stored := payment
		c.payments[record.BlockchainIdentifier] = &stored
		c.mu.Unlock()

		c.hooks.dispatch(Event{
			Signal:   SignalCreated,
			Previous: payment.State,
			Current:  payment.State,
			Payment:  payment,
		})
		return true
	}

	previous := entry.State
	next, sig, changed := Next(previous, record.OnChainState)
	updated := *entry
	updated.State = next
	applyRecord(&updated, record)
	*entry = updated
	snapshot := updated
	c.mu.Unlock()

	if changed {
		c.hooks.dispatch(Event{
			Signal:   sig,
			Previous: previous,
			Current:  next,
			Payment:  snapshot,
		})
	}
	return false
}

// Get returns a snapshot of one tracked payment.
func (c *Coordinator) Get(blockchainIdentifier string) (Payment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.payments[blockchainIdentifier]
	if !ok {
		return Payment{}, false
	}
	return *entry, true
}

// Payments returns snapshots of every tracked payment, ordered by
// blockchain identifier.
func (c *Coordinator) Payments() []Payment {
	c.mu.Lock()
	snapshots := make([]Payment, 0, len(c.payments))
	for _, entry := range c.payments {
		snapshots = append(snapshots, *entry)
	}
	c.mu.Unlock()

	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].BlockchainIdentifier < snapshots[j].BlockchainIdentifier
	})
	return snapshots
}

// Evict removes a terminal payment from the index. Non-terminal payments
// cannot be evicted; the monitor would lose track of them.
func (c *Coordinator) Evict(blockchainIdentifier string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.payments[blockchainIdentifier]
	if !ok {
		return &NotTrackedError{BlockchainIdentifier: blockchainIdentifier}
	}
	if !entry.State.Terminal() {
		return &ValidationError{Message: "only terminal payments can be evicted"}
	}
	delete(c.payments, blockchainIdentifier)
	return nil
}

// StartMonitoring begins a repeating poll of every tracked, non-terminal
// payment. Each pass runs to completion before the next tick is observed,
// so passes never overlap; a failure refreshing one payment is reported via
// OnMonitorError and the pass continues with the rest.
func (c *Coordinator) StartMonitoring(interval time.Duration) error {
	c.monitorMu.Lock()
	defer c.monitorMu.Unlock()
	if c.monitorStop != nil {
		return ErrAlreadyMonitoring
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	c.monitorStop = stop
	c.monitorDone = done

	go c.monitorLoop(interval, stop, done)
	return nil
}

// StopMonitoring cancels future ticks and waits for the loop to exit. An
// in-flight refresh is never interrupted: it completes and still updates
// state. Safe to call when not monitoring.
func (c *Coordinator) StopMonitoring() {
	c.monitorMu.Lock()
	stop, done := c.monitorStop, c.monitorDone
	c.monitorStop, c.monitorDone = nil, nil
	c.monitorMu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Coordinator) monitorLoop(interval time.Duration, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.monitorPass(stop)
		}
	}
}

// monitorPass refreshes every non-terminal payment once. The pass uses a
// background context on purpose: stopping the monitor must not abort an
// in-flight refresh, and the request client's own per-call deadline still
// bounds each call.
func (c *Coordinator) monitorPass(stop chan struct{}) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.payments))
	for id, entry := range c.payments {
		if !entry.State.Terminal() {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()
	sort.Strings(ids)

	for _, id := range ids {
		select {
		case <-stop:
			return
		default:
		}

		if _, err := c.Refresh(context.Background(), id); err != nil {
			c.log.Warn("payment refresh failed",
				slog.String("blockchainIdentifier", id),
				slog.String("error", err.Error()))
			if c.hooks.OnMonitorError != nil {
				c.hooks.OnMonitorError(id, err)
			}
		}
	}
}

// WaitForFundsLocked polls one tracked payment until its funds are locked or
// it reaches a terminal state, whichever comes first. Terminal refund
// outcomes are normal results, not errors: callers branch on the returned
// snapshot's state.
func (c *Coordinator) WaitForFundsLocked(ctx context.Context, blockchainIdentifier string, pollInterval time.Duration) (Payment, error) {
	for {
		snapshot, err := c.Refresh(ctx, blockchainIdentifier)
		if err != nil {
			return Payment{}, err
		}
		if snapshot.State == StateFundsLocked || snapshot.State.Terminal() {
			return snapshot, nil
		}

		select {
		case <-ctx.Done():
			return Payment{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// paymentFromRecord builds the engine's view of one wire record.
func paymentFromRecord(record *PaymentRecord, purchaserIdentifier string) Payment {
	payment := Payment{
		BlockchainIdentifier: record.BlockchainIdentifier,
		PurchaserIdentifier:  purchaserIdentifier,
		InputDigest:          record.InputHash,
		ResultDigest:         record.ResultHash,
		State:                MapReported(record.OnChainState),
		PayByDeadline:        record.PayByTime,
		SubmitByDeadline:     record.SubmitResultTime,
		RequestedFunds:       record.RequestedFunds,
	}
	if payment.PurchaserIdentifier == "" {
		payment.PurchaserIdentifier = record.IdentifierFromPurchaser
	}
	return payment
}

// applyRecord copies service-owned fields from a wire record onto a payment.
// The state is set by the caller via the state machine, and a locally-set
// result digest is never overwritten.
func applyRecord(payment *Payment, record *PaymentRecord) {
	if !record.PayByTime.IsZero() {
		payment.PayByDeadline = record.PayByTime
	}
	if !record.SubmitResultTime.IsZero() {
		payment.SubmitByDeadline = record.SubmitResultTime
	}
	if len(record.RequestedFunds) > 0 {
		payment.RequestedFunds = record.RequestedFunds
	}
	if payment.ResultDigest == "" && record.ResultHash != "" {
		payment.ResultDigest = record.ResultHash
	}
	if payment.InputDigest == "" && record.InputHash != "" {
		payment.InputDigest = record.InputHash
	}
}
