package masumi

import (
	"encoding/json"
	"time"
)

// Network identifies the Cardano network a payment settles on.
type Network string

const (
	NetworkMainnet Network = "Mainnet"
	NetworkPreprod Network = "Preprod"
)

// Amount is one (amount, unit) pair of requested funds as reported by the
// settlement service. Amounts are decimal strings; the unit is an asset id
// or empty for the native coin.
type Amount struct {
	Amount string `json:"amount"`
	Unit   string `json:"unit"`
}

// Payment is the engine's view of one escrow payment. It is created by
// Coordinator.Create (or adopted by Track) and mutated only by the
// coordinator; callers always receive copies.
type Payment struct {
	// BlockchainIdentifier is assigned by the settlement service and is
	// globally unique and immutable.
	BlockchainIdentifier string `json:"blockchainIdentifier"`

	// PurchaserIdentifier is the buyer-supplied correlation key. It salts
	// every hash computed for this payment.
	PurchaserIdentifier string `json:"identifierFromPurchaser"`

	// InputDigest is the MIP-004 input hash, set at creation time when an
	// input payload was supplied.
	InputDigest string `json:"inputHash,omitempty"`

	// ResultDigest is the MIP-004 output hash, set by SubmitResult. Once
	// set it never changes.
	ResultDigest string `json:"resultHash,omitempty"`

	State State `json:"onChainState"`

	// PayByDeadline and SubmitByDeadline are informational; the settlement
	// service enforces them.
	PayByDeadline    time.Time `json:"payByTime"`
	SubmitByDeadline time.Time `json:"submitResultTime"`

	RequestedFunds []Amount `json:"requestedFunds,omitempty"`
}

// Terminal reports whether the payment has reached a terminal state.
func (p Payment) Terminal() bool {
	return p.State.Terminal()
}

// CreatePaymentRequest is the body of POST /payment.
type CreatePaymentRequest struct {
	AgentIdentifier         string    `json:"agentIdentifier"`
	Network                 Network   `json:"network"`
	PayByTime               time.Time `json:"payByTime"`
	SubmitResultTime        time.Time `json:"submitResultTime"`
	IdentifierFromPurchaser string    `json:"identifierFromPurchaser"`
	InputHash               string    `json:"inputHash,omitempty"`
}

// ResolvePaymentRequest is the body of POST /payment/resolve-blockchain-identifier.
type ResolvePaymentRequest struct {
	BlockchainIdentifier string  `json:"blockchainIdentifier"`
	Network              Network `json:"network"`
}

// SubmitResultRequest is the body of POST /payment/submit-result. The
// SubmitResultHash is the decision hash: input digest and output digest
// concatenated.
type SubmitResultRequest struct {
	BlockchainIdentifier string  `json:"blockchainIdentifier"`
	Network              Network `json:"network"`
	SubmitResultHash     string  `json:"submitResultHash"`
}

// AuthorizeRefundRequest is the body of POST /payment/authorize-refund.
type AuthorizeRefundRequest struct {
	BlockchainIdentifier string  `json:"blockchainIdentifier"`
	Network              Network `json:"network"`
}

// ListPaymentsParams are the query parameters of GET /payment.
type ListPaymentsParams struct {
	Network  Network
	Limit    int
	CursorID string
}

// PaymentRecord is the settlement service's wire representation of one
// payment. OnChainState is nil until the escrow has been observed on chain.
type PaymentRecord struct {
	BlockchainIdentifier    string    `json:"blockchainIdentifier"`
	IdentifierFromPurchaser string    `json:"identifierFromPurchaser"`
	OnChainState            *State    `json:"onChainState"`
	InputHash               string    `json:"inputHash,omitempty"`
	ResultHash              string    `json:"resultHash,omitempty"`
	PayByTime               time.Time `json:"payByTime"`
	SubmitResultTime        time.Time `json:"submitResultTime"`
	RequestedFunds          []Amount  `json:"RequestedFunds,omitempty"`
	NextAction              *Action   `json:"NextAction,omitempty"`
}

// Action is the settlement service's suggested next step for a payment.
type Action struct {
	RequestedAction string `json:"requestedAction"`
	ErrorType       string `json:"errorType,omitempty"`
	ErrorNote       string `json:"errorNote,omitempty"`
}

// PaymentPage is one page of GET /payment results.
type PaymentPage struct {
	Payments []PaymentRecord `json:"Payments"`
	CursorID string          `json:"cursorId,omitempty"`
}

// Envelope is the uniform `{status, data}` wrapper around every successful
// settlement service response. Data is decoded in a second pass into the
// caller's type, eliminating any fall-back-to-raw-object ambiguity.
type Envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}
