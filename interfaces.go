package masumi

import "context"

// SettlementClient is the REST surface of the settlement service as consumed
// by the coordinator. The production implementation lives in the http
// subpackage; tests substitute fakes.
type SettlementClient interface {
	// CreatePayment registers a new escrow payment request.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*PaymentRecord, error)

	// ResolvePayment fetches the current remote state of one payment.
	ResolvePayment(ctx context.Context, req ResolvePaymentRequest) (*PaymentRecord, error)

	// SubmitResult submits the decision hash proving which input produced
	// which output.
	SubmitResult(ctx context.Context, req SubmitResultRequest) (*PaymentRecord, error)

	// AuthorizeRefund authorizes a purchaser-requested refund.
	AuthorizeRefund(ctx context.Context, req AuthorizeRefundRequest) (*PaymentRecord, error)

	// ListPayments returns one page of payments for a network.
	ListPayments(ctx context.Context, params ListPaymentsParams) (*PaymentPage, error)
}
