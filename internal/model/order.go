package model

import "time"

// OrderType distinguishes purchases from ownership transfers.
type OrderType string

const (
	OrderPurchase      OrderType = "purchase"
	OrderTransfer      OrderType = "transfer"
	OrderAdminTransfer OrderType = "admin_transfer"
)

// Order is one checkout attempt.  An order owns exactly one Payment and
// the TicketReserves created for it.
//
// Fields:
//
//	ID                 – primary key identifier.
//	UserID             – user who placed the order.
//	SeatSaleID         – sale window the order was placed in.
//	OrderType          – purchase, transfer or admin_transfer.
//	TotalPrice         – total price in the smallest currency unit.
//	ReturnedAt         – set when the order was refunded; nil means active.
//	RefundErrorMessage – last refund failure reported by the gateway.
type Order struct {
	ID                 uint64     // orders.id
	UserID             uint64     // orders.user_id
	SeatSaleID         uint64     // orders.seat_sale_id
	OrderType          OrderType  // orders.order_type
	TotalPrice         uint32     // orders.total_price
	ReturnedAt         *time.Time // orders.returned_at (nullable)
	RefundErrorMessage *string    // orders.refund_error_message (nullable)
	CreatedAt          time.Time  // orders.created_at
}

// PaymentProgress is the settlement state of a payment.  Progress only
// moves forward: requesting_payment → captured → refunded, or
// requesting_payment → failed_request.
type PaymentProgress string

const (
	PaymentRequesting    PaymentProgress = "requesting_payment"
	PaymentCaptured      PaymentProgress = "captured"
	PaymentFailedRequest PaymentProgress = "failed_request"
	PaymentRefunded      PaymentProgress = "refunded"
)

// CanAdvanceTo reports whether moving from p to next is a forward step.
func (p PaymentProgress) CanAdvanceTo(next PaymentProgress) bool {
	switch p {
	case PaymentRequesting:
		return next == PaymentCaptured || next == PaymentFailedRequest
	case PaymentCaptured:
		return next == PaymentRefunded
	}
	return false
}

// Payment is the settlement record of one Order.
type Payment struct {
	ID         uint64          // payments.id
	OrderID    uint64          // payments.order_id
	ChargeID   string          // payments.charge_id (gateway charge identifier)
	Progress   PaymentProgress // payments.progress
	CapturedAt *time.Time      // payments.captured_at (nullable, set once)
	RefundedAt *time.Time      // payments.refunded_at (nullable, set once)
	CreatedAt  time.Time       // payments.created_at
}

// OrderPayment pairs an order with its payment as returned by the
// reconciliation queries.
type OrderPayment struct {
	Order   Order
	Payment Payment
}
