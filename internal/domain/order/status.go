package order

// Status is the fulfillment state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// PaymentStatus is supplied by an external authority (payment gateway
// or admin); the core records it but never derives it.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// statusSpec describes one lifecycle state: which states it may move to
// and whether reserved stock is still held while the order sits in it.
// Cancelling from a stock-holding state must release the reservation;
// cancelling after delivery is impossible because the stock has been
// consumed by fulfillment.
type statusSpec struct {
	holdsStock bool
	next       []Status
}

var statuses = map[Status]statusSpec{
	StatusPending:   {holdsStock: true, next: []Status{StatusConfirmed, StatusCancelled}},
	StatusConfirmed: {holdsStock: true, next: []Status{StatusShipped, StatusCancelled}},
	StatusShipped:   {holdsStock: true, next: []Status{StatusDelivered, StatusCancelled}},
	StatusDelivered: {holdsStock: false, next: []Status{StatusRefunded}},
	StatusCancelled: {holdsStock: false},
	StatusRefunded:  {holdsStock: false},
}

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	_, ok := statuses[s]
	return ok
}

// HoldsStock reports whether reserved stock is still held while an
// order sits in this status.
func (s Status) HoldsStock() bool {
	return statuses[s].holdsStock
}

// CanTransitionTo reports whether the lifecycle permits moving from s
// to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, n := range statuses[s].next {
		if n == target {
			return true
		}
	}
	return false
}

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}
