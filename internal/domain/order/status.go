// Package order holds the order aggregate, its status state machine and
// order number generation.
package order

import "fmt"

// Status is the fulfilment status of an order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

// validNext lists the forward transitions. Cancel and refund are allowed from
// every state before completed.
var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true, StatusRefunded: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true, StatusRefunded: true},
	StatusShipped:    {StatusDelivered: true, StatusCancelled: true, StatusRefunded: true},
	StatusDelivered:  {StatusCompleted: true, StatusCancelled: true, StatusRefunded: true},
	StatusCompleted:  {},
	StatusCancelled:  {},
	StatusRefunded:   {},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(validNext[s]) == 0
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// InvalidTransitionError is returned for a transition the state machine forbids.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition order from %s to %s", e.From, e.To)
}

// Transition moves the order to status to. Totals and lines are never
// touched. Refunding a paid order also marks the payment refunded.
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return &InvalidTransitionError{From: o.Status, To: to}
	}
	o.Status = to
	if to == StatusRefunded && o.PaymentStatus == PaymentPaid {
		o.PaymentStatus = PaymentRefunded
	}
	return nil
}
