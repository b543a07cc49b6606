package lifecycle

import (
	"fmt"
	"strings"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	PaymentOnline  PaymentMethod = "online"
	PaymentInStore PaymentMethod = "instore"
	PaymentCard    PaymentMethod = "card"
)

type ServiceType string

const (
	ServiceDineIn   ServiceType = "dine-in"
	ServicePickup   ServiceType = "pickup"
	ServiceDelivery ServiceType = "delivery"
)

var paymentEdges = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPaid, PaymentFailed},
	PaymentFailed:  {PaymentPending},
	PaymentPaid:    {PaymentRefunded},
}

func ParsePaymentStatus(s string) (PaymentStatus, error) {
	ps := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	switch ps {
	case PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
		return ps, nil
	}
	return "", fmt.Errorf("%w: payment status %q", ErrUnknownStatus, s)
}

// ParsePaymentMethod accepts the historical spellings cash and in-store.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "online":
		return PaymentOnline, nil
	case "instore", "in-store", "cash":
		return PaymentInStore, nil
	case "card":
		return PaymentCard, nil
	}
	return "", fmt.Errorf("%w: payment method %q", ErrUnknownStatus, s)
}

func ParseServiceType(s string) (ServiceType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dine-in", "dinein", "dine_in":
		return ServiceDineIn, nil
	case "pickup", "takeaway":
		return ServicePickup, nil
	case "delivery":
		return ServiceDelivery, nil
	}
	return "", fmt.Errorf("%w: service type %q", ErrUnknownStatus, s)
}

// CheckPaymentTransition validates a payment status change. Setting the
// current value again is accepted and treated as a no-op by callers.
func CheckPaymentTransition(from, to PaymentStatus) error {
	if from == to {
		return nil
	}
	for _, next := range paymentEdges[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: payment %s -> %s", ErrInvalidTransition, from, to)
}

// Rank orders payment states for clients that must reject stale
// deltas. pending and failed share a rank because retries move between them.
func (p PaymentStatus) Rank() int {
	switch p {
	case PaymentPending, PaymentFailed:
		return 0
	case PaymentPaid:
		return 1
	case PaymentRefunded:
		return 2
	}
	return -1
}
