package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

// Status adalah posisi order di dalam alur dapur
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Actor membedakan siapa yang meminta perubahan status
type Actor int

const (
	ActorCustomer Actor = iota
	ActorStaff
	ActorSystem
)

var (
	ErrInvalidTransition = errors.New("invalid order transition")
	ErrUnknownStatus     = errors.New("unknown order status")
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusPreparing: 2,
	StatusReady:     3,
	StatusCompleted: 4,
	StatusCancelled: 4,
}

// ParseStatus menerima nilai dari request atau event dan mengembalikan Status kanonik
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return st, nil
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// Rank returns the position of s along pending -> completed. Unknown statuses rank -1.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Active reports whether the kitchen still has work to do for an order in s.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady:
		return true
	}
	return false
}

// IsForward reports whether moving from -> to follows the graph forward.
// Terminal states never move; cancelled is reachable from any active state.
func IsForward(from, to Status) bool {
	if !to.Valid() || from == to || from.Terminal() {
		return false
	}
	if !from.Valid() {
		return true
	}
	if to == StatusCancelled {
		return true
	}
	return to.Rank() > from.Rank()
}

// CheckTransition validates a status change requested by actor.
// Staff may skip forward (pending -> preparing) and cancel any active order.
// Customers may only cancel while the order is still pending.
func CheckTransition(from, to Status, actor Actor) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if from.Terminal() {
		return fmt.Errorf("%w: order is already %s", ErrInvalidTransition, from)
	}
	if from == to {
		return nil
	}

	switch actor {
	case ActorCustomer:
		if to != StatusCancelled {
			return fmt.Errorf("%w: customers may only cancel orders", ErrInvalidTransition)
		}
		if from != StatusPending {
			return fmt.Errorf("%w: only pending orders can be cancelled, order is %s", ErrInvalidTransition, from)
		}
		return nil
	case ActorStaff, ActorSystem:
		if !IsForward(from, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown actor", ErrInvalidTransition)
}

// CheckCompletion memastikan order online sudah dibayar sebelum selesai
func CheckCompletion(method PaymentMethod, payment PaymentStatus) error {
	if method == PaymentOnline && payment != PaymentPaid {
		return fmt.Errorf("%w: online orders must be paid before completion", ErrInvalidTransition)
	}
	return nil
}
