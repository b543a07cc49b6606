package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("not allowed")
	ErrNotFound   = errors.New("not found")
)

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// validationError mengubah ValidationErrors menjadi pesan yang bisa dibaca user
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	seen := make(map[string]bool)
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fieldMessage(fe)
		if !seen[msg] {
			seen[msg] = true
			msgs = append(msgs, msg)
		}
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Field() {
	case "TableNumber":
		return "tableNumber is required for dine-in orders"
	case "CustomerID", "GuestID":
		return "order must have exactly one owner (customerId or guestId)"
	case "ItemCount":
		return "order must contain at least one item"
	case "Quantities":
		return "item quantity must be at least 1"
	case "ServiceType":
		return "serviceType must be dine-in, pickup or delivery"
	case "PaymentMethod":
		return "paymentMethod must be online, instore or card"
	case "Email":
		return "customerInfo.email is not a valid email"
	}
	return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
}
