package store

import (
	"context"
	"errors"
	"time"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
)

var (
	ErrNotFound = errors.New("order not found")
	// ErrConflict is returned by Update when the stored revision no longer
	// matches the revision the caller read.
	ErrConflict = errors.New("order was modified concurrently")
)

type OrderFilter struct {
	OwnerID       string
	Statuses      []lifecycle.Status
	PaymentMethod lifecycle.PaymentMethod
	PaymentStatus lifecycle.PaymentStatus
	CreatedBefore time.Time
	Limit         int
}

// OrderRepository adalah Order Store. Implementasi: gorm (mysql, postgres,
// sqlite) dan mongo.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, error)
	Update(ctx context.Context, order *models.Order, expectedRevision int64) error
	Delete(ctx context.Context, id string) error
}

func statusStrings(statuses []lifecycle.Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
