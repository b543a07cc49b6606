package readmodel

import (
	"sort"
	"strings"
	"time"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
)

type SortKey string

const (
	SortDefault     SortKey = ""
	SortNewest      SortKey = "newest"
	SortOldest      SortKey = "oldest"
	SortFewestItems SortKey = "fewest-items"
	SortMostItems   SortKey = "most-items"
	// SortPrepTime puts the order that has waited longest since its
	// estimate (or creation) first.
	SortPrepTime SortKey = "prep-time"
)

// ParseSortKey menerima nilai dari flag atau query; nilai kosong berarti default
func ParseSortKey(s string) (SortKey, bool) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortDefault, SortNewest, SortOldest, SortFewestItems, SortMostItems, SortPrepTime:
		return k, true
	}
	return "", false
}

// Filter narrows a view. Zero values match everything.
type Filter struct {
	Statuses      []lifecycle.Status
	PaymentStatus lifecycle.PaymentStatus
	ServiceType   lifecycle.ServiceType
	// Search matches order number, customer name or table number.
	Search string
}

func (f Filter) Match(o *models.Order) bool {
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.PaymentStatus != "" && o.PaymentStatus != f.PaymentStatus {
		return false
	}
	if f.ServiceType != "" && o.ServiceType != f.ServiceType {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		hay := strings.ToLower(o.OrderNumber + " " + o.CustomerInfo.Name + " " + o.TableNumber)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	return true
}

// Sort returns a sorted copy; ties fall back to id so the result is stable
// across calls.
func Sort(orders []models.Order, key SortKey, now time.Time) []models.Order {
	out := make([]models.Order, len(orders))
	copy(out, orders)

	var compare func(a, b *models.Order) int
	switch key {
	case SortOldest:
		compare = func(a, b *models.Order) int { return compareTime(a.CreatedAt, b.CreatedAt) }
	case SortFewestItems:
		compare = func(a, b *models.Order) int { return a.ItemCount() - b.ItemCount() }
	case SortMostItems:
		compare = func(a, b *models.Order) int { return b.ItemCount() - a.ItemCount() }
	case SortPrepTime:
		compare = func(a, b *models.Order) int {
			return compareDuration(waiting(b, now), waiting(a, now))
		}
	default:
		compare = func(a, b *models.Order) int { return compareTime(b.CreatedAt, a.CreatedAt) }
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := compare(&out[i], &out[j]); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// waiting is how long an order is past its ready estimate, or how long it
// has existed when there is no estimate.
func waiting(o *models.Order, now time.Time) time.Duration {
	switch {
	case o.EstimatedReadyTime != nil:
		return now.Sub(*o.EstimatedReadyTime)
	case o.EstimatedTime != nil:
		return now.Sub(o.CreatedAt.Add(time.Duration(*o.EstimatedTime) * time.Minute))
	}
	return now.Sub(o.CreatedAt)
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareDuration(a, b time.Duration) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
