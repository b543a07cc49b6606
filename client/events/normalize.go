package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
)

// Kind is the normalized meaning of a wire event.
type Kind int

const (
	KindUnknown Kind = iota
	KindCreated
	KindUpdated
	KindPayment
	KindDeleted
	KindPersonalStatus
	KindPersonalPayment
	KindNotification
	KindAnnouncement
)

func (k Kind) String() string {
	switch k {
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	case KindPayment:
		return "payment"
	case KindDeleted:
		return "deleted"
	case KindPersonalStatus:
		return "personal-status"
	case KindPersonalPayment:
		return "personal-payment"
	case KindNotification:
		return "notification"
	case KindAnnouncement:
		return "announcement"
	}
	return "unknown"
}

// IsPayment reports whether deltas of this kind may only touch payment fields.
func (k Kind) IsPayment() bool {
	return k == KindPayment || k == KindPersonalPayment
}

func (k Kind) IsPersonal() bool {
	return k == KindPersonalStatus || k == KindPersonalPayment
}

type route struct {
	kind    Kind
	status  lifecycle.Status
	payment lifecycle.PaymentStatus
}

// aliases maps every wire name the server (old and new) may use to one kind.
var aliases = map[string]route{
	"order:created":     {kind: KindCreated},
	"order:new":         {kind: KindCreated},
	"order:new:online":  {kind: KindCreated},
	"order:new:instore": {kind: KindCreated},
	"order:new:direct":  {kind: KindCreated},
	"order:direct":      {kind: KindCreated},

	"order:updated":          {kind: KindUpdated},
	"order:status-changed":   {kind: KindUpdated},
	"order:estimatedTime":    {kind: KindUpdated},
	"kitchen:order:updated":  {kind: KindUpdated},
	"cashier:order:updated":  {kind: KindUpdated},
	"order:confirmed":        {kind: KindUpdated, status: lifecycle.StatusConfirmed},
	"order:preparing":        {kind: KindUpdated, status: lifecycle.StatusPreparing},
	"order:ready":            {kind: KindUpdated, status: lifecycle.StatusReady},
	"order:completed":        {kind: KindUpdated, status: lifecycle.StatusCompleted},
	"order:cancelled":        {kind: KindUpdated, status: lifecycle.StatusCancelled},
	"order:status:confirmed": {kind: KindUpdated, status: lifecycle.StatusConfirmed},
	"order:status:preparing": {kind: KindUpdated, status: lifecycle.StatusPreparing},
	"order:status:ready":     {kind: KindUpdated, status: lifecycle.StatusReady},
	"order:status:completed": {kind: KindUpdated, status: lifecycle.StatusCompleted},
	"order:status:cancelled": {kind: KindUpdated, status: lifecycle.StatusCancelled},

	"order:payment-updated": {kind: KindPayment},
	"order:payment:success": {kind: KindPayment, payment: lifecycle.PaymentPaid},
	"order:payment:failed":  {kind: KindPayment, payment: lifecycle.PaymentFailed},
	"order:refunded":        {kind: KindPayment, payment: lifecycle.PaymentRefunded},

	"order:deleted": {kind: KindDeleted},

	"order:your-status-changed":  {kind: KindPersonalStatus},
	"order:your-payment-updated": {kind: KindPersonalPayment},

	"notification": {kind: KindNotification},
	"announcement": {kind: KindAnnouncement},
}

// KindOf returns the kind registered for a wire name.
func KindOf(event string) Kind {
	return aliases[event].kind
}

// WireNames lists every event name the normalizer understands.
func WireNames() []string {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	return names
}

var (
	ErrMissingID      = errors.New("event payload has no order id")
	ErrMalformedEvent = errors.New("malformed event payload")
)

// Delta is one normalized order change. Fields always carries "_id" for
// order kinds and never the legacy "orderId"/"id" keys.
type Delta struct {
	Kind  Kind
	Event string
	ID    string

	Fields map[string]interface{}

	// Full is set when the payload is a complete order (status, items and
	// createdAt present) and may replace the stored one.
	Full bool

	// Revision is 0 and UpdatedAt zero when the payload does not carry them.
	Revision  int64
	UpdatedAt time.Time

	OwnerID string
}

// Status returns the status carried by the delta, or "".
func (d Delta) Status() lifecycle.Status {
	s, _ := d.Fields["status"].(string)
	return lifecycle.Status(s)
}

func (d Delta) PaymentStatus() lifecycle.PaymentStatus {
	s, _ := d.Fields["paymentStatus"].(string)
	return lifecycle.PaymentStatus(s)
}

// Normalize turns one wire event into a Delta. Unknown event names give a
// KindUnknown delta and no error.
func Normalize(event string, payload json.RawMessage) (Delta, error) {
	r, ok := aliases[event]
	if !ok {
		return Delta{Kind: KindUnknown, Event: event}, nil
	}
	d := Delta{Kind: r.kind, Event: event}

	fields := map[string]interface{}{}
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &fields); err != nil {
			// payload order:deleted lama kadang hanya string id
			var id string
			if r.kind == KindDeleted && json.Unmarshal(payload, &id) == nil && id != "" {
				d.ID = id
				d.Fields = map[string]interface{}{"_id": id}
				return d, nil
			}
			return d, fmt.Errorf("%w: %s: %v", ErrMalformedEvent, event, err)
		}
	}

	if r.kind == KindNotification || r.kind == KindAnnouncement {
		d.Fields = fields
		return d, nil
	}

	fields = unwrapOrder(fields)
	id := firstString(fields, "_id", "orderId", "id")
	if id == "" {
		return d, fmt.Errorf("%w: %s", ErrMissingID, event)
	}
	delete(fields, "orderId")
	delete(fields, "id")
	fields["_id"] = id

	if r.status != "" {
		if _, set := fields["status"]; !set {
			fields["status"] = string(r.status)
		}
	}
	if r.payment != "" {
		if _, set := fields["paymentStatus"]; !set {
			fields["paymentStatus"] = string(r.payment)
		}
	}

	d.ID = id
	d.Fields = fields
	d.Full = has(fields, "status") && has(fields, "items") && has(fields, "createdAt")
	d.Revision = int64Field(fields, "revision")
	if s, ok := fields["updatedAt"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			d.UpdatedAt = t
		}
	}
	d.OwnerID = firstString(fields, "customerId", "guestId")
	return d, nil
}

// FromOrder builds a full delta from an order fetched over REST. It is
// full even when the order has no items.
func FromOrder(o *models.Order) (Delta, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return Delta{}, err
	}
	d, err := Normalize("order:updated", raw)
	if err != nil {
		return Delta{}, err
	}
	d.Event = ""
	d.Full = true
	return d, nil
}

// unwrapOrder flattens {order: {...}, previousStatus: ...} envelopes.
// Keys of the inner order win over the envelope.
func unwrapOrder(fields map[string]interface{}) map[string]interface{} {
	inner, ok := fields["order"].(map[string]interface{})
	if !ok {
		return fields
	}
	for k, v := range fields {
		if k == "order" {
			continue
		}
		if _, exists := inner[k]; !exists {
			inner[k] = v
		}
	}
	return inner
}

func firstString(fields map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := fields[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func has(fields map[string]interface{}, key string) bool {
	v, ok := fields[key]
	return ok && v != nil
}

func int64Field(fields map[string]interface{}, key string) int64 {
	switch v := fields[key].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}
