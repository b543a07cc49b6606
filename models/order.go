package models

import (
	"time"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
)

type CustomerInfo struct {
	Name  string `gorm:"type:varchar(255)" json:"name,omitempty" bson:"name,omitempty"`
	Phone string `gorm:"type:varchar(50)" json:"phone,omitempty" bson:"phone,omitempty"`
	Email string `gorm:"type:varchar(255)" json:"email,omitempty" bson:"email,omitempty"`
}

// Order adalah record utama yang disinkronkan ke semua dashboard.
// Revision naik satu setiap kali order di-commit.
type Order struct {
	ID                 string                  `gorm:"primaryKey;type:varchar(36)" json:"_id" bson:"_id"`
	OrderNumber        string                  `gorm:"type:varchar(32);uniqueIndex" json:"orderNumber" bson:"orderNumber"`
	CustomerID         *string                 `gorm:"type:varchar(36);index" json:"customerId,omitempty" bson:"customerId,omitempty"`
	GuestID            *string                 `gorm:"type:varchar(64);index" json:"guestId,omitempty" bson:"guestId,omitempty"`
	Status             lifecycle.Status        `gorm:"type:varchar(20);not null;default:'pending';index" json:"status" bson:"status"`
	PaymentStatus      lifecycle.PaymentStatus `gorm:"type:varchar(20);not null;default:'pending'" json:"paymentStatus" bson:"paymentStatus"`
	PaymentMethod      lifecycle.PaymentMethod `gorm:"type:varchar(20);not null" json:"paymentMethod" bson:"paymentMethod"`
	ServiceType        lifecycle.ServiceType   `gorm:"type:varchar(20);not null" json:"serviceType" bson:"serviceType"`
	Items              []OrderItem             `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"items" bson:"items"`
	Subtotal           float64                 `gorm:"type:decimal(10,2);not null;default:0.00" json:"subtotal" bson:"subtotal"`
	VAT                float64                 `gorm:"type:decimal(10,2);not null;default:0.00" json:"vat" bson:"vat"`
	DeliveryFee        float64                 `gorm:"type:decimal(10,2);not null;default:0.00" json:"deliveryFee" bson:"deliveryFee"`
	TotalAmount        float64                 `gorm:"type:decimal(10,2);not null;default:0.00" json:"totalAmount" bson:"totalAmount"`
	CustomerInfo       CustomerInfo            `gorm:"embedded;embeddedPrefix:customer_" json:"customerInfo" bson:"customerInfo"`
	TableNumber        string                  `gorm:"type:varchar(20)" json:"tableNumber,omitempty" bson:"tableNumber,omitempty"`
	EstimatedTime      *int                    `json:"estimatedTime,omitempty" bson:"estimatedTime,omitempty"`
	EstimatedReadyTime *time.Time              `json:"estimatedReadyTime,omitempty" bson:"estimatedReadyTime,omitempty"`
	RefundAmount       *float64                `gorm:"type:decimal(10,2)" json:"refundAmount,omitempty" bson:"refundAmount,omitempty"`
	Notes              string                  `gorm:"type:text" json:"notes,omitempty" bson:"notes,omitempty"`
	Revision           int64                   `gorm:"not null;default:1" json:"revision" bson:"revision"`
	CreatedAt          time.Time               `gorm:"not null;index" json:"createdAt" bson:"createdAt"`
	UpdatedAt          time.Time               `gorm:"not null" json:"updatedAt" bson:"updatedAt"`
}

// OwnerID mengembalikan customerId atau guestId, mana yang terisi
func (o *Order) OwnerID() string {
	if o.CustomerID != nil && *o.CustomerID != "" {
		return *o.CustomerID
	}
	if o.GuestID != nil {
		return *o.GuestID
	}
	return ""
}

// IsGuest reports whether the order is owned by a guest correlation id.
func (o *Order) IsGuest() bool {
	return (o.CustomerID == nil || *o.CustomerID == "") && o.GuestID != nil && *o.GuestID != ""
}

func (o *Order) ItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Clone returns a deep copy so callers never share item slices or pointers.
func (o *Order) Clone() *Order {
	cp := *o
	cp.CustomerID = cloneString(o.CustomerID)
	cp.GuestID = cloneString(o.GuestID)
	if o.EstimatedTime != nil {
		v := *o.EstimatedTime
		cp.EstimatedTime = &v
	}
	if o.EstimatedReadyTime != nil {
		v := *o.EstimatedReadyTime
		cp.EstimatedReadyTime = &v
	}
	if o.RefundAmount != nil {
		v := *o.RefundAmount
		cp.RefundAmount = &v
	}
	if o.Items != nil {
		cp.Items = make([]OrderItem, len(o.Items))
		for i, it := range o.Items {
			cp.Items[i] = it
			if it.Options != nil {
				cp.Items[i].Options = make(map[string]string, len(it.Options))
				for k, v := range it.Options {
					cp.Items[i].Options[k] = v
				}
			}
		}
	}
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
