package models

import "time"

const (
	CartOpen    = "open"
	CartOrdered = "ordered"
)

type Cart struct {
	ID         string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CustomerID *string    `gorm:"type:varchar(36);index" json:"customerId,omitempty"`
	GuestID    *string    `gorm:"type:varchar(64);index" json:"guestId,omitempty"`
	Status     string     `gorm:"type:varchar(20);not null;default:'open'" json:"status"`
	Items      []CartItem `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"items"`
	CreatedAt  time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updatedAt"`
}

// CartItem menyimpan harga menu pada saat item ditambahkan
type CartItem struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CartID    string            `gorm:"type:varchar(36);not null;index" json:"-"`
	MenuID    string            `gorm:"type:varchar(36);not null" json:"menuId"`
	Name      string            `gorm:"type:varchar(255);not null" json:"name"`
	UnitPrice float64           `gorm:"type:decimal(10,2);not null" json:"unitPrice"`
	Quantity  int               `gorm:"not null" json:"quantity"`
	Options   map[string]string `gorm:"serializer:json" json:"options,omitempty"`
	UpdatedAt time.Time         `gorm:"not null" json:"updatedAt"`
}

// BelongsTo reports whether the identity owns the cart.
func (c *Cart) BelongsTo(id Identity) bool {
	if id.UserID != "" && c.CustomerID != nil && *c.CustomerID == id.UserID {
		return true
	}
	return id.GuestID != "" && c.GuestID != nil && *c.GuestID == id.GuestID
}
