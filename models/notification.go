package models

import (
	"time"
)

// Notification tanpa UserID adalah pengumuman untuk semua koneksi
type Notification struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    *string   `gorm:"type:varchar(64);index" json:"userId,omitempty"`
	OrderID   *string   `gorm:"type:varchar(36)" json:"orderId,omitempty"`
	Title     string    `gorm:"type:varchar(100)" json:"title"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
}
