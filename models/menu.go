package models

import "time"

type Menu struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name        string    `gorm:"type:varchar(255); not null" json:"name"`
	Price       float64   `gorm:"type:decimal(10,2); not null" json:"price"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Available   bool      `gorm:"not null" json:"available"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt   time.Time `gorm:"not null" json:"updatedAt"`
}
