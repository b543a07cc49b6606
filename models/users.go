package models

import "time"

const (
	RoleCustomer = "customer"
	RoleCashier  = "cashier"
	RoleKitchen  = "kitchen"
	RoleAdmin    = "admin"
)

type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name      string    `gorm:"type:varchar(255); not null" json:"name"`
	Email     string    `gorm:"type:varchar(255); unique;not null" json:"email"`
	Password  string    `gorm:"type:varchar(255); not null" json:"-"`
	Role      string    `gorm:"type:varchar(20); not null" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ValidRole reports whether role is one the platform knows how to route.
func ValidRole(role string) bool {
	switch role {
	case RoleCustomer, RoleCashier, RoleKitchen, RoleAdmin:
		return true
	}
	return false
}

func IsStaffRole(role string) bool {
	return role == RoleCashier || role == RoleKitchen || role == RoleAdmin
}
