package models

// Identity adalah fakta {userId, role} hasil autentikasi, atau guest id
// untuk pelanggan yang belum login.
type Identity struct {
	UserID  string `json:"userId,omitempty"`
	GuestID string `json:"guestId,omitempty"`
	Role    string `json:"role,omitempty"`
}

func (id Identity) IsStaff() bool {
	return IsStaffRole(id.Role)
}

func (id Identity) IsGuest() bool {
	return id.UserID == "" && id.GuestID != ""
}

// OwnerID is the id orders created by this identity are attributed to.
func (id Identity) OwnerID() string {
	if id.UserID != "" {
		return id.UserID
	}
	return id.GuestID
}

// Owns reports whether the order belongs to this identity.
func (id Identity) Owns(o *Order) bool {
	if id.UserID != "" && o.CustomerID != nil && *o.CustomerID == id.UserID {
		return true
	}
	return id.GuestID != "" && o.GuestID != nil && *o.GuestID == id.GuestID
}

// CanView: staff melihat semua order, customer hanya miliknya
func (id Identity) CanView(o *Order) bool {
	return id.IsStaff() || id.Owns(o)
}
