package hub

import "github.com/yeremiapane/restaurant-orders/models"

// Room names used by the emission side.
const (
	RoomKitchen = "kitchen"
	RoomCashier = "cashier"
	RoomAdmin   = "admin"
	// RoomAll targets every open connection.
	RoomAll = "*"
)

func UserRoom(userID string) string   { return "user:" + userID }
func GuestRoom(guestID string) string { return "guest:" + guestID }
func RoleRoom(role string) string     { return "role:" + role }

// StaffRooms are the rooms every staff-wide order event goes to.
func StaffRooms() []string {
	return []string{RoomKitchen, RoomCashier, RoomAdmin}
}

// OwnerRoom returns the personal room of the order owner, or "" when the
// order has no owner.
func OwnerRoom(o *models.Order) string {
	if o.CustomerID != nil && *o.CustomerID != "" {
		return UserRoom(*o.CustomerID)
	}
	if o.GuestID != nil && *o.GuestID != "" {
		return GuestRoom(*o.GuestID)
	}
	return ""
}

// groupAccess lists the roles allowed to join each staff group.
var groupAccess = map[string][]string{
	RoomKitchen: {models.RoleKitchen, models.RoleAdmin},
	RoomCashier: {models.RoleCashier, models.RoleAdmin},
	RoomAdmin:   {models.RoleAdmin},
}

func canJoinGroup(room, role string) bool {
	for _, r := range groupAccess[room] {
		if r == role {
			return true
		}
	}
	return false
}
