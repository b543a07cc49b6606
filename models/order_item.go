package models

// OrderItem adalah snapshot harga menu saat order dibuat, tidak berubah setelahnya
type OrderItem struct {
	ID        uint              `gorm:"primaryKey" json:"-" bson:"-"`
	OrderID   string            `gorm:"type:varchar(36);not null;index" json:"-" bson:"-"`
	MenuID    string            `gorm:"type:varchar(36)" json:"menuId,omitempty" bson:"menuId,omitempty"`
	Name      string            `gorm:"type:varchar(255);not null" json:"name" bson:"name"`
	UnitPrice float64           `gorm:"type:decimal(10,2);not null" json:"unitPrice" bson:"unitPrice"`
	Quantity  int               `gorm:"not null" json:"quantity" bson:"quantity"`
	LineTotal float64           `gorm:"type:decimal(10,2);not null" json:"lineTotal" bson:"lineTotal"`
	Options   map[string]string `gorm:"serializer:json" json:"options,omitempty" bson:"options,omitempty"`
}
