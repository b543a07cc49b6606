package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-orders/models"
)

type GormOrderRepository struct {
	DB *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{DB: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if err := r.DB.WithContext(ctx).Create(order).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (r *GormOrderRepository) Get(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := r.DB.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &order, nil
}

func (r *GormOrderRepository) List(ctx context.Context, filter OrderFilter) ([]models.Order, error) {
	q := r.DB.WithContext(ctx).Model(&models.Order{})
	if filter.OwnerID != "" {
		q = q.Where("customer_id = ? OR guest_id = ?", filter.OwnerID, filter.OwnerID)
	}
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(filter.Statuses))
	}
	if filter.PaymentMethod != "" {
		q = q.Where("payment_method = ?", string(filter.PaymentMethod))
	}
	if filter.PaymentStatus != "" {
		q = q.Where("payment_status = ?", string(filter.PaymentStatus))
	}
	if !filter.CreatedBefore.IsZero() {
		q = q.Where("created_at < ?", filter.CreatedBefore)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var orders []models.Order
	err := q.Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// Update menulis ulang kolom order (tanpa items) hanya jika revision di
// database masih sama dengan expectedRevision.
func (r *GormOrderRepository) Update(ctx context.Context, order *models.Order, expectedRevision int64) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(order).
			Where("revision = ?", expectedRevision).
			Select("*").
			Omit("Items", "CreatedAt").
			Updates(order)
		if res.Error != nil {
			return fmt.Errorf("update order %s: %w", order.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("update order %s: %w", order.ID, err)
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}
		return nil
	})
}

func (r *GormOrderRepository) Delete(ctx context.Context, id string) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", id).Delete(&models.OrderItem{}).Error; err != nil {
			return fmt.Errorf("delete items of order %s: %w", id, err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Order{})
		if res.Error != nil {
			return fmt.Errorf("delete order %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
