package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-orders/models"
)

type CartService struct {
	DB      *gorm.DB
	Catalog *CatalogService
}

func NewCartService(db *gorm.DB, catalog *CatalogService) *CartService {
	return &CartService{DB: db, Catalog: catalog}
}

type AddItemRequest struct {
	MenuID   string            `json:"menuId" binding:"required"`
	Quantity int               `json:"quantity" binding:"required,min=1"`
	Options  map[string]string `json:"options"`
}

// UpdateItemRequest dipakai untuk PATCH item; field nil tidak diubah.
type UpdateItemRequest struct {
	Quantity *int              `json:"quantity"`
	Options  map[string]string `json:"options"`
}

func (s *CartService) Create(ctx context.Context, owner models.Identity) (*models.Cart, error) {
	if owner.OwnerID() == "" {
		return nil, invalid("cart needs a user or guest id")
	}
	now := time.Now()
	cart := models.Cart{
		ID:        uuid.NewString(),
		Status:    models.CartOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if owner.UserID != "" {
		cart.CustomerID = &owner.UserID
	} else {
		cart.GuestID = &owner.GuestID
	}
	if err := s.DB.WithContext(ctx).Create(&cart).Error; err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	cart.Items = []models.CartItem{}
	return &cart, nil
}

func (s *CartService) Get(ctx context.Context, id string) (*models.Cart, error) {
	return loadCart(s.DB.WithContext(ctx), id)
}

// GetOwned is Get plus the ownership check used by the cart routes.
func (s *CartService) GetOwned(ctx context.Context, owner models.Identity, id string) (*models.Cart, error) {
	cart, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cart.BelongsTo(owner) {
		return nil, ErrForbidden
	}
	return cart, nil
}

func (s *CartService) AddItem(ctx context.Context, owner models.Identity, cartID string, req AddItemRequest) (*models.Cart, error) {
	if req.Quantity < 1 {
		return nil, invalid("quantity must be at least 1")
	}
	menu, err := s.Catalog.Orderable(ctx, req.MenuID)
	if err != nil {
		return nil, err
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := openCart(tx, owner, cartID)
		if err != nil {
			return err
		}

		now := time.Now()
		// item dengan menu dan opsi yang sama digabung
		for _, it := range cart.Items {
			if it.MenuID == req.MenuID && sameOptions(it.Options, req.Options) {
				return tx.Model(&models.CartItem{}).Where("id = ?", it.ID).
					Updates(map[string]interface{}{"quantity": it.Quantity + req.Quantity, "updated_at": now}).Error
			}
		}
		item := models.CartItem{
			ID:        uuid.NewString(),
			CartID:    cart.ID,
			MenuID:    menu.ID,
			Name:      menu.Name,
			UnitPrice: menu.Price,
			Quantity:  req.Quantity,
			Options:   req.Options,
			UpdatedAt: now,
		}
		return tx.Create(&item).Error
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, cartID)
}

// UpdateItem applies quantity and options in a single statement so two
// concurrent edits of the same item never interleave half-applied.
func (s *CartService) UpdateItem(ctx context.Context, owner models.Identity, cartID, itemID string, req UpdateItemRequest) (*models.Cart, error) {
	if req.Quantity == nil && req.Options == nil {
		return nil, invalid("nothing to update")
	}
	if req.Quantity != nil && *req.Quantity < 1 {
		return nil, invalid("quantity must be at least 1")
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := openCart(tx, owner, cartID); err != nil {
			return err
		}

		patch := models.CartItem{UpdatedAt: time.Now()}
		fields := []string{"UpdatedAt"}
		if req.Quantity != nil {
			patch.Quantity = *req.Quantity
			fields = append(fields, "Quantity")
		}
		if req.Options != nil {
			patch.Options = req.Options
			fields = append(fields, "Options")
		}

		res := tx.Model(&models.CartItem{}).
			Where("id = ? AND cart_id = ?", itemID, cartID).
			Select(fields).
			Updates(&patch)
		if res.Error != nil {
			return fmt.Errorf("update cart item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("cart item %s: %w", itemID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, cartID)
}

func (s *CartService) RemoveItem(ctx context.Context, owner models.Identity, cartID, itemID string) (*models.Cart, error) {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := openCart(tx, owner, cartID); err != nil {
			return err
		}
		res := tx.Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&models.CartItem{})
		if res.Error != nil {
			return fmt.Errorf("delete cart item: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("cart item %s: %w", itemID, ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, cartID)
}

// MarkOrdered menutup cart setelah order dibuat
func (s *CartService) MarkOrdered(ctx context.Context, cartID string) error {
	res := s.DB.WithContext(ctx).Model(&models.Cart{}).
		Where("id = ? AND status = ?", cartID, models.CartOpen).
		Updates(map[string]interface{}{"status": models.CartOrdered, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("close cart %s: %w", cartID, res.Error)
	}
	if res.RowsAffected == 0 {
		return invalid("cart %s is not open", cartID)
	}
	return nil
}

func loadCart(db *gorm.DB, id string) (*models.Cart, error) {
	var cart models.Cart
	err := db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("updated_at ASC")
	}).First(&cart, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("cart %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get cart %s: %w", id, err)
	}
	return &cart, nil
}

func openCart(tx *gorm.DB, owner models.Identity, id string) (*models.Cart, error) {
	cart, err := loadCart(tx, id)
	if err != nil {
		return nil, err
	}
	if !cart.BelongsTo(owner) {
		return nil, ErrForbidden
	}
	if cart.Status != models.CartOpen {
		return nil, invalid("cart %s is already checked out", id)
	}
	return cart, nil
}

func sameOptions(a, b map[string]string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
