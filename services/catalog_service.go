package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-orders/models"
)

type CatalogService struct {
	DB *gorm.DB
}

func NewCatalogService(db *gorm.DB) *CatalogService {
	return &CatalogService{DB: db}
}

func (s *CatalogService) List(ctx context.Context, onlyAvailable bool) ([]models.Menu, error) {
	q := s.DB.WithContext(ctx).Order("name ASC")
	if onlyAvailable {
		q = q.Where("available = ?", true)
	}
	var menus []models.Menu
	if err := q.Find(&menus).Error; err != nil {
		return nil, fmt.Errorf("list menus: %w", err)
	}
	return menus, nil
}

func (s *CatalogService) Get(ctx context.Context, id string) (*models.Menu, error) {
	var menu models.Menu
	err := s.DB.WithContext(ctx).First(&menu, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("menu %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get menu %s: %w", id, err)
	}
	return &menu, nil
}

// Orderable mengembalikan menu hanya jika masih tersedia
func (s *CatalogService) Orderable(ctx context.Context, id string) (*models.Menu, error) {
	menu, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !menu.Available {
		return nil, invalid("menu %s is not available", menu.Name)
	}
	return menu, nil
}

type MenuRequest struct {
	Name        string  `json:"name" binding:"required"`
	Price       float64 `json:"price" binding:"required,gt=0"`
	Description string  `json:"description"`
	Available   *bool   `json:"available"`
}

func (s *CatalogService) Create(ctx context.Context, req MenuRequest) (*models.Menu, error) {
	now := time.Now()
	menu := models.Menu{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Available:   req.Available == nil || *req.Available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.DB.WithContext(ctx).Create(&menu).Error; err != nil {
		return nil, fmt.Errorf("create menu: %w", err)
	}
	return &menu, nil
}
