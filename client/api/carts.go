package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/services"
)

func (c *Client) CreateCart(ctx context.Context) (*models.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, "/api/carts", nil)
}

func (c *Client) GetCart(ctx context.Context, id string) (*models.Cart, error) {
	return c.cartCall(ctx, http.MethodGet, "/api/carts/"+url.PathEscape(id), nil)
}

func (c *Client) AddCartItem(ctx context.Context, cartID string, req services.AddItemRequest) (*models.Cart, error) {
	return c.cartCall(ctx, http.MethodPost, "/api/carts/"+url.PathEscape(cartID)+"/items", req)
}

// UpdateCartItem changes quantity and options in one request; the server
// applies both or neither.
func (c *Client) UpdateCartItem(ctx context.Context, cartID, itemID string, req services.UpdateItemRequest) (*models.Cart, error) {
	return c.cartCall(ctx, http.MethodPatch, "/api/carts/"+url.PathEscape(cartID)+"/items/"+url.PathEscape(itemID), req)
}

func (c *Client) RemoveCartItem(ctx context.Context, cartID, itemID string) (*models.Cart, error) {
	return c.cartCall(ctx, http.MethodDelete, "/api/carts/"+url.PathEscape(cartID)+"/items/"+url.PathEscape(itemID), nil)
}

func (c *Client) cartCall(ctx context.Context, method, path string, body interface{}) (*models.Cart, error) {
	var cart models.Cart
	if err := c.do(ctx, method, path, body, &cart); err != nil {
		return nil, err
	}
	return &cart, nil
}
