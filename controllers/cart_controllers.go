package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type CartController struct {
	Carts *services.CartService
}

func NewCartController(carts *services.CartService) *CartController {
	return &CartController{Carts: carts}
}

func (cc *CartController) CreateCart(c *gin.Context) {
	cart, err := cc.Carts.Create(c.Request.Context(), middlewares.CurrentIdentity(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Cart created", cart)
}

func (cc *CartController) GetCart(c *gin.Context) {
	cart, err := cc.Carts.GetOwned(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Cart detail", cart)
}

func (cc *CartController) AddItem(c *gin.Context) {
	var req services.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	cart, err := cc.Carts.AddItem(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Item added", cart)
}

// UpdateItem -> quantity dan options diubah dalam satu operasi
func (cc *CartController) UpdateItem(c *gin.Context) {
	var req services.UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	cart, err := cc.Carts.UpdateItem(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"), c.Param("itemId"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Item updated", cart)
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	cart, err := cc.Carts.RemoveItem(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"), c.Param("itemId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Item removed", cart)
}
