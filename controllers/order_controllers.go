package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/store"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type OrderController struct {
	Orders *services.OrderService
}

func NewOrderController(orders *services.OrderService) *OrderController {
	return &OrderController{Orders: orders}
}

// CreateFromCart -> checkout cart menjadi order (status pending)
func (oc *OrderController) CreateFromCart(c *gin.Context) {
	var req services.FromCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.CreateFromCart(c.Request.Context(), middlewares.CurrentIdentity(c), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

// CreateDirect -> order walk-in yang diinput staff
func (oc *OrderController) CreateDirect(c *gin.Context) {
	var req services.DirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.CreateDirect(c.Request.Context(), middlewares.CurrentIdentity(c), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order created", order)
}

func (oc *OrderController) GetOrderByID(c *gin.Context) {
	order, err := oc.Orders.Get(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order detail", order)
}

func (oc *OrderController) GetUserOrders(c *gin.Context) {
	orders, err := oc.Orders.ListForOwner(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("userId"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

// GetAllOrders mendukung filter ?status=a,b&paymentStatus=&paymentMethod=&limit=
func (oc *OrderController) GetAllOrders(c *gin.Context) {
	var filter store.OrderFilter
	for _, param := range c.QueryArray("status") {
		for _, raw := range strings.Split(param, ",") {
			st, err := lifecycle.ParseStatus(raw)
			if err != nil {
				utils.RespondError(c, http.StatusBadRequest, err)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if raw := c.Query("paymentStatus"); raw != "" {
		ps, err := lifecycle.ParsePaymentStatus(raw)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
		filter.PaymentStatus = ps
	}
	if raw := c.Query("paymentMethod"); raw != "" {
		pm, err := lifecycle.ParsePaymentMethod(raw)
		if err != nil {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
		filter.PaymentMethod = pm
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			utils.RespondError(c, http.StatusBadRequest, ErrInvalidLimit)
			return
		}
		filter.Limit = limit
	}

	orders, err := oc.Orders.List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of orders", orders)
}

func (oc *OrderController) GetKitchenActive(c *gin.Context) {
	orders, err := oc.Orders.KitchenActive(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Active kitchen orders", orders)
}

func (oc *OrderController) UpdateStatus(c *gin.Context) {
	var req services.StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if req.EstimatedReadyTime != nil && req.EstimatedReadyTime.Before(time.Now().Add(-time.Minute)) {
		utils.RespondError(c, http.StatusBadRequest, ErrEstimateInPast)
		return
	}

	order, err := oc.Orders.UpdateStatus(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order status updated", order)
}

func (oc *OrderController) UpdatePayment(c *gin.Context) {
	var req services.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	order, err := oc.Orders.UpdatePayment(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order payment updated", order)
}

func (oc *OrderController) CancelOrder(c *gin.Context) {
	order, err := oc.Orders.Cancel(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order cancelled", order)
}

func (oc *OrderController) DeleteOrder(c *gin.Context) {
	id := c.Param("id")
	if err := oc.Orders.Delete(c.Request.Context(), middlewares.CurrentIdentity(c), id); err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Order deleted", gin.H{"orderId": id})
}
