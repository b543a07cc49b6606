package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

type PaymentController struct {
	Orders   *services.OrderService
	Checkout *services.CheckoutService
	log      *logrus.Entry
}

func NewPaymentController(orders *services.OrderService, checkout *services.CheckoutService) *PaymentController {
	return &PaymentController{Orders: orders, Checkout: checkout, log: utils.Component("payments")}
}

// CreateCheckout -> membuka halaman pembayaran online untuk order
func (pc *PaymentController) CreateCheckout(c *gin.Context) {
	order, err := pc.Orders.Get(c.Request.Context(), middlewares.CurrentIdentity(c), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	session, err := pc.Checkout.CreateSession(c.Request.Context(), order)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
		utils.RespondError(c, http.StatusBadGateway, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Checkout created", gin.H{
		"orderId":     order.ID,
		"token":       session.Token,
		"redirectUrl": session.RedirectURL,
		"expiryTime":  session.ExpiryTime,
	})
}

// HandleWebhook menerima notifikasi status pembayaran dari provider
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	var n services.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !pc.Checkout.ValidateSignature(n) {
		pc.log.WithField("order", n.OrderID).Warn("webhook with invalid signature")
		utils.RespondError(c, http.StatusForbidden, errors.New("invalid signature"))
		return
	}

	outcome, ok := services.MapOutcome(n.TransactionStatus)
	if !ok {
		utils.RespondJSON(c, http.StatusOK, "Notification ignored", gin.H{"transactionStatus": n.TransactionStatus})
		return
	}

	order, err := pc.Orders.ApplyPaymentOutcome(c.Request.Context(), n.OrderID, outcome)
	if errors.Is(err, lifecycle.ErrInvalidTransition) {
		// provider mengirim ulang status lama; jangan minta retry
		pc.log.WithError(err).WithField("order", n.OrderID).Info("stale payment notification")
		utils.RespondJSON(c, http.StatusOK, "Notification ignored", gin.H{"transactionStatus": n.TransactionStatus})
		return
	}
	if err != nil {
		respondServiceError(c, err)
		return
	}

	pc.log.WithFields(logrus.Fields{"order": order.ID, "paymentStatus": order.PaymentStatus}).Info("payment notification applied")
	utils.RespondJSON(c, http.StatusOK, "Notification processed", gin.H{
		"orderId":       order.ID,
		"paymentStatus": order.PaymentStatus,
	})
}
