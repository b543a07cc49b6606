package controllers_test

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
)

func TestPaymentWebhook(t *testing.T) {
	s := setupServer(t)
	customer := asRole(s, models.RoleCustomer)
	order := s.placeOrder(t, customer)

	notification := func(status, signature string) gin.H {
		return gin.H{
			"order_id":           order.ID,
			"status_code":        "200",
			"gross_amount":       "45600.00",
			"transaction_status": status,
			"signature_key":      signature,
		}
	}
	valid := s.checkout.Sign(order.ID, "200", "45600.00")

	tests := []struct {
		name       string
		body       gin.H
		wantCode   int
		wantStatus lifecycle.PaymentStatus
	}{
		{"invalid signature", notification("settlement", "bad"), http.StatusForbidden, lifecycle.PaymentPending},
		{"pending is ignored", notification("pending", valid), http.StatusOK, lifecycle.PaymentPending},
		{"expire marks failed", notification("expire", valid), http.StatusOK, lifecycle.PaymentFailed},
		{"late settlement wins", notification("settlement", valid), http.StatusOK, lifecycle.PaymentPaid},
		{"duplicate settlement", notification("settlement", valid), http.StatusOK, lifecycle.PaymentPaid},
		{"stale expire after paid", notification("expire", valid), http.StatusOK, lifecycle.PaymentPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, caller{}, http.MethodPost, "/api/payments/webhook", tt.body)
			require.Equal(t, tt.wantCode, code, env.Message)

			code, env = s.do(t, customer, http.MethodGet, "/api/orders/"+order.ID, nil)
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.wantStatus, decode[models.Order](t, env.Data).PaymentStatus)
		})
	}
}

func TestCheckoutRejectsPaidOrder(t *testing.T) {
	s := setupServer(t)
	customer := asRole(s, models.RoleCustomer)
	order := s.placeOrder(t, customer)

	code, _ := s.do(t, asRole(s, models.RoleCashier), http.MethodPatch, "/api/orders/"+order.ID+"/payment", gin.H{"paymentStatus": "paid"})
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, customer, http.MethodPost, "/api/orders/"+order.ID+"/checkout", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, env.Message, "already paid")
}
