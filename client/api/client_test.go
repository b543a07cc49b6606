package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/services"
)

func fakeAPI(t *testing.T) (*httptest.Server, *int32) {
	gin.SetMode(gin.TestMode)
	var hits int32
	r := gin.New()
	r.Use(func(c *gin.Context) {
		atomic.AddInt32(&hits, 1)
		c.Next()
	})
	r.GET("/api/orders/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"status": false, "message": "order not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": true, "message": "Order detail", "data": gin.H{
			"_id": c.Param("id"), "status": "ready", "revision": 3,
			"auth": c.GetHeader("Authorization"), "guest": c.GetHeader(GuestIDHeader),
		}})
	})
	r.GET("/api/orders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": true, "message": "List of orders", "data": []gin.H{
			{"_id": "a", "status": c.Query("status"), "paymentStatus": c.Query("paymentStatus")},
		}})
	})
	r.PATCH("/api/orders/:id/cancel", func(c *gin.Context) {
		c.JSON(http.StatusConflict, gin.H{"status": false, "message": "invalid order transition: order is already cancelled"})
	})
	r.DELETE("/api/orders/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": true, "message": "Order deleted", "data": gin.H{"orderId": c.Param("id")}})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestGetOrderSendsIdentity(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := NewClient(srv.URL+"/", nil)
	c.SetAuth("tok", "g1")

	o, err := c.GetOrder(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, lifecycle.StatusReady, o.Status)
	assert.Equal(t, int64(3), o.Revision)
}

func TestAPIErrorCarriesEnvelopeMessage(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := NewClient(srv.URL, nil)

	_, err := c.GetOrder(context.Background(), "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "order not found", apiErr.Message)
	assert.True(t, apiErr.NotFound())
	assert.True(t, IsStatus(err, http.StatusNotFound))

	_, err = c.Cancel(context.Background(), "o1")
	assert.True(t, IsStatus(err, http.StatusConflict))
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.Conflict())
}

func TestListOrdersEncodesFilters(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := NewClient(srv.URL, nil)

	orders, err := c.ListOrders(context.Background(), ListQuery{
		Statuses:      []lifecycle.Status{lifecycle.StatusPending, lifecycle.StatusReady},
		PaymentStatus: lifecycle.PaymentPaid,
	})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, lifecycle.Status("pending,ready"), orders[0].Status)
	assert.Equal(t, lifecycle.PaymentPaid, orders[0].PaymentStatus)
}

func TestDeleteIgnoresData(t *testing.T) {
	srv, _ := fakeAPI(t)
	c := NewClient(srv.URL, nil)
	assert.NoError(t, c.Delete(context.Background(), "o1"))
}

func TestValidationHappensBeforeDispatch(t *testing.T) {
	srv, hits := fakeAPI(t)
	c := NewClient(srv.URL, nil)

	tests := []struct {
		name string
		req  services.FromCartRequest
	}{
		{"missing cart", services.FromCartRequest{ServiceType: "pickup"}},
		{"dine-in without table", services.FromCartRequest{CartID: "c1", ServiceType: "dine-in"}},
		{"unknown service", services.FromCartRequest{CartID: "c1", ServiceType: "drone"}},
		{"unknown payment method", services.FromCartRequest{CartID: "c1", ServiceType: "pickup", PaymentMethod: "barter"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateFromCart(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := c.UpdateStatus(context.Background(), "o1", services.StatusRequest{Status: "teleported"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = c.CreateDirect(context.Background(), services.DirectRequest{ServiceType: "pickup"})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Zero(t, atomic.LoadInt32(hits))
}
