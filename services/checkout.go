package services

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// CheckoutConfig holds the hosted checkout provider settings.
type CheckoutConfig struct {
	APIURL    string
	ServerKey string
	ReturnURL string
}

// CheckoutService membuat sesi pembayaran online dan memverifikasi webhook
type CheckoutService struct {
	config     CheckoutConfig
	httpClient *http.Client
	log        *logrus.Entry
}

func NewCheckoutService(config CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		config:     config,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        utils.Component("checkout"),
	}
}

func (cs *CheckoutService) ValidateConfig() error {
	if cs.config.APIURL == "" {
		return fmt.Errorf("CHECKOUT_API_URL is not set")
	}
	if cs.config.ServerKey == "" {
		return fmt.Errorf("CHECKOUT_SERVER_KEY is not set")
	}
	return nil
}

// CheckoutSession is what the provider returns for a new payment.
type CheckoutSession struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	ExpiryTime  string `json:"expiry_time,omitempty"`
}

// CreateSession opens a hosted payment page for an unpaid online order.
func (cs *CheckoutService) CreateSession(ctx context.Context, order *models.Order) (*CheckoutSession, error) {
	if err := cs.ValidateConfig(); err != nil {
		return nil, err
	}
	if order.PaymentMethod != lifecycle.PaymentOnline {
		return nil, invalid("checkout is only available for online payment")
	}
	if order.PaymentStatus != lifecycle.PaymentPending {
		return nil, invalid("order payment is already %s", order.PaymentStatus)
	}
	if order.Status == lifecycle.StatusCancelled {
		return nil, invalid("order is cancelled")
	}

	items := make([]map[string]interface{}, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, map[string]interface{}{
			"id":       it.MenuID,
			"price":    it.UnitPrice,
			"quantity": it.Quantity,
			"name":     it.Name,
		})
	}
	payload := map[string]interface{}{
		"transaction_details": map[string]interface{}{
			"order_id":     order.ID,
			"gross_amount": grossAmount(order.TotalAmount),
		},
		"customer_details": map[string]interface{}{
			"first_name": order.CustomerInfo.Name,
			"email":      order.CustomerInfo.Email,
			"phone":      order.CustomerInfo.Phone,
		},
		"item_details": items,
	}
	if cs.config.ReturnURL != "" {
		payload["callbacks"] = map[string]string{"finish": cs.config.ReturnURL}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal checkout request: %w", err)
	}
	url := strings.TrimRight(cs.config.APIURL, "/") + "/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build checkout request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cs.config.ServerKey+":")))

	resp, err := cs.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read checkout response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		cs.log.WithFields(logrus.Fields{"order": order.ID, "status": resp.StatusCode}).Error("checkout provider rejected request")
		return nil, fmt.Errorf("checkout provider error (%d): %s", resp.StatusCode, string(respBody))
	}

	var session CheckoutSession
	if err := json.Unmarshal(respBody, &session); err != nil {
		return nil, fmt.Errorf("decode checkout response: %w", err)
	}
	cs.log.WithField("order", order.ID).Info("checkout session created")
	return &session, nil
}

// Notification adalah body webhook dari provider
type Notification struct {
	OrderID           string `json:"order_id" binding:"required"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key" binding:"required"`
	TransactionStatus string `json:"transaction_status" binding:"required"`
}

// ValidateSignature checks sha512(orderId + statusCode + grossAmount + serverKey).
func (cs *CheckoutService) ValidateSignature(n Notification) bool {
	hash := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + cs.config.ServerKey))
	return hex.EncodeToString(hash[:]) == strings.ToLower(n.SignatureKey)
}

// Sign is the counterpart of ValidateSignature, used by tests and tooling.
func (cs *CheckoutService) Sign(orderID, statusCode, grossAmount string) string {
	hash := sha512.Sum512([]byte(orderID + statusCode + grossAmount + cs.config.ServerKey))
	return hex.EncodeToString(hash[:])
}

// MapOutcome maps the provider transaction status to a payment status.
// ok is false for statuses that do not change anything (pending, authorize).
func MapOutcome(transactionStatus string) (lifecycle.PaymentStatus, bool) {
	switch strings.ToLower(transactionStatus) {
	case "capture", "settlement":
		return lifecycle.PaymentPaid, true
	case "deny", "cancel", "expire", "failure":
		return lifecycle.PaymentFailed, true
	case "refund":
		return lifecycle.PaymentRefunded, true
	}
	return "", false
}

func grossAmount(total float64) string {
	return fmt.Sprintf("%.2f", total)
}
