package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// GuestIDHeader identifies a guest on REST calls.
const GuestIDHeader = "X-Guest-Id"

// ErrValidation is returned for requests rejected before they are sent.
var ErrValidation = errors.New("validation failed")

// APIError is a non-2xx reply. Message is the server's envelope message.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

func (e *APIError) Conflict() bool { return e.StatusCode == http.StatusConflict }

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Client talks to the order REST API with the current identity.
type Client struct {
	baseURL string
	http    *http.Client

	mu      sync.RWMutex
	token   string
	guestID string

	log *logrus.Entry
}

// NewClient; httpClient nil uses a client with a 15s timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		log:     utils.Component("api-client"),
	}
}

// SetAuth sets the bearer token and guest id sent on every request.
func (c *Client) SetAuth(token, guestID string) {
	c.mu.Lock()
	c.token = token
	c.guestID = guestID
	c.mu.Unlock()
}

type LoginResult struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/api/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListQuery mirrors the filters of GET /api/orders.
type ListQuery struct {
	Statuses      []lifecycle.Status
	PaymentStatus lifecycle.PaymentStatus
	PaymentMethod lifecycle.PaymentMethod
	Limit         int
}

func (q ListQuery) encode() string {
	v := url.Values{}
	if len(q.Statuses) > 0 {
		parts := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			parts[i] = string(s)
		}
		v.Set("status", strings.Join(parts, ","))
	}
	if q.PaymentStatus != "" {
		v.Set("paymentStatus", string(q.PaymentStatus))
	}
	if q.PaymentMethod != "" {
		v.Set("paymentMethod", string(q.PaymentMethod))
	}
	if q.Limit > 0 {
		v.Set("limit", fmt.Sprint(q.Limit))
	}
	if len(v) == 0 {
		return ""
	}
	return "?" + v.Encode()
}

func (c *Client) ListOrders(ctx context.Context, q ListQuery) ([]models.Order, error) {
	var out []models.Order
	return out, c.do(ctx, http.MethodGet, "/api/orders"+q.encode(), nil, &out)
}

func (c *Client) KitchenActive(ctx context.Context) ([]models.Order, error) {
	var out []models.Order
	return out, c.do(ctx, http.MethodGet, "/api/orders/kitchen/active", nil, &out)
}

// UserOrders lists the orders of a user id or guest id.
func (c *Client) UserOrders(ctx context.Context, ownerID string) ([]models.Order, error) {
	var out []models.Order
	return out, c.do(ctx, http.MethodGet, "/api/orders/user/"+url.PathEscape(ownerID), nil, &out)
}

// ValidateFromCart catches the errors the server would reject anyway.
func ValidateFromCart(req services.FromCartRequest) error {
	if req.CartID == "" {
		return fmt.Errorf("%w: cartId is required", ErrValidation)
	}
	st, err := lifecycle.ParseServiceType(req.ServiceType)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if st == lifecycle.ServiceDineIn && strings.TrimSpace(req.TableNumber) == "" {
		return fmt.Errorf("%w: tableNumber is required for dine-in orders", ErrValidation)
	}
	if req.PaymentMethod != "" {
		if _, err := lifecycle.ParsePaymentMethod(req.PaymentMethod); err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return nil
}

func (c *Client) CreateFromCart(ctx context.Context, req services.FromCartRequest) (*models.Order, error) {
	if err := ValidateFromCart(req); err != nil {
		return nil, err
	}
	return c.orderCall(ctx, http.MethodPost, "/api/orders/from-cart", req)
}

func (c *Client) CreateDirect(ctx context.Context, req services.DirectRequest) (*models.Order, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: at least one item is required", ErrValidation)
	}
	return c.orderCall(ctx, http.MethodPost, "/api/orders/direct", req)
}

func (c *Client) UpdateStatus(ctx context.Context, id string, req services.StatusRequest) (*models.Order, error) {
	if req.Status != "" {
		if _, err := lifecycle.ParseStatus(req.Status); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	return c.orderCall(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(id)+"/status", req)
}

func (c *Client) UpdatePayment(ctx context.Context, id string, req services.PaymentRequest) (*models.Order, error) {
	return c.orderCall(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(id)+"/payment", req)
}

func (c *Client) Cancel(ctx context.Context, id string) (*models.Order, error) {
	return c.orderCall(ctx, http.MethodPatch, "/api/orders/"+url.PathEscape(id)+"/cancel", nil)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/orders/"+url.PathEscape(id), nil, nil)
}

func (c *Client) orderCall(ctx context.Context, method, path string, body interface{}) (*models.Order, error) {
	var o models.Order
	if err := c.do(ctx, method, path, body, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// do sends one request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.guestID != "" {
		req.Header.Set(GuestIDHeader, c.guestID)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.log.WithFields(logrus.Fields{"method": method, "path": path, "status": resp.StatusCode}).Debug("api error")
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decoding data: %w", err)
	}
	return nil
}
