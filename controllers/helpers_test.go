package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeremiapane/restaurant-orders/database"
	"github.com/yeremiapane/restaurant-orders/emission"
	"github.com/yeremiapane/restaurant-orders/hub"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/router"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/store"
	"github.com/yeremiapane/restaurant-orders/utils"
)

const testServerKey = "test-server-key"

type testServer struct {
	router   *gin.Engine
	db       *gorm.DB
	hub      *hub.Hub
	checkout *services.CheckoutService
	tokens   map[string]string
	users    map[string]string
	menuID   string
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))

	pricing, err := services.NewPricing("0.14", "0")
	require.NoError(t, err)

	h := hub.NewHub(middlewares.VerifyToken)
	emitter := emission.NewEmitter(h)
	catalog := services.NewCatalogService(db)
	carts := services.NewCartService(db, catalog)
	orders := services.NewOrderService(store.NewGormOrderRepository(db), carts, emitter, pricing)
	checkout := services.NewCheckoutService(services.CheckoutConfig{APIURL: "http://127.0.0.1:1", ServerKey: testServerKey})

	s := &testServer{
		db:       db,
		hub:      h,
		checkout: checkout,
		tokens:   map[string]string{},
		users:    map[string]string{},
	}
	s.router = router.SetupRouter(router.Dependencies{
		DB:         db,
		Orders:     orders,
		Carts:      carts,
		Catalog:    catalog,
		Checkout:   checkout,
		Hub:        h,
		Notifier:   emitter,
		CORSOrigin: "*",
	})

	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	for _, role := range []string{models.RoleCustomer, models.RoleCashier, models.RoleKitchen, models.RoleAdmin} {
		user := models.User{
			ID:        uuid.NewString(),
			Name:      role,
			Email:     role + "@resto.test",
			Password:  string(hash),
			Role:      role,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		require.NoError(t, db.Create(&user).Error)
		token, err := utils.GenerateToken(user.ID, role)
		require.NoError(t, err)
		s.tokens[role] = token
		s.users[role] = user.ID
	}

	menu, err := catalog.Create(context.Background(), services.MenuRequest{Name: "Nasi Goreng", Price: 20000})
	require.NoError(t, err)
	s.menuID = menu.ID
	return s
}

type caller struct {
	token string
	guest string
}

func asRole(s *testServer, role string) caller { return caller{token: s.tokens[role]} }
func asGuest(id string) caller                  { return caller{guest: id} }

func (s *testServer) do(t *testing.T, who caller, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if who.token != "" {
		req.Header.Set("Authorization", "Bearer "+who.token)
	}
	if who.guest != "" {
		req.Header.Set(middlewares.GuestIDHeader, who.guest)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// placeOrder membuat cart, menambah item, lalu checkout
func (s *testServer) placeOrder(t *testing.T, who caller) models.Order {
	t.Helper()
	code, env := s.do(t, who, http.MethodPost, "/api/carts", nil)
	require.Equal(t, http.StatusCreated, code, env.Message)
	cart := decode[models.Cart](t, env.Data)

	code, env = s.do(t, who, http.MethodPost, "/api/carts/"+cart.ID+"/items", gin.H{"menuId": s.menuID, "quantity": 2})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, who, http.MethodPost, "/api/orders/from-cart", gin.H{"cartId": cart.ID, "serviceType": "pickup"})
	require.Equal(t, http.StatusCreated, code, env.Message)
	return decode[models.Order](t, env.Data)
}
