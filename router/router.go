package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-orders/controllers"
	"github.com/yeremiapane/restaurant-orders/hub"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/services"
)

// Dependencies dirakit di cli serve dan di test
type Dependencies struct {
	DB         *gorm.DB
	Orders     *services.OrderService
	Carts      *services.CartService
	Catalog    *services.CatalogService
	Checkout   *services.CheckoutService
	Hub        *hub.Hub
	Notifier   controllers.Notifier
	CORSOrigin string

	// BrokerAlive dilaporkan di /health; nil berarti relay tidak dipakai
	BrokerAlive func() bool

	// RateLimit per IP per menit; 0 mematikan limiter
	RateLimit int
}

func SetupRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares(deps.CORSOrigin))
	if deps.RateLimit > 0 {
		r.Use(middlewares.NewRateLimiter(deps.RateLimit, deps.RateLimit).RateLimit())
	}

	userController := controllers.NewUserController(deps.DB)
	menuController := controllers.NewMenuController(deps.Catalog)
	cartController := controllers.NewCartController(deps.Carts)
	orderController := controllers.NewOrderController(deps.Orders)
	paymentController := controllers.NewPaymentController(deps.Orders, deps.Checkout)
	notificationController := controllers.NewNotificationController(deps.DB, deps.Notifier)
	wsController := controllers.NewWSController(deps.Hub, deps.CORSOrigin)

	r.GET("/health", func(c *gin.Context) {
		broker := "disabled"
		if deps.BrokerAlive != nil {
			broker = "down"
			if deps.BrokerAlive() {
				broker = "up"
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":      true,
			"connections": deps.Hub.ConnectionCount(),
			"broker":      broker,
		})
	})

	r.GET("/ws", middlewares.WebSocketAuthMiddleware(), wsController.ServeWS)

	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.Use(middlewares.NewStrictRateLimiter())
	{
		auth.POST("/register", userController.Register)
		auth.POST("/login", userController.Login)
	}
	api.POST("/auth/logout", middlewares.AuthMiddleware(), userController.Logout)

	staffRoles := []string{models.RoleCashier, models.RoleKitchen, models.RoleAdmin}

	authorized := api.Group("")
	authorized.Use(middlewares.AuthMiddleware())
	{
		authorized.GET("/profile", userController.GetProfile)

		admin := authorized.Group("")
		admin.Use(middlewares.RoleCheck(models.RoleAdmin))
		{
			admin.GET("/users", userController.GetAllUsers)
			admin.POST("/users", userController.CreateStaff)
			admin.POST("/menus", menuController.CreateMenu)
			admin.POST("/announcements", notificationController.CreateAnnouncement)
		}

		staff := authorized.Group("")
		staff.Use(middlewares.RoleCheck(staffRoles...))
		{
			staff.GET("/orders", orderController.GetAllOrders)
			staff.POST("/orders/direct", orderController.CreateDirect)
			staff.PATCH("/orders/:id/status", orderController.UpdateStatus)
			staff.POST("/notifications", notificationController.CreateNotification)
			staff.GET("/orders/kitchen/active", middlewares.RoleCheck(models.RoleKitchen, models.RoleAdmin), orderController.GetKitchenActive)
			staff.PATCH("/orders/:id/payment", middlewares.RoleCheck(models.RoleCashier, models.RoleAdmin), orderController.UpdatePayment)
			staff.DELETE("/orders/:id", middlewares.RoleCheck(models.RoleCashier, models.RoleAdmin), orderController.DeleteOrder)
		}
	}

	api.GET("/menus", menuController.GetAllMenus)
	api.GET("/menus/:id", menuController.GetMenuByID)

	// customer atau guest (X-Guest-Id)
	customer := api.Group("")
	customer.Use(middlewares.OptionalAuth())
	{
		customer.POST("/carts", cartController.CreateCart)
		customer.GET("/carts/:id", cartController.GetCart)
		customer.POST("/carts/:id/items", cartController.AddItem)
		customer.PATCH("/carts/:id/items/:itemId", cartController.UpdateItem)
		customer.DELETE("/carts/:id/items/:itemId", cartController.RemoveItem)

		customer.POST("/orders/from-cart", orderController.CreateFromCart)
		customer.GET("/orders/user/:userId", orderController.GetUserOrders)
		customer.GET("/orders/:id", orderController.GetOrderByID)
		customer.PATCH("/orders/:id/cancel", orderController.CancelOrder)
		customer.POST("/orders/:id/checkout", middlewares.PaymentRateLimiter(), paymentController.CreateCheckout)
		customer.GET("/notifications", notificationController.GetMyNotifications)
	}

	payments := api.Group("/payments")
	payments.Use(middlewares.LogPaymentRequest(), middlewares.PaymentRateLimiter())
	{
		payments.POST("/webhook", middlewares.RequireJSON(), paymentController.HandleWebhook)
	}

	return r
}
