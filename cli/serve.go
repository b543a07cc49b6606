package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-orders/broker"
	"github.com/yeremiapane/restaurant-orders/config"
	"github.com/yeremiapane/restaurant-orders/database"
	"github.com/yeremiapane/restaurant-orders/emission"
	"github.com/yeremiapane/restaurant-orders/hub"
	"github.com/yeremiapane/restaurant-orders/middlewares"
	"github.com/yeremiapane/restaurant-orders/router"
	"github.com/yeremiapane/restaurant-orders/services"
	"github.com/yeremiapane/restaurant-orders/store"
	"github.com/yeremiapane/restaurant-orders/utils"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API, websocket hub and payment monitor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create tables, mongo indexes and the first admin, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			utils.InitLoggerWithLevel(cfg.LogLevel)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			db, _, closeStore, err := openStores(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			utils.InfoLogger.WithField("db", cfg.DBDriver).Info("migration finished")
			return sqlClose(db)
		},
	}
}

// openStores connects SQL (always) and Mongo (ORDER_STORE=mongo), runs the
// migrations and returns the order repository to use.
func openStores(ctx context.Context, cfg *config.Config) (*gorm.DB, store.OrderRepository, func(), error) {
	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, nil, nil, fmt.Errorf("migrate: %w", err)
	}
	if cfg.AdminEmail != "" {
		if err := database.SeedAdmin(db, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return nil, nil, nil, fmt.Errorf("seed admin: %w", err)
		}
	}

	if cfg.OrderStore != "mongo" {
		return db, store.NewGormOrderRepository(db), func() {}, nil
	}

	client, mdb, err := config.InitMongo(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.EnsureOrderIndexes(mdb); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, nil, fmt.Errorf("mongo indexes: %w", err)
	}
	closeMongo := func() {
		if err := client.Disconnect(context.Background()); err != nil {
			utils.ErrorLogger.WithError(err).Error("disconnecting mongo")
		}
	}
	return db, store.NewMongoOrderRepository(mdb), closeMongo, nil
}

func sqlClose(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	utils.InitLoggerWithLevel(cfg.LogLevel)
	log := utils.Component("serve")

	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is not set, using the built-in development secret")
	}
	utils.SetJWTSecret(cfg.JWTSecret)

	db, repo, closeStore, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	defer sqlClose(db)

	pricing, err := services.NewPricing(cfg.VATRate, cfg.DeliveryFee)
	if err != nil {
		return err
	}

	h := hub.NewHub(middlewares.VerifyToken)
	emitter := emission.NewEmitter(h)

	var relay *broker.Relay
	if cfg.BrokerURL != "" {
		relay = broker.NewRelay(cfg.BrokerURL, cfg.BrokerExchange)
		if err := relay.Connect(); err != nil {
			// Consume terus mencoba menyambung ulang
			log.WithError(err).Warn("rabbitmq unavailable, events stay local until it comes back")
		}
		emitter.AddSink(relay)
		defer relay.Close()
	}

	catalog := services.NewCatalogService(db)
	carts := services.NewCartService(db, catalog)
	orders := services.NewOrderService(repo, carts, emitter, pricing)

	checkout := services.NewCheckoutService(services.CheckoutConfig{
		APIURL:    cfg.CheckoutAPIURL,
		ServerKey: cfg.CheckoutServerKey,
		ReturnURL: cfg.CheckoutReturnURL,
	})
	if err := checkout.ValidateConfig(); err != nil {
		log.WithError(err).Warn("online checkout disabled")
	}

	deps := router.Dependencies{
		DB:         db,
		Orders:     orders,
		Carts:      carts,
		Catalog:    catalog,
		Checkout:   checkout,
		Hub:        h,
		Notifier:   emitter,
		CORSOrigin: cfg.CORSOrigin,
		RateLimit:  120,
	}
	if relay != nil {
		deps.BrokerAlive = relay.IsAlive
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.SetupRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	monitor := services.NewPaymentMonitor(orders, cfg.MonitorEvery, cfg.PaymentTimeout)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("port", cfg.Port).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return monitor.Run(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Consume(gctx, h)
		})
	}

	return g.Wait()
}
