package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yeremiapane/restaurant-orders/utils"
)

type Config struct {
	Port        string `mapstructure:"port"`
	GinMode     string `mapstructure:"gin_mode"`
	LogLevel    string `mapstructure:"log_level"`
	CORSOrigin  string `mapstructure:"cors_origin"`
	JWTSecret   string `mapstructure:"jwt_secret"`
	DBDriver    string `mapstructure:"db_driver"`
	DatabaseDSN string `mapstructure:"database_dsn"`

	// ORDER_STORE=mongo memindahkan order ke MongoDB; user, menu dan cart tetap di SQL
	OrderStore string `mapstructure:"order_store"`
	MongoURI   string `mapstructure:"mongo_uri"`
	MongoDB    string `mapstructure:"mongo_db"`

	BrokerURL      string `mapstructure:"broker_url"`
	BrokerExchange string `mapstructure:"broker_exchange"`

	VATRate        string        `mapstructure:"vat_rate"`
	DeliveryFee    string        `mapstructure:"delivery_fee"`
	PaymentTimeout time.Duration `mapstructure:"payment_timeout"`
	MonitorEvery   time.Duration `mapstructure:"monitor_interval"`

	CheckoutAPIURL    string `mapstructure:"checkout_api_url"`
	CheckoutServerKey string `mapstructure:"checkout_server_key"`
	CheckoutReturnURL string `mapstructure:"checkout_return_url"`

	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

var defaults = map[string]interface{}{
	"port":                "8080",
	"gin_mode":            "debug",
	"log_level":           "info",
	"cors_origin":         "http://127.0.0.1:5500",
	"jwt_secret":          "",
	"db_driver":           "mysql",
	"database_dsn":        "root:@tcp(127.0.0.1:3306)/restaurant_orders?charset=utf8mb4&parseTime=True&loc=Local",
	"order_store":         "gorm",
	"mongo_uri":           "mongodb://localhost:27017",
	"mongo_db":            "restaurant_orders",
	"broker_url":          "",
	"broker_exchange":     "order_events",
	"vat_rate":            "0.14",
	"delivery_fee":        "0",
	"payment_timeout":     "30m",
	"monitor_interval":    "1m",
	"checkout_api_url":    "",
	"checkout_server_key": "",
	"checkout_return_url": "http://localhost:8080/payments/return",
	"admin_email":         "",
	"admin_password":      "",
}

// Load membaca .env (jika ada), environment variable, dan file config opsional.
// Urutan prioritas: env > file > default.
func Load(configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		utils.InfoLogger.Println("Warning: .env file not found")
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DBDriver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be mysql, postgres or sqlite, got %q", c.DBDriver)
	}
	switch c.OrderStore {
	case "gorm", "mongo":
	default:
		return fmt.Errorf("ORDER_STORE must be gorm or mongo, got %q", c.OrderStore)
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	return nil
}
