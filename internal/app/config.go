package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the order-api configuration, loadable from environment
// variables (ORDERS_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ORDERS_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for admin API key hashing" flag:"api-key-pepper"`
	PublicURL    string `default:"http://localhost:8080" usage:"Externally reachable base URL, used by the sandbox pay page" flag:"public-url"`
	Gateway      GatewayConfig
	Checkout     CheckoutConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// GatewayConfig points at the hosted checkout gateway. An empty BaseURL
// selects the in-process sandbox.
type GatewayConfig struct {
	BaseURL       string        `usage:"Payment gateway base URL; empty enables the sandbox" flag:"gateway-url"`
	APIKey        string        `usage:"Payment gateway API key" flag:"gateway-api-key"`
	WebhookSecret string        `usage:"Shared secret for payment callback signatures" flag:"webhook-secret"`
	Timeout       time.Duration `default:"10s" usage:"Gateway request timeout"`
}

// CheckoutConfig controls hosted checkout sessions. "{orderId}" in the URLs
// is replaced with the order identifier.
type CheckoutConfig struct {
	Currency   string `default:"SAR" usage:"ISO currency code for gateway sessions"`
	SuccessURL string `default:"http://localhost:8081/orders/{orderId}/confirmation" usage:"Gateway success return URL"`
	CancelURL  string `default:"http://localhost:8081/checkout" usage:"Gateway cancel return URL"`
}

// KafkaConfig selects where order events are published. Without brokers
// events are only logged.
type KafkaConfig struct {
	Brokers string `usage:"Comma-separated Kafka brokers" flag:"kafka-brokers"`
	Topic   string `default:"orders" usage:"Order events topic"`
}

// OutboxConfig tunes the outbox relay.
type OutboxConfig struct {
	Interval   time.Duration `default:"1s" usage:"Outbox poll interval"`
	BatchSize  int           `default:"100" usage:"Records published per poll"`
	MaxBackoff time.Duration `default:"30s" usage:"Maximum delay after relay failures"`
}

// StorefrontConfig holds the storefront configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type StorefrontConfig struct {
	Addr         string        `default:"0.0.0.0:8081" usage:"Storefront listen address"`
	RedisURL     string        `usage:"Redis URL for carts and checkout sessions (STOREFRONT_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	JWTSecret    string        `usage:"HS256 secret for signed-in shopper tokens" flag:"jwt-secret"`
	CartTTL      time.Duration `default:"720h" usage:"Idle lifetime of carts, sessions and the sid cookie"`
	SecureCookie bool          `default:"false" usage:"Mark the sid cookie Secure" flag:"secure-cookie"`
	OrderAPI     OrderAPIConfig
	Checkout     SessionConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// OrderAPIConfig points the storefront at order-api.
type OrderAPIConfig struct {
	BaseURL    string        `default:"http://localhost:8080" usage:"order-api base URL" flag:"order-api-url"`
	Timeout    time.Duration `default:"15s" usage:"order-api request timeout"`
	MethodsTTL time.Duration `default:"1m" usage:"Payment method listing cache lifetime"`
}

// SessionConfig tunes the checkout state machine.
type SessionConfig struct {
	SubmitTimeout time.Duration `default:"1m" usage:"Time after which a stuck submission may be retried"`
	ClearRetries  uint64        `default:"3" usage:"Retries of the cart clear after an order is placed"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads the order-api configuration from environment variables,
// YAML config files, and platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := load(&cfg, "ORDERS", "orders"); err != nil {
		return nil, err
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStorefrontConfig loads the storefront configuration.
func LoadStorefrontConfig() (*StorefrontConfig, error) {
	var cfg StorefrontConfig
	if err := load(&cfg, "STOREFRONT", "storefront"); err != nil {
		return nil, err
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(dst any, prefix, dir string) error {
	loader := aconfig.LoaderFor(dst, aconfig.Config{
		EnvPrefix: prefix,
		Files:     []string{"config.yaml", "/etc/" + dir + "/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return errors.Wrap(err, "load config")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's ORDERS_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ORDERS_DATABASE_URL or DATABASE_URL")
	}
	if c.Gateway.BaseURL != "" && c.Gateway.WebhookSecret == "" {
		return errors.New("webhook secret is required with a real gateway: set ORDERS_GATEWAY_WEBHOOK_SECRET")
	}
	return nil
}

func (c *StorefrontConfig) applyPlatformDefaults() {
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = "redis://localhost:6379/0"
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8081" {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *StorefrontConfig) validate() error {
	if c.OrderAPI.BaseURL == "" {
		return errors.New("order-api URL is required: set STOREFRONT_ORDER_API_BASE_URL")
	}
	return nil
}
