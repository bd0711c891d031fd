package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
)

type Config struct {
	AppName     string
	Environment string
	Port        string
	BaseURL     string

	Database      DatabaseConfig
	Mirror        MirrorConfig
	Redis         RedisConfig
	MercadoPago   MercadoPagoConfig
	Quota         QuotaConfig
	Observability ObservabilityConfig
}

type DatabaseConfig struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// MirrorConfig controls replication of ledger tables to the remote copy.
// An empty DSN disables mirroring entirely.
type MirrorConfig struct {
	Driver       string
	DSN          string
	Debounce     time.Duration
	RetryDelay   time.Duration
	PullSchedule string
	UseRedis     bool
	QueueKey     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MercadoPagoConfig struct {
	AccessToken string
	BaseURL     string
	WebhookURL  string
	Currency    string
}

// QuotaConfig toggles the product ceiling of plans. When disabled every
// business may create products without limit.
type QuotaConfig struct {
	Enabled bool
}

type ObservabilityConfig struct {
	LogLevel     string
	OTLPEndpoint string
	OTLPProtocol string
	DBMetrics    bool
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads configuration from the environment, after loading an optional
// .env file from the working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_NAME", "windi")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("PORT", "3000")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "file:windi.db?_pragma=foreign_keys(1)")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("MIRROR_DRIVER", "postgres")
	v.SetDefault("MIRROR_DEBOUNCE", 700*time.Millisecond)
	v.SetDefault("MIRROR_RETRY_DELAY", 5*time.Second)
	v.SetDefault("MIRROR_PULL_SCHEDULE", "@every 30s")
	v.SetDefault("MIRROR_QUEUE_KEY", "windi:mirror:outbox")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("MP_BASE_URL", "https://api.mercadopago.com")
	v.SetDefault("MP_CURRENCY", "ARS")
	v.SetDefault("QUOTA_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")

	port := strings.TrimSpace(v.GetString("PORT"))
	baseURL := strings.TrimRight(strings.TrimSpace(v.GetString("BASE_URL")), "/")
	if baseURL == "" {
		baseURL = "http://localhost:" + port
	}
	webhookURL := strings.TrimSpace(v.GetString("MP_WEBHOOK_URL"))
	if webhookURL == "" {
		webhookURL = baseURL + "/webhooks/mercadopago"
	}

	cfg := Config{
		AppName:     v.GetString("APP_NAME"),
		Environment: v.GetString("APP_ENV"),
		Port:        port,
		BaseURL:     baseURL,
		Database: DatabaseConfig{
			Driver:       strings.ToLower(strings.TrimSpace(v.GetString("DB_DRIVER"))),
			DSN:          strings.TrimSpace(v.GetString("DB_DSN")),
			MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		},
		Mirror: MirrorConfig{
			Driver:       strings.ToLower(strings.TrimSpace(v.GetString("MIRROR_DRIVER"))),
			DSN:          strings.TrimSpace(v.GetString("MIRROR_DSN")),
			Debounce:     v.GetDuration("MIRROR_DEBOUNCE"),
			RetryDelay:   v.GetDuration("MIRROR_RETRY_DELAY"),
			PullSchedule: strings.TrimSpace(v.GetString("MIRROR_PULL_SCHEDULE")),
			UseRedis:     v.GetBool("MIRROR_USE_REDIS"),
			QueueKey:     v.GetString("MIRROR_QUEUE_KEY"),
		},
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken: strings.TrimSpace(v.GetString("MP_ACCESS_TOKEN")),
			BaseURL:     strings.TrimRight(strings.TrimSpace(v.GetString("MP_BASE_URL")), "/"),
			WebhookURL:  webhookURL,
			Currency:    strings.ToUpper(strings.TrimSpace(v.GetString("MP_CURRENCY"))),
		},
		Quota: QuotaConfig{
			Enabled: v.GetBool("QUOTA_ENABLED"),
		},
		Observability: ObservabilityConfig{
			LogLevel:     v.GetString("LOG_LEVEL"),
			OTLPEndpoint: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT")),
			OTLPProtocol: strings.TrimSpace(v.GetString("OTEL_EXPORTER_OTLP_PROTOCOL")),
			DBMetrics:    v.GetBool("DB_METRICS_ENABLED"),
		},
	}
	return cfg, nil
}
