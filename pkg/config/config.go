package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "STOREBOT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App       AppConfig
	Bot       BotConfig
	Payment   PaymentConfig
	DB        DBConfig
	Redis     RedisConfig
	Artifacts ArtifactsConfig
	TxnLog    TxnLogConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"STOREBOT_APP_ENV" default:"dev"`
	Port         string `envconfig:"STOREBOT_APP_PORT" default:"8000"`
	LogLevel     string `envconfig:"STOREBOT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STOREBOT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type BotConfig struct {
	Token      string `envconfig:"STOREBOT_BOT_TOKEN" required:"true"`
	AdminID    int64  `envconfig:"STOREBOT_ADMIN_ID" required:"true"`
	WebhookURL string `envconfig:"STOREBOT_WEBHOOK_URL"`
	// QueueSize bounds the inbound update channel consumed by the dispatcher worker.
	QueueSize int `envconfig:"STOREBOT_UPDATE_QUEUE_SIZE" default:"128"`
}

type PaymentConfig struct {
	UPIID     string `envconfig:"STOREBOT_UPI_ID" required:"true"`
	PayeeName string `envconfig:"STOREBOT_UPI_PAYEE_NAME" required:"true"`
	Currency  string `envconfig:"STOREBOT_UPI_CURRENCY" default:"INR"`
}

type DBConfig struct {
	Path string `envconfig:"STOREBOT_DB_PATH" default:"storebot.db"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREBOT_REDIS_URL"`
	Address      string        `envconfig:"STOREBOT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREBOT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREBOT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREBOT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREBOT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREBOT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREBOT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STOREBOT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type ArtifactsConfig struct {
	Dir string `envconfig:"STOREBOT_ARTIFACTS_DIR" default:"screenshots"`
}

type TxnLogConfig struct {
	Path string `envconfig:"STOREBOT_TXNLOG_PATH" default:"transactions.txt"`
}
