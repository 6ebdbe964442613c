// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"thellex-wallet/internal/domain"
	"thellex-wallet/pkg/db"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort string
	DB         db.Config

	KafkaBrokers      []string
	NotificationTopic string
	AuditTopic        string

	RedisAddr    string
	WebhookRPS   int
	WebhookBurst int

	CircleAPIURL string
	CircleAPIKey string
	QuidaxAPIURL string
	QuidaxAPIKey string

	DirectInterval  time.Duration
	DelayedInterval time.Duration
	DelayedMinAge   time.Duration

	FiatAssets []string
	TierPolicy domain.TierPolicy
}

// LoadConfig loads configuration from environment variables.
// It returns an AppConfig instance or an error if any required variable is
// missing or invalid.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{
		ServerPort:        envOr("SERVER_PORT", "8080"),
		KafkaBrokers:      strings.Split(envOr("KAFKA_BROKERS", "localhost:9092"), ","),
		NotificationTopic: envOr("KAFKA_NOTIFICATION_TOPIC", "wallet.notifications"),
		AuditTopic:        envOr("KAFKA_AUDIT_TOPIC", "wallet.dropped-events"),
		RedisAddr:         envOr("REDIS_ADDR", "localhost:6379"),
		FiatAssets:        strings.Split(envOr("FIAT_ASSETS", "NGN,USD"), ","),
		CircleAPIURL:      envOr("CIRCLE_API_URL", ""),
		CircleAPIKey:      envOr("CIRCLE_API_KEY", ""),
		QuidaxAPIURL:      envOr("QUIDAX_API_URL", ""),
		QuidaxAPIKey:      envOr("QUIDAX_API_KEY", ""),
	}

	dbPort, err := strconv.Atoi(envOr("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.DB = db.Config{
		Host:     envOr("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     envOr("DB_USER", "user"),
		Password: envOr("DB_PASSWORD", "password"),
		DBName:   envOr("DB_NAME", "walletdb"),
		SSLMode:  envOr("DB_SSLMODE", "disable"),
	}

	cfg.WebhookRPS, err = strconv.Atoi(envOr("WEBHOOK_RPS", "50"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_RPS: %w", err)
	}
	cfg.WebhookBurst, err = strconv.Atoi(envOr("WEBHOOK_BURST", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_BURST: %w", err)
	}

	cfg.DirectInterval, err = time.ParseDuration(envOr("SETTLEMENT_DIRECT_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_DIRECT_INTERVAL: %w", err)
	}
	cfg.DelayedInterval, err = time.ParseDuration(envOr("SETTLEMENT_DELAYED_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_DELAYED_INTERVAL: %w", err)
	}
	cfg.DelayedMinAge, err = time.ParseDuration(envOr("SETTLEMENT_DELAYED_MIN_AGE", "30m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SETTLEMENT_DELAYED_MIN_AGE: %w", err)
	}

	policy, err := loadTierPolicy()
	if err != nil {
		return nil, err
	}
	cfg.TierPolicy = policy

	return cfg, nil
}

// loadTierPolicy reads the tier limit table. Values are externally supplied
// data; the defaults exist for local development only.
func loadTierPolicy() (domain.TierPolicy, error) {
	policy := domain.TierPolicy{}
	for _, tier := range []string{"basic", "plus", "premium"} {
		prefix := "TIER_" + strings.ToUpper(tier) + "_"
		single, err := decimal.NewFromString(envOr(prefix+"SINGLE_CEILING", defaultSingle[tier]))
		if err != nil {
			return nil, fmt.Errorf("invalid %sSINGLE_CEILING: %w", prefix, err)
		}
		daily, err := decimal.NewFromString(envOr(prefix+"DAILY_CEILING", defaultDaily[tier]))
		if err != nil {
			return nil, fmt.Errorf("invalid %sDAILY_CEILING: %w", prefix, err)
		}
		feeBps, err := strconv.ParseInt(envOr(prefix+"FEE_BPS", "200"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %sFEE_BPS: %w", prefix, err)
		}
		policy[tier] = domain.TierLimit{
			Tier:              tier,
			SingleTxCeiling:   single,
			DailyDebitCeiling: daily,
			SettlementFeeBps:  feeBps,
		}
	}
	return policy, nil
}

var defaultSingle = map[string]string{
	"basic":   "1000.00",
	"plus":    "10000.00",
	"premium": "100000.00",
}

var defaultDaily = map[string]string{
	"basic":   "3000.00",
	"plus":    "30000.00",
	"premium": "300000.00",
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
