// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string  `yaml:"token"`
	Username string  `yaml:"username"`
	Workers  int     `yaml:"workers"` // concurrent update handlers
	AdminIDs []int64 `yaml:"admin_ids"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type WebConfig struct {
	Port int `yaml:"port"` // webhook + health + metrics listener
}

type YooKassaConfig struct {
	ShopID    string `yaml:"shop_id"`
	SecretKey string `yaml:"secret_key"`
	ReturnURL string `yaml:"return_url"`
}

type CryptoPayConfig struct {
	APIToken   string  `yaml:"api_token"`
	BaseURL    string  `yaml:"base_url"`
	RubPerUSDT float64 `yaml:"rub_per_usdt"` // quote rate for invoice amounts
}

type StarsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type ManualTransferConfig struct {
	RecipientPhone string `yaml:"recipient_phone"`
	RecipientName  string `yaml:"recipient_name"`
	BankName       string `yaml:"bank_name"`
}

type PaymentConfig struct {
	YooKassa       YooKassaConfig       `yaml:"yookassa"`
	CryptoPay      CryptoPayConfig      `yaml:"cryptopay"`
	Stars          StarsConfig          `yaml:"stars"`
	ManualTransfer ManualTransferConfig `yaml:"manual_transfer"`
}

// SubscriptionOption is one purchasable period with its per-provider price.
type SubscriptionOption struct {
	Months     int   `yaml:"months"`
	PriceRUB   int64 `yaml:"price_rub"` // kopeks
	PriceStars int64 `yaml:"price_stars"`
}

type SubscriptionConfig struct {
	Options        []SubscriptionOption `yaml:"options"`
	ConfigLinkBase string               `yaml:"config_link_base"` // entitlement link prefix
}

type ReferralConfig struct {
	BonusDays int `yaml:"bonus_days"`
}

type SchedulerConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
	StaleAfter        time.Duration `yaml:"stale_after"`
}

type Config struct {
	Bot          BotConfig          `yaml:"bot"`
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Web          WebConfig          `yaml:"web"`
	Payment      PaymentConfig      `yaml:"payment"`
	Subscription SubscriptionConfig `yaml:"subscription"`
	Referral     ReferralConfig     `yaml:"referral"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.PoolSize <= 0 {
		cfg.Database.PoolSize = 10
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	if cfg.Payment.CryptoPay.BaseURL == "" {
		cfg.Payment.CryptoPay.BaseURL = "https://pay.crypt.bot/api"
	}
	if cfg.Payment.CryptoPay.RubPerUSDT <= 0 {
		cfg.Payment.CryptoPay.RubPerUSDT = 100
	}
	if cfg.Scheduler.ReconcileInterval <= 0 {
		cfg.Scheduler.ReconcileInterval = time.Minute
	}
	if cfg.Scheduler.StaleAfter <= 0 {
		cfg.Scheduler.StaleAfter = 10 * time.Minute
	}
	if cfg.Referral.BonusDays <= 0 {
		cfg.Referral.BonusDays = 7
	}

	// Minimal validation
	if cfg.Bot.Token == "" {
		return nil, errors.New("bot.token is required")
	}
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if len(cfg.Subscription.Options) == 0 {
		return nil, errors.New("subscription.options must not be empty")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

// Option returns the subscription option for the given period, or nil.
func (c *SubscriptionConfig) Option(months int) *SubscriptionOption {
	for i := range c.Options {
		if c.Options[i].Months == months {
			return &c.Options[i]
		}
	}
	return nil
}
