package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`
	DBDSN       string `envconfig:"DB_DSN" required:"true"`

	// HTTP
	HTTPAddr       string  `envconfig:"HTTP_ADDR" default:":8080"`
	JWTSecret      string  `envconfig:"JWT_SECRET" required:"true"`
	RateLimitRPS   float64 `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst int     `envconfig:"RATE_LIMIT_BURST" default:"10"`

	// Telegram: бот и уведомления выключены, если токен пустой
	TelegramToken string `envconfig:"TELEGRAM_TOKEN"`
	Timezone      string `envconfig:"TIMEZONE" default:"UTC"`

	// Блокировка бронирований: Redis, если задан адрес, иначе в памяти процесса
	RedisAddr string        `envconfig:"REDIS_ADDR"`
	LockTTL   time.Duration `envconfig:"LOCK_TTL" default:"10s"`

	// Events
	RabbitURL      string `envconfig:"RABBIT_URL"`
	RabbitExchange string `envconfig:"RABBIT_EXCHANGE" default:"appointments"`
	EventQueueSize int    `envconfig:"EVENT_QUEUE_SIZE" default:"256"`
	EventWorkers   int    `envconfig:"EVENT_WORKERS" default:"4"`

	// Reminders
	ReminderInterval time.Duration `envconfig:"REMINDER_INTERVAL" default:"5m"`
	ReminderLead     time.Duration `envconfig:"REMINDER_LEAD" default:"15m"`

	OTelEndpoint string `envconfig:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.EventWorkers <= 0 {
		return fmt.Errorf("EVENT_WORKERS must be positive, got %d", c.EventWorkers)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be positive, got %d", c.EventQueueSize)
	}
	if c.ReminderInterval <= 0 || c.ReminderLead <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL and REMINDER_LEAD must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the timezone used to render times in notifications.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
