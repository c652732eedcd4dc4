package config

import (
	"os"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs     LogConfig
	DB       PostgresConfig
	Stripe   StripeConfig
	Admin    AdminConfig
	Gen      GenerationConfig
	QueueURL string
}

type LogConfig struct {
	Style string
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
}

type StripeConfig struct {
	SecretKey           string
	WebhookSecret       string
	PriceIDStarter      string
	PriceIDProfessional string
	PriceIDEnterprise   string
	FrontendURL         string
}

type AdminConfig struct {
	RepairToken string
}

// GenerationConfig points at the opaque image/video provider. The provider
// is request/response HTTP only; nothing here leaks into billing logic.
type GenerationConfig struct {
	BaseURL string
	APIKey  string
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		QueueURL: os.Getenv("QUEUE_URL"),
		Logs: LogConfig{
			Style: os.Getenv("LOG_STYLE"),
			Level: os.Getenv("LOG_LEVEL"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
		},
		Stripe: StripeConfig{
			SecretKey:           os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:       os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceIDStarter:      os.Getenv("STRIPE_STARTER_PRICE_ID"),
			PriceIDProfessional: os.Getenv("STRIPE_PROFESSIONAL_PRICE_ID"),
			PriceIDEnterprise:   os.Getenv("STRIPE_ENTERPRISE_PRICE_ID"),
			FrontendURL:         os.Getenv("FRONTEND_URL"),
		},
		Admin: AdminConfig{
			RepairToken: os.Getenv("ADMIN_REPAIR_TOKEN"),
		},
		Gen: GenerationConfig{
			BaseURL: os.Getenv("GENERATION_BASE_URL"),
			APIKey:  os.Getenv("GENERATION_API_KEY"),
		},
	}

	return cfg, nil
}
