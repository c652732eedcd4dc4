package config

import "testing"

func TestLoadConfig(t *testing.T) {
	t.Setenv("POSTGRES_USER", "staging")
	t.Setenv("POSTGRES_PWD", "secret")
	t.Setenv("POSTGRES_URL", "localhost")
	t.Setenv("POSTGRES_PORT", "5432")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("STRIPE_STARTER_PRICE_ID", "price_starter")
	t.Setenv("STRIPE_PROFESSIONAL_PRICE_ID", "price_pro")
	t.Setenv("STRIPE_ENTERPRISE_PRICE_ID", "price_ent")
	t.Setenv("FRONTEND_URL", "https://app.example.test")
	t.Setenv("ADMIN_REPAIR_TOKEN", "repair-token")
	t.Setenv("GENERATION_BASE_URL", "https://provider.example.test")
	t.Setenv("GENERATION_API_KEY", "gen-key")
	t.Setenv("QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/123/jobs")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}

	if cfg.DB.Username != "staging" || cfg.DB.Password != "secret" {
		t.Fatalf("unexpected DB config: %+v", cfg.DB)
	}
	if cfg.DB.URL != "localhost" || cfg.DB.Port != "5432" {
		t.Fatalf("unexpected DB endpoint: %+v", cfg.DB)
	}
	if cfg.Stripe.SecretKey != "sk_test_123" || cfg.Stripe.WebhookSecret != "whsec_123" {
		t.Fatalf("unexpected Stripe config: %+v", cfg.Stripe)
	}
	if cfg.Stripe.PriceIDStarter != "price_starter" ||
		cfg.Stripe.PriceIDProfessional != "price_pro" ||
		cfg.Stripe.PriceIDEnterprise != "price_ent" {
		t.Fatalf("unexpected price ids: %+v", cfg.Stripe)
	}
	if cfg.Stripe.FrontendURL != "https://app.example.test" {
		t.Fatalf("unexpected frontend url: %s", cfg.Stripe.FrontendURL)
	}
	if cfg.Admin.RepairToken != "repair-token" {
		t.Fatalf("unexpected repair token: %s", cfg.Admin.RepairToken)
	}
	if cfg.Gen.BaseURL != "https://provider.example.test" || cfg.Gen.APIKey != "gen-key" {
		t.Fatalf("unexpected generation config: %+v", cfg.Gen)
	}
	if cfg.QueueURL != "https://sqs.us-east-1.amazonaws.com/123/jobs" {
		t.Fatalf("unexpected queue url: %s", cfg.QueueURL)
	}
}

func TestLoadConfigEmptyEnv(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("ADMIN_REPAIR_TOKEN", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}
	// Missing config loads as empty strings; callers decide what is required.
	if cfg.Stripe.SecretKey != "" || cfg.Admin.RepairToken != "" {
		t.Fatalf("expected empty values, got %+v", cfg)
	}
}
