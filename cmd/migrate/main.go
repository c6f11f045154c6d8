// File: cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"log"

	"telegram-subscription-bot/internal/config"
	"telegram-subscription-bot/internal/infra/db/postgres"
)

// Creates the schema (idempotent) and optionally wipes data for a clean
// test environment.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	wipe := flag.Bool("wipe", false, "truncate all tables after ensuring the schema")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	pool, err := postgres.NewPgxPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	defer pool.Close()

	log.Println("ensuring schema...")
	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("schema: %v", err)
	}

	if *wipe {
		log.Println("wiping all data...")
		_, err = pool.Exec(ctx, `
			TRUNCATE payments, subscriptions, referrals, promo_codes
			RESTART IDENTITY CASCADE;
		`)
		if err != nil {
			log.Fatalf("failed to truncate tables: %v", err)
		}
	}

	log.Println("done")
}

const schema = `
CREATE TABLE IF NOT EXISTS subscriptions (
	subscription_id BIGSERIAL PRIMARY KEY,
	user_id         BIGINT NOT NULL UNIQUE,
	end_date        TIMESTAMPTZ NOT NULL,
	config_link     TEXT NOT NULL DEFAULT '',
	last_payment_id BIGINT,
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS payments (
	payment_id      BIGSERIAL PRIMARY KEY,
	user_id         BIGINT NOT NULL,
	amount          BIGINT NOT NULL,
	currency        TEXT NOT NULL,
	months          INT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	provider        TEXT NOT NULL,
	provider_ref    TEXT,
	promo_code_id   BIGINT,
	admin_notes     TEXT,
	receipt_file_id TEXT,
	subscription_id BIGINT REFERENCES subscriptions(subscription_id),
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	settled_at      TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_payments_user ON payments (user_id);
CREATE INDEX IF NOT EXISTS idx_payments_status_created ON payments (status, created_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_provider_ref ON payments (provider, provider_ref)
	WHERE provider_ref IS NOT NULL;

CREATE TABLE IF NOT EXISTS referrals (
	referee_id       BIGINT PRIMARY KEY,
	referrer_id      BIGINT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	bonus_applied_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS promo_codes (
	promo_code_id BIGSERIAL PRIMARY KEY,
	code          TEXT NOT NULL UNIQUE,
	bonus_days    INT NOT NULL,
	active        BOOLEAN NOT NULL DEFAULT TRUE
);
`
