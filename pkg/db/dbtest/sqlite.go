// Package dbtest provides an in-memory SQLite database carrying the billing
// schema for repository and service tests.
package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'user',
  stripe_customer_id TEXT,
  default_payment_method_id TEXT,
  current_plan_id TEXT,
  membership TEXT NOT NULL DEFAULT 'FREE',
  subscription_status TEXT,
  trial_ends_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS subscription_plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  description TEXT,
  price TEXT NOT NULL,
  currency TEXT NOT NULL,
  billing_period TEXT NOT NULL,
  stripe_product_id TEXT NOT NULL,
  stripe_price_id TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  stripe_setup_intent_id TEXT UNIQUE,
  stripe_subscription_id TEXT UNIQUE,
  status TEXT NOT NULL DEFAULT 'PENDING',
  plan_started_at DATETIME,
  plan_ended_at DATETIME,
  paid_at DATETIME,
  failed_at DATETIME,
  canceled_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  user_subscription_id TEXT NOT NULL,
  stripe_invoice_id TEXT NOT NULL UNIQUE,
  amount_paid INTEGER NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  period_start DATETIME,
  period_end DATETIME,
  paid_at DATETIME NOT NULL,
  created_at DATETIME
);`,
}

// Open returns an isolated in-memory database with the billing tables created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
