// Package dbtest opens throwaway sqlite databases carrying the service schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Schema mirrors the postgres migrations in sqlite syntax.
var Schema = []string{
	`CREATE TABLE payment_order_links (
		id BIGINT PRIMARY KEY,
		payment_intent_id TEXT NOT NULL,
		status TEXT NOT NULL,
		shopify_order_id TEXT,
		shopify_order_name TEXT,
		attempts INTEGER NOT NULL DEFAULT 1,
		last_error TEXT,
		claimed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_payment_order_links_intent ON payment_order_links (payment_intent_id)`,
	`CREATE TABLE campaign_webhook_events (
		id BIGINT PRIMARY KEY,
		topic TEXT NOT NULL,
		event_key TEXT NOT NULL,
		webhook_id TEXT,
		shop_domain TEXT,
		received_at DATETIME NOT NULL,
		processed_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_campaign_webhook_events_key ON campaign_webhook_events (topic, event_key)`,
	`CREATE TABLE side_effect_tasks (
		id BIGINT PRIMARY KEY,
		kind TEXT NOT NULL,
		dedupe_key TEXT NOT NULL,
		payload TEXT NOT NULL,
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		next_attempt_at DATETIME NOT NULL,
		completed_at DATETIME,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX ux_side_effect_tasks_dedupe ON side_effect_tasks (kind, dedupe_key)`,
}

// Open returns an isolated in-memory database with Schema applied.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range Schema {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}
