// Package dbtest opens throwaway sqlite databases carrying the rentloop schema.
package dbtest

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var counter atomic.Int64

var schema = []string{
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		requester_id TEXT NOT NULL,
		requester_name TEXT NOT NULL,
		requester_email TEXT NOT NULL,
		requester_phone TEXT,
		vendor_id TEXT NOT NULL,
		vendor_name TEXT NOT NULL,
		vendor_email TEXT NOT NULL,
		subtotal NUMERIC NOT NULL,
		platform_fee NUMERIC NOT NULL,
		total NUMERIC NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_id TEXT,
		payment_reference TEXT,
		paid_amount NUMERIC,
		payment_status TEXT,
		collection_token TEXT,
		collection_token_expires_at DATETIME,
		notes TEXT,
		cancellation_reason TEXT,
		vendor_notes TEXT,
		approved_at DATETIME,
		payment_due_at DATETIME,
		expires_at DATETIME,
		completed_at DATETIME,
		cancelled_at DATETIME,
		expired_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		item_id TEXT NOT NULL,
		name TEXT NOT NULL,
		image_url TEXT,
		quantity INTEGER NOT NULL,
		unit_price NUMERIC NOT NULL,
		line_total NUMERIC NOT NULL,
		vendor_id TEXT NOT NULL,
		vendor_name TEXT NOT NULL
	)`,
	`CREATE TABLE order_status_updates (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		status TEXT NOT NULL,
		note TEXT NOT NULL,
		actor TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE payment_records (
		id TEXT PRIMARY KEY,
		order_id TEXT UNIQUE,
		amount NUMERIC NOT NULL,
		commission NUMERIC NOT NULL,
		merchant_amount NUMERIC NOT NULL,
		commission_rate NUMERIC NOT NULL,
		status TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		merchant_paid BOOLEAN NOT NULL DEFAULT false,
		merchant_payout_date DATETIME,
		payer_id TEXT NOT NULL,
		merchant_id TEXT NOT NULL,
		external_payment_id TEXT,
		gateway_reference TEXT,
		item_name TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		failed_at DATETIME
	)`,
}

// Open returns an isolated in-memory database with every table created.
// A single connection is used so concurrent transactions serialize.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))

	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
