// Package dbtest opens throwaway sqlite databases carrying the settlement
// schema. Decimal columns are TEXT so values survive without float rounding.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/marketplace-settlement/pkg/db"
	"github.com/angelmondragon/marketplace-settlement/pkg/db/models"
	"github.com/angelmondragon/marketplace-settlement/pkg/enums"
)

var schema = []string{
	`CREATE TABLE vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		commission_rate TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE wallets (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL UNIQUE,
		pending_balance TEXT NOT NULL DEFAULT '0',
		available_balance TEXT NOT NULL DEFAULT '0',
		total_earnings TEXT NOT NULL DEFAULT '0',
		total_withdrawn TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE wallet_transactions (
		id TEXT PRIMARY KEY,
		wallet_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		basis_amount TEXT NOT NULL DEFAULT '0',
		bucket TEXT,
		pending_before TEXT NOT NULL,
		pending_after TEXT NOT NULL,
		available_before TEXT NOT NULL,
		available_after TEXT NOT NULL,
		description TEXT NOT NULL,
		reference_type TEXT,
		reference_id TEXT,
		created_by_id TEXT,
		sequence INTEGER NOT NULL,
		created_at DATETIME,
		UNIQUE (wallet_id, sequence)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING_PAYMENT',
		subtotal TEXT NOT NULL,
		discount TEXT NOT NULL DEFAULT '0',
		shipping TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT 'LKR',
		address_snapshot TEXT NOT NULL,
		coupon_snapshot TEXT,
		payment_ref TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		vendor_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		title TEXT NOT NULL,
		unit_price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		total TEXT NOT NULL,
		commission_rate TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING_PAYMENT',
		tracking_number TEXT,
		carrier TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_status_history (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		status TEXT NOT NULL,
		previous_status TEXT,
		actor_id TEXT,
		actor_role TEXT NOT NULL,
		reason TEXT,
		reference_type TEXT,
		reference_id TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (order_id, sequence)
	)`,
	`CREATE TABLE payout_requests (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		account_number_sealed BLOB NOT NULL,
		account_last4 TEXT NOT NULL,
		account_holder TEXT NOT NULL,
		branch_code TEXT,
		status TEXT NOT NULL DEFAULT 'PENDING',
		transaction_ref TEXT,
		admin_notes TEXT,
		failure_reason TEXT,
		approved_by TEXT,
		approved_at DATETIME,
		processed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE disputes (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		reason TEXT NOT NULL,
		description TEXT NOT NULL,
		evidence TEXT,
		status TEXT NOT NULL DEFAULT 'OPEN',
		resolution_type TEXT,
		refund_amount TEXT,
		resolved_by TEXT,
		resolved_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX disputes_one_active_per_order ON disputes (order_id) WHERE status IN ('OPEN', 'IN_REVIEW')`,
	`CREATE TABLE dispute_comments (
		id TEXT PRIMARY KEY,
		dispute_id TEXT NOT NULL,
		author_id TEXT NOT NULL,
		author_role TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE TABLE notifications (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		recipient_role TEXT NOT NULL,
		recipient_id TEXT,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		message TEXT NOT NULL,
		link TEXT,
		read_at DATETIME,
		created_at DATETIME
	)`,
	`CREATE UNIQUE INDEX notifications_event_recipient_key ON notifications (event_id, recipient_role, COALESCE(recipient_id, ''))`,
}

// Open returns a private in-memory database for the calling test. The pool
// is pinned to one connection so concurrent transactions queue instead of
// failing with SQLITE_BUSY.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v", err)
		}
	}
	return conn
}

// OpenClient wraps Open in the shared db.Client.
func OpenClient(t testing.TB) *db.Client {
	t.Helper()
	return db.NewFromConn(Open(t))
}

// SeedVendor inserts an approved vendor charging the given commission percentage.
func SeedVendor(t testing.TB, conn *gorm.DB, rate string) models.Vendor {
	t.Helper()
	vendor := models.Vendor{
		Name:           "vendor-" + rate,
		CommissionRate: decimal.RequireFromString(rate),
		Status:         enums.VendorStatusApproved,
	}
	if err := conn.Create(&vendor).Error; err != nil {
		t.Fatalf("seed vendor: %v", err)
	}
	return vendor
}

// SeedWallet inserts an empty wallet for the vendor.
func SeedWallet(t testing.TB, conn *gorm.DB, vendorID uuid.UUID) models.Wallet {
	t.Helper()
	wallet := models.Wallet{
		VendorID:         vendorID,
		PendingBalance:   decimal.Zero,
		AvailableBalance: decimal.Zero,
		TotalEarnings:    decimal.Zero,
		TotalWithdrawn:   decimal.Zero,
	}
	if err := conn.Create(&wallet).Error; err != nil {
		t.Fatalf("seed wallet: %v", err)
	}
	return wallet
}
