package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/marketplace-settlement/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no %s migration file found", suffix)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWalletMigrationGuardsBalances(t *testing.T) {
	assertContains(t, readMigration(t, "create_vendors_and_wallets"), []string{
		"CREATE TABLE IF NOT EXISTS wallets",
		"CHECK (pending_balance >= 0)",
		"CHECK (available_balance >= 0)",
		"version bigint NOT NULL DEFAULT 0",
		"CREATE UNIQUE INDEX IF NOT EXISTS wallets_vendor_id_key",
	})
}

func TestWalletTransactionsAreAppendOnly(t *testing.T) {
	assertContains(t, readMigration(t, "create_wallet_transactions"), []string{
		"wallet_transactions_wallet_sequence_key",
		"BEFORE UPDATE OR DELETE ON wallet_transactions",
		"CHECK (available_after >= 0)",
		"DROP TABLE IF EXISTS wallet_transactions",
	})
}

func TestDisputeMigrationAllowsOneActiveDispute(t *testing.T) {
	assertContains(t, readMigration(t, "create_disputes"), []string{
		"disputes_one_active_per_order",
		"WHERE status IN ('OPEN', 'IN_REVIEW')",
	})
}

func TestMigrationDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}
