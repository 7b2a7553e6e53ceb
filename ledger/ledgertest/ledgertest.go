// Package ledgertest opens throwaway in-memory ledgers for tests.
package ledgertest

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"git.sr.ht/~aondrejcak/payout-api/ledger"
	"git.sr.ht/~aondrejcak/payout-api/models"
)

func Open(t testing.TB) *ledger.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("opening sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	// one connection keeps the in-memory database alive and serialises writers
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := ledger.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return ledger.New(db)
}

// Vendor stores an ACTIVE vendor with a bank account.
func Vendor(t testing.TB, store *ledger.Store, email string) *models.Vendor {
	t.Helper()
	v := &models.Vendor{
		Name:   "Acme Supplies",
		Email:  email,
		Status: models.VendorActive,
		BankAccount: &models.BankAccount{
			AccountNumberMasked: models.MaskAccountNumber("123456789012"),
			RoutingNumber:       "021000021",
			BankName:            "First Bank",
			AccountHolder:       "Acme Supplies Pte Ltd",
			Currency:            "USD",
		},
	}
	if err := store.CreateVendor(context.Background(), v); err != nil {
		t.Fatalf("creating vendor: %v", err)
	}
	return v
}
