// Package ledger is the durable record of vendors, payments, transactions and
// webhook events. Every status change is a conditional update: it only applies
// while the row is still in one of the expected states.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"git.sr.ht/~aondrejcak/payout-api/models"
)

// ErrStaleState is returned when a row is no longer in a state that permits
// the requested transition.
var ErrStaleState = errors.New("ledger: state does not permit transition")

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("migrating ledger tables: %w", err)
	}
	return nil
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// NewID returns a time-ordered identifier.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Store) first(ctx context.Context, obj any, where string, args ...any) (bool, error) {
	if err := s.db.WithContext(ctx).Where(where, args...).First(obj).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
