package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/models"
)

// AppendTransaction inserts tx as the next step of its payment.
func (s *Store) AppendTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.ID == "" {
		tx.ID = NewID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		var last struct{ Seq int }
		err := db.Model(&models.Transaction{}).
			Select("COALESCE(MAX(sequence), 0) AS seq").
			Where("payment_id = ?", tx.PaymentID).
			Scan(&last).Error
		if err != nil {
			return err
		}
		tx.Sequence = last.Seq + 1
		return db.Create(tx).Error
	})
}

// SettleTransaction moves a PENDING transaction to CONFIRMED or FAILED.
func (s *Store) SettleTransaction(ctx context.Context, id string, to models.TransactionStatus, proofHash string) error {
	updates := map[string]any{"status": to}
	if proofHash != "" {
		updates["proof_hash"] = proofHash
	}
	if to == models.TxConfirmed {
		updates["confirmed_at"] = time.Now().UTC()
	}

	res := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TxPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindTransaction(ctx, id); err != nil {
			return err
		}
		return ErrStaleState
	}
	return nil
}

func (s *Store) FindTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	var tx models.Transaction
	found, err := s.first(ctx, &tx, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, faults.With(faults.ErrTxNotFound, "transaction with ID '%s' not found", id)
	}
	return &tx, nil
}

// FindTransactionByExternalID resolves the correlation id reported by the
// settlement network, optionally restricted to some transaction types.
func (s *Store) FindTransactionByExternalID(ctx context.Context, externalID string, types ...models.TransactionType) (*models.Transaction, error) {
	q := s.db.WithContext(ctx).Where("external_id = ?", externalID)
	if len(types) > 0 {
		q = q.Where("type IN ?", types)
	}

	var tx models.Transaction
	if err := q.Order("created_at ASC").First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.With(faults.ErrTxNotFound, "no transaction for external id '%s'", externalID)
		}
		return nil, err
	}
	return &tx, nil
}

// ListTransactions returns the steps of a payment oldest first.
func (s *Store) ListTransactions(ctx context.Context, paymentID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").Order("sequence ASC").
		Find(&txs).Error
	return txs, err
}
