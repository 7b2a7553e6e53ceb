package ledger

import (
	"context"
	"errors"
	"time"

	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/models"
)

// CreatePayment inserts p unless a payment with the same idempotency key
// exists. It returns the stored payment and whether it was created by this
// call. A concurrent writer losing the unique-key race gets the winner's row.
func (s *Store) CreatePayment(ctx context.Context, p *models.Payment) (*models.Payment, bool, error) {
	if existing, found, err := s.FindPaymentByIdempotencyKey(ctx, p.IdempotencyKey); err != nil {
		return nil, false, err
	} else if found {
		return existing, false, nil
	}

	if p.ID == "" {
		p.ID = NewID()
	}
	err := s.db.WithContext(ctx).Create(p).Error
	if err == nil {
		return p, true, nil
	}

	existing, found, lookupErr := s.FindPaymentByIdempotencyKey(ctx, p.IdempotencyKey)
	if lookupErr == nil && found {
		return existing, false, nil
	}
	return nil, false, err
}

func (s *Store) FindPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	found, err := s.first(ctx, &p, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, faults.With(faults.ErrPaymentNotFound, "payment with ID '%s' not found", id)
	}
	return &p, nil
}

func (s *Store) FindPaymentByIdempotencyKey(ctx context.Context, key string) (*models.Payment, bool, error) {
	var p models.Payment
	found, err := s.first(ctx, &p, "idempotency_key = ?", key)
	if err != nil || !found {
		return nil, false, err
	}
	return &p, true, nil
}

// Transition moves payment id to status `to` and applies fields, but only if
// its current status is one of from. Pass to equal to the current status to
// update fields under a status guard.
func (s *Store) Transition(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, fields map[string]any) error {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.FindPayment(ctx, id); err != nil {
			return err
		}
		return ErrStaleState
	}
	return nil
}

func (s *Store) PaymentIDsWithStatus(ctx context.Context, status models.PaymentStatus) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("status = ?", status).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (s *Store) CountPayments(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Payment{}).Count(&n).Error
	return n, err
}

func IsStale(err error) bool {
	return errors.Is(err, ErrStaleState)
}
