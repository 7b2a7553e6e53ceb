package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"git.sr.ht/~aondrejcak/payout-api/faults"
	"git.sr.ht/~aondrejcak/payout-api/models"
)

// CreateVendor stores v together with its bank account.
func (s *Store) CreateVendor(ctx context.Context, v *models.Vendor) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	if v.BankAccount != nil {
		if v.BankAccount.ID == "" {
			v.BankAccount.ID = NewID()
		}
		v.BankAccount.VendorID = v.ID
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Vendor{}).Where("email = ?", v.Email).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return faults.With(faults.ErrDuplicateEmail, "vendor with email '%s' already exists", v.Email)
		}
		return tx.Create(v).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return faults.With(faults.ErrDuplicateEmail, "vendor with email '%s' already exists", v.Email)
	}
	return err
}

func (s *Store) FindVendor(ctx context.Context, id string) (*models.Vendor, error) {
	var v models.Vendor
	err := s.db.WithContext(ctx).Preload("BankAccount").Where("id = ?", id).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, faults.With(faults.ErrVendorNotFound, "vendor with ID '%s' not found", id)
		}
		return nil, err
	}
	return &v, nil
}

// ListVendors returns one page (1-based) ordered by creation time, and the
// total number of vendors.
func (s *Store) ListVendors(ctx context.Context, page, limit int) ([]models.Vendor, int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Vendor{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var vendors []models.Vendor
	err := s.db.WithContext(ctx).
		Preload("BankAccount").
		Order("created_at ASC").Order("id ASC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&vendors).Error
	if err != nil {
		return nil, 0, err
	}
	return vendors, total, nil
}

func (s *Store) UpdateVendorStatus(ctx context.Context, id string, status models.VendorStatus) (*models.Vendor, error) {
	res := s.db.WithContext(ctx).Model(&models.Vendor{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// mysql reports zero affected rows when nothing changed
		if _, err := s.FindVendor(ctx, id); err != nil {
			return nil, err
		}
	}
	return s.FindVendor(ctx, id)
}

func (s *Store) RecentPayments(ctx context.Context, vendorID string, n int) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.WithContext(ctx).
		Where("vendor_id = ?", vendorID).
		Order("created_at DESC").
		Limit(n).
		Find(&payments).Error
	return payments, err
}
