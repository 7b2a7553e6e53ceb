package ledger

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"git.sr.ht/~aondrejcak/payout-api/models"
)

func (s *Store) FindWebhookEvent(ctx context.Context, externalEventID string) (*models.WebhookEvent, bool, error) {
	var ev models.WebhookEvent
	found, err := s.first(ctx, &ev, "external_event_id = ?", externalEventID)
	if err != nil || !found {
		return nil, false, err
	}
	return &ev, true, nil
}

// UpsertWebhookEvent records an unprocessed delivery. An existing unprocessed
// row gets the new payload; a processed row is returned untouched.
func (s *Store) UpsertWebhookEvent(ctx context.Context, externalEventID, eventType, payload string) (*models.WebhookEvent, error) {
	existing, found, err := s.FindWebhookEvent(ctx, externalEventID)
	if err != nil {
		return nil, err
	}
	if found {
		if existing.Processed {
			return existing, nil
		}
		existing.EventType = eventType
		existing.Payload = payload
		err := s.db.WithContext(ctx).
			Model(&models.WebhookEvent{}).
			Where("id = ? AND processed = ?", existing.ID, false).
			Updates(map[string]any{"event_type": eventType, "payload": payload, "updated_at": time.Now().UTC()}).Error
		return existing, err
	}

	ev := &models.WebhookEvent{
		ID:              NewID(),
		ExternalEventID: externalEventID,
		EventType:       eventType,
		Payload:         payload,
	}
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if again, ok, lookupErr := s.FindWebhookEvent(ctx, externalEventID); lookupErr == nil && ok {
				return again, nil
			}
		}
		return nil, err
	}
	return ev, nil
}

// MarkWebhookProcessed flags the event as applied and links it to the rows it
// touched. It is a no-op for an already processed event.
func (s *Store) MarkWebhookProcessed(ctx context.Context, id string, paymentID, transactionID *string) error {
	now := time.Now().UTC()
	updates := map[string]any{
		"processed":    true,
		"processed_at": now,
		"updated_at":   now,
	}
	if paymentID != nil {
		updates["payment_id"] = *paymentID
	}
	if transactionID != nil {
		updates["transaction_id"] = *transactionID
	}

	res := s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ? AND processed = ?", id, false).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

func (s *Store) CountWebhookEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).Count(&n).Error
	return n, err
}
