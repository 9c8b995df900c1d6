package outbox

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"food_ordering/tracing"
)

// MaxRetries is the number of failed dispatches after which an event is
// parked as failed.
const MaxRetries = 5

// Enqueue writes an event using tx, so it commits or rolls back together
// with the caller's changes.
func Enqueue(ctx context.Context, tx *gorm.DB, aggregateType, aggregateID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ev := Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       data,
		Traceparent:   tracing.Traceparent(ctx),
		Status:        StatusPending,
	}
	return tx.WithContext(ctx).Create(&ev).Error
}

type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, now: time.Now}
}

// LockBatch claims pending events, and in-progress events whose lease
// expired, for relayID.
func (s *GormStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	var events []Event
	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND lease_until < ?)", StatusPending, StatusInProgress, now).
			Order("id").
			Limit(batchSize).
			Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)
		}
		until := now.Add(lease)
		return tx.Model(&Event{}).Where("id IN ?", ids).Updates(map[string]any{
			"status":      StatusInProgress,
			"relay_id":    relayID,
			"lease_until": until,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *GormStore) MarkSent(ctx context.Context, ids []int64) error {
	return s.db.WithContext(ctx).Model(&Event{}).Where("id IN ?", ids).Updates(map[string]any{
		"status":      StatusSent,
		"lease_until": nil,
	}).Error
}

// MarkFailed puts the event back in the queue until it has failed
// MaxRetries times.
func (s *GormStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Event{}).Where("id = ?", id).Updates(map[string]any{
			"status":      StatusPending,
			"retry_count": gorm.Expr("retry_count + 1"),
			"last_error":  errMsg,
			"lease_until": nil,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&Event{}).
			Where("id = ? AND retry_count >= ?", id, MaxRetries).
			Update("status", StatusFailed).Error
	})
}
