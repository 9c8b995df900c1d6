package outbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fakeProducer struct {
	msgs []kafka.Message
	err  error
}

func (p *fakeProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&Event{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRelayDispatchesPendingEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, Enqueue(ctx, db, "order", "ORD-1", "order.placed", map[string]string{"code": "ORD-1"}))
	require.NoError(t, Enqueue(ctx, db, "order", "ORD-1", "order.status_changed", map[string]string{"status": "confirmed"}))

	producer := &fakeProducer{}
	relay := NewRelay(discardLogger(), NewGormStore(db), NewDispatcher(discardLogger(), producer, "order.events"), "test-relay")

	sent, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, producer.msgs, 2)
	assert.Equal(t, "ORD-1", string(producer.msgs[0].Key))
	assert.Equal(t, "order.events", producer.msgs[0].Topic)
	assert.Equal(t, "event_type", producer.msgs[0].Headers[0].Key)
	assert.Equal(t, "order.placed", string(producer.msgs[0].Headers[0].Value))

	var pending int64
	db.Model(&Event{}).Where("status <> ?", StatusSent).Count(&pending)
	assert.Equal(t, int64(0), pending)

	// Nothing left to send.
	sent, err = relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}

func TestRelayRequeuesThenParksFailedEvents(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, Enqueue(ctx, db, "order", "ORD-2", "order.placed", map[string]int{"n": 1}))

	producer := &fakeProducer{err: errors.New("broker down")}
	relay := NewRelay(discardLogger(), NewGormStore(db), NewDispatcher(discardLogger(), producer, "order.events"), "test-relay")

	for i := 0; i < MaxRetries; i++ {
		sent, err := relay.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, sent)
	}

	var ev Event
	require.NoError(t, db.First(&ev).Error)
	assert.Equal(t, StatusFailed, ev.Status)
	assert.Equal(t, MaxRetries, ev.RetryCount)
	assert.Equal(t, "broker down", ev.LastError)

	// Parked events are not picked up again.
	producer.err = nil
	sent, err := relay.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
}
