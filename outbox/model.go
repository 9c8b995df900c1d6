package outbox

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is a row of the transactional outbox. It is written in the same
// transaction as the aggregate change it describes.
type Event struct {
	ID            int64          `json:"id" gorm:"primaryKey"`
	AggregateType string         `json:"aggregate_type" gorm:"size:64"`
	AggregateID   string         `json:"aggregate_id" gorm:"size:64"`
	Type          string         `json:"type" gorm:"size:64"`
	Payload       datatypes.JSON `json:"payload"`
	Traceparent   string         `json:"traceparent" gorm:"size:64"`
	Status        Status         `json:"status" gorm:"size:16;index"`
	RelayID       string         `json:"relay_id" gorm:"size:64"`
	LeaseUntil    *time.Time     `json:"lease_until,omitempty"`
	RetryCount    int            `json:"retry_count"`
	LastError     string         `json:"last_error" gorm:"type:text"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Event) TableName() string { return "outbox" }
