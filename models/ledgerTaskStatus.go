package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// LedgerTaskStatus is an operator-facing view of the latest ledger task of an owner.
type LedgerTaskStatus struct {
	TaskId           int              `json:"task_id"`
	Action           LedgerTaskAction `json:"action"`
	LedgerableType   LedgerableType   `json:"ledgerable_type"`
	LedgerableId     int              `json:"ledgerable_id"`
	PublishStatus    string           `json:"publish_status"`
	ProcessStatus    string           `json:"process_status"`
	PublishAttempts  int              `json:"publish_attempts"`
	NextAttemptAt    *time.Time       `json:"next_attempt_at"`
	LastPublishError *string          `json:"last_publish_error"`
	LastProcessError *string          `json:"last_process_error"`
	CreatedAt        time.Time        `json:"created_at"`
	PublishedAt      *time.Time       `json:"published_at"`
	ProcessedAt      *time.Time       `json:"processed_at"`
}

func GetLedgerTaskStatus(ctx context.Context, db *gorm.DB, businessId string, owner Ledgerable) (*LedgerTaskStatus, error) {
	if businessId == "" {
		return nil, errors.New("business id is required")
	}
	var task LedgerTask
	if err := db.WithContext(ctx).
		Where("business_id = ? AND ledgerable_type = ? AND ledgerable_id = ?", businessId, owner.LedgerableType(), owner.LedgerableId()).
		Order("id DESC").
		First(&task).Error; err != nil {
		return nil, err
	}

	return &LedgerTaskStatus{
		TaskId:           task.ID,
		Action:           task.Action,
		LedgerableType:   task.LedgerableType,
		LedgerableId:     task.LedgerableId,
		PublishStatus:    task.PublishStatus,
		ProcessStatus:    task.ProcessStatus,
		PublishAttempts:  task.PublishAttempts,
		NextAttemptAt:    task.NextAttemptAt,
		LastPublishError: task.LastPublishError,
		LastProcessError: task.LastProcessError,
		CreatedAt:        task.CreatedAt,
		PublishedAt:      task.PublishedAt,
		ProcessedAt:      task.ProcessedAt,
	}, nil
}

// RequeueLedgerTasks puts every unprocessed task of a business that is DEAD, FAILED or
// already SENT back to PENDING with a fresh attempt budget. It returns how many were requeued.
func RequeueLedgerTasks(ctx context.Context, db *gorm.DB, businessId string) (int64, error) {
	if businessId == "" {
		return 0, errors.New("business id is required")
	}
	res := db.WithContext(ctx).
		Model(&LedgerTask{}).
		Where("business_id = ? AND process_status = ? AND publish_status IN ?", businessId, OutboxProcessStatusPending,
			[]string{OutboxPublishStatusDead, OutboxPublishStatusFailed, OutboxPublishStatusSent}).
		Updates(map[string]interface{}{
			"publish_status":     OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    nil,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
