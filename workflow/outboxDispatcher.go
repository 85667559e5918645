package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskPublisher hands a claimed ledger task to whatever executes it and returns a delivery id.
type TaskPublisher interface {
	PublishTask(ctx context.Context, task models.LedgerTask) (string, error)
}

// PubSubTaskPublisher sends tasks to the ledger task topic.
type PubSubTaskPublisher struct {
	Topic string
}

func (p *PubSubTaskPublisher) PublishTask(ctx context.Context, task models.LedgerTask) (string, error) {
	return config.PublishJSON(ctx, p.Topic, models.ConvertToLedgerTaskMessage(task), map[string]string{
		"business_id": task.BusinessId,
		"action":      string(task.Action),
	})
}

// DirectTaskPublisher runs tasks in-process; used where Pub/Sub is not configured.
type DirectTaskPublisher struct {
	Runner TaskRunner
}

func (p *DirectTaskPublisher) PublishTask(ctx context.Context, task models.LedgerTask) (string, error) {
	if task.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, task.CorrelationId)
	}
	if err := p.Runner.Handle(ctx, task.BusinessId, task.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("direct-%d", task.ID), nil
}

// OutboxDispatcher publishes pending ledger tasks. Failed publishes back off exponentially;
// a task that keeps failing goes DEAD after MaxAttempts.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Publisher    TaskPublisher
	Logger       *logrus.Logger
	DispatcherID string

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	Now func() time.Time
}

func NewOutboxDispatcher(db *gorm.DB, publisher TaskPublisher, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Publisher:      publisher,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		BatchSize:      50,
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    20,
		InitialBackoff: 5 * time.Second,
		MaxBackoff:     10 * time.Minute,
	}
}

func (d *OutboxDispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now().UTC()
}

// Run polls until ctx is done.
func (d *OutboxDispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := d.DispatchOnce(ctx); err != nil {
			config.LogError(d.Logger, "outboxDispatcher.go", "Run", "dispatching ledger tasks", nil, err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(d.PollInterval):
		}
	}
}

// DispatchOnce claims one batch and publishes it. It returns how many tasks were claimed.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	if d.DB == nil || d.Publisher == nil {
		return 0, nil
	}
	now := d.now()
	staleBefore := now.Add(-d.LockTimeout)
	// the dispatcher works across all businesses
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)

	var claimed []models.LedgerTask
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Eligible:
		// - PENDING / FAILED and ready to retry
		// - PROCESSING but lock is stale (dispatcher crashed mid-batch)
		q := tx.
			Where("process_status = ?", models.OutboxProcessStatusPending).
			Where(`
				(
					publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
				)
				OR
				(
					publish_status = ? AND locked_at IS NOT NULL AND locked_at <= ?
				)
			`, []string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now, models.OutboxPublishStatusProcessing, staleBefore).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		for i := range claimed {
			if d.MaxAttempts > 0 && claimed[i].PublishAttempts >= d.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				claimed[i].PublishStatus = models.OutboxPublishStatusDead
				if err := tx.Model(&models.LedgerTask{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
					"publish_status":     models.OutboxPublishStatusDead,
					"last_publish_error": &msg,
					"next_attempt_at":    nil,
					"locked_at":          nil,
					"locked_by":          nil,
				}).Error; err != nil {
					return err
				}
				continue
			}

			claimed[i].PublishStatus = models.OutboxPublishStatusProcessing
			claimed[i].LockedAt = &now
			claimed[i].LockedBy = &d.DispatcherID
			claimed[i].PublishAttempts++
			if err := tx.Model(&models.LedgerTask{}).Where("id = ?", claimed[i].ID).Updates(map[string]interface{}{
				"publish_status":     claimed[i].PublishStatus,
				"locked_at":          claimed[i].LockedAt,
				"locked_by":          claimed[i].LockedBy,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, task := range claimed {
		if task.PublishStatus == models.OutboxPublishStatusDead {
			continue
		}
		deliveryId, pubErr := d.Publisher.PublishTask(ctx, task)
		if pubErr != nil {
			d.markPublishFailed(ctx, task, pubErr)
			continue
		}
		d.markPublishSent(ctx, task, deliveryId)
	}
	return len(claimed), nil
}

func (d *OutboxDispatcher) markPublishSent(ctx context.Context, task models.LedgerTask, deliveryId string) {
	now := d.now()
	err := d.DB.WithContext(ctx).Model(&models.LedgerTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusSent,
			"published_at":       &now,
			"pub_sub_message_id": &deliveryId,
			"locked_at":          nil,
			"locked_by":          nil,
			"next_attempt_at":    nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markPublishSent", "marking task sent", task.ID, err)
	}
}

// backoff doubles per attempt from InitialBackoff, capped at MaxBackoff.
func (d *OutboxDispatcher) backoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if d.MaxBackoff > 0 && backoff > d.MaxBackoff {
			return d.MaxBackoff
		}
	}
	return backoff
}

func (d *OutboxDispatcher) markPublishFailed(ctx context.Context, task models.LedgerTask, cause error) {
	db := d.DB.WithContext(ctx)
	msg := cause.Error()
	attempt := task.PublishAttempts

	if d.MaxAttempts > 0 && attempt >= d.MaxAttempts {
		err := db.Model(&models.LedgerTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusDead,
				"last_publish_error": &msg,
				"next_attempt_at":    nil,
				"locked_at":          nil,
				"locked_by":          nil,
			}).Error
		if err != nil {
			config.LogError(d.Logger, "outboxDispatcher.go", "markPublishFailed", "marking task dead", task.ID, err)
		}
		if d.Logger != nil {
			d.Logger.WithFields(logrus.Fields{
				"field":          "OutboxDispatcher",
				"business_id":    task.BusinessId,
				"ledger_task_id": task.ID,
				"attempt":        attempt,
			}).Error("ledger task publish moved to DEAD after max attempts: " + msg)
		}
		return
	}

	next := d.now().Add(d.backoff(attempt))
	err := db.Model(&models.LedgerTask{}).
		Where("id = ?", task.ID).
		Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusFailed,
			"last_publish_error": &msg,
			"next_attempt_at":    &next,
			"locked_at":          nil,
			"locked_by":          nil,
		}).Error
	if err != nil {
		config.LogError(d.Logger, "outboxDispatcher.go", "markPublishFailed", "scheduling task retry", task.ID, err)
	}
	if d.Logger != nil {
		d.Logger.WithFields(logrus.Fields{
			"field":           "OutboxDispatcher",
			"business_id":     task.BusinessId,
			"ledger_task_id":  task.ID,
			"attempt":         attempt,
			"next_attempt_at": next.Format(time.RFC3339Nano),
		}).Error("ledger task publish failed: " + msg)
	}
}
