package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerTaskHandler materializes queued ledger tasks.
//
// Delivery is at-least-once: the task row is locked for the duration of the write and a
// finished task (SUCCEEDED or CANCELLED) is acknowledged without doing anything.
type LedgerTaskHandler struct {
	DB     *gorm.DB
	Events EventPublisher
	Logger *logrus.Logger
	Now    func() time.Time
}

func NewLedgerTaskHandler(db *gorm.DB, events EventPublisher, logger *logrus.Logger) *LedgerTaskHandler {
	return &LedgerTaskHandler{DB: db, Events: events, Logger: logger}
}

func (h *LedgerTaskHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

// HandleMessage handles a task delivered through Pub/Sub.
func (h *LedgerTaskHandler) HandleMessage(ctx context.Context, msg config.LedgerTaskMessage) error {
	if msg.BusinessId == "" || msg.ID == 0 {
		return fmt.Errorf("%w: ledger task message without business or id", utils.ErrInvalidInput)
	}
	if msg.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, msg.CorrelationId)
	}
	return h.Handle(ctx, msg.BusinessId, msg.ID)
}

func (h *LedgerTaskHandler) Handle(ctx context.Context, businessId string, taskId int) error {
	ctx, span := tracer.Start(ctx, "LedgerTaskHandler.Handle", trace.WithAttributes(
		attribute.String("business_id", businessId),
		attribute.Int("ledger_task_id", taskId),
	))
	defer span.End()

	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	var events []DomainEvent

	err := h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.LedgerTask
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("business_id = ? AND id = ?", businessId, taskId).
			First(&task).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("ledger task %d: %w", taskId, utils.ErrorRecordNotFound)
		}
		if err != nil {
			return err
		}
		if task.IsFinished() {
			return nil
		}
		if task.CorrelationId != "" {
			ctx = utils.SetCorrelationIdInContext(ctx, task.CorrelationId)
		}

		switch task.Action {
		case models.LedgerTaskActionCreate:
			ev, cancelled, err := h.create(ctx, tx, &task)
			if err != nil {
				return err
			}
			if cancelled {
				return nil
			}
			events = append(events, ev)
		case models.LedgerTaskActionDelete:
			ev, deleted, err := h.delete(ctx, tx, &task)
			if err != nil {
				return err
			}
			if deleted {
				events = append(events, ev)
			}
		default:
			return fmt.Errorf("%w: ledger task %d has action %q", utils.ErrInvalidInput, task.ID, task.Action)
		}

		processedAt := h.now()
		return tx.Model(&models.LedgerTask{}).
			Where("business_id = ? AND id = ?", businessId, task.ID).
			Updates(map[string]interface{}{
				"process_status":     models.OutboxProcessStatusSucceeded,
				"processed_at":       &processedAt,
				"last_process_error": nil,
			}).Error
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.recordFailure(ctx, businessId, taskId, err)
		return err
	}

	publishEvents(ctx, h.Events, h.Logger, events...)
	return nil
}

func (h *LedgerTaskHandler) create(ctx context.Context, tx *gorm.DB, task *models.LedgerTask) (DomainEvent, bool, error) {
	owner, err := models.ParseLedgerable(task.LedgerableType, task.LedgerableId)
	if err != nil {
		return DomainEvent{}, false, fmt.Errorf("%w: %v", utils.ErrInvalidInput, err)
	}
	_, found, err := resolveLedgerable(tx, task.BusinessId, owner)
	if err != nil {
		return DomainEvent{}, false, err
	}
	if !found {
		// The owner is gone. Nothing is posted and the parent line is not touched here:
		// it is restored only if the tax-line deletion ran through the reconciler, and
		// stays decremented if that deletion was skipped (module disabled at the time).
		return DomainEvent{}, true, cancelLedgerTask(tx, task, fmt.Sprintf("%s %d no longer exists", owner.LedgerableType(), owner.LedgerableId()))
	}

	ledger := task.ToLedger()
	if err := tx.Create(&ledger).Error; err != nil {
		return DomainEvent{}, false, err
	}
	return newDomainEvent(ctx, DomainEventLedgerCreated, task.BusinessId, ledger.ID, ledger), false, nil
}

func (h *LedgerTaskHandler) delete(ctx context.Context, tx *gorm.DB, task *models.LedgerTask) (DomainEvent, bool, error) {
	var ledger models.Ledger
	err := tx.Where("business_id = ? AND id = ?", task.BusinessId, task.LedgerId).First(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DomainEvent{}, false, nil
	}
	if err != nil {
		return DomainEvent{}, false, err
	}
	if err := tx.Where("business_id = ? AND id = ?", task.BusinessId, ledger.ID).Delete(&models.Ledger{}).Error; err != nil {
		return DomainEvent{}, false, err
	}
	return newDomainEvent(ctx, DomainEventLedgerDeleted, task.BusinessId, ledger.ID, ledger), true, nil
}

// recordFailure keeps the last error on the task for operators; the task stays PENDING.
func (h *LedgerTaskHandler) recordFailure(ctx context.Context, businessId string, taskId int, cause error) {
	if errors.Is(cause, utils.ErrorRecordNotFound) {
		return
	}
	msg := cause.Error()
	err := h.DB.WithContext(ctx).Model(&models.LedgerTask{}).
		Where("business_id = ? AND id = ?", businessId, taskId).
		Update("last_process_error", &msg).Error
	if err != nil {
		config.LogError(h.Logger, "ledgerTaskHandler.go", "recordFailure", "saving task error", taskId, err)
	}
	if h.Logger != nil {
		h.Logger.WithFields(logrus.Fields{
			"field":          "LedgerTaskHandler",
			"business_id":    businessId,
			"ledger_task_id": taskId,
		}).Error("ledger task failed: " + msg)
	}
}
