package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	handlerTaxLedgerCreate = "tax-ledger-create"
	handlerTaxLedgerDelete = "tax-ledger-delete"
)

// TaxLineEvent is what the banking subsystem hands over when a tax line is created or deleted:
// the tax line and its parent transaction as they are at that moment.
type TaxLineEvent struct {
	BusinessId  string
	Tax         models.TransactionTax
	Transaction models.Transaction
	// ReconciledChanged is set when the same update toggles the transaction's reconciled flag.
	ReconciledChanged bool
}

func (ev *TaxLineEvent) validate() error {
	if ev.BusinessId == "" {
		return fmt.Errorf("%w: business id is required", utils.ErrInvalidInput)
	}
	if ev.Tax.ID == 0 || ev.Transaction.ID == 0 {
		return fmt.Errorf("%w: tax line and transaction ids are required", utils.ErrInvalidInput)
	}
	if ev.Tax.TransactionId != ev.Transaction.ID {
		return fmt.Errorf("%w: tax line %d does not belong to transaction %d", utils.ErrInvalidInput, ev.Tax.ID, ev.Transaction.ID)
	}
	if ev.Tax.BusinessId != ev.BusinessId || ev.Transaction.BusinessId != ev.BusinessId {
		return fmt.Errorf("%w: tax line %d crosses businesses", utils.ErrInvalidInput, ev.Tax.ID)
	}
	return nil
}

type SkipReason string

const (
	SkipModuleDisabled   SkipReason = "module_disabled"
	SkipJournalEntry     SkipReason = "journal_entry"
	SkipInvalidDirection SkipReason = "invalid_direction"
	SkipReconciliation   SkipReason = "reconciliation"
	SkipNoTaxAccount     SkipReason = "no_tax_account"
	SkipAlreadyPosted    SkipReason = "already_posted"
	SkipAlreadyReversed  SkipReason = "already_reversed"
	SkipTaxDeleted       SkipReason = "tax_deleted"
)

// ReconcileResult describes what a transition did.
type ReconcileResult struct {
	Skipped          bool
	SkipReason       SkipReason
	Side             models.PostingSide
	ParentAdjusted   bool
	QueuedTaskIds    []int
	CancelledTaskIds []int
}

func (r *ReconcileResult) skip(reason SkipReason) {
	r.Skipped = true
	r.SkipReason = reason
}

// TaskRunner executes one queued ledger task.
type TaskRunner interface {
	Handle(ctx context.Context, businessId string, taskId int) error
}

// TaxLedgerReconciler keeps a tax line's own ledger line and its parent transaction's
// ledger line consistent across the tax line's create/delete lifecycle.
//
// Each transition runs in one database transaction: the idempotency claim, the queued
// ledger task (outbox) and the parent line adjustment commit together. The tax line's
// ledger row itself is written later by the task worker.
type TaxLedgerReconciler struct {
	DB          *gorm.DB
	ModuleAlias string
	// Inline, when set, runs queued tasks right after commit instead of waiting for the dispatcher.
	Inline TaskRunner
	Logger *logrus.Logger
}

func NewTaxLedgerReconciler(db *gorm.DB, logger *logrus.Logger) *TaxLedgerReconciler {
	return &TaxLedgerReconciler{
		DB:          db,
		ModuleAlias: config.DoubleEntryModuleAlias,
		Logger:      logger,
	}
}

func taxMessageId(taxId int) string {
	return strconv.Itoa(taxId)
}

// skipReason is shared by both transitions, so a tax line skipped on creation is skipped on deletion too.
func (r *TaxLedgerReconciler) skipReason(tx *gorm.DB, ev TaxLineEvent) (SkipReason, error) {
	if ev.Transaction.IsJournalEntry() {
		return SkipJournalEntry, nil
	}
	if !ev.Transaction.Direction.IsValid() {
		return SkipInvalidDirection, nil
	}
	if ev.ReconciledChanged {
		return SkipReconciliation, nil
	}
	enabled, err := moduleEnabled(tx, ev.BusinessId, r.ModuleAlias)
	if err != nil {
		return "", err
	}
	if !enabled {
		return SkipModuleDisabled, nil
	}
	return "", nil
}

// TaxLineCreated posts the tax amount to the tax's account and nets it out of the parent line.
func (r *TaxLedgerReconciler) TaxLineCreated(ctx context.Context, ev TaxLineEvent) (*ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "TaxLedgerReconciler.TaxLineCreated", trace.WithAttributes(
		attribute.String("business_id", ev.BusinessId),
		attribute.Int("transaction_tax_id", ev.Tax.ID),
	))
	defer span.End()

	if err := ev.validate(); err != nil {
		return nil, err
	}
	ctx = utils.SetBusinessIdInContext(ctx, ev.BusinessId)
	businessId := ev.BusinessId
	messageId := taxMessageId(ev.Tax.ID)
	result := &ReconcileResult{}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reason, err := r.skipReason(tx, ev)
		if err != nil {
			return err
		}
		if reason != "" {
			result.skip(reason)
			return nil
		}

		accountId, found, err := lookupAccountForTax(tx, businessId, ev.Tax.TaxId)
		if err != nil {
			return err
		}
		if !found {
			result.skip(SkipNoTaxAccount)
			return nil
		}

		side, err := PostingSideFor(ev.Transaction.Direction, ev.Tax.TaxKind)
		if err != nil {
			return err
		}
		result.Side = side

		// a late re-delivery of "created" after the line was already deleted
		deleted, err := IdempotencySucceeded(tx, businessId, handlerTaxLedgerDelete, messageId)
		if err != nil {
			return err
		}
		if deleted {
			result.skip(SkipTaxDeleted)
			return nil
		}
		done, err := BeginIdempotency(tx, businessId, handlerTaxLedgerCreate, messageId)
		if err != nil {
			return err
		}
		if done {
			result.skip(SkipAlreadyPosted)
			return nil
		}
		// rows posted before idempotency keys existed
		posted, err := ownerHasLedgerLines(tx, businessId, ev.Tax.Ref())
		if err != nil {
			return err
		}
		if posted {
			result.skip(SkipAlreadyPosted)
			return MarkIdempotencySucceeded(tx, businessId, handlerTaxLedgerCreate, messageId)
		}

		task := models.LedgerTask{
			BusinessId:     businessId,
			Action:         models.LedgerTaskActionCreate,
			LedgerableType: models.LedgerableTypeTransactionTax,
			LedgerableId:   ev.Tax.ID,
			EntryType:      models.EntryTypeItem,
			AccountId:      accountId,
			IssuedAt:       ev.Tax.CreatedAt,
		}
		placeTaskAmount(&task, side, ev.Tax.Amount)
		if err := queueLedgerTask(ctx, tx, &task); err != nil {
			return err
		}
		result.QueuedTaskIds = append(result.QueuedTaskIds, task.ID)

		adjusted, err := adjustParentLine(tx, businessId, ev.Transaction.Ref(), side, ev.Tax.Amount.Neg())
		if err != nil {
			return err
		}
		result.ParentAdjusted = adjusted

		return MarkIdempotencySucceeded(tx, businessId, handlerTaxLedgerCreate, messageId)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(r.Logger, "taxLedgerReconciler.go", "TaxLineCreated", "reconciling tax line creation", ev.Tax.ID, err)
		return nil, err
	}

	r.logResult("created", ev, result)
	r.runInline(ctx, businessId, result.QueuedTaskIds)
	return result, nil
}

// TaxLineDeleted removes the tax line's ledger lines and adds their amounts back to the parent line.
func (r *TaxLedgerReconciler) TaxLineDeleted(ctx context.Context, ev TaxLineEvent) (*ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "TaxLedgerReconciler.TaxLineDeleted", trace.WithAttributes(
		attribute.String("business_id", ev.BusinessId),
		attribute.Int("transaction_tax_id", ev.Tax.ID),
	))
	defer span.End()

	if err := ev.validate(); err != nil {
		return nil, err
	}
	ctx = utils.SetBusinessIdInContext(ctx, ev.BusinessId)
	businessId := ev.BusinessId
	messageId := taxMessageId(ev.Tax.ID)
	result := &ReconcileResult{}

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reason, err := r.skipReason(tx, ev)
		if err != nil {
			return err
		}
		if reason != "" {
			result.skip(reason)
			return nil
		}

		// direction and tax kind do not change after creation
		side, err := PostingSideFor(ev.Transaction.Direction, ev.Tax.TaxKind)
		if err != nil {
			return err
		}
		result.Side = side

		done, err := BeginIdempotency(tx, businessId, handlerTaxLedgerDelete, messageId)
		if err != nil {
			return err
		}
		if done {
			result.skip(SkipAlreadyReversed)
			return nil
		}

		// Pending create tasks first: locking them before reading ledger rows means a worker
		// either committed its row already (found below) or will find the task cancelled.
		pending, err := pendingCreateTasks(tx, businessId, ev.Tax.Ref())
		if err != nil {
			return err
		}
		for i := range pending {
			if err := cancelLedgerTask(tx, &pending[i], "tax line deleted before the ledger line was written"); err != nil {
				return err
			}
			result.CancelledTaskIds = append(result.CancelledTaskIds, pending[i].ID)
			adjusted, err := adjustParentLine(tx, businessId, ev.Transaction.Ref(), side, pending[i].Amount())
			if err != nil {
				return err
			}
			result.ParentAdjusted = result.ParentAdjusted || adjusted
		}

		lines, err := ownerLedgerLines(tx, businessId, ev.Tax.Ref())
		if err != nil {
			return err
		}
		for _, line := range lines {
			task := models.LedgerTask{
				BusinessId:     businessId,
				Action:         models.LedgerTaskActionDelete,
				LedgerableType: line.LedgerableType,
				LedgerableId:   line.LedgerableId,
				EntryType:      line.EntryType,
				AccountId:      line.AccountId,
				IssuedAt:       line.IssuedAt,
				Debit:          line.Debit,
				Credit:         line.Credit,
				LedgerId:       line.ID,
			}
			if err := queueLedgerTask(ctx, tx, &task); err != nil {
				return err
			}
			result.QueuedTaskIds = append(result.QueuedTaskIds, task.ID)

			adjusted, err := adjustParentLine(tx, businessId, ev.Transaction.Ref(), side, line.PostedAmount())
			if err != nil {
				return err
			}
			result.ParentAdjusted = result.ParentAdjusted || adjusted
		}

		return MarkIdempotencySucceeded(tx, businessId, handlerTaxLedgerDelete, messageId)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		config.LogError(r.Logger, "taxLedgerReconciler.go", "TaxLineDeleted", "reconciling tax line deletion", ev.Tax.ID, err)
		return nil, err
	}

	r.logResult("deleted", ev, result)
	r.runInline(ctx, businessId, result.QueuedTaskIds)
	return result, nil
}

func (r *TaxLedgerReconciler) logResult(transition string, ev TaxLineEvent, result *ReconcileResult) {
	if r.Logger == nil {
		return
	}
	r.Logger.WithFields(logrus.Fields{
		"field":              "TaxLedgerReconciler",
		"transition":         transition,
		"business_id":        ev.BusinessId,
		"transaction_id":     ev.Transaction.ID,
		"transaction_tax_id": ev.Tax.ID,
		"skip_reason":        result.SkipReason,
		"side":               result.Side,
		"parent_adjusted":    result.ParentAdjusted,
		"queued_tasks":       len(result.QueuedTaskIds),
		"cancelled_tasks":    len(result.CancelledTaskIds),
	}).Debug("tax line reconciled")
}

// runInline executes queued tasks in-process. Failures leave the task pending for the dispatcher.
func (r *TaxLedgerReconciler) runInline(ctx context.Context, businessId string, taskIds []int) {
	if r.Inline == nil {
		return
	}
	for _, id := range taskIds {
		if err := r.Inline.Handle(ctx, businessId, id); err != nil {
			config.LogError(r.Logger, "taxLedgerReconciler.go", "runInline", "running ledger task inline", id, err)
		}
	}
}

func placeTaskAmount(task *models.LedgerTask, side models.PostingSide, amount decimal.Decimal) {
	task.Debit = decimal.NullDecimal{}
	task.Credit = decimal.NullDecimal{}
	if side == models.PostingSideCredit {
		task.Credit = decimal.NewNullDecimal(amount)
		return
	}
	task.Debit = decimal.NewNullDecimal(amount)
}

func queueLedgerTask(ctx context.Context, tx *gorm.DB, task *models.LedgerTask) error {
	if err := validate.Struct(task); err != nil {
		return fmt.Errorf("%w: ledger task: %v", utils.ErrInvalidInput, err)
	}
	task.PublishStatus = models.OutboxPublishStatusPending
	task.ProcessStatus = models.OutboxProcessStatusPending
	task.CorrelationId = correlationIdFromContextOrNew(ctx)
	return tx.Create(task).Error
}

func cancelLedgerTask(tx *gorm.DB, task *models.LedgerTask, reason string) error {
	task.ProcessStatus = models.OutboxProcessStatusCancelled
	return tx.Model(&models.LedgerTask{}).
		Where("business_id = ? AND id = ?", task.BusinessId, task.ID).
		Updates(map[string]interface{}{
			"process_status":     models.OutboxProcessStatusCancelled,
			"last_process_error": &reason,
		}).Error
}

func pendingCreateTasks(tx *gorm.DB, businessId string, owner models.Ledgerable) ([]models.LedgerTask, error) {
	var tasks []models.LedgerTask
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND ledgerable_type = ? AND ledgerable_id = ? AND action = ? AND process_status = ?",
			businessId, owner.LedgerableType(), owner.LedgerableId(), models.LedgerTaskActionCreate, models.OutboxProcessStatusPending).
		Order("id ASC").
		Find(&tasks).Error
	return tasks, err
}

func ownerLedgerLines(tx *gorm.DB, businessId string, owner models.Ledgerable) ([]models.Ledger, error) {
	var lines []models.Ledger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND ledgerable_type = ? AND ledgerable_id = ?",
			businessId, owner.LedgerableType(), owner.LedgerableId()).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}

func ownerHasLedgerLines(tx *gorm.DB, businessId string, owner models.Ledgerable) (bool, error) {
	var count int64
	err := tx.Model(&models.Ledger{}).
		Where("business_id = ? AND ledgerable_type = ? AND ledgerable_id = ?",
			businessId, owner.LedgerableType(), owner.LedgerableId()).
		Count(&count).Error
	return count > 0, err
}

// adjustParentLine adds delta to side of the parent transaction's item line.
// The row is locked and the arithmetic happens in SQL, so concurrent adjustments
// never overwrite each other. adjusted=false means the parent has no line yet.
func adjustParentLine(tx *gorm.DB, businessId string, parent models.TransactionRef, side models.PostingSide, delta decimal.Decimal) (bool, error) {
	var line models.Ledger
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("business_id = ? AND ledgerable_type = ? AND ledgerable_id = ? AND entry_type = ?",
			businessId, parent.LedgerableType(), parent.LedgerableId(), models.EntryTypeItem).
		Order("id ASC").
		First(&line).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	col := side.Column()
	err = tx.Model(&models.Ledger{}).
		Where("business_id = ? AND id = ?", businessId, line.ID).
		Update(col, gorm.Expr("COALESCE("+col+", 0) + CAST(? AS DECIMAL(20,4))", delta.String())).Error
	if err != nil {
		return false, err
	}
	return true, nil
}
