package models

import (
	"time"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/shopspring/decimal"
)

// LedgerTask is a queued ledger write (transactional outbox). It is inserted in the same
// transaction as the change that requires it and carries the full field set of the write,
// so the worker never has to look back at the triggering event.
type LedgerTask struct {
	ID         int              `gorm:"primary_key;index:idx_ledger_task_dispatch,priority:3" json:"id"`
	BusinessId string           `gorm:"size:64;not null;index;index:idx_ledger_task_owner,priority:1" json:"business_id"`
	Action     LedgerTaskAction `gorm:"size:1;not null" json:"action" validate:"required,oneof=C D"`

	// create payload
	LedgerableType LedgerableType      `gorm:"size:32;not null;index:idx_ledger_task_owner,priority:2" json:"ledgerable_type" validate:"required"`
	LedgerableId   int                 `gorm:"not null;index:idx_ledger_task_owner,priority:3" json:"ledgerable_id" validate:"required"`
	EntryType      EntryType           `gorm:"size:20;not null" json:"entry_type" validate:"required"`
	AccountId      int                 `gorm:"not null" json:"account_id" validate:"required_if=Action C"`
	IssuedAt       time.Time           `json:"issued_at"`
	Debit          decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"debit"`
	Credit         decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"credit"`

	// delete payload
	LedgerId int `gorm:"index" json:"ledger_id" validate:"required_if=Action D"`

	// publish side (outbox dispatcher)
	PublishStatus    string     `gorm:"size:20;index;not null;default:'PENDING';index:idx_ledger_task_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time `gorm:"index" json:"published_at"`
	PubSubMessageId  *string    `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int        `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time `gorm:"index;index:idx_ledger_task_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time `gorm:"index" json:"locked_at"`
	LockedBy         *string    `gorm:"size:100" json:"locked_by"`
	LastPublishError *string    `gorm:"type:text" json:"last_publish_error"`

	// processing side (worker)
	ProcessStatus    string     `gorm:"size:20;not null;default:'PENDING';index" json:"process_status"` // PENDING|SUCCEEDED|CANCELLED
	ProcessedAt      *time.Time `gorm:"index" json:"processed_at"`
	LastProcessError *string    `gorm:"type:text" json:"last_process_error"`

	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFinished reports whether the worker must leave the task alone.
func (t *LedgerTask) IsFinished() bool {
	return t.ProcessStatus == OutboxProcessStatusSucceeded || t.ProcessStatus == OutboxProcessStatusCancelled
}

// Amount is the amount the task posts, preferring debit and falling back to credit.
func (t *LedgerTask) Amount() decimal.Decimal {
	if t.Debit.Valid {
		return t.Debit.Decimal
	}
	if t.Credit.Valid {
		return t.Credit.Decimal
	}
	return decimal.Zero
}

// ToLedger builds the ledger row a create task materializes.
func (t *LedgerTask) ToLedger() Ledger {
	return Ledger{
		BusinessId:     t.BusinessId,
		LedgerableType: t.LedgerableType,
		LedgerableId:   t.LedgerableId,
		EntryType:      t.EntryType,
		AccountId:      t.AccountId,
		IssuedAt:       t.IssuedAt,
		Debit:          t.Debit,
		Credit:         t.Credit,
	}
}

func ConvertToLedgerTaskMessage(task LedgerTask) config.LedgerTaskMessage {
	return config.LedgerTaskMessage{
		ID:            task.ID,
		BusinessId:    task.BusinessId,
		Action:        string(task.Action),
		CorrelationId: task.CorrelationId,
	}
}
