package models

// LedgerTask.PublishStatus values, owned by the outbox dispatcher.
// DEAD tasks wait for `double-entry tasks requeue`.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

// LedgerTask.ProcessStatus values, owned by the ledger task handler and the reconciler.
// CANCELLED means the owner was deleted before the task ran.
const (
	OutboxProcessStatusPending   = "PENDING"
	OutboxProcessStatusSucceeded = "SUCCEEDED"
	OutboxProcessStatusCancelled = "CANCELLED"
)
