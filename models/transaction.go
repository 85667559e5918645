package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// JournalEntryReferencePrefix marks transactions that were themselves produced by a
// journal-entry posting. Their taxes are already in the books through the journal.
const JournalEntryReferencePrefix = "journal-entry-ledger:"

// Transaction is owned by the banking subsystem; the ledger engine only reads it.
type Transaction struct {
	ID         int                  `gorm:"primary_key" json:"id"`
	BusinessId string               `gorm:"size:64;not null;index" json:"business_id"`
	Direction  TransactionDirection `gorm:"size:20;not null" json:"direction"`
	Reference  string               `gorm:"size:255" json:"reference"`
	Reconciled bool                 `gorm:"not null;default:false" json:"reconciled"`
	Amount     decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"amount"`
	PaidAt     time.Time            `json:"paid_at"`
	CreatedAt  time.Time            `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time            `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsJournalEntry reports whether the transaction carries the journal-entry marker.
func (t *Transaction) IsJournalEntry() bool {
	if t.Reference == "" {
		return false
	}
	return strings.HasPrefix(t.Reference, JournalEntryReferencePrefix)
}

func (t *Transaction) Ref() TransactionRef {
	return TransactionRef{ID: t.ID}
}

// TransactionTax is one tax line of a transaction, owned by the banking subsystem.
type TransactionTax struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;index" json:"business_id"`
	TransactionId int             `gorm:"index;not null" json:"transaction_id"`
	TaxId         int             `gorm:"index;not null" json:"tax_id"`
	TaxKind       TaxKind         `gorm:"size:20;not null;default:'normal'" json:"tax_kind"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	Transaction   *Transaction    `gorm:"foreignKey:TransactionId" json:"transaction,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t *TransactionTax) Ref() TransactionTaxRef {
	return TransactionTaxRef{ID: t.ID}
}
