package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Ledger is one side of a posting. Reference is only set on summary lines, where
// (business_id, reference) is unique; tax and transaction lines leave it NULL and are
// found through (ledgerable_type, ledgerable_id, entry_type).
type Ledger struct {
	ID             int                 `gorm:"primary_key" json:"id"`
	BusinessId     string              `gorm:"size:64;not null;index:uniq_ledger_ref,unique,priority:1;index:idx_ledger_owner,priority:1" json:"business_id"`
	Reference      *string             `gorm:"size:191;index:uniq_ledger_ref,unique,priority:2" json:"reference"`
	LedgerableType LedgerableType      `gorm:"size:32;not null;index:idx_ledger_owner,priority:2" json:"ledgerable_type"`
	LedgerableId   int                 `gorm:"not null;index:idx_ledger_owner,priority:3" json:"ledgerable_id"`
	EntryType      EntryType           `gorm:"size:20;not null;index:idx_ledger_owner,priority:4" json:"entry_type"`
	AccountId      int                 `gorm:"index;not null" json:"account_id"`
	IssuedAt       time.Time           `gorm:"not null" json:"issued_at"`
	Debit          decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"debit"`
	Credit         decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"credit"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

// Ledgerable is the closed set of things a ledger line can document.
type Ledgerable interface {
	LedgerableType() LedgerableType
	LedgerableId() int
	isLedgerable()
}

type JournalRef struct{ ID int }

type TransactionRef struct{ ID int }

type TransactionTaxRef struct{ ID int }

func (r JournalRef) LedgerableType() LedgerableType { return LedgerableTypeJournal }
func (r JournalRef) LedgerableId() int              { return r.ID }
func (JournalRef) isLedgerable()                    {}

func (r TransactionRef) LedgerableType() LedgerableType { return LedgerableTypeTransaction }
func (r TransactionRef) LedgerableId() int              { return r.ID }
func (TransactionRef) isLedgerable()                    {}

func (r TransactionTaxRef) LedgerableType() LedgerableType { return LedgerableTypeTransactionTax }
func (r TransactionTaxRef) LedgerableId() int              { return r.ID }
func (TransactionTaxRef) isLedgerable()                    {}

var ErrUnknownLedgerable = errors.New("unknown ledgerable type")

// ParseLedgerable turns a stored (type, id) column pair back into its variant.
func ParseLedgerable(t LedgerableType, id int) (Ledgerable, error) {
	switch t {
	case LedgerableTypeJournal:
		return JournalRef{ID: id}, nil
	case LedgerableTypeTransaction:
		return TransactionRef{ID: id}, nil
	case LedgerableTypeTransactionTax:
		return TransactionTaxRef{ID: id}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownLedgerable, t)
}

func (l *Ledger) SetLedgerable(owner Ledgerable) {
	l.LedgerableType = owner.LedgerableType()
	l.LedgerableId = owner.LedgerableId()
}

func (l *Ledger) Ledgerable() (Ledgerable, error) {
	return ParseLedgerable(l.LedgerableType, l.LedgerableId)
}

// Column is the ledgers column holding this side's amount.
func (s PostingSide) Column() string {
	return string(s)
}

// Field returns the amount field of l this side reads and writes.
func (s PostingSide) Field(l *Ledger) *decimal.NullDecimal {
	if s == PostingSideCredit {
		return &l.Credit
	}
	return &l.Debit
}

// Place sets amount on this side of l and clears the other one.
func (s PostingSide) Place(l *Ledger, amount decimal.Decimal) {
	l.Debit = decimal.NullDecimal{}
	l.Credit = decimal.NullDecimal{}
	*s.Field(l) = decimal.NewNullDecimal(amount)
}

// PostedAmount is the amount a line carries, preferring debit and falling back to credit.
func (l *Ledger) PostedAmount() decimal.Decimal {
	if l.Debit.Valid {
		return l.Debit.Decimal
	}
	if l.Credit.Valid {
		return l.Credit.Decimal
	}
	return decimal.Zero
}
