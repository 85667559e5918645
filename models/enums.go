package models

// TransactionDirection is the money direction of a banking transaction.
type TransactionDirection string

const (
	TransactionDirectionIncome  TransactionDirection = "income"
	TransactionDirectionExpense TransactionDirection = "expense"
)

func (d TransactionDirection) IsValid() bool {
	switch d {
	case TransactionDirectionIncome, TransactionDirectionExpense:
		return true
	}
	return false
}

// TaxKind distinguishes normal taxes from withholding taxes, whose polarity is inverted.
type TaxKind string

const (
	TaxKindNormal      TaxKind = "normal"
	TaxKindWithholding TaxKind = "withholding"
)

func (k TaxKind) IsValid() bool {
	switch k {
	case TaxKindNormal, TaxKindWithholding:
		return true
	}
	return false
}

// EntryType classifies a ledger line within the document it belongs to.
type EntryType string

const (
	EntryTypeItem EntryType = "item"
)

// LedgerableType is the stored discriminator of a ledger line's owner.
type LedgerableType string

const (
	LedgerableTypeJournal        LedgerableType = "journal"
	LedgerableTypeTransaction    LedgerableType = "transaction"
	LedgerableTypeTransactionTax LedgerableType = "transaction_tax"
)

// LedgerTaskAction is the queued write a LedgerTask performs.
type LedgerTaskAction string

const (
	LedgerTaskActionCreate LedgerTaskAction = "C"
	LedgerTaskActionDelete LedgerTaskAction = "D"
)

func (a LedgerTaskAction) IsValid() bool {
	return a == LedgerTaskActionCreate || a == LedgerTaskActionDelete
}

// PostingSide names which of a ledger line's two amount columns a posting touches.
type PostingSide string

const (
	PostingSideDebit  PostingSide = "debit"
	PostingSideCredit PostingSide = "credit"
)
