package models

import (
	"gorm.io/gorm"
)

// AllModels lists every table the ledger engine reads or writes.
func AllModels() []any {
	return []any{
		&Account{}, &AccountTax{},
		&Journal{}, &Ledger{},
		&Module{},
		&Transaction{}, &TransactionTax{},
		&LedgerTask{},
		&IdempotencyKey{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
