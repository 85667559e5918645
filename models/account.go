package models

import "time"

// Account is one entry of a business's chart of accounts. The chart is managed elsewhere;
// the ledger engine only reads it.
type Account struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;index:uniq_account_code,unique,priority:1" json:"business_id"`
	Code       string    `gorm:"size:100;not null;index:uniq_account_code,unique,priority:2" json:"code"`
	Name       string    `gorm:"size:100;not null" json:"name"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccountTax maps a tax to the account receiving its ledger postings.
type AccountTax struct {
	ID         int       `gorm:"primary_key" json:"id"`
	BusinessId string    `gorm:"size:64;not null;index:idx_account_tax,priority:1" json:"business_id"`
	TaxId      int       `gorm:"not null;index:idx_account_tax,priority:2" json:"tax_id"`
	AccountId  int       `gorm:"not null" json:"account_id"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
