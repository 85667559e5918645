package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Journal is a named accounting event. (business_id, reference) and
// (business_id, journal_number) are both unique.
type Journal struct {
	ID            int             `gorm:"primary_key" json:"id"`
	BusinessId    string          `gorm:"size:64;not null;index:uniq_journal_ref,unique,priority:1;index:uniq_journal_number,unique,priority:1" json:"business_id"`
	Reference     string          `gorm:"size:191;not null;index:uniq_journal_ref,unique,priority:2" json:"reference"`
	JournalNumber int64           `gorm:"not null;index:uniq_journal_number,unique,priority:2" json:"journal_number"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount"`
	CurrencyCode  string          `gorm:"size:3;not null" json:"currency_code"`
	CurrencyRate  decimal.Decimal `gorm:"type:decimal(20,8);default:1" json:"currency_rate"`
	PaidAt        time.Time       `gorm:"not null" json:"paid_at"`
	Description   string          `gorm:"type:text" json:"description"`
	Basis         string          `gorm:"size:20;not null" json:"basis"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// JournalMetadata is everything a new journal needs besides its reference and amount.
type JournalMetadata struct {
	CurrencyCode string          `json:"currency_code" validate:"required,len=3"`
	CurrencyRate decimal.Decimal `json:"currency_rate"`
	PaidAt       time.Time       `json:"paid_at" validate:"required"`
	Description  string          `json:"description"`
	Basis        string          `json:"basis" validate:"required,oneof=Accrual Cash"`
}

func (j *Journal) Ref() JournalRef {
	return JournalRef{ID: j.ID}
}
