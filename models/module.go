package models

import (
	"time"

	"gorm.io/gorm"
)

// Module records that an optional module is installed for a business.
// Uninstalling soft-deletes the row.
type Module struct {
	ID         int            `gorm:"primary_key" json:"id"`
	BusinessId string         `gorm:"size:64;not null;index:idx_module_alias,priority:1" json:"business_id"`
	Alias      string         `gorm:"size:100;not null;index:idx_module_alias,priority:2" json:"alias"`
	Enabled    bool           `gorm:"not null" json:"enabled"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}
