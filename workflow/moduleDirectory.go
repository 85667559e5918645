package workflow

import (
	"context"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"gorm.io/gorm"
)

// ModuleDirectory answers whether the double-entry module is enabled for a business.
type ModuleDirectory struct {
	DB    *gorm.DB
	Alias string
}

func NewModuleDirectory(db *gorm.DB) *ModuleDirectory {
	return &ModuleDirectory{DB: db, Alias: config.DoubleEntryModuleAlias}
}

func (m *ModuleDirectory) IsEnabled(ctx context.Context, businessId string) (bool, error) {
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	return moduleEnabled(m.DB.WithContext(ctx), businessId, m.Alias)
}

func moduleEnabled(tx *gorm.DB, businessId string, alias string) (bool, error) {
	var count int64
	err := tx.Model(&models.Module{}).
		Where("business_id = ? AND alias = ? AND enabled = ?", businessId, alias, true).
		Count(&count).Error
	return count > 0, err
}

// BusinessesWithTaxes lists every business that has the module enabled and at least one
// transaction tax, in id order. It reads across tenants.
func (m *ModuleDirectory) BusinessesWithTaxes(ctx context.Context) ([]string, error) {
	ctx = utils.SetSkipTenantScopeInContext(ctx, true)
	var ids []string
	err := m.DB.WithContext(ctx).
		Model(&models.Module{}).
		Distinct("modules.business_id").
		Joins("JOIN transaction_taxes ON transaction_taxes.business_id = modules.business_id").
		Where("modules.alias = ? AND modules.enabled = ?", m.Alias, true).
		Order("modules.business_id ASC").
		Pluck("modules.business_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
