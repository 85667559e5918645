package workflow

import (
	"context"
	"errors"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"gorm.io/gorm"
)

// AccountDirectory resolves accounts of a business's chart. It never writes.
// A missing account is reported with found=false; callers skip the posting.
type AccountDirectory struct {
	DB *gorm.DB
}

func (d *AccountDirectory) LookupByCode(ctx context.Context, businessId string, code string) (*models.Account, bool, error) {
	ctx = utils.SetBusinessIdInContext(ctx, businessId)
	var account models.Account
	err := d.DB.WithContext(ctx).
		Where("business_id = ? AND code = ?", businessId, code).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &account, true, nil
}

// LookupAccountForTax returns the account configured to receive postings of taxId.
func (d *AccountDirectory) LookupAccountForTax(ctx context.Context, businessId string, taxId int) (int, bool, error) {
	return lookupAccountForTax(d.DB.WithContext(utils.SetBusinessIdInContext(ctx, businessId)), businessId, taxId)
}

func lookupAccountForTax(tx *gorm.DB, businessId string, taxId int) (int, bool, error) {
	var mapping models.AccountTax
	err := tx.Where("business_id = ? AND tax_id = ?", businessId, taxId).
		Order("id ASC").
		First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return mapping.AccountId, true, nil
}
