package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/double_entry/models"
	"gorm.io/gorm"
)

// resolveLedgerable loads the owner a ledger line documents, one lookup per kind.
// found=false means the owner no longer exists.
func resolveLedgerable(tx *gorm.DB, businessId string, owner models.Ledgerable) (any, bool, error) {
	var (
		dest any
		err  error
	)
	switch ref := owner.(type) {
	case models.JournalRef:
		var journal models.Journal
		err = tx.Where("business_id = ? AND id = ?", businessId, ref.ID).First(&journal).Error
		dest = &journal
	case models.TransactionRef:
		var transaction models.Transaction
		err = tx.Where("business_id = ? AND id = ?", businessId, ref.ID).First(&transaction).Error
		dest = &transaction
	case models.TransactionTaxRef:
		var tax models.TransactionTax
		err = tx.Where("business_id = ? AND id = ?", businessId, ref.ID).First(&tax).Error
		dest = &tax
	default:
		return nil, false, fmt.Errorf("%w: %T", models.ErrUnknownLedgerable, owner)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return dest, true, nil
}
