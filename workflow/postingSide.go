package workflow

import (
	"fmt"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
)

var (
	ErrInvalidDirection = fmt.Errorf("%w: transaction direction", utils.ErrInvalidInput)
	ErrInvalidTaxKind   = fmt.Errorf("%w: tax kind", utils.ErrInvalidInput)
)

// PostingSideFor picks the side a tax posting lands on.
//
//	income  + normal      -> credit
//	income  + withholding -> debit
//	expense + normal      -> debit
//	expense + withholding -> credit
func PostingSideFor(direction models.TransactionDirection, kind models.TaxKind) (models.PostingSide, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w %q", ErrInvalidTaxKind, kind)
	}
	switch direction {
	case models.TransactionDirectionIncome:
		if kind == models.TaxKindWithholding {
			return models.PostingSideDebit, nil
		}
		return models.PostingSideCredit, nil
	case models.TransactionDirectionExpense:
		if kind == models.TaxKindWithholding {
			return models.PostingSideCredit, nil
		}
		return models.PostingSideDebit, nil
	}
	return "", fmt.Errorf("%w %q", ErrInvalidDirection, direction)
}
