package workflow

import (
	"errors"
	"testing"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
)

func TestPostingSideFor(t *testing.T) {
	cases := []struct {
		direction models.TransactionDirection
		kind      models.TaxKind
		want      models.PostingSide
	}{
		{models.TransactionDirectionIncome, models.TaxKindNormal, models.PostingSideCredit},
		{models.TransactionDirectionIncome, models.TaxKindWithholding, models.PostingSideDebit},
		{models.TransactionDirectionExpense, models.TaxKindNormal, models.PostingSideDebit},
		{models.TransactionDirectionExpense, models.TaxKindWithholding, models.PostingSideCredit},
	}
	for _, tc := range cases {
		got, err := PostingSideFor(tc.direction, tc.kind)
		if err != nil {
			t.Fatalf("PostingSideFor(%s, %s): %v", tc.direction, tc.kind, err)
		}
		if got != tc.want {
			t.Fatalf("PostingSideFor(%s, %s) = %s, want %s", tc.direction, tc.kind, got, tc.want)
		}
	}
}

func TestPostingSideForRejectsUnknownValues(t *testing.T) {
	_, err := PostingSideFor("transfer", models.TaxKindNormal)
	if !errors.Is(err, ErrInvalidDirection) || !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("unknown direction: got %v", err)
	}
	_, err = PostingSideFor(models.TransactionDirectionIncome, "compound")
	if !errors.Is(err, ErrInvalidTaxKind) || !errors.Is(err, utils.ErrInvalidInput) {
		t.Fatalf("unknown tax kind: got %v", err)
	}
}
