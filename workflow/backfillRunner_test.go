package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticBusinesses []string

func (s staticBusinesses) BusinessesWithTaxes(context.Context) ([]string, error) {
	return s, nil
}

// failingCreator fails every tax line of one business and delegates the rest.
type failingCreator struct {
	next       TaxLineCreator
	businessId string
}

func (c *failingCreator) TaxLineCreated(ctx context.Context, ev TaxLineEvent) (*ReconcileResult, error) {
	if ev.BusinessId == c.businessId {
		return nil, errors.New("boom")
	}
	return c.next.TaxLineCreated(ctx, ev)
}

func TestBackfillRunnerPostsEveryBusinessOnce(t *testing.T) {
	s := newReconcilerSetup(t)
	txn := s.f.transaction(models.TransactionDirectionIncome, "INV-1")
	s.f.taxLine(txn, testTaxId, models.TaxKindNormal, "5")
	s.f.taxLine(txn, testTaxId, models.TaxKindNormal, "6")

	b2 := newLedgerFixture(t, s.db, "b2").enableModule()
	b2.mapTax(testTaxId, b2.account("2200"))
	b2txn := b2.transaction(models.TransactionDirectionExpense, "BILL-1")
	b2.taxLine(b2txn, testTaxId, models.TaxKindNormal, "7")

	runner := NewBackfillRunner(s.db, NewModuleDirectory(s.db), s.reconciler, nil)
	runner.BatchSize = 1
	ctx := context.Background()

	report, err := runner.Run(ctx)
	require.NoError(t, err)
	require.Len(t, report.Businesses, 2)
	assert.Equal(t, "b1", report.Businesses[0].BusinessId)
	assert.Equal(t, 2, report.Businesses[0].Posted)
	assert.Equal(t, 1, report.Businesses[1].Posted)
	assert.Equal(t, int64(3), countRows(t, s.db, &models.Ledger{}))

	report, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Businesses[0].Skipped)
	assert.Equal(t, 0, report.Businesses[0].Posted)
	assert.Equal(t, int64(3), countRows(t, s.db, &models.Ledger{}))
	assert.Equal(t, int64(3), countRows(t, s.db, &models.LedgerTask{}))
}

func TestBackfillRunnerIsolatesFailingBusiness(t *testing.T) {
	s := newReconcilerSetup(t)
	txn := s.f.transaction(models.TransactionDirectionIncome, "INV-1")
	s.f.taxLine(txn, testTaxId, models.TaxKindNormal, "5")

	b2 := newLedgerFixture(t, s.db, "b2").enableModule()
	b2txn := b2.transaction(models.TransactionDirectionIncome, "INV-2")
	b2.taxLine(b2txn, testTaxId, models.TaxKindNormal, "7")

	creator := &failingCreator{next: s.reconciler, businessId: "b2"}
	runner := NewBackfillRunner(s.db, staticBusinesses{"b2", "b1"}, creator, nil)

	report, err := runner.Run(context.Background())
	assert.True(t, errors.Is(err, utils.ErrPartialBatchFailure), "got %v", err)
	require.NotNil(t, report)
	require.Len(t, report.Businesses, 2)
	assert.Equal(t, 1, report.Businesses[0].Failed)
	assert.Equal(t, 1, report.Businesses[1].Posted)
	assert.Equal(t, []string{"b2"}, report.FailedBusinesses())
}

func TestBackfillRunnerSkipsOrphanTaxLines(t *testing.T) {
	s := newReconcilerSetup(t)
	orphan := models.TransactionTax{
		BusinessId:    "b1",
		TransactionId: 999,
		TaxId:         testTaxId,
		TaxKind:       models.TaxKindNormal,
		Amount:        dec("1"),
	}
	require.NoError(t, s.db.Create(&orphan).Error)

	report, err := NewBackfillRunner(s.db, staticBusinesses{"b1"}, s.reconciler, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Businesses[0].Processed)
	assert.Equal(t, 1, report.Businesses[0].Skipped)
	assert.Equal(t, int64(0), countRows(t, s.db, &models.LedgerTask{}))
}
