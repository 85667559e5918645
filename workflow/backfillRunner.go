package workflow

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// TaxLineCreator is the reconciler entry point the backfill replays.
type TaxLineCreator interface {
	TaxLineCreated(ctx context.Context, ev TaxLineEvent) (*ReconcileResult, error)
}

// BusinessLister lists the businesses a backfill covers.
type BusinessLister interface {
	BusinessesWithTaxes(ctx context.Context) ([]string, error)
}

type BusinessBackfill struct {
	BusinessId string
	Processed  int
	Posted     int
	Skipped    int
	Failed     int
	Err        error
}

func (b *BusinessBackfill) failed() bool {
	return b.Err != nil || b.Failed > 0
}

type BackfillReport struct {
	Businesses []BusinessBackfill
}

func (r *BackfillReport) FailedBusinesses() []string {
	var ids []string
	for _, b := range r.Businesses {
		if b.failed() {
			ids = append(ids, b.BusinessId)
		}
	}
	return ids
}

// BackfillRunner replays the tax line creation transition over every existing tax line.
// It relies on the reconciler's idempotency, so it can be re-run at any time.
type BackfillRunner struct {
	DB         *gorm.DB
	Businesses BusinessLister
	Reconciler TaxLineCreator
	BatchSize  int
	Logger     *logrus.Logger
}

func NewBackfillRunner(db *gorm.DB, businesses BusinessLister, reconciler TaxLineCreator, logger *logrus.Logger) *BackfillRunner {
	return &BackfillRunner{
		DB:         db,
		Businesses: businesses,
		Reconciler: reconciler,
		BatchSize:  200,
		Logger:     logger,
	}
}

// Run backfills every business. A failing record or business does not stop the run;
// if any business failed the report comes back with an error wrapping ErrPartialBatchFailure.
func (r *BackfillRunner) Run(ctx context.Context) (*BackfillReport, error) {
	businessIds, err := r.Businesses.BusinessesWithTaxes(ctx)
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{}
	for _, businessId := range businessIds {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r.logBusiness(businessId, "Updating business")
		result := r.runBusiness(ctx, businessId)
		report.Businesses = append(report.Businesses, result)
		if result.Err != nil {
			config.LogError(r.Logger, "backfillRunner.go", "Run", "backfilling business", businessId, result.Err)
		}
		r.logBusiness(businessId, "Business updated")
	}

	if failed := report.FailedBusinesses(); len(failed) > 0 {
		return report, fmt.Errorf("%w: %d of %d businesses failed %v", utils.ErrPartialBatchFailure, len(failed), len(businessIds), failed)
	}
	return report, nil
}

func (r *BackfillRunner) runBusiness(ctx context.Context, businessId string) BusinessBackfill {
	result := BusinessBackfill{BusinessId: businessId}
	batchSize := r.BatchSize
	if batchSize <= 0 {
		batchSize = 200
	}

	var taxes []models.TransactionTax
	err := r.DB.WithContext(utils.SetBusinessIdInContext(ctx, businessId)).
		Preload("Transaction", "business_id = ?", businessId).
		Where("business_id = ?", businessId).
		FindInBatches(&taxes, batchSize, func(batch *gorm.DB, _ int) error {
			for _, tax := range taxes {
				result.Processed++
				if tax.Transaction == nil {
					result.Skipped++
					if r.Logger != nil {
						r.Logger.WithFields(logrus.Fields{
							"field":              "BackfillRunner",
							"business_id":        businessId,
							"transaction_tax_id": tax.ID,
						}).Warn("tax line has no transaction, skipped")
					}
					continue
				}
				res, err := r.Reconciler.TaxLineCreated(ctx, TaxLineEvent{
					BusinessId:  businessId,
					Tax:         tax,
					Transaction: *tax.Transaction,
				})
				if err != nil {
					result.Failed++
					config.LogError(r.Logger, "backfillRunner.go", "runBusiness", "backfilling tax line", tax.ID, err)
					continue
				}
				if res.Skipped {
					result.Skipped++
				} else {
					result.Posted++
				}
			}
			return ctx.Err()
		}).Error
	result.Err = err
	return result
}

func (r *BackfillRunner) logBusiness(businessId string, msg string) {
	if r.Logger == nil {
		return
	}
	r.Logger.WithFields(logrus.Fields{
		"field":       "BackfillRunner",
		"business_id": businessId,
	}).Info(msg)
}
