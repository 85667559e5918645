package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// LedgerPoster maintains whole-journal summary lines, one per (business, reference).
// Tax reconciliation does not go through here; it addresses lines by owner instead.
type LedgerPoster struct {
	DB     *gorm.DB
	Locker *PostingLocker
	Events EventPublisher
	Logger *logrus.Logger
	Now    func() time.Time
}

func (p *LedgerPoster) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// UpsertLedgerSummary debits account with the journal's current amount under reference.
func (p *LedgerPoster) UpsertLedgerSummary(ctx context.Context, businessId string, reference string, journal *models.Journal, account *models.Account) (ledger *models.Ledger, created bool, err error) {
	if strings.TrimSpace(reference) == "" || journal == nil || account == nil {
		return nil, false, fmt.Errorf("%w: reference, journal and account are required", utils.ErrInvalidInput)
	}
	if journal.BusinessId != businessId || account.BusinessId != businessId {
		return nil, false, fmt.Errorf("%w: journal and account must belong to business %s", utils.ErrInvalidInput, businessId)
	}
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	err = p.Locker.WithLock(ctx, "ledger", businessId, reference, func() error {
		ledger, created, err = p.upsert(ctx, businessId, reference, journal, account)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		publishEvents(ctx, p.Events, p.Logger, newDomainEvent(ctx, DomainEventLedgerCreated, businessId, ledger.ID, ledger))
	}
	return ledger, created, nil
}

func (p *LedgerPoster) upsert(ctx context.Context, businessId, reference string, journal *models.Journal, account *models.Account) (*models.Ledger, bool, error) {
	db := p.DB.WithContext(ctx)

	existing, found, err := findLedgerByReference(db, businessId, reference)
	if err != nil {
		return nil, false, err
	}
	if found {
		return existing, false, refreshLedgerDebit(db, existing, journal.Amount)
	}

	ref := reference
	issued := p.now()
	ledger := models.Ledger{
		BusinessId: businessId,
		Reference:  &ref,
		EntryType:  models.EntryTypeItem,
		AccountId:  account.ID,
		IssuedAt:   time.Date(issued.Year(), issued.Month(), issued.Day(), 0, 0, 0, 0, time.UTC),
	}
	ledger.SetLedgerable(journal.Ref())
	models.PostingSideDebit.Place(&ledger, journal.Amount)

	err = db.Create(&ledger).Error
	if err == nil {
		return &ledger, true, nil
	}
	if !isDuplicateKeyErr(err) {
		return nil, false, err
	}
	// lost the race: the winner's row is the one to refresh
	existing, found, err = findLedgerByReference(db, businessId, reference)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, fmt.Errorf("ledger %q vanished after duplicate insert", reference)
	}
	return existing, false, refreshLedgerDebit(db, existing, journal.Amount)
}

func findLedgerByReference(db *gorm.DB, businessId, reference string) (*models.Ledger, bool, error) {
	var ledger models.Ledger
	err := db.Where("business_id = ? AND reference = ?", businessId, reference).First(&ledger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &ledger, true, nil
}

func refreshLedgerDebit(db *gorm.DB, ledger *models.Ledger, amount decimal.Decimal) error {
	if ledger.Debit.Valid && ledger.Debit.Decimal.Equal(amount) {
		return nil
	}
	err := db.Model(&models.Ledger{}).
		Where("business_id = ? AND id = ?", ledger.BusinessId, ledger.ID).
		Update("debit", decimal.NewNullDecimal(amount)).Error
	if err != nil {
		return err
	}
	ledger.Debit = decimal.NewNullDecimal(amount)
	return nil
}
