package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var validate = validator.New()

const maxJournalNumberAttempts = 5

// JournalPoster keeps exactly one journal per (business, reference).
type JournalPoster struct {
	DB       *gorm.DB
	Sequence *JournalSequence
	Locker   *PostingLocker
	Events   EventPublisher
	Logger   *logrus.Logger
}

// UpsertJournal creates the journal for reference, or overwrites its amount if it exists.
// created reports which of the two happened; only creation publishes journal.created.
func (p *JournalPoster) UpsertJournal(ctx context.Context, businessId string, reference string, amount decimal.Decimal, meta models.JournalMetadata) (journal *models.Journal, created bool, err error) {
	if strings.TrimSpace(businessId) == "" || strings.TrimSpace(reference) == "" {
		return nil, false, fmt.Errorf("%w: business id and reference are required", utils.ErrInvalidInput)
	}
	if err := validate.Struct(meta); err != nil {
		return nil, false, fmt.Errorf("%w: journal metadata: %v", utils.ErrInvalidInput, err)
	}
	ctx = utils.SetBusinessIdInContext(ctx, businessId)

	err = p.Locker.WithLock(ctx, "journal", businessId, reference, func() error {
		journal, created, err = p.upsert(ctx, businessId, reference, amount, meta)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		publishEvents(ctx, p.Events, p.Logger, newDomainEvent(ctx, DomainEventJournalCreated, businessId, journal.ID, journal))
	}
	return journal, created, nil
}

func (p *JournalPoster) upsert(ctx context.Context, businessId, reference string, amount decimal.Decimal, meta models.JournalMetadata) (*models.Journal, bool, error) {
	db := p.DB.WithContext(ctx)

	for attempt := 1; ; attempt++ {
		existing, found, err := findJournalByReference(db, businessId, reference)
		if err != nil {
			return nil, false, err
		}
		if found {
			return existing, false, refreshJournalAmount(db, existing, amount)
		}

		seqNo, err := p.Sequence.Next(ctx, businessId)
		if err != nil {
			return nil, false, err
		}
		rate := meta.CurrencyRate
		if rate.IsZero() {
			rate = decimal.NewFromInt(1)
		}
		journal := models.Journal{
			BusinessId:    businessId,
			Reference:     reference,
			JournalNumber: seqNo,
			Amount:        amount,
			CurrencyCode:  meta.CurrencyCode,
			CurrencyRate:  rate,
			PaidAt:        meta.PaidAt,
			Description:   meta.Description,
			Basis:         meta.Basis,
		}
		err = db.Create(&journal).Error
		if err == nil {
			return &journal, true, nil
		}
		if !isDuplicateKeyErr(err) {
			return nil, false, err
		}
		// Either a concurrent writer created the reference (next loop converges onto it)
		// or the journal number collided (next loop allocates another one).
		if attempt >= maxJournalNumberAttempts {
			return nil, false, fmt.Errorf("create journal %q: %w", reference, err)
		}
		if p.Logger != nil {
			p.Logger.WithFields(logrus.Fields{
				"field":       "JournalPoster",
				"business_id": businessId,
				"reference":   reference,
				"attempt":     attempt,
			}).Warn("journal insert collided, retrying")
		}
	}
}

func findJournalByReference(db *gorm.DB, businessId, reference string) (*models.Journal, bool, error) {
	var journal models.Journal
	err := db.Where("business_id = ? AND reference = ?", businessId, reference).First(&journal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &journal, true, nil
}

// refreshJournalAmount overwrites the amount in place; an unchanged amount is not written at all.
func refreshJournalAmount(db *gorm.DB, journal *models.Journal, amount decimal.Decimal) error {
	if journal.Amount.Equal(amount) {
		return nil
	}
	err := db.Model(&models.Journal{}).
		Where("business_id = ? AND id = ?", journal.BusinessId, journal.ID).
		Update("amount", amount).Error
	if err != nil {
		return err
	}
	journal.Amount = amount
	return nil
}
