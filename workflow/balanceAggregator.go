package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const balanceJournalDescription = "Entry from pgl crm system"

// SummaryStream is one recurring summary posting: a fixed reference posted to a fixed account.
type SummaryStream struct {
	Reference   string
	AccountCode string
	// MixedShipping selects invoices whose containers ship mixed cargo.
	MixedShipping bool
}

var (
	OpenInvoiceStream = SummaryStream{Reference: "Automatic Open-Invoice", AccountCode: "8802"}
	MixInvoiceStream  = SummaryStream{Reference: "Automatic Mix-Invoice", AccountCode: "8803", MixedShipping: true}
)

func DefaultSummaryStreams() []SummaryStream {
	return []SummaryStream{OpenInvoiceStream, MixInvoiceStream}
}

// AmountDueSource computes the outstanding amount a stream posts.
type AmountDueSource interface {
	TotalAmountDue(ctx context.Context, businessId string, stream SummaryStream) (decimal.Decimal, error)
}

type StreamOutcome struct {
	Stream  SummaryStream
	Skipped bool
	Amount  decimal.Decimal
	Journal *models.Journal
	Ledger  *models.Ledger
}

// BalanceAggregator posts each stream's amount through the journal and ledger posters.
type BalanceAggregator struct {
	Accounts *AccountDirectory
	Source   AmountDueSource
	Journals *JournalPoster
	Ledgers  *LedgerPoster
	Streams  []SummaryStream
	Logger   *logrus.Logger
	Now      func() time.Time
}

func (a *BalanceAggregator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Run posts every stream for businessId. A stream whose account is missing is skipped.
// Every stream is attempted; their errors are joined.
func (a *BalanceAggregator) Run(ctx context.Context, businessId string) ([]StreamOutcome, error) {
	ctx, span := tracer.Start(ctx, "BalanceAggregator.Run", trace.WithAttributes(attribute.String("business_id", businessId)))
	defer span.End()

	streams := a.Streams
	if len(streams) == 0 {
		streams = DefaultSummaryStreams()
	}

	var (
		outcomes []StreamOutcome
		errs     []error
	)
	for _, stream := range streams {
		outcome, err := a.runStream(ctx, businessId, stream)
		if err != nil {
			config.LogError(a.Logger, "balanceAggregator.go", "Run", "posting "+stream.Reference, businessId, err)
			errs = append(errs, fmt.Errorf("%s: %w", stream.Reference, err))
			continue
		}
		outcomes = append(outcomes, outcome)
	}
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcomes, err
	}
	return outcomes, nil
}

func (a *BalanceAggregator) runStream(ctx context.Context, businessId string, stream SummaryStream) (StreamOutcome, error) {
	outcome := StreamOutcome{Stream: stream}

	account, found, err := a.Accounts.LookupByCode(ctx, businessId, stream.AccountCode)
	if err != nil {
		return outcome, err
	}
	if !found {
		outcome.Skipped = true
		if a.Logger != nil {
			a.Logger.WithFields(logrus.Fields{
				"field":        "BalanceAggregator",
				"business_id":  businessId,
				"reference":    stream.Reference,
				"account_code": stream.AccountCode,
			}).Info("account missing, stream skipped")
		}
		return outcome, nil
	}

	amount, err := a.Source.TotalAmountDue(ctx, businessId, stream)
	if err != nil {
		return outcome, fmt.Errorf("%w: amount due: %v", utils.ErrExternalDependency, err)
	}
	outcome.Amount = amount

	today := a.now()
	meta := models.JournalMetadata{
		CurrencyCode: "USD",
		CurrencyRate: decimal.NewFromInt(1),
		PaidAt:       time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC),
		Description:  balanceJournalDescription,
		Basis:        "Accrual",
	}
	journal, _, err := a.Journals.UpsertJournal(ctx, businessId, stream.Reference, amount, meta)
	if err != nil {
		return outcome, err
	}
	outcome.Journal = journal

	ledger, _, err := a.Ledgers.UpsertLedgerSummary(ctx, businessId, stream.Reference, journal, account)
	if err != nil {
		return outcome, err
	}
	outcome.Ledger = ledger

	if a.Logger != nil {
		a.Logger.WithFields(logrus.Fields{
			"field":          "BalanceAggregator",
			"business_id":    businessId,
			"reference":      stream.Reference,
			"amount":         amount.String(),
			"journal_number": journal.JournalNumber,
		}).Info("summary posted")
	}
	return outcome, nil
}
