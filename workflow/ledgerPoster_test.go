package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertLedgerSummaryCreatesThenRefreshesDebit(t *testing.T) {
	db := newTestDB(t)
	events := &RecordingEventPublisher{}
	journals := newTestJournalPoster(db, nil)
	ledgers := &LedgerPoster{
		DB:     db,
		Events: events,
		Now:    func() time.Time { return time.Date(2026, 10, 15, 17, 30, 0, 0, time.UTC) },
	}
	account := newLedgerFixture(t, db, "1").account("8802")
	ctx := context.Background()

	journal, _, err := journals.UpsertJournal(ctx, "1", "Automatic Open-Invoice", dec("5000"), testJournalMetadata())
	require.NoError(t, err)
	line, created, err := ledgers.UpsertLedgerSummary(ctx, "1", "Automatic Open-Invoice", journal, account)
	require.NoError(t, err)
	assert.True(t, created)
	requireNullDecimal(t, "5000", line.Debit)
	assert.False(t, line.Credit.Valid)
	assert.Equal(t, models.LedgerableTypeJournal, line.LedgerableType)
	assert.Equal(t, journal.ID, line.LedgerableId)
	assert.Equal(t, models.EntryTypeItem, line.EntryType)
	assert.Equal(t, account.ID, line.AccountId)
	assert.Equal(t, 0, line.IssuedAt.Hour())

	journal, _, err = journals.UpsertJournal(ctx, "1", "Automatic Open-Invoice", dec("4800"), testJournalMetadata())
	require.NoError(t, err)
	again, created, err := ledgers.UpsertLedgerSummary(ctx, "1", "Automatic Open-Invoice", journal, account)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, line.ID, again.ID)

	stored := reloadLedger(t, db, line.ID)
	requireNullDecimal(t, "4800", stored.Debit)
	assert.Equal(t, int64(1), countRows(t, db, &models.Ledger{}))
	assert.Equal(t, []DomainEventType{DomainEventLedgerCreated}, events.Types())
}

func TestUpsertLedgerSummaryRejectsForeignRows(t *testing.T) {
	db := newTestDB(t)
	journals := newTestJournalPoster(db, nil)
	ledgers := &LedgerPoster{DB: db}
	foreignAccount := newLedgerFixture(t, db, "2").account("8802")
	ctx := context.Background()

	journal, _, err := journals.UpsertJournal(ctx, "1", "ref", dec("1"), testJournalMetadata())
	require.NoError(t, err)

	_, _, err = ledgers.UpsertLedgerSummary(ctx, "1", "ref", journal, foreignAccount)
	assert.True(t, errors.Is(err, utils.ErrInvalidInput), "got %v", err)
	_, _, err = ledgers.UpsertLedgerSummary(ctx, "1", "ref", journal, nil)
	assert.True(t, errors.Is(err, utils.ErrInvalidInput), "got %v", err)
	assert.Equal(t, int64(0), countRows(t, db, &models.Ledger{}))
}
