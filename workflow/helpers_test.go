package workflow

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory store with the production gorm config and plugins.
// One connection only: code under test must use the tx it is handed inside transactions.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.NewGormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	config.InstallPlugins(db)
	require.NoError(t, models.MigrateTable(db))
	return db
}

type RecordingEventPublisher struct {
	mu     sync.Mutex
	events []DomainEvent
}

func (p *RecordingEventPublisher) Publish(_ context.Context, event DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *RecordingEventPublisher) Types() []DomainEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]DomainEventType, 0, len(p.events))
	for _, ev := range p.events {
		types = append(types, ev.Type)
	}
	return types
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Fatalf("amount = %s, want %s", got.String(), want)
	}
}

func requireNullDecimal(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	if !got.Valid {
		t.Fatalf("amount is NULL, want %s", want)
	}
	requireDecimal(t, want, got.Decimal)
}

// ledgerFixture builds one business's chart, module row and banking data.
type ledgerFixture struct {
	t          *testing.T
	db         *gorm.DB
	businessId string
}

func newLedgerFixture(t *testing.T, db *gorm.DB, businessId string) *ledgerFixture {
	return &ledgerFixture{t: t, db: db, businessId: businessId}
}

func (f *ledgerFixture) enableModule() *ledgerFixture {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&models.Module{
		BusinessId: f.businessId,
		Alias:      config.DoubleEntryModuleAlias,
		Enabled:    true,
	}).Error)
	return f
}

func (f *ledgerFixture) account(code string) *models.Account {
	f.t.Helper()
	account := models.Account{BusinessId: f.businessId, Code: code, Name: "Account " + code}
	require.NoError(f.t, f.db.Create(&account).Error)
	return &account
}

func (f *ledgerFixture) mapTax(taxId int, account *models.Account) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&models.AccountTax{
		BusinessId: f.businessId,
		TaxId:      taxId,
		AccountId:  account.ID,
	}).Error)
}

func (f *ledgerFixture) transaction(direction models.TransactionDirection, reference string) *models.Transaction {
	f.t.Helper()
	txn := models.Transaction{
		BusinessId: f.businessId,
		Direction:  direction,
		Reference:  reference,
		Amount:     dec("100"),
		PaidAt:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(f.t, f.db.Create(&txn).Error)
	return &txn
}

func (f *ledgerFixture) taxLine(txn *models.Transaction, taxId int, kind models.TaxKind, amount string) models.TransactionTax {
	f.t.Helper()
	tax := models.TransactionTax{
		BusinessId:    f.businessId,
		TransactionId: txn.ID,
		TaxId:         taxId,
		TaxKind:       kind,
		Amount:        dec(amount),
	}
	require.NoError(f.t, f.db.Create(&tax).Error)
	return tax
}

// parentLine posts the transaction's own item line on side.
func (f *ledgerFixture) parentLine(txn *models.Transaction, account *models.Account, side models.PostingSide, amount string) *models.Ledger {
	f.t.Helper()
	line := models.Ledger{
		BusinessId: f.businessId,
		EntryType:  models.EntryTypeItem,
		AccountId:  account.ID,
		IssuedAt:   txn.PaidAt,
	}
	line.SetLedgerable(txn.Ref())
	side.Place(&line, dec(amount))
	require.NoError(f.t, f.db.Create(&line).Error)
	return &line
}

func (f *ledgerFixture) event(txn *models.Transaction, tax models.TransactionTax) TaxLineEvent {
	return TaxLineEvent{BusinessId: f.businessId, Tax: tax, Transaction: *txn}
}

func reloadLedger(t *testing.T, db *gorm.DB, id int) models.Ledger {
	t.Helper()
	var line models.Ledger
	require.NoError(t, db.First(&line, id).Error)
	return line
}

func ownerLines(t *testing.T, db *gorm.DB, businessId string, owner models.Ledgerable) []models.Ledger {
	t.Helper()
	var lines []models.Ledger
	require.NoError(t, db.
		Where("business_id = ? AND ledgerable_type = ? AND ledgerable_id = ?", businessId, owner.LedgerableType(), owner.LedgerableId()).
		Order("id ASC").
		Find(&lines).Error)
	return lines
}

func loadTask(t *testing.T, db *gorm.DB, id int) models.LedgerTask {
	t.Helper()
	var task models.LedgerTask
	require.NoError(t, db.First(&task, id).Error)
	return task
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
