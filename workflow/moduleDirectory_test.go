package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleDirectoryIsEnabled(t *testing.T) {
	db := newTestDB(t)
	newLedgerFixture(t, db, "on").enableModule()
	require.NoError(t, db.Create(&models.Module{BusinessId: "off", Alias: config.DoubleEntryModuleAlias, Enabled: false}).Error)
	require.NoError(t, db.Create(&models.Module{BusinessId: "other", Alias: "inventory", Enabled: true}).Error)
	modules := NewModuleDirectory(db)
	ctx := context.Background()

	for businessId, want := range map[string]bool{"on": true, "off": false, "other": false, "none": false} {
		got, err := modules.IsEnabled(ctx, businessId)
		require.NoError(t, err)
		assert.Equal(t, want, got, businessId)
	}
}

func TestModuleDirectoryBusinessesWithTaxes(t *testing.T) {
	db := newTestDB(t)
	withTax := func(businessId string) *ledgerFixture {
		f := newLedgerFixture(t, db, businessId)
		txn := f.transaction(models.TransactionDirectionIncome, "INV")
		f.taxLine(txn, testTaxId, models.TaxKindNormal, "1")
		f.taxLine(txn, testTaxId, models.TaxKindNormal, "2")
		return f
	}
	withTax("b3").enableModule()
	withTax("b1").enableModule()
	withTax("disabled")
	require.NoError(t, db.Create(&models.Module{BusinessId: "disabled", Alias: config.DoubleEntryModuleAlias, Enabled: false}).Error)
	withTax("removed").enableModule()
	require.NoError(t, db.Where("business_id = ?", "removed").Delete(&models.Module{}).Error)
	newLedgerFixture(t, db, "no-taxes").enableModule()

	ids, err := NewModuleDirectory(db).BusinessesWithTaxes(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b3"}, ids)
}

func TestAccountDirectoryLookups(t *testing.T) {
	db := newTestDB(t)
	f := newLedgerFixture(t, db, "b1")
	account := f.account("8802")
	f.mapTax(testTaxId, account)
	newLedgerFixture(t, db, "b2").account("8803")
	accounts := &AccountDirectory{DB: db}
	ctx := context.Background()

	found, ok, err := accounts.LookupByCode(ctx, "b1", "8802")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, account.ID, found.ID)

	_, ok, err = accounts.LookupByCode(ctx, "b1", "8803")
	require.NoError(t, err)
	assert.False(t, ok, "codes of other businesses are invisible")

	accountId, ok, err := accounts.LookupAccountForTax(ctx, "b1", testTaxId)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, account.ID, accountId)

	_, ok, err = accounts.LookupAccountForTax(ctx, "b2", testTaxId)
	require.NoError(t, err)
	assert.False(t, ok)
}
