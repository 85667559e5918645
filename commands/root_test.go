package commands

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/models"
	"github.com/mmdatafocus/double_entry/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand()
	for _, path := range [][]string{
		{"account-balances"},
		{"migrate-tax-ledgers"},
		{"worker"},
		{"tasks", "status"},
		{"tasks", "requeue"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestAccountBalancesBusinessIdDefault(t *testing.T) {
	t.Setenv("AGGREGATOR_BUSINESS_ID", "42")
	cmd, _, err := NewRootCommand().Find([]string{"account-balances"})
	require.NoError(t, err)
	assert.Equal(t, "42", cmd.Flags().Lookup("business-id").DefValue)
}

func TestTasksStatusValidatesBeforeConnecting(t *testing.T) {
	cases := map[string][]string{
		"missing business":   {"tasks", "status", "--owner-id", "3"},
		"unknown owner type": {"tasks", "status", "--business-id", "b1", "--owner-id", "3", "--owner-type", "invoice"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			root := NewRootCommand()
			root.SetArgs(args)
			root.SetOut(&bytes.Buffer{})
			root.SetErr(&bytes.Buffer{})
			assert.Error(t, root.Execute())
		})
	}

	root := NewRootCommand()
	root.SetArgs(cases["unknown owner type"])
	root.SetErr(&bytes.Buffer{})
	assert.True(t, errors.Is(root.Execute(), models.ErrUnknownLedgerable))
}

func TestNewEngineWiresInlineTasks(t *testing.T) {
	t.Setenv("PUBSUB_EVENT_TOPIC", "")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), config.NewGormConfig())
	require.NoError(t, err)

	t.Setenv("LEDGER_TASKS_INLINE", "")
	e := newEngine(db, nil)
	assert.Nil(t, e.Reconciler.Inline)
	assert.IsType(t, &workflow.LogEventPublisher{}, e.Events)
	assert.Same(t, e.Events, e.Journals.Events)

	t.Setenv("LEDGER_TASKS_INLINE", "true")
	e = newEngine(db, nil)
	assert.Same(t, e.Tasks, e.Reconciler.Inline)
}
