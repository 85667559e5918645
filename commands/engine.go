package commands

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// engine is the wired set of workflow components every command shares.
type engine struct {
	DB         *gorm.DB
	Logger     *logrus.Logger
	Events     workflow.EventPublisher
	Accounts   *workflow.AccountDirectory
	Modules    *workflow.ModuleDirectory
	Journals   *workflow.JournalPoster
	Ledgers    *workflow.LedgerPoster
	Tasks      *workflow.LedgerTaskHandler
	Reconciler *workflow.TaxLedgerReconciler
}

func connect(ctx context.Context) (*gorm.DB, error) {
	if err := config.ConnectDatabaseWithRetry(ctx); err != nil {
		return nil, err
	}
	db := config.GetDB()
	if db == nil {
		return nil, errors.New("database not initialized (config.GetDB returned nil)")
	}
	if config.RedisConfigured() {
		redisCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		// journal numbers and posting locks fall back to the database
		if err := config.ConnectRedisWithRetry(redisCtx); err != nil {
			config.LogError(config.GetLogger(), "engine.go", "connect", "connecting redis", nil, err)
		}
	}
	return db, nil
}

func newEngine(db *gorm.DB, logger *logrus.Logger) *engine {
	var events workflow.EventPublisher = &workflow.LogEventPublisher{Logger: logger}
	if topic := config.DomainEventTopic(); topic != "" {
		events = &workflow.PubSubEventPublisher{Topic: topic}
	}
	locker := workflow.NewPostingLocker(config.GetRedisLock())

	e := &engine{
		DB:       db,
		Logger:   logger,
		Events:   events,
		Accounts: &workflow.AccountDirectory{DB: db},
		Modules:  workflow.NewModuleDirectory(db),
		Journals: &workflow.JournalPoster{
			DB:       db,
			Sequence: &workflow.JournalSequence{DB: db, Redis: config.GetRedisDB()},
			Locker:   locker,
			Events:   events,
			Logger:   logger,
		},
		Ledgers: &workflow.LedgerPoster{
			DB:     db,
			Locker: locker,
			Events: events,
			Logger: logger,
		},
		Tasks:      workflow.NewLedgerTaskHandler(db, events, logger),
		Reconciler: workflow.NewTaxLedgerReconciler(db, logger),
	}
	if config.InlineLedgerTasks() {
		e.Reconciler.Inline = e.Tasks
	}
	return e
}
