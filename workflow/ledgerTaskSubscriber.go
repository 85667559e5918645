package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/sirupsen/logrus"
)

// LedgerTaskMessageHandler handles one decoded ledger task message.
type LedgerTaskMessageHandler interface {
	HandleMessage(ctx context.Context, msg config.LedgerTaskMessage) error
}

// LedgerTaskSubscriber drains the ledger task subscription. Messages of one business
// are handled one at a time.
type LedgerTaskSubscriber struct {
	Handler        LedgerTaskMessageHandler
	Logger         *logrus.Logger
	Topic          string
	Subscription   string
	MaxOutstanding int

	mu            sync.Mutex
	businessLocks map[string]*businessLock
}

// businessLock lives in businessLocks only while some delivery holds or waits on it.
type businessLock struct {
	mu   sync.Mutex
	refs int
}

func NewLedgerTaskSubscriber(handler LedgerTaskMessageHandler, logger *logrus.Logger) *LedgerTaskSubscriber {
	return &LedgerTaskSubscriber{
		Handler:        handler,
		Logger:         logger,
		Topic:          config.LedgerTaskTopic(),
		Subscription:   config.LedgerTaskSubscription(),
		MaxOutstanding: 10,
	}
}

// Run receives until ctx is done.
func (s *LedgerTaskSubscriber) Run(ctx context.Context) error {
	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}
	topic, err := config.CreateTopicIfNotExists(ctx, client, s.Topic)
	if err != nil {
		return err
	}
	sub, err := config.CreateSubscriptionIfNotExists(ctx, client, s.Subscription, topic)
	if err != nil {
		return err
	}
	sub.ReceiveSettings.MaxOutstandingMessages = s.MaxOutstanding

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if s.Deliver(ctx, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// lockBusiness blocks until the business is free and returns its unlock func.
func (s *LedgerTaskSubscriber) lockBusiness(businessId string) func() {
	s.mu.Lock()
	if s.businessLocks == nil {
		s.businessLocks = make(map[string]*businessLock)
	}
	l, ok := s.businessLocks[businessId]
	if !ok {
		l = &businessLock{}
		s.businessLocks[businessId] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.businessLocks, businessId)
		}
		s.mu.Unlock()
	}
}

// Deliver handles one raw message and reports whether it should be acked.
// Undecodable messages and tasks that can never succeed are acked and dropped.
func (s *LedgerTaskSubscriber) Deliver(ctx context.Context, data []byte) bool {
	var m config.LedgerTaskMessage
	if err := json.Unmarshal(data, &m); err != nil {
		config.LogError(s.Logger, "ledgerTaskSubscriber.go", "Deliver", "unmarshaling ledger task message", string(data), err)
		return true
	}

	unlock := s.lockBusiness(m.BusinessId)
	defer unlock()

	err := s.Handler.HandleMessage(ctx, m)
	if err == nil {
		return true
	}
	fields := logrus.Fields{
		"field":          "LedgerTaskSubscriber",
		"business_id":    m.BusinessId,
		"ledger_task_id": m.ID,
		"action":         m.Action,
	}
	if errors.Is(err, utils.ErrorRecordNotFound) || errors.Is(err, utils.ErrInvalidInput) {
		if s.Logger != nil {
			s.Logger.WithFields(fields).Error("dropping ledger task message: " + err.Error())
		}
		return true
	}
	if s.Logger != nil {
		s.Logger.WithFields(fields).Error("ledger task processing failed: " + err.Error())
	}
	return false
}
