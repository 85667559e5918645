package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/double_entry/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTaskPublisher struct {
	mu   sync.Mutex
	fail error
	sent []int
}

func (p *fakeTaskPublisher) PublishTask(_ context.Context, task models.LedgerTask) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return "", p.fail
	}
	p.sent = append(p.sent, task.ID)
	return "msg-1", nil
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestDispatcher(t *testing.T, publisher TaskPublisher) (*OutboxDispatcher, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)}
	d := NewOutboxDispatcher(newTestDB(t), publisher, nil)
	d.Now = clock.Now
	return d, clock
}

func TestOutboxDispatcherMarksSent(t *testing.T) {
	publisher := &fakeTaskPublisher{}
	d, _ := newTestDispatcher(t, publisher)
	task := queueCreateTask(t, d.DB, "b1", models.TransactionTaxRef{ID: 1}, 1, "5")

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int{task.ID}, publisher.sent)

	stored := loadTask(t, d.DB, task.ID)
	assert.Equal(t, models.OutboxPublishStatusSent, stored.PublishStatus)
	assert.Equal(t, 1, stored.PublishAttempts)
	require.NotNil(t, stored.PubSubMessageId)
	assert.Equal(t, "msg-1", *stored.PubSubMessageId)
	assert.Nil(t, stored.LockedAt)

	n, err = d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "sent tasks are not published again")
}

func TestOutboxDispatcherBacksOffFailedPublishes(t *testing.T) {
	publisher := &fakeTaskPublisher{fail: errors.New("pubsub unavailable")}
	d, clock := newTestDispatcher(t, publisher)
	task := queueCreateTask(t, d.DB, "b1", models.TransactionTaxRef{ID: 1}, 1, "5")
	ctx := context.Background()

	_, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	stored := loadTask(t, d.DB, task.ID)
	assert.Equal(t, models.OutboxPublishStatusFailed, stored.PublishStatus)
	assert.Equal(t, 1, stored.PublishAttempts)
	require.NotNil(t, stored.NextAttemptAt)
	assert.True(t, stored.NextAttemptAt.Equal(clock.now.Add(5*time.Second)), "next attempt %s", stored.NextAttemptAt)

	n, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "not due yet")

	clock.Advance(6 * time.Second)
	n, err = d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	stored = loadTask(t, d.DB, task.ID)
	assert.Equal(t, 2, stored.PublishAttempts)
	assert.True(t, stored.NextAttemptAt.Equal(clock.now.Add(10*time.Second)), "next attempt %s", stored.NextAttemptAt)
}

func TestOutboxDispatcherDeadLettersAfterMaxAttempts(t *testing.T) {
	publisher := &fakeTaskPublisher{fail: errors.New("pubsub unavailable")}
	d, clock := newTestDispatcher(t, publisher)
	d.MaxAttempts = 2
	task := queueCreateTask(t, d.DB, "b1", models.TransactionTaxRef{ID: 1}, 1, "5")
	ctx := context.Background()

	_, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = d.DispatchOnce(ctx)
	require.NoError(t, err)

	stored := loadTask(t, d.DB, task.ID)
	assert.Equal(t, models.OutboxPublishStatusDead, stored.PublishStatus)
	require.NotNil(t, stored.LastPublishError)
	assert.Equal(t, "pubsub unavailable", *stored.LastPublishError)

	clock.Advance(time.Hour)
	n, err := d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	requeued, err := models.RequeueLedgerTasks(ctx, d.DB, "b1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), requeued)
	publisher.fail = nil
	n, err = d.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, models.OutboxPublishStatusSent, loadTask(t, d.DB, task.ID).PublishStatus)
}

func TestOutboxDispatcherSkipsProcessedTasks(t *testing.T) {
	publisher := &fakeTaskPublisher{}
	d, _ := newTestDispatcher(t, publisher)
	task := queueCreateTask(t, d.DB, "b1", models.TransactionTaxRef{ID: 1}, 1, "5")
	require.NoError(t, d.DB.Model(&models.LedgerTask{}).Where("id = ?", task.ID).
		Update("process_status", models.OutboxProcessStatusSucceeded).Error)

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, publisher.sent)
}

func TestOutboxDispatcherDirectPublisherRunsTasks(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	f := newLedgerFixture(t, d.DB, "b1")
	txn := f.transaction(models.TransactionDirectionIncome, "INV-1")
	tax := f.taxLine(txn, testTaxId, models.TaxKindNormal, "3")
	task := queueCreateTask(t, d.DB, "b1", tax.Ref(), f.account("2200").ID, "3")
	d.Publisher = &DirectTaskPublisher{Runner: NewLedgerTaskHandler(d.DB, nil, nil)}

	n, err := d.DispatchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored := loadTask(t, d.DB, task.ID)
	assert.Equal(t, models.OutboxPublishStatusSent, stored.PublishStatus)
	assert.Equal(t, models.OutboxProcessStatusSucceeded, stored.ProcessStatus)
	assert.Len(t, ownerLines(t, d.DB, "b1", tax.Ref()), 1)
}

func TestOutboxDispatcherBackoffIsCapped(t *testing.T) {
	d := NewOutboxDispatcher(nil, nil, nil)
	assert.Equal(t, 5*time.Second, d.backoff(1))
	assert.Equal(t, 20*time.Second, d.backoff(3))
	assert.Equal(t, 10*time.Minute, d.backoff(20))
}
