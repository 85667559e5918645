package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/double_entry/config"
	"github.com/mmdatafocus/double_entry/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessageHandler struct {
	err  error
	seen []config.LedgerTaskMessage
}

func (h *stubMessageHandler) HandleMessage(_ context.Context, msg config.LedgerTaskMessage) error {
	h.seen = append(h.seen, msg)
	return h.err
}

func TestLedgerTaskSubscriberDeliver(t *testing.T) {
	body := []byte(`{"id":12,"business_id":"b1","action":"C","correlation_id":"c-1"}`)
	cases := []struct {
		name    string
		data    []byte
		err     error
		wantAck bool
		handled bool
	}{
		{name: "handled", data: body, wantAck: true, handled: true},
		{name: "undecodable", data: []byte("{"), wantAck: true},
		{name: "unknown task", data: body, err: fmt.Errorf("ledger task 12: %w", utils.ErrorRecordNotFound), wantAck: true, handled: true},
		{name: "invalid task", data: body, err: fmt.Errorf("%w: bad action", utils.ErrInvalidInput), wantAck: true, handled: true},
		{name: "transient failure", data: body, err: errors.New("deadlock"), wantAck: false, handled: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := &stubMessageHandler{err: tc.err}
			sub := &LedgerTaskSubscriber{Handler: handler}

			assert.Equal(t, tc.wantAck, sub.Deliver(context.Background(), tc.data))
			if !tc.handled {
				assert.Empty(t, handler.seen)
				return
			}
			if assert.Len(t, handler.seen, 1) {
				assert.Equal(t, config.LedgerTaskMessage{ID: 12, BusinessId: "b1", Action: "C", CorrelationId: "c-1"}, handler.seen[0])
			}
		})
	}
}

type overlapCountingHandler struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (h *overlapCountingHandler) HandleMessage(_ context.Context, _ config.LedgerTaskMessage) error {
	n := h.inFlight.Add(1)
	for {
		seen := h.maxSeen.Load()
		if n <= seen || h.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	h.inFlight.Add(-1)
	return nil
}

func TestLedgerTaskSubscriberSerializesBusinessAndReleasesLocks(t *testing.T) {
	handler := &overlapCountingHandler{}
	sub := &LedgerTaskSubscriber{Handler: handler}
	body := []byte(`{"id":1,"business_id":"b1","action":"C"}`)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, sub.Deliver(context.Background(), body))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), handler.maxSeen.Load())
	sub.mu.Lock()
	defer sub.mu.Unlock()
	require.NotNil(t, sub.businessLocks)
	assert.Empty(t, sub.businessLocks)
}
