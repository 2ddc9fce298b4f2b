package amqp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, maxBackoff}
	for attempt, d := range want {
		assert.Equal(t, d, exponentialBackoff(attempt), "attempt %d", attempt)
	}
	assert.Equal(t, maxBackoff, exponentialBackoff(40))
	assert.Equal(t, time.Second, exponentialBackoff(-3))
}

func TestIsConnectionError(t *testing.T) {
	assert.False(t, isConnectionError(nil))
	assert.True(t, isConnectionError(amqp091.ErrClosed))
	assert.True(t, isConnectionError(errors.New("dial tcp: connection refused")))
	assert.True(t, isConnectionError(errors.New("write: broken pipe")))
	assert.True(t, isConnectionError(errors.New("unexpected EOF")))
	assert.False(t, isConnectionError(errors.New("PRECONDITION_FAILED - inequivalent arg 'type'")))
}

func TestClient_CircuitBreaker(t *testing.T) {
	c := &Client{exchangeName: "ledger"}
	require.False(t, c.isCircuitOpen())

	for i := 0; i < maxFailures-1; i++ {
		c.recordFailure()
	}
	assert.False(t, c.isCircuitOpen(), "below the failure threshold")
	c.recordFailure()
	assert.True(t, c.isCircuitOpen())

	// Past the open timeout the next call is let through half-open.
	c.lastFailure = time.Now().Add(-openTimeout - time.Second)
	assert.False(t, c.isCircuitOpen())
	assert.Equal(t, StateHalfOpen, atomic.LoadInt32(&c.state))

	c.recordSuccess()
	assert.Equal(t, StateClosed, atomic.LoadInt32(&c.state))
	assert.Zero(t, atomic.LoadInt64(&c.failureCount))
}

func TestClient_HalfOpenFailureReopens(t *testing.T) {
	c := &Client{exchangeName: "ledger"}
	atomic.StoreInt32(&c.state, StateHalfOpen)

	c.recordFailure()
	assert.Equal(t, StateOpen, atomic.LoadInt32(&c.state))
}

func TestClient_PublishLedgerEvent_Refused(t *testing.T) {
	c := &Client{exchangeName: "ledger", origin: "replica-a"}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.PublishLedgerEvent(ctx, NewLedgerEvent(EventExpenseDeleted, 1))
	assert.ErrorIs(t, err, context.Canceled)

	atomic.StoreInt32(&c.state, StateOpen)
	c.lastFailure = time.Now()
	err = c.PublishLedgerEvent(context.Background(), NewLedgerEvent(EventExpenseCreated, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Contains(t, err.Error(), EventExpenseCreated)
}

func TestLedgerEvent_JSON(t *testing.T) {
	event := NewLedgerEvent(EventExpenseUpdated, 3)
	assert.WithinDuration(t, time.Now(), event.Timestamp, time.Second)

	event.Origin = "replica-a"
	event.ExpenseID = 12345
	event.Months = []string{"2023-12", "2024-01"}

	body, err := event.ToJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(body), "category_id", "zero ids are omitted")

	parsed, err := LedgerEventFromJSON(body)
	require.NoError(t, err)
	assert.Equal(t, EventExpenseUpdated, parsed.Type)
	assert.Equal(t, "replica-a", parsed.Origin)
	assert.Equal(t, int64(3), parsed.OwnerID)
	assert.Equal(t, int64(12345), parsed.ExpenseID)
	assert.Equal(t, []string{"2023-12", "2024-01"}, parsed.Months)
	assert.True(t, parsed.Timestamp.Equal(event.Timestamp))

	category := NewLedgerEvent(EventCategoryDeleted, 0)
	body, err = category.ToJSON()
	require.NoError(t, err)
	assert.NotContains(t, string(body), "months", "category events cover every month")
}

func TestLedgerEvent_InvalidJSON(t *testing.T) {
	_, err := LedgerEventFromJSON([]byte(`{"owner_id": "seven"}`))
	assert.Error(t, err)
}
