package worker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
	"github.com/spec-kit/support-desk/internal/service"
)

type countingSubscriber struct {
	seen int
}

func (c *countingSubscriber) Register(d events.Dispatcher) {
	d.Subscribe(events.EventTicketCreated, func(context.Context, events.Event) error {
		c.seen++
		return nil
	})
}

func TestStartEventWorkersRegistersSubscribers(t *testing.T) {
	d := events.NewInMemoryDispatcher()
	counter := &countingSubscriber{}

	started := StartEventWorkers(d, zap.NewNop(), service.NewNotificationService(nil), counter, nil)
	assert.Equal(t, 2, started)

	require.NoError(t, d.Publish(context.Background(), events.Event{Type: events.EventTicketCreated, TicketID: "t1"}))
	assert.Equal(t, 1, counter.seen)
}

func TestStartEventWorkersWithoutDispatcher(t *testing.T) {
	assert.Equal(t, 0, StartEventWorkers(nil, nil, &countingSubscriber{}))
}
