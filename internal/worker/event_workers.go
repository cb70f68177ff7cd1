package worker

import (
	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
)

// Subscriber attaches its event handlers to a dispatcher.
type Subscriber interface {
	Register(d events.Dispatcher)
}

// StartEventWorkers registers every non-nil subscriber with the dispatcher.
func StartEventWorkers(d events.Dispatcher, logger *zap.Logger, subscribers ...Subscriber) int {
	if d == nil {
		return 0
	}
	started := 0
	for _, sub := range subscribers {
		if sub == nil {
			continue
		}
		sub.Register(d)
		started++
	}
	if logger != nil {
		logger.Info("event workers started", zap.Int("count", started))
	}
	return started
}
