package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-desk/internal/events"
)

// NotificationService logs ticket activity for operators.
type NotificationService struct {
	logger *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{logger: logger}
}

// Register subscribes to the service events.
func (n *NotificationService) Register(d events.Dispatcher) {
	d.Subscribe(events.EventTicketCreated, n.handleTicketCreated)
	d.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
	d.Subscribe(events.EventTicketMessageAdded, n.handleTicketMessageAdded)
}

func (n *NotificationService) handleTicketCreated(_ context.Context, event events.Event) error {
	n.logger.Info("TicketCreated", fields(event)...)
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(_ context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", fields(event)...)
	return nil
}

func (n *NotificationService) handleTicketMessageAdded(_ context.Context, event events.Event) error {
	n.logger.Info("TicketMessageAdded", fields(event)...)
	return nil
}

func fields(event events.Event) []zap.Field {
	return []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_role", string(event.Actor.Role)),
		zap.String("actor_id", event.Actor.ID),
		zap.Any("payload", event.Payload),
	}
}
