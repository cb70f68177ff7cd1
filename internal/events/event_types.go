package events

import (
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

// Service events, emitted by the ticket service after a write commits.
const (
	EventTicketCreated       EventType = "ticket_created"
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketMessageAdded  EventType = "ticket_message_added"
)

// Panel events, emitted by a ticket panel when its local state changes.
const (
	EventTicketsLoaded      EventType = "tickets_loaded"
	EventTicketCached       EventType = "ticket_cached"
	EventMessageDelivery    EventType = "message_delivery"
	EventStatusChangeFailed EventType = "status_change_failed"
	EventDetailFailed       EventType = "detail_failed"
)

// ServiceEventTypes lists the events fanned out to realtime subscribers.
var ServiceEventTypes = []EventType{
	EventTicketCreated,
	EventTicketStatusChanged,
	EventTicketMessageAdded,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role domain.Role `json:"role"`
	ID   string      `json:"id,omitempty"`
}

// Event represents a domain event.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	Title   string `json:"title"`
	OwnerID string `json:"owner_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string            `json:"message_id"`
	SenderType  domain.SenderType `json:"sender_type"`
	BodyPreview string            `json:"body_preview"`
}

// MessageDeliveryPayload reports a local delivery state change.
type MessageDeliveryPayload struct {
	MessageID string                `json:"message_id"`
	Delivery  domain.DeliveryStatus `json:"delivery"`
}

// StatusChangeFailedPayload tells the initiating actor which change failed.
type StatusChangeFailedPayload struct {
	Status domain.TicketStatus `json:"status"`
	Error  string              `json:"error"`
}

// DetailFailedPayload reports a ticket detail fetch error.
type DetailFailedPayload struct {
	Error string `json:"error"`
}
